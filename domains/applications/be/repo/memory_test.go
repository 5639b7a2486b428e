package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func profile(income string) domain.Profile {
	return domain.Profile{
		ProfileID: uuid.New(),
		FirstName: "Marta",
		LastName:  "Ruiz",
		Email:     "marta@example.com",
		Income:    domain.Income{MonthlyIncome: decimal.RequireFromString(income), Currency: "EUR"},
	}
}

func TestMemorySnapshotIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	app := domain.NewDraft(start, uuid.New(), uuid.New(), uuid.New(), nil)
	_, err := r.Create(ctx, app)
	require.NoError(t, err)

	require.True(t, app.Submit(start.Add(time.Hour), profile("3100.10")))
	saved, err := r.Update(ctx, app)
	require.NoError(t, err)
	require.NotEmpty(t, saved.SnapshotChecksum)
	require.Empty(t, saved.PendingEvents())

	// A later write carrying a different snapshot keeps the first one.
	other := profile("9999.99")
	saved.Snapshot = &other
	require.True(t, saved.MoveToUnderReview(start.Add(2*time.Hour), uuid.New()))
	again, err := r.Update(ctx, saved)
	require.NoError(t, err)
	require.Equal(t, domain.StatusUnderReview, again.Status)
	require.Equal(t, "3100.1", again.Snapshot.Income.MonthlyIncome.String())
	require.Equal(t, "Marta", again.Snapshot.FirstName)
	require.Equal(t, saved.SnapshotChecksum, again.SnapshotChecksum)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	app := domain.NewDraft(start, uuid.New(), uuid.New(), uuid.New(), nil)
	_, err := r.Create(ctx, app)
	require.NoError(t, err)

	got, err := r.Get(ctx, app.ID)
	require.NoError(t, err)
	got.CurrentStep = 7

	again, err := r.Get(ctx, app.ID)
	require.NoError(t, err)
	require.Zero(t, again.CurrentStep)
}

func TestMemoryCreateRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	app := domain.NewDraft(start, uuid.New(), uuid.New(), uuid.New(), nil)
	_, err := r.Create(ctx, app)
	require.NoError(t, err)
	_, err = r.Create(ctx, app)
	require.ErrorIs(t, err, persistence.ErrApplicationConflict)
}

func TestMemoryUnknownApplication(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()

	_, err := r.Get(ctx, uuid.New())
	require.ErrorIs(t, err, persistence.ErrApplicationNotFound)

	_, err = r.Update(ctx, domain.NewDraft(start, uuid.New(), uuid.New(), uuid.New(), nil))
	require.ErrorIs(t, err, persistence.ErrApplicationNotFound)
}

func TestMemoryListFiltersAndHidesDeleted(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	property := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		app := domain.NewDraft(start.Add(time.Duration(i)*time.Minute), uuid.New(), property, uuid.New(), nil)
		_, err := r.Create(ctx, app)
		require.NoError(t, err)
		ids = append(ids, app.ID)
	}
	_, err := r.Create(ctx, domain.NewDraft(start, uuid.New(), uuid.New(), uuid.New(), nil))
	require.NoError(t, err)

	// Nothing moves an application into deleted, so plant one directly.
	r.apps[ids[0]].Status = domain.StatusDeleted

	result, err := r.List(ctx, ListParams{PropertyID: &property})
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalItems)
	require.Equal(t, ids[2], result.Applications[0].ID)

	result, err = r.List(ctx, ListParams{PropertyID: &property, Statuses: []domain.Status{domain.StatusDeleted}})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalItems)
	require.Equal(t, ids[0], result.Applications[0].ID)

	result, err = r.List(ctx, ListParams{PropertyID: &property, IncludeDeleted: true, PageSize: 2, Page: 2})
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalItems)
	require.Len(t, result.Applications, 1)
}

func TestMemoryProfiles(t *testing.T) {
	ctx := context.Background()
	profiles := NewMemoryProfiles()

	p := profile("2000")
	profiles.Put(p)

	got, err := profiles.GetProfile(ctx, p.ProfileID)
	require.NoError(t, err)
	require.Equal(t, "Marta", got.FirstName)

	_, err = profiles.GetProfile(ctx, uuid.New())
	require.ErrorIs(t, err, persistence.ErrTenantProfileNotFound)
}
