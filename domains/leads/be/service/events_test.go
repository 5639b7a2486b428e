package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	applicationsdomain "github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/repo"
	"github.com/zenGate-Global/rentflow/platform/go/events"
)

func seedLead(t *testing.T, r *repo.MemoryRepository, status domain.Status) domain.Lead {
	t.Helper()
	lead, err := r.Create(context.Background(), domain.Lead{
		ID:         uuid.New(),
		PropertyID: uuid.New(),
		Email:      uuid.NewString() + "@example.com",
		Source:     domain.SourceInvite,
		Status:     status,
		CreatedAt:  start,
	})
	require.NoError(t, err)
	return lead
}

func TestApplicationEventsDriveFunnel(t *testing.T) {
	t.Parallel()

	r := repo.NewMemoryRepository()
	bus := events.NewBus(zaptest.NewLogger(t))
	NewApplicationEventHandler(r, zaptest.NewLogger(t)).Register(bus)

	lead := seedLead(t, r, domain.StatusViewed)
	appID := uuid.New()

	err := bus.Publish(context.Background(), applicationsdomain.DraftStarted{
		ApplicationID: appID, PropertyID: lead.PropertyID, LeadID: &lead.ID, OccurredAt: start,
	})
	require.NoError(t, err)

	drafting, err := r.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDrafting, drafting.Status)
	require.Equal(t, appID, *drafting.ApplicationID)

	err = bus.Publish(context.Background(), applicationsdomain.Submitted{
		ApplicationID: appID, PropertyID: lead.PropertyID, OccurredAt: start.Add(time.Hour),
	})
	require.NoError(t, err)

	applied, err := r.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusApplied, applied.Status)
	require.Equal(t, start.Add(time.Hour), applied.UpdatedAt)
}

func TestLaterApplicationOutcomesLeaveLeadAlone(t *testing.T) {
	t.Parallel()

	r := repo.NewMemoryRepository()
	h := NewApplicationEventHandler(r, zaptest.NewLogger(t))
	lead := seedLead(t, r, domain.StatusViewed)
	appID := uuid.New()

	require.NoError(t, h.Handle(context.Background(), applicationsdomain.DraftStarted{ApplicationID: appID, LeadID: &lead.ID, OccurredAt: start}))

	for _, to := range []applicationsdomain.Status{applicationsdomain.StatusWithdrawn, applicationsdomain.StatusArchived} {
		require.NoError(t, h.Handle(context.Background(), applicationsdomain.StatusChanged{
			ApplicationID: appID, From: applicationsdomain.StatusDraft, To: to, OccurredAt: start,
		}))
	}

	stored, err := r.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDrafting, stored.Status)
}

func TestMissingLeadIsNoop(t *testing.T) {
	t.Parallel()

	h := NewApplicationEventHandler(repo.NewMemoryRepository(), zaptest.NewLogger(t))
	missing := uuid.New()

	require.NoError(t, h.Handle(context.Background(), applicationsdomain.DraftStarted{ApplicationID: uuid.New(), LeadID: &missing}))
	require.NoError(t, h.Handle(context.Background(), applicationsdomain.DraftStarted{ApplicationID: uuid.New()}))
	require.NoError(t, h.Handle(context.Background(), applicationsdomain.Submitted{ApplicationID: uuid.New()}))
}

func TestArchivedLeadIgnoresDraftAndSubmit(t *testing.T) {
	t.Parallel()

	r := repo.NewMemoryRepository()
	h := NewApplicationEventHandler(r, zaptest.NewLogger(t))
	lead := seedLead(t, r, domain.StatusArchived)

	require.NoError(t, h.Handle(context.Background(), applicationsdomain.DraftStarted{ApplicationID: uuid.New(), LeadID: &lead.ID, OccurredAt: start}))

	stored, err := r.Get(context.Background(), lead.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusArchived, stored.Status)
	require.Nil(t, stored.ApplicationID)
}

type failingUpdateRepo struct {
	*repo.MemoryRepository
	err error
}

func (f failingUpdateRepo) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	return domain.Lead{}, f.err
}

func TestStoreFailureFailsPublish(t *testing.T) {
	t.Parallel()

	mem := repo.NewMemoryRepository()
	lead := seedLead(t, mem, domain.StatusInvited)
	boom := errors.New("write failed")

	bus := events.NewBus(zaptest.NewLogger(t))
	NewApplicationEventHandler(failingUpdateRepo{MemoryRepository: mem, err: boom}, zaptest.NewLogger(t)).Register(bus)

	err := bus.Publish(context.Background(), applicationsdomain.DraftStarted{ApplicationID: uuid.New(), LeadID: &lead.ID, OccurredAt: start})
	require.ErrorIs(t, err, boom)
}
