package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func fixtureProfile() Profile {
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	extra := decimal.RequireFromString("250.50")
	return Profile{
		ProfileID:   uuid.New(),
		FirstName:   "Ana",
		LastName:    "García",
		Email:       "ana@example.com",
		DateOfBirth: &dob,
		Employment:  Employment{Status: "employed", EmployerName: "Acme"},
		Income: Income{
			MonthlyIncome:    decimal.RequireFromString("3500.00"),
			AdditionalIncome: &extra,
			Currency:         "EUR",
		},
		Address:    Address{Line1: "Calle Mayor 1", City: "Madrid", Country: "ES"},
		Documents:  Documents{IDDocument: "docs/id.pdf", IncomeProofs: []string{"docs/p1.pdf"}},
		References: []Reference{{Name: "Luis", Relationship: "landlord"}},
	}
}

// applicationIn drives a fresh draft through valid operations until it reaches s.
func applicationIn(t *testing.T, s Status) *Application {
	t.Helper()
	app := NewDraft(t0, uuid.New(), uuid.New(), uuid.New(), nil)
	step := func(ok bool) { require.True(t, ok) }
	now := t0.Add(time.Hour)

	switch s {
	case StatusDraft:
	case StatusSubmitted:
		step(app.Submit(now, fixtureProfile()))
	case StatusUnderReview:
		step(app.Submit(now, fixtureProfile()))
		step(app.MoveToUnderReview(now, uuid.New()))
	case StatusVisitScheduled:
		step(app.Submit(now, fixtureProfile()))
		step(app.ScheduleVisit(now, now.Add(48*time.Hour), "bring id"))
	case StatusVisitCompleted:
		step(app.Submit(now, fixtureProfile()))
		step(app.ScheduleVisit(now, now.Add(48*time.Hour), "bring id"))
		step(app.CompleteVisit(now, "went well"))
	case StatusApproved:
		step(app.Submit(now, fixtureProfile()))
		step(app.MoveToUnderReview(now, uuid.New()))
		step(app.Approve(now, uuid.New(), "ok"))
	case StatusRejected:
		step(app.Submit(now, fixtureProfile()))
		step(app.Reject(now, "income_insufficient", nil))
	case StatusWithdrawn:
		step(app.Submit(now, fixtureProfile()))
		step(app.Withdraw(now))
	case StatusLeased:
		step(app.Submit(now, fixtureProfile()))
		step(app.MoveToUnderReview(now, uuid.New()))
		step(app.Approve(now, uuid.New(), ""))
		step(app.MarkAsLeased(now, testLease()))
	case StatusArchived:
		step(app.Archive(now))
	case StatusDeleted:
		app.Status = StatusDeleted
	default:
		t.Fatalf("no fixture for %s", s)
	}
	return app
}

func testLease() LeaseTerms {
	return LeaseTerms{
		StartDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Rent:      decimal.RequireFromString("1200.00"),
		Deposit:   decimal.RequireFromString("2400.00"),
	}
}

func apply(app *Application, op Operation, now time.Time) bool {
	switch op {
	case OpSubmit:
		return app.Submit(now, fixtureProfile())
	case OpMoveToUnderReview:
		return app.MoveToUnderReview(now, uuid.New())
	case OpScheduleVisit:
		return app.ScheduleVisit(now, now.Add(time.Hour), "n")
	case OpCompleteVisit:
		return app.CompleteVisit(now, "n")
	case OpApprove:
		return app.Approve(now, uuid.New(), "n")
	case OpReject:
		return app.Reject(now, "r", json.RawMessage(`{"k":1}`))
	case OpWithdraw:
		return app.Withdraw(now)
	case OpMarkAsLeased:
		return app.MarkAsLeased(now, testLease())
	case OpArchive:
		return app.Archive(now)
	}
	panic("unknown operation " + string(op))
}

func TestGuardedOperationsLeaveApplicationUntouched(t *testing.T) {
	later := t0.Add(72 * time.Hour)
	for _, s := range Statuses() {
		for _, op := range Operations() {
			app := applicationIn(t, s)
			if op.Allows(s) {
				continue
			}
			before := *app
			before.pending = app.PendingEvents()

			require.False(t, apply(app, op, later), "%s from %s", op, s)
			require.Equal(t, before, *app, "%s from %s mutated the application", op, s)
		}
	}
}

func TestAllowedOperationsReachTarget(t *testing.T) {
	later := t0.Add(72 * time.Hour)
	for _, s := range Statuses() {
		for _, op := range Operations() {
			if !op.Allows(s) {
				continue
			}
			app := applicationIn(t, s)
			app.DrainEvents()

			require.True(t, apply(app, op, later), "%s from %s", op, s)
			require.Equal(t, op.Target(), app.Status)
			require.Equal(t, later, app.UpdatedAt)

			events := app.DrainEvents()
			require.NotEmpty(t, events)
			changed, ok := events[len(events)-1].(StatusChanged)
			require.True(t, ok)
			require.Equal(t, s, changed.From)
			require.Equal(t, op.Target(), changed.To)
		}
	}
}

func TestNoOperationTargetsDeleted(t *testing.T) {
	for _, op := range Operations() {
		require.NotEqual(t, StatusDeleted, op.Target())
	}
}

func TestArchiveIsUnconditional(t *testing.T) {
	for _, s := range Statuses() {
		app := applicationIn(t, s)
		require.True(t, app.Archive(t0.Add(time.Hour)))
		require.True(t, app.IsArchived())
		require.NotNil(t, app.ArchivedAt)
	}
}

func TestSubmitCopiesProfileWithExactIncome(t *testing.T) {
	app := applicationIn(t, StatusDraft)
	profile := fixtureProfile()
	now := t0.Add(time.Hour)

	require.True(t, app.Submit(now, profile))
	require.Equal(t, StatusSubmitted, app.Status)
	require.NotNil(t, app.SubmittedAt)
	require.Equal(t, now, *app.SubmittedAt)
	require.NotNil(t, app.Snapshot)
	require.Equal(t, "3500.00", app.Snapshot.Income.MonthlyIncome.StringFixed(2))
	require.True(t, decimal.RequireFromString("3500.00").Equal(app.Snapshot.Income.MonthlyIncome))
	require.True(t, app.IsSubmitted())
}

func TestSnapshotSurvivesProfileEditsAndLaterOperations(t *testing.T) {
	app := applicationIn(t, StatusDraft)
	profile := fixtureProfile()
	require.True(t, app.Submit(t0, profile))
	original := app.Snapshot.Clone()

	profile.FirstName = "Changed"
	profile.Documents.IncomeProofs[0] = "docs/other.pdf"
	*profile.Income.AdditionalIncome = decimal.NewFromInt(1)
	profile.References[0].Name = "Someone else"

	changed := fixtureProfile()
	changed.Income.MonthlyIncome = decimal.NewFromInt(9999)
	require.False(t, app.Submit(t0.Add(time.Hour), changed))

	require.True(t, app.MoveToUnderReview(t0.Add(2*time.Hour), uuid.New()))
	require.True(t, app.Approve(t0.Add(3*time.Hour), uuid.New(), ""))
	require.True(t, app.MarkAsLeased(t0.Add(4*time.Hour), testLease()))
	require.True(t, app.Archive(t0.Add(5*time.Hour)))

	require.Equal(t, original, *app.Snapshot)
}

func TestRejectThenApproveFails(t *testing.T) {
	app := applicationIn(t, StatusUnderReview)
	details := json.RawMessage(`{"requiredIncome":"4000.00"}`)

	require.True(t, app.Reject(t0.Add(time.Hour), "income_insufficient", details))
	require.Equal(t, StatusRejected, app.Status)
	require.Equal(t, "income_insufficient", app.RejectionReason)
	require.JSONEq(t, string(details), string(app.RejectionDetails))

	require.False(t, app.Approve(t0.Add(2*time.Hour), uuid.New(), "changed my mind"))
	require.Equal(t, StatusRejected, app.Status)
	require.Nil(t, app.ApprovedAt)
}

func TestCompleteVisitAppendsNotes(t *testing.T) {
	app := applicationIn(t, StatusSubmitted)
	at := t0.Add(48 * time.Hour)

	require.True(t, app.ScheduleVisit(t0, at, "  ring twice "))
	require.Equal(t, "ring twice", app.VisitNotes)
	require.Equal(t, at, *app.VisitScheduledAt)

	require.True(t, app.CompleteVisit(at, "liked the kitchen"))
	require.Equal(t, "ring twice\n\nliked the kitchen", app.VisitNotes)
	require.NotNil(t, app.VisitCompletedAt)
}

func TestCompleteVisitWithoutNotesKeepsExisting(t *testing.T) {
	app := applicationIn(t, StatusVisitScheduled)
	require.True(t, app.CompleteVisit(t0, ""))
	require.Equal(t, "bring id", app.VisitNotes)
}

func TestMarkAsLeasedStoresTerms(t *testing.T) {
	app := applicationIn(t, StatusApproved)
	terms := testLease()

	require.True(t, app.MarkAsLeased(t0, terms))
	require.True(t, app.IsLeased())
	require.Equal(t, terms.StartDate, *app.LeaseStartDate)
	require.Equal(t, terms.EndDate, *app.LeaseEndDate)
	require.True(t, terms.Rent.Equal(*app.AgreedRentAmount))
	require.True(t, terms.Deposit.Equal(*app.DepositAmount))
	require.Equal(t, t0, *app.LeaseSignedAt)
}

func TestPredicates(t *testing.T) {
	draft := applicationIn(t, StatusDraft)
	require.True(t, draft.IsDraft())
	require.True(t, draft.CanBeEdited())
	require.False(t, draft.CanBeWithdrawn())
	require.False(t, draft.IsSubmitted())

	withdrawable := []Status{StatusSubmitted, StatusUnderReview, StatusVisitScheduled, StatusVisitCompleted}
	for _, s := range withdrawable {
		app := applicationIn(t, s)
		require.True(t, app.CanBeWithdrawn(), s)
		require.False(t, app.CanBeEdited(), s)
	}

	// IsSubmitted is about history, not the current status.
	withdrawn := applicationIn(t, StatusWithdrawn)
	require.True(t, withdrawn.IsSubmitted())
	require.True(t, withdrawn.IsWithdrawn())
	require.False(t, withdrawn.CanBeWithdrawn())

	archivedDraft := applicationIn(t, StatusArchived)
	require.False(t, archivedDraft.IsSubmitted())
}

func TestSetCurrentStepOnlyInDraft(t *testing.T) {
	draft := applicationIn(t, StatusDraft)
	require.True(t, draft.SetCurrentStep(t0.Add(time.Minute), 3))
	require.Equal(t, 3, draft.CurrentStep)
	require.False(t, draft.SetCurrentStep(t0, -1))

	submitted := applicationIn(t, StatusSubmitted)
	require.False(t, submitted.SetCurrentStep(t0, 4))
	require.Equal(t, 0, submitted.CurrentStep)
}

func TestNewDraftRecordsDraftStarted(t *testing.T) {
	lead := uuid.New()
	id := uuid.New()
	app := NewDraft(t0, id, uuid.New(), uuid.New(), &lead)

	events := app.DrainEvents()
	require.Len(t, events, 1)
	started, ok := events[0].(DraftStarted)
	require.True(t, ok)
	require.Equal(t, id, started.ApplicationID)
	require.Equal(t, lead, *started.LeadID)
	require.Empty(t, app.DrainEvents())
}

func TestSubmitRecordsSubmittedThenStatusChanged(t *testing.T) {
	app := applicationIn(t, StatusDraft)
	app.DrainEvents()

	require.True(t, app.Submit(t0, fixtureProfile()))
	events := app.DrainEvents()
	require.Len(t, events, 2)
	require.Equal(t, EventSubmitted, events[0].EventName())
	require.Equal(t, EventStatusChanged, events[1].EventName())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("visit_completed")
	require.NoError(t, err)
	require.Equal(t, StatusVisitCompleted, s)

	_, err = ParseStatus("pending")
	require.Error(t, err)
	require.Len(t, Statuses(), 11)
}

func TestCloneDropsEventsAndSharesNothing(t *testing.T) {
	app := applicationIn(t, StatusSubmitted)
	require.NotEmpty(t, app.PendingEvents())

	clone := app.Clone()
	require.Empty(t, clone.PendingEvents())
	require.Equal(t, app.Snapshot.Income.MonthlyIncome.String(), clone.Snapshot.Income.MonthlyIncome.String())

	clone.Snapshot.FirstName = "Changed"
	*clone.SubmittedAt = t0.Add(-time.Hour)
	require.Equal(t, "Ana", app.Snapshot.FirstName)
	require.NotEqual(t, t0.Add(-time.Hour), *app.SubmittedAt)
}
