package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event is anything the aggregate records for publication after a successful save.
type Event interface {
	EventName() string
}

// LeaseTerms are the figures agreed when an approved application becomes a lease.
type LeaseTerms struct {
	StartDate time.Time
	EndDate   time.Time
	Rent      decimal.Decimal
	Deposit   decimal.Decimal
}

// Application is a single tenancy application between a tenant profile and a property.
//
// Mutators return false and leave every field untouched when the current status is not an
// allowed source for the operation. Callers are expected to check eligibility with the
// predicates first; the guard is a backstop.
type Application struct {
	ID              uuid.UUID
	PropertyID      uuid.UUID
	TenantProfileID uuid.UUID

	Status      Status
	CurrentStep int

	SubmittedAt      *time.Time
	ReviewedAt       *time.Time
	VisitScheduledAt *time.Time
	VisitCompletedAt *time.Time
	ApprovedAt       *time.Time
	LeaseSignedAt    *time.Time
	WithdrawnAt      *time.Time
	ArchivedAt       *time.Time

	ReviewedByUserID *uuid.UUID
	ApprovedByUserID *uuid.UUID
	ApprovalNotes    string
	VisitNotes       string
	RejectionReason  string
	RejectionDetails json.RawMessage

	LeaseStartDate   *time.Time
	LeaseEndDate     *time.Time
	AgreedRentAmount *decimal.Decimal
	DepositAmount    *decimal.Decimal

	// Snapshot is written once, by Submit.
	Snapshot         *Profile
	SnapshotChecksum string

	CreatedAt time.Time
	UpdatedAt time.Time

	pending []Event
}

// NewDraft creates an application in draft and records DraftStarted.
func NewDraft(now time.Time, id, propertyID, tenantProfileID uuid.UUID, leadID *uuid.UUID) *Application {
	now = now.UTC()
	app := &Application{
		ID:              id,
		PropertyID:      propertyID,
		TenantProfileID: tenantProfileID,
		Status:          StatusDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var lead *uuid.UUID
	if leadID != nil {
		v := *leadID
		lead = &v
	}
	app.record(DraftStarted{ApplicationID: id, PropertyID: propertyID, LeadID: lead, OccurredAt: now})
	return app
}

// IsDraft reports whether the application is still being prepared by the applicant.
func (a *Application) IsDraft() bool { return a.Status == StatusDraft }

// IsSubmitted reports whether the application was ever submitted, whatever its status now.
func (a *Application) IsSubmitted() bool { return a.SubmittedAt != nil }

func (a *Application) IsUnderReview() bool { return a.Status == StatusUnderReview }
func (a *Application) IsApproved() bool    { return a.Status == StatusApproved }
func (a *Application) IsRejected() bool    { return a.Status == StatusRejected }
func (a *Application) IsWithdrawn() bool   { return a.Status == StatusWithdrawn }
func (a *Application) IsLeased() bool      { return a.Status == StatusLeased }
func (a *Application) IsArchived() bool    { return a.Status == StatusArchived }

// CanBeEdited is true only while the application is a draft.
func (a *Application) CanBeEdited() bool { return a.Status == StatusDraft }

// CanBeWithdrawn is true while the applicant is still in the running.
func (a *Application) CanBeWithdrawn() bool { return OpWithdraw.Allows(a.Status) }

// CanTransition reports whether op would be accepted now.
func (a *Application) CanTransition(op Operation) bool { return op.Allows(a.Status) }

// SetCurrentStep moves the wizard marker. Only drafts can be edited.
func (a *Application) SetCurrentStep(now time.Time, step int) bool {
	if !a.CanBeEdited() || step < 0 {
		return false
	}
	a.CurrentStep = step
	a.UpdatedAt = now.UTC()
	return true
}

// Submit moves a draft to submitted and copies the live profile into the snapshot.
func (a *Application) Submit(now time.Time, profile Profile) bool {
	if !OpSubmit.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusSubmitted
	a.SubmittedAt = stamp(now)
	if a.Snapshot == nil {
		snap := profile.Clone()
		a.Snapshot = &snap
	}
	a.UpdatedAt = now

	a.record(Submitted{ApplicationID: a.ID, PropertyID: a.PropertyID, OccurredAt: now})
	a.changed(OpSubmit, from, now)
	return true
}

// MoveToUnderReview records who picked the application up for review.
func (a *Application) MoveToUnderReview(now time.Time, reviewer uuid.UUID) bool {
	if !OpMoveToUnderReview.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusUnderReview
	a.ReviewedByUserID = &reviewer
	a.ReviewedAt = stamp(now)
	a.UpdatedAt = now

	a.changed(OpMoveToUnderReview, from, now)
	return true
}

// ScheduleVisit books a viewing at the given time.
func (a *Application) ScheduleVisit(now, at time.Time, notes string) bool {
	if !OpScheduleVisit.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusVisitScheduled
	a.VisitScheduledAt = stamp(at.UTC())
	a.VisitNotes = strings.TrimSpace(notes)
	a.UpdatedAt = now

	a.changed(OpScheduleVisit, from, now)
	return true
}

// CompleteVisit closes the viewing. Notes are appended to the ones written when scheduling.
func (a *Application) CompleteVisit(now time.Time, notes string) bool {
	if !OpCompleteVisit.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusVisitCompleted
	a.VisitCompletedAt = stamp(now)
	a.VisitNotes = appendNotes(a.VisitNotes, notes)
	a.UpdatedAt = now

	a.changed(OpCompleteVisit, from, now)
	return true
}

// Approve records the landlord's approval.
func (a *Application) Approve(now time.Time, approver uuid.UUID, notes string) bool {
	if !OpApprove.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusApproved
	a.ApprovedByUserID = &approver
	a.ApprovedAt = stamp(now)
	a.ApprovalNotes = strings.TrimSpace(notes)
	a.UpdatedAt = now

	a.changed(OpApprove, from, now)
	return true
}

// Reject records the landlord's refusal with a reason code and optional structured details.
func (a *Application) Reject(now time.Time, reason string, details json.RawMessage) bool {
	if !OpReject.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusRejected
	a.RejectionReason = strings.TrimSpace(reason)
	if len(details) > 0 {
		a.RejectionDetails = append(json.RawMessage(nil), details...)
	} else {
		a.RejectionDetails = nil
	}
	a.UpdatedAt = now

	a.changed(OpReject, from, now)
	return true
}

// Withdraw is the applicant leaving the process.
func (a *Application) Withdraw(now time.Time) bool {
	if !OpWithdraw.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	a.Status = StatusWithdrawn
	a.WithdrawnAt = stamp(now)
	a.UpdatedAt = now

	a.changed(OpWithdraw, from, now)
	return true
}

// MarkAsLeased turns an approved application into a signed lease.
func (a *Application) MarkAsLeased(now time.Time, terms LeaseTerms) bool {
	if !OpMarkAsLeased.Allows(a.Status) {
		return false
	}
	now = now.UTC()
	from := a.Status

	start := terms.StartDate.UTC()
	end := terms.EndDate.UTC()
	rent := terms.Rent
	deposit := terms.Deposit

	a.Status = StatusLeased
	a.LeaseStartDate = &start
	a.LeaseEndDate = &end
	a.AgreedRentAmount = &rent
	a.DepositAmount = &deposit
	a.LeaseSignedAt = stamp(now)
	a.UpdatedAt = now

	a.changed(OpMarkAsLeased, from, now)
	return true
}

// Archive removes the application from active views. It is accepted from every state.
func (a *Application) Archive(now time.Time) bool {
	now = now.UTC()
	from := a.Status

	a.Status = StatusArchived
	a.ArchivedAt = stamp(now)
	a.UpdatedAt = now

	a.changed(OpArchive, from, now)
	return true
}

// Clone returns a deep copy without the pending events.
func (a *Application) Clone() *Application {
	out := *a
	out.pending = nil

	out.SubmittedAt = cloneTime(a.SubmittedAt)
	out.ReviewedAt = cloneTime(a.ReviewedAt)
	out.VisitScheduledAt = cloneTime(a.VisitScheduledAt)
	out.VisitCompletedAt = cloneTime(a.VisitCompletedAt)
	out.ApprovedAt = cloneTime(a.ApprovedAt)
	out.LeaseSignedAt = cloneTime(a.LeaseSignedAt)
	out.WithdrawnAt = cloneTime(a.WithdrawnAt)
	out.ArchivedAt = cloneTime(a.ArchivedAt)
	out.LeaseStartDate = cloneTime(a.LeaseStartDate)
	out.LeaseEndDate = cloneTime(a.LeaseEndDate)

	out.ReviewedByUserID = cloneID(a.ReviewedByUserID)
	out.ApprovedByUserID = cloneID(a.ApprovedByUserID)
	out.AgreedRentAmount = cloneDecimal(a.AgreedRentAmount)
	out.DepositAmount = cloneDecimal(a.DepositAmount)

	if a.RejectionDetails != nil {
		out.RejectionDetails = append(json.RawMessage(nil), a.RejectionDetails...)
	}
	if a.Snapshot != nil {
		snap := a.Snapshot.Clone()
		out.Snapshot = &snap
	}
	return &out
}

// PendingEvents returns the events recorded since the last DrainEvents call.
func (a *Application) PendingEvents() []Event {
	return append([]Event(nil), a.pending...)
}

// DrainEvents returns and clears the recorded events.
func (a *Application) DrainEvents() []Event {
	out := a.pending
	a.pending = nil
	return out
}

func (a *Application) record(e Event) {
	a.pending = append(a.pending, e)
}

func (a *Application) changed(op Operation, from Status, now time.Time) {
	a.record(StatusChanged{
		ApplicationID: a.ID,
		PropertyID:    a.PropertyID,
		Operation:     op,
		From:          from,
		To:            a.Status,
		OccurredAt:    now,
	})
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func stamp(t time.Time) *time.Time {
	return &t
}

func appendNotes(existing, extra string) string {
	extra = strings.TrimSpace(extra)
	switch {
	case extra == "":
		return existing
	case existing == "":
		return extra
	default:
		return existing + "\n\n" + extra
	}
}
