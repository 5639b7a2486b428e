package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event names used on the bus.
const (
	EventDraftStarted  = "applications.draft_started"
	EventSubmitted     = "applications.submitted"
	EventStatusChanged = "applications.status_changed"
)

// DraftStarted is recorded when an application is created. LeadID is set when the draft
// came out of a lead conversion.
type DraftStarted struct {
	ApplicationID uuid.UUID
	PropertyID    uuid.UUID
	LeadID        *uuid.UUID
	OccurredAt    time.Time
}

func (DraftStarted) EventName() string { return EventDraftStarted }

// Submitted is recorded on the draft -> submitted transition.
type Submitted struct {
	ApplicationID uuid.UUID
	PropertyID    uuid.UUID
	OccurredAt    time.Time
}

func (Submitted) EventName() string { return EventSubmitted }

// StatusChanged is recorded for every successful status transition, including submit.
// It carries no cross-entity meaning; notification dispatch subscribes to it.
type StatusChanged struct {
	ApplicationID uuid.UUID
	PropertyID    uuid.UUID
	Operation     Operation
	From          Status
	To            Status
	OccurredAt    time.Time
}

func (StatusChanged) EventName() string { return EventStatusChanged }
