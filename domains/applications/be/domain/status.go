package domain

import "fmt"

// Status is the lifecycle state of an application.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusSubmitted      Status = "submitted"
	StatusUnderReview    Status = "under_review"
	StatusVisitScheduled Status = "visit_scheduled"
	StatusVisitCompleted Status = "visit_completed"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
	StatusWithdrawn      Status = "withdrawn"
	StatusLeased         Status = "leased"
	StatusArchived       Status = "archived"
	// StatusDeleted is a filter marker only. No operation moves an application into it.
	StatusDeleted Status = "deleted"
)

var allStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusVisitScheduled,
	StatusVisitCompleted,
	StatusApproved,
	StatusRejected,
	StatusWithdrawn,
	StatusLeased,
	StatusArchived,
	StatusDeleted,
}

// Statuses returns every known status, including the deleted marker.
func Statuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a stored or user supplied value into a Status and rejects unknown values.
func ParseStatus(raw string) (Status, error) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}

func (s Status) String() string { return string(s) }

// Operation names a transition of the application graph.
type Operation string

const (
	OpSubmit            Operation = "submit"
	OpMoveToUnderReview Operation = "move_to_under_review"
	OpScheduleVisit     Operation = "schedule_visit"
	OpCompleteVisit     Operation = "complete_visit"
	OpApprove           Operation = "approve"
	OpReject            Operation = "reject"
	OpWithdraw          Operation = "withdraw"
	OpMarkAsLeased      Operation = "mark_as_leased"
	OpArchive           Operation = "archive"
)

type transition struct {
	from   []Status
	target Status
}

// transitions is the complete graph. Archive has no source list: it is accepted from any state.
var transitions = map[Operation]transition{
	OpSubmit:            {from: []Status{StatusDraft}, target: StatusSubmitted},
	OpMoveToUnderReview: {from: []Status{StatusSubmitted}, target: StatusUnderReview},
	OpScheduleVisit:     {from: []Status{StatusSubmitted, StatusUnderReview}, target: StatusVisitScheduled},
	OpCompleteVisit:     {from: []Status{StatusVisitScheduled}, target: StatusVisitCompleted},
	OpApprove:           {from: []Status{StatusUnderReview, StatusVisitCompleted}, target: StatusApproved},
	OpReject:            {from: []Status{StatusSubmitted, StatusUnderReview, StatusVisitCompleted}, target: StatusRejected},
	OpWithdraw:          {from: []Status{StatusSubmitted, StatusUnderReview, StatusVisitScheduled, StatusVisitCompleted}, target: StatusWithdrawn},
	OpMarkAsLeased:      {from: []Status{StatusApproved}, target: StatusLeased},
	OpArchive:           {target: StatusArchived},
}

// Operations lists every transition in a stable order.
func Operations() []Operation {
	return []Operation{
		OpSubmit,
		OpMoveToUnderReview,
		OpScheduleVisit,
		OpCompleteVisit,
		OpApprove,
		OpReject,
		OpWithdraw,
		OpMarkAsLeased,
		OpArchive,
	}
}

// Allows reports whether op may run while the application is in status s.
func (op Operation) Allows(s Status) bool {
	t, ok := transitions[op]
	if !ok {
		return false
	}
	if op == OpArchive {
		return true
	}
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

// Target returns the status reached by op.
func (op Operation) Target() Status {
	return transitions[op].target
}
