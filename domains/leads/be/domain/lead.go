package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source records how a prospect entered the funnel.
type Source string

const (
	SourceManual      Source = "manual"
	SourceInvite      Source = "invite"
	SourceTokenSignup Source = "token_signup"
	SourceApplication Source = "application"
	SourceInquiry     Source = "inquiry"
)

func ParseSource(raw string) (Source, error) {
	switch Source(raw) {
	case SourceManual, SourceInvite, SourceTokenSignup, SourceApplication, SourceInquiry:
		return Source(raw), nil
	default:
		return "", fmt.Errorf("unknown lead source %q", raw)
	}
}

// Status is the funnel position. Statuses before archived are ordered.
type Status string

const (
	StatusInvited  Status = "invited"
	StatusViewed   Status = "viewed"
	StatusDrafting Status = "drafting"
	StatusApplied  Status = "applied"
	StatusArchived Status = "archived"
)

var funnelRank = map[Status]int{
	StatusInvited:  0,
	StatusViewed:   1,
	StatusDrafting: 2,
	StatusApplied:  3,
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := funnelRank[s]; ok || s == StatusArchived {
		return s, nil
	}
	return "", fmt.Errorf("unknown lead status %q", raw)
}

// Rank orders funnel statuses. Archived is outside the funnel and ranks -1.
func (s Status) Rank() int {
	if r, ok := funnelRank[s]; ok {
		return r
	}
	return -1
}

// Lead is a prospect's funnel record for one property. Its status follows the linked
// application only at draft creation and submission.
type Lead struct {
	ID            uuid.UUID
	PropertyID    uuid.UUID
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Token         string
	Source        Source
	Status        Status
	UserID        *uuid.UUID
	ApplicationID *uuid.UUID
	InviteTokenID *uuid.UUID
	InvitedAt     *time.Time
	ViewedAt      *time.Time
	ArchivedAt    *time.Time
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MarkAsViewed: invited -> viewed.
func (l *Lead) MarkAsViewed(now time.Time) bool {
	if l.Status != StatusInvited {
		return false
	}
	now = now.UTC()
	l.Status = StatusViewed
	l.ViewedAt = &now
	l.UpdatedAt = now
	return true
}

// MarkAsDrafting links the lead to its application. Only invited or viewed leads move.
func (l *Lead) MarkAsDrafting(now time.Time, applicationID uuid.UUID) bool {
	if l.Status != StatusInvited && l.Status != StatusViewed {
		return false
	}
	if l.ApplicationID != nil && *l.ApplicationID != applicationID {
		return false
	}
	now = now.UTC()
	l.Status = StatusDrafting
	l.ApplicationID = &applicationID
	l.UpdatedAt = now
	return true
}

// MarkAsApplied moves any live lead to applied.
func (l *Lead) MarkAsApplied(now time.Time) bool {
	if l.Status == StatusApplied || l.Status == StatusArchived {
		return false
	}
	l.Status = StatusApplied
	l.UpdatedAt = now.UTC()
	return true
}

// Archive is unconditional.
func (l *Lead) Archive(now time.Time) bool {
	now = now.UTC()
	l.Status = StatusArchived
	l.ArchivedAt = &now
	l.UpdatedAt = now
	return true
}

// LinkUser records the account the prospect signed up with. It is set once.
func (l *Lead) LinkUser(now time.Time, userID uuid.UUID) bool {
	if l.UserID != nil {
		return *l.UserID == userID
	}
	l.UserID = &userID
	l.UpdatedAt = now.UTC()
	return true
}

func (l *Lead) IsArchived() bool { return l.Status == StatusArchived }

func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	default:
		return l.FirstName + " " + l.LastName
	}
}
