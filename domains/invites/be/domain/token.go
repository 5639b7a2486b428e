package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultName marks the property's canonical always-open token.
const DefaultName = "Default"

// tokenBytes encodes to TokenLength characters of unpadded base64url.
const (
	tokenBytes  = 48
	TokenLength = 64
)

// Type distinguishes personal invites from open links.
type Type string

const (
	TypeInvite Type = "invite"
	TypeOpen   Type = "open"
)

// ParseType rejects anything outside the known token types.
func ParseType(raw string) (Type, error) {
	switch Type(raw) {
	case TypeInvite, TypeOpen:
		return Type(raw), nil
	default:
		return "", fmt.Errorf("unknown invite token type %q", raw)
	}
}

// Denial explains why a token cannot be used. The empty value means it can.
type Denial string

const (
	DenialNone          Denial = ""
	DenialExpired       Denial = "expired"
	DenialExhausted     Denial = "exhausted"
	DenialEmailMismatch Denial = "email_mismatch"
)

// Token is a capability that lets a prospect start an application for one property.
type Token struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	Token      string
	Type       Type
	Email      *string
	MaxUses    *int
	UsedCount  int
	ExpiresAt  *time.Time
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GenerateToken returns a fresh random URL-safe token string.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsDefault reports whether this is the property's canonical open token.
func (t *Token) IsDefault() bool { return t.Name == DefaultName }

// IsExpired is true once now has reached ExpiresAt.
func (t *Token) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// IsExhausted is true when a use limit is set and has been reached.
func (t *Token) IsExhausted() bool {
	return t.MaxUses != nil && t.UsedCount >= *t.MaxUses
}

// RemainingUses returns nil for unlimited tokens.
func (t *Token) RemainingUses() *int {
	if t.MaxUses == nil {
		return nil
	}
	left := *t.MaxUses - t.UsedCount
	if left < 0 {
		left = 0
	}
	return &left
}

// IsValid reports whether the token is neither expired nor exhausted.
func (t *Token) IsValid(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsExhausted()
}

// CanBeUsed adds the email check for personal invites. Open tokens ignore email.
func (t *Token) CanBeUsed(now time.Time, email string) bool {
	return t.DenialReason(now, email) == DenialNone
}

// DenialReason reports the first failing check, in the order expiry, limit, email.
func (t *Token) DenialReason(now time.Time, email string) Denial {
	switch {
	case t.IsExpired(now):
		return DenialExpired
	case t.IsExhausted():
		return DenialExhausted
	case t.Type == TypeInvite && !EmailMatches(t.Email, email):
		return DenialEmailMismatch
	default:
		return DenialNone
	}
}

// IncrementUsage counts one use if the limit allows it. Stores must perform the same check
// and increment as one atomic operation.
func (t *Token) IncrementUsage(now time.Time) bool {
	if t.IsExhausted() {
		return false
	}
	t.UsedCount++
	t.UpdatedAt = now.UTC()
	return true
}

// EmailMatches compares addresses ignoring case and surrounding whitespace.
func EmailMatches(expected *string, candidate string) bool {
	if expected == nil {
		return false
	}
	want := NormalizeEmail(*expected)
	return want != "" && want == NormalizeEmail(candidate)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
