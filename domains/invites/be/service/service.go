package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	"github.com/zenGate-Global/rentflow/domains/invites/be/repo"
	"github.com/zenGate-Global/rentflow/platform/go/clock"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
	"github.com/zenGate-Global/rentflow/platform/go/telemetry"
	"github.com/zenGate-Global/rentflow/platform/go/validation"
)

// generateAttempts bounds how often a colliding token string is regenerated.
const generateAttempts = 3

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("invite token not found")
	ErrConflict = errors.New("invite token conflict")
	// ErrTokenDenied is matched by every *DeniedError.
	ErrTokenDenied = errors.New("invite token denied")
)

// DeniedError reports why a token could not be used.
type DeniedError struct {
	Reason domain.Denial
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("invite token denied: %s", e.Reason)
}

func (e *DeniedError) Is(target error) bool { return target == ErrTokenDenied }

// CreateInput describes a custom token issued by a property manager.
type CreateInput struct {
	PropertyID uuid.UUID  `json:"propertyId" validate:"required"`
	Type       string     `json:"type" validate:"required,oneof=invite open"`
	Email      string     `json:"email" validate:"required_if=Type invite,omitempty,email"`
	MaxUses    *int       `json:"maxUses" validate:"omitempty,min=1"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Name       string     `json:"name" validate:"max=120"`
}

// UpdateLimitsInput edits the use limit and expiry. The Clear flags remove a limit; a nil
// pointer without its Clear flag leaves the current value in place.
type UpdateLimitsInput struct {
	MaxUses        *int
	ClearMaxUses   bool
	ExpiresAt      *time.Time
	ClearExpiresAt bool
}

// CheckResult is the read-only verdict on a token for a given email.
type CheckResult struct {
	Token  domain.Token
	Valid  bool
	Reason domain.Denial
}

// Service defines the business operations for invite tokens.
type Service interface {
	Create(ctx context.Context, input CreateInput) (domain.Token, error)
	EnsureDefault(ctx context.Context, propertyID uuid.UUID) (domain.Token, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Token, error)
	GetByToken(ctx context.Context, token string) (domain.Token, error)
	List(ctx context.Context, propertyID uuid.UUID) ([]domain.Token, error)
	UpdateLimits(ctx context.Context, id uuid.UUID, input UpdateLimitsInput) (domain.Token, error)
	Check(ctx context.Context, token, email string) (CheckResult, error)
	Consume(ctx context.Context, token, email string) (domain.Token, error)
}

type service struct {
	repo     repo.Repository
	clock    clock.Clock
	logger   *zap.Logger
	generate func() (string, error)
}

// New constructs an invites Service backed by the provided repository.
func New(r repo.Repository, clk clock.Clock, logger *zap.Logger) Service {
	if r == nil {
		panic("invite tokens repository is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, clock: clk, logger: logger, generate: domain.GenerateToken}
}

func (s *service) Create(ctx context.Context, input CreateInput) (domain.Token, error) {
	now := s.clock.Now()

	fieldErrors := FieldErrors(validation.Struct(input))
	if fieldErrors == nil {
		fieldErrors = FieldErrors{}
	}
	name := strings.TrimSpace(input.Name)
	if strings.EqualFold(name, domain.DefaultName) {
		fieldErrors.add("name", fmt.Sprintf("name %q is reserved", domain.DefaultName))
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		fieldErrors.add("expiresAt", "expiresAt must be in the future")
	}
	if domain.Type(input.Type) == domain.TypeOpen && strings.TrimSpace(input.Email) != "" {
		fieldErrors.add("email", "email is only allowed on invite tokens")
	}
	if len(fieldErrors) > 0 {
		return domain.Token{}, &ValidationError{Fields: fieldErrors}
	}

	token := domain.Token{
		PropertyID: input.PropertyID,
		Type:       domain.Type(input.Type),
		MaxUses:    input.MaxUses,
		ExpiresAt:  utcPtr(input.ExpiresAt),
		Name:       name,
		CreatedAt:  now,
	}
	if token.Type == domain.TypeInvite {
		email := domain.NormalizeEmail(input.Email)
		token.Email = &email
	}

	return s.insert(ctx, token)
}

func (s *service) EnsureDefault(ctx context.Context, propertyID uuid.UUID) (domain.Token, error) {
	if propertyID == uuid.Nil {
		return domain.Token{}, newValidationError(map[string]string{"propertyId": "propertyId is required"})
	}

	existing, err := s.repo.GetDefault(ctx, propertyID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, persistence.ErrInviteTokenNotFound) {
		return domain.Token{}, mapPersistenceError(err)
	}

	created, err := s.insert(ctx, domain.Token{
		PropertyID: propertyID,
		Type:       domain.TypeOpen,
		Name:       domain.DefaultName,
		CreatedAt:  s.clock.Now(),
	})
	if errors.Is(err, ErrConflict) {
		// Lost the race to a concurrent publish of the same property.
		existing, getErr := s.repo.GetDefault(ctx, propertyID)
		if getErr != nil {
			return domain.Token{}, mapPersistenceError(getErr)
		}
		return existing, nil
	}
	if err != nil {
		return domain.Token{}, err
	}

	s.logger.Info("default invite token created",
		zap.String("property_id", propertyID.String()),
		zap.String("token_id", created.ID.String()),
	)
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (domain.Token, error) {
	if id == uuid.Nil {
		return domain.Token{}, ErrNotFound
	}
	token, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Token{}, mapPersistenceError(err)
	}
	return token, nil
}

func (s *service) GetByToken(ctx context.Context, token string) (domain.Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Token{}, ErrNotFound
	}
	found, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return domain.Token{}, mapPersistenceError(err)
	}
	return found, nil
}

func (s *service) List(ctx context.Context, propertyID uuid.UUID) ([]domain.Token, error) {
	if propertyID == uuid.Nil {
		return nil, newValidationError(map[string]string{"propertyId": "propertyId is required"})
	}
	tokens, err := s.repo.List(ctx, propertyID)
	if err != nil {
		return nil, mapPersistenceError(err)
	}
	return tokens, nil
}

func (s *service) UpdateLimits(ctx context.Context, id uuid.UUID, input UpdateLimitsInput) (domain.Token, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Token{}, err
	}

	now := s.clock.Now()
	fieldErrors := FieldErrors{}

	maxUses := current.MaxUses
	switch {
	case input.ClearMaxUses && input.MaxUses != nil:
		fieldErrors.add("maxUses", "maxUses cannot be set and cleared at once")
	case input.ClearMaxUses:
		maxUses = nil
	case input.MaxUses != nil:
		if *input.MaxUses < 1 {
			fieldErrors.add("maxUses", "maxUses must be at least 1")
		}
		maxUses = input.MaxUses
	}

	expiresAt := current.ExpiresAt
	switch {
	case input.ClearExpiresAt && input.ExpiresAt != nil:
		fieldErrors.add("expiresAt", "expiresAt cannot be set and cleared at once")
	case input.ClearExpiresAt:
		expiresAt = nil
	case input.ExpiresAt != nil:
		if current.IsDefault() {
			fieldErrors.add("expiresAt", "the default token never expires")
		} else if !input.ExpiresAt.After(now) {
			fieldErrors.add("expiresAt", "expiresAt must be in the future")
		}
		expiresAt = utcPtr(input.ExpiresAt)
	}

	if maxUses != nil && *maxUses < current.UsedCount && len(fieldErrors["maxUses"]) == 0 {
		fieldErrors.add("maxUses", fmt.Sprintf("maxUses cannot be lower than the %d uses already counted", current.UsedCount))
	}
	if len(fieldErrors) > 0 {
		return domain.Token{}, &ValidationError{Fields: fieldErrors}
	}

	updated, err := s.repo.SetLimits(ctx, id, maxUses, expiresAt, now)
	if err != nil {
		if errors.Is(err, persistence.ErrInviteTokenLimitBelowUsage) {
			return domain.Token{}, newValidationError(map[string]string{"maxUses": "maxUses cannot be lower than the uses already counted"})
		}
		return domain.Token{}, mapPersistenceError(err)
	}
	return updated, nil
}

func (s *service) Check(ctx context.Context, token, email string) (CheckResult, error) {
	ctx, span := telemetry.Tracer("invites").Start(ctx, "invites.Check")
	defer span.End()

	found, err := s.GetByToken(ctx, token)
	if err != nil {
		return CheckResult{}, err
	}

	reason := found.DenialReason(s.clock.Now(), email)
	span.SetAttributes(attribute.String("invite.denial", string(reason)))
	return CheckResult{Token: found, Valid: reason == domain.DenialNone, Reason: reason}, nil
}

// Consume validates the token for email and counts one use. The count is taken by the
// repository in a single conditional step, so concurrent callers racing for the last use get
// exactly one winner; the others receive a *DeniedError.
func (s *service) Consume(ctx context.Context, token, email string) (domain.Token, error) {
	ctx, span := telemetry.Tracer("invites").Start(ctx, "invites.Consume")
	defer span.End()

	found, err := s.GetByToken(ctx, token)
	if err != nil {
		return domain.Token{}, err
	}
	span.SetAttributes(attribute.String("invite.token_id", found.ID.String()))

	now := s.clock.Now()
	if reason := found.DenialReason(now, email); reason != domain.DenialNone {
		return domain.Token{}, s.deny(ctx, found, reason)
	}

	consumed, err := s.repo.IncrementUsage(ctx, found.ID, now)
	if err == nil {
		metrics.ObserveConsumption("consumed")
		return consumed, nil
	}
	if !errors.Is(err, persistence.ErrInviteTokenUnavailable) {
		return domain.Token{}, mapPersistenceError(err)
	}

	// Someone else took the last use, or the token expired in between.
	reason := domain.DenialExhausted
	if latest, getErr := s.repo.Get(ctx, found.ID); getErr == nil {
		if r := latest.DenialReason(now, email); r != domain.DenialNone {
			reason = r
		}
	}
	return domain.Token{}, s.deny(ctx, found, reason)
}

func (s *service) deny(ctx context.Context, token domain.Token, reason domain.Denial) error {
	metrics.ObserveConsumption(string(reason))
	s.logger.Info("invite token denied",
		zap.String("token_id", token.ID.String()),
		zap.String("property_id", token.PropertyID.String()),
		zap.String("reason", string(reason)),
	)
	return &DeniedError{Reason: reason}
}

// insert generates the token string and id, regenerating on collision.
func (s *service) insert(ctx context.Context, token domain.Token) (domain.Token, error) {
	for attempt := 0; attempt < generateAttempts; attempt++ {
		value, err := s.generate()
		if err != nil {
			return domain.Token{}, err
		}
		token.ID = uuid.New()
		token.Token = value
		token.UpdatedAt = token.CreatedAt

		created, err := s.repo.Create(ctx, token)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, persistence.ErrInviteTokenConflict) {
			return domain.Token{}, mapPersistenceError(err)
		}
		s.logger.Warn("invite token collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return domain.Token{}, fmt.Errorf("generate unique invite token after %d attempts: %w", generateAttempts, ErrConflict)
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrInviteTokenNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDefaultInviteTokenExists):
		return ErrConflict
	case errors.Is(err, persistence.ErrInviteTokenConflict):
		return ErrConflict
	default:
		return err
	}
}

func newValidationError(fields map[string]string) error {
	fe := FieldErrors{}
	for key, message := range fields {
		fe.add(key, message)
	}
	return &ValidationError{Fields: fe}
}

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
