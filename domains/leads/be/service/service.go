package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	invitesdomain "github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/repo"
	"github.com/zenGate-Global/rentflow/platform/go/clock"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
	"github.com/zenGate-Global/rentflow/platform/go/validation"
)

// InviteTTL is how long a personal invite link stays valid.
const InviteTTL = 14 * 24 * time.Hour

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
	ErrNotFound = errors.New("lead not found")
	ErrConflict = errors.New("lead conflict")
)

// TokenIssuer creates the personal invite token that goes with an invited lead.
type TokenIssuer interface {
	Create(ctx context.Context, input invitesservice.CreateInput) (invitesdomain.Token, error)
}

// InviteInput invites a prospect by email.
type InviteInput struct {
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	Email      string    `json:"email" validate:"required,email"`
	FirstName  string    `json:"firstName" validate:"max=120"`
	LastName   string    `json:"lastName" validate:"max=120"`
	Phone      string    `json:"phone" validate:"max=40"`
	Notes      string    `json:"notes" validate:"max=4000"`
}

// CreateInput records a lead that did not come through an invite.
type CreateInput struct {
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	Email      string    `json:"email" validate:"required,email"`
	FirstName  string    `json:"firstName" validate:"max=120"`
	LastName   string    `json:"lastName" validate:"max=120"`
	Phone      string    `json:"phone" validate:"max=40"`
	Source     string    `json:"source" validate:"required,oneof=manual inquiry"`
	Notes      string    `json:"notes" validate:"max=4000"`
}

// ApplicantInput identifies a prospect starting an application.
type ApplicantInput struct {
	PropertyID    uuid.UUID
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	UserID        *uuid.UUID
	Token         string
	InviteTokenID *uuid.UUID
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	PropertyID uuid.UUID
	Status     *string
	Page       int
	PageSize   int
}

// ListResult wraps a page of leads with pagination metadata.
type ListResult struct {
	Leads      []domain.Lead
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Service defines the business operations for the lead funnel.
type Service interface {
	Invite(ctx context.Context, input InviteInput) (domain.Lead, error)
	Create(ctx context.Context, input CreateInput) (domain.Lead, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	MarkViewedByToken(ctx context.Context, token string) (domain.Lead, error)
	Archive(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (domain.Lead, error)
	EnsureForApplicant(ctx context.Context, input ApplicantInput) (domain.Lead, error)
	LinkUser(ctx context.Context, id, userID uuid.UUID) (domain.Lead, error)
}

type service struct {
	repo   repo.Repository
	tokens TokenIssuer
	tx     persistence.Transactor
	clock  clock.Clock
	logger *zap.Logger
}

// New constructs a leads Service. tx groups the lead write with the token it issues.
func New(r repo.Repository, tokens TokenIssuer, tx persistence.Transactor, clk clock.Clock, logger *zap.Logger) Service {
	if r == nil {
		panic("leads repository is required")
	}
	if tokens == nil {
		panic("token issuer is required")
	}
	if tx == nil {
		panic("transactor is required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: r, tokens: tokens, tx: tx, clock: clk, logger: logger}
}

func (s *service) Invite(ctx context.Context, input InviteInput) (domain.Lead, error) {
	if fields := validation.Struct(input); fields != nil {
		return domain.Lead{}, &ValidationError{Fields: fields}
	}

	var created domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()
		email := invitesdomain.NormalizeEmail(input.Email)

		if _, err := s.repo.FindActiveByEmail(ctx, input.PropertyID, email); err == nil {
			return ErrConflict
		} else if !errors.Is(err, persistence.ErrLeadNotFound) {
			return mapPersistenceError(err)
		}

		expires := now.Add(InviteTTL)
		maxUses := 1
		token, err := s.tokens.Create(ctx, invitesservice.CreateInput{
			PropertyID: input.PropertyID,
			Type:       string(invitesdomain.TypeInvite),
			Email:      email,
			MaxUses:    &maxUses,
			ExpiresAt:  &expires,
		})
		if err != nil {
			return err
		}

		created, err = s.repo.Create(ctx, domain.Lead{
			ID:            uuid.New(),
			PropertyID:    input.PropertyID,
			Email:         email,
			FirstName:     strings.TrimSpace(input.FirstName),
			LastName:      strings.TrimSpace(input.LastName),
			Phone:         strings.TrimSpace(input.Phone),
			Token:         token.Token,
			Source:        domain.SourceInvite,
			Status:        domain.StatusInvited,
			InviteTokenID: &token.ID,
			InvitedAt:     &now,
			Notes:         strings.TrimSpace(input.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		return mapPersistenceError(err)
	})
	if err != nil {
		return domain.Lead{}, err
	}

	s.logger.Info("lead invited",
		zap.String("lead_id", created.ID.String()),
		zap.String("property_id", created.PropertyID.String()),
	)
	return created, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (domain.Lead, error) {
	if fields := validation.Struct(input); fields != nil {
		return domain.Lead{}, &ValidationError{Fields: fields}
	}

	now := s.clock.Now()
	created, err := s.repo.Create(ctx, domain.Lead{
		ID:         uuid.New(),
		PropertyID: input.PropertyID,
		Email:      invitesdomain.NormalizeEmail(input.Email),
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Phone:      strings.TrimSpace(input.Phone),
		Source:     domain.Source(input.Source),
		Status:     domain.StatusInvited,
		Notes:      strings.TrimSpace(input.Notes),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Lead{}, mapPersistenceError(err)
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if id == uuid.Nil {
		return domain.Lead{}, ErrNotFound
	}
	lead, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Lead{}, mapPersistenceError(err)
	}
	return lead, nil
}

func (s *service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	params := repo.ListParams{PropertyID: opts.PropertyID, Page: page, PageSize: pageSize}
	if opts.Status != nil && strings.TrimSpace(*opts.Status) != "" {
		status, err := domain.ParseStatus(strings.TrimSpace(*opts.Status))
		if err != nil {
			return ListResult{}, newValidationError(map[string]string{"status": err.Error()})
		}
		params.Status = &status
	}

	result, err := s.repo.List(ctx, params)
	if err != nil {
		return ListResult{}, mapPersistenceError(err)
	}

	totalPages := 0
	if result.TotalItems > 0 {
		totalPages = (result.TotalItems + pageSize - 1) / pageSize
	}

	return ListResult{
		Leads:      result.Leads,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: result.TotalItems,
		TotalPages: totalPages,
	}, nil
}

// MarkViewedByToken records that the prospect opened their link. Leads already past invited
// are returned unchanged.
func (s *service) MarkViewedByToken(ctx context.Context, token string) (domain.Lead, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Lead{}, ErrNotFound
	}

	return s.mutate(ctx, func(ctx context.Context) (domain.Lead, error) {
		return s.repo.FindByToken(ctx, token)
	}, func(lead *domain.Lead, now time.Time) bool {
		return lead.MarkAsViewed(now)
	}, domain.StatusViewed)
}

func (s *service) Archive(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if id == uuid.Nil {
		return domain.Lead{}, ErrNotFound
	}
	return s.mutate(ctx, func(ctx context.Context) (domain.Lead, error) {
		return s.repo.GetForUpdate(ctx, id)
	}, func(lead *domain.Lead, now time.Time) bool {
		return lead.Archive(now)
	}, domain.StatusArchived)
}

func (s *service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (domain.Lead, error) {
	if id == uuid.Nil {
		return domain.Lead{}, ErrNotFound
	}
	notes = strings.TrimSpace(notes)
	if len(notes) > 4000 {
		return domain.Lead{}, newValidationError(map[string]string{"notes": "notes must be at most 4000"})
	}

	var updated domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		lead, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return mapPersistenceError(err)
		}
		lead.Notes = notes
		lead.UpdatedAt = s.clock.Now()
		updated, err = s.repo.Update(ctx, lead)
		return mapPersistenceError(err)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return updated, nil
}

// EnsureForApplicant finds the prospect's live lead on the property or creates one. Callers
// run it inside the transaction that creates the application.
func (s *service) EnsureForApplicant(ctx context.Context, input ApplicantInput) (domain.Lead, error) {
	email := invitesdomain.NormalizeEmail(input.Email)
	if input.PropertyID == uuid.Nil || email == "" {
		return domain.Lead{}, newValidationError(map[string]string{"email": "email is required"})
	}

	existing, err := s.repo.FindActiveByEmail(ctx, input.PropertyID, email)
	switch {
	case err == nil:
		return s.linkApplicant(ctx, existing, input.UserID)
	case !errors.Is(err, persistence.ErrLeadNotFound):
		return domain.Lead{}, mapPersistenceError(err)
	}

	now := s.clock.Now()
	source := domain.SourceApplication
	if strings.TrimSpace(input.Token) != "" {
		source = domain.SourceTokenSignup
	}

	created, err := s.repo.Create(ctx, domain.Lead{
		ID:            uuid.New(),
		PropertyID:    input.PropertyID,
		Email:         email,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Phone:         strings.TrimSpace(input.Phone),
		Token:         strings.TrimSpace(input.Token),
		Source:        source,
		Status:        domain.StatusViewed,
		UserID:        input.UserID,
		InviteTokenID: input.InviteTokenID,
		ViewedAt:      &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.Lead{}, mapPersistenceError(err)
	}

	s.logger.Info("lead created for applicant",
		zap.String("lead_id", created.ID.String()),
		zap.String("source", string(source)),
	)
	return created, nil
}

func (s *service) LinkUser(ctx context.Context, id, userID uuid.UUID) (domain.Lead, error) {
	if id == uuid.Nil {
		return domain.Lead{}, ErrNotFound
	}
	if userID == uuid.Nil {
		return domain.Lead{}, newValidationError(map[string]string{"userId": "userId is required"})
	}

	var linked domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		lead, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return mapPersistenceError(err)
		}
		linked, err = s.linkApplicant(ctx, lead, &userID)
		return err
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return linked, nil
}

func (s *service) linkApplicant(ctx context.Context, lead domain.Lead, userID *uuid.UUID) (domain.Lead, error) {
	if userID == nil || (lead.UserID != nil && *lead.UserID == *userID) {
		return lead, nil
	}
	if !lead.LinkUser(s.clock.Now(), *userID) {
		return domain.Lead{}, ErrConflict
	}
	updated, err := s.repo.Update(ctx, lead)
	if err != nil {
		return domain.Lead{}, mapPersistenceError(err)
	}
	return updated, nil
}

// mutate loads a lead inside a transaction, applies change and saves it when change reports
// a transition. A refused transition returns the lead as loaded.
func (s *service) mutate(
	ctx context.Context,
	load func(ctx context.Context) (domain.Lead, error),
	change func(lead *domain.Lead, now time.Time) bool,
	target domain.Status,
) (domain.Lead, error) {
	var result domain.Lead
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		lead, err := load(ctx)
		if err != nil {
			return mapPersistenceError(err)
		}

		applied := change(&lead, s.clock.Now())
		metrics.ObserveLeadTransition(string(target), applied)
		if !applied {
			result = lead
			return nil
		}

		result, err = s.repo.Update(ctx, lead)
		return mapPersistenceError(err)
	})
	if err != nil {
		return domain.Lead{}, err
	}
	return result, nil
}

func mapPersistenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrLeadNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrLeadConflict):
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
