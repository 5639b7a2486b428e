package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/rentflow/database"
	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/domains/applications/be/repo"
	invitesdomain "github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	leadsdomain "github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	leadsservice "github.com/zenGate-Global/rentflow/domains/leads/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/clock"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
	"github.com/zenGate-Global/rentflow/platform/go/telemetry"
	"github.com/zenGate-Global/rentflow/platform/go/validation"
)

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
	ErrNotFound      = errors.New("application not found")
	ErrConflict      = errors.New("application conflict")
	ErrTokenNotFound = errors.New("invite token not found")
)

// TokenConsumer spends one use of an invite token for the applicant's email.
type TokenConsumer interface {
	Consume(ctx context.Context, token, email string) (invitesdomain.Token, error)
}

// LeadTracker finds or creates the lead an application start belongs to.
type LeadTracker interface {
	EnsureForApplicant(ctx context.Context, input leadsservice.ApplicantInput) (leadsdomain.Lead, error)
}

// Publisher delivers domain events to their subscribers.
type Publisher interface {
	Publish(ctx context.Context, evts ...events.Event) error
}

// PayloadValidator checks structured JSON payloads against a named schema.
type PayloadValidator interface {
	Validate(ctx context.Context, name string, payload []byte) error
}

// StartInput opens a draft. Token may be empty when the property is open for applications;
// PropertyID is then required.
type StartInput struct {
	PropertyID      uuid.UUID  `json:"propertyId"`
	TenantProfileID uuid.UUID  `json:"tenantProfileId" validate:"required"`
	Token           string     `json:"token" validate:"max=128"`
	Email           string     `json:"email" validate:"required,email"`
	FirstName       string     `json:"firstName" validate:"max=120"`
	LastName        string     `json:"lastName" validate:"max=120"`
	Phone           string     `json:"phone" validate:"max=40"`
	UserID          *uuid.UUID `json:"-"`
}

// ScheduleVisitInput books a viewing.
type ScheduleVisitInput struct {
	At    time.Time `json:"at" validate:"required"`
	Notes string    `json:"notes" validate:"max=4000"`
}

// RejectInput carries a reason code and optional structured details.
type RejectInput struct {
	Reason  string          `json:"reason" validate:"required,max=120"`
	Details json.RawMessage `json:"details"`
}

// LeaseInput carries the terms agreed when an approved application is signed.
type LeaseInput struct {
	StartDate time.Time       `json:"startDate" validate:"required"`
	EndDate   time.Time       `json:"endDate" validate:"required,gtfield=StartDate"`
	Rent      decimal.Decimal `json:"rent"`
	Deposit   decimal.Decimal `json:"deposit"`
}

// TransitionResult reports the application after an operation. Applied is false when the
// current status does not allow the operation; the application is then returned unchanged.
type TransitionResult struct {
	Application *domain.Application
	Applied     bool
}

// StartResult is a new draft together with the lead and token that admitted it.
type StartResult struct {
	Application *domain.Application
	Lead        leadsdomain.Lead
	Token       *invitesdomain.Token
}

// ListOptions controls filtering and pagination.
type ListOptions struct {
	PropertyID      *uuid.UUID
	TenantProfileID *uuid.UUID
	Statuses        []string
	IncludeDeleted  bool
	Page            int
	PageSize        int
}

// ListResult wraps a page of applications with pagination metadata.
type ListResult struct {
	Applications []*domain.Application
	Page         int
	PageSize     int
	TotalItems   int
	TotalPages   int
}

// Service defines the business operations for tenancy applications.
type Service interface {
	Start(ctx context.Context, input StartInput) (StartResult, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	SetStep(ctx context.Context, id uuid.UUID, step int) (TransitionResult, error)

	Submit(ctx context.Context, id uuid.UUID) (TransitionResult, error)
	MoveToUnderReview(ctx context.Context, id, reviewer uuid.UUID) (TransitionResult, error)
	ScheduleVisit(ctx context.Context, id uuid.UUID, input ScheduleVisitInput) (TransitionResult, error)
	CompleteVisit(ctx context.Context, id uuid.UUID, notes string) (TransitionResult, error)
	Approve(ctx context.Context, id, approver uuid.UUID, notes string) (TransitionResult, error)
	Reject(ctx context.Context, id uuid.UUID, input RejectInput) (TransitionResult, error)
	Withdraw(ctx context.Context, id uuid.UUID) (TransitionResult, error)
	MarkAsLeased(ctx context.Context, id uuid.UUID, input LeaseInput) (TransitionResult, error)
	Archive(ctx context.Context, id uuid.UUID) (TransitionResult, error)
}

// Dependencies groups the collaborators of the applications service.
type Dependencies struct {
	Repo     repo.Repository
	Profiles repo.ProfileReader
	Tokens   TokenConsumer
	Leads    LeadTracker
	Events   Publisher
	Tx       persistence.Transactor
	Schemas  PayloadValidator
	Clock    clock.Clock
	Logger   *zap.Logger
}

type service struct {
	repo     repo.Repository
	profiles repo.ProfileReader
	tokens   TokenConsumer
	leads    LeadTracker
	events   Publisher
	tx       persistence.Transactor
	schemas  PayloadValidator
	clock    clock.Clock
	logger   *zap.Logger
}

// New constructs an applications Service. Clock and Logger are optional.
func New(deps Dependencies) Service {
	switch {
	case deps.Repo == nil:
		panic("applications repository is required")
	case deps.Profiles == nil:
		panic("profile reader is required")
	case deps.Tokens == nil:
		panic("token consumer is required")
	case deps.Leads == nil:
		panic("lead tracker is required")
	case deps.Events == nil:
		panic("event publisher is required")
	case deps.Tx == nil:
		panic("transactor is required")
	case deps.Schemas == nil:
		panic("payload validator is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &service{
		repo:     deps.Repo,
		profiles: deps.Profiles,
		tokens:   deps.Tokens,
		leads:    deps.Leads,
		events:   deps.Events,
		tx:       deps.Tx,
		schemas:  deps.Schemas,
		clock:    deps.Clock,
		logger:   deps.Logger,
	}
}

// Start consumes the invite token, finds or creates the applicant's lead and opens a draft.
// Everything happens in one transaction: a denied token leaves no lead or application behind,
// and the DraftStarted subscribers run before the commit.
func (s *service) Start(ctx context.Context, input StartInput) (StartResult, error) {
	ctx, span := telemetry.Tracer("applications").Start(ctx, "applications.Start")
	defer span.End()

	fieldErrors := FieldErrors(validation.Struct(input))
	if fieldErrors == nil {
		fieldErrors = FieldErrors{}
	}
	token := strings.TrimSpace(input.Token)
	if token == "" && input.PropertyID == uuid.Nil {
		fieldErrors.add("propertyId", "propertyId is required when no token is given")
	}
	if len(fieldErrors) > 0 {
		return StartResult{}, &ValidationError{Fields: fieldErrors}
	}

	var result StartResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		propertyID := input.PropertyID
		var tokenID *uuid.UUID

		if token != "" {
			consumed, err := s.tokens.Consume(ctx, token, input.Email)
			if err != nil {
				if errors.Is(err, invitesservice.ErrNotFound) {
					return ErrTokenNotFound
				}
				return err
			}
			if propertyID != uuid.Nil && propertyID != consumed.PropertyID {
				return newValidationError(map[string]string{"propertyId": "token belongs to another property"})
			}
			propertyID = consumed.PropertyID
			tokenID = &consumed.ID
			result.Token = &consumed
		}
		span.SetAttributes(attribute.String("application.property_id", propertyID.String()))

		lead, err := s.leads.EnsureForApplicant(ctx, leadsservice.ApplicantInput{
			PropertyID:    propertyID,
			Email:         input.Email,
			FirstName:     input.FirstName,
			LastName:      input.LastName,
			Phone:         input.Phone,
			UserID:        input.UserID,
			Token:         token,
			InviteTokenID: tokenID,
		})
		if err != nil {
			return mapLeadError(err)
		}
		result.Lead = lead

		app := domain.NewDraft(s.clock.Now(), uuid.New(), propertyID, input.TenantProfileID, &lead.ID)
		pending := app.DrainEvents()

		created, err := s.repo.Create(ctx, app)
		if err != nil {
			return mapPersistenceError(err)
		}
		if err := s.publish(ctx, pending); err != nil {
			return err
		}
		result.Application = created
		return nil
	})
	if err != nil {
		return StartResult{}, err
	}

	s.logger.Info("application started",
		zap.String("application_id", result.Application.ID.String()),
		zap.String("property_id", result.Application.PropertyID.String()),
		zap.String("lead_id", result.Lead.ID.String()),
	)
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	if id == uuid.Nil {
		return nil, ErrNotFound
	}
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapPersistenceError(err)
	}
	return app, nil
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

	params := repo.ListParams{
		PropertyID:      opts.PropertyID,
		TenantProfileID: opts.TenantProfileID,
		IncludeDeleted:  opts.IncludeDeleted,
		Page:            page,
		PageSize:        pageSize,
	}
	for _, raw := range opts.Statuses {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return ListResult{}, newValidationError(map[string]string{"status": err.Error()})
		}
		params.Statuses = append(params.Statuses, status)
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
		Applications: result.Applications,
		Page:         page,
		PageSize:     pageSize,
		TotalItems:   result.TotalItems,
		TotalPages:   totalPages,
	}, nil
}

func (s *service) SetStep(ctx context.Context, id uuid.UUID, step int) (TransitionResult, error) {
	if step < 0 {
		return TransitionResult{}, newValidationError(map[string]string{"step": "step must be at least 0"})
	}
	return s.apply(ctx, id, "set_step", func(app *domain.Application, now time.Time) bool {
		return app.SetCurrentStep(now, step)
	})
}

// Submit copies the applicant's live profile into the snapshot. The profile is only read when
// the application can actually be submitted.
func (s *service) Submit(ctx context.Context, id uuid.UUID) (TransitionResult, error) {
	return s.transition(ctx, id, domain.OpSubmit, func(ctx context.Context, app *domain.Application, now time.Time) (bool, error) {
		profile, err := s.profiles.GetProfile(ctx, app.TenantProfileID)
		if err != nil {
			if errors.Is(err, persistence.ErrTenantProfileNotFound) {
				return false, newValidationError(map[string]string{"tenantProfileId": "tenant profile not found"})
			}
			return false, err
		}
		return app.Submit(now, profile), nil
	})
}

func (s *service) MoveToUnderReview(ctx context.Context, id, reviewer uuid.UUID) (TransitionResult, error) {
	if reviewer == uuid.Nil {
		return TransitionResult{}, newValidationError(map[string]string{"reviewer": "reviewer is required"})
	}
	return s.transition(ctx, id, domain.OpMoveToUnderReview, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.MoveToUnderReview(now, reviewer), nil
	})
}

func (s *service) ScheduleVisit(ctx context.Context, id uuid.UUID, input ScheduleVisitInput) (TransitionResult, error) {
	if fields := validation.Struct(input); fields != nil {
		return TransitionResult{}, &ValidationError{Fields: fields}
	}
	return s.transition(ctx, id, domain.OpScheduleVisit, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.ScheduleVisit(now, input.At, input.Notes), nil
	})
}

func (s *service) CompleteVisit(ctx context.Context, id uuid.UUID, notes string) (TransitionResult, error) {
	if len(notes) > 4000 {
		return TransitionResult{}, newValidationError(map[string]string{"notes": "notes must be at most 4000"})
	}
	return s.transition(ctx, id, domain.OpCompleteVisit, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.CompleteVisit(now, notes), nil
	})
}

func (s *service) Approve(ctx context.Context, id, approver uuid.UUID, notes string) (TransitionResult, error) {
	fields := FieldErrors{}
	if approver == uuid.Nil {
		fields.add("approver", "approver is required")
	}
	if len(notes) > 4000 {
		fields.add("notes", "notes must be at most 4000")
	}
	if len(fields) > 0 {
		return TransitionResult{}, &ValidationError{Fields: fields}
	}
	return s.transition(ctx, id, domain.OpApprove, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.Approve(now, approver, notes), nil
	})
}

// Reject validates the structured details against the rejection schema before touching the
// application.
func (s *service) Reject(ctx context.Context, id uuid.UUID, input RejectInput) (TransitionResult, error) {
	fields := FieldErrors(validation.Struct(input))
	if fields == nil {
		fields = FieldErrors{}
	}
	details := input.Details
	if len(details) > 0 && string(details) == "null" {
		details = nil
	}
	if len(details) > 0 {
		err := s.schemas.Validate(ctx, sqlassets.RejectionDetailsSchema, details)
		var violation *persistence.SchemaViolation
		switch {
		case errors.As(err, &violation):
			for path, msgs := range violation.Fields {
				key := "details"
				if path != "" {
					key += "." + strings.ReplaceAll(path, "/", ".")
				}
				for _, msg := range msgs {
					fields.add(key, msg)
				}
			}
		case err != nil:
			return TransitionResult{}, fmt.Errorf("validate rejection details: %w", err)
		}
	}
	if len(fields) > 0 {
		return TransitionResult{}, &ValidationError{Fields: fields}
	}

	return s.transition(ctx, id, domain.OpReject, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.Reject(now, input.Reason, details), nil
	})
}

func (s *service) Withdraw(ctx context.Context, id uuid.UUID) (TransitionResult, error) {
	return s.transition(ctx, id, domain.OpWithdraw, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.Withdraw(now), nil
	})
}

func (s *service) MarkAsLeased(ctx context.Context, id uuid.UUID, input LeaseInput) (TransitionResult, error) {
	fields := FieldErrors(validation.Struct(input))
	if fields == nil {
		fields = FieldErrors{}
	}
	if !input.Rent.IsPositive() {
		fields.add("rent", "rent must be greater than 0")
	}
	if input.Deposit.IsNegative() {
		fields.add("deposit", "deposit must not be negative")
	}
	if len(fields) > 0 {
		return TransitionResult{}, &ValidationError{Fields: fields}
	}

	return s.transition(ctx, id, domain.OpMarkAsLeased, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.MarkAsLeased(now, domain.LeaseTerms{
			StartDate: input.StartDate,
			EndDate:   input.EndDate,
			Rent:      input.Rent,
			Deposit:   input.Deposit,
		}), nil
	})
}

func (s *service) Archive(ctx context.Context, id uuid.UUID) (TransitionResult, error) {
	return s.transition(ctx, id, domain.OpArchive, func(_ context.Context, app *domain.Application, now time.Time) (bool, error) {
		return app.Archive(now), nil
	})
}

// transition runs op on a locked application. change is only called when the current status
// allows op; it may load what the operation needs first.
func (s *service) transition(
	ctx context.Context,
	id uuid.UUID,
	op domain.Operation,
	change func(ctx context.Context, app *domain.Application, now time.Time) (bool, error),
) (TransitionResult, error) {
	ctx, span := telemetry.Tracer("applications").Start(ctx, "applications."+string(op))
	defer span.End()
	span.SetAttributes(attribute.String("application.id", id.String()))

	if id == uuid.Nil {
		return TransitionResult{}, ErrNotFound
	}

	var result TransitionResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		app, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return mapPersistenceError(err)
		}

		applied := false
		if app.CanTransition(op) {
			applied, err = change(ctx, app, s.clock.Now())
			if err != nil {
				return err
			}
		}
		metrics.ObserveTransition(string(op), applied)
		span.SetAttributes(attribute.Bool("application.applied", applied))

		if !applied {
			s.logger.Info("application transition refused",
				zap.String("application_id", app.ID.String()),
				zap.String("operation", string(op)),
				zap.String("status", string(app.Status)),
			)
			result = TransitionResult{Application: app}
			return nil
		}

		saved, err := s.save(ctx, app)
		if err != nil {
			return err
		}
		result = TransitionResult{Application: saved, Applied: true}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

// apply is transition for edits that are not part of the status graph.
func (s *service) apply(ctx context.Context, id uuid.UUID, name string, change func(app *domain.Application, now time.Time) bool) (TransitionResult, error) {
	if id == uuid.Nil {
		return TransitionResult{}, ErrNotFound
	}

	var result TransitionResult
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		app, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return mapPersistenceError(err)
		}
		applied := change(app, s.clock.Now())
		metrics.ObserveTransition(name, applied)
		if !applied {
			result = TransitionResult{Application: app}
			return nil
		}
		saved, err := s.save(ctx, app)
		if err != nil {
			return err
		}
		result = TransitionResult{Application: saved, Applied: true}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return result, nil
}

// save persists app and then publishes the events it recorded, inside the caller's transaction.
func (s *service) save(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	pending := app.DrainEvents()
	saved, err := s.repo.Update(ctx, app)
	if err != nil {
		return nil, mapPersistenceError(err)
	}
	if err := s.publish(ctx, pending); err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *service) publish(ctx context.Context, pending []domain.Event) error {
	if len(pending) == 0 {
		return nil
	}
	out := make([]events.Event, 0, len(pending))
	for _, e := range pending {
		out = append(out, e)
	}
	if err := s.events.Publish(ctx, out...); err != nil {
		return fmt.Errorf("publish application events: %w", err)
	}
	return nil
}

func mapPersistenceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrApplicationNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrApplicationConflict):
		return ErrConflict
	default:
		return err
	}
}

func mapLeadError(err error) error {
	var verr *leadsservice.ValidationError
	switch {
	case errors.As(err, &verr):
		return &ValidationError{Fields: FieldErrors(verr.Fields)}
	case errors.Is(err, leadsservice.ErrConflict):
		return fmt.Errorf("%w: lead is linked to another user", ErrConflict)
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
