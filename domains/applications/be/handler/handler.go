package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/domains/applications/be/service"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
	"github.com/zenGate-Global/rentflow/platform/go/requesttrace"
)

type operation string

const (
	startOperation         operation = "applicationsStart"
	getOperation           operation = "applicationsGet"
	listOperation          operation = "applicationsList"
	stepOperation          operation = "applicationsSetStep"
	submitOperation        operation = "applicationsSubmit"
	withdrawOperation      operation = "applicationsWithdraw"
	reviewOperation        operation = "applicationsReview"
	visitOperation         operation = "applicationsScheduleVisit"
	completeVisitOperation operation = "applicationsCompleteVisit"
	approveOperation       operation = "applicationsApprove"
	rejectOperation        operation = "applicationsReject"
	leaseOperation         operation = "applicationsMarkAsLeased"
	archiveOperation       operation = "applicationsArchive"
)

// Handler exposes the application lifecycle over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("applications service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// MountApplicant registers the routes an authenticated applicant uses.
func (h *Handler) MountApplicant(r chi.Router) {
	r.Post("/applications", h.Start)
	r.Get("/applications/{applicationId}", h.Get)
	r.Patch("/applications/{applicationId}/step", h.SetStep)
	r.Post("/applications/{applicationId}/submit", h.Submit)
	r.Post("/applications/{applicationId}/withdraw", h.Withdraw)
}

// Mount registers the manager routes.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/properties/{propertyId}/applications", h.List)
	r.Post("/applications/{applicationId}/review", h.Review)
	r.Post("/applications/{applicationId}/visit", h.ScheduleVisit)
	r.Post("/applications/{applicationId}/visit/complete", h.CompleteVisit)
	r.Post("/applications/{applicationId}/approve", h.Approve)
	r.Post("/applications/{applicationId}/reject", h.Reject)
	r.Post("/applications/{applicationId}/lease", h.MarkAsLeased)
	r.Post("/applications/{applicationId}/archive", h.Archive)
}

// Application is the API representation of an application.
type Application struct {
	ID               string          `json:"id"`
	PropertyID       string          `json:"propertyId"`
	TenantProfileID  string          `json:"tenantProfileId"`
	Status           string          `json:"status"`
	CurrentStep      int             `json:"currentStep"`
	SubmittedAt      *time.Time      `json:"submittedAt,omitempty"`
	ReviewedAt       *time.Time      `json:"reviewedAt,omitempty"`
	VisitScheduledAt *time.Time      `json:"visitScheduledAt,omitempty"`
	VisitCompletedAt *time.Time      `json:"visitCompletedAt,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	LeaseSignedAt    *time.Time      `json:"leaseSignedAt,omitempty"`
	WithdrawnAt      *time.Time      `json:"withdrawnAt,omitempty"`
	ArchivedAt       *time.Time      `json:"archivedAt,omitempty"`
	ReviewedByUserID *string         `json:"reviewedByUserId,omitempty"`
	ApprovedByUserID *string         `json:"approvedByUserId,omitempty"`
	ApprovalNotes    string          `json:"approvalNotes,omitempty"`
	VisitNotes       string          `json:"visitNotes,omitempty"`
	RejectionReason  string          `json:"rejectionReason,omitempty"`
	RejectionDetails json.RawMessage `json:"rejectionDetails,omitempty"`
	LeaseStartDate   *types.Date     `json:"leaseStartDate,omitempty"`
	LeaseEndDate     *types.Date     `json:"leaseEndDate,omitempty"`
	AgreedRentAmount *string         `json:"agreedRentAmount,omitempty"`
	DepositAmount    *string         `json:"depositAmount,omitempty"`
	Snapshot         *domain.Profile `json:"snapshot,omitempty"`
	SnapshotChecksum string          `json:"snapshotChecksum,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

type ApplicationList struct {
	Items      []Application `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	TotalItems int           `json:"totalItems"`
	TotalPages int           `json:"totalPages"`
}

// StartResponse is the new draft plus the funnel record it was attached to.
type StartResponse struct {
	Application   Application `json:"application"`
	LeadID        string      `json:"leadId"`
	InviteTokenID *string     `json:"inviteTokenId,omitempty"`
}

type startRequest struct {
	PropertyID      *uuid.UUID `json:"propertyId,omitempty"`
	TenantProfileID uuid.UUID  `json:"tenantProfileId"`
	Token           string     `json:"token,omitempty"`
	Email           string     `json:"email,omitempty"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	Phone           string     `json:"phone,omitempty"`
}

type stepRequest struct {
	Step int `json:"step"`
}

type notesRequest struct {
	Notes string `json:"notes,omitempty"`
}

type visitRequest struct {
	At    time.Time `json:"at"`
	Notes string    `json:"notes,omitempty"`
}

type rejectRequest struct {
	Reason  string          `json:"reason"`
	Details json.RawMessage `json:"details,omitempty"`
}

type leaseRequest struct {
	StartDate types.Date      `json:"startDate"`
	EndDate   types.Date      `json:"endDate"`
	Rent      decimal.Decimal `json:"rent"`
	Deposit   decimal.Decimal `json:"deposit"`
}

// Start opens a draft for the authenticated applicant. Invite tokens are checked against the
// email on the caller's credentials; a body email may only repeat it.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	email, ok := applicantEmail(w, audit, body.Email)
	if !ok {
		return
	}
	input := service.StartInput{
		TenantProfileID: body.TenantProfileID,
		Token:           body.Token,
		Email:           email,
		FirstName:       body.FirstName,
		LastName:        body.LastName,
		Phone:           body.Phone,
		UserID:          audit.ActorID,
	}
	if body.PropertyID != nil {
		input.PropertyID = *body.PropertyID
	}
	result, err := h.svc.Start(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err, startOperation)
		return
	}

	resp := StartResponse{
		Application: toAPIApplication(result.Application),
		LeadID:      result.Lead.ID.String(),
	}
	if result.Token != nil {
		resp.InviteTokenID = uuidString(&result.Token.ID)
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/applications/%s", result.Application.ID))
	httpapi.WriteJSON(w, http.StatusCreated, resp)
}

func applicantEmail(w http.ResponseWriter, audit requesttrace.AuditInfo, claimed string) (string, bool) {
	email := strings.TrimSpace(audit.Email)
	if email == "" {
		httpapi.WriteProblem(w, httpapi.NewProblem("Forbidden", "credentials carry no email address", httpapi.ProblemTypeForbidden, http.StatusForbidden, nil))
		return "", false
	}
	if claimed = strings.TrimSpace(claimed); claimed != "" && !strings.EqualFold(claimed, email) {
		httpapi.WriteProblem(w, httpapi.NewProblem("Invalid request", "email does not match the signed-in account", httpapi.ProblemTypeValidation, http.StatusBadRequest,
			map[string][]string{"email": {"email must match the signed-in account"}}))
		return "", false
	}
	return email, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIApplication(app))
}

// List accepts repeated status parameters; deleted applications appear only when asked for.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	propertyID, err := httpapi.PathUUID(r, "propertyId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	page, err := httpapi.QueryInt(r, "page")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	pageSize, err := httpapi.QueryInt(r, "pageSize")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	result, err := h.svc.List(r.Context(), service.ListOptions{
		PropertyID: &propertyID,
		Statuses:   r.URL.Query()["status"],
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]Application, 0, len(result.Applications))
	for _, app := range result.Applications {
		items = append(items, toAPIApplication(app))
	}
	httpapi.WriteJSON(w, http.StatusOK, ApplicationList{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) SetStep(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var body stepRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.SetStep(r.Context(), id, body.Step)
	h.writeTransition(w, r, result, err, stepOperation)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Submit(r.Context(), id)
	h.writeTransition(w, r, result, err, submitOperation)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Withdraw(r.Context(), id)
	h.writeTransition(w, r, result, err, withdrawOperation)
}

// Review records the calling manager as reviewer.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	result, err := h.svc.MoveToUnderReview(r.Context(), id, actor)
	h.writeTransition(w, r, result, err, reviewOperation)
}

func (h *Handler) ScheduleVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var body visitRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.ScheduleVisit(r.Context(), id, service.ScheduleVisitInput{At: body.At, Notes: body.Notes})
	h.writeTransition(w, r, result, err, visitOperation)
}

func (h *Handler) CompleteVisit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var body notesRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.CompleteVisit(r.Context(), id, body.Notes)
	h.writeTransition(w, r, result, err, completeVisitOperation)
}

// Approve records the calling manager as approver.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body notesRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.Approve(r.Context(), id, actor, body.Notes)
	h.writeTransition(w, r, result, err, approveOperation)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.Reject(r.Context(), id, service.RejectInput{Reason: body.Reason, Details: body.Details})
	h.writeTransition(w, r, result, err, rejectOperation)
}

func (h *Handler) MarkAsLeased(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var body leaseRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	result, err := h.svc.MarkAsLeased(r.Context(), id, service.LeaseInput{
		StartDate: body.StartDate.Time,
		EndDate:   body.EndDate.Time,
		Rent:      body.Rent,
		Deposit:   body.Deposit,
	})
	h.writeTransition(w, r, result, err, leaseOperation)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Archive(r.Context(), id)
	h.writeTransition(w, r, result, err, archiveOperation)
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := httpapi.PathUUID(r, "applicationId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := requesttrace.FromContextOrAnonymous(r.Context()).Actor()
	if !ok {
		httpapi.WriteProblem(w, httpapi.NewProblem("Unauthorized", "an authenticated manager is required", httpapi.ProblemTypeAuth, http.StatusUnauthorized, nil))
	}
	return id, ok
}

// decodeOptionalJSON accepts an empty body for endpoints whose payload is entirely optional.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httpapi.DecodeJSON(r, dst)
}

// writeTransition answers 200 with the application, or 409 when the current status does not
// allow the operation.
func (h *Handler) writeTransition(w http.ResponseWriter, r *http.Request, result service.TransitionResult, err error, op operation) {
	if err != nil {
		h.writeError(w, r, err, op)
		return
	}
	if !result.Applied {
		h.loggerFrom(r.Context()).Warn("application transition refused",
			zap.String("operation", string(op)),
			zap.String("application_id", result.Application.ID.String()),
			zap.String("status", string(result.Application.Status)),
		)
		detail := fmt.Sprintf("operation not allowed while the application is %s", result.Application.Status)
		httpapi.WriteProblem(w, httpapi.NewProblem("Conflict", detail, httpapi.ProblemTypeConflict, http.StatusConflict, nil))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIApplication(result.Application))
}

func toAPIApplication(app *domain.Application) Application {
	out := Application{
		ID:               app.ID.String(),
		PropertyID:       app.PropertyID.String(),
		TenantProfileID:  app.TenantProfileID.String(),
		Status:           string(app.Status),
		CurrentStep:      app.CurrentStep,
		SubmittedAt:      app.SubmittedAt,
		ReviewedAt:       app.ReviewedAt,
		VisitScheduledAt: app.VisitScheduledAt,
		VisitCompletedAt: app.VisitCompletedAt,
		ApprovedAt:       app.ApprovedAt,
		LeaseSignedAt:    app.LeaseSignedAt,
		WithdrawnAt:      app.WithdrawnAt,
		ArchivedAt:       app.ArchivedAt,
		ReviewedByUserID: uuidString(app.ReviewedByUserID),
		ApprovedByUserID: uuidString(app.ApprovedByUserID),
		ApprovalNotes:    app.ApprovalNotes,
		VisitNotes:       app.VisitNotes,
		RejectionReason:  app.RejectionReason,
		RejectionDetails: app.RejectionDetails,
		LeaseStartDate:   date(app.LeaseStartDate),
		LeaseEndDate:     date(app.LeaseEndDate),
		AgreedRentAmount: decimalString(app.AgreedRentAmount),
		DepositAmount:    decimalString(app.DepositAmount),
		Snapshot:         app.Snapshot,
		SnapshotChecksum: app.SnapshotChecksum,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}
	return out
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func date(t *time.Time) *types.Date {
	if t == nil {
		return nil
	}
	return &types.Date{Time: *t}
}

// decimalString keeps two decimals so money amounts read the same in every response.
func decimalString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, title, detail, problemType, fields := classifyError(err)

	logger := h.loggerFrom(r.Context())
	fieldsForLog := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("applications operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("applications resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("applications request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	problem := httpapi.NewProblem(title, detail, problemType, status, fields)
	var denied *invitesservice.DeniedError
	if errors.As(err, &denied) {
		reason := string(denied.Reason)
		problem.Reason = &reason
	}
	httpapi.WriteProblem(w, problem)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	var denied *invitesservice.DeniedError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			httpapi.ProblemTypeValidation,
			validationErr.Fields
	case errors.As(err, &denied):
		return http.StatusForbidden,
			"Invite token denied",
			fmt.Sprintf("invite token cannot be used: %s", denied.Reason),
			httpapi.ProblemTypeForbidden,
			nil
	case errors.Is(err, service.ErrTokenNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"invite token not found",
			httpapi.ProblemTypeNotFound,
			nil
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"application not found",
			httpapi.ProblemTypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			err.Error(),
			httpapi.ProblemTypeConflict,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			httpapi.ProblemTypeInternal,
			nil
	}
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
