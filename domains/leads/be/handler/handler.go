package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
)

type operation string

const (
	createOperation      operation = "leadsCreate"
	listOperation        operation = "leadsList"
	getOperation         operation = "leadsGet"
	archiveOperation     operation = "leadsArchive"
	updateNotesOperation operation = "leadsUpdateNotes"
	viewOperation        operation = "leadsView"
)

// Handler exposes the lead funnel over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("leads service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Mount registers the manager routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/properties/{propertyId}/leads", h.Create)
	r.Get("/properties/{propertyId}/leads", h.List)
	r.Get("/leads/{leadId}", h.Get)
	r.Post("/leads/{leadId}/archive", h.Archive)
	r.Patch("/leads/{leadId}/notes", h.UpdateNotes)
}

// MountPublic registers the link-opened beacon.
func (h *Handler) MountPublic(r chi.Router) {
	r.Post("/public/leads/view/{token}", h.View)
}

// Lead is the API representation of a funnel record.
type Lead struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"propertyId"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName,omitempty"`
	LastName      string     `json:"lastName,omitempty"`
	FullName      string     `json:"fullName,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Source        string     `json:"source"`
	Status        string     `json:"status"`
	UserID        *string    `json:"userId,omitempty"`
	ApplicationID *string    `json:"applicationId,omitempty"`
	InviteTokenID *string    `json:"inviteTokenId,omitempty"`
	InvitedAt     *time.Time `json:"invitedAt,omitempty"`
	ViewedAt      *time.Time `json:"viewedAt,omitempty"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type LeadList struct {
	Items      []Lead `json:"items"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalItems int    `json:"totalItems"`
	TotalPages int    `json:"totalPages"`
}

// createRequest covers both invitations (source "invite" or empty) and manual entries.
type createRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Source    string `json:"source,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	propertyID, err := httpapi.PathUUID(r, "propertyId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	var body createRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	var lead domain.Lead
	if body.Source == "" || body.Source == string(domain.SourceInvite) {
		lead, err = h.svc.Invite(r.Context(), service.InviteInput{
			PropertyID: propertyID,
			Email:      body.Email,
			FirstName:  body.FirstName,
			LastName:   body.LastName,
			Phone:      body.Phone,
			Notes:      body.Notes,
		})
	} else {
		lead, err = h.svc.Create(r.Context(), service.CreateInput{
			PropertyID: propertyID,
			Email:      body.Email,
			FirstName:  body.FirstName,
			LastName:   body.LastName,
			Phone:      body.Phone,
			Source:     body.Source,
			Notes:      body.Notes,
		})
	}
	if err != nil {
		h.writeError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/leads/%s", lead.ID))
	httpapi.WriteJSON(w, http.StatusCreated, toAPILead(lead))
}

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
		PropertyID: propertyID,
		Status:     httpapi.QueryString(r, "status"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]Lead, 0, len(result.Leads))
	for _, lead := range result.Leads {
		items = append(items, toAPILead(lead))
	}
	httpapi.WriteJSON(w, http.StatusOK, LeadList{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "leadId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	lead, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPILead(lead))
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "leadId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	lead, err := h.svc.Archive(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, archiveOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPILead(lead))
}

func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathUUID(r, "leadId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	var body notesRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}
	lead, err := h.svc.UpdateNotes(r.Context(), id, body.Notes)
	if err != nil {
		h.writeError(w, r, err, updateNotesOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPILead(lead))
}

// View answers 204 whether or not the lead moved, so the beacon reveals nothing about it.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.MarkViewedByToken(r.Context(), chi.URLParam(r, "token")); err != nil {
		h.writeError(w, r, err, viewOperation)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toAPILead(lead domain.Lead) Lead {
	return Lead{
		ID:            lead.ID.String(),
		PropertyID:    lead.PropertyID.String(),
		Email:         lead.Email,
		FirstName:     lead.FirstName,
		LastName:      lead.LastName,
		FullName:      lead.FullName(),
		Phone:         lead.Phone,
		Source:        string(lead.Source),
		Status:        string(lead.Status),
		UserID:        uuidString(lead.UserID),
		ApplicationID: uuidString(lead.ApplicationID),
		InviteTokenID: uuidString(lead.InviteTokenID),
		InvitedAt:     lead.InvitedAt,
		ViewedAt:      lead.ViewedAt,
		ArchivedAt:    lead.ArchivedAt,
		Notes:         lead.Notes,
		CreatedAt:     lead.CreatedAt,
		UpdatedAt:     lead.UpdatedAt,
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
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
		logger.Error("leads operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("leads resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("leads request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	httpapi.WriteProblem(w, httpapi.NewProblem(title, detail, problemType, status, fields))
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest,
			"Validation failed",
			"one or more fields are invalid",
			httpapi.ProblemTypeValidation,
			validationErr.Fields
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"lead not found",
			httpapi.ProblemTypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			"a live lead already exists for this email",
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
