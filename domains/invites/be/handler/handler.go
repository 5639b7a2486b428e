package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	"github.com/zenGate-Global/rentflow/domains/invites/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	platformlogging "github.com/zenGate-Global/rentflow/platform/go/logging"
)

type operation string

const (
	createOperation        operation = "inviteTokensCreate"
	ensureDefaultOperation operation = "inviteTokensEnsureDefault"
	listOperation          operation = "inviteTokensList"
	getOperation           operation = "inviteTokensGet"
	updateLimitsOperation  operation = "inviteTokensUpdateLimits"
	checkOperation         operation = "inviteTokensCheck"
)

// Handler exposes invite token management and the public token check over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("invites service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Mount registers the manager routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/properties/{propertyId}/invite-tokens", h.Create)
	r.Post("/properties/{propertyId}/invite-tokens/default", h.EnsureDefault)
	r.Get("/properties/{propertyId}/invite-tokens", h.List)
	r.Get("/invite-tokens/{tokenId}", h.Get)
	r.Patch("/invite-tokens/{tokenId}", h.UpdateLimits)
}

// MountPublic registers the unauthenticated token check.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/public/invites/{token}", h.Check)
}

// InviteToken is the manager-facing token representation.
type InviteToken struct {
	ID            string     `json:"id"`
	PropertyID    string     `json:"propertyId"`
	Token         string     `json:"token"`
	Type          string     `json:"type"`
	Email         *string    `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	MaxUses       *int       `json:"maxUses"`
	UsedCount     int        `json:"usedCount"`
	RemainingUses *int       `json:"remainingUses"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	IsDefault     bool       `json:"isDefault"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// TokenCheck is the public verdict. It never echoes the invite email.
type TokenCheck struct {
	Valid         bool       `json:"valid"`
	Reason        *string    `json:"reason,omitempty"`
	PropertyID    string     `json:"propertyId"`
	Type          string     `json:"type"`
	RemainingUses *int       `json:"remainingUses"`
	ExpiresAt     *time.Time `json:"expiresAt"`
}

type createRequest struct {
	Type      string     `json:"type"`
	Email     string     `json:"email,omitempty"`
	MaxUses   *int       `json:"maxUses,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// updateLimitsRequest keeps raw values so an explicit null clears a limit.
type updateLimitsRequest struct {
	MaxUses   json.RawMessage `json:"maxUses,omitempty"`
	ExpiresAt json.RawMessage `json:"expiresAt,omitempty"`
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

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		PropertyID: propertyID,
		Type:       body.Type,
		Email:      body.Email,
		MaxUses:    body.MaxUses,
		ExpiresAt:  body.ExpiresAt,
		Name:       body.Name,
	})
	if err != nil {
		h.writeError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/properties/%s/invite-tokens", propertyID))
	httpapi.WriteJSON(w, http.StatusCreated, toAPIToken(created))
}

func (h *Handler) EnsureDefault(w http.ResponseWriter, r *http.Request) {
	propertyID, err := httpapi.PathUUID(r, "propertyId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	token, err := h.svc.EnsureDefault(r.Context(), propertyID)
	if err != nil {
		h.writeError(w, r, err, ensureDefaultOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIToken(token))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	propertyID, err := httpapi.PathUUID(r, "propertyId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	tokens, err := h.svc.List(r.Context(), propertyID)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]InviteToken, 0, len(tokens))
	for _, token := range tokens {
		items = append(items, toAPIToken(token))
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tokenID, err := httpapi.PathUUID(r, "tokenId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	token, err := h.svc.Get(r.Context(), tokenID)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIToken(token))
}

func (h *Handler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	tokenID, err := httpapi.PathUUID(r, "tokenId")
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	var body updateLimitsRequest
	if err := httpapi.DecodeJSON(r, &body); err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	input, err := toUpdateLimitsInput(body)
	if err != nil {
		httpapi.BadRequest(w, err.Error())
		return
	}

	updated, err := h.svc.UpdateLimits(r.Context(), tokenID, input)
	if err != nil {
		h.writeError(w, r, err, updateLimitsOperation)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, toAPIToken(updated))
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "token")
	email := ""
	if q := httpapi.QueryString(r, "email"); q != nil {
		email = *q
	}

	result, err := h.svc.Check(r.Context(), value, email)
	if err != nil {
		h.writeError(w, r, err, checkOperation)
		return
	}

	check := TokenCheck{
		Valid:         result.Valid,
		PropertyID:    result.Token.PropertyID.String(),
		Type:          string(result.Token.Type),
		RemainingUses: result.Token.RemainingUses(),
		ExpiresAt:     result.Token.ExpiresAt,
	}
	if result.Reason != domain.DenialNone {
		reason := string(result.Reason)
		check.Reason = &reason
	}
	httpapi.WriteJSON(w, http.StatusOK, check)
}

func toAPIToken(token domain.Token) InviteToken {
	return InviteToken{
		ID:            token.ID.String(),
		PropertyID:    token.PropertyID.String(),
		Token:         token.Token,
		Type:          string(token.Type),
		Email:         token.Email,
		Name:          token.Name,
		MaxUses:       token.MaxUses,
		UsedCount:     token.UsedCount,
		RemainingUses: token.RemainingUses(),
		ExpiresAt:     token.ExpiresAt,
		IsDefault:     token.IsDefault(),
		CreatedAt:     token.CreatedAt,
		UpdatedAt:     token.UpdatedAt,
	}
}

func toUpdateLimitsInput(body updateLimitsRequest) (service.UpdateLimitsInput, error) {
	input := service.UpdateLimitsInput{}

	if len(body.MaxUses) > 0 {
		if isNull(body.MaxUses) {
			input.ClearMaxUses = true
		} else {
			var v int
			if err := json.Unmarshal(body.MaxUses, &v); err != nil {
				return input, errors.New("maxUses must be an integer or null")
			}
			input.MaxUses = &v
		}
	}

	if len(body.ExpiresAt) > 0 {
		if isNull(body.ExpiresAt) {
			input.ClearExpiresAt = true
		} else {
			var v time.Time
			if err := json.Unmarshal(body.ExpiresAt, &v); err != nil {
				return input, errors.New("expiresAt must be an RFC 3339 timestamp or null")
			}
			input.ExpiresAt = &v
		}
	}

	return input, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
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
		logger.Error("invites operation failed", append(fieldsForLog, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("invites resource not found", append(fieldsForLog, zap.Error(err))...)
	default:
		logger.Warn("invites request rejected", append(fieldsForLog, zap.Error(err))...)
	}

	problem := httpapi.NewProblem(title, detail, problemType, status, fields)
	var denied *service.DeniedError
	if errors.As(err, &denied) {
		reason := string(denied.Reason)
		problem.Reason = &reason
	}
	httpapi.WriteProblem(w, problem)
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors service.FieldErrors) {
	var validationErr *service.ValidationError
	var denied *service.DeniedError
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
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"invite token not found",
			httpapi.ProblemTypeNotFound,
			nil
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict,
			"Conflict",
			"invite token conflict",
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
