// Package httpapi holds the JSON and problem+json plumbing shared by the domain handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
)

const (
	ProblemTypeValidation  = "https://rentflow.dev/problems/validation-error"
	ProblemTypeNotFound    = "https://rentflow.dev/problems/not-found"
	ProblemTypeConflict    = "https://rentflow.dev/problems/conflict"
	ProblemTypeForbidden   = "https://rentflow.dev/problems/forbidden"
	ProblemTypeAuth        = "https://rentflow.dev/problems/unauthorized"
	ProblemTypeInternal    = "https://rentflow.dev/problems/internal-error"
	ProblemTypeRateLimited = "https://rentflow.dev/problems/rate-limited"
)

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// ProblemDetails is an RFC 7807 problem document.
type ProblemDetails struct {
	Type   *string              `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail *string              `json:"detail,omitempty"`
	Reason *string              `json:"reason,omitempty"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

// NewProblem builds a problem document, copying fieldErrors.
func NewProblem(title, detail, problemType string, status int, fieldErrors map[string][]string) ProblemDetails {
	problem := ProblemDetails{
		Title:  title,
		Status: status,
	}

	if detail != "" {
		problem.Detail = &detail
	}
	if problemType != "" {
		problem.Type = &problemType
	}

	if len(fieldErrors) > 0 {
		copied := make(map[string][]string, len(fieldErrors))
		for field, messages := range fieldErrors {
			copied[field] = append([]string(nil), messages...)
		}
		problem.Errors = &copied
	}

	return problem
}

// WriteJSON encodes body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteProblem writes problem as application/problem+json.
func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// BadRequest writes a 400 problem with a single message.
func BadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, NewProblem("Invalid request", detail, ProblemTypeValidation, http.StatusBadRequest, nil))
}

// DecodeJSON reads a JSON object into dst, rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("invalid request body: unexpected trailing data")
	}
	return nil
}

// PathUUID binds the named chi path parameter as a UUID.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter.
func QueryInt(r *http.Request, name string) (int, error) {
	var value *int
	err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &value)
	if err != nil {
		return 0, fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	if value == nil {
		return 0, nil
	}
	return *value, nil
}

// QueryString returns the trimmed query parameter, or nil when absent or blank.
func QueryString(r *http.Request, name string) *string {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	return &raw
}
