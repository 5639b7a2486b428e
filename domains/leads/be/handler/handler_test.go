package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/service"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
)

type mockService struct {
	inviteFn      func(ctx context.Context, input service.InviteInput) (domain.Lead, error)
	createFn      func(ctx context.Context, input service.CreateInput) (domain.Lead, error)
	getFn         func(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	listFn        func(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	markViewedFn  func(ctx context.Context, token string) (domain.Lead, error)
	archiveFn     func(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	updateNotesFn func(ctx context.Context, id uuid.UUID, notes string) (domain.Lead, error)
	ensureFn      func(ctx context.Context, input service.ApplicantInput) (domain.Lead, error)
	linkUserFn    func(ctx context.Context, id, userID uuid.UUID) (domain.Lead, error)
}

func (m *mockService) Invite(ctx context.Context, input service.InviteInput) (domain.Lead, error) {
	if m.inviteFn == nil {
		panic("inviteFn not configured")
	}
	return m.inviteFn(ctx, input)
}

func (m *mockService) Create(ctx context.Context, input service.CreateInput) (domain.Lead, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, input)
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, id)
}

func (m *mockService) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, opts)
}

func (m *mockService) MarkViewedByToken(ctx context.Context, token string) (domain.Lead, error) {
	if m.markViewedFn == nil {
		panic("markViewedFn not configured")
	}
	return m.markViewedFn(ctx, token)
}

func (m *mockService) Archive(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	if m.archiveFn == nil {
		panic("archiveFn not configured")
	}
	return m.archiveFn(ctx, id)
}

func (m *mockService) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (domain.Lead, error) {
	if m.updateNotesFn == nil {
		panic("updateNotesFn not configured")
	}
	return m.updateNotesFn(ctx, id, notes)
}

func (m *mockService) EnsureForApplicant(ctx context.Context, input service.ApplicantInput) (domain.Lead, error) {
	if m.ensureFn == nil {
		panic("ensureFn not configured")
	}
	return m.ensureFn(ctx, input)
}

func (m *mockService) LinkUser(ctx context.Context, id, userID uuid.UUID) (domain.Lead, error) {
	if m.linkUserFn == nil {
		panic("linkUserFn not configured")
	}
	return m.linkUserFn(ctx, id, userID)
}

func serve(t *testing.T, svc service.Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	h.Mount(r)
	h.MountPublic(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateDefaultsToInvite(t *testing.T) {
	t.Parallel()

	propertyID := uuid.New()
	now := time.Now().UTC()
	svc := &mockService{
		inviteFn: func(ctx context.Context, input service.InviteInput) (domain.Lead, error) {
			require.Equal(t, propertyID, input.PropertyID)
			require.Equal(t, "ana@example.com", input.Email)
			return domain.Lead{
				ID: uuid.New(), PropertyID: propertyID, Email: input.Email, FirstName: "Ana", LastName: "Lopez",
				Source: domain.SourceInvite, Status: domain.StatusInvited, InvitedAt: &now, CreatedAt: now, UpdatedAt: now,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/properties/"+propertyID.String()+"/leads", strings.NewReader(`{"email":"ana@example.com"}`))
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "invited", body.Status)
	require.Equal(t, "Ana Lopez", body.FullName)
	require.Nil(t, body.ApplicationID)
}

func TestCreateManualSource(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		createFn: func(ctx context.Context, input service.CreateInput) (domain.Lead, error) {
			require.Equal(t, "manual", input.Source)
			return domain.Lead{ID: uuid.New(), Source: domain.SourceManual, Status: domain.StatusInvited}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/properties/"+uuid.NewString()+"/leads", strings.NewReader(`{"email":"b@example.com","source":"manual"}`))
	rec := serve(t, svc, req)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		inviteFn: func(ctx context.Context, input service.InviteInput) (domain.Lead, error) {
			return domain.Lead{}, service.ErrConflict
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/properties/"+uuid.NewString()+"/leads", strings.NewReader(`{"email":"ana@example.com"}`))
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpapi.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Conflict", problem.Title)
}

func TestListPassesFilters(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		listFn: func(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
			require.Equal(t, "applied", *opts.Status)
			require.Equal(t, 2, opts.Page)
			require.Equal(t, 10, opts.PageSize)
			return service.ListResult{Leads: []domain.Lead{{ID: uuid.New(), Status: domain.StatusApplied}}, Page: 2, PageSize: 10, TotalItems: 11, TotalPages: 2}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/properties/"+uuid.NewString()+"/leads?status=applied&page=2&pageSize=10", nil)
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body LeadList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, 2, body.TotalPages)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		getFn: func(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
			return domain.Lead{}, service.ErrNotFound
		},
	}

	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/leads/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateNotesValidation(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		updateNotesFn: func(ctx context.Context, id uuid.UUID, notes string) (domain.Lead, error) {
			return domain.Lead{}, &service.ValidationError{Fields: service.FieldErrors{"notes": {"notes must be at most 4000"}}}
		},
	}

	req := httptest.NewRequest(http.MethodPatch, "/leads/"+uuid.NewString()+"/notes", strings.NewReader(`{"notes":"x"}`))
	rec := serve(t, svc, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestViewBeacon(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		markViewedFn: func(ctx context.Context, token string) (domain.Lead, error) {
			require.Equal(t, "tok", token)
			return domain.Lead{Email: "secret@example.com"}, nil
		},
	}

	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/public/leads/view/tok", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.String())
}
