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
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/domains/applications/be/service"
	invitesdomain "github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	invitesservice "github.com/zenGate-Global/rentflow/domains/invites/be/service"
	leadsdomain "github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/httpapi"
	"github.com/zenGate-Global/rentflow/platform/go/requesttrace"
)

type mockService struct {
	startFn    func(ctx context.Context, input service.StartInput) (service.StartResult, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	listFn     func(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
	setStepFn  func(ctx context.Context, id uuid.UUID, step int) (service.TransitionResult, error)
	submitFn   func(ctx context.Context, id uuid.UUID) (service.TransitionResult, error)
	reviewFn   func(ctx context.Context, id, reviewer uuid.UUID) (service.TransitionResult, error)
	visitFn    func(ctx context.Context, id uuid.UUID, input service.ScheduleVisitInput) (service.TransitionResult, error)
	completeFn func(ctx context.Context, id uuid.UUID, notes string) (service.TransitionResult, error)
	approveFn  func(ctx context.Context, id, approver uuid.UUID, notes string) (service.TransitionResult, error)
	rejectFn   func(ctx context.Context, id uuid.UUID, input service.RejectInput) (service.TransitionResult, error)
	withdrawFn func(ctx context.Context, id uuid.UUID) (service.TransitionResult, error)
	leaseFn    func(ctx context.Context, id uuid.UUID, input service.LeaseInput) (service.TransitionResult, error)
	archiveFn  func(ctx context.Context, id uuid.UUID) (service.TransitionResult, error)
}

func (m *mockService) Start(ctx context.Context, input service.StartInput) (service.StartResult, error) {
	if m.startFn == nil {
		panic("startFn not configured")
	}
	return m.startFn(ctx, input)
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
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

func (m *mockService) SetStep(ctx context.Context, id uuid.UUID, step int) (service.TransitionResult, error) {
	if m.setStepFn == nil {
		panic("setStepFn not configured")
	}
	return m.setStepFn(ctx, id, step)
}

func (m *mockService) Submit(ctx context.Context, id uuid.UUID) (service.TransitionResult, error) {
	if m.submitFn == nil {
		panic("submitFn not configured")
	}
	return m.submitFn(ctx, id)
}

func (m *mockService) MoveToUnderReview(ctx context.Context, id, reviewer uuid.UUID) (service.TransitionResult, error) {
	if m.reviewFn == nil {
		panic("reviewFn not configured")
	}
	return m.reviewFn(ctx, id, reviewer)
}

func (m *mockService) ScheduleVisit(ctx context.Context, id uuid.UUID, input service.ScheduleVisitInput) (service.TransitionResult, error) {
	if m.visitFn == nil {
		panic("visitFn not configured")
	}
	return m.visitFn(ctx, id, input)
}

func (m *mockService) CompleteVisit(ctx context.Context, id uuid.UUID, notes string) (service.TransitionResult, error) {
	if m.completeFn == nil {
		panic("completeFn not configured")
	}
	return m.completeFn(ctx, id, notes)
}

func (m *mockService) Approve(ctx context.Context, id, approver uuid.UUID, notes string) (service.TransitionResult, error) {
	if m.approveFn == nil {
		panic("approveFn not configured")
	}
	return m.approveFn(ctx, id, approver, notes)
}

func (m *mockService) Reject(ctx context.Context, id uuid.UUID, input service.RejectInput) (service.TransitionResult, error) {
	if m.rejectFn == nil {
		panic("rejectFn not configured")
	}
	return m.rejectFn(ctx, id, input)
}

func (m *mockService) Withdraw(ctx context.Context, id uuid.UUID) (service.TransitionResult, error) {
	if m.withdrawFn == nil {
		panic("withdrawFn not configured")
	}
	return m.withdrawFn(ctx, id)
}

func (m *mockService) MarkAsLeased(ctx context.Context, id uuid.UUID, input service.LeaseInput) (service.TransitionResult, error) {
	if m.leaseFn == nil {
		panic("leaseFn not configured")
	}
	return m.leaseFn(ctx, id, input)
}

func (m *mockService) Archive(ctx context.Context, id uuid.UUID) (service.TransitionResult, error) {
	if m.archiveFn == nil {
		panic("archiveFn not configured")
	}
	return m.archiveFn(ctx, id)
}

func serve(t *testing.T, svc service.Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	h := New(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	h.Mount(r)
	h.MountApplicant(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func asUser(req *http.Request, actor uuid.UUID, email string) *http.Request {
	subject := actor.String()
	audit := requesttrace.AuditInfo{
		ActorKind: requesttrace.ActorKindUser,
		UserID:    &subject,
		ActorID:   &actor,
		Email:     email,
		RequestID: "req-1",
	}
	return req.WithContext(requesttrace.IntoContext(req.Context(), audit))
}

func application(status domain.Status) *domain.Application {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Application{
		ID:              uuid.New(),
		PropertyID:      uuid.New(),
		TenantProfileID: uuid.New(),
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestStartChecksCredentialEmail(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	profileID := uuid.New()
	app := application(domain.StatusDraft)
	tokenID := uuid.New()
	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			require.Equal(t, "ana@example.com", input.Email)
			require.Equal(t, "TOKEN1", input.Token)
			require.Equal(t, profileID, input.TenantProfileID)
			require.Equal(t, uuid.Nil, input.PropertyID)
			require.NotNil(t, input.UserID)
			require.Equal(t, actor, *input.UserID)
			return service.StartResult{
				Application: app,
				Lead:        leadsdomain.Lead{ID: uuid.New()},
				Token:       &invitesdomain.Token{ID: tokenID},
			}, nil
		},
	}

	body := `{"tenantProfileId":"` + profileID.String() + `","token":"TOKEN1"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)), actor, "ana@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "/api/v1/applications/"+app.ID.String(), rec.Header().Get("Location"))
	var resp StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "draft", resp.Application.Status)
	require.NotNil(t, resp.InviteTokenID)
	require.Equal(t, tokenID.String(), *resp.InviteTokenID)
}

func TestStartDeniedTokenCarriesReason(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			return service.StartResult{}, &invitesservice.DeniedError{Reason: invitesdomain.DenialExhausted}
		},
	}

	body := `{"tenantProfileId":"` + uuid.NewString() + `","token":"TOKEN1","email":"ana@example.com"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)), uuid.New(), "ana@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem httpapi.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotNil(t, problem.Reason)
	require.Equal(t, "exhausted", *problem.Reason)
}

func TestStartValidationErrors(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			return service.StartResult{}, &service.ValidationError{Fields: service.FieldErrors{"email": {"email is required"}}}
		},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(`{}`)), uuid.New(), "ana@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpapi.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotNil(t, problem.Errors)
	require.Contains(t, *problem.Errors, "email")
}

func TestStartUnknownToken(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			return service.StartResult{}, service.ErrTokenNotFound
		},
	}

	body := `{"tenantProfileId":"` + uuid.NewString() + `","token":"NOPE","email":"ana@example.com"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)), uuid.New(), "ana@example.com")
	rec := serve(t, svc, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartRefusesEmailOtherThanCredential(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			t.Fatal("start must not be called for a mismatched email")
			return service.StartResult{}, nil
		},
	}

	body := `{"tenantProfileId":"` + uuid.NewString() + `","token":"TOKEN1","email":"alice@example.com"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)), uuid.New(), "mallory@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpapi.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.NotNil(t, problem.Errors)
	require.Contains(t, *problem.Errors, "email")
}

func TestStartAcceptsBodyEmailEqualToCredential(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			require.Equal(t, "Ana@Example.com", input.Email)
			return service.StartResult{Application: application(domain.StatusDraft), Lead: leadsdomain.Lead{ID: uuid.New()}}, nil
		},
	}

	body := `{"tenantProfileId":"` + uuid.NewString() + `","token":"TOKEN1","email":" ana@example.com "}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)), uuid.New(), "Ana@Example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestStartRequiresCredentialEmail(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		startFn: func(ctx context.Context, input service.StartInput) (service.StartResult, error) {
			t.Fatal("start must not be called without a credential email")
			return service.StartResult{}, nil
		},
	}

	body := `{"tenantProfileId":"` + uuid.NewString() + `","token":"TOKEN1","email":"alice@example.com"}`
	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body)))

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRefusedTransitionIsConflict(t *testing.T) {
	t.Parallel()

	app := application(domain.StatusRejected)
	svc := &mockService{
		approveFn: func(ctx context.Context, id, approver uuid.UUID, notes string) (service.TransitionResult, error) {
			return service.TransitionResult{Application: app, Applied: false}, nil
		},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/applications/"+app.ID.String()+"/approve", nil), uuid.New(), "m@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	var problem httpapi.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Contains(t, problem.Detail, "rejected")
}

func TestApproveRecordsActor(t *testing.T) {
	t.Parallel()

	actor := uuid.New()
	app := application(domain.StatusApproved)
	app.ApprovedByUserID = &actor
	app.ApprovalNotes = "great fit"
	svc := &mockService{
		approveFn: func(ctx context.Context, id, approver uuid.UUID, notes string) (service.TransitionResult, error) {
			require.Equal(t, actor, approver)
			require.Equal(t, "great fit", notes)
			return service.TransitionResult{Application: app, Applied: true}, nil
		},
	}

	req := asUser(httptest.NewRequest(http.MethodPost, "/applications/"+app.ID.String()+"/approve", strings.NewReader(`{"notes":"great fit"}`)), actor, "m@example.com")
	rec := serve(t, svc, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body Application
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "approved", body.Status)
	require.NotNil(t, body.ApprovedByUserID)
	require.Equal(t, actor.String(), *body.ApprovedByUserID)
}

func TestReviewRequiresActor(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, httptest.NewRequest(http.MethodPost, "/applications/"+uuid.NewString()+"/review", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectPassesDetails(t *testing.T) {
	t.Parallel()

	app := application(domain.StatusRejected)
	svc := &mockService{
		rejectFn: func(ctx context.Context, id uuid.UUID, input service.RejectInput) (service.TransitionResult, error) {
			require.Equal(t, "income_too_low", input.Reason)
			require.JSONEq(t, `{"note":"short by 200"}`, string(input.Details))
			return service.TransitionResult{Application: app, Applied: true}, nil
		},
	}

	body := `{"reason":"income_too_low","details":{"note":"short by 200"}}`
	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/applications/"+app.ID.String()+"/reject", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLeaseParsesDatesAndAmounts(t *testing.T) {
	t.Parallel()

	app := application(domain.StatusLeased)
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	rent := decimal.RequireFromString("1200")
	deposit := decimal.RequireFromString("2400.5")
	app.LeaseStartDate = &start
	app.LeaseEndDate = &end
	app.AgreedRentAmount = &rent
	app.DepositAmount = &deposit

	svc := &mockService{
		leaseFn: func(ctx context.Context, id uuid.UUID, input service.LeaseInput) (service.TransitionResult, error) {
			require.True(t, input.StartDate.Equal(start))
			require.True(t, input.EndDate.Equal(end))
			require.True(t, input.Rent.Equal(rent))
			require.True(t, input.Deposit.Equal(deposit))
			return service.TransitionResult{Application: app, Applied: true}, nil
		},
	}

	body := `{"startDate":"2025-07-01","endDate":"2026-06-30","rent":"1200","deposit":"2400.5"}`
	rec := serve(t, svc, httptest.NewRequest(http.MethodPost, "/applications/"+app.ID.String()+"/lease", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "2025-07-01", resp["leaseStartDate"])
	require.Equal(t, "1200.00", resp["agreedRentAmount"])
	require.Equal(t, "2400.50", resp["depositAmount"])
}

func TestListPassesStatuses(t *testing.T) {
	t.Parallel()

	propertyID := uuid.New()
	svc := &mockService{
		listFn: func(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
			require.Equal(t, propertyID, *opts.PropertyID)
			require.Equal(t, []string{"submitted", "under_review"}, opts.Statuses)
			require.Equal(t, 2, opts.Page)
			return service.ListResult{
				Applications: []*domain.Application{application(domain.StatusSubmitted)},
				Page:         2, PageSize: 20, TotalItems: 21, TotalPages: 2,
			}, nil
		},
	}

	url := "/properties/" + propertyID.String() + "/applications?status=submitted&status=under_review&page=2"
	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, url, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body ApplicationList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	require.Equal(t, 21, body.TotalItems)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
			return nil, service.ErrNotFound
		},
	}

	rec := serve(t, svc, httptest.NewRequest(http.MethodGet, "/applications/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidApplicationID(t *testing.T) {
	t.Parallel()

	rec := serve(t, &mockService{}, httptest.NewRequest(http.MethodPost, "/applications/not-a-uuid/submit", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStepPassesValue(t *testing.T) {
	t.Parallel()

	app := application(domain.StatusDraft)
	app.CurrentStep = 3
	svc := &mockService{
		setStepFn: func(ctx context.Context, id uuid.UUID, step int) (service.TransitionResult, error) {
			require.Equal(t, 3, step)
			return service.TransitionResult{Application: app, Applied: true}, nil
		},
	}

	rec := serve(t, svc, httptest.NewRequest(http.MethodPatch, "/applications/"+app.ID.String()+"/step", strings.NewReader(`{"step":3}`)))
	require.Equal(t, http.StatusOK, rec.Code)
}
