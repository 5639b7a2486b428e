package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// ListParams filters applications. Deleted applications stay hidden unless IncludeDeleted is set
// or StatusDeleted is one of Statuses.
type ListParams struct {
	PropertyID      *uuid.UUID
	TenantProfileID *uuid.UUID
	Statuses        []domain.Status
	IncludeDeleted  bool
	Page            int
	PageSize        int
}

type ListResult struct {
	Applications []*domain.Application
	TotalItems   int
}

// Repository defines the persistence operations required by the applications service.
// Returned applications never carry pending events.
type Repository interface {
	Create(ctx context.Context, app *domain.Application) (*domain.Application, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	// GetForUpdate locks the application until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	List(ctx context.Context, params ListParams) (ListResult, error)
	// Update persists lifecycle fields. A snapshot already stored is never replaced.
	Update(ctx context.Context, app *domain.Application) (*domain.Application, error)
}

type postgresRepository struct {
	store *persistence.ApplicationStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.ApplicationStore) Repository {
	if store == nil {
		panic("application store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Create(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	record, err := toRecord(app)
	if err != nil {
		return nil, err
	}
	return fromRecord(r.store.CreateApplication(ctx, record))
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return fromRecord(r.store.GetApplication(ctx, id))
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return fromRecord(r.store.GetApplicationForUpdate(ctx, id))
}

func (r *postgresRepository) List(ctx context.Context, params ListParams) (ListResult, error) {
	statuses := make([]string, 0, len(params.Statuses))
	for _, st := range params.Statuses {
		statuses = append(statuses, string(st))
	}

	result, err := r.store.ListApplications(ctx, persistence.ListApplicationsParams{
		PropertyID:      params.PropertyID,
		TenantProfileID: params.TenantProfileID,
		Statuses:        statuses,
		IncludeDeleted:  params.IncludeDeleted,
		Page:            params.Page,
		PageSize:        params.PageSize,
	})
	if err != nil {
		return ListResult{}, err
	}

	apps := make([]*domain.Application, 0, len(result.Applications))
	for _, record := range result.Applications {
		app, err := fromRecord(record, nil)
		if err != nil {
			return ListResult{}, err
		}
		apps = append(apps, app)
	}
	return ListResult{Applications: apps, TotalItems: result.TotalItems}, nil
}

func (r *postgresRepository) Update(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	record, err := toRecord(app)
	if err != nil {
		return nil, err
	}
	return fromRecord(r.store.UpdateApplication(ctx, record))
}

func toRecord(app *domain.Application) (persistence.ApplicationRecord, error) {
	record := persistence.ApplicationRecord{
		ID:               app.ID,
		PropertyID:       app.PropertyID,
		TenantProfileID:  app.TenantProfileID,
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
		ReviewedByUserID: app.ReviewedByUserID,
		ApprovedByUserID: app.ApprovedByUserID,
		ApprovalNotes:    app.ApprovalNotes,
		VisitNotes:       app.VisitNotes,
		RejectionReason:  app.RejectionReason,
		RejectionDetails: app.RejectionDetails,
		LeaseStartDate:   app.LeaseStartDate,
		LeaseEndDate:     app.LeaseEndDate,
		AgreedRentAmount: app.AgreedRentAmount,
		DepositAmount:    app.DepositAmount,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}

	if app.Snapshot != nil {
		raw, err := json.Marshal(app.Snapshot)
		if err != nil {
			return persistence.ApplicationRecord{}, fmt.Errorf("marshal snapshot: %w", err)
		}
		income := app.Snapshot.Income.MonthlyIncome
		record.SnapshotProfile = raw
		record.SnapshotMonthlyIncome = &income
	}
	return record, nil
}

// fromRecord takes the store's (record, error) pair directly so call sites stay one line.
func fromRecord(record persistence.ApplicationRecord, err error) (*domain.Application, error) {
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseStatus(record.Status)
	if err != nil {
		return nil, err
	}

	app := &domain.Application{
		ID:               record.ID,
		PropertyID:       record.PropertyID,
		TenantProfileID:  record.TenantProfileID,
		Status:           status,
		CurrentStep:      record.CurrentStep,
		SubmittedAt:      record.SubmittedAt,
		ReviewedAt:       record.ReviewedAt,
		VisitScheduledAt: record.VisitScheduledAt,
		VisitCompletedAt: record.VisitCompletedAt,
		ApprovedAt:       record.ApprovedAt,
		LeaseSignedAt:    record.LeaseSignedAt,
		WithdrawnAt:      record.WithdrawnAt,
		ArchivedAt:       record.ArchivedAt,
		ReviewedByUserID: record.ReviewedByUserID,
		ApprovedByUserID: record.ApprovedByUserID,
		ApprovalNotes:    record.ApprovalNotes,
		VisitNotes:       record.VisitNotes,
		RejectionReason:  record.RejectionReason,
		LeaseStartDate:   record.LeaseStartDate,
		LeaseEndDate:     record.LeaseEndDate,
		AgreedRentAmount: record.AgreedRentAmount,
		DepositAmount:    record.DepositAmount,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
	if len(record.RejectionDetails) > 0 {
		app.RejectionDetails = json.RawMessage(record.RejectionDetails)
	}
	if len(record.SnapshotProfile) > 0 {
		var snapshot domain.Profile
		if err := json.Unmarshal(record.SnapshotProfile, &snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot for application %s: %w", record.ID, err)
		}
		app.Snapshot = &snapshot
	}
	if record.SnapshotChecksum != nil {
		app.SnapshotChecksum = *record.SnapshotChecksum
	}
	return app, nil
}
