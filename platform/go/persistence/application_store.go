package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const ApplicationsTable = "applications"

// Money columns are read as text so decimal values keep their exact scale.
const applicationColumns = `id, property_id, tenant_profile_id, status, current_step,
        submitted_at, reviewed_at, visit_scheduled_at, visit_completed_at, approved_at,
        lease_signed_at, withdrawn_at, archived_at,
        reviewed_by_user_id, approved_by_user_id, approval_notes, visit_notes, rejection_reason, rejection_details,
        lease_start_date, lease_end_date, agreed_rent_amount::text, deposit_amount::text,
        snapshot_profile, snapshot_monthly_income::text, snapshot_checksum,
        created_at, updated_at`

// ApplicationRecord represents a row in the applications table.
type ApplicationRecord struct {
	ID              uuid.UUID
	PropertyID      uuid.UUID
	TenantProfileID uuid.UUID
	Status          string
	CurrentStep     int

	SubmittedAt      *time.Time
	ReviewedAt       *time.Time
	VisitScheduledAt *time.Time
	VisitCompletedAt *time.Time
	ApprovedAt       *time.Time
	LeaseSignedAt    *time.Time
	WithdrawnAt      *time.Time
	ArchivedAt       *time.Time

	ReviewedByUserID *uuid.UUID
	ApprovedByUserID *uuid.UUID
	ApprovalNotes    string
	VisitNotes       string
	RejectionReason  string
	RejectionDetails []byte

	LeaseStartDate   *time.Time
	LeaseEndDate     *time.Time
	AgreedRentAmount *decimal.Decimal
	DepositAmount    *decimal.Decimal

	SnapshotProfile       []byte
	SnapshotMonthlyIncome *decimal.Decimal
	SnapshotChecksum      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	ErrApplicationNotFound = errors.New("application not found")
	// ErrApplicationConflict indicates a duplicated application id.
	ErrApplicationConflict = errors.New("application conflict")
	// ErrInvalidApplicationStatus indicates a status value the table does not accept.
	ErrInvalidApplicationStatus = errors.New("invalid application status")
)

// ApplicationStore exposes persistence helpers for the applications table.
type ApplicationStore struct {
	db *DB
}

func NewApplicationStore(db *DB) (*ApplicationStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &ApplicationStore{db: db}, nil
}

// ListApplicationsParams filters applications. Deleted rows are hidden unless IncludeDeleted is
// set or "deleted" is one of the requested statuses.
type ListApplicationsParams struct {
	PropertyID      *uuid.UUID
	TenantProfileID *uuid.UUID
	Statuses        []string
	IncludeDeleted  bool
	Page            int
	PageSize        int
}

type ListApplicationsResult struct {
	Applications []ApplicationRecord
	TotalItems   int
}

func (s *ApplicationStore) CreateApplication(ctx context.Context, r ApplicationRecord) (ApplicationRecord, error) {
	if r.ID == uuid.Nil || r.PropertyID == uuid.Nil || r.TenantProfileID == uuid.Nil {
		return ApplicationRecord{}, errors.New("application, property and profile ids are required")
	}

	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, property_id, tenant_profile_id, status, current_step, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s
    `, ApplicationsTable, applicationColumns),
		r.ID,
		r.PropertyID,
		r.TenantProfileID,
		r.Status,
		r.CurrentStep,
		r.CreatedAt.UTC(),
		r.UpdatedAt.UTC(),
	)

	record, err := scanApplication(row)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return ApplicationRecord{}, ErrApplicationConflict
		case isCheckViolation(err):
			return ApplicationRecord{}, ErrInvalidApplicationStatus
		}
		return ApplicationRecord{}, fmt.Errorf("insert application: %w", err)
	}
	return record, nil
}

func (s *ApplicationStore) GetApplication(ctx context.Context, id uuid.UUID) (ApplicationRecord, error) {
	return s.getOne(ctx, `id = $1`, id)
}

// GetApplicationForUpdate locks the row so concurrent transitions on one application serialize.
func (s *ApplicationStore) GetApplicationForUpdate(ctx context.Context, id uuid.UUID) (ApplicationRecord, error) {
	return s.getOne(ctx, `id = $1 FOR UPDATE`, id)
}

func (s *ApplicationStore) ListApplications(ctx context.Context, params ListApplicationsParams) (ListApplicationsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	whereParts := []string{"1=1"}
	var args []any

	if params.PropertyID != nil {
		args = append(args, *params.PropertyID)
		whereParts = append(whereParts, fmt.Sprintf("property_id = $%d", len(args)))
	}
	if params.TenantProfileID != nil {
		args = append(args, *params.TenantProfileID)
		whereParts = append(whereParts, fmt.Sprintf("tenant_profile_id = $%d", len(args)))
	}

	includeDeleted := params.IncludeDeleted
	if len(params.Statuses) > 0 {
		args = append(args, params.Statuses)
		whereParts = append(whereParts, fmt.Sprintf("status = ANY($%d)", len(args)))
		for _, st := range params.Statuses {
			if st == "deleted" {
				includeDeleted = true
			}
		}
	}
	if !includeDeleted {
		whereParts = append(whereParts, "status <> 'deleted'")
	}

	whereSQL := strings.Join(whereParts, " AND ")

	var total int
	if err := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ApplicationsTable, whereSQL), args...).Scan(&total); err != nil {
		return ListApplicationsResult{}, fmt.Errorf("count applications: %w", err)
	}

	result := ListApplicationsResult{Applications: []ApplicationRecord{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append(append([]any{}, args...), params.PageSize, (params.Page-1)*params.PageSize)
	rows, err := s.db.Querier(ctx).Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE %s
        ORDER BY created_at DESC, id
        LIMIT $%d OFFSET $%d
    `, applicationColumns, ApplicationsTable, whereSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
	if err != nil {
		return ListApplicationsResult{}, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, scanErr := scanApplication(rows)
		if scanErr != nil {
			return ListApplicationsResult{}, fmt.Errorf("scan application: %w", scanErr)
		}
		result.Applications = append(result.Applications, record)
	}
	if err := rows.Err(); err != nil {
		return ListApplicationsResult{}, fmt.Errorf("iterate applications: %w", err)
	}
	return result, nil
}

// UpdateApplication writes the lifecycle, decision and lease columns. Snapshot columns are
// only filled while still NULL; a second write is silently ignored by the COALESCE.
func (s *ApplicationStore) UpdateApplication(ctx context.Context, r ApplicationRecord) (ApplicationRecord, error) {
	var checksum *string
	var snapshot any
	if len(r.SnapshotProfile) > 0 {
		sum, err := computeJSONHash(r.SnapshotProfile)
		if err != nil {
			return ApplicationRecord{}, fmt.Errorf("snapshot checksum: %w", err)
		}
		checksum = &sum
		snapshot = r.SnapshotProfile
	}

	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            status = $2,
            current_step = $3,
            submitted_at = $4,
            reviewed_at = $5,
            visit_scheduled_at = $6,
            visit_completed_at = $7,
            approved_at = $8,
            lease_signed_at = $9,
            withdrawn_at = $10,
            archived_at = $11,
            reviewed_by_user_id = $12,
            approved_by_user_id = $13,
            approval_notes = $14,
            visit_notes = $15,
            rejection_reason = $16,
            rejection_details = $17,
            lease_start_date = $18,
            lease_end_date = $19,
            agreed_rent_amount = $20::numeric,
            deposit_amount = $21::numeric,
            snapshot_profile = COALESCE(snapshot_profile, $22),
            snapshot_monthly_income = CASE WHEN snapshot_profile IS NULL THEN $23::numeric ELSE snapshot_monthly_income END,
            snapshot_checksum = COALESCE(snapshot_checksum, $24),
            updated_at = $25
        WHERE id = $1
        RETURNING %s
    `, ApplicationsTable, applicationColumns),
		r.ID,
		r.Status,
		r.CurrentStep,
		r.SubmittedAt,
		r.ReviewedAt,
		r.VisitScheduledAt,
		r.VisitCompletedAt,
		r.ApprovedAt,
		r.LeaseSignedAt,
		r.WithdrawnAt,
		r.ArchivedAt,
		r.ReviewedByUserID,
		r.ApprovedByUserID,
		r.ApprovalNotes,
		r.VisitNotes,
		r.RejectionReason,
		nullableJSON(r.RejectionDetails),
		r.LeaseStartDate,
		r.LeaseEndDate,
		decimalText(r.AgreedRentAmount),
		decimalText(r.DepositAmount),
		snapshot,
		decimalText(r.SnapshotMonthlyIncome),
		checksum,
		r.UpdatedAt.UTC(),
	)

	record, err := scanApplication(row)
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return ApplicationRecord{}, ErrApplicationNotFound
		case isCheckViolation(err):
			return ApplicationRecord{}, ErrInvalidApplicationStatus
		}
		return ApplicationRecord{}, fmt.Errorf("update application: %w", err)
	}
	return record, nil
}

func (s *ApplicationStore) getOne(ctx context.Context, where string, args ...any) (ApplicationRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, applicationColumns, ApplicationsTable, where), args...)
	record, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApplicationRecord{}, ErrApplicationNotFound
		}
		return ApplicationRecord{}, fmt.Errorf("get application: %w", err)
	}
	return record, nil
}

func scanApplication(row pgx.Row) (ApplicationRecord, error) {
	var (
		r                          ApplicationRecord
		rent, deposit, snapIncome *string
	)
	err := row.Scan(
		&r.ID,
		&r.PropertyID,
		&r.TenantProfileID,
		&r.Status,
		&r.CurrentStep,
		&r.SubmittedAt,
		&r.ReviewedAt,
		&r.VisitScheduledAt,
		&r.VisitCompletedAt,
		&r.ApprovedAt,
		&r.LeaseSignedAt,
		&r.WithdrawnAt,
		&r.ArchivedAt,
		&r.ReviewedByUserID,
		&r.ApprovedByUserID,
		&r.ApprovalNotes,
		&r.VisitNotes,
		&r.RejectionReason,
		&r.RejectionDetails,
		&r.LeaseStartDate,
		&r.LeaseEndDate,
		&rent,
		&deposit,
		&r.SnapshotProfile,
		&snapIncome,
		&r.SnapshotChecksum,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return ApplicationRecord{}, err
	}

	if r.AgreedRentAmount, err = parseDecimalText(rent); err != nil {
		return ApplicationRecord{}, err
	}
	if r.DepositAmount, err = parseDecimalText(deposit); err != nil {
		return ApplicationRecord{}, err
	}
	if r.SnapshotMonthlyIncome, err = parseDecimalText(snapIncome); err != nil {
		return ApplicationRecord{}, err
	}
	return r, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimalText(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return &d, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
