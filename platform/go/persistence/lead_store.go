package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const LeadsTable = "leads"

const leadColumns = `id, property_id, email, first_name, last_name, phone, token, source, status,
        user_id, application_id, invite_token_id, invited_at, viewed_at, archived_at, notes, created_at, updated_at`

// LeadRecord represents a row in the leads table.
type LeadRecord struct {
	ID            uuid.UUID
	PropertyID    uuid.UUID
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Token         string
	Source        string
	Status        string
	UserID        *uuid.UUID
	ApplicationID *uuid.UUID
	InviteTokenID *uuid.UUID
	InvitedAt     *time.Time
	ViewedAt      *time.Time
	ArchivedAt    *time.Time
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrLeadNotFound = errors.New("lead not found")
	// ErrLeadConflict indicates a live lead already exists for the property and email.
	ErrLeadConflict = errors.New("lead conflict")
)

// LeadStore exposes persistence helpers for the leads table.
type LeadStore struct {
	db *DB
}

func NewLeadStore(db *DB) (*LeadStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &LeadStore{db: db}, nil
}

// ListLeadsParams filters a property's leads. An empty Status lists every live lead;
// archived leads are only returned when asked for explicitly.
type ListLeadsParams struct {
	PropertyID uuid.UUID
	Status     *string
	Page       int
	PageSize   int
}

type ListLeadsResult struct {
	Leads      []LeadRecord
	TotalItems int
}

func (s *LeadStore) CreateLead(ctx context.Context, r LeadRecord) (LeadRecord, error) {
	if r.ID == uuid.Nil || r.PropertyID == uuid.Nil {
		return LeadRecord{}, errors.New("lead id and property id are required")
	}

	// ON CONFLICT keeps a duplicate from aborting an enclosing transaction.
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, property_id, email, first_name, last_name, phone, token, source, status,
            user_id, application_id, invite_token_id, invited_at, viewed_at, archived_at, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
        ON CONFLICT (property_id, lower(email)) WHERE status <> 'archived' DO NOTHING
        RETURNING %s
    `, LeadsTable, leadColumns),
		r.ID,
		r.PropertyID,
		strings.TrimSpace(r.Email),
		strings.TrimSpace(r.FirstName),
		strings.TrimSpace(r.LastName),
		strings.TrimSpace(r.Phone),
		r.Token,
		r.Source,
		r.Status,
		r.UserID,
		r.ApplicationID,
		r.InviteTokenID,
		r.InvitedAt,
		r.ViewedAt,
		r.ArchivedAt,
		r.Notes,
		r.CreatedAt.UTC(),
	)

	record, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return LeadRecord{}, ErrLeadConflict
		}
		return LeadRecord{}, fmt.Errorf("insert lead: %w", err)
	}
	return record, nil
}

func (s *LeadStore) GetLead(ctx context.Context, id uuid.UUID) (LeadRecord, error) {
	return s.getOne(ctx, `id = $1`, id)
}

// GetLeadForUpdate locks the row until the surrounding transaction ends.
func (s *LeadStore) GetLeadForUpdate(ctx context.Context, id uuid.UUID) (LeadRecord, error) {
	return s.getOne(ctx, `id = $1 FOR UPDATE`, id)
}

// FindActiveLeadByEmail returns the live lead for the prospect on the property.
func (s *LeadStore) FindActiveLeadByEmail(ctx context.Context, propertyID uuid.UUID, email string) (LeadRecord, error) {
	return s.getOne(ctx, `property_id = $1 AND lower(email) = lower($2) AND status <> 'archived' FOR UPDATE`,
		propertyID, strings.TrimSpace(email))
}

// FindLeadByApplication returns the lead linked to the application.
func (s *LeadStore) FindLeadByApplication(ctx context.Context, applicationID uuid.UUID) (LeadRecord, error) {
	return s.getOne(ctx, `application_id = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, applicationID)
}

// FindLeadByToken returns the most recent live lead that came in through the token string.
func (s *LeadStore) FindLeadByToken(ctx context.Context, token string) (LeadRecord, error) {
	if strings.TrimSpace(token) == "" {
		return LeadRecord{}, ErrLeadNotFound
	}
	return s.getOne(ctx, `token = $1 AND status <> 'archived' ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, token)
}

func (s *LeadStore) ListLeads(ctx context.Context, params ListLeadsParams) (ListLeadsResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageSize > 100 {
		params.PageSize = 100
	}

	args := []any{params.PropertyID}
	whereSQL := "property_id = $1"
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		args = append(args, strings.TrimSpace(*params.Status))
		whereSQL += fmt.Sprintf(" AND status = $%d", len(args))
	} else {
		whereSQL += " AND status <> 'archived'"
	}

	var total int
	if err := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", LeadsTable, whereSQL), args...).Scan(&total); err != nil {
		return ListLeadsResult{}, fmt.Errorf("count leads: %w", err)
	}

	result := ListLeadsResult{Leads: []LeadRecord{}, TotalItems: total}
	if total == 0 {
		return result, nil
	}

	dataArgs := append(append([]any{}, args...), params.PageSize, (params.Page-1)*params.PageSize)
	rows, err := s.db.Querier(ctx).Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE %s
        ORDER BY created_at DESC, id
        LIMIT $%d OFFSET $%d
    `, leadColumns, LeadsTable, whereSQL, len(dataArgs)-1, len(dataArgs)), dataArgs...)
	if err != nil {
		return ListLeadsResult{}, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, scanErr := scanLead(rows)
		if scanErr != nil {
			return ListLeadsResult{}, fmt.Errorf("scan lead: %w", scanErr)
		}
		result.Leads = append(result.Leads, record)
	}
	if err := rows.Err(); err != nil {
		return ListLeadsResult{}, fmt.Errorf("iterate leads: %w", err)
	}
	return result, nil
}

// UpdateLead persists the mutable funnel fields. application_id and user_id are only ever
// filled, never cleared or replaced, whatever the caller passes.
func (s *LeadStore) UpdateLead(ctx context.Context, r LeadRecord) (LeadRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET
            status = $2,
            user_id = COALESCE(user_id, $3),
            application_id = COALESCE(application_id, $4),
            viewed_at = $5,
            archived_at = $6,
            notes = $7,
            first_name = $8,
            last_name = $9,
            phone = $10,
            updated_at = $11
        WHERE id = $1
        RETURNING %s
    `, LeadsTable, leadColumns),
		r.ID,
		r.Status,
		r.UserID,
		r.ApplicationID,
		r.ViewedAt,
		r.ArchivedAt,
		r.Notes,
		strings.TrimSpace(r.FirstName),
		strings.TrimSpace(r.LastName),
		strings.TrimSpace(r.Phone),
		r.UpdatedAt.UTC(),
	)

	record, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadRecord{}, ErrLeadNotFound
		}
		return LeadRecord{}, fmt.Errorf("update lead: %w", err)
	}
	return record, nil
}

func (s *LeadStore) getOne(ctx context.Context, where string, args ...any) (LeadRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, leadColumns, LeadsTable, where), args...)
	record, err := scanLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadRecord{}, ErrLeadNotFound
		}
		return LeadRecord{}, fmt.Errorf("get lead: %w", err)
	}
	return record, nil
}

func scanLead(row pgx.Row) (LeadRecord, error) {
	var r LeadRecord
	err := row.Scan(
		&r.ID,
		&r.PropertyID,
		&r.Email,
		&r.FirstName,
		&r.LastName,
		&r.Phone,
		&r.Token,
		&r.Source,
		&r.Status,
		&r.UserID,
		&r.ApplicationID,
		&r.InviteTokenID,
		&r.InvitedAt,
		&r.ViewedAt,
		&r.ArchivedAt,
		&r.Notes,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}
