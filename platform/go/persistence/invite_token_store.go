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

const InviteTokensTable = "application_invite_tokens"

const inviteTokenDefaultIndex = "application_invite_tokens_default_idx"

const inviteTokenColumns = `id, property_id, token, type, email, max_uses, used_count, expires_at, name, created_at, updated_at`

// InviteTokenRecord represents a row in the application_invite_tokens table.
type InviteTokenRecord struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	Token      string
	Type       string
	Email      *string
	MaxUses    *int
	UsedCount  int
	ExpiresAt  *time.Time
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	ErrInviteTokenNotFound = errors.New("invite token not found")
	// ErrInviteTokenConflict indicates the generated token string is already taken.
	ErrInviteTokenConflict = errors.New("invite token conflict")
	// ErrDefaultInviteTokenExists indicates the property already has its Default token.
	ErrDefaultInviteTokenExists = errors.New("default invite token already exists")
	// ErrInviteTokenUnavailable is returned when a conditional increment matched no row:
	// the token is expired, exhausted, or gone.
	ErrInviteTokenUnavailable = errors.New("invite token unavailable")
	// ErrInviteTokenLimitBelowUsage indicates a max_uses lower than the current used_count.
	ErrInviteTokenLimitBelowUsage = errors.New("invite token limit below usage")
)

// InviteTokenStore exposes persistence helpers for the application_invite_tokens table.
type InviteTokenStore struct {
	db *DB
}

func NewInviteTokenStore(db *DB) (*InviteTokenStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &InviteTokenStore{db: db}, nil
}

// CreateInviteTokenParams captures the fields required to insert a token.
type CreateInviteTokenParams struct {
	ID         uuid.UUID
	PropertyID uuid.UUID
	Token      string
	Type       string
	Email      *string
	MaxUses    *int
	ExpiresAt  *time.Time
	Name       string
	Now        time.Time
}

func (s *InviteTokenStore) CreateInviteToken(ctx context.Context, params CreateInviteTokenParams) (InviteTokenRecord, error) {
	if params.ID == uuid.Nil || params.PropertyID == uuid.Nil {
		return InviteTokenRecord{}, errors.New("invite token id and property id are required")
	}

	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, property_id, token, type, email, max_uses, used_count, expires_at, name, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $9)
        ON CONFLICT (token) DO NOTHING
        RETURNING %s
    `, InviteTokensTable, inviteTokenColumns),
		params.ID,
		params.PropertyID,
		params.Token,
		params.Type,
		params.Email,
		params.MaxUses,
		params.ExpiresAt,
		strings.TrimSpace(params.Name),
		params.Now.UTC(),
	)

	// A token collision is absorbed by ON CONFLICT so it does not abort an enclosing tx.
	record, err := scanInviteToken(row)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return InviteTokenRecord{}, ErrInviteTokenConflict
	case isUniqueViolation(err) && constraintName(err) == inviteTokenDefaultIndex:
		return InviteTokenRecord{}, ErrDefaultInviteTokenExists
	default:
		return InviteTokenRecord{}, fmt.Errorf("insert invite token: %w", err)
	}
}

func (s *InviteTokenStore) GetInviteToken(ctx context.Context, id uuid.UUID) (InviteTokenRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, inviteTokenColumns, InviteTokensTable), id)
	return s.scanOne(row)
}

func (s *InviteTokenStore) GetInviteTokenByToken(ctx context.Context, token string) (InviteTokenRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE token = $1`, inviteTokenColumns, InviteTokensTable), token)
	return s.scanOne(row)
}

func (s *InviteTokenStore) GetDefaultInviteToken(ctx context.Context, propertyID uuid.UUID) (InviteTokenRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE property_id = $1 AND name = 'Default'`, inviteTokenColumns, InviteTokensTable), propertyID)
	return s.scanOne(row)
}

// ListInviteTokens returns the property's tokens, newest first.
func (s *InviteTokenStore) ListInviteTokens(ctx context.Context, propertyID uuid.UUID) ([]InviteTokenRecord, error) {
	rows, err := s.db.Querier(ctx).Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s
        WHERE property_id = $1
        ORDER BY created_at DESC, id
    `, inviteTokenColumns, InviteTokensTable), propertyID)
	if err != nil {
		return nil, fmt.Errorf("list invite tokens: %w", err)
	}
	defer rows.Close()

	records := make([]InviteTokenRecord, 0)
	for rows.Next() {
		record, scanErr := scanInviteToken(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan invite token: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invite tokens: %w", err)
	}
	return records, nil
}

// SetInviteTokenLimits replaces max_uses and expires_at. The update refuses a limit below the
// current used_count in the same statement, so a concurrent consume cannot slip past it.
func (s *InviteTokenStore) SetInviteTokenLimits(ctx context.Context, id uuid.UUID, maxUses *int, expiresAt *time.Time, now time.Time) (InviteTokenRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET max_uses = $2, expires_at = $3, updated_at = $4
        WHERE id = $1 AND ($2::int IS NULL OR used_count <= $2::int)
        RETURNING %s
    `, InviteTokensTable, inviteTokenColumns), id, maxUses, expiresAt, now.UTC())

	record, err := scanInviteToken(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return InviteTokenRecord{}, fmt.Errorf("update invite token limits: %w", err)
	}

	if _, getErr := s.GetInviteToken(ctx, id); getErr != nil {
		return InviteTokenRecord{}, getErr
	}
	return InviteTokenRecord{}, ErrInviteTokenLimitBelowUsage
}

// IncrementInviteTokenUsage counts one use with a single conditional UPDATE. Zero matched rows
// means the token was exhausted or expired at now and ErrInviteTokenUnavailable is returned.
func (s *InviteTokenStore) IncrementInviteTokenUsage(ctx context.Context, id uuid.UUID, now time.Time) (InviteTokenRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s
        SET used_count = used_count + 1, updated_at = $2
        WHERE id = $1
          AND (max_uses IS NULL OR used_count < max_uses)
          AND (expires_at IS NULL OR expires_at > $2)
        RETURNING %s
    `, InviteTokensTable, inviteTokenColumns), id, now.UTC())

	record, err := scanInviteToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InviteTokenRecord{}, ErrInviteTokenUnavailable
		}
		return InviteTokenRecord{}, fmt.Errorf("increment invite token usage: %w", err)
	}
	return record, nil
}

func (s *InviteTokenStore) scanOne(row pgx.Row) (InviteTokenRecord, error) {
	record, err := scanInviteToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InviteTokenRecord{}, ErrInviteTokenNotFound
		}
		return InviteTokenRecord{}, fmt.Errorf("get invite token: %w", err)
	}
	return record, nil
}

func scanInviteToken(row pgx.Row) (InviteTokenRecord, error) {
	var r InviteTokenRecord
	err := row.Scan(
		&r.ID,
		&r.PropertyID,
		&r.Token,
		&r.Type,
		&r.Email,
		&r.MaxUses,
		&r.UsedCount,
		&r.ExpiresAt,
		&r.Name,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}
