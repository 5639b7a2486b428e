package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const TenantProfilesTable = "tenant_profiles"

// TenantProfileRecord is a live tenant profile as stored by the profile subsystem.
type TenantProfileRecord struct {
	ProfileID uuid.UUID
	UserID    *uuid.UUID
	Profile   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

var ErrTenantProfileNotFound = errors.New("tenant profile not found")

// ProfileStore reads live tenant profiles. Writes exist for seeding and tests only.
type ProfileStore struct {
	db *DB
}

func NewProfileStore(db *DB) (*ProfileStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &ProfileStore{db: db}, nil
}

func (s *ProfileStore) GetTenantProfile(ctx context.Context, profileID uuid.UUID) (TenantProfileRecord, error) {
	row := s.db.Querier(ctx).QueryRow(ctx, fmt.Sprintf(`
        SELECT profile_id, user_id, profile, created_at, updated_at
        FROM %s WHERE profile_id = $1
    `, TenantProfilesTable), profileID)

	var r TenantProfileRecord
	if err := row.Scan(&r.ProfileID, &r.UserID, &r.Profile, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantProfileRecord{}, ErrTenantProfileNotFound
		}
		return TenantProfileRecord{}, fmt.Errorf("get tenant profile: %w", err)
	}
	return r, nil
}

func (s *ProfileStore) UpsertTenantProfile(ctx context.Context, r TenantProfileRecord) error {
	if r.ProfileID == uuid.Nil || len(r.Profile) == 0 {
		return errors.New("profile id and payload are required")
	}
	_, err := s.db.Querier(ctx).Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (profile_id, user_id, profile, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        ON CONFLICT (profile_id) DO UPDATE
        SET user_id = EXCLUDED.user_id, profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at
    `, TenantProfilesTable), r.ProfileID, r.UserID, r.Profile, r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert tenant profile: %w", err)
	}
	return nil
}
