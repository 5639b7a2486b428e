package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// ProfileReader loads the live tenant profile that Submit copies into the snapshot.
type ProfileReader interface {
	GetProfile(ctx context.Context, profileID uuid.UUID) (domain.Profile, error)
}

type postgresProfiles struct {
	store *persistence.ProfileStore
}

// NewPostgresProfileReader reads tenant_profiles.profile documents.
func NewPostgresProfileReader(store *persistence.ProfileStore) ProfileReader {
	if store == nil {
		panic("profile store is required")
	}
	return &postgresProfiles{store: store}
}

func (p *postgresProfiles) GetProfile(ctx context.Context, profileID uuid.UUID) (domain.Profile, error) {
	record, err := p.store.GetTenantProfile(ctx, profileID)
	if err != nil {
		return domain.Profile{}, err
	}

	var profile domain.Profile
	if err := json.Unmarshal(record.Profile, &profile); err != nil {
		return domain.Profile{}, fmt.Errorf("decode tenant profile %s: %w", profileID, err)
	}
	profile.ProfileID = record.ProfileID
	return profile, nil
}

// MemoryProfiles keeps tenant profiles in memory for tests and local development.
type MemoryProfiles struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]domain.Profile
}

var _ ProfileReader = (*MemoryProfiles)(nil)

func NewMemoryProfiles() *MemoryProfiles {
	return &MemoryProfiles{profiles: make(map[uuid.UUID]domain.Profile)}
}

// Put stores or replaces a profile, as the profile subsystem would on edit.
func (m *MemoryProfiles) Put(profile domain.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ProfileID] = profile.Clone()
}

func (m *MemoryProfiles) GetProfile(ctx context.Context, profileID uuid.UUID) (domain.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	profile, ok := m.profiles[profileID]
	if !ok {
		return domain.Profile{}, persistence.ErrTenantProfileNotFound
	}
	return profile.Clone(), nil
}
