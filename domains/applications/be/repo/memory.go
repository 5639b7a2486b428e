package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// MemoryRepository is an in-memory implementation suitable for tests and local development.
// The snapshot is write-once, as in the Postgres store.
type MemoryRepository struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*domain.Application
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{apps: make(map[uuid.UUID]*domain.Application)}
}

func (r *MemoryRepository) Create(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	if app.ID == uuid.Nil || app.PropertyID == uuid.Nil || app.TenantProfileID == uuid.Nil {
		return nil, fmt.Errorf("application, property and profile ids are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.apps[app.ID]; exists {
		return nil, persistence.ErrApplicationConflict
	}
	stored := app.Clone()
	// Creation only records the draft; lifecycle columns are written by Update.
	stored.Snapshot = nil
	stored.SnapshotChecksum = ""
	r.apps[app.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.apps[id]
	if !ok {
		return nil, persistence.ErrApplicationNotFound
	}
	return app.Clone(), nil
}

// GetForUpdate takes no lock of its own. Run it under persistence.SerialTransactor so the read
// holds until the matching Update.
func (r *MemoryRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) List(ctx context.Context, params ListParams) (ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize <= 0 {
		params.PageSize = 20
	}

	wanted := make(map[domain.Status]bool, len(params.Statuses))
	includeDeleted := params.IncludeDeleted
	for _, st := range params.Statuses {
		wanted[st] = true
		if st == domain.StatusDeleted {
			includeDeleted = true
		}
	}

	items := make([]*domain.Application, 0)
	for _, app := range r.apps {
		if params.PropertyID != nil && app.PropertyID != *params.PropertyID {
			continue
		}
		if params.TenantProfileID != nil && app.TenantProfileID != *params.TenantProfileID {
			continue
		}
		if len(wanted) > 0 && !wanted[app.Status] {
			continue
		}
		if !includeDeleted && app.Status == domain.StatusDeleted {
			continue
		}
		items = append(items, app.Clone())
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	startIdx := (params.Page - 1) * params.PageSize
	if startIdx > total {
		startIdx = total
	}
	endIdx := startIdx + params.PageSize
	if endIdx > total {
		endIdx = total
	}

	return ListResult{Applications: items[startIdx:endIdx], TotalItems: total}, nil
}

func (r *MemoryRepository) Update(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.apps[app.ID]
	if !ok {
		return nil, persistence.ErrApplicationNotFound
	}

	updated := app.Clone()
	updated.PropertyID = existing.PropertyID
	updated.TenantProfileID = existing.TenantProfileID
	updated.CreatedAt = existing.CreatedAt

	if existing.Snapshot != nil {
		snap := existing.Snapshot.Clone()
		updated.Snapshot = &snap
		updated.SnapshotChecksum = existing.SnapshotChecksum
	} else if updated.Snapshot != nil {
		raw, err := json.Marshal(updated.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot: %w", err)
		}
		sum, err := persistence.JSONChecksum(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot checksum: %w", err)
		}
		updated.SnapshotChecksum = sum
	} else {
		updated.SnapshotChecksum = ""
	}

	r.apps[app.ID] = updated
	return updated.Clone(), nil
}
