package repo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local development.
// It enforces the same uniqueness and set-once rules as the Postgres store.
type MemoryRepository struct {
	mu    sync.RWMutex
	leads map[uuid.UUID]domain.Lead
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{leads: make(map[uuid.UUID]domain.Lead)}
}

func (r *MemoryRepository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.leads[lead.ID]; exists {
		return domain.Lead{}, persistence.ErrLeadConflict
	}
	if !lead.IsArchived() {
		if _, ok := r.findActive(lead.PropertyID, lead.Email); ok {
			return domain.Lead{}, persistence.ErrLeadConflict
		}
	}

	lead.Email = strings.TrimSpace(lead.Email)
	lead.UpdatedAt = lead.CreatedAt
	r.leads[lead.ID] = lead
	return cloneLead(lead), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return domain.Lead{}, persistence.ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *MemoryRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return r.Get(ctx, id)
}

func (r *MemoryRepository) FindActiveByEmail(ctx context.Context, propertyID uuid.UUID, email string) (domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.findActive(propertyID, email)
	if !ok {
		return domain.Lead{}, persistence.ErrLeadNotFound
	}
	return cloneLead(lead), nil
}

func (r *MemoryRepository) FindByApplication(ctx context.Context, applicationID uuid.UUID) (domain.Lead, error) {
	return r.newest(func(l domain.Lead) bool {
		return l.ApplicationID != nil && *l.ApplicationID == applicationID
	})
}

func (r *MemoryRepository) FindByToken(ctx context.Context, token string) (domain.Lead, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Lead{}, persistence.ErrLeadNotFound
	}
	return r.newest(func(l domain.Lead) bool {
		return l.Token == token && !l.IsArchived()
	})
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

	items := make([]domain.Lead, 0)
	for _, lead := range r.leads {
		if lead.PropertyID != params.PropertyID {
			continue
		}
		if params.Status != nil {
			if lead.Status != *params.Status {
				continue
			}
		} else if lead.IsArchived() {
			continue
		}
		items = append(items, cloneLead(lead))
	}
	sortNewestFirst(items)

	total := len(items)
	startIdx := (params.Page - 1) * params.PageSize
	if startIdx > total {
		startIdx = total
	}
	endIdx := startIdx + params.PageSize
	if endIdx > total {
		endIdx = total
	}

	return ListResult{Leads: items[startIdx:endIdx], TotalItems: total}, nil
}

func (r *MemoryRepository) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.leads[lead.ID]
	if !ok {
		return domain.Lead{}, persistence.ErrLeadNotFound
	}

	existing.Status = lead.Status
	if existing.UserID == nil {
		existing.UserID = lead.UserID
	}
	if existing.ApplicationID == nil {
		existing.ApplicationID = lead.ApplicationID
	}
	existing.ViewedAt = lead.ViewedAt
	existing.ArchivedAt = lead.ArchivedAt
	existing.Notes = lead.Notes
	existing.FirstName = strings.TrimSpace(lead.FirstName)
	existing.LastName = strings.TrimSpace(lead.LastName)
	existing.Phone = strings.TrimSpace(lead.Phone)
	existing.UpdatedAt = lead.UpdatedAt.UTC()

	r.leads[lead.ID] = existing
	return cloneLead(existing), nil
}

func (r *MemoryRepository) findActive(propertyID uuid.UUID, email string) (domain.Lead, bool) {
	want := strings.ToLower(strings.TrimSpace(email))
	for _, lead := range r.leads {
		if lead.PropertyID == propertyID && !lead.IsArchived() && strings.ToLower(lead.Email) == want {
			return lead, true
		}
	}
	return domain.Lead{}, false
}

func (r *MemoryRepository) newest(match func(domain.Lead) bool) (domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Lead, 0, 1)
	for _, lead := range r.leads {
		if match(lead) {
			matches = append(matches, lead)
		}
	}
	if len(matches) == 0 {
		return domain.Lead{}, persistence.ErrLeadNotFound
	}
	sortNewestFirst(matches)
	return cloneLead(matches[0]), nil
}

func sortNewestFirst(items []domain.Lead) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func cloneLead(l domain.Lead) domain.Lead {
	l.UserID = cloneUUID(l.UserID)
	l.ApplicationID = cloneUUID(l.ApplicationID)
	l.InviteTokenID = cloneUUID(l.InviteTokenID)
	if l.InvitedAt != nil {
		t := *l.InvitedAt
		l.InvitedAt = &t
	}
	if l.ViewedAt != nil {
		t := *l.ViewedAt
		l.ViewedAt = &t
	}
	if l.ArchivedAt != nil {
		t := *l.ArchivedAt
		l.ArchivedAt = &t
	}
	return l
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
