package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// MemoryRepository is a simple in-memory implementation suitable for tests and local development.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]domain.Token
	byToken map[string]uuid.UUID
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[uuid.UUID]domain.Token), byToken: make(map[string]uuid.UUID)}
}

func (r *MemoryRepository) Create(ctx context.Context, token domain.Token) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byToken[token.Token]; exists {
		return domain.Token{}, persistence.ErrInviteTokenConflict
	}
	if token.IsDefault() {
		for _, existing := range r.byID {
			if existing.PropertyID == token.PropertyID && existing.IsDefault() {
				return domain.Token{}, persistence.ErrDefaultInviteTokenExists
			}
		}
	}

	token.UsedCount = 0
	token.UpdatedAt = token.CreatedAt
	r.byID[token.ID] = cloneToken(token)
	r.byToken[token.Token] = token.ID
	return cloneToken(token), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return domain.Token{}, persistence.ErrInviteTokenNotFound
	}
	return cloneToken(t), nil
}

func (r *MemoryRepository) GetByToken(ctx context.Context, token string) (domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return domain.Token{}, persistence.ErrInviteTokenNotFound
	}
	return cloneToken(r.byID[id]), nil
}

func (r *MemoryRepository) GetDefault(ctx context.Context, propertyID uuid.UUID) (domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.PropertyID == propertyID && t.IsDefault() {
			return cloneToken(t), nil
		}
	}
	return domain.Token{}, persistence.ErrInviteTokenNotFound
}

func (r *MemoryRepository) List(ctx context.Context, propertyID uuid.UUID) ([]domain.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.Token, 0)
	for _, t := range r.byID {
		if t.PropertyID == propertyID {
			items = append(items, cloneToken(t))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (r *MemoryRepository) SetLimits(ctx context.Context, id uuid.UUID, maxUses *int, expiresAt *time.Time, now time.Time) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return domain.Token{}, persistence.ErrInviteTokenNotFound
	}
	if maxUses != nil && t.UsedCount > *maxUses {
		return domain.Token{}, persistence.ErrInviteTokenLimitBelowUsage
	}

	t.MaxUses = cloneInt(maxUses)
	t.ExpiresAt = cloneTime(expiresAt)
	t.UpdatedAt = now.UTC()
	r.byID[id] = t
	return cloneToken(t), nil
}

func (r *MemoryRepository) IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return domain.Token{}, persistence.ErrInviteTokenUnavailable
	}
	if t.IsExpired(now) || !t.IncrementUsage(now) {
		return domain.Token{}, persistence.ErrInviteTokenUnavailable
	}
	r.byID[id] = t
	return cloneToken(t), nil
}

func cloneToken(t domain.Token) domain.Token {
	if t.Email != nil {
		e := *t.Email
		t.Email = &e
	}
	t.MaxUses = cloneInt(t.MaxUses)
	t.ExpiresAt = cloneTime(t.ExpiresAt)
	return t
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
