package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/invites/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// Repository defines the persistence operations required by the invites service.
// Implementations report failures with the persistence.ErrInviteToken* sentinels.
type Repository interface {
	Create(ctx context.Context, token domain.Token) (domain.Token, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Token, error)
	GetByToken(ctx context.Context, token string) (domain.Token, error)
	GetDefault(ctx context.Context, propertyID uuid.UUID) (domain.Token, error)
	List(ctx context.Context, propertyID uuid.UUID) ([]domain.Token, error)
	SetLimits(ctx context.Context, id uuid.UUID, maxUses *int, expiresAt *time.Time, now time.Time) (domain.Token, error)
	// IncrementUsage must check and count in one atomic step.
	IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (domain.Token, error)
}

type postgresRepository struct {
	store *persistence.InviteTokenStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.InviteTokenStore) Repository {
	if store == nil {
		panic("invite token store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Create(ctx context.Context, token domain.Token) (domain.Token, error) {
	record, err := r.store.CreateInviteToken(ctx, persistence.CreateInviteTokenParams{
		ID:         token.ID,
		PropertyID: token.PropertyID,
		Token:      token.Token,
		Type:       string(token.Type),
		Email:      token.Email,
		MaxUses:    token.MaxUses,
		ExpiresAt:  token.ExpiresAt,
		Name:       token.Name,
		Now:        token.CreatedAt,
	})
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Token, error) {
	record, err := r.store.GetInviteToken(ctx, id)
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func (r *postgresRepository) GetByToken(ctx context.Context, token string) (domain.Token, error) {
	record, err := r.store.GetInviteTokenByToken(ctx, token)
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func (r *postgresRepository) GetDefault(ctx context.Context, propertyID uuid.UUID) (domain.Token, error) {
	record, err := r.store.GetDefaultInviteToken(ctx, propertyID)
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func (r *postgresRepository) List(ctx context.Context, propertyID uuid.UUID) ([]domain.Token, error) {
	records, err := r.store.ListInviteTokens(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Token, 0, len(records))
	for _, rec := range records {
		tok, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, nil
}

func (r *postgresRepository) SetLimits(ctx context.Context, id uuid.UUID, maxUses *int, expiresAt *time.Time, now time.Time) (domain.Token, error) {
	record, err := r.store.SetInviteTokenLimits(ctx, id, maxUses, expiresAt, now)
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func (r *postgresRepository) IncrementUsage(ctx context.Context, id uuid.UUID, now time.Time) (domain.Token, error) {
	record, err := r.store.IncrementInviteTokenUsage(ctx, id, now)
	if err != nil {
		return domain.Token{}, err
	}
	return fromRecord(record)
}

func fromRecord(record persistence.InviteTokenRecord) (domain.Token, error) {
	typ, err := domain.ParseType(record.Type)
	if err != nil {
		return domain.Token{}, err
	}
	return domain.Token{
		ID:         record.ID,
		PropertyID: record.PropertyID,
		Token:      record.Token,
		Type:       typ,
		Email:      record.Email,
		MaxUses:    record.MaxUses,
		UsedCount:  record.UsedCount,
		ExpiresAt:  record.ExpiresAt,
		Name:       record.Name,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}, nil
}
