package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

// ListParams filters a property's leads. A nil Status lists live leads only.
type ListParams struct {
	PropertyID uuid.UUID
	Status     *domain.Status
	Page       int
	PageSize   int
}

type ListResult struct {
	Leads      []domain.Lead
	TotalItems int
}

// Repository defines the persistence operations required by the leads service. Lookups that
// feed a state change lock the row for the surrounding transaction.
type Repository interface {
	Create(ctx context.Context, lead domain.Lead) (domain.Lead, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindActiveByEmail(ctx context.Context, propertyID uuid.UUID, email string) (domain.Lead, error)
	FindByApplication(ctx context.Context, applicationID uuid.UUID) (domain.Lead, error)
	FindByToken(ctx context.Context, token string) (domain.Lead, error)
	List(ctx context.Context, params ListParams) (ListResult, error)
	Update(ctx context.Context, lead domain.Lead) (domain.Lead, error)
}

type postgresRepository struct {
	store *persistence.LeadStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(store *persistence.LeadStore) Repository {
	if store == nil {
		panic("lead store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) Create(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	return fromRecord(r.store.CreateLead(ctx, toRecord(lead)))
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return fromRecord(r.store.GetLead(ctx, id))
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	return fromRecord(r.store.GetLeadForUpdate(ctx, id))
}

func (r *postgresRepository) FindActiveByEmail(ctx context.Context, propertyID uuid.UUID, email string) (domain.Lead, error) {
	return fromRecord(r.store.FindActiveLeadByEmail(ctx, propertyID, email))
}

func (r *postgresRepository) FindByApplication(ctx context.Context, applicationID uuid.UUID) (domain.Lead, error) {
	return fromRecord(r.store.FindLeadByApplication(ctx, applicationID))
}

func (r *postgresRepository) FindByToken(ctx context.Context, token string) (domain.Lead, error) {
	return fromRecord(r.store.FindLeadByToken(ctx, token))
}

func (r *postgresRepository) List(ctx context.Context, params ListParams) (ListResult, error) {
	storeParams := persistence.ListLeadsParams{
		PropertyID: params.PropertyID,
		Page:       params.Page,
		PageSize:   params.PageSize,
	}
	if params.Status != nil {
		status := string(*params.Status)
		storeParams.Status = &status
	}

	result, err := r.store.ListLeads(ctx, storeParams)
	if err != nil {
		return ListResult{}, err
	}

	leads := make([]domain.Lead, 0, len(result.Leads))
	for _, record := range result.Leads {
		lead, err := fromRecord(record, nil)
		if err != nil {
			return ListResult{}, err
		}
		leads = append(leads, lead)
	}
	return ListResult{Leads: leads, TotalItems: result.TotalItems}, nil
}

func (r *postgresRepository) Update(ctx context.Context, lead domain.Lead) (domain.Lead, error) {
	return fromRecord(r.store.UpdateLead(ctx, toRecord(lead)))
}

func toRecord(lead domain.Lead) persistence.LeadRecord {
	return persistence.LeadRecord{
		ID:            lead.ID,
		PropertyID:    lead.PropertyID,
		Email:         lead.Email,
		FirstName:     lead.FirstName,
		LastName:      lead.LastName,
		Phone:         lead.Phone,
		Token:         lead.Token,
		Source:        string(lead.Source),
		Status:        string(lead.Status),
		UserID:        lead.UserID,
		ApplicationID: lead.ApplicationID,
		InviteTokenID: lead.InviteTokenID,
		InvitedAt:     lead.InvitedAt,
		ViewedAt:      lead.ViewedAt,
		ArchivedAt:    lead.ArchivedAt,
		Notes:         lead.Notes,
		CreatedAt:     lead.CreatedAt,
		UpdatedAt:     lead.UpdatedAt,
	}
}

// fromRecord takes the store's (record, error) pair directly so call sites stay one line.
func fromRecord(record persistence.LeadRecord, err error) (domain.Lead, error) {
	if err != nil {
		return domain.Lead{}, err
	}
	source, err := domain.ParseSource(record.Source)
	if err != nil {
		return domain.Lead{}, err
	}
	status, err := domain.ParseStatus(record.Status)
	if err != nil {
		return domain.Lead{}, err
	}
	return domain.Lead{
		ID:            record.ID,
		PropertyID:    record.PropertyID,
		Email:         record.Email,
		FirstName:     record.FirstName,
		LastName:      record.LastName,
		Phone:         record.Phone,
		Token:         record.Token,
		Source:        source,
		Status:        status,
		UserID:        record.UserID,
		ApplicationID: record.ApplicationID,
		InviteTokenID: record.InviteTokenID,
		InvitedAt:     record.InvitedAt,
		ViewedAt:      record.ViewedAt,
		ArchivedAt:    record.ArchivedAt,
		Notes:         record.Notes,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}, nil
}
