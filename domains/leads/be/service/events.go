package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	applicationsdomain "github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/domain"
	"github.com/zenGate-Global/rentflow/domains/leads/be/repo"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
	"github.com/zenGate-Global/rentflow/platform/go/persistence"
)

const applicationEventHandlerName = "leads.application_events"

// ApplicationEventHandler keeps lead funnels in step with their applications. Only draft
// creation and submission move a lead; later application outcomes leave it alone.
type ApplicationEventHandler struct {
	repo   repo.Repository
	logger *zap.Logger
}

func NewApplicationEventHandler(r repo.Repository, logger *zap.Logger) *ApplicationEventHandler {
	if r == nil {
		panic("leads repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationEventHandler{repo: r, logger: logger}
}

// Register subscribes the handler to the application events it consumes.
func (h *ApplicationEventHandler) Register(bus *events.Bus) {
	bus.Subscribe(applicationsdomain.EventDraftStarted, applicationEventHandlerName, h.Handle)
	bus.Subscribe(applicationsdomain.EventSubmitted, applicationEventHandlerName, h.Handle)
}

// Handle runs inside the publisher's transaction. A missing lead is not an error.
func (h *ApplicationEventHandler) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case applicationsdomain.DraftStarted:
		return h.onDraftStarted(ctx, e)
	case applicationsdomain.Submitted:
		return h.onSubmitted(ctx, e)
	default:
		return nil
	}
}

func (h *ApplicationEventHandler) onDraftStarted(ctx context.Context, e applicationsdomain.DraftStarted) error {
	if e.LeadID == nil {
		h.logger.Debug("draft started without a lead", zap.String("application_id", e.ApplicationID.String()))
		return nil
	}

	lead, err := h.repo.GetForUpdate(ctx, *e.LeadID)
	if errors.Is(err, persistence.ErrLeadNotFound) {
		h.logger.Warn("lead for draft not found",
			zap.String("lead_id", e.LeadID.String()),
			zap.String("application_id", e.ApplicationID.String()),
		)
		return nil
	}
	if err != nil {
		return err
	}

	applied := lead.MarkAsDrafting(e.OccurredAt, e.ApplicationID)
	return h.save(ctx, lead, applied, domain.StatusDrafting)
}

func (h *ApplicationEventHandler) onSubmitted(ctx context.Context, e applicationsdomain.Submitted) error {
	lead, err := h.repo.FindByApplication(ctx, e.ApplicationID)
	if errors.Is(err, persistence.ErrLeadNotFound) {
		h.logger.Debug("no lead linked to submitted application", zap.String("application_id", e.ApplicationID.String()))
		return nil
	}
	if err != nil {
		return err
	}

	applied := lead.MarkAsApplied(e.OccurredAt)
	return h.save(ctx, lead, applied, domain.StatusApplied)
}

func (h *ApplicationEventHandler) save(ctx context.Context, lead domain.Lead, applied bool, target domain.Status) error {
	metrics.ObserveLeadTransition(string(target), applied)
	if !applied {
		h.logger.Debug("lead left unchanged",
			zap.String("lead_id", lead.ID.String()),
			zap.String("status", string(lead.Status)),
			zap.String("target", string(target)),
		)
		return nil
	}

	if _, err := h.repo.Update(ctx, lead); err != nil {
		return err
	}
	h.logger.Info("lead funnel advanced",
		zap.String("lead_id", lead.ID.String()),
		zap.String("status", string(target)),
	)
	return nil
}
