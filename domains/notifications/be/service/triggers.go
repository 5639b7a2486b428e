// Package service turns application status changes into notification triggers. Outbound
// delivery is not implemented; each trigger is logged and counted.
package service

import (
	"context"

	"go.uber.org/zap"

	applicationsdomain "github.com/zenGate-Global/rentflow/domains/applications/be/domain"
	"github.com/zenGate-Global/rentflow/platform/go/events"
	"github.com/zenGate-Global/rentflow/platform/go/metrics"
)

const handlerName = "notifications.status_triggers"

// Audience is who a trigger is addressed to.
type Audience string

const (
	AudienceApplicant Audience = "applicant"
	AudienceManager   Audience = "manager"
)

// Trigger is one notification that a status change would send.
type Trigger struct {
	Template      string
	Audience      Audience
	ApplicationID string
	Status        applicationsdomain.Status
}

var templates = map[applicationsdomain.Status]struct {
	template string
	audience Audience
}{
	applicationsdomain.StatusSubmitted:      {"application_received", AudienceManager},
	applicationsdomain.StatusUnderReview:    {"application_under_review", AudienceApplicant},
	applicationsdomain.StatusVisitScheduled: {"visit_scheduled", AudienceApplicant},
	applicationsdomain.StatusApproved:       {"application_approved", AudienceApplicant},
	applicationsdomain.StatusRejected:       {"application_rejected", AudienceApplicant},
	applicationsdomain.StatusWithdrawn:      {"application_withdrawn", AudienceManager},
	applicationsdomain.StatusLeased:         {"lease_confirmed", AudienceApplicant},
}

// StatusTriggers subscribes to application status changes.
type StatusTriggers struct {
	logger *zap.Logger
}

func NewStatusTriggers(logger *zap.Logger) *StatusTriggers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusTriggers{logger: logger}
}

func (s *StatusTriggers) Register(bus *events.Bus) {
	bus.Subscribe(applicationsdomain.EventStatusChanged, handlerName, s.Handle)
}

// Resolve reports the trigger for a status change, if that status notifies anyone.
func Resolve(e applicationsdomain.StatusChanged) (Trigger, bool) {
	tpl, ok := templates[e.To]
	if !ok {
		return Trigger{}, false
	}
	return Trigger{
		Template:      tpl.template,
		Audience:      tpl.audience,
		ApplicationID: e.ApplicationID.String(),
		Status:        e.To,
	}, true
}

// Handle never fails: a notification problem must not roll back a transition.
func (s *StatusTriggers) Handle(_ context.Context, event events.Event) error {
	e, ok := event.(applicationsdomain.StatusChanged)
	if !ok {
		return nil
	}

	trigger, ok := Resolve(e)
	if !ok {
		s.logger.Debug("status change has no notification",
			zap.String("application_id", e.ApplicationID.String()),
			zap.String("status", string(e.To)),
		)
		return nil
	}

	metrics.ObserveNotification(string(e.To))
	s.logger.Info("notification triggered",
		zap.String("template", trigger.Template),
		zap.String("audience", string(trigger.Audience)),
		zap.String("application_id", trigger.ApplicationID),
		zap.String("property_id", e.PropertyID.String()),
		zap.String("from", string(e.From)),
		zap.String("to", string(e.To)),
	)
	return nil
}
