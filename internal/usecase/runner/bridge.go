package runner

import (
	"context"

	"canvasmith/internal/domain"
)

// BusNotifier returns a Notifier that publishes every alert on bus,
// tagged with sessionID.
func BusNotifier(bus domain.EventBus, sessionID string) *Notifier {
	publish := func(t domain.EventType, payload any) {
		bus.Publish(context.Background(), domain.NewEvent(t, sessionID, payload))
	}
	return &Notifier{
		OnAlert:         func(a domain.Alert) { publish(domain.EventAlert, a) },
		OnDatabaseAlert: func(a domain.DatabaseAlert) { publish(domain.EventDatabaseAlert, a) },
		OnDeployAlert:   func(a domain.DeployAlert) { publish(domain.EventDeployAlert, a) },
	}
}

// PublishStates forwards every state change of r to bus as action.updated.
// It returns the unsubscribe function.
func PublishStates(bus domain.EventBus, r *Runner) func() {
	sessionID := r.SessionID()
	return r.Subscribe(func(st domain.ActionState) {
		bus.Publish(context.Background(), domain.NewEvent(domain.EventActionUpdated, sessionID, st))
	})
}

// PublishingSink hands pages to an optional inner sink and announces each
// accepted page on the bus.
type PublishingSink struct {
	inner domain.PageSink
	bus   domain.EventBus
}

// NewPublishingSink wraps inner, which may be nil.
func NewPublishingSink(inner domain.PageSink, bus domain.EventBus) *PublishingSink {
	return &PublishingSink{inner: inner, bus: bus}
}

func (s *PublishingSink) UpsertPage(ctx context.Context, sessionID string, page domain.Page) error {
	if s.inner != nil {
		if err := s.inner.UpsertPage(ctx, sessionID, page); err != nil {
			return err
		}
	}
	s.bus.Publish(ctx, domain.NewEvent(domain.EventPageUpserted, sessionID, page))
	return nil
}
