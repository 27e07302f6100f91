package history

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// Upserter is the write side of a history store.
type Upserter interface {
	Upsert(ctx context.Context, sessionID string, st domain.ActionState) error
}

// Recorder persists action.updated events. Writes go through a circuit
// breaker; while it is open, transitions are dropped instead of queueing
// behind a failing database.
type Recorder struct {
	store   Upserter
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewRecorder wraps store with a circuit breaker configured by cfg.
// Zero-valued settings fall back to defaults.
func NewRecorder(store Upserter, cfg config.CircuitBreakerConfig, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := uint32(cfg.MaxFailures)
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "history",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// A cancelled caller says nothing about the database.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Recorder{store: store, breaker: cb, logger: logger}
}

// Attach subscribes the recorder to action updates on bus.
func (r *Recorder) Attach(bus domain.EventBus) func() {
	return bus.Subscribe(domain.EventActionUpdated, r.Handle)
}

// Handle is the event handler for action.updated.
func (r *Recorder) Handle(ctx context.Context, e domain.Event) {
	var st domain.ActionState
	if err := json.Unmarshal(e.Payload, &st); err != nil {
		r.logger.Warn("undecodable action update", "session_id", e.SessionID, "error", err)
		return
	}
	if err := r.Record(ctx, e.SessionID, st); err != nil {
		r.logger.Warn("history write failed",
			"session_id", e.SessionID,
			"action_id", st.ID,
			"error", err,
		)
	}
}

// Record writes one state through the breaker.
func (r *Recorder) Record(ctx context.Context, sessionID string, st domain.ActionState) error {
	_, err := r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.store.Upsert(ctx, sessionID, st)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		r.dropped.Add(1)
	}
	return err
}

// Dropped counts transitions rejected while the breaker was open.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// State reports the breaker state.
func (r *Recorder) State() gobreaker.State { return r.breaker.State() }
