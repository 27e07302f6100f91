package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/tracer"
)

// Option configures a Runner.
type Option func(*Runner)

// WithStore injects the state store. By default each runner owns a new one.
func WithStore(s *StateStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithRunID sets the identifier the runner passes to its command session.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// WithDeploySource labels deploy alerts reported through ReportDeploy.
func WithDeploySource(source string) Option {
	return func(r *Runner) { r.deploySource = source }
}

type entry struct {
	action *domain.Action
	abort  *domain.AbortToken
}

// Runner is the action execution engine for one chat session. Run requests
// execute one at a time in the order they were made.
type Runner struct {
	sessionID    string
	runID        string
	deploySource string
	registry     *Registry
	notifier     *Notifier
	store        *StateStore
	chain        *chain
	logger       *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a runner for sessionID executing through registry.
func New(sessionID string, registry *Registry, notifier *Notifier, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		sessionID: sessionID,
		registry:  registry,
		notifier:  notifier,
		chain:     newChain(),
		entries:   make(map[string]*entry),
	}
	for _, o := range opts {
		o(r)
	}
	if r.store == nil {
		r.store = NewStateStore()
	}
	if r.runID == "" {
		r.runID = ulid.Make().String()
	}
	r.logger = logger.With("session_id", sessionID, "mode", string(registry.Mode()))
	return r
}

// SessionID returns the session this runner belongs to.
func (r *Runner) SessionID() string { return r.sessionID }

// Register records a newly recognized action as pending. Registering an
// ID that is already known is a no-op and returns its current state.
func (r *Runner) Register(a *domain.Action) (domain.ActionState, error) {
	if a == nil || a.ID == "" {
		return domain.ActionState{}, domain.NewSubSystemError("action", "Runner.Register", domain.ErrInvalidInput, "action id is required")
	}
	if !a.Kind.Valid() {
		return domain.ActionState{}, domain.NewSubSystemError("action", "Runner.Register", domain.ErrUnknownActionKind, fmt.Sprintf("kind %q", a.Kind))
	}

	r.mu.Lock()
	if _, ok := r.entries[a.ID]; ok {
		r.mu.Unlock()
		st, _ := r.store.Get(a.ID)
		return st, nil
	}
	r.entries[a.ID] = &entry{action: a, abort: domain.NewAbortToken()}
	r.mu.Unlock()

	st, _ := r.store.create(a)
	r.logger.Debug("action registered", "action_id", a.ID, "kind", string(a.Kind))
	return st, nil
}

// Run requests an execution of id and waits for that attempt to settle.
// streaming is true while the action's content may still grow. An action
// failure is recorded in its state and does not produce an error here.
func (r *Runner) Run(ctx context.Context, id string, streaming bool) error {
	done := r.RunAsync(ctx, id, streaming)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAsync takes a place in the execution queue immediately and settles
// in the background. The returned channel yields exactly one value.
//
// Streaming requests for kinds other than file are ignored. Requests for
// terminal actions, or after the final request was made, are no-ops. The
// final request seals the payload. The content handed to the executor is
// the payload as it is at the time of the request.
func (r *Runner) RunAsync(ctx context.Context, id string, streaming bool) <-chan error {
	result := make(chan error, 1)

	e := r.entry(id)
	if e == nil {
		result <- domain.NewSubSystemError("action", "Runner.Run", domain.ErrNotFound, id)
		return result
	}
	if streaming && e.action.Kind != domain.ActionKindFile {
		result <- nil
		return result
	}
	if !r.store.admit(id, !streaming) {
		r.logger.Debug("run request ignored", "action_id", id, "streaming", streaming)
		result <- nil
		return result
	}
	if !streaming && e.action.Payload != nil {
		e.action.Payload.Seal()
	}
	content := e.action.Content()

	prev, release := r.chain.enqueue()
	go func() {
		defer release()
		<-prev
		if err := ctx.Err(); err != nil {
			if !streaming {
				r.abort(e)
			}
			result <- err
			return
		}
		result <- r.execute(ctx, e, content, streaming)
	}()
	return result
}

// Abort cancels id. Pending and running actions become aborted at once;
// terminal actions are left as they are.
func (r *Runner) Abort(id string) error {
	e := r.entry(id)
	if e == nil {
		return domain.NewSubSystemError("action", "Runner.Abort", domain.ErrNotFound, id)
	}
	r.abort(e)
	return nil
}

func (r *Runner) abort(e *entry) {
	e.abort.Abort()
	if _, ok := r.store.transition(e.action.ID, domain.ActionAborted); ok {
		r.logger.Debug("action aborted", "action_id", e.action.ID, "kind", string(e.action.Kind))
	}
}

// State returns a copy of id's current state.
func (r *Runner) State(id string) (domain.ActionState, bool) { return r.store.Get(id) }

// Snapshot returns copies of every action state in registration order.
func (r *Runner) Snapshot() []domain.ActionState { return r.store.Snapshot() }

// Subscribe registers fn for every state change. See StateStore.Subscribe.
func (r *Runner) Subscribe(fn func(domain.ActionState)) func() { return r.store.Subscribe(fn) }

// QueueDepth returns the number of run requests queued or executing.
func (r *Runner) QueueDepth() int { return r.chain.Depth() }

// ReportDeploy projects a stage update of the external deploy pipeline
// into a deploy alert and emits it.
func (r *Runner) ReportDeploy(stage domain.DeployStage, status domain.StageStatus, d DeployDetails) domain.DeployAlert {
	if d.Source == "" {
		d.Source = r.deploySource
	}
	a := ProjectDeploy(stage, status, d)
	r.notifier.deployAlert(a)
	return a
}

func (r *Runner) entry(id string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// execute runs one queued attempt. Only invariant violations are returned;
// ordinary failures end up in the action's state.
func (r *Runner) execute(ctx context.Context, e *entry, content string, streaming bool) error {
	a := e.action
	log := r.logger.With("action_id", a.ID, "kind", string(a.Kind))

	if e.abort.Aborted() {
		r.store.transition(a.ID, domain.ActionAborted)
		log.Debug("skipping aborted action")
		return nil
	}

	ex, err := r.registry.Resolve(a.Kind)
	if err != nil {
		r.store.transition(a.ID, domain.ActionRunning)
		r.store.transition(a.ID, domain.ActionFailed, withError(&domain.ActionError{Message: err.Error()}))
		log.Error("no executor for action", "error", err)
		return err
	}

	if _, ok := r.store.transition(a.ID, domain.ActionRunning); !ok {
		return nil
	}

	ctx = domain.ContextWithSessionID(ctx, r.sessionID)
	ctx = domain.ContextWithActionID(ctx, a.ID)
	ctx, span := tracer.StartActionSpan(ctx, r.sessionID, a.ID, string(a.Kind), streaming)
	span.SetAttributes(tracer.IntAttr("action.content_length", len(content)))
	defer span.End()

	view := *a
	view.Payload = nil
	call := Call{
		Action:       view,
		Content:      content,
		Streaming:    streaming,
		RunID:        r.runID,
		Abort:        e.abort,
		RequestAbort: func() { r.abort(e) },
	}
	out, err := invoke(ctx, ex, call)

	switch {
	case e.abort.Aborted():
		r.store.transition(a.ID, domain.ActionAborted)
		log.Debug("action aborted during execution")
	case err != nil:
		r.store.transition(a.ID, domain.ActionFailed, withError(actionError(err)))
		tracer.RecordError(span, err)
		log.Warn("action failed", "error", err)
		r.failureAlert(a, err)
	case streaming:
		r.store.transition(a.ID, domain.ActionRunning)
		tracer.SetOK(span)
	default:
		var opts []transitionOpt
		if out.Deferred {
			opts = append(opts, withDeferred())
		}
		r.store.transition(a.ID, domain.ActionComplete, opts...)
		tracer.SetOK(span)
		log.Debug("action complete", "deferred", out.Deferred)
	}
	return nil
}

func invoke(ctx context.Context, ex Executor, call Call) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return ex.Execute(ctx, call)
}

func actionError(err error) *domain.ActionError {
	ae := &domain.ActionError{Message: err.Error()}
	var ce *domain.CommandError
	if errors.As(err, &ce) {
		ae.Title = ce.Title
		ae.Output = ce.Output
	}
	return ae
}

func (r *Runner) failureAlert(a *domain.Action, err error) {
	switch a.Kind {
	case domain.ActionKindShell, domain.ActionKindStart:
		alert := domain.Alert{
			Level:       domain.AlertError,
			Title:       "Command Failed",
			Description: err.Error(),
			Source:      "terminal",
			ActionID:    a.ID,
		}
		var ce *domain.CommandError
		if errors.As(err, &ce) {
			alert.Title = ce.Title
			alert.Description = ce.Details
			alert.Content = ce.Output
		}
		r.notifier.alert(alert)
	case domain.ActionKindFile:
		r.notifier.alert(domain.Alert{
			Level:       domain.AlertError,
			Title:       "File Write Failed",
			Description: err.Error(),
			Content:     a.Target,
			Source:      "preview",
			ActionID:    a.ID,
		})
	}
}
