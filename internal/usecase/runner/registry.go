package runner

import (
	"context"
	"fmt"
	"sync"

	"canvasmith/internal/domain"
)

// Mode selects which action kinds an engine executes.
type Mode string

const (
	// ModeFull executes every action kind.
	ModeFull Mode = "full"
	// ModeDesign only materializes file actions; other kinds are skipped.
	ModeDesign Mode = "design"
)

// Call is one execution attempt handed to an executor.
type Call struct {
	// Action is a read-only copy; its Payload is nil. Use Content.
	Action domain.Action
	// Content is the payload as it was when the run was requested.
	Content   string
	Streaming bool
	// RunID identifies the engine to the command session.
	RunID string
	Abort domain.AbortSignal
	// RequestAbort cancels this action; for collaborators that interrupt
	// work on their own.
	RequestAbort func()
}

// Outcome is what a successful execution reports.
type Outcome struct {
	Output string
	// Deferred means the real work was handed to an external consumer.
	Deferred bool
}

// Executor performs one action kind.
type Executor interface {
	Execute(ctx context.Context, call Call) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, call Call) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, call Call) (Outcome, error) { return f(ctx, call) }

// Skip is the pass-through executor used for kinds an engine does not support.
var Skip Executor = ExecutorFunc(func(context.Context, Call) (Outcome, error) {
	return Outcome{}, nil
})

// Registry maps action kinds to executors.
type Registry struct {
	mu        sync.RWMutex
	mode      Mode
	executors map[domain.ActionKind]Executor
}

// NewRegistry creates an empty registry for mode. Every known kind resolves
// to Skip until an executor is registered for it.
func NewRegistry(mode Mode) *Registry {
	return &Registry{
		mode:      mode,
		executors: make(map[domain.ActionKind]Executor),
	}
}

// Mode returns the registry's engine mode.
func (r *Registry) Mode() Mode { return r.mode }

// Register sets the executor for kind, replacing any previous one.
func (r *Registry) Register(kind domain.ActionKind, e Executor) error {
	if !kind.Valid() {
		return domain.NewDomainError("Registry.Register", domain.ErrUnknownActionKind, fmt.Sprintf("kind %q", kind))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[kind] = e
	return nil
}

// Resolve returns the executor for kind. Known kinds without an executor
// resolve to Skip; unknown kinds are an error.
func (r *Registry) Resolve(kind domain.ActionKind) (Executor, error) {
	if !kind.Valid() {
		return nil, domain.NewDomainError("Registry.Resolve", domain.ErrUnknownActionKind, fmt.Sprintf("kind %q", kind))
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.executors[kind]; ok {
		return e, nil
	}
	return Skip, nil
}

// FullDeps are the collaborators of a full-capability engine.
type FullDeps struct {
	Files    domain.FileStore // nil leaves file actions as no-ops
	Sessions domain.SessionProvider
	Builder  domain.Builder // nil uses StubBuilder
	Notifier *Notifier
	// DatabaseSource labels database alerts.
	DatabaseSource string
	// DeploySource labels deploy alerts.
	DeploySource string
	ShellOptions []ShellOption
}

// NewFullRegistry wires every action kind.
func NewFullRegistry(deps FullDeps) *Registry {
	r := NewRegistry(ModeFull)
	files := NewFileExecutor(deps.Files, nil)
	builder := deps.Builder
	if builder == nil {
		builder = StubBuilder{}
	}
	r.executors[domain.ActionKindFile] = files
	if deps.Sessions != nil {
		r.executors[domain.ActionKindShell] = NewShellExecutor(deps.Sessions, deps.ShellOptions...)
		r.executors[domain.ActionKindStart] = NewShellExecutor(deps.Sessions, deps.ShellOptions...)
	}
	r.executors[domain.ActionKindBuild] = NewBuildExecutor(builder, deps.Notifier, deps.DeploySource)
	r.executors[domain.ActionKindDatabase] = NewDatabaseExecutor(files, deps.Notifier, deps.DatabaseSource)
	return r
}

// NewDesignRegistry wires only file actions, deriving canvas pages from HTML files.
func NewDesignRegistry(files domain.FileStore, pages *PageDeriver) *Registry {
	r := NewRegistry(ModeDesign)
	r.executors[domain.ActionKindFile] = NewFileExecutor(files, pages)
	return r
}
