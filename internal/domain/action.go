package domain

import (
	"strings"
	"sync"
	"time"
)

// ActionKind identifies which executor handles an action.
type ActionKind string

const (
	ActionKindFile     ActionKind = "file"
	ActionKindShell    ActionKind = "shell"
	ActionKindStart    ActionKind = "start"
	ActionKindBuild    ActionKind = "build"
	ActionKindDatabase ActionKind = "database-operation"
)

// ActionKinds lists every kind the engine understands, in a stable order.
var ActionKinds = []ActionKind{
	ActionKindFile,
	ActionKindShell,
	ActionKindStart,
	ActionKindBuild,
	ActionKindDatabase,
}

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// DatabaseOperation is the sub-operation of a database-operation action.
type DatabaseOperation string

const (
	DatabaseMigration DatabaseOperation = "migration"
	DatabaseQuery     DatabaseOperation = "query"
)

// Action describes one requested side effect, as recognized by the upstream parser.
type Action struct {
	ID   string     `json:"id"`
	Kind ActionKind `json:"kind"`
	// Target is the kind-dependent locator: a file path for file actions, the
	// migration file path for database migrations, empty otherwise.
	Target string `json:"target,omitempty"`
	// Operation is set for database-operation actions only.
	Operation DatabaseOperation `json:"operation,omitempty"`
	// Payload is owned by the parser while streaming. May be nil for
	// actions without content.
	Payload *Payload `json:"-"`
}

// Content returns the current payload text, or "" when there is none.
func (a *Action) Content() string {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.String()
}

// Payload is streamed action content with an explicit ownership handoff.
// The parser is the only writer until Seal is called; after that the
// payload is read-only and writes fail with ErrPayloadSealed.
type Payload struct {
	mu     sync.RWMutex
	buf    strings.Builder
	sealed bool
}

// NewPayload returns a payload holding initial.
func NewPayload(initial string) *Payload {
	p := &Payload{}
	p.buf.WriteString(initial)
	return p
}

// Append adds a streamed chunk.
func (p *Payload) Append(chunk string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return NewSubSystemError("action", "Payload.Append", ErrPayloadSealed, "")
	}
	p.buf.WriteString(chunk)
	return nil
}

// Set replaces the accumulated content.
func (p *Payload) Set(content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sealed {
		return NewSubSystemError("action", "Payload.Set", ErrPayloadSealed, "")
	}
	p.buf.Reset()
	p.buf.WriteString(content)
	return nil
}

// Seal marks streaming as complete. Sealing twice is a no-op.
func (p *Payload) Seal() {
	p.mu.Lock()
	p.sealed = true
	p.mu.Unlock()
}

// Sealed reports whether streaming is complete.
func (p *Payload) Sealed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sealed
}

// String returns a snapshot of the accumulated content.
func (p *Payload) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buf.String()
}

// Len returns the content length in bytes.
func (p *Payload) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.buf.Len()
}

// ActionStatus is the lifecycle state of an action.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionRunning  ActionStatus = "running"
	ActionComplete ActionStatus = "complete"
	ActionAborted  ActionStatus = "aborted"
	ActionFailed   ActionStatus = "failed"
)

// Terminal reports whether no transition may leave s.
func (s ActionStatus) Terminal() bool {
	return s == ActionComplete || s == ActionAborted || s == ActionFailed
}

// allowedTransitions is the forward-only lifecycle graph.
var allowedTransitions = map[ActionStatus][]ActionStatus{
	ActionPending: {ActionRunning, ActionAborted},
	ActionRunning: {ActionRunning, ActionComplete, ActionAborted, ActionFailed},
}

// CanTransition reports whether moving from s to next is permitted.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	for _, to := range allowedTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// ActionError describes why an action failed.
type ActionError struct {
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
	Output  string `json:"output,omitempty"`
}

// ActionState is the engine-owned lifecycle record of one action.
// Observers only ever receive copies.
type ActionState struct {
	ID       string       `json:"id"`
	Kind     ActionKind   `json:"kind"`
	Target   string       `json:"target,omitempty"`
	Status   ActionStatus `json:"status"`
	Executed bool         `json:"executed"`
	// Deferred is set when the executor handed the real work to an external
	// consumer (database queries awaiting confirmation).
	Deferred   bool         `json:"deferred,omitempty"`
	Error      *ActionError `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// AbortSignal is the read side of a cooperative cancellation token.
type AbortSignal interface {
	Aborted() bool
	Done() <-chan struct{}
}

// AbortToken is a one-shot cancellation token owned by a single action.
type AbortToken struct {
	once sync.Once
	done chan struct{}
}

// NewAbortToken returns an unfired token.
func NewAbortToken() *AbortToken {
	return &AbortToken{done: make(chan struct{})}
}

// Abort fires the token. Safe to call more than once.
func (t *AbortToken) Abort() {
	t.once.Do(func() { close(t.done) })
}

// Aborted reports whether Abort has been called.
func (t *AbortToken) Aborted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the token fires.
func (t *AbortToken) Done() <-chan struct{} { return t.done }
