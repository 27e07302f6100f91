package runner

import (
	"sync"
	"time"

	"canvasmith/internal/domain"
)

// StateStore is the single source of truth for action lifecycle state.
// Readers get copies; only the engine writes. Subscribers see changes in
// the order they were applied.
type StateStore struct {
	// notifyMu is held from a state change until its subscribers return.
	notifyMu sync.Mutex

	mu     sync.RWMutex
	states map[string]*domain.ActionState
	order  []string
	subs   []subscriber
	nextID uint64
	now    func() time.Time
}

type subscriber struct {
	id uint64
	fn func(domain.ActionState)
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]*domain.ActionState),
		now:    time.Now,
	}
}

// create adds a pending state for a. Returns false if the ID already exists.
func (s *StateStore) create(a *domain.Action) (domain.ActionState, bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if st, ok := s.states[a.ID]; ok {
		cp := *st
		s.mu.Unlock()
		return cp, false
	}
	now := s.now()
	st := &domain.ActionState{
		ID:        a.ID,
		Kind:      a.Kind,
		Target:    a.Target,
		Status:    domain.ActionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.states[a.ID] = st
	s.order = append(s.order, a.ID)
	cp := *st
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, cp)
	return cp, true
}

// admit decides whether a run request may proceed. A request is refused when
// the action is terminal or its final run was already requested. When final
// is true the executed flag is claimed atomically. Claiming is not a status
// change, so subscribers first see the flag on the next transition.
func (s *StateStore) admit(id string, final bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok || st.Status.Terminal() || st.Executed {
		return false
	}
	if final {
		st.Executed = true
	}
	return true
}

type transitionOpt func(*domain.ActionState)

func withError(e *domain.ActionError) transitionOpt {
	return func(st *domain.ActionState) { st.Error = e }
}

func withDeferred() transitionOpt {
	return func(st *domain.ActionState) { st.Deferred = true }
}

// transition moves id to the given status if the lifecycle graph allows it.
// Disallowed transitions are ignored and reported as false.
func (s *StateStore) transition(id string, to domain.ActionStatus, opts ...transitionOpt) (domain.ActionState, bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	st, ok := s.states[id]
	if !ok || !st.Status.CanTransition(to) {
		var cp domain.ActionState
		if ok {
			cp = *st
		}
		s.mu.Unlock()
		return cp, false
	}

	now := s.now()
	if to == domain.ActionRunning && st.StartedAt == nil {
		st.StartedAt = &now
	}
	if to.Terminal() {
		st.FinishedAt = &now
	}
	st.Status = to
	st.UpdatedAt = now
	for _, opt := range opts {
		opt(st)
	}
	cp := *st
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, cp)
	return cp, true
}

// Get returns a copy of the state for id.
func (s *StateStore) Get(id string) (domain.ActionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return domain.ActionState{}, false
	}
	return *st, true
}

// Snapshot returns copies of all states in registration order.
func (s *StateStore) Snapshot() []domain.ActionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActionState, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.states[id])
	}
	return out
}

// Subscribe registers fn for every accepted state change. fn is called
// synchronously on the writer's goroutine, one change at a time. It must
// not block for long and must not trigger transitions itself.
// Returns an unsubscribe function.
func (s *StateStore) Subscribe(fn func(domain.ActionState)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// subscribers returns a copy of the subscriber list. Caller must hold mu.
func (s *StateStore) subscribers() []subscriber {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]subscriber, len(s.subs))
	copy(out, s.subs)
	return out
}

func notify(subs []subscriber, st domain.ActionState) {
	for _, sub := range subs {
		sub.fn(st)
	}
}
