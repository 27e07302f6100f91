package history

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasmith/internal/domain"
	"canvasmith/internal/infra/config"
	"canvasmith/internal/infra/logger"
	"canvasmith/internal/usecase/eventbus"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func TestSQLiteStore_UpsertKeepsLatest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	st := domain.ActionState{
		ID:        "a1",
		Kind:      domain.ActionKindShell,
		Target:    "",
		Status:    domain.ActionPending,
		CreatedAt: ts(0),
		UpdatedAt: ts(0),
	}
	require.NoError(t, s.Upsert(ctx, "chat-1", st))

	started, finished := ts(1), ts(2)
	st.Status = domain.ActionFailed
	st.Executed = true
	st.StartedAt = &started
	st.FinishedAt = &finished
	st.UpdatedAt = finished
	st.Error = &domain.ActionError{Title: "Command Not Found", Message: "boom", Output: "sh: nope: not found"}
	require.NoError(t, s.Upsert(ctx, "chat-1", st))

	got, err := s.List(ctx, Filter{SessionID: "chat-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	if diff := cmp.Diff(Record{SessionID: "chat-1", ActionState: st}, got[0]); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	put := func(session, id string, status domain.ActionStatus, sec int) {
		require.NoError(t, s.Upsert(ctx, session, domain.ActionState{
			ID: id, Kind: domain.ActionKindFile, Status: status, CreatedAt: ts(sec), UpdatedAt: ts(sec),
		}))
	}
	put("s1", "a", domain.ActionComplete, 1)
	put("s1", "b", domain.ActionFailed, 2)
	put("s2", "a", domain.ActionComplete, 3)

	all, err := s.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s2", all[0].SessionID, "most recently updated first")

	failed, err := s.List(ctx, Filter{Status: domain.ActionFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ID)

	limited, err := s.List(ctx, Filter{SessionID: "s1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)

	assert.ErrorIs(t, s.Upsert(ctx, "", domain.ActionState{ID: "x"}), domain.ErrInvalidInput)
}

type flakyStore struct {
	mu    sync.Mutex
	fail  bool
	calls int
	saved []string
}

func (f *flakyStore) Upsert(_ context.Context, sessionID string, st domain.ActionState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("disk full")
	}
	f.saved = append(f.saved, sessionID+"/"+st.ID+"/"+string(st.Status))
	return nil
}

func TestRecorder_BreakerOpensAfterFailures(t *testing.T) {
	store := &flakyStore{fail: true}
	r := NewRecorder(store, config.CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Hour}, logger.Discard())
	ctx := context.Background()
	st := domain.ActionState{ID: "a", Status: domain.ActionRunning}

	assert.Error(t, r.Record(ctx, "s", st))
	assert.Error(t, r.Record(ctx, "s", st))
	assert.Equal(t, gobreaker.StateOpen, r.State())

	err := r.Record(ctx, "s", st)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, store.calls, "open breaker must not reach the store")
	assert.Equal(t, int64(1), r.Dropped())
}

func TestRecorder_AttachPersistsBusUpdates(t *testing.T) {
	bus := eventbus.New(logger.Discard())
	store := &flakyStore{}
	r := NewRecorder(store, config.CircuitBreakerConfig{}, logger.Discard())
	r.Attach(bus)

	ctx := context.Background()
	for _, status := range []domain.ActionStatus{domain.ActionPending, domain.ActionRunning, domain.ActionComplete} {
		bus.Publish(ctx, domain.NewEvent(domain.EventActionUpdated, "chat-7", domain.ActionState{ID: "a1", Status: status}))
	}
	bus.Publish(ctx, domain.Event{Type: domain.EventActionUpdated, SessionID: "chat-7", Payload: []byte("{")})
	bus.Close()

	assert.Equal(t, []string{"chat-7/a1/pending", "chat-7/a1/running", "chat-7/a1/complete"}, store.saved)
}
