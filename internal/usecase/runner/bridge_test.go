package runner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canvasmith/internal/domain"
	"canvasmith/internal/usecase/eventbus"
)

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) handle(_ context.Context, e domain.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) ofType(t domain.EventType) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestBridge_PublishesStatesAndAlerts(t *testing.T) {
	bus := eventbus.New(newTestLogger())
	log := &eventLog{}
	bus.SubscribeAll(log.handle)

	sess := newFakeSession()
	sess.Script("npm run missing", 1, "npm ERR! missing script: missing")
	notifier := BusNotifier(bus, "chat-1")
	r := New("chat-1", NewFullRegistry(FullDeps{
		Files:    newRecordingStore(),
		Sessions: &fakeProvider{session: sess},
		Notifier: notifier,
	}), notifier, newTestLogger())
	unsubscribe := PublishStates(bus, r)
	defer unsubscribe()

	mustRegister(t, r, &domain.Action{ID: "sh", Kind: domain.ActionKindShell, Payload: domain.NewPayload("npm run missing")})
	mustRegister(t, r, &domain.Action{ID: "q", Kind: domain.ActionKindDatabase, Operation: domain.DatabaseQuery,
		Payload: domain.NewPayload("SELECT 1")})
	require.NoError(t, r.Run(context.Background(), "sh", false))
	require.NoError(t, r.Run(context.Background(), "q", false))
	bus.Close()

	var statuses []string
	for _, e := range log.ofType(domain.EventActionUpdated) {
		assert.Equal(t, "chat-1", e.SessionID)
		var st domain.ActionState
		require.NoError(t, json.Unmarshal(e.Payload, &st))
		statuses = append(statuses, st.ID+":"+string(st.Status))
	}
	assert.Equal(t, []string{"sh:pending", "q:pending", "sh:running", "sh:failed", "q:running", "q:complete"}, statuses)

	alerts := log.ofType(domain.EventAlert)
	require.Len(t, alerts, 1)
	var a domain.Alert
	require.NoError(t, json.Unmarshal(alerts[0].Payload, &a))
	assert.Equal(t, "terminal", a.Source)
	assert.Equal(t, "sh", a.ActionID)

	require.Len(t, log.ofType(domain.EventDatabaseAlert), 1)
}

func TestPublishingSink(t *testing.T) {
	bus := eventbus.New(newTestLogger())
	log := &eventLog{}
	bus.Subscribe(domain.EventPageUpserted, log.handle)

	inner := &recordingSink{}
	sink := NewPublishingSink(inner, bus)
	page := domain.Page{Name: "home", Path: "index.html", PreviewID: "p1", Final: true}
	require.NoError(t, sink.UpsertPage(context.Background(), "chat-1", page))

	bare := NewPublishingSink(nil, bus)
	require.NoError(t, bare.UpsertPage(context.Background(), "chat-2", page))
	bus.Close()

	assert.Len(t, inner.Pages(), 1)
	events := log.ofType(domain.EventPageUpserted)
	require.Len(t, events, 2)
	assert.Equal(t, "chat-1", events[0].SessionID)
	var got domain.Page
	require.NoError(t, json.Unmarshal(events[0].Payload, &got))
	assert.Equal(t, page, got)
}
