// Package metrics exports engine activity in Prometheus format.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"canvasmith/internal/domain"
)

const namespace = "canvasmith"

// Observable is the part of an engine the metrics read from.
type Observable interface {
	Subscribe(fn func(domain.ActionState)) func()
	QueueDepth() int
}

// Metrics holds the engine collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	alertsTotal    *prometheus.CounterVec

	mu       sync.Mutex
	observed map[Observable]struct{}
}

// New creates the collectors and registers them.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		observed: make(map[Observable]struct{}),
	}
	m.actionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions that reached a terminal status",
		},
		[]string{"kind", "status"},
	)
	m.actionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Time from an action's first execution to its terminal status",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"kind"},
	)
	m.alertsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by engines",
		},
		[]string{"type", "level"},
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Run requests queued or executing across observed engines",
		},
		m.queueDepth,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe starts counting o's action outcomes and includes it in the
// queue depth gauge. The returned function stops observing.
func (m *Metrics) Observe(o Observable) func() {
	m.mu.Lock()
	m.observed[o] = struct{}{}
	m.mu.Unlock()

	unsubscribe := o.Subscribe(m.record)
	return func() {
		unsubscribe()
		m.mu.Lock()
		delete(m.observed, o)
		m.mu.Unlock()
	}
}

func (m *Metrics) record(st domain.ActionState) {
	if !st.Status.Terminal() {
		return
	}
	kind := string(st.Kind)
	m.actionsTotal.WithLabelValues(kind, string(st.Status)).Inc()
	if st.StartedAt != nil && st.FinishedAt != nil {
		m.actionDuration.WithLabelValues(kind).Observe(st.FinishedAt.Sub(*st.StartedAt).Seconds())
	}
}

// ObserveAlerts counts alert events published on bus.
func (m *Metrics) ObserveAlerts(bus domain.EventBus) func() {
	handler := func(_ context.Context, e domain.Event) {
		var a struct {
			Level domain.AlertLevel `json:"level"`
		}
		_ = json.Unmarshal(e.Payload, &a)
		m.alertsTotal.WithLabelValues(string(e.Type), string(a.Level)).Inc()
	}
	unsubs := []func(){
		bus.Subscribe(domain.EventAlert, handler),
		bus.Subscribe(domain.EventDatabaseAlert, handler),
		bus.Subscribe(domain.EventDeployAlert, handler),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (m *Metrics) queueDepth() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for o := range m.observed {
		total += o.QueueDepth()
	}
	return float64(total)
}
