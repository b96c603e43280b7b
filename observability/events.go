package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rwalend/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry counting committed protocol events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rwalend",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed protocol events by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// Emit implements events.Emitter so the registry can sit in an emitter fanout.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	typ := strings.TrimSpace(evt.EventType())
	if typ == "" {
		typ = "unknown"
	}
	m.emitted.WithLabelValues(typ).Inc()
}
