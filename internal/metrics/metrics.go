/*
Package metrics
File: metrics.go
Description:
    Prometheus instruments of the economy (ticks, clicks, purchases, saves,
    live sessions and hub clients).
*/

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Economy holds the counters and gauges updated by sessions and the API.
type Economy struct {
	Ticks          prometheus.Counter
	Clicks         prometheus.Counter
	Purchases      *prometheus.CounterVec
	Saves          *prometheus.CounterVec
	ActiveSessions prometheus.Gauge
	HubClients     prometheus.Gauge
	RateLimited    prometheus.Counter
}

var (
	economyOnce     sync.Once
	economyRegistry *Economy
)

// Default returns the process-wide instruments, registered once with the
// default Prometheus registerer.
func Default() *Economy {
	economyOnce.Do(func() {
		economyRegistry = New()
		prometheus.MustRegister(economyRegistry.Collectors()...)
	})
	return economyRegistry
}

// New returns unregistered instruments. Tests use it to stay off the
// default registry.
func New() *Economy {
	return &Economy{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Subsystem: "economy",
			Name:      "ticks_total",
			Help:      "Passive income ticks applied across all sessions.",
		}),
		Clicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Subsystem: "economy",
			Name:      "clicks_total",
			Help:      "Manual clicks applied.",
		}),
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tycoon",
			Subsystem: "economy",
			Name:      "purchases_total",
			Help:      "Purchase attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),
		Saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tycoon",
			Subsystem: "persistence",
			Name:      "saves_total",
			Help:      "Remote saves by trigger (manual, auto) and result.",
		}, []string{"trigger", "result"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycoon",
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in memory.",
		}),
		HubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tycoon",
			Subsystem: "hub",
			Name:      "clients",
			Help:      "Connected websocket clients.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tycoon",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "Intents rejected by the per-user rate limiter.",
		}),
	}
}

// Collectors lists every instrument for registration.
func (e *Economy) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		e.Ticks,
		e.Clicks,
		e.Purchases,
		e.Saves,
		e.ActiveSessions,
		e.HubClients,
		e.RateLimited,
	}
}

// Result labels a save outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
