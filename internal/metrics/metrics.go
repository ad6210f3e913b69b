// Package metrics exposes service counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login result labels.
const (
	ResultOK     = "ok"
	ResultDenied = "denied"
)

// Metrics holds the service counters on a dedicated registry so tests can
// run multiple servers without collisions.
type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Uploads       prometheus.Counter
	Downloads     prometheus.Counter
	BytesReceived prometheus.Counter
	BytesServed   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assetvault_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		Uploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetvault_uploads_total",
			Help: "Completed uploads.",
		}),
		Downloads: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetvault_downloads_total",
			Help: "Completed downloads.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetvault_bytes_received_total",
			Help: "Bytes accepted through uploads.",
		}),
		BytesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "assetvault_bytes_served_total",
			Help: "Bytes streamed through downloads.",
		}),
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
