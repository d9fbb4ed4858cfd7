// sim/observe/metrics.go
package observe

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim/trace"
)

// Metrics exposes exchange and fleet statistics in Prometheus format.
// Collectors live in a private registry so several instances can coexist.
type Metrics struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	emptied   prometheus.Counter
	cycles    prometheus.Counter
	weight    *prometheus.GaugeVec
	volume    *prometheus.GaugeVec
}

// NewMetrics creates and registers the binsim collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "binsim_exchanges_total",
				Help: "Controller exchanges by request kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "binsim_exchange_duration_seconds",
				Help:    "Duration of controller exchanges",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		emptied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binsim_containers_emptied_total",
			Help: "Containers emptied after circuit collection",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "binsim_cycles_total",
			Help: "Completed simulation cycles",
		}),
		weight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binsim_container_weight_kg",
				Help: "Container load at the end of the last cycle",
			},
			[]string{"container"},
		),
		volume: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "binsim_container_volume_liters",
				Help: "Container fill at the end of the last cycle",
			},
			[]string{"container"},
		),
	}
	m.registry.MustRegister(m.exchanges, m.latency, m.emptied, m.cycles, m.weight, m.volume)
	return m
}

// Exchange counts the exchange by kind and outcome and observes its duration.
func (m *Metrics) Exchange(_ context.Context, record trace.ExchangeRecord) {
	m.exchanges.WithLabelValues(record.Kind, string(record.Outcome)).Inc()
	m.latency.WithLabelValues(record.Kind).Observe(record.Duration.Seconds())
}

// Cycle counts the cycle and emptied containers and sets the per-container gauges.
func (m *Metrics) Cycle(_ context.Context, report CycleReport) {
	m.cycles.Inc()
	m.emptied.Add(float64(len(report.Emptied)))
	for i := range report.Containers {
		c := &report.Containers[i]
		label := strconv.Itoa(c.ID())
		m.weight.WithLabelValues(label).Set(float64(c.Weight()))
		m.volume.WithLabelValues(label).Set(float64(c.Volume()))
	}
}

// Registry returns the registry holding the binsim collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logrus.Infof("Metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
