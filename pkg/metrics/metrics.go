// Package metrics exposes fleet and stream health as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodefleet/fleetview/pkg/geo"
	"github.com/nodefleet/fleetview/pkg/nodes"
	"github.com/nodefleet/fleetview/pkg/ticklog"
)

type Metrics struct {
	Registry *prometheus.Registry

	nodes          *prometheus.GaugeVec
	countryNodes   *prometheus.GaugeVec
	placed         prometheus.Gauge
	excluded       prometheus.Gauge
	snapshotDur    prometheus.Histogram
	snapshotErrors prometheus.Counter
	lastSnapshot   prometheus.Gauge
	frames         *prometheus.CounterVec
	reconnects     prometheus.Counter
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.nodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Name:      "nodes",
		Help:      "Nodes in the latest snapshot by displayed role",
	}, []string{"role"})
	m.countryNodes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Name:      "country_nodes",
		Help:      "Placed nodes per country",
	}, []string{"country"})
	m.placed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Name:      "placed_nodes",
		Help:      "Nodes plotted on the map",
	})
	m.excluded = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Name:      "excluded_nodes",
		Help:      "Nodes outside every country polygon",
	})
	m.snapshotDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetview",
		Name:      "snapshot_duration_seconds",
		Help:      "Time spent polling the management API",
		Buckets:   prometheus.DefBuckets,
	})
	m.snapshotErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetview",
		Name:      "snapshot_errors_total",
		Help:      "Failed management API polls",
	})
	m.lastSnapshot = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetview",
		Name:      "last_snapshot_timestamp_seconds",
		Help:      "Unix timestamp of the last successful poll",
	})
	m.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetview",
		Name:      "stream_frames_total",
		Help:      "Inbound event channel frames by event name",
	}, []string{"event"})
	m.reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetview",
		Name:      "stream_connects_total",
		Help:      "Successful event channel (re)connects",
	})

	m.Registry.MustRegister(
		m.nodes, m.countryNodes, m.placed, m.excluded,
		m.snapshotDur, m.snapshotErrors, m.lastSnapshot,
		m.frames, m.reconnects,
	)
	return m
}

func (m *Metrics) ObserveSnapshot(d time.Duration, err error) {
	m.snapshotDur.Observe(d.Seconds())
	if err != nil {
		m.snapshotErrors.Inc()
		return
	}
	m.lastSnapshot.SetToCurrentTime()
}

func (m *Metrics) SetSummary(s nodes.Summary) {
	m.nodes.WithLabelValues("total").Set(float64(s.Total))
	m.nodes.WithLabelValues("active").Set(float64(s.Active))
	m.nodes.WithLabelValues("inactive").Set(float64(s.Inactive))
	m.nodes.WithLabelValues("bare_metal").Set(float64(s.BareMetal))
	m.nodes.WithLabelValues("checkin").Set(float64(s.Checkin))
}

// SetPlacement replaces the per-country series so countries that emptied out
// disappear.
func (m *Metrics) SetPlacement(pl geo.Placement) {
	m.placed.Set(float64(pl.Len()))
	m.excluded.Set(float64(len(pl.Excluded)))
	m.countryNodes.Reset()
	for id, n := range pl.CountryCounts {
		m.countryNodes.WithLabelValues(id).Set(float64(n))
	}
}

func (m *Metrics) CountFrame(event string) {
	m.frames.WithLabelValues(event).Inc()
}

func (m *Metrics) CountConnect() {
	m.reconnects.Inc()
}

// WatchTicklog exports the aggregator's counters, read at scrape time.
func (m *Metrics) WatchTicklog(agg *ticklog.Aggregator) {
	counter := func(name, help string, get func(ticklog.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "fleetview",
			Subsystem: "ticklog",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(agg.Stats())) })
	}
	m.Registry.MustRegister(
		counter("events_total", "Tick log events aggregated", func(s ticklog.Stats) uint64 { return s.Events }),
		counter("duplicates_total", "Redelivered tick log events dropped", func(s ticklog.Stats) uint64 { return s.Duplicates }),
		counter("malformed_total", "Unparseable tick log frames", func(s ticklog.Stats) uint64 { return s.Malformed }),
		counter("evicted_total", "Ticks evicted by the retention cap", func(s ticklog.Stats) uint64 { return s.Evicted }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "fleetview",
			Subsystem: "ticklog",
			Name:      "ticks",
			Help:      "Ticks currently retained",
		}, func() float64 { return float64(agg.Len()) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server serves /metrics and /healthz.
type Server struct {
	server *http.Server
}

func (m *Metrics) NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{server: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func (s *Server) Serve() error                       { return s.server.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.server.Shutdown(ctx) }
