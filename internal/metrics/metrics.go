// Package metrics holds the Prometheus collectors of the API process.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixora"

// Metrics implements domain.Recorder and fanout.Observer, and instruments HTTP.
type Metrics struct {
	registry *prometheus.Registry

	Requests            *prometheus.CounterVec
	Duration            *prometheus.HistogramVec
	InFlight            prometheus.Gauge
	SweptStories        prometheus.Counter
	SweepRuns           *prometheus.CounterVec
	FanoutEvents        *prometheus.CounterVec
	ConsistencyFailures *prometheus.CounterVec
	FollowRepairs       *prometheus.CounterVec
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		SweptStories: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stories_swept_total",
			Help:      "Expired story items physically removed by the sweep.",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "story_sweep_runs_total",
			Help:      "Story sweep runs partitioned by result.",
		}, []string{"result"}),
		FanoutEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_events_total",
			Help:      "Event deliveries partitioned by event, sink, and result.",
		}, []string{"event", "sink", "result"}),
		ConsistencyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_consistency_failures_total",
			Help:      "Follow or unfollow writes that left a one-sided edge.",
		}, []string{"op"}),
		FollowRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_repairs_total",
			Help:      "Follower mirrors fixed by the repair job.",
		}, []string{"action"}),
	}

	reg.MustRegister(
		m.Requests, m.Duration, m.InFlight,
		m.SweptStories, m.SweepRuns, m.FanoutEvents,
		m.ConsistencyFailures, m.FollowRepairs,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ConsistencyFailure(op string) {
	m.ConsistencyFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) FollowRepaired(action string, n int) {
	m.FollowRepairs.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) StoriesSwept(removed int64, err error) {
	if err != nil {
		m.SweepRuns.WithLabelValues("error").Inc()
		return
	}
	m.SweepRuns.WithLabelValues("ok").Inc()
	m.SweptStories.Add(float64(removed))
}

func (m *Metrics) EventDelivered(event, sink, result string) {
	m.FanoutEvents.WithLabelValues(event, sink, result).Inc()
}

// Middleware records request count, latency and in-flight requests. The
// route label is the chi route pattern so path ids do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.Requests.With(labels).Inc()
		m.Duration.With(labels).Observe(time.Since(start).Seconds())
	})
}
