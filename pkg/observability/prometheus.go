package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements every hook set on top of Prometheus collectors.
type Metrics struct {
	graphModules    prometheus.Gauge
	graphPackages   prometheus.Gauge
	graphGlobals    prometheus.Gauge
	graphBuild      prometheus.Histogram
	unresolvedTotal *prometheus.CounterVec

	transformTotal    *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec

	poolQueueWait prometheus.Histogram
	poolRun       prometheus.Histogram
	poolInflight  prometheus.Gauge

	cacheTotal *prometheus.CounterVec
	cacheBytes *prometheus.CounterVec

	httpTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		graphModules: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plcbuild_graph_modules",
			Help: "Number of modules in the loaded module graph.",
		}),
		graphPackages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plcbuild_graph_npm_packages",
			Help: "Number of distinct npm packages in the loaded module graph.",
		}),
		graphGlobals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plcbuild_graph_global_imports",
			Help: "Number of global package import bindings.",
		}),
		graphBuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plcbuild_graph_build_duration_seconds",
			Help:    "Time taken to build the module graph.",
			Buckets: prometheus.DefBuckets,
		}),
		unresolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plcbuild_graph_unresolved_total",
			Help: "Soft resolution failures during graph build and lookup.",
		}, []string{"kind"}),

		transformTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plcbuild_transform_total",
			Help: "Number of module transforms by outcome.",
		}, []string{"hmr", "outcome"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plcbuild_transform_duration_seconds",
			Help:    "Time taken to transform one module.",
			Buckets: prometheus.DefBuckets,
		}, []string{"hmr"}),

		poolQueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plcbuild_pool_queue_wait_seconds",
			Help:    "Time tasks spend queued before a worker starts them.",
			Buckets: prometheus.DefBuckets,
		}),
		poolRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plcbuild_pool_run_seconds",
			Help:    "Time workers spend running a task.",
			Buckets: prometheus.DefBuckets,
		}),
		poolInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plcbuild_pool_inflight_tasks",
			Help: "Tasks submitted but not yet completed.",
		}),

		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plcbuild_cache_requests_total",
			Help: "Cache lookups by key type and result.",
		}, []string{"key_type", "result"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plcbuild_cache_written_bytes_total",
			Help: "Bytes written to the cache by key type.",
		}, []string{"key_type"}),

		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "plcbuild_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plcbuild_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.graphModules,
		m.graphPackages,
		m.graphGlobals,
		m.graphBuild,
		m.unresolvedTotal,
		m.transformTotal,
		m.transformDuration,
		m.poolQueueWait,
		m.poolRun,
		m.poolInflight,
		m.cacheTotal,
		m.cacheBytes,
		m.httpTotal,
		m.httpDuration,
	)
	return m
}

// Install registers m as every global hook set.
func (m *Metrics) Install() {
	SetGraphHooks(m)
	SetTransformHooks(m)
	SetPoolHooks(m)
	SetCacheHooks(m)
	SetHTTPHooks(m)
}

func (m *Metrics) OnGraphBuilt(modules, packages, globalImports int, d time.Duration) {
	m.graphModules.Set(float64(modules))
	m.graphPackages.Set(float64(packages))
	m.graphGlobals.Set(float64(globalImports))
	m.graphBuild.Observe(d.Seconds())
}

func (m *Metrics) OnUnresolved(kind string) {
	m.unresolvedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) OnTransformStart(context.Context, string, bool) {}

func (m *Metrics) OnTransformComplete(_ context.Context, _ string, hmr bool, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h := strconv.FormatBool(hmr)
	m.transformTotal.WithLabelValues(h, outcome).Inc()
	m.transformDuration.WithLabelValues(h).Observe(d.Seconds())
}

func (m *Metrics) OnSubmit(string) { m.poolInflight.Inc() }

func (m *Metrics) OnStart(_ string, wait time.Duration) {
	m.poolQueueWait.Observe(wait.Seconds())
}

func (m *Metrics) OnComplete(_ string, run time.Duration, _ error) {
	m.poolInflight.Dec()
	m.poolRun.Observe(run.Seconds())
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheTotal.WithLabelValues(keyType, "hit").Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheTotal.WithLabelValues(keyType, "miss").Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnResponse(_ context.Context, method, route string, code int, d time.Duration) {
	m.httpTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
