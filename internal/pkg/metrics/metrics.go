package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldsync",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldsync",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	SyncFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "sync",
		Name:      "fetches_total",
		Help:      "Site fetches issued, by request kind and data source",
	}, []string{"kind", "source"})

	SyncPreemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "sync",
		Name:      "preemptions_total",
		Help:      "In-flight requests superseded by a newer request of the same kind",
	}, []string{"kind"})

	SyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "sync",
		Name:      "errors_total",
		Help:      "Failed fetches by error class (transport, malformed)",
	}, []string{"kind", "class"})

	SyncDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "sync",
		Name:      "deliveries_total",
		Help:      "Results delivered to subscribers",
	}, []string{"kind"})

	RemoteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldsync",
		Subsystem: "sync",
		Name:      "remote_duration_seconds",
		Help:      "Latency of remote site service calls",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldsync",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CachedSites = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldsync",
		Subsystem: "cache",
		Name:      "sites",
		Help:      "Sites currently held in the cached site set",
	})

	PersistOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldsync",
		Subsystem: "cache",
		Name:      "persist_total",
		Help:      "Save/load attempts by blob, operation and outcome",
	}, []string{"blob", "op", "outcome"})

	// BlobPoolConns tracks the postgres blob store pool by state.
	BlobPoolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fieldsync",
		Subsystem: "blobstore",
		Name:      "pool_conns",
		Help:      "Postgres blob store connections by state (acquired, idle, total)",
	}, []string{"state"})
)

// Middleware records request metrics per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		// Unmatched paths share one series.
		route := c.Route().Path
		if route == "" || route == "/" && c.Path() != "/" {
			route = "unmatched"
		}
		m := c.Method()
		httpRequestsTotal.WithLabelValues(m, route, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpRequestDuration.WithLabelValues(m, route).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(m, route).Observe(float64(len(c.Response().Body())))
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// ObservePool copies a pool snapshot into BlobPoolConns.
func ObservePool(s PoolStat) {
	BlobPoolConns.WithLabelValues("acquired").Set(float64(s.AcquiredConns()))
	BlobPoolConns.WithLabelValues("idle").Set(float64(s.IdleConns()))
	BlobPoolConns.WithLabelValues("total").Set(float64(s.TotalConns()))
}
