package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Bus metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	Queries         *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec

	// Business metrics
	SessionsStarted   prometheus.Counter
	Selections        prometheus.Counter
	CustomNodesAdded  prometheus.Counter
	GenerationResults *prometheus.CounterVec
	VersionConflicts  prometheus.Counter

	// Repository metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec
}

// NewCollector creates a new metrics collector with the given namespace.
// Every collector owns its registry, so tests can create as many as they like.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Total number of dispatched commands",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of dispatched queries",
			},
			[]string{"query", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Query handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"query"},
		),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of exploration sessions started",
		}),
		Selections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Total number of successful node selections",
		}),
		CustomNodesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custom_nodes_added_total",
			Help:      "Total number of user-authored nodes",
		}),
		GenerationResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_results_total",
				Help:      "Generation results by scope kind and outcome",
			},
			[]string{"scope", "outcome"},
		),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_version_conflicts_total",
			Help:      "Optimistic concurrency conflicts while saving sessions",
		}),
		DBOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),
		DBDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_operation_duration_seconds",
				Help:      "Database operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Commands,
		c.CommandDuration,
		c.Queries,
		c.QueryDuration,
		c.SessionsStarted,
		c.Selections,
		c.CustomNodesAdded,
		c.GenerationResults,
		c.VersionConflicts,
		c.DBOperations,
		c.DBDuration,
	)

	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordCommand records one command dispatch
func (c *Collector) RecordCommand(name string, duration time.Duration, err error) {
	c.Commands.WithLabelValues(name, status(err)).Inc()
	c.CommandDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordQuery records one query dispatch
func (c *Collector) RecordQuery(name string, duration time.Duration, err error) {
	c.Queries.WithLabelValues(name, status(err)).Inc()
	c.QueryDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordDBOperation records one repository call
func (c *Collector) RecordDBOperation(operation, table string, duration time.Duration, err error) {
	c.DBOperations.WithLabelValues(operation, table, status(err)).Inc()
	c.DBDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordGeneration records how a generation result was applied.
// outcome is one of merged, discarded or failed.
func (c *Collector) RecordGeneration(scope, outcome string) {
	c.GenerationResults.WithLabelValues(scope, outcome).Inc()
}

// IncrementCounter increments a business counter by name
func (c *Collector) IncrementCounter(name string) {
	switch name {
	case "sessions_started":
		c.SessionsStarted.Inc()
	case "selections":
		c.Selections.Inc()
	case "custom_nodes_added":
		c.CustomNodesAdded.Inc()
	case "version_conflicts":
		c.VersionConflicts.Inc()
	}
}
