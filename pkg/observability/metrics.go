package observability

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the attest metrics.
type Collector struct {
	known map[string]struct{}

	iterations    prometheus.Histogram
	toolCalls     *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	oracleErrors  prometheus.Counter
	appendSeconds prometheus.Histogram
	appendErrors  prometheus.Counter
}

// NewCollector creates and registers the metrics. Tool names outside
// knownTools are reported as "unknown" to keep label cardinality bounded.
func NewCollector(reg prometheus.Registerer, knownTools []string) (*Collector, error) {
	c := &Collector{
		known: make(map[string]struct{}, len(knownTools)),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_loop_iterations",
			Help:    "Iterations executed per decision run",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 7, 10},
		}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_tool_calls_total",
			Help: "Tool calls dispatched, by tool and status",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "attest_tool_duration_seconds",
			Help: "Duration of tool executions",
		}, []string{"tool"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_outcomes_total",
			Help: "Decision runs by terminal outcome",
		}, []string{"outcome"}),
		oracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attest_oracle_errors_total",
			Help: "Runs ended by a reasoning oracle failure",
		}),
		appendSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_audit_append_seconds",
			Help:    "Latency of durable audit writes",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		appendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attest_audit_append_errors_total",
			Help: "Failed durable audit writes",
		}),
	}
	for _, name := range knownTools {
		c.known[name] = struct{}{}
	}

	for _, col := range []prometheus.Collector{
		c.iterations, c.toolCalls, c.toolDuration, c.outcomes,
		c.oracleErrors, c.appendSeconds, c.appendErrors,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Hooks returns lifecycle hooks feeding the collector.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			tool := c.label(e.ToolName)
			status := "ok"
			if e.IsError {
				status = "error"
			}
			c.toolCalls.WithLabelValues(tool, status).Inc()
			c.toolDuration.WithLabelValues(tool).Observe(e.Duration.Seconds())
		},
		OnTerminate: func(_ context.Context, e *domain.TerminateEvent) {
			c.iterations.Observe(float64(e.Iterations))
			c.outcomes.WithLabelValues(string(e.Outcome)).Inc()
			if errors.Is(e.Err, domain.ErrOracle) {
				c.oracleErrors.Inc()
			}
		},
	}
}

// ObserveAppend records one durable audit write. It matches the signature
// expected by attest.WithAppendObserver.
func (c *Collector) ObserveAppend(d time.Duration, err error) {
	c.appendSeconds.Observe(d.Seconds())
	if err != nil {
		c.appendErrors.Inc()
	}
}

func (c *Collector) label(tool string) string {
	if _, ok := c.known[tool]; ok {
		return tool
	}
	return "unknown"
}
