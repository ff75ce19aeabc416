package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Item and action outcome labels.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics receives batch progress.
type Metrics interface {
	ObserveItem(status string, d time.Duration)
	IncAction(kind, status string)
	SetRun(total, succeeded int, finished time.Time)
}

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) ObserveItem(string, time.Duration) {}
func (NoopMetrics) IncAction(string, string)          {}
func (NoopMetrics) SetRun(int, int, time.Time)        {}

// PromMetrics implements Metrics on a private Prometheus registry so a
// batch can be dumped as a node-exporter textfile when it ends.
type PromMetrics struct {
	registry     *prometheus.Registry
	items        *prometheus.CounterVec
	itemDuration *prometheus.HistogramVec
	actions      *prometheus.CounterVec
	lastTotal    prometheus.Gauge
	lastOK       prometheus.Gauge
	lastFinished prometheus.Gauge
}

// NewPromMetrics registers the batch collectors under namespace.
func NewPromMetrics(namespace string) *PromMetrics {
	p := &PromMetrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Item directories processed by status",
		}, []string{"status"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_duration_seconds",
			Help:      "Time spent on one item directory",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Actions executed by kind and status",
		}, []string{"kind", "status"}),
		lastTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_items",
			Help:      "Item directories in the last run",
		}),
		lastOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_items_succeeded",
			Help:      "Item directories updated successfully in the last run",
		}),
		lastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	p.registry.MustRegister(p.items, p.itemDuration, p.actions, p.lastTotal, p.lastOK, p.lastFinished)
	return p
}

func (p *PromMetrics) ObserveItem(status string, d time.Duration) {
	p.items.WithLabelValues(status).Inc()
	p.itemDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (p *PromMetrics) IncAction(kind, status string) {
	p.actions.WithLabelValues(kind, status).Inc()
}

func (p *PromMetrics) SetRun(total, succeeded int, finished time.Time) {
	p.lastTotal.Set(float64(total))
	p.lastOK.Set(float64(succeeded))
	p.lastFinished.Set(float64(finished.Unix()))
}

// Registry exposes the underlying registry.
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// WriteTextfile writes all collected metrics to path in the text
// exposition format, atomically.
func (p *PromMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
