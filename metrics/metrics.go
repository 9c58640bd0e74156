// Package metrics counts what one import run did and can push the counts
// to a Prometheus Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Record results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultSkipped  = "skipped"
	ResultDryRun   = "dry_run"
)

// Run holds the collectors of a single run on a private registry.
type Run struct {
	registry    *prometheus.Registry
	records     *prometheus.CounterVec
	pages       prometheus.Counter
	lastSuccess prometheus.Gauge
}

// NewRun registers fresh collectors labelled with the data source id.
func NewRun(source string) *Run {
	labels := prometheus.Labels{"source": source}
	r := &Run{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "s3import_records_total",
			Help:        "Records processed, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "s3import_pages_total",
			Help:        "Listing pages read from the object store.",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "s3import_last_success_timestamp_seconds",
			Help:        "Unix time of the last run that reached the end of the snapshot.",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.records, r.pages, r.lastSuccess)
	return r
}

// Page counts one listing page.
func (r *Run) Page() {
	r.pages.Inc()
}

// Record counts one processed record under result.
func (r *Run) Record(result string) {
	r.records.WithLabelValues(result).Inc()
}

// Skipped counts n keys left behind on a page cut short by a rejection.
func (r *Run) Skipped(n int) {
	r.records.WithLabelValues(ResultSkipped).Add(float64(n))
}

// Succeeded stamps the end of a run that reached the end of the snapshot.
func (r *Run) Succeeded() {
	r.lastSuccess.SetToCurrentTime()
}

// Gatherer exposes the run's registry.
func (r *Run) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Push sends all collectors to the gateway at url under job.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
