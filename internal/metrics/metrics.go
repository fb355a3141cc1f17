// Package metrics records transaction outcomes as Prometheus metrics and
// writes them to a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"assetkeeper/internal/ak"
)

// Recorder implements ak.Recorder on a private registry.
type Recorder struct {
	registry *prometheus.Registry
	textfile string

	TransactionsTotal   *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	CurrentVersion      prometheus.Gauge
	LastCommit          prometheus.Gauge
}

var _ ak.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder. textfile may be empty, in which case
// Flush is a no-op.
func NewRecorder(textfile string) *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		textfile: textfile,

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assetkeeper_transactions_total",
				Help: "Total number of store transactions by final state",
			},
			[]string{"operation", "outcome"},
		),
		TransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assetkeeper_transaction_duration_seconds",
				Help:    "Duration of store transactions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CurrentVersion: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetkeeper_store_version",
				Help: "Current version number of the asset store",
			},
		),
		LastCommit: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "assetkeeper_last_commit_timestamp_seconds",
				Help: "Unix time of the last committed transaction",
			},
		),
	}
}

func (r *Recorder) ObserveTransaction(operation, outcome string, d time.Duration) {
	r.TransactionsTotal.WithLabelValues(operation, outcome).Inc()
	r.TransactionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (r *Recorder) SetVersion(version int64) {
	r.CurrentVersion.Set(float64(version))
	r.LastCommit.SetToCurrentTime()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Flush writes all metrics to the configured textfile.
func (r *Recorder) Flush() error {
	if r.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.textfile), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(r.textfile, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
