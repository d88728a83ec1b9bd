package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/runningman84/zfs-auto-backup/pkg/operator"
)

const namespace = "zfs_auto_backup"

// Metrics holds the gauges describing the last run
type Metrics struct {
	registry *prometheus.Registry

	pairs          *prometheus.GaugeVec
	pairStatus     *prometheus.GaugeVec
	lastRun        prometheus.Gauge
	duration       prometheus.Gauge
	exportFailures prometheus.Gauge
	dryRun         prometheus.Gauge
	success        prometheus.Gauge
}

// NewMetrics registers the run gauges on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		pairs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs",
			Help:      "Number of dataset and backup pool pairs by outcome in the last run.",
		}, []string{"status"}),
		pairStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pair_success",
			Help:      "1 if the dataset is up to date on the backup pool after the last run, 0 otherwise.",
		}, []string{"dataset", "pool"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run started.",
		}),
		duration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		exportFailures: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "export_failures",
			Help:      "Backup pools that could not be exported in the last run.",
		}),
		dryRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dry_run",
			Help:      "1 if the last run was a dry run.",
		}),
		success: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if no pair failed in the last run.",
		}),
	}
}

// Observe records s
func (m *Metrics) Observe(s *operator.Summary) {
	for _, status := range statuses {
		m.pairs.WithLabelValues(string(status)).Set(float64(s.Count(status)))
	}
	for _, r := range s.Results {
		value := 0.0
		if r.Status == operator.StatusSuccess || r.Status == operator.StatusNoOp {
			value = 1
		}
		m.pairStatus.WithLabelValues(r.Dataset, r.Pool).Set(value)
	}

	m.lastRun.Set(float64(s.Started.Unix()))
	m.duration.Set(s.Duration().Seconds())
	m.exportFailures.Set(float64(len(s.ExportErrors)))
	m.dryRun.Set(boolToFloat(s.DryRun))
	m.success.Set(boolToFloat(s.Err == nil))
}

// Gatherer exposes the registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteMetrics writes the metrics of s to path in the Prometheus text format
func WriteMetrics(path string, s *operator.Summary) error {
	m := NewMetrics()
	m.Observe(s)
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
