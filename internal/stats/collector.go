package stats

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zinses-rechner/calcsync/internal/domain"
)

// Collector exposes queue and storage state as Prometheus metrics. Each
// scrape runs a fresh store scan through the Reporter, so the values
// are exact rather than sampled.
type Collector struct {
	reporter *Reporter

	tasks          *prometheus.Desc
	corruptRecords *prometheus.Desc
	storageUsage   *prometheus.Desc
	storageMax     *prometheus.Desc
	syncState      *prometheus.Desc
	lastSync       *prometheus.Desc
}

// NewCollector creates a Collector over the given reporter. Register it
// with a prometheus.Registerer to expose the metrics.
func NewCollector(reporter *Reporter) *Collector {
	return &Collector{
		reporter: reporter,
		tasks: prometheus.NewDesc(
			"calcsync_tasks",
			"Stored tasks by status",
			[]string{"status"}, nil),
		corruptRecords: prometheus.NewDesc(
			"calcsync_corrupt_records",
			"Persisted records that failed to decode",
			nil, nil),
		storageUsage: prometheus.NewDesc(
			"calcsync_storage_usage_bytes",
			"Bytes of task storage in use",
			nil, nil),
		storageMax: prometheus.NewDesc(
			"calcsync_storage_max_bytes",
			"Configured task storage budget, 0 if unlimited",
			nil, nil),
		syncState: prometheus.NewDesc(
			"calcsync_sync_state",
			"Current sync state, 1 for the active state",
			[]string{"state"}, nil),
		lastSync: prometheus.NewDesc(
			"calcsync_last_sync_timestamp_seconds",
			"Completion time of the last clean sync pass, 0 if none",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tasks
	ch <- c.corruptRecords
	ch <- c.storageUsage
	ch <- c.storageMax
	ch <- c.syncState
	ch <- c.lastSync
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	stats, err := c.reporter.Statistics(ctx)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(c.tasks, err)
		return
	}

	ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue,
		float64(stats.PendingTasks), string(domain.TaskStatusPending))
	ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue,
		float64(stats.ProcessingTasks), string(domain.TaskStatusProcessing))
	ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue,
		float64(stats.CompletedTasks), string(domain.TaskStatusCompleted))
	ch <- prometheus.MustNewConstMetric(c.tasks, prometheus.GaugeValue,
		float64(stats.FailedTasks), string(domain.TaskStatusFailed))

	ch <- prometheus.MustNewConstMetric(c.corruptRecords, prometheus.GaugeValue,
		float64(stats.CorruptRecords))
	ch <- prometheus.MustNewConstMetric(c.storageUsage, prometheus.GaugeValue,
		float64(stats.Storage.CurrentUsageBytes))
	ch <- prometheus.MustNewConstMetric(c.storageMax, prometheus.GaugeValue,
		float64(stats.Storage.MaxStorageBytes))

	for _, state := range []domain.SyncState{
		domain.SyncStateIdle, domain.SyncStateSyncing, domain.SyncStateError,
	} {
		value := 0.0
		if stats.Sync.State == state {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.syncState, prometheus.GaugeValue,
			value, string(state))
	}

	lastSync := 0.0
	if !stats.Sync.LastSyncAt.IsZero() {
		lastSync = float64(stats.Sync.LastSyncAt.Unix())
	}
	ch <- prometheus.MustNewConstMetric(c.lastSync, prometheus.GaugeValue, lastSync)
}
