// Package monitoring summarizes recent job activity for the status API and
// the jobs stats command.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/saldang/grezzi/internal/model"
	"github.com/saldang/grezzi/internal/store"
)

// maxJobs bounds the jobs read for one snapshot.
const maxJobs = 10000

// MetricsSnapshot holds a point-in-time view of job activity.
type MetricsSnapshot struct {
	JobsTotal     int     `json:"jobs_total"`
	JobsForwarded int     `json:"jobs_forwarded"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
	FailRate      float64 `json:"fail_rate"`

	RawRows     int     `json:"raw_rows"`
	CleanRows   int     `json:"clean_rows"`
	RemovedRows int     `json:"removed_rows"`
	CleanRatio  float64 `json:"clean_ratio"`
	AvgDurSecs  float64 `json:"avg_duration_secs"`

	// QueueDepth is the number of jobs waiting for a worker, when known.
	QueueDepth int `json:"queue_depth"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// QueueLen reports the current queue depth.
type QueueLen interface {
	Len() int
}

// Collector gathers metrics from the job store.
type Collector struct {
	store store.Store
	queue QueueLen
	now   func() time.Time
}

// NewCollector creates a new metrics collector. queue may be nil.
func NewCollector(st store.Store, queue QueueLen) *Collector {
	return &Collector{store: st, queue: queue, now: time.Now}
}

// Collect gathers a snapshot of the jobs created within the lookback
// window. lookbackHours <= 0 covers every stored job up to maxJobs.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	filter := store.JobFilter{Limit: maxJobs}
	if lookbackHours > 0 {
		filter.CreatedAfter = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	list, err := c.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	snap.JobsTotal = len(list)
	var totalDur time.Duration
	for _, j := range list {
		switch {
		case j.State == model.JobStateForwarded:
			snap.JobsForwarded++
			totalDur += j.UpdatedAt.Sub(j.CreatedAt)
		case j.State == model.JobStateFailed:
			snap.JobsFailed++
		case j.State == model.JobStateQueued:
			snap.JobsQueued++
		default:
			snap.JobsRunning++
		}
		snap.RawRows += j.RawRows
		snap.CleanRows += j.CleanRows
		snap.RemovedRows += j.RemovedRows
	}

	if finished := snap.JobsForwarded + snap.JobsFailed; finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
	}
	if snap.JobsForwarded > 0 {
		snap.AvgDurSecs = totalDur.Seconds() / float64(snap.JobsForwarded)
	}
	if snap.RawRows > 0 {
		snap.CleanRatio = float64(snap.CleanRows) / float64(snap.RawRows)
	}
	if c.queue != nil {
		snap.QueueDepth = c.queue.Len()
	}

	return snap, nil
}
