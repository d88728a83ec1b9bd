package operator

import (
	"time"

	"github.com/runningman84/zfs-auto-backup/pkg/backup"
)

// Status is the terminal outcome of one (dataset, backup pool) pair
type Status string

const (
	StatusSuccess Status = "success"
	StatusNoOp    Status = "noop"
	StatusSkipped Status = "skipped" // backup pool not available
	StatusFailed  Status = "failed"
)

// PairResult records what happened to one dataset on one backup pool
type PairResult struct {
	Dataset     string
	Pool        string
	Destination string
	Plan        backup.Plan
	Status      Status
	Err         error
}

// Summary is the outcome of a run
type Summary struct {
	RunID        string
	SnapshotName string
	DryRun       bool
	Started      time.Time
	Finished     time.Time
	Results      []PairResult
	ExportErrors []error
	Err          error // failed pairs combined, or the configuration error that aborted the run
}

// Count returns the number of pairs that ended with status
func (s *Summary) Count(status Status) int {
	n := 0
	for _, r := range s.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run
func (s *Summary) Duration() time.Duration {
	if s.Finished.IsZero() {
		return 0
	}
	return s.Finished.Sub(s.Started)
}
