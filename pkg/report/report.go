// Package report writes the outcome of a backup run for humans and for
// node_exporter's textfile collector.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/runningman84/zfs-auto-backup/pkg/operator"
	"gopkg.in/yaml.v3"
)

// Report is the YAML document written after a run
type Report struct {
	RunID           string         `yaml:"run_id"`
	Snapshot        string         `yaml:"snapshot"`
	DryRun          bool           `yaml:"dry_run"`
	Started         time.Time      `yaml:"started"`
	Finished        time.Time      `yaml:"finished"`
	DurationSeconds float64        `yaml:"duration_seconds"`
	Totals          map[string]int `yaml:"totals"`
	Pairs           []Pair         `yaml:"pairs"`
	ExportFailures  []string       `yaml:"export_failures,omitempty"`
	Error           string         `yaml:"error,omitempty"`
}

// Pair is one (dataset, backup pool) line of the report
type Pair struct {
	Dataset     string `yaml:"dataset"`
	Pool        string `yaml:"pool"`
	Destination string `yaml:"destination"`
	Status      string `yaml:"status"`
	Plan        string `yaml:"plan,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

var statuses = []operator.Status{
	operator.StatusSuccess,
	operator.StatusNoOp,
	operator.StatusSkipped,
	operator.StatusFailed,
}

// New builds the report of a run
func New(s *operator.Summary) *Report {
	r := &Report{
		RunID:           s.RunID,
		Snapshot:        s.SnapshotName,
		DryRun:          s.DryRun,
		Started:         s.Started,
		Finished:        s.Finished,
		DurationSeconds: s.Duration().Seconds(),
		Totals:          make(map[string]int, len(statuses)),
	}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}

	for _, status := range statuses {
		r.Totals[string(status)] = s.Count(status)
	}

	for _, result := range s.Results {
		p := Pair{
			Dataset:     result.Dataset,
			Pool:        result.Pool,
			Destination: result.Destination,
			Status:      string(result.Status),
		}
		if result.Status == operator.StatusSuccess || result.Status == operator.StatusNoOp {
			p.Plan = result.Plan.String()
		}
		if result.Err != nil {
			p.Error = result.Err.Error()
		}
		r.Pairs = append(r.Pairs, p)
	}

	for _, err := range s.ExportErrors {
		r.ExportFailures = append(r.ExportFailures, err.Error())
	}
	return r
}

// WriteYAML writes the report of s to path, replacing it atomically
func WriteYAML(path string, s *operator.Summary) error {
	data, err := yaml.Marshal(New(s))
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return writeAtomic(path, data)
}

// writeAtomic writes through a temp file in the same directory so readers
// never see a partial file
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
