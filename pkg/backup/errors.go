package backup

import (
	"errors"
	"fmt"
)

var (
	// ErrLineageRegression means the destination holds a newer system snapshot than the one being sent
	ErrLineageRegression = errors.New("destination snapshot is newer than local snapshot")
	// ErrNoLocalSnapshot means there is nothing to send
	ErrNoLocalSnapshot = errors.New("dataset has no snapshot to send")
	// ErrUnhealthyPool means the backup pool is imported but not ONLINE
	ErrUnhealthyPool = errors.New("backup pool is not healthy")
)

// ImportError is returned when a backup pool could not be imported
type ImportError struct {
	Pool string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import of pool %s failed: %v", e.Pool, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// SnapshotError is returned when the local snapshot to send cannot be produced
type SnapshotError struct {
	Dataset  string
	Snapshot string
	Err      error
}

func (e *SnapshotError) Error() string {
	if e.Snapshot == "" {
		return fmt.Sprintf("snapshot of %s failed: %v", e.Dataset, e.Err)
	}
	return fmt.Sprintf("snapshot %s@%s failed: %v", e.Dataset, e.Snapshot, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// TransferError is returned when preparing the destination or streaming the snapshot failed
type TransferError struct {
	Dataset     string
	Destination string
	Plan        Plan
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer of %s to %s failed: %v", e.Plan.Kind, e.Dataset, e.Destination, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ExportError is returned when a backup pool could not be exported after use
type ExportError struct {
	Pool string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export of pool %s failed: %v", e.Pool, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ConfigError aborts a run before any pool is touched
type ConfigError struct {
	Dataset string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error on %s: %v", e.Dataset, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
