package backup

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/runningman84/zfs-auto-backup/pkg/config"
)

// snapshotTimeLayout renders YYYY-mm-dd-HHMM
const snapshotTimeLayout = "2006-01-02-1504"

var (
	autoSuffixPattern    = regexp.MustCompile(`^-\d{4}-\d{2}-\d{2}-\d{4}$`)
	autoTimestampPattern = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}-\d{4})$`)
)

// Run carries the values fixed once per run and threaded through every component
type Run struct {
	ID           string
	Started      time.Time
	Prefix       string
	SnapshotName string
}

// NewRun derives the snapshot name for a run started at now
func NewRun(id, prefix string, now time.Time) Run {
	return Run{
		ID:           id,
		Started:      now,
		Prefix:       prefix,
		SnapshotName: SnapshotName(prefix, now),
	}
}

// SnapshotName returns "<prefix>-YYYY-mm-dd-HHMM" for t
func SnapshotName(prefix string, t time.Time) string {
	return prefix + "-" + t.Format(snapshotTimeLayout)
}

// IsAutoSnapshot reports whether name was created by this tool with the given prefix
func IsAutoSnapshot(prefix, name string) bool {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return false
	}
	return autoSuffixPattern.MatchString(rest)
}

// autoTimestamp returns the YYYY-mm-dd-HHMM suffix of a system snapshot name
func autoTimestamp(name string) (string, bool) {
	m := autoTimestampPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Destination re-roots dataset under backupPool according to policy.
// For dataset "tank/projects/foo" and pool "backup0":
//
//	pool -> backup0/tank
//	full -> backup0/tank/projects/foo
//	leaf -> backup0/foo
func Destination(policy, backupPool, dataset string) (string, error) {
	dataset = strings.Trim(dataset, "/")
	if backupPool == "" || dataset == "" {
		return "", fmt.Errorf("backup pool and dataset must be set")
	}

	elements := strings.Split(dataset, "/")
	var rest string
	switch policy {
	case config.PolicyPool:
		rest = elements[0]
	case config.PolicyFull:
		rest = dataset
	case config.PolicyLeaf:
		rest = elements[len(elements)-1]
	default:
		return "", fmt.Errorf("unknown destination policy %q", policy)
	}

	return backupPool + "/" + rest, nil
}
