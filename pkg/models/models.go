package models

import "strings"

// PoolState is the observable state of a backup pool during a run
type PoolState string

// A pool is Importable when attached but not imported, Imported when usable
// and Unavailable when absent or when importing it failed.
const (
	PoolImportable  PoolState = "importable"
	PoolImported    PoolState = "imported"
	PoolUnavailable PoolState = "unavailable"
)

// Dataset represents a local ZFS filesystem and the backup pools it targets
type Dataset struct {
	Name    string   // full path, e.g. "tank/data"
	Targets []string // backup pool names read from the backup property
}

// Pool returns the name of the pool that holds the dataset
func (d Dataset) Pool() string {
	pool, _, _ := strings.Cut(d.Name, "/")
	return pool
}

// Snapshot represents a ZFS snapshot
type Snapshot struct {
	PoolName       string
	FilesystemName string // dataset the snapshot belongs to, including the pool
	SnapshotName   string // part after '@'
	CreateTXG      uint64 // creation transaction group, monotonic per pool
}

// FullName returns dataset@snapshot
func (s *Snapshot) FullName() string {
	return s.FilesystemName + "@" + s.SnapshotName
}

// Property is a single dataset property value as reported by zfs get
type Property struct {
	Value  string
	Source string // LOCAL, INHERITED, RECEIVED, DEFAULT or NONE
}

// PoolStatus represents the health status of a ZFS pool
type PoolStatus struct {
	Name           string
	State          string
	Status         string
	Action         string
	ErrorCount     string
	LastScrubTime  int64  // Unix timestamp of last scrub end time
	ScrubState     string // State of scrub: "finished", "in_progress", "none"
	ScrubFunction  string // Function: "scrub" or "resilver"
	AllocSpace     string // Allocated space (e.g., "9.07T")
	TotalSpace     string // Total space (e.g., "10.9T")
	ReadErrors     string // Read errors count
	WriteErrors    string // Write errors count
	ChecksumErrors string // Checksum errors count
}

// SendRequest describes one zfs send piped into one zfs receive
type SendRequest struct {
	Dataset     string // local dataset, e.g. "tank/data"
	From        string // incremental base snapshot name; empty for a full send
	To          string // snapshot name being sent
	Destination string // dataset the stream is received into
	Recursive   bool   // include descendant datasets (zfs send -R)
}

// Incremental reports whether the request sends only the delta from From to To
func (r SendRequest) Incremental() bool {
	return r.From != ""
}
