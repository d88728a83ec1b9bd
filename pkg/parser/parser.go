package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/runningman84/zfs-auto-backup/pkg/models"
)

// poolNamePattern follows the zpool naming rules: a letter first, then
// alphanumerics, underscore, dash, colon or period.
var poolNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`)

// ErrInvalidTargets marks a malformed backup-pools property value
var ErrInvalidTargets = errors.New("invalid backup target list")

// ZFSDatasetJSON represents a dataset or snapshot in zfs list -j / zfs get -j output
type ZFSDatasetJSON struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	Pool         string                 `json:"pool"`
	CreateTXG    interface{}            `json:"createtxg"` // string, or number with --json-int
	Dataset      string                 `json:"dataset"`
	SnapshotName string                 `json:"snapshot_name"`
	Properties   map[string]ZFSProperty `json:"properties,omitempty"`
}

// ZFSProperty represents a ZFS property value
type ZFSProperty struct {
	Value  string `json:"value"`
	Source struct {
		Type string `json:"type"`
		Data string `json:"data"`
	} `json:"source"`
}

// ZFSDatasetResponse represents the root response from zfs list -j and zfs get -j
type ZFSDatasetResponse struct {
	OutputVersion struct {
		Command   string `json:"command"`
		VersMajor int    `json:"vers_major"`
		VersMinor int    `json:"vers_minor"`
	} `json:"output_version"`
	Datasets map[string]ZFSDatasetJSON `json:"datasets"`
}

// ZFSVersionResponse is the output of zfs version -j
type ZFSVersionResponse struct {
	ZFSVersion struct {
		Userland string `json:"userland"`
		Kernel   string `json:"kernel"`
	} `json:"zfs_version"`
}

// ParseVersionJSON returns the userland and kernel module versions
func ParseVersionJSON(data []byte) (string, string, error) {
	var response ZFSVersionResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return "", "", fmt.Errorf("failed to parse JSON: %w", err)
	}
	return response.ZFSVersion.Userland, response.ZFSVersion.Kernel, nil
}

// ParseDatasetsJSON returns the names of all filesystems, sorted by name
func ParseDatasetsJSON(data []byte) ([]string, error) {
	var response ZFSDatasetResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var names []string
	for _, dataset := range response.Datasets {
		if dataset.Type != "FILESYSTEM" {
			continue
		}
		names = append(names, dataset.Name)
	}
	sort.Strings(names)

	return names, nil
}

// ParseSnapshotsJSON parses zfs list -t snapshot JSON output.
// Snapshots are returned newest first, ordered by creation transaction group.
func ParseSnapshotsJSON(data []byte) ([]*models.Snapshot, error) {
	var response ZFSDatasetResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	var snapshots []*models.Snapshot
	for key, dataset := range response.Datasets {
		if dataset.Type != "SNAPSHOT" {
			continue
		}

		filesystem := dataset.Dataset
		snapshotName := dataset.SnapshotName
		if filesystem == "" || snapshotName == "" {
			name := dataset.Name
			if name == "" {
				name = key
			}
			fs, snap, ok := strings.Cut(name, "@")
			if !ok {
				return nil, fmt.Errorf("snapshot %q has no '@' separator", name)
			}
			filesystem, snapshotName = fs, snap
		}

		txg, err := parseTXG(dataset.CreateTXG)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s@%s: %w", filesystem, snapshotName, err)
		}

		snapshots = append(snapshots, &models.Snapshot{
			PoolName:       dataset.Pool,
			FilesystemName: filesystem,
			SnapshotName:   snapshotName,
			CreateTXG:      txg,
		})
	}

	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].CreateTXG != snapshots[j].CreateTXG {
			return snapshots[i].CreateTXG > snapshots[j].CreateTXG
		}
		return snapshots[i].SnapshotName > snapshots[j].SnapshotName
	})

	return snapshots, nil
}

func parseTXG(value interface{}) (uint64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return uint64(v), nil
	case string:
		if v == "" || v == "-" {
			return 0, nil
		}
		txg, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid createtxg %q: %w", v, err)
		}
		return txg, nil
	default:
		return 0, fmt.Errorf("unexpected createtxg type %T", value)
	}
}

// ParsePropertyJSON extracts one property of one dataset from zfs get -j output.
// The boolean is false when the dataset or property is absent.
func ParsePropertyJSON(data []byte, dataset, property string) (models.Property, bool, error) {
	var response ZFSDatasetResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return models.Property{}, false, fmt.Errorf("failed to parse JSON: %w", err)
	}

	entry, ok := response.Datasets[dataset]
	if !ok {
		return models.Property{}, false, nil
	}
	prop, ok := entry.Properties[property]
	if !ok {
		return models.Property{}, false, nil
	}

	return models.Property{
		Value:  prop.Value,
		Source: strings.ToUpper(prop.Source.Type),
	}, true, nil
}

// ParseBackupTargets splits a backup-pools property value into pool names.
// "-" and empty values mean no targets; duplicates are dropped.
func ParseBackupTargets(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "-" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var targets []string
	for _, part := range strings.Split(value, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			return nil, fmt.Errorf("%w: empty pool name in %q", ErrInvalidTargets, value)
		}
		if !poolNamePattern.MatchString(name) {
			return nil, fmt.Errorf("%w: invalid pool name %q in %q", ErrInvalidTargets, name, value)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, name)
	}

	return targets, nil
}

// ParseImportablePools collects the pool names listed by a bare `zpool import`.
// zpool has no JSON output for import discovery, so the "pool: <name>" records
// are read here and nowhere else.
func ParseImportablePools(data []byte) []string {
	var pools []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		name, ok := strings.CutPrefix(line, "pool:")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name != "" {
			pools = append(pools, name)
		}
	}
	return pools
}

// ZPoolStatusVdevJSON represents a vdev in the pool
type ZPoolStatusVdevJSON struct {
	Name           string                         `json:"name"`
	VdevType       string                         `json:"vdev_type"`
	State          string                         `json:"state"`
	AllocSpace     string                         `json:"alloc_space,omitempty"`
	TotalSpace     string                         `json:"total_space,omitempty"`
	ReadErrors     string                         `json:"read_errors,omitempty"`
	WriteErrors    string                         `json:"write_errors,omitempty"`
	ChecksumErrors string                         `json:"checksum_errors,omitempty"`
	Vdevs          map[string]ZPoolStatusVdevJSON `json:"vdevs,omitempty"`
}

// ZPoolStatusJSON represents zpool status in JSON format
type ZPoolStatusJSON struct {
	Name       string                         `json:"name"`
	State      string                         `json:"state"`
	Status     string                         `json:"status"`
	Action     string                         `json:"action"`
	ErrorCount string                         `json:"error_count"`
	Scan       *ZPoolStatusScanJSON           `json:"scan,omitempty"`
	ScanStats  *ZPoolStatusScanJSON           `json:"scan_stats,omitempty"` // Real zpool uses scan_stats
	Vdevs      map[string]ZPoolStatusVdevJSON `json:"vdevs,omitempty"`
}

// ZPoolStatusScanJSON represents the scan/scrub information
type ZPoolStatusScanJSON struct {
	Function  string      `json:"function"`   // "scrub"/"SCRUB" or "resilver"/"RESILVER"
	State     string      `json:"state"`      // "finished"/"FINISHED", "in_progress", etc.
	StartTime interface{} `json:"start_time"` // Can be int64 or string
	EndTime   interface{} `json:"end_time"`   // Can be int64 or string
}

// ZPoolStatusResponse represents the root response from zpool status -j
type ZPoolStatusResponse struct {
	OutputVersion struct {
		Command   string `json:"command"`
		VersMajor int    `json:"vers_major"`
		VersMinor int    `json:"vers_minor"`
	} `json:"output_version"`
	Pools map[string]ZPoolStatusJSON `json:"pools"`
}

// ParsePoolStatusJSON parses zpool status JSON output
func ParsePoolStatusJSON(data []byte) (map[string]*models.PoolStatus, error) {
	var response ZPoolStatusResponse

	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	statusMap := make(map[string]*models.PoolStatus)
	for poolName, pool := range response.Pools {
		ps := &models.PoolStatus{
			Name:       pool.Name,
			State:      pool.State,
			Status:     pool.Status,
			Action:     pool.Action,
			ErrorCount: pool.ErrorCount,
		}
		if ps.Name == "" {
			ps.Name = poolName
		}

		if rootVdev, ok := pool.Vdevs[poolName]; ok {
			ps.AllocSpace = rootVdev.AllocSpace
			ps.TotalSpace = rootVdev.TotalSpace
			ps.ReadErrors = rootVdev.ReadErrors
			ps.WriteErrors = rootVdev.WriteErrors
			ps.ChecksumErrors = rootVdev.ChecksumErrors
		}

		scanInfo := pool.Scan
		if scanInfo == nil {
			scanInfo = pool.ScanStats
		}

		if scanInfo != nil {
			ps.ScrubFunction = strings.ToLower(scanInfo.Function)
			ps.ScrubState = strings.ToLower(scanInfo.State)
			ps.LastScrubTime = parseScanTime(scanInfo.EndTime)
			if ps.LastScrubTime == 0 {
				ps.LastScrubTime = parseScanTime(scanInfo.StartTime)
			}
		} else {
			ps.ScrubState = "none"
		}

		statusMap[poolName] = ps
	}

	return statusMap, nil
}

// parseScanTime accepts a unix timestamp or a string like "Sat Jan 24 17:52:19 2026"
func parseScanTime(value interface{}) int64 {
	switch v := value.(type) {
	case float64:
		return int64(v)
	case string:
		if t, err := time.Parse("Mon Jan 2 15:04:05 2006", v); err == nil {
			return t.Unix()
		}
	}
	return 0
}
