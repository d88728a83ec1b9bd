package backup

import (
	"github.com/runningman84/zfs-auto-backup/pkg/config"
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"k8s.io/klog/v2"
)

// Lineage is what is known about a dataset and its destination before deciding
type Lineage struct {
	Local  string // snapshot to send
	Remote string // newest incremental base at the destination, empty if none
}

// Tracker discovers the local and remote ends of a snapshot chain
type Tracker struct {
	vm        VolumeManager
	mode      string
	recursive bool
}

// NewTracker creates a tracker. mode is config.SnapshotModeCreate or
// config.SnapshotModeLatest; recursive snapshots descendants too.
func NewTracker(vm VolumeManager, mode string, recursive bool) *Tracker {
	return &Tracker{vm: vm, mode: mode, recursive: recursive}
}

// Discover returns the lineage for dataset and destination, creating the
// run's snapshot first in create mode. Failures producing the local snapshot
// are *SnapshotError.
func (t *Tracker) Discover(run Run, dataset, destination string) (Lineage, error) {
	snapshots, err := t.vm.ListSnapshots(dataset)
	if err != nil {
		return Lineage{}, &SnapshotError{Dataset: dataset, Err: err}
	}

	local, err := t.localSnapshot(run, dataset, snapshots)
	if err != nil {
		return Lineage{}, err
	}

	remote, err := t.remoteSnapshot(run, destination, snapshots)
	if err != nil {
		return Lineage{}, err
	}

	klog.V(1).Infof(" Lineage of %s -> %s: local=%s remote=%s", dataset, destination, local, remote)
	return Lineage{Local: local, Remote: remote}, nil
}

func (t *Tracker) localSnapshot(run Run, dataset string, snapshots []*models.Snapshot) (string, error) {
	if t.mode == config.SnapshotModeLatest {
		if len(snapshots) == 0 {
			return "", &SnapshotError{Dataset: dataset, Err: ErrNoLocalSnapshot}
		}
		return snapshots[0].SnapshotName, nil
	}

	for _, snapshot := range snapshots {
		if snapshot.SnapshotName == run.SnapshotName {
			klog.Infof("Snapshot %s@%s already exists, reusing it", dataset, run.SnapshotName)
			return run.SnapshotName, nil
		}
	}

	if err := t.vm.CreateSnapshot(dataset, run.SnapshotName, t.recursive); err != nil {
		return "", &SnapshotError{Dataset: dataset, Snapshot: run.SnapshotName, Err: err}
	}
	return run.SnapshotName, nil
}

// remoteSnapshot returns the newest destination snapshot usable as an
// incremental base. In create mode that is the newest system snapshot, so
// snapshots other tools left at the destination are skipped. In latest mode
// local snapshots may carry any name, so the newest destination snapshot that
// still exists locally is used.
func (t *Tracker) remoteSnapshot(run Run, destination string, local []*models.Snapshot) (string, error) {
	snapshots, err := t.vm.ListSnapshots(destination)
	if err != nil {
		return "", err
	}

	if t.mode == config.SnapshotModeLatest {
		names := make(map[string]bool, len(local))
		for _, snapshot := range local {
			names[snapshot.SnapshotName] = true
		}
		for _, snapshot := range snapshots {
			if names[snapshot.SnapshotName] {
				return snapshot.SnapshotName, nil
			}
		}
		if len(snapshots) > 0 {
			klog.Warningf(" %s has %d snapshot(s) but none in common with the local dataset", destination, len(snapshots))
		}
		return "", nil
	}

	for _, snapshot := range snapshots {
		if IsAutoSnapshot(run.Prefix, snapshot.SnapshotName) {
			return snapshot.SnapshotName, nil
		}
	}
	return "", nil
}
