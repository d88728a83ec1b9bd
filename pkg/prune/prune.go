// Package prune destroys the oldest snapshots of a dataset up to a named one.
package prune

import (
	"fmt"

	"github.com/runningman84/zfs-auto-backup/pkg/backup"
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// Plan returns the snapshots of dataset from the oldest up to and including
// name, oldest first
func Plan(vm backup.VolumeManager, dataset, name string) ([]*models.Snapshot, error) {
	snapshots, err := vm.ListSnapshots(dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %s: %w", dataset, err)
	}

	// ListSnapshots is newest first
	for i, snapshot := range snapshots {
		if snapshot.SnapshotName != name {
			continue
		}
		selected := make([]*models.Snapshot, 0, len(snapshots)-i)
		for j := len(snapshots) - 1; j >= i; j-- {
			selected = append(selected, snapshots[j])
		}
		return selected, nil
	}

	return nil, fmt.Errorf("snapshot %s@%s not found", dataset, name)
}

// Apply destroys snapshots in order. A failure does not stop the remaining
// deletions; all failures are returned together with the number destroyed.
func Apply(vm backup.VolumeManager, snapshots []*models.Snapshot) (int, error) {
	var errs error
	destroyed := 0
	for _, snapshot := range snapshots {
		if err := vm.DestroySnapshot(snapshot.FilesystemName, snapshot.SnapshotName); err != nil {
			klog.Errorf("Failed to destroy %s: %v", snapshot.FullName(), err)
			errs = multierr.Append(errs, fmt.Errorf("destroy %s: %w", snapshot.FullName(), err))
			continue
		}
		destroyed++
	}
	klog.Infof("Destroyed %d of %d snapshot(s)", destroyed, len(snapshots))
	return destroyed, errs
}
