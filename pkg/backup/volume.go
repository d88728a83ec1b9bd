// Package backup decides and sequences the replication of local ZFS datasets
// to attachable backup pools. All storage I/O goes through a VolumeManager.
package backup

import "github.com/runningman84/zfs-auto-backup/pkg/models"

// VolumeManager is the storage system as seen by the backup core.
// pkg/zfs provides the implementation backed by the zfs and zpool binaries.
type VolumeManager interface {
	ListImportablePools() ([]string, error)
	ListImportedPoolStatuses() (map[string]*models.PoolStatus, error)
	ImportPool(name string) error
	// ImportPoolReadOnly imports without allowing any write, so a dry run can read lineage
	ImportPoolReadOnly(name string) error
	ExportPool(name string) error

	ListDatasets() ([]string, error)
	GetBackupTargets(dataset string) ([]string, error)
	DatasetExists(path string) (bool, error)
	CreateDataset(path string) error

	// ListSnapshots returns the snapshots of dataset newest first
	ListSnapshots(dataset string) ([]*models.Snapshot, error)
	CreateSnapshot(dataset, name string, recursive bool) error
	DestroySnapshot(dataset, name string) error

	SendReceive(req models.SendRequest) error
}
