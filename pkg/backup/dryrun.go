package backup

import (
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"k8s.io/klog/v2"
)

// dryRunVolumeManager passes queries through and turns every mutation into a logged no-op.
// Pools it has to import to read their snapshots are imported read-only and exported again.
type dryRunVolumeManager struct {
	VolumeManager
	imported map[string]bool
}

// NewDryRun wraps vm so that mutating calls only log what they would do and
// report success. Queries still reach vm, so decisions are made on real state.
func NewDryRun(vm VolumeManager) VolumeManager {
	return &dryRunVolumeManager{VolumeManager: vm, imported: make(map[string]bool)}
}

func (d *dryRunVolumeManager) ImportPool(name string) error {
	klog.Infof("[DRY-RUN] Would import pool %s, importing it read-only to read its snapshots", name)
	if err := d.VolumeManager.ImportPoolReadOnly(name); err != nil {
		return err
	}
	d.imported[name] = true
	return nil
}

func (d *dryRunVolumeManager) ImportPoolReadOnly(name string) error {
	return d.ImportPool(name)
}

func (d *dryRunVolumeManager) ExportPool(name string) error {
	klog.Infof("[DRY-RUN] Would export pool %s", name)
	if !d.imported[name] {
		return nil
	}
	// leave the host as the dry run found it
	delete(d.imported, name)
	return d.VolumeManager.ExportPool(name)
}

func (d *dryRunVolumeManager) CreateDataset(path string) error {
	klog.Infof("[DRY-RUN] Would create dataset %s", path)
	return nil
}

func (d *dryRunVolumeManager) CreateSnapshot(dataset, name string, recursive bool) error {
	if recursive {
		klog.Infof("[DRY-RUN] Would create recursive snapshot %s@%s", dataset, name)
	} else {
		klog.Infof("[DRY-RUN] Would create snapshot %s@%s", dataset, name)
	}
	return nil
}

func (d *dryRunVolumeManager) DestroySnapshot(dataset, name string) error {
	klog.Infof("[DRY-RUN] Would delete snapshot %s@%s", dataset, name)
	return nil
}

func (d *dryRunVolumeManager) SendReceive(req models.SendRequest) error {
	if req.Incremental() {
		klog.Infof("[DRY-RUN] Would send %s@%s..%s into %s", req.Dataset, req.From, req.To, req.Destination)
	} else {
		klog.Infof("[DRY-RUN] Would send %s@%s into %s", req.Dataset, req.To, req.Destination)
	}
	return nil
}
