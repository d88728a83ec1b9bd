package backup

import (
	"fmt"

	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"k8s.io/klog/v2"
)

// Resolver makes backup pools usable for a run
type Resolver struct {
	vm VolumeManager
}

// NewResolver creates a resolver on top of vm
func NewResolver(vm VolumeManager) *Resolver {
	return &Resolver{vm: vm}
}

// Discover reports whether pool is PoolImportable, already PoolImported or
// PoolUnavailable, without changing anything. Import discovery is consulted
// before the imported set so a freshly attached pool is never imported twice.
func (r *Resolver) Discover(pool string) (models.PoolState, error) {
	importable, err := r.vm.ListImportablePools()
	if err != nil {
		return models.PoolUnavailable, &ImportError{Pool: pool, Err: fmt.Errorf("import discovery failed: %w", err)}
	}
	if contains(importable, pool) {
		return models.PoolImportable, nil
	}

	imported, err := r.vm.ListImportedPoolStatuses()
	if err != nil {
		return models.PoolUnavailable, fmt.Errorf("pool status query failed: %w", err)
	}
	if _, ok := imported[pool]; ok {
		return models.PoolImported, nil
	}
	return models.PoolUnavailable, nil
}

// Acquire returns PoolImported when pool can be written to, importing it if
// needed, and PoolUnavailable otherwise. The returned error explains an
// Unavailable result and is an *ImportError when an import was attempted.
func (r *Resolver) Acquire(pool string) (models.PoolState, error) {
	state, err := r.Discover(pool)
	switch state {
	case models.PoolImportable:
		if err := r.vm.ImportPool(pool); err != nil {
			klog.Warningf("Failed to import pool %s: %v", pool, err)
			return models.PoolUnavailable, &ImportError{Pool: pool, Err: err}
		}
		klog.Infof("Imported pool %s", pool)
		return models.PoolImported, nil
	case models.PoolImported:
		klog.Infof("Pool %s is already imported", pool)
		return models.PoolImported, nil
	}

	if err == nil {
		klog.Infof("Pool %s is not available", pool)
	}
	return models.PoolUnavailable, err
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
