package backup

import (
	"fmt"

	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"k8s.io/klog/v2"
)

// Executor carries out plans against the volume manager
type Executor struct {
	vm        VolumeManager
	recursive bool
}

// NewExecutor creates an executor; recursive sends descendant datasets too
func NewExecutor(vm VolumeManager, recursive bool) *Executor {
	return &Executor{vm: vm, recursive: recursive}
}

// Execute applies plan for dataset into destination. Errors are *TransferError.
func (e *Executor) Execute(plan Plan, dataset, destination string) error {
	fail := func(err error) error {
		return &TransferError{Dataset: dataset, Destination: destination, Plan: plan, Err: err}
	}

	switch plan.Kind {
	case PlanNoOp:
		klog.Infof("Nothing to do, %s is up to date", destination)
		return nil

	case PlanFull:
		exists, err := e.vm.DatasetExists(destination)
		if err != nil {
			return fail(fmt.Errorf("checking destination: %w", err))
		}
		if !exists {
			if err := e.vm.CreateDataset(destination); err != nil {
				return fail(fmt.Errorf("creating destination: %w", err))
			}
		}
		klog.Infof("Starting full backup of %s@%s to %s", dataset, plan.To, destination)

	case PlanIncremental:
		klog.Infof("Starting incremental backup of %s from %s to %s into %s", dataset, plan.From, plan.To, destination)

	default:
		return fail(fmt.Errorf("unknown plan kind %d", plan.Kind))
	}

	req := models.SendRequest{
		Dataset:     dataset,
		From:        plan.From,
		To:          plan.To,
		Destination: destination,
		Recursive:   e.recursive,
	}
	if err := e.vm.SendReceive(req); err != nil {
		return fail(err)
	}

	klog.Infof("Backup of %s@%s to %s completed", dataset, plan.To, destination)
	return nil
}
