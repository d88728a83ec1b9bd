package operator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/runningman84/zfs-auto-backup/pkg/backup"
	"github.com/runningman84/zfs-auto-backup/pkg/config"
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"github.com/runningman84/zfs-auto-backup/pkg/parser"
	"github.com/runningman84/zfs-auto-backup/pkg/zfs"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"
)

// versioner is implemented by volume managers that can report the ZFS version
type versioner interface {
	GetVersion() (string, string, error)
}

// Operator runs one backup pass over every dataset and its backup pools
type Operator struct {
	config   *config.Config
	vm       backup.VolumeManager
	versions versioner

	now   func() time.Time
	newID func() string
}

// NewOperator creates an operator backed by the zfs and zpool binaries
func NewOperator(cfg *config.Config) *Operator {
	return NewOperatorWithVolumeManager(cfg, zfs.NewManager(cfg))
}

// NewOperatorWithVolumeManager creates an operator on top of vm. In dry-run
// mode vm is wrapped so that nothing is modified.
func NewOperatorWithVolumeManager(cfg *config.Config, vm backup.VolumeManager) *Operator {
	op := &Operator{
		config: cfg,
		vm:     vm,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	if v, ok := vm.(versioner); ok {
		op.versions = v
	}
	if cfg.DryRun {
		op.vm = backup.NewDryRun(vm)
	}
	return op
}

// pair is one (dataset, backup pool) unit of work captured at enumeration time
type pair struct {
	dataset     string
	pool        string
	destination string
}

// poolLease is the cached acquire result of a backup pool for the current run
type poolLease struct {
	state     models.PoolState
	err       error // why the pool is unavailable
	healthErr error // set when the pool is imported but must not be written to
}

// Run executes the backup pass. The summary is returned whenever enumeration
// got far enough to produce one; the error combines every failed pair or
// reports the configuration problem that aborted the run.
func (o *Operator) Run() (*Summary, error) {
	if o.config.EnableLocking {
		if err := o.acquireLock(); err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		defer o.releaseLock()
	}

	run := backup.NewRun(o.newID(), o.config.SnapshotPrefix, o.now())
	summary := &Summary{
		RunID:        run.ID,
		SnapshotName: run.SnapshotName,
		DryRun:       o.config.DryRun,
		Started:      run.Started,
	}

	o.logConfig(run)
	o.logVersion()

	pairs, err := o.enumerate()
	if err != nil {
		summary.Finished = o.now()
		summary.Err = err
		klog.Errorf("Run aborted: %v", err)
		return summary, err
	}
	klog.Infof("Found %d backup pair(s)", len(pairs))

	o.execute(run, pairs, summary)

	summary.Finished = o.now()
	o.logSummary(summary)

	return summary, summary.Err
}

// enumerate reads datasets and their targets once and derives every pair.
// Malformed targets and colliding destinations abort with a *backup.ConfigError.
func (o *Operator) enumerate() ([]pair, error) {
	datasets, err := o.vm.ListDatasets()
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	var pairs []pair
	owners := make(map[string]string) // destination -> dataset
	for _, name := range datasets {
		if !o.config.IsDatasetAllowed(name) {
			klog.V(1).Infof(" Skipping dataset %s (not in whitelist)", name)
			continue
		}

		targets, err := o.vm.GetBackupTargets(name)
		if err != nil {
			if errors.Is(err, parser.ErrInvalidTargets) {
				return nil, &backup.ConfigError{Dataset: name, Err: err}
			}
			return nil, fmt.Errorf("failed to read backup targets of %s: %w", name, err)
		}
		if len(targets) == 0 {
			continue
		}

		dataset := models.Dataset{Name: name, Targets: targets}
		for _, target := range dataset.Targets {
			if !o.config.IsPoolAllowed(target) {
				klog.Infof("Skipping backup pool %s for %s (not in whitelist)", target, name)
				continue
			}
			if target == dataset.Pool() {
				return nil, &backup.ConfigError{Dataset: name, Err: fmt.Errorf("backup pool %s is the dataset's own pool", target)}
			}

			destination, err := backup.Destination(o.config.DestinationPolicy, target, name)
			if err != nil {
				return nil, &backup.ConfigError{Dataset: name, Err: err}
			}
			if owner, ok := owners[destination]; ok {
				return nil, &backup.ConfigError{
					Dataset: name,
					Err:     fmt.Errorf("destination %s is already used by %s", destination, owner),
				}
			}
			owners[destination] = name

			pairs = append(pairs, pair{dataset: name, pool: target, destination: destination})
		}
	}

	return pairs, nil
}

// execute processes pairs in order and releases each pool after its last pair
func (o *Operator) execute(run backup.Run, pairs []pair, summary *Summary) {
	last := make(map[string]int)
	for i, p := range pairs {
		last[p.pool] = i
	}

	resolver := backup.NewResolver(o.vm)
	tracker := backup.NewTracker(o.vm, o.config.SnapshotMode, o.config.RecursiveSend)
	executor := backup.NewExecutor(o.vm, o.config.RecursiveSend)
	leases := make(map[string]*poolLease)

	var failures error
	for i, p := range pairs {
		lease, ok := leases[p.pool]
		if !ok {
			lease = o.acquire(resolver, p.pool, run.Started)
			leases[p.pool] = lease
		}

		result := o.processPair(run, p, lease, tracker, executor)
		summary.Results = append(summary.Results, result)
		if result.Status == StatusFailed {
			failures = multierr.Append(failures, result.Err)
		}

		if last[p.pool] == i && lease.state == models.PoolImported {
			if err := o.vm.ExportPool(p.pool); err != nil {
				exportErr := &backup.ExportError{Pool: p.pool, Err: err}
				klog.Errorf("%v", exportErr)
				summary.ExportErrors = append(summary.ExportErrors, exportErr)
			} else {
				klog.Infof("Exported pool %s", p.pool)
			}
		}
	}

	summary.Err = failures
}

func (o *Operator) acquire(resolver *backup.Resolver, pool string, now time.Time) *poolLease {
	state, err := resolver.Acquire(pool)
	lease := &poolLease{state: state, err: err}
	if state != models.PoolImported {
		return lease
	}

	statuses, err := o.vm.ListImportedPoolStatuses()
	if err != nil {
		klog.Warningf(" Failed to read status of pool %s: %v", pool, err)
		return lease
	}
	if err := backup.CheckPoolHealth(pool, statuses[pool], o.config.ScrubAgeThresholdDays, now); err != nil {
		if o.config.RequireHealthyPool {
			lease.healthErr = err
		} else {
			klog.Warningf(" %v, continuing because unhealthy pools are allowed", err)
		}
	}
	return lease
}

func (o *Operator) processPair(run backup.Run, p pair, lease *poolLease, tracker *backup.Tracker, executor *backup.Executor) PairResult {
	result := PairResult{Dataset: p.dataset, Pool: p.pool, Destination: p.destination}
	klog.Infof("Processing %s -> %s", p.dataset, p.destination)

	fail := func(err error) PairResult {
		result.Status = StatusFailed
		result.Err = err
		klog.Errorf("Backup of %s to %s failed: %v", p.dataset, p.destination, err)
		return result
	}

	if lease.state != models.PoolImported {
		result.Status = StatusSkipped
		result.Err = lease.err
		if lease.err != nil {
			klog.Warningf(" Skipping %s: pool %s is unavailable: %v", p.dataset, p.pool, lease.err)
		} else {
			klog.Infof("Skipping %s: pool %s is not attached", p.dataset, p.pool)
		}
		return result
	}
	if lease.healthErr != nil {
		return fail(lease.healthErr)
	}

	lineage, err := tracker.Discover(run, p.dataset, p.destination)
	if err != nil {
		return fail(err)
	}

	plan, err := backup.Decide(lineage.Local, lineage.Remote)
	if err != nil {
		return fail(fmt.Errorf("%s -> %s: %w", p.dataset, p.destination, err))
	}
	result.Plan = plan
	klog.Infof("Plan for %s -> %s: %s", p.dataset, p.destination, plan)

	if err := executor.Execute(plan, p.dataset, p.destination); err != nil {
		return fail(err)
	}

	if plan.Kind == backup.PlanNoOp {
		result.Status = StatusNoOp
	} else {
		result.Status = StatusSuccess
	}
	return result
}

// acquireLock creates a lock file to prevent concurrent runs
func (o *Operator) acquireLock() error {
	lockPath := o.config.LockFilePath

	file, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("lock file exists at %s - another instance may be running", lockPath)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer file.Close()

	pid := os.Getpid()
	if _, err := fmt.Fprintf(file, "%d\n", pid); err != nil {
		return fmt.Errorf("failed to write PID to lock file: %w", err)
	}

	klog.Infof("Acquired lock (PID %d) at %s", pid, lockPath)
	return nil
}

// releaseLock removes the lock file
func (o *Operator) releaseLock() {
	lockPath := o.config.LockFilePath
	if err := os.Remove(lockPath); err != nil {
		klog.Warningf(" Failed to remove lock file %s: %v", lockPath, err)
	} else {
		klog.Infof("Released lock at %s", lockPath)
	}
}

func (o *Operator) logConfig(run backup.Run) {
	klog.Infof("Run %s started, snapshot name %s", run.ID, run.SnapshotName)
	klog.Infof("Backup property: %s", o.config.BackupProperty)
	klog.Infof("Destination policy: %s", o.config.DestinationPolicy)
	klog.Infof("Snapshot mode: %s, recursive send: %t", o.config.SnapshotMode, o.config.RecursiveSend)
	if len(o.config.PoolWhitelist) > 0 {
		klog.Infof("Pool whitelist: %v", o.config.PoolWhitelist)
	} else {
		klog.Infof("Pool whitelist: all pools")
	}
	if len(o.config.DatasetWhitelist) > 0 {
		klog.Infof("Dataset whitelist: %v", o.config.DatasetWhitelist)
	} else {
		klog.Infof("Dataset whitelist: all datasets")
	}
	if o.config.DryRun {
		klog.Infof("[DRY-RUN] No pool, dataset or snapshot will be modified")
	}
}

func (o *Operator) logVersion() {
	if o.versions == nil {
		return
	}
	userland, kernel, err := o.versions.GetVersion()
	if err != nil {
		klog.Warningf(" Failed to get ZFS version: %v", err)
		return
	}
	klog.Infof("ZFS Version - Userland: %s, Kernel: %s", userland, kernel)
}

func (o *Operator) logSummary(s *Summary) {
	for _, r := range s.Results {
		if r.Err != nil {
			klog.Infof("  %s -> %s: %s (%v)", r.Dataset, r.Destination, r.Status, r.Err)
		} else {
			klog.Infof("  %s -> %s: %s %s", r.Dataset, r.Destination, r.Status, r.Plan)
		}
	}
	klog.Infof("Run %s completed in %s - %d succeeded, %d up to date, %d skipped, %d failed, %d export failure(s)",
		s.RunID, s.Duration().Round(time.Millisecond),
		s.Count(StatusSuccess), s.Count(StatusNoOp), s.Count(StatusSkipped), s.Count(StatusFailed),
		len(s.ExportErrors))
}
