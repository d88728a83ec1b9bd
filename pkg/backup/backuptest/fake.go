// Package backuptest provides an in-memory VolumeManager for tests.
package backuptest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/runningman84/zfs-auto-backup/pkg/models"
)

// VolumeManager simulates pools, datasets and snapshots in memory.
// Snapshots are kept oldest first per dataset; every mutating call is
// appended to Calls in a "verb args" form.
type VolumeManager struct {
	Importable map[string]bool
	Imported   map[string]*models.PoolStatus
	ReadOnly   map[string]bool // imported pools that refuse writes
	Datasets   map[string]bool
	Local      []string            // datasets returned by ListDatasets
	Targets    map[string][]string // backup property per dataset
	Snapshots  map[string][]*models.Snapshot

	ImportErr     map[string]error
	ExportErr     map[string]error
	SnapshotErr   error
	SendErr       error
	TargetsErr    map[string]error
	ImportListErr error

	Calls []string

	txg uint64
}

// New returns an empty fake
func New() *VolumeManager {
	return &VolumeManager{
		Importable: map[string]bool{},
		Imported:   map[string]*models.PoolStatus{},
		ReadOnly:   map[string]bool{},
		Datasets:   map[string]bool{},
		Targets:    map[string][]string{},
		Snapshots:  map[string][]*models.Snapshot{},
		ImportErr:  map[string]error{},
		ExportErr:  map[string]error{},
		TargetsErr: map[string]error{},
	}
}

// AddLocalDataset registers a local dataset on an imported healthy pool with the given targets
func (f *VolumeManager) AddLocalDataset(name string, targets ...string) {
	pool := poolOf(name)
	if _, ok := f.Imported[pool]; !ok {
		f.Imported[pool] = &models.PoolStatus{Name: pool, State: "ONLINE", ErrorCount: "0"}
	}
	f.Datasets[name] = true
	f.Local = append(f.Local, name)
	if len(targets) > 0 {
		f.Targets[name] = targets
	}
}

// AddSnapshot appends a snapshot to dataset as its newest
func (f *VolumeManager) AddSnapshot(dataset, name string) {
	f.txg++
	f.Snapshots[dataset] = append(f.Snapshots[dataset], &models.Snapshot{
		PoolName:       poolOf(dataset),
		FilesystemName: dataset,
		SnapshotName:   name,
		CreateTXG:      f.txg,
	})
}

// SnapshotNames returns the snapshot names of dataset, oldest first
func (f *VolumeManager) SnapshotNames(dataset string) []string {
	var names []string
	for _, s := range f.Snapshots[dataset] {
		names = append(names, s.SnapshotName)
	}
	return names
}

// CallsWithPrefix filters Calls by verb
func (f *VolumeManager) CallsWithPrefix(prefix string) []string {
	var calls []string
	for _, c := range f.Calls {
		if strings.HasPrefix(c, prefix) {
			calls = append(calls, c)
		}
	}
	return calls
}

func poolOf(dataset string) string {
	pool, _, _ := strings.Cut(dataset, "/")
	return pool
}

func (f *VolumeManager) poolImported(dataset string) bool {
	_, ok := f.Imported[poolOf(dataset)]
	return ok
}

func (f *VolumeManager) ListImportablePools() ([]string, error) {
	if f.ImportListErr != nil {
		return nil, f.ImportListErr
	}
	var pools []string
	for name, ok := range f.Importable {
		if ok {
			pools = append(pools, name)
		}
	}
	sort.Strings(pools)
	return pools, nil
}

func (f *VolumeManager) ListImportedPoolStatuses() (map[string]*models.PoolStatus, error) {
	out := make(map[string]*models.PoolStatus, len(f.Imported))
	for k, v := range f.Imported {
		out[k] = v
	}
	return out, nil
}

func (f *VolumeManager) ImportPool(name string) error {
	f.Calls = append(f.Calls, "import "+name)
	if err := f.ImportErr[name]; err != nil {
		return err
	}
	if !f.Importable[name] {
		return fmt.Errorf("cannot import '%s': no such pool available", name)
	}
	delete(f.Importable, name)
	f.Imported[name] = &models.PoolStatus{Name: name, State: "ONLINE", ErrorCount: "0"}
	return nil
}

func (f *VolumeManager) ImportPoolReadOnly(name string) error {
	f.Calls = append(f.Calls, "import-readonly "+name)
	if err := f.ImportErr[name]; err != nil {
		return err
	}
	if !f.Importable[name] {
		return fmt.Errorf("cannot import '%s': no such pool available", name)
	}
	delete(f.Importable, name)
	f.Imported[name] = &models.PoolStatus{Name: name, State: "ONLINE", ErrorCount: "0"}
	f.ReadOnly[name] = true
	return nil
}

func (f *VolumeManager) writable(dataset string) error {
	if f.ReadOnly[poolOf(dataset)] {
		return fmt.Errorf("cannot write to %s: pool is read-only", dataset)
	}
	return nil
}

func (f *VolumeManager) ExportPool(name string) error {
	f.Calls = append(f.Calls, "export "+name)
	if err := f.ExportErr[name]; err != nil {
		return err
	}
	if _, ok := f.Imported[name]; !ok {
		return fmt.Errorf("cannot open '%s': no such pool", name)
	}
	delete(f.Imported, name)
	delete(f.ReadOnly, name)
	f.Importable[name] = true
	return nil
}

func (f *VolumeManager) ListDatasets() ([]string, error) {
	out := append([]string{}, f.Local...)
	sort.Strings(out)
	return out, nil
}

func (f *VolumeManager) GetBackupTargets(dataset string) ([]string, error) {
	if err := f.TargetsErr[dataset]; err != nil {
		return nil, err
	}
	return f.Targets[dataset], nil
}

func (f *VolumeManager) DatasetExists(path string) (bool, error) {
	return f.poolImported(path) && f.Datasets[path], nil
}

func (f *VolumeManager) CreateDataset(path string) error {
	f.Calls = append(f.Calls, "create "+path)
	if !f.poolImported(path) {
		return fmt.Errorf("cannot create '%s': no such pool", path)
	}
	if err := f.writable(path); err != nil {
		return err
	}
	f.Datasets[path] = true
	return nil
}

func (f *VolumeManager) ListSnapshots(dataset string) ([]*models.Snapshot, error) {
	if !f.poolImported(dataset) || !f.Datasets[dataset] {
		return nil, nil
	}
	snapshots := f.Snapshots[dataset]
	out := make([]*models.Snapshot, 0, len(snapshots))
	for i := len(snapshots) - 1; i >= 0; i-- {
		out = append(out, snapshots[i])
	}
	return out, nil
}

func (f *VolumeManager) CreateSnapshot(dataset, name string, recursive bool) error {
	f.Calls = append(f.Calls, "snapshot "+dataset+"@"+name)
	if f.SnapshotErr != nil {
		return f.SnapshotErr
	}
	if err := f.writable(dataset); err != nil {
		return err
	}
	for _, s := range f.Snapshots[dataset] {
		if s.SnapshotName == name {
			return fmt.Errorf("cannot create snapshot '%s@%s': dataset already exists", dataset, name)
		}
	}
	f.AddSnapshot(dataset, name)
	return nil
}

func (f *VolumeManager) DestroySnapshot(dataset, name string) error {
	f.Calls = append(f.Calls, "destroy "+dataset+"@"+name)
	snapshots := f.Snapshots[dataset]
	for i, s := range snapshots {
		if s.SnapshotName == name {
			f.Snapshots[dataset] = append(snapshots[:i:i], snapshots[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("could not find any snapshots to destroy; check snapshot names")
}

func (f *VolumeManager) indexOf(dataset, name string) int {
	for i, s := range f.Snapshots[dataset] {
		if s.SnapshotName == name {
			return i
		}
	}
	return -1
}

// SendReceive copies snapshots like zfs send [-I from] to | zfs receive -F:
// an incremental receive rolls the destination back to from, which must exist there,
// and a full receive needs a destination without snapshots.
func (f *VolumeManager) SendReceive(req models.SendRequest) error {
	if req.Incremental() {
		f.Calls = append(f.Calls, fmt.Sprintf("send %s@%s..%s -> %s", req.Dataset, req.From, req.To, req.Destination))
	} else {
		f.Calls = append(f.Calls, fmt.Sprintf("send %s@%s -> %s", req.Dataset, req.To, req.Destination))
	}
	if f.SendErr != nil {
		return f.SendErr
	}
	if !f.poolImported(req.Destination) {
		return fmt.Errorf("cannot receive: pool %s is not imported", poolOf(req.Destination))
	}
	if err := f.writable(req.Destination); err != nil {
		return err
	}

	to := f.indexOf(req.Dataset, req.To)
	if to < 0 {
		return fmt.Errorf("snapshot %s@%s does not exist", req.Dataset, req.To)
	}

	start := 0
	if req.Incremental() {
		from := f.indexOf(req.Dataset, req.From)
		if from < 0 {
			return fmt.Errorf("incremental source %s@%s does not exist", req.Dataset, req.From)
		}
		base := f.indexOf(req.Destination, req.From)
		if base < 0 {
			return fmt.Errorf("cannot receive incremental stream: destination %s has no snapshot %s", req.Destination, req.From)
		}
		// -F: roll back everything newer than the base
		f.Snapshots[req.Destination] = f.Snapshots[req.Destination][:base+1]
		start = from + 1
	} else if len(f.Snapshots[req.Destination]) > 0 {
		// a full stream never overwrites a destination holding snapshots, even with -F
		return fmt.Errorf("cannot receive new filesystem stream: destination %s has snapshots", req.Destination)
	}

	f.Datasets[req.Destination] = true
	for _, s := range f.Snapshots[req.Dataset][start : to+1] {
		f.AddSnapshot(req.Destination, s.SnapshotName)
	}
	return nil
}
