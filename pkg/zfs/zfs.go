package zfs

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/runningman84/zfs-auto-backup/pkg/config"
	"github.com/runningman84/zfs-auto-backup/pkg/models"
	"github.com/runningman84/zfs-auto-backup/pkg/parser"
	"k8s.io/klog/v2"
)

// Manager handles ZFS operations by running the zfs and zpool binaries
type Manager struct {
	config *config.Config
}

// NewManager creates a new ZFS manager
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: cfg,
	}
}

// logCommand logs the command being executed if debug mode is enabled
func (m *Manager) logCommand(cmdArgs []string) {
	if m.config.IsDebug() {
		klog.V(1).Infof(" Executing command: %v", cmdArgs)
	}
}

// logCommandResult logs the command result if debug mode is enabled
func (m *Manager) logCommandResult(exitCode int, stdout, stderr []byte) {
	if m.config.IsDebug() {
		klog.V(1).Infof(" Exit code: %d", exitCode)
		if len(stdout) > 0 {
			klog.V(1).Infof(" stdout: %s", string(stdout))
		}
		if len(stderr) > 0 {
			klog.V(1).Infof(" stderr: %s", string(stderr))
		}
	}
}

func exitCodeOf(err error) int {
	if exitError, ok := err.(*exec.ExitError); ok {
		return exitError.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// run executes base+args and returns stdout and stderr separately so JSON
// output is never mixed with warnings.
func (m *Manager) run(base []string, args ...string) ([]byte, []byte, error) {
	cmdArgs := append(append([]string{}, base...), args...)
	m.logCommand(cmdArgs)

	cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	m.logCommandResult(exitCodeOf(err), stdout.Bytes(), stderr.Bytes())
	if err != nil {
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("command %v failed: %w, output: %s",
			cmdArgs, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

func (m *Manager) zfs(args ...string) ([]byte, []byte, error) {
	return m.run(m.config.ZFSCmd, args...)
}

func (m *Manager) zpool(args ...string) ([]byte, []byte, error) {
	return m.run(m.config.ZPoolCmd, args...)
}

func isMissingDataset(stderr []byte) bool {
	return bytes.Contains(stderr, []byte("does not exist"))
}

// GetVersion retrieves ZFS userland and kernel versions
func (m *Manager) GetVersion() (string, string, error) {
	output, _, err := m.zfs("version", "-j")
	if err != nil {
		return "", "", fmt.Errorf("zfs version command failed: %w", err)
	}

	userland, kernel, err := parser.ParseVersionJSON(output)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse version JSON: %w", err)
	}
	return userland, kernel, nil
}

// ListImportablePools returns the pools that zpool import can see but that are not imported
func (m *Manager) ListImportablePools() ([]string, error) {
	stdout, stderr, err := m.zpool("import")
	if err != nil {
		// zpool exits non-zero when nothing is attached
		if bytes.Contains(stderr, []byte("no pools available")) {
			return nil, nil
		}
		return nil, err
	}
	// Some versions print the listing on stderr
	return parser.ParseImportablePools(append(stdout, stderr...)), nil
}

// ListImportedPoolStatuses retrieves the status of all imported ZFS pools
func (m *Manager) ListImportedPoolStatuses() (map[string]*models.PoolStatus, error) {
	output, _, err := m.zpool("status", "-j")
	if err != nil {
		return nil, err
	}

	status, err := parser.ParsePoolStatusJSON(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool status JSON: %w", err)
	}
	return status, nil
}

// ImportPool imports a pool without mounting its datasets
func (m *Manager) ImportPool(name string) error {
	klog.Infof("Importing pool %s", name)
	_, _, err := m.zpool("import", "-N", name)
	return err
}

// ImportPoolReadOnly imports a pool unmounted and read-only
func (m *Manager) ImportPoolReadOnly(name string) error {
	klog.Infof("Importing pool %s read-only", name)
	_, _, err := m.zpool("import", "-N", "-o", "readonly=on", name)
	return err
}

// ExportPool exports a pool so its media can be detached
func (m *Manager) ExportPool(name string) error {
	klog.Infof("Exporting pool %s", name)
	_, _, err := m.zpool("export", name)
	return err
}

// ListDatasets returns every filesystem on the host, sorted by name
func (m *Manager) ListDatasets() ([]string, error) {
	output, _, err := m.zfs("list", "-j", "-t", "filesystem")
	if err != nil {
		return nil, err
	}

	datasets, err := parser.ParseDatasetsJSON(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse datasets JSON: %w", err)
	}
	return datasets, nil
}

// GetBackupTargets returns the backup pools set locally on dataset.
// Inherited values are ignored: the ancestor holding the property is sent recursively.
func (m *Manager) GetBackupTargets(dataset string) ([]string, error) {
	property := m.config.BackupProperty
	output, _, err := m.zfs("get", "-j", "-s", "local", property, dataset)
	if err != nil {
		return nil, err
	}

	prop, found, err := parser.ParsePropertyJSON(output, dataset, property)
	if err != nil {
		return nil, fmt.Errorf("failed to parse property JSON: %w", err)
	}
	if !found {
		return nil, nil
	}

	targets, err := parser.ParseBackupTargets(prop.Value)
	if err != nil {
		return nil, fmt.Errorf("dataset %s property %s: %w", dataset, property, err)
	}
	return targets, nil
}

// DatasetExists checks whether a dataset is present
func (m *Manager) DatasetExists(path string) (bool, error) {
	_, stderr, err := m.zfs("list", "-j", path)
	if err != nil {
		if isMissingDataset(stderr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateDataset creates a filesystem and any missing parents
func (m *Manager) CreateDataset(path string) error {
	klog.Infof("Creating dataset %s", path)
	_, _, err := m.zfs("create", "-p", path)
	return err
}

// ListSnapshots returns the direct snapshots of dataset, newest first.
// A dataset that does not exist has no snapshots.
func (m *Manager) ListSnapshots(dataset string) ([]*models.Snapshot, error) {
	output, stderr, err := m.zfs("list", "-j", "-t", "snapshot", "-d", "1", dataset)
	if err != nil {
		if isMissingDataset(stderr) {
			return nil, nil
		}
		return nil, err
	}

	all, err := parser.ParseSnapshotsJSON(output)
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshots JSON: %w", err)
	}

	// -d 1 already limits depth; keep the filter in case the listing includes the dataset tree
	var snapshots []*models.Snapshot
	for _, snapshot := range all {
		if snapshot.FilesystemName == dataset {
			snapshots = append(snapshots, snapshot)
		}
	}
	return snapshots, nil
}

// CreateSnapshot creates a new ZFS snapshot, including descendants when recursive
func (m *Manager) CreateSnapshot(dataset, name string, recursive bool) error {
	klog.Infof("Creating snapshot %s@%s", dataset, name)
	args := []string{"snapshot"}
	if recursive {
		args = append(args, "-r")
	}
	_, _, err := m.zfs(append(args, dataset+"@"+name)...)
	return err
}

// DestroySnapshot deletes a ZFS snapshot
func (m *Manager) DestroySnapshot(dataset, name string) error {
	klog.Infof("Deleting snapshot %s@%s", dataset, name)
	_, _, err := m.zfs("destroy", dataset+"@"+name)
	return err
}

// sendArgs builds the zfs send arguments for a request
func sendArgs(req models.SendRequest) []string {
	args := []string{"send"}
	if req.Recursive {
		args = append(args, "-R")
	}
	if req.Incremental() {
		args = append(args, "-I", req.Dataset+"@"+req.From)
	}
	return append(args, req.Dataset+"@"+req.To)
}

// receiveArgs builds the zfs receive arguments. -F rolls the destination back
// to the incremental base, -u leaves received filesystems unmounted.
func receiveArgs(req models.SendRequest) []string {
	return []string{"receive", "-F", "-u", req.Destination}
}

// SendReceive streams zfs send straight into zfs receive. The request fails
// if either side fails; a receive failure always fails the request.
func (m *Manager) SendReceive(req models.SendRequest) error {
	sendCmdArgs := append(append([]string{}, m.config.ZFSCmd...), sendArgs(req)...)
	recvCmdArgs := append(append([]string{}, m.config.ZFSCmd...), receiveArgs(req)...)
	m.logCommand(sendCmdArgs)
	m.logCommand(recvCmdArgs)

	send := exec.Command(sendCmdArgs[0], sendCmdArgs[1:]...)
	recv := exec.Command(recvCmdArgs[0], recvCmdArgs[1:]...)

	var sendStderr, recvStdout, recvStderr bytes.Buffer
	send.Stderr = &sendStderr
	recv.Stdout = &recvStdout
	recv.Stderr = &recvStderr

	// The parent drops its pipe ends once both sides run, so a receiver that
	// dies makes the sender fail with EPIPE instead of blocking.
	reader, writer, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create pipe: %w", err)
	}
	send.Stdout = writer
	recv.Stdin = reader

	if err := recv.Start(); err != nil {
		reader.Close()
		writer.Close()
		return fmt.Errorf("failed to start receive: %w", err)
	}
	if err := send.Start(); err != nil {
		reader.Close()
		writer.Close()
		recv.Wait()
		return fmt.Errorf("failed to start send: %w", err)
	}
	reader.Close()
	writer.Close()

	sendErr := send.Wait()
	recvErr := recv.Wait()

	m.logCommandResult(exitCodeOf(sendErr), nil, sendStderr.Bytes())
	m.logCommandResult(exitCodeOf(recvErr), recvStdout.Bytes(), recvStderr.Bytes())

	if recvErr != nil {
		return fmt.Errorf("receive into %s failed: %w, output: %s",
			req.Destination, recvErr, strings.TrimSpace(recvStderr.String()))
	}
	if sendErr != nil {
		return fmt.Errorf("send of %s@%s failed: %w, output: %s",
			req.Dataset, req.To, sendErr, strings.TrimSpace(sendStderr.String()))
	}
	return nil
}
