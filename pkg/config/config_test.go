package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DRY_RUN", "BACKUP_PROPERTY", "SNAPSHOT_PREFIX", "DESTINATION_POLICY", "SNAPSHOT_MODE",
		"RECURSIVE_SEND", "POOL_WHITELIST", "DATASET_WHITELIST", "REQUIRE_HEALTHY_POOL",
		"SCRUB_AGE_THRESHOLD_DAYS", "ENABLE_LOCKING", "LOCK_FILE_PATH", "REPORT_FILE",
		"METRICS_FILE", "ZFS_BIN", "ZPOOL_BIN",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name      string
		mode      string
		wantZFS   []string
		wantZPool []string
	}{
		{
			name:      "direct mode",
			mode:      "direct",
			wantZFS:   []string{"/sbin/zfs"},
			wantZPool: []string{"/sbin/zpool"},
		},
		{
			name:      "chroot mode",
			mode:      "chroot",
			wantZFS:   []string{"chroot", "/host", "/usr/local/sbin/zfs"},
			wantZPool: []string{"chroot", "/host", "/usr/local/sbin/zpool"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(tt.mode)

			if cfg.Mode != tt.mode {
				t.Errorf("Mode = %v, want %v", cfg.Mode, tt.mode)
			}
			if cfg.LogLevel != "info" {
				t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
			}
			if cfg.BackupProperty != "zfs-auto-backup:backup-pools" {
				t.Errorf("BackupProperty = %v", cfg.BackupProperty)
			}
			if cfg.SnapshotPrefix != "zfs-auto-backup" {
				t.Errorf("SnapshotPrefix = %v", cfg.SnapshotPrefix)
			}
			if cfg.DestinationPolicy != PolicyPool {
				t.Errorf("DestinationPolicy = %v, want %v", cfg.DestinationPolicy, PolicyPool)
			}
			if cfg.SnapshotMode != SnapshotModeCreate {
				t.Errorf("SnapshotMode = %v, want %v", cfg.SnapshotMode, SnapshotModeCreate)
			}
			if !cfg.RecursiveSend {
				t.Error("RecursiveSend should default to true")
			}
			if !cfg.RequireHealthyPool {
				t.Error("RequireHealthyPool should default to true")
			}
			if cfg.ScrubAgeThresholdDays != 90 {
				t.Errorf("ScrubAgeThresholdDays = %d, want 90", cfg.ScrubAgeThresholdDays)
			}
			if cfg.DryRun {
				t.Error("DryRun should default to false")
			}

			if len(cfg.ZFSCmd) != len(tt.wantZFS) {
				t.Fatalf("ZFSCmd = %v, want %v", cfg.ZFSCmd, tt.wantZFS)
			}
			for i := range tt.wantZFS {
				if cfg.ZFSCmd[i] != tt.wantZFS[i] {
					t.Errorf("ZFSCmd[%d] = %s, want %s", i, cfg.ZFSCmd[i], tt.wantZFS[i])
				}
			}
			if len(cfg.ZPoolCmd) != len(tt.wantZPool) {
				t.Fatalf("ZPoolCmd = %v, want %v", cfg.ZPoolCmd, tt.wantZPool)
			}
			for i := range tt.wantZPool {
				if cfg.ZPoolCmd[i] != tt.wantZPool[i] {
					t.Errorf("ZPoolCmd[%d] = %s, want %s", i, cfg.ZPoolCmd[i], tt.wantZPool[i])
				}
			}

			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("DESTINATION_POLICY", PolicyFull)
	t.Setenv("SNAPSHOT_MODE", SnapshotModeLatest)
	t.Setenv("RECURSIVE_SEND", "false")
	t.Setenv("POOL_WHITELIST", "backup0, backup1 ,")
	t.Setenv("SCRUB_AGE_THRESHOLD_DAYS", "not-a-number")
	t.Setenv("ZFS_BIN", "/opt/zfs")
	t.Setenv("DRY_RUN", "true")

	cfg := NewConfig("direct")

	if cfg.DestinationPolicy != PolicyFull {
		t.Errorf("DestinationPolicy = %v, want %v", cfg.DestinationPolicy, PolicyFull)
	}
	if cfg.SnapshotMode != SnapshotModeLatest {
		t.Errorf("SnapshotMode = %v, want %v", cfg.SnapshotMode, SnapshotModeLatest)
	}
	if cfg.RecursiveSend {
		t.Error("RecursiveSend = true, want false")
	}
	if len(cfg.PoolWhitelist) != 2 || cfg.PoolWhitelist[0] != "backup0" || cfg.PoolWhitelist[1] != "backup1" {
		t.Errorf("PoolWhitelist = %v, want [backup0 backup1]", cfg.PoolWhitelist)
	}
	if cfg.ScrubAgeThresholdDays != 90 {
		t.Errorf("ScrubAgeThresholdDays = %d, want default 90 for invalid value", cfg.ScrubAgeThresholdDays)
	}
	if cfg.ZFSCmd[0] != "/opt/zfs" {
		t.Errorf("ZFSCmd[0] = %s, want /opt/zfs", cfg.ZFSCmd[0])
	}
	if !cfg.DryRun {
		t.Error("DryRun = false, want true")
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "backup.env")
	content := "SNAPSHOT_PREFIX=nightly\nDESTINATION_POLICY=leaf\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	// godotenv does not override variables that are already present, even
	// when empty, so drop the ones the file should provide.
	os.Unsetenv("SNAPSHOT_PREFIX")
	os.Unsetenv("DESTINATION_POLICY")
	t.Cleanup(func() {
		os.Unsetenv("SNAPSHOT_PREFIX")
		os.Unsetenv("DESTINATION_POLICY")
	})

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	cfg := NewConfig("direct")
	if cfg.SnapshotPrefix != "nightly" {
		t.Errorf("SnapshotPrefix = %v, want nightly", cfg.SnapshotPrefix)
	}
	if cfg.DestinationPolicy != PolicyLeaf {
		t.Errorf("DestinationPolicy = %v, want %v", cfg.DestinationPolicy, PolicyLeaf)
	}

	if err := LoadEnvFile(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("LoadEnvFile() with missing file should fail")
	}
	if err := LoadEnvFile(""); err != nil {
		t.Errorf("LoadEnvFile(\"\") error = %v, want nil", err)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "test" },
			wantErr: true,
		},
		{
			name:    "unknown destination policy",
			mutate:  func(c *Config) { c.DestinationPolicy = "parent" },
			wantErr: true,
		},
		{
			name:    "unknown snapshot mode",
			mutate:  func(c *Config) { c.SnapshotMode = "hourly" },
			wantErr: true,
		},
		{
			name:    "prefix with at sign",
			mutate:  func(c *Config) { c.SnapshotPrefix = "bad@prefix" },
			wantErr: true,
		},
		{
			name:    "property without namespace",
			mutate:  func(c *Config) { c.BackupProperty = "backuppools" },
			wantErr: true,
		},
		{
			name:    "missing zfs command",
			mutate:  func(c *Config) { c.ZFSCmd = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("direct")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsDebug(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     bool
	}{
		{
			name:     "debug mode",
			logLevel: "debug",
			want:     true,
		},
		{
			name:     "info mode",
			logLevel: "info",
			want:     false,
		},
		{
			name:     "empty log level",
			logLevel: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("direct")
			cfg.LogLevel = tt.logLevel
			if got := cfg.IsDebug(); got != tt.want {
				t.Errorf("IsDebug() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDatasetAllowed(t *testing.T) {
	tests := []struct {
		name        string
		whitelist   []string
		dataset     string
		wantAllowed bool
	}{
		{
			name:        "empty whitelist allows all",
			whitelist:   []string{},
			dataset:     "tank/data",
			wantAllowed: true,
		},
		{
			name:        "dataset in whitelist",
			whitelist:   []string{"tank/data", "tank/home"},
			dataset:     "tank/data",
			wantAllowed: true,
		},
		{
			name:        "dataset not in whitelist",
			whitelist:   []string{"tank/data", "tank/home"},
			dataset:     "tank/media",
			wantAllowed: false,
		},
		{
			name:        "exact match required",
			whitelist:   []string{"tank/data"},
			dataset:     "tank/data/subfolder",
			wantAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("direct")
			cfg.DatasetWhitelist = tt.whitelist
			if got := cfg.IsDatasetAllowed(tt.dataset); got != tt.wantAllowed {
				t.Errorf("IsDatasetAllowed(%s) = %v, want %v", tt.dataset, got, tt.wantAllowed)
			}
		})
	}
}

func TestIsPoolAllowed(t *testing.T) {
	cfg := NewConfig("direct")
	if !cfg.IsPoolAllowed("backup0") {
		t.Error("IsPoolAllowed() with empty whitelist should allow every pool")
	}

	cfg.PoolWhitelist = []string{"backup1"}
	if cfg.IsPoolAllowed("backup0") {
		t.Error("IsPoolAllowed(backup0) = true, want false")
	}
	if !cfg.IsPoolAllowed("backup1") {
		t.Error("IsPoolAllowed(backup1) = false, want true")
	}
}
