package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Destination policies decide where a dataset lands on a backup pool.
const (
	// PolicyPool keeps only the first path element: tank/projects/foo -> <backup>/tank
	PolicyPool = "pool"
	// PolicyFull keeps the whole path: tank/projects/foo -> <backup>/tank/projects/foo
	PolicyFull = "full"
	// PolicyLeaf keeps only the last path element: tank/projects/foo -> <backup>/foo
	PolicyLeaf = "leaf"
)

// Snapshot modes decide which local snapshot is sent.
const (
	// SnapshotModeCreate takes a fresh snapshot named after the run
	SnapshotModeCreate = "create"
	// SnapshotModeLatest sends the newest existing snapshot
	SnapshotModeLatest = "latest"
)

var snapshotPrefixPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// Config holds the application configuration
type Config struct {
	Mode     string // direct or chroot
	LogLevel string // info or debug
	DryRun   bool

	// Backup behaviour
	BackupProperty    string // dataset user property listing backup pools
	SnapshotPrefix    string
	DestinationPolicy string
	SnapshotMode      string
	RecursiveSend     bool

	// Filtering
	PoolWhitelist    []string // backup pools to use (empty = all)
	DatasetWhitelist []string // local datasets to back up (empty = all)

	// Backup pool health
	RequireHealthyPool    bool
	ScrubAgeThresholdDays int

	// Locking
	EnableLocking bool
	LockFilePath  string

	// Run outputs
	ReportFile  string
	MetricsFile string

	// Commands
	ZFSCmd   []string
	ZPoolCmd []string
}

// NewConfig creates a new configuration with default values
func NewConfig(mode string) *Config {
	cfg := &Config{
		Mode:                  mode,
		LogLevel:              "info",
		DryRun:                getEnvAsBool("DRY_RUN", false),
		BackupProperty:        getEnv("BACKUP_PROPERTY", "zfs-auto-backup:backup-pools"),
		SnapshotPrefix:        getEnv("SNAPSHOT_PREFIX", "zfs-auto-backup"),
		DestinationPolicy:     getEnv("DESTINATION_POLICY", PolicyPool),
		SnapshotMode:          getEnv("SNAPSHOT_MODE", SnapshotModeCreate),
		RecursiveSend:         getEnvAsBool("RECURSIVE_SEND", true),
		PoolWhitelist:         getEnvAsStringSlice("POOL_WHITELIST", []string{}),
		DatasetWhitelist:      getEnvAsStringSlice("DATASET_WHITELIST", []string{}),
		RequireHealthyPool:    getEnvAsBool("REQUIRE_HEALTHY_POOL", true),
		ScrubAgeThresholdDays: getEnvAsInt("SCRUB_AGE_THRESHOLD_DAYS", 90),
		EnableLocking:         getEnvAsBool("ENABLE_LOCKING", true),
		LockFilePath:          getEnv("LOCK_FILE_PATH", "/tmp/zfs-auto-backup.lock"),
		ReportFile:            getEnv("REPORT_FILE", ""),
		MetricsFile:           getEnv("METRICS_FILE", ""),
	}

	switch mode {
	case "chroot":
		cfg.ZFSCmd = []string{"chroot", "/host", getEnv("ZFS_BIN", "/usr/local/sbin/zfs")}
		cfg.ZPoolCmd = []string{"chroot", "/host", getEnv("ZPOOL_BIN", "/usr/local/sbin/zpool")}
	default:
		cfg.ZFSCmd = []string{getEnv("ZFS_BIN", "/sbin/zfs")}
		cfg.ZPoolCmd = []string{getEnv("ZPOOL_BIN", "/sbin/zpool")}
	}

	return cfg
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win over the file.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration values that would make a run meaningless
func (c *Config) Validate() error {
	if c.Mode != "direct" && c.Mode != "chroot" {
		return fmt.Errorf("invalid mode %q: must be one of direct, chroot", c.Mode)
	}
	switch c.DestinationPolicy {
	case PolicyPool, PolicyFull, PolicyLeaf:
	default:
		return fmt.Errorf("invalid destination policy %q: must be one of %s, %s, %s",
			c.DestinationPolicy, PolicyPool, PolicyFull, PolicyLeaf)
	}
	switch c.SnapshotMode {
	case SnapshotModeCreate, SnapshotModeLatest:
	default:
		return fmt.Errorf("invalid snapshot mode %q: must be one of %s, %s",
			c.SnapshotMode, SnapshotModeCreate, SnapshotModeLatest)
	}
	if !snapshotPrefixPattern.MatchString(c.SnapshotPrefix) {
		return fmt.Errorf("invalid snapshot prefix %q", c.SnapshotPrefix)
	}
	if c.BackupProperty == "" || !strings.Contains(c.BackupProperty, ":") {
		return fmt.Errorf("invalid backup property %q: user properties must contain a colon", c.BackupProperty)
	}
	if len(c.ZFSCmd) == 0 || len(c.ZPoolCmd) == 0 {
		return fmt.Errorf("zfs and zpool commands must be set")
	}
	return nil
}

// IsDebug returns true when command tracing is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsPoolAllowed checks if a backup pool is in the whitelist (or if whitelist is empty, all pools are allowed)
func (c *Config) IsPoolAllowed(poolName string) bool {
	return inWhitelist(c.PoolWhitelist, poolName)
}

// IsDatasetAllowed checks if a local dataset is in the whitelist
func (c *Config) IsDatasetAllowed(dataset string) bool {
	return inWhitelist(c.DatasetWhitelist, dataset)
}

func inWhitelist(whitelist []string, name string) bool {
	if len(whitelist) == 0 {
		return true
	}
	for _, allowed := range whitelist {
		if allowed == name {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable and returns it as an integer,
// or returns the default value if not set or invalid
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBool reads an environment variable as a boolean,
// or returns the default value if not set or invalid
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsStringSlice reads an environment variable as a comma-separated list,
// or returns the default value if not set
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}
