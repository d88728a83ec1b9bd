package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/go-logr/zapr"
	"github.com/runningman84/zfs-auto-backup/pkg/config"
	"github.com/runningman84/zfs-auto-backup/pkg/operator"
	"github.com/runningman84/zfs-auto-backup/pkg/report"
	"go.uber.org/zap"
	"k8s.io/klog/v2"
)

// Version can be set at build time using -ldflags
// Example: go build -ldflags="-X main.Version=1.0.0"
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	klog.InitFlags(nil)
	defer klog.Flush()

	mode := flag.String("mode", "direct", "Operation mode: direct or chroot")
	logLevel := flag.String("log-level", "info", "Log level: info or debug")
	verbose := flag.Bool("verbose", false, "Trace every zfs and zpool command (same as --log-level=debug)")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	dryRun := flag.Bool("dry-run", false, "Log what would be done without importing, snapshotting, sending or exporting")
	envFile := flag.String("env-file", os.Getenv("ENV_FILE"), "Load configuration variables from this file")
	reportFile := flag.String("report-file", "", "Write a YAML run report to this file (overrides REPORT_FILE)")
	metricsFile := flag.String("metrics-file", "", "Write Prometheus metrics to this file (overrides METRICS_FILE)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("zfs-auto-backup version %s\n", Version)
		return 0
	}

	if *verbose {
		*logLevel = "debug"
	}
	if *logLevel != "info" && *logLevel != "debug" {
		klog.Errorf("Invalid log level: %s. Must be one of: info, debug", *logLevel)
		return 2
	}

	if *logFormat != "text" && *logFormat != "json" {
		klog.Errorf("Invalid log format: %s. Must be one of: text, json", *logFormat)
		return 2
	}
	if *logFormat == "json" {
		var zapLog *zap.Logger
		var err error
		if *logLevel == "debug" {
			zapLog, err = zap.NewDevelopment()
		} else {
			zapLog, err = zap.NewProduction()
		}
		if err != nil {
			klog.Errorf("Failed to initialize JSON logger: %v", err)
			return 2
		}
		defer zapLog.Sync()

		klog.SetLogger(zapr.NewLogger(zapLog))
	}

	if *logLevel == "debug" {
		flag.Set("v", "1")
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		klog.Errorf("%v", err)
		return 2
	}

	cfg := config.NewConfig(*mode)
	cfg.LogLevel = *logLevel
	if *dryRun {
		cfg.DryRun = true
		klog.Infof("Dry-run mode enabled via command-line flag")
	}
	if *reportFile != "" {
		cfg.ReportFile = *reportFile
	}
	if *metricsFile != "" {
		cfg.MetricsFile = *metricsFile
	}
	if err := cfg.Validate(); err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return 2
	}

	klog.Infof("Starting zfs-auto-backup version %s in %s mode with %s log level", Version, *mode, *logLevel)

	summary, err := operator.NewOperator(cfg).Run()
	if summary != nil {
		writeOutputs(cfg, summary)
	}
	if err != nil {
		klog.Errorf("Backup failed: %v", err)
		return 1
	}
	return 0
}

// writeOutputs failures are logged only; they never change the exit code
func writeOutputs(cfg *config.Config, summary *operator.Summary) {
	if cfg.ReportFile != "" {
		if err := report.WriteYAML(cfg.ReportFile, summary); err != nil {
			klog.Warningf(" %v", err)
		} else {
			klog.Infof("Wrote report to %s", cfg.ReportFile)
		}
	}
	if cfg.MetricsFile != "" {
		if err := report.WriteMetrics(cfg.MetricsFile, summary); err != nil {
			klog.Warningf(" %v", err)
		} else {
			klog.Infof("Wrote metrics to %s", cfg.MetricsFile)
		}
	}
}
