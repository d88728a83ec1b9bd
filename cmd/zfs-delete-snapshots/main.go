package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/runningman84/zfs-auto-backup/pkg/backup"
	"github.com/runningman84/zfs-auto-backup/pkg/config"
	"github.com/runningman84/zfs-auto-backup/pkg/prune"
	"github.com/runningman84/zfs-auto-backup/pkg/zfs"
	"k8s.io/klog/v2"
)

// Version can be set at build time using -ldflags
var Version = "dev"

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <dataset> <snapshot>\n\n", os.Args[0])
	fmt.Fprintln(flag.CommandLine.Output(), "Delete all snapshots of <dataset> up to and including <snapshot>.")
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	klog.InitFlags(nil)
	defer klog.Flush()

	mode := flag.String("mode", "direct", "Operation mode: direct or chroot")
	verbose := flag.Bool("verbose", false, "Trace every zfs command")
	dryRun := flag.Bool("dry-run", false, "Don't actually destroy anything")
	yes := flag.Bool("yes", false, "Do not ask for confirmation")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("zfs-delete-snapshots version %s\n", Version)
		return 0
	}
	if flag.NArg() != 2 {
		flag.Usage()
		return 2
	}
	dataset, name := flag.Arg(0), flag.Arg(1)

	cfg := config.NewConfig(*mode)
	if *verbose {
		cfg.LogLevel = "debug"
		flag.Set("v", "1")
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return 2
	}

	var vm backup.VolumeManager = zfs.NewManager(cfg)
	if cfg.DryRun {
		vm = backup.NewDryRun(vm)
	}

	selected, err := prune.Plan(vm, dataset, name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v. Exiting.\n", err)
		return 1
	}

	fmt.Println("The following snapshots will be destroyed:")
	for _, snapshot := range selected {
		fmt.Println("    " + snapshot.FullName())
	}

	if !*yes && !confirm(os.Stdin, os.Stdout) {
		fmt.Println("No snapshots destroyed. Exiting.")
		return 0
	}

	if _, err := prune.Apply(vm, selected); err != nil {
		klog.Errorf("Some snapshots could not be destroyed: %v", err)
		return 1
	}
	return 0
}

// confirm asks on out and reads a y/yes answer from in
func confirm(in io.Reader, out io.Writer) bool {
	fmt.Fprint(out, "Proceed? [y/N] ")
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
