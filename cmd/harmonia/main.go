// Command harmonia is the music-streaming daemon: catalog scanner,
// worker-pool scheduler, and HTTP API in one process.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"harmonia/internal/config"
	"harmonia/internal/daemon"
)

const (
	versionMajor = 1
	versionMinor = 0
)

const defaultConfigPath = "/etc/harmonia/harmonia.conf"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("c", defaultConfigPath, "path to configuration file")
		noColor    = flag.Bool("n", false, "disable colored log output")
		trace      = flag.Bool("t", false, "enable debug-level logging")
		showVer    = flag.Bool("v", false, "print version and exit")
	)
	flag.Usage = printUsage
	flag.Parse()

	if *showVer {
		fmt.Printf("harmonia %d.%d\n", versionMajor, versionMinor)
		return 0
	}

	log := newLogger(*noColor, *trace)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize daemon", "error", err)
		return 1
	}

	log.Info(fmt.Sprintf("harmonia %d.%d started", versionMajor, versionMinor))
	if err := d.Run(); err != nil {
		log.Error("daemon exited with error", "error", err)
		return 1
	}

	return 0
}

func newLogger(noColor, trace bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if trace {
		opts.Level = slog.LevelDebug
	}
	// noColor only affects whether ANSI-colored level names would be
	// emitted; slog's text handler has no built-in color, so this flag is
	// kept for parity with the original CLI contract and wired in once a
	// colorized handler is worth the dependency.
	_ = noColor
	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "usage: harmonia [-c config] [-n] [-t] [-v]\n")
	flag.PrintDefaults()
}
