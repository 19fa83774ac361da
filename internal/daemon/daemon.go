// Package daemon owns the process lifecycle: it opens the catalog store,
// starts the scheduler and HTTP server, kicks off an initial scan, and
// blocks dispatching events until asked to shut down. Signal handling only
// ever enqueues an event here — it never calls application logic directly,
// the same discipline the original self-pipe mainloop enforced.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harmonia/internal/catalog"
	"harmonia/internal/config"
	"harmonia/internal/httpserver"
	"harmonia/internal/scanner"
	"harmonia/internal/scheduler"
	"harmonia/internal/search"
	"harmonia/internal/tagreader"
)

// Daemon wires together every long-lived component for one process
// lifetime.
type Daemon struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *catalog.Store
	index     *search.Index
	scanner   *scanner.Scanner
	sched     *scheduler.Scheduler
	server    *httpserver.Server
	terminate chan struct{}
}

// New constructs every component from cfg but does not start anything yet.
func New(cfg *config.Config, log *slog.Logger) (*Daemon, error) {
	store, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	idx, err := search.New()
	if err != nil {
		store.Close()
		return nil, err
	}

	sched := scheduler.New(cfg.SchedulerThreads, log)
	sc := scanner.New(cfg.MusicDirs, store, tagreader.New(), log)

	addr := cfg.ListeningAddress + ":" + cfg.ListeningPort
	server := httpserver.New(addr, store, idx, cfg.DocumentRoot, log)

	return &Daemon{
		cfg:       cfg,
		log:       log,
		store:     store,
		index:     idx,
		scanner:   sc,
		sched:     sched,
		server:    server,
		terminate: make(chan struct{}),
	}, nil
}

// Run starts the HTTP server, submits the initial scan, and blocks
// dispatching signals until SIGINT, SIGTERM, or SIGHUP requests shutdown.
// SIGUSR1 triggers a rescan without exiting the loop.
func (d *Daemon) Run() error {
	serverErrs := make(chan error, 1)
	go func() {
		d.log.Info("http server starting", "addr", d.cfg.ListeningAddress+":"+d.cfg.ListeningPort)
		serverErrs <- d.server.ListenAndServe()
	}()

	d.submitScan()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				d.log.Debug("got rescan signal")
				d.sched.AddEvent(&scheduler.Event{Name: "rescan", Run: d.submitScan})
			default:
				d.log.Debug("got shutdown signal", "signal", sig)
				return d.shutdown()
			}
		case err := <-serverErrs:
			if err != nil {
				d.log.Error("http server exited", "error", err)
			}
			return d.shutdown()
		case <-d.terminate:
			return d.shutdown()
		}
	}
}

// Stop requests the run loop exit, for use from tests or an in-process
// supervisor rather than an OS signal.
func (d *Daemon) Stop() {
	close(d.terminate)
}

func (d *Daemon) submitScan() {
	d.sched.AddTask(&scheduler.Task{
		Name: "scan",
		Run: func() scheduler.Status {
			ctx := context.Background()
			n, err := d.scanner.Refresh(ctx)
			if err != nil {
				if _, busy := err.(scanner.ErrBusy); busy {
					d.log.Debug("scan already in progress, skipping")
					return scheduler.StatusFinished
				}
				d.log.Error("scan failed", "error", err)
				return scheduler.StatusFailed
			}
			d.log.Info("scan completed", "ingested", n)
			return scheduler.StatusFinished
		},
		Finished: func() {
			d.sched.AddEvent(&scheduler.Event{
				Name: "rebuild-search-index",
				Run: func() {
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					if err := d.index.Rebuild(ctx, d.store); err != nil {
						d.log.Error("search index rebuild failed", "error", err)
					}
				},
			})
		},
	})
}

func (d *Daemon) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.server.Shutdown(ctx); err != nil {
		d.log.Error("http server shutdown error", "error", err)
	}
	d.scanner.Cancel()
	d.sched.Close()
	if err := d.index.Close(); err != nil {
		d.log.Error("search index close error", "error", err)
	}
	return d.store.Close()
}
