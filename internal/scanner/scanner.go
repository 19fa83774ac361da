// Package scanner walks configured music directories and ingests audio
// files into the catalog store, single-flight guarded the way the
// original's scan_in_progress flag guarded a single background thread.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"harmonia/internal/catalog"
	"harmonia/internal/tagreader"
)

var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wav":  true,
	".wma":  true,
}

// TagReader is the external tag-reading contract the scanner depends on.
// *tagreader.Reader is the production implementation; tests substitute a
// fake.
type TagReader interface {
	Read(path string) (tagreader.Tags, error)
}

// Scanner drives one catalog refresh at a time over a fixed set of
// directories.
type Scanner struct {
	dirs    []string
	store   *catalog.Store
	reader  TagReader
	log     *slog.Logger
	running int32
	cancel  int32
}

// New returns a Scanner over dirs, ingesting into store.
func New(dirs []string, store *catalog.Store, reader TagReader, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{dirs: dirs, store: store, reader: reader, log: log}
}

// ErrBusy is returned by Refresh when a scan is already in progress.
type ErrBusy struct{}

func (ErrBusy) Error() string { return "scanner: scan already in progress" }

// Refresh walks every configured directory and ingests each recognized
// audio file. Only one Refresh may run at a time; a concurrent call
// returns ErrBusy immediately rather than blocking, mirroring
// music_db_refresh's behavior when scan_in_progress is already set.
func (s *Scanner) Refresh(ctx context.Context) (int, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return 0, ErrBusy{}
	}
	defer atomic.StoreInt32(&s.running, 0)
	atomic.StoreInt32(&s.cancel, 0)

	ingested := 0
	for _, dir := range s.dirs {
		n, err := s.scanDir(ctx, dir)
		ingested += n
		if err != nil {
			return ingested, err
		}
		if atomic.LoadInt32(&s.cancel) == 1 {
			return ingested, context.Canceled
		}
	}
	return ingested, nil
}

// Cancel requests that a running Refresh stop at the next opportunity.
// Checked between directory entries, never mid-file.
func (s *Scanner) Cancel() {
	atomic.StoreInt32(&s.cancel, 1)
}

// scanDir recurses depth-first through dir. File symlinks are followed
// (and must resolve to a regular file); directory symlinks are skipped and
// never recursed into, so symlink cycles cannot occur.
func (s *Scanner) scanDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		s.log.Warn("failed to read directory", "dir", dir, "error", err)
		return 0, nil
	}

	ingested := 0
	for _, entry := range entries {
		if atomic.LoadInt32(&s.cancel) == 1 {
			return ingested, context.Canceled
		}
		select {
		case <-ctx.Done():
			return ingested, ctx.Err()
		default:
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, _, isDir, ok := resolveSymlink(path)
			if !ok || isDir {
				continue
			}
			if n := s.maybeIngest(ctx, resolved); n {
				ingested++
			}
			continue
		}

		if entry.IsDir() {
			n, err := s.scanDir(ctx, path)
			ingested += n
			if err != nil {
				return ingested, err
			}
			continue
		}

		if s.maybeIngest(ctx, path) {
			ingested++
		}
	}

	return ingested, nil
}

// resolveSymlink follows a symlink and reports whether the target is a
// directory, along with its canonical path.
func resolveSymlink(path string) (resolved, real string, isDir, ok bool) {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", "", false, false
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", "", false, false
	}
	return target, target, info.IsDir(), true
}

func (s *Scanner) maybeIngest(ctx context.Context, path string) bool {
	if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}

	tags, err := s.reader.Read(path)
	if err != nil {
		s.log.Debug("skipping unrecognized file", "path", path, "error", err)
		return false
	}

	err = s.store.AddFile(ctx, catalog.File{
		Path:          path,
		Artist:        tags.Artist,
		Album:         tags.Album,
		Title:         tags.Title,
		Track:         tags.Track,
		LengthSeconds: tags.LengthSeconds,
	})
	if err != nil {
		s.log.Warn("failed to ingest file", "path", path, "error", err)
		return false
	}
	return true
}

// IsRunning reports whether a Refresh is currently in progress.
func (s *Scanner) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}
