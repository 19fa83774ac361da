// Package tagreader adapts github.com/dhowden/tag and go-ffprobe.v2 to the
// daemon's tag-reading contract: a path maps to a Tags value or an error
// when the file's format is not recognized.
package tagreader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dhowden/tag"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Tags is everything the catalog needs out of one audio file.
type Tags struct {
	Artist        string
	Album         string
	Title         string
	Track         int
	LengthSeconds int
}

// ErrUnrecognized is returned when the file at a given path could not be
// parsed as a tagged audio file.
var ErrUnrecognized = errors.New("tagreader: unrecognized audio file")

// Reader reads tags from files on disk.
type Reader struct {
	// ProbeTimeout bounds the ffprobe fallback call. Zero means no bound.
	ProbeTimeout time.Duration
}

// New returns a Reader with a sensible ffprobe timeout.
func New() *Reader {
	return &Reader{ProbeTimeout: 5 * time.Second}
}

// Read extracts artist, album, title, track number, and duration from the
// file at path. The tag library reports no duration, so the duration
// always comes from probing the file with ffprobe; it is left at zero when
// the probe fails.
func (r *Reader) Read(path string) (Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tags{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		return Tags{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	artist := meta.Artist()
	album := meta.Album()
	title := meta.Title()
	if artist == "" || album == "" || title == "" {
		return Tags{}, fmt.Errorf("%w: missing artist, album, or title", ErrUnrecognized)
	}

	track, _ := meta.Track()

	tags := Tags{
		Artist: artist,
		Album:  album,
		Title:  title,
		Track:  track,
	}

	if length := r.probeDuration(path); length > 0 {
		tags.LengthSeconds = length
	}

	return tags, nil
}

// probeDuration shells out to ffprobe for the stream duration. Any failure
// is non-fatal: the caller treats a zero result as "unknown."
func (r *Reader) probeDuration(path string) int {
	ctx := context.Background()
	var cancel context.CancelFunc
	if r.ProbeTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.ProbeTimeout)
		defer cancel()
	}

	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0
	}
	return int(data.Format.DurationSeconds)
}
