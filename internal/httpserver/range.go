package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type byteRange struct {
	start int64
	end   int64
	// full marks a range that covers the whole file and must be served as
	// 200, not 206 — the bytes=start- form (any valid start) collapses to
	// this rather than a one-range partial response.
	full bool
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".aac":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".wma":  "audio/x-ms-wma",
}

func contentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// serveFileWithRange serves path honoring a single-range Range header:
// bytes=start-end, or bytes=-suffix (last N bytes). bytes=start- (no end)
// is treated as a request for the whole file and served as 200, same as no
// Range header at all. Multiple ranges are not supported and fall back to
// 416, matching the single-range contract this was built against.
func serveFileWithRange(c *gin.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	size := info.Size()

	c.Header("Content-Type", contentTypeFor(path))
	c.Header("Accept-Ranges", "bytes")

	rangeHeader := c.GetHeader("Range")
	if rangeHeader == "" {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		io.Copy(c.Writer, f)
		return
	}

	ranges, err := parseRangeHeader(rangeHeader, size)
	if err != nil || len(ranges) != 1 {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	r := ranges[0]
	if r.full {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
		c.Status(http.StatusOK)
		io.Copy(c.Writer, f)
		return
	}
	length := r.end - r.start + 1

	c.Header("Content-Range", fmtRange(r.start, r.end, size))
	c.Header("Content-Length", strconv.FormatInt(length, 10))
	c.Status(http.StatusPartialContent)

	if _, err := f.Seek(r.start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(c.Writer, f, length)
}

func parseRangeHeader(header string, size int64) ([]byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, fmt.Errorf("unsupported range unit")
	}

	spec := strings.TrimPrefix(header, prefix)
	parts := strings.Split(spec, ",")
	if len(parts) != 1 {
		return nil, fmt.Errorf("multiple ranges not supported")
	}

	r := strings.TrimSpace(parts[0])

	switch {
	case strings.HasPrefix(r, "-"):
		suffixLen, err := strconv.ParseInt(r[1:], 10, 64)
		if err != nil || suffixLen <= 0 {
			return nil, fmt.Errorf("invalid suffix range")
		}
		if suffixLen > size {
			suffixLen = size
		}
		return []byteRange{{start: size - suffixLen, end: size - 1}}, nil

	case strings.HasSuffix(r, "-"):
		start, err := strconv.ParseInt(r[:len(r)-1], 10, 64)
		if err != nil || start < 0 || start >= size {
			return nil, fmt.Errorf("invalid prefix range")
		}
		// Missing end: treat as a request for the full file, served as 200
		// rather than a 206 partial response.
		return []byteRange{{full: true}}, nil

	default:
		segs := strings.SplitN(r, "-", 2)
		if len(segs) != 2 {
			return nil, fmt.Errorf("invalid range format")
		}
		start, err := strconv.ParseInt(segs[0], 10, 64)
		if err != nil || start < 0 {
			return nil, fmt.Errorf("invalid range start")
		}
		end, err := strconv.ParseInt(segs[1], 10, 64)
		if err != nil || end < start || end >= size {
			return nil, fmt.Errorf("invalid range end")
		}
		return []byteRange{{start: start, end: end}}, nil
	}
}
