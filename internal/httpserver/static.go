package httpserver

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// handleStatic serves files out of documentRoot for any request that
// matched none of the fixed routes, the same fallthrough the original
// mongoose dispatcher left to its built-in static file handler. The empty
// path and "/" map to index.html; a request resolving to a directory is
// refused rather than served.
func (s *Server) handleStatic(c *gin.Context) {
	decoded, err := url.PathUnescape(c.Request.URL.Path)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if decoded == "" || decoded == "/" {
		decoded = "/index.html"
	}

	root, err := filepath.Abs(s.documentRoot)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	requested := filepath.Join(root, filepath.Clean("/"+decoded))
	requestedAbs, err := filepath.Abs(requested)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	// The joined-and-cleaned path must still live under root; this is the
	// absolute-path-prefix check in place of naive ".." string matching.
	if requestedAbs != root && !strings.HasPrefix(requestedAbs, root+string(filepath.Separator)) {
		c.Status(http.StatusForbidden)
		return
	}

	info, err := os.Stat(requestedAbs)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	if info.IsDir() {
		c.Status(http.StatusNotFound)
		return
	}

	c.File(requestedAbs)
}
