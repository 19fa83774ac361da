// Package httpserver is the gin-based API and static file server: the
// fixed /bctl/* control endpoints, /stream for range-request audio
// delivery, an additive /bctl/search, and a document-root-bounded static
// fallback for everything else — the same ordered dispatch the original
// mongoose _begin_request used.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"harmonia/internal/catalog"
	"harmonia/internal/search"
)

// Server wraps a gin engine bound to one catalog store and document root.
type Server struct {
	engine       *gin.Engine
	store        *catalog.Store
	index        *search.Index
	documentRoot string
	log          *slog.Logger
	httpServer   *http.Server
}

// New builds a Server. index may be nil, in which case /bctl/search always
// returns an empty result set.
func New(addr string, store *catalog.Store, index *search.Index, documentRoot string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), slogMiddleware(log))

	s := &Server{
		engine:       engine,
		store:        store,
		index:        index,
		documentRoot: documentRoot,
		log:          log,
	}

	engine.GET("/bctl/status", s.handleStatus)
	engine.GET("/bctl/artists", s.handleArtists)
	engine.GET("/bctl/albums", s.handleAlbums)
	engine.GET("/bctl/songs", s.handleSongs)
	engine.GET("/bctl/search", s.handleSearch)
	engine.GET("/stream", s.handleStream)
	engine.NoRoute(s.handleStatic)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	return s
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func slogMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.String(http.StatusOK, "Alive")
}

func (s *Server) handleArtists(c *gin.Context) {
	artists, err := s.store.ListArtists(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, artists)
}

func (s *Server) handleAlbums(c *gin.Context) {
	artist := c.Query("artist")
	albums, err := s.store.ListAlbums(c.Request.Context(), artist)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, albums)
}

func (s *Server) handleSongs(c *gin.Context) {
	artist := c.Query("artist")
	album := c.Query("album")
	songs, err := s.store.ListSongs(c.Request.Context(), artist, album)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	views := make([]catalog.SongView, len(songs))
	for i, sg := range songs {
		views[i] = sg.View()
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" || s.index == nil {
		c.JSON(http.StatusOK, []search.Hit{})
		return
	}
	hits, err := s.index.Search(q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (s *Server) handleStream(c *gin.Context) {
	hash := c.Query("song")
	if hash == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	path, err := s.store.ResolveSongPath(c.Request.Context(), hash)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}

	serveFileWithRange(c, path)
}

func fmtRange(start, end, size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, size)
}
