package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"harmonia/internal/catalog"
)

func newTestServer(t *testing.T, documentRoot string) *Server {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New("127.0.0.1:0", store, nil, documentRoot, nil)
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/bctl/status", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "Alive" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "Alive")
	}
}

func TestArtistsEndpointEmptyCatalog(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/bctl/artists", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "[]" {
		t.Errorf("body = %q, want [] for an empty catalog", rec.Body.String())
	}
}

func TestStreamUnknownSongReturnsNotFound(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/stream?song=doesnotexist", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStreamFullFileNoRange(t *testing.T) {
	docRoot := t.TempDir()
	s := newTestServer(t, docRoot)

	songPath := filepath.Join(t.TempDir(), "song.mp3")
	content := []byte("0123456789")
	if err := os.WriteFile(songPath, content, 0o644); err != nil {
		t.Fatalf("write song file: %v", err)
	}

	ctx := context.Background()
	if err := s.store.AddFile(ctx, catalog.File{
		Path:   songPath,
		Artist: "A",
		Album:  "B",
		Title:  "C",
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	songs, err := s.store.ListSongs(ctx, "A", "B")
	if err != nil || len(songs) != 1 {
		t.Fatalf("ListSongs: %v %v", songs, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream?song="+songs[0].Hash, nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != string(content) {
		t.Errorf("body = %q, want %q", rec.Body.String(), content)
	}
}

func TestStreamPartialRange(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	songPath := filepath.Join(t.TempDir(), "song.mp3")
	content := []byte("0123456789")
	if err := os.WriteFile(songPath, content, 0o644); err != nil {
		t.Fatalf("write song file: %v", err)
	}

	ctx := context.Background()
	if err := s.store.AddFile(ctx, catalog.File{Path: songPath, Artist: "A", Album: "B", Title: "C"}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	songs, _ := s.store.ListSongs(ctx, "A", "B")

	req := httptest.NewRequest(http.MethodGet, "/stream?song="+songs[0].Hash, nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "234")
	}
	if got := rec.Header().Get("Content-Range"); got != "bytes 2-4/10" {
		t.Errorf("Content-Range = %q", got)
	}
}

func TestStreamOpenEndedRangeServesFullFile(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	songPath := filepath.Join(t.TempDir(), "song.mp3")
	content := []byte("0123456789")
	if err := os.WriteFile(songPath, content, 0o644); err != nil {
		t.Fatalf("write song file: %v", err)
	}

	ctx := context.Background()
	if err := s.store.AddFile(ctx, catalog.File{Path: songPath, Artist: "A", Album: "B", Title: "C"}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	songs, _ := s.store.ListSongs(ctx, "A", "B")

	req := httptest.NewRequest(http.MethodGet, "/stream?song="+songs[0].Hash, nil)
	req.Header.Set("Range", "bytes=0-")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for an open-ended range", rec.Code)
	}
	if rec.Body.String() != string(content) {
		t.Errorf("body = %q, want %q", rec.Body.String(), content)
	}
}

func TestStaticRejectsDotDotEscape(t *testing.T) {
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write secret file: %v", err)
	}
	docRoot := filepath.Join(outside, "public")
	if err := os.MkdirAll(docRoot, 0o755); err != nil {
		t.Fatalf("mkdir docroot: %v", err)
	}

	s := newTestServer(t, docRoot)

	req := httptest.NewRequest(http.MethodGet, "/../secret.txt", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("expected the escape attempt to be rejected, not served")
	}
}

func TestStaticServesFileUnderRoot(t *testing.T) {
	docRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(docRoot, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	s := newTestServer(t, docRoot)

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStaticRootMapsToIndexHTML(t *testing.T) {
	docRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(docRoot, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write index.html: %v", err)
	}

	s := newTestServer(t, docRoot)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "hello" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStaticDirectoryTargetReturnsNotFound(t *testing.T) {
	docRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(docRoot, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}

	s := newTestServer(t, docRoot)

	req := httptest.NewRequest(http.MethodGet, "/sub", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for a directory target", rec.Code)
	}
}

func TestSongsEndpointWireShape(t *testing.T) {
	s := newTestServer(t, t.TempDir())

	songPath := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(songPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write song file: %v", err)
	}

	ctx := context.Background()
	if err := s.store.AddFile(ctx, catalog.File{
		Path: songPath, Artist: "A", Album: "B", Title: "C", Track: 1, LengthSeconds: 42,
	}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/bctl/songs?artist=A&album=B", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for _, key := range []string{`"title":"C"`, `"length":42`, `"hash":"`} {
		if !strings.Contains(rec.Body.String(), key) {
			t.Errorf("body = %q, missing %q", rec.Body.String(), key)
		}
	}
	if strings.Contains(rec.Body.String(), "Track") || strings.Contains(rec.Body.String(), "LengthSeconds") {
		t.Errorf("body = %q, leaked internal field names", rec.Body.String())
	}
}
