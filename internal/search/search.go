// Package search maintains an in-memory full-text index over the catalog's
// artists, albums, and songs, rebuilt after every completed scan.
package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"harmonia/internal/catalog"
)

// Hit is one search result.
type Hit struct {
	Type   string `json:"type"` // "artist", "album", or "song"
	Name   string `json:"name"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

type document struct {
	Type   string
	Name   string
	Artist string
	Album  string
}

// Index is a rebuildable, query-only bleve index. The catalog store remains
// the durable copy; Index holds no state bleve's in-memory segments
// wouldn't happily lose on restart.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

// New builds an empty in-memory index.
func New() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Rebuild replaces the index contents with everything currently in store.
func (i *Index) Rebuild(ctx context.Context, store *catalog.Store) error {
	songs, err := store.AllSongs(ctx)
	if err != nil {
		return fmt.Errorf("load songs for indexing: %w", err)
	}

	mapping := bleve.NewIndexMapping()
	fresh, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return fmt.Errorf("create search index: %w", err)
	}

	seenArtists := map[string]bool{}
	seenAlbums := map[string]bool{}
	for n, s := range songs {
		if !seenArtists[s.Artist] {
			seenArtists[s.Artist] = true
			_ = fresh.Index(fmt.Sprintf("artist:%s", s.Artist), document{Type: "artist", Name: s.Artist})
		}
		albumKey := s.Artist + "\x00" + s.Album
		if !seenAlbums[albumKey] {
			seenAlbums[albumKey] = true
			_ = fresh.Index(fmt.Sprintf("album:%s", albumKey), document{Type: "album", Name: s.Album, Artist: s.Artist})
		}
		_ = fresh.Index(fmt.Sprintf("song:%d", n), document{Type: "song", Name: s.Title, Artist: s.Artist, Album: s.Album})
	}

	i.mu.Lock()
	old := i.idx
	i.idx = fresh
	i.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return nil
}

// Search returns the indexed documents matching the query text, at most 50
// of them.
func (i *Index) Search(query string) ([]Hit, error) {
	i.mu.RLock()
	idx := i.idx
	i.mu.RUnlock()

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Fields = []string{"Type", "Name", "Artist", "Album"}
	req.Size = 50

	result, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hit := Hit{
			Type: fieldString(h.Fields, "Type"),
			Name: fieldString(h.Fields, "Name"),
		}
		if artist := fieldString(h.Fields, "Artist"); artist != "" {
			hit.Artist = artist
		}
		if album := fieldString(h.Fields, "Album"); album != "" {
			hit.Album = album
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func fieldString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Close releases the underlying index.
func (i *Index) Close() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.idx == nil {
		return nil
	}
	return i.idx.Close()
}
