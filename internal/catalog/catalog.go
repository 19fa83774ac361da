// Package catalog is the embedded relational store: artists, albums, and
// songs, indexed by the three-table model this service has always used.
package catalog

import (
	"context"
	"crypto/md5"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS artists (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS albums (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	artist_id INTEGER NOT NULL REFERENCES artists(id),
	title     TEXT NOT NULL,
	UNIQUE(artist_id, title)
);

CREATE TABLE IF NOT EXISTS songs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	hash            TEXT NOT NULL UNIQUE,
	path            TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL,
	track           INTEGER NOT NULL DEFAULT 0,
	length_seconds  INTEGER NOT NULL DEFAULT 0,
	artist_id       INTEGER NOT NULL REFERENCES artists(id),
	album_id        INTEGER NOT NULL REFERENCES albums(id)
);
`

// File is what the scanner hands to AddFile for one successfully tagged
// audio file.
type File struct {
	Path          string
	Artist        string
	Album         string
	Title         string
	Track         int
	LengthSeconds int
}

// Song is one row of the songs table joined against its artist and album
// names, as returned by ListSongs.
type Song struct {
	Title         string
	Track         int
	LengthSeconds int
	Hash          string
}

// SongView is the wire representation of a Song: title, length in seconds,
// and the hash used to stream it.
type SongView struct {
	Title  string `json:"title"`
	Length int    `json:"length"`
	Hash   string `json:"hash"`
}

// View converts a Song to its wire representation.
func (sg Song) View() SongView {
	return SongView{Title: sg.Title, Length: sg.LengthSeconds, Hash: sg.Hash}
}

// Store is the catalog's embedded SQLite-backed storage. Writes are
// serialized with an explicit mutex on top of the single-connection pool,
// so the invariant holds even if the pool size configuration ever changes.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates (if needed) and opens the SQLite database at path, running
// the schema unconditionally — additive CREATE TABLE IF NOT EXISTS, no
// separate migration table.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashPath returns the catalog's stable identifier for an absolute path:
// the MD5 hex digest of the path string.
func HashPath(path string) string {
	sum := md5.Sum([]byte(path))
	return fmt.Sprintf("%x", sum)
}

// AddFile upserts one file's metadata into the catalog, keyed on path. A
// second AddFile for the same path updates the existing song row in place
// rather than creating a duplicate or failing.
func (s *Store) AddFile(ctx context.Context, f File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	artistID, err := lookupOrInsert(ctx, tx, `SELECT id FROM artists WHERE name = ?`,
		`INSERT INTO artists(name) VALUES (?)`, f.Artist)
	if err != nil {
		return fmt.Errorf("resolve artist: %w", err)
	}

	var albumID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM albums WHERE artist_id = ? AND title = ?`, artistID, f.Album).Scan(&albumID)
	if errors.Is(err, sql.ErrNoRows) {
		res, insErr := tx.ExecContext(ctx, `INSERT INTO albums(artist_id, title) VALUES (?, ?)`, artistID, f.Album)
		if insErr != nil {
			return fmt.Errorf("insert album: %w", insErr)
		}
		albumID, _ = res.LastInsertId()
	} else if err != nil {
		return fmt.Errorf("resolve album: %w", err)
	}

	hash := HashPath(f.Path)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO songs(hash, path, title, track, length_seconds, artist_id, album_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash = excluded.hash,
			title = excluded.title,
			track = excluded.track,
			length_seconds = excluded.length_seconds,
			artist_id = excluded.artist_id,
			album_id = excluded.album_id
	`, hash, f.Path, f.Title, f.Track, f.LengthSeconds, artistID, albumID)
	if err != nil {
		return fmt.Errorf("upsert song: %w", err)
	}

	return tx.Commit()
}

func lookupOrInsert(ctx context.Context, tx *sql.Tx, selectQuery, insertQuery, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectQuery, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, insertQuery, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListArtists returns every artist name in the catalog, in insertion order.
func (s *Store) ListArtists(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM artists ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query artists: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ListAlbums returns every album title by the named artist, in insertion
// order.
func (s *Store) ListAlbums(ctx context.Context, artist string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT title FROM albums WHERE artist_id = (SELECT id FROM artists WHERE name = ?) ORDER BY id`, artist)
	if err != nil {
		return nil, fmt.Errorf("query albums: %w", err)
	}
	defer rows.Close()

	titles := []string{}
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// ListSongs returns every song on the named album by the named artist,
// ordered by track number.
func (s *Store) ListSongs(ctx context.Context, artist, album string) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.title, s.track, s.length_seconds, s.hash
		FROM songs s
		JOIN artists ar ON s.artist_id = ar.id
		JOIN albums al ON s.album_id = al.id
		WHERE ar.name = ? AND al.title = ?
		ORDER BY s.track
	`, artist, album)
	if err != nil {
		return nil, fmt.Errorf("query songs: %w", err)
	}
	defer rows.Close()

	songs := []Song{}
	for rows.Next() {
		var sg Song
		if err := rows.Scan(&sg.Title, &sg.Track, &sg.LengthSeconds, &sg.Hash); err != nil {
			return nil, err
		}
		songs = append(songs, sg)
	}
	return songs, rows.Err()
}

// ErrSongNotFound is returned by ResolveSongPath when no song matches hash.
var ErrSongNotFound = errors.New("catalog: song not found")

// ResolveSongPath returns the absolute path stored for the song identified
// by hash.
func (s *Store) ResolveSongPath(ctx context.Context, hash string) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM songs WHERE hash = ?`, hash).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSongNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query song path: %w", err)
	}
	return path, nil
}

// IndexedSong is one song together with its artist and album names, as
// returned by AllSongs.
type IndexedSong struct {
	Hash   string
	Title  string
	Artist string
	Album  string
}

// AllSongs returns every song in the catalog joined with its artist and
// album names, used by internal/search to rebuild the full-text index.
func (s *Store) AllSongs(ctx context.Context) ([]IndexedSong, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.hash, s.title, ar.name, al.title
		FROM songs s
		JOIN artists ar ON s.artist_id = ar.id
		JOIN albums al ON s.album_id = al.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query all songs: %w", err)
	}
	defer rows.Close()

	var out []IndexedSong
	for rows.Next() {
		var sg IndexedSong
		if err := rows.Scan(&sg.Hash, &sg.Title, &sg.Artist, &sg.Album); err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}
