// Package config reads the daemon's configuration file: flat "key = value"
// lines, "#" comments, optional surrounding quotes on the value.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	DefaultListeningAddress = "0.0.0.0"
	DefaultListeningPort    = "8080"
	DefaultDocumentRoot     = "./public"
	DefaultDatabasePath     = "./harmonia.db"
	DefaultSchedulerThreads = "0" // 0 means "cpu count - 1, minimum 1"
	DefaultMusicDir         = "./music"
)

// Config holds the resolved settings for one daemon run, one field per
// options_table entry in the file this parser was translated from, each
// falling back to its own default when absent from the file.
type Config struct {
	ListeningAddress string
	ListeningPort    string
	DocumentRoot     string
	DatabasePath     string
	SchedulerThreads int
	MusicDirs        []string
}

var keys = []string{
	"listening-address",
	"listening-port",
	"document-root",
	"database-path",
	"scheduler-threads",
	"music-dir",
}

// Load parses path and returns a Config with defaults filled in for any
// key the file does not set.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if isComment(line) {
			continue
		}
		key, val, ok := parseLine(line)
		if !ok {
			continue
		}
		values[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{
		ListeningAddress: lookup(values, "listening-address", DefaultListeningAddress),
		ListeningPort:    lookup(values, "listening-port", DefaultListeningPort),
		DocumentRoot:     lookup(values, "document-root", DefaultDocumentRoot),
		DatabasePath:     lookup(values, "database-path", DefaultDatabasePath),
	}

	threadsStr := lookup(values, "scheduler-threads", DefaultSchedulerThreads)
	threads, err := strconv.Atoi(threadsStr)
	if err != nil {
		return nil, fmt.Errorf("scheduler-threads: %w", err)
	}
	cfg.SchedulerThreads = threads

	if dirs, ok := values["music-dir"]; ok {
		cfg.MusicDirs = splitDirs(dirs)
	} else {
		cfg.MusicDirs = []string{DefaultMusicDir}
	}

	return cfg, nil
}

func lookup(values map[string]string, key, def string) string {
	if v, ok := values[key]; ok {
		return v
	}
	return def
}

func splitDirs(v string) []string {
	parts := strings.Split(v, ":")
	dirs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

func isComment(line string) bool {
	trimmed := stripLeadingWhitespace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

// parseLine mirrors the original parser's stripping rules: strip leading
// whitespace from the key, split on the first "=", strip leading whitespace
// from the value, drop one leading quote if present, then strip every
// trailing space, tab, or quote character rather than requiring a matched
// closing quote.
func parseLine(line string) (key, val string, ok bool) {
	key = stripLeadingWhitespace(line)
	if key == "" {
		return "", "", false
	}

	idx := strings.IndexByte(key, '=')
	if idx < 0 {
		return "", "", false
	}

	rawKey := strings.TrimSpace(key[:idx])
	if !isKnownKey(rawKey) {
		return "", "", false
	}

	value := stripLeadingWhitespace(key[idx+1:])
	value = strings.TrimPrefix(value, `"`)
	value = stripTrailingWhitechars(value)
	if value == "" {
		return "", "", false
	}

	return rawKey, value, true
}

func isKnownKey(key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func stripLeadingWhitespace(s string) string {
	return strings.TrimLeft(s, " \t")
}

// stripTrailingWhitechars drops every trailing space, tab, or double-quote
// character, matching the parser this was translated from treating each of
// those characters as part of the terminator rather than requiring a single
// matched pair.
func stripTrailingWhitechars(s string) string {
	end := len(s)
	for end > 0 {
		c := s[end-1]
		if c == ' ' || c == '\t' || c == '"' || c == '\r' || c == '\n' {
			end--
			continue
		}
		break
	}
	return s[:end]
}
