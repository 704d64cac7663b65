// Package history keeps the ordered list of previously executed
// commands: consecutive duplicates are collapsed and entries persist
// to a plain text file, one command per line, appended newest-last.
// The line editor is seeded from Entries and handles up/down
// navigation itself.
package history

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// flushEvery bounds how many new entries may accumulate before Record
// persists to disk on its own.
const flushEvery = 20

// Store is an append-only command history. It is single-writer: all
// mutation happens from the interactive loop, so no locking is needed.
type Store struct {
	path    string
	entries []string
	dirty   int
}

// New creates a store persisting to path. Pass an empty path for a
// purely in-memory history (batch mode).
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the history file. A missing file is an empty history, not
// an error.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open history %s: %w", s.path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line != "" {
			s.entries = append(s.entries, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read history %s: %w", s.path, err)
	}
	return nil
}

// Record appends text unless it equals the most recent entry. Only
// consecutive duplicates collapse; earlier occurrences are kept.
func (s *Store) Record(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if n := len(s.entries); n > 0 && s.entries[n-1] == text {
		return
	}
	s.entries = append(s.entries, text)
	s.dirty++
	if s.dirty >= flushEvery {
		_ = s.Persist()
	}
}

// Entries returns the stored commands, oldest first. The returned
// slice is shared; callers must not mutate it.
func (s *Store) Entries() []string {
	return s.entries
}

// Len returns the number of stored commands.
func (s *Store) Len() int { return len(s.entries) }

// Persist writes the history atomically: a temp file in the same
// directory is renamed over the target so an interrupted write never
// leaves a truncated history behind.
func (s *Store) Persist() error {
	if s.path == "" {
		return nil
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".history-*")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	w := bufio.NewWriter(tmp)
	for _, e := range s.entries {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return fmt.Errorf("write history: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history %s: %w", s.path, err)
	}
	s.dirty = 0
	return nil
}

