// Package confdir loads JSON config directories into immutable snapshots
// that can be swapped atomically at runtime.
package confdir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
)

// ParseFunc builds a snapshot from the raw config documents.
type ParseFunc[T any] func(docs ...[]byte) (*T, error)

// Store publishes snapshots of a config directory. Readers take the current
// snapshot with Current and never observe a partially loaded set; Reload
// swaps in a new one only when every file parsed.
type Store[T any] struct {
	dir     string
	parse   ParseFunc[T]
	current atomic.Pointer[T]
}

// New loads every *.json file under dir (names starting with "_" are
// skipped) through parse.
func New[T any](dir string, parse ParseFunc[T]) (*Store[T], error) {
	s := &Store[T]{dir: dir, parse: parse}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Static wraps a fixed snapshot. Reload is a no-op.
func Static[T any](snap *T) *Store[T] {
	s := &Store[T]{}
	s.current.Store(snap)
	return s
}

// Current returns the current snapshot.
func (s *Store[T]) Current() *T {
	return s.current.Load()
}

// Dir returns the watched directory, empty for static stores.
func (s *Store[T]) Dir() string {
	return s.dir
}

// Reload re-reads the config directory.
func (s *Store[T]) Reload() error {
	if s.dir == "" {
		return nil
	}
	docs, err := Read(s.dir)
	if err != nil {
		return err
	}
	snap, err := s.parse(docs...)
	if err != nil {
		return fmt.Errorf("parse configs in %s: %w", s.dir, err)
	}
	s.current.Store(snap)
	return nil
}

// Read returns the contents of every *.json file under dir in lexical path
// order, skipping names that start with "_".
func Read(dir string) ([][]byte, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, "_") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	docs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		docs = append(docs, b)
	}
	return docs, nil
}
