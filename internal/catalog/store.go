package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/fsnotify.v1"
)

// Store holds the current catalog for a long-running process. Readers call
// Current and keep the returned pointer for the whole build; a reload swaps
// in a new instance without touching the old one.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
	logger  *slog.Logger

	mu       sync.Mutex
	onReload func(*Catalog)
}

// NewStore loads path and returns a Store serving it.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps an already built catalog. Reload is a no-op error.
func NewStaticStore(c *Catalog) *Store {
	s := &Store{logger: slog.Default()}
	s.current.Store(c)
	return s
}

// Current returns the catalog in effect. It never blocks.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// SetOnReload registers a callback invoked after every successful reload.
func (s *Store) SetOnReload(fn func(*Catalog)) {
	s.mu.Lock()
	s.onReload = fn
	s.mu.Unlock()
}

// Reload rebuilds the catalog from the configured path and swaps it in.
// On failure the previous catalog stays in effect.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" && s.current.Load() != nil {
		return fmt.Errorf("catalog store has no reference file to reload")
	}

	c, err := Open(s.path)
	if err != nil {
		return err
	}
	previous := s.current.Swap(c)

	prevVersion := ""
	if previous != nil {
		prevVersion = previous.Version()
	}
	s.logger.Info("catalog loaded",
		"path", s.path,
		"version", c.Version(),
		"previous_version", prevVersion,
		"products", c.Len(),
	)

	if s.onReload != nil {
		s.onReload(c)
	}
	return nil
}

// Watch reloads the catalog whenever its file is created, written or
// replaced. It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("no reference file configured for watching")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and copy tools often replace the file
	// through a rename, which drops a watch placed on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create,
				event.Op&fsnotify.Write == fsnotify.Write,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				if err := s.Reload(); err != nil {
					s.logger.Warn("catalog reload failed, keeping previous version",
						"path", s.path,
						"error", err,
					)
				}
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				s.logger.Warn("catalog file removed, keeping previous version", "path", s.path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("catalog watcher error", "error", err)
		}
	}
}
