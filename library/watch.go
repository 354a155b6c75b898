package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// ErrAlreadyWatching is returned when Watch is called on a store that is
// already being watched.
var ErrAlreadyWatching = errors.New("library is already being watched")

// Watch caches the listing and drops the cache whenever the library
// directory changes. It blocks until ctx is done. The directory must exist.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create library watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch library dir: %w", err)
	}

	s.mu.Lock()
	if s.watching {
		s.mu.Unlock()
		return ErrAlreadyWatching
	}
	s.watching = true
	s.cached = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.watching = false
		s.cached = false
		s.cache = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Chmod alone never changes the listing.
			if event.Op == fsnotify.Chmod {
				continue
			}
			s.invalidate()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Missed events are possible; rescan on next List.
			s.invalidate()
			s.logger.Debug("library watcher error", slog.Any("error", err))
		}
	}
}
