package tuning

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Change is delivered on a successful, validated reload.
type Change struct {
	Constants Constants
	Previous  Constants
}

// WatchTuningFile watches the directory containing the store's file and
// pushes a Change whenever the file is rewritten with a value that
// validates and differs from the current constants. It does not mutate
// the core's state directly — the core loop applies a Change as an
// update_tuning command through the single-writer queue, where it takes
// effect immediately; no safety gate applies to tuning updates.
func WatchTuningFile(ctx context.Context, s *Store) (<-chan Change, <-chan error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("tuning: create watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("tuning: watch dir %s: %w", dir, err)
	}

	changes := make(chan Change, 4)
	errs := make(chan error, 4)

	go func() {
		defer watcher.Close()
		defer close(changes)
		defer close(errs)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				prev := s.Current()
				if err := s.Load(); err != nil {
					errs <- err
					continue
				}
				next := s.Current()
				if next != prev {
					changes <- Change{Constants: next, Previous: prev}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, errs, nil
}
