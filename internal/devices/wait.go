package devices

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForNode blocks until path exists or ctx is done. The node's directory
// is watched so creation is noticed without polling.
func WaitForNode(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if exists(path) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	// The node may have appeared between the first check and Add.
	if exists(path) {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s did not appear: %w", path, ctx.Err())

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", path)
			}
			if event.Op&fsnotify.Create != 0 && event.Name == path {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watch %s: watcher closed", path)
			}
			// An overflowed queue can lose the create event.
			if exists(path) {
				return nil
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
	}
}
