// Package watcher invalidates the credential load cache when the
// file-backed source changes on disk.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceWindow absorbs editor write bursts into one reload.
const debounceWindow = 500 * time.Millisecond

// Watch observes the credential file and calls onChange after writes,
// creates, renames or removals touching it. It returns once the watcher is
// installed; events are handled on a background goroutine until ctx is
// cancelled. A missing parent directory is an error; a missing file is not,
// since credential files are often created after startup.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: atomic writes replace the inode.
	dir := filepath.Dir(path)
	if err = watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer func() { _ = watcher.Close() }()
		var pending *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				log.Debugf("credential file %s changed (%s)", path, event.Op)
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(debounceWindow, onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("credential file watcher error: %v", err)
			}
		}
	}()
	return nil
}

// WatchIfPresent installs a watch only when the file's directory exists,
// logging instead of failing otherwise.
func WatchIfPresent(ctx context.Context, path string, onChange func()) {
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		log.Debugf("not watching %s: %v", path, err)
		return
	}
	if err := Watch(ctx, path, onChange); err != nil {
		log.Warnf("failed to watch credential file %s: %v", path, err)
	}
}
