package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const dataFileDebounce = 300 * time.Millisecond

// WatchDataFile reloads the dashboard whenever the CSV file changes. It
// returns once the watch is established; the loop ends with ctx. A DataFile
// changed through Reconfigure is followed.
func (d *Dashboard) WatchDataFile(ctx context.Context) error {
	path := d.Config().DataFile
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch data dir: %w", err)
	}
	go d.watchLoop(ctx, watcher, path)
	return nil
}

func (d *Dashboard) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()

	var timerMu sync.Mutex
	var timer *time.Timer
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.Reload(ctx); err != nil {
			d.log.WithError(err).Warn("reload after data change failed")
		}
	}

	for {
		select {
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(path) ||
				evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(dataFileDebounce, reload)
			timerMu.Unlock()
		case <-d.dataFileMoved:
			next := d.Config().DataFile
			if filepath.Dir(next) != filepath.Dir(path) {
				_ = watcher.Remove(filepath.Dir(path))
				if err := watcher.Add(filepath.Dir(next)); err != nil {
					d.log.WithError(err).WithField("path", next).Warn("watch data dir")
				}
			}
			d.log.WithField("path", next).Debug("watching data file")
			path = next
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				d.log.WithError(err).Warn("data watcher error")
			}
		case <-ctx.Done():
			return
		}
	}
}
