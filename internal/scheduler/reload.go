package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"alphatrade/internal/config"
	"alphatrade/internal/engine"
	"alphatrade/internal/logger"
)

const reloadDebounce = 500 * time.Millisecond

// WatchConfig hot-reloads the config file in schedule mode. Editors often
// replace the file instead of writing in place, so the watch is on the
// parent directory and rename/create events count as changes.
func WatchConfig(ctx context.Context, path string, runner *engine.Runner) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	logger.Infof("watching config %s for changes", abs)

	var timer *time.Timer
	reload := func() {
		cfg, err := config.Load(abs)
		if err != nil {
			logger.Errorf("config reload rejected: %v", err)
			return
		}
		runner.UpdateConfig(cfg)
		logger.Infof("config reloaded from %s", abs)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("config watcher: %v", err)
		}
	}
}
