package config

import (
	"context"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/utils"
)

// A Watcher delivers a config file's new contents each time it changes to something valid.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

type fsConfigWatcher struct {
	watcher *fsnotify.Watcher
	configs chan *Config
	workers utils.StoppableWorkers
}

// NewWatcher watches the config at `path`, which must already be readable and valid. Invalid
// edits are logged and skipped so the last good config stays in effect.
func NewWatcher(ctx context.Context, path string, logger logging.Logger) (Watcher, error) {
	current, err := Read(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create config watcher")
	}
	// Editors often replace the file, so watch its directory and filter by name.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %s", path), watcher.Close())
	}

	w := &fsConfigWatcher{watcher: watcher, configs: make(chan *Config)}
	target := filepath.Clean(path)
	w.workers = utils.NewStoppableWorkers(ctx, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("config watcher error", "error", err)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				next, err := Read(path)
				if err != nil {
					logger.Warnw("ignoring invalid config change", "path", path, "error", err)
					continue
				}
				if reflect.DeepEqual(next, current) {
					continue
				}
				current = next
				select {
				case <-ctx.Done():
					return
				case w.configs <- next:
				}
			}
		}
	})
	return w, nil
}

func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configs
}

func (w *fsConfigWatcher) Close() error {
	w.workers.Stop()
	return w.watcher.Close()
}
