package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/queryvis/logging"
)

// A Watcher delivers a new config each time the file it watches changes.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	configs chan *Config
	logger  logging.Logger

	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewWatcher watches the config file at path. current is the config already in use;
// writes that parse to an identical config are not delivered. The directory is watched
// so the file may be replaced by rename.
func NewWatcher(path string, current *Config, logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		utils.UncheckedError(fsw.Close())
		return nil, errors.Wrapf(err, "cannot watch %q", path)
	}
	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	w := &Watcher{
		path:       abs,
		watcher:    fsw,
		configs:    make(chan *Config),
		logger:     logger,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
	w.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer w.activeBackgroundWorkers.Done()
		w.watch(current)
	})
	return w, nil
}

func (w *Watcher) watch(last *Config) {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			cfg, err := Read(w.path)
			if err != nil {
				// a partially written file fails to parse; the next write event retries
				w.logger.Debugw("cannot reload config", "path", w.path, "error", err)
				continue
			}
			if reflect.DeepEqual(cfg, last) {
				continue
			}
			select {
			case w.configs <- cfg:
				last = cfg
			case <-w.cancelCtx.Done():
				return
			}
		}
	}
}

// Config returns the channel new configs are delivered on.
func (w *Watcher) Config() <-chan *Config {
	return w.configs
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.cancelFunc()
	err := w.watcher.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}
