package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// debounceDelay absorbs the write bursts editors produce when saving.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the config file on change and hands the result to a
// callback. The parent directory is watched rather than the file
// itself, because most editors replace files on save.
type Watcher struct {
	path    string
	base    string
	watcher *fsnotify.Watcher
	apply   func(Config)
	log     zerolog.Logger

	mu       sync.Mutex
	debounce *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(path string, logger zerolog.Logger, apply func(Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher requires a file path")
	}
	if apply == nil {
		return nil, fmt.Errorf("config watcher requires an apply callback")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:    path,
		base:    filepath.Base(path),
		watcher: fsWatcher,
		apply:   apply,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if filepath.Base(event.Name) != w.base {
		return
	}

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.reload)
	w.mu.Unlock()
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	cfg, err := Load(w.path)
	if err != nil {
		// Keep running on the previous configuration.
		w.log.Warn().Err(err).Str("path", w.path).Msg("config reload failed")
		return
	}
	w.log.Info().Str("path", w.path).Msg("configuration reloaded")
	w.apply(cfg)
}
