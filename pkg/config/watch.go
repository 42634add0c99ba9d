package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultReloadDelay debounces bursts of file events.
const DefaultReloadDelay = 500 * time.Millisecond

// Watcher reloads a protocol whenever its file changes.
type Watcher struct {
	parser *Parser
	logger zerolog.Logger
	delay  time.Duration
}

// NewWatcher creates a watcher that parses with parser.
func NewWatcher(parser *Parser, logger zerolog.Logger) *Watcher {
	if parser == nil {
		parser = NewParser()
	}
	return &Watcher{parser: parser, logger: logger, delay: DefaultReloadDelay}
}

// WithDelay sets the debounce delay.
func (w *Watcher) WithDelay(d time.Duration) *Watcher {
	w.delay = d
	return w
}

// Watch blocks until ctx is done, calling onChange with the reloaded
// protocol (or the load error) after every change to path. Calls to
// onChange never overlap.
func (w *Watcher) Watch(ctx context.Context, path string, onChange func(*Protocol, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so the parent directory is watched.
	dir, match := filepath.Dir(abs), func(name string) bool { return name == abs }
	if info.IsDir() {
		dir, match = abs, func(name string) bool { return strings.HasSuffix(name, ".cue") }
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.logger.Info().Str("path", path).Msg("Watching protocol")

	var (
		mu          sync.Mutex
		reloadTimer *time.Timer
	)
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.logger.Info().Str("path", path).Msg("Reloading protocol")
		proto, err := w.parser.Load(ctx, path)
		onChange(proto, err)
	}
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, _ := filepath.Abs(event.Name)
			if !match(name) {
				continue
			}
			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Protocol file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(w.delay, reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
