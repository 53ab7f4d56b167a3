// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package signatures

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period after the last change before a reload.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc is called after signature files changed.
type ReloadFunc func() error

// Watcher watches signature files and directories and calls a reload function
// once the files have stopped changing. Rapid successive writes are coalesced
// into a single reload.
type Watcher struct {
	watcher  *fsnotify.Watcher
	reload   ReloadFunc
	debounce time.Duration
	logger   zerolog.Logger

	// dirs maps a watched directory to the file names of interest in it; an
	// empty set means every signature file in the directory.
	dirs map[string]map[string]struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for paths. A path is either a signature file or
// a directory of signature files; directories are watched recursively, skipping
// hidden subdirectories as LoadDir does.
func NewWatcher(paths []string, reload ReloadFunc, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   logger.With().Str("component", "signatures.watcher").Logger(),
		dirs:     make(map[string]map[string]struct{}),
	}
	for _, p := range paths {
		w.track(p)
	}
	return w, nil
}

// SetDebounce changes the quiet period. It must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// fsnotify watches directories, so files are tracked through their parent.
func (w *Watcher) track(path string) {
	path = filepath.Clean(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		w.trackTree(path)
		return
	}
	dir := filepath.Dir(path)
	names, ok := w.dirs[dir]
	if !ok {
		names = map[string]struct{}{}
		w.dirs[dir] = names
	} else if len(names) == 0 {
		// the whole directory is already watched
		return
	}
	names[filepath.Base(path)] = struct{}{}
}

// trackTree registers root and every non-hidden directory below it. It returns
// the registered directories and whether any signature file was found.
func (w *Watcher) trackTree(root string) (dirs []string, hasFiles bool) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			hasFiles = hasFiles || Supported(path)
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		w.dirs[path] = map[string]struct{}{}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, hasFiles
}

// recursive reports whether dir is watched as a whole, so directories created
// in it are watched too.
func (w *Watcher) recursive(dir string) bool {
	names, ok := w.dirs[dir]
	return ok && len(names) == 0
}

// addTree starts watching a directory created below a recursively watched one.
// It reports whether the new tree already holds signature files.
func (w *Watcher) addTree(dir string) bool {
	if strings.HasPrefix(filepath.Base(dir), ".") || !w.recursive(filepath.Dir(dir)) {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	dirs, hasFiles := w.trackTree(dir)
	for _, d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			w.logger.Warn().Err(err).Str("dir", d).Msg("Failed to watch new signature directory")
		}
	}
	w.logger.Debug().Str("dir", dir).Int("dirs", len(dirs)).Msg("Watching new signature directory")
	return hasFiles
}

// untrackTree forgets a removed directory and everything below it. It reports
// whether dir was watched.
func (w *Watcher) untrackTree(dir string) bool {
	if _, ok := w.dirs[dir]; !ok {
		return false
	}
	prefix := dir + string(filepath.Separator)
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	return true
}

func (w *Watcher) relevant(name string) bool {
	names, ok := w.dirs[filepath.Dir(filepath.Clean(name))]
	if !ok {
		return false
	}
	if len(names) == 0 {
		return Supported(name)
	}
	_, ok = names[filepath.Base(name)]
	return ok
}

// Start watches until ctx is canceled. It blocks and is typically run in its
// own goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	for dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Error().Err(err).Str("dir", dir).Msg("Failed to watch signature directory")
			return err
		}
	}

	w.logger.Info().Int("dirs", len(w.dirs)).Dur("debounce", w.debounce).Msg("Started watching signatures")

	defer func() {
		w.stopTimer()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("Error closing watcher")
		}
		w.logger.Info().Msg("Stopped watching signatures")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if event.Op&fsnotify.Create != 0 && w.addTree(name) {
				w.scheduleReload()
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && w.untrackTree(name) {
				w.logger.Debug().Str("dir", name).Msg("Signature directory removed")
				w.scheduleReload()
				continue
			}
			if !w.relevant(name) {
				continue
			}
			// removing a signature file changes the catalog as much as writing one
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.logger.Debug().Str("op", event.Op.String()).Str("file", event.Name).Msg("Detected signature change")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.reload(); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reload signatures")
			return
		}
		w.logger.Info().Msg("Signatures reloaded")
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
