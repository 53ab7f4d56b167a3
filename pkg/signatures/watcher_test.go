// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package signatures

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, w *Watcher) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(ctx)
	}()
	// let the watcher register its directories
	time.Sleep(50 * time.Millisecond)
	return cancel, errCh
}

func stopWatcher(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop in time")
	}
}

func TestNewWatcher_TracksFilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "one.yaml")
	writeFile(t, file, listYAML)
	other := t.TempDir()

	w, err := NewWatcher([]string{file, other}, func() error { return nil }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, DefaultDebounce, w.debounce)
	require.True(t, w.relevant(file))
	require.False(t, w.relevant(filepath.Join(dir, "two.yaml")))
	require.True(t, w.relevant(filepath.Join(other, "new.rb")))
	require.False(t, w.relevant(filepath.Join(other, "notes.txt")))
	require.False(t, w.relevant(filepath.Join(t.TempDir(), "x.yaml")))
}

func TestWatcher_DebouncedReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), listYAML)

	var reloads atomic.Int32
	w, err := NewWatcher([]string{dir}, func() error {
		reloads.Add(1)
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(150 * time.Millisecond)

	cancel, errCh := startWatcher(t, w)

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(dir, "a.yaml"), listYAML)
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(1), reloads.Load(), "rapid writes coalesce into one reload")

	stopWatcher(t, cancel, errCh)
}

func TestWatcher_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	var reloads atomic.Int32
	w, err := NewWatcher([]string{dir}, func() error {
		reloads.Add(1)
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	cancel, errCh := startWatcher(t, w)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.Zero(t, reloads.Load())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.rb"), []byte(jettyRuby), 0o644))
	require.Eventually(t, func() bool { return reloads.Load() == 1 }, 2*time.Second, 20*time.Millisecond)

	stopWatcher(t, cancel, errCh)
}

func TestNewWatcher_TracksSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "vendor", "x.yaml"), listYAML)
	writeFile(t, filepath.Join(root, "vendor", "deep", "y.rb"), jettyRuby)
	writeFile(t, filepath.Join(root, ".git", "z.yaml"), listYAML)

	w, err := NewWatcher([]string{root}, func() error { return nil }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.True(t, w.relevant(filepath.Join(root, "vendor", "x.yaml")))
	require.True(t, w.relevant(filepath.Join(root, "vendor", "deep", "y.rb")))
	require.False(t, w.relevant(filepath.Join(root, ".git", "z.yaml")))
	require.Len(t, w.dirs, 3)
}

func TestWatcher_ReloadsOnNestedEdit(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "vendor", "x.yaml")
	writeFile(t, nested, listYAML)

	var reloads atomic.Int32
	w, err := NewWatcher([]string{root}, func() error {
		reloads.Add(1)
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	cancel, errCh := startWatcher(t, w)

	writeFile(t, nested, listYAML+"\n")
	require.Eventually(t, func() bool { return reloads.Load() >= 1 }, 2*time.Second, 20*time.Millisecond)

	stopWatcher(t, cancel, errCh)
}

func TestWatcher_WatchesCreatedDirectories(t *testing.T) {
	root := t.TempDir()

	var reloads atomic.Int32
	w, err := NewWatcher([]string{root}, func() error {
		reloads.Add(1)
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)
	w.SetDebounce(10 * time.Millisecond)

	cancel, errCh := startWatcher(t, w)

	sub := filepath.Join(root, "team")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// wait until the new directory is watched before writing into it
	time.Sleep(100 * time.Millisecond)
	before := reloads.Load()

	require.NoError(t, os.WriteFile(filepath.Join(sub, "jetty.rb"), []byte(jettyRuby), 0o644))
	require.Eventually(t, func() bool { return reloads.Load() > before }, 2*time.Second, 20*time.Millisecond)

	stopWatcher(t, cancel, errCh)
}

func TestWatcher_MissingDirectoryFailsStart(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone", "sig.yaml")
	w, err := NewWatcher([]string{missing}, func() error { return nil }, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	require.Error(t, w.Start(context.Background()))
}
