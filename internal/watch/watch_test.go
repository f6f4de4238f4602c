package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.tw")
	if err := os.WriteFile(path, []byte("policy v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Config{DebounceInterval: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var reloads atomic.Int32
	reloaded := make(chan struct{}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func() error {
			reloads.Add(1)
			select {
			case reloaded <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("policy v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(time.Second):
		t.Fatal("onChange was not called after write")
	}

	if reloads.Load() == 0 {
		t.Error("expected at least one reload")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.tw")
	if err := os.WriteFile(path, []byte("policy v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Config{DebounceInterval: 20 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	other := filepath.Join(dir, "unrelated.txt")
	if err := os.WriteFile(other, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	if reloads.Load() != 0 {
		t.Errorf("expected no reload for unrelated file, got %d", reloads.Load())
	}
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.tw")
	if err := os.WriteFile(path, []byte("v0"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, Config{DebounceInterval: 150 * time.Millisecond}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var reloads atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Run(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('0' + i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := reloads.Load(); got == 0 || got > 2 {
		t.Errorf("expected 1-2 reloads from debounced burst, got %d", got)
	}
}
