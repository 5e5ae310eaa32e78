package filerelay

import (
	"errors"
	"testing"
	"time"
)

func TestTransferRegistryLifecycle(t *testing.T) {
	clock := newFakeClock()
	registry := NewTransferRegistry(10 * time.Minute)
	registry.timeNowFn = clock.Now

	rec, err := registry.Begin("t-1", "movie.mp4", 42)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if rec.State != StateReceived {
		t.Fatalf("expected received state, got %s", rec.State)
	}

	if rec.ExpiresAt != clock.Now().Add(10*time.Minute) {
		t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
	}

	clock.Advance(time.Minute)
	registry.Progress("t-1", 21)
	if _, err := registry.Transition("t-1", StateDownloading, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	registry.SetKey("t-1", "uuid_movie.mp4")

	got, ok := registry.Get("t-1")
	if !ok {
		t.Fatal("expected record")
	}

	if got.State != StateDownloading || got.Transferred != 21 || got.Key != "uuid_movie.mp4" {
		t.Fatalf("unexpected record %#v", got)
	}

	if got.ExpiresAt != clock.Now().Add(10*time.Minute) {
		t.Fatalf("expected expiry to slide with updates, got %v", got.ExpiresAt)
	}

	// returned records are copies
	got.State = StateFailed
	again, _ := registry.Get("t-1")
	if again.State != StateDownloading {
		t.Fatal("expected registry state to be unaffected by caller mutations")
	}
}

func TestTransferRegistryTerminalStates(t *testing.T) {
	registry := NewTransferRegistry(time.Hour)
	registry.Begin("t-1", "a.txt", 1)

	rec, _ := registry.Transition("t-1", StateFailed, errors.New("download failed"))
	if rec.Error != "download failed" {
		t.Fatalf("expected error to be recorded, got %q", rec.Error)
	}

	rec, _ = registry.Transition("t-1", StateUploading, nil)
	if rec.State != StateFailed {
		t.Fatalf("expected failed to be terminal, got %s", rec.State)
	}

	if _, err := registry.Transition("missing", StateUploading, nil); !errors.Is(err, ErrTransferNotFound) {
		t.Fatalf("expected ErrTransferNotFound, got %v", err)
	}

	if _, err := registry.Begin("", "a.txt", 1); err == nil {
		t.Fatal("expected an error for an empty id")
	}
}

func TestTransferRegistrySnapshotAndCleanup(t *testing.T) {
	clock := newFakeClock()
	registry := NewTransferRegistry(time.Minute)
	registry.timeNowFn = clock.Now

	registry.Begin("old", "a.txt", 1)
	clock.Advance(30 * time.Second)
	registry.Begin("new", "b.txt", 1)

	snapshot := registry.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != "old" || snapshot[1].ID != "new" {
		t.Fatalf("unexpected snapshot %#v", snapshot)
	}

	clock.Advance(45 * time.Second)

	if _, ok := registry.Get("old"); ok {
		t.Fatal("expected expired record to be hidden")
	}

	if snapshot := registry.Snapshot(); len(snapshot) != 1 || snapshot[0].ID != "new" {
		t.Fatalf("expected only the live record, got %#v", snapshot)
	}

	removed := registry.CleanupExpired(clock.Now())
	if len(removed) != 1 || removed[0] != "old" {
		t.Fatalf("expected old to be removed, got %v", removed)
	}
}

func TestTransferRegistryBeginSweepsExpired(t *testing.T) {
	clock := newFakeClock()
	registry := NewTransferRegistry(time.Minute)
	registry.timeNowFn = clock.Now

	registry.Begin("old", "a.txt", 1)
	registry.Transition("old", StateCleaned, nil)

	clock.Advance(2 * time.Minute)
	registry.Begin("new", "b.txt", 1)

	registry.mu.RLock()
	_, kept := registry.records["old"]
	count := len(registry.records)
	registry.mu.RUnlock()

	if kept || count != 1 {
		t.Fatalf("expected the expired record to be swept, got %d records", count)
	}

	if removed := registry.CleanupExpired(clock.Now()); len(removed) != 0 {
		t.Fatalf("expected nothing left to clean, got %v", removed)
	}
}

func TestTransferStateTerminal(t *testing.T) {
	for _, state := range []TransferState{StateReceived, StateDownloading, StateDownloaded, StateUploading, StateUploaded, StateLinkGenerated} {
		if state.Terminal() {
			t.Errorf("expected %s not to be terminal", state)
		}
	}

	if !StateCleaned.Terminal() || !StateFailed.Terminal() {
		t.Error("expected cleaned and failed to be terminal")
	}
}
