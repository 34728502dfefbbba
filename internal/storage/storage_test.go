package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

type testEntry struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func TestStorage_PutAndGet(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	entry := testEntry{ID: "abc", Value: "hello"}

	if err := s.Put(ctx, []string{"settings", "identity"}, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got testEntry
	if err := s.Get(ctx, []string{"settings", "identity"}, &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != entry {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, entry)
	}
}

func TestStorage_GetNotFound(t *testing.T) {
	s := New(t.TempDir())

	var got testEntry
	err := s.Get(context.Background(), []string{"missing"}, &got)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestStorage_DeleteIsIdempotent(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	if err := s.Put(ctx, []string{"settings", "key"}, testEntry{ID: "x"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete(ctx, []string{"settings", "key"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Exists(ctx, []string{"settings", "key"}) {
		t.Error("key still exists after delete")
	}
	// Deleting again must not fail.
	if err := s.Delete(ctx, []string{"settings", "key"}); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestStorage_AtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	if err := s.Put(ctx, []string{"item"}, testEntry{ID: "1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "item.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind after Put")
	}
}

func TestStorage_List(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if err := s.Put(ctx, []string{"items", key}, testEntry{ID: key}); err != nil {
			t.Fatalf("Put %s failed: %v", key, err)
		}
	}

	items, err := s.List(ctx, []string{"items"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d: %v", len(items), items)
	}
}

func TestStorage_ConcurrentPuts(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Put(ctx, []string{"shared"}, testEntry{ID: "shared", Value: "v"})
		}(i)
	}
	wg.Wait()

	var got testEntry
	if err := s.Get(ctx, []string{"shared"}, &got); err != nil {
		t.Fatalf("Get after concurrent Puts failed: %v", err)
	}
	if got.ID != "shared" {
		t.Errorf("unexpected value after concurrent writes: %+v", got)
	}
}
