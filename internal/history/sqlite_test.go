package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTest(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestEnqueueAndRecent(t *testing.T) {
	idx := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"crab", "kraken", "crab"} {
		idx.Enqueue(Entry{CreatureID: id, Pool: "click", Rarity: "common", IsNew: i < 2, At: base.Add(time.Duration(i) * time.Second), TotalDiscoveries: uint32(i + 1)})
	}
	if err := idx.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := idx.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].CreatureID != "crab" || got[0].IsNew || got[0].TotalDiscoveries != 3 {
		t.Fatalf("newest = %+v", got[0])
	}
	if got[1].CreatureID != "kraken" || !got[1].IsNew || !got[1].At.Equal(base.Add(time.Second)) {
		t.Fatalf("second = %+v", got[1])
	}
}

func TestClearIsOrderedAfterQueuedWrites(t *testing.T) {
	idx := openTest(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		idx.Enqueue(Entry{CreatureID: "eel", Pool: "audio", Rarity: "uncommon", At: time.Now()})
	}
	if err := idx.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := idx.Recent(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestClosedIndexIgnoresWrites(t *testing.T) {
	idx := openTest(t)
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	idx.Enqueue(Entry{CreatureID: "late"})
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	var nilIdx *SQLiteIndex
	nilIdx.Enqueue(Entry{})
}

func TestCloseDuringEnqueue(t *testing.T) {
	idx := openTest(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				idx.Enqueue(Entry{CreatureID: "crab", At: time.Now()})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = idx.Flush(context.Background())
	}()
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	wg.Wait() // a send on the closed queue would have panicked
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		t.Fatal("expected error")
	}
}
