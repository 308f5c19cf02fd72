package alttagger

import (
	"sync"
	"testing"
	"time"
)

func TestRunState(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rs := db.RunState()
	rs.now = func() time.Time { return now }

	if _, ok, err := rs.Get(ctx, "total"); err != nil || ok {
		t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := rs.Set(ctx, "total", 10, time.Hour); err != nil {
		t.Fatal(err)
	}
	v, ok, err := rs.Get(ctx, "total")
	if err != nil || !ok || v != 10 {
		t.Errorf("Expected 10, got %d ok=%v err=%v", v, ok, err)
	}

	// Overwrite keeps a single row
	if err := rs.Set(ctx, "total", 12, time.Hour); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := rs.Get(ctx, "total"); v != 12 {
		t.Errorf("Expected 12, got %d", v)
	}

	for _, tt := range []struct{ delta, want int64 }{{3, 3}, {2, 5}, {0, 5}, {1, 6}} {
		got, err := rs.Incr(ctx, "cumulative", tt.delta, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Expected %d, got %d", tt.want, got)
		}
	}

	if err := rs.Delete(ctx, "total"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := rs.Get(ctx, "total"); ok {
		t.Error("Expected key to be deleted")
	}
}

func TestRunStateExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rs := db.RunState()
	rs.now = func() time.Time { return now }

	if err := rs.Set(ctx, "short", 1, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := rs.Set(ctx, "forever", 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := rs.Incr(ctx, "counter", 7, time.Minute); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)

	if _, ok, _ := rs.Get(ctx, "short"); ok {
		t.Error("Expected expired key to be missing")
	}
	if _, ok, _ := rs.Get(ctx, "forever"); !ok {
		t.Error("Expected key without ttl to survive")
	}

	// An expired counter restarts from the delta
	v, err := rs.Incr(ctx, "counter", 2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if expected, actual := int64(2), v; expected != actual {
		t.Errorf("Expected %d, got %d", expected, actual)
	}
}

func TestRunStateIncrConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := t.Context()
	rs := db.RunState()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rs.Incr(ctx, "n", 1, time.Hour); err != nil {
				t.Errorf("Unexpected error %s", err)
			}
		}()
	}
	wg.Wait()

	if v, _, _ := rs.Get(ctx, "n"); v != 20 {
		t.Errorf("Expected 20, got %d", v)
	}
}
