package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestSetGet(t *testing.T) {
	clock := newFakeClock()
	c := New[string](time.Minute, WithClock(clock.Now))

	c.Set("16107", "Benjamin Godard - Victor Hugo")

	got, ok := c.Get("16107")
	if !ok || got != "Benjamin Godard - Victor Hugo" {
		t.Fatalf("Get() = %q, %v", got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute, WithClock(clock.Now))

	c.Set("a", 1)
	clock.Advance(59 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Error("item should still be fresh before TTL")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Error("item should be expired once now == expires-at")
	}

	// Expired items stay reachable through GetStale until swept
	if v, ok := c.GetStale("a"); !ok || v != 1 {
		t.Errorf("GetStale() = %d, %v; want 1, true", v, ok)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1 before sweep", c.Size())
	}
}

func TestZeroAndNegativeTTL(t *testing.T) {
	c := New[string](time.Minute)

	c.SetWithTTL("zero", "x", 0)
	c.SetWithTTL("negative", "y", -time.Second)

	if _, ok := c.Get("zero"); ok {
		t.Error("zero TTL entry should be absent")
	}
	if _, ok := c.Get("negative"); ok {
		t.Error("negative TTL entry should be absent")
	}
}

func TestDelete(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("a", 7)

	v, ok := c.Delete("a")
	if !ok || v != 7 {
		t.Errorf("Delete() = %d, %v; want 7, true", v, ok)
	}
	if _, ok := c.Delete("a"); ok {
		t.Error("second Delete should report false")
	}
}

func TestRemoveExpired(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute, WithClock(clock.Now))

	c.Set("short", 1)
	c.SetWithTTL("long", 2, time.Hour)
	clock.Advance(2 * time.Minute)

	if removed := c.RemoveExpired(); removed != 1 {
		t.Errorf("RemoveExpired() = %d, want 1", removed)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
	if _, ok := c.GetStale("short"); ok {
		t.Error("swept item should be gone")
	}
}

func TestClear(t *testing.T) {
	c := New[int](time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Size() = %d after Clear", c.Size())
	}
}

func TestReplaceAllAndSnapshot(t *testing.T) {
	clock := newFakeClock()
	c := New[int](time.Minute, WithClock(clock.Now))

	if _, fresh := c.Snapshot(); fresh {
		t.Error("empty cache should not report fresh")
	}

	c.Set("old", 0)
	c.ReplaceAll(map[string]int{"a": 1, "b": 2}, time.Minute)

	snap, fresh := c.Snapshot()
	if !fresh || len(snap) != 2 {
		t.Fatalf("Snapshot() = %v, fresh=%v", snap, fresh)
	}
	if _, ok := snap["old"]; ok {
		t.Error("ReplaceAll should drop previous items")
	}

	clock.Advance(time.Minute)
	snap, fresh = c.Snapshot()
	if fresh {
		t.Error("snapshot should be stale after TTL")
	}
	if len(snap) != 2 {
		t.Errorf("stale snapshot should still hold 2 items, got %d", len(snap))
	}
}

func TestBackgroundCleanup(t *testing.T) {
	c := New[int](time.Minute, WithCleanupInterval(5*time.Millisecond))
	defer c.Close()

	c.SetWithTTL("gone", 1, 0)

	deadline := time.Now().Add(time.Second)
	for c.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor did not sweep expired item")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.Set("k", i)
		}(i)
		go func() {
			defer wg.Done()
			c.Get("k")
			c.Snapshot()
		}()
	}
	wg.Wait()

	if _, ok := c.Get("k"); !ok {
		t.Error("expected key after concurrent writes")
	}
}
