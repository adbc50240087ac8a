package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestInMemoryCache_GetSet verifies that Set stores a fragment and Get
// retrieves it unchanged.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	fragment := `<div class="tropical-nights-plot">berlin</div>`
	if err := c.Set(ctx, "berlin|52.5200|13.4050", fragment, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "berlin|52.5200|13.4050")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != fragment {
		t.Errorf("Get() = %q, want %q", got, fragment)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false for a key
// that was never stored.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	_, ok, err := c.Get(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get treats expired entries as
// misses and removes them on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "berlin", "fragment", 1*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "berlin")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after expired access, want 0", c.Len())
	}
}

// TestInMemoryCache_Set_Overwrites verifies that a second Set for the same
// key replaces the fragment.
func TestInMemoryCache_Set_Overwrites(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "berlin", "old", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "berlin", "new", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, _ := c.Get(ctx, "berlin")
	if !ok || got != "new" {
		t.Errorf("Get() = %q, %v, want \"new\", true", got, ok)
	}
}

// TestInMemoryCache_Sweep verifies that the janitor sweep removes expired
// entries without touching live ones.
func TestInMemoryCache_Sweep(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "expired", "x", 1*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := c.Set(ctx, "live", "y", time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	c.sweep(time.Now())

	if c.Len() != 1 {
		t.Errorf("Len() = %d after sweep, want 1", c.Len())
	}
	if _, ok, _ := c.Get(ctx, "live"); !ok {
		t.Error("sweep removed a live entry")
	}
}

// TestInMemoryCache_StartJanitor verifies that StartJanitor returns
// immediately and sweeps expired entries from its own goroutine.
func TestInMemoryCache_StartJanitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := NewInMemoryCache()

	if err := c.Set(ctx, "expired", "x", 1*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	c.StartJanitor(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("janitor never swept the expired entry")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestInMemoryCache_ConcurrentAccess verifies that concurrent readers and
// writers do not race or corrupt the map. Run with -race.
func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("city-%d", (i+j)%5)
				_ = c.Set(ctx, key, "fragment", time.Minute)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("city-%d", (i+j)%5)
				_, _, _ = c.Get(ctx, key)
			}
		}()
	}
	wg.Wait()
}
