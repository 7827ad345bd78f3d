package engine

import (
	"errors"
	"testing"
)

func TestImagePoolAcquireRelease(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 4)
	defer pool.Close()

	img, err := pool.Acquire(64, 32, usageWorking, "test_img")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if img.Width != 64 || img.Height != 32 {
		t.Errorf("got %dx%d, want 64x32", img.Width, img.Height)
	}
	if img.SizeBytes() != 64*32*4 {
		t.Errorf("SizeBytes = %d, want %d", img.SizeBytes(), 64*32*4)
	}

	stats := pool.Stats()
	if stats.Allocations != 1 || stats.Held != 1 {
		t.Errorf("stats after acquire: %v", stats)
	}

	pool.Release(img)
	stats = pool.Stats()
	if stats.Held != 0 || stats.Idle != 1 {
		t.Errorf("stats after release: %v", stats)
	}
}

func TestImagePoolReuse(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 4)
	defer pool.Close()

	first, err := pool.Acquire(16, 16, usageWorking, "test_img")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Release(first)

	second, err := pool.Acquire(16, 16, usageWorking, "test_img")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if second != first {
		t.Error("expected the released image to be reused")
	}
	pool.Release(second)

	stats := pool.Stats()
	if stats.Allocations != 1 {
		t.Errorf("Allocations = %d, want 1", stats.Allocations)
	}
	if stats.Reuses != 1 {
		t.Errorf("Reuses = %d, want 1", stats.Reuses)
	}
}

// A warmed pool serves a repeated acquisition pattern with zero new
// allocations.
func TestImagePoolWarmedNoAllocations(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 8)
	defer pool.Close()

	warm := func() {
		a, err := pool.Acquire(32, 32, usageWorking, "a")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		b, err := pool.Acquire(16, 16, usageWorking, "b")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		pool.Release(a)
		pool.Release(b)
	}

	warm()
	before := pool.Stats().Allocations
	warm()
	warm()
	after := pool.Stats().Allocations
	if after != before {
		t.Errorf("warmed pool allocated %d new buffers", after-before)
	}
}

func TestImagePoolEviction(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 2)
	defer pool.Close()

	sizes := [][2]int{{8, 8}, {16, 16}, {32, 32}}
	for _, s := range sizes {
		img, err := pool.Acquire(s[0], s[1], usageWorking, "evict_test")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		pool.Release(img)
	}

	stats := pool.Stats()
	if stats.Idle != 2 {
		t.Errorf("Idle = %d, want 2", stats.Idle)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}

	// The oldest image (8x8) was evicted; reacquiring it allocates.
	before := pool.Stats().Allocations
	img, err := pool.Acquire(8, 8, usageWorking, "evict_test")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	pool.Release(img)
	if pool.Stats().Allocations != before+1 {
		t.Error("expected the evicted size to require a fresh allocation")
	}
}

func TestImagePoolClearHeld(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 4)
	defer pool.Close()

	img, err := pool.Acquire(8, 8, usageWorking, "held")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := pool.Clear(); !errors.Is(err, ErrImagesHeld) {
		t.Errorf("Clear with held image: got %v, want ErrImagesHeld", err)
	}

	pool.Release(img)
	if err := pool.Clear(); err != nil {
		t.Errorf("Clear after release: %v", err)
	}
	if stats := pool.Stats(); stats.Idle != 0 {
		t.Errorf("Idle after Clear = %d, want 0", stats.Idle)
	}
}

func TestImagePoolClosed(t *testing.T) {
	device, _, cleanup := createNoopDevice(t)
	defer cleanup()

	pool := NewImagePool(device, 4)
	pool.Close()

	if _, err := pool.Acquire(8, 8, usageWorking, "closed"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire after Close: got %v, want ErrPoolClosed", err)
	}
}
