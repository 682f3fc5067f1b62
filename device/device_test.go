package device

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestMirrorTransitions(t *testing.T) {
	var m Mirror
	if m.State() != Synced || m.Pending() {
		t.Fatal("zero mirror should be synced")
	}

	if err := m.HostWrite(); err != nil {
		t.Fatalf("HostWrite failed: %v", err)
	}
	if m.State() != HostDirty {
		t.Errorf("state = %s, want host_dirty", m.State())
	}
	if err := m.DeviceWrite(); !errors.Is(err, ErrConflict) {
		t.Errorf("DeviceWrite on host_dirty = %v, want ErrConflict", err)
	}

	m.Complete()
	if err := m.DeviceWrite(); err != nil {
		t.Fatalf("DeviceWrite failed: %v", err)
	}
	if err := m.HostWrite(); !errors.Is(err, ErrConflict) {
		t.Errorf("HostWrite on device_dirty = %v, want ErrConflict", err)
	}

	m.Complete()
	m.Invalidate()
	if !m.NeedsRealloc() || m.State() != HostDirty {
		t.Error("Invalidate should require a reallocating host->device sync")
	}
	m.Complete()
	if m.NeedsRealloc() || m.Syncs() != 3 {
		t.Errorf("after Complete: realloc=%v syncs=%d", m.NeedsRealloc(), m.Syncs())
	}
}

func TestPoolRunCoversRange(t *testing.T) {
	p := NewPool(4)
	p.Start()
	defer p.Stop()

	for _, n := range []int{1, 10, parallelThreshold, 1000, 1003} {
		seen := make([]int32, n)
		parts := p.Parts(n)
		var maxPart int32 = -1
		p.Run(n, func(start, end, part int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
			for {
				cur := atomic.LoadInt32(&maxPart)
				if int32(part) <= cur || atomic.CompareAndSwapInt32(&maxPart, cur, int32(part)) {
					break
				}
			}
		})
		for i, v := range seen {
			if v != 1 {
				t.Fatalf("n=%d: item %d visited %d times", n, i, v)
			}
		}
		if int(maxPart) != parts-1 {
			t.Errorf("n=%d: highest part %d, Parts() = %d", n, maxPart, parts)
		}
	}
}

func TestPoolInlineWhenStopped(t *testing.T) {
	p := NewPool(2)
	calls := 0
	p.Run(5000, func(start, end, part int) {
		calls++
		if start != 0 || end != 5000 || part != 0 {
			t.Errorf("inline chunk = [%d,%d) part %d", start, end, part)
		}
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	var nilPool *Pool
	nilPool.Run(3, func(start, end, part int) { calls++ })
	if calls != 2 {
		t.Error("nil pool should run inline")
	}
}
