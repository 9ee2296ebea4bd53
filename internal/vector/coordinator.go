package vector

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrEmptyRebuild is returned when a rebuild over a non-empty index produced
// zero usable entries. The previous snapshot stays live; publishing an empty
// index would turn a transient upstream failure into total recall loss.
var ErrEmptyRebuild = errors.New("rebuild produced no entries")

// holder wraps the Snapshot interface so it can live behind an atomic.Pointer
// regardless of the concrete strategy type.
type holder struct {
	snap Snapshot
}

// Coordinator owns the live snapshot reference. Snapshot is a lock-free
// atomic load safe from any goroutine; Rebuild builds a replacement off to
// the side and publishes it with a single pointer swap, so readers observe
// either the old or the new snapshot, never a partially-built one. Old
// snapshots are reclaimed by the garbage collector once the last in-flight
// search drops its reference.
type Coordinator struct {
	cur  atomic.Pointer[holder]
	mu   sync.Mutex // serializes rebuilds
	opts Options
}

// NewCoordinator creates a coordinator with an empty live snapshot.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{opts: opts}
	c.cur.Store(&holder{snap: &flatSnapshot{}})
	return c
}

// Snapshot returns the currently live snapshot. O(1), never blocks. The
// returned snapshot is immutable: holding it across a concurrent rebuild is
// safe, merely stale.
func (c *Coordinator) Snapshot() Snapshot {
	return c.cur.Load().snap
}

// Rebuild builds a brand-new snapshot from the full catalog contents and
// atomically publishes it. Concurrent calls are serialized; the last rebuild
// to complete wins. When entries is empty but the live snapshot is not, the
// previous snapshot is kept and ErrEmptyRebuild is returned.
func (c *Coordinator) Rebuild(entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(entries) == 0 && c.Snapshot().Size() > 0 {
		return ErrEmptyRebuild
	}
	snap, err := BuildSnapshot(entries, c.opts)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	c.cur.Store(&holder{snap: snap})
	return nil
}
