// Package ristretto keeps recently published task snapshots in an in-process
// dgraph-io/ristretto cache so late joiners can be served the current state.
package ristretto

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
)

// SnapshotCache is a broadcast.Sink that stores the encoded view of the
// latest snapshot per task.
type SnapshotCache struct {
	c      *ristretto.Cache[string, []byte]
	ttl    time.Duration
	latest atomic.Pointer[string]
}

// New creates a ristretto-backed snapshot cache. maxCostBytes is the maximum
// total size of cached views in bytes.
func New(maxCostBytes int64, ttl time.Duration) (*SnapshotCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: max(maxCostBytes/100*10, 1000), // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &SnapshotCache{c: c, ttl: ttl}, nil
}

// Publish implements broadcast.Sink.
func (c *SnapshotCache) Publish(ctx context.Context, snap task.Snapshot) {
	data, err := json.Marshal(snap.View())
	if err != nil {
		slog.WarnContext(ctx, "snapshot cache: marshal failed", "task_id", snap.ID, "error", err)
		return
	}
	if !c.c.SetWithTTL(snap.ID, data, int64(len(data)), c.ttl) {
		slog.DebugContext(ctx, "snapshot cache: set dropped", "task_id", snap.ID)
	}
	c.c.Wait()
	id := snap.ID
	c.latest.Store(&id)
}

// Get returns the cached view of taskID.
func (c *SnapshotCache) Get(taskID string) ([]byte, bool) {
	return c.c.Get(taskID)
}

// Latest returns the view of the most recently published task.
func (c *SnapshotCache) Latest() ([]byte, bool) {
	id := c.latest.Load()
	if id == nil {
		return nil, false
	}
	return c.Get(*id)
}

// Delete evicts taskID.
func (c *SnapshotCache) Delete(taskID string) {
	c.c.Del(taskID)
}

// Close shuts down the cache and releases resources.
func (c *SnapshotCache) Close() {
	c.c.Close()
}

var _ broadcast.Sink = (*SnapshotCache)(nil)
