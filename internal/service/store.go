package service

import (
	"context"
	"sync"

	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
	"github.com/Strob0t/taskwatch/internal/port/metrics"
)

// Store holds the reconciled snapshot of one viewing session and publishes
// every change to a sink. It is the only writer of the snapshot.
//
// The loader and the stream feed the store from different goroutines; the
// mutex serializes them. Publication happens while the lock is held so that
// sinks observe snapshots in mutation order.
type Store struct {
	mu   sync.Mutex
	snap task.Snapshot
	sink broadcast.Sink
	rec  metrics.Recorder
}

// NewStore creates an empty store for taskID. The step sequence starts
// uninitialized; a seed or a status frame carrying steps initializes it.
func NewStore(taskID string, sink broadcast.Sink, rec metrics.Recorder) *Store {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Store{
		snap: task.Snapshot{ID: taskID},
		sink: sink,
		rec:  rec,
	}
}

// ApplyStatusPatch shallow-merges p and recomputes the busy flag.
func (s *Store) ApplyStatusPatch(ctx context.Context, p task.StatusPatch) {
	s.Apply(ctx, event.Event{Kind: event.KindStatus, Status: &p})
}

// ApplyStep upserts st into the step sequence. Before the sequence is
// initialized this is a silent no-op and nothing is published.
func (s *Store) ApplyStep(ctx context.Context, st task.Step) {
	s.Apply(ctx, event.Event{Kind: event.Kind(st.Type), Step: &st})
}

// Apply folds a decoded event into the snapshot with event.Reduce and
// publishes the result. Events that carry nothing to fold, and steps that
// arrive before the sequence is initialized, publish nothing.
func (s *Store) Apply(ctx context.Context, ev event.Event) {
	if ev.Status == nil && ev.Step == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Status == nil && !s.snap.StepsInitialized() {
		return
	}
	s.snap = event.Reduce(s.snap, ev)
	s.publishLocked(ctx)
}

// Seed merges the initial fetch result. See task.Snapshot.Seed for which
// fields a seed may still set once the stream has delivered data.
func (s *Store) Seed(ctx context.Context, snap task.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = s.snap.Seed(snap)
	s.publishLocked(ctx)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() task.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// publishLocked must be called with s.mu held.
func (s *Store) publishLocked(ctx context.Context) {
	if s.sink == nil {
		return
	}
	s.sink.Publish(ctx, s.snap.Clone())
	s.rec.SnapshotPublished(ctx)
}
