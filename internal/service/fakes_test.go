package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

func frame(kind event.Kind, data string) event.Frame {
	return event.Frame{Kind: kind, Data: []byte(data)}
}

// scriptSource replays a fixed list of frames, then either blocks until
// cancelled (hang) or returns end.
type scriptSource struct {
	frames []event.Frame
	hang   bool
	end    error
	sent   chan struct{} // closed once every frame was handed over, if set

	mu  sync.Mutex
	log []string
}

func (s *scriptSource) Stream(ctx context.Context, taskID string, h stream.Handler) error {
	s.record("start " + taskID)
	defer s.record("end " + taskID)

	h.OnOpen()
	for _, f := range s.frames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.OnFrame(f)
	}
	if s.sent != nil {
		close(s.sent)
	}
	if s.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.end
}

func (s *scriptSource) record(line string) {
	s.mu.Lock()
	s.log = append(s.log, line)
	s.mu.Unlock()
}

func (s *scriptSource) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// lateSource ignores cancellation and delivers one more frame after it.
type lateSource struct {
	late event.Frame
}

func (s *lateSource) Stream(ctx context.Context, _ string, h stream.Handler) error {
	h.OnOpen()
	<-ctx.Done()
	h.OnFrame(s.late)
	return nil
}

// stubLoader returns a fixed result, optionally after gate is closed.
type stubLoader struct {
	mu    sync.Mutex
	snaps []*task.Snapshot
	errs  []error
	calls int
	gate  chan struct{}
}

func (l *stubLoader) Fetch(ctx context.Context, _ string) (*task.Snapshot, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	l.calls++
	if i >= len(l.snaps) {
		i = len(l.snaps) - 1
	}
	return l.snaps[i], l.errs[i]
}

// recordingSink collects published snapshots and reported failures.
type recordingSink struct {
	mu       sync.Mutex
	snaps    []task.Snapshot
	failures []error
}

func (s *recordingSink) Publish(_ context.Context, snap task.Snapshot) {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

func (s *recordingSink) ReportFailure(_ context.Context, _ string, err error) {
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
}

func (s *recordingSink) published() []task.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]task.Snapshot(nil), s.snaps...)
}

func (s *recordingSink) reported() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.failures...)
}

// countingRecorder counts the metrics the engine emits.
type countingRecorder struct {
	mu            sync.Mutex
	decoded       int
	decodeFailed  int
	transport     int
	published     int
	started       int
	closedReasons []string
	fetchFailed   int
}

func (r *countingRecorder) FrameDecoded(context.Context, string) { r.inc(&r.decoded) }
func (r *countingRecorder) DecodeFailed(context.Context, string) { r.inc(&r.decodeFailed) }
func (r *countingRecorder) TransportFailed(context.Context)      { r.inc(&r.transport) }
func (r *countingRecorder) SnapshotPublished(context.Context)    { r.inc(&r.published) }
func (r *countingRecorder) SessionStarted(context.Context)       { r.inc(&r.started) }
func (r *countingRecorder) FetchFailed(context.Context)          { r.inc(&r.fetchFailed) }
func (r *countingRecorder) SessionClosed(_ context.Context, reason string) {
	r.mu.Lock()
	r.closedReasons = append(r.closedReasons, reason)
	r.mu.Unlock()
}

func (r *countingRecorder) inc(n *int) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}

func (r *countingRecorder) get(n *int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *n
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream to end")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
