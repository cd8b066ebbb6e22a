package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/logger"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
	"github.com/Strob0t/taskwatch/internal/port/metrics"
	"github.com/Strob0t/taskwatch/internal/port/snapshot"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

var (
	// ErrNoTaskID is returned by Open when called without a task ID.
	ErrNoTaskID = errors.New("no task ID provided")
	// ErrNoSession is returned by Retry when nothing has been opened.
	ErrNoSession = errors.New("no viewing session")
)

// Phase is the initial-load phase of a viewing session.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// ViewState describes the current viewing session. Err is the initial
// fetch failure; StreamErr is the stream's terminal error. They are kept
// apart so callers can show them differently.
type ViewState struct {
	TaskID    string       `json:"task_id,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Phase     Phase        `json:"phase"`
	Err       error        `json:"-"`
	Stream    SessionState `json:"-"`
	StreamErr error        `json:"-"`
}

// Viewer owns at most one viewing session at a time: a Store, the Session
// streaming into it and the initial fetch seeding it. Opening a task tears
// the previous session down completely before anything new starts.
//
// Sinks are called from session goroutines while the Viewer may be waiting on
// them, so a sink must never call back into the Viewer.
type Viewer struct {
	source stream.Source
	loader snapshot.Loader
	sink   broadcast.Sink
	rec    metrics.Recorder

	mu  sync.Mutex
	cur *viewing
}

type viewing struct {
	taskID    string
	sessionID string
	store     *Store
	session   *Session
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu    sync.Mutex
	phase Phase
	err   error
}

// NewViewer creates a Viewer. loader may be nil, in which case each session
// starts from an empty snapshot with an initialized step sequence and relies
// on the stream alone.
func NewViewer(source stream.Source, loader snapshot.Loader, sink broadcast.Sink, rec metrics.Recorder) *Viewer {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Viewer{source: source, loader: loader, sink: sink, rec: rec}
}

// Open starts viewing taskID. The session outlives ctx's cancellation and
// runs until Close, Retry or another Open.
func (v *Viewer) Open(ctx context.Context, taskID string) error {
	if taskID == "" {
		return ErrNoTaskID
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openLocked(ctx, taskID)
	return nil
}

// Retry tears the current session down and opens the same task again.
func (v *Viewer) Retry(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return ErrNoSession
	}
	v.openLocked(ctx, v.cur.taskID)
	return nil
}

// Close leaves the current session. It is safe to call when nothing is open.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.teardownLocked()
}

// State reports the current viewing session.
func (v *Viewer) State() ViewState {
	v.mu.Lock()
	cur := v.cur
	v.mu.Unlock()

	if cur == nil {
		return ViewState{Phase: PhaseIdle, Stream: StateIdle}
	}
	cur.mu.Lock()
	defer cur.mu.Unlock()
	return ViewState{
		TaskID:    cur.taskID,
		SessionID: cur.sessionID,
		Phase:     cur.phase,
		Err:       cur.err,
		Stream:    cur.session.State(),
		StreamErr: cur.session.Err(),
	}
}

// Snapshot returns the current snapshot, or false when nothing is open.
func (v *Viewer) Snapshot() (task.Snapshot, bool) {
	v.mu.Lock()
	cur := v.cur
	v.mu.Unlock()
	if cur == nil {
		return task.Snapshot{}, false
	}
	return cur.store.Snapshot(), true
}

// Done returns a channel closed when the current session's stream ends.
// It returns nil when nothing is open.
func (v *Viewer) Done() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return nil
	}
	return v.cur.session.Done()
}

// openLocked must be called with v.mu held.
func (v *Viewer) openLocked(ctx context.Context, taskID string) {
	v.teardownLocked()

	sessionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(logger.WithSessionID(context.WithoutCancel(ctx), sessionID))

	store := NewStore(taskID, v.sink, v.rec)
	cur := &viewing{
		taskID:    taskID,
		sessionID: sessionID,
		store:     store,
		session:   NewSession(taskID, v.source, store, v.rec),
		cancel:    cancel,
		phase:     PhaseReady,
	}
	if v.loader != nil {
		cur.phase = PhaseLoading
	}
	v.cur = cur

	if v.loader == nil {
		store.Seed(runCtx, task.Snapshot{ID: taskID, Steps: []task.Step{}})
	}

	slog.InfoContext(runCtx, "opening task", "task_id", taskID)
	cur.session.Start(runCtx)

	cur.wg.Add(1)
	go v.watch(runCtx, cur)
	if v.loader != nil {
		cur.wg.Add(1)
		go v.load(runCtx, cur)
	}
}

// teardownLocked must be called with v.mu held. It returns once the previous
// session can no longer publish.
func (v *Viewer) teardownLocked() {
	cur := v.cur
	if cur == nil {
		return
	}
	v.cur = nil

	cur.session.Close()
	cur.cancel()
	<-cur.session.Done()
	cur.wg.Wait()
}

// load runs the initial fetch concurrently with the stream.
func (v *Viewer) load(ctx context.Context, cur *viewing) {
	defer cur.wg.Done()

	snap, err := v.loader.Fetch(ctx, cur.taskID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		v.rec.FetchFailed(ctx)
		slog.ErrorContext(ctx, "initial snapshot fetch failed", "task_id", cur.taskID, "error", err)
		cur.mu.Lock()
		cur.phase, cur.err = PhaseFailed, err
		cur.mu.Unlock()
		v.report(ctx, cur.taskID, err)
		return
	}

	if snap != nil {
		cur.store.Seed(ctx, *snap)
	}
	cur.mu.Lock()
	cur.phase = PhaseReady
	cur.mu.Unlock()
}

// watch reports a stream that ended in error to failure-aware sinks.
func (v *Viewer) watch(ctx context.Context, cur *viewing) {
	defer cur.wg.Done()

	<-cur.session.Done()
	if err := cur.session.Err(); err != nil && ctx.Err() == nil {
		v.report(ctx, cur.taskID, err)
	}
}

func (v *Viewer) report(ctx context.Context, taskID string, err error) {
	if r, ok := v.sink.(broadcast.FailureReporter); ok {
		r.ReportFailure(ctx, taskID, err)
	}
}
