package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/taskwatch/internal/domain"
	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/port/metrics"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

// SessionState is the lifecycle state of a stream session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("SessionState(%d)", int(s))
}

// errStreamEnded is reported when the remote ends the stream without first
// sending a complete frame.
var errStreamEnded = errors.New("stream ended before task completion")

// TransportError is the terminal error of a session that failed at the
// stream level. The session does not reconnect.
type TransportError struct {
	TaskID string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("event stream for task %s: %v", e.TaskID, e.Err)
}

// Unwrap exposes both the cause and domain.ErrTransport to errors.Is.
func (e *TransportError) Unwrap() []error {
	return []error{domain.ErrTransport, e.Err}
}

// Session owns the live event stream of one task and routes its frames into
// a Store. It moves Idle → Connecting → Open → Closed and never goes back;
// reopening requires a new Session.
type Session struct {
	taskID string
	source stream.Source
	store  *Store
	rec    metrics.Recorder

	mu        sync.Mutex
	state     SessionState
	err       error
	completed bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSession creates an idle session for taskID.
func NewSession(taskID string, source stream.Source, store *Store, rec metrics.Recorder) *Session {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Session{
		taskID: taskID,
		source: source,
		store:  store,
		rec:    rec,
		done:   make(chan struct{}),
	}
}

// Start connects the stream in the background. It is a no-op unless the
// session is idle.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateConnecting
	s.mu.Unlock()

	s.rec.SessionStarted(ctx)
	slog.InfoContext(ctx, "connecting to task event stream", "task_id", s.taskID)
	go s.run(ctx)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	err := s.source.Stream(ctx, s.taskID, &frameHandler{ctx: ctx, s: s})
	s.finish(ctx, err)
}

// Close tears the session down. It is idempotent, safe in any state, and
// returns only once no further frame can be processed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateClosed
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if prev == StateIdle {
		close(s.done)
	}
	s.rec.SessionClosed(context.Background(), "teardown")
	slog.Info("task event stream closed", "task_id", s.taskID, "previous_state", prev.String())
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, if the session closed because of one.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Completed reports whether the remote signalled a clean end of stream.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Done is closed once the stream goroutine has exited (or immediately on
// Close if the session was never started).
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// finish records how the stream ended. A session already closed by
// teardown, completion or a remote failure keeps its recorded outcome.
func (s *Session) finish(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.cancel()

	if err == nil {
		err = errStreamEnded
	}
	if errors.Is(err, context.Canceled) {
		s.rec.SessionClosed(ctx, "cancelled")
		slog.InfoContext(ctx, "task event stream cancelled", "task_id", s.taskID)
		return
	}
	s.err = &TransportError{TaskID: s.taskID, Err: err}
	s.rec.TransportFailed(ctx)
	s.rec.SessionClosed(ctx, "transport_error")
	slog.ErrorContext(ctx, "task event stream failed", "task_id", s.taskID, "error", err)
}

// closeLocked must be called with s.mu held.
func (s *Session) closeLocked(ctx context.Context, reason string, err error) {
	s.state = StateClosed
	s.err = err
	s.cancel()
	s.rec.SessionClosed(ctx, reason)
}

func (s *Session) open(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openLocked(ctx)
}

// openLocked must be called with s.mu held.
func (s *Session) openLocked(ctx context.Context) {
	if s.state == StateConnecting {
		s.state = StateOpen
		slog.InfoContext(ctx, "task event stream open", "task_id", s.taskID)
	}
}

func (s *Session) handle(ctx context.Context, f event.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.openLocked(ctx)

	ev, err := event.Decode(f)
	switch {
	case errors.Is(err, event.ErrUnknownKind):
		slog.DebugContext(ctx, "ignoring frame of unknown kind", "task_id", s.taskID, "kind", f.Kind)
		return
	case err != nil:
		s.rec.DecodeFailed(ctx, string(f.Kind))
		slog.WarnContext(ctx, "dropping malformed frame",
			"task_id", s.taskID,
			"kind", f.Kind,
			"frame_id", f.ID,
			"error", err,
		)
		return
	}
	s.rec.FrameDecoded(ctx, string(ev.Kind))

	switch {
	case ev.Failure != nil:
		slog.ErrorContext(ctx, "remote reported task failure", "task_id", s.taskID, "message", ev.Failure.Message)
		s.closeLocked(ctx, "remote_failure", &TransportError{TaskID: s.taskID, Err: ev.Failure})
	case ev.Kind == event.KindComplete:
		s.completed = true
		slog.InfoContext(ctx, "task event stream complete", "task_id", s.taskID)
		s.closeLocked(ctx, "complete", nil)
	default:
		s.store.Apply(ctx, ev)
	}
}

// frameHandler adapts a Session to stream.Handler for one connection.
type frameHandler struct {
	ctx context.Context
	s   *Session
}

func (h *frameHandler) OnOpen()               { h.s.open(h.ctx) }
func (h *frameHandler) OnFrame(f event.Frame) { h.s.handle(h.ctx, f) }
