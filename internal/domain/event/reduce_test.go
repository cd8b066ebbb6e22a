package event_test

import (
	"errors"
	"testing"

	"github.com/Strob0t/taskwatch/internal/domain"
	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
)

// fold decodes and reduces frames in order, counting decode failures.
func fold(snap task.Snapshot, frames ...event.Frame) (task.Snapshot, int) {
	failures := 0
	for _, f := range frames {
		ev, err := event.Decode(f)
		if err != nil {
			if errors.Is(err, domain.ErrDecode) {
				failures++
			}
			continue
		}
		snap = event.Reduce(snap, ev)
	}
	return snap, failures
}

func TestReduce_MalformedFrameResilience(t *testing.T) {
	start := task.Snapshot{ID: "t1", Steps: []task.Step{}}

	got, failures := fold(start,
		frame(event.KindTool, `{"step":1,"type":"tool",`),
		frame(event.KindThink, `{"step":0,"type":"think","result":"hmm"}`),
	)

	if failures != 1 {
		t.Fatalf("expected exactly 1 decode failure, got %d", failures)
	}
	if len(got.Steps) != 1 || got.Steps[0].Type != task.StepThink {
		t.Fatalf("expected only the think step, got %+v", got.Steps)
	}
}

func TestReduce_EndToEnd(t *testing.T) {
	seed, err := event.DecodeSnapshot([]byte(`{"id":"t1","prompt":"hi","status":"pending","steps":[]}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	snap := task.Snapshot{}.Seed(seed)

	snap, failures := fold(snap,
		frame(event.KindStatus, `{"status":"running"}`),
		frame(event.KindThink, `{"step":0,"type":"think","result":"..."}`),
		frame(event.KindStatus, `{"status":"completed"}`),
	)

	if failures != 0 {
		t.Fatalf("unexpected decode failures: %d", failures)
	}
	if snap.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q", snap.Status)
	}
	if snap.Busy {
		t.Fatal("expected busy=false after completed")
	}
	if len(snap.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(snap.Steps))
	}
	if snap.Prompt != "hi" {
		t.Fatalf("expected prompt hi, got %q", snap.Prompt)
	}
}

func TestReduce_IgnoresPayloadlessKinds(t *testing.T) {
	snap := task.Snapshot{ID: "t1", Status: task.StatusRunning, Busy: true}
	got := event.Reduce(snap, event.Event{Kind: event.KindComplete})
	if got.Status != snap.Status || got.Busy != snap.Busy {
		t.Fatalf("complete must not change snapshot: %+v", got)
	}
}
