package terminal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Strob0t/taskwatch/internal/domain/task"
)

func step(idx int, typ task.StepType, text string) task.Step {
	raw, _ := json.Marshal(text)
	return task.Step{Index: idx, Type: typ, Payload: raw}
}

func TestRenderer_PrintsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})
	ctx := context.Background()

	snap := task.Snapshot{ID: "t1", Prompt: "hi", Status: task.StatusRunning, Busy: true, Steps: []task.Step{
		step(0, task.StepThink, "planning"),
	}}
	r.Publish(ctx, snap)
	r.Publish(ctx, snap)

	out := buf.String()
	if strings.Count(out, "task t1") != 1 {
		t.Fatalf("expected one header, got:\n%s", out)
	}
	if strings.Count(out, "planning") != 1 {
		t.Fatalf("identical snapshot must not reprint steps, got:\n%s", out)
	}
	if !strings.Contains(out, "prompt: hi") {
		t.Fatalf("expected prompt line, got:\n%s", out)
	}
	if !strings.Contains(out, "status: running (agent working)") {
		t.Fatalf("expected busy running status, got:\n%s", out)
	}
}

func TestRenderer_ReplacedStepIsMarked(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})
	ctx := context.Background()

	r.Publish(ctx, task.Snapshot{ID: "t1", Steps: []task.Step{step(1, task.StepTool, "ls")}})
	buf.Reset()
	r.Publish(ctx, task.Snapshot{ID: "t1", Steps: []task.Step{step(1, task.StepTool, "ls -la")}})

	out := buf.String()
	if !strings.Contains(out, "~[1] tool") || !strings.Contains(out, "ls -la") {
		t.Fatalf("expected replaced step marker, got:\n%s", out)
	}
}

func TestRenderer_CompletedStatus(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})

	r.Publish(context.Background(), task.Snapshot{ID: "t1", Status: task.StatusCompleted, Steps: []task.Step{}})

	if !strings.Contains(buf.String(), "✓ completed") {
		t.Fatalf("expected completed marker, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "agent working") {
		t.Fatal("completed task must not show as working")
	}
}

func TestRenderer_MaxSteps(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{MaxSteps: 1})

	r.Publish(context.Background(), task.Snapshot{ID: "t1", Steps: []task.Step{
		step(0, task.StepThink, "old"),
		step(1, task.StepResult, "new"),
	}})

	if strings.Contains(buf.String(), "old") || !strings.Contains(buf.String(), "new") {
		t.Fatalf("expected only the last step, got:\n%s", buf.String())
	}
}

func TestRenderer_NewTaskResets(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})
	ctx := context.Background()

	r.Publish(ctx, task.Snapshot{ID: "t1", Steps: []task.Step{step(0, task.StepLog, "same")}})
	r.Publish(ctx, task.Snapshot{ID: "t2", Steps: []task.Step{step(0, task.StepLog, "same")}})

	if strings.Count(buf.String(), "same") != 2 {
		t.Fatalf("switching tasks must reprint steps, got:\n%s", buf.String())
	}
}

func TestRenderer_ReportFailure(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, Options{})

	r.ReportFailure(context.Background(), "t1", errors.New("stream ended before task completion"))

	if !strings.Contains(buf.String(), "task t1: stream ended before task completion") {
		t.Fatalf("unexpected failure output:\n%s", buf.String())
	}
}

func TestFit(t *testing.T) {
	r := &Renderer{width: 20}
	if got := r.fit("short", 4); got != "short" {
		t.Fatalf("fit short = %q", got)
	}
	if got := r.fit("a very long line that overflows", 4); len([]rune(got)) != 16 || !strings.HasSuffix(got, "…") {
		t.Fatalf("fit long = %q", got)
	}
	if got := r.fit("first\nsecond", 4); got != "first …" {
		t.Fatalf("fit multi = %q", got)
	}

	r.width = 0
	if got := r.fit("a\nb", 2); got != "a\n  b" {
		t.Fatalf("fit unbounded = %q", got)
	}
}
