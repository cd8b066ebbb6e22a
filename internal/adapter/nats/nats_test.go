package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Strob0t/taskwatch/internal/domain/task"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Mirror {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	m, err := Connect(context.Background(), url, "taskwatch.test")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return m
}

func TestSubjectToken(t *testing.T) {
	tests := map[string]string{
		"t1":           "t1",
		"a.b":          "a_b",
		"weird id>*":   "weird_id__",
		"":             "_",
		"3f2c-uuid_ok": "3f2c-uuid_ok",
	}
	for in, want := range tests {
		if got := subjectToken(in); got != want {
			t.Errorf("subjectToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMirror_PublishLatest(t *testing.T) {
	m := testConnect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	taskID := "mirror-" + t.Name()
	m.Publish(ctx, task.Snapshot{ID: taskID, Status: task.StatusRunning, Steps: []task.Step{}, Busy: true})
	m.Publish(ctx, task.Snapshot{ID: taskID, Status: task.StatusCompleted, Steps: []task.Step{}})
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := m.Latest(ctx, taskID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	var view map[string]any
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if view["status"] != "completed" || view["busy"] != false {
		t.Fatalf("expected latest completed view, got %v", view)
	}
}

func TestMirror_ReportFailure(t *testing.T) {
	m := testConnect(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	taskID := "failure-" + t.Name()
	m.ReportFailure(ctx, taskID, errors.New("stream ended before task completion"))
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	s, err := m.js.Stream(ctx, streamName)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	msg, err := s.GetLastMsgForSubject(ctx, m.Subject(taskID)+".failure")
	if err != nil {
		t.Fatalf("GetLastMsgForSubject: %v", err)
	}
	var fm FailureMessage
	if err := json.Unmarshal(msg.Data, &fm); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fm.TaskID != taskID {
		t.Fatalf("expected task %s, got %s", taskID, fm.TaskID)
	}
}
