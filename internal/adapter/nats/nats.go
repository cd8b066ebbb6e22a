// Package nats mirrors reconciled task snapshots to NATS JetStream so other
// processes can follow a task without opening their own stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
)

const streamName = "TASKWATCH"

// FailureMessage is published when a viewing session fails.
type FailureMessage struct {
	TaskID string `json:"task_id"`
	Error  string `json:"error"`
}

// Mirror is a broadcast.Sink that publishes each snapshot view to
// "<prefix>.<task>" and failures to "<prefix>.<task>.failure". The stream
// keeps only the latest message per subject.
type Mirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url, prefix string) (*Mirror, error) {
	nc, err := nats.Connect(url, nats.Name("taskwatch"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              streamName,
		Subjects:          []string{prefix + ".>"},
		MaxMsgsPerSubject: 1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName, "prefix", prefix)
	return &Mirror{nc: nc, js: js, prefix: prefix}, nil
}

// Subject returns the snapshot subject for taskID.
func (m *Mirror) Subject(taskID string) string {
	return m.prefix + "." + subjectToken(taskID)
}

// Publish implements broadcast.Sink. It does not wait for the server ack.
func (m *Mirror) Publish(ctx context.Context, snap task.Snapshot) {
	data, err := json.Marshal(snap.View())
	if err != nil {
		slog.WarnContext(ctx, "nats mirror: marshal failed", "task_id", snap.ID, "error", err)
		return
	}
	m.publishAsync(ctx, m.Subject(snap.ID), data)
}

// ReportFailure implements broadcast.FailureReporter.
func (m *Mirror) ReportFailure(ctx context.Context, taskID string, err error) {
	data, mErr := json.Marshal(FailureMessage{TaskID: taskID, Error: err.Error()})
	if mErr != nil {
		return
	}
	m.publishAsync(ctx, m.Subject(taskID)+".failure", data)
}

func (m *Mirror) publishAsync(ctx context.Context, subject string, data []byte) {
	if _, err := m.js.PublishAsync(subject, data); err != nil {
		slog.WarnContext(ctx, "nats mirror: publish failed", "subject", subject, "error", err)
	}
}

// Latest returns the last mirrored view of taskID.
func (m *Mirror) Latest(ctx context.Context, taskID string) ([]byte, error) {
	s, err := m.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("jetstream stream: %w", err)
	}
	msg, err := s.GetLastMsgForSubject(ctx, m.Subject(taskID))
	if err != nil {
		return nil, fmt.Errorf("nats latest %s: %w", taskID, err)
	}
	return msg.Data, nil
}

// Flush waits until every pending asynchronous publish has been acknowledged.
func (m *Mirror) Flush(ctx context.Context) error {
	select {
	case <-m.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the NATS connection.
func (m *Mirror) Close() error {
	return m.nc.Drain()
}

// subjectToken maps a task ID onto a single NATS subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

var (
	_ broadcast.Sink            = (*Mirror)(nil)
	_ broadcast.FailureReporter = (*Mirror)(nil)
)
