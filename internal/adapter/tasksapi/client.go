// Package tasksapi provides the HTTP client for the task backend's snapshot
// endpoint. It implements snapshot.Loader.
package tasksapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Strob0t/taskwatch/internal/domain"
	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/snapshot"
	"github.com/Strob0t/taskwatch/internal/resilience"
)

// maxBody caps how much of a snapshot response is read.
const maxBody = 8 << 20

// SnapshotFetchError describes a failed initial snapshot fetch.
type SnapshotFetchError struct {
	TaskID string
	Status int // 0 when no response was received
	Err    error
}

func (e *SnapshotFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch task %s: status %d: %v", e.TaskID, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch task %s: %v", e.TaskID, e.Err)
}

// Unwrap exposes domain.ErrSnapshotFetch, domain.ErrNotFound for 404s, and
// the cause.
func (e *SnapshotFetchError) Unwrap() []error {
	errs := []error{domain.ErrSnapshotFetch}
	if e.Status == http.StatusNotFound {
		errs = append(errs, domain.ErrNotFound)
	}
	return append(errs, e.Err)
}

// Client fetches task snapshots from the task backend.
type Client struct {
	baseURL    string
	pathFormat string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a snapshot client. pathFormat is a fmt template that
// receives the path-escaped task ID, e.g. "/tasks/%s".
func NewClient(baseURL, pathFormat string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pathFormat: pathFormat,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Fetch implements snapshot.Loader.
func (c *Client) Fetch(ctx context.Context, taskID string) (*task.Snapshot, error) {
	var snap task.Snapshot
	call := func(ctx context.Context) error {
		data, err := c.get(ctx, taskID)
		if err != nil {
			return err
		}
		snap, err = event.DecodeSnapshot(data)
		if err != nil {
			return &SnapshotFetchError{TaskID: taskID, Status: http.StatusOK, Err: err}
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.ExecuteContext(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		var fe *SnapshotFetchError
		if !errors.As(err, &fe) {
			err = &SnapshotFetchError{TaskID: taskID, Err: err}
		}
		return nil, err
	}
	if snap.ID == "" {
		snap.ID = taskID
	}
	return &snap, nil
}

func (c *Client) get(ctx context.Context, taskID string) ([]byte, error) {
	u := c.baseURL + fmt.Sprintf(c.pathFormat, url.PathEscape(taskID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SnapshotFetchError{
			TaskID: taskID,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("tasks API error: %s", strings.TrimSpace(string(data))),
		}
	}
	return data, nil
}

// IsNotFound reports whether err is a fetch that the backend answered with
// 404. The breaker uses it to keep such answers from counting as outages.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

var _ snapshot.Loader = (*Client)(nil)
