// Package sse implements stream.Source over server-sent events using
// r3labs/sse.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	r3sse "github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

// defaultKind is the event name of frames sent without an "event:" line.
const defaultKind = "message"

// DefaultMaxFrameBytes bounds a single SSE frame. Tool results routinely
// exceed the 64 KiB the underlying reader allows by default.
const DefaultMaxFrameBytes = 4 << 20

// Source connects to the per-task event endpoint of the task backend.
// Each Stream call opens one connection and never reconnects.
type Source struct {
	baseURL    string
	pathFormat string
	client     *http.Client
	headers    map[string]string
	maxFrame   int
}

// Option configures a Source.
type Option func(*Source)

// WithHTTPClient sets the HTTP client used for the stream connection. The
// client must not have a timeout; streams are long-lived.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Source) { s.client = c }
}

// WithHeader adds a request header to every stream connection.
func WithHeader(key, value string) Option {
	return func(s *Source) { s.headers[key] = value }
}

// WithMaxFrameBytes sets the largest frame the stream accepts. A larger frame
// ends the stream with a transport error. n <= 0 keeps the default.
func WithMaxFrameBytes(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxFrame = n
		}
	}
}

// NewSource creates a Source for baseURL. pathFormat is a fmt template that
// receives the path-escaped task ID, e.g. "/tasks/%s/events".
func NewSource(baseURL, pathFormat string, opts ...Option) *Source {
	s := &Source{
		baseURL:    strings.TrimRight(baseURL, "/"),
		pathFormat: pathFormat,
		client:     &http.Client{},
		headers:    map[string]string{"Accept": "text/event-stream"},
		maxFrame:   DefaultMaxFrameBytes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// URL returns the event endpoint for taskID.
func (s *Source) URL(taskID string) string {
	return s.baseURL + fmt.Sprintf(s.pathFormat, url.PathEscape(taskID))
}

// Stream implements stream.Source. It returns nil when the server ends the
// stream, ctx.Err() when ctx is cancelled, and the transport error otherwise.
func (s *Source) Stream(ctx context.Context, taskID string, h stream.Handler) error {
	c := r3sse.NewClient(s.URL(taskID), r3sse.ClientMaxBufferSize(s.maxFrame))
	c.Connection = s.client
	c.ReconnectStrategy = &backoff.StopBackOff{}
	for k, v := range s.headers {
		c.Headers[k] = v
	}
	c.ResponseValidator = func(_ *r3sse.Client, resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return &StatusError{Code: resp.StatusCode}
		}
		h.OnOpen()
		return nil
	}

	err := c.SubscribeRawWithContext(ctx, func(msg *r3sse.Event) {
		if ctx.Err() != nil {
			return
		}
		h.OnFrame(toFrame(msg))
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", taskID, err)
	}
	return nil
}

// StatusError is returned when the event endpoint answers with a non-200
// status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event stream rejected: %d %s", e.Code, http.StatusText(e.Code))
}

// IsNotFound reports whether err is a 404 from the event endpoint.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func toFrame(msg *r3sse.Event) event.Frame {
	kind := string(msg.Event)
	if kind == "" {
		kind = defaultKind
	}
	data := make([]byte, len(msg.Data))
	copy(data, msg.Data)
	return event.Frame{
		Kind: event.Kind(kind),
		ID:   string(msg.ID),
		Data: data,
	}
}

var _ stream.Source = (*Source)(nil)
