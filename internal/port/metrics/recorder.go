// Package metrics defines the port for recording reconciliation telemetry.
package metrics

import "context"

// Recorder counts what the reconciliation engine does. Implementations must
// be safe for concurrent use and must not block.
type Recorder interface {
	FrameDecoded(ctx context.Context, kind string)
	DecodeFailed(ctx context.Context, kind string)
	TransportFailed(ctx context.Context)
	SnapshotPublished(ctx context.Context)
	SessionStarted(ctx context.Context)
	SessionClosed(ctx context.Context, reason string)
	FetchFailed(ctx context.Context)
}

// Nop is a Recorder that records nothing.
type Nop struct{}

func (Nop) FrameDecoded(context.Context, string)  {}
func (Nop) DecodeFailed(context.Context, string)  {}
func (Nop) TransportFailed(context.Context)       {}
func (Nop) SnapshotPublished(context.Context)     {}
func (Nop) SessionStarted(context.Context)        {}
func (Nop) SessionClosed(context.Context, string) {}
func (Nop) FetchFailed(context.Context)           {}
