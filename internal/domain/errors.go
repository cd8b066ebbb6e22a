// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested task does not exist on the remote.
var ErrNotFound = errors.New("not found")

// ErrDecode indicates a single stream frame could not be decoded.
// The frame is dropped and the stream continues.
var ErrDecode = errors.New("decode frame")

// ErrTransport indicates the live event stream failed at the transport level.
var ErrTransport = errors.New("event stream transport")

// ErrSnapshotFetch indicates the initial task snapshot could not be loaded.
var ErrSnapshotFetch = errors.New("snapshot fetch")
