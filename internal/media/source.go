package media

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrGrabTimeout means no frame arrived within the grab timeout. The
	// handle is still considered valid; the caller may retry immediately.
	ErrGrabTimeout = errors.New("grab timeout")

	// ErrSourceDisconnected means the underlying handle is no longer
	// usable and the caller must reopen the source.
	ErrSourceDisconnected = errors.New("source disconnected")
)

// OpenError wraps a connection establishment failure.
type OpenError struct {
	URI string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open source %q: %v", e.URI, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// ConnectionConfig is the immutable per-camera capture configuration,
// owned exclusively by the CameraConnection it was created for.
type ConnectionConfig struct {
	ID          string
	DisplayName string
	// SourceURI is a capture device index ("0", "1", ...) or a network
	// stream URL (rtsp://, http://).
	SourceURI         string
	TargetWidth       int
	TargetHeight      int
	TargetFPS         int
	ReconnectInterval time.Duration
}

// Source owns one camera's capture handle.
//
// Grab distinguishes ErrGrabTimeout (retry) from ErrSourceDisconnected
// (reopen); Close is idempotent.
type Source interface {
	Open() error
	Grab(timeout time.Duration) (*Frame, error)
	Close() error
}

// SourceFactory builds a Source for a camera configuration. Injected so
// the connection state machine can be exercised without real devices.
type SourceFactory func(cfg ConnectionConfig) Source
