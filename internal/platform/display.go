// Package platform provides the narrow capabilities the lifetime model
// consumes from the windowing toolkit: a display connection handle and a
// background worker primitive. The toolkit's event loop, wire protocol and
// rendering are outside this package; only identity and validity cross the
// boundary.
package platform

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Backend identifies the display server flavour a connection targets.
type Backend int

const (
	// BackendHeadless means no display server was found.
	BackendHeadless Backend = iota
	// BackendWayland is a Wayland compositor session.
	BackendWayland
	// BackendX11 is an X11 session.
	BackendX11
)

// String returns the string representation of Backend.
func (b Backend) String() string {
	switch b {
	case BackendWayland:
		return "wayland"
	case BackendX11:
		return "x11"
	case BackendHeadless:
		return "headless"
	default:
		return "unknown"
	}
}

// ParseBackend maps a backend name from configuration to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "wayland":
		return BackendWayland, nil
	case "x11":
		return BackendX11, nil
	case "headless":
		return BackendHeadless, nil
	default:
		return BackendHeadless, fmt.Errorf("unknown display backend %q", s)
	}
}

// DetectBackend inspects the session environment and reports which display
// server is reachable. Wayland wins when both are present.
func DetectBackend() Backend {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		return BackendWayland
	}
	if os.Getenv("DISPLAY") != "" {
		return BackendX11
	}
	return BackendHeadless
}

// Display is the read-only view of a display connection that dependents are
// allowed to hold: an opaque identifier plus a validity probe.
type Display interface {
	// ID returns the connection's opaque identifier.
	ID() string

	// IsValid reports whether the connection is still safe to use.
	IsValid() bool
}

// ErrConnClosed is returned when closing a connection that was already
// closed.
var ErrConnClosed = errors.New("display connection already closed")

// Conn is a display connection handle. Its validity flag transitions
// true→false exactly once, via Close. The caller is responsible for gating
// Close on the lifetime registry so that no dependent still references the
// connection when it goes invalid.
type Conn struct {
	id      string
	backend Backend
	valid   atomic.Bool
}

// Connect opens a connection handle against the given backend.
func Connect(backend Backend) (*Conn, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	c := &Conn{
		id:      fmt.Sprintf("%s-%s", backend, id),
		backend: backend,
	}
	c.valid.Store(true)
	return c, nil
}

// ID returns the connection's identifier.
func (c *Conn) ID() string { return c.id }

// Backend returns the display server flavour this connection targets.
func (c *Conn) Backend() Backend { return c.backend }

// IsValid reports whether the connection is still open.
func (c *Conn) IsValid() bool { return c.valid.Load() }

// Close invalidates the connection. Returns ErrConnClosed if it was already
// closed; the flag never transitions more than once.
func (c *Conn) Close() error {
	if !c.valid.CompareAndSwap(true, false) {
		return fmt.Errorf("close %s: %w", c.id, ErrConnClosed)
	}
	return nil
}
