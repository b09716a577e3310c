// Package app drives the application lifecycle. The Controller owns the
// display connection, the window, and the clipboard service, and walks them
// through an explicit state machine so that teardown order is checked by the
// lifetime registry instead of depending on the order resources happen to be
// stored or declared.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SuchAFuriousDeath/tether/internal/clipboard"
	"github.com/SuchAFuriousDeath/tether/internal/config"
	"github.com/SuchAFuriousDeath/tether/internal/platform"
	"github.com/SuchAFuriousDeath/tether/internal/registry"
	"github.com/SuchAFuriousDeath/tether/internal/window"
)

// State represents the controller lifecycle state.
type State int

const (
	// StateUninitialized means no resources exist yet.
	StateUninitialized State = iota
	// StateRunning means the display, window and clipboard service are live.
	StateRunning
	// StateShuttingDown means teardown has begun: dependents are being
	// retired ahead of root invalidation.
	StateShuttingDown
	// StateTerminated means every resource has been released.
	StateTerminated
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Controller errors.
var (
	ErrAlreadyStarted = errors.New("controller already started")
	ErrNotRunning     = errors.New("controller is not running")
)

// Controller orchestrates resource creation order and drives shutdown
// through the registry rather than through field-destruction order.
type Controller struct {
	logger *slog.Logger
	cfg    *config.Config
	reg    *registry.Registry

	conn *platform.Conn
	root registry.RootHandle
	clip *clipboard.Service
	win  *window.Window

	mu    sync.Mutex
	state State

	shutdownMu sync.Mutex

	closeOnce sync.Once
	closeCh   chan struct{}
	doneCh    chan struct{}
}

// New creates a Controller in the Uninitialized state.
func New(cfg *config.Config, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Controller{
		logger:  logger,
		cfg:     cfg,
		reg:     registry.New(logger),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Registry exposes the lifetime registry, mainly for inspection in tests.
func (c *Controller) Registry() *registry.Registry { return c.reg }

// Clipboard returns the clipboard service, nil before Start.
func (c *Controller) Clipboard() *clipboard.Service { return c.clip }

// Window returns the window, nil before Start.
func (c *Controller) Window() *window.Window { return c.win }

// Display returns the display connection, nil before Start.
func (c *Controller) Display() *platform.Conn { return c.conn }

// Done is closed once the controller reaches Terminated.
func (c *Controller) Done() <-chan struct{} { return c.doneCh }

// Start transitions Uninitialized → Running: it opens the display
// connection, registers it as the lifetime root, and creates the window and
// clipboard service as dependents.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return fmt.Errorf("start in state %s: %w", c.state, ErrAlreadyStarted)
	}
	c.mu.Unlock()

	backend := platform.DetectBackend()
	if c.cfg.Display.Backend != "" {
		parsed, err := platform.ParseBackend(c.cfg.Display.Backend)
		if err != nil {
			return err
		}
		backend = parsed
	}

	conn, err := platform.Connect(backend)
	if err != nil {
		return fmt.Errorf("connect display: %w", err)
	}
	c.conn = conn

	root, err := c.reg.RegisterRoot(conn.ID())
	if err != nil {
		return fmt.Errorf("register display root: %w", err)
	}
	c.root = root

	win, err := window.Create(c.reg, root, conn, c.cfg.Behavior.WindowTitle, c.logger)
	if err != nil {
		return err
	}
	c.win = win

	transfer, err := clipboard.NewCommandTransfer(backend)
	if err != nil {
		// Mirrors a session without a usable clipboard: the service still
		// runs, it just has nothing to transfer.
		c.logger.Warn("clipboard transfer unavailable", "backend", backend.String(), "error", err)
		transfer = nil
	}

	clip, err := clipboard.Start(c.reg, root, conn, clipboard.Options{
		Logger:            c.logger,
		Transfer:          transfer,
		PollInterval:      c.cfg.Worker.PollInterval.Duration(),
		JoinTimeout:       c.cfg.Worker.JoinTimeout.Duration(),
		StopRetryInterval: c.cfg.Worker.StopRetryInterval.Duration(),
		StopMaxRetries:    c.cfg.Worker.StopMaxRetries,
	})
	if err != nil {
		return err
	}
	c.clip = clip

	c.mu.Lock()
	c.state = StateRunning
	c.mu.Unlock()

	c.logger.Info("controller running",
		"display", conn.ID(),
		"backend", backend.String(),
		"dependents", c.reg.DependentCount(root),
	)
	return nil
}

// RequestClose signals the controller to begin shutdown. Safe to call from
// any goroutine, any number of times, at any point after New.
func (c *Controller) RequestClose() {
	c.closeOnce.Do(func() { close(c.closeCh) })
}

// Run starts the controller and blocks until a close is requested, the
// context is cancelled, or the auto-close timer elapses; it then performs
// the full shutdown sequence.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}

	var autoCloseCh <-chan time.Time
	if d := c.cfg.Behavior.AutoClose.Duration(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		autoCloseCh = timer.C
		c.logger.Info("auto-close armed", "after", d)
	}

	select {
	case <-ctx.Done():
		c.logger.Info("context cancelled, shutting down")
	case <-autoCloseCh:
		c.logger.Info("auto-close timer elapsed, shutting down")
	case <-c.closeCh:
		c.logger.Info("close requested, shutting down")
	}

	return c.Shutdown()
}

// Shutdown transitions Running → ShuttingDown → Terminated. Dependents are
// retired first — the clipboard worker is stopped and joined, the window is
// destroyed — and only then is the display root invalidated and the
// connection closed. If a dependent refuses to stop, Shutdown returns the
// error and leaves the root valid; calling Shutdown again retries the
// remaining teardown.
func (c *Controller) Shutdown() error {
	c.shutdownMu.Lock()
	defer c.shutdownMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateTerminated:
		c.mu.Unlock()
		return nil
	case StateUninitialized:
		c.mu.Unlock()
		return fmt.Errorf("shutdown in state %s: %w", StateUninitialized, ErrNotRunning)
	case StateRunning:
		c.state = StateShuttingDown
	case StateShuttingDown:
		// Retry after an earlier failed teardown.
	}
	c.mu.Unlock()

	c.logger.Info("teardown started", "dependents", c.reg.DependentCount(c.root))

	if c.clip != nil && c.clip.Running() {
		if err := c.clip.Stop(); err != nil {
			c.logger.Error("clipboard service failed to stop; display stays valid", "error", err)
			return err
		}
	}

	if c.win != nil && !c.win.Destroyed() {
		if err := c.win.Destroy(); err != nil {
			return err
		}
	}

	// Structurally unreachable for this to fail: both dependents above
	// completed before we get here.
	if err := c.reg.InvalidateRoot(c.root); err != nil {
		return fmt.Errorf("invalidate display root: %w", err)
	}

	if err := c.conn.Close(); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateTerminated
	c.mu.Unlock()
	close(c.doneCh)

	c.logger.Info("controller terminated", "display", c.conn.ID())
	return nil
}
