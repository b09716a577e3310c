// Package session listens for session-level shutdown notifications so the
// daemon can begin orderly teardown before the desktop goes away.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// ShutdownHandler is invoked when the session signals an imminent shutdown.
type ShutdownHandler func()

// Listener watches logind's PrepareForShutdown signal on the system bus.
type Listener struct {
	logger *slog.Logger

	onShutdown ShutdownHandler

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	running bool
}

// NewListener creates a shutdown listener.
func NewListener(logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{logger: logger}
}

// SetShutdownHandler sets the callback invoked on PrepareForShutdown(true).
func (l *Listener) SetShutdownHandler(handler ShutdownHandler) {
	l.onShutdown = handler
}

// Start connects to the system bus and subscribes to PrepareForShutdown.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}

	err = conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
		dbus.WithMatchMember("PrepareForShutdown"),
	)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to add match rule: %w", err)
	}

	l.conn = conn
	l.signals = make(chan *dbus.Signal, 10)
	conn.Signal(l.signals)
	l.running = true

	go l.processSignals()

	l.logger.Info("listening for logind PrepareForShutdown")
	return nil
}

// processSignals reads bus signals until the connection closes.
func (l *Listener) processSignals() {
	for sig := range l.signals {
		if sig.Name != "org.freedesktop.login1.Manager.PrepareForShutdown" {
			continue
		}
		if len(sig.Body) != 1 {
			continue
		}
		starting, ok := sig.Body[0].(bool)
		if !ok || !starting {
			continue
		}

		l.logger.Info("session shutdown announced")
		if l.onShutdown != nil {
			l.onShutdown()
		}
	}
}

// Stop unsubscribes and closes the bus connection.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return nil
	}
	l.running = false

	l.conn.RemoveSignal(l.signals)
	return l.conn.Close()
}
