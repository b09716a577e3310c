// Package window provides the window resource. A window borrows a display
// connection the same way the clipboard service does, but owns no background
// worker; its registration exists so the display cannot be invalidated while
// the toolkit still holds window state against it.
package window

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SuchAFuriousDeath/tether/internal/platform"
	"github.com/SuchAFuriousDeath/tether/internal/registry"
)

const dependentID = "window"

// Window is a window bound to a display connection.
type Window struct {
	logger  *slog.Logger
	reg     *registry.Registry
	token   registry.Token
	display platform.Display
	title   string

	mu        sync.Mutex
	destroyed bool
}

// Create registers a window as a dependent of root. Like the clipboard
// service, it reports ErrRootAlreadyInvalid rather than producing a window
// against a dead display.
func Create(reg *registry.Registry, root registry.RootHandle, display platform.Display, title string, logger *slog.Logger) (*Window, error) {
	if logger == nil {
		logger = slog.Default()
	}

	token, err := reg.RegisterDependent(root, dependentID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownRoot) {
			return nil, fmt.Errorf("create window: %w", registry.ErrRootAlreadyInvalid)
		}
		return nil, fmt.Errorf("create window: %w", err)
	}

	logger.Info("window created", "display", display.ID(), "title", title)
	return &Window{
		logger:  logger,
		reg:     reg,
		token:   token,
		display: display,
		title:   title,
	}, nil
}

// Title returns the window title.
func (w *Window) Title() string { return w.title }

// DisplayID returns the identifier of the display the window is bound to.
func (w *Window) DisplayID() string { return w.display.ID() }

// Destroyed reports whether the window has been destroyed.
func (w *Window) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// Destroy releases the window's registration against its display. Destroying
// twice reports ErrAlreadyUnregistered.
func (w *Window) Destroy() error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return fmt.Errorf("destroy window: %w", registry.ErrAlreadyUnregistered)
	}
	w.destroyed = true
	w.mu.Unlock()

	if err := w.reg.UnregisterDependent(w.token); err != nil {
		return fmt.Errorf("destroy window: %w", err)
	}

	w.logger.Info("window destroyed", "display", w.display.ID(), "title", w.title)
	return nil
}
