package clipboard

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/SuchAFuriousDeath/tether/internal/platform"
)

// Transfer moves text between the service and the platform clipboard. The
// display identifier is carried on every call so a transfer can never
// outlive the connection it was handed: the worker that invokes it is
// stopped and joined before the connection is invalidated.
type Transfer interface {
	// Read returns the current clipboard text.
	Read(ctx context.Context, displayID string) (string, error)

	// Write replaces the clipboard text.
	Write(ctx context.Context, displayID string, text string) error
}

// commandTransfer shells out to the session's clipboard utilities.
type commandTransfer struct {
	pasteCmd []string
	copyCmd  []string
}

// NewCommandTransfer returns a Transfer backed by the clipboard commands
// available for the given display backend. Wayland prefers wl-paste/wl-copy;
// X11 falls back through xclip and xsel.
func NewCommandTransfer(backend platform.Backend) (Transfer, error) {
	switch backend {
	case platform.BackendWayland:
		if _, err := exec.LookPath("wl-paste"); err == nil {
			return &commandTransfer{
				pasteCmd: []string{"wl-paste", "--no-newline"},
				copyCmd:  []string{"wl-copy"},
			}, nil
		}
	case platform.BackendX11:
		if _, err := exec.LookPath("xclip"); err == nil {
			return &commandTransfer{
				pasteCmd: []string{"xclip", "-selection", "clipboard", "-o"},
				copyCmd:  []string{"xclip", "-selection", "clipboard"},
			}, nil
		}
		if _, err := exec.LookPath("xsel"); err == nil {
			return &commandTransfer{
				pasteCmd: []string{"xsel", "--clipboard", "--output"},
				copyCmd:  []string{"xsel", "--clipboard", "--input"},
			}, nil
		}
	}
	return nil, fmt.Errorf("no clipboard command available for %s", backend)
}

func (t *commandTransfer) Read(ctx context.Context, displayID string) (string, error) {
	c := exec.CommandContext(ctx, t.pasteCmd[0], t.pasteCmd[1:]...)
	out, err := c.Output()
	if err != nil {
		return "", fmt.Errorf("read clipboard on %s: %w", displayID, err)
	}
	return string(out), nil
}

func (t *commandTransfer) Write(ctx context.Context, displayID string, text string) error {
	c := exec.CommandContext(ctx, t.copyCmd[0], t.copyCmd[1:]...)
	c.Stdin = strings.NewReader(text)
	if err := c.Run(); err != nil {
		return fmt.Errorf("write clipboard on %s: %w", displayID, err)
	}
	return nil
}
