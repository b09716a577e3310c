package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectBackend(t *testing.T) {
	t.Setenv("WAYLAND_DISPLAY", "wayland-0")
	t.Setenv("DISPLAY", ":0")
	assert.Equal(t, BackendWayland, DetectBackend())

	t.Setenv("WAYLAND_DISPLAY", "")
	assert.Equal(t, BackendX11, DetectBackend())

	t.Setenv("DISPLAY", "")
	assert.Equal(t, BackendHeadless, DetectBackend())
}

func TestBackendString(t *testing.T) {
	assert.Equal(t, "wayland", BackendWayland.String())
	assert.Equal(t, "x11", BackendX11.String())
	assert.Equal(t, "headless", BackendHeadless.String())
}

func TestConn(t *testing.T) {
	c, err := Connect(BackendHeadless)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, BackendHeadless, c.Backend())
	assert.True(t, c.IsValid())

	require.NoError(t, c.Close())
	assert.False(t, c.IsValid())

	// The validity flag transitions exactly once.
	err = c.Close()
	assert.ErrorIs(t, err, ErrConnClosed)
	assert.False(t, c.IsValid())
}

func TestConn_DistinctIDs(t *testing.T) {
	a, err := Connect(BackendWayland)
	require.NoError(t, err)
	b, err := Connect(BackendWayland)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestLoopWorker_StopAndJoin(t *testing.T) {
	started := make(chan struct{})
	w := NewLoopWorker(func(displayID string, stopCh <-chan struct{}) {
		close(started)
		<-stopCh
	})

	h, err := w.Spawn("display-1")
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("worker never started")
	}

	w.SignalStop(h)
	w.SignalStop(h) // idempotent
	require.NoError(t, w.Join(h, time.Second))
}

func TestLoopWorker_JoinTimeout(t *testing.T) {
	release := make(chan struct{})
	w := NewLoopWorker(func(displayID string, stopCh <-chan struct{}) {
		// Ignores the stop signal until released.
		<-release
	})

	h, err := w.Spawn("display-1")
	require.NoError(t, err)

	w.SignalStop(h)
	err = w.Join(h, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrJoinTimeout)

	close(release)
	require.NoError(t, w.Join(h, time.Second))
}

func TestLoopWorker_SeesDisplayID(t *testing.T) {
	got := make(chan string, 1)
	w := NewLoopWorker(func(displayID string, stopCh <-chan struct{}) {
		got <- displayID
		<-stopCh
	})

	h, err := w.Spawn("display-42")
	require.NoError(t, err)

	select {
	case id := <-got:
		assert.Equal(t, "display-42", id)
	case <-time.After(time.Second):
		t.Fatal("worker never reported its display id")
	}

	w.SignalStop(h)
	require.NoError(t, w.Join(h, time.Second))
}
