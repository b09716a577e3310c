package platform

import (
	"errors"
	"sync"
	"time"
)

// ErrJoinTimeout is returned by Join when the worker has not exited within
// the given window.
var ErrJoinTimeout = errors.New("worker did not stop within timeout")

// Handle refers to one spawned worker.
type Handle struct {
	s *workerState
}

type workerState struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Worker spawns and retires background workers bound to a display
// identifier. Implementations must guarantee that after a successful Join
// the worker no longer touches the identifier it was spawned with.
type Worker interface {
	// Spawn starts a worker servicing requests against displayID.
	Spawn(displayID string) (Handle, error)

	// SignalStop asks the worker to exit. Safe to call more than once.
	SignalStop(h Handle)

	// Join blocks until the worker has exited, or returns ErrJoinTimeout
	// after the given duration.
	Join(h Handle, timeout time.Duration) error
}

// RunFunc is a worker body. It must poll stopCh and return promptly once it
// is closed; it must not block indefinitely on external input.
type RunFunc func(displayID string, stopCh <-chan struct{})

// LoopWorker runs worker bodies as goroutines with a cooperative stop
// protocol. It is the in-process implementation of Worker.
type LoopWorker struct {
	run RunFunc
}

// NewLoopWorker returns a LoopWorker that executes run for each spawn.
func NewLoopWorker(run RunFunc) *LoopWorker {
	return &LoopWorker{run: run}
}

// Spawn starts the worker body in its own goroutine.
func (w *LoopWorker) Spawn(displayID string) (Handle, error) {
	s := &workerState{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go func() {
		defer close(s.doneCh)
		w.run(displayID, s.stopCh)
	}()

	return Handle{s: s}, nil
}

// SignalStop closes the worker's stop channel. Idempotent.
func (w *LoopWorker) SignalStop(h Handle) {
	if h.s == nil {
		return
	}
	h.s.stopOnce.Do(func() { close(h.s.stopCh) })
}

// Join waits for the worker goroutine to finish.
func (w *LoopWorker) Join(h Handle, timeout time.Duration) error {
	if h.s == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.s.doneCh:
		return nil
	case <-timer.C:
		return ErrJoinTimeout
	}
}
