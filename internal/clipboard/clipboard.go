// Package clipboard implements the background clipboard service. The service
// owns a worker that continuously references a display connection, so its
// whole lifetime is bracketed by a registry registration: Start registers it
// as a dependent of the display root before the worker is spawned, and Stop
// joins the worker before the registration is released. The display can
// therefore never be invalidated while the worker might still touch it.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SuchAFuriousDeath/tether/internal/platform"
	"github.com/SuchAFuriousDeath/tether/internal/registry"
)

// Service errors.
var (
	// ErrWorkerShutdownTimeout is returned by Stop when the worker refuses to
	// exit within the configured join budget. The service stays registered
	// against its root so the root cannot be invalidated underneath a
	// still-running worker.
	ErrWorkerShutdownTimeout = errors.New("clipboard worker failed to stop within timeout")

	// ErrServiceStopped is returned by Get/Set after the service has stopped.
	ErrServiceStopped = errors.New("clipboard service is stopped")
)

const dependentID = "clipboard"

// Default option values, matching the config package defaults.
const (
	defaultPollInterval      = 200 * time.Millisecond
	defaultJoinTimeout       = 5 * time.Second
	defaultStopRetryInterval = 100 * time.Millisecond
	defaultStopMaxRetries    = 5
)

type requestKind int

const (
	requestGet requestKind = iota
	requestSet
)

type response struct {
	text string
	err  error
}

type request struct {
	kind  requestKind
	text  string
	reply chan response
}

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Logger   *slog.Logger
	Transfer Transfer        // nil disables polling; Get/Set report an error
	Worker   platform.Worker // nil uses an in-process LoopWorker

	PollInterval      time.Duration
	JoinTimeout       time.Duration
	StopRetryInterval time.Duration
	StopMaxRetries    int
}

// Service is a clipboard service backed by one worker. It holds a non-owning
// reference to a display connection for its entire operational lifetime.
type Service struct {
	logger   *slog.Logger
	reg      *registry.Registry
	token    registry.Token
	display  platform.Display
	worker   platform.Worker
	handle   platform.Handle
	transfer Transfer

	pollInterval      time.Duration
	joinTimeout       time.Duration
	stopRetryInterval time.Duration
	stopMaxRetries    int

	requests chan request

	mu        sync.Mutex
	stopped   bool
	stoppedCh chan struct{}

	contentMu sync.Mutex
	content   string
}

// Start registers a clipboard service as a dependent of root and spawns its
// worker. It never returns a service whose root is already invalid: when the
// registry refuses the registration, Start reports ErrRootAlreadyInvalid and
// no worker is created.
func Start(reg *registry.Registry, root registry.RootHandle, display platform.Display, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	if opts.StopRetryInterval <= 0 {
		opts.StopRetryInterval = defaultStopRetryInterval
	}
	if opts.StopMaxRetries <= 0 {
		opts.StopMaxRetries = defaultStopMaxRetries
	}

	token, err := reg.RegisterDependent(root, dependentID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownRoot) {
			return nil, fmt.Errorf("start clipboard service: %w", registry.ErrRootAlreadyInvalid)
		}
		return nil, fmt.Errorf("start clipboard service: %w", err)
	}

	s := &Service{
		logger:            opts.Logger,
		reg:               reg,
		token:             token,
		display:           display,
		transfer:          opts.Transfer,
		pollInterval:      opts.PollInterval,
		joinTimeout:       opts.JoinTimeout,
		stopRetryInterval: opts.StopRetryInterval,
		stopMaxRetries:    opts.StopMaxRetries,
		requests:          make(chan request),
		stoppedCh:         make(chan struct{}),
	}

	s.worker = opts.Worker
	if s.worker == nil {
		s.worker = platform.NewLoopWorker(s.run)
	}

	handle, err := s.worker.Spawn(display.ID())
	if err != nil {
		// Roll the registration back; the service never came alive.
		_ = reg.UnregisterDependent(token)
		return nil, fmt.Errorf("start clipboard service: %w", err)
	}
	s.handle = handle

	s.logger.Info("clipboard service started", "display", display.ID())
	return s, nil
}

// Stop signals the worker to exit, joins it, and unregisters the service
// from its root. It blocks until the worker has provably stopped touching
// the display. A worker that ignores the stop signal is re-signalled with
// bounded backoff; if it still has not exited, Stop reports
// ErrWorkerShutdownTimeout and leaves the registration in place.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.worker.SignalStop(s.handle)
	err := s.worker.Join(s.handle, s.joinTimeout)
	for attempt := 1; err != nil && attempt <= s.stopMaxRetries; attempt++ {
		s.logger.Warn("clipboard worker still running, re-signalling stop",
			"attempt", attempt,
			"max_attempts", s.stopMaxRetries,
		)
		time.Sleep(s.stopRetryInterval)
		s.worker.SignalStop(s.handle)
		err = s.worker.Join(s.handle, s.joinTimeout)
	}
	if err != nil {
		return fmt.Errorf("stop clipboard service: %w", ErrWorkerShutdownTimeout)
	}

	s.mu.Lock()
	if s.stopped {
		// A concurrent Stop already finished the teardown.
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stoppedCh)
	s.mu.Unlock()

	if err := s.reg.UnregisterDependent(s.token); err != nil {
		return fmt.Errorf("stop clipboard service: %w", err)
	}

	s.logger.Info("clipboard service stopped", "display", s.display.ID())
	return nil
}

// Running reports whether the service has not yet been stopped.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopped
}

// Get returns the current clipboard text via the worker.
func (s *Service) Get(ctx context.Context) (string, error) {
	resp, err := s.roundTrip(ctx, request{kind: requestGet, reply: make(chan response, 1)})
	if err != nil {
		return "", err
	}
	return resp.text, resp.err
}

// Set replaces the clipboard text via the worker.
func (s *Service) Set(ctx context.Context, text string) error {
	resp, err := s.roundTrip(ctx, request{kind: requestSet, text: text, reply: make(chan response, 1)})
	if err != nil {
		return err
	}
	return resp.err
}

// Current returns the most recently polled clipboard content.
func (s *Service) Current() string {
	s.contentMu.Lock()
	defer s.contentMu.Unlock()
	return s.content
}

func (s *Service) roundTrip(ctx context.Context, req request) (response, error) {
	select {
	case s.requests <- req:
	case <-s.stoppedCh:
		return response{}, ErrServiceStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-s.stoppedCh:
		return response{}, ErrServiceStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// run is the worker body. It services get/set requests and polls for
// clipboard changes until the stop signal arrives. While it runs, the
// display identifier it dereferences is guaranteed valid by the registry
// registration made in Start.
func (s *Service) run(displayID string, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case req := <-s.requests:
			s.handleRequest(displayID, req)
		case <-ticker.C:
			s.pollOnce(displayID)
		}
	}
}

func (s *Service) handleRequest(displayID string, req request) {
	if s.transfer == nil {
		req.reply <- response{err: fmt.Errorf("no clipboard transfer available on %s", displayID)}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch req.kind {
	case requestGet:
		text, err := s.transfer.Read(ctx, displayID)
		req.reply <- response{text: text, err: err}
	case requestSet:
		err := s.transfer.Write(ctx, displayID, req.text)
		if err == nil {
			s.contentMu.Lock()
			s.content = req.text
			s.contentMu.Unlock()
		}
		req.reply <- response{err: err}
	}
}

func (s *Service) pollOnce(displayID string) {
	if s.transfer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
	defer cancel()

	text, err := s.transfer.Read(ctx, displayID)
	if err != nil {
		s.logger.Debug("clipboard poll failed", "display", displayID, "error", err)
		return
	}

	s.contentMu.Lock()
	changed := text != s.content
	s.content = text
	s.contentMu.Unlock()

	if changed {
		s.logger.Debug("clipboard changed", "display", displayID, "bytes", len(text))
	}
}
