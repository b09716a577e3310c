package registry

import "errors"

// Registry errors. All are recoverable conditions reported to the caller;
// none aborts the process.
var (
	// ErrDuplicateRoot is returned when registering a root whose identifier
	// is already tracked.
	ErrDuplicateRoot = errors.New("root already registered")

	// ErrUnknownRoot is returned when an operation names a root that was
	// never registered or has already been invalidated.
	ErrUnknownRoot = errors.New("root not registered or already invalidated")

	// ErrRootHasDependents is returned by InvalidateRoot while the root's
	// dependent set is non-empty.
	ErrRootHasDependents = errors.New("root still has registered dependents")

	// ErrAlreadyUnregistered is returned when a dependent token is presented
	// for unregistration a second time.
	ErrAlreadyUnregistered = errors.New("dependent already unregistered")

	// ErrRootAlreadyInvalid is reported by resource constructors (clipboard
	// service, window) when the root they were asked to bind to is no longer
	// valid at registration time.
	ErrRootAlreadyInvalid = errors.New("root is already invalid")
)
