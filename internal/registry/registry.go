// Package registry tracks ordered lifetime dependencies between long-lived
// platform resources. A root (e.g. a display connection) may only be
// invalidated once every dependent registered against it has been
// unregistered; the registry turns that teardown-order convention into a
// checked precondition.
package registry

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RootHandle identifies a registered root resource. It is returned by
// RegisterRoot and required by every operation that mutates the root's
// dependent set.
type RootHandle struct {
	id string
}

// ID returns the root's identifier.
func (h RootHandle) ID() string { return h.id }

// Token proves a dependent registration. The holder must present it to
// UnregisterDependent exactly once.
type Token struct {
	rootID string
	depID  string
	nonce  string
}

// RootID returns the identifier of the root the token is bound to.
func (t Token) RootID() string { return t.rootID }

// DependentID returns the identifier of the registered dependent.
func (t Token) DependentID() string { return t.depID }

type rootEntry struct {
	// nonce -> dependent identifier
	dependents map[string]string
}

// Registry maps root identifiers to the set of dependents currently alive
// against them. All mutation goes through a single mutex so that "is the
// dependent set empty" is never evaluated against a concurrently-changing
// set.
type Registry struct {
	mu     sync.Mutex
	logger *slog.Logger
	roots  map[string]*rootEntry
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		roots:  make(map[string]*rootEntry),
	}
}

// RegisterRoot adds a root with an empty dependent set and returns its
// handle. Returns ErrDuplicateRoot if the identifier is already tracked.
func (r *Registry) RegisterRoot(id string) (RootHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.roots[id]; exists {
		return RootHandle{}, fmt.Errorf("register root %q: %w", id, ErrDuplicateRoot)
	}

	r.roots[id] = &rootEntry{dependents: make(map[string]string)}
	r.logger.Debug("root registered", "root", id)
	return RootHandle{id: id}, nil
}

// RegisterDependent adds a dependent to the root's set and returns the token
// required to unregister it. Returns ErrUnknownRoot if the root was never
// registered or has already been invalidated.
func (r *Registry) RegisterDependent(root RootHandle, id string) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.roots[root.id]
	if !exists {
		return Token{}, fmt.Errorf("register dependent %q on root %q: %w", id, root.id, ErrUnknownRoot)
	}

	nonce, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return Token{}, fmt.Errorf("generate dependent token: %w", err)
	}

	entry.dependents[nonce.String()] = id
	r.logger.Debug("dependent registered",
		"root", root.id,
		"dependent", id,
		"dependents", len(entry.dependents),
	)
	return Token{rootID: root.id, depID: id, nonce: nonce.String()}, nil
}

// UnregisterDependent removes the dependent identified by the token from its
// root's set. Presenting the same token twice returns ErrAlreadyUnregistered
// without corrupting the set.
func (r *Registry) UnregisterDependent(tok Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.roots[tok.rootID]
	if !exists {
		// The root can only be gone if this dependent was unregistered
		// before the root was invalidated.
		return fmt.Errorf("unregister dependent %q: %w", tok.depID, ErrAlreadyUnregistered)
	}

	if _, registered := entry.dependents[tok.nonce]; !registered {
		return fmt.Errorf("unregister dependent %q: %w", tok.depID, ErrAlreadyUnregistered)
	}

	delete(entry.dependents, tok.nonce)
	r.logger.Debug("dependent unregistered",
		"root", tok.rootID,
		"dependent", tok.depID,
		"dependents", len(entry.dependents),
	)
	return nil
}

// InvalidateRoot marks the root invalid and removes it. This is the single
// enforcement point for teardown order: it returns ErrRootHasDependents
// while any dependent is still registered, and ErrUnknownRoot if the root
// was never registered or was already invalidated.
func (r *Registry) InvalidateRoot(root RootHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.roots[root.id]
	if !exists {
		return fmt.Errorf("invalidate root %q: %w", root.id, ErrUnknownRoot)
	}

	if n := len(entry.dependents); n > 0 {
		return fmt.Errorf("invalidate root %q: %d dependent(s) still registered: %w",
			root.id, n, ErrRootHasDependents)
	}

	delete(r.roots, root.id)
	r.logger.Debug("root invalidated", "root", root.id)
	return nil
}

// HasRoot reports whether the root is currently registered and valid.
func (r *Registry) HasRoot(root RootHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.roots[root.id]
	return exists
}

// DependentCount returns the number of dependents currently registered
// against the root. Returns 0 for an unknown root.
func (r *Registry) DependentCount(root RootHandle) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.roots[root.id]
	if !exists {
		return 0
	}
	return len(entry.dependents)
}

// Dependents returns the identifiers of the dependents currently registered
// against the root.
func (r *Registry) Dependents(root RootHandle) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.roots[root.id]
	if !exists {
		return nil
	}

	ids := make([]string, 0, len(entry.dependents))
	for _, id := range entry.dependents {
		ids = append(ids, id)
	}
	return ids
}
