package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoot(t *testing.T) {
	r := New(nil)

	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)
	assert.Equal(t, "display-1", root.ID())
	assert.True(t, r.HasRoot(root))
	assert.Equal(t, 0, r.DependentCount(root))
}

func TestRegisterRoot_Duplicate(t *testing.T) {
	r := New(nil)

	_, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	_, err = r.RegisterRoot("display-1")
	assert.ErrorIs(t, err, ErrDuplicateRoot)
}

func TestRegisterDependent(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	tok, err := r.RegisterDependent(root, "clipboard-1")
	require.NoError(t, err)
	assert.Equal(t, "display-1", tok.RootID())
	assert.Equal(t, "clipboard-1", tok.DependentID())
	assert.Equal(t, 1, r.DependentCount(root))
	assert.Equal(t, []string{"clipboard-1"}, r.Dependents(root))
}

func TestRegisterDependent_UnknownRoot(t *testing.T) {
	r := New(nil)

	_, err := r.RegisterDependent(RootHandle{id: "never-registered"}, "clipboard-1")
	assert.ErrorIs(t, err, ErrUnknownRoot)
}

func TestRegisterDependent_AfterInvalidate(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)
	require.NoError(t, r.InvalidateRoot(root))

	_, err = r.RegisterDependent(root, "clipboard-1")
	assert.ErrorIs(t, err, ErrUnknownRoot)
}

func TestUnregisterDependent(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	tok, err := r.RegisterDependent(root, "clipboard-1")
	require.NoError(t, err)

	require.NoError(t, r.UnregisterDependent(tok))
	assert.Equal(t, 0, r.DependentCount(root))
}

func TestUnregisterDependent_Twice(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	tok, err := r.RegisterDependent(root, "clipboard-1")
	require.NoError(t, err)

	// A sibling stays registered so we can verify the set isn't corrupted.
	_, err = r.RegisterDependent(root, "window-1")
	require.NoError(t, err)

	require.NoError(t, r.UnregisterDependent(tok))
	err = r.UnregisterDependent(tok)
	assert.ErrorIs(t, err, ErrAlreadyUnregistered)

	// Set size still matches the number of live dependents.
	assert.Equal(t, 1, r.DependentCount(root))
	assert.Equal(t, []string{"window-1"}, r.Dependents(root))
}

func TestInvalidateRoot_Empty(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	require.NoError(t, r.InvalidateRoot(root))
	assert.False(t, r.HasRoot(root))
}

func TestInvalidateRoot_WithDependents(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	tok, err := r.RegisterDependent(root, "clipboard-1")
	require.NoError(t, err)

	// Direct invalidation must be rejected, never silently succeed.
	err = r.InvalidateRoot(root)
	assert.ErrorIs(t, err, ErrRootHasDependents)
	assert.True(t, r.HasRoot(root))
	assert.Equal(t, 1, r.DependentCount(root))

	// After orderly unregistration it succeeds.
	require.NoError(t, r.UnregisterDependent(tok))
	require.NoError(t, r.InvalidateRoot(root))
}

func TestInvalidateRoot_Twice(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	require.NoError(t, r.InvalidateRoot(root))
	err = r.InvalidateRoot(root)
	assert.ErrorIs(t, err, ErrUnknownRoot)
}

func TestTokensAreDistinctPerRegistration(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	// Two dependents sharing an identifier still get independent tokens.
	tok1, err := r.RegisterDependent(root, "clipboard")
	require.NoError(t, err)
	tok2, err := r.RegisterDependent(root, "clipboard")
	require.NoError(t, err)

	require.NoError(t, r.UnregisterDependent(tok1))
	assert.Equal(t, 1, r.DependentCount(root))
	require.NoError(t, r.UnregisterDependent(tok2))
	assert.Equal(t, 0, r.DependentCount(root))
}

// TestInvalidateNeverSucceedsWithLiveDependents hammers the registry with
// concurrent register/unregister pairs while repeatedly attempting
// invalidation. Invalidation may only ever succeed when the dependent set is
// empty at the moment of the call.
func TestInvalidateNeverSucceedsWithLiveDependents(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	const workers = 8
	const iterations = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				tok, err := r.RegisterDependent(root, fmt.Sprintf("dep-%d-%d", w, i))
				if err != nil {
					// Root was invalidated; nothing further to do.
					return
				}
				if err := r.UnregisterDependent(tok); err != nil {
					t.Errorf("unregister: %v", err)
					return
				}
			}
		}(w)
	}

	// Attempt invalidation concurrently. Every failure must be
	// ErrRootHasDependents; a success must leave the root gone.
	invalidated := false
	for i := 0; i < iterations; i++ {
		err := r.InvalidateRoot(root)
		if err == nil {
			invalidated = true
			break
		}
		require.ErrorIs(t, err, ErrRootHasDependents)
	}

	wg.Wait()

	if !invalidated {
		// All dependents have retired; now it must succeed.
		require.NoError(t, r.InvalidateRoot(root))
	}
	assert.False(t, r.HasRoot(root))
}

func TestConcurrentSiblingsThenInvalidate(t *testing.T) {
	r := New(nil)
	root, err := r.RegisterRoot("display-1")
	require.NoError(t, err)

	const siblings = 16
	tokens := make([]Token, siblings)

	var wg sync.WaitGroup
	for i := 0; i < siblings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := r.RegisterDependent(root, fmt.Sprintf("sibling-%d", i))
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()
	require.Equal(t, siblings, r.DependentCount(root))

	for i := 0; i < siblings; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := r.UnregisterDependent(tokens[i]); err != nil {
				t.Errorf("unregister: %v", err)
			}
		}(i)
	}
	wg.Wait()

	// stop-then-invalidate always succeeds once every sibling retired
	require.NoError(t, r.InvalidateRoot(root))
}
