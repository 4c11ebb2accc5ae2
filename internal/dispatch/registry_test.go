package dispatch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeSink struct {
	delivered []ReceivedEnvelope
}

func (s *fakeSink) Deliver(env ReceivedEnvelope) {
	s.delivered = append(s.delivered, env)
}

func testSystem() System {
	return System{Path: SystemPath{Transport: TransportLocal}}
}

// TestRegistry_UniqueBijection verifies that for any sequence of Unique
// path insertions, every inserted path is reachable via exactly the handle
// it was assigned, and removal makes it unreachable again.
func TestRegistry_UniqueBijection(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reg := NewRegistry()
		sys := testSystem()

		n := rapid.IntRange(0, 40).Draw(rt, "numActors")

		type entry struct {
			path   ActorPath
			handle LocalHandle
		}
		var entries []entry

		for i := 0; i < n; i++ {
			id, err := uuid.NewRandom()
			require.NoError(t, err)
			path := NewUniquePath(sys, id)

			handle, err := reg.Insert(path, &fakeSink{})
			require.NoError(t, err)

			entries = append(entries, entry{path: path, handle: handle})
		}

		for _, e := range entries {
			got, ok := reg.Lookup(e.path)
			require.True(t, ok)
			require.Equal(t, e.handle, got)

			gotPath, ok := reg.PathFor(e.handle)
			require.True(t, ok)
			require.True(t, gotPath.Equal(e.path))
		}

		if len(entries) > 0 {
			victim := entries[0]
			removed, ok := reg.Remove(victim.path)
			require.True(t, ok)
			require.Equal(t, victim.handle, removed)

			_, ok = reg.Lookup(victim.path)
			require.False(t, ok)
		}
	})
}

// TestRegistry_NamedDuplicateRejected verifies that inserting a second
// actor under an already-registered named path fails and leaves the
// original registration untouched.
func TestRegistry_NamedDuplicateRejected(t *testing.T) {
	reg := NewRegistry()
	sys := testSystem()
	path := NewNamedPath(sys, NamedPath{"user", "worker"})

	first := &fakeSink{}
	handle, err := reg.Insert(path, first)
	require.NoError(t, err)

	_, err = reg.Insert(path, &fakeSink{})
	require.ErrorIs(t, err, ErrDuplicatePath)

	got, ok := reg.Lookup(path)
	require.True(t, ok)
	require.Equal(t, handle, got)

	sink, ok := reg.SinkFor(got)
	require.True(t, ok)
	require.Same(t, first, sink)
}

// TestRegistry_NamedPrefixNotMatched verifies that a lookup for a prefix
// of a registered named path does not resolve to it.
func TestRegistry_NamedPrefixNotMatched(t *testing.T) {
	reg := NewRegistry()
	sys := testSystem()

	full := NewNamedPath(sys, NamedPath{"user", "worker", "3"})
	_, err := reg.Insert(full, &fakeSink{})
	require.NoError(t, err)

	prefix := NewNamedPath(sys, NamedPath{"user", "worker"})
	_, ok := reg.Lookup(prefix)
	require.False(t, ok)
}

func TestRegistry_RemoveUnknownPathIsNoop(t *testing.T) {
	reg := NewRegistry()
	sys := testSystem()
	path := NewNamedPath(sys, NamedPath{"nobody"})

	_, ok := reg.Remove(path)
	require.False(t, ok)
}

func TestLocalHandleRef_ResolveUnregistered(t *testing.T) {
	reg := NewRegistry()
	ref := LocalHandleRef{Handle: LocalHandle{}}

	_, err := ref.Resolve(testSystem(), reg)
	require.ErrorIs(t, err, ErrUnresolvedLocal)
}

func TestLocalHandleRef_ResolveRegistered(t *testing.T) {
	reg := NewRegistry()
	sys := testSystem()
	path := NewNamedPath(sys, NamedPath{"user", "a"})

	handle, err := reg.Insert(path, &fakeSink{})
	require.NoError(t, err)

	ref := LocalHandleRef{Handle: handle}
	resolved, err := ref.Resolve(sys, reg)
	require.NoError(t, err)
	require.True(t, resolved.Equal(path))
}
