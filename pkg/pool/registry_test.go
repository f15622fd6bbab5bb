package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistryLookupMiss(t *testing.T) {
	r := NewRegistry()

	p, ok := r.Lookup("nope")
	assert.False(t, ok)
	assert.Nil(t, p, "a miss is not an error, just an absent pool")
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	p := New("reports", &fakeConnector{}, 3, zaptest.NewLogger(t))

	r.Register(p)

	got, ok := r.Lookup("reports")
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestRegistryRegisterOverwrites(t *testing.T) {
	r := New("reports", &fakeConnector{}, 3, zaptest.NewLogger(t))
	replacement := New("reports", &fakeConnector{}, 5, zaptest.NewLogger(t))

	reg := NewRegistry()
	reg.Register(r)
	reg.Register(replacement)

	got, ok := reg.Lookup("reports")
	require.True(t, ok)
	assert.Same(t, replacement, got, "same-name registration replaces the prior pool")
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	p := New("reports", &fakeConnector{}, 3, zaptest.NewLogger(t))
	reg.Register(p)

	reg.Remove("reports")
	_, ok := reg.Lookup("reports")
	assert.False(t, ok)

	// Removing an absent name is a no-op.
	reg.Remove("reports")
}

func TestRegistrySnapshot(t *testing.T) {
	reg := NewRegistry()
	reg.Register(New("a", &fakeConnector{}, 1, zaptest.NewLogger(t)))
	reg.Register(New("b", &fakeConnector{}, 1, zaptest.NewLogger(t)))

	pools := reg.Snapshot()
	assert.Len(t, pools, 2)

	names := map[string]bool{}
	for _, p := range pools {
		names[p.Name()] = true
	}
	assert.True(t, names["a"] && names["b"])
}
