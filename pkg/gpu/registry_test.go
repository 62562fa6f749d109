package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	const name = "registry-test"
	var opened Options
	Register(name, func(opts Options) (Device, error) {
		opened = opts
		return nil, nil
	})
	t.Cleanup(func() { Unregister(name) })

	assert.Contains(t, Backends(), name)

	_, err := Open(name, Options{MemoryLimit: 42})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), opened.MemoryLimit)

	assert.Panics(t, func() {
		Register(name, func(Options) (Device, error) { return nil, nil })
	})
	assert.Panics(t, func() { Register("nil-factory", nil) })
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Contains(t, err.Error(), "forgotten import")
}
