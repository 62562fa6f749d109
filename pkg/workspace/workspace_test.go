package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/binding"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/gpu/soft"
)

func TestNewRing(t *testing.T) {
	dev := soft.New(gpu.Options{})
	_, err := NewRing(dev, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	r, err := NewRing(dev, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	a, err := r.At(0)
	require.NoError(t, err)
	b, err := r.At(1)
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = r.At(2)
	assert.ErrorIs(t, err, gpu.ErrOutOfRange)
	_, err = r.At(-1)
	assert.ErrorIs(t, err, gpu.ErrOutOfRange)
}

func TestStageRebindsOnGrowth(t *testing.T) {
	dev := soft.New(gpu.Options{})
	ws := New(dev, "ws")

	_, err := ws.Stage(binding.Transforms, make([]byte, 192))
	require.NoError(t, err)
	e, err := ws.Bindings.Entry(binding.Transforms)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Epoch)
	require.NoError(t, ws.Validate())

	grew, err := ws.Stage(binding.Transforms, make([]byte, 1024))
	require.NoError(t, err)
	assert.False(t, grew)
	e, _ = ws.Bindings.Entry(binding.Transforms)
	assert.Equal(t, uint64(1), e.Epoch, "no reallocation, no rebind")

	grew, err = ws.Stage(binding.Transforms, make([]byte, 5000))
	require.NoError(t, err)
	assert.True(t, grew)
	e, _ = ws.Bindings.Entry(binding.Transforms)
	assert.Equal(t, uint64(2), e.Epoch)
	assert.Equal(t, ws.Stream(binding.Transforms).Device(), e.Buffer)
	assert.NoError(t, ws.Validate())
}

func TestValidateCatchesMissedRebind(t *testing.T) {
	dev := soft.New(gpu.Options{})
	ws := New(dev, "ws")
	_, err := ws.Stage(binding.Camera, make([]byte, 64))
	require.NoError(t, err)

	_, err = ws.Stream(binding.Camera).EnsureCapacity(8192)
	require.NoError(t, err)
	assert.ErrorIs(t, ws.Validate(), gpu.ErrStaleBinding)

	require.NoError(t, ws.Rebind(binding.Camera))
	assert.NoError(t, ws.Validate())
}

func TestRelease(t *testing.T) {
	dev := soft.New(gpu.Options{})
	r, err := NewRing(dev, 2)
	require.NoError(t, err)
	for i := range r.Len() {
		ws, err := r.At(i)
		require.NoError(t, err)
		for _, s := range binding.Streams() {
			_, err := ws.Stage(s, make([]byte, 16))
			require.NoError(t, err)
		}
	}
	assert.Equal(t, 16, dev.Buffers())
	r.Release()
	assert.Zero(t, dev.Buffers())
}
