package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/gpu/soft"
)

func uniform(t *testing.T, dev gpu.Device) gpu.Buffer {
	t.Helper()
	b, err := dev.CreateBuffer(gpu.BufferDesc{Size: 64, Usage: gpu.UsageUniform})
	require.NoError(t, err)
	return b
}

func TestRebindCreatesThenUpdates(t *testing.T) {
	dev := soft.New(gpu.Options{})
	tbl := NewTable(dev)
	tbl.Register(Camera, []gpu.BindingKind{gpu.BindUniform}, 0)

	a := uniform(t, dev)
	require.NoError(t, tbl.Rebind(Camera, a))
	g := tbl.Group(Camera)
	assert.False(t, g.IsZero())

	b := uniform(t, dev)
	require.NoError(t, tbl.Rebind(Camera, b))
	assert.Equal(t, g, tbl.Group(Camera), "group is updated in place")

	e, err := tbl.Entry(Camera)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e.Epoch)
	assert.Equal(t, b, e.Buffer)
}

func TestValidateDetectsReleasedBuffer(t *testing.T) {
	dev := soft.New(gpu.Options{})
	tbl := NewTable(dev)
	tbl.Register(World, []gpu.BindingKind{gpu.BindUniform}, 0)

	a := uniform(t, dev)
	require.NoError(t, tbl.Rebind(World, a))
	require.NoError(t, tbl.Validate())

	dev.DestroyBuffer(a)
	assert.ErrorIs(t, tbl.Validate(), gpu.ErrStaleBinding)

	b := uniform(t, dev)
	require.NoError(t, tbl.Rebind(World, b))
	assert.NoError(t, tbl.Validate())
}

func TestValidateSkipsUnboundEntries(t *testing.T) {
	dev := soft.New(gpu.Options{})
	tbl := NewTable(dev)
	tbl.Register(Lines, nil, 0)
	tbl.Register(Camera, []gpu.BindingKind{gpu.BindUniform}, 0)
	assert.NoError(t, tbl.Validate(), "nothing bound yet")

	a := uniform(t, dev)
	require.NoError(t, tbl.Rebind(Camera, a))
	assert.NoError(t, tbl.Validate(), "lines still unbound")

	dev.DestroyBuffer(a)
	assert.ErrorIs(t, tbl.Validate(), gpu.ErrStaleBinding)
}

func TestCheck(t *testing.T) {
	dev := soft.New(gpu.Options{})
	tbl := NewTable(dev)
	tbl.Register(Lines, nil, 0)

	a := uniform(t, dev)
	require.NoError(t, tbl.Rebind(Lines, a))
	assert.True(t, tbl.Group(Lines).IsZero(), "vertex streams have no group")
	assert.NoError(t, tbl.Check(Lines, a))
	assert.ErrorIs(t, tbl.Check(Lines, uniform(t, dev)), gpu.ErrStaleBinding)
}

func TestUnregisteredStream(t *testing.T) {
	tbl := NewTable(soft.New(gpu.Options{}))
	assert.ErrorIs(t, tbl.Rebind(Transforms, gpu.Buffer{}), ErrNotRegistered)
	_, err := tbl.Entry(Transforms)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.NoError(t, tbl.Validate())
}

func TestStreamString(t *testing.T) {
	assert.Equal(t, "transforms", Transforms.String())
	assert.Equal(t, "Stream(9)", Stream(9).String())
	assert.Len(t, Streams(), int(numStreams))
}
