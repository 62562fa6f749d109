package camera

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/scene"
)

func sceneCameras() []scene.SceneCamera {
	return []scene.SceneCamera{
		{Name: "front", Camera: &scene.Camera{VFov: 1, Near: 0.1, Far: 100, AspectRatio: 2}, WorldFromCamera: math3d.Translate(math3d.V3(0, 0, 5))},
		{Name: "side", Camera: &scene.Camera{VFov: 1, Near: 0.1, Far: 100}, WorldFromCamera: math3d.Translate(math3d.V3(5, 0, 0))},
	}
}

func TestZoomClamp(t *testing.T) {
	o := DefaultOrbit()
	for range 200 {
		o.Zoom(1)
	}
	assert.InDelta(t, 0.05, o.Radius, 1e-12)
	for range 400 {
		o.Zoom(-1)
	}
	assert.InDelta(t, 2000, o.Radius, 1e-9)

	o = DefaultOrbit()
	o.Zoom(1)
	assert.InDelta(t, 2/1.1, o.Radius, 1e-12)
}

func TestWrap(t *testing.T) {
	o := Orbit{Azimuth: 3 * math.Pi / 2, Elevation: -5 * math.Pi / 2}
	o.Wrap()
	assert.InDelta(t, -math.Pi/2, o.Azimuth, 1e-12)
	assert.InDelta(t, -math.Pi/2, o.Elevation, 1e-12)
}

func TestStartModes(t *testing.T) {
	c, err := NewController(nil, Options{})
	require.NoError(t, err)
	assert.IsType(t, FreeMode{}, c.Mode())

	c, err = NewController(sceneCameras(), Options{Camera: "side"})
	require.NoError(t, err)
	assert.Equal(t, SceneMode{Index: 1}, c.Mode())

	_, err = NewController(sceneCameras(), Options{Camera: "top"})
	assert.ErrorIs(t, err, scene.ErrCameraNotFound)
}

func TestCycleModeWithoutSceneCameras(t *testing.T) {
	c, err := NewController(nil, Options{})
	require.NoError(t, err)

	c.Handle(input.Key{Name: "tab"})
	assert.IsType(t, DebugMode{}, c.Mode())
	c.Handle(input.Key{Name: "tab"})
	assert.IsType(t, FreeMode{}, c.Mode())
}

func TestCycleModeAndCameras(t *testing.T) {
	c, err := NewController(sceneCameras(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "front", c.CameraName())

	c.Handle(input.Key{Name: "left"})
	assert.Equal(t, SceneMode{Index: 1}, c.Mode())
	c.Handle(input.Key{Name: "right"})
	c.Handle(input.Key{Name: "right"})
	assert.Equal(t, SceneMode{Index: 1}, c.Mode())

	c.CycleMode()
	assert.Equal(t, "free", c.Mode().String())
	c.CycleMode()
	assert.Equal(t, "debug", c.Mode().String())
	c.CycleMode()
	assert.Equal(t, "scene", c.Mode().String())
}

func TestSceneModeMatrix(t *testing.T) {
	cams := sceneCameras()
	c, err := NewController(cams, Options{UseCameraAspect: true})
	require.NoError(t, err)
	c.SetViewport(100, 100)

	want := math3d.PerspectiveZO(1, 2, 0.1, 100).Mul(math3d.Translate(math3d.V3(0, 0, -5)))
	assert.True(t, c.ClipFromWorld().ApproxEqual(want, 1e-9))
	assert.Equal(t, c.ClipFromWorld(), c.Culling())
}

func TestDebugFreezesCulling(t *testing.T) {
	c, err := NewController(nil, Options{})
	require.NoError(t, err)
	c.SetViewport(80, 40)
	before := c.ClipFromWorld()

	c.CycleMode()
	require.IsType(t, DebugMode{}, c.Mode())
	c.Handle(input.Wheel{Delta: 3})
	c.Handle(input.PointerDown{X: 10, Y: 10, Button: input.ButtonLeft})
	c.Handle(input.PointerMove{X: 30, Y: 10})
	c.Handle(input.PointerUp{X: 30, Y: 10, Button: input.ButtonLeft})

	assert.Equal(t, before, c.Culling())
	assert.NotEqual(t, before, c.ClipFromWorld())
	assert.Equal(t, 2.0, c.Free().Radius, "free camera is untouched")
}

func TestTumble(t *testing.T) {
	c, err := NewController(nil, Options{})
	require.NoError(t, err)
	c.SetViewport(100, 100)
	o := c.Free()

	c.Handle(input.PointerDown{X: 50, Y: 50, Button: input.ButtonLeft})
	assert.Equal(t, Tumbling, c.State())
	c.Handle(input.PointerMove{X: 75, Y: 60})
	assert.InDelta(t, -0.25*math.Pi, o.Azimuth, 1e-12)
	assert.InDelta(t, math.Pi/4+0.1*math.Pi, o.Elevation, 1e-12)

	c.Handle(input.PointerUp{X: 75, Y: 60, Button: input.ButtonLeft})
	assert.Equal(t, Idle, c.State())
}

func TestTumbleUpsideDownFlips(t *testing.T) {
	c, err := NewController(nil, Options{Orbit: Orbit{Radius: 2, Elevation: 2, FOV: 1, Near: 0.1, Far: 10}})
	require.NoError(t, err)
	c.SetViewport(100, 100)

	c.Handle(input.PointerDown{X: 0, Y: 0, Button: input.ButtonLeft})
	c.Handle(input.PointerMove{X: 10, Y: 0})
	assert.InDelta(t, 0.1*math.Pi, c.Free().Azimuth, 1e-12)
}

func TestPan(t *testing.T) {
	c, err := NewController(nil, Options{Orbit: Orbit{Radius: 2, FOV: math.Pi / 2, Near: 0.1, Far: 10}})
	require.NoError(t, err)
	c.SetViewport(100, 100)

	c.Handle(input.PointerDown{X: 0, Y: 0, Button: input.ButtonLeft, Shift: true})
	assert.Equal(t, Panning, c.State())
	c.Handle(input.PointerMove{X: 50, Y: 0})

	// h = 2 tan(pi/4) * 2 = 4; right at azimuth 0 is +y.
	assert.InDelta(t, -2, c.Free().Target.Y, 1e-12)
	assert.InDelta(t, 0, c.Free().Target.X, 1e-12)
	assert.InDelta(t, 0, c.Free().Target.Z, 1e-12)
}

func TestDragIgnoredInSceneMode(t *testing.T) {
	c, err := NewController(sceneCameras(), Options{})
	require.NoError(t, err)
	c.Handle(input.PointerDown{X: 0, Y: 0, Button: input.ButtonLeft})
	assert.Equal(t, Idle, c.State())
	before := c.Free().Radius
	c.Handle(input.Wheel{Delta: 1})
	assert.Equal(t, before, c.Free().Radius)
}

func TestModeSwitchMidDragKeepsTarget(t *testing.T) {
	c, err := NewController(nil, Options{})
	require.NoError(t, err)
	c.SetViewport(100, 100)

	c.Handle(input.PointerDown{X: 0, Y: 0, Button: input.ButtonLeft})
	c.Handle(input.Key{Name: "tab"})
	c.Handle(input.PointerMove{X: 50, Y: 0})
	assert.InDelta(t, -math.Pi/2, c.Free().Azimuth, 1e-12)
	assert.Zero(t, c.Debug().Azimuth)
}

func TestSmoothZoom(t *testing.T) {
	c, err := NewController(nil, Options{SmoothZoom: true})
	require.NoError(t, err)

	c.Handle(input.Wheel{Delta: 5})
	assert.Equal(t, 2.0, c.Free().Radius)

	c.Update(0)
	assert.Equal(t, 2.0, c.Free().Radius, "zero dt is a no-op")

	for range 300 {
		c.Update(1.0 / 60)
	}
	assert.InDelta(t, 2*math.Pow(1.1, -5), c.Free().Radius, 1e-3)
}
