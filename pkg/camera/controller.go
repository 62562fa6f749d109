package camera

import (
	"fmt"
	"math"

	"github.com/charmbracelet/harmonica"

	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/scene"
)

// Zoom spring parameters: angular frequency and damping ratio.
const (
	zoomFrequency = 6.0
	zoomDamping   = 1.0
)

// Options configures a Controller.
type Options struct {
	// Camera names the scene camera to start in. Empty starts in the
	// first scene camera, or free mode when the scene has none.
	Camera string

	// UseCameraAspect renders scene cameras with their stored aspect
	// ratio instead of the viewport's.
	UseCameraAspect bool

	// SmoothZoom eases wheel zoom with a critically damped spring.
	SmoothZoom bool

	// Orbit is the initial free camera; zero means DefaultOrbit.
	Orbit Orbit
}

type zoomState struct {
	target   float64
	velocity float64
}

// Controller owns the camera modes and routes input to them.
type Controller struct {
	cams []scene.SceneCamera
	opts Options

	free, debug         Orbit
	freeZoom, debugZoom zoomState

	mode          Mode
	width, height int

	drag drag
}

// NewController creates a controller over the scene's cameras. It returns
// scene.ErrCameraNotFound when opts.Camera names a missing camera.
func NewController(cams []scene.SceneCamera, opts Options) (*Controller, error) {
	c := &Controller{cams: cams, opts: opts, width: 1, height: 1}
	c.free = opts.Orbit
	if c.free == (Orbit{}) {
		c.free = DefaultOrbit()
	}
	c.debug = c.free
	c.freeZoom.target = c.free.Radius
	c.debugZoom.target = c.debug.Radius

	switch {
	case opts.Camera != "":
		i, err := scene.FindCamera(cams, opts.Camera)
		if err != nil {
			return nil, err
		}
		c.mode = SceneMode{Index: i}
	case len(cams) > 0:
		c.mode = SceneMode{}
	default:
		c.mode = FreeMode{Camera: &c.free}
	}
	return c, nil
}

// Mode returns the active mode.
func (c *Controller) Mode() Mode { return c.mode }

// Free returns the free orbit camera.
func (c *Controller) Free() *Orbit { return &c.free }

// Debug returns the debug orbit camera.
func (c *Controller) Debug() *Orbit { return &c.debug }

// State returns the pointer interaction state.
func (c *Controller) State() State { return c.drag.state }

// SetViewport sets the size used for aspect ratio and drag scaling.
func (c *Controller) SetViewport(width, height int) {
	c.width, c.height = max(width, 1), max(height, 1)
}

func (c *Controller) aspect() float64 {
	return float64(c.width) / float64(c.height)
}

// ClipFromWorld returns the matrix of the active mode.
func (c *Controller) ClipFromWorld() math3d.Mat4 {
	switch m := c.mode.(type) {
	case SceneMode:
		sc := c.cams[m.Index]
		aspect := c.aspect()
		if c.opts.UseCameraAspect && sc.Camera.AspectRatio > 0 {
			aspect = sc.Camera.AspectRatio
		}
		proj := math3d.PerspectiveZO(sc.Camera.VFov, aspect, sc.Camera.Near, sc.Camera.Far)
		return proj.Mul(sc.WorldFromCamera.Inverse())
	case FreeMode:
		return m.Camera.ClipFromWorld(c.aspect())
	case DebugMode:
		return m.Camera.ClipFromWorld(c.aspect())
	}
	panic(fmt.Sprintf("camera: unknown mode %T", c.mode))
}

// Culling returns the matrix used for visibility tests: the frozen one in
// debug mode, the active one otherwise.
func (c *Controller) Culling() math3d.Mat4 {
	if m, ok := c.mode.(DebugMode); ok {
		return m.Culling
	}
	return c.ClipFromWorld()
}

// CycleMode advances scene -> free -> debug -> scene, skipping scene mode
// when there are no scene cameras.
func (c *Controller) CycleMode() {
	switch c.mode.(type) {
	case SceneMode:
		c.mode = FreeMode{Camera: &c.free}
	case FreeMode:
		culling := c.ClipFromWorld()
		c.debug = c.free
		c.debugZoom = zoomState{target: c.debug.Radius}
		c.mode = DebugMode{Camera: &c.debug, Culling: culling}
	case DebugMode:
		if len(c.cams) > 0 {
			c.mode = SceneMode{}
		} else {
			c.mode = FreeMode{Camera: &c.free}
		}
	}
	logging.Logger().Debug("camera mode", "mode", c.mode)
}

// CycleCamera moves to the next (step 1) or previous (step -1) scene
// camera. It does nothing outside scene mode.
func (c *Controller) CycleCamera(step int) {
	m, ok := c.mode.(SceneMode)
	if !ok || len(c.cams) == 0 {
		return
	}
	n := len(c.cams)
	m.Index = ((m.Index+step)%n + n) % n
	c.mode = m
}

// CameraName returns the name of the active scene camera, or the mode.
func (c *Controller) CameraName() string {
	if m, ok := c.mode.(SceneMode); ok {
		return c.cams[m.Index].Name
	}
	return c.mode.String()
}

// active returns the orbit the wheel and new drags act on, nil in scene
// mode.
func (c *Controller) active() (*Orbit, *zoomState) {
	switch m := c.mode.(type) {
	case SceneMode:
		return nil, nil
	case FreeMode:
		return m.Camera, &c.freeZoom
	case DebugMode:
		return m.Camera, &c.debugZoom
	}
	return nil, nil
}

// Handle applies one input event.
func (c *Controller) Handle(ev input.Event) {
	switch ev := ev.(type) {
	case input.Key:
		switch ev.Name {
		case "tab":
			c.CycleMode()
		case "left":
			c.CycleCamera(-1)
		case "right":
			c.CycleCamera(1)
		}
	case input.Resize:
		c.SetViewport(ev.Width, ev.Height)
	case input.Wheel:
		c.wheel(ev.Delta)
	default:
		c.drag.state = dispatch[c.drag.state](c, ev)
	}
}

func (c *Controller) wheel(delta float64) {
	o, z := c.active()
	if o == nil {
		return
	}
	if !c.opts.SmoothZoom {
		o.Zoom(delta)
		z.target = o.Radius
		return
	}
	z.target = o.ClampRadius(z.target * math.Pow(1.1, -delta))
}

// Update advances zoom smoothing by dt seconds. A zero dt changes nothing.
func (c *Controller) Update(dt float64) {
	if dt <= 0 || !c.opts.SmoothZoom {
		return
	}
	spring := harmonica.NewSpring(dt, zoomFrequency, zoomDamping)
	for _, p := range []struct {
		o *Orbit
		z *zoomState
	}{{&c.free, &c.freeZoom}, {&c.debug, &c.debugZoom}} {
		p.o.Radius, p.z.velocity = spring.Update(p.o.Radius, p.z.velocity, p.z.target)
		p.o.Radius = p.o.ClampRadius(p.o.Radius)
	}
}
