// Package frame sequences the work of one rendered frame: it rebuilds the
// per-frame data on the CPU, streams it into a workspace, and records and
// submits the transfer, barrier and draw commands in a fixed order.
package frame

import (
	"errors"
	"fmt"

	"github.com/taigrr/lumen/pkg/camera"
	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/render"
	"github.com/taigrr/lumen/pkg/scene"
	"github.com/taigrr/lumen/pkg/workspace"
)

// ErrNoTargets is returned by Render before OnSwapchain has been called.
var ErrNoTargets = errors.New("frame: no swapchain targets")

// ClearColor is the color the frame pass clears to.
var ClearColor = gpu.Color{R: 0.1768, G: 0.3636, B: 0.0231, A: 1}

// Textures with fixed slots; material textures follow them.
const (
	texChecker = iota
	texGradient
	texWhite
	texMaterials
)

// TargetSet describes the swapchain images frames render into.
type TargetSet struct {
	Width, Height int
	Images        []gpu.Image
}

// Stats summarizes the last Update for display.
type Stats struct {
	Instances     int
	LineVertices  int
	Culled        int
	Reallocations int
	Mode          string
	Camera        string
	Time          float64
}

// staticData is the vertex buffer and textures uploaded once per scene.
type staticData struct {
	vertices gpu.Buffer
	plane    scene.VertexRange
	torus    scene.VertexRange
	base     uint32

	textures []gpu.Image
	groups   []gpu.BindGroup
}

// Renderer draws frames for one scene on one device.
type Renderer struct {
	dev gpu.Device
	cfg config.Config

	ring      *workspace.Ring
	pipelines [3]gpu.Pipeline

	scene  *scene.Scene
	ctrl   *camera.Controller
	static staticData

	width, height int
	depth         gpu.Image
	targets       []gpu.Target

	time      float64
	lines     render.LineList
	builder   scene.Builder
	buildErr  string
	instances []scene.Instance

	lineBytes      []byte
	transformBytes []byte
	cameraBytes    []byte
	worldBytes     []byte

	culled        int
	reallocations int
}

const (
	pipeBackground = iota
	pipeLines
	pipeObjects
)

// New creates a renderer for sc, which may be nil for the built-in
// objects alone. A camera named in cfg that sc does not contain is an
// error wrapping scene.ErrCameraNotFound.
func New(dev gpu.Device, cfg config.Config, sc *scene.Scene) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sc == nil {
		sc = &scene.Scene{Name: "empty"}
		sc.Pack()
	}

	r := &Renderer{dev: dev, cfg: cfg, width: 1, height: 1}
	ctrl, err := newController(sc, cfg, camera.Orbit{})
	if err != nil {
		return nil, err
	}
	r.ctrl = ctrl

	if r.ring, err = workspace.NewRing(dev, cfg.Workspaces); err != nil {
		return nil, err
	}
	descs, err := pipelineDescs()
	if err != nil {
		r.Close()
		return nil, err
	}
	for i, d := range descs {
		if r.pipelines[i], err = dev.CreatePipeline(d); err != nil {
			r.Close()
			return nil, fmt.Errorf("create %s pipeline: %w", d.Label, err)
		}
	}
	if r.static, err = r.upload(sc); err != nil {
		r.Close()
		return nil, err
	}
	r.scene = sc
	r.builder.Base = r.static.base
	r.worldBytes = appendWorld(r.worldBytes[:0], cfg.Lighting)
	r.refreshCamera()

	logging.Logger().Info("renderer ready",
		"scene", sc.Name, "workspaces", cfg.Workspaces, "vertices", r.static.vertices.Size/scene.VertexSize)
	return r, nil
}

func newController(sc *scene.Scene, cfg config.Config, orbit camera.Orbit) (*camera.Controller, error) {
	cams, err := scene.CollectCameras(sc)
	if err != nil {
		logging.Logger().Warn("camera traversal", "err", err)
	}
	return camera.NewController(cams, camera.Options{
		Camera:          cfg.Camera,
		UseCameraAspect: cfg.UseCameraAspect,
		SmoothZoom:      cfg.SmoothZoom,
		Orbit:           orbit,
	})
}

// upload creates the static vertex buffer, holding the plane, the torus
// and then the scene's vertices, and one texture per slot.
func (r *Renderer) upload(sc *scene.Scene) (s staticData, err error) {
	defer func() {
		if err != nil {
			r.releaseStatic(s)
		}
	}()

	plane := scene.Plane(4)
	torus := scene.Torus(0.75, 0.25, 32, 16)
	var data []byte
	data = plane.AppendBytes(data)
	data = torus.AppendBytes(data)
	s.plane = scene.VertexRange{First: 0, Count: uint32(len(plane.Vertices)), Min: plane.BoundsMin, Max: plane.BoundsMax, Texture: texChecker}
	s.torus = scene.VertexRange{First: s.plane.Count, Count: uint32(len(torus.Vertices)), Min: torus.BoundsMin, Max: torus.BoundsMax, Texture: texGradient}
	s.base = s.plane.Count + s.torus.Count
	data = append(data, sc.Vertices...)

	s.vertices, err = r.dev.CreateBuffer(gpu.BufferDesc{
		Label: "static vertices",
		Size:  uint64(len(data)),
		Usage: gpu.UsageVertex | gpu.UsageTransferDst,
	})
	if err != nil {
		return s, fmt.Errorf("create static vertices: %w", err)
	}
	if err := r.dev.TransferToBuffer(s.vertices, data); err != nil {
		return s, fmt.Errorf("upload static vertices: %w", err)
	}

	checker := render.NewCheckerTexture(64, 64, 8, render.ColorWhite, render.ColorGray)
	if r.cfg.Texture != "" {
		if checker, err = render.LoadTexture(r.cfg.Texture); err != nil {
			return s, err
		}
	}
	texs := []*render.Texture{
		texChecker:  checker,
		texGradient: render.NewGradientTexture(64, 8, render.RGB(230, 90, 40), render.RGB(40, 90, 230)),
		texWhite:    solid(render.ColorWhite),
	}
	for _, m := range sc.Materials {
		texs = append(texs, materialTexture(m))
	}

	for i, tex := range texs {
		img, group, err := r.createTexture(fmt.Sprintf("texture %d", i), tex)
		if err != nil {
			return s, err
		}
		s.textures = append(s.textures, img)
		s.groups = append(s.groups, group)
	}
	return s, nil
}

func (r *Renderer) createTexture(label string, tex *render.Texture) (gpu.Image, gpu.BindGroup, error) {
	img, err := r.dev.CreateImage(gpu.ImageDesc{
		Label:  label,
		Width:  tex.Width,
		Height: tex.Height,
		Format: gpu.FormatRGBA8,
		Usage:  gpu.ImageSampled | gpu.ImageTransferDst,
	})
	if err != nil {
		return img, gpu.BindGroup{}, fmt.Errorf("create %s: %w", label, err)
	}
	if err := r.dev.TransferToImage(img, tex.RGBA8()); err != nil {
		r.dev.DestroyImage(img)
		return img, gpu.BindGroup{}, fmt.Errorf("upload %s: %w", label, err)
	}
	group, err := r.dev.CreateBindGroup(gpu.BindGroupDesc{
		Label:   label,
		Layout:  textureLayout,
		Entries: []gpu.BindingEntry{{Binding: 0, Image: img}},
	})
	if err != nil {
		r.dev.DestroyImage(img)
		return img, gpu.BindGroup{}, fmt.Errorf("bind %s: %w", label, err)
	}
	return img, group, nil
}

func solid(c render.Color) *render.Texture {
	tex := render.NewTexture(1, 1)
	tex.SetPixel(0, 0, c)
	return tex
}

// materialTexture returns the material's image tinted by its base color,
// or a single texel of the base color.
func materialTexture(m scene.Material) *render.Texture {
	bc := m.BaseColor
	if m.Image == nil {
		return solid(render.FromLinear(bc[0], bc[1], bc[2], bc[3]))
	}
	tex := render.TextureFromImage(m.Image)
	for i, p := range tex.Pixels {
		tex.Pixels[i] = render.Color{
			R: uint8(float64(p.R) * bc[0]),
			G: uint8(float64(p.G) * bc[1]),
			B: uint8(float64(p.B) * bc[2]),
			A: uint8(float64(p.A) * bc[3]),
		}
	}
	return tex
}

func (r *Renderer) releaseStatic(s staticData) {
	for _, g := range s.groups {
		r.dev.DestroyBindGroup(g)
	}
	for _, img := range s.textures {
		r.dev.DestroyImage(img)
	}
	if !s.vertices.IsZero() {
		r.dev.DestroyBuffer(s.vertices)
	}
}

// sceneTexture maps a material index to its texture slot.
func (r *Renderer) sceneTexture(material int) int {
	slot := texMaterials + material
	if material < 0 || slot >= len(r.static.groups) {
		return texWhite
	}
	return slot
}

// OnSwapchain rebuilds the depth image and the render targets for a new
// set of swapchain images. Old resources are released after the device
// is idle.
func (r *Renderer) OnSwapchain(ts TargetSet) error {
	if len(ts.Images) == 0 {
		return fmt.Errorf("%w: empty target set", ErrNoTargets)
	}
	if !r.depth.IsZero() {
		if err := r.dev.WaitIdle(); err != nil {
			return fmt.Errorf("wait idle: %w", err)
		}
		r.dev.DestroyImage(r.depth)
		r.depth = gpu.Image{}
	}

	depth, err := r.dev.CreateImage(gpu.ImageDesc{
		Label:  "depth",
		Width:  ts.Width,
		Height: ts.Height,
		Format: gpu.FormatDepth32,
		Usage:  gpu.ImageAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth image: %w", err)
	}
	r.depth = depth
	r.targets = r.targets[:0]
	for _, img := range ts.Images {
		r.targets = append(r.targets, gpu.Target{Color: img, Depth: depth})
	}
	r.width, r.height = ts.Width, ts.Height
	r.ctrl.SetViewport(ts.Width, ts.Height)
	r.refreshCamera()
	return nil
}

// SetScene replaces the scene between frames. The free camera keeps its
// position. On error the current scene stays in place.
func (r *Renderer) SetScene(sc *scene.Scene) error {
	ctrl, err := newController(sc, r.cfg, *r.ctrl.Free())
	if err != nil {
		return err
	}
	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	static, err := r.upload(sc)
	if err != nil {
		return err
	}
	r.releaseStatic(r.static)
	r.static = static
	r.scene = sc
	r.builder.Base = static.base
	ctrl.SetViewport(r.width, r.height)
	r.ctrl = ctrl
	r.refreshCamera()
	logging.Logger().Info("scene loaded", "scene", sc.Name, "meshes", len(sc.Ranges))
	return nil
}

// Controller returns the camera controller.
func (r *Renderer) Controller() *camera.Controller { return r.ctrl }

// Scene returns the current scene.
func (r *Renderer) Scene() *scene.Scene { return r.scene }

// Ring returns the workspace ring.
func (r *Renderer) Ring() *workspace.Ring { return r.ring }

// Instances returns the instance list built by the last Update.
func (r *Renderer) Instances() []scene.Instance { return r.instances }

// Lines returns the line list built by the last Update.
func (r *Renderer) Lines() *render.LineList { return &r.lines }

// Close waits for the device and releases everything the renderer created.
func (r *Renderer) Close() error {
	err := r.dev.WaitIdle()
	if r.ring != nil {
		r.ring.Release()
	}
	r.releaseStatic(r.static)
	r.static = staticData{}
	for i, p := range r.pipelines {
		if p.ID.IsZero() {
			continue
		}
		r.dev.DestroyPipeline(p)
		r.pipelines[i] = gpu.Pipeline{}
	}
	if !r.depth.IsZero() {
		r.dev.DestroyImage(r.depth)
		r.depth = gpu.Image{}
	}
	return err
}
