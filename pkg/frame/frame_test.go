package frame

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/binding"
	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/gpu/soft"
	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/scene"
)

const size = 16

func newRenderer(t *testing.T, sc *scene.Scene) (*Renderer, *soft.Device) {
	t.Helper()
	dev := soft.New(gpu.Options{})
	r, err := New(dev, config.DefaultConfig(), sc)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	color, err := dev.CreateImage(gpu.ImageDesc{Label: "swapchain", Width: size, Height: size, Format: gpu.FormatRGBA8, Usage: gpu.ImageAttachment})
	require.NoError(t, err)
	require.NoError(t, r.OnSwapchain(TargetSet{Width: size, Height: size, Images: []gpu.Image{color}}))
	return r, dev
}

// quadScene has one node drawing a plane with material 0 and one drawing
// a plane with no material.
func quadScene() *scene.Scene {
	tinted := scene.Plane(1)
	tinted.Name = "tinted"
	tinted.Material = 0
	bare := scene.Plane(1)
	bare.Name = "bare"

	a := scene.NewNode("a")
	a.Mesh = 0
	b := scene.NewNode("b")
	b.Mesh = 1
	b.Translation = math3d.V3(2, 0, 0)

	sc := &scene.Scene{
		Name:      "quads",
		Nodes:     []scene.Node{a, b},
		Roots:     []int{0, 1},
		Meshes:    []scene.Mesh{tinted, bare},
		Materials: []scene.Material{{Name: "red", BaseColor: [4]float64{1, 0, 0, 1}}},
	}
	sc.Pack()
	return sc
}

func TestUpdateZeroIsIdempotent(t *testing.T) {
	r, _ := newRenderer(t, nil)

	r.Update(0)
	lines := append([]byte(nil), r.lineBytes...)
	transforms := append([]byte(nil), r.transformBytes...)
	cam := append([]byte(nil), r.cameraBytes...)
	world := append([]byte(nil), r.worldBytes...)
	stats := r.Stats()

	r.Update(0)
	assert.Equal(t, lines, r.lineBytes)
	assert.Equal(t, transforms, r.transformBytes)
	assert.Equal(t, cam, r.cameraBytes)
	assert.Equal(t, world, r.worldBytes)
	assert.Equal(t, stats, r.Stats())
}

func TestUpdateBuildsFrameData(t *testing.T) {
	r, _ := newRenderer(t, nil)
	r.Update(0)

	st := r.Stats()
	assert.Equal(t, 2, st.Instances)
	// 12 cube edges and 2*9 grid lines, two vertices each.
	assert.Equal(t, 2*(12+18), st.LineVertices)
	assert.Equal(t, "free", st.Mode)
	assert.Len(t, r.transformBytes, 2*scene.TransformSize)
	assert.Len(t, r.cameraBytes, CameraSize)
	assert.Len(t, r.worldBytes, WorldSize)
}

func TestDebugModeDrawsCullingFrustum(t *testing.T) {
	r, _ := newRenderer(t, nil)
	r.Update(0)
	before := r.Stats().LineVertices

	r.OnInput(input.Key{Name: "tab"})
	r.Update(0)
	st := r.Stats()
	assert.Equal(t, "debug", st.Mode)
	assert.Equal(t, before+24, st.LineVertices)
}

func TestRenderCommandOrder(t *testing.T) {
	r, dev := newRenderer(t, nil)
	r.Update(0)
	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{}))

	want := []gpu.CommandType{
		gpu.CmdCopyBuffer, // lines
		gpu.CmdCopyBuffer, // transforms
		gpu.CmdCopyBuffer, // camera
		gpu.CmdCopyBuffer, // world
		gpu.CmdBarrier,
		gpu.CmdBeginPass,
		gpu.CmdSetViewport,
		gpu.CmdSetPipeline, gpu.CmdPushConstants, gpu.CmdDraw,
		gpu.CmdSetPipeline, gpu.CmdSetBindGroup, gpu.CmdSetVertexBuffer, gpu.CmdDraw,
		gpu.CmdSetPipeline, gpu.CmdSetBindGroup, gpu.CmdSetBindGroup, gpu.CmdSetVertexBuffer,
		gpu.CmdSetBindGroup, gpu.CmdDraw,
		gpu.CmdSetBindGroup, gpu.CmdDraw,
		gpu.CmdEndPass,
	}
	assert.Equal(t, want, dev.Trace())

	stats := dev.LastStats()
	assert.Equal(t, 4, stats.Copies)
	assert.Equal(t, 1, stats.Barriers)
	assert.Equal(t, 4, stats.Draws)
	assert.Positive(t, stats.Fragments)
}

func TestRenderBeforeFirstUpdate(t *testing.T) {
	r, dev := newRenderer(t, nil)
	fence, err := dev.CreateFence(false)
	require.NoError(t, err)

	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{Fence: fence}))
	require.NoError(t, dev.WaitFence(context.Background(), fence))

	want := []gpu.CommandType{
		gpu.CmdCopyBuffer, // camera
		gpu.CmdCopyBuffer, // world
		gpu.CmdBarrier,
		gpu.CmdBeginPass,
		gpu.CmdSetViewport,
		gpu.CmdSetPipeline, gpu.CmdPushConstants, gpu.CmdDraw,
		gpu.CmdEndPass,
	}
	assert.Equal(t, want, dev.Trace())
	assert.Len(t, r.cameraBytes, CameraSize)

	ws, err := r.Ring().At(0)
	require.NoError(t, err)
	e, err := ws.Bindings.Entry(binding.Camera)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Epoch, "camera stream is staged without an Update")
}

func TestRenderReallocatesOncePerWorkspace(t *testing.T) {
	r, _ := newRenderer(t, nil)
	ctx := context.Background()

	r.Update(0)
	require.NoError(t, r.Render(ctx, 0, 0, gpu.SubmitInfo{}))
	assert.Equal(t, 4, r.Stats().Reallocations)

	r.Update(0.1)
	require.NoError(t, r.Render(ctx, 1, 0, gpu.SubmitInfo{}))
	assert.Equal(t, 8, r.Stats().Reallocations)

	for range 3 {
		r.Update(0.1)
		require.NoError(t, r.Render(ctx, 0, 0, gpu.SubmitInfo{}))
	}
	assert.Equal(t, 8, r.Stats().Reallocations)
}

func TestRenderSignalsFence(t *testing.T) {
	r, dev := newRenderer(t, nil)
	fence, err := dev.CreateFence(false)
	require.NoError(t, err)

	r.Update(0)
	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{Fence: fence}))
	require.NoError(t, dev.WaitFence(context.Background(), fence))
}

func TestRenderErrors(t *testing.T) {
	dev := soft.New(gpu.Options{})
	r, err := New(dev, config.DefaultConfig(), nil)
	require.NoError(t, err)
	defer r.Close()
	r.Update(0)

	ctx := context.Background()
	assert.ErrorIs(t, r.Render(ctx, 0, 0, gpu.SubmitInfo{}), ErrNoTargets)

	color, err := dev.CreateImage(gpu.ImageDesc{Label: "swapchain", Width: size, Height: size, Format: gpu.FormatRGBA8, Usage: gpu.ImageAttachment})
	require.NoError(t, err)
	require.NoError(t, r.OnSwapchain(TargetSet{Width: size, Height: size, Images: []gpu.Image{color}}))

	assert.ErrorIs(t, r.Render(ctx, 5, 0, gpu.SubmitInfo{}), gpu.ErrOutOfRange)
	assert.ErrorIs(t, r.Render(ctx, 0, 3, gpu.SubmitInfo{}), gpu.ErrOutOfRange)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, r.Render(canceled, 0, 0, gpu.SubmitInfo{}), context.Canceled)
}

func TestRenderDetectsStaleBinding(t *testing.T) {
	r, dev := newRenderer(t, nil)
	ctx := context.Background()
	r.Update(0)
	require.NoError(t, r.Render(ctx, 0, 0, gpu.SubmitInfo{}))

	ws, err := r.Ring().At(0)
	require.NoError(t, err)
	dev.DestroyBuffer(ws.Stream(binding.Camera).Device())

	assert.ErrorIs(t, r.Render(ctx, 0, 0, gpu.SubmitInfo{}), gpu.ErrStaleBinding)
}

func TestMissingCameraIsFatal(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Camera = "overview"
	_, err := New(soft.New(gpu.Options{}), cfg, nil)
	assert.ErrorIs(t, err, scene.ErrCameraNotFound)
}

func TestSceneInstancesUseMaterialTextures(t *testing.T) {
	r, dev := newRenderer(t, quadScene())
	r.Update(0)

	inst := r.Instances()
	require.Len(t, inst, 4)
	assert.Equal(t, texMaterials, inst[2].Texture)
	assert.Equal(t, texWhite, inst[3].Texture)
	assert.Equal(t, r.static.base, inst[2].First)
	assert.Equal(t, r.static.base+6, inst[3].First)

	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{}))
	assert.Equal(t, 6, dev.LastStats().Draws)
}

func TestTraversalErrorIsLoggedOnce(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { logging.SetLogger(nil) })

	r, _ := newRenderer(t, quadScene())
	warnings := func() int { return strings.Count(buf.String(), "scene traversal") }

	r.Scene().Nodes[0].Children = []int{0}
	r.Update(0)
	r.Update(0)
	assert.Equal(t, 1, warnings())
	assert.Equal(t, 4, r.Stats().Instances)

	r.Scene().Nodes[0].Children = nil
	r.Update(0)
	assert.Equal(t, 1, warnings())

	r.Scene().Nodes[1].Children = []int{1}
	r.Update(0)
	assert.Equal(t, 2, warnings())
}

func TestSetSceneKeepsFreeCamera(t *testing.T) {
	r, dev := newRenderer(t, nil)
	r.Controller().Free().Radius = 5
	buffers := dev.Buffers()

	require.NoError(t, r.SetScene(quadScene()))
	assert.Equal(t, 5.0, r.Controller().Free().Radius)
	assert.Equal(t, "quads", r.Scene().Name)
	assert.Equal(t, buffers, dev.Buffers())

	r.Update(0)
	assert.Equal(t, 4, r.Stats().Instances)
	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{}))
}

func TestCloseReleasesBuffers(t *testing.T) {
	dev := soft.New(gpu.Options{})
	r, err := New(dev, config.DefaultConfig(), quadScene())
	require.NoError(t, err)
	color, err := dev.CreateImage(gpu.ImageDesc{Label: "swapchain", Width: size, Height: size, Format: gpu.FormatRGBA8, Usage: gpu.ImageAttachment})
	require.NoError(t, err)
	require.NoError(t, r.OnSwapchain(TargetSet{Width: size, Height: size, Images: []gpu.Image{color}}))
	r.Update(0)
	require.NoError(t, r.Render(context.Background(), 0, 0, gpu.SubmitInfo{}))

	require.NoError(t, r.Close())
	assert.Zero(t, dev.Buffers())
	assert.Zero(t, dev.Allocated())
}

func TestShadersEmbedded(t *testing.T) {
	for _, name := range []string{"background", "lines", "objects"} {
		src, err := Shader(name)
		require.NoError(t, err, name)
		assert.Contains(t, src, "@vertex")
		assert.Contains(t, src, "@fragment")
	}
	_, err := Shader("missing")
	assert.Error(t, err)
}
