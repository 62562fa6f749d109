package frame

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taigrr/lumen/pkg/binding"
	"github.com/taigrr/lumen/pkg/camera"
	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/input"
	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/render"
	"github.com/taigrr/lumen/pkg/scene"
	"github.com/taigrr/lumen/pkg/workspace"
)

var (
	cubeColor    = render.ColorBlack
	gridColor    = render.RGB(90, 90, 90)
	frustumColor = render.RGB(255, 220, 0)
	torusOffset  = math3d.V3(0, 0, 0.5)
)

// Update advances the animation clock and the camera by dt seconds and
// rebuilds the lines, instances and uniforms for the next Render.
func (r *Renderer) Update(dt float64) {
	r.time += dt
	r.ctrl.Update(dt)

	r.lines.Reset()
	edge := 0.5 + 0.4*math.Sin(r.time)
	r.lines.Cube(math3d.V3(0, 0, 0.5), edge, cubeColor)
	r.lines.Grid(4, 8, gridColor)
	if _, ok := r.ctrl.Mode().(camera.DebugMode); ok {
		r.lines.Frustum(r.ctrl.Culling(), frustumColor)
	}

	clip := r.ctrl.ClipFromWorld()
	r.instances = r.instances[:0]
	r.instances = append(r.instances,
		scene.StaticInstance(r.static.plane, math3d.Identity(), clip),
		scene.StaticInstance(r.static.torus, math3d.Translate(torusOffset).Mul(math3d.RotateZ(r.time)), clip),
	)
	for _, inst := range r.builder.Build(r.scene, clip) {
		inst.Texture = r.sceneTexture(inst.Texture)
		r.instances = append(r.instances, inst)
	}
	r.reportBuildErr(r.builder.Err())

	frustum := render.NewFrustumFromMatrix(r.ctrl.Culling())
	r.culled = 0
	for _, inst := range r.instances {
		if !frustum.IntersectAABB(inst.Bounds) {
			r.culled++
		}
	}

	r.lineBytes = r.lines.AppendBytes(r.lineBytes[:0])
	r.transformBytes = r.transformBytes[:0]
	for _, inst := range r.instances {
		r.transformBytes = inst.Transform.AppendBytes(r.transformBytes)
	}
	r.refreshCamera()
	r.worldBytes = appendWorld(r.worldBytes[:0], r.cfg.Lighting)
}

// OnInput forwards an event to the camera controller.
func (r *Renderer) OnInput(ev input.Event) {
	r.ctrl.Handle(ev)
}

// Stats returns counters describing the last Update.
func (r *Renderer) Stats() Stats {
	return Stats{
		Instances:     len(r.instances),
		LineVertices:  r.lines.Len(),
		Culled:        r.culled,
		Reallocations: r.reallocations,
		Mode:          r.ctrl.Mode().String(),
		Camera:        r.ctrl.CameraName(),
		Time:          r.time,
	}
}

// reportBuildErr logs a scene traversal error once, until it changes or
// clears.
func (r *Renderer) reportBuildErr(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == r.buildErr {
		return
	}
	r.buildErr = msg
	if err != nil {
		logging.Logger().Warn("scene traversal", "scene", r.scene.Name, "err", err)
	}
}

// refreshCamera rewrites the camera uniform from the controller, so the
// camera stream always has data to stage.
func (r *Renderer) refreshCamera() {
	r.cameraBytes = r.ctrl.ClipFromWorld().AppendFloat32(r.cameraBytes[:0])
}

// stage streams data into s of ws and records the copy to the device
// buffer. Empty data records nothing.
func (r *Renderer) stage(ws *workspace.Workspace, s binding.Stream, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	grew, err := ws.Stage(s, data)
	if err != nil {
		return fmt.Errorf("stage %s: %w", s, err)
	}
	if grew {
		r.reallocations++
	}
	st := ws.Stream(s)
	ws.Recorder.CopyBuffer(st.Staging(), st.Device(), uint64(len(data)))
	return nil
}

// Render records and submits the frame built by the last Update into
// workspace wsIndex, drawing to swapchain image imgIndex. The caller must
// have waited for the workspace's previous submission; info carries the
// semaphores and fence of this one.
func (r *Renderer) Render(ctx context.Context, wsIndex, imgIndex int, info gpu.SubmitInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(r.targets) == 0 {
		return ErrNoTargets
	}
	if imgIndex < 0 || imgIndex >= len(r.targets) {
		return fmt.Errorf("frame: image %d of %d: %w", imgIndex, len(r.targets), gpu.ErrOutOfRange)
	}
	ws, err := r.ring.At(wsIndex)
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}

	rec := ws.Recorder
	rec.Reset()

	if err := r.stage(ws, binding.Lines, r.lineBytes); err != nil {
		return err
	}
	if err := r.stage(ws, binding.Transforms, r.transformBytes); err != nil {
		return err
	}
	if err := r.stage(ws, binding.Camera, r.cameraBytes); err != nil {
		return err
	}
	if err := r.stage(ws, binding.World, r.worldBytes); err != nil {
		return err
	}
	rec.Barrier(gpu.StageTransfer, gpu.StageVertexInput|gpu.StageShaderRead)

	if err := ws.Validate(); err != nil {
		return fmt.Errorf("frame: workspace %d: %w", wsIndex, err)
	}

	rec.BeginPass(r.targets[imgIndex], ClearColor, 1)
	rec.SetViewport(r.width, r.height)

	rec.SetPipeline(r.pipelines[pipeBackground])
	rec.PushConstants(binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(r.time))))
	rec.Draw(3, 1, 0, 0)

	if n := r.lines.Len(); n > 0 {
		rec.SetPipeline(r.pipelines[pipeLines])
		rec.SetBindGroup(0, ws.Bindings.Group(binding.Camera))
		rec.SetVertexBuffer(ws.Stream(binding.Lines).Device(), 0)
		rec.Draw(uint32(n), 1, 0, 0)
	}

	if len(r.instances) > 0 {
		rec.SetPipeline(r.pipelines[pipeObjects])
		rec.SetBindGroup(0, ws.Bindings.Group(binding.World))
		rec.SetBindGroup(1, ws.Bindings.Group(binding.Transforms))
		rec.SetVertexBuffer(r.static.vertices, 0)
		for i, inst := range r.instances {
			rec.SetBindGroup(2, r.static.groups[inst.Texture])
			rec.Draw(inst.Count, 1, inst.First, uint32(i))
		}
	}
	rec.EndPass()

	recording, err := rec.Finish()
	if err != nil {
		return fmt.Errorf("frame: record: %w", err)
	}
	if err := r.dev.Submit(recording, info); err != nil {
		return fmt.Errorf("frame: submit: %w", err)
	}
	return nil
}
