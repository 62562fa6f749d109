// Package gpu defines the graphics device contract the frame core is
// written against.
//
// Resources are referred to by generation-tagged handles. A handle whose
// resource was destroyed never aliases a newer resource in the same slot,
// so bindings that outlive their buffer are detected instead of silently
// reading someone else's memory.
//
// Work for the device is captured with a Recorder as a list of typed
// commands and handed to Device.Submit as an immutable Recording:
//
//	rec := gpu.NewRecorder("frame")
//	rec.CopyBuffer(staging, vertices, n)
//	rec.Barrier(gpu.StageTransfer, gpu.StageVertexInput)
//	rec.BeginPass(target, clear, 1)
//	rec.SetPipeline(lines)
//	rec.SetVertexBuffer(vertices, 0)
//	rec.Draw(count, 1, 0, 0)
//	rec.EndPass()
//	r, err := rec.Finish()
//
// Backends register themselves by name from init, following the
// database/sql driver pattern, and are opened with Open:
//
//	import _ "github.com/taigrr/lumen/pkg/gpu/soft"
//
//	dev, err := gpu.Open("soft", gpu.Options{})
package gpu
