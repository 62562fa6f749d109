package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/render"
)

// Sizes of the packed vertex and uniform layouts the programs decode.
const (
	lineStride      = 16
	objectStride    = 48
	mat4Size        = 64
	worldSize       = 64
	transformStride = 3 * mat4Size
)

// resource is one bound slot as seen by a program.
type resource struct {
	data []byte
	tex  *render.Texture
}

// drawContext is everything a program may read for one draw.
type drawContext struct {
	raster   *render.Rasterizer
	cmd      gpu.DrawCommand
	vertices []byte
	stride   int
	push     []byte
	sets     [][]resource
}

// program is the CPU equivalent of a pipeline's vertex and fragment stages.
type program func(dc *drawContext) error

var programs = map[string]program{
	"background": drawBackground,
	"lines":      drawLines,
	"objects":    drawObjects,
}

func (dc *drawContext) buffer(set, binding, size int) ([]byte, error) {
	if set >= len(dc.sets) || binding >= len(dc.sets[set]) {
		return nil, fmt.Errorf("set %d binding %d not in layout: %w", set, binding, gpu.ErrStaleBinding)
	}
	data := dc.sets[set][binding].data
	if len(data) < size {
		return nil, fmt.Errorf("set %d binding %d holds %d bytes, need %d: %w", set, binding, len(data), size, gpu.ErrOutOfRange)
	}
	return data, nil
}

func (dc *drawContext) texture(set, binding int) (*render.Texture, error) {
	if set >= len(dc.sets) || binding >= len(dc.sets[set]) || dc.sets[set][binding].tex == nil {
		return nil, fmt.Errorf("set %d binding %d is not a texture: %w", set, binding, gpu.ErrStaleBinding)
	}
	return dc.sets[set][binding].tex, nil
}

// vertexRange returns the bytes of the draw's vertices.
func (dc *drawContext) vertexRange() ([]byte, error) {
	first := int(dc.cmd.FirstVertex) * dc.stride
	end := first + int(dc.cmd.VertexCount)*dc.stride
	if dc.stride == 0 || end > len(dc.vertices) {
		return nil, fmt.Errorf("vertices [%d, %d) of %d bytes: %w", first, end, len(dc.vertices), gpu.ErrOutOfRange)
	}
	return dc.vertices[first:end], nil
}

func f32(b []byte, off int) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
}

func vec3(b []byte, off int) math3d.Vec3 {
	return math3d.V3(f32(b, off), f32(b, off+4), f32(b, off+8))
}

func mat4(b []byte, off int) math3d.Mat4 {
	var m math3d.Mat4
	for i := range m {
		m[i] = f32(b, off+4*i)
	}
	return m
}

func fract(v float64) float64 {
	return v - math.Floor(v)
}

// drawBackground fills the target with a pattern animated by the time
// push constant: red ramps across and scrolls, green ramps down.
func drawBackground(dc *drawContext) error {
	if len(dc.push) < 4 {
		return fmt.Errorf("background needs a 4 byte time push constant, have %d: %w", len(dc.push), gpu.ErrOutOfRange)
	}
	time := f32(dc.push, 0)
	dc.raster.FullScreen(func(u, v float64) render.Color {
		return render.FromLinear(fract(u+time), v, 0, 1)
	})
	return nil
}

// drawLines draws line segments transformed by CLIP_FROM_WORLD at set 0.
func drawLines(dc *drawContext) error {
	cam, err := dc.buffer(0, 0, mat4Size)
	if err != nil {
		return err
	}
	clipFromWorld := mat4(cam, 0)

	verts, err := dc.vertexRange()
	if err != nil {
		return err
	}
	for i := 0; i+2*lineStride <= len(verts); i += 2 * lineStride {
		a := verts[i:]
		b := verts[i+lineStride:]
		pa := clipFromWorld.MulVec4(math3d.V4FromV3(vec3(a, 0), 1))
		pb := clipFromWorld.MulVec4(math3d.V4FromV3(vec3(b, 0), 1))
		ca := render.Color{R: a[12], G: a[13], B: a[14], A: a[15]}
		cb := render.Color{R: b[12], G: b[13], B: b[14], A: b[15]}
		dc.raster.Line(pa, pb, func(t float64) render.Color {
			return lerp(ca, cb, t)
		})
	}
	return nil
}

func lerp(a, b render.Color, t float64) render.Color {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t + 0.5) }
	return render.Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// world holds the decoded lighting uniform.
type world struct {
	skyDir, skyEnergy, sunDir, sunEnergy math3d.Vec3
}

// drawObjects draws lit, textured triangles. Set 0 is the world uniform,
// set 1 the transform array indexed by instance, set 2 the texture.
func drawObjects(dc *drawContext) error {
	wb, err := dc.buffer(0, 0, worldSize)
	if err != nil {
		return err
	}
	w := world{
		skyDir:    vec3(wb, 0),
		skyEnergy: vec3(wb, 16),
		sunDir:    vec3(wb, 32),
		sunEnergy: vec3(wb, 48),
	}
	last := int(dc.cmd.FirstInstance+dc.cmd.InstanceCount) * transformStride
	transforms, err := dc.buffer(1, 0, last)
	if err != nil {
		return err
	}
	tex, err := dc.texture(2, 0)
	if err != nil {
		return err
	}
	verts, err := dc.vertexRange()
	if err != nil {
		return err
	}

	for inst := dc.cmd.FirstInstance; inst < dc.cmd.FirstInstance+dc.cmd.InstanceCount; inst++ {
		off := int(inst) * transformStride
		clipFromLocal := mat4(transforms, off)
		normalFromLocal := mat4(transforms, off+2*mat4Size)

		for t := 0; t+3*objectStride <= len(verts); t += 3 * objectStride {
			var clip [3]math3d.Vec4
			var normals [3]math3d.Vec3
			var uvs [3][2]float64
			for k := range 3 {
				v := verts[t+k*objectStride:]
				clip[k] = clipFromLocal.MulVec4(math3d.V4FromV3(vec3(v, 0), 1))
				normals[k] = normalFromLocal.MulVec3Dir(vec3(v, 12))
				uvs[k] = [2]float64{f32(v, 40), f32(v, 44)}
			}
			dc.raster.Triangle(clip, func(bw render.Weights) render.Color {
				n := normals[0].Scale(bw[0]).Add(normals[1].Scale(bw[1])).Add(normals[2].Scale(bw[2])).Normalize()
				u := uvs[0][0]*bw[0] + uvs[1][0]*bw[1] + uvs[2][0]*bw[2]
				v := uvs[0][1]*bw[0] + uvs[1][1]*bw[1] + uvs[2][1]*bw[2]
				return w.shade(n, tex.Sample(u, v))
			})
		}
	}
	return nil
}

// shade applies hemisphere sky light plus a directional sun to albedo.
func (w world) shade(n math3d.Vec3, albedo render.Color) render.Color {
	sky := w.skyEnergy.Scale(0.5*n.Dot(w.skyDir) + 0.5)
	sun := w.sunEnergy.Scale(math.Max(0, n.Dot(w.sunDir)))
	e := sky.Add(sun)
	return render.FromLinear(
		e.X*float64(albedo.R)/255,
		e.Y*float64(albedo.G)/255,
		e.Z*float64(albedo.B)/255,
		1,
	)
}
