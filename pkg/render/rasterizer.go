// Package render provides the software rasterization, texture sampling
// and terminal output used by the soft device and presenters.
package render

import (
	"math"

	"github.com/taigrr/lumen/pkg/math3d"
)

// Weights are the contributions of a primitive's three input vertices to
// one fragment. They are perspective correct and sum to one.
type Weights [3]float64

// FragmentFunc shades one fragment of a triangle.
type FragmentFunc func(w Weights) Color

// LineFragmentFunc shades one fragment of a line; t runs from 0 at the
// first endpoint to 1 at the second.
type LineFragmentFunc func(t float64) Color

// Rasterizer draws clip-space primitives into a framebuffer with an
// optional depth buffer. Clip space follows the zero-to-one depth
// convention: a point is visible when 0 <= z <= w, and y points down.
type Rasterizer struct {
	fb    *Framebuffer
	depth []float32

	// DepthTest enables the less-than depth test and depth writes.
	DepthTest bool

	// Fragments counts fragments written since the last ResetStats.
	Fragments int
}

// NewRasterizer creates a rasterizer for fb. depth may be nil when no
// primitive uses the depth test; otherwise it must hold one value per pixel.
func NewRasterizer(fb *Framebuffer, depth []float32) *Rasterizer {
	return &Rasterizer{fb: fb, depth: depth}
}

// Width returns the framebuffer width.
func (r *Rasterizer) Width() int { return r.fb.Width }

// Height returns the framebuffer height.
func (r *Rasterizer) Height() int { return r.fb.Height }

// ResetStats zeroes the fragment counter.
func (r *Rasterizer) ResetStats() { r.Fragments = 0 }

// ClearDepth fills the depth buffer with v.
func (r *Rasterizer) ClearDepth(v float32) {
	n := len(r.depth)
	if n == 0 {
		return
	}
	// Use copy-doubling for faster clearing
	r.depth[0] = v
	for filled := 1; filled < n; filled *= 2 {
		copy(r.depth[filled:], r.depth[:filled])
	}
}

// FullScreen shades every pixel. u and v are the pixel center in [0, 1]
// with v increasing downward. Depth is neither tested nor written.
func (r *Rasterizer) FullScreen(shade func(u, v float64) Color) {
	w, h := r.fb.Width, r.fb.Height
	for y := range h {
		v := (float64(y) + 0.5) / float64(h)
		row := y * w
		for x := range w {
			u := (float64(x) + 0.5) / float64(w)
			r.fb.Pixels[row+x] = shade(u, v)
		}
	}
	r.Fragments += w * h
}

// clipVertex is a clip-space position together with its weights over the
// primitive's original vertices.
type clipVertex struct {
	pos math3d.Vec4
	w   Weights
}

// screenVertex is a clipped vertex after the perspective divide.
type screenVertex struct {
	x, y, z float64
	invW    float64
	w       Weights
}

// Triangle rasterizes a clip-space triangle. It is clipped against the
// near plane; fragments beyond the far plane are discarded. Both windings
// are drawn.
func (r *Rasterizer) Triangle(v [3]math3d.Vec4, shade FragmentFunc) {
	var in, out [8]clipVertex
	for i := range 3 {
		in[i] = clipVertex{pos: v[i]}
		in[i].w[i] = 1
	}
	poly := clipNear(in[:3], out[:0])
	if len(poly) < 3 {
		return
	}

	var sv [8]screenVertex
	for i, cv := range poly {
		sv[i] = r.toScreen(cv)
	}
	// Fan triangulate the clipped polygon.
	for i := 1; i+1 < len(poly); i++ {
		r.fill(sv[0], sv[i], sv[i+1], shade)
	}
}

func (r *Rasterizer) toScreen(cv clipVertex) screenVertex {
	invW := 1 / cv.pos.W
	return screenVertex{
		x:    (cv.pos.X*invW + 1) * 0.5 * float64(r.fb.Width),
		y:    (cv.pos.Y*invW + 1) * 0.5 * float64(r.fb.Height),
		z:    cv.pos.Z * invW,
		invW: invW,
		w:    cv.w,
	}
}

// clipNear clips a convex polygon against z >= 0 (Sutherland-Hodgman).
func clipNear(in, out []clipVertex) []clipVertex {
	for i := range in {
		a := in[i]
		b := in[(i+1)%len(in)]
		da, db := a.pos.Z, b.pos.Z
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			t := da / (da - db)
			c := clipVertex{pos: a.pos.Lerp(b.pos, t)}
			for k := range 3 {
				c.w[k] = a.w[k] + (b.w[k]-a.w[k])*t
			}
			out = append(out, c)
		}
	}
	return out
}

// edgeCoeffs returns A, B, C for the edge function A*x + B*y + C, which is
// positive left of the edge from (x0, y0) to (x1, y1).
func edgeCoeffs(x0, y0, x1, y1 float64) (A, B, C float64) {
	A = y0 - y1
	B = x1 - x0
	C = x0*y1 - x1*y0
	return
}

// fill rasterizes one screen-space triangle with incremental edge functions.
func (r *Rasterizer) fill(s0, s1, s2 screenVertex, shade FragmentFunc) {
	area2 := (s1.x-s0.x)*(s2.y-s0.y) - (s1.y-s0.y)*(s2.x-s0.x)
	if area2 == 0 {
		return
	}
	sign := 1.0
	if area2 < 0 {
		sign = -1
	}
	invArea := 1.0 / area2

	width, height := r.fb.Width, r.fb.Height
	minX := int(math.Max(0, math.Floor(min3(s0.x, s1.x, s2.x))))
	maxX := int(math.Min(float64(width-1), math.Ceil(max3(s0.x, s1.x, s2.x))))
	minY := int(math.Max(0, math.Floor(min3(s0.y, s1.y, s2.y))))
	maxY := int(math.Min(float64(height-1), math.Ceil(max3(s0.y, s1.y, s2.y))))
	if minX > maxX || minY > maxY {
		return
	}

	// Edge 0: v1 -> v2, Edge 1: v2 -> v0, Edge 2: v0 -> v1
	A0, B0, C0 := edgeCoeffs(s1.x, s1.y, s2.x, s2.y)
	A1, B1, C1 := edgeCoeffs(s2.x, s2.y, s0.x, s0.y)
	A2, B2, C2 := edgeCoeffs(s0.x, s0.y, s1.x, s1.y)

	px := float64(minX) + 0.5
	py := float64(minY) + 0.5
	e0Row := A0*px + B0*py + C0
	e1Row := A1*px + B1*py + C1
	e2Row := A2*px + B2*py + C2

	for y := minY; y <= maxY; y++ {
		e0, e1, e2 := e0Row, e1Row, e2Row
		row := y * width

		for x := minX; x <= maxX; x++ {
			if e0*sign >= 0 && e1*sign >= 0 && e2*sign >= 0 {
				l0, l1, l2 := e0*invArea, e1*invArea, e2*invArea
				z := l0*s0.z + l1*s1.z + l2*s2.z
				if r.testDepth(row+x, z) {
					// Perspective-correct weights over the clipped vertices.
					p0, p1, p2 := l0*s0.invW, l1*s1.invW, l2*s2.invW
					inv := 1 / (p0 + p1 + p2)
					p0, p1, p2 = p0*inv, p1*inv, p2*inv

					var w Weights
					for k := range 3 {
						w[k] = p0*s0.w[k] + p1*s1.w[k] + p2*s2.w[k]
					}
					r.fb.Pixels[row+x] = shade(w)
					r.Fragments++
				}
			}
			e0 += A0
			e1 += A1
			e2 += A2
		}
		e0Row += B0
		e1Row += B1
		e2Row += B2
	}
}

// testDepth applies the depth range and, when enabled, the less-than
// depth test to pixel idx, writing depth on success.
func (r *Rasterizer) testDepth(idx int, z float64) bool {
	if z < 0 || z > 1 {
		return false
	}
	if r.DepthTest {
		if float32(z) >= r.depth[idx] {
			return false
		}
		r.depth[idx] = float32(z)
	}
	return true
}

// Line rasterizes a clip-space line segment with Bresenham's algorithm.
// The segment is clipped against the near plane.
func (r *Rasterizer) Line(a, b math3d.Vec4, shade LineFragmentFunc) {
	ta, tb := 0.0, 1.0
	da, db := a.Z, b.Z
	switch {
	case da < 0 && db < 0:
		return
	case da < 0:
		ta = da / (da - db)
	case db < 0:
		tb = da / (da - db)
	}
	pa := a.Lerp(b, ta)
	pb := a.Lerp(b, tb)

	sa := r.toScreen(clipVertex{pos: pa})
	sb := r.toScreen(clipVertex{pos: pb})

	x0, y0 := int(math.Floor(sa.x)), int(math.Floor(sa.y))
	x1, y1 := int(math.Floor(sb.x)), int(math.Floor(sb.y))

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	steps := max(dx, -dy)
	e := dx + dy

	for i := 0; ; i++ {
		if x0 >= 0 && x0 < r.fb.Width && y0 >= 0 && y0 < r.fb.Height {
			s := 0.0
			if steps > 0 {
				s = float64(i) / float64(steps)
			}
			z := sa.z + (sb.z-sa.z)*s
			t := ta + (tb-ta)*s
			if idx := y0*r.fb.Width + x0; r.testDepth(idx, z) {
				r.fb.Pixels[idx] = shade(t)
				r.Fragments++
			}
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}

func max3(a, b, c float64) float64 {
	return math.Max(a, math.Max(b, c))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
