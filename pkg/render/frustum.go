package render

import (
	"github.com/taigrr/lumen/pkg/math3d"
)

// Plane is the set of points p with Normal·p + D = 0. Points on the side
// the normal faces have positive distance.
type Plane struct {
	Normal math3d.Vec3
	D      float64
}

// Distance returns the signed distance from the plane to p. It is a true
// distance only when Normal has unit length.
func (p Plane) Distance(pt math3d.Vec3) float64 {
	return p.Normal.Dot(pt) + p.D
}

func (p Plane) normalized() Plane {
	n := p.Normal.Len()
	if n == 0 {
		return p
	}
	return Plane{Normal: p.Normal.Scale(1 / n), D: p.D / n}
}

// Frustum is a convex volume bounded by six inward-facing planes, in the
// order of the Frustum* indices.
type Frustum struct {
	Planes [6]Plane
}

// Plane indices within Frustum.Planes.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// NewFrustumFromMatrix extracts the planes bounding the clip volume of m,
// a clip-from-world matrix with zero-to-one depth. Each plane is a sum or
// difference of the matrix rows (Gribb and Hartmann).
func NewFrustumFromMatrix(m math3d.Mat4) Frustum {
	// Rows of the column-major matrix as (x, y, z, w).
	var row [4][4]float64
	for r := range 4 {
		for c := range 4 {
			row[r][c] = m[r+c*4]
		}
	}
	plane := func(a [4]float64, sign float64, b [4]float64) Plane {
		return Plane{
			Normal: math3d.V3(a[0]+sign*b[0], a[1]+sign*b[1], a[2]+sign*b[2]),
			D:      a[3] + sign*b[3],
		}.normalized()
	}

	var f Frustum
	f.Planes[FrustumLeft] = plane(row[3], 1, row[0])
	f.Planes[FrustumRight] = plane(row[3], -1, row[0])
	f.Planes[FrustumBottom] = plane(row[3], 1, row[1])
	f.Planes[FrustumTop] = plane(row[3], -1, row[1])
	// Depth starts at 0 rather than -w, so the near plane is row 2 alone.
	f.Planes[FrustumNear] = plane(row[2], 0, row[2])
	f.Planes[FrustumFar] = plane(row[3], -1, row[2])
	return f
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min math3d.Vec3
	Max math3d.Vec3
}

// NewAABB returns the box spanning lo to hi.
func NewAABB(lo, hi math3d.Vec3) AABB {
	return AABB{Min: lo, Max: hi}
}

// Transform returns the axis-aligned box bounding b's corners after m.
func (b AABB) Transform(m math3d.Mat4) AABB {
	corners := cubeCorners(b.Min, b.Max)
	out := AABB{Min: m.MulPoint(corners[0])}
	out.Max = out.Min
	for _, c := range corners[1:] {
		p := m.MulPoint(c)
		out.Min = out.Min.Min(p)
		out.Max = out.Max.Max(p)
	}
	return out
}

// IntersectAABB reports whether any part of box may lie inside f. For
// each plane only the corner farthest along the normal is tested; if it
// is behind the plane, so is the whole box. Boxes near a frustum corner
// can be reported visible when they are not.
func (f Frustum) IntersectAABB(box AABB) bool {
	for _, p := range f.Planes {
		far := box.Min
		if p.Normal.X >= 0 {
			far.X = box.Max.X
		}
		if p.Normal.Y >= 0 {
			far.Y = box.Max.Y
		}
		if p.Normal.Z >= 0 {
			far.Z = box.Max.Z
		}
		if p.Distance(far) < 0 {
			return false
		}
	}
	return true
}
