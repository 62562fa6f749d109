package render

import (
	"github.com/taigrr/lumen/pkg/math3d"
)

// LineVertexSize is the packed size of a LineVertex: three float32
// position components followed by four color bytes.
const LineVertexSize = 16

// LineVertex is one endpoint of a line segment.
type LineVertex struct {
	Position math3d.Vec3
	Color    Color
}

// LineList accumulates line segments, two vertices per segment, for the
// lines pipeline. It is rebuilt every frame.
type LineList struct {
	Vertices []LineVertex
}

// Reset drops all segments, keeping the storage.
func (l *LineList) Reset() {
	l.Vertices = l.Vertices[:0]
}

// Len returns the number of vertices.
func (l *LineList) Len() int {
	return len(l.Vertices)
}

// ByteSize returns the packed size of the vertices.
func (l *LineList) ByteSize() uint64 {
	return uint64(len(l.Vertices)) * LineVertexSize
}

// Line adds a segment from a to b.
func (l *LineList) Line(a, b math3d.Vec3, c Color) {
	l.Vertices = append(l.Vertices, LineVertex{a, c}, LineVertex{b, c})
}

// cubeEdges indexes the 12 edges of the corner order used by cubeCorners.
var cubeEdges = [12][2]int{
	// Back face
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	// Front face
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	// Connecting edges
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// cubeCorners returns the corners of the box spanning lo to hi.
func cubeCorners(lo, hi math3d.Vec3) [8]math3d.Vec3 {
	return [8]math3d.Vec3{
		{X: lo.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: lo.Y, Z: lo.Z},
		{X: hi.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: hi.Y, Z: lo.Z},
		{X: lo.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: lo.Y, Z: hi.Z},
		{X: hi.X, Y: hi.Y, Z: hi.Z},
		{X: lo.X, Y: hi.Y, Z: hi.Z},
	}
}

func (l *LineList) edges(corners [8]math3d.Vec3, c Color) {
	for _, e := range cubeEdges {
		l.Line(corners[e[0]], corners[e[1]], c)
	}
}

// Cube adds the 12 edges of an axis-aligned cube.
func (l *LineList) Cube(center math3d.Vec3, size float64, c Color) {
	half := math3d.V3(size/2, size/2, size/2)
	l.edges(cubeCorners(center.Sub(half), center.Add(half)), c)
}

// Box adds the 12 edges of an axis-aligned box.
func (l *LineList) Box(box AABB, c Color) {
	l.edges(cubeCorners(box.Min, box.Max), c)
}

// Frustum adds the 12 edges of the volume a clip-from-world matrix sees,
// found by unprojecting the corners of the zero-to-one depth clip cube.
func (l *LineList) Frustum(clipFromWorld math3d.Mat4, c Color) {
	inv := clipFromWorld.Inverse()
	ndc := cubeCorners(math3d.V3(-1, -1, 0), math3d.V3(1, 1, 1))
	var world [8]math3d.Vec3
	for i, p := range ndc {
		world[i] = inv.MulVec4(math3d.V4FromV3(p, 1)).PerspectiveDivide()
	}
	l.edges(world, c)
}

// Axes adds the coordinate axes at origin, colored red, green and blue.
func (l *LineList) Axes(origin math3d.Vec3, length float64) {
	l.Line(origin, origin.Add(math3d.V3(length, 0, 0)), ColorRed)
	l.Line(origin, origin.Add(math3d.V3(0, length, 0)), ColorGreen)
	l.Line(origin, origin.Add(math3d.V3(0, 0, length)), ColorBlue)
}

// Grid adds a square grid on the z=0 ground plane.
func (l *LineList) Grid(size float64, divisions int, c Color) {
	if divisions < 1 {
		return
	}
	half := size / 2
	step := size / float64(divisions)
	for i := range divisions + 1 {
		v := -half + float64(i)*step
		l.Line(math3d.V3(v, -half, 0), math3d.V3(v, half, 0), c)
		l.Line(math3d.V3(-half, v, 0), math3d.V3(half, v, 0), c)
	}
}

// AppendBytes appends the packed vertices to dst.
func (l *LineList) AppendBytes(dst []byte) []byte {
	for _, v := range l.Vertices {
		dst = v.Position.AppendFloat32(dst)
		dst = append(dst, v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	}
	return dst
}
