package scene

import (
	"math"

	"github.com/taigrr/lumen/pkg/math3d"
)

// VertexSize is the packed size of a Vertex: position, normal, tangent and
// texture coordinate as float32 values.
const VertexSize = 48

// Vertex holds all vertex attributes.
type Vertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3
	Tangent  math3d.Vec4
	UV       math3d.Vec2
}

// AppendBytes appends the packed 48 byte form of v.
func (v Vertex) AppendBytes(dst []byte) []byte {
	dst = v.Position.AppendFloat32(dst)
	dst = v.Normal.AppendFloat32(dst)
	dst = v.Tangent.AppendFloat32(dst)
	return v.UV.AppendFloat32(dst)
}

// Mesh is a non-indexed triangle list.
type Mesh struct {
	Name     string
	Vertices []Vertex

	// Material indexes Scene.Materials, -1 for none.
	Material int

	// Bounding box (calculated on load)
	BoundsMin math3d.Vec3
	BoundsMax math3d.Vec3

	// Err is why the mesh was skipped at load; such meshes have no
	// vertices.
	Err error
}

// CalculateBounds computes the axis-aligned bounding box.
func (m *Mesh) CalculateBounds() {
	if len(m.Vertices) == 0 {
		return
	}

	m.BoundsMin = m.Vertices[0].Position
	m.BoundsMax = m.Vertices[0].Position

	for _, v := range m.Vertices[1:] {
		m.BoundsMin = m.BoundsMin.Min(v.Position)
		m.BoundsMax = m.BoundsMax.Max(v.Position)
	}
}

// Center returns the center of the bounding box.
func (m *Mesh) Center() math3d.Vec3 {
	return m.BoundsMin.Add(m.BoundsMax).Scale(0.5)
}

// Size returns the dimensions of the bounding box.
func (m *Mesh) Size() math3d.Vec3 {
	return m.BoundsMax.Sub(m.BoundsMin)
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Vertices) / 3
}

// AppendBytes appends every vertex in the packed layout.
func (m *Mesh) AppendBytes(dst []byte) []byte {
	for _, v := range m.Vertices {
		dst = v.AppendBytes(dst)
	}
	return dst
}

var defaultTangent = math3d.V4(1, 0, 0, 1)

// Plane returns a size by size square on z = 0 facing +z, as two
// triangles with texture coordinates spanning [0, 1].
func Plane(size float64) Mesh {
	h := size / 2
	corner := func(x, y, u, v float64) Vertex {
		return Vertex{
			Position: math3d.V3(x, y, 0),
			Normal:   math3d.V3(0, 0, 1),
			Tangent:  defaultTangent,
			UV:       math3d.V2(u, v),
		}
	}
	a := corner(-h, -h, 0, 1)
	b := corner(h, -h, 1, 1)
	c := corner(h, h, 1, 0)
	d := corner(-h, h, 0, 0)

	m := Mesh{Name: "plane", Vertices: []Vertex{a, b, c, a, c, d}, Material: -1}
	m.CalculateBounds()
	return m
}

// Torus returns a torus around the z axis. major is the distance from the
// center to the tube center and minor the tube radius.
func Torus(major, minor float64, segments, sides int) Mesh {
	segments = max(segments, 3)
	sides = max(sides, 3)

	at := func(i, j int) Vertex {
		u := float64(i) / float64(segments)
		v := float64(j) / float64(sides)
		su, cu := math.Sincos(u * 2 * math.Pi)
		sv, cv := math.Sincos(v * 2 * math.Pi)
		normal := math3d.V3(cv*cu, cv*su, sv)
		return Vertex{
			Position: math3d.V3((major+minor*cv)*cu, (major+minor*cv)*su, minor*sv),
			Normal:   normal,
			Tangent:  math3d.V4(-su, cu, 0, 1),
			UV:       math3d.V2(u, v),
		}
	}

	m := Mesh{Name: "torus", Material: -1}
	m.Vertices = make([]Vertex, 0, segments*sides*6)
	for i := range segments {
		for j := range sides {
			a, b := at(i, j), at(i+1, j)
			c, d := at(i+1, j+1), at(i, j+1)
			m.Vertices = append(m.Vertices, a, b, c, a, c, d)
		}
	}
	m.CalculateBounds()
	return m
}
