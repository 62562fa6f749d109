// Package scene holds the renderer's scene graph: nodes with local
// transforms, meshes packed into one interleaved vertex stream, cameras
// and materials. It loads glTF files, walks the node hierarchy and turns
// it into per-frame draw instances.
package scene

import (
	"errors"
	"fmt"
	"image"

	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/math3d"
)

var (
	// ErrCycle is returned when the node hierarchy contains a cycle.
	ErrCycle = errors.New("scene: node hierarchy contains a cycle")

	// ErrBadNode is returned for a node reference outside the node, mesh
	// or camera tables.
	ErrBadNode = errors.New("scene: node reference out of range")

	// ErrMalformedAccessor is returned when accessor data runs past its
	// buffer, has an impossible stride, an out-of-range index or a
	// non-finite value.
	ErrMalformedAccessor = errors.New("scene: malformed accessor")

	// ErrMissingAttribute is returned for a primitive without POSITION or
	// NORMAL.
	ErrMissingAttribute = errors.New("scene: missing required attribute")

	// ErrNoData is returned when a primitive's buffer has no bytes loaded.
	ErrNoData = errors.New("scene: buffer has no data")

	// ErrCameraNotFound is returned when a camera requested by name is not
	// in the scene.
	ErrCameraNotFound = errors.New("scene: camera not found")
)

// Scene is a loaded scene graph.
type Scene struct {
	Name      string
	Nodes     []Node
	Roots     []int
	Meshes    []Mesh
	Cameras   []Camera
	Materials []Material

	// Vertices holds every loadable mesh packed in the 48 byte layout.
	// Ranges locates each mesh in it by name.
	Vertices []byte
	Ranges   MeshTable
}

// Node is one element of the scene hierarchy.
type Node struct {
	Name        string
	Translation math3d.Vec3
	Rotation    math3d.Quat
	Scale       math3d.Vec3

	// Matrix, when set, replaces translation, rotation and scale.
	Matrix *math3d.Mat4

	// Mesh and Camera index the scene tables, -1 for none.
	Mesh     int
	Camera   int
	Children []int
}

// NewNode returns a node with an identity transform and no attachments.
func NewNode(name string) Node {
	return Node{
		Name:     name,
		Rotation: math3d.IdentityQuat(),
		Scale:    math3d.V3(1, 1, 1),
		Mesh:     -1,
		Camera:   -1,
	}
}

// Local returns the node's parent-from-local transform.
func (n *Node) Local() math3d.Mat4 {
	if n.Matrix != nil {
		return *n.Matrix
	}
	return math3d.TRS(n.Translation, n.Rotation.Normalize(), n.Scale)
}

// Camera is a perspective camera.
type Camera struct {
	Name string

	// AspectRatio is zero when the file leaves it to the viewport.
	AspectRatio float64
	VFov        float64
	Near        float64
	Far         float64
}

// Material is the subset of a glTF material the renderer shades with.
type Material struct {
	Name      string
	BaseColor [4]float64
	Image     image.Image
}

// VertexRange locates a mesh in Scene.Vertices.
type VertexRange struct {
	First uint32
	Count uint32
	Min   math3d.Vec3
	Max   math3d.Vec3

	// Texture is the mesh's material index, -1 for none.
	Texture int
}

// MeshTable maps mesh names to their vertex ranges.
type MeshTable map[string]VertexRange

// Pack rebuilds Vertices and Ranges from every mesh that has vertices.
// Adjacent meshes sharing a name are concatenated under it. A later mesh
// whose name is already taken by a non-adjacent range is renamed with its
// index so both keep their own range.
func (sc *Scene) Pack() {
	sc.Vertices = sc.Vertices[:0]
	sc.Ranges = make(MeshTable, len(sc.Meshes))
	var first uint32
	for i := range sc.Meshes {
		m := &sc.Meshes[i]
		if len(m.Vertices) == 0 {
			continue
		}
		sc.Vertices = m.AppendBytes(sc.Vertices)
		n := uint32(len(m.Vertices))
		r, ok := sc.Ranges[m.Name]
		switch {
		case ok && r.First+r.Count == first:
			r.Count += n
			r.Min, r.Max = r.Min.Min(m.BoundsMin), r.Max.Max(m.BoundsMax)
			sc.Ranges[m.Name] = r
		case ok:
			name := uniqueName(sc.Ranges, m.Name, i)
			logging.Logger().Warn("renaming duplicate mesh", "mesh", m.Name, "index", i, "as", name)
			m.Name = name
			fallthrough
		default:
			sc.Ranges[m.Name] = VertexRange{First: first, Count: n, Min: m.BoundsMin, Max: m.BoundsMax, Texture: m.Material}
		}
		first += n
	}
}

func uniqueName(t MeshTable, name string, i int) string {
	candidate := fmt.Sprintf("%s.%d", name, i)
	for n := 1; ; n++ {
		if _, ok := t[candidate]; !ok {
			return candidate
		}
		candidate = fmt.Sprintf("%s.%d.%d", name, i, n)
	}
}

// VertexCount returns the number of packed vertices.
func (sc *Scene) VertexCount() int {
	return len(sc.Vertices) / VertexSize
}
