package scene

import (
	"github.com/taigrr/lumen/pkg/math3d"
	"github.com/taigrr/lumen/pkg/render"
)

// TransformSize is the packed size of a Transform: three float32 matrices.
const TransformSize = 192

// Transform is the per-instance matrix block read by the object shader.
type Transform struct {
	ClipFromLocal        math3d.Mat4
	WorldFromLocal       math3d.Mat4
	WorldFromLocalNormal math3d.Mat4
}

// AppendBytes appends the packed 192 byte form of t.
func (t Transform) AppendBytes(dst []byte) []byte {
	dst = t.ClipFromLocal.AppendFloat32(dst)
	dst = t.WorldFromLocal.AppendFloat32(dst)
	return t.WorldFromLocalNormal.AppendFloat32(dst)
}

// Instance is one mesh draw.
type Instance struct {
	Transform Transform
	First     uint32
	Count     uint32
	Texture   int

	// Bounds is the world-space box of the mesh.
	Bounds render.AABB
}

// Builder turns a scene into a flat instance list each frame.
type Builder struct {
	// Base is added to every vertex range, for scenes whose vertices are
	// uploaded after other data in the same buffer.
	Base uint32

	instances []Instance
	err       error
}

// Build returns one instance per node whose mesh has a vertex range.
// Nodes without a mesh, or whose mesh was not loaded, are skipped; their
// children are still visited. The returned slice is reused by the next
// call.
func (b *Builder) Build(sc *Scene, clipFromWorld math3d.Mat4) []Instance {
	b.instances = b.instances[:0]
	b.err = Walk(sc, math3d.Identity(), func(_ int, n *Node, world math3d.Mat4) {
		if n.Mesh < 0 || n.Mesh >= len(sc.Meshes) {
			return
		}
		r, ok := sc.Ranges[sc.Meshes[n.Mesh].Name]
		if !ok {
			return
		}
		b.instances = append(b.instances, Instance{
			Transform: Transform{
				ClipFromLocal:        clipFromWorld.Mul(world),
				WorldFromLocal:       world,
				WorldFromLocalNormal: world.NormalMatrix(),
			},
			First:   b.Base + r.First,
			Count:   r.Count,
			Texture: r.Texture,
			Bounds:  render.NewAABB(r.Min, r.Max).Transform(world),
		})
	})
	return b.instances
}

// Err returns the traversal error of the last Build.
func (b *Builder) Err() error { return b.err }

// StaticInstance builds an instance of a fixed mesh. world is used as the
// normal matrix, which is only correct for rotations with uniform scale.
func StaticInstance(r VertexRange, world, clipFromWorld math3d.Mat4) Instance {
	return Instance{
		Transform: Transform{
			ClipFromLocal:        clipFromWorld.Mul(world),
			WorldFromLocal:       world,
			WorldFromLocalNormal: world,
		},
		First:   r.First,
		Count:   r.Count,
		Texture: r.Texture,
		Bounds:  render.NewAABB(r.Min, r.Max).Transform(world),
	}
}
