package scene

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigrr/lumen/pkg/math3d"
)

// chain builds root -> a -> b with meshes on a and b.
func testScene() *Scene {
	sc := &Scene{Name: "test"}
	root := NewNode("root")
	root.Children = []int{1, 3}
	a := NewNode("a")
	a.Translation = math3d.V3(1, 0, 0)
	a.Scale = math3d.V3(2, 1, 1)
	a.Mesh = 0
	a.Children = []int{2}
	b := NewNode("b")
	b.Mesh = 1
	sibling := NewNode("sibling")
	sibling.Mesh = 0
	sc.Nodes = []Node{root, a, b, sibling}
	sc.Roots = []int{0}

	sc.Meshes = []Mesh{Plane(1), Torus(1, 0.25, 8, 4)}
	sc.Meshes[0].Name = "quad"
	sc.Pack()
	return sc
}

func TestNodeLocalTRS(t *testing.T) {
	n := NewNode("n")
	n.Translation = math3d.V3(1, 0, 0)
	n.Scale = math3d.V3(2, 1, 1)
	want := math3d.Mat4{
		2, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 0, 0, 1,
	}
	assert.True(t, n.Local().ApproxEqual(want, 1e-12), "got %v", n.Local())

	m := math3d.Translate(math3d.V3(0, 5, 0))
	n.Matrix = &m
	assert.Equal(t, m, n.Local())
}

func TestPack(t *testing.T) {
	sc := testScene()
	quad := sc.Ranges["quad"]
	torus := sc.Ranges["torus"]
	assert.Equal(t, uint32(0), quad.First)
	assert.Equal(t, uint32(6), quad.Count)
	assert.Equal(t, uint32(6), torus.First)
	assert.Equal(t, uint32(8*4*6), torus.Count)
	assert.Equal(t, int(quad.Count+torus.Count), sc.VertexCount())
	assert.Len(t, sc.Vertices, sc.VertexCount()*VertexSize)
	assert.Equal(t, -1, quad.Texture)
}

func TestWalkOrderAndTransforms(t *testing.T) {
	sc := testScene()
	var order []int
	worlds := map[int]math3d.Mat4{}
	err := Walk(sc, math3d.Identity(), func(idx int, _ *Node, world math3d.Mat4) {
		order = append(order, idx)
		worlds[idx] = world
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
	assert.Equal(t, math3d.V3(1, 0, 0), worlds[2].Translation())
	assert.InDelta(t, 2, worlds[2][0], 1e-12)
}

func TestWalkCycle(t *testing.T) {
	sc := testScene()
	sc.Nodes[2].Children = []int{1}

	visits := 0
	err := Walk(sc, math3d.Identity(), func(int, *Node, math3d.Mat4) { visits++ })
	assert.ErrorIs(t, err, ErrCycle)
	assert.Equal(t, 4, visits)

	assert.ErrorIs(t, Validate(sc), ErrCycle)
}

func TestPackRenamesSeparatedDuplicates(t *testing.T) {
	sc := &Scene{}
	first := Plane(1)
	first.Name = "part"
	second := Plane(2)
	second.Name = "part"
	sc.Meshes = []Mesh{first, Torus(1, 0.25, 8, 4), second}
	a := NewNode("a")
	a.Mesh = 0
	b := NewNode("b")
	b.Mesh = 2
	sc.Nodes = []Node{a, b}
	sc.Roots = []int{0, 1}
	sc.Pack()

	require.Len(t, sc.Ranges, 3)
	assert.Equal(t, "part", sc.Meshes[0].Name)
	assert.Equal(t, "part.2", sc.Meshes[2].Name)
	assert.Equal(t, uint32(0), sc.Ranges["part"].First)
	assert.Equal(t, uint32(6), sc.Ranges["part"].Count)
	assert.Equal(t, uint32(6+8*4*6), sc.Ranges["part.2"].First)
	assert.Equal(t, uint32(6), sc.Ranges["part.2"].Count)

	var bld Builder
	insts := bld.Build(sc, math3d.Identity())
	require.NoError(t, bld.Err())
	require.Len(t, insts, 2)
	assert.Equal(t, uint32(0), insts[0].First)
	assert.Equal(t, uint32(6+8*4*6), insts[1].First)
}

func TestSharedChildIsVisitedPerParent(t *testing.T) {
	sc := &Scene{Name: "diamond"}
	a := NewNode("a")
	a.Translation = math3d.V3(-1, 0, 0)
	a.Children = []int{2}
	b := NewNode("b")
	b.Translation = math3d.V3(1, 0, 0)
	b.Children = []int{2}
	c := NewNode("c")
	c.Mesh = 0
	sc.Nodes = []Node{a, b, c}
	sc.Roots = []int{0, 1}
	sc.Meshes = []Mesh{Plane(1)}
	sc.Pack()
	require.NoError(t, Validate(sc))

	var order []int
	require.NoError(t, Walk(sc, math3d.Identity(), func(idx int, _ *Node, _ math3d.Mat4) {
		order = append(order, idx)
	}))
	assert.Equal(t, []int{0, 2, 1, 2}, order)

	var bld Builder
	inst := bld.Build(sc, math3d.Identity())
	require.NoError(t, bld.Err())
	require.Len(t, inst, 2)
	assert.Equal(t, math3d.V3(-1, 0, 0), inst[0].Transform.WorldFromLocal.Translation())
	assert.Equal(t, math3d.V3(1, 0, 0), inst[1].Transform.WorldFromLocal.Translation())
}

func TestValidate(t *testing.T) {
	sc := testScene()
	require.NoError(t, Validate(sc))

	sc.Nodes[1].Children = append(sc.Nodes[1].Children, 99)
	assert.ErrorIs(t, Validate(sc), ErrBadNode)

	sc = testScene()
	sc.Nodes[3].Camera = 0
	assert.ErrorIs(t, Validate(sc), ErrBadNode)
}

func TestBuildSkipsMissingMesh(t *testing.T) {
	sc := testScene()
	delete(sc.Ranges, "quad")

	var b Builder
	inst := b.Build(sc, math3d.Identity())
	require.NoError(t, b.Err())
	require.Len(t, inst, 1, "only the torus under the skipped node remains")
	assert.Equal(t, sc.Ranges["torus"].First, inst[0].First)
}

func TestBuildTransforms(t *testing.T) {
	sc := testScene()
	b := Builder{Base: 100}
	clip := math3d.PerspectiveZO(math.Pi/3, 1, 0.1, 100)
	inst := b.Build(sc, clip)
	require.Len(t, inst, 3)

	a := inst[0]
	world := math3d.Translate(math3d.V3(1, 0, 0)).Mul(math3d.Scale(math3d.V3(2, 1, 1)))
	assert.True(t, a.Transform.WorldFromLocal.ApproxEqual(world, 1e-12))
	assert.True(t, a.Transform.ClipFromLocal.ApproxEqual(clip.Mul(world), 1e-12))
	assert.InDelta(t, 0.5, a.Transform.WorldFromLocalNormal[0], 1e-12)
	assert.Equal(t, uint32(100), a.First)
	assert.Equal(t, uint32(106), inst[1].First)

	assert.InDelta(t, 0, a.Bounds.Min.X, 1e-12)
	assert.InDelta(t, 2, a.Bounds.Max.X, 1e-12)

	again := b.Build(sc, clip)
	assert.Same(t, &inst[0], &again[0], "output slice is reused")
}

func TestStaticInstance(t *testing.T) {
	r := VertexRange{First: 3, Count: 6, Max: math3d.V3(1, 1, 1), Texture: 1}
	world := math3d.RotateZ(0.5)
	inst := StaticInstance(r, world, math3d.Identity())
	assert.Equal(t, world, inst.Transform.WorldFromLocalNormal)
	assert.Equal(t, 1, inst.Texture)
}

func TestCameras(t *testing.T) {
	sc := testScene()
	sc.Cameras = []Camera{{Name: "main", VFov: 1, Near: 0.1, Far: 10}}
	sc.Nodes[2].Camera = 0

	cams, err := CollectCameras(sc)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, math3d.V3(1, 0, 0), cams[0].WorldFromCamera.Translation())

	i, err := FindCamera(cams, "main")
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	_, err = FindCamera(cams, "missing")
	assert.ErrorIs(t, err, ErrCameraNotFound)
}

func TestFprint(t *testing.T) {
	sc := testScene()
	sc.Meshes = append(sc.Meshes, Mesh{Name: "broken", Err: ErrMalformedAccessor})

	var buf bytes.Buffer
	require.NoError(t, Fprint(&buf, sc))
	out := buf.String()
	assert.Contains(t, out, `scene "test": 4 nodes, 1 roots`)
	assert.Contains(t, out, "    [1] a mesh=quad\n")
	assert.Contains(t, out, "      [2] b mesh=torus\n")
	assert.Contains(t, out, "broken: skipped")
}

func TestTorusNormalsAreUnit(t *testing.T) {
	m := Torus(1, 0.3, 12, 4)
	for _, v := range m.Vertices {
		assert.InDelta(t, 1, v.Normal.Len(), 1e-9)
	}
	assert.InDelta(t, 1.3, m.BoundsMax.X, 1e-9)
	assert.InDelta(t, 0.3, m.BoundsMax.Z, 1e-9)
}

func TestVertexBytes(t *testing.T) {
	v := Vertex{Position: math3d.V3(1, 2, 3), UV: math3d.V2(0.5, 0.25)}
	b := v.AppendBytes(nil)
	require.Len(t, b, VertexSize)
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(b[4:])))
	assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(b[44:])))
}
