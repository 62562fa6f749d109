package scene

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatBytes(vs ...float32) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

// triangleDoc returns a document with one node holding a one-triangle
// mesh. Positions are accessor 0 and normals accessor 1.
func triangleDoc() *gltf.Document {
	pos := floatBytes(0, 0, 0, 1, 0, 0, 0, 1, 0)
	nrm := floatBytes(0, 0, 1, 0, 0, 1, 0, 0, 1)
	data := append(append([]byte(nil), pos...), nrm...)

	return &gltf.Document{
		Buffers: []*gltf.Buffer{{ByteLength: len(data), Data: data}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: len(pos)},
			{Buffer: 0, ByteOffset: len(pos), ByteLength: len(nrm)},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: gltf.Index(0), Count: 3, Type: gltf.AccessorVec3, ComponentType: gltf.ComponentFloat},
			{BufferView: gltf.Index(1), Count: 3, Type: gltf.AccessorVec3, ComponentType: gltf.ComponentFloat},
		},
		Meshes: []*gltf.Mesh{{
			Name: "tri",
			Primitives: []*gltf.Primitive{{
				Attributes: gltf.PrimitiveAttributes{gltf.POSITION: 0, gltf.NORMAL: 1},
			}},
		}},
		Nodes:  []*gltf.Node{{Name: "n", Mesh: gltf.Index(0)}},
		Scenes: []*gltf.Scene{{Name: "main", Nodes: []int{0}}},
		Scene:  gltf.Index(0),
	}
}

func TestFromDocument(t *testing.T) {
	sc, err := FromDocument(triangleDoc(), "")
	require.NoError(t, err)
	assert.Equal(t, "main", sc.Name)
	assert.Equal(t, []int{0}, sc.Roots)

	r, ok := sc.Ranges["tri"]
	require.True(t, ok)
	assert.Equal(t, uint32(3), r.Count)

	m := sc.Meshes[0]
	assert.Equal(t, defaultTangent, m.Vertices[0].Tangent)
	assert.Zero(t, m.Vertices[2].UV)
	assert.Equal(t, 1.0, m.BoundsMax.Y)

	n := sc.Nodes[0]
	assert.Nil(t, n.Matrix)
	assert.Equal(t, 1.0, n.Scale.X, "zero scale takes the default")
}

func TestIndexedPrimitive(t *testing.T) {
	doc := triangleDoc()
	idx := []byte{2, 1, 0}
	buf := doc.Buffers[0]
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{Buffer: 0, ByteOffset: len(buf.Data), ByteLength: 3})
	buf.Data = append(buf.Data, idx...)
	buf.ByteLength = len(buf.Data)
	doc.Accessors = append(doc.Accessors, &gltf.Accessor{
		BufferView: gltf.Index(2), Count: 3, Type: gltf.AccessorScalar, ComponentType: gltf.ComponentUbyte,
	})
	doc.Meshes[0].Primitives[0].Indices = gltf.Index(2)

	sc, err := FromDocument(doc, "")
	require.NoError(t, err)
	v := sc.Meshes[0].Vertices
	require.Len(t, v, 3)
	assert.Equal(t, 1.0, v[0].Position.Y)
	assert.Equal(t, 0.0, v[2].Position.X)

	buf.Data[len(buf.Data)-1] = 3
	sc, err = FromDocument(doc, "")
	require.NoError(t, err)
	assert.ErrorIs(t, sc.Meshes[0].Err, ErrMalformedAccessor)
}

func TestMalformedMeshesAreSkipped(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc *gltf.Document)
		want   error
	}{
		{"missing normal", func(doc *gltf.Document) {
			delete(doc.Meshes[0].Primitives[0].Attributes, gltf.NORMAL)
		}, ErrMissingAttribute},
		{"count past view", func(doc *gltf.Document) {
			doc.Accessors[0].Count = 4
		}, ErrMalformedAccessor},
		{"stride below element", func(doc *gltf.Document) {
			doc.BufferViews[0].ByteStride = 8
		}, ErrMalformedAccessor},
		{"view past buffer", func(doc *gltf.Document) {
			doc.BufferViews[1].ByteLength = 100
		}, ErrMalformedAccessor},
		{"not finite", func(doc *gltf.Document) {
			copy(doc.Buffers[0].Data[4:], floatBytes(float32(math.NaN())))
		}, ErrMalformedAccessor},
		{"wrong type", func(doc *gltf.Document) {
			doc.Accessors[1].Type = gltf.AccessorVec2
		}, ErrMalformedAccessor},
		{"unloaded buffer", func(doc *gltf.Document) {
			doc.Buffers[0].Data = nil
		}, ErrNoData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := triangleDoc()
			tt.mutate(doc)
			sc, err := FromDocument(doc, "")
			require.NoError(t, err)
			assert.ErrorIs(t, sc.Meshes[0].Err, tt.want)
			assert.Empty(t, sc.Meshes[0].Vertices)
			assert.NotContains(t, sc.Ranges, "tri")

			var b Builder
			assert.Empty(t, b.Build(sc, sc.Nodes[0].Local()))
		})
	}
}

func TestDocumentCycle(t *testing.T) {
	doc := triangleDoc()
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "loop", Children: []int{0}})
	doc.Nodes[0].Children = []int{1}
	_, err := FromDocument(doc, "")
	assert.ErrorIs(t, err, ErrCycle)
}

func TestDocumentCamera(t *testing.T) {
	doc := triangleDoc()
	far := 50.0
	doc.Cameras = []*gltf.Camera{{
		Name:        "cam",
		Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.5, Zfar: &far},
	}}
	doc.Nodes[0].Camera = gltf.Index(0)
	doc.Nodes[0].Translation = [3]float64{0, 0, 4}

	sc, err := FromDocument(doc, "")
	require.NoError(t, err)
	cams, err := CollectCameras(sc)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, 0.8, cams[0].Camera.VFov)
	assert.Equal(t, 50.0, cams[0].Camera.Far)
	assert.Zero(t, cams[0].Camera.AspectRatio)
	assert.Equal(t, 4.0, cams[0].WorldFromCamera.Translation().Z)
}

func TestOrthographicCameraIsSkipped(t *testing.T) {
	doc := triangleDoc()
	doc.Cameras = []*gltf.Camera{
		{Name: "ortho", Orthographic: &gltf.Orthographic{Xmag: 1, Ymag: 1, Znear: 0.1, Zfar: 10}},
		{Name: "persp", Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.5}},
	}
	doc.Nodes[0].Camera = gltf.Index(0)
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "eye", Camera: gltf.Index(1)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)

	sc, err := FromDocument(doc, "")
	require.NoError(t, err)
	require.Len(t, sc.Cameras, 1)
	assert.Equal(t, -1, sc.Nodes[0].Camera)
	assert.Equal(t, 0, sc.Nodes[1].Camera)

	cams, err := CollectCameras(sc)
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, "persp", cams[0].Camera.Name)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.glb")
	assert.Error(t, err)
}
