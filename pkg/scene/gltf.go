package scene

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/lumen/pkg/logging"
	"github.com/taigrr/lumen/pkg/math3d"
)

// Load reads a glTF or GLB file.
func Load(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	sc, err := FromDocument(doc, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = filepath.Base(path)
	}
	return sc, nil
}

// FromDocument converts a decoded glTF document. dir resolves relative
// image URIs. Meshes with missing attributes or malformed data are logged
// and left without vertices; a broken hierarchy is an error.
func FromDocument(doc *gltf.Document, dir string) (*Scene, error) {
	sc := &Scene{}
	log := logging.Logger()

	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil {
			idx = *doc.Scene
		}
		if idx < 0 || idx >= len(doc.Scenes) {
			return nil, fmt.Errorf("default scene %d of %d: %w", idx, len(doc.Scenes), ErrBadNode)
		}
		sc.Name = doc.Scenes[idx].Name
		sc.Roots = append(sc.Roots, doc.Scenes[idx].Nodes...)
	}

	for _, n := range doc.Nodes {
		sc.Nodes = append(sc.Nodes, convertNode(n))
	}
	cameras := make([]int, len(doc.Cameras))
	for i, c := range doc.Cameras {
		cam, ok := convertCamera(c)
		if !ok {
			log.Warn("skipping non-perspective camera", "camera", i, "name", c.Name)
			cameras[i] = -1
			continue
		}
		cameras[i] = len(sc.Cameras)
		sc.Cameras = append(sc.Cameras, cam)
	}
	for i := range sc.Nodes {
		if c := sc.Nodes[i].Camera; c >= 0 && c < len(cameras) {
			sc.Nodes[i].Camera = cameras[c]
		}
	}
	for _, m := range doc.Materials {
		sc.Materials = append(sc.Materials, loadMaterial(doc, m, dir))
	}
	for i, m := range doc.Meshes {
		mesh := Mesh{Name: m.Name, Material: -1}
		if mesh.Name == "" {
			mesh.Name = fmt.Sprintf("mesh%d", i)
		}
		if err := readMesh(doc, m, &mesh); err != nil {
			log.Warn("skipping mesh", "mesh", mesh.Name, "err", err)
			mesh.Vertices = nil
			mesh.Err = err
		}
		mesh.CalculateBounds()
		sc.Meshes = append(sc.Meshes, mesh)
	}

	if err := Validate(sc); err != nil {
		return nil, err
	}
	sc.Pack()
	return sc, nil
}

func convertNode(n *gltf.Node) Node {
	node := NewNode(n.Name)
	if n.Mesh != nil {
		node.Mesh = *n.Mesh
	}
	if n.Camera != nil {
		node.Camera = *n.Camera
	}
	node.Children = append(node.Children, n.Children...)

	if m := math3d.Mat4(n.Matrix); m != (math3d.Mat4{}) && m != math3d.Identity() {
		node.Matrix = &m
		return node
	}
	node.Translation = math3d.V3(n.Translation[0], n.Translation[1], n.Translation[2])
	if r := n.Rotation; r != [4]float64{} {
		node.Rotation = math3d.Quat{X: r[0], Y: r[1], Z: r[2], W: r[3]}
	}
	if s := n.Scale; s != [3]float64{} {
		node.Scale = math3d.V3(s[0], s[1], s[2])
	}
	return node
}

func convertCamera(c *gltf.Camera) (Camera, bool) {
	cam := Camera{Name: c.Name, VFov: math.Pi / 3, Near: 0.1, Far: 1000}
	p := c.Perspective
	if p == nil {
		return cam, false
	}
	cam.VFov = p.Yfov
	cam.Near = p.Znear
	if p.Zfar != nil {
		cam.Far = *p.Zfar
	}
	if p.AspectRatio != nil {
		cam.AspectRatio = *p.AspectRatio
	}
	return cam, true
}

func loadMaterial(doc *gltf.Document, m *gltf.Material, dir string) Material {
	mat := Material{Name: m.Name, BaseColor: [4]float64{1, 1, 1, 1}}
	pbr := m.PBRMetallicRoughness
	if pbr == nil {
		return mat
	}
	if pbr.BaseColorFactor != nil {
		mat.BaseColor = *pbr.BaseColorFactor
	}
	if pbr.BaseColorTexture == nil {
		return mat
	}
	img, err := loadTextureImage(doc, pbr.BaseColorTexture.Index, dir)
	if err != nil {
		logging.Logger().Warn("material texture unavailable", "material", m.Name, "err", err)
		return mat
	}
	mat.Image = img
	return mat
}

func loadTextureImage(doc *gltf.Document, texture int, dir string) (image.Image, error) {
	if texture < 0 || texture >= len(doc.Textures) || doc.Textures[texture].Source == nil {
		return nil, fmt.Errorf("texture %d: %w", texture, ErrBadNode)
	}
	src := *doc.Textures[texture].Source
	if src < 0 || src >= len(doc.Images) {
		return nil, fmt.Errorf("image %d: %w", src, ErrBadNode)
	}
	im := doc.Images[src]

	var data []byte
	switch {
	case im.BufferView != nil:
		view, err := bufferView(doc, *im.BufferView)
		if err != nil {
			return nil, err
		}
		data = view
	case strings.HasPrefix(im.URI, "data:"):
		return nil, fmt.Errorf("image %d: data URIs are not supported", src)
	case im.URI != "":
		b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(im.URI)))
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		data = b
	default:
		return nil, fmt.Errorf("image %d has no source", src)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image %d: %w", src, err)
	}
	return img, nil
}

// readMesh expands every triangle primitive of m into mesh.
func readMesh(doc *gltf.Document, m *gltf.Mesh, mesh *Mesh) error {
	for pi, prim := range m.Primitives {
		if prim.Mode != gltf.PrimitiveTriangles && prim.Mode != 0 {
			// Skip non-triangle primitives (lines, points, etc)
			continue
		}
		if err := readPrimitive(doc, prim, mesh); err != nil {
			return fmt.Errorf("primitive %d: %w", pi, err)
		}
		if prim.Material != nil && mesh.Material < 0 {
			mesh.Material = *prim.Material
		}
	}
	return nil
}

func readPrimitive(doc *gltf.Document, prim *gltf.Primitive, mesh *Mesh) error {
	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return fmt.Errorf("%w: POSITION", ErrMissingAttribute)
	}
	normIdx, ok := prim.Attributes[gltf.NORMAL]
	if !ok {
		return fmt.Errorf("%w: NORMAL", ErrMissingAttribute)
	}

	positions, err := readFloats(doc, posIdx, gltf.AccessorVec3, 3)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	count := len(positions) / 3
	normals, err := readFloats(doc, normIdx, gltf.AccessorVec3, 3)
	if err != nil {
		return fmt.Errorf("read normals: %w", err)
	}
	if len(normals) != len(positions) {
		return fmt.Errorf("%w: %d normals for %d positions", ErrMalformedAccessor, len(normals)/3, count)
	}

	var tangents, uvs []float64
	if idx, ok := prim.Attributes[gltf.TANGENT]; ok {
		if tangents, err = readFloats(doc, idx, gltf.AccessorVec4, 4); err != nil {
			return fmt.Errorf("read tangents: %w", err)
		}
		if len(tangents) != count*4 {
			return fmt.Errorf("%w: %d tangents for %d positions", ErrMalformedAccessor, len(tangents)/4, count)
		}
	}
	if idx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		if uvs, err = readFloats(doc, idx, gltf.AccessorVec2, 2); err != nil {
			return fmt.Errorf("read uvs: %w", err)
		}
		if len(uvs) != count*2 {
			return fmt.Errorf("%w: %d uvs for %d positions", ErrMalformedAccessor, len(uvs)/2, count)
		}
	}

	vertex := func(i int) Vertex {
		v := Vertex{
			Position: math3d.V3(positions[3*i], positions[3*i+1], positions[3*i+2]),
			Normal:   math3d.V3(normals[3*i], normals[3*i+1], normals[3*i+2]),
			Tangent:  defaultTangent,
		}
		if tangents != nil {
			v.Tangent = math3d.V4(tangents[4*i], tangents[4*i+1], tangents[4*i+2], tangents[4*i+3])
		}
		if uvs != nil {
			v.UV = math3d.V2(uvs[2*i], uvs[2*i+1])
		}
		return v
	}

	if prim.Indices == nil {
		for i := 0; i+2 < count; i += 3 {
			mesh.Vertices = append(mesh.Vertices, vertex(i), vertex(i+1), vertex(i+2))
		}
		return nil
	}

	indices, err := readIndices(doc, *prim.Indices, count)
	if err != nil {
		return fmt.Errorf("read indices: %w", err)
	}
	for i := 0; i+2 < len(indices); i += 3 {
		mesh.Vertices = append(mesh.Vertices, vertex(indices[i]), vertex(indices[i+1]), vertex(indices[i+2]))
	}
	return nil
}

// bufferView returns the bytes of a buffer view after checking that it
// lies inside its buffer.
func bufferView(doc *gltf.Document, idx int) ([]byte, error) {
	if idx < 0 || idx >= len(doc.BufferViews) {
		return nil, fmt.Errorf("%w: buffer view %d of %d", ErrMalformedAccessor, idx, len(doc.BufferViews))
	}
	view := doc.BufferViews[idx]
	if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("%w: buffer %d of %d", ErrMalformedAccessor, view.Buffer, len(doc.Buffers))
	}
	data := doc.Buffers[view.Buffer].Data
	if len(data) == 0 {
		return nil, fmt.Errorf("buffer %d: %w", view.Buffer, ErrNoData)
	}
	if view.ByteOffset < 0 || view.ByteLength < 0 || view.ByteOffset+view.ByteLength > len(data) {
		return nil, fmt.Errorf("%w: view [%d, %d) outside %d byte buffer",
			ErrMalformedAccessor, view.ByteOffset, view.ByteOffset+view.ByteLength, len(data))
	}
	return data[view.ByteOffset : view.ByteOffset+view.ByteLength], nil
}

// accessorData resolves an accessor to its view bytes, start offset and
// stride, bounds checking every element it addresses.
func accessorData(doc *gltf.Document, idx, elemSize int) (acc *gltf.Accessor, data []byte, stride int, err error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, nil, 0, fmt.Errorf("%w: accessor %d of %d", ErrMalformedAccessor, idx, len(doc.Accessors))
	}
	acc = doc.Accessors[idx]
	if acc.BufferView == nil {
		return nil, nil, 0, fmt.Errorf("%w: accessor %d has no buffer view", ErrMalformedAccessor, idx)
	}
	data, err = bufferView(doc, *acc.BufferView)
	if err != nil {
		return nil, nil, 0, err
	}
	stride = doc.BufferViews[*acc.BufferView].ByteStride
	if stride == 0 {
		stride = elemSize
	}
	if stride < elemSize {
		return nil, nil, 0, fmt.Errorf("%w: accessor %d stride %d below element size %d", ErrMalformedAccessor, idx, stride, elemSize)
	}
	if acc.Count < 0 || acc.ByteOffset < 0 {
		return nil, nil, 0, fmt.Errorf("%w: accessor %d", ErrMalformedAccessor, idx)
	}
	if acc.Count > 0 {
		if end := acc.ByteOffset + (acc.Count-1)*stride + elemSize; end > len(data) {
			return nil, nil, 0, fmt.Errorf("%w: accessor %d reads to byte %d of a %d byte view",
				ErrMalformedAccessor, idx, end, len(data))
		}
	}
	return acc, data[acc.ByteOffset:], stride, nil
}

// readFloats reads a float accessor of the given type as comps values per
// element.
func readFloats(doc *gltf.Document, idx int, typ gltf.AccessorType, comps int) ([]float64, error) {
	if idx >= 0 && idx < len(doc.Accessors) {
		acc := doc.Accessors[idx]
		if acc.Type != typ || acc.ComponentType != gltf.ComponentFloat {
			return nil, fmt.Errorf("%w: accessor %d is %v/%v, want %v of floats", ErrMalformedAccessor, idx, acc.Type, acc.ComponentType, typ)
		}
	}
	acc, data, stride, err := accessorData(doc, idx, 4*comps)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, acc.Count*comps)
	for i := range acc.Count {
		for j := range comps {
			v := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*stride+4*j:])))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: accessor %d element %d is not finite", ErrMalformedAccessor, idx, i)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// readIndices reads a scalar index accessor, requiring every index to be
// below vertexCount.
func readIndices(doc *gltf.Document, idx, vertexCount int) ([]int, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("%w: accessor %d of %d", ErrMalformedAccessor, idx, len(doc.Accessors))
	}
	var size int
	switch doc.Accessors[idx].ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("%w: index component type %v", ErrMalformedAccessor, doc.Accessors[idx].ComponentType)
	}
	acc, data, stride, err := accessorData(doc, idx, size)
	if err != nil {
		return nil, err
	}
	out := make([]int, acc.Count)
	for i := range acc.Count {
		b := data[i*stride:]
		switch size {
		case 1:
			out[i] = int(b[0])
		case 2:
			out[i] = int(binary.LittleEndian.Uint16(b))
		case 4:
			out[i] = int(binary.LittleEndian.Uint32(b))
		}
		if out[i] >= vertexCount {
			return nil, fmt.Errorf("%w: index %d is %d, only %d vertices", ErrMalformedAccessor, i, out[i], vertexCount)
		}
	}
	return out, nil
}
