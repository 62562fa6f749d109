package frame

import (
	"embed"
	"fmt"

	"github.com/taigrr/lumen/pkg/gpu"
	"github.com/taigrr/lumen/pkg/render"
	"github.com/taigrr/lumen/pkg/scene"
)

//go:embed shaders/*.wgsl
var shaders embed.FS

// Shader returns the WGSL source of the named program.
func Shader(name string) (string, error) {
	b, err := shaders.ReadFile("shaders/" + name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("shader %s: %w", name, err)
	}
	return string(b), nil
}

// Bind group layouts shared by the pipelines and the workspaces.
var (
	uniformLayout = []gpu.BindingKind{gpu.BindUniform}
	storageLayout = []gpu.BindingKind{gpu.BindStorage}
	textureLayout = []gpu.BindingKind{gpu.BindTexture}
)

var lineVertex = gpu.VertexLayout{
	Stride: render.LineVertexSize,
	Attrs: []gpu.VertexAttr{
		{Format: gpu.Float32x3, Offset: 0},
		{Format: gpu.Unorm8x4, Offset: 12},
	},
}

var objectVertex = gpu.VertexLayout{
	Stride: scene.VertexSize,
	Attrs: []gpu.VertexAttr{
		{Format: gpu.Float32x3, Offset: 0},
		{Format: gpu.Float32x3, Offset: 12},
		{Format: gpu.Float32x4, Offset: 24},
		{Format: gpu.Float32x2, Offset: 40},
	},
}

// pipelineDescs returns the descriptors of the background, lines and
// objects pipelines.
func pipelineDescs() ([3]gpu.PipelineDesc, error) {
	descs := [3]gpu.PipelineDesc{
		{
			Label:         "background",
			Program:       "background",
			Topology:      gpu.TriangleList,
			PushConstants: 4,
		},
		{
			Label:     "lines",
			Program:   "lines",
			Vertex:    &lineVertex,
			Topology:  gpu.LineList,
			Groups:    [][]gpu.BindingKind{uniformLayout},
			DepthTest: true,
		},
		{
			Label:     "objects",
			Program:   "objects",
			Vertex:    &objectVertex,
			Topology:  gpu.TriangleList,
			Groups:    [][]gpu.BindingKind{uniformLayout, storageLayout, textureLayout},
			DepthTest: true,
		},
	}
	for i := range descs {
		src, err := Shader(descs[i].Program)
		if err != nil {
			return descs, err
		}
		descs[i].Source = src
	}
	return descs, nil
}
