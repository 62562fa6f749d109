package scene

import (
	"fmt"

	"github.com/taigrr/lumen/pkg/math3d"
)

// SceneCamera is a camera placed in the world by its node.
type SceneCamera struct {
	Name            string
	Camera          *Camera
	WorldFromCamera math3d.Mat4
}

// CollectCameras returns every camera attached to a reachable node, in
// traversal order. Nodes are named after their camera when the camera has
// no name.
func CollectCameras(sc *Scene) ([]SceneCamera, error) {
	var cams []SceneCamera
	err := Walk(sc, math3d.Identity(), func(_ int, n *Node, world math3d.Mat4) {
		if n.Camera < 0 || n.Camera >= len(sc.Cameras) {
			return
		}
		c := &sc.Cameras[n.Camera]
		name := c.Name
		if name == "" {
			name = n.Name
		}
		cams = append(cams, SceneCamera{Name: name, Camera: c, WorldFromCamera: world})
	})
	return cams, err
}

// FindCamera returns the index of the camera called name.
func FindCamera(cams []SceneCamera, name string) (int, error) {
	for i, c := range cams {
		if c.Name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrCameraNotFound, name)
}
