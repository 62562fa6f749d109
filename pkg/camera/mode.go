package camera

import "github.com/taigrr/lumen/pkg/math3d"

// Mode is the active camera: SceneMode, FreeMode or DebugMode.
type Mode interface {
	String() string
	isMode()
}

// SceneMode views through the scene camera at Index.
type SceneMode struct {
	Index int
}

// FreeMode views through a user orbit camera.
type FreeMode struct {
	Camera *Orbit
}

// DebugMode views through a second orbit camera while culling stays
// frozen at the matrix captured on entry.
type DebugMode struct {
	Camera  *Orbit
	Culling math3d.Mat4
}

func (SceneMode) isMode() {}
func (FreeMode) isMode()  {}
func (DebugMode) isMode() {}

func (SceneMode) String() string { return "scene" }
func (FreeMode) String() string  { return "free" }
func (DebugMode) String() string { return "debug" }
