package frame

import (
	"github.com/taigrr/lumen/pkg/config"
	"github.com/taigrr/lumen/pkg/math3d"
)

// WorldSize is the packed size of the world uniform: four vec4 slots.
const WorldSize = 64

// CameraSize is the packed size of the camera uniform: one mat4.
const CameraSize = 64

func vec(a [3]float64) math3d.Vec3 {
	return math3d.V3(a[0], a[1], a[2])
}

// appendWorld appends the world uniform. Directions are normalized; each
// vec3 is padded to 16 bytes.
func appendWorld(dst []byte, l config.Lighting) []byte {
	dst = math3d.V4FromV3(vec(l.SkyDirection).Normalize(), 0).AppendFloat32(dst)
	dst = math3d.V4FromV3(vec(l.SkyEnergy), 0).AppendFloat32(dst)
	dst = math3d.V4FromV3(vec(l.SunDirection).Normalize(), 0).AppendFloat32(dst)
	return math3d.V4FromV3(vec(l.SunEnergy), 0).AppendFloat32(dst)
}
