// Package camera implements the viewer's camera modes and the pointer
// interaction that drives the orbit cameras.
package camera

import (
	"math"

	"github.com/taigrr/lumen/pkg/math3d"
)

// Orbit is a camera circling a target point in a z-up world.
type Orbit struct {
	Target    math3d.Vec3
	Radius    float64
	Azimuth   float64
	Elevation float64

	// FOV is the vertical field of view in radians.
	FOV  float64
	Near float64
	Far  float64
}

// DefaultOrbit returns an orbit two units from the origin, 45 degrees up.
func DefaultOrbit() Orbit {
	return Orbit{
		Radius:    2,
		Elevation: math.Pi / 4,
		FOV:       math.Pi / 3,
		Near:      0.1,
		Far:       1000,
	}
}

// View returns the camera-from-world matrix.
func (o *Orbit) View() math3d.Mat4 {
	return math3d.Orbit(o.Target, o.Azimuth, o.Elevation, o.Radius)
}

// Projection returns the clip-from-camera matrix for aspect = width/height.
func (o *Orbit) Projection(aspect float64) math3d.Mat4 {
	return math3d.PerspectiveZO(o.FOV, aspect, o.Near, o.Far)
}

// ClipFromWorld returns Projection(aspect) * View().
func (o *Orbit) ClipFromWorld(aspect float64) math3d.Mat4 {
	return o.Projection(aspect).Mul(o.View())
}

// ClampRadius limits r to [0.5 * Near, 2 * Far].
func (o *Orbit) ClampRadius(r float64) float64 {
	return min(max(r, 0.5*o.Near), 2*o.Far)
}

// Zoom scales the radius by 1.1^-delta; positive delta moves closer.
func (o *Orbit) Zoom(delta float64) {
	o.Radius = o.ClampRadius(o.Radius * math.Pow(1.1, -delta))
}

// Wrap reduces azimuth and elevation to [-pi, pi].
func (o *Orbit) Wrap() {
	o.Azimuth = wrapAngle(o.Azimuth)
	o.Elevation = wrapAngle(o.Elevation)
}

func wrapAngle(a float64) float64 {
	return a - math.Round(a/(2*math.Pi))*2*math.Pi
}
