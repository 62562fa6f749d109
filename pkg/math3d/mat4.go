package math3d

import "math"

// Mat4 is a 4x4 matrix stored in column-major order, the layout uploaded
// to uniform and storage buffers.
//
// Memory layout (indices):
// | 0  4  8  12 |
// | 1  5  9  13 |
// | 2  6  10 14 |
// | 3  7  11 15 |
type Mat4 [16]float64

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate creates a translation matrix.
func Translate(v Vec3) Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		v.X, v.Y, v.Z, 1,
	}
}

// Scale creates a scaling matrix.
func Scale(v Vec3) Mat4 {
	return Mat4{
		v.X, 0, 0, 0,
		0, v.Y, 0, 0,
		0, 0, v.Z, 0,
		0, 0, 0, 1,
	}
}

// RotateZ creates a rotation matrix around the Z axis.
func RotateZ(angle float64) Mat4 {
	c, s := math.Cos(angle), math.Sin(angle)
	return Mat4{
		c, s, 0, 0,
		-s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// TRS composes translation, rotation and scale as T * R * S.
func TRS(t Vec3, r Quat, s Vec3) Mat4 {
	return Translate(t).Mul(r.Mat4()).Mul(Scale(s))
}

// PerspectiveZO creates a perspective projection for clip space with depth
// in [0, 1] and y pointing down, as Vulkan and WebGPU expect.
// vfov is the vertical field of view in radians and aspect is width/height.
func PerspectiveZO(vfov, aspect, near, far float64) Mat4 {
	e := 1.0 / math.Tan(vfov/2)
	a := aspect
	n, f := near, far
	return Mat4{
		e / a, 0, 0, 0,
		0, -e, 0, 0,
		0, 0, -0.5 - 0.5*(f+n)/(f-n), -1,
		0, 0, -(f * n) / (f - n), 0,
	}
}

// Orbit returns the camera-from-world matrix of a camera circling target
// at the given azimuth and elevation (radians) and distance. The world is
// z-up; azimuth is measured from +x toward +y.
func Orbit(target Vec3, azimuth, elevation, radius float64) Mat4 {
	ca, sa := math.Cos(azimuth), math.Sin(azimuth)
	ce, se := math.Cos(elevation), math.Sin(elevation)

	right := Vec3{-sa, ca, 0}
	up := Vec3{-se * ca, -se * sa, ce}
	out := Vec3{ce * ca, ce * sa, se}
	eye := target.Add(out.Scale(radius))

	return Mat4{
		right.X, up.X, out.X, 0,
		right.Y, up.Y, out.Y, 0,
		right.Z, up.Z, out.Z, 0,
		-right.Dot(eye), -up.Dot(eye), -out.Dot(eye), 1,
	}
}

// Mul multiplies two matrices: a * b.
//
//nolint:st1016 // a*b naming convention is clearer for matrix multiplication
func (a Mat4) Mul(b Mat4) Mat4 {
	var m Mat4
	for col := range 4 {
		for row := range 4 {
			var sum float64
			for k := range 4 {
				sum += a[row+k*4] * b[k+col*4]
			}
			m[row+col*4] = sum
		}
	}
	return m
}

// MulPoint transforms v as a point (w=1) without a perspective divide.
func (m Mat4) MulPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12],
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13],
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14],
	}
}

// MulVec3Dir transforms a Vec3 as a direction (w=0, no translation).
func (m Mat4) MulVec3Dir(v Vec3) Vec3 {
	return Vec3{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z,
	}
}

// MulVec4 transforms a Vec4.
func (m Mat4) MulVec4(v Vec4) Vec4 {
	return Vec4{
		m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// Inverse returns the inverse of m, or the identity if m is singular.
// The adjugate is built from the 2x2 minors of the top and bottom row
// pairs.
func (m Mat4) Inverse() Mat4 {
	e := func(r, c int) float64 { return m[r+c*4] }

	a0 := e(0, 0)*e(1, 1) - e(0, 1)*e(1, 0)
	a1 := e(0, 0)*e(1, 2) - e(0, 2)*e(1, 0)
	a2 := e(0, 0)*e(1, 3) - e(0, 3)*e(1, 0)
	a3 := e(0, 1)*e(1, 2) - e(0, 2)*e(1, 1)
	a4 := e(0, 1)*e(1, 3) - e(0, 3)*e(1, 1)
	a5 := e(0, 2)*e(1, 3) - e(0, 3)*e(1, 2)
	b0 := e(2, 0)*e(3, 1) - e(2, 1)*e(3, 0)
	b1 := e(2, 0)*e(3, 2) - e(2, 2)*e(3, 0)
	b2 := e(2, 0)*e(3, 3) - e(2, 3)*e(3, 0)
	b3 := e(2, 1)*e(3, 2) - e(2, 2)*e(3, 1)
	b4 := e(2, 1)*e(3, 3) - e(2, 3)*e(3, 1)
	b5 := e(2, 2)*e(3, 3) - e(2, 3)*e(3, 2)

	det := a0*b5 - a1*b4 + a2*b3 + a3*b2 - a4*b1 + a5*b0
	if det == 0 {
		return Identity()
	}

	adj := [4][4]float64{
		{
			e(1, 1)*b5 - e(1, 2)*b4 + e(1, 3)*b3,
			-e(0, 1)*b5 + e(0, 2)*b4 - e(0, 3)*b3,
			e(3, 1)*a5 - e(3, 2)*a4 + e(3, 3)*a3,
			-e(2, 1)*a5 + e(2, 2)*a4 - e(2, 3)*a3,
		},
		{
			-e(1, 0)*b5 + e(1, 2)*b2 - e(1, 3)*b1,
			e(0, 0)*b5 - e(0, 2)*b2 + e(0, 3)*b1,
			-e(3, 0)*a5 + e(3, 2)*a2 - e(3, 3)*a1,
			e(2, 0)*a5 - e(2, 2)*a2 + e(2, 3)*a1,
		},
		{
			e(1, 0)*b4 - e(1, 1)*b2 + e(1, 3)*b0,
			-e(0, 0)*b4 + e(0, 1)*b2 - e(0, 3)*b0,
			e(3, 0)*a4 - e(3, 1)*a2 + e(3, 3)*a0,
			-e(2, 0)*a4 + e(2, 1)*a2 - e(2, 3)*a0,
		},
		{
			-e(1, 0)*b3 + e(1, 1)*b1 - e(1, 2)*b0,
			e(0, 0)*b3 - e(0, 1)*b1 + e(0, 2)*b0,
			-e(3, 0)*a3 + e(3, 1)*a1 - e(3, 2)*a0,
			e(2, 0)*a3 - e(2, 1)*a1 + e(2, 2)*a0,
		},
	}
	var inv Mat4
	for r := range 4 {
		for c := range 4 {
			inv[r+c*4] = adj[r][c] / det
		}
	}
	return inv
}

// NormalMatrix returns the inverse-transpose of the upper 3x3 block,
// padded to a 4x4 with no translation. It is the matrix that keeps
// normals perpendicular to surfaces under non-uniform scale.
// Returns identity if the block is singular.
func (m Mat4) NormalMatrix() Mat4 {
	a00, a01, a02 := m[0], m[4], m[8]
	a10, a11, a12 := m[1], m[5], m[9]
	a20, a21, a22 := m[2], m[6], m[10]

	c00 := a11*a22 - a12*a21
	c01 := -(a10*a22 - a12*a20)
	c02 := a10*a21 - a11*a20
	c10 := -(a01*a22 - a02*a21)
	c11 := a00*a22 - a02*a20
	c12 := -(a00*a21 - a01*a20)
	c20 := a01*a12 - a02*a11
	c21 := -(a00*a12 - a02*a10)
	c22 := a00*a11 - a01*a10

	det := a00*c00 + a01*c01 + a02*c02
	if det == 0 {
		return Identity()
	}
	inv := 1 / det

	// The cofactor matrix divided by the determinant is the transposed inverse.
	return Mat4{
		c00 * inv, c10 * inv, c20 * inv, 0,
		c01 * inv, c11 * inv, c21 * inv, 0,
		c02 * inv, c12 * inv, c22 * inv, 0,
		0, 0, 0, 1,
	}
}

// Get returns the element at (row, col).
func (m Mat4) Get(row, col int) float64 {
	return m[row+col*4]
}

// Row returns the first three elements of a row. For a camera-from-world
// matrix rows 0 and 1 are the camera's right and up axes in world space.
func (m Mat4) Row(row int) Vec3 {
	return Vec3{m[row], m[row+4], m[row+8]}
}

// Translation extracts the translation component.
func (m Mat4) Translation() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// ApproxEqual reports whether every element differs by at most eps.
func (m Mat4) ApproxEqual(o Mat4, eps float64) bool {
	for i := range m {
		if math.Abs(m[i]-o[i]) > eps {
			return false
		}
	}
	return true
}

// AppendFloat32 appends the sixteen elements in column-major order as
// little-endian float32 values, 64 bytes in total.
func (m Mat4) AppendFloat32(dst []byte) []byte {
	for _, v := range m {
		dst = appendF32(dst, v)
	}
	return dst
}
