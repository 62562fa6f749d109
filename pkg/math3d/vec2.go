package math3d

// Vec2 represents a 2D vector, used for texture coordinates and pointer
// positions.
type Vec2 struct {
	X, Y float64
}

// V2 creates a new Vec2.
func V2(x, y float64) Vec2 {
	return Vec2{x, y}
}

// Sub returns the vector difference a - b.
func (a Vec2) Sub(b Vec2) Vec2 {
	return Vec2{a.X - b.X, a.Y - b.Y}
}

// AppendFloat32 appends the vector as two little-endian float32 values.
func (a Vec2) AppendFloat32(dst []byte) []byte {
	dst = appendF32(dst, a.X)
	return appendF32(dst, a.Y)
}
