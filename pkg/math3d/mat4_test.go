package math3d

import (
	"encoding/binary"
	"math"
	"testing"
)

const eps = 1e-9

func TestTRSColumnMajor(t *testing.T) {
	got := TRS(V3(1, 0, 0), IdentityQuat(), V3(2, 1, 1))
	want := Mat4{
		2, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		1, 0, 0, 1,
	}
	if !got.ApproxEqual(want, eps) {
		t.Errorf("TRS = %v, want %v", got, want)
	}
}

func TestQuatMat4(t *testing.T) {
	tests := []struct {
		name string
		q    Quat
		in   Vec3
		want Vec3
	}{
		{"identity", IdentityQuat(), V3(1, 2, 3), V3(1, 2, 3)},
		{"z quarter turn", QuatAxisAngle(V3(0, 0, 1), math.Pi/2), V3(1, 0, 0), V3(0, 1, 0)},
		{"x quarter turn", QuatAxisAngle(V3(1, 0, 0), math.Pi/2), V3(0, 1, 0), V3(0, 0, 1)},
		{"y half turn", QuatAxisAngle(V3(0, 1, 0), math.Pi), V3(1, 0, 0), V3(-1, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.q.Mat4().MulVec3Dir(tt.in)
			if got.Sub(tt.want).Len() > 1e-9 {
				t.Errorf("rotate %v = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuatNormalizeZero(t *testing.T) {
	if got := (Quat{}).Normalize(); got != IdentityQuat() {
		t.Errorf("zero quaternion normalized to %v, want identity", got)
	}
}

func TestInverse(t *testing.T) {
	m := TRS(V3(1, -2, 3), QuatAxisAngle(V3(1, 1, 0), 0.7), V3(2, 3, 0.5))
	if got := m.Mul(m.Inverse()); !got.ApproxEqual(Identity(), 1e-9) {
		t.Errorf("m * inverse(m) = %v, want identity", got)
	}
	if got := (Mat4{}).Inverse(); got != Identity() {
		t.Errorf("singular inverse = %v, want identity", got)
	}
}

func TestNormalMatrix(t *testing.T) {
	t.Run("non-uniform scale", func(t *testing.T) {
		got := Scale(V3(2, 1, 1)).NormalMatrix()
		want := Scale(V3(0.5, 1, 1))
		if !got.ApproxEqual(want, eps) {
			t.Errorf("NormalMatrix = %v, want %v", got, want)
		}
	})

	t.Run("matches inverse transpose", func(t *testing.T) {
		m := TRS(V3(4, 5, 6), QuatAxisAngle(V3(0, 1, 1), 1.1), V3(1, 2, 3))
		inv := m.Inverse()
		want := Identity()
		for r := range 3 {
			for c := range 3 {
				want[r+c*4] = inv.Get(c, r)
			}
		}
		if got := m.NormalMatrix(); !got.ApproxEqual(want, 1e-9) {
			t.Errorf("NormalMatrix = %v, want %v", got, want)
		}
	})

	t.Run("keeps normals perpendicular", func(t *testing.T) {
		m := Scale(V3(3, 1, 1)).Mul(QuatAxisAngle(V3(0, 0, 1), math.Pi/4).Mat4())
		tangent := V3(1, -1, 0)
		normal := V3(1, 1, 0)
		tw := m.MulVec3Dir(tangent)
		nw := m.NormalMatrix().MulVec3Dir(normal)
		if d := tw.Dot(nw); math.Abs(d) > 1e-9 {
			t.Errorf("transformed normal not perpendicular: dot = %v", d)
		}
	})
}

func TestPerspectiveZODepthRange(t *testing.T) {
	near, far := 0.1, 1000.0
	p := PerspectiveZO(math.Pi/3, 1.5, near, far)

	for _, tt := range []struct {
		z, want float64
	}{
		{-near, 0},
		{-far, 1},
	} {
		clip := p.MulVec4(V4(0, 0, tt.z, 1))
		if got := clip.Z / clip.W; math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("depth at z=%v = %v, want %v", tt.z, got, tt.want)
		}
	}

	// Up in view space maps to negative clip y.
	clip := p.MulVec4(V4(0, 1, -1, 1))
	if clip.Y >= 0 {
		t.Errorf("view +y mapped to clip y %v, want negative", clip.Y)
	}
}

func TestOrbit(t *testing.T) {
	target := V3(1, 2, 3)
	view := Orbit(target, 0.3, 0.4, 5)

	// The target sits straight ahead at the orbit radius.
	got := view.MulPoint(target)
	if got.Sub(V3(0, 0, -5)).Len() > 1e-9 {
		t.Errorf("target in camera space = %v, want (0, 0, -5)", got)
	}

	// Zero elevation keeps the up axis on world z.
	up := Orbit(Vec3{}, 1.0, 0, 2).Row(1)
	if up.Sub(V3(0, 0, 1)).Len() > 1e-9 {
		t.Errorf("up row = %v, want (0, 0, 1)", up)
	}
}

func TestAppendFloat32(t *testing.T) {
	m := Translate(V3(7, 8, 9))
	buf := m.AppendFloat32(nil)
	if len(buf) != 64 {
		t.Fatalf("len = %d, want 64", len(buf))
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[48:])); got != 7 {
		t.Errorf("element 12 = %v, want 7", got)
	}
}

func TestIsFinite(t *testing.T) {
	if !V3(1, 2, 3).IsFinite() {
		t.Error("finite vector reported non-finite")
	}
	if V3(1, math.NaN(), 3).IsFinite() {
		t.Error("NaN vector reported finite")
	}
	if V4(0, 0, math.Inf(1), 0).IsFinite() {
		t.Error("Inf vector reported finite")
	}
}
