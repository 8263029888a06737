package math

import (
	"testing"

	"github.com/chewxy/math32"
)

func near(a, b float32) bool {
	return math32.Abs(a-b) < 1e-5
}

func nearVec(a, b Vec3) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.Z, b.Z)
}

func TestVec3Cross(t *testing.T) {
	got := Vec3{1, 0, 0}.Cross(Vec3{0, 1, 0})
	if want := (Vec3{0, 0, 1}); got != want {
		t.Errorf("Cross() = %v, want %v", got, want)
	}
}

func TestVec3Lerp(t *testing.T) {
	tests := []struct {
		t    float32
		want Vec3
	}{
		{0, Vec3{0, 0, 0}},
		{0.25, Vec3{1, 2, -0.5}},
		{1, Vec3{4, 8, -2}},
	}
	for _, tt := range tests {
		got := Vec3{}.Lerp(Vec3{4, 8, -2}, tt.t)
		if !nearVec(got, tt.want) {
			t.Errorf("Lerp(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestVec3Normalize(t *testing.T) {
	if l := (Vec3{3, 4, 12}).Normalize().Length(); !near(l, 1) {
		t.Errorf("Normalize().Length() = %v, want 1", l)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("zero Normalize() = %v", got)
	}
}

func TestBounds(t *testing.T) {
	var b Bounds
	if !b.Empty() {
		t.Fatal("zero Bounds should be empty")
	}
	b.Extend(Vec3{1, -2, 0})
	b.Extend(Vec3{-1, 2, 4})
	if b.Min != (Vec3{-1, -2, 0}) || b.Max != (Vec3{1, 2, 4}) {
		t.Errorf("Bounds = %v..%v", b.Min, b.Max)
	}
	if c := b.Center(); c != (Vec3{0, 0, 2}) {
		t.Errorf("Center() = %v", c)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{0, 1, 0}, math32.Pi/2)
	got := q.Rotate(Vec3{1, 0, 0})
	if want := (Vec3{0, 0, -1}); !nearVec(got, want) {
		t.Errorf("Rotate() = %v, want %v", got, want)
	}
	if got := q.ToMat4().TransformPoint(Vec3{1, 0, 0}); !nearVec(got, Vec3{0, 0, -1}) {
		t.Errorf("ToMat4 rotate = %v", got)
	}
}

func TestQuatArrayRoundTrip(t *testing.T) {
	a := [4]float32{0.1, 0.2, 0.3, 0.9}
	if got := QuatOf(a).Array(); got != a {
		t.Errorf("Array() = %v, want %v", got, a)
	}
}

func TestComposeMatchesParts(t *testing.T) {
	pos := Vec3{10, 20, 30}
	rot := QuatFromAxisAngle(Vec3{0, 0, 1}, math32.Pi/2)
	scale := Vec3{2, 2, 2}
	m := Compose(pos, rot, scale)

	p := Vec3{1, 0, 0}
	want := rot.Rotate(p.Mul(scale)).Add(pos)
	if got := m.TransformPoint(p); !nearVec(got, want) {
		t.Errorf("Compose().TransformPoint() = %v, want %v", got, want)
	}
}

func TestMulIdentity(t *testing.T) {
	m := Compose(Vec3{1, 2, 3}, QuatIdentity(), Vec3{1, 1, 1})
	if got := m.Mul(Identity()); got != m {
		t.Errorf("M * I = %v, want %v", got, m)
	}
}

func TestLookAt(t *testing.T) {
	view := LookAt(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0})
	if got := view.TransformPoint(Vec3{}); !nearVec(got, Vec3{0, 0, -5}) {
		t.Errorf("origin in view space = %v, want (0,0,-5)", got)
	}
}
