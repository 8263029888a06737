package gpu

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/hsync/internal/mirror"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

func TestBuildMeshInterleavesAndDefaults(t *testing.T) {
	g := mirror.NewGeometry("a")
	g.EnsureObjectCount(1)
	g.EnsureGeodeCount(0, 1)
	g.EnsureDrawableCount(0, 0, 1)
	d := g.Drawable(0, 0, 0)
	for i := 0; i < 4; i++ {
		d.AddVertex(hmath.Vec3{X: float32(i), Y: 1, Z: 2})
	}
	d.AddPrimitiveSet(mirror.Quads, 0, 4)

	m := buildMesh(d)
	require.Len(t, m.vertices, 4*Stride)
	assert.Equal(t, []float32{1, 1, 2, 0, 0, 0, 1, 1, 1, 1, 0, 0}, m.vertices[Stride:2*Stride],
		"missing normals are zero, missing colors white")
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, m.indices)
	assert.Equal(t, []drawCall{{kind: drawTriangles, first: 0, count: 6}}, m.draws)
}

func TestBuildMeshGroupsSets(t *testing.T) {
	d := &mirror.Drawable{}
	for i := 0; i < 12; i++ {
		d.AddVertex(hmath.Vec3{X: float32(i)})
		d.AddColor(hmath.RGBA(0.5, 0.5, 0.5, 0.25))
	}
	d.AddPrimitiveSet(mirror.Triangles, 0, 3)
	d.AddPrimitiveSet(mirror.LineStrip, 3, 3)
	d.AddPrimitiveSet(mirror.TriangleFan, 6, 4)
	d.AddPrimitiveSet(mirror.Points, 10, 2)

	m := buildMesh(d)
	assert.Equal(t, []drawCall{
		{kind: drawTriangles, first: 0, count: 9},
		{kind: drawLines, first: 9, count: 3},
		{kind: drawPoints, first: 12, count: 2},
	}, m.draws)
	assert.Equal(t, []uint32{0, 1, 2, 6, 7, 8, 6, 8, 9, 3, 4, 5, 10, 11}, m.indices)
	assert.Equal(t, float32(0.25), m.vertices[9])
}

func TestBuildMeshEmpty(t *testing.T) {
	m := buildMesh(&mirror.Drawable{})
	assert.Empty(t, m.vertices)
	assert.Empty(t, m.draws)
}

func TestCameraFrame(t *testing.T) {
	c := NewCamera()
	var b hmath.Bounds
	b.Extend(hmath.Vec3{X: -1, Y: -1, Z: -1})
	b.Extend(hmath.Vec3{X: 3, Y: 1, Z: 1})
	c.Frame(b)

	assert.Equal(t, hmath.Vec3{X: 1}, c.Center)
	// The bounding sphere touches the view cone.
	assert.InDelta(t, b.Radius()/math32.Sin(c.FovY/2), c.Distance, 1e-4)
	eye := c.Position()
	assert.InDelta(t, c.Distance, eye.Sub(c.Center).Length(), 1e-4)
}

func TestCameraFrameIgnoresEmptyBounds(t *testing.T) {
	c := NewCamera()
	c.Frame(hmath.Bounds{})
	assert.Equal(t, float32(10), c.Distance)
}

func TestCameraDragClampsPitch(t *testing.T) {
	c := NewCamera()
	c.Drag(0, 1e6)
	assert.Equal(t, c.MaxPitch, c.Pitch)
	c.Drag(0, -1e6)
	assert.Equal(t, c.MinPitch, c.Pitch)

	c.Drag(100, 0)
	assert.InDelta(t, -0.5, c.Yaw, 1e-6)
}

func TestCameraZoom(t *testing.T) {
	c := NewCamera()
	c.Zoom(1)
	assert.InDelta(t, 9, c.Distance, 1e-5)
	c.Zoom(1000)
	assert.Equal(t, float32(0.01), c.Distance)
}

func TestCameraLooksAtCenter(t *testing.T) {
	c := NewCamera()
	c.Center = hmath.Vec3{X: 2, Y: 1}
	v := c.View()
	p := v.TransformPoint(c.Center)
	assert.InDelta(t, 0, p.X, 1e-4)
	assert.InDelta(t, 0, p.Y, 1e-4)
	assert.InDelta(t, -c.Distance, p.Z, 1e-4)
}
