package gpu

import (
	"github.com/chewxy/math32"

	hmath "github.com/Faultbox/hsync/pkg/math"
)

// Camera orbits a center point.
type Camera struct {
	Center   hmath.Vec3
	Distance float32
	Pitch    float32 // radians above the horizon
	Yaw      float32 // radians around +Y

	FovY      float32
	MinPitch  float32
	MaxPitch  float32
	DragSpeed float32
	ZoomSpeed float32
}

// NewCamera returns a camera looking at the origin from slightly above.
func NewCamera() *Camera {
	return &Camera{
		Distance:  10,
		Pitch:     0.5,
		FovY:      math32.Pi / 4,
		MinPitch:  -1.5,
		MaxPitch:  1.5,
		DragSpeed: 0.005,
		ZoomSpeed: 0.1,
	}
}

// Position returns the eye position.
func (c *Camera) Position() hmath.Vec3 {
	cp := math32.Cos(c.Pitch)
	return c.Center.Add(hmath.Vec3{
		X: c.Distance * cp * math32.Sin(c.Yaw),
		Y: c.Distance * math32.Sin(c.Pitch),
		Z: c.Distance * cp * math32.Cos(c.Yaw),
	})
}

// View returns the view matrix.
func (c *Camera) View() hmath.Mat4 {
	return hmath.LookAt(c.Position(), c.Center, hmath.Vec3{Y: 1})
}

// Projection returns the projection matrix for a viewport aspect ratio.
// The clip planes follow the orbit distance.
func (c *Camera) Projection(aspect float32) hmath.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	near := c.Distance * 0.01
	if near < 0.001 {
		near = 0.001
	}
	return hmath.Perspective(c.FovY, aspect, near, c.Distance*100)
}

// Drag rotates the camera by a mouse delta in pixels.
func (c *Camera) Drag(dx, dy float32) {
	c.Yaw -= dx * c.DragSpeed
	c.Pitch += dy * c.DragSpeed
	c.Pitch = clamp(c.Pitch, c.MinPitch, c.MaxPitch)
}

// Zoom moves the camera toward the center by wheel steps.
func (c *Camera) Zoom(steps float32) {
	c.Distance -= steps * c.Distance * c.ZoomSpeed
	if c.Distance < 0.01 {
		c.Distance = 0.01
	}
}

// Frame centers b and backs off until the bounding sphere fits the view.
// An empty box leaves the camera alone.
func (c *Camera) Frame(b hmath.Bounds) {
	if b.Empty() {
		return
	}
	c.Center = b.Center()
	r := b.Radius()
	if r == 0 {
		r = 1
	}
	c.Distance = r / math32.Sin(c.FovY/2)
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
