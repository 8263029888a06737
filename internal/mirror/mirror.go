// Package mirror holds the renderable copy of an asset hierarchy:
// Geometry (asset) -> Object -> Geode -> Drawable.
//
// Nodes are only ever appended. A node's index is its identity on the wire,
// so stale drawables are emptied in place instead of removed.
package mirror

import (
	"fmt"

	hmath "github.com/Faultbox/hsync/pkg/math"
)

// Mode is the topology of a primitive set.
type Mode uint8

const (
	Triangles Mode = iota
	Quads
	TriangleFan
	LineStrip
	Points
)

func (m Mode) String() string {
	switch m {
	case Triangles:
		return "triangles"
	case Quads:
		return "quads"
	case TriangleFan:
		return "fan"
	case LineStrip:
		return "linestrip"
	case Points:
		return "points"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m <= Points }

// PrimitiveSet is one draw range over a drawable's vertex buffers.
type PrimitiveSet struct {
	Mode  Mode
	Start int32
	Count int32
}

// Indices expands the set into indices over the vertex buffers. Triangles,
// quads and fans become a triangle list; strips and points are sequential.
// Incomplete trailing faces are dropped.
func (s PrimitiveSet) Indices() []uint32 {
	start, n := uint32(s.Start), int(s.Count)
	switch s.Mode {
	case Triangles:
		return sequence(start, n-n%3)
	case Quads:
		idx := make([]uint32, 0, n/4*6)
		for q := 0; q+4 <= n; q += 4 {
			a := start + uint32(q)
			idx = append(idx, a, a+1, a+2, a, a+2, a+3)
		}
		return idx
	case TriangleFan:
		if n < 3 {
			return nil
		}
		idx := make([]uint32, 0, (n-2)*3)
		for i := 1; i+1 < n; i++ {
			idx = append(idx, start, start+uint32(i), start+uint32(i+1))
		}
		return idx
	default:
		return sequence(start, n)
	}
}

// Triangulated reports whether Indices yields a triangle list.
func (m Mode) Triangulated() bool { return m <= TriangleFan }

func sequence(start uint32, n int) []uint32 {
	if n <= 0 {
		return nil
	}
	idx := make([]uint32, n)
	for i := range idx {
		idx[i] = start + uint32(i)
	}
	return idx
}

// NoMaterial is the material id of a drawable without a material.
const NoMaterial int32 = -1

// Drawable owns the buffers of one part.
type Drawable struct {
	Vertices []hmath.Vec3
	Normals  []hmath.Vec3
	Colors   []hmath.Vec4
	UVs      []hmath.Vec2
	Sets     []PrimitiveSet

	Material    int32
	Transparent bool

	touched  bool
	revision uint64
}

func newDrawable() *Drawable {
	return &Drawable{Material: NoMaterial}
}

// AddVertex appends a position and returns its index.
func (d *Drawable) AddVertex(v hmath.Vec3) int {
	d.touched = true
	d.Vertices = append(d.Vertices, v)
	return len(d.Vertices) - 1
}

// AddNormal appends a normal and returns its index.
func (d *Drawable) AddNormal(n hmath.Vec3) int {
	d.touched = true
	d.Normals = append(d.Normals, n)
	return len(d.Normals) - 1
}

// AddColor appends a color and returns its index.
func (d *Drawable) AddColor(c hmath.Vec4) int {
	d.touched = true
	d.Colors = append(d.Colors, c)
	return len(d.Colors) - 1
}

// AddUV appends a texture coordinate and returns its index.
func (d *Drawable) AddUV(uv hmath.Vec2) int {
	d.touched = true
	d.UVs = append(d.UVs, uv)
	return len(d.UVs) - 1
}

// AddPrimitiveSet appends a draw range.
func (d *Drawable) AddPrimitiveSet(mode Mode, start, count int) {
	d.touched = true
	d.Sets = append(d.Sets, PrimitiveSet{Mode: mode, Start: int32(start), Count: int32(count)})
}

// Clear empties every buffer and drops the primitive sets, keeping capacity.
func (d *Drawable) Clear() {
	d.touched = true
	d.Vertices = d.Vertices[:0]
	d.Normals = d.Normals[:0]
	d.Colors = d.Colors[:0]
	d.UVs = d.UVs[:0]
	d.Sets = d.Sets[:0]
	d.Material = NoMaterial
	d.Transparent = false
}

// Revision increases every time Dirty publishes a change to this drawable.
// GPU consumers compare it with the revision they last uploaded.
func (d *Drawable) Revision() uint64 { return d.revision }

// CheckLockstep verifies that every per-vertex buffer is either empty or as
// long as the vertex buffer.
func (d *Drawable) CheckLockstep() error {
	n := len(d.Vertices)
	check := func(name string, l int) error {
		if l != 0 && l != n {
			return fmt.Errorf("%s buffer has %d entries for %d vertices", name, l, n)
		}
		return nil
	}
	if err := check("normal", len(d.Normals)); err != nil {
		return err
	}
	if err := check("color", len(d.Colors)); err != nil {
		return err
	}
	return check("uv", len(d.UVs))
}

// Geode groups the drawables of one geometry node.
type Geode struct {
	Changed   bool
	Drawables []*Drawable
}

// Transform is an object's decomposed transform.
type Transform struct {
	Position hmath.Vec3
	Rotation hmath.Quat
	Scale    hmath.Vec3
}

// IdentityTransform returns the transform of a new object.
func IdentityTransform() Transform {
	return Transform{Rotation: hmath.QuatIdentity(), Scale: hmath.Vec3{X: 1, Y: 1, Z: 1}}
}

// Matrix composes the transform.
func (t Transform) Matrix() hmath.Mat4 {
	return hmath.Compose(t.Position, t.Rotation, t.Scale)
}

// Object owns a transform node and its geodes.
type Object struct {
	Name             string
	Transform        Transform
	TransformChanged bool
	GeosChanged      bool
	Geodes           []*Geode
}

// Geometry is the mirror of one asset.
type Geometry struct {
	Name           string
	ObjectsChanged bool
	Objects        []*Object
}

// NewGeometry creates an empty mirror for an asset.
func NewGeometry(name string) *Geometry {
	return &Geometry{Name: name}
}

// EnsureObjectCount appends objects until there are at least n.
func (g *Geometry) EnsureObjectCount(n int) {
	for len(g.Objects) < n {
		g.Objects = append(g.Objects, &Object{Transform: IdentityTransform()})
	}
}

// EnsureGeodeCount appends geodes to object obj until there are at least n.
func (g *Geometry) EnsureGeodeCount(obj, n int) {
	o := g.Objects[obj]
	for len(o.Geodes) < n {
		o.Geodes = append(o.Geodes, &Geode{})
	}
}

// EnsureDrawableCount appends drawables to geode geo of object obj until
// there are at least n.
func (g *Geometry) EnsureDrawableCount(geo, obj, n int) {
	gd := g.Objects[obj].Geodes[geo]
	for len(gd.Drawables) < n {
		gd.Drawables = append(gd.Drawables, newDrawable())
	}
}

// Object returns object obj. Out of range indices panic.
func (g *Geometry) Object(obj int) *Object { return g.Objects[obj] }

// Geode returns geode geo of object obj.
func (g *Geometry) Geode(geo, obj int) *Geode { return g.Objects[obj].Geodes[geo] }

// Drawable returns drawable d of geode geo of object obj.
func (g *Geometry) Drawable(d, geo, obj int) *Drawable {
	return g.Objects[obj].Geodes[geo].Drawables[d]
}

// Clear empties drawable d of geode geo of object obj in place.
func (g *Geometry) Clear(d, geo, obj int) {
	g.Drawable(d, geo, obj).Clear()
}

// Dirty publishes every mutation since the previous call by bumping the
// revision of each touched drawable. Call once per cycle after all
// mutations. Returns the number of drawables published.
func (g *Geometry) Dirty() int {
	n := 0
	g.Walk(func(_, _, _ int, d *Drawable) {
		if d.touched {
			d.touched = false
			d.revision++
			n++
		}
	})
	return n
}

// ResetFlags clears every change flag.
func (g *Geometry) ResetFlags() {
	g.ObjectsChanged = false
	for _, o := range g.Objects {
		o.TransformChanged = false
		o.GeosChanged = false
		for _, gd := range o.Geodes {
			gd.Changed = false
		}
	}
}

// MarkAll sets every change flag so the whole tree is serialized.
func (g *Geometry) MarkAll() {
	g.ObjectsChanged = true
	for _, o := range g.Objects {
		o.TransformChanged = true
		o.GeosChanged = true
		for _, gd := range o.Geodes {
			gd.Changed = true
		}
	}
}

// Walk visits every drawable in index order.
func (g *Geometry) Walk(fn func(obj, geo, d int, dr *Drawable)) {
	for oi, o := range g.Objects {
		for gi, gd := range o.Geodes {
			for di, dr := range gd.Drawables {
				fn(oi, gi, di, dr)
			}
		}
	}
}

// Bounds returns the world-space bounds of every vertex.
func (g *Geometry) Bounds() hmath.Bounds {
	var b hmath.Bounds
	for _, o := range g.Objects {
		m := o.Transform.Matrix()
		for _, gd := range o.Geodes {
			for _, d := range gd.Drawables {
				for _, v := range d.Vertices {
					b.Extend(m.TransformPoint(v))
				}
			}
		}
	}
	return b
}
