package mirror

import (
	"fmt"
	"io"
	"strings"
)

// Scene is the set of asset mirrors of one process, keyed by asset name and
// kept in insertion order.
type Scene struct {
	order  []string
	assets map[string]*Geometry
}

// NewScene creates an empty scene.
func NewScene() *Scene {
	return &Scene{assets: make(map[string]*Geometry)}
}

// Get returns the mirror of an asset.
func (s *Scene) Get(name string) (*Geometry, bool) {
	g, ok := s.assets[name]
	return g, ok
}

// Ensure returns the mirror of an asset, creating it when missing.
func (s *Scene) Ensure(name string) *Geometry {
	if g, ok := s.assets[name]; ok {
		return g
	}
	g := NewGeometry(name)
	s.assets[name] = g
	s.order = append(s.order, name)
	return g
}

// Remove drops an asset's mirror. It reports whether it existed.
func (s *Scene) Remove(name string) bool {
	if _, ok := s.assets[name]; !ok {
		return false
	}
	delete(s.assets, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Names returns asset names in insertion order.
func (s *Scene) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of assets.
func (s *Scene) Len() int { return len(s.order) }

// Each visits every asset in insertion order.
func (s *Scene) Each(fn func(g *Geometry)) {
	for _, name := range s.order {
		fn(s.assets[name])
	}
}

// Dirty publishes pending mutations of every asset.
func (s *Scene) Dirty() int {
	n := 0
	s.Each(func(g *Geometry) { n += g.Dirty() })
	return n
}

// Describe writes an indented dump of the tree.
func (g *Geometry) Describe(w io.Writer) {
	fmt.Fprintf(w, "geometry %q objects=%d changed=%t\n", g.Name, len(g.Objects), g.ObjectsChanged)
	for oi, o := range g.Objects {
		p, s := o.Transform.Position, o.Transform.Scale
		fmt.Fprintf(w, "  object %d %q pos=(%g %g %g) scale=(%g %g %g) xform=%t geos=%t\n",
			oi, o.Name, p.X, p.Y, p.Z, s.X, s.Y, s.Z, o.TransformChanged, o.GeosChanged)
		for gi, gd := range o.Geodes {
			fmt.Fprintf(w, "    geode %d drawables=%d changed=%t\n", gi, len(gd.Drawables), gd.Changed)
			for di, d := range gd.Drawables {
				fmt.Fprintf(w, "      drawable %d v=%d n=%d c=%d uv=%d mat=%d rev=%d",
					di, len(d.Vertices), len(d.Normals), len(d.Colors), len(d.UVs), d.Material, d.revision)
				if d.Transparent {
					fmt.Fprint(w, " transparent")
				}
				fmt.Fprintln(w)
				for _, ps := range d.Sets {
					fmt.Fprintf(w, "        %s [%d,+%d)\n", ps.Mode, ps.Start, ps.Count)
				}
			}
		}
	}
}

// String returns Describe's output.
func (g *Geometry) String() string {
	var b strings.Builder
	g.Describe(&b)
	return b.String()
}
