package materialize

import (
	"fmt"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/pkg/hapi"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

// Recognized attribute names.
const (
	AttrPosition = "P"
	AttrNormal   = "N"
	AttrColor    = "Cd"
	AttrUV       = "uv"
	AttrAlpha    = "Alpha"
)

type attributeKey struct {
	owner hapi.AttributeOwner
	name  string
}

type attributeSet map[attributeKey]bool

// stream is one fetched float attribute.
type stream struct {
	name  string
	owner hapi.AttributeOwner
	tuple int
	data  []float32
}

func (s *stream) at(i int) ([]float32, error) {
	lo := i * s.tuple
	if i < 0 || lo+s.tuple > len(s.data) {
		return nil, fmt.Errorf("%s attribute %q has no element %d", s.owner, s.name, i)
	}
	return s.data[lo : lo+s.tuple], nil
}

func (s *stream) vec3(i int) (hmath.Vec3, error) {
	t, err := s.at(i)
	if err != nil {
		return hmath.Vec3{}, err
	}
	var v [3]float32
	copy(v[:], t)
	return hmath.Vec3Of(v), nil
}

func (s *stream) vec2(i int) (hmath.Vec2, error) {
	t, err := s.at(i)
	if err != nil {
		return hmath.Vec2{}, err
	}
	var v [2]float32
	copy(v[:], t)
	return hmath.Vec2{X: v[0], Y: v[1]}, nil
}

func (s *stream) scalar(i int) (float32, error) {
	t, err := s.at(i)
	if err != nil {
		return 0, err
	}
	return t[0], nil
}

// pick returns the index into s for a vertex: point-owned streams are read
// by point index, vertex-owned by vertex index, prim-owned by face index.
func (s *stream) pick(point, vertex, face int) int {
	switch s.owner {
	case hapi.OwnerVertex:
		return vertex
	case hapi.OwnerPrim:
		return face
	case hapi.OwnerDetail:
		return 0
	default:
		return point
	}
}

// fetch reads the first of owners that defines name. A nil stream means
// the attribute is absent.
func (m *Materializer) fetch(p accessor.Part, set attributeSet, name string, owners ...hapi.AttributeOwner) (*stream, error) {
	for _, owner := range owners {
		if !set[attributeKey{owner, name}] {
			continue
		}
		data, info, err := m.acc.FloatData(p, owner, name)
		if err != nil {
			return nil, err
		}
		return &stream{name: name, owner: owner, tuple: info.TupleSize, data: data}, nil
	}
	return nil, nil
}

// streams holds the resolved attributes of a part.
type streams struct {
	pos, nrm, col, uv, alpha *stream
}

// resolve applies the owner precedence: N from vertex then point, Cd from
// point then prim, uv from point then vertex, Alpha from point.
func (m *Materializer) resolve(p accessor.Part, set attributeSet) (streams, error) {
	var s streams
	var err error
	if s.pos, err = m.fetch(p, set, AttrPosition, hapi.OwnerPoint); err != nil {
		return s, err
	}
	if s.pos == nil {
		return s, fmt.Errorf("part %s has no point %s attribute", p.Key, AttrPosition)
	}
	if s.nrm, err = m.fetch(p, set, AttrNormal, hapi.OwnerVertex, hapi.OwnerPoint); err != nil {
		return s, err
	}
	if s.col, err = m.fetch(p, set, AttrColor, hapi.OwnerPoint, hapi.OwnerPrim); err != nil {
		return s, err
	}
	if s.uv, err = m.fetch(p, set, AttrUV, hapi.OwnerPoint, hapi.OwnerVertex); err != nil {
		return s, err
	}
	if s.alpha, err = m.fetch(p, set, AttrAlpha, hapi.OwnerPoint); err != nil {
		return s, err
	}
	return s, nil
}

// color returns the RGBA of a vertex; ok is false when the part carries
// neither colors nor alphas.
func (s streams) color(point, vertex, face int) (c hmath.Vec4, ok bool, err error) {
	if s.col == nil && s.alpha == nil {
		return c, false, nil
	}
	c = hmath.RGBA(1, 1, 1, 1)
	if s.col != nil {
		t, err := s.col.at(s.col.pick(point, vertex, face))
		if err != nil {
			return c, false, err
		}
		if len(t) > 0 {
			c.X = t[0]
		}
		if len(t) > 1 {
			c.Y = t[1]
		}
		if len(t) > 2 {
			c.Z = t[2]
		}
		if len(t) > 3 {
			c.W = t[3]
		}
	}
	if s.alpha != nil {
		a, err := s.alpha.scalar(s.alpha.pick(point, vertex, face))
		if err != nil {
			return c, false, err
		}
		c.W = a
	}
	return c, true, nil
}
