// Package materialize rewrites a mirror drawable from one engine part:
// attribute resolution, face winding, primitive-set segmentation and curve
// tessellation.
package materialize

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
)

// WindingPolicy selects the vertex order emitted within a face.
type WindingPolicy int

const (
	// ReverseWithinFace keeps the first vertex and reverses the rest, so a
	// quad [0 1 2 3] is emitted as [0 3 2 1].
	ReverseWithinFace WindingPolicy = iota
	// Preserve emits vertices in engine order.
	Preserve
)

// ParseWinding parses "reverse" or "preserve".
func ParseWinding(s string) (WindingPolicy, error) {
	switch s {
	case "", "reverse":
		return ReverseWithinFace, nil
	case "preserve":
		return Preserve, nil
	default:
		return 0, fmt.Errorf("unknown winding policy %q", s)
	}
}

func (w WindingPolicy) String() string {
	if w == Preserve {
		return "preserve"
	}
	return "reverse"
}

// Index returns the vertex-list index of the j-th emitted vertex of a face
// of n vertices starting at start.
func (w WindingPolicy) Index(start, n, j int) int {
	if w == Preserve {
		return start + j
	}
	return start + (n-j)%n
}

// DefaultCurveSegments is the number of segments between two control points.
const DefaultCurveSegments = 20

// Options tune the materializer.
type Options struct {
	Winding       WindingPolicy
	CurveSegments int
	// PointClouds emits the points of face-less parts instead of clearing them.
	PointClouds bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Winding: ReverseWithinFace, CurveSegments: DefaultCurveSegments}
}

// MaterialBinder resolves a material node and applies it to a drawable.
type MaterialBinder interface {
	Bind(node hapi.NodeID, d *mirror.Drawable) error
}

// Materializer converts parts into drawables.
type Materializer struct {
	acc  *accessor.Accessor
	opts Options
	log  *zap.Logger
}

// New creates a materializer.
func New(acc *accessor.Accessor, opts Options, log *zap.Logger) *Materializer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CurveSegments <= 0 {
		opts.CurveSegments = DefaultCurveSegments
	}
	return &Materializer{acc: acc, opts: opts, log: log}
}

// Options returns the active options.
func (m *Materializer) Options() Options { return m.opts }

// Part clears d and refills it from part p. materials may be nil.
// Any failed engine query aborts this part only; d is left cleared.
func (m *Materializer) Part(p accessor.Part, d *mirror.Drawable, materials MaterialBinder) error {
	d.Clear()

	info, err := m.acc.PartInfo(p)
	if err != nil {
		return err
	}
	attrs, err := m.discover(p)
	if err != nil {
		return err
	}
	log := m.log.With(zap.Stringer("part", p.Key))

	if info.FaceCount == 0 {
		if m.opts.PointClouds && info.PointCount > 0 {
			if err := m.points(p, d, attrs); err != nil {
				d.Clear()
				return err
			}
			return nil
		}
		log.Debug("part has no faces, left empty")
		return nil
	}

	switch info.Type {
	case hapi.PartCurve:
		if err := m.curves(p, d, attrs); err != nil {
			d.Clear()
			return err
		}
		return nil
	case hapi.PartMesh:
		if err := m.mesh(p, d, attrs); err != nil {
			d.Clear()
			return err
		}
	default:
		log.Debug("unsupported part type, left empty", zap.Stringer("type", info.Type))
		return nil
	}

	if materials == nil {
		return nil
	}
	node, err := m.acc.Material(p)
	if err != nil {
		d.Clear()
		return err
	}
	if node == hapi.InvalidNode {
		return nil
	}
	if err := materials.Bind(node, d); err != nil {
		d.Clear()
		return err
	}
	return nil
}

// discover lists attribute names per owner.
func (m *Materializer) discover(p accessor.Part) (attributeSet, error) {
	set := make(attributeSet)
	for _, owner := range hapi.Owners {
		names, err := m.acc.AttributeNames(p, owner)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			set[attributeKey{owner, n}] = true
		}
	}
	return set, nil
}
