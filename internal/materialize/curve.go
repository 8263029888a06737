package materialize

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

// curves tessellates every curve of the part into one line strip. Each pair
// of consecutive control points is split into CurveSegments linear steps;
// the strip ends on the last control point. Curves with fewer vertices than
// their order are skipped.
func (m *Materializer) curves(p accessor.Part, d *mirror.Drawable, set attributeSet) error {
	counts, orders, err := m.acc.Curves(p)
	if err != nil {
		return err
	}
	pos, err := m.fetch(p, set, AttrPosition, hapi.OwnerPoint)
	if err != nil {
		return err
	}
	if pos == nil {
		return fmt.Errorf("part %s has no point %s attribute", p.Key, AttrPosition)
	}
	col, err := m.fetch(p, set, AttrColor, hapi.OwnerPoint, hapi.OwnerPrim)
	if err != nil {
		return err
	}

	segments := m.opts.CurveSegments
	offset := 0
	for i, c := range counts {
		n := int(c)
		if n < int(orders[i]) || n < 2 {
			m.log.Debug("curve has too few vertices for its order, skipped",
				zap.Stringer("part", p.Key), zap.Int("curve", i), zap.Int("vertices", n), zap.Int32("order", orders[i]))
			offset += n
			continue
		}

		start := len(d.Vertices)
		for j := 0; j < n-1; j++ {
			a, err := pos.vec3(offset + j)
			if err != nil {
				return err
			}
			b, err := pos.vec3(offset + j + 1)
			if err != nil {
				return err
			}
			for s := 0; s < segments; s++ {
				if err := curveVertex(d, a.Lerp(b, float32(s)/float32(segments)), col, offset+j, i); err != nil {
					return err
				}
			}
		}
		last, err := pos.vec3(offset + n - 1)
		if err != nil {
			return err
		}
		if err := curveVertex(d, last, col, offset+n-1, i); err != nil {
			return err
		}
		d.AddPrimitiveSet(mirror.LineStrip, start, len(d.Vertices)-start)
		offset += n
	}
	return nil
}

func curveVertex(d *mirror.Drawable, v hmath.Vec3, col *stream, point, curve int) error {
	d.AddVertex(v)
	if col == nil {
		return nil
	}
	t, err := col.at(col.pick(point, point, curve))
	if err != nil {
		return err
	}
	var rgb [3]float32
	copy(rgb[:], t)
	d.AddColor(hmath.RGBA(rgb[0], rgb[1], rgb[2], 1))
	return nil
}
