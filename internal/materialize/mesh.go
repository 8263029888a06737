package materialize

import (
	"fmt"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
)

// Segment groups consecutive faces into primitive sets over the emitted
// vertex stream. Runs of triangles and runs of quads share one set each;
// every face with more than four vertices gets its own fan. Faces with
// fewer than three vertices emit nothing and end the current run.
func Segment(faceCounts []int32) []mirror.PrimitiveSet {
	var sets []mirror.PrimitiveSet
	var start, count, size, emitted int

	flush := func() {
		if count == 0 {
			return
		}
		sets = append(sets, mirror.PrimitiveSet{Mode: modeFor(size), Start: int32(start), Count: int32(count)})
		count = 0
	}

	for _, c := range faceCounts {
		n := int(c)
		if n < 3 {
			flush()
			continue
		}
		if count > 0 && (n != size || size > 4) {
			flush()
		}
		if count == 0 {
			start, size = emitted, n
		}
		count += n
		emitted += n
	}
	flush()
	return sets
}

func modeFor(faceSize int) mirror.Mode {
	switch faceSize {
	case 3:
		return mirror.Triangles
	case 4:
		return mirror.Quads
	default:
		return mirror.TriangleFan
	}
}

func (m *Materializer) mesh(p accessor.Part, d *mirror.Drawable, set attributeSet) error {
	s, err := m.resolve(p, set)
	if err != nil {
		return err
	}
	faces, err := m.acc.FaceCounts(p)
	if err != nil {
		return err
	}
	verts, err := m.acc.VertexList(p)
	if err != nil {
		return err
	}

	offset := 0
	for f, c := range faces {
		n := int(c)
		if offset+n > len(verts) {
			return fmt.Errorf("part %s: face %d needs vertices up to %d, list has %d", p.Key, f, offset+n, len(verts))
		}
		if n < 3 {
			offset += n
			continue
		}
		for j := 0; j < n; j++ {
			vi := m.opts.Winding.Index(offset, n, j)
			if err := emit(d, s, int(verts[vi]), vi, f); err != nil {
				return fmt.Errorf("part %s: %w", p.Key, err)
			}
		}
		offset += n
	}

	for _, ps := range Segment(faces) {
		d.AddPrimitiveSet(ps.Mode, int(ps.Start), int(ps.Count))
	}
	d.Transparent = s.alpha != nil

	if err := d.CheckLockstep(); err != nil {
		return fmt.Errorf("part %s: %w", p.Key, err)
	}
	return nil
}

// emit appends one vertex and its attributes.
func emit(d *mirror.Drawable, s streams, point, vertex, face int) error {
	pos, err := s.pos.vec3(point)
	if err != nil {
		return err
	}
	d.AddVertex(pos)

	if s.nrm != nil {
		n, err := s.nrm.vec3(s.nrm.pick(point, vertex, face))
		if err != nil {
			return err
		}
		d.AddNormal(n)
	}
	c, ok, err := s.color(point, vertex, face)
	if err != nil {
		return err
	}
	if ok {
		d.AddColor(c)
	}
	if s.uv != nil {
		uv, err := s.uv.vec2(s.uv.pick(point, vertex, face))
		if err != nil {
			return err
		}
		d.AddUV(uv)
	}
	return nil
}

// points emits every point of a face-less part as one point set.
func (m *Materializer) points(p accessor.Part, d *mirror.Drawable, set attributeSet) error {
	s, err := m.resolve(p, set)
	if err != nil {
		return err
	}
	// Without faces there is nothing to index prim or vertex data by.
	s.nrm, s.uv = pointOnly(s.nrm), pointOnly(s.uv)
	s.col = pointOnly(s.col)

	n := len(s.pos.data) / s.pos.tuple
	for i := 0; i < n; i++ {
		if err := emit(d, s, i, i, 0); err != nil {
			return fmt.Errorf("part %s: %w", p.Key, err)
		}
	}
	d.AddPrimitiveSet(mirror.Points, 0, n)
	d.Transparent = s.alpha != nil
	return nil
}

func pointOnly(s *stream) *stream {
	if s == nil || s.owner != hapi.OwnerPoint {
		return nil
	}
	return s
}
