package gpu

import (
	"github.com/Faultbox/hsync/internal/mirror"
)

// Stride is the float count of one interleaved vertex:
// position 3, normal 3, color 4, uv 2.
const Stride = 12

type drawKind uint8

const (
	drawTriangles drawKind = iota
	drawLines
	drawPoints
)

// drawCall is one element range of a mesh.
type drawCall struct {
	kind         drawKind
	first, count int
}

// meshData is a drawable flattened for upload.
type meshData struct {
	vertices []float32
	indices  []uint32
	draws    []drawCall
}

// buildMesh interleaves the buffers of d and groups its primitive sets.
// All triangle-like sets share one draw; every strip keeps its own.
// Drawables without colors render white.
func buildMesh(d *mirror.Drawable) meshData {
	var m meshData
	n := len(d.Vertices)
	m.vertices = make([]float32, 0, n*Stride)
	for i, v := range d.Vertices {
		m.vertices = append(m.vertices, v.X, v.Y, v.Z)
		if i < len(d.Normals) {
			nr := d.Normals[i]
			m.vertices = append(m.vertices, nr.X, nr.Y, nr.Z)
		} else {
			m.vertices = append(m.vertices, 0, 0, 0)
		}
		if i < len(d.Colors) {
			c := d.Colors[i]
			m.vertices = append(m.vertices, c.X, c.Y, c.Z, c.W)
		} else {
			m.vertices = append(m.vertices, 1, 1, 1, 1)
		}
		if i < len(d.UVs) {
			m.vertices = append(m.vertices, d.UVs[i].X, d.UVs[i].Y)
		} else {
			m.vertices = append(m.vertices, 0, 0)
		}
	}

	var tris []uint32
	for _, s := range d.Sets {
		if s.Mode.Triangulated() {
			tris = append(tris, s.Indices()...)
		}
	}
	if len(tris) > 0 {
		m.draws = append(m.draws, drawCall{kind: drawTriangles, first: 0, count: len(tris)})
		m.indices = append(m.indices, tris...)
	}
	for _, s := range d.Sets {
		if s.Mode.Triangulated() {
			continue
		}
		idx := s.Indices()
		if len(idx) == 0 {
			continue
		}
		kind := drawPoints
		if s.Mode == mirror.LineStrip {
			kind = drawLines
		}
		m.draws = append(m.draws, drawCall{kind: kind, first: len(m.indices), count: len(idx)})
		m.indices = append(m.indices, idx...)
	}
	return m
}
