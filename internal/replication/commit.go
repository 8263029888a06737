package replication

import (
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
)

// Master numbers frames and tracks pending resync requests.
type Master struct {
	seq      uint32
	wantFull bool
	log      *zap.Logger
}

// NewMaster creates a master whose first frame is a full frame.
func NewMaster(log *zap.Logger) *Master {
	if log == nil {
		log = zap.NewNop()
	}
	return &Master{wantFull: true, log: log}
}

// RequestFull makes the next committed frame a full frame.
func (m *Master) RequestFull() {
	m.wantFull = true
}

// Next reserves the sequence number of the next frame and reports whether
// it must be a full frame.
func (m *Master) Next() (seq uint32, full bool) {
	m.seq++
	full, m.wantFull = m.wantFull, false
	return m.seq, full
}

// Seq returns the last reserved sequence number.
func (m *Master) Seq() uint32 { return m.seq }

// Commit reserves a sequence number and encodes the scene. materials
// receives whether the frame is full and returns the materials to ship.
func (m *Master) Commit(scene *mirror.Scene, released []string, materials func(full bool) []*material.Material) []byte {
	seq, full := m.Next()
	frame := Encode(scene, released, materials(full), seq, full)
	if full || len(frame) > HeaderSize+1 {
		m.log.Debug("frame committed", zap.Uint32("seq", seq), zap.Bool("full", full), zap.Int("bytes", len(frame)))
	}
	return frame
}

// Encode builds one frame. A full frame sets every change flag of the scene
// first so the whole tree is written.
func Encode(scene *mirror.Scene, released []string, materials []*material.Material, seq uint32, full bool) []byte {
	if full {
		scene.Each(func(g *mirror.Geometry) { g.MarkAll() })
	}

	update := full || len(released) > 0 || len(materials) > 0
	scene.Each(func(g *mirror.Geometry) { update = update || g.ObjectsChanged })

	w := NewWriter()
	w.Bool(update)
	if update {
		w.I32(int32(len(released)))
		for _, name := range released {
			w.Text(name)
		}
		w.I32(int32(scene.Len()))
		scene.Each(func(g *mirror.Geometry) { writeGeometry(w, g) })
		w.I32(int32(len(materials)))
		for _, m := range materials {
			writeMaterial(w, m)
		}
	}

	var flags uint16
	if full {
		flags |= FlagFull
	}
	b := w.Bytes()
	Header{
		Major:  ProtocolMajor,
		Minor:  ProtocolMinor,
		Flags:  flags,
		Seq:    seq,
		Length: uint32(len(b) - HeaderSize),
	}.put(b)
	return b
}

func writeGeometry(w *Writer, g *mirror.Geometry) {
	w.Bool(g.ObjectsChanged)
	w.Text(g.Name)
	if !g.ObjectsChanged {
		return
	}
	w.I32(int32(len(g.Objects)))
	for _, o := range g.Objects {
		w.Bool(o.TransformChanged)
		if o.TransformChanged {
			w.Vec3(o.Transform.Position)
			w.Quat(o.Transform.Rotation)
			w.Vec3(o.Transform.Scale)
		}
		w.Bool(o.GeosChanged)
		if !o.GeosChanged {
			continue
		}
		w.I32(int32(len(o.Geodes)))
		for _, gd := range o.Geodes {
			w.Bool(gd.Changed)
			if !gd.Changed {
				continue
			}
			w.I32(int32(len(gd.Drawables)))
			for _, d := range gd.Drawables {
				writeDrawable(w, d)
			}
		}
	}
}

func writeDrawable(w *Writer, d *mirror.Drawable) {
	w.I32(int32(len(d.Vertices)))
	for _, v := range d.Vertices {
		w.Vec3(v)
	}
	w.I32(int32(len(d.Normals)))
	for _, n := range d.Normals {
		w.Vec3(n)
	}
	w.I32(int32(len(d.Colors)))
	for _, c := range d.Colors {
		w.Vec4(c)
	}
	w.I32(int32(len(d.UVs)))
	for _, uv := range d.UVs {
		w.Vec2(uv)
	}
	w.I32(int32(len(d.Sets)))
	for _, s := range d.Sets {
		w.U8(uint8(s.Mode))
		w.I32(s.Start)
		w.I32(s.Count)
	}
	w.I32(d.Material)
	w.Bool(d.Transparent)
}

func writeMaterial(w *Writer, m *material.Material) {
	w.Text(m.Asset)
	w.I32(m.ID)
	w.I32(int32(len(m.Parms)))
	for _, p := range m.Parms {
		w.Text(p.Name)
		w.I32(int32(len(p.Values)))
		for _, v := range p.Values {
			w.F32(v)
		}
	}
	w.Text(m.Texture)
	w.Bool(m.WebP != nil)
	if m.WebP != nil {
		w.Blob(m.WebP)
	}
}
