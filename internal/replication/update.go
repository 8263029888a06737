package replication

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
)

// Minimum encoded sizes used to bound counts before allocating.
const (
	minAsset    = 1 + 4
	minObject   = 1 + 1
	minGeode    = 1
	minDrawable = 5*4 + 4 + 1
	minSet      = 1 + 4 + 4
	minMaterial = 4 + 4 + 4 + 4 + 1
	minParm     = 4 + 4
)

// Result describes an applied frame.
type Result struct {
	Header
	// Published is the number of drawables whose buffers changed.
	Published int
	Released  []string
}

// Replica applies frames to a replica's own mirror and material store.
type Replica struct {
	scene     *mirror.Scene
	materials *material.Store
	log       *zap.Logger

	last   uint32
	synced bool
}

// NewReplica creates a replica. It accepts only a full frame until it has
// applied one.
func NewReplica(scene *mirror.Scene, materials *material.Store, log *zap.Logger) *Replica {
	if log == nil {
		log = zap.NewNop()
	}
	return &Replica{scene: scene, materials: materials, log: log}
}

// Scene returns the replica's mirror.
func (r *Replica) Scene() *mirror.Scene { return r.scene }

// Materials returns the replica's material store.
func (r *Replica) Materials() *material.Store { return r.materials }

// LastSeq returns the sequence number of the last applied frame.
func (r *Replica) LastSeq() uint32 { return r.last }

// NeedsFull reports whether the replica waits for a full frame.
func (r *Replica) NeedsFull() bool { return !r.synced }

// Update validates and applies one frame. Frames that fail validation are
// skipped and leave the mirror untouched. ErrSequenceGap asks the caller to
// request a full frame.
func (r *Replica) Update(frame []byte) (Result, error) {
	h, err := ParseHeader(frame)
	res := Result{Header: h}
	if err != nil {
		return res, r.skip(h, err)
	}
	if h.Seq <= r.last {
		return res, r.skip(h, fmt.Errorf("%w: got %d after %d", ErrStaleSequence, h.Seq, r.last))
	}
	if !h.Full() && (!r.synced || h.Seq != r.last+1) {
		r.synced = false
		return res, r.skip(h, fmt.Errorf("%w: got %d after %d", ErrSequenceGap, h.Seq, r.last))
	}

	rd := NewReader(frame[HeaderSize:])
	res.Released, err = r.apply(rd, h.Full())
	if err == nil && rd.Remaining() != 0 {
		err = fmt.Errorf("%w: %d trailing bytes", ErrLengthMismatch, rd.Remaining())
	}
	res.Published = r.scene.Dirty()
	if err != nil {
		// The mirror may be half-written now; only a full frame repairs it.
		r.synced = false
		r.log.Error("frame failed mid-payload, waiting for a full frame", zap.Uint32("seq", h.Seq), zap.Error(err))
		return res, err
	}
	r.last = h.Seq
	r.synced = true
	return res, nil
}

func (r *Replica) skip(h Header, err error) error {
	r.log.Warn("frame skipped", zap.Uint32("seq", h.Seq), zap.Error(err))
	return err
}

type placed struct {
	asset string
	d     *mirror.Drawable
}

func (r *Replica) apply(rd *Reader, full bool) ([]string, error) {
	r.scene.Each(func(g *mirror.Geometry) { g.ResetFlags() })
	if !rd.Bool() {
		return nil, rd.Err()
	}

	n := rd.Count(4)
	released := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := rd.Text()
		if rd.Err() != nil {
			return nil, rd.Err()
		}
		r.scene.Remove(name)
		r.materials.Release(name)
		released = append(released, name)
	}

	var touched []placed
	seen := make(map[string]bool)
	assets := rd.Count(minAsset)
	for i := 0; i < assets; i++ {
		changed := rd.Bool()
		name := rd.Text()
		if rd.Err() != nil {
			return released, rd.Err()
		}
		seen[name] = true
		g := r.scene.Ensure(name)
		g.ObjectsChanged = changed
		if !changed {
			continue
		}
		var err error
		if touched, err = readGeometry(rd, g, touched); err != nil {
			return released, err
		}
	}

	if full {
		// Assets missing from a full frame were released in a frame we lost.
		for _, name := range r.scene.Names() {
			if !seen[name] {
				r.scene.Remove(name)
				r.materials.Release(name)
				released = append(released, name)
			}
		}
	}

	mats := rd.Count(minMaterial)
	for i := 0; i < mats; i++ {
		m := readMaterial(rd)
		if rd.Err() != nil {
			return released, rd.Err()
		}
		r.materials.Apply(m)
	}

	for _, p := range touched {
		if r.materials.Transparent(p.asset, p.d.Material) {
			p.d.Transparent = true
		}
	}
	if mats > 0 {
		// A material edit alone does not resend the drawables using it.
		r.scene.Each(func(g *mirror.Geometry) {
			g.Walk(func(_, _, _ int, d *mirror.Drawable) {
				if r.materials.Transparent(g.Name, d.Material) {
					d.Transparent = true
				}
			})
		})
	}
	return released, rd.Err()
}

func readGeometry(rd *Reader, g *mirror.Geometry, touched []placed) ([]placed, error) {
	objects := rd.Count(minObject)
	g.EnsureObjectCount(objects)
	for oi := 0; oi < objects; oi++ {
		o := g.Object(oi)
		o.TransformChanged = rd.Bool()
		if o.TransformChanged {
			o.Transform = mirror.Transform{Position: rd.Vec3(), Rotation: rd.Quat(), Scale: rd.Vec3()}
		}
		o.GeosChanged = rd.Bool()
		if !o.GeosChanged {
			continue
		}
		geodes := rd.Count(minGeode)
		g.EnsureGeodeCount(oi, geodes)
		for gi := 0; gi < geodes; gi++ {
			gd := g.Geode(gi, oi)
			gd.Changed = rd.Bool()
			if !gd.Changed {
				continue
			}
			drawables := rd.Count(minDrawable)
			g.EnsureDrawableCount(gi, oi, drawables)
			for di := 0; di < drawables; di++ {
				d := g.Drawable(di, gi, oi)
				if err := readDrawable(rd, d); err != nil {
					return touched, err
				}
				touched = append(touched, placed{g.Name, d})
			}
		}
		if rd.Err() != nil {
			return touched, rd.Err()
		}
	}
	return touched, rd.Err()
}

func readDrawable(rd *Reader, d *mirror.Drawable) error {
	d.Clear()
	for i, n := 0, rd.Count(12); i < n; i++ {
		d.AddVertex(rd.Vec3())
	}
	for i, n := 0, rd.Count(12); i < n; i++ {
		d.AddNormal(rd.Vec3())
	}
	for i, n := 0, rd.Count(16); i < n; i++ {
		d.AddColor(rd.Vec4())
	}
	for i, n := 0, rd.Count(8); i < n; i++ {
		d.AddUV(rd.Vec2())
	}
	for i, n := 0, rd.Count(minSet); i < n; i++ {
		mode := mirror.Mode(rd.U8())
		start, count := rd.I32(), rd.I32()
		if rd.Err() != nil {
			return rd.Err()
		}
		if !mode.Valid() || start < 0 || count < 0 || int(start)+int(count) > len(d.Vertices) {
			return fmt.Errorf("%w: primitive set %s [%d,+%d) over %d vertices", ErrCorrupt, mode, start, count, len(d.Vertices))
		}
		d.AddPrimitiveSet(mode, int(start), int(count))
	}
	d.Material = rd.I32()
	d.Transparent = rd.Bool()
	if err := rd.Err(); err != nil {
		return err
	}
	if err := d.CheckLockstep(); err != nil {
		return errors.Join(ErrCorrupt, err)
	}
	return nil
}

func readMaterial(rd *Reader) *material.Material {
	m := &material.Material{Asset: rd.Text(), ID: rd.I32()}
	for i, n := 0, rd.Count(minParm); i < n; i++ {
		p := material.Parm{Name: rd.Text()}
		for j, k := 0, rd.Count(4); j < k; j++ {
			p.Values = append(p.Values, rd.F32())
		}
		m.Parms = append(m.Parms, p)
	}
	m.Texture = rd.Text()
	if rd.Bool() {
		m.WebP = rd.Blob()
	}
	return m
}
