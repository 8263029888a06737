package syncer

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

// ProcessReport summarizes one Process cycle.
type ProcessReport struct {
	Assets     int // assets with a cook since the previous cycle
	Transforms int // object transforms applied
	Parts      int // parts materialized
	Failed     int // parts aborted
	Published  int // drawables published to the renderer
	// Err aggregates the per-part failures.
	Err error
}

// Process walks every asset cooked since the previous call and brings its
// mirror up to date. The change flags of the mirror are reset first and then
// describe exactly what this cycle changed.
//
// Per-part failures are logged and collected in the report; any other
// engine failure aborts the cycle and is returned.
func (c *Context) Process() (ProcessReport, error) {
	var r ProcessReport
	for _, name := range c.order {
		a := c.assets[name]
		g := c.scene.Ensure(name)
		g.ResetFlags()
		a.materials.BeginCycle()
		if !a.pending {
			continue
		}
		if err := c.processAsset(a, g, &r); err != nil {
			return r, err
		}
		if err := a.materials.Refresh(); err != nil {
			r.Err = multierr.Append(r.Err, err)
			c.log.Error("material refresh failed", zap.String("asset", a.name), zap.Error(err))
		}
		a.pending = false
		r.Assets++
	}
	r.Published = c.scene.Dirty()
	if r.Assets > 0 {
		c.log.Debug("processed", zap.Int("assets", r.Assets), zap.Int("transforms", r.Transforms),
			zap.Int("parts", r.Parts), zap.Int("failed", r.Failed), zap.Int("published", r.Published))
	}
	return r, nil
}

func (c *Context) processAsset(a *syncedAsset, g *mirror.Geometry, r *ProcessReport) error {
	info, err := c.acc.AssetInfo(a.handle)
	if err != nil {
		return err
	}
	g.ObjectsChanged = info.HaveObjectsChanged
	if !g.ObjectsChanged {
		return nil
	}

	objects, err := c.acc.Objects(a.handle)
	if err != nil {
		return err
	}
	// Flags must be read before the batched transform query clears them.
	infos := make([]bool, len(objects))
	for i, o := range objects {
		oi, err := c.acc.ObjectInfo(o)
		if err != nil {
			return err
		}
		infos[i] = oi.HasTransformChanged
	}
	xfs, err := c.acc.Transforms(a.handle)
	if err != nil {
		return err
	}

	g.EnsureObjectCount(len(objects))
	for i, o := range objects {
		oi, err := c.acc.ObjectInfo(o)
		if err != nil {
			return err
		}
		mo := g.Object(i)
		mo.Name = oi.Name
		mo.TransformChanged = infos[i]
		if mo.TransformChanged {
			mo.Transform = convert(xfs[i])
			r.Transforms++
		}
		mo.GeosChanged = oi.HaveGeosChanged
		if !mo.GeosChanged {
			continue
		}
		if err := c.processObject(a, g, o, i, r); err != nil {
			return err
		}
	}

	// Objects the engine no longer reports are emptied, never removed.
	for i := len(objects); i < len(g.Objects); i++ {
		clearObject(g, i, 0)
	}
	return nil
}

func (c *Context) processObject(a *syncedAsset, g *mirror.Geometry, o accessor.Object, oi int, r *ProcessReport) error {
	geos, err := c.acc.Geometries(o)
	if err != nil {
		return err
	}
	g.EnsureGeodeCount(oi, len(geos))
	for gi, geo := range geos {
		info, err := c.acc.GeoInfo(geo)
		if err != nil {
			return err
		}
		gd := g.Geode(gi, oi)
		gd.Changed = info.HasGeoChanged
		if !gd.Changed {
			continue
		}
		parts, err := c.acc.Parts(geo)
		if err != nil {
			return err
		}
		g.EnsureDrawableCount(gi, oi, len(parts))
		for pi, p := range parts {
			r.Parts++
			if err := c.mat.Part(p, g.Drawable(pi, gi, oi), a.materials); err != nil {
				r.Failed++
				r.Err = multierr.Append(r.Err, err)
				c.log.Error("part aborted", zap.String("asset", a.name), zap.Stringer("part", p.Key), zap.Error(err))
			}
		}
		for _, d := range gd.Drawables[len(parts):] {
			if !empty(d) {
				d.Clear()
			}
		}
	}
	clearObject(g, oi, len(geos))
	return nil
}

// clearObject empties the geodes of object oi from index from on, flagging
// the ones that still held data.
func clearObject(g *mirror.Geometry, oi, from int) {
	o := g.Object(oi)
	for gi := from; gi < len(o.Geodes); gi++ {
		gd := o.Geodes[gi]
		for _, d := range gd.Drawables {
			if empty(d) {
				continue
			}
			d.Clear()
			gd.Changed = true
			o.GeosChanged = true
			g.ObjectsChanged = true
		}
	}
}

func convert(t hapi.Transform) mirror.Transform {
	return mirror.Transform{
		Position: hmath.Vec3Of(t.Position),
		Rotation: hmath.QuatOf(t.Rotation),
		Scale:    hmath.Vec3Of(t.Scale),
	}
}

func empty(d *mirror.Drawable) bool {
	return len(d.Vertices) == 0 && len(d.Sets) == 0
}
