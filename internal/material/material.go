// Package material resolves the shader parameters and texture of the
// material bound to a part, and keeps the per-asset material table that is
// shipped to replicas.
package material

import (
	"image"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
)

// Shader parameters recorded for every material.
var ParmNames = []string{"ogl_diff", "ogl_emit", "ogl_alpha", "ogl_rough"}

// TextureParms are tried in order; the first with a non-empty value names
// the texture map.
var TextureParms = []string{"ogl_tex1", "baseColorMap", "map"}

// TransparentBelow is the ogl_alpha under which a material is transparent.
const TransparentBelow = 0.95

// Parm is one float parameter of a material.
type Parm struct {
	Name   string
	Values []float32
}

// Material is a resolved material.
type Material struct {
	Asset   string
	ID      int32
	Parms   []Parm
	Texture string
	// WebP holds the encoded texture, nil when there is none.
	WebP []byte
	// Image is the decoded texture. It does not travel on the wire.
	Image image.Image
}

// Float returns component i of parameter name, or def.
func (m *Material) Float(name string, i int, def float32) float32 {
	for _, p := range m.Parms {
		if p.Name == name && i < len(p.Values) {
			return p.Values[i]
		}
	}
	return def
}

// Transparent reports whether the material's alpha is below TransparentBelow.
func (m *Material) Transparent() bool {
	return m.Float("ogl_alpha", 0, 1) < TransparentBelow
}

type entry struct {
	mat     *Material
	changed bool
	seen    bool
}

// Table is the material table of one asset. It implements the
// materializer's binder.
type Table struct {
	asset    string
	acc      *accessor.Accessor
	textures bool
	log      *zap.Logger

	entries map[hapi.NodeID]*entry
	order   []hapi.NodeID
}

// NewTable creates the table for asset. With textures off, texture maps are
// named but never rendered.
func NewTable(asset string, acc *accessor.Accessor, textures bool, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		asset:    asset,
		acc:      acc,
		textures: textures,
		log:      log.With(zap.String("asset", asset)),
		entries:  make(map[hapi.NodeID]*entry),
	}
}

// BeginCycle forgets which materials were resolved or changed in the
// previous processing cycle.
func (t *Table) BeginCycle() {
	for _, e := range t.entries {
		e.changed = false
		e.seen = false
	}
}

// Bind resolves node and stamps it on d.
func (t *Table) Bind(node hapi.NodeID, d *mirror.Drawable) error {
	m, err := t.Resolve(node)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	d.Material = m.ID
	if m.Transparent() {
		d.Transparent = true
	}
	return nil
}

// Resolve returns the material of node, re-reading it from the engine the
// first time it is met in a cycle when the engine reports it changed. It
// returns nil for nodes that are not materials.
func (t *Table) Resolve(node hapi.NodeID) (*Material, error) {
	e, ok := t.entries[node]
	if ok && e.seen {
		return e.mat, nil
	}
	info, err := t.acc.MaterialInfo(node)
	if err != nil {
		return nil, err
	}
	if !info.Exists {
		t.log.Warn("part bound to a node that is not a material", zap.Int32("node", int32(node)))
		return nil, nil
	}
	if ok && !info.HasChanged {
		e.seen = true
		return e.mat, nil
	}

	m, err := t.load(node)
	if err != nil {
		return nil, err
	}
	if !ok {
		e = &entry{}
		t.entries[node] = e
		t.order = append(t.order, node)
	}
	e.mat, e.changed, e.seen = m, true, true
	return m, nil
}

// Refresh resolves every known material that no part resolved this cycle.
// Edits that only touch a material leave the geometry unchanged and are
// picked up here. A failing material keeps its previous state.
func (t *Table) Refresh() error {
	var errs error
	for _, id := range t.order {
		if t.entries[id].seen {
			continue
		}
		if _, err := t.Resolve(id); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (t *Table) load(node hapi.NodeID) (*Material, error) {
	parms, err := t.acc.Parms(node)
	if err != nil {
		return nil, err
	}
	m := &Material{Asset: t.asset, ID: int32(node)}
	for _, name := range ParmNames {
		p, ok := accessor.FindParm(parms, name)
		if !ok {
			continue
		}
		v, err := t.acc.ParmFloats(node, p)
		if err != nil {
			return nil, err
		}
		m.Parms = append(m.Parms, Parm{Name: name, Values: v})
	}

	var tex hapi.ParmInfo
	for _, name := range TextureParms {
		p, ok := accessor.FindParm(parms, name)
		if !ok {
			continue
		}
		v, err := t.acc.ParmString(node, p)
		if err != nil {
			return nil, err
		}
		if v != "" {
			m.Texture, tex = v, p
			break
		}
	}
	if m.Texture == "" {
		t.log.Warn("unsupported material", zap.Int32("node", int32(node)))
		return m, nil
	}
	if !t.textures {
		return m, nil
	}

	data, info, err := t.acc.RenderTexture(node, tex.ID, "")
	if err != nil {
		return nil, err
	}
	img, err := Decode(info.Format, data)
	if err != nil {
		return nil, err
	}
	if m.WebP, err = EncodeWebP(img); err != nil {
		return nil, err
	}
	m.Image = img
	t.log.Debug("texture rendered", zap.Int32("node", int32(node)), zap.String("texture", m.Texture),
		zap.Int("width", info.XRes), zap.Int("height", info.YRes), zap.Int("bytes", len(m.WebP)))
	return m, nil
}

// Changed returns the materials re-read since BeginCycle, in first-seen order.
func (t *Table) Changed() []*Material {
	var out []*Material
	for _, id := range t.order {
		if e := t.entries[id]; e.changed {
			out = append(out, e.mat)
		}
	}
	return out
}

// All returns every known material, in first-seen order.
func (t *Table) All() []*Material {
	out := make([]*Material, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id].mat)
	}
	return out
}

// Len returns the number of known materials.
func (t *Table) Len() int { return len(t.order) }
