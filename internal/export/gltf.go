// Package export writes glTF snapshots of a mirrored scene.
//
// Every asset becomes a root node, every object a child node carrying the
// object transform, and every non-empty drawable a mesh on that node.
// Quads and fans are triangulated; line strips and points keep their mode.
package export

import (
	"bytes"
	"fmt"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
)

// Materials looks up the material bound to a drawable.
type Materials interface {
	Get(asset string, id int32) (*material.Material, bool)
}

// Exporter converts mirrors to glTF documents.
type Exporter struct {
	mats Materials
	log  *zap.Logger

	doc    *gltf.Document
	matIdx map[material.Key]int
	stats  Stats
}

// Stats counts what a snapshot contains.
type Stats struct {
	Assets, Nodes, Meshes, Primitives, Materials, Textures int
}

// New creates an exporter. mats may be nil.
func New(mats Materials, log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{mats: mats, log: log}
}

// Document builds a glTF document from scene.
func (e *Exporter) Document(scene *mirror.Scene) (*gltf.Document, Stats, error) {
	e.doc = gltf.NewDocument()
	e.doc.Asset.Generator = "hsync"
	e.matIdx = make(map[material.Key]int)
	e.stats = Stats{}

	var err error
	scene.Each(func(g *mirror.Geometry) {
		if err != nil {
			return
		}
		var root int
		root, err = e.asset(g)
		if err == nil {
			e.doc.Scenes[0].Nodes = append(e.doc.Scenes[0].Nodes, root)
		}
	})
	if err != nil {
		return nil, Stats{}, err
	}
	return e.doc, e.stats, nil
}

// Write saves a snapshot of scene to path. A .glb extension or binary
// forces the binary container.
func (e *Exporter) Write(scene *mirror.Scene, path string, binary bool) (Stats, error) {
	doc, stats, err := e.Document(scene)
	if err != nil {
		return stats, err
	}
	if binary || strings.EqualFold(filepath.Ext(path), ".glb") {
		err = gltf.SaveBinary(doc, path)
	} else {
		err = gltf.Save(doc, path)
	}
	if err != nil {
		return stats, fmt.Errorf("writing %s: %w", path, err)
	}
	e.log.Info("snapshot written", zap.String("path", path),
		zap.Int("assets", stats.Assets), zap.Int("meshes", stats.Meshes), zap.Int("textures", stats.Textures))
	return stats, nil
}

func (e *Exporter) node(n *gltf.Node) int {
	e.doc.Nodes = append(e.doc.Nodes, n)
	e.stats.Nodes++
	return len(e.doc.Nodes) - 1
}

func (e *Exporter) asset(g *mirror.Geometry) (int, error) {
	e.stats.Assets++
	root := &gltf.Node{Name: g.Name}
	for oi, o := range g.Objects {
		name := o.Name
		if name == "" {
			name = fmt.Sprintf("%s/object%d", g.Name, oi)
		}
		t := o.Transform
		n := &gltf.Node{
			Name:        name,
			Translation: [3]float64{float64(t.Position.X), float64(t.Position.Y), float64(t.Position.Z)},
			Rotation:    [4]float64{float64(t.Rotation.X), float64(t.Rotation.Y), float64(t.Rotation.Z), float64(t.Rotation.W)},
			Scale:       [3]float64{float64(t.Scale.X), float64(t.Scale.Y), float64(t.Scale.Z)},
		}
		mesh, err := e.mesh(g.Name, name, o)
		if err != nil {
			return 0, err
		}
		if mesh != nil {
			e.doc.Meshes = append(e.doc.Meshes, mesh)
			n.Mesh = gltf.Index(len(e.doc.Meshes) - 1)
			e.stats.Meshes++
		}
		root.Children = append(root.Children, e.node(n))
	}
	return e.node(root), nil
}

func (e *Exporter) mesh(asset, name string, o *mirror.Object) (*gltf.Mesh, error) {
	var prims []*gltf.Primitive
	for _, gd := range o.Geodes {
		for _, d := range gd.Drawables {
			if len(d.Vertices) == 0 {
				continue
			}
			p, err := e.primitives(asset, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			prims = append(prims, p...)
		}
	}
	if len(prims) == 0 {
		return nil, nil
	}
	e.stats.Primitives += len(prims)
	return &gltf.Mesh{Name: name, Primitives: prims}, nil
}

// primitives writes the shared vertex buffers of d once and one indexed
// primitive per glTF mode.
func (e *Exporter) primitives(asset string, d *mirror.Drawable) ([]*gltf.Primitive, error) {
	if err := d.CheckLockstep(); err != nil {
		return nil, err
	}
	attrs := gltf.PrimitiveAttributes{
		gltf.POSITION: modeler.WritePosition(e.doc, vec3s(d.Vertices)),
	}
	if len(d.Normals) > 0 {
		attrs[gltf.NORMAL] = modeler.WriteNormal(e.doc, vec3s(d.Normals))
	}
	if len(d.Colors) > 0 {
		cols := make([][4]float32, len(d.Colors))
		for i, c := range d.Colors {
			cols[i] = [4]float32{c.X, c.Y, c.Z, c.W}
		}
		attrs[gltf.COLOR_0] = modeler.WriteColor(e.doc, cols)
	}
	if len(d.UVs) > 0 {
		uvs := make([][2]float32, len(d.UVs))
		for i, uv := range d.UVs {
			uvs[i] = [2]float32{uv.X, 1 - uv.Y}
		}
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(e.doc, uvs)
	}

	mat, err := e.material(asset, d)
	if err != nil {
		return nil, err
	}

	groups := make(map[gltf.PrimitiveMode][]uint32)
	var order []gltf.PrimitiveMode
	for _, set := range d.Sets {
		mode, idx := Mode(set.Mode), set.Indices()
		// Separate strips must not be joined into one.
		if mode == gltf.PrimitiveLineStrip {
			mode, idx = gltf.PrimitiveLines, stripToLines(idx)
		}
		if len(idx) == 0 {
			continue
		}
		if _, ok := groups[mode]; !ok {
			order = append(order, mode)
		}
		groups[mode] = append(groups[mode], idx...)
	}

	prims := make([]*gltf.Primitive, 0, len(order))
	for _, mode := range order {
		prims = append(prims, &gltf.Primitive{
			Attributes: attrs,
			Indices:    gltf.Index(modeler.WriteIndices(e.doc, groups[mode])),
			Mode:       mode,
			Material:   mat,
		})
	}
	return prims, nil
}

// Mode maps a primitive-set mode to the glTF mode of its Indices.
func Mode(m mirror.Mode) gltf.PrimitiveMode {
	switch {
	case m.Triangulated():
		return gltf.PrimitiveTriangles
	case m == mirror.LineStrip:
		return gltf.PrimitiveLineStrip
	default:
		return gltf.PrimitivePoints
	}
}

func stripToLines(strip []uint32) []uint32 {
	if len(strip) < 2 {
		return nil
	}
	out := make([]uint32, 0, (len(strip)-1)*2)
	for i := 0; i+1 < len(strip); i++ {
		out = append(out, strip[i], strip[i+1])
	}
	return out
}

func (e *Exporter) material(asset string, d *mirror.Drawable) (*int, error) {
	if d.Material == mirror.NoMaterial || e.mats == nil {
		return nil, nil
	}
	key := material.Key{Asset: asset, ID: d.Material}
	if i, ok := e.matIdx[key]; ok {
		return gltf.Index(i), nil
	}
	m, ok := e.mats.Get(asset, d.Material)
	if !ok {
		e.log.Debug("drawable refers to an unknown material", zap.String("asset", asset), zap.Int32("material", d.Material))
		return nil, nil
	}

	pbr := &gltf.PBRMetallicRoughness{
		BaseColorFactor: &[4]float64{
			float64(m.Float("ogl_diff", 0, 1)),
			float64(m.Float("ogl_diff", 1, 1)),
			float64(m.Float("ogl_diff", 2, 1)),
			float64(m.Float("ogl_alpha", 0, 1)),
		},
		MetallicFactor:  gltf.Float(0),
		RoughnessFactor: gltf.Float(float64(m.Float("ogl_rough", 0, 1))),
	}
	gm := &gltf.Material{
		Name:                 fmt.Sprintf("%s/material%d", asset, m.ID),
		PBRMetallicRoughness: pbr,
		EmissiveFactor: [3]float64{
			float64(m.Float("ogl_emit", 0, 0)),
			float64(m.Float("ogl_emit", 1, 0)),
			float64(m.Float("ogl_emit", 2, 0)),
		},
	}
	if m.Transparent() || d.Transparent {
		gm.AlphaMode = gltf.AlphaBlend
	}
	if m.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, m.Image); err != nil {
			return nil, fmt.Errorf("encoding texture of material %d: %w", m.ID, err)
		}
		img, err := modeler.WriteImage(e.doc, m.Texture, "image/png", &buf)
		if err != nil {
			return nil, err
		}
		e.doc.Textures = append(e.doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
		pbr.BaseColorTexture = &gltf.TextureInfo{Index: len(e.doc.Textures) - 1}
		e.stats.Textures++
	}

	e.doc.Materials = append(e.doc.Materials, gm)
	i := len(e.doc.Materials) - 1
	e.matIdx[key] = i
	e.stats.Materials++
	return gltf.Index(i), nil
}

func vec3s[T interface{ Array() [3]float32 }](vs []T) [][3]float32 {
	out := make([][3]float32, len(vs))
	for i, v := range vs {
		out[i] = v.Array()
	}
	return out
}
