package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/hsync/internal/material"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/internal/syncer"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

func TestMode(t *testing.T) {
	assert.Equal(t, gltf.PrimitiveTriangles, Mode(mirror.Quads))
	assert.Equal(t, gltf.PrimitiveTriangles, Mode(mirror.TriangleFan))
	assert.Equal(t, gltf.PrimitiveLineStrip, Mode(mirror.LineStrip))
	assert.Equal(t, gltf.PrimitivePoints, Mode(mirror.Points))
}

func twoStrips() *mirror.Scene {
	s := mirror.NewScene()
	g := s.Ensure("curves")
	g.EnsureObjectCount(2)
	g.Object(0).Transform = mirror.IdentityTransform()
	g.Object(0).Transform.Position = hmath.Vec3{X: 4}
	g.EnsureGeodeCount(0, 1)
	g.EnsureDrawableCount(0, 0, 1)
	d := g.Drawable(0, 0, 0)
	for i := 0; i < 5; i++ {
		d.AddVertex(hmath.Vec3{X: float32(i)})
	}
	d.AddPrimitiveSet(mirror.LineStrip, 0, 3)
	d.AddPrimitiveSet(mirror.LineStrip, 3, 2)
	// Object 1 has no geometry and becomes an empty node.
	g.Object(1).Transform = mirror.IdentityTransform()
	return s
}

func TestStripsStayApart(t *testing.T) {
	doc, stats, err := New(nil, nil).Document(twoStrips())
	require.NoError(t, err)

	assert.Equal(t, Stats{Assets: 1, Nodes: 3, Meshes: 1, Primitives: 1}, stats)
	require.Len(t, doc.Meshes, 1)
	p := doc.Meshes[0].Primitives[0]
	assert.Equal(t, gltf.PrimitiveLines, p.Mode)
	require.NotNil(t, p.Indices)
	assert.EqualValues(t, 6, doc.Accessors[*p.Indices].Count, "0-1 1-2 3-4")
	assert.Nil(t, p.Material)

	require.Len(t, doc.Scenes[0].Nodes, 1)
	root := doc.Nodes[doc.Scenes[0].Nodes[0]]
	assert.Equal(t, "curves", root.Name)
	require.Len(t, root.Children, 2)
	obj := doc.Nodes[root.Children[0]]
	assert.Equal(t, [3]float64{4, 0, 0}, obj.Translation)
	assert.Equal(t, "curves/object0", obj.Name)
	assert.Nil(t, doc.Nodes[root.Children[1]].Mesh)
}

func TestBrokenDrawableFailsTheSnapshot(t *testing.T) {
	s := twoStrips()
	g, _ := s.Get("curves")
	g.Drawable(0, 0, 0).AddNormal(hmath.Vec3{Z: 1})

	_, _, err := New(nil, nil).Document(s)
	assert.Error(t, err)
}

func TestSyncedCubesSnapshot(t *testing.T) {
	e := memory.New()
	e.RegisterDemo()
	c := syncer.New(e, syncer.DefaultOptions(), nil)
	defer c.Close()
	_, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	store := material.NewStore(nil)
	for _, m := range c.Materials(true) {
		store.Apply(m)
	}

	path := filepath.Join(t.TempDir(), "cubes.glb")
	stats, err := New(store, nil).Write(c.Scene(), path, false)
	require.NoError(t, err)
	assert.Equal(t, Stats{Assets: 1, Nodes: 4, Meshes: 3, Primitives: 3, Materials: 1, Textures: 1}, stats)

	doc, err := gltf.Open(path)
	require.NoError(t, err)
	require.Len(t, doc.Meshes, 3)
	require.Len(t, doc.Materials, 1)
	for _, m := range doc.Meshes {
		p := m.Primitives[0]
		assert.Equal(t, gltf.PrimitiveTriangles, p.Mode)
		assert.EqualValues(t, 36, doc.Accessors[*p.Indices].Count, "six quads as twelve triangles")
		require.NotNil(t, p.Material)
		assert.EqualValues(t, 0, *p.Material)
	}
	pbr := doc.Materials[0].PBRMetallicRoughness
	require.NotNil(t, pbr.BaseColorTexture)
	assert.InDelta(t, 0.8, pbr.BaseColorFactor[0], 1e-6)
	assert.InDelta(t, 0.5, *pbr.RoughnessFactor, 1e-6)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, "image/png", doc.Images[0].MimeType)
}
