package syncer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/cook"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
	hmath "github.com/Faultbox/hsync/pkg/math"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.PollInterval = time.Millisecond
	return opts
}

func newContext(t *testing.T, opts ...memory.Option) (*Context, *memory.Engine) {
	t.Helper()
	e := memory.New(opts...)
	e.RegisterDemo()
	return New(e, testOptions(), nil), e
}

func withCubes(t *testing.T) (*Context, *memory.Engine, *mirror.Geometry) {
	t.Helper()
	c, e := newContext(t, memory.WithCookPolls(2))
	_, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)
	g, ok := c.Scene().Get(memory.DemoCubes)
	require.True(t, ok)
	return c, e, g
}

func recook(t *testing.T, c *Context, name string) {
	t.Helper()
	ok, err := c.Cook(context.Background(), name)
	require.NoError(t, err)
	require.True(t, ok)
}

type drawableState struct {
	vertices []hmath.Vec3
	colors   []hmath.Vec4
	sets     []mirror.PrimitiveSet
	revision uint64
}

func capture(g *mirror.Geometry) []drawableState {
	var out []drawableState
	g.Walk(func(_, _, _ int, d *mirror.Drawable) {
		out = append(out, drawableState{
			vertices: append([]hmath.Vec3(nil), d.Vertices...),
			colors:   append([]hmath.Vec4(nil), d.Colors...),
			sets:     append([]mirror.PrimitiveSet(nil), d.Sets...),
			revision: d.Revision(),
		})
	})
	return out
}

func anyFlag(g *mirror.Geometry) bool {
	if g.ObjectsChanged {
		return true
	}
	for _, o := range g.Objects {
		if o.TransformChanged || o.GeosChanged {
			return true
		}
		for _, gd := range o.Geodes {
			if gd.Changed {
				return true
			}
		}
	}
	return false
}

func TestFirstProcessBuildsTheMirror(t *testing.T) {
	c, e := newContext(t)
	_, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Assets)
	assert.Equal(t, 3, r.Transforms)
	assert.Equal(t, 3, r.Parts)
	assert.Zero(t, r.Failed)
	assert.NoError(t, r.Err)
	assert.Equal(t, 3, r.Published)

	g, ok := c.Scene().Get(memory.DemoCubes)
	require.True(t, ok)
	require.Len(t, g.Objects, 3)
	assert.True(t, g.ObjectsChanged)
	for i, o := range g.Objects {
		assert.Equal(t, float32(i)*2.5, o.Transform.Position.X)
		assert.True(t, o.TransformChanged)
		assert.True(t, o.GeosChanged)
		require.Len(t, o.Geodes, 1)
		require.Len(t, o.Geodes[0].Drawables, 1)
		d := o.Geodes[0].Drawables[0]
		assert.Len(t, d.Vertices, 24)
		assert.Equal(t, []mirror.PrimitiveSet{{Mode: mirror.Quads, Start: 0, Count: 24}}, d.Sets)
		assert.NotEqual(t, mirror.NoMaterial, d.Material)
	}
	assert.Equal(t, []string{"cube0", "cube1", "cube2"},
		[]string{g.Objects[0].Name, g.Objects[1].Name, g.Objects[2].Name})

	mats := c.Materials(false)
	require.Len(t, mats, 1)
	assert.Equal(t, memory.DemoCubes, mats[0].Asset)
	assert.NotEmpty(t, mats[0].WebP)

	snap, ok := e.Snapshot(c.assets[memory.DemoCubes].handle.ID)
	require.True(t, ok)
	assert.Len(t, snap.Objects, 3)
}

func TestUnchangedRecookIsIdempotent(t *testing.T) {
	c, _, g := withCubes(t)
	before := capture(g)

	recook(t, c, memory.DemoCubes)
	r, err := c.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, r.Assets)
	assert.Zero(t, r.Parts)
	assert.Zero(t, r.Published)
	assert.False(t, anyFlag(g))
	assert.Equal(t, before, capture(g))
	assert.Empty(t, c.Materials(false))
	assert.Len(t, c.Materials(true), 1)
}

func TestProcessWithoutCookDoesNothing(t *testing.T) {
	c, _, g := withCubes(t)
	before := capture(g)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Zero(t, r.Assets)
	assert.False(t, anyFlag(g))
	assert.Equal(t, before, capture(g))
}

func TestTransformOnlyEdit(t *testing.T) {
	c, _, g := withCubes(t)
	before := capture(g)

	ok, err := c.SetParmFloat(memory.DemoCubes, "spacing", 4)
	require.NoError(t, err)
	require.True(t, ok)
	recook(t, c, memory.DemoCubes)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Transforms)
	assert.Zero(t, r.Parts)

	assert.True(t, g.ObjectsChanged)
	assert.False(t, g.Objects[0].TransformChanged, "cube0 stays at the origin")
	assert.True(t, g.Objects[1].TransformChanged)
	assert.Equal(t, float32(8), g.Objects[2].Transform.Position.X)
	for _, o := range g.Objects {
		assert.False(t, o.GeosChanged)
	}
	assert.Equal(t, before, capture(g))
}

func TestGeometryEdit(t *testing.T) {
	c, _, g := withCubes(t)

	ok, err := c.SetParmFloat(memory.DemoCubes, "alpha", 0.5)
	require.NoError(t, err)
	require.True(t, ok)
	recook(t, c, memory.DemoCubes)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Parts)
	assert.Equal(t, 3, r.Published)
	for _, o := range g.Objects {
		assert.False(t, o.TransformChanged)
		assert.True(t, o.GeosChanged)
		d := o.Geodes[0].Drawables[0]
		assert.True(t, d.Transparent)
		require.Len(t, d.Colors, 24)
		assert.Equal(t, float32(0.5), d.Colors[0].W)
	}
	require.Len(t, c.Materials(false), 1, "ogl_alpha changed")
}

func TestShrinkingObjectCountClearsInPlace(t *testing.T) {
	c, _, g := withCubes(t)

	ok, err := c.SetParmInt(memory.DemoCubes, "count", 2)
	require.NoError(t, err)
	require.True(t, ok)
	recook(t, c, memory.DemoCubes)

	r, err := c.Process()
	require.NoError(t, err)
	require.Len(t, g.Objects, 3, "mirror never shrinks")
	assert.Equal(t, 1, r.Published)

	stale := g.Objects[2]
	assert.True(t, stale.GeosChanged)
	assert.True(t, stale.Geodes[0].Changed)
	assert.Empty(t, stale.Geodes[0].Drawables[0].Vertices)
	assert.False(t, g.Objects[0].GeosChanged)

	// Nothing left to clear on the next cycle.
	recook(t, c, memory.DemoCubes)
	r, err = c.Process()
	require.NoError(t, err)
	assert.Zero(t, r.Published)
	assert.False(t, anyFlag(g))
}

func TestPartFailureIsIsolated(t *testing.T) {
	c, e := newContext(t)
	id, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	e.FailOnPart("FaceCounts", hapi.PartKey{Asset: id, Object: 1}, "boom", 1)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Equal(t, 3, r.Parts)
	assert.Equal(t, 1, r.Failed)
	require.Error(t, r.Err)
	assert.True(t, accessor.IsEngineCallFailure(r.Err))
	assert.Contains(t, r.Err.Error(), "boom")

	g, _ := c.Scene().Get(memory.DemoCubes)
	assert.Len(t, g.Drawable(0, 0, 0).Vertices, 24)
	assert.Empty(t, g.Drawable(0, 0, 1).Vertices)
	assert.Len(t, g.Drawable(0, 0, 2).Vertices, 24)
}

func TestHierarchyFailureAbortsTheCycle(t *testing.T) {
	c, e := newContext(t)
	_, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)
	e.FailOn("ObjectInfos", "engine gone", 1)

	_, err = c.Process()
	require.Error(t, err)
	var f *accessor.EngineCallFailure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "ObjectInfos", f.Op)
	assert.Contains(t, f.Message, "engine gone")
}

func TestCookFailure(t *testing.T) {
	c, e, _ := withCubes(t)
	e.FailNextCook("bad geometry")

	ok, err := c.Cook(context.Background(), memory.DemoCubes)
	assert.True(t, ok)
	var f *cook.Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, hapi.StateReadyWithCookErrors, f.State)
	assert.Contains(t, f.Message, "bad geometry")
}

func TestInstantiateFailures(t *testing.T) {
	c, e := newContext(t)
	_, err := c.Instantiate(context.Background(), "no::such")
	assert.True(t, accessor.IsEngineCallFailure(err))

	e.FailNextCook("broken")
	_, err = c.Instantiate(context.Background(), memory.DemoHelix)
	require.Error(t, err)
	assert.Empty(t, c.Assets())
	assert.Empty(t, e.Assets(), "failed asset is destroyed")

	_, err = c.Instantiate(context.Background(), memory.DemoHelix)
	require.NoError(t, err)
	_, err = c.Instantiate(context.Background(), memory.DemoHelix)
	assert.ErrorContains(t, err, "already instantiated")
}

func TestCookHonoursCancellation(t *testing.T) {
	c, _ := newContext(t, memory.WithCookPolls(1000))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := c.Instantiate(ctx, memory.DemoHelix)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLookupMissesWarn(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := memory.New()
	e.RegisterDemo()
	c := New(e, testOptions(), zap.New(core))
	_, err := c.Instantiate(context.Background(), memory.DemoCubes)
	require.NoError(t, err)

	ok, err := c.Cook(context.Background(), "nope")
	assert.False(t, ok)
	assert.NoError(t, err)
	ok, err = c.SetParmFloat("nope", "spacing", 1)
	assert.False(t, ok)
	assert.NoError(t, err)
	ok, err = c.SetParmFloat(memory.DemoCubes, "nope", 1)
	assert.False(t, ok)
	assert.NoError(t, err)
	ok, err = c.SetParmString(memory.DemoCubes, "spacing", "x")
	assert.False(t, ok)
	assert.NoError(t, err)
	ok, err = c.SetParmFloat(memory.DemoCubes, "color", 1, 2, 3, 4)
	assert.False(t, ok)
	assert.NoError(t, err)
	ok, err = c.Release("nope")
	assert.False(t, ok)
	assert.NoError(t, err)
	_, ok = c.AssetID("nope")
	assert.False(t, ok)

	assert.Equal(t, 4, logs.FilterMessage("no such asset").Len())
	assert.Equal(t, 1, logs.FilterMessage("no such parameter").Len())
	assert.Equal(t, 1, logs.FilterMessage("parameter has another type").Len())
	assert.Equal(t, 1, logs.FilterMessage("parameter size mismatch").Len())
}

func TestSetParmString(t *testing.T) {
	c, _, _ := withCubes(t)
	ok, err := c.SetParmString(memory.DemoCubes, "texture", "")
	require.NoError(t, err)
	require.True(t, ok)
	recook(t, c, memory.DemoCubes)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Zero(t, r.Parts, "a texture edit leaves the geometry alone")
	assert.NoError(t, r.Err)
	mats := c.Materials(false)
	require.Len(t, mats, 1)
	assert.Empty(t, mats[0].Texture)
	assert.Nil(t, mats[0].WebP)

	all := c.Materials(true)
	require.Len(t, all, 1)
	assert.Same(t, mats[0], all[0])

	_, err = c.Process()
	require.NoError(t, err)
	assert.Empty(t, c.Materials(false))
}

func TestRelease(t *testing.T) {
	c, e, _ := withCubes(t)
	ok, err := c.Release(memory.DemoCubes)
	require.NoError(t, err)
	require.True(t, ok)

	_, found := c.Scene().Get(memory.DemoCubes)
	assert.False(t, found)
	assert.Empty(t, c.Assets())
	assert.Empty(t, e.Assets())
	assert.Equal(t, []string{memory.DemoCubes}, c.TakeReleased())
	assert.Empty(t, c.TakeReleased())
}

func TestLibraryReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.yaml")
	write := func(count int) {
		data := []byte("assets:\n  - name: lib::cubes\n    generator: cubes\n    parms:\n" +
			"      - {name: count, type: int, ints: [" + string(rune('0'+count)) + "]}\n")
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
	write(2)

	c, _ := newContext(t)
	names, err := c.LoadLibrary(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"lib::cubes"}, names)
	oldID, err := c.Instantiate(context.Background(), "lib::cubes")
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)
	g, _ := c.Scene().Get("lib::cubes")
	require.Len(t, g.Objects, 2)

	write(4)
	require.NoError(t, c.Reload(context.Background(), path))
	newID, ok := c.AssetID("lib::cubes")
	require.True(t, ok)
	assert.NotEqual(t, oldID, newID)

	r, err := c.Process()
	require.NoError(t, err)
	assert.Equal(t, 4, r.Parts)
	assert.Len(t, g.Objects, 4)
	same, _ := c.Scene().Get("lib::cubes")
	assert.Same(t, g, same)
}

func TestFailedReloadKeepsPreviousInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.yaml")
	data := []byte("assets:\n  - name: lib::cubes\n    generator: cubes\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c, e := newContext(t)
	_, err := c.LoadLibrary(path)
	require.NoError(t, err)
	oldID, err := c.Instantiate(context.Background(), "lib::cubes")
	require.NoError(t, err)
	_, err = c.Process()
	require.NoError(t, err)

	e.FailOn("InstantiateAsset", "out of licenses", 1)
	err = c.Reload(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re-instantiating lib::cubes")

	id, ok := c.AssetID("lib::cubes")
	require.True(t, ok)
	assert.Equal(t, oldID, id)
	assert.Equal(t, []hapi.AssetID{oldID}, e.Assets())

	ok, err = c.Cook(context.Background(), "lib::cubes")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.Release("lib::cubes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, e.Assets())
}

func TestClose(t *testing.T) {
	c, e, _ := withCubes(t)
	require.NoError(t, c.Close())
	assert.Empty(t, e.Assets())
	assert.Empty(t, c.Assets())
}
