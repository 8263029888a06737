package material

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Faultbox/hsync/internal/accessor"
	"github.com/Faultbox/hsync/internal/mirror"
	"github.com/Faultbox/hsync/pkg/hapi"
	"github.com/Faultbox/hsync/pkg/hapi/memory"
)

func cook(t *testing.T, e *memory.Engine) {
	t.Helper()
	for i := 0; i < 100; i++ {
		s, err := e.Status(hapi.StatusCookState)
		require.NoError(t, err)
		if s <= hapi.StateMaxReady {
			require.Equal(t, hapi.StateReady, s)
			return
		}
	}
	t.Fatal("cook did not finish")
}

// withMaterial defines an asset with one triangle bound to mat.
func withMaterial(t *testing.T, mat memory.Material) (*memory.Engine, *accessor.Accessor, accessor.Part) {
	t.Helper()
	e := memory.New()
	require.NoError(t, e.Define(memory.Definition{
		Name: "test::mat",
		Generate: func(memory.Parms) (memory.Snapshot, error) {
			return memory.Snapshot{
				Objects: []memory.Object{{
					Name:      "obj",
					Transform: hapi.IdentityTransform(),
					Geos: []memory.Geo{{Parts: []memory.Part{{
						Name: "tri", Type: hapi.PartMesh,
						FaceCounts: []int32{3}, VertexList: []int32{0, 1, 2},
						Attributes: []memory.Attribute{{Name: "P", Owner: hapi.OwnerPoint, TupleSize: 3,
							Floats: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}}},
						FaceMaterials: []hapi.NodeID{mat.ID},
					}}}},
				}},
				Materials: []memory.Material{mat},
			}, nil
		},
	}))
	id, err := e.InstantiateAsset("test::mat", true)
	require.NoError(t, err)
	cook(t, e)
	return e, accessor.New(e, nil), accessor.Asset{ID: id}.Object(0).Geo(0).Part(0)
}

func demoCubes(t *testing.T) (*memory.Engine, hapi.AssetID, *accessor.Accessor, hapi.NodeID) {
	t.Helper()
	e := memory.New()
	e.RegisterDemo()
	id, err := e.InstantiateAsset(memory.DemoCubes, true)
	require.NoError(t, err)
	cook(t, e)
	acc := accessor.New(e, nil)
	node, err := acc.Material(accessor.Asset{ID: id}.Object(0).Geo(0).Part(0))
	require.NoError(t, err)
	require.NotEqual(t, hapi.InvalidNode, node)
	return e, id, acc, node
}

func TestResolveDemoMaterial(t *testing.T) {
	_, _, acc, node := demoCubes(t)
	tbl := NewTable("cubes", acc, true, nil)

	m, err := tbl.Resolve(node)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "cubes", m.Asset)
	assert.Equal(t, int32(node), m.ID)
	assert.Equal(t, []Parm{
		{Name: "ogl_diff", Values: []float32{0.8, 0.3, 0.2}},
		{Name: "ogl_alpha", Values: []float32{1}},
		{Name: "ogl_rough", Values: []float32{0.5}},
	}, m.Parms)
	assert.Equal(t, "checker", m.Texture)
	assert.False(t, m.Transparent())

	require.NotNil(t, m.Image)
	assert.Equal(t, image.Rect(0, 0, 64, 64), m.Image.Bounds())
	require.NotEmpty(t, m.WebP)

	img, err := DecodeWebP(m.WebP)
	require.NoError(t, err)
	r, g, b, a := img.At(0, 0).RGBA()
	assert.Equal(t, []uint32{230, 230, 230, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
	r, _, _, _ = img.At(8, 0).RGBA()
	assert.Equal(t, uint32(40), r>>8)
}

func TestTexturesOff(t *testing.T) {
	_, _, acc, node := demoCubes(t)
	m, err := NewTable("cubes", acc, false, nil).Resolve(node)
	require.NoError(t, err)
	assert.Equal(t, "checker", m.Texture)
	assert.Nil(t, m.WebP)
	assert.Nil(t, m.Image)
}

func TestTextureLookupOrder(t *testing.T) {
	_, acc, p := withMaterial(t, memory.Material{
		ID: 1,
		Parms: memory.Parms{
			{Name: "map", Type: hapi.ParmPathFile, Strings: []string{"third"}},
			{Name: "ogl_tex1", Type: hapi.ParmPathFile, Strings: []string{""}},
			{Name: "baseColorMap", Type: hapi.ParmPathFile, Strings: []string{"second"}},
		},
	})
	node, err := acc.Material(p)
	require.NoError(t, err)

	m, err := NewTable("a", acc, false, nil).Resolve(node)
	require.NoError(t, err)
	assert.Equal(t, "second", m.Texture)
	assert.Empty(t, m.Parms)
}

func TestUnsupportedMaterialIsAWarning(t *testing.T) {
	_, acc, p := withMaterial(t, memory.Material{
		ID:    1,
		Parms: memory.Parms{{Name: "ogl_diff", Type: hapi.ParmColor, Floats: []float32{1, 1, 1}}},
	})
	node, err := acc.Material(p)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	m, err := NewTable("a", acc, true, zap.New(core)).Resolve(node)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, m.Texture)
	require.Equal(t, 1, logs.FilterMessage("unsupported material").Len())
	assert.Equal(t, "a", logs.All()[0].ContextMap()["asset"])
}

func TestMissingTextureImageFailsTheMaterial(t *testing.T) {
	_, acc, p := withMaterial(t, memory.Material{
		ID:    1,
		Parms: memory.Parms{{Name: "baseColorMap", Type: hapi.ParmPathFile, Strings: []string{"gone.png"}}},
	})
	node, err := acc.Material(p)
	require.NoError(t, err)

	_, err = NewTable("a", acc, true, nil).Resolve(node)
	require.Error(t, err)
	var f *accessor.EngineCallFailure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "RenderTextureToImage", f.Op)
	assert.Equal(t, hapi.ResultCantLoadFile, f.Code)
}

func TestBindMarksTransparency(t *testing.T) {
	tex := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	tex.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 128})
	_, acc, p := withMaterial(t, memory.Material{
		ID: 7,
		Parms: memory.Parms{
			{Name: "ogl_alpha", Type: hapi.ParmFloat, Floats: []float32{0.5}},
			{Name: "ogl_tex1", Type: hapi.ParmPathFile, Strings: []string{"glass"}},
		},
		Textures: map[string]image.Image{"ogl_tex1": tex},
	})
	node, err := acc.Material(p)
	require.NoError(t, err)

	d := &mirror.Drawable{Material: mirror.NoMaterial}
	require.NoError(t, NewTable("a", acc, true, nil).Bind(node, d))
	assert.Equal(t, int32(node), d.Material)
	assert.True(t, d.Transparent)
}

func TestBindNonMaterialNode(t *testing.T) {
	_, acc, _ := withMaterial(t, memory.Material{ID: 1})
	d := &mirror.Drawable{Material: mirror.NoMaterial}
	require.NoError(t, NewTable("a", acc, false, nil).Bind(hapi.NodeID(999), d))
	assert.Equal(t, mirror.NoMaterial, d.Material)
}

func TestChangedAcrossCycles(t *testing.T) {
	e, id, acc, node := demoCubes(t)
	tbl := NewTable("cubes", acc, false, nil)

	_, err := tbl.Resolve(node)
	require.NoError(t, err)
	_, err = tbl.Resolve(node)
	require.NoError(t, err)
	require.Len(t, tbl.Changed(), 1)
	assert.Equal(t, 1, tbl.Len())

	// A cook with identical output leaves the material unchanged.
	tbl.BeginCycle()
	require.NoError(t, e.CookAsset(id))
	cook(t, e)
	m, err := tbl.Resolve(node)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Empty(t, tbl.Changed())
	assert.Len(t, tbl.All(), 1)
}

func TestRefreshPicksUpMaterialOnlyEdits(t *testing.T) {
	e, id, acc, node := demoCubes(t)
	tbl := NewTable("cubes", acc, true, nil)
	m, err := tbl.Resolve(node)
	require.NoError(t, err)
	require.Equal(t, "checker", m.Texture)

	// A cook with identical output: refresh keeps the material as it was.
	require.NoError(t, e.CookAsset(id))
	cook(t, e)
	tbl.BeginCycle()
	require.NoError(t, tbl.Refresh())
	assert.Empty(t, tbl.Changed())

	info, err := acc.AssetInfo(accessor.Asset{ID: id})
	require.NoError(t, err)
	parms, err := acc.Parms(info.NodeID)
	require.NoError(t, err)
	p, ok := accessor.FindParm(parms, "texture")
	require.True(t, ok)
	require.NoError(t, e.SetParmStringValue(info.NodeID, "", p.ID, 0))
	require.NoError(t, e.CookAsset(id))
	cook(t, e)

	tbl.BeginCycle()
	require.NoError(t, tbl.Refresh())
	changed := tbl.Changed()
	require.Len(t, changed, 1)
	assert.Empty(t, changed[0].Texture)
	assert.Nil(t, changed[0].WebP)
	assert.Nil(t, changed[0].Image)
	assert.Same(t, changed[0], tbl.All()[0])
}

func TestRefreshFailureKeepsPreviousMaterial(t *testing.T) {
	e, _, acc, node := demoCubes(t)
	tbl := NewTable("cubes", acc, false, nil)
	before, err := tbl.Resolve(node)
	require.NoError(t, err)

	e.FailOn("MaterialInfo", "material node busy", 1)
	tbl.BeginCycle()
	err = tbl.Refresh()
	require.Error(t, err)
	assert.True(t, accessor.IsEngineCallFailure(err))
	assert.Empty(t, tbl.Changed())
	assert.Same(t, before, tbl.All()[0])
}

func TestDecode(t *testing.T) {
	_, err := Decode("JPEG", nil)
	assert.ErrorContains(t, err, `unsupported image format "JPEG"`)

	_, err = Decode("png", []byte("not a png"))
	assert.ErrorContains(t, err, "decode png image")
}

func TestStore(t *testing.T) {
	webp, err := EncodeWebP(memory.Checker(16, 4))
	require.NoError(t, err)

	s := NewStore(nil)
	s.Apply(&Material{Asset: "a", ID: 2, WebP: webp, Parms: []Parm{{Name: "ogl_alpha", Values: []float32{0.2}}}})
	s.Apply(&Material{Asset: "b", ID: 1})
	s.Apply(&Material{Asset: "a", ID: 1, WebP: []byte("junk")})

	m, ok := s.Get("a", 2)
	require.True(t, ok)
	require.NotNil(t, m.Image)
	assert.Equal(t, 16, m.Image.Bounds().Dx())
	assert.True(t, s.Transparent("a", 2))
	assert.False(t, s.Transparent("b", 1))
	assert.False(t, s.Transparent("zzz", 1))

	bad, ok := s.Get("a", 1)
	require.True(t, ok)
	assert.Nil(t, bad.Image)

	assert.Equal(t, []Key{{"a", 1}, {"a", 2}, {"b", 1}}, s.Keys())
	s.Release("a")
	assert.Equal(t, []Key{{"b", 1}}, s.Keys())
}
