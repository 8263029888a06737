package memory

import (
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// Demo asset names registered by RegisterDemo.
const (
	DemoCubes = "demo::cubes"
	DemoHelix = "demo::helix"
)

func demoGenerators() map[string]Generator {
	return map[string]Generator{
		"cubes": Cubes,
		"helix": Helix,
	}
}

// RegisterDemo defines the demo assets with their default parameters.
func (e *Engine) RegisterDemo() {
	_ = e.Define(Definition{
		Name: DemoCubes,
		Parms: Parms{
			{Name: "count", Type: hapi.ParmInt, Ints: []int32{3}},
			{Name: "spacing", Type: hapi.ParmFloat, Floats: []float32{2.5}},
			{Name: "size", Type: hapi.ParmFloat, Floats: []float32{1}},
			{Name: "color", Type: hapi.ParmColor, Floats: []float32{0.8, 0.3, 0.2}},
			{Name: "alpha", Type: hapi.ParmFloat, Floats: []float32{1}},
			{Name: "texture", Type: hapi.ParmString, Strings: []string{"checker"}},
		},
		Generate: Cubes,
	})
	_ = e.Define(Definition{
		Name: DemoHelix,
		Parms: Parms{
			{Name: "turns", Type: hapi.ParmFloat, Floats: []float32{3}},
			{Name: "radius", Type: hapi.ParmFloat, Floats: []float32{1}},
			{Name: "height", Type: hapi.ParmFloat, Floats: []float32{4}},
			{Name: "points", Type: hapi.ParmInt, Ints: []int32{16}},
		},
		Generate: Helix,
	})
}

// cube corners, then quad faces listed counter-clockwise from outside.
var (
	cubeCorners = [8][3]float32{
		{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
		{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
	}
	cubeFaces = [6][4]int32{
		{0, 3, 2, 1}, {4, 5, 6, 7}, {0, 1, 5, 4},
		{2, 3, 7, 6}, {1, 2, 6, 5}, {0, 4, 7, 3},
	}
	cubeNormals = [6][3]float32{
		{0, 0, -1}, {0, 0, 1}, {0, -1, 0},
		{0, 1, 0}, {1, 0, 0}, {-1, 0, 0},
	}
)

// CubeGeo builds one cube part of half-extent size with vertex normals,
// vertex uvs and a uniform point color.
func CubeGeo(size float32, cd [3]float32, alpha float32, material hapi.NodeID) Geo {
	var p, n, uv, col, a []float32
	for _, c := range cubeCorners {
		p = append(p, c[0]*size, c[1]*size, c[2]*size)
		col = append(col, cd[0], cd[1], cd[2])
		a = append(a, alpha)
	}
	var faceCounts, vertices []int32
	var mats []hapi.NodeID
	corners := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for f, face := range cubeFaces {
		faceCounts = append(faceCounts, 4)
		vertices = append(vertices, face[:]...)
		for j := range face {
			n = append(n, cubeNormals[f][:]...)
			uv = append(uv, corners[j][0], corners[j][1], 0)
		}
		mats = append(mats, material)
	}

	attrs := []Attribute{
		{Name: "P", Owner: hapi.OwnerPoint, TupleSize: 3, Floats: p},
		{Name: "Cd", Owner: hapi.OwnerPoint, TupleSize: 3, Floats: col},
		{Name: "N", Owner: hapi.OwnerVertex, TupleSize: 3, Floats: n},
		{Name: "uv", Owner: hapi.OwnerVertex, TupleSize: 3, Floats: uv},
	}
	if alpha < 1 {
		attrs = append(attrs, Attribute{Name: "Alpha", Owner: hapi.OwnerPoint, TupleSize: 1, Floats: a})
	}
	return Geo{
		Name: "display",
		Parts: []Part{{
			Name:          "cube",
			Type:          hapi.PartMesh,
			FaceCounts:    faceCounts,
			VertexList:    vertices,
			Attributes:    attrs,
			FaceMaterials: mats,
		}},
	}
}

// Cubes generates a row of textured cubes, one object per cube.
func Cubes(parms Parms) (Snapshot, error) {
	count := parms.Int("count", 0, 3)
	if count < 0 {
		return Snapshot{}, fmt.Errorf("count must not be negative, got %d", count)
	}
	spacing := parms.Float("spacing", 0, 2.5)
	size := parms.Float("size", 0, 1)
	cd := [3]float32{parms.Float("color", 0, 1), parms.Float("color", 1, 1), parms.Float("color", 2, 1)}
	alpha := parms.Float("alpha", 0, 1)

	const mat hapi.NodeID = 1
	var snap Snapshot
	for i := 0; i < count; i++ {
		t := hapi.IdentityTransform()
		t.Position[0] = float32(i) * spacing
		snap.Objects = append(snap.Objects, Object{
			Name:      fmt.Sprintf("cube%d", i),
			Transform: t,
			Geos:      []Geo{CubeGeo(size*0.5, cd, alpha, mat)},
		})
	}

	m := Material{
		ID: mat,
		Parms: Parms{
			{Name: "ogl_diff", Type: hapi.ParmColor, Floats: []float32{cd[0], cd[1], cd[2]}},
			{Name: "ogl_alpha", Type: hapi.ParmFloat, Floats: []float32{alpha}},
			{Name: "ogl_rough", Type: hapi.ParmFloat, Floats: []float32{0.5}},
			{Name: "baseColorMap", Type: hapi.ParmPathFile, Strings: []string{parms.String("texture", 0, "")}},
		},
	}
	if name := parms.String("texture", 0, ""); name != "" {
		m.Textures = map[string]image.Image{"baseColorMap": Checker(64, 8)}
	}
	snap.Materials = []Material{m}
	return snap, nil
}

// Helix generates one object holding a single order-4 curve.
func Helix(parms Parms) (Snapshot, error) {
	n := parms.Int("points", 0, 16)
	if n < 2 {
		return Snapshot{}, fmt.Errorf("a helix needs at least 2 points, got %d", n)
	}
	turns := parms.Float("turns", 0, 3)
	radius := parms.Float("radius", 0, 1)
	height := parms.Float("height", 0, 4)

	p := make([]float32, 0, n*3)
	for i := 0; i < n; i++ {
		t := float32(i) / float32(n-1)
		angle := t * turns * 2 * math32.Pi
		p = append(p, radius*math32.Cos(angle), t*height, radius*math32.Sin(angle))
	}
	return Snapshot{Objects: []Object{{
		Name:      "helix",
		Transform: hapi.IdentityTransform(),
		Geos: []Geo{{
			Name: "display",
			Parts: []Part{{
				Name:        "curve",
				Type:        hapi.PartCurve,
				CurveType:   hapi.CurveBezier,
				CurveCounts: []int32{int32(n)},
				CurveOrder:  4,
				Attributes:  []Attribute{{Name: "P", Owner: hapi.OwnerPoint, TupleSize: 3, Floats: p}},
			}},
		}},
	}}}, nil
}

// Checker returns a size x size checkerboard with cells of cell pixels.
func Checker(size, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBA{R: 40, G: 40, B: 40, A: 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.NRGBA{R: 230, G: 230, B: 230, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
