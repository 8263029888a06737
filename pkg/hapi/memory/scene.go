// Package memory implements hapi.Session in process. Assets are produced by
// generator functions from their parameter values; every cook diffs the new
// output against the previous one to drive the engine's change flags.
package memory

import (
	"fmt"
	"image"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// Attribute is one attribute array of a part. Exactly one of the value
// slices is set; its length is Count()*TupleSize.
type Attribute struct {
	Name      string
	Owner     hapi.AttributeOwner
	TupleSize int
	Floats    []float32
	Ints      []int32
	Strings   []string
}

// Storage returns the storage type implied by the populated slice.
func (a Attribute) Storage() hapi.StorageType {
	switch {
	case a.Ints != nil:
		return hapi.StorageInt
	case a.Strings != nil:
		return hapi.StorageString
	default:
		return hapi.StorageFloat
	}
}

// Count returns the number of tuples.
func (a Attribute) Count() int {
	if a.TupleSize <= 0 {
		return 0
	}
	switch a.Storage() {
	case hapi.StorageInt:
		return len(a.Ints) / a.TupleSize
	case hapi.StorageString:
		return len(a.Strings) / a.TupleSize
	default:
		return len(a.Floats) / a.TupleSize
	}
}

// Part is one drawable fragment.
type Part struct {
	Name       string
	Type       hapi.PartType
	FaceCounts []int32
	VertexList []int32
	Attributes []Attribute

	// Curve topology, used when Type is hapi.PartCurve.
	CurveType   hapi.CurveType
	CurveCounts []int32
	CurveOrder  int // uniform order; hapi.CurveOrderVarying uses CurveOrders
	CurveOrders []int32

	// FaceMaterials holds the local material id bound to each face.
	FaceMaterials []hapi.NodeID
}

// PointCount returns the number of points, taken from the P attribute.
func (p *Part) PointCount() int {
	for _, a := range p.Attributes {
		if a.Owner == hapi.OwnerPoint && a.Name == "P" {
			return a.Count()
		}
	}
	return 0
}

// FaceCount returns the number of faces (curves for curve parts).
func (p *Part) FaceCount() int {
	if p.Type == hapi.PartCurve {
		return len(p.CurveCounts)
	}
	return len(p.FaceCounts)
}

// VertexCount returns the number of vertices.
func (p *Part) VertexCount() int {
	if p.Type == hapi.PartCurve {
		n := 0
		for _, c := range p.CurveCounts {
			n += int(c)
		}
		return n
	}
	return len(p.VertexList)
}

func (p *Part) attributeCount(owner hapi.AttributeOwner) int {
	n := 0
	for _, a := range p.Attributes {
		if a.Owner == owner {
			n++
		}
	}
	return n
}

func (p *Part) attribute(owner hapi.AttributeOwner, name string) (*Attribute, bool) {
	for i := range p.Attributes {
		if p.Attributes[i].Owner == owner && p.Attributes[i].Name == name {
			return &p.Attributes[i], true
		}
	}
	return nil, false
}

// Geo is one geometry node of an object.
type Geo struct {
	Name      string
	Templated bool
	Parts     []Part
}

// Object is a transform-level child of an asset. Geos[0] is the display geo.
type Object struct {
	Name         string
	Transform    hapi.Transform
	InstancePath string
	Geos         []Geo
}

// Parm is a parameter value set on a node.
type Parm struct {
	Name    string
	Type    hapi.ParmType
	Floats  []float32
	Ints    []int32
	Strings []string
}

// Size returns the parameter's tuple size.
func (p Parm) Size() int {
	switch {
	case p.Type.IsFloat():
		return len(p.Floats)
	case p.Type.IsString():
		return len(p.Strings)
	default:
		return len(p.Ints)
	}
}

// Material is a material node produced by a cook. ID is local to the asset.
type Material struct {
	ID       hapi.NodeID
	Parms    Parms
	Textures map[string]image.Image // keyed by the parm that names the map
}

// Snapshot is the complete output of one cook.
type Snapshot struct {
	Objects   []Object
	Materials []Material
}

// Parms is the parameter set passed to a generator.
type Parms []Parm

// Float returns component i of a float parm, or def when absent.
func (ps Parms) Float(name string, i int, def float32) float32 {
	for _, p := range ps {
		if p.Name == name && i < len(p.Floats) {
			return p.Floats[i]
		}
	}
	return def
}

// Int returns component i of an int parm, or def when absent.
func (ps Parms) Int(name string, i int, def int) int {
	for _, p := range ps {
		if p.Name == name && i < len(p.Ints) {
			return int(p.Ints[i])
		}
	}
	return def
}

// String returns component i of a string parm, or def when absent.
func (ps Parms) String(name string, i int, def string) string {
	for _, p := range ps {
		if p.Name == name && i < len(p.Strings) {
			return p.Strings[i]
		}
	}
	return def
}

// Generator produces an asset's output for a set of parameter values.
type Generator func(parms Parms) (Snapshot, error)

// Definition is an instantiable asset.
type Definition struct {
	Name     string
	Parms    Parms
	Generate Generator
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("asset definition has no name")
	}
	if d.Generate == nil {
		return fmt.Errorf("asset definition %q has no generator", d.Name)
	}
	return nil
}

func cloneParms(ps Parms) Parms {
	out := make(Parms, len(ps))
	for i, p := range ps {
		out[i] = Parm{
			Name:    p.Name,
			Type:    p.Type,
			Floats:  append([]float32(nil), p.Floats...),
			Ints:    append([]int32(nil), p.Ints...),
			Strings: append([]string(nil), p.Strings...),
		}
	}
	return out
}
