// Package hapi defines the contract of the procedural engine session: ids,
// info structs, enumerations and the Session interface consumed by the
// synchronization pipeline.
package hapi

import "fmt"

// AssetID identifies an instantiated asset inside a session.
type AssetID int32

// NodeID identifies an engine node (materials, shader nodes).
type NodeID int32

// ParmID identifies a parameter on a node.
type ParmID int32

// LibraryID identifies a loaded asset library.
type LibraryID int32

// InvalidNode is returned when a face has no material bound.
const InvalidNode NodeID = -1

// AttributeOwner is the scope an attribute is defined at.
type AttributeOwner int

const (
	OwnerVertex AttributeOwner = iota
	OwnerPoint
	OwnerPrim
	OwnerDetail
	OwnerMax
)

// Owners lists the owner scopes in the order the materializer queries them.
var Owners = []AttributeOwner{OwnerPoint, OwnerVertex, OwnerPrim, OwnerDetail}

// String returns the owner name.
func (o AttributeOwner) String() string {
	switch o {
	case OwnerVertex:
		return "vertex"
	case OwnerPoint:
		return "point"
	case OwnerPrim:
		return "prim"
	case OwnerDetail:
		return "detail"
	default:
		return fmt.Sprintf("Owner(%d)", int(o))
	}
}

// StorageType is the element type of an attribute.
type StorageType int

const (
	StorageInt StorageType = iota
	StorageFloat
	StorageString
)

// PartType is the topology of a part.
type PartType int

const (
	PartInvalid PartType = iota - 1
	PartMesh
	PartCurve
	PartVolume
	PartInstancer
	PartBox
	PartSphere
)

// String returns the part type name.
func (t PartType) String() string {
	switch t {
	case PartMesh:
		return "mesh"
	case PartCurve:
		return "curve"
	case PartVolume:
		return "volume"
	case PartInstancer:
		return "instancer"
	case PartBox:
		return "box"
	case PartSphere:
		return "sphere"
	default:
		return "invalid"
	}
}

// CurveType is the basis of a curve part.
type CurveType int

const (
	CurveLinear CurveType = iota
	CurveNURBS
	CurveBezier
)

// Curve order sentinels.
const (
	CurveOrderVarying = 0
	CurveOrderInvalid = -1
)

// ParmType is the value type of a node parameter.
type ParmType int

const (
	ParmInt ParmType = iota
	ParmToggle
	ParmFloat
	ParmColor
	ParmString
	ParmPathFile
)

var parmTypeNames = [...]string{"int", "toggle", "float", "color", "string", "file"}

func (t ParmType) String() string {
	if t < 0 || int(t) >= len(parmTypeNames) {
		return fmt.Sprintf("ParmType(%d)", int(t))
	}
	return parmTypeNames[t]
}

// IsFloat reports whether values live in the float store.
func (t ParmType) IsFloat() bool { return t == ParmFloat || t == ParmColor }

// IsString reports whether values live in the string store.
func (t ParmType) IsString() bool { return t == ParmString || t == ParmPathFile }

// AssetInfo describes an instantiated asset as of the last completed cook.
type AssetInfo struct {
	ID                 AssetID
	NodeID             NodeID
	Name               string
	FilePath           string
	ObjectCount        int
	HaveObjectsChanged bool
}

// ObjectInfo describes a transform-level child of an asset.
type ObjectInfo struct {
	ID                  int
	Name                string
	IsInstancer         bool
	InstancePath        string
	HasTransformChanged bool
	HaveGeosChanged     bool
	GeoCount            int
}

// GeoInfo describes one surface-operator output of an object.
type GeoInfo struct {
	ID            int
	Name          string
	IsDisplayGeo  bool
	IsTemplated   bool
	PartCount     int
	HasGeoChanged bool
}

// PartInfo describes a drawable fragment of a geometry node.
type PartInfo struct {
	ID                   int
	Name                 string
	Type                 PartType
	FaceCount            int
	VertexCount          int
	PointCount           int
	PointAttributeCount  int
	VertexAttributeCount int
	FaceAttributeCount   int
	DetailAttributeCount int
}

// AttributeCount returns the number of attributes defined for the owner.
func (p PartInfo) AttributeCount(owner AttributeOwner) int {
	switch owner {
	case OwnerPoint:
		return p.PointAttributeCount
	case OwnerVertex:
		return p.VertexAttributeCount
	case OwnerPrim:
		return p.FaceAttributeCount
	case OwnerDetail:
		return p.DetailAttributeCount
	default:
		return 0
	}
}

// AttributeInfo describes one attribute array of a part.
type AttributeInfo struct {
	Exists    bool
	Owner     AttributeOwner
	Storage   StorageType
	Count     int
	TupleSize int
}

// Transform is a decomposed object transform.
type Transform struct {
	Position [3]float32
	Rotation [4]float32 // x, y, z, w
	Scale    [3]float32
}

// IdentityTransform returns a transform with no translation, rotation or scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
	}
}

// CurveInfo describes the curves held by a curve part.
type CurveInfo struct {
	Type       CurveType
	CurveCount int
	Order      int
	HasKnots   bool
}

// MaterialInfo describes a material node.
type MaterialInfo struct {
	NodeID     NodeID
	Exists     bool
	HasChanged bool
}

// ParmInfo describes a parameter of a node.
type ParmInfo struct {
	ID                ParmID
	Name              string
	Type              ParmType
	Size              int
	IntValuesIndex    int
	FloatValuesIndex  int
	StringValuesIndex int
}

// ImageInfo describes the image last rendered for a material.
type ImageInfo struct {
	Format string
	XRes   int
	YRes   int
}

// PartKey addresses one part in the asset hierarchy.
type PartKey struct {
	Asset  AssetID
	Object int
	Geo    int
	Part   int
}

// String returns a compact "a/o/g/p" form.
func (k PartKey) String() string {
	return fmt.Sprintf("%d/%d/%d/%d", k.Asset, k.Object, k.Geo, k.Part)
}
