package accessor

import (
	"fmt"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// AttributeNames lists the part's attribute names for an owner. The engine
// rejects zero-length queries, so an owner without attributes yields an
// empty list without a call.
func (a *Accessor) AttributeNames(h Part, owner hapi.AttributeOwner) ([]string, error) {
	info, err := a.PartInfo(h)
	if err != nil {
		return nil, err
	}
	count := info.AttributeCount(owner)
	if count == 0 {
		return []string{}, nil
	}
	names, err := a.session.AttributeNames(h.Key, owner, count)
	if err != nil {
		return nil, a.Check("AttributeNames", err)
	}
	return names, nil
}

// AttributeInfo describes one attribute. Missing attributes report
// Exists=false without error.
func (a *Accessor) AttributeInfo(h Part, owner hapi.AttributeOwner, name string) (hapi.AttributeInfo, error) {
	info, err := a.session.AttributeInfo(h.Key, owner, name)
	if err != nil {
		return hapi.AttributeInfo{}, a.Check("AttributeInfo", err)
	}
	return info, nil
}

func (a *Accessor) existing(h Part, owner hapi.AttributeOwner, name string) (hapi.AttributeInfo, error) {
	info, err := a.AttributeInfo(h, owner, name)
	if err != nil {
		return info, err
	}
	if !info.Exists {
		return info, &EngineCallFailure{
			Op:      "AttributeInfo",
			Code:    hapi.ResultInvalidArgument,
			Message: fmt.Sprintf("part %s has no %s attribute %q", h.Key, owner, name),
		}
	}
	return info, nil
}

// FloatData returns the attribute as a flat array of Count*TupleSize floats.
func (a *Accessor) FloatData(h Part, owner hapi.AttributeOwner, name string) ([]float32, hapi.AttributeInfo, error) {
	info, err := a.existing(h, owner, name)
	if err != nil {
		return nil, info, err
	}
	data, err := a.session.AttributeFloatData(h.Key, name, info, 0, info.Count)
	if err != nil {
		return nil, info, a.Check("AttributeFloatData", err)
	}
	return data, info, nil
}

// IntData returns the attribute as a flat array of Count*TupleSize ints.
func (a *Accessor) IntData(h Part, owner hapi.AttributeOwner, name string) ([]int32, hapi.AttributeInfo, error) {
	info, err := a.existing(h, owner, name)
	if err != nil {
		return nil, info, err
	}
	data, err := a.session.AttributeIntData(h.Key, name, info, 0, info.Count)
	if err != nil {
		return nil, info, a.Check("AttributeIntData", err)
	}
	return data, info, nil
}

// StringData returns the attribute as a flat array of Count*TupleSize strings.
func (a *Accessor) StringData(h Part, owner hapi.AttributeOwner, name string) ([]string, hapi.AttributeInfo, error) {
	info, err := a.existing(h, owner, name)
	if err != nil {
		return nil, info, err
	}
	data, err := a.session.AttributeStringData(h.Key, name, info, 0, info.Count)
	if err != nil {
		return nil, info, a.Check("AttributeStringData", err)
	}
	return data, info, nil
}

// FaceCounts returns the vertex count of every face.
func (a *Accessor) FaceCounts(h Part) ([]int32, error) {
	info, err := a.PartInfo(h)
	if err != nil {
		return nil, err
	}
	counts, err := a.session.FaceCounts(h.Key, 0, info.FaceCount)
	if err != nil {
		return nil, a.Check("FaceCounts", err)
	}
	return counts, nil
}

// VertexList returns the point index of every vertex, grouped by face.
func (a *Accessor) VertexList(h Part) ([]int32, error) {
	info, err := a.PartInfo(h)
	if err != nil {
		return nil, err
	}
	list, err := a.session.VertexList(h.Key, 0, info.VertexCount)
	if err != nil {
		return nil, a.Check("VertexList", err)
	}
	return list, nil
}

// Curves returns per-curve vertex counts and orders of a curve part.
func (a *Accessor) Curves(h Part) (counts, orders []int32, err error) {
	ci, err := a.session.CurveInfo(h.Key)
	if err != nil {
		return nil, nil, a.Check("CurveInfo", err)
	}
	if ci.CurveCount == 0 {
		return []int32{}, []int32{}, nil
	}
	counts, err = a.session.CurveCounts(h.Key, 0, ci.CurveCount)
	if err != nil {
		return nil, nil, a.Check("CurveCounts", err)
	}
	if ci.Order != hapi.CurveOrderVarying && ci.Order != hapi.CurveOrderInvalid {
		orders = make([]int32, ci.CurveCount)
		for i := range orders {
			orders[i] = int32(ci.Order)
		}
		return counts, orders, nil
	}
	orders, err = a.session.CurveOrders(h.Key, 0, ci.CurveCount)
	if err != nil {
		return nil, nil, a.Check("CurveOrders", err)
	}
	return counts, orders, nil
}

// Material returns the material bound to the part's faces, or
// hapi.InvalidNode when there is none. Parts are assumed to carry a single
// material; mixed bindings resolve to the first face's material.
func (a *Accessor) Material(h Part) (hapi.NodeID, error) {
	info, err := a.PartInfo(h)
	if err != nil {
		return hapi.InvalidNode, err
	}
	if info.FaceCount == 0 {
		return hapi.InvalidNode, nil
	}
	ids, allSame, err := a.session.MaterialNodeIDsOnFaces(h.Key, 0, info.FaceCount)
	if err != nil {
		return hapi.InvalidNode, a.Check("MaterialNodeIDsOnFaces", err)
	}
	if !allSame {
		a.log.Warn("part has mixed materials, using the first face's",
			zapPart(h.Key))
	}
	return ids[0], nil
}
