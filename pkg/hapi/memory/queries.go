package memory

import (
	"github.com/Faultbox/hsync/pkg/hapi"
)

// AssetInfo returns the asset's info as of the last completed cook.
func (e *Engine) AssetInfo(id hapi.AssetID) (hapi.AssetInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.lookup("AssetInfo", id)
	if err != nil {
		return hapi.AssetInfo{}, err
	}
	return hapi.AssetInfo{
		ID:                 a.id,
		NodeID:             a.node,
		Name:               a.def.Name,
		FilePath:           "memory://" + a.def.Name,
		ObjectCount:        len(a.current.Objects),
		HaveObjectsChanged: a.objectsChanged,
	}, nil
}

// ObjectInfos returns infos for objects [start, start+length).
func (e *Engine) ObjectInfos(id hapi.AssetID, start, length int) ([]hapi.ObjectInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.lookup("ObjectInfos", id)
	if err != nil {
		return nil, err
	}
	if !inRange(start, length, len(a.current.Objects)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "ObjectInfos: range [%d,+%d) outside %d objects", start, length, len(a.current.Objects))
	}
	infos := make([]hapi.ObjectInfo, length)
	for i := range infos {
		idx := start + i
		obj := a.current.Objects[idx]
		infos[i] = hapi.ObjectInfo{
			ID:                  idx,
			Name:                obj.Name,
			IsInstancer:         obj.InstancePath != "",
			InstancePath:        obj.InstancePath,
			HasTransformChanged: a.transformChanged[idx],
			HaveGeosChanged:     a.geosChanged[idx],
			GeoCount:            len(obj.Geos),
		}
	}
	return infos, nil
}

// ComposeObjectTransforms returns object transforms and clears every
// transform-changed flag of the asset.
func (e *Engine) ComposeObjectTransforms(id hapi.AssetID, start, length int) ([]hapi.Transform, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.lookup("ComposeObjectTransforms", id)
	if err != nil {
		return nil, err
	}
	if !inRange(start, length, len(a.current.Objects)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "ComposeObjectTransforms: range [%d,+%d) outside %d objects", start, length, len(a.current.Objects))
	}
	out := make([]hapi.Transform, length)
	for i := range out {
		out[i] = a.current.Objects[start+i].Transform
	}
	for i := range a.transformChanged {
		a.transformChanged[i] = false
	}
	return out, nil
}

// GeoInfo returns the info of one geometry node.
func (e *Engine) GeoInfo(id hapi.AssetID, object, geo int) (hapi.GeoInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, err := e.lookup("GeoInfo", id)
	if err != nil {
		return hapi.GeoInfo{}, err
	}
	g, ok := a.geo(object, geo)
	if !ok {
		return hapi.GeoInfo{}, e.fail(hapi.ResultInvalidArgument, "GeoInfo: no geo %d/%d/%d", id, object, geo)
	}
	return hapi.GeoInfo{
		ID:            geo,
		Name:          g.Name,
		IsDisplayGeo:  geo == 0,
		IsTemplated:   g.Templated,
		PartCount:     len(g.Parts),
		HasGeoChanged: a.geoChanged[object][geo],
	}, nil
}

func (a *asset) geo(object, geo int) (*Geo, bool) {
	if object < 0 || object >= len(a.current.Objects) {
		return nil, false
	}
	obj := &a.current.Objects[object]
	if geo < 0 || geo >= len(obj.Geos) {
		return nil, false
	}
	return &obj.Geos[geo], true
}

func (e *Engine) part(op string, key hapi.PartKey) (*asset, *Part, error) {
	if err := e.injected(op, &key); err != nil {
		return nil, nil, err
	}
	a, ok := e.assets[key.Asset]
	if !ok {
		return nil, nil, e.fail(hapi.ResultInvalidArgument, "%s: no asset %d", op, key.Asset)
	}
	g, ok := a.geo(key.Object, key.Geo)
	if !ok || key.Part < 0 || key.Part >= len(g.Parts) {
		return nil, nil, e.fail(hapi.ResultInvalidArgument, "%s: no part %s", op, key)
	}
	return a, &g.Parts[key.Part], nil
}

// PartInfo returns the info of one part.
func (e *Engine) PartInfo(key hapi.PartKey) (hapi.PartInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("PartInfo", key)
	if err != nil {
		return hapi.PartInfo{}, err
	}
	return hapi.PartInfo{
		ID:                   key.Part,
		Name:                 p.Name,
		Type:                 p.Type,
		FaceCount:            p.FaceCount(),
		VertexCount:          p.VertexCount(),
		PointCount:           p.PointCount(),
		PointAttributeCount:  p.attributeCount(hapi.OwnerPoint),
		VertexAttributeCount: p.attributeCount(hapi.OwnerVertex),
		FaceAttributeCount:   p.attributeCount(hapi.OwnerPrim),
		DetailAttributeCount: p.attributeCount(hapi.OwnerDetail),
	}, nil
}

// AttributeNames lists attribute names for an owner. Like the native engine
// it rejects a zero count.
func (e *Engine) AttributeNames(key hapi.PartKey, owner hapi.AttributeOwner, count int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("AttributeNames", key)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, e.fail(hapi.ResultInvalidArgument, "AttributeNames: count must be positive, got %d", count)
	}
	names := make([]string, 0, count)
	for _, a := range p.Attributes {
		if a.Owner == owner {
			names = append(names, a.Name)
		}
	}
	if len(names) != count {
		return nil, e.fail(hapi.ResultInvalidArgument, "AttributeNames: %s has %d %s attributes, asked for %d", key, len(names), owner, count)
	}
	return names, nil
}

// AttributeInfo describes an attribute; a missing one reports Exists=false.
func (e *Engine) AttributeInfo(key hapi.PartKey, owner hapi.AttributeOwner, name string) (hapi.AttributeInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("AttributeInfo", key)
	if err != nil {
		return hapi.AttributeInfo{}, err
	}
	a, ok := p.attribute(owner, name)
	if !ok {
		return hapi.AttributeInfo{Owner: owner}, nil
	}
	return hapi.AttributeInfo{
		Exists:    true,
		Owner:     owner,
		Storage:   a.Storage(),
		Count:     a.Count(),
		TupleSize: a.TupleSize,
	}, nil
}

func (e *Engine) attributeData(op string, key hapi.PartKey, name string, info hapi.AttributeInfo, start, length int, storage hapi.StorageType) (*Attribute, int, int, error) {
	_, p, err := e.part(op, key)
	if err != nil {
		return nil, 0, 0, err
	}
	a, ok := p.attribute(info.Owner, name)
	if !ok {
		return nil, 0, 0, e.fail(hapi.ResultInvalidArgument, "%s: %s has no %s attribute %q", op, key, info.Owner, name)
	}
	if a.Storage() != storage {
		return nil, 0, 0, e.fail(hapi.ResultInvalidArgument, "%s: attribute %q has a different storage type", op, name)
	}
	if !inRange(start, length, a.Count()) {
		return nil, 0, 0, e.fail(hapi.ResultInvalidArgument, "%s: range [%d,+%d) outside %d tuples of %q", op, start, length, a.Count(), name)
	}
	return a, start * a.TupleSize, (start + length) * a.TupleSize, nil
}

// AttributeFloatData returns length tuples of a float attribute.
func (e *Engine) AttributeFloatData(key hapi.PartKey, name string, info hapi.AttributeInfo, start, length int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, lo, hi, err := e.attributeData("AttributeFloatData", key, name, info, start, length, hapi.StorageFloat)
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), a.Floats[lo:hi]...), nil
}

// AttributeIntData returns length tuples of an int attribute.
func (e *Engine) AttributeIntData(key hapi.PartKey, name string, info hapi.AttributeInfo, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, lo, hi, err := e.attributeData("AttributeIntData", key, name, info, start, length, hapi.StorageInt)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), a.Ints[lo:hi]...), nil
}

// AttributeStringData returns length tuples of a string attribute.
func (e *Engine) AttributeStringData(key hapi.PartKey, name string, info hapi.AttributeInfo, start, length int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, lo, hi, err := e.attributeData("AttributeStringData", key, name, info, start, length, hapi.StorageString)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), a.Strings[lo:hi]...), nil
}

// FaceCounts returns the vertex count of faces [start, start+length).
func (e *Engine) FaceCounts(key hapi.PartKey, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("FaceCounts", key)
	if err != nil {
		return nil, err
	}
	if !inRange(start, length, len(p.FaceCounts)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "FaceCounts: range [%d,+%d) outside %d faces", start, length, len(p.FaceCounts))
	}
	return append([]int32(nil), p.FaceCounts[start:start+length]...), nil
}

// VertexList returns point indices of vertices [start, start+length).
func (e *Engine) VertexList(key hapi.PartKey, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("VertexList", key)
	if err != nil {
		return nil, err
	}
	if p.Type == hapi.PartCurve && p.VertexList == nil {
		// Curve vertices map one to one onto points.
		n := p.VertexCount()
		if !inRange(start, length, n) {
			return nil, e.fail(hapi.ResultInvalidArgument, "VertexList: range [%d,+%d) outside %d vertices", start, length, n)
		}
		out := make([]int32, length)
		for i := range out {
			out[i] = int32(start + i)
		}
		return out, nil
	}
	if !inRange(start, length, len(p.VertexList)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "VertexList: range [%d,+%d) outside %d vertices", start, length, len(p.VertexList))
	}
	return append([]int32(nil), p.VertexList[start:start+length]...), nil
}

// CurveInfo describes a curve part.
func (e *Engine) CurveInfo(key hapi.PartKey) (hapi.CurveInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("CurveInfo", key)
	if err != nil {
		return hapi.CurveInfo{}, err
	}
	if p.Type != hapi.PartCurve {
		return hapi.CurveInfo{}, e.fail(hapi.ResultInvalidArgument, "CurveInfo: part %s is a %s", key, p.Type)
	}
	return hapi.CurveInfo{
		Type:       p.CurveType,
		CurveCount: len(p.CurveCounts),
		Order:      p.CurveOrder,
	}, nil
}

// CurveCounts returns the vertex count of curves [start, start+length).
func (e *Engine) CurveCounts(key hapi.PartKey, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("CurveCounts", key)
	if err != nil {
		return nil, err
	}
	if !inRange(start, length, len(p.CurveCounts)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "CurveCounts: range [%d,+%d) outside %d curves", start, length, len(p.CurveCounts))
	}
	return append([]int32(nil), p.CurveCounts[start:start+length]...), nil
}

// CurveOrders returns per-curve orders; only valid for varying-order parts.
func (e *Engine) CurveOrders(key hapi.PartKey, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, p, err := e.part("CurveOrders", key)
	if err != nil {
		return nil, err
	}
	if p.CurveOrder != hapi.CurveOrderVarying {
		return nil, e.fail(hapi.ResultInvalidArgument, "CurveOrders: part %s has uniform order %d", key, p.CurveOrder)
	}
	if !inRange(start, length, len(p.CurveOrders)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "CurveOrders: range [%d,+%d) outside %d curves", start, length, len(p.CurveOrders))
	}
	return append([]int32(nil), p.CurveOrders[start:start+length]...), nil
}

// MaterialNodeIDsOnFaces returns the material node bound to each face.
func (e *Engine) MaterialNodeIDsOnFaces(key hapi.PartKey, start, length int) ([]hapi.NodeID, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, p, err := e.part("MaterialNodeIDsOnFaces", key)
	if err != nil {
		return nil, false, err
	}
	if !inRange(start, length, p.FaceCount()) {
		return nil, false, e.fail(hapi.ResultInvalidArgument, "MaterialNodeIDsOnFaces: range [%d,+%d) outside %d faces", start, length, p.FaceCount())
	}
	ids := make([]hapi.NodeID, length)
	allSame := true
	for i := range ids {
		ids[i] = hapi.InvalidNode
		if f := start + i; f < len(p.FaceMaterials) {
			if n, ok := a.matNodes[p.FaceMaterials[f]]; ok {
				ids[i] = n
			}
		}
		if ids[i] != ids[0] {
			allSame = false
		}
	}
	return ids, allSame, nil
}

// MaterialInfo describes a material node.
func (e *Engine) MaterialInfo(id hapi.NodeID) (hapi.MaterialInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("MaterialInfo", nil); err != nil {
		return hapi.MaterialInfo{}, err
	}
	n, ok := e.nodes[id]
	if !ok || n.material == nil {
		return hapi.MaterialInfo{NodeID: id}, nil
	}
	return hapi.MaterialInfo{NodeID: id, Exists: true, HasChanged: n.changed}, nil
}

func inRange(start, length, n int) bool {
	return start >= 0 && length >= 0 && start+length <= n
}
