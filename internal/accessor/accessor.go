// Package accessor is a read-only typed view over an engine session:
// Asset -> Objects -> Geos -> Parts -> Attributes.
//
// Handles are plain values identified by id. Metadata is fetched through the
// Accessor, which keeps the last fetched info per id in a cache that must be
// dropped with Forget after every cook of the asset.
package accessor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// EngineCallFailure is returned when an engine call reports a non-success code.
type EngineCallFailure struct {
	Op      string
	Code    hapi.Result
	Message string
}

func (e *EngineCallFailure) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Code, e.Message)
}

// Unwrap exposes the engine code.
func (e *EngineCallFailure) Unwrap() error { return e.Code }

// IsEngineCallFailure reports whether err came from a failed engine call.
func IsEngineCallFailure(err error) bool {
	var f *EngineCallFailure
	return errors.As(err, &f)
}

// Asset is a handle to an instantiated asset.
type Asset struct {
	ID hapi.AssetID
}

// Object is a handle to an object of an asset.
type Object struct {
	Asset hapi.AssetID
	ID    int
}

// Geo is a handle to a geometry node of an object.
type Geo struct {
	Asset  hapi.AssetID
	Object int
	ID     int
}

// Part is a handle to a part of a geometry node.
type Part struct {
	Key hapi.PartKey
}

// Object returns the handle of object i.
func (a Asset) Object(i int) Object { return Object{Asset: a.ID, ID: i} }

// Geo returns the handle of geo i.
func (o Object) Geo(i int) Geo { return Geo{Asset: o.Asset, Object: o.ID, ID: i} }

// Part returns the handle of part i.
func (g Geo) Part(i int) Part {
	return Part{Key: hapi.PartKey{Asset: g.Asset, Object: g.Object, Geo: g.ID, Part: i}}
}

type objectKey struct {
	asset  hapi.AssetID
	object int
}

type geoKey struct {
	asset       hapi.AssetID
	object, geo int
}

type cache struct {
	assets  map[hapi.AssetID]hapi.AssetInfo
	objects map[objectKey]hapi.ObjectInfo
	geos    map[geoKey]hapi.GeoInfo
	parts   map[hapi.PartKey]hapi.PartInfo
}

func newCache() cache {
	return cache{
		assets:  make(map[hapi.AssetID]hapi.AssetInfo),
		objects: make(map[objectKey]hapi.ObjectInfo),
		geos:    make(map[geoKey]hapi.GeoInfo),
		parts:   make(map[hapi.PartKey]hapi.PartInfo),
	}
}

// Accessor reads the hierarchy from a session.
// Not safe for concurrent use; the master's control loop owns it.
type Accessor struct {
	session hapi.Session
	log     *zap.Logger
	cache   cache
}

// New creates an accessor. A nil logger disables logging.
func New(session hapi.Session, log *zap.Logger) *Accessor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Accessor{session: session, log: log, cache: newCache()}
}

// Session returns the underlying session.
func (a *Accessor) Session() hapi.Session { return a.session }

// Check converts a session error into an EngineCallFailure carrying the
// engine's status string. A nil error stays nil.
func (a *Accessor) Check(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineCallFailure{
		Op:      op,
		Code:    hapi.ResultOf(err),
		Message: a.session.StatusString(hapi.StatusCallResult, hapi.VerbosityErrors),
	}
}

// Forget drops every cached info of the asset. Must be called after the
// asset is cooked or destroyed.
func (a *Accessor) Forget(id hapi.AssetID) {
	delete(a.cache.assets, id)
	for k := range a.cache.objects {
		if k.asset == id {
			delete(a.cache.objects, k)
		}
	}
	for k := range a.cache.geos {
		if k.asset == id {
			delete(a.cache.geos, k)
		}
	}
	for k := range a.cache.parts {
		if k.Asset == id {
			delete(a.cache.parts, k)
		}
	}
}

// Reset drops the whole cache.
func (a *Accessor) Reset() {
	a.cache = newCache()
}

// AssetInfo returns the asset's info.
func (a *Accessor) AssetInfo(h Asset) (hapi.AssetInfo, error) {
	if info, ok := a.cache.assets[h.ID]; ok {
		return info, nil
	}
	info, err := a.session.AssetInfo(h.ID)
	if err != nil {
		return hapi.AssetInfo{}, a.Check("AssetInfo", err)
	}
	a.cache.assets[h.ID] = info
	return info, nil
}

// Objects returns handles for every object of the asset. The object set is
// recomposed by the engine on every cook, so its size comes from the
// current asset info.
func (a *Accessor) Objects(h Asset) ([]Object, error) {
	info, err := a.AssetInfo(h)
	if err != nil {
		return nil, err
	}
	out := make([]Object, info.ObjectCount)
	for i := range out {
		out[i] = h.Object(i)
	}
	if info.ObjectCount == 0 {
		return out, nil
	}
	if _, ok := a.cache.objects[objectKey{h.ID, 0}]; ok {
		return out, nil
	}

	infos, err := a.session.ObjectInfos(h.ID, 0, info.ObjectCount)
	if err != nil {
		return nil, a.Check("ObjectInfos", err)
	}
	for i, oi := range infos {
		a.cache.objects[objectKey{h.ID, i}] = oi
	}
	return out, nil
}

// ObjectInfo returns an object's info.
func (a *Accessor) ObjectInfo(h Object) (hapi.ObjectInfo, error) {
	if info, ok := a.cache.objects[objectKey{h.Asset, h.ID}]; ok {
		return info, nil
	}
	infos, err := a.session.ObjectInfos(h.Asset, h.ID, 1)
	if err != nil {
		return hapi.ObjectInfo{}, a.Check("ObjectInfos", err)
	}
	a.cache.objects[objectKey{h.Asset, h.ID}] = infos[0]
	return infos[0], nil
}

// Transforms fetches every object transform of the asset in one call.
// The engine clears all transform-changed flags as a side effect, so the
// result is never cached and object infos must be read first.
func (a *Accessor) Transforms(h Asset) ([]hapi.Transform, error) {
	info, err := a.AssetInfo(h)
	if err != nil {
		return nil, err
	}
	if info.ObjectCount == 0 {
		return nil, nil
	}
	xf, err := a.session.ComposeObjectTransforms(h.ID, 0, info.ObjectCount)
	if err != nil {
		return nil, a.Check("ComposeObjectTransforms", err)
	}
	return xf, nil
}

// Geometries returns the display geometry of the object. Templated and
// intermediate geometries are not exposed.
func (a *Accessor) Geometries(h Object) ([]Geo, error) {
	info, err := a.ObjectInfo(h)
	if err != nil {
		return nil, err
	}
	if info.GeoCount == 0 {
		return []Geo{}, nil
	}
	g := h.Geo(0)
	gi, err := a.GeoInfo(g)
	if err != nil {
		return nil, err
	}
	if gi.IsTemplated {
		return []Geo{}, nil
	}
	return []Geo{g}, nil
}

// GeoInfo returns a geometry node's info.
func (a *Accessor) GeoInfo(h Geo) (hapi.GeoInfo, error) {
	k := geoKey{h.Asset, h.Object, h.ID}
	if info, ok := a.cache.geos[k]; ok {
		return info, nil
	}
	info, err := a.session.GeoInfo(h.Asset, h.Object, h.ID)
	if err != nil {
		return hapi.GeoInfo{}, a.Check("GeoInfo", err)
	}
	a.cache.geos[k] = info
	return info, nil
}

// Parts returns handles for every part of the geometry node.
func (a *Accessor) Parts(h Geo) ([]Part, error) {
	info, err := a.GeoInfo(h)
	if err != nil {
		return nil, err
	}
	out := make([]Part, info.PartCount)
	for i := range out {
		out[i] = h.Part(i)
	}
	return out, nil
}

// PartInfo returns a part's info.
func (a *Accessor) PartInfo(h Part) (hapi.PartInfo, error) {
	if info, ok := a.cache.parts[h.Key]; ok {
		return info, nil
	}
	info, err := a.session.PartInfo(h.Key)
	if err != nil {
		return hapi.PartInfo{}, a.Check("PartInfo", err)
	}
	a.cache.parts[h.Key] = info
	return info, nil
}
