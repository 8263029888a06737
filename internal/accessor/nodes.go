package accessor

import (
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/pkg/hapi"
)

func zapPart(k hapi.PartKey) zap.Field {
	return zap.Stringer("part", k)
}

// MaterialInfo returns a material node's info.
func (a *Accessor) MaterialInfo(id hapi.NodeID) (hapi.MaterialInfo, error) {
	info, err := a.session.MaterialInfo(id)
	if err != nil {
		return hapi.MaterialInfo{}, a.Check("MaterialInfo", err)
	}
	return info, nil
}

// Parms returns the parameter table of a node.
func (a *Accessor) Parms(id hapi.NodeID) ([]hapi.ParmInfo, error) {
	parms, err := a.session.NodeParms(id)
	if err != nil {
		return nil, a.Check("NodeParms", err)
	}
	return parms, nil
}

// FindParm looks a parameter up by name.
func FindParm(parms []hapi.ParmInfo, name string) (hapi.ParmInfo, bool) {
	for _, p := range parms {
		if p.Name == name {
			return p, true
		}
	}
	return hapi.ParmInfo{}, false
}

// ParmFloats returns every float value of a parameter.
func (a *Accessor) ParmFloats(node hapi.NodeID, p hapi.ParmInfo) ([]float32, error) {
	if !p.Type.IsFloat() || p.Size == 0 {
		return []float32{}, nil
	}
	v, err := a.session.ParmFloatValues(node, p.FloatValuesIndex, p.Size)
	if err != nil {
		return nil, a.Check("ParmFloatValues", err)
	}
	return v, nil
}

// ParmInts returns every int value of a parameter.
func (a *Accessor) ParmInts(node hapi.NodeID, p hapi.ParmInfo) ([]int32, error) {
	if p.Type.IsFloat() || p.Type.IsString() || p.Size == 0 {
		return []int32{}, nil
	}
	v, err := a.session.ParmIntValues(node, p.IntValuesIndex, p.Size)
	if err != nil {
		return nil, a.Check("ParmIntValues", err)
	}
	return v, nil
}

// ParmString returns the first string value of a parameter.
func (a *Accessor) ParmString(node hapi.NodeID, p hapi.ParmInfo) (string, error) {
	if !p.Type.IsString() || p.Size == 0 {
		return "", nil
	}
	v, err := a.session.ParmStringValues(node, p.StringValuesIndex, 1)
	if err != nil {
		return "", a.Check("ParmStringValues", err)
	}
	return v[0], nil
}

// RenderTexture renders the texture named by a material parameter and
// returns the encoded image in the requested format.
func (a *Accessor) RenderTexture(material hapi.NodeID, parm hapi.ParmID, format string) ([]byte, hapi.ImageInfo, error) {
	if err := a.session.RenderTextureToImage(material, parm); err != nil {
		return nil, hapi.ImageInfo{}, a.Check("RenderTextureToImage", err)
	}
	info, err := a.session.ImageInfo(material)
	if err != nil {
		return nil, hapi.ImageInfo{}, a.Check("ImageInfo", err)
	}
	if format == "" {
		format = info.Format
	}
	data, err := a.session.ExtractImageToMemory(material, format, "C A")
	if err != nil {
		return nil, info, a.Check("ExtractImageToMemory", err)
	}
	info.Format = format
	return data, info, nil
}
