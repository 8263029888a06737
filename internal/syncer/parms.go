package syncer

import (
	"go.uber.org/zap"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// findParm resolves an asset's parameter by name. Misses log a warning.
func (c *Context) findParm(asset, parm string) (hapi.NodeID, hapi.ParmInfo, bool, error) {
	a, ok := c.lookup(asset)
	if !ok {
		return hapi.InvalidNode, hapi.ParmInfo{}, false, nil
	}
	info, err := c.acc.AssetInfo(a.handle)
	if err != nil {
		return hapi.InvalidNode, hapi.ParmInfo{}, false, err
	}
	parms, err := c.acc.Parms(info.NodeID)
	if err != nil {
		return hapi.InvalidNode, hapi.ParmInfo{}, false, err
	}
	for _, p := range parms {
		if p.Name == parm {
			return info.NodeID, p, true, nil
		}
	}
	c.log.Warn("no such parameter", zap.String("asset", asset), zap.String("parm", parm))
	return hapi.InvalidNode, hapi.ParmInfo{}, false, nil
}

// SetParmFloat writes values to a float parameter starting at its first
// component. The change is visible after the next Cook.
func (c *Context) SetParmFloat(asset, parm string, values ...float32) (bool, error) {
	node, p, ok, err := c.findParm(asset, parm)
	if !ok || err != nil {
		return false, err
	}
	if !c.fits(asset, p, len(values), p.Type.IsFloat()) {
		return false, nil
	}
	if err := c.session.SetParmFloatValues(node, values, p.FloatValuesIndex); err != nil {
		return false, c.acc.Check("SetParmFloatValues", err)
	}
	return true, nil
}

// SetParmInt writes values to an int or toggle parameter.
func (c *Context) SetParmInt(asset, parm string, values ...int32) (bool, error) {
	node, p, ok, err := c.findParm(asset, parm)
	if !ok || err != nil {
		return false, err
	}
	if !c.fits(asset, p, len(values), !p.Type.IsFloat() && !p.Type.IsString()) {
		return false, nil
	}
	if err := c.session.SetParmIntValues(node, values, p.IntValuesIndex); err != nil {
		return false, c.acc.Check("SetParmIntValues", err)
	}
	return true, nil
}

// SetParmString writes the first component of a string parameter.
func (c *Context) SetParmString(asset, parm, value string) (bool, error) {
	node, p, ok, err := c.findParm(asset, parm)
	if !ok || err != nil {
		return false, err
	}
	if !c.fits(asset, p, 1, p.Type.IsString()) {
		return false, nil
	}
	if err := c.session.SetParmStringValue(node, value, p.ID, 0); err != nil {
		return false, c.acc.Check("SetParmStringValue", err)
	}
	return true, nil
}

func (c *Context) fits(asset string, p hapi.ParmInfo, n int, typeOK bool) bool {
	switch {
	case !typeOK:
		c.log.Warn("parameter has another type", zap.String("asset", asset), zap.String("parm", p.Name),
			zap.Stringer("type", p.Type))
		return false
	case n == 0 || n > p.Size:
		c.log.Warn("parameter size mismatch", zap.String("asset", asset), zap.String("parm", p.Name),
			zap.Int("size", p.Size), zap.Int("values", n))
		return false
	}
	return true
}
