package memory

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/Faultbox/hsync/pkg/hapi"
)

// NativeImageFormat is the format ExtractImageToMemory uses for "".
const NativeImageFormat = "TGA"

func (e *Engine) parmsOf(op string, id hapi.NodeID) (*node, *Parms, error) {
	if err := e.injected(op, nil); err != nil {
		return nil, nil, err
	}
	n, ok := e.nodes[id]
	if !ok {
		return nil, nil, e.fail(hapi.ResultInvalidArgument, "%s: no node %d", op, id)
	}
	if n.material != nil {
		return n, &n.material.Parms, nil
	}
	return n, &n.owner.parms, nil
}

// NodeParms describes the parameters of a node with their value-store offsets.
func (e *Engine) NodeParms(id hapi.NodeID) ([]hapi.ParmInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("NodeParms", id)
	if err != nil {
		return nil, err
	}
	infos := make([]hapi.ParmInfo, len(*ps))
	var ints, floats, strs int
	for i, p := range *ps {
		infos[i] = hapi.ParmInfo{
			ID:                hapi.ParmID(i),
			Name:              p.Name,
			Type:              p.Type,
			Size:              p.Size(),
			IntValuesIndex:    -1,
			FloatValuesIndex:  -1,
			StringValuesIndex: -1,
		}
		switch {
		case p.Type.IsFloat():
			infos[i].FloatValuesIndex = floats
			floats += p.Size()
		case p.Type.IsString():
			infos[i].StringValuesIndex = strs
			strs += p.Size()
		default:
			infos[i].IntValuesIndex = ints
			ints += p.Size()
		}
	}
	return infos, nil
}

// ParmFloatValues reads the node's flat float store.
func (e *Engine) ParmFloatValues(id hapi.NodeID, start, length int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("ParmFloatValues", id)
	if err != nil {
		return nil, err
	}
	var store []float32
	for _, p := range *ps {
		if p.Type.IsFloat() {
			store = append(store, p.Floats...)
		}
	}
	if !inRange(start, length, len(store)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "ParmFloatValues: range [%d,+%d) outside %d values", start, length, len(store))
	}
	return store[start : start+length], nil
}

// ParmIntValues reads the node's flat int store.
func (e *Engine) ParmIntValues(id hapi.NodeID, start, length int) ([]int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("ParmIntValues", id)
	if err != nil {
		return nil, err
	}
	var store []int32
	for _, p := range *ps {
		if !p.Type.IsFloat() && !p.Type.IsString() {
			store = append(store, p.Ints...)
		}
	}
	if !inRange(start, length, len(store)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "ParmIntValues: range [%d,+%d) outside %d values", start, length, len(store))
	}
	return store[start : start+length], nil
}

// ParmStringValues reads the node's flat string store.
func (e *Engine) ParmStringValues(id hapi.NodeID, start, length int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("ParmStringValues", id)
	if err != nil {
		return nil, err
	}
	var store []string
	for _, p := range *ps {
		if p.Type.IsString() {
			store = append(store, p.Strings...)
		}
	}
	if !inRange(start, length, len(store)) {
		return nil, e.fail(hapi.ResultInvalidArgument, "ParmStringValues: range [%d,+%d) outside %d values", start, length, len(store))
	}
	return store[start : start+length], nil
}

// SetParmFloatValues writes into the flat float store starting at start.
func (e *Engine) SetParmFloatValues(id hapi.NodeID, values []float32, start int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("SetParmFloatValues", id)
	if err != nil {
		return err
	}
	pos := 0
	written := 0
	for i := range *ps {
		p := &(*ps)[i]
		if !p.Type.IsFloat() {
			continue
		}
		for j := range p.Floats {
			if k := pos - start; k >= 0 && k < len(values) {
				p.Floats[j] = values[k]
				written++
			}
			pos++
		}
	}
	if written != len(values) {
		return e.fail(hapi.ResultParmSetFailed, "SetParmFloatValues: %d of %d values outside the float store", len(values)-written, len(values))
	}
	return nil
}

// SetParmIntValues writes into the flat int store starting at start.
func (e *Engine) SetParmIntValues(id hapi.NodeID, values []int32, start int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("SetParmIntValues", id)
	if err != nil {
		return err
	}
	pos := 0
	written := 0
	for i := range *ps {
		p := &(*ps)[i]
		if p.Type.IsFloat() || p.Type.IsString() {
			continue
		}
		for j := range p.Ints {
			if k := pos - start; k >= 0 && k < len(values) {
				p.Ints[j] = values[k]
				written++
			}
			pos++
		}
	}
	if written != len(values) {
		return e.fail(hapi.ResultParmSetFailed, "SetParmIntValues: %d of %d values outside the int store", len(values)-written, len(values))
	}
	return nil
}

// SetParmStringValue sets component index of a string parm.
func (e *Engine) SetParmStringValue(id hapi.NodeID, value string, parm hapi.ParmID, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ps, err := e.parmsOf("SetParmStringValue", id)
	if err != nil {
		return err
	}
	if int(parm) < 0 || int(parm) >= len(*ps) {
		return e.fail(hapi.ResultInvalidArgument, "SetParmStringValue: no parm %d on node %d", parm, id)
	}
	p := &(*ps)[parm]
	if !p.Type.IsString() || index < 0 || index >= len(p.Strings) {
		return e.fail(hapi.ResultParmSetFailed, "SetParmStringValue: parm %s has no string component %d", p.Name, index)
	}
	p.Strings[index] = value
	return nil
}

// RenderTextureToImage renders the texture named by a material parm.
func (e *Engine) RenderTextureToImage(material hapi.NodeID, parm hapi.ParmID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("RenderTextureToImage", nil); err != nil {
		return err
	}
	n, ok := e.nodes[material]
	if !ok || n.material == nil {
		return e.fail(hapi.ResultInvalidArgument, "RenderTextureToImage: node %d is not a material", material)
	}
	if int(parm) < 0 || int(parm) >= len(n.material.Parms) {
		return e.fail(hapi.ResultInvalidArgument, "RenderTextureToImage: no parm %d on material %d", parm, material)
	}
	img, ok := n.material.Textures[n.material.Parms[parm].Name]
	if !ok {
		return e.fail(hapi.ResultCantLoadFile, "RenderTextureToImage: parm %s has no texture", n.material.Parms[parm].Name)
	}
	n.rendered = img
	return nil
}

// ImageInfo describes the image last rendered for a material.
func (e *Engine) ImageInfo(material hapi.NodeID) (hapi.ImageInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.nodes[material]
	if !ok || n.rendered == nil {
		return hapi.ImageInfo{}, e.fail(hapi.ResultInvalidArgument, "ImageInfo: nothing rendered for node %d", material)
	}
	b := n.rendered.Bounds()
	return hapi.ImageInfo{Format: NativeImageFormat, XRes: b.Dx(), YRes: b.Dy()}, nil
}

// ExtractImageToMemory encodes the last rendered image. Supported formats
// are TGA (native), PNG, BMP and TIFF.
func (e *Engine) ExtractImageToMemory(material hapi.NodeID, format, _ string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.injected("ExtractImageToMemory", nil); err != nil {
		return nil, err
	}
	n, ok := e.nodes[material]
	if !ok || n.rendered == nil {
		return nil, e.fail(hapi.ResultInvalidArgument, "ExtractImageToMemory: nothing rendered for node %d", material)
	}
	if format == "" {
		format = NativeImageFormat
	}

	var buf bytes.Buffer
	var err error
	switch strings.ToUpper(format) {
	case "TGA":
		err = encodeTGA(&buf, n.rendered)
	case "PNG":
		err = png.Encode(&buf, n.rendered)
	case "BMP":
		err = bmp.Encode(&buf, n.rendered)
	case "TIFF":
		err = tiff.Encode(&buf, n.rendered, nil)
	default:
		return nil, e.fail(hapi.ResultInvalidArgument, "ExtractImageToMemory: unsupported format %q", format)
	}
	if err != nil {
		return nil, e.fail(hapi.ResultFailure, "ExtractImageToMemory: %v", err)
	}
	return buf.Bytes(), nil
}

// encodeTGA writes an uncompressed 32-bit top-left-origin Targa image.
func encodeTGA(buf *bytes.Buffer, img image.Image) error {
	b := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	header := [18]byte{2: 2, 16: 32, 17: 0x28}
	binary.LittleEndian.PutUint16(header[12:], uint16(b.Dx()))
	binary.LittleEndian.PutUint16(header[14:], uint16(b.Dy()))
	buf.Write(header[:])
	for i := 0; i < len(rgba.Pix); i += 4 {
		buf.Write([]byte{rgba.Pix[i+2], rgba.Pix[i+1], rgba.Pix[i], rgba.Pix[i+3]})
	}
	return nil
}
