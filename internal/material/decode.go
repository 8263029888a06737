package material

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// decoders maps an engine image format name to its decoder. image.Decode is
// not used: tga registers with an empty magic and would claim other formats.
var decoders = map[string]func(io.Reader) (image.Image, error){
	"TGA":  tga.Decode,
	"PNG":  png.Decode,
	"BMP":  bmp.Decode,
	"TIF":  tiff.Decode,
	"TIFF": tiff.Decode,
	"WEBP": webp.Decode,
}

// Decode decodes an extracted image of the given format.
func Decode(format string, data []byte) (image.Image, error) {
	dec, ok := decoders[strings.ToUpper(format)]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	img, err := dec(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return img, nil
}

// EncodeWebP encodes img losslessly for transport.
func EncodeWebP(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := nativewebp.Encode(&buf, img, nil); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeWebP decodes a texture received from the wire.
func DecodeWebP(data []byte) (image.Image, error) {
	return Decode("WEBP", data)
}
