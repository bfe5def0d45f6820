package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// imageXObject is a raster image ready to be written as an XObject.
type imageXObject struct {
	width  int
	height int
	rgb    []byte
	alpha  []byte
}

// decodeImage reads a PNG, JPEG or GIF and flattens it to 8-bit RGB with a
// separate alpha channel when any pixel is not opaque.
func decodeImage(data []byte) (*imageXObject, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	rgb := make([]byte, 0, b.Dx()*b.Dy()*3)
	alpha := make([]byte, 0, b.Dx()*b.Dy())
	opaque := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			rgb = append(rgb, c.R, c.G, c.B)
			alpha = append(alpha, c.A)
			if c.A != 0xff {
				opaque = false
			}
		}
	}

	out := &imageXObject{width: b.Dx(), height: b.Dy()}
	if out.rgb, err = deflate(rgb); err != nil {
		return nil, err
	}
	if !opaque {
		if out.alpha, err = deflate(alpha); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeTo stores the image, and its soft mask if any, as new objects.
func (img *imageXObject) writeTo(u *incrementalUpdate) ref {
	entries := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /BitsPerComponent 8 /Filter /FlateDecode",
		img.width, img.height)

	var smask string
	if img.alpha != nil {
		maskRef := u.add()
		u.putStream(maskRef, entries+" /ColorSpace /DeviceGray", img.alpha)
		smask = " /SMask " + maskRef.String()
	}

	r := u.add()
	u.putStream(r, entries+" /ColorSpace /DeviceRGB"+smask, img.rgb)
	return r
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress image: %w", err)
	}
	return buf.Bytes(), nil
}
