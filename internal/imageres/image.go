package imageres

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
)

// Image is a decoded bitmap, independent of the source encoding.
type Image struct {
	// Source is the URL or path the image was loaded from.
	Source string
	// Format is the decoder name reported by image.Decode (jpeg, png, gif).
	Format string
	Pixels image.Image
}

func (i *Image) Width() int  { return i.Pixels.Bounds().Dx() }
func (i *Image) Height() int { return i.Pixels.Bounds().Dy() }

// Mode names the pixel layout using the usual short names (RGB, RGBA, L, P, CMYK).
func (i *Image) Mode() string {
	switch i.Pixels.(type) {
	case *image.YCbCr:
		return "RGB"
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return "RGBA"
	case *image.Gray:
		return "L"
	case *image.Gray16:
		return "I;16"
	case *image.Paletted:
		return "P"
	case *image.CMYK:
		return "CMYK"
	default:
		return "RGB"
	}
}

// RGB returns an opaque 3-channel view of the image. Transparent regions are
// flattened onto white. JPEG data is already opaque RGB and is returned as is.
func (i *Image) RGB() image.Image {
	if yc, ok := i.Pixels.(*image.YCbCr); ok {
		return yc
	}
	b := i.Pixels.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), i.Pixels, b.Min, draw.Over)
	return dst
}

// EncodePNG serializes the RGB view of the image for transport to a model server.
func (i *Image) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, i.RGB()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
