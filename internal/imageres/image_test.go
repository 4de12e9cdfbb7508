package imageres

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImage_ModeNames(t *testing.T) {
	cases := []struct {
		img  image.Image
		mode string
	}{
		{image.NewYCbCr(image.Rect(0, 0, 1, 1), image.YCbCrSubsampleRatio444), "RGB"},
		{image.NewNRGBA(image.Rect(0, 0, 1, 1)), "RGBA"},
		{image.NewGray(image.Rect(0, 0, 1, 1)), "L"},
		{image.NewPaletted(image.Rect(0, 0, 1, 1), color.Palette{color.Black}), "P"},
		{image.NewCMYK(image.Rect(0, 0, 1, 1)), "CMYK"},
	}
	for _, c := range cases {
		require.Equal(t, c.mode, (&Image{Pixels: c.img}).Mode())
	}
}

func TestImage_RGBFlattensAlphaOntoWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{A: 0})
	src.Set(1, 0, color.NRGBA{R: 255, A: 255})
	out := (&Image{Pixels: src}).RGB()
	r, g, b, a := out.At(0, 0).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Equal(t, uint32(0xffff), g)
	require.Equal(t, uint32(0xffff), b)
	require.Equal(t, uint32(0xffff), a)
	r, g, b, _ = out.At(1, 0).RGBA()
	require.Equal(t, uint32(0xffff), r)
	require.Zero(t, g)
	require.Zero(t, b)
}

func TestImage_EncodePNGRoundTripsDimensions(t *testing.T) {
	img := &Image{Pixels: image.NewGray(image.Rect(0, 0, 7, 3))}
	data, err := img.EncodePNG()
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Width)
	require.Equal(t, 3, cfg.Height)
}
