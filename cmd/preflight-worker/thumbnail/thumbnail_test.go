package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	return img
}

func TestEncodeBoundsLongEdge(t *testing.T) {
	data, err := Encode(solidImage(1600, 800), 400, 85)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := decoded.Bounds()
	assert.Equal(t, 400, b.Dx())
	assert.Equal(t, 200, b.Dy())
}

func TestEncodeDoesNotUpscale(t *testing.T) {
	data, err := Encode(solidImage(100, 50), 400, 85)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := decoded.Bounds()
	assert.Equal(t, 100, b.Dx())
	assert.Equal(t, 50, b.Dy())
}

func TestEncodePortrait(t *testing.T) {
	data, err := Encode(solidImage(500, 2000), 400, 85)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	b := decoded.Bounds()
	assert.Equal(t, 400, b.Dy())
	assert.Equal(t, 100, b.Dx())
}
