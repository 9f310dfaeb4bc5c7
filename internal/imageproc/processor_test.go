package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	_ "image/jpeg"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessBoundsDimensions(t *testing.T) {
	p := NewProcessor(Options{MaxDimension: 100, ThumbnailSize: 40})

	result, err := p.Process(bytes.NewReader(encodePNG(t, 400, 200)))
	require.NoError(t, err)
	require.Equal(t, 100, result.Width)
	require.Equal(t, 50, result.Height)
	require.Equal(t, "image/jpeg", result.MimeType)

	decoded, format, err := image.DecodeConfig(bytes.NewReader(result.Image))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.Equal(t, 100, decoded.Width)

	thumb, _, err := image.DecodeConfig(bytes.NewReader(result.Thumbnail))
	require.NoError(t, err)
	require.Equal(t, 40, thumb.Width)
	require.Equal(t, 40, thumb.Height)
}

func TestProcessKeepsSmallImages(t *testing.T) {
	p := NewProcessor(Options{})

	result, err := p.Process(bytes.NewReader(encodePNG(t, 64, 32)))
	require.NoError(t, err)
	require.Equal(t, 64, result.Width)
	require.Equal(t, 32, result.Height)
}

func TestProcessRejectsInvalidInput(t *testing.T) {
	p := NewProcessor(Options{MaxBytes: 1024})

	_, err := p.Process(strings.NewReader("definitely not an image"))
	require.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = p.Process(bytes.NewReader(make([]byte, 2048)))
	require.ErrorIs(t, err, ErrTooLarge)
	require.EqualValues(t, 1024, p.MaxBytes())
}
