package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/aidoctor/domain"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 90, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcess_SmallImageUnchanged(t *testing.T) {
	data := encodePNG(t, solid(10, 10))

	out, err := NewProcessor(Config{}).Process(data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", out.MIMEType)
	assert.Equal(t, data, out.Data)
}

func TestProcess_ResizesKeepingAspectRatio(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(400, 200), nil))

	out, err := NewProcessor(Config{MaxWidth: 100, MaxHeight: 100}).Process(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", out.MIMEType)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestProcess_RejectsOtherFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, solid(4, 4), nil))

	_, err := NewProcessor(Config{}).Process(buf.Bytes())
	assert.True(t, errors.Is(err, domain.ErrUnsupportedMedia))

	_, err = NewProcessor(Config{}).Process([]byte("not an image"))
	assert.True(t, errors.Is(err, domain.ErrUnsupportedMedia))
}
