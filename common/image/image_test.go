package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSniffPNG(t *testing.T) {
	info, err := Sniff(pngBytes(t, 4, 3))
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, 4, info.Width)
	assert.Equal(t, 3, info.Height)
}

func TestSniffRejectsText(t *testing.T) {
	_, err := Sniff([]byte("hello world"))
	assert.True(t, errors.Is(err, ErrNotImage))

	_, err = Sniff(nil)
	assert.True(t, errors.Is(err, ErrNotImage))
}

func TestDecodeDataURL(t *testing.T) {
	raw := pngBytes(t, 1, 1)
	mimeType, data, err := DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, raw, data)

	_, _, err = DecodeDataURL("https://example.com/a.png")
	assert.Error(t, err)
}

func TestExtensionFromMimeType(t *testing.T) {
	tests := map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
		"image/gif":  ".gif",
		"":           ".jpg",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtensionFromMimeType(in), in)
	}
}
