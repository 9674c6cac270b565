package images

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
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

func TestDecodeUpload_Formats(t *testing.T) {
	src := solid(64, 48, color.RGBA{R: 200, G: 10, B: 30, A: 255})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, src, &jpeg.Options{Quality: 95}))

	var wp bytes.Buffer
	require.NoError(t, webp.Encode(&wp, src, &webp.Options{Lossless: true}))

	tests := []struct {
		name   string
		data   []byte
		format ImageFormat
	}{
		{"png", encodePNG(t, src), FormatPNG},
		{"jpeg", jpg.Bytes(), FormatJPEG},
		{"webp", wp.Bytes(), FormatWebP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.format, SniffFormat(tt.data))

			img, err := DecodeUpload(tt.data, 0)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())

			r, g, b, a := img.At(10, 10).RGBA()
			assert.InDelta(t, 200, r>>8, 4)
			assert.InDelta(t, 10, g>>8, 4)
			assert.InDelta(t, 30, b>>8, 4)
			assert.Equal(t, uint32(0xffff), a)
		})
	}
}

func TestDecodeUpload_StripsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+0] = 100
		src.Pix[i+1] = 150
		src.Pix[i+2] = 250
		src.Pix[i+3] = 0
	}

	img, err := DecodeUpload(encodePNG(t, src), 0)
	require.NoError(t, err)

	got := img.RGBAAt(1, 1)
	assert.Equal(t, color.RGBA{R: 100, G: 150, B: 250, A: 255}, got, "colour channels kept, alpha dropped")
}

func TestDecodeUpload_Grayscale(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 77
	}

	img, err := DecodeUpload(encodePNG(t, src), 0)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 77, G: 77, B: 77, A: 255}, img.RGBAAt(2, 2))
}

func TestDecodeUpload_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("hello, this is not an image")},
		{"truncated png", encodePNG(t, solid(8, 8, color.White))[:20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeUpload(tt.data, 0)
			assert.Nil(t, img)
			assert.True(t, errors.Is(err, ErrDecode), "expected ErrDecode, got %v", err)
		})
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h 8-bit
// grayscale, with no pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth

	chunk := append([]byte("IHDR"), ihdr...)
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeUpload_PixelLimit(t *testing.T) {
	t.Run("declared gigapixel header", func(t *testing.T) {
		img, err := DecodeUpload(pngHeader(100000, 100000), 0)
		assert.Nil(t, img)
		require.True(t, errors.Is(err, ErrDecode), "expected ErrDecode, got %v", err)
		assert.Contains(t, err.Error(), "pixel limit")
	})

	t.Run("custom limit", func(t *testing.T) {
		data := encodePNG(t, solid(4, 4, color.White))

		_, err := DecodeUpload(data, 15)
		assert.True(t, errors.Is(err, ErrDecode), "expected ErrDecode, got %v", err)

		img, err := DecodeUpload(data, 16)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
	})
}

func TestToRGB_RowCopy(t *testing.T) {
	full := image.NewNRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < len(full.Pix); i += 4 {
		full.Pix[i+0], full.Pix[i+1], full.Pix[i+2], full.Pix[i+3] = 1, 2, 3, 0
	}
	full.SetNRGBA(2, 3, color.NRGBA{R: 9, G: 8, B: 7, A: 10})

	rgba := image.NewRGBA(image.Rect(0, 0, 6, 6))
	copy(rgba.Pix, full.Pix)

	for name, src := range map[string]image.Image{
		"nrgba": full.SubImage(image.Rect(2, 2, 5, 6)),
		"rgba":  rgba.SubImage(image.Rect(2, 2, 5, 6)),
	} {
		t.Run(name, func(t *testing.T) {
			out := ToRGB(src)
			require.Equal(t, image.Rect(0, 0, 3, 4), out.Bounds())
			assert.Equal(t, color.RGBA{R: 9, G: 8, B: 7, A: 255}, out.RGBAAt(0, 1))
			assert.Equal(t, color.RGBA{R: 1, G: 2, B: 3, A: 255}, out.RGBAAt(2, 3))
		})
	}
}

func TestEncodeAnnotated_RoundTrip(t *testing.T) {
	src := solid(32, 16, color.RGBA{R: 0, G: 128, B: 255, A: 255})

	encoded, err := EncodeAnnotated(src, 90)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err, "output must be standard base64")
	assert.Equal(t, FormatJPEG, SniffFormat(raw))

	decoded, err := jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())
}

func TestEncodeAnnotated_Quality(t *testing.T) {
	src := solid(8, 8, color.Black)

	for _, q := range []int{0, -5, 1, 100, 500} {
		_, err := EncodeAnnotated(src, q)
		assert.NoError(t, err, "quality %d should be clamped", q)
	}
}

func TestEncodeAnnotated_Errors(t *testing.T) {
	_, err := EncodeAnnotated(nil, 75)
	assert.True(t, errors.Is(err, ErrEncode))

	_, err = EncodeAnnotated(image.NewRGBA(image.Rect(0, 0, 0, 10)), 75)
	assert.True(t, errors.Is(err, ErrEncode))
}

func TestSniffFormat(t *testing.T) {
	assert.Equal(t, FormatGIF, SniffFormat([]byte("GIF89a....")))
	assert.Equal(t, FormatUnknown, SniffFormat([]byte("RIFF")))
	assert.Equal(t, FormatUnknown, SniffFormat(nil))
}
