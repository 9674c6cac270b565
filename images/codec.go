package images

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // gif decoder
	"image/jpeg"
	_ "image/png" // png decoder

	_ "github.com/chai2010/webp" // webp decoder
	"github.com/pkg/errors"
)

// DefaultJPEGQuality is used when EncodeAnnotated is asked for quality 0.
const DefaultJPEGQuality = 75

// DefaultMaxPixels is the decode limit used when DecodeUpload is given 0. It
// matches the decompression bomb threshold of Pillow.
const DefaultMaxPixels = 178956970

var (
	// ErrDecode is returned when uploaded bytes are not a decodable image.
	ErrDecode = errors.New("image decode failed")
	// ErrEncode is returned when an annotated image cannot be serialized.
	ErrEncode = errors.New("image encode failed")
)

// DecodeUpload decodes raw upload bytes into an opaque RGB pixel buffer.
//
// Any alpha channel is dropped (the colour channels are kept as stored, not
// composited), grayscale and paletted sources are expanded to RGB, and the
// result bounds always start at (0,0). The header is read first so that an
// image declaring more than maxPixels pixels is refused before any pixel
// buffer is allocated.
//
// Arguments:
//   - data: The raw bytes of a JPEG, PNG, GIF or WebP file.
//   - maxPixels: The largest accepted width*height; 0 selects DefaultMaxPixels.
//
// Returns:
//   - *image.RGBA: The decoded image with every alpha value set to 255.
//   - error: ErrDecode wrapped with the decoder error.
func DecodeUpload(data []byte, maxPixels int) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrDecode, "empty payload")
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Wrapf(ErrDecode, "%s image has no pixels", format)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, errors.Wrapf(ErrDecode, "%s image of %dx%d exceeds the %d pixel limit",
			format, cfg.Width, cfg.Height, maxPixels)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "%v", err)
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, errors.Wrapf(ErrDecode, "%s image has no pixels", format)
	}

	return ToRGB(src), nil
}

// ToRGB copies img into a new *image.RGBA anchored at (0,0) with alpha
// stripped.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch src := img.(type) {
	case *image.YCbCr, *image.Gray:
		// Always opaque.
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	case *image.RGBA:
		copyRows(dst, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), b)
		return dst
	case *image.NRGBA:
		copyRows(dst, src.Pix, src.Stride, src.PixOffset(b.Min.X, b.Min.Y), b)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// copyRows copies 4-byte RGBA or NRGBA rows into dst and forces alpha to
// 255. The colour bytes are kept as stored, so premultiplied and
// non-premultiplied sources both keep their raw channel values.
func copyRows(dst *image.RGBA, pix []uint8, stride, start int, b image.Rectangle) {
	w := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		copy(row, pix[start+y*stride:start+y*stride+w])
		for i := 3; i < w; i += 4 {
			row[i] = 0xff
		}
	}
}

// EncodeAnnotated serializes img as JPEG and returns it base64 encoded with
// the standard alphabet and padding.
//
// Arguments:
//   - img: The annotated image.
//   - quality: JPEG quality 1-100; 0 selects DefaultJPEGQuality.
//
// Returns:
//   - string: The base64 JPEG.
//   - error: ErrEncode wrapped with details.
func EncodeAnnotated(img image.Image, quality int) (string, error) {
	if img == nil {
		return "", errors.Wrap(ErrEncode, "nil image")
	}
	if img.Bounds().Empty() {
		return "", errors.Wrapf(ErrEncode, "image has zero area (%v)", img.Bounds())
	}

	if quality == 0 {
		quality = DefaultJPEGQuality
	}
	quality = max(1, min(quality, 100))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", errors.Wrapf(ErrEncode, "%v", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
