package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
)

// LetterboxFill is the padding colour used around a letterboxed image.
var LetterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxInfo records how a source image was placed on the square canvas so
// that model coordinates can be mapped back.
type LetterboxInfo struct {
	// Scale is canvas pixels per source pixel.
	Scale float32
	// PadX, PadY are the offsets of the resized image on the canvas.
	PadX, PadY int
	// SourceWidth, SourceHeight are the original dimensions.
	SourceWidth, SourceHeight int
}

// Letterbox resizes img to fit a size x size canvas while keeping its aspect
// ratio, centring it and padding the remainder with LetterboxFill.
//
// Arguments:
//   - img: The source image.
//   - size: The side of the square canvas (the model input size).
//
// Returns:
//   - *image.RGBA: The canvas.
//   - LetterboxInfo: The placement, for Unscale.
func Letterbox(img image.Image, size int) (*image.RGBA, LetterboxInfo) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	scale := math32.Min(float32(size)/float32(w), float32(size)/float32(h))
	newW := max(1, int(math32.Round(float32(w)*scale)))
	newH := max(1, int(math32.Round(float32(h)*scale)))

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: LetterboxFill}, image.Point{}, draw.Src)

	padX := (size - newW) / 2
	padY := (size - newH) / 2

	var resized image.Image = img
	if newW != w || newH != h {
		resized = resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)
	}
	draw.Draw(canvas, image.Rect(padX, padY, padX+newW, padY+newH), resized, resized.Bounds().Min, draw.Src)

	return canvas, LetterboxInfo{
		Scale:        scale,
		PadX:         padX,
		PadY:         padY,
		SourceWidth:  w,
		SourceHeight: h,
	}
}

// Unscale maps a box in canvas coordinates back to source pixels, clamped to
// the source frame.
func (l LetterboxInfo) Unscale(b Box) Box {
	px, py := float32(l.PadX), float32(l.PadY)
	return Box{
		X1: (b.X1 - px) / l.Scale,
		Y1: (b.Y1 - py) / l.Scale,
		X2: (b.X2 - px) / l.Scale,
		Y2: (b.Y2 - py) / l.Scale,
	}.Clamp(l.SourceWidth, l.SourceHeight)
}
