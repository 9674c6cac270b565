package inference

import (
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/models"
	"gocv.io/x/gocv"
)

// palette colours boxes by class id.
var palette = []color.RGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
}

var labelText = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Annotator draws detection boxes and "<raw name> <confidence>" captions with
// OpenCV.
type Annotator struct {
	// Names resolves captions.
	Names models.ClassNameTable
	// Thickness is the box line width in pixels.
	Thickness int
	// FontScale scales the caption font.
	FontScale float64
}

// NewAnnotator returns an Annotator with line width and font scaled for
// typical phone photos.
func NewAnnotator(names models.ClassNameTable) *Annotator {
	return &Annotator{Names: names, Thickness: 2, FontScale: 0.6}
}

// Render draws dets onto a copy of img and returns it as *image.RGBA.
//
// Arguments:
//   - img: The decoded source image. It is not modified.
//   - dets: Detections in source pixel coordinates.
//
// Returns:
//   - image.Image: The annotated copy.
//   - error: If OpenCV could not convert the image.
func (a *Annotator) Render(img image.Image, dets []detection.RawDetection) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("converting image to mat: %w", err)
	}
	defer mat.Close()

	b := img.Bounds()
	for _, d := range dets {
		c := palette[abs(d.ClassID)%len(palette)]
		r := d.Box.Clamp(b.Dx(), b.Dy()).Rect()

		gocv.Rectangle(&mat, r, c, a.Thickness)

		caption := fmt.Sprintf("%s %.2f", a.Names.Name(d.ClassID), d.Confidence)
		size := gocv.GetTextSize(caption, gocv.FontHersheySimplex, a.FontScale, 1)

		// Caption sits above the box, or inside it when the box touches the top.
		top := r.Min.Y - size.Y - 6
		if top < 0 {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+size.X+4, top+size.Y+6)
		gocv.Rectangle(&mat, bg, c, -1)
		gocv.PutText(&mat, caption, image.Pt(bg.Min.X+2, bg.Max.Y-4), gocv.FontHersheySimplex, a.FontScale, labelText, 1)
	}

	out, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("converting mat to image: %w", err)
	}
	return images.ToRGB(out), nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
