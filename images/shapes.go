// Package images - Image processing utilities.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Box is a bounding box in source image pixels.
type Box struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 float32
}

// Width returns the horizontal extent of the box, or 0 for an inverted box.
func (b Box) Width() float32 {
	return math32.Max(0, b.X2-b.X1)
}

// Height returns the vertical extent of the box, or 0 for an inverted box.
func (b Box) Height() float32 {
	return math32.Max(0, b.Y2-b.Y1)
}

// Area returns Width * Height.
func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Clamp restricts the box to the [0,w]x[0,h] frame.
func (b Box) Clamp(w, h int) Box {
	fw, fh := float32(w), float32(h)
	return Box{
		X1: math32.Min(math32.Max(b.X1, 0), fw),
		Y1: math32.Min(math32.Max(b.Y1, 0), fh),
		X2: math32.Min(math32.Max(b.X2, 0), fw),
		Y2: math32.Min(math32.Max(b.Y2, 0), fh),
	}
}

// Rect rounds the box to the nearest integer pixel rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(
		int(math32.Round(b.X1)),
		int(math32.Round(b.Y1)),
		int(math32.Round(b.X2)),
		int(math32.Round(b.Y2)),
	)
}

// CalculateIoU returns the Intersection over Union of two boxes: how much
// they overlap, as a number between 0.0 and 1.0.
//
// See also:
//   - http://ronny.rest/tutorials/module/localization_001/iou
//
// It is formally defined by the formula:
//
//	IoU = Area of Intersection / Area of Union
//
//	- A value of 1.0 means the boxes are identical.
//	- A value of 0.0 means the boxes don't overlap at all.
//
// The intersection starts at the maximum of the two top-left corners and ends
// at the minimum of the two bottom-right corners; when its width or height is
// zero or negative the boxes do not overlap and 0 is returned before any
// division. The union follows the Principle of Inclusion-Exclusion:
//
//	Area(Union) = Area(A) + Area(B) - Area(Intersection)
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	b := Box{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	fmt.Printf("The IoU is: %f\n", CalculateIoU(a, b)) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Box) float32 {
	ix1 := math32.Max(r.X1, o.X1)
	iy1 := math32.Max(r.Y1, o.Y1)
	ix2 := math32.Min(r.X2, o.X2)
	iy2 := math32.Min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return interArea / unionArea
}
