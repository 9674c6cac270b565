// Package models - Class name tables and output layouts of detection models.
package models

import "fmt"

// ModelFamily is the family of models.
type ModelFamily string

const (
	// ModelFamilyYOLO is the anchor-free YOLO family (v8 and later) exported
	// with a single [1, 4+classes, anchors] output.
	ModelFamilyYOLO ModelFamily = "yolo"
)

// Strides are the feature map strides of the YOLO detection heads.
var Strides = []int{8, 16, 32}

// Layout describes the tensors of a YOLO model for one input size.
type Layout struct {
	// InputSize is the side of the square input image.
	InputSize int
	// NumClasses is the number of class score rows.
	NumClasses int
	// Anchors is the number of candidate boxes.
	Anchors int
}

// NewLayout computes the layout for a square input of size pixels.
//
// Arguments:
//   - size: The model input side; must be a positive multiple of the largest stride.
//   - numClasses: The number of classes the model predicts.
//
// Returns:
//   - Layout: The layout.
//   - error: If the size or class count is unusable.
func NewLayout(size, numClasses int) (Layout, error) {
	largest := Strides[len(Strides)-1]
	if size <= 0 || size%largest != 0 {
		return Layout{}, fmt.Errorf("input size %d must be a positive multiple of %d", size, largest)
	}
	if numClasses <= 0 {
		return Layout{}, fmt.Errorf("model must have at least one class, got %d", numClasses)
	}

	anchors := 0
	for _, s := range Strides {
		side := size / s
		anchors += side * side
	}

	return Layout{InputSize: size, NumClasses: numClasses, Anchors: anchors}, nil
}

// InputShape returns the NCHW input dimensions.
func (l Layout) InputShape() []int64 {
	return []int64{1, 3, int64(l.InputSize), int64(l.InputSize)}
}

// OutputShape returns the [1, 4+classes, anchors] output dimensions.
func (l Layout) OutputShape() []int64 {
	return []int64{1, int64(4 + l.NumClasses), int64(l.Anchors)}
}

// OutputLen returns the number of floats in the output tensor.
func (l Layout) OutputLen() int {
	return (4 + l.NumClasses) * l.Anchors
}
