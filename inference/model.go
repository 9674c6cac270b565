// Package inference - Detection model backends.
package inference

import (
	"context"
	"image"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/models"
)

// Model is a pretrained object detector.
type Model interface {
	// Infer returns the detections in img with confidence above threshold, in
	// the model's output order.
	Infer(ctx context.Context, img image.Image, threshold float32) ([]detection.RawDetection, error)
	// ClassNames is the table that RawDetection.ClassID indexes.
	ClassNames() models.ClassNameTable
	// Render draws dets onto a copy of img.
	Render(img image.Image, dets []detection.RawDetection) (image.Image, error)
	// Close releases the model's resources.
	Close() error
}

// Backend names a Model implementation.
type Backend string

const (
	// BackendONNX runs a YOLO model in-process with ONNX Runtime.
	BackendONNX Backend = "onnx"
	// BackendRemote calls an HTTP inference sidecar.
	BackendRemote Backend = "remote"
)
