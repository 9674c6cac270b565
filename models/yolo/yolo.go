// Package yolo - Pre and post processing for anchor-free YOLO detection models.
package yolo

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/models"
	"github.com/nvr-ai/predict/models/postprocess"
	"gorgonia.org/tensor"
)

// PrepareInput letterboxes img onto the model canvas and writes it into dst
// as planar RGB scaled to [0,1].
//
// Arguments:
//   - img: The source image.
//   - layout: The model layout.
//   - dst: The input tensor data, at least 3*size*size floats.
//
// Returns:
//   - images.LetterboxInfo: How to map boxes back to img.
//   - error: If dst is too small.
func PrepareInput(img image.Image, layout models.Layout, dst []float32) (images.LetterboxInfo, error) {
	size := layout.InputSize
	channelSize := size * size
	if len(dst) < channelSize*3 {
		return images.LetterboxInfo{}, fmt.Errorf("destination tensor only holds %d floats, needs %d", len(dst), channelSize*3)
	}

	canvas, info := images.Letterbox(img, size)

	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < size; y++ {
		off := canvas.PixOffset(0, y)
		for x := 0; x < size; x++ {
			red[i] = float32(canvas.Pix[off+0]) / 255.0
			green[i] = float32(canvas.Pix[off+1]) / 255.0
			blue[i] = float32(canvas.Pix[off+2]) / 255.0
			off += 4
			i++
		}
	}

	return info, nil
}

// Decode converts the raw [4+classes, anchors] output into candidate
// detections in canvas coordinates. A candidate is kept when its best class
// score is strictly greater than threshold.
func Decode(output []float32, layout models.Layout, threshold float32) ([]detection.RawDetection, error) {
	if len(output) != layout.OutputLen() {
		return nil, fmt.Errorf("output holds %d floats, layout expects %d", len(output), layout.OutputLen())
	}

	cols := 4 + layout.NumClasses
	backing := make([]float32, len(output))
	copy(backing, output)

	// One row per anchor: cx, cy, w, h, class scores...
	t := tensor.New(tensor.WithShape(cols, layout.Anchors), tensor.WithBacking(backing))
	if err := t.T(); err != nil {
		return nil, fmt.Errorf("transposing output: %w", err)
	}
	if err := t.Transpose(); err != nil {
		return nil, fmt.Errorf("transposing output: %w", err)
	}
	rows, ok := t.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected output data type %T", t.Data())
	}

	var candidates []detection.RawDetection
	for a := 0; a < layout.Anchors; a++ {
		row := rows[a*cols : (a+1)*cols]

		classID := 0
		best := math32.Inf(-1)
		for c, score := range row[4:] {
			if score > best {
				best = score
				classID = c
			}
		}
		if best <= threshold {
			continue
		}

		cx, cy, w, h := row[0], row[1], row[2], row[3]
		candidates = append(candidates, detection.RawDetection{
			ClassID:    classID,
			Confidence: best,
			Box: images.Box{
				X1: cx - w/2,
				Y1: cy - h/2,
				X2: cx + w/2,
				Y2: cy + h/2,
			},
		})
	}

	return candidates, nil
}

// PostProcess decodes the output, applies class-aware NMS and maps the
// survivors back to source image pixels.
//
// Arguments:
//   - output: The raw output tensor data.
//   - layout: The model layout.
//   - threshold: The confidence threshold.
//   - nms: The NMS configuration.
//   - info: The letterbox placement returned by PrepareInput.
//
// Returns:
//   - []detection.RawDetection: Sorted by descending confidence.
//   - error: If the output does not match the layout.
func PostProcess(
	output []float32,
	layout models.Layout,
	threshold float32,
	nms postprocess.NMSConfig,
	info images.LetterboxInfo,
) ([]detection.RawDetection, error) {
	candidates, err := Decode(output, layout, threshold)
	if err != nil {
		return nil, err
	}

	postprocess.SortByConfidence(candidates)
	kept := postprocess.ApplyGreedyNMS(candidates, nms)

	for i := range kept {
		kept[i].Box = info.Unscale(kept[i].Box)
	}
	return kept, nil
}
