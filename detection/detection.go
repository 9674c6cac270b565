// Package detection - Detection types and aggregation of raw model output into
// a prediction result.
package detection

import (
	"math"
	"strconv"
	"strings"

	"github.com/nvr-ai/predict/images"
)

// RawDetection is one object found by a model, before label normalization.
type RawDetection struct {
	// ClassID indexes the model's class name table.
	ClassID int `json:"class_id"`
	// Confidence is the model score in [0,1].
	Confidence float32 `json:"confidence"`
	// Box is in source image pixels.
	Box images.Box `json:"box"`
}

// Detection is a normalized, client-facing detection.
type Detection struct {
	// Class is the canonical label.
	Class string `json:"class"`
	// Score is the confidence rounded to two decimals.
	Score float64 `json:"score"`
}

// Result is the successful response of a prediction.
type Result struct {
	// AnnotatedImage is the base64 JPEG with detections drawn on it.
	AnnotatedImage string `json:"annotated_image"`
	// Predictions is in model output order and never nil.
	Predictions []Detection `json:"predictions"`
	// TopClass is the canonical label of the most confident detection.
	TopClass *string `json:"top_class"`
}

// ClassNamer resolves model class ids to raw class names.
type ClassNamer interface {
	Name(id int) string
}

// Normalizer maps raw class names to canonical labels.
type Normalizer interface {
	Normalize(raw string) string
}

// Aggregate turns raw detections into client-facing detections and picks the
// top class.
//
// The output has the same length and order as raw. The top class belongs to
// the first detection whose unrounded confidence is strictly greater than all
// before it; later ties do not replace it.
//
// Arguments:
//   - raw: Detections in model output order.
//   - names: The model's class name table.
//   - labels: The label map.
//
// Returns:
//   - []Detection: Never nil; empty when raw is empty.
//   - *string: The top canonical label, or nil when raw is empty.
func Aggregate(raw []RawDetection, names ClassNamer, labels Normalizer) ([]Detection, *string) {
	out := make([]Detection, 0, len(raw))

	var top *string
	best := float32(math.Inf(-1))

	for _, r := range raw {
		class := labels.Normalize(strings.ToLower(names.Name(r.ClassID)))
		out = append(out, Detection{
			Class: class,
			Score: RoundScore(r.Confidence),
		})

		if r.Confidence > best {
			best = r.Confidence
			top = &class
		}
	}

	return out, top
}

// RoundScore rounds a confidence to two decimal places.
//
// Rounding is done on the exact binary value of the widened float64, so a
// value that is stored slightly below a halfway point rounds down, and exact
// halfway values round to even (0.125 -> 0.12, 0.375 -> 0.38).
func RoundScore(confidence float32) float64 {
	s := strconv.FormatFloat(float64(confidence), 'f', 2, 64)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.Round(float64(confidence)*100) / 100
	}
	return v
}
