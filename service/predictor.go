// Package service - The prediction pipeline for one uploaded image.
package service

import (
	"context"
	"image"
	"time"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/inference"
	"github.com/nvr-ai/predict/labels"
	"github.com/nvr-ai/predict/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrMissingPayload means the request carried no image.
	ErrMissingPayload = errors.New("no image uploaded")
	// ErrInference means the model failed to infer or render.
	ErrInference = errors.New("inference failed")
	// ErrCancelled means the request context ended between stages.
	ErrCancelled = errors.New("request cancelled")
)

// Stage is a step of the pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageDecoding    Stage = "decoding"
	StageInferring   Stage = "inferring"
	StageAggregating Stage = "aggregating"
	StageEncoding    Stage = "encoding"
)

// Config holds the per-request knobs of the pipeline.
type Config struct {
	// Confidence is the detection threshold handed to the model.
	Confidence float32
	// JPEGQuality is the quality of the annotated image.
	JPEGQuality int
	// MaxPixels refuses uploads whose declared width*height is larger; 0
	// selects images.DefaultMaxPixels.
	MaxPixels int
}

// Predictor runs decode, infer, aggregate and encode for one payload.
//
// The model and label map are shared by every request and never mutated.
type Predictor struct {
	model   inference.Model
	labels  labels.Map
	config  Config
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewPredictor builds a Predictor. m may be nil to disable metrics.
func NewPredictor(model inference.Model, labelMap labels.Map, config Config, m *metrics.Metrics, log logrus.FieldLogger) *Predictor {
	return &Predictor{
		model:   model,
		labels:  labelMap,
		config:  config,
		metrics: m,
		log:     log,
	}
}

// Predict runs the pipeline on payload.
//
// Arguments:
//   - ctx: The request context; checked between stages.
//   - payload: The raw uploaded file bytes. An empty payload is a decode error;
//     callers report an absent upload as ErrMissingPayload themselves.
//
// Returns:
//   - *detection.Result: The result; never partially filled.
//   - error: Wrapping exactly one of images.ErrDecode, ErrInference,
//     images.ErrEncode or ErrCancelled.
func (p *Predictor) Predict(ctx context.Context, payload []byte) (*detection.Result, error) {
	// Decoding
	var img *image.RGBA
	err := p.stage(ctx, StageDecoding, func() (err error) {
		img, err = images.DecodeUpload(payload, p.config.MaxPixels)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Inferring
	var raw []detection.RawDetection
	err = p.stage(ctx, StageInferring, func() (err error) {
		raw, err = p.model.Infer(ctx, img, p.config.Confidence)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(ErrCancelled, "during %s: %v", StageInferring, err)
			}
			return errors.Wrapf(ErrInference, "%v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Aggregating
	var (
		dets []detection.Detection
		top  *string
	)
	err = p.stage(ctx, StageAggregating, func() error {
		dets, top = detection.Aggregate(raw, p.model.ClassNames(), p.labels)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Encoding
	var encoded string
	err = p.stage(ctx, StageEncoding, func() error {
		annotated, err := p.model.Render(img, raw)
		if err != nil {
			return errors.Wrapf(ErrInference, "render: %v", err)
		}
		encoded, err = images.EncodeAnnotated(annotated, p.config.JPEGQuality)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.metrics.ObserveResult(len(dets), top)

	return &detection.Result{
		AnnotatedImage: encoded,
		Predictions:    dets,
		TopClass:       top,
	}, nil
}

// stage checks for cancellation, then runs fn and records its duration.
func (p *Predictor) stage(ctx context.Context, s Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(ErrCancelled, "before %s: %v", s, err)
	}

	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(string(s), time.Since(start))

	if err != nil {
		p.log.WithField("stage", s).WithError(err).Debug("stage failed")
	}
	return err
}
