package inference

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/inference/providers"
	"github.com/nvr-ai/predict/models"
	"github.com/nvr-ai/predict/models/postprocess"
	"github.com/nvr-ai/predict/models/yolo"
	"github.com/sirupsen/logrus"
)

// ONNXConfig configures an ONNXDetector.
type ONNXConfig struct {
	// ModelPath is the YOLO .onnx file.
	ModelPath string
	// LibraryPath is the onnxruntime shared library; empty uses the platform default.
	LibraryPath string
	// ClassNames overrides the names embedded in the model metadata.
	ClassNames models.ClassNameTable
	// InputSize is the square model input side.
	InputSize int
	// IoUThreshold is the NMS overlap threshold.
	IoUThreshold float32
	// MaxDetections caps detections per image; 0 keeps all.
	MaxDetections int
	// Sessions is the number of independent sessions, and so the number of
	// images that can be inferred concurrently. Values below 1 mean 1.
	Sessions int
	// Warmup runs every session once at startup.
	Warmup bool
	// Provider selects the execution provider.
	Provider providers.Config
}

// ONNXDetector runs a YOLO model in-process with ONNX Runtime.
//
// Each session owns fixed input and output tensors, so a session serves one
// request at a time; requests wait for a free session.
type ONNXDetector struct {
	config   ONNXConfig
	layout   models.Layout
	names    models.ClassNameTable
	sessions *pool[*Session]
	annotate *Annotator
	log      logrus.FieldLogger

	closeOnce sync.Once
}

// NewONNXDetector loads the runtime and creates the session pool.
//
// Arguments:
//   - config: The detector configuration.
//   - log: The logger.
//
// Returns:
//   - *ONNXDetector: The detector; Close it when done.
//   - error: If the runtime, class names or any session could not be set up.
func NewONNXDetector(config ONNXConfig, log logrus.FieldLogger) (*ONNXDetector, error) {
	if config.Sessions < 1 {
		config.Sessions = 1
	}

	if err := acquireRuntime(config.LibraryPath); err != nil {
		return nil, err
	}

	names := config.ClassNames
	if len(names) == 0 {
		var err error
		names, err = ModelClassNames(config.ModelPath)
		if err != nil {
			releaseRuntime()
			return nil, err
		}
	}

	layout, err := models.NewLayout(config.InputSize, names.Len())
	if err != nil {
		releaseRuntime()
		return nil, err
	}

	sessions := make([]*Session, 0, config.Sessions)
	for i := 0; i < config.Sessions; i++ {
		s, err := NewSession(config.ModelPath, layout, config.Provider)
		if err != nil {
			for _, open := range sessions {
				open.Close()
			}
			releaseRuntime()
			return nil, fmt.Errorf("creating session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	d := &ONNXDetector{
		config:   config,
		layout:   layout,
		names:    names,
		sessions: newPool(sessions),
		annotate: NewAnnotator(names),
		log:      log,
	}

	if config.Warmup {
		if err := d.warmup(); err != nil {
			d.Close()
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"model":    config.ModelPath,
		"classes":  names.Len(),
		"input":    layout.InputSize,
		"sessions": config.Sessions,
		"provider": config.Provider.Backend,
	}).Info("onnx detector ready")

	return d, nil
}

func (d *ONNXDetector) warmup() error {
	blank := image.NewRGBA(image.Rect(0, 0, d.layout.InputSize, d.layout.InputSize))
	for i := 0; i < d.config.Sessions; i++ {
		s, err := d.sessions.acquire(context.Background())
		if err != nil {
			return err
		}
		defer d.sessions.release(s)

		if _, err := yolo.PrepareInput(blank, d.layout, s.Input.GetData()); err != nil {
			return err
		}
		if err := s.Run(); err != nil {
			return fmt.Errorf("warmup run: %w", err)
		}
	}
	return nil
}

// Infer runs the model on img.
func (d *ONNXDetector) Infer(ctx context.Context, img image.Image, threshold float32) ([]detection.RawDetection, error) {
	s, err := d.sessions.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for a session: %w", err)
	}
	defer d.sessions.release(s)

	info, err := yolo.PrepareInput(img, d.layout, s.Input.GetData())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare input: %w", err)
	}

	if err := s.Run(); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	return yolo.PostProcess(
		s.Output.GetData(),
		d.layout,
		threshold,
		postprocess.NMSConfig{
			IoUThreshold:  d.config.IoUThreshold,
			ClassAware:    true,
			MaxDetections: d.config.MaxDetections,
		},
		info,
	)
}

// ClassNames returns the model's class name table.
func (d *ONNXDetector) ClassNames() models.ClassNameTable {
	return d.names
}

// Render draws dets onto a copy of img.
func (d *ONNXDetector) Render(img image.Image, dets []detection.RawDetection) (image.Image, error) {
	return d.annotate.Render(img, dets)
}

// Close waits for in-flight inferences and releases every session.
func (d *ONNXDetector) Close() error {
	d.closeOnce.Do(func() {
		for _, s := range d.sessions.drain() {
			s.Close()
		}
		releaseRuntime()
	})
	return nil
}
