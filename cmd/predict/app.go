package main

import (
	"io"
	"strings"

	"github.com/nvr-ai/predict/config"
	"github.com/nvr-ai/predict/inference"
	"github.com/nvr-ai/predict/inference/providers"
	"github.com/nvr-ai/predict/labels"
	"github.com/nvr-ai/predict/logging"
	"github.com/nvr-ai/predict/metrics"
	"github.com/nvr-ai/predict/models"
	"github.com/nvr-ai/predict/service"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// app holds the process-wide components built once at startup.
type app struct {
	settings  *config.Settings
	log       *logrus.Logger
	logCloser io.Closer
	labels    labels.Map
	model     inference.Model
	predictor *service.Predictor
}

// setup loads configuration and builds the logger, label map, model and
// predictor. m may be nil.
func setup(opts *options, m *metrics.Metrics) (*app, error) {
	settings, err := config.Load(opts.v, opts.configFile)
	if err != nil {
		return nil, err
	}

	log, logCloser, err := logging.New(logging.Settings{
		Level:  settings.Logging.Level,
		Format: settings.Logging.Format,
		File:   settings.Logging.File,
		Debug:  settings.Debug,
	})
	if err != nil {
		return nil, err
	}

	a := &app{settings: settings, log: log, logCloser: logCloser}

	a.labels, err = loadLabels(settings.Labels.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"entries":   a.labels.Len(),
		"canonical": strings.Join(a.labels.Canonical(), ", "),
	}).Info("label map loaded")

	a.model, err = loadModel(settings, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	if missing := a.labels.Missing(a.model.ClassNames()); len(missing) > 0 {
		log.WithField("classes", strings.Join(missing, ", ")).
			Warn("model classes without a label mapping will be reported as unknown")
	}

	a.predictor = service.NewPredictor(a.model, a.labels, service.Config{
		Confidence:  settings.Model.Confidence,
		JPEGQuality: settings.Encoding.JPEGQuality,
		MaxPixels:   settings.Server.MaxPixels,
	}, m, log)

	return a, nil
}

// Close releases the model and the log file.
func (a *app) Close() {
	if a.model != nil {
		if err := a.model.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close model")
		}
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

func loadLabels(path string) (labels.Map, error) {
	if path == "" {
		return labels.Default(), nil
	}
	return labels.Load(path)
}

func loadModel(settings *config.Settings, log logrus.FieldLogger) (inference.Model, error) {
	ms := settings.Model

	var names models.ClassNameTable
	if ms.ClassesPath != "" {
		var err error
		if names, err = models.LoadClassNames(ms.ClassesPath); err != nil {
			return nil, err
		}
	}

	switch inference.Backend(ms.Backend) {
	case inference.BackendONNX:
		provider, err := providers.ParseBackend(ms.Provider)
		if err != nil {
			return nil, err
		}
		pc := providers.DefaultConfig()
		pc.Backend = provider
		pc.IntraOpNumThreads = ms.Threads

		d, err := inference.NewONNXDetector(inference.ONNXConfig{
			ModelPath:     ms.Path,
			LibraryPath:   ms.LibraryPath,
			ClassNames:    names,
			InputSize:     ms.InputSize,
			IoUThreshold:  ms.IoU,
			MaxDetections: ms.MaxDetections,
			Sessions:      ms.Sessions,
			Warmup:        true,
			Provider:      pc,
		}, log)
		if err != nil {
			return nil, err
		}
		return d, nil

	case inference.BackendRemote:
		d, err := inference.NewRemoteDetector(inference.RemoteConfig{
			URL:        ms.RemoteURL,
			Timeout:    ms.RemoteTimeout,
			ClassNames: names,
		}, nil, log)
		if err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, errors.Errorf("unknown model backend %q", ms.Backend)
	}
}
