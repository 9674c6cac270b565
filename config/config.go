// Package config - Settings for the prediction service, backed by viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/inference/providers"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PREDICT_MODEL_PATH.
const EnvPrefix = "PREDICT"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Settings is the complete service configuration.
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Model    ModelSettings    `mapstructure:"model"`
	Labels   LabelSettings    `mapstructure:"labels"`
	Encoding EncodingSettings `mapstructure:"encoding"`
	Logging  LogSettings      `mapstructure:"logging"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Debug    bool             `mapstructure:"debug"`
}

// ServerSettings configures the public HTTP listener.
type ServerSettings struct {
	Listen          string        `mapstructure:"listen"`
	FieldName       string        `mapstructure:"field_name"`
	BodyLimit       string        `mapstructure:"body_limit"`
	MaxPixels       int           `mapstructure:"max_pixels"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// ModelSettings selects and tunes the detection model.
type ModelSettings struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	ClassesPath   string        `mapstructure:"classes_path"`
	InputSize     int           `mapstructure:"input_size"`
	Confidence    float32       `mapstructure:"confidence"`
	IoU           float32       `mapstructure:"iou"`
	MaxDetections int           `mapstructure:"max_detections"`
	Sessions      int           `mapstructure:"sessions"`
	LibraryPath   string        `mapstructure:"library_path"`
	Provider      string        `mapstructure:"provider"`
	Threads       int           `mapstructure:"threads"`
	RemoteURL     string        `mapstructure:"remote_url"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
}

// LabelSettings locates the label map. An empty path uses the built-in map.
type LabelSettings struct {
	Path string `mapstructure:"path"`
}

// EncodingSettings tunes the annotated image.
type EncodingSettings struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
}

// LogSettings configures the logger.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsSettings configures the admin listener. An empty Listen disables it.
type MetricsSettings struct {
	Listen string `mapstructure:"listen"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("server.listen", ":5000")
	v.SetDefault("server.field_name", "image")
	v.SetDefault("server.body_limit", "10M")
	v.SetDefault("server.max_pixels", images.DefaultMaxPixels)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("model.backend", "onnx")
	v.SetDefault("model.path", "models/best.onnx")
	v.SetDefault("model.classes_path", "")
	v.SetDefault("model.input_size", 640)
	v.SetDefault("model.confidence", 0.4)
	v.SetDefault("model.iou", 0.7)
	v.SetDefault("model.max_detections", 300)
	v.SetDefault("model.sessions", 1)
	v.SetDefault("model.library_path", "")
	v.SetDefault("model.provider", string(providers.CPUProviderBackend))
	v.SetDefault("model.threads", 0)
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.remote_timeout", 30*time.Second)

	v.SetDefault("labels.path", "")

	v.SetDefault("encoding.jpeg_quality", 75)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	v.SetDefault("metrics.listen", "")
}

// Load reads settings into v from the config file, the environment and any
// flags already bound to v, then validates them.
//
// Arguments:
//   - v: The viper instance; flags should be bound before calling Load.
//   - file: An explicit config file. When empty, predict.yaml is searched for
//     in the working directory and $HOME/.config/predict; a missing file is
//     not an error.
//
// Returns:
//   - *Settings: The validated settings.
//   - error: If the file cannot be read or a value is invalid.
func Load(v *viper.Viper, file string) (*Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("predict")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "predict"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate reports the first invalid value.
func (s *Settings) Validate() error {
	m := s.Model

	switch m.Backend {
	case "onnx":
		if m.Path == "" {
			return errors.Wrap(ErrInvalid, "model.path is required for the onnx backend")
		}
	case "remote":
		if m.RemoteURL == "" {
			return errors.Wrap(ErrInvalid, "model.remote_url is required for the remote backend")
		}
		if m.ClassesPath == "" {
			return errors.Wrap(ErrInvalid, "model.classes_path is required for the remote backend")
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown model.backend %q", m.Backend)
	}

	if m.Confidence <= 0 || m.Confidence > 1 {
		return errors.Wrapf(ErrInvalid, "model.confidence %v is outside (0,1]", m.Confidence)
	}
	if m.IoU <= 0 || m.IoU > 1 {
		return errors.Wrapf(ErrInvalid, "model.iou %v is outside (0,1]", m.IoU)
	}
	if m.InputSize <= 0 || m.InputSize%32 != 0 {
		return errors.Wrapf(ErrInvalid, "model.input_size %d is not a positive multiple of 32", m.InputSize)
	}
	if m.Sessions < 1 {
		return errors.Wrapf(ErrInvalid, "model.sessions %d must be at least 1", m.Sessions)
	}
	if m.MaxDetections < 1 {
		return errors.Wrapf(ErrInvalid, "model.max_detections %d must be at least 1", m.MaxDetections)
	}
	if _, err := providers.ParseBackend(m.Provider); err != nil {
		return errors.Wrapf(ErrInvalid, "model.provider: %v", err)
	}

	if q := s.Encoding.JPEGQuality; q < 1 || q > 100 {
		return errors.Wrapf(ErrInvalid, "encoding.jpeg_quality %d is outside 1..100", q)
	}

	switch s.Logging.Format {
	case "text", "json":
	default:
		return errors.Wrapf(ErrInvalid, "unknown logging.format %q", s.Logging.Format)
	}

	if s.Server.FieldName == "" {
		return errors.Wrap(ErrInvalid, "server.field_name must not be empty")
	}
	if s.Server.MaxPixels < 1 {
		return errors.Wrapf(ErrInvalid, "server.max_pixels %d must be at least 1", s.Server.MaxPixels)
	}
	if s.Server.RequestTimeout < 0 {
		return errors.Wrap(ErrInvalid, "server.request_timeout must not be negative")
	}

	return nil
}
