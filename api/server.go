// Package api - The public HTTP surface of the prediction service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Predictor runs the pipeline for one uploaded payload.
type Predictor interface {
	Predict(ctx context.Context, payload []byte) (*detection.Result, error)
}

// Config configures the HTTP surface.
type Config struct {
	// Listen is the address of the public listener.
	Listen string
	// FieldName is the multipart field carrying the image.
	FieldName string
	// BodyLimit is an echo size string such as "10M". Empty disables it.
	BodyLimit string
	// RequestTimeout bounds each prediction. Zero disables it.
	RequestTimeout time.Duration
	// CORSOrigins are the allowed origins.
	CORSOrigins []string
}

// DefaultConfig returns the configuration the service ships with.
func DefaultConfig() Config {
	return Config{
		Listen:         ":5000",
		FieldName:      "image",
		BodyLimit:      "10M",
		RequestTimeout: 30 * time.Second,
		CORSOrigins:    []string{"*"},
	}
}

// Server serves POST /predict.
type Server struct {
	echo      *echo.Echo
	config    Config
	predictor Predictor
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
}

// errorBody is the payload of every failed request.
type errorBody struct {
	Error string `json:"error"`
}

// NewServer builds the echo instance and registers the single route.
//
// Arguments:
//   - config: The HTTP configuration.
//   - predictor: The pipeline.
//   - m: Metrics; may be nil.
//   - log: The logger.
//
// Returns:
//   - *Server: A server ready to Start.
func NewServer(config Config, predictor Predictor, m *metrics.Metrics, log logrus.FieldLogger) *Server {
	if config.FieldName == "" {
		config.FieldName = "image"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		config:    config,
		predictor: predictor,
		metrics:   m,
		log:       log,
	}

	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(s.requestLogger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: config.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			"X-Requested-With",
		},
	}))
	if config.BodyLimit != "" {
		e.Use(middleware.BodyLimit(config.BodyLimit))
	}

	e.POST("/predict", s.handlePredict)

	return s
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on config.Listen and blocks until Shutdown.
func (s *Server) Start() error {
	s.log.WithField("listen", s.config.Listen).Info("prediction server listening")
	if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "prediction server failed")
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"request_id": v.RequestID,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"ip":         v.RemoteIP,
				"latency":    v.Latency,
			}
			if n, ok := c.Get(ctxDetections).(int); ok {
				fields["detections"] = n
			}
			if top, ok := c.Get(ctxTopClass).(string); ok {
				fields["top_class"] = top
			}
			if format, ok := c.Get(ctxFormat).(string); ok {
				fields["format"] = format
			}

			entry := s.log.WithFields(fields)
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request failed")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}

// handleError renders echo and middleware errors as {"error": ...}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else {
		s.log.WithError(err).Error("unhandled error")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, errorBody{Error: message})
	}
	if err != nil {
		s.log.WithError(err).Error("failed to write error response")
	}
}
