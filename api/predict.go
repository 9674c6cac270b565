package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/metrics"
	"github.com/nvr-ai/predict/service"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Keys under which the handler leaves result details for the request logger.
const (
	ctxDetections = "predict.detections"
	ctxTopClass   = "predict.top_class"
	ctxFormat     = "predict.format"
)

// Client-facing error messages.
const (
	msgMissingPayload = "No image uploaded"
	msgInvalidImage   = "Invalid image"
	msgInference      = "Inference failed"
	msgEncode         = "Failed to encode annotated image"
	msgCancelled      = "Request cancelled"
)

// handlePredict serves POST /predict.
func (s *Server) handlePredict(c echo.Context) error {
	payload, err := s.readUpload(c)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return s.fail(c, errors.Wrapf(service.ErrMissingPayload, "%v", err))
	}
	c.Set(ctxFormat, string(images.SniffFormat(payload)))

	ctx := c.Request().Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	result, err := s.predictor.Predict(ctx, payload)
	if err != nil {
		return s.fail(c, err)
	}

	s.metrics.ObserveRequest(metrics.OutcomeOK)
	c.Set(ctxDetections, len(result.Predictions))
	if result.TopClass != nil {
		c.Set(ctxTopClass, *result.TopClass)
	}

	return c.JSON(http.StatusOK, result)
}

// fail records and answers a pipeline or upload error.
func (s *Server) fail(c echo.Context, err error) error {
	code, message, outcome := classify(err)
	s.metrics.ObserveRequest(outcome)
	s.log.WithFields(logrus.Fields{
		"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
		"outcome":    outcome,
	}).WithError(err).Warn("prediction failed")
	return c.JSON(code, errorBody{Error: message})
}

// readUpload returns the bytes of the configured multipart field. Errors
// other than an oversized body mean the upload is absent.
func (s *Server) readUpload(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile(s.config.FieldName)
	if err != nil {
		return nil, asBodyLimit(err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, asBodyLimit(err)
	}
	return data, nil
}

// asBodyLimit surfaces the BodyLimit middleware error when reading the body
// hit the limit part way.
func asBodyLimit(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return he
	}
	if strings.Contains(err.Error(), http.StatusText(http.StatusRequestEntityTooLarge)) {
		return echo.ErrStatusRequestEntityTooLarge
	}
	return err
}

// classify maps a pipeline error to a status, a client message and a metrics
// outcome.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrCancelled):
		return http.StatusServiceUnavailable, msgCancelled, metrics.OutcomeCancelled
	case errors.Is(err, service.ErrMissingPayload):
		return http.StatusBadRequest, msgMissingPayload, metrics.OutcomeMissingPayload
	case errors.Is(err, images.ErrDecode):
		detail := strings.TrimSuffix(err.Error(), ": "+images.ErrDecode.Error())
		return http.StatusBadRequest, msgInvalidImage + ": " + detail, metrics.OutcomeDecodeError
	case errors.Is(err, images.ErrEncode):
		return http.StatusInternalServerError, msgEncode, metrics.OutcomeEncodeError
	default:
		return http.StatusInternalServerError, msgInference, metrics.OutcomeInferenceError
	}
}
