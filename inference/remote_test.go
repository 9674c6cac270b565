package inference

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sidecarURL = "http://sidecar.local/detect"

func newTestRemote(t *testing.T) (*RemoteDetector, *httpmock.MockTransport) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	logger, _ := test.NewNullLogger()

	d, err := NewRemoteDetector(RemoteConfig{
		URL:        sidecarURL,
		ClassNames: models.ClassNameTable{"dogs", "road damage"},
	}, &http.Client{Transport: transport}, logger)
	require.NoError(t, err)

	return d, transport
}

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

func TestRemoteDetector_Infer(t *testing.T) {
	d, transport := newTestRemote(t)

	transport.RegisterResponder(http.MethodPost, sidecarURL, func(req *http.Request) (*http.Response, error) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		if req.FormValue("conf") != "0.4" {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad conf "+req.FormValue("conf")), nil
		}
		file, _, err := req.FormFile("image")
		if err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		defer file.Close()
		if _, err := jpeg.Decode(file); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}

		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
			"detections": []map[string]any{
				{"class_id": 0, "confidence": 0.6, "box": []float32{1, 2, 10, 20}},
				{"class_id": 1, "confidence": 0.8, "box": []float32{5, 5, 30, 25}},
				{"class_id": 1, "confidence": 0.3, "box": []float32{0, 0, 1, 1}},
			},
		})
	})

	dets, err := d.Infer(context.Background(), testImage(), 0.4)
	require.NoError(t, err)

	require.Len(t, dets, 2, "detections at or below the threshold are dropped")
	assert.Equal(t, 0, dets[0].ClassID)
	assert.InDelta(t, 0.6, dets[0].Confidence, 1e-6)
	assert.Equal(t, images.Box{X1: 1, Y1: 2, X2: 10, Y2: 20}, dets[0].Box)
	assert.Equal(t, 1, dets[1].ClassID)
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestRemoteDetector_Errors(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
	}{
		{"server error", httpmock.NewStringResponder(http.StatusInternalServerError, "boom")},
		{"malformed json", httpmock.NewStringResponder(http.StatusOK, "{not json")},
		{"short box", httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"class_id":0,"confidence":0.9,"box":[1,2]}]}`)},
		{"transport error", httpmock.NewErrorResponder(errors.New("connection refused"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, transport := newTestRemote(t)
			transport.RegisterResponder(http.MethodPost, sidecarURL, tt.responder)

			dets, err := d.Infer(context.Background(), testImage(), 0.4)
			assert.Error(t, err)
			assert.Nil(t, dets)
		})
	}
}

func TestRemoteDetector_Empty(t *testing.T) {
	d, transport := newTestRemote(t)
	transport.RegisterResponder(http.MethodPost, sidecarURL, httpmock.NewStringResponder(http.StatusOK, `{"detections":[]}`))

	dets, err := d.Infer(context.Background(), testImage(), 0.4)
	require.NoError(t, err)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}

func TestNewRemoteDetector_Validation(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewRemoteDetector(RemoteConfig{ClassNames: models.ClassNameTable{"dog"}}, nil, logger)
	assert.Error(t, err, "URL is required")

	_, err = NewRemoteDetector(RemoteConfig{URL: sidecarURL}, nil, logger)
	assert.Error(t, err, "class names are required")

	d, err := NewRemoteDetector(RemoteConfig{URL: sidecarURL, ClassNames: models.ClassNameTable{"dog"}}, nil, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, "dog", d.ClassNames().Name(0))
	assert.NoError(t, d.Close())
}

func TestRemoteDetector_Render(t *testing.T) {
	d, _ := newTestRemote(t)
	src := testImage()
	src.Set(0, 0, color.RGBA{A: 255})

	out, err := d.Render(src, nil)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), out.Bounds())
}
