package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/nvr-ai/predict/detection"
	"github.com/nvr-ai/predict/images"
	"github.com/nvr-ai/predict/models"
	"github.com/sirupsen/logrus"
)

// maxRemoteResponse bounds the sidecar reply size.
const maxRemoteResponse = 8 << 20

// RemoteConfig configures a RemoteDetector.
type RemoteConfig struct {
	// URL receives the multipart upload.
	URL string
	// Timeout bounds one round trip; 0 means no client timeout.
	Timeout time.Duration
	// ClassNames is the table the sidecar's class ids index.
	ClassNames models.ClassNameTable
}

// RemoteDetector sends images to an HTTP inference sidecar and draws the
// returned boxes locally. It is safe for concurrent use.
type RemoteDetector struct {
	config   RemoteConfig
	client   *http.Client
	annotate *Annotator
	log      logrus.FieldLogger
}

type remoteDetection struct {
	ClassID    int       `json:"class_id"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type remoteResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// NewRemoteDetector validates config and returns a detector. A nil client
// gets a new http.Client with config.Timeout.
func NewRemoteDetector(config RemoteConfig, client *http.Client, log logrus.FieldLogger) (*RemoteDetector, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("remote detector requires a URL")
	}
	if config.ClassNames.Len() == 0 {
		return nil, fmt.Errorf("remote detector requires class names")
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	log.WithFields(logrus.Fields{
		"url":     config.URL,
		"classes": config.ClassNames.Len(),
	}).Info("remote detector ready")

	return &RemoteDetector{
		config:   config,
		client:   client,
		annotate: NewAnnotator(config.ClassNames),
		log:      log,
	}, nil
}

// Infer uploads img as JPEG with the confidence threshold and decodes the
// sidecar's detections. Detections at or below threshold are dropped even if
// the sidecar returns them.
func (r *RemoteDetector) Infer(ctx context.Context, img image.Image, threshold float32) ([]detection.RawDetection, error) {
	body, contentType, err := encodeUpload(img, threshold)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded remoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteResponse)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding inference response: %w", err)
	}

	out := make([]detection.RawDetection, 0, len(decoded.Detections))
	for i, d := range decoded.Detections {
		if len(d.Box) != 4 {
			return nil, fmt.Errorf("detection %d has %d box values, want 4", i, len(d.Box))
		}
		if d.Confidence <= threshold {
			continue
		}
		out = append(out, detection.RawDetection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Box:        images.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
		})
	}

	return out, nil
}

func encodeUpload(img image.Image, threshold float32) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "upload.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if err := jpeg.Encode(part, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, "", fmt.Errorf("encoding upload: %w", err)
	}
	if err := w.WriteField("conf", strconv.FormatFloat(float64(threshold), 'f', -1, 32)); err != nil {
		return nil, "", fmt.Errorf("writing conf field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

// ClassNames returns the configured class name table.
func (r *RemoteDetector) ClassNames() models.ClassNameTable {
	return r.config.ClassNames
}

// Render draws dets onto a copy of img.
func (r *RemoteDetector) Render(img image.Image, dets []detection.RawDetection) (image.Image, error) {
	return r.annotate.Render(img, dets)
}

// Close releases idle connections.
func (r *RemoteDetector) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
