package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fiapx/fiapx-vision-service/internal/domain/entity"
)

const defaultAPIVersion = "v3.2"

type ClientConfig struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Timeout    time.Duration
}

// Client calls the Computer Vision "analyze" operation with the Objects feature.
type Client struct {
	analyzeURL string
	apiKey     string
	http       *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = defaultAPIVersion
	}
	return &Client{
		analyzeURL: fmt.Sprintf("%s/vision/%s/analyze?visualFeatures=Objects", strings.TrimRight(cfg.Endpoint, "/"), version),
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

type analyzeResponse struct {
	Objects  []detectedObject `json:"objects"`
	Metadata struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"metadata"`
}

type detectedObject struct {
	Rectangle struct {
		X int `json:"x"`
		Y int `json:"y"`
		W int `json:"w"`
		H int `json:"h"`
	} `json:"rectangle"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

type errorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Detect(ctx context.Context, image []byte) ([]entity.Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL, bytes.NewReader(image))
	if err != nil {
		return nil, &entity.DetectionServiceError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &entity.DetectionServiceError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &entity.DetectionServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &entity.DetectionServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", errorMessage(body))}
	}

	var out analyzeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &entity.DetectionServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	detections := make([]entity.Detection, 0, len(out.Objects))
	for _, o := range out.Objects {
		detections = append(detections, entity.Detection{
			Label:      o.Object,
			Confidence: o.Confidence,
			Box: clampBox(entity.BoundingBox{
				Left:   o.Rectangle.X,
				Top:    o.Rectangle.Y,
				Width:  o.Rectangle.W,
				Height: o.Rectangle.H,
			}, out.Metadata.Width, out.Metadata.Height),
		})
	}
	return detections, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Error != nil {
			return e.Error.Code + ": " + e.Error.Message
		}
		if e.Code != "" {
			return e.Code + ": " + e.Message
		}
	}
	if len(body) > 256 {
		body = body[:256]
	}
	return strings.TrimSpace(string(body))
}

// clampBox keeps a box non-negative and inside a w x h frame when the size is known.
func clampBox(b entity.BoundingBox, w, h int) entity.BoundingBox {
	b.Left = max(b.Left, 0)
	b.Top = max(b.Top, 0)
	b.Width = max(b.Width, 0)
	b.Height = max(b.Height, 0)
	if w > 0 && b.Left+b.Width > w {
		b.Width = max(w-b.Left, 0)
	}
	if h > 0 && b.Top+b.Height > h {
		b.Height = max(h-b.Top, 0)
	}
	return b
}
