package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/medialens/analysis-service/internal/errs"
	"go.uber.org/zap"
)

// Disabled is the Annotator used when no API key is configured; every
// call fails so frames degrade to empty analyses.
type Disabled struct{}

func (Disabled) Annotate(ctx context.Context, image []byte) (*Annotation, error) {
	return nil, errs.ErrVisionNotConfigured
}

// Client implements Annotator against the Vision REST images:annotate endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	log      *zap.Logger
}

// NewClient creates a vision REST client.
func NewClient(endpoint, apiKey string, log *zap.Logger) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent `json:"image"`
	Features []feature    `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type annotateResponse struct {
	Responses []struct {
		Annotation
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Annotate sends one frame for face, object, label and text detection.
func (c *Client) Annotate(ctx context.Context, image []byte) (*Annotation, error) {
	body := annotateRequest{
		Requests: []imageRequest{{
			Image: imageContent{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []feature{
				{Type: "FACE_DETECTION"},
				{Type: "OBJECT_LOCALIZATION"},
				{Type: "LABEL_DETECTION"},
				{Type: "TEXT_DETECTION"},
			},
		}},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}

	url := c.endpoint + "/v1/images:annotate?key=" + c.apiKey
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: annotate call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("vision: annotate status %d: %s", resp.StatusCode, snippet)
	}

	var out annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vision: decode response: %w", err)
	}
	if len(out.Responses) == 0 {
		return &Annotation{}, nil
	}
	first := out.Responses[0]
	if first.Error != nil {
		c.log.Warn("vision: per-image error", zap.String("message", first.Error.Message))
		return nil, fmt.Errorf("vision: %s", first.Error.Message)
	}
	ann := first.Annotation
	return &ann, nil
}
