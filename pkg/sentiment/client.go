package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Result is the collaborator's verdict on one text.
type Result struct {
	Label        string  `json:"label"`
	Score        float64 `json:"score"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

// Client calls the external sentiment scoring service. The service is
// best-effort: callers log failures and move on.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a sentiment client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Analyze submits text for scoring.
func (c *Client) Analyze(ctx context.Context, text string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"language": "auto",
		"context":  "political_news",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call sentiment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("sentiment service status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode sentiment response: %w", err)
	}
	return &result, nil
}
