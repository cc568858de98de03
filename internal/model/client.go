package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Attention tensors for a full batch are large.
const defaultMaxResponseBytes = 1 << 30

// Client calls a remote model server exposing
// POST {base}/v1/models/{name}/predict?device=cpu|gpu.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	stats      *Stats

	maxResponseBytes int64
}

func NewClient(baseURL, apiKey string, timeout time.Duration, stats *Stats) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		stats:            stats,
		maxResponseBytes: defaultMaxResponseBytes,
	}
}

type predictRequest struct {
	InputIDs      any      `json:"input_ids"`
	StatementMask [][]bool `json:"statement_mask,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// PredictLines runs the function-level classifier.
func (c *Client) PredictLines(ctx context.Context, dev Device, inputIDs [][]int) (*LineOutput, error) {
	var out LineOutput
	if err := c.predict(ctx, LineModelName, dev, predictRequest{InputIDs: inputIDs}, &out); err != nil {
		return nil, err
	}
	if err := ValidateLineOutput(&out, len(inputIDs)); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictStatements runs the statement-level classifier.
func (c *Client) PredictStatements(ctx context.Context, dev Device, inputIDs [][][]int, mask [][]bool) (*StatementOutput, error) {
	var out StatementOutput
	req := predictRequest{InputIDs: inputIDs, StatementMask: mask}
	if err := c.predict(ctx, StatementModelName, dev, req, &out); err != nil {
		return nil, err
	}
	if err := ValidateStatementOutput(&out, mask); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictCWE runs the CWE classifier.
func (c *Client) PredictCWE(ctx context.Context, dev Device, inputIDs [][]int) (*CWEOutput, error) {
	var out CWEOutput
	if err := c.predict(ctx, CWEModelName, dev, predictRequest{InputIDs: inputIDs}, &out); err != nil {
		return nil, err
	}
	if err := ValidateCWEOutput(&out, len(inputIDs)); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictSeverity runs the severity regressor.
func (c *Client) PredictSeverity(ctx context.Context, dev Device, inputIDs [][]int) ([]float32, error) {
	var out struct {
		Scores []float32 `json:"scores"`
	}
	if err := c.predict(ctx, SeverityModelName, dev, predictRequest{InputIDs: inputIDs}, &out); err != nil {
		return nil, err
	}
	if err := ValidateSeverityOutput(out.Scores, len(inputIDs)); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

func (c *Client) predict(ctx context.Context, name string, dev Device, reqBody predictRequest, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predict?device=%s", c.baseURL, url.PathEscape(name), url.QueryEscape(string(dev)))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s model: %w", name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if c.stats != nil {
		c.stats.Record(name, time.Since(start))
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &RetryableError{
			Model:      name,
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s model status %d: %s", name, resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiErr errorResponse
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s model error: %s", name, apiErr.Error)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrBadOutput, name, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// RetryableError indicates a transient model server failure.
type RetryableError struct {
	Model      string
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("%s model retryable error (status %d): %s", e.Model, e.StatusCode, truncate(e.Message, 200))
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
