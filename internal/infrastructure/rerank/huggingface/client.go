// Package huggingface scores (query, passage) pairs with a cross-encoder
// hosted on the HuggingFace Inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL = "https://api-inference.huggingface.co/models"
	DefaultModel   = "cross-encoder/ms-marco-MiniLM-L-12-v2"
)

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model, token string, timeout time.Duration, executor *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + strings.Trim(model, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type scoreRequest struct {
	Inputs struct {
		SourceSentence string   `json:"source_sentence"`
		Sentences      []string `json:"sentences"`
	} `json:"inputs"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

// Score returns one score per passage in input order.
func (c *Client) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	var req scoreRequest
	req.Inputs.SourceSentence = query
	req.Inputs.Sentences = passages
	req.Options.WaitForModel = true

	scores, err := resilience.Call(ctx, c.executor, "huggingface.cross_encoder", func(ctx context.Context) ([]float64, error) {
		return c.post(ctx, req)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.MarkTemporary("cross-encoder score", err, resilience.ClassifyHTTPError)
	}
	if len(scores) != len(passages) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d passages", len(scores), len(passages))
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, payload scoreRequest) ([]float64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cross-encoder request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create cross-encoder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cross-encoder request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read cross-encoder response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &resilience.HTTPStatusError{
			Upstream:   "huggingface",
			Operation:  "cross_encoder",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(string(raw), 2048),
		}
	}
	return decodeScores(raw)
}

// decodeScores accepts a flat list or a single-row nested list.
func decodeScores(raw []byte) ([]float64, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		return flat, nil
	}
	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) == 1 {
		return nested[0], nil
	}
	return nil, fmt.Errorf("decode cross-encoder response: unexpected shape %s", truncate(string(raw), 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
