package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/medical-evidence-rag/internal/core/domain"
	"github.com/kirillkom/medical-evidence-rag/internal/core/ports"
	"github.com/kirillkom/medical-evidence-rag/internal/infrastructure/resilience"
)

type Options struct {
	// DenseVector and SparseVector name the collection's vectors. An empty
	// DenseVector means the collection has a single unnamed vector.
	DenseVector  string
	SparseVector string
	// Hybrid fuses dense and sparse retrieval inside Qdrant. Fused scores are
	// ranks, not similarities, so candidates carry no distance.
	Hybrid   bool
	Timeout  time.Duration
	Executor *resilience.Executor
}

type Client struct {
	baseURL    string
	collection string
	opts       Options
	httpClient *http.Client
}

func New(baseURL, collection string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.Hybrid && opts.SparseVector == "" {
		opts.SparseVector = "sparse"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (c *Client) Search(ctx context.Context, query ports.IndexQuery) ([]domain.Candidate, error) {
	if c.opts.Hybrid {
		return c.searchHybrid(ctx, query)
	}

	reqBody := map[string]any{
		"vector":       c.denseVector(query.Vector),
		"limit":        query.Limit,
		"with_payload": true,
	}
	if filter := buildFilter(query.Filter); filter != nil {
		reqBody["filter"] = filter
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := c.call(ctx, "search", "/points/search", reqBody, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, domain.Candidate{
			Chunk:    chunkFromPayload(p.Payload),
			Distance: domain.ClampDistance(1 - p.Score),
		})
	}
	return out, nil
}

func (c *Client) searchHybrid(ctx context.Context, query ports.IndexQuery) ([]domain.Candidate, error) {
	dense := map[string]any{
		"query": query.Vector,
		"limit": query.Limit,
	}
	if c.opts.DenseVector != "" {
		dense["using"] = c.opts.DenseVector
	}
	prefetch := []map[string]any{dense}
	if sparse := encodeSparseQuery(query.Text); len(sparse.Indices) > 0 {
		prefetch = append(prefetch, map[string]any{
			"query": sparse,
			"using": c.opts.SparseVector,
			"limit": query.Limit,
		})
	}

	reqBody := map[string]any{
		"prefetch":     prefetch,
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        query.Limit,
		"with_payload": true,
	}
	if filter := buildFilter(query.Filter); filter != nil {
		reqBody["filter"] = filter
		for _, p := range prefetch {
			p["filter"] = filter
		}
	}

	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	if err := c.call(ctx, "query", "/points/query", reqBody, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.Candidate, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		out = append(out, domain.Candidate{
			Chunk:           chunkFromPayload(p.Payload),
			DistanceUnknown: true,
			IndexScore:      p.Score,
		})
	}
	return out, nil
}

// FetchByID looks a chunk up by its chunk_id payload field; point IDs are
// internal to the index.
func (c *Client) FetchByID(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	reqBody := map[string]any{
		"filter":       buildMatchFilter(map[string]any{"chunk_id": chunkID}),
		"limit":        1,
		"with_payload": true,
		"with_vector":  false,
	}

	var resp struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := c.call(ctx, "scroll", "/points/scroll", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result.Points) == 0 {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "qdrant fetch chunk", fmt.Errorf("chunk_id %q", chunkID))
	}
	chunk := chunkFromPayload(resp.Result.Points[0].Payload)
	return &chunk, nil
}

// Ready reports whether the collection exists and answers.
func (c *Client) Ready(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create readiness request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant readiness request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return newStatusError("readiness", resp)
	}
	return nil
}

func (c *Client) denseVector(vector []float32) any {
	if c.opts.DenseVector == "" {
		return vector
	}
	return map[string]any{"name": c.opts.DenseVector, "vector": vector}
}

func (c *Client) call(ctx context.Context, operation, path string, payload any, out any) error {
	err := c.opts.Executor.Execute(ctx, "qdrant."+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, operation, path, payload, out)
	}, resilience.ClassifyHTTPError)
	return resilience.MarkTemporary("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &resilience.HTTPStatusError{
		Upstream:   "qdrant",
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	if filter.IsEmpty() {
		return nil
	}
	conditions := map[string]any{}
	if filter.Level != "" {
		conditions["level"] = string(filter.Level)
	}
	if filter.SectionName != "" {
		conditions["section_name"] = filter.SectionName
	}
	if filter.StatisticalOnly {
		conditions["is_statistical"] = true
	}
	return buildMatchFilter(conditions)
}

func buildMatchFilter(conditions map[string]any) map[string]any {
	must := make([]map[string]any, 0, len(conditions))
	for _, key := range []string{"chunk_id", "level", "section_name", "is_statistical"} {
		value, ok := conditions[key]
		if !ok {
			continue
		}
		must = append(must, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}

func chunkFromPayload(payload map[string]any) domain.Chunk {
	level, _ := domain.ParseChunkLevel(getStringPayload(payload, "level"))
	return domain.Chunk{
		ChunkID:            getStringPayload(payload, "chunk_id"),
		DocumentID:         getStringPayload(payload, "document_id"),
		Level:              level,
		Content:            getStringPayload(payload, "content"),
		SectionName:        getStringPayload(payload, "section_name"),
		SubsectionName:     getStringPayload(payload, "subsection_name"),
		ParagraphIndex:     getIntPayload(payload, "paragraph_index"),
		IsStatistical:      getBoolPayload(payload, "is_statistical"),
		HasStatisticalData: getBoolPayload(payload, "has_statistical_data"),
		ParentChunkID:      getStringPayload(payload, "parent_chunk_id"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getBoolPayload(payload map[string]any, key string) bool {
	switch v := payload[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func getIntPayload(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}
