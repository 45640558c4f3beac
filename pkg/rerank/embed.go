package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/lancerhq/lancer/pkg/domain"
)

// maxDocumentChars truncates documents before scoring; the scoring models
// only attend to the first few hundred tokens anyway.
const maxDocumentChars = 2000

// HTTPScoringClient talks to an external embedding and reranking service
// over its /embed and /rerank endpoints.
type HTTPScoringClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPScoringClient creates a scoring client for the given service URL.
func NewHTTPScoringClient(baseURL string, timeout time.Duration) *HTTPScoringClient {
	return &HTTPScoringClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type embedResponse struct {
	Scores []float64 `json:"scores"`
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// BulkScore computes embedding similarity scores for all documents in one
// call. Scores come back in document order.
func (c *HTTPScoringClient) BulkScore(ctx context.Context, query string, documents []string) ([]float64, error) {
	reqBody := embedRequest{Query: query, Documents: truncateAll(documents)}

	var resp embedResponse
	if err := c.post(ctx, "/embed/similarity", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}
	if len(resp.Scores) != len(documents) {
		return nil, fmt.Errorf("%w: got %d scores for %d documents",
			domain.ErrScoringUnavailable, len(resp.Scores), len(documents))
	}
	return clampAll(resp.Scores), nil
}

// PairwiseScore computes cross-encoder relevance scores for each
// (query, document) pair. The service returns results sorted by score, so
// they are mapped back to document order by index.
func (c *HTTPScoringClient) PairwiseScore(ctx context.Context, query string, documents []string) ([]float64, error) {
	reqBody := rerankRequest{Query: query, Documents: truncateAll(documents)}

	var results []rerankResult
	if err := c.post(ctx, "/rerank", reqBody, &results); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}

	scores := make([]float64, len(documents))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range",
				domain.ErrScoringUnavailable, r.Index)
		}
		scores[r.Index] = clamp(r.Score)
	}
	return scores, nil
}

func (c *HTTPScoringClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncateAll(documents []string) []string {
	out := make([]string, len(documents))
	for i, d := range documents {
		if len(d) > maxDocumentChars {
			cut := maxDocumentChars
			// Back up to a rune boundary so the cut never splits a
			// multi-byte character.
			for cut > 0 && !utf8.RuneStart(d[cut]) {
				cut--
			}
			d = d[:cut]
		}
		out[i] = d
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampAll(scores []float64) []float64 {
	for i, s := range scores {
		scores[i] = clamp(s)
	}
	return scores
}
