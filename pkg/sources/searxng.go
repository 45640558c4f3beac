package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

// SearXNGClient queries a self-hosted SearXNG instance's JSON API. It is
// only registered when an instance URL is configured.
type SearXNGClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNGClient creates a SearXNG source pointed at the given instance.
func NewSearXNGClient(baseURL string, timeout time.Duration) *SearXNGClient {
	return &SearXNGClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements domain.SourceClient.
func (c *SearXNGClient) Name() string { return "searxng" }

type searxngResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"publishedDate"`
}

type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

// Search implements domain.SourceClient.
func (c *SearXNGClient) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	if r := searxngTimeRange(freshness); r != "" {
		params.Set("time_range", r)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("searxng: failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searxng: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: status %d", resp.StatusCode)
	}

	var parsed searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("searxng: failed to decode response: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, maxResults)
	for i, r := range parsed.Results {
		if i >= maxResults {
			break
		}
		if r.URL == "" {
			continue
		}
		score := r.Score
		if score <= 0 || score > 1 {
			score = positionScore(i)
		}
		candidates = append(candidates, &domain.Candidate{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Source:      c.Name(),
			Score:       score,
			PublishedAt: parseDate(r.PublishedDate),
		})
	}
	return candidates, nil
}

func searxngTimeRange(freshness string) string {
	switch freshness {
	case "day":
		return "day"
	case "week":
		return "week"
	case "month":
		return "month"
	case "year":
		return "year"
	default:
		return ""
	}
}
