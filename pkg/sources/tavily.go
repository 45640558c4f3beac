package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// TavilyClient queries the Tavily search API. It is the preferred source
// when an API key is configured because its snippets are extraction-quality.
type TavilyClient struct {
	apiKey     string
	depth      string
	httpClient *http.Client
}

// NewTavilyClient creates a Tavily source. depth is "basic" or "advanced".
func NewTavilyClient(apiKey, depth string, timeout time.Duration) *TavilyClient {
	if depth != "basic" && depth != "advanced" {
		depth = "advanced"
	}
	return &TavilyClient{
		apiKey:     apiKey,
		depth:      depth,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements domain.SourceClient.
func (c *TavilyClient) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
	Days        int    `json:"days,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search implements domain.SourceClient.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	reqBody := tavilyRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: c.depth,
		MaxResults:  maxResults,
	}
	// Tavily filters recency via the news topic with a day window.
	if days := freshnessDays(freshness); days > 0 {
		reqBody.Topic = "news"
		reqBody.Days = days
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tavilyEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tavily: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		candidates = append(candidates, &domain.Candidate{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			Source:      c.Name(),
			Score:       r.Score,
			PublishedAt: parseDate(r.PublishedDate),
		})
	}
	return candidates, nil
}

// freshnessDays maps a freshness hint to a trailing day window.
func freshnessDays(freshness string) int {
	switch freshness {
	case "day":
		return 1
	case "week":
		return 7
	case "month":
		return 30
	case "year":
		return 365
	default:
		return 0
	}
}

// dateFormats covers the publish date shapes the upstream APIs emit.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
	"January 2, 2006",
	"Jan 2, 2006",
}

// parseDate tries several common timestamp layouts; nil means unparseable,
// which downstream scoring treats as date-unknown rather than a failure.
func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
