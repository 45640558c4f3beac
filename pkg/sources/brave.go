package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveClient queries the Brave Search API. The free tier allows one
// request per second, so calls are serialized behind a pacing gate.
type BraveClient struct {
	apiKey     string
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minGap   time.Duration
}

// NewBraveClient creates a Brave source.
func NewBraveClient(apiKey string, timeout time.Duration) *BraveClient {
	return &BraveClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		minGap:     time.Second,
	}
}

// Name implements domain.SourceClient.
func (c *BraveClient) Name() string { return "brave" }

// pace blocks until the rate limit window allows another call.
func (c *BraveClient) pace(ctx context.Context) error {
	c.mu.Lock()
	wait := c.minGap - time.Since(c.lastCall)
	if wait > 0 {
		c.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	c.lastCall = time.Now()
	c.mu.Unlock()
	return nil
}

type braveWebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age"`
}

type braveResponse struct {
	Web struct {
		Results []braveWebResult `json:"results"`
	} `json:"web"`
}

// Search implements domain.SourceClient.
func (c *BraveClient) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(maxResults))
	if f := braveFreshness(freshness); f != "" {
		params.Set("freshness", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("brave: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave: status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("brave: failed to decode response: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, len(parsed.Web.Results))
	for i, r := range parsed.Web.Results {
		if r.URL == "" {
			continue
		}
		candidates = append(candidates, &domain.Candidate{
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Description,
			Source:      c.Name(),
			Score:       positionScore(i),
			PublishedAt: parseDate(r.PageAge),
		})
	}
	return candidates, nil
}

// braveFreshness maps the shared hint to Brave's freshness codes.
func braveFreshness(freshness string) string {
	switch freshness {
	case "day":
		return "pd"
	case "week":
		return "pw"
	case "month":
		return "pm"
	case "year":
		return "py"
	default:
		return ""
	}
}

// positionScore derives a relevance prior from rank position for backends
// that don't report scores: 1.0 for the first result, decaying toward 0.3.
func positionScore(position int) float64 {
	score := 1.0 - float64(position)*0.07
	if score < 0.3 {
		return 0.3
	}
	return score
}
