package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

const wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// WikipediaClient queries the MediaWiki search API. It contributes
// encyclopedic background results and needs no credentials.
type WikipediaClient struct {
	httpClient *http.Client
}

// NewWikipediaClient creates a Wikipedia source.
func NewWikipediaClient(timeout time.Duration) *WikipediaClient {
	return &WikipediaClient{httpClient: &http.Client{Timeout: timeout}}
}

// Name implements domain.SourceClient.
func (c *WikipediaClient) Name() string { return "wikipedia" }

type wikiSearchResult struct {
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	Timestamp string `json:"timestamp"`
}

type wikiResponse struct {
	Query struct {
		Search []wikiSearchResult `json:"search"`
	} `json:"query"`
}

// Search implements domain.SourceClient. freshness is ignored; article
// recency is not meaningful for encyclopedic content.
func (c *WikipediaClient) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", strconv.Itoa(maxResults))
	params.Set("format", "json")
	params.Set("srprop", "snippet|timestamp")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wikipediaEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia: status %d", resp.StatusCode)
	}

	var parsed wikiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("wikipedia: failed to decode response: %w", err)
	}

	candidates := make([]*domain.Candidate, 0, len(parsed.Query.Search))
	for i, r := range parsed.Query.Search {
		pageURL := "https://en.wikipedia.org/wiki/" + url.PathEscape(r.Title)
		candidates = append(candidates, &domain.Candidate{
			Title:   r.Title,
			URL:     pageURL,
			Content: tagPattern.ReplaceAllString(r.Snippet, ""),
			Source:  c.Name(),
			// Wikipedia ranks well internally but snippets are thin, so
			// its prior sits slightly below API-scored sources.
			Score:       positionScore(i) * 0.9,
			PublishedAt: parseDate(r.Timestamp),
		})
	}
	return candidates, nil
}
