package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/lancerhq/lancer/pkg/domain"
)

const ddgLiteEndpoint = "https://lite.duckduckgo.com/lite/"

// DuckDuckGoClient scrapes the DuckDuckGo lite HTML endpoint. It needs no
// API key, which makes it the always-available fallback source. Calls are
// paced to one per second to stay under the endpoint's tolerance.
type DuckDuckGoClient struct {
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minGap   time.Duration
}

// NewDuckDuckGoClient creates a DuckDuckGo source.
func NewDuckDuckGoClient(timeout time.Duration) *DuckDuckGoClient {
	return &DuckDuckGoClient{
		httpClient: &http.Client{Timeout: timeout},
		minGap:     time.Second,
	}
}

// Name implements domain.SourceClient.
func (c *DuckDuckGoClient) Name() string { return "duckduckgo" }

// Search implements domain.SourceClient. freshness is ignored; the lite
// endpoint has no recency filter.
func (c *DuckDuckGoClient) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	c.mu.Lock()
	wait := c.minGap - time.Since(c.lastCall)
	if wait > 0 {
		c.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}
	c.lastCall = time.Now()
	c.mu.Unlock()

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ddgLiteEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
	}

	candidates, err := parseDDGLite(resp.Body, c.Name())
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: failed to parse results: %w", err)
	}
	if len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}
	return candidates, nil
}

// parseDDGLite extracts results from the lite page's table markup. Result
// links carry the class "result-link" and the following row holds the
// snippet in a "result-snippet" cell.
func parseDDGLite(r io.Reader, source string) ([]*domain.Candidate, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var candidates []*domain.Candidate
	var current *domain.Candidate

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result-link"):
				if current != nil {
					candidates = append(candidates, current)
				}
				current = &domain.Candidate{
					Title:  textContent(n),
					URL:    resolveDDGHref(attrValue(n, "href")),
					Source: source,
					Score:  positionScore(len(candidates)),
				}
			case n.Data == "td" && hasClass(n, "result-snippet"):
				if current != nil {
					current.Content = strings.TrimSpace(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	if current != nil {
		candidates = append(candidates, current)
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c.URL != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

// resolveDDGHref unwraps DuckDuckGo's redirect links, which carry the real
// destination in the uddg query parameter.
func resolveDDGHref(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			for _, c := range strings.Fields(attr.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
