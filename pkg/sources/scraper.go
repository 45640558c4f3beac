package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/semaphore"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

const (
	// maxBodyBytes caps how much of a page is downloaded.
	maxBodyBytes = 2 << 20

	scrapeUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Scraper fetches result pages and converts them to markdown so the full
// body can feed scoring and synthesis. Concurrency is capped by a weighted
// semaphore to keep the fan-out polite.
type Scraper struct {
	httpClient *http.Client
	converter  *converter.Converter
	stripper   *bluemonday.Policy
	sem        *semaphore.Weighted
	maxChars   int
	logger     *observability.StructuredLogger
	metrics    *observability.Metrics
}

// NewScraper creates a scraper. maxChars caps the markdown kept per page;
// maxConcurrent caps simultaneous fetches. metrics may be nil.
func NewScraper(timeout time.Duration, maxChars int, maxConcurrent int64, metrics *observability.Metrics) *Scraper {
	if maxConcurrent < 1 {
		maxConcurrent = 3
	}
	return &Scraper{
		httpClient: &http.Client{Timeout: timeout},
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		stripper: bluemonday.StrictPolicy(),
		sem:      semaphore.NewWeighted(maxConcurrent),
		maxChars: maxChars,
		logger:   observability.NewStructuredLogger("scraper"),
		metrics:  metrics,
	}
}

// Scrape fetches one URL and returns its content as markdown, truncated to
// the configured cap.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("scrape: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.recordOutcome(ctx, "fetch_error")
		return "", fmt.Errorf("scrape: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.recordOutcome(ctx, "http_error")
		return "", fmt.Errorf("scrape: status %d for %s", resp.StatusCode, pageURL)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		s.recordOutcome(ctx, "not_html")
		return "", fmt.Errorf("scrape: unsupported content type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		s.recordOutcome(ctx, "read_error")
		return "", fmt.Errorf("scrape: failed to read body: %w", err)
	}

	markdown, err := s.converter.ConvertString(string(body), converter.WithDomain(pageURL))
	if err != nil {
		// Conversion chokes on some real-world markup; fall back to a
		// plain text strip so the page still contributes something.
		markdown = s.stripper.Sanitize(string(body))
	}

	markdown = blankLines.ReplaceAllString(strings.TrimSpace(markdown), "\n\n")
	if s.maxChars > 0 && len(markdown) > s.maxChars {
		markdown = markdown[:s.maxChars]
	}

	s.recordOutcome(ctx, "ok")
	return markdown, nil
}

// Enrich scrapes the top candidates in place, setting FullContent and
// Scraped on each. Failures are logged and skipped; the snippet remains the
// candidate's content.
func (s *Scraper) Enrich(ctx context.Context, candidates []*domain.Candidate, topN int) {
	if topN > len(candidates) {
		topN = len(candidates)
	}

	done := make(chan struct{}, topN)
	for _, c := range candidates[:topN] {
		c := c
		go func() {
			defer func() { done <- struct{}{} }()
			content, err := s.Scrape(ctx, c.URL)
			if err != nil {
				s.logger.Debug(ctx, "scrape failed", map[string]interface{}{
					"url":   c.URL,
					"error": err.Error(),
				})
				return
			}
			c.FullContent = content
			c.Scraped = true
		}()
	}
	for i := 0; i < topN; i++ {
		<-done
	}
}

func (s *Scraper) recordOutcome(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordScrape(ctx, outcome)
	}
}
