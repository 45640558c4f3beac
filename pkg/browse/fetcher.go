package browse

import (
	"context"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/sources"
)

// ScrapeFetcher fetches pages with the plain HTTP scraper. It is the
// default page loader; the browser-backed variant is only worth its cost
// on JavaScript-heavy sites.
type ScrapeFetcher struct {
	scraper *sources.Scraper
}

// NewScrapeFetcher wraps a scraper as a page fetcher.
func NewScrapeFetcher(scraper *sources.Scraper) *ScrapeFetcher {
	return &ScrapeFetcher{scraper: scraper}
}

// Fetch retrieves one page as markdown text.
func (f *ScrapeFetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	content, err := f.scraper.Scrape(ctx, url)
	if err != nil {
		return nil, err
	}
	return &domain.Page{URL: url, Content: content}, nil
}

// BrowserFetcher fetches pages through a headless browser session.
type BrowserFetcher struct {
	browser domain.Browser
}

// NewBrowserFetcher wraps a browser as a page fetcher.
func NewBrowserFetcher(browser domain.Browser) *BrowserFetcher {
	return &BrowserFetcher{browser: browser}
}

// Fetch navigates to the URL and extracts the rendered page.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	if err := f.browser.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return f.browser.Page(ctx)
}
