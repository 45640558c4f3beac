package browse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/sources"
)

type fakeBrowser struct {
	page    *domain.Page
	navErr  error
	visited []string
	closed  bool
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.visited = append(f.visited, url)
	return f.navErr
}

func (f *fakeBrowser) Page(ctx context.Context) (*domain.Page, error) {
	if f.page == nil {
		return nil, errors.New("no page loaded")
	}
	return f.page, nil
}

func (f *fakeBrowser) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

func TestScrapeFetcherReturnsMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><h1>Title</h1><p>body text</p></body></html>"))
	}))
	defer srv.Close()

	fetcher := NewScrapeFetcher(sources.NewScraper(5*time.Second, 4000, 2, nil))
	page, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.URL != srv.URL {
		t.Errorf("url = %q, want %q", page.URL, srv.URL)
	}
	if !strings.Contains(page.Content, "body text") {
		t.Errorf("content = %q, want page body", page.Content)
	}
}

func TestBrowserFetcherNavigatesThenExtracts(t *testing.T) {
	b := &fakeBrowser{page: &domain.Page{
		URL:     "https://example.com/doc",
		Title:   "Doc",
		Content: "rendered text",
	}}

	fetcher := NewBrowserFetcher(b)
	page, err := fetcher.Fetch(context.Background(), "https://example.com/doc")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(b.visited) != 1 || b.visited[0] != "https://example.com/doc" {
		t.Errorf("visited = %v", b.visited)
	}
	if page.Content != "rendered text" {
		t.Errorf("content = %q", page.Content)
	}
}

func TestBrowserFetcherNavigationFailure(t *testing.T) {
	b := &fakeBrowser{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}

	fetcher := NewBrowserFetcher(b)
	if _, err := fetcher.Fetch(context.Background(), "https://bad.invalid"); err == nil {
		t.Fatal("expected navigation error")
	}
}
