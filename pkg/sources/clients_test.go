package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const ddgLiteFixture = `<html><body><table>
<tr><td>1.</td><td><a class="result-link" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&rut=abc">Go Documentation</a></td></tr>
<tr><td>&nbsp;</td><td class="result-snippet">The Go programming language documentation.</td></tr>
<tr><td>2.</td><td><a class="result-link" href="https://go.dev/blog/">The Go Blog</a></td></tr>
<tr><td>&nbsp;</td><td class="result-snippet">Official blog posts.</td></tr>
</table></body></html>`

func TestParseDDGLite(t *testing.T) {
	got, err := parseDDGLite(strings.NewReader(ddgLiteFixture), "duckduckgo")
	if err != nil {
		t.Fatalf("parseDDGLite() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d results, want 2", len(got))
	}

	if got[0].Title != "Go Documentation" {
		t.Errorf("title = %q, want %q", got[0].Title, "Go Documentation")
	}
	if got[0].URL != "https://go.dev/doc/" {
		t.Errorf("url = %q, want unwrapped redirect target", got[0].URL)
	}
	if got[0].Content != "The Go programming language documentation." {
		t.Errorf("snippet = %q", got[0].Content)
	}
	if got[1].URL != "https://go.dev/blog/" {
		t.Errorf("direct url = %q, want passthrough", got[1].URL)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("position scores %f, %f not descending", got[0].Score, got[1].Score)
	}
}

func TestTavilySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"Result","url":"https://example.com/a","content":"snippet","score":0.87,"published_date":"2026-08-01"},
			{"title":"No URL","url":"","content":"dropped","score":0.5}
		]}`))
	}))
	defer server.Close()

	client := NewTavilyClient("test-key", "basic", time.Second)
	client.httpClient = server.Client()
	// Point the client at the test server by swapping the transport.
	client.httpClient.Transport = rewriteHost(server.URL)

	got, err := client.Search(context.Background(), "query", 5, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("results = %d, want 1 (empty URL dropped)", len(got))
	}
	if got[0].Score != 0.87 {
		t.Errorf("score = %f, want 0.87", got[0].Score)
	}
	if got[0].PublishedAt == nil {
		t.Error("published date not parsed")
	}
	if got[0].Source != "tavily" {
		t.Errorf("source = %q, want tavily", got[0].Source)
	}
}

func TestSearXNGSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("time_range"); got != "week" {
			t.Errorf("time_range = %q, want week", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"title":"A","url":"https://example.com/a","content":"one","score":0.9},
			{"title":"B","url":"https://example.com/b","content":"two","score":12.5}
		]}`))
	}))
	defer server.Close()

	client := NewSearXNGClient(server.URL, time.Second)
	got, err := client.Search(context.Background(), "query", 5, "week")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("results = %d, want 2", len(got))
	}
	if got[1].Score < 0.3 || got[1].Score > 1.0 {
		t.Errorf("out-of-range upstream score not replaced: %f", got[1].Score)
	}
}

func TestParseDateFormats(t *testing.T) {
	inputs := []string{
		"2026-08-30T10:00:00Z",
		"2026-08-30",
		"Aug 30, 2026",
	}
	for _, in := range inputs {
		if parseDate(in) == nil {
			t.Errorf("parseDate(%q) = nil, want parsed time", in)
		}
	}
	if parseDate("not a date") != nil {
		t.Error("parseDate should return nil for garbage input")
	}
	if parseDate("") != nil {
		t.Error("parseDate should return nil for empty input")
	}
}

// rewriteHost redirects all requests to the test server regardless of the
// request URL's host.
func rewriteHost(target string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		u := strings.TrimPrefix(target, "http://")
		req.URL.Scheme = "http"
		req.URL.Host = u
		return http.DefaultTransport.RoundTrip(req)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
