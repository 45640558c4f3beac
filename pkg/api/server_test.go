package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lancerhq/lancer/pkg/agent"
	"github.com/lancerhq/lancer/pkg/browse"
	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/rerank"
	"github.com/lancerhq/lancer/pkg/research"
	"github.com/lancerhq/lancer/pkg/sources"
	"github.com/lancerhq/lancer/pkg/temporal"
)

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatResponse{Content: f.content}, nil
}

func (f *fakeLLM) Stream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.ChatStreamResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.ChatStreamResponse, 2)
	ch <- domain.ChatStreamResponse{Content: f.content}
	ch <- domain.ChatStreamResponse{Done: true}
	close(ch)
	return ch, nil
}

type fakeSource struct {
	results []*domain.Candidate
	err     error
}

func (f *fakeSource) Name() string { return "tavily" }

func (f *fakeSource) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	return f.results, f.err
}

func testServer(t *testing.T, source domain.SourceClient, llm domain.LLMClient) *Server {
	t.Helper()

	agg := sources.NewAggregator([]domain.SourceClient{source}, time.Second, nil)
	pipeline := rerank.NewPipeline(config.Default().Rerank, nil, nil)
	detector := temporal.NewDetector()
	scraper := sources.NewScraper(time.Second, 4000, 2, nil)
	synth := research.NewSynthesizer(llm)
	svc := research.NewService(agg, pipeline, detector, synth, scraper, 10, 2, nil)

	planner := research.NewPlanner(llm, 6)
	orch := research.NewOrchestrator(planner, agg, pipeline, detector, scraper, synth,
		config.Default().Research, nil)

	fetcher := browse.NewScrapeFetcher(scraper)
	runner := agent.NewRunner(llm, agg, fetcher,
		config.AgentConfig{Timeout: "5s", StepDelay: "1ms", MaxPageChars: 4000}, nil, nil)
	simple := agent.NewSimpleAgent(llm, agg, fetcher, 3, 4000)

	return NewServer(config.APIConfig{Host: "127.0.0.1", Port: 0, Timeout: "30s"}, Deps{
		Search:      svc,
		Research:    orch,
		Agent:       runner,
		SimpleAgent: simple,
		Aggregator:  agg,
	})
}

func okSource() *fakeSource {
	return &fakeSource{results: []*domain.Candidate{
		{Title: "A", URL: "https://example.com/a", Content: "snippet", Source: "tavily", Score: 0.9},
	}}
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{content: "x"})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{content: "the answer [1]"})

	body := strings.NewReader(`{"query": "test", "include_answer": true}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %d, want 1", len(resp.Results))
	}
	if resp.Answer != "the answer [1]" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestSearchEndpointMissingQuery(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSearchEndpointNoResults(t *testing.T) {
	srv := testServer(t, &fakeSource{err: errors.New("down")}, &fakeLLM{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search",
		strings.NewReader(`{"query": "x"}`)))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for no results", rec.Code)
	}
}

func TestSourcesEndpoint(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sources", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tavily") {
		t.Errorf("body = %s, want source listing", rec.Body.String())
	}
}

func TestSearchStreamEndpoint(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{content: "chunked answer"})

	body := strings.NewReader(`{"query": "test", "include_answer": true}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search/stream", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	out := rec.Body.String()
	for _, want := range []string{"event: status", "event: results", "event: answer_chunk", "event: done"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
}

func TestHeavySearchEndpointStream(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{content: "full answer"})

	body := strings.NewReader(`{"query": "test", "stream": true}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search/heavy", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	out := rec.Body.String()
	for _, want := range []string{"scraping", "event: results", "event: answer_chunk", "event: done"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
}

func TestDeepResearchEndpointStreamsReport(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{content: "report text"})

	body := strings.NewReader(`{"query": "research this"}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/research/deep", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{"event: plan_ready", "event: dimension_start", "event: report_chunk", "event: done"} {
		if !strings.Contains(out, want) {
			t.Errorf("stream missing %q:\n%s", want, out)
		}
	}
}

func TestAgentRunEndpointZeroTimeout(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{err: errors.New("model down")})

	body := strings.NewReader(`{"query": "q", "timeout_seconds": 0}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/agent/run", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID    string `json:"run_id"`
		Answer   string `json:"answer"`
		TimedOut bool   `json:"timed_out"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Error("run_id missing")
	}
	if !resp.TimedOut {
		t.Error("timed_out = false, want true for zero budget")
	}
	if resp.Answer == "" {
		t.Error("answer empty, want fallback")
	}
}

func TestAgentRunEndpointStream(t *testing.T) {
	srv := testServer(t, okSource(), &fakeLLM{err: errors.New("model down")})

	body := strings.NewReader(`{"query": "q", "timeout_seconds": 0, "stream": true}`)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/agent/run", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	out := rec.Body.String()
	if !strings.Contains(out, "event: status") {
		t.Errorf("stream missing status event:\n%s", out)
	}
	if !strings.Contains(out, "event: done") {
		t.Errorf("stream missing done event:\n%s", out)
	}
	if !strings.Contains(out, `"answer"`) {
		t.Errorf("done event missing answer:\n%s", out)
	}
}
