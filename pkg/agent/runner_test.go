package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
)

// scriptedLLM returns canned responses keyed by a substring of the system
// prompt, so each node gets its matching script regardless of call order.
type scriptedLLM struct {
	responses map[string]string
	err       error
	calls     int
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (*domain.ChatResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	system := ""
	if len(messages) > 0 {
		system = messages[0].Content
	}
	for key, resp := range s.responses {
		if strings.Contains(system, key) {
			return &domain.ChatResponse{Content: resp}, nil
		}
	}
	return &domain.ChatResponse{Content: "{}"}, nil
}

func (s *scriptedLLM) Stream(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (<-chan domain.ChatStreamResponse, error) {
	ch := make(chan domain.ChatStreamResponse, 1)
	ch <- domain.ChatStreamResponse{Done: true}
	close(ch)
	return ch, nil
}

type stubSearcher struct {
	results []*domain.Candidate
	err     error
	calls   int
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error) {
	s.calls++
	return s.results, s.err
}

type stubFetcher struct {
	pages map[string]string
	err   error
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Page{URL: url, Content: f.pages[url]}, nil
}

func testRunner(llm domain.LLMClient, searcher Searcher, fetcher Fetcher) *Runner {
	cfg := config.AgentConfig{Timeout: "1m", StepDelay: "0s", MaxPageChars: 4000}
	r := NewRunner(llm, searcher, fetcher, cfg, nil, nil)
	r.stepDelay = 0
	return r
}

func TestRunnerHappyPath(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"research planner": `{"search_query": "go garbage collector design", "missing_points": ["gc algorithm"]}`,
		"extract facts":    `{"facts": ["Go uses a concurrent mark-sweep collector"]}`,
		"judge whether":    `{"sufficient": true}`,
		"Answer the question": "Go uses a concurrent mark-sweep garbage collector. (source: https://go.dev/doc/gc)",
	}}
	searcher := &stubSearcher{results: []*domain.Candidate{
		{Title: "GC Guide", URL: "https://go.dev/doc/gc", Content: "snippet", Score: 0.9},
	}}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://go.dev/doc/gc": "A guide to the Go garbage collector.",
	}}

	events := make(chan domain.StreamEvent, 64)
	result, err := testRunner(llm, searcher, fetcher).WithEvents(events).Run(context.Background(), "how does the go gc work", time.Minute)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.TimedOut {
		t.Error("TimedOut = true, want false")
	}
	if !strings.Contains(result.Answer, "mark-sweep") {
		t.Errorf("answer = %q, want synthesized answer", result.Answer)
	}
	if len(result.Facts) != 1 {
		t.Errorf("facts = %d, want 1", len(result.Facts))
	}
	if len(result.Visited) != 1 || result.Visited[0] != "https://go.dev/doc/gc" {
		t.Errorf("visited = %v, want the navigated URL", result.Visited)
	}
	if searcher.calls != 1 {
		t.Errorf("search calls = %d, want 1", searcher.calls)
	}

	close(events)
	var sawStatus, sawDone bool
	for e := range events {
		switch e.Type {
		case domain.EventStatus:
			sawStatus = true
		case domain.EventDone:
			sawDone = true
		}
	}
	if !sawStatus || !sawDone {
		t.Errorf("events missing status/done: status=%v done=%v", sawStatus, sawDone)
	}
}

func TestRunnerZeroBudgetForcesResponse(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("model down")}
	searcher := &stubSearcher{}
	fetcher := &stubFetcher{}

	result, err := testRunner(llm, searcher, fetcher).Run(context.Background(), "anything", 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.TimedOut {
		t.Error("TimedOut = false, want true for exhausted budget")
	}
	if result.Answer == "" {
		t.Error("answer empty, want deterministic fallback")
	}
	if searcher.calls != 0 {
		t.Errorf("search calls = %d, want 0 with no budget", searcher.calls)
	}
}

func TestRunnerRespondFallbackNeverFails(t *testing.T) {
	// Model fails on every call, search returns nothing. The run must
	// still end with a non-empty answer.
	llm := &scriptedLLM{err: errors.New("model down")}
	searcher := &stubSearcher{err: errors.New("all sources down")}
	fetcher := &stubFetcher{}

	r := testRunner(llm, searcher, fetcher)
	r.respondReserve = time.Hour // recovery always routes to respond

	result, err := r.Run(context.Background(), "anything", time.Minute)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Answer == "" {
		t.Error("answer empty, want fallback text")
	}
}

func TestRunnerMalformedVerifyNearDeadline(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"research planner": `{"search_query": "q", "missing_points": []}`,
		"extract facts":    `{"facts": ["a fact"]}`,
		"judge whether":    `this is not json at all`,
		"Answer the question": "final answer",
	}}
	searcher := &stubSearcher{results: []*domain.Candidate{
		{Title: "A", URL: "https://example.com/a", Content: "s", Score: 0.9},
	}}
	fetcher := &stubFetcher{pages: map[string]string{"https://example.com/a": "content"}}

	// A 5s budget is already inside the 30s respond reserve, so the parse
	// failure must route straight to responding.
	result, err := testRunner(llm, searcher, fetcher).Run(context.Background(), "q", 5*time.Second)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Answer != "final answer" {
		t.Errorf("answer = %q, want respond output after recovery", result.Answer)
	}
	if searcher.calls != 1 {
		t.Errorf("search calls = %d, want 1 (no retry inside respond reserve)", searcher.calls)
	}
}

func TestRunnerSeedURLNavigatesFirst(t *testing.T) {
	llm := &scriptedLLM{responses: map[string]string{
		"research planner": `{"search_query": "release notes", "missing_points": [], "first_step": "navigate"}`,
		"extract facts":    `{"facts": ["v2 shipped in june"]}`,
		"judge whether":    `{"sufficient": true}`,
		"Answer the question": "v2 shipped in june",
	}}
	searcher := &stubSearcher{}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/changelog": "v2 shipped in june",
	}}

	result, err := testRunner(llm, searcher, fetcher).RunFrom(context.Background(),
		"when did v2 ship", "https://example.com/changelog", time.Minute)
	if err != nil {
		t.Fatalf("RunFrom() error = %v", err)
	}
	if len(result.Visited) == 0 || result.Visited[0] != "https://example.com/changelog" {
		t.Errorf("visited = %v, want the seed URL first", result.Visited)
	}
	if searcher.calls != 0 {
		t.Errorf("search calls = %d, want 0 when the seed page suffices", searcher.calls)
	}
}

func TestNavigateFollowsPageLinks(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]string{
		"https://example.com/next": "linked page content",
	}}
	r := testRunner(&scriptedLLM{}, &stubSearcher{}, fetcher)

	s := NewAgentState("q", time.Now().Add(time.Minute))
	s.PageLinks = []string{"https://example.com/next"}

	next, err := r.navigate(context.Background(), s)
	if err != nil {
		t.Fatalf("navigate() error = %v", err)
	}
	if next != StateExtract {
		t.Errorf("next state = %s, want extract", next)
	}
	if len(s.Visited) != 1 || s.Visited[0] != "https://example.com/next" {
		t.Errorf("visited = %v, want the page link", s.Visited)
	}
}

func TestTruncateTextRuneBoundary(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes per rune
	got := truncateText(s, 5)
	if len(got) > 5 {
		t.Errorf("len = %d, want <= 5", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated text %q is not valid UTF-8", got)
	}
	if got != "éé" {
		t.Errorf("got %q, want two whole runes", got)
	}
}

func TestStateBoundedMemory(t *testing.T) {
	s := NewAgentState("q", time.Now().Add(time.Minute))

	for i := 0; i < 20; i++ {
		s.AddFact(strings.Repeat("f", i+1))
		s.AddMissingPoint(strings.Repeat("m", i+1))
		s.AddQuery(strings.Repeat("q", i+1))
	}

	if len(s.KnownFacts) != 10 {
		t.Errorf("facts = %d, want capped at 10", len(s.KnownFacts))
	}
	if len(s.MissingPoints) != 8 {
		t.Errorf("missing points = %d, want capped at 8", len(s.MissingPoints))
	}
	if len(s.LastQueries) != 8 {
		t.Errorf("queries = %d, want capped at 8", len(s.LastQueries))
	}
	// Eviction is oldest-first.
	if s.KnownFacts[len(s.KnownFacts)-1] != strings.Repeat("f", 20) {
		t.Error("newest fact missing after eviction")
	}
}

func TestStateQueryHistoryDropsRepeats(t *testing.T) {
	s := NewAgentState("q", time.Now().Add(time.Minute))
	for i := 0; i < 5; i++ {
		s.AddQuery("same query")
	}
	if len(s.LastQueries) != 1 {
		t.Errorf("queries = %v, want a single entry after repeats", s.LastQueries)
	}
	s.AddQuery("another query")
	if len(s.LastQueries) != 2 {
		t.Errorf("queries = %d, want 2 distinct entries", len(s.LastQueries))
	}
}

func TestStateVisitedOrderedWithoutDuplicates(t *testing.T) {
	s := NewAgentState("q", time.Now().Add(time.Minute))
	s.MarkVisited("https://a.example/page")
	s.MarkVisited("https://b.example/page")
	s.MarkVisited("https://a.example/page/")

	want := []string{"https://a.example/page", "https://b.example/page"}
	if len(s.Visited) != len(want) {
		t.Fatalf("visited = %v, want %v", s.Visited, want)
	}
	for i := range want {
		if s.Visited[i] != want[i] {
			t.Errorf("visited[%d] = %q, want %q", i, s.Visited[i], want[i])
		}
	}
	if !s.WasVisited("https://b.example/page/") {
		t.Error("trailing-slash variant not treated as visited")
	}
}

func TestStateDuplicateFactsDropped(t *testing.T) {
	s := NewAgentState("q", time.Now().Add(time.Minute))
	s.AddFact("same")
	s.AddFact("same")
	if len(s.KnownFacts) != 1 {
		t.Errorf("facts = %d, want 1 after duplicate", len(s.KnownFacts))
	}
}

func TestDecodeJSONBlock(t *testing.T) {
	var out planOutput

	if err := decodeJSONBlock(`{"search_query": "x"}`, &out); err != nil {
		t.Errorf("strict JSON failed: %v", err)
	}

	fenced := "```json\n{\"search_query\": \"y\"}\n```"
	if err := decodeJSONBlock(fenced, &out); err != nil {
		t.Errorf("fenced JSON failed: %v", err)
	}
	if out.SearchQuery != "y" {
		t.Errorf("search_query = %q, want y", out.SearchQuery)
	}

	if err := decodeJSONBlock("no json here", &out); !errors.Is(err, domain.ErrPlanParse) {
		t.Errorf("error = %v, want ErrPlanParse", err)
	}
}
