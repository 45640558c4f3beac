package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lancerhq/lancer/pkg/domain"
)

// Searcher is the slice of the aggregator the agent needs.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int, freshness string) ([]*domain.Candidate, error)
}

// Fetcher retrieves one page's content as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Page, error)
}

// nodeFunc executes one state and returns the next.
type nodeFunc func(ctx context.Context, s *AgentState) (State, error)

// nodes is the dispatch table. Every state except done has a handler;
// reaching done ends the run.
func (r *Runner) nodes() map[State]nodeFunc {
	return map[State]nodeFunc{
		StatePlan:     r.plan,
		StateSearch:   r.search,
		StateNavigate: r.navigate,
		StateExtract:  r.extract,
		StateVerify:   r.verify,
		StateRespond:  r.respond,
		StateError:    r.recover,
	}
}

type planOutput struct {
	SearchQuery   string   `json:"search_query"`
	MissingPoints []string `json:"missing_points"`
	FirstStep     string   `json:"first_step"`
}

// plan asks the model for an opening search query and the list of points
// the answer needs. With a seed URL the model may choose to navigate there
// first. A parse failure falls back to searching the raw query.
func (r *Runner) plan(ctx context.Context, s *AgentState) (State, error) {
	user := fmt.Sprintf("Question: %s", s.Query)
	if s.SeedURL != "" {
		user += fmt.Sprintf("\nStarting URL: %s", s.SeedURL)
	}
	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: user},
	}, domain.ChatOptions{Temperature: 0.2})

	if err == nil {
		var out planOutput
		if jerr := decodeJSONBlock(resp.Content, &out); jerr == nil && out.SearchQuery != "" {
			s.AddQuery(out.SearchQuery)
			for _, p := range out.MissingPoints {
				s.AddMissingPoint(p)
			}
			if out.FirstStep == "navigate" && s.SeedURL != "" {
				return StateNavigate, nil
			}
			return StateSearch, nil
		}
	}

	// Fallback plan: search the question verbatim.
	s.AddQuery(s.Query)
	s.AddMissingPoint("core answer to the question")
	return StateSearch, nil
}

// search runs the latest query through the aggregator.
func (r *Runner) search(ctx context.Context, s *AgentState) (State, error) {
	if len(s.LastQueries) == 0 {
		s.AddQuery(s.Query)
	}
	query := s.LastQueries[len(s.LastQueries)-1]

	results, err := r.searcher.Search(ctx, query, r.maxResults, "")
	if err != nil {
		return StateError, fmt.Errorf("search failed: %w", err)
	}

	s.Candidates = results
	r.emit(domain.EventSearchComplete, map[string]interface{}{
		"query":   query,
		"results": len(results),
	})
	return StateNavigate, nil
}

// navigate loads the next target: the seed URL first, then the best
// unvisited search result, then the first unvisited link from the last
// page. With nothing left the agent skips straight to verification.
func (r *Runner) navigate(ctx context.Context, s *AgentState) (State, error) {
	target := ""
	switch {
	case s.SeedURL != "" && !s.WasVisited(s.SeedURL):
		target = s.SeedURL
	case s.NextUnvisited() != nil:
		target = s.NextUnvisited().URL
	default:
		target = s.NextUnvisitedLink()
	}
	if target == "" {
		return StateVerify, nil
	}
	s.MarkVisited(target)
	s.CurrentURL = target

	page, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		return StateError, fmt.Errorf("navigation to %s failed: %w", target, err)
	}

	s.PageLinks = page.Links
	s.PageContent = truncateText(page.Content, r.maxPageChars)
	return StateExtract, nil
}

type extractOutput struct {
	Facts []string `json:"facts"`
}

// extract pulls question-relevant facts out of the current page.
func (r *Runner) extract(ctx context.Context, s *AgentState) (State, error) {
	if strings.TrimSpace(s.PageContent) == "" {
		return StateVerify, nil
	}

	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\n\nPage (%s):\n%s", s.Query, s.CurrentURL, s.PageContent)},
	}, domain.ChatOptions{Temperature: 0.1})
	if err != nil {
		return StateError, fmt.Errorf("extraction failed: %w", err)
	}

	var out extractOutput
	if jerr := decodeJSONBlock(resp.Content, &out); jerr == nil {
		for _, f := range out.Facts {
			s.AddFact(fmt.Sprintf("%s (source: %s)", f, s.CurrentURL))
		}
	}
	s.PageContent = ""
	return StateVerify, nil
}

type verifyOutput struct {
	Sufficient bool     `json:"sufficient"`
	Missing    []string `json:"missing"`
	NextQuery  string   `json:"next_query"`
}

// verify decides whether the collected facts answer the question. A parse
// failure routes through error recovery so a flaky model cannot loop the
// agent forever.
func (r *Runner) verify(ctx context.Context, s *AgentState) (State, error) {
	if len(s.KnownFacts) == 0 && s.NextUnvisited() != nil {
		return StateNavigate, nil
	}

	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: verifySystemPrompt},
		{Role: "user", Content: r.verifyPrompt(s)},
	}, domain.ChatOptions{Temperature: 0.1})
	if err != nil {
		return StateError, fmt.Errorf("verification failed: %w", err)
	}

	var out verifyOutput
	if jerr := decodeJSONBlock(resp.Content, &out); jerr != nil {
		return StateError, fmt.Errorf("verification output did not parse: %w", jerr)
	}

	if out.Sufficient {
		return StateRespond, nil
	}

	s.MissingPoints = nil
	for _, m := range out.Missing {
		s.AddMissingPoint(m)
	}

	if out.NextQuery != "" && !s.QueryRepeated(out.NextQuery) {
		s.AddQuery(out.NextQuery)
		return StateSearch, nil
	}

	// The model had no new angle; try remaining candidates or page links,
	// otherwise answer with what there is.
	if s.NextUnvisited() != nil || s.NextUnvisitedLink() != "" {
		return StateNavigate, nil
	}
	return StateRespond, nil
}

func (r *Runner) verifyPrompt(s *AgentState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nKnown facts:\n", s.Query)
	for _, f := range s.KnownFacts {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	if len(s.MissingPoints) > 0 {
		sb.WriteString("\nPreviously missing:\n")
		for _, m := range s.MissingPoints {
			fmt.Fprintf(&sb, "- %s\n", m)
		}
	}
	if len(s.LastQueries) > 0 {
		sb.WriteString("\nQueries already tried:\n")
		for _, q := range s.LastQueries {
			fmt.Fprintf(&sb, "- %s\n", q)
		}
	}
	return sb.String()
}

// respond produces the final answer. It must not fail: if the model call
// errors the answer falls back to a plain rendering of the known facts.
func (r *Runner) respond(ctx context.Context, s *AgentState) (State, error) {
	r.emit(domain.EventAnswerStart, map[string]interface{}{
		"facts": len(s.KnownFacts),
	})

	resp, err := r.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: respondSystemPrompt},
		{Role: "user", Content: r.verifyPrompt(s)},
	}, domain.ChatOptions{Temperature: 0.4})
	if err == nil && strings.TrimSpace(resp.Content) != "" {
		s.FinalAnswer = resp.Content
		return StateDone, nil
	}

	s.FinalAnswer = fallbackAnswer(s)
	return StateDone, nil
}

// recover routes after a node failure. With budget left the agent retries
// from a fresh search; close to the deadline it answers with what it has.
func (r *Runner) recover(ctx context.Context, s *AgentState) (State, error) {
	if s.Remaining() < r.respondReserve {
		return StateRespond, nil
	}
	return StateSearch, nil
}

// fallbackAnswer renders known facts without the model. Deterministic and
// always non-empty.
func fallbackAnswer(s *AgentState) string {
	if len(s.KnownFacts) == 0 {
		return fmt.Sprintf("I could not gather reliable information to answer %q within the time available.", s.Query)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Based on the sources reviewed, here is what was found about %q:\n\n", s.Query)
	for _, f := range s.KnownFacts {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	return sb.String()
}

// truncateText cuts s to at most limit bytes without splitting a rune.
func truncateText(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

// decodeJSONBlock decodes strict JSON, tolerating a fenced code block or
// surrounding prose as the one recovery path.
func decodeJSONBlock(text string, out interface{}) error {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return nil
	}

	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return fmt.Errorf("%w: no JSON found", domain.ErrPlanParse)
	}
	end := strings.LastIndexAny(trimmed, "}]")
	if end <= start {
		return fmt.Errorf("%w: unterminated JSON", domain.ErrPlanParse)
	}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPlanParse, err)
	}
	return nil
}

const planSystemPrompt = `You are a research planner. Given a question, reply with JSON only:
{"search_query": "<the best web search query>", "missing_points": ["<information the answer needs>", ...], "first_step": "search"|"navigate"}
Say "navigate" only when a starting URL is given and reading it first is the best opening move.`

const extractSystemPrompt = `You extract facts from web pages. Given a question and a page, reply with JSON only:
{"facts": ["<fact relevant to the question, specific and self-contained>", ...]}
Return an empty list if the page is irrelevant.`

const verifySystemPrompt = `You judge whether collected facts answer a question. Reply with JSON only:
{"sufficient": true|false, "missing": ["<what is still unknown>", ...], "next_query": "<a better search query, or empty>"}`

const respondSystemPrompt = `Answer the question using only the known facts provided. Cite the source URLs inline. Be direct and concise. If the facts are insufficient, say what is known and what could not be established.`
