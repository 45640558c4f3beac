package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

// SimpleAgent is the lighter agent variant: one think-act model call per
// cycle instead of the full state machine. It suits small models that
// handle a single combined prompt better than staged ones.
type SimpleAgent struct {
	llm      domain.LLMClient
	searcher Searcher
	fetcher  Fetcher

	maxCycles    int
	maxResults   int
	maxPageChars int

	logger *observability.StructuredLogger
}

// NewSimpleAgent creates a simple agent.
func NewSimpleAgent(llm domain.LLMClient, searcher Searcher, fetcher Fetcher, maxCycles, maxPageChars int) *SimpleAgent {
	if maxCycles < 1 {
		maxCycles = 6
	}
	return &SimpleAgent{
		llm:          llm,
		searcher:     searcher,
		fetcher:      fetcher,
		maxCycles:    maxCycles,
		maxResults:   6,
		maxPageChars: maxPageChars,
		logger:       observability.NewStructuredLogger("agent.simple"),
	}
}

type simpleAction struct {
	Action   string `json:"action"` // "search", "fetch", "answer"
	Argument string `json:"argument"`
}

// Run executes think-act cycles until the model answers or the cycle
// budget runs out, in which case the transcript is summarized as-is.
func (a *SimpleAgent) Run(ctx context.Context, query string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	var transcript strings.Builder
	// pageCache avoids refetching a URL the model asks for twice.
	pageCache := make(map[string]string)
	visited := make([]string, 0, a.maxCycles)

	fmt.Fprintf(&transcript, "Question: %s\n", query)

	for cycle := 0; cycle < a.maxCycles; cycle++ {
		if ctx.Err() != nil {
			break
		}

		resp, err := a.llm.Chat(ctx, []domain.Message{
			{Role: "system", Content: simpleSystemPrompt},
			{Role: "user", Content: transcript.String()},
		}, domain.ChatOptions{Temperature: 0.2})
		if err != nil {
			a.logger.Warn(ctx, "think-act call failed", map[string]interface{}{"error": err.Error()})
			break
		}

		var action simpleAction
		if err := decodeJSONBlock(resp.Content, &action); err != nil {
			// Treat unparseable output as the final answer.
			return a.result(resp.Content, visited, cycle+1, start, false), nil
		}

		switch action.Action {
		case "answer":
			return a.result(action.Argument, visited, cycle+1, start, false), nil

		case "search":
			results, err := a.searcher.Search(ctx, action.Argument, a.maxResults, "")
			if err != nil {
				fmt.Fprintf(&transcript, "\nSearch %q failed: %v\n", action.Argument, err)
				continue
			}
			fmt.Fprintf(&transcript, "\nSearch results for %q:\n", action.Argument)
			for _, r := range results {
				fmt.Fprintf(&transcript, "- %s (%s): %s\n", r.Title, r.URL, r.Content)
			}

		case "fetch":
			content, ok := pageCache[action.Argument]
			if !ok {
				page, err := a.fetcher.Fetch(ctx, action.Argument)
				if err != nil {
					fmt.Fprintf(&transcript, "\nFetching %s failed: %v\n", action.Argument, err)
					continue
				}
				content = truncateText(page.Content, a.maxPageChars)
				pageCache[action.Argument] = content
				visited = append(visited, action.Argument)
			}
			fmt.Fprintf(&transcript, "\nContent of %s:\n%s\n", action.Argument, content)

		default:
			fmt.Fprintf(&transcript, "\nUnknown action %q; use search, fetch, or answer.\n", action.Action)
		}
	}

	// Out of cycles or interrupted: one last summarization attempt, then a
	// deterministic fallback.
	answer := a.summarize(ctx, query, transcript.String())
	return a.result(answer, visited, a.maxCycles, start, true), nil
}

func (a *SimpleAgent) summarize(ctx context.Context, query, transcript string) string {
	resp, err := a.llm.Chat(ctx, []domain.Message{
		{Role: "system", Content: "Summarize the findings below into a direct answer to the question. If nothing useful was found, say so."},
		{Role: "user", Content: transcript},
	}, domain.ChatOptions{Temperature: 0.3})
	if err == nil && strings.TrimSpace(resp.Content) != "" {
		return resp.Content
	}
	return fmt.Sprintf("I could not gather reliable information to answer %q within the time available.", query)
}

func (a *SimpleAgent) result(answer string, visited []string, cycles int, start time.Time, timedOut bool) *Result {
	duration := time.Since(start)
	return &Result{
		Answer:     answer,
		Visited:    visited,
		Iterations: cycles,
		TimedOut:   timedOut,
		Duration:   duration,
		DurationMS: float64(duration.Milliseconds()),
		FinalState: StateDone,
	}
}

const simpleSystemPrompt = `You are a research agent. Each turn, reply with JSON only, choosing exactly one action:
{"action": "search", "argument": "<web search query>"}
{"action": "fetch", "argument": "<url from earlier search results>"}
{"action": "answer", "argument": "<final answer with source URLs>"}
Answer as soon as the gathered material suffices.`
