// Package agent implements the bounded research agent: a state machine that
// alternates searching, navigating, and extracting until it can answer or
// its wall-clock budget runs out.
package agent

import (
	"strings"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

// State identifies the agent's current node.
type State string

const (
	StatePlan     State = "plan"
	StateSearch   State = "search"
	StateNavigate State = "navigate"
	StateExtract  State = "extract"
	StateVerify   State = "verify"
	StateRespond  State = "respond"
	StateError    State = "error"
	StateDone     State = "done"
)

// Memory caps. The working memory is bounded so prompts stay a predictable
// size no matter how long a run lasts; oldest entries are evicted first.
const (
	maxKnownFacts    = 10
	maxMissingPoints = 8
	maxQueryHistory  = 8
)

// AgentState is the mutable working memory of one run. It is owned by the
// runner goroutine and never shared.
type AgentState struct {
	Query     string
	SeedURL   string
	Current   State
	Iteration int
	Deadline  time.Time

	KnownFacts    []string
	MissingPoints []string
	LastQueries   []string

	Candidates  []*domain.Candidate
	Visited     []string
	visitedSet  map[string]bool
	CurrentURL  string
	PageContent string
	PageLinks   []string

	FinalAnswer string
	LastError   string
}

// NewAgentState creates the initial state for a run ending at deadline.
func NewAgentState(query string, deadline time.Time) *AgentState {
	return &AgentState{
		Query:      query,
		Current:    StatePlan,
		Deadline:   deadline,
		visitedSet: make(map[string]bool),
	}
}

// visitKey normalizes a URL for visit comparisons.
func visitKey(url string) string {
	return strings.TrimSuffix(url, "/")
}

// MarkVisited appends url to the ordered visit log unless a
// trailing-slash-equivalent URL was already recorded.
func (s *AgentState) MarkVisited(url string) {
	key := visitKey(url)
	if s.visitedSet[key] {
		return
	}
	s.visitedSet[key] = true
	s.Visited = append(s.Visited, url)
}

// WasVisited reports whether url was already navigated this run.
func (s *AgentState) WasVisited(url string) bool {
	return s.visitedSet[visitKey(url)]
}

// Remaining returns the wall-clock budget left.
func (s *AgentState) Remaining() time.Duration {
	return time.Until(s.Deadline)
}

// AddFact appends a fact, evicting the oldest beyond the cap. Duplicates
// are dropped.
func (s *AgentState) AddFact(fact string) {
	if fact == "" {
		return
	}
	for _, f := range s.KnownFacts {
		if f == fact {
			return
		}
	}
	s.KnownFacts = appendBounded(s.KnownFacts, fact, maxKnownFacts)
}

// AddMissingPoint appends an open question, evicting the oldest beyond the
// cap.
func (s *AgentState) AddMissingPoint(point string) {
	if point == "" {
		return
	}
	s.MissingPoints = appendBounded(s.MissingPoints, point, maxMissingPoints)
}

// AddQuery records an issued search query. Repeats are dropped so the
// history stays a rolling set.
func (s *AgentState) AddQuery(query string) {
	if query == "" || s.QueryRepeated(query) {
		return
	}
	s.LastQueries = appendBounded(s.LastQueries, query, maxQueryHistory)
}

// QueryRepeated reports whether query was already issued this run.
func (s *AgentState) QueryRepeated(query string) bool {
	for _, q := range s.LastQueries {
		if q == query {
			return true
		}
	}
	return false
}

// NextUnvisited returns the best-ranked candidate not yet navigated, or nil.
func (s *AgentState) NextUnvisited() *domain.Candidate {
	for _, c := range s.Candidates {
		if !s.WasVisited(c.URL) {
			return c
		}
	}
	return nil
}

// NextUnvisitedLink returns the first link from the last fetched page not
// yet navigated, or empty.
func (s *AgentState) NextUnvisitedLink() string {
	for _, l := range s.PageLinks {
		if !s.WasVisited(l) {
			return l
		}
	}
	return ""
}

func appendBounded(list []string, item string, limit int) []string {
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}
