package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/lancerhq/lancer/pkg/config"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/observability"
)

// respondReserveDefault is the budget floor under which recovery stops
// retrying and the agent answers with what it has.
const respondReserveDefault = 30 * time.Second

// maxIterations is a hard stop against transition loops that would
// otherwise only end at the deadline.
const maxIterations = 40

// Result is the outcome of one agent run.
type Result struct {
	Answer     string          `json:"answer"`
	Facts      []string        `json:"facts"`
	Visited    []string        `json:"visited_urls"`
	Iterations int             `json:"iterations"`
	TimedOut   bool            `json:"timed_out"`
	Duration   time.Duration   `json:"-"`
	DurationMS float64         `json:"duration_ms"`
	FinalState State           `json:"final_state"`
}

// Runner drives the agent state machine for one query at a time.
type Runner struct {
	llm      domain.LLMClient
	searcher Searcher
	fetcher  Fetcher

	timeout        time.Duration
	stepDelay      time.Duration
	respondReserve time.Duration
	maxResults     int
	maxPageChars   int

	logger    *observability.StructuredLogger
	metrics   *observability.Metrics
	telemetry *observability.Telemetry

	events chan<- domain.StreamEvent
}

// NewRunner creates an agent runner. telemetry and metrics may be nil.
func NewRunner(llm domain.LLMClient, searcher Searcher, fetcher Fetcher, cfg config.AgentConfig, telemetry *observability.Telemetry, metrics *observability.Metrics) *Runner {
	return &Runner{
		llm:            llm,
		searcher:       searcher,
		fetcher:        fetcher,
		timeout:        config.GetDuration(cfg.Timeout, 5*time.Minute),
		stepDelay:      config.GetDuration(cfg.StepDelay, 2*time.Second),
		respondReserve: respondReserveDefault,
		maxResults:     8,
		maxPageChars:   cfg.MaxPageChars,
		logger:         observability.NewStructuredLogger("agent"),
		metrics:        metrics,
		telemetry:      telemetry,
	}
}

// WithEvents sets a channel for progress events. The runner never closes
// it and drops events if the receiver lags.
func (r *Runner) WithEvents(events chan<- domain.StreamEvent) *Runner {
	r.events = events
	return r
}

// Stream runs one query with a per-run event channel, leaving the shared
// runner untouched so concurrent callers can each attach their own.
func (r *Runner) Stream(ctx context.Context, query, seedURL string, timeout time.Duration, events chan<- domain.StreamEvent) (*Result, error) {
	run := *r
	run.events = events
	return run.RunFrom(ctx, query, seedURL, timeout)
}

func (r *Runner) emit(t domain.StreamEventType, data map[string]interface{}) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- domain.NewStreamEvent(t, data):
	default:
	}
}

// Run executes the state machine until it reaches done. timeout overrides
// the configured budget when positive; zero means answer immediately with
// whatever a no-work run produces.
func (r *Runner) Run(ctx context.Context, query string, timeout time.Duration) (*Result, error) {
	return r.RunFrom(ctx, query, "", timeout)
}

// RunFrom is Run with an optional seed URL the plan may open before
// searching.
func (r *Runner) RunFrom(ctx context.Context, query, seedURL string, timeout time.Duration) (*Result, error) {
	budget := r.timeout
	if timeout > 0 {
		budget = timeout
	} else if timeout == 0 {
		budget = 0
	}

	start := time.Now()
	state := NewAgentState(query, start.Add(budget))
	state.SeedURL = seedURL
	nodes := r.nodes()
	timedOut := false

	// The run context carries a grace period past the deadline so the
	// forced respond step can still call the model.
	runCtx, cancel := context.WithDeadline(ctx, state.Deadline.Add(r.respondReserve))
	defer cancel()

	for state.Current != StateDone {
		// Budget check before every transition. Once the deadline passes
		// the only remaining step is responding.
		if state.Remaining() <= 0 && state.Current != StateRespond {
			timedOut = true
			r.logger.Warn(ctx, "budget exhausted, forcing response", map[string]interface{}{
				"state":     string(state.Current),
				"iteration": state.Iteration,
			})
			state.Current = StateRespond
			continue
		}
		if state.Iteration >= maxIterations && state.Current != StateRespond {
			state.Current = StateRespond
			continue
		}

		node, ok := nodes[state.Current]
		if !ok {
			return nil, fmt.Errorf("agent: no handler for state %q", state.Current)
		}

		current := state.Current
		r.emit(domain.EventStatus, map[string]interface{}{
			"state":     string(current),
			"iteration": state.Iteration,
		})

		var next State
		var err error
		step := func(ctx context.Context) error {
			next, err = node(ctx, state)
			return err
		}
		if r.telemetry != nil {
			_ = r.telemetry.InstrumentAgentNode(runCtx, string(current), state.Iteration, step)
		} else {
			_ = step(runCtx)
		}
		if r.metrics != nil {
			r.metrics.RecordAgentStep(ctx, string(current))
		}

		if err != nil {
			state.LastError = err.Error()
			r.logger.Warn(ctx, "agent node failed", map[string]interface{}{
				"state": string(current),
				"error": err.Error(),
			})
			next = StateError
		}

		state.Current = next
		state.Iteration++

		// A settle delay between working states keeps the loop polite to
		// upstreams; terminal transitions skip it.
		if r.stepDelay > 0 && state.Current != StateDone && state.Current != StateRespond {
			select {
			case <-time.After(r.stepDelay):
			case <-ctx.Done():
				state.Current = StateRespond
			}
		}
	}

	if r.metrics != nil {
		terminal := "answered"
		if timedOut {
			terminal = "timed_out"
		}
		r.metrics.RecordAgentRun(ctx, terminal)
	}

	duration := time.Since(start)
	result := &Result{
		Answer:     state.FinalAnswer,
		Facts:      state.KnownFacts,
		Visited:    state.Visited,
		Iterations: state.Iteration,
		TimedOut:   timedOut,
		Duration:   duration,
		DurationMS: float64(duration.Milliseconds()),
		FinalState: StateDone,
	}
	r.emit(domain.EventDone, map[string]interface{}{
		"answer":     result.Answer,
		"iterations": result.Iterations,
		"timed_out":  result.TimedOut,
	})
	return result, nil
}
