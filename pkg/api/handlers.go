package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lancerhq/lancer/pkg/agent"
	"github.com/lancerhq/lancer/pkg/domain"
	"github.com/lancerhq/lancer/pkg/research"
	"github.com/lancerhq/lancer/pkg/sources"
)

// maxBodyBytes caps request body size.
const maxBodyBytes = 1 << 20

// streamBuffer sizes the producer-consumer channel behind SSE responses.
const streamBuffer = 64

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// errorStatus maps domain error classes to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConfig):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleSearch(svc *research.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		resp, err := svc.Search(r.Context(), req)
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type heavySearchRequest struct {
	domain.SearchRequest
	Stream bool `json:"stream,omitempty"`
}

func (s *Server) handleHeavySearch(svc *research.Service, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heavySearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if req.Stream {
			sse, err := newSSEWriter(w)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			events := make(chan domain.StreamEvent, streamBuffer)
			done := make(chan struct{})
			go func() {
				defer close(done)
				svc.StreamHeavySearch(ctx, req.SearchRequest, events)
			}()
			sse.pump(ctx, events, done)
			return
		}

		resp, err := svc.HeavySearch(ctx, req.SearchRequest)
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleSearchStream(svc *research.Service, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.SearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		sse, err := newSSEWriter(w)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		events := make(chan domain.StreamEvent, streamBuffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			svc.StreamSearch(ctx, req, events)
		}()

		sse.pump(ctx, events, done)
	}
}

type deepResearchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleDeepResearch(orch *research.Orchestrator, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deepResearchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		sse, err := newSSEWriter(w)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		events := make(chan domain.StreamEvent, streamBuffer)
		done := make(chan struct{})
		go func() {
			defer close(done)
			orch.Run(ctx, req.Query, events)
		}()

		sse.pump(ctx, events, done)
	}
}

type agentRunRequest struct {
	Query          string `json:"query"`
	URL            string `json:"url,omitempty"`
	TimeoutSeconds *int   `json:"timeout_seconds,omitempty"`
	Simple         bool   `json:"simple,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

type agentRunResponse struct {
	RunID string `json:"run_id"`
	*agent.Result
}

func (s *Server) handleAgentRun(runner *agent.Runner, simple *agent.SimpleAgent, requestTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agentRunRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}

		// Negative means "use the configured default"; an explicit zero is
		// honored and forces an immediate response.
		timeout := time.Duration(-1)
		if req.TimeoutSeconds != nil {
			timeout = time.Duration(*req.TimeoutSeconds) * time.Second
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		if req.Stream && !req.Simple {
			sse, err := newSSEWriter(w)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			events := make(chan domain.StreamEvent, streamBuffer)
			done := make(chan struct{})
			go func() {
				defer close(done)
				if _, err := runner.Stream(ctx, req.Query, req.URL, timeout, events); err != nil {
					select {
					case events <- domain.NewStreamEvent(domain.EventError, map[string]interface{}{"error": err.Error()}):
					case <-ctx.Done():
					}
				}
			}()
			sse.pump(ctx, events, done)
			return
		}

		var result *agent.Result
		var err error
		if req.Simple {
			result, err = simple.Run(ctx, req.Query, timeout)
		} else {
			result, err = runner.RunFrom(ctx, req.Query, req.URL, timeout)
		}
		if err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusOK, agentRunResponse{
			RunID:  uuid.NewString(),
			Result: result,
		})
	}
}

func (s *Server) handleSources(agg *sources.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sources": agg.Sources(),
		})
	}
}
