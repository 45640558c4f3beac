package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lancerhq/lancer/pkg/domain"
)

// heartbeatInterval keeps idle proxies from closing a quiet stream.
const heartbeatInterval = 15 * time.Second

// sseWriter frames stream events as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares the response for event streaming. Returns an error
// when the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, nil
}

// send writes one event frame and flushes it.
func (s *sseWriter) send(event domain.StreamEvent) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// heartbeat writes an SSE comment frame.
func (s *sseWriter) heartbeat() {
	fmt.Fprint(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// pump forwards events to the client until a terminal event, the producer
// signals completion, or the client disconnects. done is closed by the
// producer when it will emit no more events.
func (s *sseWriter) pump(ctx context.Context, events <-chan domain.StreamEvent, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			if err := s.send(event); err != nil {
				return
			}
			if event.Type == domain.EventDone || event.Type == domain.EventError {
				return
			}
		case <-ticker.C:
			s.heartbeat()
		case <-done:
			// Drain anything the producer buffered before it finished.
			for {
				select {
				case event := <-events:
					if s.send(event) != nil {
						return
					}
					if event.Type == domain.EventDone || event.Type == domain.EventError {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
