package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/ledger-must-balance/internal/feed"
)

// handleEvents streams the acting user's committed changes as Server-Sent
// Events until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	user := userFrom(r)
	changes, unsubscribe := s.bus.Subscribe(user, feed.DefaultBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	s.log.Info("Client connected to change stream", "user_id", user)
	s.sendEvent(w, "connected", map[string]string{"user_id": user})
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Info("Client disconnected from change stream", "user_id", user)
			return

		case change, ok := <-changes:
			if !ok {
				return
			}
			s.sendEvent(w, "change", change)
			flusher.Flush()

		case now := <-heartbeat.C:
			s.sendEvent(w, "heartbeat", map[string]string{"timestamp": now.UTC().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func (s *Server) sendEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Error("Failed to encode event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
