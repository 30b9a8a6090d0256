package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/creaturederby/derby/internal/domain/event"
)

const streamKeepAlive = 25 * time.Second

// sseEndpoint streams race events to everyone and request events to the
// wallet that owns the request.
func (s *Server) sseEndpoint(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	var wallet *string
	if v := r.URL.Query().Get("wallet"); v != "" {
		wallet = &v
	}
	client := event.NewClient(clientID, wallet)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok || msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Event, payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
