package sse

import (
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	// retryMillis is the reconnect delay suggested to browsers.
	retryMillis = 3000
	// writeTimeout bounds a single event write to a stalled connection.
	writeTimeout = 60 * time.Second
)

// Handler streams cache events at GET /api/v1/events.
//
// Repeated ?shelf= parameters limit shelf-scoped events to those shelves.
// A Last-Event-ID header (or ?last_event_id= for clients that cannot set
// headers) resumes after the given event.
type Handler struct {
	manager *Manager
	logger  *slog.Logger
}

// NewHandler creates a Handler over manager.
func NewHandler(manager *Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{manager: manager, logger: logger}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lastID, err := lastEventID(r)
	if err != nil {
		http.Error(w, "Invalid Last-Event-ID", http.StatusBadRequest)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("streaming not supported", "error", err)
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(lastID, r.URL.Query()["shelf"]...)
	if err != nil {
		h.logger.Error("failed to register SSE client", "error", err)
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With("client_id", client.ID)

	if _, err := fmt.Fprintf(w, "retry: %d\n", retryMillis); err != nil {
		return
	}
	hello := map[string]any{"client_id": client.ID, "last_event_id": h.manager.LastEventID()}
	if err := h.write(w, rc, 0, "connected", hello); err != nil {
		log.Debug("client gone before hello", "error", err)
		return
	}

	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				log.Debug("stream closed by manager")
				return
			}
			if err := h.write(w, rc, event.ID, string(event.Type), event); err != nil {
				log.Debug("client disconnected during write", "error", err)
				return
			}
		case <-client.Done:
			log.Debug("stream closed by manager")
			return
		case <-r.Context().Done():
			return
		}
	}
}

// write emits one event frame and flushes it.
func (h *Handler) write(w http.ResponseWriter, rc *http.ResponseController, id uint64, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		// Not every ResponseWriter supports deadlines.
		h.logger.Debug("write deadline unsupported", "error", err)
	}

	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	return rc.Flush()
}

// lastEventID reads the resume point from the header or query. Zero means none.
func lastEventID(r *http.Request) (uint64, error) {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("last_event_id")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}
