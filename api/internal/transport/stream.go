package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// events streams snapshots as server-sent events until the job is terminal.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "events")
	jobID := chi.URLParam(r, "id")

	stream, err := h.usecase.Stream(r.Context(), identity(r.Context()), jobID)
	if err != nil {
		logger.Warn("Stream", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeMessage(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap, err := range stream {
		event, payload := "snapshot", any(snap)
		if err != nil {
			logger.Warn("stream ended with error", slog.String("job_id", jobID), slog.String("error", err.Error()))
			event, payload = "error", map[string]string{"error": err.Error()}
		}

		data, merr := json.Marshal(payload)
		if merr != nil {
			logger.Error("marshal event", slog.String("error", merr.Error()))
			return
		}
		if _, werr := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); werr != nil {
			return
		}
		flusher.Flush()
	}
}

// ws streams snapshots as JSON text frames and closes normally after the
// terminal one.
func (h *handler) ws(w http.ResponseWriter, r *http.Request) {
	logger := requestLogger(r, "ws")
	jobID := chi.URLParam(r, "id")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream, err := h.usecase.Stream(ctx, identity(r.Context()), jobID)
	if err != nil {
		logger.Warn("Stream", slog.String("job_id", jobID), slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// The client never sends anything we act on; reading only detects close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for snap, err := range stream {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			break
		}
		if err := conn.WriteJSON(snap); err != nil {
			logger.Debug("websocket write", slog.String("job_id", jobID), slog.String("error", err.Error()))
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"),
		time.Now().Add(wsWriteWait))
}
