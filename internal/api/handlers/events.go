package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentoven/agentmarket/internal/events"
)

// ListEvents returns buffered events. ?since= returns those after a
// sequence number, otherwise the last ?limit= (default 100).
// GET /api/v1/events
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since")
			return
		}
		respondJSON(w, http.StatusOK, h.Events.Since(seq))
		return
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, h.Events.Recent(limit))
}

// StreamEvents streams committed events via Server-Sent Events.
// GET /api/v1/events/stream
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before replaying so nothing committed in between is lost.
	ch := h.Events.Subscribe()
	defer h.Events.Unsubscribe(ch)

	var last uint64
	for _, rec := range h.Events.Recent(50) {
		writeEvent(w, rec)
		last = rec.Seq
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if rec.Seq <= last {
				continue
			}
			writeEvent(w, rec)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, rec events.Record) {
	data, _ := json.Marshal(rec)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", rec.Seq, rec.Name, data)
}
