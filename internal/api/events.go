package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/relaybus/internal/logstore"
)

// handleEvents streams log entries over SSE. Late clients catch up from the
// store snapshot via Last-Event-ID; the event id is the entry id, so clients
// must also watch the generation field in /healthz if they care about Clear.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Subscribe before the snapshot so no entry recorded in between is lost;
	// the id check below drops duplicates.
	live := make(chan logstore.Entry, 128)
	cancel := s.store.Subscribe(func(e logstore.Entry) {
		// Don't let a slow client block producers.
		select {
		case live <- e:
		default:
		}
	})
	defer cancel()

	cutoff := int64(-1)
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cutoff = id
		}
	}

	for _, e := range s.store.Logs(logstore.Filter{}) {
		if e.ID <= cutoff {
			continue
		}
		if err := writeSSE(w, e); err != nil {
			return
		}
		cutoff = e.ID
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-live:
			if !pastSnapshot(e, cutoff) {
				continue
			}
			if err := writeSSE(w, e); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			// SSE comment line as keep-alive.
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// pastSnapshot reports whether a live entry still needs writing. The cutoff
// is fixed once the snapshot is flushed: concurrent recorders can notify out
// of id order, and advancing a high-water mark per live entry would drop the
// later-arriving lower id. Every id past the snapshot is written exactly once
// because the subscription itself delivers each entry once.
func pastSnapshot(e logstore.Entry, cutoff int64) bool {
	return e.ID > cutoff
}

func writeSSE(w http.ResponseWriter, e logstore.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: log\ndata: %s\n\n", e.ID, data)
	return err
}
