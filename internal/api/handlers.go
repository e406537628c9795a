package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/logstore"
	"github.com/mattjoyce/relaybus/internal/severity"
)

// maxCommandBytes caps an inbound command body.
const maxCommandBytes = 1024 * 1024

// HealthzResponse is the GET /healthz payload.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	LogCount      int    `json:"log_count"`
	LogCapacity   int    `json:"log_capacity"`
	Generation    int64  `json:"generation"`
}

// CommandAccepted is the POST /commands payload. Acceptance means the
// envelope was valid and handed to the dispatcher, nothing more: commands
// are fire-and-forget and there is no completion to report.
type CommandAccepted struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		LogCount:      s.store.Count(),
		LogCapacity:   s.store.Capacity(),
		Generation:    s.store.Generation(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleLogs handles GET /logs?severity=ERROR&source=FileLoader.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Logs(parseFilter(r)))
}

// handleExport handles GET /logs/export, producing the viewer interchange
// format as text.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := logstore.Export(w, s.store.Logs(parseFilter(r))); err != nil {
		s.logger.Error("log export failed", "error", err)
	}
}

// handleClear handles POST /logs/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// handleCommand handles POST /commands. The envelope is validated here, at
// the channel boundary; only well-formed commands of known kinds reach the
// dispatcher.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxCommandBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "command body too large")
		return
	}

	cmd, err := command.Decode(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sink.Dispatch(cmd)
	s.writeJSON(w, http.StatusAccepted, CommandAccepted{ID: cmd.CommandID()})
}

func parseFilter(r *http.Request) logstore.Filter {
	var filter logstore.Filter

	if raw := r.URL.Query().Get("severity"); raw != "" {
		// Parse is total: unrecognized labels resolve to INFO, same as the
		// numeric table fallback.
		lvl := severity.Parse(raw)
		filter.Level = &lvl
	}
	filter.Source = r.URL.Query().Get("source")
	return filter
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
