package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

type startRequest struct {
	URL string `json:"url"`
}

type startResponse struct {
	SessionID string              `json:"session_id"`
	Session   crawler.SessionInfo `json:"session"`
}

// startSession handles POST /v1/sessions. It answers 202 once the base
// address is dispatched, 400 for a rejected address, and 409 while another
// session is running.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	info, err := s.sessions.Start(req.URL)
	if err != nil {
		var verr *crawler.ValidationError
		switch {
		case errors.Is(err, crawler.ErrSessionActive):
			writeError(w, http.StatusConflict, err.Error())
		case errors.As(err, &verr):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("start session failed", zap.String("url", req.URL), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to start session")
		}
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+info.ID)
	writeJSON(w, http.StatusAccepted, startResponse{SessionID: info.ID, Session: info})
}

// currentSession handles GET /v1/sessions/current with live counters of the
// running (or most recent) session.
func (s *Server) currentSession(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.sessions.Current(); !ok {
		writeError(w, http.StatusNotFound, "no session has been started")
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.Stats())
}

// stopSession handles POST /v1/sessions/stop.
func (s *Server) stopSession(w http.ResponseWriter, _ *http.Request) {
	if !s.sessions.Stop() {
		writeError(w, http.StatusConflict, "no active session")
		return
	}
	info, _ := s.sessions.Current()
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": info.ID, "stopping": true})
}
