package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
	resultTimeout    = 3 * time.Second
)

// getSession handles GET /v1/sessions/{session_id}. It returns
// {"session": {...}} on success, 400 for malformed IDs, 404 when the store
// reports crawler.ErrSessionNotFound, or 503 without a store.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	sessionID, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), resultTimeout)
	defer cancel()

	rec, err := s.results.GetSession(ctx, sessionID)
	if err != nil {
		s.writeStoreError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": rec})
}

// listPages handles GET /v1/sessions/{session_id}/pages?limit=&offset=.
func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "result store unavailable")
		return
	}
	sessionID, err := parseSessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), resultTimeout)
	defer cancel()

	pages, err := s.results.ListPages(ctx, sessionID)
	if err != nil {
		s.writeStoreError(w, "list pages", err)
		return
	}
	total := len(pages)
	start := min(offset, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, map[string]any{
		"pages": pages[start:end],
		"total": total,
	})
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, crawler.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Error(op+" failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to "+op)
}

func parseSessionID(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "session_id")
	if raw == "" {
		return "", errors.New("session_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("invalid session_id")
	}
	return id.String(), nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
