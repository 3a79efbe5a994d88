package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/callmeahab/catalog-search/internal/cachestore"
	"github.com/callmeahab/catalog-search/internal/search"
)

func (s *Server) routes(r chi.Router) {
	r.Get("/", s.handleStatus)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/goods", s.handleGoods)
		r.Post("/goods", s.handleGoods)
		r.Get("/update_goods", s.handleUpdateGoods)
		r.Post("/update_goods", s.handleUpdateGoods)
		r.Get("/featured", s.handleFeatured)
		r.Get("/autocomplete", s.handleAutocomplete)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "URL on method not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Server started: %s. Operational: %.2f",
		s.started.UTC().Format("2006-01-02 15:04:05"), time.Since(s.started).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.Health(r.Context())
	status := http.StatusOK
	if resp.Generation == "" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type goodsRequest struct {
	Query        string          `json:"query"`
	FilterGroups json.RawMessage `json:"filter_groups"`
}

func (s *Server) handleGoods(w http.ResponseWriter, r *http.Request) {
	query, filter, err := parseGoodsRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.Query(r.Context(), query, filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseGoodsRequest reads query and filter_groups from a JSON body when one
// is sent, otherwise from URL parameters. filter_groups may be a space
// separated string or a list of ids.
func parseGoodsRequest(r *http.Request) (string, search.FilterSet, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		var req goodsRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return "", nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		filter, err := parseRawFilter(req.FilterGroups)
		if err != nil {
			return "", nil, err
		}
		return req.Query, filter, nil
	}

	q := r.URL.Query()
	filter, err := search.ParseFilterGroups(q.Get("filter_groups"))
	if err != nil {
		return "", nil, err
	}
	return q.Get("query"), filter, nil
}

func parseRawFilter(raw json.RawMessage) (search.FilterSet, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return search.ParseFilterGroups(s)
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("filter_groups must be a string or a list of ids")
	}
	return search.FilterOf(ids...), nil
}

func (s *Server) handleUpdateGoods(w http.ResponseWriter, r *http.Request) {
	resp, err := s.Reload(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeatured(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	groups, err := s.Featured(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "info": groups})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query().Get("q")
	out, err := s.Autocomplete(r.Context(), q, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "query": q, "suggestions": out})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrQueryRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, cachestore.ErrNoGeneration):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				hlog.FromRequest(r).Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
