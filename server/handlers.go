package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smallnest/kgqa/format"
	"github.com/smallnest/kgqa/pipeline"
	"github.com/smallnest/kgqa/render"
	"github.com/smallnest/kgqa/store"
	"github.com/smallnest/kgqa/synth"
)

// Response formats accepted by the format query parameter.
const (
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// MaxListLimit caps the limit parameter of /v1/records.
const MaxListLimit = 500

type askRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
	Language string `json:"language,omitempty" validate:"omitempty,max=16"`
	Category string `json:"category,omitempty" validate:"omitempty,max=32"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=json html markdown"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleAskPost(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	s.ask(w, r, req)
}

func (s *Server) handleAskGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.ask(w, r, askRequest{
		Question: q.Get("q"),
		Language: q.Get("lang"),
		Category: q.Get("category"),
		Format:   q.Get("format"),
	})
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, req askRequest) {
	req.Question = strings.TrimSpace(req.Question)
	req.Format = strings.ToLower(req.Format)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	q := pipeline.Question{Text: req.Question}
	if req.Language != "" {
		lang, err := synth.ParseLanguage(req.Language)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		q.Language = lang
	}
	if req.Category != "" {
		q.Category = format.ParseCategory(req.Category)
	}

	rec := s.asker.Ask(r.Context(), q)
	if s.collector != nil {
		s.collector.ObserveRecord(rec)
	}
	s.writeRecord(w, r, rec, req.Format)
}

func (s *Server) writeRecord(w http.ResponseWriter, r *http.Request, rec *pipeline.AnswerRecord, kind string) {
	if kind == "" && strings.Contains(r.Header.Get("Accept"), "text/html") {
		kind = FormatHTML
	}

	switch kind {
	case FormatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := render.Page(w, rec); err != nil {
			s.logger.Error("render record %s: %v", rec.ID, err)
		}
	case FormatMarkdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(render.Markdown(rec)))
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			resp["status"] = "unavailable"
			resp["sparql"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["sparql"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("record store is not configured"))
		return
	}

	opts := store.ListOptions{Limit: 50}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		opts.Limit = min(n, MaxListLimit)
		if n == 0 {
			opts.Limit = MaxListLimit
		}
	}
	if v := r.URL.Query().Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid success %q", v))
			return
		}
		opts.Success = &b
	}

	envs, err := s.store.List(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	records := make([]*pipeline.AnswerRecord, 0, len(envs))
	for _, env := range envs {
		rec, err := pipeline.FromEnvelope(env)
		if err != nil {
			s.logger.Warn("skipping record %s: %v", env.ID, err)
			continue
		}
		records = append(records, rec)
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("record store is not configured"))
		return
	}
	env, err := s.store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rec, err := pipeline.FromEnvelope(env)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeRecord(w, r, rec, strings.ToLower(r.URL.Query().Get("format")))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, errors.New("record store is not configured"))
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeError(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
