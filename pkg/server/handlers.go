package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	errs "github.com/deno-plc/build/pkg/errors"
	"github.com/deno-plc/build/pkg/pipeline"
)

type lookupResponse struct {
	Table map[string]string `json:"table"`
}

// describe picks the description field for a lookup failure: the parse
// error for a bad specifier, the specifier itself otherwise.
func describe(err error, module string) string {
	if errs.Is(err, errs.ErrCodeInvalidSpecifier) {
		if cause := errors.Unwrap(err); cause != nil {
			return cause.Error()
		}
	}
	return module
}

func (s *Server) handleLookupImports(w http.ResponseWriter, r *http.Request) {
	module := r.URL.Query().Get("module")
	if module == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No module specified"})
		return
	}
	table, err := s.runner.LookupTable(r.Context(), module)
	if err != nil {
		s.writeError(w, r, err, describe(err, module))
		return
	}
	writeJSON(w, http.StatusOK, lookupResponse{Table: table})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Stats())
}

func (s *Server) handlePackage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pkg, err := s.runner.Package(id)
	if err != nil {
		s.writeError(w, r, err, id)
		return
	}
	writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	module := q.Get("module")
	if module == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No module specified"})
		return
	}
	hmr, ok := boolParam(w, q.Get("hmr"), s.hmr, "hmr")
	if !ok {
		return
	}
	refresh, ok := boolParam(w, q.Get("refresh"), false, "refresh")
	if !ok {
		return
	}

	resp, err := s.runner.Transform(r.Context(), pipeline.Request{Specifier: module, HMR: hmr, Refresh: refresh})
	if err != nil {
		if r.Context().Err() != nil {
			// client went away
			return
		}
		s.writeError(w, r, err, describe(err, module))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/javascript; charset=utf-8")
	h.Set("X-Module", resp.Module)
	if resp.CacheHit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(resp.Code))
}

func boolParam(w http.ResponseWriter, raw string, def bool, name string) (bool, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid " + name + " parameter", Description: raw})
		return false, false
	}
	return v, true
}
