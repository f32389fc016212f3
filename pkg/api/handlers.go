package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/wilhg/vault/pkg/errmodel"
	"github.com/wilhg/vault/pkg/record"
	"github.com/wilhg/vault/pkg/vault"
)

const maxBodyBytes = 1 << 20

type message struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// nonNil keeps empty results rendering as [] rather than null.
func nonNil(rs []record.Record) []record.Record {
	if rs == nil {
		return []record.Record{}
	}
	return rs
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Ping(r.Context()); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleTodo keeps the proxy's historical failure body.
func (s *Server) handleTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := s.todos.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("fetch todo failed", zap.String("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	out, err := s.vault.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := s.vault.Sort(r.Context(), q.Get("field"), q.Get("order"))
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

// handleExport writes a new export file and sends it as a download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.vault.Export(r.Context())
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.IO(errmodel.CodeExportFailed, "open export", map[string]any{"path": path}, err))
		return
	}
	defer func() { _ = f.Close() }()
	fi, err := f.Stat()
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.IO(errmodel.CodeExportFailed, "stat export", map[string]any{"path": path}, err))
		return
	}
	name := filepath.Base(path)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(name))
	http.ServeContent(w, r, name, fi.ModTime(), f)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeBodyTooLarge, "request body exceeds 1 MiB", nil))
			return
		}
		errmodel.WriteHTTP(w, r, errmodel.Validation(errmodel.CodeInvalidBody, "read request body", map[string]any{"detail": err.Error()}))
		return
	}
	fields, err := vault.DecodePayload(body)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	if _, err := s.vault.Add(r.Context(), fields); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Record added and backup created"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{Message: "Record deleted and backup created"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.vault.Stats(r.Context())
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
