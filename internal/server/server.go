// Package server exposes the pipeline over HTTP. It only routes requests and
// translates results to JSON; all behavior lives in the rag package.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docqa/internal/cache"
	"docqa/internal/helper"
	"docqa/internal/index"
	"docqa/internal/models"
	"docqa/internal/rag"
	"docqa/internal/reader"
)

type Server struct {
	pipeline *rag.RAG
	addr     string
}

func New(pipeline *rag.RAG, addr string) *Server {
	return &Server{pipeline: pipeline, addr: addr}
}

type questionRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type questionsRequest struct {
	Questions []string `json:"questions"`
	TopK      int      `json:"top_k,omitempty"`
}

type uploadResponse struct {
	Identity  string `json:"identity"`
	FileName  string `json:"filename"`
	NumPages  int    `json:"num_pages"`
	NumChunks int    `json:"num_chunks"`
	Message   string `json:"message"`
}

type answersResponse struct {
	Identity          string                `json:"identity"`
	Answers           []models.AnswerRecord `json:"answers"`
	Stats             *models.BatchStats    `json:"stats,omitempty"`
	ProcessingSeconds float64               `json:"processing_time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/ask/{id}", s.handleAsk)
	mux.HandleFunc("POST /api/ask-multiple/{id}", s.handleAskMultiple)
	mux.HandleFunc("GET /api/documents", s.handleDocuments)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDelete)

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      corsMiddleware(loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", s.addr).Msg("http server starting")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "docqa"})
}

// handleUpload accepts a multipart document, extracts its text and indexes it
// under a fresh identity.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parsing upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "docqa-upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	tmp.Close()

	doc, err := reader.Read(tmp.Name())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading document: %w", err))
		return
	}
	doc.Metadata.FileName = header.Filename

	suffix, err := helper.ShortID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	identity := reader.Identity(header.Filename) + "_" + suffix

	start := time.Now()
	summary, err := s.pipeline.Index(r.Context(), identity, doc.FullText, doc.Metadata.ToMap(), false)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Identity:  identity,
		FileName:  header.Filename,
		NumPages:  doc.Metadata.NumPages,
		NumChunks: summary.Stats.NumChunks,
		Message:   fmt.Sprintf("document processed in %.2fs", time.Since(start).Seconds()),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("id")
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, errors.New("question must not be empty"))
		return
	}

	start := time.Now()
	record, err := s.pipeline.AnswerOne(r.Context(), identity, req.Question, req.TopK)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, answersResponse{
		Identity:          identity,
		Answers:           []models.AnswerRecord{*record},
		ProcessingSeconds: time.Since(start).Seconds(),
	})
}

func (s *Server) handleAskMultiple(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("id")
	var req questionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if len(req.Questions) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("questions must not be empty"))
		return
	}

	start := time.Now()
	records, stats, err := s.pipeline.AnswerMany(r.Context(), identity, req.Questions, req.TopK)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, answersResponse{
		Identity:          identity,
		Answers:           records,
		Stats:             stats,
		ProcessingSeconds: time.Since(start).Seconds(),
	})
}

func (s *Server) handleDocuments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"documents": s.pipeline.Identities()})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("id")
	if err := s.pipeline.Remove(r.Context(), identity); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"identity": identity,
		"message":  "document removed",
	})
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var genErr *rag.GenerationError
	var readErr *cache.ReadError
	switch {
	case errors.Is(err, index.ErrEmptyIndex), errors.Is(err, cache.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &genErr):
		return http.StatusBadGateway
	case errors.As(err, &readErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Error().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
