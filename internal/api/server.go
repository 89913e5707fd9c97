// Package api exposes the HTTP surface: the octet-stream ingest
// endpoint and the read-only observability endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/queue"
	"github.com/Natdev15/IoT-Payload-Optimization-Natesh-Masters-Thesis-2025/internal/state"
)

// LatestStore is the optional per-container last-value lookup backing
// the latest endpoint.
type LatestStore interface {
	Get(ctx context.Context, iso6346 string) (map[string]string, error)
}

type Server struct {
	ingest   *queue.IngestQueue
	outbound *queue.OutboundQueue
	latest   LatestStore
	maxBody  int64
	logger   *log.Logger
	router   *mux.Router
}

func NewServer(ingest *queue.IngestQueue, outbound *queue.OutboundQueue, latest LatestStore, maxBody int64, logger *log.Logger) *Server {
	s := &Server{
		ingest:   ingest,
		outbound: outbound,
		latest:   latest,
		maxBody:  maxBody,
		logger:   logger,
	}
	s.router = mux.NewRouter()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/container-data", s.handleIngest).Methods("POST")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/stats", s.handleStats).Methods("GET")
	s.router.HandleFunc("/api/v1/containers/{id}/latest", s.handleLatest).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleIngest accepts one encoded envelope. The transport contract is
// accept-and-acknowledge: the body goes into the ingestion buffer and
// the response carries the resulting queue depth. Decode happens later
// on the batch timer.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/octet-stream") {
		respondError(w, http.StatusUnsupportedMediaType, "expected application/octet-stream")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "empty body")
		return
	}

	depth := s.ingest.Accept(body)
	respondJSON(w, http.StatusOK, map[string]int{"queued": depth})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ingestion": s.ingest.Stats(),
		"outbound":  s.outbound.Stats(),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.latest == nil {
		respondError(w, http.StatusNotFound, "last-value store disabled")
		return
	}
	id := mux.Vars(r)["id"]
	fields, err := s.latest.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no record for container "+id)
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, fields)
}
