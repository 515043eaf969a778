package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openelectorate/newspulse/internal/queue"
	"github.com/openelectorate/newspulse/internal/scheduler"
	"github.com/openelectorate/newspulse/internal/store"
	"github.com/openelectorate/newspulse/pkg/analytics"
	"github.com/openelectorate/newspulse/pkg/pulse"
)

// Server provides the HTTP API: the admin trigger surface and the
// analytics read surface.
type Server struct {
	store       store.Store
	entityQueue *queue.Queue
	sweepQueue  *queue.Queue
	pulse       *pulse.Engine
	analyzer    *analytics.Analyzer
	sources     []scheduler.SweepSource
	port        int
	log         *slog.Logger
}

// New creates a new HTTP server.
func New(
	s store.Store,
	entityQueue, sweepQueue *queue.Queue,
	p *pulse.Engine,
	analyzer *analytics.Analyzer,
	sources []scheduler.SweepSource,
	port int,
) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:       s,
		entityQueue: entityQueue,
		sweepQueue:  sweepQueue,
		pulse:       p,
		analyzer:    analyzer,
		sources:     sources,
		port:        port,
		log:         slog.With("component", "server"),
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/ingest", s.handleIngest)
	mux.HandleFunc("/api/v1/queues", s.handleQueues)
	mux.HandleFunc("/api/v1/registry", s.handleRegistry)
	mux.HandleFunc("/api/v1/pulse", s.handlePulse)
	mux.HandleFunc("/api/v1/pulse/trend", s.handlePulseTrend)
	mux.HandleFunc("/api/v1/geo/daily", s.handleGeoDaily)
	mux.HandleFunc("/api/v1/alerts", s.handleAlerts)

	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest is the admin "ingest now" body: either one entity or all
// configured sweep sources.
type ingestRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	AllSources bool   `json:"all_sources"`
}

// handleIngest enqueues manual fetch jobs. The synchronous response covers
// the enqueue action only; actual ingestion outcome is asynchronous and
// observed via queue stats or new articles.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.AllSources {
		jobIDs := make([]string, 0, len(s.sources))
		for _, src := range s.sources {
			job, err := s.sweepQueue.Enqueue(queue.ManualTriggerJob{
				Target: queue.SourceSweepJob{SourceName: src.Name, URL: src.URL},
			}, 0)
			if err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
				return
			}
			jobIDs = append(jobIDs, job.ID)
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": jobIDs})
		return
	}

	et := store.EntityType(req.EntityType)
	if (et != store.EntityCandidate && et != store.EntityParty && et != store.EntityGeoUnit) || req.EntityID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entity_type and entity_id required"})
		return
	}

	job, err := s.entityQueue.Enqueue(queue.ManualTriggerJob{
		Target: queue.EntityFetchJob{EntityType: et, EntityID: req.EntityID, DomainPriority: 10},
	}, 0)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"enqueued": []string{job.ID}})
}

func (s *Server) handleQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queues": []queue.Stats{s.entityQueue.Stats(), s.sweepQueue.Stats()},
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	entities, err := s.store.ListActiveEntities(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entities, "count": len(entities)})
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := queryInt64(r, "candidate")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate query param required"})
		return
	}
	days := queryIntDefault(r, "days", 7)

	p, err := s.pulse.CalculatePulse(r.Context(), candidateID, days)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePulseTrend(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := queryInt64(r, "candidate")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "candidate query param required"})
		return
	}
	days := queryIntDefault(r, "days", 7)

	var points []pulse.TrendPoint
	for point, err := range s.pulse.PulseTrend(r.Context(), candidateID, days) {
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}
		points = append(points, point)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": points, "count": len(points)})
}

func (s *Server) handleGeoDaily(w http.ResponseWriter, r *http.Request) {
	geoID, ok := queryInt64(r, "geo")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "geo query param required"})
		return
	}

	date := time.Now().UTC()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	stats, err := s.analyzer.GeoDay(r.Context(), geoID, date)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := queryInt64(r, "user")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user query param required"})
		return
	}
	limit := queryIntDefault(r, "limit", 50)

	alerts, err := s.store.ListAlerts(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": alerts, "count": len(alerts)})
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func queryInt64(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func queryIntDefault(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
