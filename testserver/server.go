// Package testserver provides a local clickstream ingestion endpoint with
// failure injection, for development runs and end-to-end tests.
package testserver

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	maxBodyBytes  = 10 << 20
	recentEvents  = 5
	unknownType   = "unknown"
	purchaseType  = "purchase"
	purchaseTotal = "properties.total_amount"
)

// Option configures a Server.
type Option func(*Server)

// WithRejectFirst makes the server answer 503 to the first n batches.
func WithRejectFirst(n int) Option {
	return func(s *Server) {
		s.rejectLeft.Store(int64(n))
	}
}

// WithFailRate makes the server answer 500 to a fraction (0..1) of batches.
func WithFailRate(rate float64, seed int64) Option {
	return func(s *Server) {
		s.failRate = rate
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// Server is an in-memory ingestion endpoint.
type Server struct {
	router chi.Router
	logger *zap.Logger

	rejectLeft atomic.Int64
	failRate   float64
	rngMu      sync.Mutex
	rng        *rand.Rand

	batches  atomic.Int64
	rejected atomic.Int64

	mu       sync.Mutex
	total    int
	byType   map[string]int
	accepted map[string]int
	recent   []json.RawMessage
	revenue  decimal.Decimal
}

// NewServer creates a new server with all endpoints configured.
func NewServer(opts ...Option) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   zap.NewNop(),
		byType:   make(map[string]int),
		accepted: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerHandlers() {
	s.router.Get("/", s.handleHome)
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/events", s.handleEvents)
	s.router.Get("/stats", s.handleStats)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"message": "Clickstream ingestion endpoint is ready",
		"endpoints": map[string]string{
			"POST /events": "Send clickstream events",
			"GET /stats":   "View statistics",
			"GET /health":  "Health check",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvents accepts {"records":[...]} and answers 202 with the number of
// records processed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	records := gjson.GetBytes(body, "records")
	if records.Exists() && !records.IsArray() {
		writeError(w, http.StatusBadRequest, "records must be an array")
		return
	}

	s.batches.Add(1)
	if s.shouldReject() {
		s.rejected.Add(1)
		s.logger.Info("batch rejected", zap.Int("records", len(records.Array())))
		writeError(w, http.StatusServiceUnavailable, "simulated outage")
		return
	}
	if s.shouldFail() {
		s.rejected.Add(1)
		writeError(w, http.StatusInternalServerError, "simulated failure")
		return
	}

	n := s.store(records.Array())
	s.logger.Info("received events", zap.Int("count", n), zap.Int("total", s.TotalEvents()))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "accepted",
		"processed": n,
	})
}

func (s *Server) store(records []gjson.Result) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		typ := rec.Get("event_type").String()
		if typ == "" {
			typ = unknownType
		}
		s.byType[typ]++
		s.total++
		if id := rec.Get("event_id").String(); id != "" {
			s.accepted[id]++
		}
		if typ == purchaseType {
			if amount, err := decimal.NewFromString(rec.Get(purchaseTotal).String()); err == nil {
				s.revenue = s.revenue.Add(amount)
			}
		}
		s.recent = append(s.recent, json.RawMessage(rec.Raw))
		if len(s.recent) > recentEvents {
			s.recent = s.recent[len(s.recent)-recentEvents:]
		}
	}
	return len(records)
}

func (s *Server) shouldReject() bool {
	for {
		left := s.rejectLeft.Load()
		if left <= 0 {
			return false
		}
		if s.rejectLeft.CompareAndSwap(left, left-1) {
			return true
		}
	}
}

func (s *Server) shouldFail() bool {
	if s.failRate <= 0 || s.rng == nil {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.failRate
}

type statsResponse struct {
	TotalEvents  int               `json:"total_events"`
	EventsByType map[string]int    `json:"events_by_type"`
	RecentEvents []json.RawMessage `json:"recent_events"`
	Revenue      string            `json:"revenue"`
	Batches      int64             `json:"batches"`
	Rejected     int64             `json:"rejected"`
	Timestamp    string            `json:"timestamp"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := statsResponse{
		TotalEvents:  s.total,
		EventsByType: make(map[string]int, len(s.byType)),
		RecentEvents: append([]json.RawMessage{}, s.recent...),
		Revenue:      s.revenue.StringFixed(2),
		Batches:      s.batches.Load(),
		Rejected:     s.rejected.Load(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range s.byType {
		resp.EventsByType[k] = v
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// TotalEvents returns the number of accepted records.
func (s *Server) TotalEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Accepted returns how many times each event id was accepted.
func (s *Server) Accepted() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.accepted))
	for k, v := range s.accepted {
		out[k] = v
	}
	return out
}

// CountByType returns the number of accepted records of one event type.
func (s *Server) CountByType(typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byType[typ]
}

// Revenue returns the sum of total_amount over accepted purchase records.
func (s *Server) Revenue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revenue
}

// Batches returns the number of well-formed batches received, rejected ones
// included.
func (s *Server) Batches() int64 { return s.batches.Load() }

// Rejected returns the number of batches answered with a failure status.
func (s *Server) Rejected() int64 { return s.rejected.Load() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
