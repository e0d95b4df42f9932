// api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"rocketcrash/db"
	"rocketcrash/engine"
	"rocketcrash/ws"
)

// HealthChecker is anything with a liveness probe.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server carries the handler dependencies. Redis may be nil; every
// handler that touches it falls back to Postgres. dbHealth is nil when
// running on the in-memory store.
type Server struct {
	engine   *engine.Engine
	redis    *db.Redis
	feed     *ws.Feed
	dbHealth HealthChecker
	log      *logrus.Logger
}

// NewServer wires the HTTP layer.
func NewServer(eng *engine.Engine, redis *db.Redis, feed *ws.Feed, dbHealth HealthChecker, log *logrus.Logger) *Server {
	return &Server{engine: eng, redis: redis, feed: feed, dbHealth: dbHealth, log: log}
}

// Register mounts every route on the mux.
func (s *Server) Register(mux *http.ServeMux) {
	// Round lifecycle
	mux.HandleFunc("/api/round/advance", s.cors(s.handleAdvance))
	mux.HandleFunc("/api/status", s.cors(s.handleStatus))
	mux.HandleFunc("/api/round", s.cors(s.handleCurrentRound))
	mux.HandleFunc("/api/round/history", s.cors(s.handleRoundHistory))
	mux.HandleFunc("/api/verify", s.cors(s.handleVerify))

	// Betting
	mux.HandleFunc("/api/ticket/buy", s.cors(s.handleBuyTicket))
	mux.HandleFunc("/api/bet", s.cors(s.handleBet))
	mux.HandleFunc("/api/cashout", s.cors(s.handleCashout))

	// Claims
	mux.HandleFunc("/api/claim/start", s.cors(s.handleClaimStart))
	mux.HandleFunc("/api/claim/tx", s.cors(s.handleClaimTx))
	mux.HandleFunc("/api/claim/cancel", s.cors(s.handleClaimCancel))
	mux.HandleFunc("/api/claim/reconcile", s.cors(s.handleClaimReconcile))

	// Treasury
	mux.HandleFunc("/api/pool", s.cors(s.handlePool))
	mux.HandleFunc("/api/pool/deposit", s.cors(s.handlePoolDeposit))
	mux.HandleFunc("/api/revenue", s.cors(s.handleRevenue))
	mux.HandleFunc("/api/revenue/distribute", s.cors(s.handleRevenueDistribute))
	mux.HandleFunc("/api/admin/pause", s.cors(s.handlePause))

	// Misc
	mux.HandleFunc("/api/leaderboard", s.cors(s.handleLeaderboard))
	mux.HandleFunc("/api/health", s.cors(s.handleHealth))

	// Live feed
	mux.HandleFunc("/ws/feed", s.feed.HandleUpgrade)
}

/* =========================
   HELPERS
========================= */

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Error("❌ Failed to encode response")
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Success: false, Error: message})
}

// sendEngineError maps the engine error taxonomy onto HTTP statuses so a
// client can tell "you sent garbage" from "someone beat you to it".
func (s *Server) sendEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsValidation(err):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case engine.IsNotFound(err):
		s.sendError(w, http.StatusNotFound, err.Error())
	case engine.IsConflict(err):
		s.sendError(w, http.StatusConflict, err.Error())
	case err == engine.ErrRateLimited:
		s.sendError(w, http.StatusTooManyRequests, err.Error())
	case err == engine.ErrSeedUnavailable:
		s.sendError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.WithError(err).Error("❌ Internal error")
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (s *Server) cors(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
