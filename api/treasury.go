// api/treasury.go
package api

import (
	"net/http"

	"rocketcrash/engine"
)

/* =========================
   PRIZE POOL
========================= */

// PoolResponse wraps the prize-pool ledger.
type PoolResponse struct {
	Success bool         `json:"success"`
	Pool    *engine.Pool `json:"pool"`
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pool, err := s.engine.Pool(r.Context())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, PoolResponse{Success: true, Pool: pool})
}

// DepositRequest is the POST /api/pool/deposit body.
type DepositRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handlePoolDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req DepositRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.DepositPool(r.Context(), req.Amount); err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithField("amount", req.Amount).Info("💰 Pool deposit recorded")
	s.sendJSON(w, http.StatusOK, AckResponse{Success: true})
}

/* =========================
   REVENUE
========================= */

// RevenueResponse wraps the per-currency revenue ledgers.
type RevenueResponse struct {
	Success  bool              `json:"success"`
	Revenues []*engine.Revenue `json:"revenues"`
}

func (s *Server) handleRevenue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	revs, err := s.engine.Revenues(r.Context())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if revs == nil {
		revs = []*engine.Revenue{}
	}
	s.sendJSON(w, http.StatusOK, RevenueResponse{Success: true, Revenues: revs})
}

// DistributeRequest is the POST /api/revenue/distribute body.
type DistributeRequest struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

func (s *Server) handleRevenueDistribute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req DistributeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.DistributeRevenue(r.Context(), req.Currency, req.Amount); err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithFields(map[string]interface{}{
		"currency": req.Currency,
		"amount":   req.Amount,
	}).Info("📤 Revenue distributed")
	s.sendJSON(w, http.StatusOK, AckResponse{Success: true})
}

/* =========================
   OPERATOR PAUSE
========================= */

// PauseRequest is the POST /api/admin/pause body.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// handlePause flips the shared pause switch. New rounds stop opening on
// the next tick; the in-flight round always finishes.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.redis == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Pause flag requires redis")
		return
	}

	var req PauseRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.redis.SetOperatorPaused(r.Context(), req.Paused); err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithField("paused", req.Paused).Warn("⏸️ Operator pause flag changed")
	s.sendJSON(w, http.StatusOK, AckResponse{Success: true})
}
