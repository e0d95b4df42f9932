// api/round.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"rocketcrash/config"
	"rocketcrash/engine"
	"rocketcrash/game"
)

/* =========================
   ROUND LIFECYCLE
========================= */

// handleAdvance handles POST /api/round/advance. Any caller may tick the
// engine; the storage CAS makes concurrent ticks safe, so this needs no
// auth. Cron, a frontend poller and a bored curl all work equally well.
func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	result, err := s.engine.Advance(r.Context(), time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	if result.Action != engine.ActionNone {
		s.feed.Broadcast(result)
	}
	if result.Action == engine.ActionCrashed && s.redis != nil && result.Round != nil {
		s.redis.PushCrashHistory(r.Context(), result.Round)
	}

	s.sendJSON(w, http.StatusOK, result)
}

// StatusResponse wraps engine status for GET /api/status.
type StatusResponse struct {
	Success bool           `json:"success"`
	Status  *engine.Status `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status, err := s.engine.GetStatus(r.Context())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, StatusResponse{Success: true, Status: status})
}

// RoundResponse wraps a public round view.
type RoundResponse struct {
	Success bool                `json:"success"`
	Round   *engine.PublicRound `json:"round"`
}

// handleCurrentRound handles GET /api/round. The seed and crash point
// stay hidden until the round has crashed.
func (s *Server) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	round, err := s.engine.CurrentRound(r.Context())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if round == nil {
		s.sendError(w, http.StatusNotFound, "No round yet")
		return
	}
	s.sendJSON(w, http.StatusOK, RoundResponse{Success: true, Round: round})
}

// HistoryResponse is the revealed-rounds list for GET /api/round/history.
type HistoryResponse struct {
	Success bool                  `json:"success"`
	Rounds  []*engine.PublicRound `json:"rounds"`
}

// handleRoundHistory serves the redis cache when it's warm and falls
// back to Postgres otherwise.
func (s *Server) handleRoundHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := config.MaxRoundHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	if s.redis != nil {
		cached, err := s.redis.CrashHistory(r.Context(), limit)
		if err != nil {
			s.log.WithError(err).Warn("⚠️ History cache read failed, falling back to database")
		} else if len(cached) > 0 {
			s.sendJSON(w, http.StatusOK, HistoryResponse{Success: true, Rounds: cached})
			return
		}
	}

	rounds, err := s.engine.History(r.Context(), limit)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if rounds == nil {
		rounds = []*engine.PublicRound{}
	}
	s.sendJSON(w, http.StatusOK, HistoryResponse{Success: true, Rounds: rounds})
}

/* =========================
   FAIRNESS VERIFICATION
========================= */

// VerifyResponse is the provable-fairness check result.
type VerifyResponse struct {
	Success            bool    `json:"success"`
	Valid              bool    `json:"valid"`
	ComputedCrashPoint float64 `json:"computedCrashPoint"`
}

// handleVerify handles GET /api/verify. Anyone can re-derive a crashed
// round's outcome from its revealed seed; no server state is consulted.
// Query params: serverSeed, serverSeedHash, sequence, crashPoint.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	serverSeed := q.Get("serverSeed")
	seedHash := q.Get("serverSeedHash")
	if serverSeed == "" || seedHash == "" {
		s.sendError(w, http.StatusBadRequest, "serverSeed and serverSeedHash are required")
		return
	}
	sequence, err := strconv.ParseUint(q.Get("sequence"), 10, 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid sequence")
		return
	}
	crashPoint, err := strconv.ParseFloat(q.Get("crashPoint"), 64)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid crashPoint")
		return
	}

	valid := game.VerifyRound(serverSeed, seedHash, sequence, crashPoint)
	s.sendJSON(w, http.StatusOK, VerifyResponse{
		Success:            true,
		Valid:              valid,
		ComputedCrashPoint: game.CrashPoint(serverSeed, sequence),
	})
}
