// api/leaderboard.go
package api

import (
	"net/http"

	"rocketcrash/engine"
)

const leaderboardSize = 20

// LeaderboardResponse is the GET /api/leaderboard payload.
type LeaderboardResponse struct {
	Success      bool               `json:"success"`
	Leaderboard  []*engine.PnLEntry `json:"leaderboard"`
	UserPosition *engine.PnLEntry   `json:"userPosition,omitempty"`
}

// handleLeaderboard handles GET /api/leaderboard.
// Query params: wallet (optional) - include that wallet's position when
// it falls outside the top entries.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	entries, err := s.engine.Leaderboard(r.Context(), leaderboardSize)
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []*engine.PnLEntry{}
	}

	response := LeaderboardResponse{Success: true, Leaderboard: entries}

	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		inTop := false
		for _, e := range entries {
			if e.Wallet == wallet {
				inTop = true
				break
			}
		}
		if !inTop {
			position, err := s.engine.WalletRank(r.Context(), wallet)
			if err != nil {
				s.log.WithError(err).Warn("⚠️ Failed to get wallet rank")
			} else if position != nil {
				response.UserPosition = position
			}
		}
	}

	s.sendJSON(w, http.StatusOK, response)
}
