// api/claims.go
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

/* =========================
   CLAIM FLOW
========================= */

// ClaimStartRequest is the POST /api/claim/start body.
type ClaimStartRequest struct {
	Wallet string `json:"wallet"`
	BetID  string `json:"betId"`
}

// ClaimStartResponse returns the nonce the player submits on-chain.
type ClaimStartResponse struct {
	Success bool   `json:"success"`
	BetID   string `json:"betId"`
	Nonce   string `json:"nonce"`
}

func (s *Server) handleClaimStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ClaimStartRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	betID, err := uuid.Parse(req.BetID)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid betId")
		return
	}

	bet, err := s.engine.StartClaim(r.Context(), req.Wallet, betID, time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithField("wallet", req.Wallet).Info("🏦 Claim started")
	s.sendJSON(w, http.StatusOK, ClaimStartResponse{
		Success: true,
		BetID:   bet.ID.String(),
		Nonce:   bet.ClaimNonce,
	})
}

// ClaimTxRequest is the POST /api/claim/tx body.
type ClaimTxRequest struct {
	Wallet string `json:"wallet"`
	BetID  string `json:"betId"`
	Nonce  string `json:"nonce"`
	TxHash string `json:"txHash"`
}

// AckResponse is a bare success envelope.
type AckResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleClaimTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ClaimTxRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	betID, err := uuid.Parse(req.BetID)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid betId")
		return
	}

	if err := s.engine.SaveClaimTxHash(r.Context(), req.Wallet, betID, req.Nonce, req.TxHash); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, AckResponse{Success: true})
}

// ClaimCancelRequest is the POST /api/claim/cancel body.
type ClaimCancelRequest struct {
	Wallet string `json:"wallet"`
	BetID  string `json:"betId"`
	Nonce  string `json:"nonce"`
}

func (s *Server) handleClaimCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ClaimCancelRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	betID, err := uuid.Parse(req.BetID)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid betId")
		return
	}

	if err := s.engine.CancelClaim(r.Context(), req.Wallet, betID, req.Nonce); err != nil {
		s.sendEngineError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, AckResponse{Success: true})
}

/* =========================
   RECONCILIATION SWEEP
========================= */

// ReconcileResponse reports what the sweep did.
type ReconcileResponse struct {
	Success   bool `json:"success"`
	Confirmed int  `json:"confirmed"`
	Reset     int  `json:"reset"`
}

// handleClaimReconcile handles POST /api/claim/reconcile. Like the round
// advance tick it is safe to call from anywhere, any number of times.
func (s *Server) handleClaimReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	confirmed, reset, err := s.engine.ReconcileStuckClaims(r.Context(), time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}
	if confirmed+reset > 0 {
		s.log.WithFields(map[string]interface{}{
			"confirmed": confirmed,
			"reset":     reset,
		}).Info("🧹 Reconciled stuck claims")
	}
	s.sendJSON(w, http.StatusOK, ReconcileResponse{Success: true, Confirmed: confirmed, Reset: reset})
}
