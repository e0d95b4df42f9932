// api/bets.go
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"rocketcrash/engine"
)

/* =========================
   TICKETS
========================= */

// BuyTicketRequest is the POST /api/ticket/buy body.
type BuyTicketRequest struct {
	Wallet    string  `json:"wallet"`
	FaceValue int     `json:"faceValue"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	TxHash    string  `json:"txHash,omitempty"`
}

// TicketResponse wraps a minted ticket.
type TicketResponse struct {
	Success bool           `json:"success"`
	Ticket  *engine.Ticket `json:"ticket"`
}

func (s *Server) handleBuyTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req BuyTicketRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	ticket, err := s.engine.BuyTicket(r.Context(), req.Wallet, req.FaceValue, req.Currency, req.Amount, req.TxHash, time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithFields(map[string]interface{}{
		"wallet": req.Wallet,
		"face":   req.FaceValue,
	}).Info("🎟️ Ticket sold")
	s.sendJSON(w, http.StatusCreated, TicketResponse{Success: true, Ticket: ticket})
}

/* =========================
   BETS
========================= */

// BetRequest is the POST /api/bet body.
type BetRequest struct {
	Wallet      string   `json:"wallet"`
	TicketID    string   `json:"ticketId"`
	AutoCashout *float64 `json:"autoCashout,omitempty"`
}

// BetResponse wraps a bet row.
type BetResponse struct {
	Success bool        `json:"success"`
	Bet     *engine.Bet `json:"bet"`
}

func (s *Server) handleBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req BetRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	ticketID, err := uuid.Parse(req.TicketID)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid ticketId")
		return
	}

	bet, err := s.engine.PlaceBet(r.Context(), req.Wallet, ticketID, req.AutoCashout, time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithFields(map[string]interface{}{
		"wallet": req.Wallet,
		"stake":  bet.StakeAmount,
	}).Info("🎰 Bet placed")
	s.sendJSON(w, http.StatusCreated, BetResponse{Success: true, Bet: bet})
}

/* =========================
   CASHOUT
========================= */

// CashoutRequest is the POST /api/cashout body. Multiplier is the value
// the client saw; the engine re-checks it against the server curve.
type CashoutRequest struct {
	Wallet     string  `json:"wallet"`
	BetID      string  `json:"betId"`
	Multiplier float64 `json:"multiplier"`
}

func (s *Server) handleCashout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CashoutRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	betID, err := uuid.Parse(req.BetID)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid betId")
		return
	}

	bet, err := s.engine.CashOut(r.Context(), req.Wallet, betID, req.Multiplier, time.Now().UTC())
	if err != nil {
		s.sendEngineError(w, err)
		return
	}

	s.log.WithFields(map[string]interface{}{
		"wallet":     req.Wallet,
		"multiplier": req.Multiplier,
		"winnings":   *bet.Winnings,
	}).Info("💸 Cashed out")
	s.sendJSON(w, http.StatusOK, BetResponse{Success: true, Bet: bet})
}
