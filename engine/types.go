package engine

import (
	"time"

	"github.com/google/uuid"
)

/* =========================
   ROUND
========================= */

// Phase is the round lifecycle position. Transitions are strictly linear
// and cyclic: betting -> countdown -> flying -> crashed -> payout -> (new
// round) betting.
type Phase string

const (
	PhaseBetting   Phase = "betting"
	PhaseCountdown Phase = "countdown"
	PhaseFlying    Phase = "flying"
	PhaseCrashed   Phase = "crashed"
	PhasePayout    Phase = "payout"
)

// Revealed reports whether the phase permits exposing the server seed and
// crash point.
func (p Phase) Revealed() bool {
	return p == PhaseCrashed || p == PhasePayout
}

// Round is the persisted authoritative round row. ServerSeed and CrashPoint
// are stored from creation but must never leave the engine before the round
// crashes; PublicView is the only projection handed to callers.
type Round struct {
	ID             uuid.UUID `json:"id"`
	Sequence       uint64    `json:"sequence"`
	Phase          Phase     `json:"phase"`
	ServerSeed     string    `json:"-"`
	ServerSeedHash string    `json:"serverSeedHash"`
	CrashPoint     float64   `json:"-"`

	PhaseEnteredAt time.Time  `json:"phaseEnteredAt"`
	StartedAt      *time.Time `json:"startedAt,omitempty"` // liftoff; anchors the shared display curve
	CrashedAt      *time.Time `json:"crashedAt,omitempty"`

	TotalBetCount int     `json:"totalBetCount"`
	TotalWagered  float64 `json:"totalWagered"`
	TotalPaid     float64 `json:"totalPaid"`

	CreatedAt time.Time `json:"createdAt"`
}

// PublicRound is the caller-facing projection of a round. Seed and crash
// point are populated only once the round has crashed.
type PublicRound struct {
	ID             uuid.UUID  `json:"id"`
	Sequence       uint64     `json:"sequence"`
	Phase          Phase      `json:"phase"`
	ServerSeedHash string     `json:"serverSeedHash"`
	ServerSeed     string     `json:"serverSeed,omitempty"`
	CrashPoint     *float64   `json:"crashPoint,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CrashedAt      *time.Time `json:"crashedAt,omitempty"`
	TotalBetCount  int        `json:"totalBetCount"`
	TotalWagered   float64    `json:"totalWagered"`
	TotalPaid      float64    `json:"totalPaid"`
}

// PublicView masks the hidden fields until the phase allows reveal.
func (r *Round) PublicView() *PublicRound {
	pub := &PublicRound{
		ID:             r.ID,
		Sequence:       r.Sequence,
		Phase:          r.Phase,
		ServerSeedHash: r.ServerSeedHash,
		StartedAt:      r.StartedAt,
		CrashedAt:      r.CrashedAt,
		TotalBetCount:  r.TotalBetCount,
		TotalWagered:   r.TotalWagered,
		TotalPaid:      r.TotalPaid,
	}
	if r.Phase.Revealed() {
		pub.ServerSeed = r.ServerSeed
		cp := r.CrashPoint
		pub.CrashPoint = &cp
	}
	return pub
}

/* =========================
   TICKET
========================= */

// Ticket is a prepaid single-use entry credential. It is minted on purchase
// and consumed by at most one bet, ever.
type Ticket struct {
	ID              uuid.UUID  `json:"id"`
	Wallet          string     `json:"wallet"`
	FaceValue       int        `json:"faceValue"`
	PaymentCurrency string     `json:"paymentCurrency"`
	PaymentAmount   float64    `json:"paymentAmount"`
	TxHash          string     `json:"txHash,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	Used            bool       `json:"used"`
	UsedInRound     *uuid.UUID `json:"usedInRound,omitempty"`
}

/* =========================
   BET
========================= */

// BetStatus is the bet settlement state machine:
// active -> won | lost, then won -> claiming -> claimed.
type BetStatus string

const (
	BetActive   BetStatus = "active"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetClaiming BetStatus = "claiming"
	BetClaimed  BetStatus = "claimed"
)

// Bet is one wallet's stake in one round. Exactly one bet may exist per
// (wallet, round).
type Bet struct {
	ID          uuid.UUID `json:"id"`
	RoundID     uuid.UUID `json:"roundId"`
	Wallet      string    `json:"wallet"`
	TicketID    uuid.UUID `json:"ticketId"`
	StakeAmount float64   `json:"stakeAmount"`

	AutoCashout *float64  `json:"autoCashout,omitempty"` // restricted to config.AutoCashoutMenu
	CashedOutAt *float64  `json:"cashedOutAt,omitempty"` // multiplier, not a timestamp
	Winnings    *float64  `json:"winnings,omitempty"`
	Status      BetStatus `json:"status"`

	ClaimNonce        string     `json:"claimNonce,omitempty"`
	ClaimTxHash       string     `json:"claimTxHash,omitempty"`
	ClaimingStartedAt *time.Time `json:"claimingStartedAt,omitempty"`
	ClaimedAt         *time.Time `json:"claimedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

/* =========================
   POOL & REVENUE
========================= */

// Pool is the prize-pool ledger backing winnings.
type Pool struct {
	CurrentBalance float64 `json:"currentBalance"`
	TotalDeposits  float64 `json:"totalDeposits"`
	TotalPayouts   float64 `json:"totalPayouts"`
}

// Revenue is the per-currency ticket revenue ledger.
type Revenue struct {
	Currency    string  `json:"currency"`
	Pending     float64 `json:"pending"`
	Distributed float64 `json:"distributed"`
}

/* =========================
   TICK RESULT & STATUS
========================= */

// Action is what a single Advance call committed.
type Action string

const (
	ActionNone      Action = "none"      // nothing due, or lost the transition race
	ActionOpened    Action = "opened"    // new round created, betting open
	ActionCountdown Action = "countdown" // betting closed, pre-launch
	ActionStarted   Action = "started"   // liftoff, flying
	ActionCrashed   Action = "crashed"   // crash committed, losers settled
	ActionSettled   Action = "settled"   // aggregates finalized, payout phase
	ActionPaused    Action = "paused"    // pool guard or operator hold
)

// TickResult is the structured outcome of one Advance call. Advance never
// fails a caller with an internal panic; it reports what it did.
type TickResult struct {
	Action Action       `json:"action"`
	Reason string       `json:"reason,omitempty"`
	Round  *PublicRound `json:"round,omitempty"`
}

// Status reports whether the engine currently opens rounds.
type Status struct {
	Enabled bool    `json:"enabled"`
	Reason  string  `json:"reason,omitempty"`
	Pool    float64 `json:"poolBalance"`
}

/* =========================
   AUDIT
========================= */

// AuditEntry is one best-effort append-only event for debugging. Writes
// never block or fail the primary operation.
type AuditEntry struct {
	CorrelationID uuid.UUID  `json:"correlationId"`
	Event         string     `json:"event"`
	Wallet        string     `json:"wallet,omitempty"`
	RoundID       *uuid.UUID `json:"roundId,omitempty"`
	BetID         *uuid.UUID `json:"betId,omitempty"`
	Detail        string     `json:"detail,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

const (
	AuditRoundOpened    = "round_opened"
	AuditRoundCrashed   = "round_crashed"
	AuditTicketBought   = "ticket_bought"
	AuditBetPlaced      = "bet_placed"
	AuditBetCashedOut   = "bet_cashed_out"
	AuditBetAutoCashed  = "bet_auto_cashed_out"
	AuditClaimStarted   = "claim_started"
	AuditClaimTxSaved   = "claim_tx_saved"
	AuditClaimCanceled  = "claim_canceled"
	AuditClaimConfirmed = "claim_confirmed"
	AuditClaimReset     = "claim_reset"
)
