package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoundMutation carries the optional timestamp writes that ride along with
// a phase transition.
type RoundMutation struct {
	StartedAt *time.Time
	CrashedAt *time.Time
}

// PnLEntry is one leaderboard row of cumulative wallet winnings minus stakes.
type PnLEntry struct {
	Wallet string  `json:"wallet"`
	Amount float64 `json:"amount"`
	Rank   int     `json:"rank,omitempty"`
}

// Store is the persistence contract for the engine. Every mutating method
// is a conditional write: it either commits against the expected current
// state or reports a conflict, never a blind overwrite. This is what lets
// any number of stateless engine instances share one tick loop safely.
type Store interface {
	// Rounds. CreateRound must reject a duplicate sequence number so a
	// round can never be double-created. TransitionRound compares and
	// swaps on (id, from) and returns false when another caller already
	// moved the round on.
	CreateRound(ctx context.Context, r *Round) error
	CurrentRound(ctx context.Context) (*Round, error)
	GetRound(ctx context.Context, id uuid.UUID) (*Round, error)
	TransitionRound(ctx context.Context, id uuid.UUID, from, to Phase, at time.Time, mut RoundMutation) (bool, error)
	RecentCrashedRounds(ctx context.Context, limit int) ([]*Round, error)
	FinalizeRoundTotals(ctx context.Context, id uuid.UUID) error

	// Tickets.
	InsertTicket(ctx context.Context, t *Ticket) error
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)

	// Bets. PlaceBet is one atomic unit: consume the ticket, insert the
	// bet, bump the round aggregates under a phase='betting' guard. The
	// duplicate-bet and ticket checks must be enforced by the storage
	// layer itself (unique index / conditional update), not by a prior
	// read.
	PlaceBet(ctx context.Context, roundID uuid.UUID, wallet string, ticketID uuid.UUID, autoCashout *float64, now time.Time) (*Bet, error)
	GetBet(ctx context.Context, id uuid.UUID) (*Bet, error)
	ActiveAutoCashoutBets(ctx context.Context, roundID uuid.UUID) ([]*Bet, error)

	// CashOutBet swaps status active->won for the owning wallet, records
	// the cashout multiplier, computes winnings = stake x multiplier and
	// debits the prize pool, all in one conditional write. A bet whose
	// status already left 'active' yields ErrAlreadyProcessed.
	CashOutBet(ctx context.Context, betID uuid.UUID, wallet string, multiplier float64, now time.Time) (*Bet, error)

	// SettleLost moves every still-active bet of the round to lost with
	// zero winnings. Idempotent: re-running after a partial failure
	// settles the remainder and touches nothing else.
	SettleLost(ctx context.Context, roundID uuid.UUID) (int, error)

	// Claims: won -> claiming -> claimed, nonce-guarded.
	StartClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string, at time.Time) (*Bet, error)
	SaveClaimTx(ctx context.Context, betID uuid.UUID, wallet, nonce, txHash string) error
	CancelClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string) error
	ResetClaim(ctx context.Context, betID uuid.UUID, nonce string) (bool, error)
	ConfirmClaim(ctx context.Context, betID uuid.UUID, nonce string, at time.Time) (bool, error)
	StaleClaims(ctx context.Context, before time.Time, limit int) ([]*Bet, error)

	// Pool & revenue ledgers.
	GetPool(ctx context.Context) (*Pool, error)
	AddPoolDeposit(ctx context.Context, amount float64) error
	AccrueRevenue(ctx context.Context, currency string, amount float64) error
	GetRevenues(ctx context.Context) ([]*Revenue, error)
	DistributeRevenue(ctx context.Context, currency string, amount float64) error

	// Wallet PnL leaderboard.
	RecordPnL(ctx context.Context, wallet string, delta float64) error
	Leaderboard(ctx context.Context, limit int) ([]*PnLEntry, error)
	WalletRank(ctx context.Context, wallet string) (*PnLEntry, error)

	// Audit log, append-only.
	RecordAudit(ctx context.Context, e AuditEntry) error
}

// RateLimiter is a shared (cross-instance) counter with expiry. Allow
// reports whether the keyed caller is still inside its window budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// NonceOracle answers whether a claim nonce was consumed on-chain. It is
// consulted only by the reconciliation sweep, never on the hot path, and
// its answer beats local state.
type NonceOracle interface {
	NonceUsed(ctx context.Context, wallet, nonce string) (bool, error)
}

// Flags exposes the shared operator pause switch.
type Flags interface {
	OperatorPaused(ctx context.Context) (bool, error)
}
