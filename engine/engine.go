package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rocketcrash/config"
	"rocketcrash/crypto"
	"rocketcrash/game"
)

// Engine is the round lifecycle and settlement state machine. It holds no
// round state in memory: the persisted Round row is authoritative, every
// transition is a storage-level compare-and-swap, and any number of
// stateless callers may drive Advance concurrently.
type Engine struct {
	store         Store
	limiter       RateLimiter
	oracle        NonceOracle
	flags         Flags
	poolThreshold float64
	log           *logrus.Logger
}

// Options wires the engine's collaborators. Limiter, Oracle and Flags are
// optional; the engine degrades per-subsystem when they are absent.
type Options struct {
	Store         Store
	Limiter       RateLimiter
	Oracle        NonceOracle
	Flags         Flags
	PoolThreshold float64
	Logger        *logrus.Logger
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PoolThreshold == 0 {
		opts.PoolThreshold = config.DefaultPoolSafetyThreshold
	}
	return &Engine{
		store:         opts.Store,
		limiter:       opts.Limiter,
		oracle:        opts.Oracle,
		flags:         opts.Flags,
		poolThreshold: opts.PoolThreshold,
		log:           opts.Logger,
	}
}

/* =========================
   TICK / ADVANCE
========================= */

// Advance moves the current round forward if its phase window has elapsed.
// It is idempotent: callers may invoke it as often as they like, from as
// many processes as they like, and at most one transition is committed per
// due-check because every write is conditional on the expected phase.
func (e *Engine) Advance(ctx context.Context, now time.Time) (*TickResult, error) {
	round, err := e.store.CurrentRound(ctx)
	if err != nil {
		return &TickResult{Action: ActionNone}, fmt.Errorf("load current round: %w", err)
	}

	if round == nil {
		return e.openRound(ctx, now, 1)
	}

	switch round.Phase {
	case PhaseBetting:
		return e.advanceBetting(ctx, round, now)
	case PhaseCountdown:
		return e.advanceCountdown(ctx, round, now)
	case PhaseFlying:
		return e.advanceFlying(ctx, round, now)
	case PhaseCrashed:
		return e.advanceCrashed(ctx, round, now)
	case PhasePayout:
		return e.advancePayout(ctx, round, now)
	}

	return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
}

// openRound creates the next round with a fresh seed commitment. Fail
// closed: no round opens on a weak or missing seed, and the pool guard is
// consulted before any liability is taken on.
func (e *Engine) openRound(ctx context.Context, now time.Time, sequence uint64) (*TickResult, error) {
	if paused, reason := e.pausedReason(ctx); paused {
		return &TickResult{Action: ActionPaused, Reason: reason}, nil
	}

	seed, hash, err := crypto.Commit()
	if err != nil {
		e.log.Errorf("❌ Refusing to open round %d: %v", sequence, err)
		return &TickResult{Action: ActionPaused, Reason: "seed generation unavailable"}, ErrSeedUnavailable
	}
	// Commitment invariant: the published hash must bind the stored seed
	// before a single bet is accepted.
	if !crypto.Verify(seed, hash) {
		return &TickResult{Action: ActionPaused, Reason: "seed generation unavailable"}, ErrSeedUnavailable
	}

	round := &Round{
		ID:             uuid.New(),
		Sequence:       sequence,
		Phase:          PhaseBetting,
		ServerSeed:     seed,
		ServerSeedHash: hash,
		CrashPoint:     game.CrashPoint(seed, sequence),
		PhaseEnteredAt: now,
		CreatedAt:      now,
	}

	if err := e.store.CreateRound(ctx, round); err != nil {
		if IsConflict(err) {
			// Another caller opened this sequence first.
			return &TickResult{Action: ActionNone}, nil
		}
		return &TickResult{Action: ActionNone}, fmt.Errorf("create round %d: %w", sequence, err)
	}

	e.log.Infof("🎰 Round %d open for betting - commit %s", sequence, hash[:16])
	e.audit(AuditEntry{Event: AuditRoundOpened, RoundID: &round.ID, CreatedAt: now})

	return &TickResult{Action: ActionOpened, Round: round.PublicView()}, nil
}

func (e *Engine) advanceBetting(ctx context.Context, round *Round, now time.Time) (*TickResult, error) {
	if now.Before(round.PhaseEnteredAt.Add(config.BettingDuration)) {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	// Pool guard sits on the betting->countdown boundary: a drained pool
	// stops the launch before liability is locked in.
	if paused, reason := e.pausedReason(ctx); paused {
		return &TickResult{Action: ActionPaused, Reason: reason, Round: round.PublicView()}, nil
	}

	ok, err := e.store.TransitionRound(ctx, round.ID, PhaseBetting, PhaseCountdown, now, RoundMutation{})
	if err != nil {
		return &TickResult{Action: ActionNone}, fmt.Errorf("betting->countdown: %w", err)
	}
	if !ok {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	e.log.Infof("⏳ Round %d countdown", round.Sequence)
	round.Phase = PhaseCountdown
	round.PhaseEnteredAt = now
	return &TickResult{Action: ActionCountdown, Round: round.PublicView()}, nil
}

func (e *Engine) advanceCountdown(ctx context.Context, round *Round, now time.Time) (*TickResult, error) {
	if now.Before(round.PhaseEnteredAt.Add(config.CountdownDuration)) {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	// started_at anchors the shared display curve for every client.
	ok, err := e.store.TransitionRound(ctx, round.ID, PhaseCountdown, PhaseFlying, now, RoundMutation{StartedAt: &now})
	if err != nil {
		return &TickResult{Action: ActionNone}, fmt.Errorf("countdown->flying: %w", err)
	}
	if !ok {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	e.log.Infof("🚀 Round %d flying", round.Sequence)
	round.Phase = PhaseFlying
	round.PhaseEnteredAt = now
	round.StartedAt = &now
	return &TickResult{Action: ActionStarted, Round: round.PublicView()}, nil
}

func (e *Engine) advanceFlying(ctx context.Context, round *Round, now time.Time) (*TickResult, error) {
	started := round.PhaseEnteredAt
	if round.StartedAt != nil {
		started = *round.StartedAt
	}
	display := game.Multiplier(now.Sub(started))

	if display+1e-9 < round.CrashPoint {
		// Still climbing: serve any auto-cashouts the curve has crossed.
		e.autoCashoutSweep(ctx, round, display, now)
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	// The display curve reached the committed crash point: this tick
	// crashes the round. Whoever wins the CAS performs settlement; the
	// crashed-phase recovery path repeats it if this caller dies mid-way.
	ok, err := e.store.TransitionRound(ctx, round.ID, PhaseFlying, PhaseCrashed, now, RoundMutation{CrashedAt: &now})
	if err != nil {
		return &TickResult{Action: ActionNone}, fmt.Errorf("flying->crashed: %w", err)
	}
	if !ok {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	round.Phase = PhaseCrashed
	round.PhaseEnteredAt = now
	round.CrashedAt = &now

	e.settleCrash(ctx, round, now)

	e.log.Infof("💥 Round %d crashed at %.2fx", round.Sequence, round.CrashPoint)
	e.audit(AuditEntry{Event: AuditRoundCrashed, RoundID: &round.ID, Detail: fmt.Sprintf("%.2f", round.CrashPoint), CreatedAt: now})

	return &TickResult{Action: ActionCrashed, Round: round.PublicView()}, nil
}

func (e *Engine) advanceCrashed(ctx context.Context, round *Round, now time.Time) (*TickResult, error) {
	// Recovery: if the crashing caller died between the CAS and the
	// settlement writes, rerunning the idempotent settlement here
	// completes it.
	e.settleCrash(ctx, round, now)

	entered := round.PhaseEnteredAt
	if round.CrashedAt != nil {
		entered = *round.CrashedAt
	}
	if now.Before(entered.Add(config.CrashedDuration)) {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	ok, err := e.store.TransitionRound(ctx, round.ID, PhaseCrashed, PhasePayout, now, RoundMutation{})
	if err != nil {
		return &TickResult{Action: ActionNone}, fmt.Errorf("crashed->payout: %w", err)
	}
	if !ok {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}

	if err := e.store.FinalizeRoundTotals(ctx, round.ID); err != nil {
		e.log.Errorf("⚠️  Failed to finalize round %d totals: %v", round.Sequence, err)
	}

	round.Phase = PhasePayout
	round.PhaseEnteredAt = now
	return &TickResult{Action: ActionSettled, Round: round.PublicView()}, nil
}

func (e *Engine) advancePayout(ctx context.Context, round *Round, now time.Time) (*TickResult, error) {
	if now.Before(round.PhaseEnteredAt.Add(config.PayoutDuration)) {
		return &TickResult{Action: ActionNone, Round: round.PublicView()}, nil
	}
	return e.openRound(ctx, now, round.Sequence+1)
}

/* =========================
   STATUS & FEED READS
========================= */

// GetStatus reports whether the engine will open new rounds, and why not.
func (e *Engine) GetStatus(ctx context.Context) (*Status, error) {
	pool, err := e.store.GetPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}

	status := &Status{Enabled: true, Pool: pool.CurrentBalance}
	if paused, reason := e.pausedReason(ctx); paused {
		status.Enabled = false
		status.Reason = reason
	}
	return status, nil
}

// CurrentRound returns the public projection of the live round.
func (e *Engine) CurrentRound(ctx context.Context) (*PublicRound, error) {
	round, err := e.store.CurrentRound(ctx)
	if err != nil {
		return nil, err
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	return round.PublicView(), nil
}

// History returns the last crashed rounds, seeds revealed, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*PublicRound, error) {
	if limit <= 0 || limit > config.MaxRoundHistory {
		limit = config.MaxRoundHistory
	}
	rounds, err := e.store.RecentCrashedRounds(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*PublicRound, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, r.PublicView())
	}
	return out, nil
}

// Leaderboard returns the wallet PnL standings.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]*PnLEntry, error) {
	return e.store.Leaderboard(ctx, limit)
}

// WalletRank returns one wallet's leaderboard position.
func (e *Engine) WalletRank(ctx context.Context, wallet string) (*PnLEntry, error) {
	return e.store.WalletRank(ctx, wallet)
}

/* =========================
   TICKETS & REVENUE
========================= */

// BuyTicket records a ticket purchase. Payment verification happens
// upstream; this mints the single-use entry credential and accrues the
// revenue ledger.
func (e *Engine) BuyTicket(ctx context.Context, wallet string, faceValue int, currency string, amount float64, txHash string, now time.Time) (*Ticket, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	if faceValue < config.MinTicketFace || faceValue > config.MaxTicketFace {
		return nil, ErrInvalidTicketFace
	}
	if !validCurrency(currency) {
		return nil, ErrInvalidCurrency
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	ticket := &Ticket{
		ID:              uuid.New(),
		Wallet:          wallet,
		FaceValue:       faceValue,
		PaymentCurrency: currency,
		PaymentAmount:   amount,
		TxHash:          txHash,
		CreatedAt:       now,
		ExpiresAt:       now.Add(config.TicketLifetime),
	}

	if err := e.store.InsertTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	if err := e.store.AccrueRevenue(ctx, currency, amount); err != nil {
		e.log.Errorf("⚠️  Failed to accrue revenue for %s: %v", wallet, err)
	}

	e.log.Infof("🎟️  Ticket minted - wallet %s, face %d, %.4f %s", wallet, faceValue, amount, currency)
	e.audit(AuditEntry{Event: AuditTicketBought, Wallet: wallet, Detail: ticket.ID.String(), CreatedAt: now})

	return ticket, nil
}

// DepositPool credits the prize pool. Consumed as a plain counter
// increment by the operator tooling.
func (e *Engine) DepositPool(ctx context.Context, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return e.store.AddPoolDeposit(ctx, amount)
}

// DistributeRevenue moves accrued revenue from pending to distributed.
func (e *Engine) DistributeRevenue(ctx context.Context, currency string, amount float64) error {
	if !validCurrency(currency) {
		return ErrInvalidCurrency
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return e.store.DistributeRevenue(ctx, currency, amount)
}

// Pool returns the prize-pool ledger.
func (e *Engine) Pool(ctx context.Context) (*Pool, error) {
	return e.store.GetPool(ctx)
}

// Revenues returns the per-currency revenue ledgers.
func (e *Engine) Revenues(ctx context.Context) ([]*Revenue, error) {
	return e.store.GetRevenues(ctx)
}

/* =========================
   HELPERS
========================= */

func (e *Engine) pausedReason(ctx context.Context) (bool, string) {
	if e.flags != nil {
		if paused, err := e.flags.OperatorPaused(ctx); err != nil {
			e.log.Errorf("⚠️  Operator pause flag unavailable: %v", err)
		} else if paused {
			return true, config.PauseReasonOperator
		}
	}

	pool, err := e.store.GetPool(ctx)
	if err != nil {
		e.log.Errorf("⚠️  Pool balance unavailable, refusing to open rounds: %v", err)
		return true, config.PauseReasonPoolBelowThreshold
	}
	if pool.CurrentBalance < e.poolThreshold {
		return true, config.PauseReasonPoolBelowThreshold
	}
	return false, ""
}

// audit records a best-effort event; it never blocks the primary path.
func (e *Engine) audit(entry AuditEntry) {
	if entry.CorrelationID == uuid.Nil {
		entry.CorrelationID = uuid.New()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.RecordAudit(ctx, entry); err != nil {
			e.log.Debugf("audit write failed (%s): %v", entry.Event, err)
		}
	}()
}

func validCurrency(currency string) bool {
	for _, c := range config.Currencies {
		if c == currency {
			return true
		}
	}
	return false
}
