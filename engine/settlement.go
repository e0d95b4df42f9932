package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"rocketcrash/config"
	"rocketcrash/game"
)

/* =========================
   BET PLACEMENT
========================= */

// PlaceBet consumes a ticket and enters the wallet into the current
// betting round. All preconditions are enforced atomically at the storage
// layer: the one-bet-per-wallet rule and the single-use ticket rule must
// survive concurrent requests from multiple processes.
func (e *Engine) PlaceBet(ctx context.Context, wallet string, ticketID uuid.UUID, autoCashout *float64, now time.Time) (*Bet, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	if autoCashout != nil && !allowedAutoCashout(*autoCashout) {
		return nil, ErrInvalidAutoCashout
	}

	round, err := e.store.CurrentRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current round: %w", err)
	}
	if round == nil || round.Phase != PhaseBetting {
		return nil, ErrNoBettingRound
	}

	bet, err := e.store.PlaceBet(ctx, round.ID, wallet, ticketID, autoCashout, now)
	if err != nil {
		return nil, err
	}

	if err := e.store.RecordPnL(ctx, wallet, -bet.StakeAmount); err != nil {
		e.log.Errorf("⚠️  Failed to record PnL for %s: %v", wallet, err)
	}

	e.log.Infof("✅ Bet placed - round %d, wallet %s, stake %.0f", round.Sequence, wallet, bet.StakeAmount)
	e.audit(AuditEntry{Event: AuditBetPlaced, Wallet: wallet, RoundID: &round.ID, BetID: &bet.ID, CreatedAt: now})

	return bet, nil
}

/* =========================
   CASHOUT
========================= */

// CashOut settles an active bet as won at the given multiplier. The
// multiplier is validated against the server-side display curve so a
// client cannot cash out ahead of the shared animation, and the
// active->won swap is optimistic: a concurrent duplicate observes
// ErrAlreadyProcessed, which callers treat as benign.
func (e *Engine) CashOut(ctx context.Context, wallet string, betID uuid.UUID, multiplier float64, now time.Time) (*Bet, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	if multiplier < config.MinMultiplier || multiplier > config.MaxMultiplier {
		return nil, ErrInvalidMultiplier
	}

	if e.limiter != nil {
		key := fmt.Sprintf(config.RedisCashoutRateKey, wallet)
		allowed, err := e.limiter.Allow(ctx, key, config.CashoutRateLimit, config.CashoutRateWindow)
		if err != nil {
			// The limiter is burst protection, not business correctness.
			e.log.Debugf("rate limiter unavailable: %v", err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	bet, err := e.store.GetBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("load bet: %w", err)
	}
	if bet == nil || bet.Wallet != wallet {
		return nil, ErrBetNotFound
	}

	round, err := e.store.GetRound(ctx, bet.RoundID)
	if err != nil {
		return nil, fmt.Errorf("load round: %w", err)
	}
	if round == nil {
		return nil, ErrRoundNotFound
	}
	if round.Phase != PhaseFlying {
		return nil, ErrRoundNotFlying
	}

	started := round.PhaseEnteredAt
	if round.StartedAt != nil {
		started = *round.StartedAt
	}
	display := game.Multiplier(now.Sub(started))

	// The curve may have reached the crash point before any tick
	// committed the transition; the round is over either way.
	if display+1e-9 >= round.CrashPoint {
		return nil, ErrRoundNotFlying
	}
	if multiplier > display+0.01 {
		return nil, ErrInvalidMultiplier
	}

	settled, err := e.store.CashOutBet(ctx, betID, wallet, multiplier, now)
	if err != nil {
		return nil, err
	}

	if settled.Winnings != nil {
		if err := e.store.RecordPnL(ctx, wallet, *settled.Winnings); err != nil {
			e.log.Errorf("⚠️  Failed to record PnL for %s: %v", wallet, err)
		}
	}

	e.log.Infof("💰 Cashout - round %d, wallet %s, %.2fx, winnings %.2f",
		round.Sequence, wallet, multiplier, settled.StakeAmount*multiplier)
	e.audit(AuditEntry{Event: AuditBetCashedOut, Wallet: wallet, RoundID: &round.ID, BetID: &betID, CreatedAt: now})

	return settled, nil
}

/* =========================
   SERVER-SIDE SETTLEMENT
========================= */

// autoCashoutSweep wins every active bet whose pre-selected threshold the
// shared curve has crossed. Triggered by the tick, never by a client, so
// a stalled browser cannot miss its own threshold and a hostile one
// cannot move it.
func (e *Engine) autoCashoutSweep(ctx context.Context, round *Round, display float64, now time.Time) {
	bets, err := e.store.ActiveAutoCashoutBets(ctx, round.ID)
	if err != nil {
		e.log.Errorf("⚠️  Auto-cashout sweep failed for round %d: %v", round.Sequence, err)
		return
	}

	for _, bet := range bets {
		threshold := *bet.AutoCashout
		// A threshold at or past the crash point never pays: the curve
		// crashes the instant it reaches it.
		if threshold > display+1e-9 || threshold+1e-9 >= round.CrashPoint {
			continue
		}

		settled, err := e.store.CashOutBet(ctx, bet.ID, bet.Wallet, threshold, now)
		if err != nil {
			if errors.Is(err, ErrAlreadyProcessed) {
				continue // raced a manual cashout, fine
			}
			e.log.Errorf("⚠️  Auto-cashout failed for bet %s: %v", bet.ID, err)
			continue
		}

		if settled.Winnings != nil {
			if err := e.store.RecordPnL(ctx, bet.Wallet, *settled.Winnings); err != nil {
				e.log.Errorf("⚠️  Failed to record PnL for %s: %v", bet.Wallet, err)
			}
		}
		e.log.Infof("🤖 Auto-cashout - round %d, wallet %s at %.2fx", round.Sequence, bet.Wallet, threshold)
		e.audit(AuditEntry{Event: AuditBetAutoCashed, Wallet: bet.Wallet, RoundID: &round.ID, BetID: &bet.ID, CreatedAt: now})
	}
}

// settleCrash finishes a crashed round: pending auto-cashouts strictly
// below the crash point win at their threshold, then every remaining
// active bet loses. Both writes are idempotent, so the crashed-phase tick
// can rerun this until it sticks.
func (e *Engine) settleCrash(ctx context.Context, round *Round, now time.Time) {
	// The curve may have jumped past several thresholds on its final
	// tick; the committed crash point, not the display instant, decides
	// who still wins.
	e.autoCashoutSweep(ctx, round, round.CrashPoint, now)

	lost, err := e.store.SettleLost(ctx, round.ID)
	if err != nil {
		e.log.Errorf("⚠️  Failed to settle losers for round %d: %v", round.Sequence, err)
		return
	}
	if lost > 0 {
		e.log.Infof("🔴 Round %d: %d bets lost at %.2fx", round.Sequence, lost, round.CrashPoint)
	}
}

func allowedAutoCashout(v float64) bool {
	for _, allowed := range config.AutoCashoutMenu {
		if v == allowed {
			return true
		}
	}
	return false
}
