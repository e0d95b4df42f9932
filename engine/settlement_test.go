package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcrash/db"
	"rocketcrash/engine"
)

// craftBettingRound inserts a round with a chosen crash point so the
// settlement paths are deterministic.
func craftBettingRound(t *testing.T, store *db.MemStore, crashPoint float64, at time.Time) *engine.Round {
	t.Helper()
	r := &engine.Round{
		ID:             uuid.New(),
		Sequence:       1,
		Phase:          engine.PhaseBetting,
		ServerSeed:     "test-seed",
		ServerSeedHash: "test-hash",
		CrashPoint:     crashPoint,
		PhaseEnteredAt: at,
		CreatedAt:      at,
	}
	require.NoError(t, store.CreateRound(context.Background(), r))
	return r
}

// launchRound pushes a crafted round into flying with the given liftoff.
func launchRound(t *testing.T, store *db.MemStore, r *engine.Round, at time.Time) {
	t.Helper()
	ctx := context.Background()
	ok, err := store.TransitionRound(ctx, r.ID, engine.PhaseBetting, engine.PhaseCountdown, at, engine.RoundMutation{})
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = store.TransitionRound(ctx, r.ID, engine.PhaseCountdown, engine.PhaseFlying, at, engine.RoundMutation{StartedAt: &at})
	require.NoError(t, err)
	require.True(t, ok)
}

func mintTicket(t *testing.T, eng *engine.Engine, wallet string, face int, now time.Time) *engine.Ticket {
	t.Helper()
	ticket, err := eng.BuyTicket(context.Background(), wallet, face, "A", 1.0, "", now)
	require.NoError(t, err)
	return ticket
}

func TestPlaceBet(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	round := craftBettingRound(t, store, 3.5, t0)

	ticket := mintTicket(t, eng, walletA, 3, t0)
	bet, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 3.0, bet.StakeAmount, "stake equals the ticket face value")
	assert.Equal(t, engine.BetActive, bet.Status)
	assert.Equal(t, round.ID, bet.RoundID)

	// The stake is reflected in the round aggregates.
	stored, err := store.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalBetCount)
	assert.Equal(t, 3.0, stored.TotalWagered)

	// Placement debits the wallet's PnL.
	rank, err := eng.WalletRank(ctx, walletA)
	require.NoError(t, err)
	assert.Equal(t, -3.0, rank.Amount)

	// One bet per wallet per round, even with a fresh ticket.
	second := mintTicket(t, eng, walletA, 1, t0)
	_, err = eng.PlaceBet(ctx, walletA, second.ID, nil, t0.Add(2*time.Second))
	assert.ErrorIs(t, err, engine.ErrDuplicateBet)

	// The fresh ticket survives the rejected placement.
	kept, err := store.GetTicket(ctx, second.ID)
	require.NoError(t, err)
	assert.False(t, kept.Used)
}

func TestPlaceBetRejections(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	round := craftBettingRound(t, store, 2.0, t0)

	ticketA := mintTicket(t, eng, walletA, 1, t0)

	_, err := eng.PlaceBet(ctx, "bogus", ticketA.ID, nil, t0)
	assert.ErrorIs(t, err, engine.ErrInvalidWallet)

	// Auto-cashout must come from the menu.
	offMenu := 1.75
	_, err = eng.PlaceBet(ctx, walletA, ticketA.ID, &offMenu, t0)
	assert.ErrorIs(t, err, engine.ErrInvalidAutoCashout)

	_, err = eng.PlaceBet(ctx, walletA, uuid.New(), nil, t0)
	assert.ErrorIs(t, err, engine.ErrTicketNotFound)

	// Someone else's ticket.
	_, err = eng.PlaceBet(ctx, walletB, ticketA.ID, nil, t0)
	assert.ErrorIs(t, err, engine.ErrTicketNotOwned)

	// Consumed ticket.
	_, err = eng.PlaceBet(ctx, walletA, ticketA.ID, nil, t0)
	require.NoError(t, err)
	_, err = eng.PlaceBet(ctx, walletA, ticketA.ID, nil, t0)
	assert.ErrorIs(t, err, engine.ErrTicketUsed)

	// Expired ticket.
	ticketB := mintTicket(t, eng, walletB, 1, t0.Add(-16*24*time.Hour))
	_, err = eng.PlaceBet(ctx, walletB, ticketB.ID, nil, t0)
	assert.ErrorIs(t, err, engine.ErrTicketExpired)

	// Betting closed.
	launchRound(t, store, round, t0.Add(time.Minute))
	ticketC := mintTicket(t, eng, walletB, 1, t0)
	_, err = eng.PlaceBet(ctx, walletB, ticketC.ID, nil, t0.Add(2*time.Minute))
	assert.ErrorIs(t, err, engine.ErrNoBettingRound)
}

func TestConcurrentPlaceBetOneWins(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	craftBettingRound(t, store, 2.0, t0)

	const attempts = 10
	tickets := make([]*engine.Ticket, attempts)
	for i := range tickets {
		tickets[i] = mintTicket(t, eng, walletA, 1, t0)
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.PlaceBet(ctx, walletA, tickets[i].ID, nil, t0.Add(time.Second))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, engine.ErrDuplicateBet)
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent placement commits")
}

func TestCashOut(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	round := craftBettingRound(t, store, 3.5, t0)
	ticket := mintTicket(t, eng, walletA, 2, t0)
	bet, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)

	// ~7s in the display sits around 1.6x; claiming 2.0x is ahead of
	// the curve and must be refused.
	during := liftoff.Add(7 * time.Second)
	_, err = eng.CashOut(ctx, walletA, bet.ID, 2.0, during)
	assert.ErrorIs(t, err, engine.ErrInvalidMultiplier)

	// Wrong wallet can't touch the bet.
	_, err = eng.CashOut(ctx, walletB, bet.ID, 1.5, during)
	assert.ErrorIs(t, err, engine.ErrBetNotFound)

	settled, err := eng.CashOut(ctx, walletA, bet.ID, 1.5, during)
	require.NoError(t, err)
	assert.Equal(t, engine.BetWon, settled.Status)
	require.NotNil(t, settled.Winnings)
	assert.Equal(t, 3.0, *settled.Winnings, "stake 2 x 1.5")

	// Winnings are debited from the pool.
	pool, err := store.GetPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 997.0, pool.CurrentBalance)
	assert.Equal(t, 3.0, pool.TotalPayouts)

	// A second attempt observes the settled state.
	_, err = eng.CashOut(ctx, walletA, bet.ID, 1.5, during)
	assert.ErrorIs(t, err, engine.ErrAlreadyProcessed)
}

func TestCashOutAfterCurveReachesCrashPoint(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	round := craftBettingRound(t, store, 1.5, t0)
	ticket := mintTicket(t, eng, walletA, 1, t0)
	bet, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)

	// The display passed 1.5x around 6s in. Even though no tick has
	// committed the crash yet, the round is over for cashout purposes.
	_, err = eng.CashOut(ctx, walletA, bet.ID, 1.2, liftoff.Add(10*time.Second))
	assert.ErrorIs(t, err, engine.ErrRoundNotFlying)
}

func TestConcurrentCashOutOneWins(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	round := craftBettingRound(t, store, 5.0, t0)
	ticket := mintTicket(t, eng, walletA, 1, t0)
	bet, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)
	during := liftoff.Add(7 * time.Second)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.CashOut(ctx, walletA, bet.ID, 1.5, during)
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, engine.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent cashout commits")

	// Winnings were paid exactly once.
	pool, err := store.GetPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.5, pool.TotalPayouts)
}

func TestCashOutRateLimited(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{Limiter: &fakeLimiter{allowed: false}})
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	round := craftBettingRound(t, store, 5.0, t0)
	ticket := mintTicket(t, eng, walletA, 1, t0)
	bet, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)

	_, err = eng.CashOut(ctx, walletA, bet.ID, 1.2, liftoff.Add(5*time.Second))
	assert.ErrorIs(t, err, engine.ErrRateLimited)
}

func TestAutoCashoutSettlement(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Crash at exactly 3.00x. Threshold semantics: strictly below the
	// crash point wins at the threshold, at or above loses.
	round := craftBettingRound(t, store, 3.00, t0)

	thresholds := map[string]float64{
		"0x3333333333333333333333333333333333333333": 1.50,
		"0x4444444444444444444444444444444444444444": 2.00,
		"0x5555555555555555555555555555555555555555": 3.00,
		"0x6666666666666666666666666666666666666666": 5.00,
	}
	betIDs := make(map[string]uuid.UUID)
	for wallet, threshold := range thresholds {
		ticket := mintTicket(t, eng, wallet, 1, t0)
		th := threshold
		bet, err := eng.PlaceBet(ctx, wallet, ticket.ID, &th, t0.Add(time.Second))
		require.NoError(t, err)
		betIDs[wallet] = bet.ID
	}

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)

	// Mid-flight tick around 2.1x: the 1.50 and 2.00 thresholds have
	// been crossed and win; the rest stay active.
	res, err := eng.Advance(ctx, liftoff.Add(11*time.Second))
	require.NoError(t, err)
	assert.Equal(t, engine.ActionNone, res.Action)

	for wallet, threshold := range thresholds {
		bet, err := store.GetBet(ctx, betIDs[wallet])
		require.NoError(t, err)
		if threshold <= 2.00 {
			assert.Equal(t, engine.BetWon, bet.Status, "threshold %.2f", threshold)
			require.NotNil(t, bet.CashedOutAt)
			assert.Equal(t, threshold, *bet.CashedOutAt, "auto-cashout settles at the threshold, not the display")
		} else {
			assert.Equal(t, engine.BetActive, bet.Status, "threshold %.2f", threshold)
		}
	}

	// Tick past the crash point commits the crash and settles the rest.
	res, err = eng.Advance(ctx, liftoff.Add(40*time.Second))
	require.NoError(t, err)
	assert.Equal(t, engine.ActionCrashed, res.Action)

	// Equal to the crash point is a loss, as is anything above.
	for wallet, threshold := range thresholds {
		bet, err := store.GetBet(ctx, betIDs[wallet])
		require.NoError(t, err)
		if threshold < 3.00 {
			assert.Equal(t, engine.BetWon, bet.Status, "threshold %.2f", threshold)
			assert.Equal(t, threshold, *bet.Winnings, "stake 1 x threshold")
		} else {
			assert.Equal(t, engine.BetLost, bet.Status, "threshold %.2f", threshold)
			assert.Equal(t, 0.0, *bet.Winnings)
		}
	}
}

func TestCrashSettlementIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	round := craftBettingRound(t, store, 1.50, t0)
	ticket := mintTicket(t, eng, walletA, 1, t0)
	_, err := eng.PlaceBet(ctx, walletA, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	liftoff := t0.Add(20 * time.Second)
	launchRound(t, store, round, liftoff)

	crashTick := liftoff.Add(10 * time.Second)
	res, err := eng.Advance(ctx, crashTick)
	require.NoError(t, err)
	require.Equal(t, engine.ActionCrashed, res.Action)

	poolBefore, err := store.GetPool(ctx)
	require.NoError(t, err)

	// Re-ticking the crashed phase reruns settlement harmlessly.
	for i := 0; i < 3; i++ {
		res, err = eng.Advance(ctx, crashTick.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, engine.ActionNone, res.Action)
	}

	poolAfter, err := store.GetPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, poolBefore.CurrentBalance, poolAfter.CurrentBalance)
}
