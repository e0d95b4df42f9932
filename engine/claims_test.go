package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcrash/db"
	"rocketcrash/engine"
)

// wonBet runs a wallet through placement and cashout so claims start from
// a real won bet.
func wonBet(t *testing.T, eng *engine.Engine, store *db.MemStore, wallet string, t0 time.Time) *engine.Bet {
	t.Helper()
	ctx := context.Background()

	ticket := mintTicket(t, eng, wallet, 1, t0)
	bet, err := eng.PlaceBet(ctx, wallet, ticket.ID, nil, t0.Add(time.Second))
	require.NoError(t, err)

	settled, err := store.CashOutBet(ctx, bet.ID, wallet, 2.0, t0.Add(30*time.Second))
	require.NoError(t, err)
	return settled
}

func TestClaimFlow(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	craftBettingRound(t, store, 5.0, t0)

	bet := wonBet(t, eng, store, walletA, t0)

	claiming, err := eng.StartClaim(ctx, walletA, bet.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, engine.BetClaiming, claiming.Status)
	assert.NotEmpty(t, claiming.ClaimNonce)

	// A second start observes the lock.
	_, err = eng.StartClaim(ctx, walletA, bet.ID, t0.Add(time.Minute))
	assert.ErrorIs(t, err, engine.ErrAlreadyProcessed)

	// The tx hash only lands against the right nonce.
	err = eng.SaveClaimTxHash(ctx, walletA, bet.ID, "wrong-nonce", "0xdeadbeef")
	assert.ErrorIs(t, err, engine.ErrNonceMismatch)
	require.NoError(t, eng.SaveClaimTxHash(ctx, walletA, bet.ID, claiming.ClaimNonce, "0xdeadbeef"))

	// Once broadcast, the claim can no longer be canceled locally.
	err = eng.CancelClaim(ctx, walletA, bet.ID, claiming.ClaimNonce)
	assert.ErrorIs(t, err, engine.ErrAlreadyProcessed)
}

func TestCancelClaimMintsFreshNonce(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t, engine.Options{})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))
	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	craftBettingRound(t, store, 5.0, t0)

	bet := wonBet(t, eng, store, walletA, t0)

	first, err := eng.StartClaim(ctx, walletA, bet.ID, t0.Add(time.Minute))
	require.NoError(t, err)

	require.NoError(t, eng.CancelClaim(ctx, walletA, bet.ID, first.ClaimNonce))
	reverted, err := store.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetWon, reverted.Status)
	assert.Empty(t, reverted.ClaimNonce)

	second, err := eng.StartClaim(ctx, walletA, bet.ID, t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ClaimNonce, second.ClaimNonce)
}

func TestReconcileStuckClaims(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{used: make(map[string]bool)}
	eng, store := newTestEngine(t, engine.Options{Oracle: oracle})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	craftBettingRound(t, store, 5.0, t0)

	wallets := []string{
		"0x7777777777777777777777777777777777777777",
		"0x8888888888888888888888888888888888888888",
		"0x9999999999999999999999999999999999999999",
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	bets := make([]*engine.Bet, len(wallets))
	for i, w := range wallets {
		bets[i] = wonBet(t, eng, store, w, t0)
	}

	now := t0.Add(time.Hour)

	// Stale, never broadcast, nonce unused: reverts to won.
	_, err := eng.StartClaim(ctx, wallets[0], bets[0].ID, now.Add(-6*time.Minute))
	require.NoError(t, err)

	// Stale with a broadcast hash, nonce unused: left pending.
	inFlight, err := eng.StartClaim(ctx, wallets[1], bets[1].ID, now.Add(-6*time.Minute))
	require.NoError(t, err)
	require.NoError(t, eng.SaveClaimTxHash(ctx, wallets[1], bets[1].ID, inFlight.ClaimNonce, "0xfeed"))

	// Stale, nonce consumed on-chain: the payout happened, so claimed.
	paid, err := eng.StartClaim(ctx, wallets[2], bets[2].ID, now.Add(-6*time.Minute))
	require.NoError(t, err)
	oracle.used[paid.ClaimNonce] = true

	// Fresh claim: not stale, untouched.
	fresh, err := eng.StartClaim(ctx, wallets[3], bets[3].ID, now.Add(-time.Minute))
	require.NoError(t, err)

	confirmed, reset, err := eng.ReconcileStuckClaims(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, reset)

	got, err := store.GetBet(ctx, bets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetWon, got.Status)
	assert.Empty(t, got.ClaimNonce, "reset claims retry with a fresh nonce")

	got, err = store.GetBet(ctx, bets[1].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetClaiming, got.Status)

	got, err = store.GetBet(ctx, bets[2].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetClaimed, got.Status)
	require.NotNil(t, got.ClaimedAt)

	got, err = store.GetBet(ctx, bets[3].ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetClaiming, got.Status)
	assert.Equal(t, fresh.ClaimNonce, got.ClaimNonce)
}

func TestReconcileWithoutOracleIsNoop(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, engine.Options{})

	confirmed, reset, err := eng.ReconcileStuckClaims(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, confirmed)
	assert.Zero(t, reset)
}

func TestReconcileLeavesAmbiguityOnOracleError(t *testing.T) {
	ctx := context.Background()
	oracle := &fakeOracle{err: assert.AnError}
	eng, store := newTestEngine(t, engine.Options{Oracle: oracle})
	require.NoError(t, store.AddPoolDeposit(ctx, 1000))

	t0 := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	craftBettingRound(t, store, 5.0, t0)
	bet := wonBet(t, eng, store, walletA, t0)

	now := t0.Add(time.Hour)
	_, err := eng.StartClaim(ctx, walletA, bet.ID, now.Add(-10*time.Minute))
	require.NoError(t, err)

	confirmed, reset, err := eng.ReconcileStuckClaims(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, confirmed)
	assert.Zero(t, reset)

	// Chain unavailable: the claim stays exactly where it was.
	got, err := store.GetBet(ctx, bet.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.BetClaiming, got.Status)
}
