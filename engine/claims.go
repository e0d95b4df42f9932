package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"rocketcrash/config"
)

// Claim flow: won -> claiming -> claimed. The claiming hop mints a
// single-use nonce the player references in their on-chain claim
// transaction. Local state is tentative; the chain's nonce-used predicate
// is the authority the sweep defers to.

// StartClaim locks a won bet for on-chain claiming and returns the bet
// with its freshly minted nonce.
func (e *Engine) StartClaim(ctx context.Context, wallet string, betID uuid.UUID, now time.Time) (*Bet, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}

	nonce := uuid.NewString()
	bet, err := e.store.StartClaim(ctx, betID, wallet, nonce, now)
	if err != nil {
		return nil, err
	}

	e.log.Infof("🔐 Claim started - bet %s, wallet %s", betID, wallet)
	e.audit(AuditEntry{Event: AuditClaimStarted, Wallet: wallet, BetID: &betID, CreatedAt: now})

	return bet, nil
}

// SaveClaimTxHash persists the broadcast transaction hash as soon as the
// client sends it, before confirmation, so a page reload cannot lose the
// in-flight reference.
func (e *Engine) SaveClaimTxHash(ctx context.Context, wallet string, betID uuid.UUID, nonce, txHash string) error {
	if !common.IsHexAddress(wallet) {
		return ErrInvalidWallet
	}
	if txHash == "" {
		return ErrInvalidAmount
	}

	if err := e.store.SaveClaimTx(ctx, betID, wallet, nonce, txHash); err != nil {
		return err
	}

	e.log.Infof("📤 Claim tx saved - bet %s, tx %s", betID, txHash)
	e.audit(AuditEntry{Event: AuditClaimTxSaved, Wallet: wallet, BetID: &betID, Detail: txHash, CreatedAt: time.Now()})
	return nil
}

// CancelClaim lets the player abandon a claim they never broadcast. The
// nonce is cleared so a retry mints a fresh one.
func (e *Engine) CancelClaim(ctx context.Context, wallet string, betID uuid.UUID, nonce string) error {
	if !common.IsHexAddress(wallet) {
		return ErrInvalidWallet
	}

	if err := e.store.CancelClaim(ctx, betID, wallet, nonce); err != nil {
		return err
	}

	e.log.Infof("↩️  Claim canceled - bet %s, wallet %s", betID, wallet)
	e.audit(AuditEntry{Event: AuditClaimCanceled, Wallet: wallet, BetID: &betID, CreatedAt: time.Now()})
	return nil
}

// ReconcileStuckClaims sweeps claiming bets older than the staleness
// timeout and resolves each against the chain: nonce consumed means the
// payout happened regardless of what we recorded, so the bet is claimed;
// nonce unconsumed with no broadcast hash means the client died before
// sending, so the bet reverts to won for a retry. An unconsumed nonce
// with a saved hash is left alone; the transaction may still confirm.
func (e *Engine) ReconcileStuckClaims(ctx context.Context, now time.Time) (confirmed, reset int, err error) {
	if e.oracle == nil {
		e.log.Warn("⚠️  No chain oracle configured, skipping claim reconciliation")
		return 0, 0, nil
	}

	stale, err := e.store.StaleClaims(ctx, now.Add(-config.ClaimStaleAfter), config.ClaimSweepBatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("load stale claims: %w", err)
	}

	for _, bet := range stale {
		used, err := e.oracle.NonceUsed(ctx, bet.Wallet, bet.ClaimNonce)
		if err != nil {
			// Chain unavailable: ambiguity stays ambiguous until the
			// oracle answers. Never guess.
			e.log.Errorf("⚠️  Nonce check failed for bet %s: %v", bet.ID, err)
			continue
		}

		if used {
			ok, err := e.store.ConfirmClaim(ctx, bet.ID, bet.ClaimNonce, now)
			if err != nil {
				e.log.Errorf("⚠️  Failed to confirm claim for bet %s: %v", bet.ID, err)
				continue
			}
			if ok {
				confirmed++
				e.log.Infof("✅ Claim confirmed on-chain - bet %s, wallet %s", bet.ID, bet.Wallet)
				e.audit(AuditEntry{Event: AuditClaimConfirmed, Wallet: bet.Wallet, BetID: &bet.ID, CreatedAt: now})
			}
			continue
		}

		if bet.ClaimTxHash != "" {
			e.log.Infof("⏳ Claim tx %s still pending for bet %s, leaving as claiming", bet.ClaimTxHash, bet.ID)
			continue
		}

		ok, err := e.store.ResetClaim(ctx, bet.ID, bet.ClaimNonce)
		if err != nil {
			e.log.Errorf("⚠️  Failed to reset claim for bet %s: %v", bet.ID, err)
			continue
		}
		if ok {
			reset++
			e.log.Infof("🔄 Claim reset to won - bet %s, wallet %s", bet.ID, bet.Wallet)
			e.audit(AuditEntry{Event: AuditClaimReset, Wallet: bet.Wallet, BetID: &bet.ID, CreatedAt: now})
		}
	}

	return confirmed, reset, nil
}
