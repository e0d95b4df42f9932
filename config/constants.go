package config

import "time"

/* =========================
   GAME MECHANICS - ROCKET
========================= */

const (
	// Crash point distribution
	HouseEdge     = 0.03  // 3% of rounds crash instantly at 1.00x
	MinMultiplier = 1.00  // Floor of the crash/display range
	MaxMultiplier = 10.00 // Hard cap for crash point and display curve

	// Display curve: multiplier(t) = GrowthRate^t seconds, capped at MaxMultiplier.
	// ln(10)/ln(1.07) ~ 34s from liftoff to the cap.
	GrowthRate = 1.07
)

/* =========================
   ROUND TIMING
========================= */

const (
	BettingDuration   = 15 * time.Second // bets accepted
	CountdownDuration = 5 * time.Second  // no bets, pre-launch
	CrashedDuration   = 5 * time.Second  // crash display before payout
	PayoutDuration    = 3 * time.Second  // aggregate finalization pause

	// Flying duration is derived from the crash point and GrowthRate,
	// never from a wall-clock budget.
)

/* =========================
   TICKETS & BETS
========================= */

const (
	TicketLifetime = 15 * 24 * time.Hour // tickets expire 15 days after purchase
	MinTicketFace  = 1
	MaxTicketFace  = 5
)

// AutoCashoutMenu is the only set of thresholds a bet may pre-select.
// Arbitrary values are rejected at placement time.
var AutoCashoutMenu = []float64{1.20, 1.50, 2.00, 3.00, 5.00, 8.00}

// Currencies accepted for ticket purchases.
var Currencies = []string{"A", "B"}

/* =========================
   POOL GUARD
========================= */

const (
	// New rounds are refused while the prize pool sits below this balance.
	DefaultPoolSafetyThreshold = 150.0

	PauseReasonPoolBelowThreshold = "pool below threshold"
	PauseReasonOperator           = "paused by operator"
)

/* =========================
   CLAIMS
========================= */

const (
	// A claiming bet with no confirmed outcome older than this is swept
	// against the chain nonce oracle.
	ClaimStaleAfter = 5 * time.Minute

	ClaimSweepBatchSize = 100
)

/* =========================
   RATE LIMITING
========================= */

const (
	CashoutRateLimit  = 5                // attempts per wallet
	CashoutRateWindow = 10 * time.Second // per window
)

/* =========================
   REDIS KEYS & TTL
========================= */

const (
	// Cashout rate limiter counter per wallet
	RedisCashoutRateKey = "rate:cashout:%s" // rate:cashout:{wallet}

	// Crashed-round history cache (LIST of JSON entries, newest first)
	RedisCrashHistoryKey = "round:history"
	CrashHistoryCacheLen = 50
	CrashHistoryTTL      = 24 * time.Hour

	// Operator pause flag shared across stateless instances
	RedisEnginePausedKey = "engine:paused"
)

/* =========================
   HISTORY & FEED
========================= */

const (
	MaxRoundHistory = 50 // crashed rounds exposed to history consumers
)

/* =========================
   POSTGRES POOL SETTINGS
========================= */

const (
	PgMaxConns        = 25
	PgMinConns        = 5
	PgConnMaxLifetime = 5 * time.Minute
)

/* =========================
   WEBSOCKET FEED
========================= */

const (
	WSWriteDeadline = 10 * time.Second
	WSPingInterval  = 30 * time.Second
)
