package engine

import "errors"

// Error taxonomy. Everything here is local and recoverable: validation
// errors are rejected before any state change, conflict errors mean the
// caller raced another writer and should treat the result as already
// processed, not-found errors cover missing or foreign-owned resources.
var (
	// Validation
	ErrInvalidWallet      = errors.New("invalid wallet address")
	ErrInvalidTicketFace  = errors.New("ticket face value out of range")
	ErrInvalidCurrency    = errors.New("unsupported payment currency")
	ErrInvalidAmount      = errors.New("payment amount must be positive")
	ErrInvalidMultiplier  = errors.New("multiplier outside displayable range")
	ErrInvalidAutoCashout = errors.New("auto-cashout value not in allowed menu")

	// State conflicts (benign: "already processed / stale state")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrNonceMismatch    = errors.New("claim nonce mismatch")
	ErrDuplicateBet     = errors.New("wallet already has a bet in this round")
	ErrNoBettingRound   = errors.New("no round open for betting")
	ErrRoundNotFlying   = errors.New("round is not flying")

	// Resource
	ErrRoundNotFound  = errors.New("round not found")
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketNotOwned = errors.New("ticket not owned by wallet")
	ErrTicketUsed     = errors.New("ticket already used")
	ErrTicketExpired  = errors.New("ticket expired")
	ErrBetNotFound    = errors.New("bet not found")

	// Throttling
	ErrRateLimited = errors.New("too many requests")

	// Fatal for round opening only: never open betting on a weak seed.
	ErrSeedUnavailable = errors.New("secure seed unavailable")
)

// IsConflict reports whether err is a benign stale-state outcome the caller
// can treat as a no-op.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrNonceMismatch) ||
		errors.Is(err, ErrDuplicateBet) ||
		errors.Is(err, ErrNoBettingRound) ||
		errors.Is(err, ErrRoundNotFlying) ||
		errors.Is(err, ErrTicketUsed)
}

// IsNotFound reports whether err is a missing or foreign-owned resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoundNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrTicketNotOwned) ||
		errors.Is(err, ErrBetNotFound)
}

// IsValidation reports whether err was rejected before any state change.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidWallet) ||
		errors.Is(err, ErrInvalidTicketFace) ||
		errors.Is(err, ErrInvalidCurrency) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMultiplier) ||
		errors.Is(err, ErrInvalidAutoCashout) ||
		errors.Is(err, ErrTicketExpired)
}
