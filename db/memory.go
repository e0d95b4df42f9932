package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"rocketcrash/engine"
)

// MemStore is an in-process engine store. It backs local development when
// DATABASE_URL is unset and the engine test suite. It enforces the same
// conditional-write semantics as Postgres, just under one mutex.
type MemStore struct {
	mu sync.Mutex

	rounds  map[uuid.UUID]*engine.Round
	bySeq   map[uint64]uuid.UUID
	tickets map[uuid.UUID]*engine.Ticket
	bets    map[uuid.UUID]*engine.Bet

	pool     engine.Pool
	revenue  map[string]*engine.Revenue
	pnl      map[string]float64
	auditLog []engine.AuditEntry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rounds:  make(map[uuid.UUID]*engine.Round),
		bySeq:   make(map[uint64]uuid.UUID),
		tickets: make(map[uuid.UUID]*engine.Ticket),
		bets:    make(map[uuid.UUID]*engine.Bet),
		revenue: make(map[string]*engine.Revenue),
		pnl:     make(map[string]float64),
	}
}

func cloneRound(r *engine.Round) *engine.Round {
	c := *r
	return &c
}

func cloneBet(b *engine.Bet) *engine.Bet {
	c := *b
	return &c
}

/* =========================
   ROUNDS
========================= */

func (m *MemStore) CreateRound(ctx context.Context, r *engine.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySeq[r.Sequence]; exists {
		return engine.ErrAlreadyProcessed
	}
	m.rounds[r.ID] = cloneRound(r)
	m.bySeq[r.Sequence] = r.ID
	return nil
}

func (m *MemStore) CurrentRound(ctx context.Context) (*engine.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *engine.Round
	for _, r := range m.rounds {
		if latest == nil || r.Sequence > latest.Sequence {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneRound(latest), nil
}

func (m *MemStore) GetRound(ctx context.Context, id uuid.UUID) (*engine.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok {
		return nil, nil
	}
	return cloneRound(r), nil
}

func (m *MemStore) TransitionRound(ctx context.Context, id uuid.UUID, from, to engine.Phase, at time.Time, mut engine.RoundMutation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok || r.Phase != from {
		return false, nil
	}
	r.Phase = to
	r.PhaseEnteredAt = at
	if mut.StartedAt != nil {
		t := *mut.StartedAt
		r.StartedAt = &t
	}
	if mut.CrashedAt != nil {
		t := *mut.CrashedAt
		r.CrashedAt = &t
	}
	return true, nil
}

func (m *MemStore) RecentCrashedRounds(ctx context.Context, limit int) ([]*engine.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rounds []*engine.Round
	for _, r := range m.rounds {
		if r.Phase.Revealed() {
			rounds = append(rounds, cloneRound(r))
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i].Sequence > rounds[j].Sequence })
	if len(rounds) > limit {
		rounds = rounds[:limit]
	}
	return rounds, nil
}

func (m *MemStore) FinalizeRoundTotals(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok {
		return engine.ErrRoundNotFound
	}
	var paid float64
	for _, b := range m.bets {
		if b.RoundID == id && b.Winnings != nil {
			paid += *b.Winnings
		}
	}
	r.TotalPaid = paid
	return nil
}

/* =========================
   TICKETS
========================= */

func (m *MemStore) InsertTicket(ctx context.Context, t *engine.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *t
	m.tickets[t.ID] = &c
	return nil
}

func (m *MemStore) GetTicket(ctx context.Context, id uuid.UUID) (*engine.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

/* =========================
   BETS
========================= */

func (m *MemStore) PlaceBet(ctx context.Context, roundID uuid.UUID, wallet string, ticketID uuid.UUID, autoCashout *float64, now time.Time) (*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[ticketID]
	switch {
	case !ok:
		return nil, engine.ErrTicketNotFound
	case t.Wallet != wallet:
		return nil, engine.ErrTicketNotOwned
	case t.Used:
		return nil, engine.ErrTicketUsed
	case !t.ExpiresAt.After(now):
		return nil, engine.ErrTicketExpired
	}

	for _, b := range m.bets {
		if b.RoundID == roundID && b.Wallet == wallet {
			return nil, engine.ErrDuplicateBet
		}
	}

	r, ok := m.rounds[roundID]
	if !ok || r.Phase != engine.PhaseBetting {
		return nil, engine.ErrNoBettingRound
	}

	t.Used = true
	rid := roundID
	t.UsedInRound = &rid

	bet := &engine.Bet{
		ID:          uuid.New(),
		RoundID:     roundID,
		Wallet:      wallet,
		TicketID:    ticketID,
		StakeAmount: float64(t.FaceValue),
		AutoCashout: autoCashout,
		Status:      engine.BetActive,
		CreatedAt:   now,
	}
	m.bets[bet.ID] = bet

	r.TotalBetCount++
	r.TotalWagered += bet.StakeAmount
	return cloneBet(bet), nil
}

func (m *MemStore) GetBet(ctx context.Context, id uuid.UUID) (*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[id]
	if !ok {
		return nil, nil
	}
	return cloneBet(b), nil
}

func (m *MemStore) ActiveAutoCashoutBets(ctx context.Context, roundID uuid.UUID) ([]*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bets []*engine.Bet
	for _, b := range m.bets {
		if b.RoundID == roundID && b.Status == engine.BetActive && b.AutoCashout != nil {
			bets = append(bets, cloneBet(b))
		}
	}
	sort.Slice(bets, func(i, j int) bool { return *bets[i].AutoCashout < *bets[j].AutoCashout })
	return bets, nil
}

func (m *MemStore) CashOutBet(ctx context.Context, betID uuid.UUID, wallet string, multiplier float64, now time.Time) (*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok {
		return nil, engine.ErrBetNotFound
	}
	if wallet != "" && b.Wallet != wallet {
		return nil, engine.ErrBetNotFound
	}
	if b.Status != engine.BetActive {
		return nil, engine.ErrAlreadyProcessed
	}

	mult := multiplier
	winnings := b.StakeAmount * multiplier
	b.Status = engine.BetWon
	b.CashedOutAt = &mult
	b.Winnings = &winnings

	m.pool.CurrentBalance -= winnings
	m.pool.TotalPayouts += winnings
	return cloneBet(b), nil
}

func (m *MemStore) SettleLost(ctx context.Context, roundID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settled := 0
	for _, b := range m.bets {
		if b.RoundID == roundID && b.Status == engine.BetActive {
			zero := 0.0
			b.Status = engine.BetLost
			b.Winnings = &zero
			settled++
		}
	}
	return settled, nil
}

/* =========================
   CLAIMS
========================= */

func (m *MemStore) StartClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string, at time.Time) (*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok || b.Wallet != wallet {
		return nil, engine.ErrBetNotFound
	}
	if b.Status != engine.BetWon {
		return nil, engine.ErrAlreadyProcessed
	}
	t := at
	b.Status = engine.BetClaiming
	b.ClaimNonce = nonce
	b.ClaimTxHash = ""
	b.ClaimingStartedAt = &t
	return cloneBet(b), nil
}

func (m *MemStore) SaveClaimTx(ctx context.Context, betID uuid.UUID, wallet, nonce, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok || b.Wallet != wallet {
		return engine.ErrBetNotFound
	}
	if b.Status != engine.BetClaiming {
		return engine.ErrAlreadyProcessed
	}
	if b.ClaimNonce != nonce {
		return engine.ErrNonceMismatch
	}
	b.ClaimTxHash = txHash
	return nil
}

func (m *MemStore) CancelClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok || b.Wallet != wallet {
		return engine.ErrBetNotFound
	}
	if b.Status != engine.BetClaiming || b.ClaimTxHash != "" {
		return engine.ErrAlreadyProcessed
	}
	if b.ClaimNonce != nonce {
		return engine.ErrNonceMismatch
	}
	b.Status = engine.BetWon
	b.ClaimNonce = ""
	b.ClaimingStartedAt = nil
	return nil
}

func (m *MemStore) ResetClaim(ctx context.Context, betID uuid.UUID, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok || b.Status != engine.BetClaiming || b.ClaimNonce != nonce {
		return false, nil
	}
	b.Status = engine.BetWon
	b.ClaimNonce = ""
	b.ClaimTxHash = ""
	b.ClaimingStartedAt = nil
	return true, nil
}

func (m *MemStore) ConfirmClaim(ctx context.Context, betID uuid.UUID, nonce string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bets[betID]
	if !ok || b.Status != engine.BetClaiming || b.ClaimNonce != nonce {
		return false, nil
	}
	t := at
	b.Status = engine.BetClaimed
	b.ClaimedAt = &t
	return true, nil
}

func (m *MemStore) StaleClaims(ctx context.Context, before time.Time, limit int) ([]*engine.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bets []*engine.Bet
	for _, b := range m.bets {
		if b.Status == engine.BetClaiming && b.ClaimingStartedAt != nil && b.ClaimingStartedAt.Before(before) {
			bets = append(bets, cloneBet(b))
		}
	}
	sort.Slice(bets, func(i, j int) bool { return bets[i].ClaimingStartedAt.Before(*bets[j].ClaimingStartedAt) })
	if len(bets) > limit {
		bets = bets[:limit]
	}
	return bets, nil
}

/* =========================
   POOL & REVENUE
========================= */

func (m *MemStore) GetPool(ctx context.Context) (*engine.Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.pool
	return &p, nil
}

func (m *MemStore) AddPoolDeposit(ctx context.Context, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pool.CurrentBalance += amount
	m.pool.TotalDeposits += amount
	return nil
}

func (m *MemStore) AccrueRevenue(ctx context.Context, currency string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.revenue[currency]
	if !ok {
		r = &engine.Revenue{Currency: currency}
		m.revenue[currency] = r
	}
	r.Pending += amount
	return nil
}

func (m *MemStore) GetRevenues(ctx context.Context) ([]*engine.Revenue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var revs []*engine.Revenue
	for _, r := range m.revenue {
		c := *r
		revs = append(revs, &c)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i].Currency < revs[j].Currency })
	return revs, nil
}

func (m *MemStore) DistributeRevenue(ctx context.Context, currency string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.revenue[currency]
	if !ok || r.Pending < amount {
		return engine.ErrInvalidAmount
	}
	r.Pending -= amount
	r.Distributed += amount
	return nil
}

/* =========================
   WALLET PNL
========================= */

func (m *MemStore) RecordPnL(ctx context.Context, wallet string, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pnl[wallet] += delta
	return nil
}

func (m *MemStore) rankedPnL() []*engine.PnLEntry {
	entries := make([]*engine.PnLEntry, 0, len(m.pnl))
	for wallet, amount := range m.pnl {
		entries = append(entries, &engine.PnLEntry{Wallet: wallet, Amount: amount})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount > entries[j].Amount
		}
		return entries[i].Wallet < entries[j].Wallet
	})
	for i, e := range entries {
		e.Rank = i + 1
	}
	return entries
}

func (m *MemStore) Leaderboard(ctx context.Context, limit int) ([]*engine.PnLEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.rankedPnL()
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *MemStore) WalletRank(ctx context.Context, wallet string) (*engine.PnLEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.rankedPnL() {
		if e.Wallet == wallet {
			return e, nil
		}
	}
	return nil, nil
}

/* =========================
   AUDIT LOG
========================= */

func (m *MemStore) RecordAudit(ctx context.Context, e engine.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.auditLog = append(m.auditLog, e)
	return nil
}

// AuditEntries returns a snapshot of the audit log, oldest first.
func (m *MemStore) AuditEntries() []engine.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]engine.AuditEntry, len(m.auditLog))
	copy(out, m.auditLog)
	return out
}
