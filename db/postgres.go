package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"rocketcrash/config"
	"rocketcrash/engine"
)

// Postgres is the pgx-backed engine store. Every mutating statement is a
// conditional UPDATE or a conflict-guarded INSERT so correctness holds
// across any number of engine instances sharing the database.
type Postgres struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgres opens the connection pool and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string, log *logrus.Logger) (*Postgres, error) {
	log.Info("🔌 Connecting to PostgreSQL...")

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = config.PgMaxConns
	poolConfig.MinConns = config.PgMinConns
	poolConfig.MaxConnLifetime = config.PgConnMaxLifetime

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Postgres{pool: pool, log: log}
	if err := p.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("✅ PostgreSQL connected")
	return p, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.log.Info("🔌 Closing PostgreSQL connection...")
	p.pool.Close()
}

// Health pings the database.
func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// InitSchema creates the tables if they don't exist. Production deploys
// run cmd/migrate instead; this keeps local development at zero setup.
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id UUID PRIMARY KEY,
		sequence BIGINT NOT NULL UNIQUE,
		phase TEXT NOT NULL,
		server_seed TEXT NOT NULL,
		server_seed_hash TEXT NOT NULL,
		crash_point DOUBLE PRECISION NOT NULL,
		phase_entered_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		crashed_at TIMESTAMPTZ,
		total_bet_count INT NOT NULL DEFAULT 0,
		total_wagered DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_sequence ON rounds(sequence DESC);
	CREATE INDEX IF NOT EXISTS idx_rounds_phase ON rounds(phase);

	CREATE TABLE IF NOT EXISTS tickets (
		id UUID PRIMARY KEY,
		wallet TEXT NOT NULL,
		face_value INT NOT NULL,
		payment_currency TEXT NOT NULL,
		payment_amount DOUBLE PRECISION NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		used BOOLEAN NOT NULL DEFAULT FALSE,
		used_in_round UUID
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_wallet ON tickets(wallet);

	CREATE TABLE IF NOT EXISTS bets (
		id UUID PRIMARY KEY,
		round_id UUID NOT NULL,
		wallet TEXT NOT NULL,
		ticket_id UUID NOT NULL UNIQUE,
		stake_amount DOUBLE PRECISION NOT NULL,
		auto_cashout DOUBLE PRECISION,
		cashed_out_at DOUBLE PRECISION,
		winnings DOUBLE PRECISION,
		status TEXT NOT NULL DEFAULT 'active',
		claim_nonce TEXT NOT NULL DEFAULT '',
		claim_tx_hash TEXT NOT NULL DEFAULT '',
		claiming_started_at TIMESTAMPTZ,
		claimed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE(round_id, wallet)
	);
	CREATE INDEX IF NOT EXISTS idx_bets_round ON bets(round_id);
	CREATE INDEX IF NOT EXISTS idx_bets_wallet ON bets(wallet);
	CREATE INDEX IF NOT EXISTS idx_bets_status ON bets(status);

	CREATE TABLE IF NOT EXISTS pool (
		singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
		current_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_deposits DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_payouts DOUBLE PRECISION NOT NULL DEFAULT 0
	);
	INSERT INTO pool (singleton) VALUES (TRUE) ON CONFLICT DO NOTHING;

	CREATE TABLE IF NOT EXISTS revenue (
		currency TEXT PRIMARY KEY,
		pending DOUBLE PRECISION NOT NULL DEFAULT 0,
		distributed DOUBLE PRECISION NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS wallet_pnl (
		wallet TEXT PRIMARY KEY,
		amount DOUBLE PRECISION NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_wallet_pnl_amount ON wallet_pnl(amount DESC);

	CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		correlation_id UUID NOT NULL,
		event TEXT NOT NULL,
		wallet TEXT NOT NULL DEFAULT '',
		round_id UUID,
		bet_id UUID,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_correlation ON audit_log(correlation_id);
	`
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

/* =========================
   ROUNDS
========================= */

const roundColumns = `id, sequence, phase, server_seed, server_seed_hash, crash_point,
	phase_entered_at, started_at, crashed_at, total_bet_count, total_wagered, total_paid, created_at`

func scanRound(row pgx.Row) (*engine.Round, error) {
	var r engine.Round
	err := row.Scan(&r.ID, &r.Sequence, &r.Phase, &r.ServerSeed, &r.ServerSeedHash, &r.CrashPoint,
		&r.PhaseEnteredAt, &r.StartedAt, &r.CrashedAt, &r.TotalBetCount, &r.TotalWagered, &r.TotalPaid, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) CreateRound(ctx context.Context, r *engine.Round) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO rounds (id, sequence, phase, server_seed, server_seed_hash, crash_point, phase_entered_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (sequence) DO NOTHING`,
		r.ID, r.Sequence, r.Phase, r.ServerSeed, r.ServerSeedHash, r.CrashPoint, r.PhaseEnteredAt, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create round: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrAlreadyProcessed
	}
	return nil
}

func (p *Postgres) CurrentRound(ctx context.Context) (*engine.Round, error) {
	round, err := scanRound(p.pool.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM rounds ORDER BY sequence DESC LIMIT 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	return round, nil
}

func (p *Postgres) GetRound(ctx context.Context, id uuid.UUID) (*engine.Round, error) {
	round, err := scanRound(p.pool.QueryRow(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	return round, nil
}

func (p *Postgres) TransitionRound(ctx context.Context, id uuid.UUID, from, to engine.Phase, at time.Time, mut engine.RoundMutation) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE rounds
		SET phase = $1,
		    phase_entered_at = $2,
		    started_at = COALESCE($3, started_at),
		    crashed_at = COALESCE($4, crashed_at)
		WHERE id = $5 AND phase = $6`,
		to, at, mut.StartedAt, mut.CrashedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition round: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) RecentCrashedRounds(ctx context.Context, limit int) ([]*engine.Round, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+roundColumns+` FROM rounds
		WHERE phase IN ('crashed', 'payout')
		ORDER BY sequence DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query round history: %w", err)
	}
	defer rows.Close()

	var rounds []*engine.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

func (p *Postgres) FinalizeRoundTotals(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE rounds
		SET total_paid = (SELECT COALESCE(SUM(winnings), 0) FROM bets WHERE round_id = $1)
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to finalize round totals: %w", err)
	}
	return nil
}

/* =========================
   TICKETS
========================= */

func (p *Postgres) InsertTicket(ctx context.Context, t *engine.Ticket) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO tickets (id, wallet, face_value, payment_currency, payment_amount, tx_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Wallet, t.FaceValue, t.PaymentCurrency, t.PaymentAmount, t.TxHash, t.CreatedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert ticket: %w", err)
	}
	return nil
}

func (p *Postgres) GetTicket(ctx context.Context, id uuid.UUID) (*engine.Ticket, error) {
	var t engine.Ticket
	err := p.pool.QueryRow(ctx, `
		SELECT id, wallet, face_value, payment_currency, payment_amount, tx_hash, created_at, expires_at, used, used_in_round
		FROM tickets WHERE id = $1`, id).Scan(
		&t.ID, &t.Wallet, &t.FaceValue, &t.PaymentCurrency, &t.PaymentAmount, &t.TxHash,
		&t.CreatedAt, &t.ExpiresAt, &t.Used, &t.UsedInRound)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

/* =========================
   BETS
========================= */

const betColumns = `id, round_id, wallet, ticket_id, stake_amount, auto_cashout, cashed_out_at,
	winnings, status, claim_nonce, claim_tx_hash, claiming_started_at, claimed_at, created_at`

func scanBet(row pgx.Row) (*engine.Bet, error) {
	var b engine.Bet
	err := row.Scan(&b.ID, &b.RoundID, &b.Wallet, &b.TicketID, &b.StakeAmount, &b.AutoCashout,
		&b.CashedOutAt, &b.Winnings, &b.Status, &b.ClaimNonce, &b.ClaimTxHash,
		&b.ClaimingStartedAt, &b.ClaimedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PlaceBet runs the whole placement as one transaction: consume the
// ticket, insert the bet, bump the round aggregates under the betting
// guard. Any failed precondition rolls the lot back with a distinct error.
func (p *Postgres) PlaceBet(ctx context.Context, roundID uuid.UUID, wallet string, ticketID uuid.UUID, autoCashout *float64, now time.Time) (*engine.Bet, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Single-use is enforced here, not by a prior read: only one
	// concurrent request can flip used FALSE -> TRUE.
	var faceValue int
	err = tx.QueryRow(ctx, `
		UPDATE tickets
		SET used = TRUE, used_in_round = $1
		WHERE id = $2 AND wallet = $3 AND used = FALSE AND expires_at > $4
		RETURNING face_value`,
		roundID, ticketID, wallet, now).Scan(&faceValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.classifyTicket(ctx, ticketID, wallet, now)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume ticket: %w", err)
	}

	bet := &engine.Bet{
		ID:          uuid.New(),
		RoundID:     roundID,
		Wallet:      wallet,
		TicketID:    ticketID,
		StakeAmount: float64(faceValue),
		AutoCashout: autoCashout,
		Status:      engine.BetActive,
		CreatedAt:   now,
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO bets (id, round_id, wallet, ticket_id, stake_amount, auto_cashout, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id, wallet) DO NOTHING`,
		bet.ID, bet.RoundID, bet.Wallet, bet.TicketID, bet.StakeAmount, bet.AutoCashout, bet.Status, bet.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, engine.ErrDuplicateBet
	}

	// Aggregate bump doubles as the phase guard: a round that left
	// betting refuses the whole placement.
	tag, err = tx.Exec(ctx, `
		UPDATE rounds
		SET total_bet_count = total_bet_count + 1, total_wagered = total_wagered + $1
		WHERE id = $2 AND phase = 'betting'`,
		bet.StakeAmount, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to update round aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, engine.ErrNoBettingRound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bet: %w", err)
	}
	return bet, nil
}

// classifyTicket turns a failed conditional consume into its precise
// rejection reason.
func (p *Postgres) classifyTicket(ctx context.Context, ticketID uuid.UUID, wallet string, now time.Time) error {
	var owner string
	var used bool
	var expiresAt time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT wallet, used, expires_at FROM tickets WHERE id = $1`, ticketID).Scan(&owner, &used, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrTicketNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify ticket: %w", err)
	}
	switch {
	case owner != wallet:
		return engine.ErrTicketNotOwned
	case used:
		return engine.ErrTicketUsed
	case !expiresAt.After(now):
		return engine.ErrTicketExpired
	default:
		return engine.ErrTicketUsed
	}
}

func (p *Postgres) GetBet(ctx context.Context, id uuid.UUID) (*engine.Bet, error) {
	bet, err := scanBet(p.pool.QueryRow(ctx, `SELECT `+betColumns+` FROM bets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	return bet, nil
}

func (p *Postgres) ActiveAutoCashoutBets(ctx context.Context, roundID uuid.UUID) ([]*engine.Bet, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE round_id = $1 AND status = 'active' AND auto_cashout IS NOT NULL
		ORDER BY auto_cashout`, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-cashout bets: %w", err)
	}
	defer rows.Close()

	var bets []*engine.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func (p *Postgres) CashOutBet(ctx context.Context, betID uuid.UUID, wallet string, multiplier float64, now time.Time) (*engine.Bet, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	bet, err := scanBet(tx.QueryRow(ctx, `
		UPDATE bets
		SET status = 'won', cashed_out_at = $1, winnings = stake_amount * $1
		WHERE id = $2 AND wallet = $3 AND status = 'active'
		RETURNING `+betColumns, multiplier, betID, wallet))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.classifyBetConflict(ctx, betID, wallet)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cash out bet: %w", err)
	}

	// Winnings come out of the prize pool in the same transaction.
	if _, err := tx.Exec(ctx, `
		UPDATE pool
		SET current_balance = current_balance - $1, total_payouts = total_payouts + $1`,
		*bet.Winnings); err != nil {
		return nil, fmt.Errorf("failed to debit pool: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cashout: %w", err)
	}
	return bet, nil
}

func (p *Postgres) classifyBetConflict(ctx context.Context, betID uuid.UUID, wallet string) error {
	var owner string
	err := p.pool.QueryRow(ctx, `SELECT wallet FROM bets WHERE id = $1`, betID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrBetNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify bet: %w", err)
	}
	if wallet != "" && owner != wallet {
		return engine.ErrBetNotFound
	}
	return engine.ErrAlreadyProcessed
}

func (p *Postgres) SettleLost(ctx context.Context, roundID uuid.UUID) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'lost', winnings = 0
		WHERE round_id = $1 AND status = 'active'`, roundID)
	if err != nil {
		return 0, fmt.Errorf("failed to settle lost bets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

/* =========================
   CLAIMS
========================= */

func (p *Postgres) StartClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string, at time.Time) (*engine.Bet, error) {
	bet, err := scanBet(p.pool.QueryRow(ctx, `
		UPDATE bets
		SET status = 'claiming', claim_nonce = $1, claiming_started_at = $2
		WHERE id = $3 AND wallet = $4 AND status = 'won'
		RETURNING `+betColumns, nonce, at, betID, wallet))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, p.classifyBetConflict(ctx, betID, wallet)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start claim: %w", err)
	}
	return bet, nil
}

func (p *Postgres) SaveClaimTx(ctx context.Context, betID uuid.UUID, wallet, nonce, txHash string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bets
		SET claim_tx_hash = $1
		WHERE id = $2 AND wallet = $3 AND status = 'claiming' AND claim_nonce = $4`,
		txHash, betID, wallet, nonce)
	if err != nil {
		return fmt.Errorf("failed to save claim tx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.classifyClaimConflict(ctx, betID, wallet, nonce)
	}
	return nil
}

func (p *Postgres) CancelClaim(ctx context.Context, betID uuid.UUID, wallet, nonce string) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'won', claim_nonce = '', claim_tx_hash = '', claiming_started_at = NULL
		WHERE id = $1 AND wallet = $2 AND status = 'claiming' AND claim_nonce = $3 AND claim_tx_hash = ''`,
		betID, wallet, nonce)
	if err != nil {
		return fmt.Errorf("failed to cancel claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.classifyClaimConflict(ctx, betID, wallet, nonce)
	}
	return nil
}

func (p *Postgres) classifyClaimConflict(ctx context.Context, betID uuid.UUID, wallet, nonce string) error {
	var owner, status, storedNonce string
	err := p.pool.QueryRow(ctx,
		`SELECT wallet, status, claim_nonce FROM bets WHERE id = $1`, betID).Scan(&owner, &status, &storedNonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrBetNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify claim: %w", err)
	}
	if owner != wallet {
		return engine.ErrBetNotFound
	}
	if status == string(engine.BetClaiming) && storedNonce != nonce {
		return engine.ErrNonceMismatch
	}
	return engine.ErrAlreadyProcessed
}

func (p *Postgres) ResetClaim(ctx context.Context, betID uuid.UUID, nonce string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'won', claim_nonce = '', claim_tx_hash = '', claiming_started_at = NULL
		WHERE id = $1 AND status = 'claiming' AND claim_nonce = $2`,
		betID, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to reset claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) ConfirmClaim(ctx context.Context, betID uuid.UUID, nonce string, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE bets
		SET status = 'claimed', claimed_at = $1
		WHERE id = $2 AND status = 'claiming' AND claim_nonce = $3`,
		at, betID, nonce)
	if err != nil {
		return false, fmt.Errorf("failed to confirm claim: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) StaleClaims(ctx context.Context, before time.Time, limit int) ([]*engine.Bet, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE status = 'claiming' AND claiming_started_at < $1
		ORDER BY claiming_started_at
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale claims: %w", err)
	}
	defer rows.Close()

	var bets []*engine.Bet
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

/* =========================
   POOL & REVENUE
========================= */

func (p *Postgres) GetPool(ctx context.Context) (*engine.Pool, error) {
	var pool engine.Pool
	err := p.pool.QueryRow(ctx,
		`SELECT current_balance, total_deposits, total_payouts FROM pool`).Scan(
		&pool.CurrentBalance, &pool.TotalDeposits, &pool.TotalPayouts)
	if errors.Is(err, pgx.ErrNoRows) {
		return &engine.Pool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return &pool, nil
}

func (p *Postgres) AddPoolDeposit(ctx context.Context, amount float64) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE pool
		SET current_balance = current_balance + $1, total_deposits = total_deposits + $1`, amount)
	if err != nil {
		return fmt.Errorf("failed to add pool deposit: %w", err)
	}
	return nil
}

func (p *Postgres) AccrueRevenue(ctx context.Context, currency string, amount float64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO revenue (currency, pending, distributed)
		VALUES ($1, $2, 0)
		ON CONFLICT (currency) DO UPDATE SET pending = revenue.pending + $2`,
		currency, amount)
	if err != nil {
		return fmt.Errorf("failed to accrue revenue: %w", err)
	}
	return nil
}

func (p *Postgres) GetRevenues(ctx context.Context) ([]*engine.Revenue, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT currency, pending, distributed FROM revenue ORDER BY currency`)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	defer rows.Close()

	var revs []*engine.Revenue
	for rows.Next() {
		var r engine.Revenue
		if err := rows.Scan(&r.Currency, &r.Pending, &r.Distributed); err != nil {
			return nil, fmt.Errorf("failed to scan revenue: %w", err)
		}
		revs = append(revs, &r)
	}
	return revs, rows.Err()
}

func (p *Postgres) DistributeRevenue(ctx context.Context, currency string, amount float64) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE revenue
		SET pending = pending - $1, distributed = distributed + $1
		WHERE currency = $2 AND pending >= $1`, amount, currency)
	if err != nil {
		return fmt.Errorf("failed to distribute revenue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrInvalidAmount
	}
	return nil
}

/* =========================
   WALLET PNL
========================= */

func (p *Postgres) RecordPnL(ctx context.Context, wallet string, delta float64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO wallet_pnl (wallet, amount)
		VALUES ($1, $2)
		ON CONFLICT (wallet) DO UPDATE SET amount = wallet_pnl.amount + $2`,
		wallet, delta)
	if err != nil {
		return fmt.Errorf("failed to record PnL: %w", err)
	}
	return nil
}

func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]*engine.PnLEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT wallet, amount,
		       ROW_NUMBER() OVER (ORDER BY amount DESC) AS rank
		FROM wallet_pnl
		ORDER BY amount DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*engine.PnLEntry
	for rows.Next() {
		var e engine.PnLEntry
		if err := rows.Scan(&e.Wallet, &e.Amount, &e.Rank); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (p *Postgres) WalletRank(ctx context.Context, wallet string) (*engine.PnLEntry, error) {
	var e engine.PnLEntry
	err := p.pool.QueryRow(ctx, `
		SELECT wallet, amount, rank FROM (
			SELECT wallet, amount,
			       ROW_NUMBER() OVER (ORDER BY amount DESC) AS rank
			FROM wallet_pnl
		) ranked
		WHERE wallet = $1`, wallet).Scan(&e.Wallet, &e.Amount, &e.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet rank: %w", err)
	}
	return &e, nil
}

/* =========================
   AUDIT LOG
========================= */

func (p *Postgres) RecordAudit(ctx context.Context, e engine.AuditEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO audit_log (correlation_id, event, wallet, round_id, bet_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.CorrelationID, e.Event, e.Wallet, e.RoundID, e.BetID, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
