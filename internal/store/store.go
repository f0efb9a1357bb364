// Package store persists rounds, intent refs, and matches to PostgreSQL
// for audit and replay.
package store

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shadowpool/shadowpool/internal/domain"
	"github.com/shadowpool/shadowpool/internal/matching"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema creates the tables this package depends on, if absent.
func (s *Store) InitSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS intent_refs (
	round_id      BYTEA NOT NULL,
	position      BIGINT NOT NULL,
	trader        BYTEA NOT NULL,
	handle        BYTEA NOT NULL,
	commitment    BYTEA NOT NULL,
	intent_id     BYTEA NOT NULL,
	ts            BIGINT NOT NULL,
	PRIMARY KEY (round_id, handle)
);

CREATE TABLE IF NOT EXISTS round_roots (
	round_id      BYTEA PRIMARY KEY,
	root          BYTEA NOT NULL,
	valid_until   BIGINT NOT NULL,
	matcher       BYTEA NOT NULL,
	round_closed  BOOLEAN NOT NULL,
	root_locked   BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
	round_id        BYTEA NOT NULL,
	match_id        TEXT NOT NULL,
	match_id_hash   BYTEA NOT NULL,
	trader          BYTEA NOT NULL,
	counterparty    BYTEA NOT NULL,
	token_in        BYTEA NOT NULL,
	token_out       BYTEA NOT NULL,
	amount_in       NUMERIC NOT NULL,
	min_amount_out  NUMERIC NOT NULL,
	expiry          BIGINT NOT NULL,
	leaf            BYTEA NOT NULL,
	PRIMARY KEY (round_id, match_id)
);
`
	_, err := s.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// SaveIntentRef persists a registered intent ref.
func (s *Store) SaveIntentRef(ctx context.Context, roundID domain.Hash, ref domain.IntentRef) error {
	const q = `
INSERT INTO intent_refs (round_id, position, trader, handle, commitment, intent_id, ts)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (round_id, handle) DO NOTHING
`
	_, err := s.pool.Exec(ctx, q,
		roundID.Bytes(), ref.Position, ref.Trader.Bytes(), ref.ProtectedDataHandle.Bytes(),
		ref.Commitment.Bytes(), ref.IntentID.Bytes(), ref.Timestamp)
	if err != nil {
		return fmt.Errorf("store: save intent ref: %w", err)
	}
	return nil
}

// SaveRoundRoot upserts a round's root registry snapshot.
func (s *Store) SaveRoundRoot(ctx context.Context, roundID domain.Hash, r domain.RoundRoot) error {
	const q = `
INSERT INTO round_roots (round_id, root, valid_until, matcher, round_closed, root_locked)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (round_id) DO UPDATE SET
	root = EXCLUDED.root,
	valid_until = EXCLUDED.valid_until,
	matcher = EXCLUDED.matcher,
	round_closed = EXCLUDED.round_closed,
	root_locked = EXCLUDED.root_locked
`
	_, err := s.pool.Exec(ctx, q,
		roundID.Bytes(), r.Root.Bytes(), r.ValidUntil, r.Matcher.Bytes(), r.RoundClosed, r.RootLocked)
	if err != nil {
		return fmt.Errorf("store: save round root: %w", err)
	}
	return nil
}

// SaveMatches persists every match emitted for a round inside one
// transaction.
func (s *Store) SaveMatches(ctx context.Context, result matching.Result) error {
	if len(result.Matches) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
INSERT INTO matches (round_id, match_id, match_id_hash, trader, counterparty, token_in, token_out, amount_in, min_amount_out, expiry, leaf)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (round_id, match_id) DO NOTHING
`
	for _, m := range result.Matches {
		_, err := tx.Exec(ctx, q,
			m.RoundID.Bytes(), m.MatchID, m.MatchIDHash.Bytes(), m.Trader.Bytes(), m.Counterparty.Bytes(),
			m.TokenIn.Bytes(), m.TokenOut.Bytes(), decimalString(m.AmountIn), decimalString(m.MinAmountOut),
			m.Expiry, m.Leaf.Bytes())
		if err != nil {
			return fmt.Errorf("store: insert match %s: %w", m.MatchID, err)
		}
	}

	return tx.Commit(ctx)
}

func decimalString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
