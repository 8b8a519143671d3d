package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/foldmarket/market-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision; engine
// state vectors are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	volumes, err := json.Marshal(m.Volumes)
	if err != nil {
		return fmt.Errorf("marshal volumes: %w", err)
	}
	probs, err := json.Marshal(m.Probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, num_outcomes, b, volumes, total_volume, probabilities, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::JSONB, $6, $7::JSONB, $8, $9, $10)`,
		m.ID, m.Question, m.NumOutcomes, m.B.String(),
		volumes, m.TotalVolume, probs,
		m.Status, m.CreatedAt, m.UpdatedAt,
	)
	return err
}

const marketColumns = `id, question, num_outcomes, b::TEXT, volumes, total_volume, probabilities, status, created_at, updated_at`

func scanMarket(row interface{ Scan(dest ...any) error }) (*model.Market, error) {
	var m model.Market
	var b string
	var volumes, probs []byte

	if err := row.Scan(&m.ID, &m.Question, &m.NumOutcomes, &b,
		&volumes, &m.TotalVolume, &probs,
		&m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.B, _ = decimal.NewFromString(b)
	if err := json.Unmarshal(volumes, &m.Volumes); err != nil {
		return nil, fmt.Errorf("unmarshal volumes: %w", err)
	}
	if err := json.Unmarshal(probs, &m.Probabilities); err != nil {
		return nil, fmt.Errorf("unmarshal probabilities: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketState(ctx context.Context, id string, volumes []float64, totalVolume float64, probabilities []float64, updatedAt time.Time) error {
	volJSON, err := json.Marshal(volumes)
	if err != nil {
		return fmt.Errorf("marshal volumes: %w", err)
	}
	probJSON, err := json.Marshal(probabilities)
	if err != nil {
		return fmt.Errorf("marshal probabilities: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE markets
		 SET volumes = $2::JSONB, total_volume = $3,
		     probabilities = $4::JSONB, updated_at = $5
		 WHERE id = $1`,
		id, volJSON, totalVolume, probJSON, updatedAt,
	)
	return err
}

func (s *PostgresStore) InsertWager(ctx context.Context, w *model.WagerRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wagers (id, market_id, user_id, outcome_index, amount, flagged, risk_level, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8)`,
		w.ID, w.MarketID, w.UserID, w.OutcomeIndex,
		w.Amount.String(), w.Flagged, w.RiskLevel, w.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetWagersByMarket(ctx context.Context, marketID string) ([]model.WagerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, user_id, outcome_index, amount::TEXT, flagged, risk_level, created_at
		 FROM wagers WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWagers(rows)
}

func (s *PostgresStore) GetWagersByUser(ctx context.Context, userID string) ([]model.WagerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, user_id, outcome_index, amount::TEXT, flagged, risk_level, created_at
		 FROM wagers WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanWagers(rows)
}

// GetOutcomeTotals aggregates the wager ledger per outcome in SQL. Indexes
// beyond the market's configured outcome count are ignored.
func (s *PostgresStore) GetOutcomeTotals(ctx context.Context, marketID string, numOutcomes int) ([]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome_index, COALESCE(SUM(amount), 0)::TEXT
		 FROM wagers
		 WHERE market_id = $1
		 GROUP BY outcome_index`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make([]float64, numOutcomes)
	for rows.Next() {
		var idx int
		var amountS string
		if err := rows.Scan(&idx, &amountS); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= numOutcomes {
			continue
		}
		amount, _ := decimal.NewFromString(amountS)
		totals[idx] = amount.InexactFloat64()
	}
	return totals, rows.Err()
}

// scanWagers reads pgx rows into WagerRecord slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanWagers(rows pgxRows) ([]model.WagerRecord, error) {
	var wagers []model.WagerRecord
	for rows.Next() {
		var w model.WagerRecord
		var amountS string

		if err := rows.Scan(&w.ID, &w.MarketID, &w.UserID, &w.OutcomeIndex,
			&amountS, &w.Flagged, &w.RiskLevel, &w.CreatedAt); err != nil {
			return nil, err
		}

		w.Amount, _ = decimal.NewFromString(amountS)
		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}
