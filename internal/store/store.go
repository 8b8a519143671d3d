// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"time"

	"github.com/foldmarket/market-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The engine core never touches
// this — only the HTTP service and startup restore path do.
type Store interface {
	// --- Market snapshots ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarketState commits the post-wager engine state.
	UpdateMarketState(ctx context.Context, id string, volumes []float64, totalVolume float64, probabilities []float64, updatedAt time.Time) error

	// --- Immutable wager ledger ---

	// InsertWager appends an immutable wager record.
	InsertWager(ctx context.Context, wager *model.WagerRecord) error

	// GetWagersByMarket returns all wagers for a market, oldest first.
	GetWagersByMarket(ctx context.Context, marketID string) ([]model.WagerRecord, error)

	// GetWagersByUser returns all wagers placed by a user, oldest first.
	GetWagersByUser(ctx context.Context, userID string) ([]model.WagerRecord, error)

	// GetOutcomeTotals sums ledger amounts per outcome for the stateless
	// pricing endpoints (undecayed history-derived volumes).
	GetOutcomeTotals(ctx context.Context, marketID string, numOutcomes int) ([]float64, error)
}
