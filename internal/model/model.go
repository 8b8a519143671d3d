// Package model defines the core domain types shared across the market
// engine. Monetary values use shopspring/decimal — never float64 for money.
// Engine-state vectors (volumes, probabilities) are float64 because they are
// kernel inputs/outputs, not ledger amounts.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market is the persisted snapshot of one prediction market: its immutable
// configuration plus the last committed engine state.
type Market struct {
	ID          string          `json:"id" db:"id"`
	Question    string          `json:"question" db:"question"`
	NumOutcomes int             `json:"num_outcomes" db:"num_outcomes"`
	B           decimal.Decimal `json:"b" db:"b"` // LMSR liquidity parameter

	// Volumes and Probabilities mirror the in-memory cache entry; the
	// cache is authoritative while the process runs, this row is the
	// restore point.
	Volumes       []float64 `json:"volumes" db:"volumes"`
	TotalVolume   float64   `json:"total_volume" db:"total_volume"`
	Probabilities []float64 `json:"probabilities" db:"probabilities"`

	Status    string    `json:"status" db:"status"` // "open", "closed"
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WagerRecord is an immutable ledger entry for one accepted wager. Once
// created, these are never modified or deleted; the manipulation flag is
// advisory annotation, not enforcement.
type WagerRecord struct {
	ID           string          `json:"id" db:"id"`
	MarketID     string          `json:"market_id" db:"market_id"`
	UserID       string          `json:"user_id" db:"user_id"`
	OutcomeIndex int             `json:"outcome_index" db:"outcome_index"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Flagged      bool            `json:"flagged" db:"flagged"`
	RiskLevel    string          `json:"risk_level" db:"risk_level"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
