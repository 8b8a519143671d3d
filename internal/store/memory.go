package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foldmarket/market-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	markets map[string]*model.Market
	wagers  []model.WagerRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets: make(map[string]*model.Market),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}

	s.markets[m.ID] = copyMarket(m)
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s not found", id)
	}
	return copyMarket(m), nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *copyMarket(m))
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarketState(_ context.Context, id string, volumes []float64, totalVolume float64, probabilities []float64, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %s not found", id)
	}
	m.Volumes = append([]float64(nil), volumes...)
	m.TotalVolume = totalVolume
	m.Probabilities = append([]float64(nil), probabilities...)
	m.UpdatedAt = updatedAt
	return nil
}

func (s *MemoryStore) InsertWager(_ context.Context, w *model.WagerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wagers = append(s.wagers, *w)
	return nil
}

func (s *MemoryStore) GetWagersByMarket(_ context.Context, marketID string) ([]model.WagerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WagerRecord
	for _, w := range s.wagers {
		if w.MarketID == marketID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetWagersByUser(_ context.Context, userID string) ([]model.WagerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WagerRecord
	for _, w := range s.wagers {
		if w.UserID == userID {
			result = append(result, w)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetOutcomeTotals(_ context.Context, marketID string, numOutcomes int) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make([]float64, numOutcomes)
	for _, w := range s.wagers {
		if w.MarketID != marketID {
			continue
		}
		if w.OutcomeIndex < 0 || w.OutcomeIndex >= numOutcomes {
			continue
		}
		totals[w.OutcomeIndex] += w.Amount.InexactFloat64()
	}
	return totals, nil
}

// copyMarket clones a market including its state vectors, so callers never
// alias internal storage.
func copyMarket(m *model.Market) *model.Market {
	out := *m
	out.Volumes = append([]float64(nil), m.Volumes...)
	out.Probabilities = append([]float64(nil), m.Probabilities...)
	return &out
}
