package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foldmarket/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketState(ctx context.Context, id string, volumes []float64, totalVolume float64, probabilities []float64, updatedAt time.Time) error {
	if err := s.primary.UpdateMarketState(ctx, id, volumes, totalVolume, probabilities, updatedAt); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) InsertWager(ctx context.Context, w *model.WagerRecord) error {
	if err := s.primary.InsertWager(ctx, w); err != nil {
		return err
	}
	// The ledger feeds the outcome-total aggregation.
	s.rdb.Del(ctx, totalsKey(w.MarketID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	// Cache miss: read from primary.
	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetOutcomeTotals(ctx context.Context, marketID string, numOutcomes int) ([]float64, error) {
	data, err := s.rdb.Get(ctx, totalsKey(marketID)).Bytes()
	if err == nil {
		var totals []float64
		if json.Unmarshal(data, &totals) == nil && len(totals) == numOutcomes {
			return totals, nil
		}
	}

	totals, err := s.primary.GetOutcomeTotals(ctx, marketID, numOutcomes)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(totals); err == nil {
		s.rdb.Set(ctx, totalsKey(marketID), data, s.ttl)
	}
	return totals, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) GetWagersByMarket(ctx context.Context, marketID string) ([]model.WagerRecord, error) {
	return s.primary.GetWagersByMarket(ctx, marketID)
}

func (s *CachedStore) GetWagersByUser(ctx context.Context, userID string) ([]model.WagerRecord, error) {
	return s.primary.GetWagersByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string  { return fmt.Sprintf("market:%s", id) }
func totalsKey(id string) string  { return fmt.Sprintf("totals:%s", id) }
