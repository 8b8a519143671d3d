// Package market maintains per-market incremental LMSR state: running
// outcome volumes under continuous time decay, the last computed probability
// vector, and a bounded log of recent wagers for manipulation heuristics.
//
// One Store owns all MarketState entries, keyed by market id. Each entry is
// guarded by its own mutex so the decay → heuristics → accumulate →
// recompute sequence is atomic per market, while different markets proceed
// fully in parallel.
package market

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/foldmarket/market-engine/internal/lmsr"
	"github.com/foldmarket/market-engine/internal/safety"
)

var (
	// ErrInvalidAmount is returned when a wager amount is not a positive
	// finite number.
	ErrInvalidAmount = errors.New("market: wager amount must be positive")

	// ErrUnknownMarket is returned by Lookup-style operations when no state
	// exists for a market id.
	ErrUnknownMarket = errors.New("market: no state for market id")

	// ErrSnapshotShape is returned when a restored snapshot does not match
	// the market's configured outcome count.
	ErrSnapshotShape = errors.New("market: snapshot does not match outcome count")
)

const (
	// DefaultDecayFactor is the per-minute multiplicative discount applied
	// to accumulated volumes. Without decay an early whale bet would
	// permanently dominate pricing.
	DefaultDecayFactor = 0.95

	// DefaultMaxRecentBets bounds the per-market wager log (FIFO eviction).
	DefaultMaxRecentBets = 1000
)

// Config tunes the cache. Zero values are replaced with defaults; a
// LearningRate of exactly 0 is meaningful (pure path-independent pricing)
// and is preserved when DisableLearning is set.
type Config struct {
	DecayFactor     float64
	LearningRate    float64
	DisableLearning bool
	MaxRecentBets   int
	Thresholds      safety.Thresholds
}

// DefaultConfig returns the stock cache configuration.
func DefaultConfig() Config {
	return Config{
		DecayFactor:   DefaultDecayFactor,
		LearningRate:  lmsr.DefaultLearningRate,
		MaxRecentBets: DefaultMaxRecentBets,
		Thresholds:    safety.DefaultThresholds(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = def.DecayFactor
	}
	if c.LearningRate <= 0 && !c.DisableLearning {
		c.LearningRate = def.LearningRate
	}
	if c.DisableLearning {
		c.LearningRate = 0
	}
	if c.MaxRecentBets <= 0 {
		c.MaxRecentBets = def.MaxRecentBets
	}
	return c
}

// Bet is a transient wager input. Amounts are plain numbers here; monetary
// types stay at the API/persistence boundary.
type Bet struct {
	OutcomeIndex int
	Amount       float64
}

// ConfidenceMetrics describes the dispersion of the probability vector.
// The interval is mean ± 1.96 * variance, a simplified, non-standard
// interval that downstream consumers already depend on.
type ConfidenceMetrics struct {
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"std_dev"`
	IntervalLow  float64 `json:"interval_low"`
	IntervalHigh float64 `json:"interval_high"`
}

// Result is returned from RecordWager.
type Result struct {
	Probabilities []float64
	Confidence    ConfidenceMetrics
	Flagged       bool
	FlagReasons   []string
	RiskLevel     safety.RiskLevel
	TotalVolume   float64
}

// Snapshot is the persistable portion of a market's state.
type Snapshot struct {
	Volumes       []float64
	TotalVolume   float64
	Probabilities []float64
	UpdatedAt     time.Time
}

// Store owns all market states. Never a package-level singleton — the
// application constructs one and passes it where needed.
type Store struct {
	mu       sync.RWMutex
	cfg      Config
	assessor *safety.Assessor
	entries  map[string]*MarketState
}

// NewStore creates an empty state store.
func NewStore(cfg Config) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		cfg:      cfg,
		assessor: safety.NewAssessor(cfg.Thresholds),
		entries:  make(map[string]*MarketState),
	}
}

// Acquire returns the state for marketID, creating it on first use with
// zero volumes and a uniform probability vector. The second return reports
// whether the entry was created by this call.
func (s *Store) Acquire(marketID string, b float64, outcomes int) (*MarketState, bool, error) {
	s.mu.RLock()
	st, ok := s.entries[marketID]
	s.mu.RUnlock()
	if ok {
		return st, false, nil
	}

	eng, err := lmsr.NewWithLearningRate(b, outcomes, s.cfg.LearningRate)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.entries[marketID]; ok {
		return st, false, nil
	}

	uniform := make([]float64, outcomes)
	for i := range uniform {
		uniform[i] = 1 / float64(outcomes)
	}
	st = &MarketState{
		cfg:       s.cfg,
		assessor:  s.assessor,
		eng:       eng,
		volumes:   make([]float64, outcomes),
		lastProbs: uniform,
	}
	s.entries[marketID] = st
	return st, true, nil
}

// Lookup returns existing state without creating it.
func (s *Store) Lookup(marketID string) (*MarketState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.entries[marketID]
	return st, ok
}

// Len reports the number of tracked markets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MarketState is the mutable per-market entry. All mutation goes through
// RecordWager under the entry mutex.
type MarketState struct {
	mu        sync.Mutex
	cfg       Config
	assessor  *safety.Assessor
	eng       *lmsr.Engine

	volumes     []float64
	totalVolume float64
	lastProbs   []float64
	lastUpdate  time.Time
	recentBets  []safety.BetEvent
}

// RecordWager folds one wager into the market state:
//
//  1. decay existing volumes by decayFactor^elapsedMinutes
//  2. run manipulation heuristics against the pre-update state (advisory)
//  3. accumulate the wager and append it to the bounded log
//  4. recompute probabilities through the kernel
//
// The sequence is atomic with respect to concurrent callers on the same
// market. State is committed only if the kernel succeeds, so a failed call
// leaves the entry untouched (all-or-nothing). Out-of-order timestamps are
// clamped: negative elapsed time never produces a decay multiplier above 1.
func (m *MarketState) RecordWager(bet Bet, now time.Time) (*Result, error) {
	if bet.OutcomeIndex < 0 || bet.OutcomeIndex >= m.eng.Outcomes() {
		return nil, lmsr.ErrIndexOutOfRange
	}
	if bet.Amount <= 0 || math.IsNaN(bet.Amount) || math.IsInf(bet.Amount, 0) {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	decay := m.decayMultiplier(now)
	decayed := make([]float64, len(m.volumes))
	for i, v := range m.volumes {
		decayed[i] = v * decay
	}
	decayedTotal := m.totalVolume * decay

	assessment := m.assessor.Assess(bet.Amount, decayedTotal, m.recentBets, now)

	decayed[bet.OutcomeIndex] += bet.Amount
	newTotal := decayedTotal + bet.Amount

	probs, err := m.eng.ProbabilitiesAfterWager(decayed, m.lastProbs, bet.OutcomeIndex)
	if err != nil {
		return nil, err
	}

	// Commit.
	m.volumes = decayed
	m.totalVolume = newTotal
	m.lastProbs = probs
	m.lastUpdate = now
	m.recentBets = append(m.recentBets, safety.BetEvent{
		OutcomeIndex: bet.OutcomeIndex,
		Amount:       bet.Amount,
		Timestamp:    now,
	})
	if excess := len(m.recentBets) - m.cfg.MaxRecentBets; excess > 0 {
		m.recentBets = append(m.recentBets[:0], m.recentBets[excess:]...)
	}

	out := make([]float64, len(probs))
	copy(out, probs)
	return &Result{
		Probabilities: out,
		Confidence:    confidence(probs),
		Flagged:       assessment.Flagged,
		FlagReasons:   assessment.Reasons,
		RiskLevel:     assessment.Level,
		TotalVolume:   newTotal,
	}, nil
}

// decayMultiplier returns decayFactor^elapsedMinutes clamped to [0, 1].
// Zero elapsed time yields exactly 1 (no decay between same-timestamp
// wagers); the first wager on a fresh entry skips decay entirely.
func (m *MarketState) decayMultiplier(now time.Time) float64 {
	if m.lastUpdate.IsZero() {
		return 1
	}
	elapsed := now.Sub(m.lastUpdate)
	if elapsed <= 0 {
		return 1
	}
	decay := math.Pow(m.cfg.DecayFactor, elapsed.Minutes())
	if math.IsNaN(decay) || decay < 0 {
		return 0
	}
	if decay > 1 {
		return 1
	}
	return decay
}

// Probabilities returns a copy of the last computed vector.
func (m *MarketState) Probabilities() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.lastProbs))
	copy(out, m.lastProbs)
	return out
}

// Snapshot returns a copy of the persistable state.
func (m *MarketState) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	vols := make([]float64, len(m.volumes))
	copy(vols, m.volumes)
	probs := make([]float64, len(m.lastProbs))
	copy(probs, m.lastProbs)

	return Snapshot{
		Volumes:       vols,
		TotalVolume:   m.totalVolume,
		Probabilities: probs,
		UpdatedAt:     m.lastUpdate,
	}
}

// Restore loads a persisted snapshot into the entry. Used at startup when
// the outer layer rebuilds the cache from storage; the recent-bet log is
// not persisted and restarts empty.
func (m *MarketState) Restore(snap Snapshot) error {
	if len(snap.Volumes) != m.eng.Outcomes() {
		return ErrSnapshotShape
	}
	for _, v := range snap.Volumes {
		if v < 0 || math.IsNaN(v) {
			return ErrSnapshotShape
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.volumes = append(m.volumes[:0], snap.Volumes...)
	m.totalVolume = snap.TotalVolume
	if len(snap.Probabilities) == m.eng.Outcomes() {
		m.lastProbs = append(m.lastProbs[:0], snap.Probabilities...)
	}
	m.lastUpdate = snap.UpdatedAt
	return nil
}

// confidence derives summary statistics from the probability vector.
// Note the interval uses variance, not standard deviation.
func confidence(probs []float64) ConfidenceMetrics {
	n := float64(len(probs))
	var mean float64
	for _, p := range probs {
		mean += p
	}
	mean /= n

	var variance float64
	for _, p := range probs {
		d := p - mean
		variance += d * d
	}
	variance /= n

	return ConfidenceMetrics{
		Mean:         mean,
		StdDev:       math.Sqrt(variance),
		IntervalLow:  mean - 1.96*variance,
		IntervalHigh: mean + 1.96*variance,
	}
}
