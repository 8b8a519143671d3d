// Package lmsr implements the Logarithmic Market Scoring Rule (LMSR)
// pricing kernel for multi-outcome prediction markets.
//
// The LMSR was proposed by Robin Hanson and provides:
//   - Bounded loss for the market maker (capped at b * ln(n))
//   - Continuous pricing with infinite liquidity
//   - A softmax-like mapping from staked volume to outcome probability
//
// The kernel is pure and stateless: every operation takes the per-outcome
// volume vector as an argument and performs no I/O, so it is safe to call
// concurrently without synchronization. Transcendental math uses float64
// with explicit scaling to keep exp() arguments in a safe range; monetary
// values never enter this package — callers convert at the boundary.
//
// Reference: Hanson, R. (2003) "Combinatorial Information Market Design"
package lmsr

import (
	"errors"
	"math"
)

var (
	// ErrInvalidLiquidity is returned when b <= 0.
	ErrInvalidLiquidity = errors.New("lmsr: liquidity parameter b must be positive")

	// ErrTooFewOutcomes is returned when a market has fewer than two outcomes.
	ErrTooFewOutcomes = errors.New("lmsr: market needs at least two outcomes")

	// ErrVectorLength is returned when an input vector does not match the
	// engine's configured outcome count.
	ErrVectorLength = errors.New("lmsr: vector length does not match outcome count")

	// ErrNegativeVolume is returned when any outcome volume is negative.
	ErrNegativeVolume = errors.New("lmsr: outcome volumes must be non-negative")

	// ErrIndexOutOfRange is returned when an outcome index is not valid for
	// the market. Callers must treat this as "no price available".
	ErrIndexOutOfRange = errors.New("lmsr: outcome index out of range")

	// ErrInvalidShareAmount is returned when a cost query has a non-positive
	// share amount.
	ErrInvalidShareAmount = errors.New("lmsr: share amount must be positive")

	// ErrInvalidLearningRate is returned when the learning rate is negative.
	ErrInvalidLearningRate = errors.New("lmsr: learning rate must be non-negative")

	// ErrNumericInstability is returned when a NaN or infinite value survives
	// the scaling safeguards. Should not occur; detected defensively and
	// surfaced rather than propagated.
	ErrNumericInstability = errors.New("lmsr: non-finite value in probability calculation")
)

var (
	// MinProbability is the probability floor. Prevents a single outcome
	// from reaching exact certainty, which would make the market unable to
	// price further trades.
	MinProbability = 0.01

	// MaxProbability is the probability ceiling, the complement of the floor.
	MaxProbability = 0.99
)

const (
	// DefaultLearningRate scales the incremental log-score adjustment
	// applied after a wager. Tunable hyper-parameter; 0 disables the
	// adjustment and restores pure volume-based (path-independent) pricing.
	DefaultLearningRate = 0.1

	// logScoreEpsilon floors probabilities inside the log score so the
	// adjustment never reaches -Inf.
	logScoreEpsilon = 1e-4
)

// Engine is the per-market LMSR kernel. It holds only the immutable market
// configuration; outcome volumes are passed as arguments, not stored.
type Engine struct {
	b            float64
	outcomes     int
	learningRate float64
}

// New creates an LMSR engine for a market with the given liquidity parameter
// b and outcome count. Higher b → deeper market, less price movement per
// unit of volume. The learning rate defaults to DefaultLearningRate.
func New(b float64, outcomes int) (*Engine, error) {
	return NewWithLearningRate(b, outcomes, DefaultLearningRate)
}

// NewWithLearningRate creates an engine with an explicit learning rate for
// the incremental adjustment. Pass 0 for pure path-independent LMSR pricing.
func NewWithLearningRate(b float64, outcomes int, learningRate float64) (*Engine, error) {
	if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return nil, ErrInvalidLiquidity
	}
	if outcomes < 2 {
		return nil, ErrTooFewOutcomes
	}
	if learningRate < 0 || math.IsNaN(learningRate) {
		return nil, ErrInvalidLearningRate
	}
	return &Engine{b: b, outcomes: outcomes, learningRate: learningRate}, nil
}

// B returns the liquidity parameter.
func (e *Engine) B() float64 { return e.b }

// Outcomes returns the configured outcome count.
func (e *Engine) Outcomes() int { return e.outcomes }

// LearningRate returns the incremental-adjustment learning rate.
func (e *Engine) LearningRate() float64 { return e.learningRate }

// checkVolumes validates a volume vector against the engine configuration.
func (e *Engine) checkVolumes(volumes []float64) error {
	if len(volumes) != e.outcomes {
		return ErrVectorLength
	}
	for _, v := range volumes {
		if v < 0 || math.IsNaN(v) {
			return ErrNegativeVolume
		}
	}
	return nil
}

// rawProbabilities computes the normalized softmax vector before the clamp
// band is applied.
//
// Each outcome receives an equal share of the liquidity parameter (b / n)
// so a brand-new market prices uniformly instead of dividing by zero. The
// exponent argument is divided by scaleFactor = max(adjusted)/10, floored
// at 1 — a log-sum-exp style stabilization that keeps exp() in a safe range
// for markets with large volumes.
func (e *Engine) rawProbabilities(volumes []float64) ([]float64, error) {
	initial := e.b / float64(e.outcomes)

	adjusted := make([]float64, e.outcomes)
	maxAdjusted := 0.0
	for i, v := range volumes {
		adjusted[i] = v + initial
		if adjusted[i] > maxAdjusted {
			maxAdjusted = adjusted[i]
		}
	}

	scale := maxAdjusted / 10
	if scale < 1 {
		scale = 1
	}

	probs := make([]float64, e.outcomes)
	var sum float64
	for i, a := range adjusted {
		probs[i] = math.Exp(a / scale)
		sum += probs[i]
	}
	if sum <= 0 || !isFinite(sum) {
		return nil, ErrNumericInstability
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// Probabilities maps the per-outcome volume vector to a normalized
// probability vector. Every entry is clamped to
// [MinProbability, MaxProbability] and the vector is renormalized, so no
// outcome ever prices at exact certainty.
func (e *Engine) Probabilities(volumes []float64) ([]float64, error) {
	if err := e.checkVolumes(volumes); err != nil {
		return nil, err
	}
	probs, err := e.rawProbabilities(volumes)
	if err != nil {
		return nil, err
	}
	return e.clampAndNormalize(probs)
}

// ProbabilitiesAfterWager computes probabilities with the incremental
// log-score adjustment applied for a wager on outcomeIndex. lastProbs is
// the previously computed vector for this market; pass nil to skip the
// adjustment.
//
// The adjustment multiplies each volume-based probability by
// (1 + learningRate * score), where score is ln(max(p, ε)) on the wagered
// outcome and ln(max(1-p, ε)) on the rest, with p the last probability of
// the wagered outcome. This makes pricing mildly path-dependent: the order
// of wagers affects the final vector.
func (e *Engine) ProbabilitiesAfterWager(volumes, lastProbs []float64, outcomeIndex int) ([]float64, error) {
	if outcomeIndex < 0 || outcomeIndex >= e.outcomes {
		return nil, ErrIndexOutOfRange
	}
	if err := e.checkVolumes(volumes); err != nil {
		return nil, err
	}
	probs, err := e.rawProbabilities(volumes)
	if err != nil {
		return nil, err
	}

	if e.learningRate > 0 && lastProbs != nil {
		if len(lastProbs) != e.outcomes {
			return nil, ErrVectorLength
		}
		p := lastProbs[outcomeIndex]
		winScore := math.Log(math.Max(p, logScoreEpsilon))
		loseScore := math.Log(math.Max(1-p, logScoreEpsilon))

		for i := range probs {
			score := loseScore
			if i == outcomeIndex {
				score = winScore
			}
			probs[i] *= 1 + e.learningRate*score
			if probs[i] < 0 {
				probs[i] = 0
			}
		}
	}

	return e.clampAndNormalize(probs)
}

// clampAndNormalize applies the clamp band and renormalizes to sum 1.
func (e *Engine) clampAndNormalize(probs []float64) ([]float64, error) {
	var sum float64
	for i, p := range probs {
		if p < MinProbability {
			p = MinProbability
		}
		if p > MaxProbability {
			p = MaxProbability
		}
		probs[i] = p
		sum += p
	}
	if sum <= 0 || !isFinite(sum) {
		return nil, ErrNumericInstability
	}
	for i := range probs {
		probs[i] /= sum
		if !isFinite(probs[i]) {
			return nil, ErrNumericInstability
		}
	}
	return probs, nil
}

// Price returns the instantaneous price (probability) of one outcome.
func (e *Engine) Price(volumes []float64, outcomeIndex int) (float64, error) {
	if outcomeIndex < 0 || outcomeIndex >= e.outcomes {
		return 0, ErrIndexOutOfRange
	}
	probs, err := e.Probabilities(volumes)
	if err != nil {
		return 0, err
	}
	return probs[outcomeIndex], nil
}

// Cost estimates the cost of buying shareAmount additional stake on
// outcomeIndex: shareAmount divided by the average of the probabilities
// before and after the hypothetical trade.
//
// This is an approximation of the exact LMSR integral cost, kept for
// compatibility with the pricing behavior callers already observe. The
// closed form is available as ExactTradeCost.
func (e *Engine) Cost(volumes []float64, outcomeIndex int, shareAmount float64) (float64, error) {
	if outcomeIndex < 0 || outcomeIndex >= e.outcomes {
		return 0, ErrIndexOutOfRange
	}
	if shareAmount <= 0 || math.IsNaN(shareAmount) || math.IsInf(shareAmount, 0) {
		return 0, ErrInvalidShareAmount
	}

	current, err := e.Probabilities(volumes)
	if err != nil {
		return 0, err
	}

	next := make([]float64, len(volumes))
	copy(next, volumes)
	next[outcomeIndex] += shareAmount

	after, err := e.Probabilities(next)
	if err != nil {
		return 0, err
	}

	avg := (current[outcomeIndex] + after[outcomeIndex]) / 2
	cost := shareAmount / avg
	if !isFinite(cost) {
		return 0, ErrNumericInstability
	}
	return cost, nil
}

// ExactTradeCost computes the closed-form LMSR trade cost
//
//	C(q + Δ) - C(q), with C(q) = b * ln(Σ exp(q_i / b))
//
// over the raw volume vector, using logSumExp for stability.
func (e *Engine) ExactTradeCost(volumes []float64, outcomeIndex int, shareAmount float64) (float64, error) {
	if outcomeIndex < 0 || outcomeIndex >= e.outcomes {
		return 0, ErrIndexOutOfRange
	}
	if shareAmount <= 0 || math.IsNaN(shareAmount) || math.IsInf(shareAmount, 0) {
		return 0, ErrInvalidShareAmount
	}
	if err := e.checkVolumes(volumes); err != nil {
		return 0, err
	}

	next := make([]float64, len(volumes))
	copy(next, volumes)
	next[outcomeIndex] += shareAmount

	cost := e.costFunction(next) - e.costFunction(volumes)
	if !isFinite(cost) {
		return 0, ErrNumericInstability
	}
	return cost, nil
}

// costFunction evaluates C(q) = b * ln(Σ exp(q_i / b)).
func (e *Engine) costFunction(volumes []float64) float64 {
	scaled := make([]float64, len(volumes))
	for i, v := range volumes {
		scaled[i] = v / e.b
	}
	return e.b * logSumExp(scaled)
}

// WorstCaseLoss returns the maximum possible market-maker loss: b * ln(n).
func (e *Engine) WorstCaseLoss() float64 {
	return e.b * math.Log(float64(e.outcomes))
}

// logSumExp computes ln(Σ exp(x_i)) using the log-sum-exp trick to prevent
// floating-point overflow. Without the trick, exp(x) overflows float64 when
// x > ~709.
//
// Algorithm: LSE(x) = max(x) + ln(Σ exp(x_i - max(x)))
// Since (x_i - max(x)) <= 0, all exp arguments are in [0, 1].
func logSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}

	maxVal := xs[0]
	for _, x := range xs[1:] {
		if x > maxVal {
			maxVal = x
		}
	}

	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}

	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
