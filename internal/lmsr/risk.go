package lmsr

import "math"

// RiskProfile summarizes the dispersion and depth of a market's current
// probability vector.
type RiskProfile struct {
	// Probabilities is the clamped, normalized outcome vector.
	Probabilities []float64 `json:"probabilities"`

	// Entropy is the Shannon entropy of the vector in bits: maximal
	// (log2 n) when uniform, approaching zero as one outcome dominates.
	Entropy float64 `json:"entropy"`

	// Concentration is the maximum single-outcome probability.
	Concentration float64 `json:"concentration"`

	// ExpectedVolatility is the standard deviation of the probability
	// vector; more concentrated markets report higher volatility.
	ExpectedVolatility float64 `json:"expected_volatility"`

	// LiquidityRisk is b / (b + totalVolume): 1 for an empty market,
	// strictly decreasing as volume accumulates relative to b.
	LiquidityRisk float64 `json:"liquidity_risk"`
}

// AssessRisk computes the risk profile for the given volume vector.
func (e *Engine) AssessRisk(volumes []float64) (*RiskProfile, error) {
	probs, err := e.Probabilities(volumes)
	if err != nil {
		return nil, err
	}

	var totalVolume float64
	for _, v := range volumes {
		totalVolume += v
	}

	return &RiskProfile{
		Probabilities:      probs,
		Entropy:            entropyBits(probs),
		Concentration:      maxProb(probs),
		ExpectedVolatility: stdDev(probs),
		LiquidityRisk:      e.b / (e.b + totalVolume),
	}, nil
}

// entropyBits returns -Σ p*log2(p) over entries with p > 0.
func entropyBits(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h
}

func maxProb(probs []float64) float64 {
	m := probs[0]
	for _, p := range probs[1:] {
		if p > m {
			m = p
		}
	}
	return m
}

// stdDev returns the population standard deviation of the vector.
func stdDev(xs []float64) float64 {
	n := float64(len(xs))
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= n

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	return math.Sqrt(variance / n)
}
