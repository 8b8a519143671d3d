package lmsr

import "math"

// BaseHalfSpread is the widest half-spread quoted for a fully concentrated,
// zero-volume market. The effective half-spread scales down from here.
var BaseHalfSpread = 0.05

// MarketQuote is an advisory bid/ask ladder for an external market-making
// policy. Nothing here is an authoritative trade.
type MarketQuote struct {
	BidPrices []float64 `json:"bid_prices"`
	AskPrices []float64 `json:"ask_prices"`

	// Spread is the mean ask-bid gap across outcomes.
	Spread float64 `json:"spread"`

	// RecommendedLiquidity is a suggested b adjustment: b * (1 + entropy),
	// so uncertain markets get deeper subsidy.
	RecommendedLiquidity float64 `json:"recommended_liquidity"`
}

// Quote derives per-outcome bid/ask pairs straddling the current prices.
//
// The half-spread widens with concentration (one-sided markets are riskier
// to quote) and tightens as volume grows relative to b (deep markets quote
// tighter):
//
//	half = BaseHalfSpread * concentration / (1 + totalVolume/b)
func (e *Engine) Quote(volumes []float64) (*MarketQuote, error) {
	probs, err := e.Probabilities(volumes)
	if err != nil {
		return nil, err
	}

	var totalVolume float64
	for _, v := range volumes {
		totalVolume += v
	}

	concentration := maxProb(probs)
	half := BaseHalfSpread * concentration / (1 + totalVolume/e.b)

	bids := make([]float64, len(probs))
	asks := make([]float64, len(probs))
	var spreadSum float64
	for i, p := range probs {
		bids[i] = math.Max(p-half, 0)
		asks[i] = math.Min(p+half, 1)
		spreadSum += asks[i] - bids[i]
	}

	return &MarketQuote{
		BidPrices:            bids,
		AskPrices:            asks,
		Spread:               spreadSum / float64(len(probs)),
		RecommendedLiquidity: e.b * (1 + entropyBits(probs)),
	}, nil
}
