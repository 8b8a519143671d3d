package lmsr

import (
	"math"
	"testing"
)

func TestAssessRisk_UniformMarket(t *testing.T) {
	e, _ := New(100, 3)
	profile, err := e.AssessRisk([]float64{0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Uniform 3-outcome market: entropy log2(3) bits, concentration 1/3,
	// no dispersion, full liquidity risk.
	if math.Abs(profile.Entropy-math.Log2(3)) > 1e-9 {
		t.Errorf("expected entropy %f, got %f", math.Log2(3), profile.Entropy)
	}
	if math.Abs(profile.Concentration-1.0/3) > 1e-9 {
		t.Errorf("expected concentration 1/3, got %f", profile.Concentration)
	}
	if profile.ExpectedVolatility > 1e-9 {
		t.Errorf("uniform vector has zero std dev, got %f", profile.ExpectedVolatility)
	}
	if profile.LiquidityRisk != 1 {
		t.Errorf("empty market should have liquidity risk 1, got %f", profile.LiquidityRisk)
	}
}

func TestAssessRisk_ConcentrationLowersEntropy(t *testing.T) {
	e, _ := New(10, 2)

	uniform, _ := e.AssessRisk([]float64{0, 0})
	skewed, _ := e.AssessRisk([]float64{80, 10})

	if skewed.Entropy >= uniform.Entropy {
		t.Errorf("skewed market should have lower entropy: uniform=%f skewed=%f",
			uniform.Entropy, skewed.Entropy)
	}
	if skewed.Concentration <= uniform.Concentration {
		t.Errorf("skewed market should be more concentrated: uniform=%f skewed=%f",
			uniform.Concentration, skewed.Concentration)
	}
	if skewed.ExpectedVolatility <= uniform.ExpectedVolatility {
		t.Errorf("skewed market should report higher volatility: uniform=%f skewed=%f",
			uniform.ExpectedVolatility, skewed.ExpectedVolatility)
	}
}

func TestAssessRisk_LiquidityRiskFallsWithVolume(t *testing.T) {
	e, _ := New(100, 2)

	shallow, _ := e.AssessRisk([]float64{10, 10})
	deep, _ := e.AssessRisk([]float64{500, 500})

	if deep.LiquidityRisk >= shallow.LiquidityRisk {
		t.Errorf("more volume should lower liquidity risk: shallow=%f deep=%f",
			shallow.LiquidityRisk, deep.LiquidityRisk)
	}
	// b / (b + totalVolume) with b=100, volume=1000.
	if math.Abs(deep.LiquidityRisk-100.0/1100) > 1e-9 {
		t.Errorf("expected liquidity risk %f, got %f", 100.0/1100, deep.LiquidityRisk)
	}
}

func TestQuote_StraddlesPrices(t *testing.T) {
	e, _ := New(100, 2)
	volumes := []float64{60, 40}

	quote, err := e.Quote(volumes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs, _ := e.Probabilities(volumes)

	for i := range probs {
		if quote.BidPrices[i] > probs[i] {
			t.Errorf("bid %d above price: %f > %f", i, quote.BidPrices[i], probs[i])
		}
		if quote.AskPrices[i] < probs[i] {
			t.Errorf("ask %d below price: %f < %f", i, quote.AskPrices[i], probs[i])
		}
		if quote.BidPrices[i] < 0 || quote.AskPrices[i] > 1 {
			t.Errorf("quote %d out of [0,1]: bid=%f ask=%f", i, quote.BidPrices[i], quote.AskPrices[i])
		}
	}
	if quote.Spread <= 0 {
		t.Errorf("spread should be positive, got %f", quote.Spread)
	}
}

func TestQuote_SpreadTightensWithVolume(t *testing.T) {
	e, _ := New(100, 2)

	shallow, _ := e.Quote([]float64{10, 10})
	deep, _ := e.Quote([]float64{1000, 1000})

	if deep.Spread >= shallow.Spread {
		t.Errorf("deep market should quote tighter: shallow=%f deep=%f",
			shallow.Spread, deep.Spread)
	}
}

func TestQuote_RecommendedLiquidityScalesWithEntropy(t *testing.T) {
	e, _ := New(100, 2)

	uniform, _ := e.Quote([]float64{0, 0})
	skewed, _ := e.Quote([]float64{5000, 0})

	if uniform.RecommendedLiquidity <= skewed.RecommendedLiquidity {
		t.Errorf("uncertain market should get more subsidy: uniform=%f skewed=%f",
			uniform.RecommendedLiquidity, skewed.RecommendedLiquidity)
	}
	// b * (1 + entropy): the uniform 2-outcome market has 1 bit of entropy.
	if math.Abs(uniform.RecommendedLiquidity-200) > 1e-6 {
		t.Errorf("expected recommended liquidity 200 for uniform market, got %f",
			uniform.RecommendedLiquidity)
	}
}
