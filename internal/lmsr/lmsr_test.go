package lmsr

import (
	"math"
	"testing"
)

// --- Constructor tests ---

func TestNew_Valid(t *testing.T) {
	e, err := New(100, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.B() != 100 {
		t.Errorf("expected b=100, got %f", e.B())
	}
	if e.Outcomes() != 2 {
		t.Errorf("expected 2 outcomes, got %d", e.Outcomes())
	}
	if e.LearningRate() != DefaultLearningRate {
		t.Errorf("expected default learning rate, got %f", e.LearningRate())
	}
}

func TestNew_ZeroB(t *testing.T) {
	_, err := New(0, 2)
	if err != ErrInvalidLiquidity {
		t.Errorf("expected ErrInvalidLiquidity for b=0, got %v", err)
	}
}

func TestNew_NegativeB(t *testing.T) {
	_, err := New(-50, 2)
	if err != ErrInvalidLiquidity {
		t.Errorf("expected ErrInvalidLiquidity for b=-50, got %v", err)
	}
}

func TestNew_SingleOutcome(t *testing.T) {
	_, err := New(100, 1)
	if err != ErrTooFewOutcomes {
		t.Errorf("expected ErrTooFewOutcomes for 1 outcome, got %v", err)
	}
}

func TestNewWithLearningRate_Negative(t *testing.T) {
	_, err := NewWithLearningRate(100, 2, -0.1)
	if err != ErrInvalidLearningRate {
		t.Errorf("expected ErrInvalidLearningRate, got %v", err)
	}
}

// --- Probability tests ---

func TestProbabilities_ColdMarketIsUniform(t *testing.T) {
	e, _ := New(10, 2)
	probs, err := e.Probabilities([]float64{0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(probs[0]-0.5) > 1e-9 || math.Abs(probs[1]-0.5) > 1e-9 {
		t.Errorf("cold market should price 50/50, got %v", probs)
	}
}

func TestProbabilities_SumToOne(t *testing.T) {
	e, _ := New(100, 3)

	tests := [][]float64{
		{0, 0, 0},
		{10, 0, 0},
		{50, 30, 0},
		{100, 200, 300},
		{1e6, 1, 1},
	}
	for _, volumes := range tests {
		probs, err := e.Probabilities(volumes)
		if err != nil {
			t.Fatalf("unexpected error for %v: %v", volumes, err)
		}
		var sum float64
		for _, p := range probs {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("probabilities should sum to 1: volumes=%v sum=%.12f", volumes, sum)
		}
	}
}

func TestProbabilities_MoreVolumeHigherProbability(t *testing.T) {
	e, _ := New(10, 2)
	probs, err := e.Probabilities([]float64{50, 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if probs[0] <= probs[1] {
		t.Errorf("outcome with more volume should price higher, got %v", probs)
	}
}

func TestProbabilities_Monotonicity(t *testing.T) {
	e, _ := New(100, 2)
	before, _ := e.Probabilities([]float64{20, 20})
	after, _ := e.Probabilities([]float64{30, 20})
	if after[0] <= before[0] {
		t.Errorf("adding volume to outcome 0 should raise its probability: before=%f after=%f",
			before[0], after[0])
	}
	if after[1] >= before[1] {
		t.Errorf("other outcome should fall: before=%f after=%f", before[1], after[1])
	}
}

func TestProbabilities_ClampedUnderExtremeVolume(t *testing.T) {
	e, _ := New(100, 2)
	probs, err := e.Probabilities([]float64{1e9, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, p := range probs {
		if p <= 0 || p >= 1 {
			t.Errorf("probability %d out of (0,1): %f", i, p)
		}
	}
	// After renormalization the dominated outcome keeps a floor-sized share.
	if probs[1] < MinProbability/2 {
		t.Errorf("dominated outcome collapsed below floor: %f", probs[1])
	}
	if probs[0] > MaxProbability {
		t.Errorf("dominant outcome above ceiling: %f", probs[0])
	}
}

func TestProbabilities_WrongVectorLength(t *testing.T) {
	e, _ := New(10, 2)
	_, err := e.Probabilities([]float64{})
	if err != ErrVectorLength {
		t.Errorf("expected ErrVectorLength for empty vector, got %v", err)
	}
	_, err = e.Probabilities([]float64{1, 2, 3})
	if err != ErrVectorLength {
		t.Errorf("expected ErrVectorLength for 3-vector on 2-outcome market, got %v", err)
	}
}

func TestProbabilities_NegativeVolume(t *testing.T) {
	e, _ := New(10, 2)
	_, err := e.Probabilities([]float64{-1, 0})
	if err != ErrNegativeVolume {
		t.Errorf("expected ErrNegativeVolume, got %v", err)
	}
}

func TestProbabilities_NoPanicOnExtremes(t *testing.T) {
	e, _ := New(100, 2)

	tests := []struct {
		name    string
		volumes []float64
	}{
		{"very large first", []float64{100000, 0}},
		{"very large second", []float64{0, 100000}},
		{"both large equal", []float64{100000, 100000}},
		{"overflow-scale values", []float64{1e15, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probs, err := e.Probabilities(tt.volumes)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, p := range probs {
				if math.IsNaN(p) || p < 0 || p > 1 {
					t.Errorf("probability out of [0,1]: %v", probs)
				}
			}
		})
	}
}

// --- Incremental adjustment tests ---

func TestProbabilitiesAfterWager_NilLastSkipsAdjustment(t *testing.T) {
	e, _ := New(100, 2)
	plain, _ := e.Probabilities([]float64{30, 20})
	adjusted, err := e.ProbabilitiesAfterWager([]float64{30, 20}, nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range plain {
		if math.Abs(plain[i]-adjusted[i]) > 1e-12 {
			t.Errorf("nil lastProbs should match plain probabilities: %v vs %v", plain, adjusted)
		}
	}
}

func TestProbabilitiesAfterWager_ZeroRateIsPathIndependent(t *testing.T) {
	e, _ := NewWithLearningRate(100, 2, 0)
	plain, _ := e.Probabilities([]float64{30, 20})
	adjusted, err := e.ProbabilitiesAfterWager([]float64{30, 20}, []float64{0.7, 0.3}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range plain {
		if math.Abs(plain[i]-adjusted[i]) > 1e-12 {
			t.Errorf("zero learning rate should be path-independent: %v vs %v", plain, adjusted)
		}
	}
}

func TestProbabilitiesAfterWager_AdjustmentShiftsVector(t *testing.T) {
	e, _ := New(100, 2)
	plain, _ := e.Probabilities([]float64{30, 20})
	adjusted, err := e.ProbabilitiesAfterWager([]float64{30, 20}, []float64{0.6, 0.4}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(plain[0]-adjusted[0]) < 1e-12 {
		t.Errorf("learning adjustment should move the vector: plain=%v adjusted=%v", plain, adjusted)
	}

	var sum float64
	for _, p := range adjusted {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("adjusted vector should sum to 1, got %.12f", sum)
	}
}

func TestProbabilitiesAfterWager_ExtremeLastProbNoNaN(t *testing.T) {
	e, _ := New(100, 2)
	// A last probability of 1 would push ln(1-p) to -Inf without the
	// epsilon floor.
	probs, err := e.ProbabilitiesAfterWager([]float64{10, 10}, []float64{1, 0}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			t.Errorf("adjusted probability out of range: %v", probs)
		}
	}
}

func TestProbabilitiesAfterWager_BadIndex(t *testing.T) {
	e, _ := New(100, 2)
	_, err := e.ProbabilitiesAfterWager([]float64{10, 10}, nil, 2)
	if err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

// --- Price tests ---

func TestPrice_MatchesProbabilities(t *testing.T) {
	e, _ := New(100, 3)
	volumes := []float64{50, 30, 20}
	probs, _ := e.Probabilities(volumes)
	for i := range probs {
		price, err := e.Price(volumes, i)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if price != probs[i] {
			t.Errorf("price %d should equal probability: %f vs %f", i, price, probs[i])
		}
	}
}

func TestPrice_IndexOutOfRange(t *testing.T) {
	e, _ := New(100, 2)
	if _, err := e.Price([]float64{10, 10}, 2); err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange for index 2, got %v", err)
	}
	if _, err := e.Price([]float64{10, 10}, -1); err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange for index -1, got %v", err)
	}
}

// --- Cost tests ---

func TestCost_Positive(t *testing.T) {
	e, _ := New(100, 2)
	cost, err := e.Cost([]float64{10, 10}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost <= 0 {
		t.Errorf("buying shares should cost a positive amount, got %f", cost)
	}
}

func TestCost_MoreThanFaceValue(t *testing.T) {
	e, _ := New(100, 2)
	// Average probability is below 1, so the quoted cost always exceeds the
	// share amount.
	cost, _ := e.Cost([]float64{10, 10}, 0, 10)
	if cost <= 10 {
		t.Errorf("cost should exceed share amount at sub-certainty prices, got %f", cost)
	}
}

func TestCost_InvalidShareAmount(t *testing.T) {
	e, _ := New(100, 2)
	if _, err := e.Cost([]float64{10, 10}, 0, 0); err != ErrInvalidShareAmount {
		t.Errorf("expected ErrInvalidShareAmount for 0 shares, got %v", err)
	}
	if _, err := e.Cost([]float64{10, 10}, 0, -5); err != ErrInvalidShareAmount {
		t.Errorf("expected ErrInvalidShareAmount for negative shares, got %v", err)
	}
}

func TestCost_IndexOutOfRange(t *testing.T) {
	e, _ := New(100, 2)
	if _, err := e.Cost([]float64{10, 10}, 5, 10); err != ErrIndexOutOfRange {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestExactTradeCost_PathIndependence(t *testing.T) {
	e, _ := New(100, 2)

	// Buy 10, then 5 more, should cost the same as 15 at once.
	cost1, err := e.ExactTradeCost([]float64{0, 0}, 0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cost2, err := e.ExactTradeCost([]float64{10, 0}, 0, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	direct, err := e.ExactTradeCost([]float64{0, 0}, 0, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if math.Abs((cost1+cost2)-direct) > 1e-9 {
		t.Errorf("exact cost should be path-independent: sequential=%f direct=%f",
			cost1+cost2, direct)
	}
}

func TestExactTradeCost_Convexity(t *testing.T) {
	e, _ := New(100, 2)
	// Second batch on the same outcome costs more than the first.
	cost1, _ := e.ExactTradeCost([]float64{0, 0}, 0, 10)
	cost2, _ := e.ExactTradeCost([]float64{10, 0}, 0, 10)
	if cost2 <= cost1 {
		t.Errorf("second batch should cost more (convexity): first=%f second=%f", cost1, cost2)
	}
}

func TestWorstCaseLoss_Bounded(t *testing.T) {
	e, _ := New(100, 2)
	maxLoss := e.WorstCaseLoss()
	expected := 100 * math.Log(2)
	if math.Abs(maxLoss-expected) > 1e-9 {
		t.Errorf("worst-case loss should be b*ln(n)=%f, got %f", expected, maxLoss)
	}

	// Scenario check: a trader stakes heavily on outcome 0, outcome 0 wins.
	// Payout is the staked shares; the trader paid the exact cost. The
	// market maker's loss stays under the bound.
	shares := 10000.0
	paid, err := e.ExactTradeCost([]float64{0, 0}, 0, shares)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loss := shares - paid
	if loss > maxLoss+1e-9 {
		t.Errorf("market maker loss %f exceeds theoretical bound %f", loss, maxLoss)
	}
}

// --- Internal logSumExp tests ---

func TestLogSumExp_NoOverflow(t *testing.T) {
	// Values that would overflow naive exp().
	result := logSumExp([]float64{1000, 1001})
	if math.IsNaN(result) || math.IsInf(result, 1) {
		t.Errorf("logSumExp should not overflow: got %f", result)
	}
	if result < 1000 || result > 1002 {
		t.Errorf("logSumExp(1000,1001) should be in [1000,1002], got %f", result)
	}
}

func TestLogSumExp_Empty(t *testing.T) {
	result := logSumExp(nil)
	if !math.IsInf(result, -1) {
		t.Errorf("expected -Inf for empty input, got %f", result)
	}
}

func TestLogSumExp_SingleValue(t *testing.T) {
	result := logSumExp([]float64{5.0})
	if math.Abs(result-5.0) > 1e-10 {
		t.Errorf("logSumExp([5]) should be 5, got %f", result)
	}
}

func TestLogSumExp_EqualValues(t *testing.T) {
	// ln(n * exp(x)) = x + ln(n)
	result := logSumExp([]float64{3, 3})
	expected := 3.0 + math.Log(2)
	if math.Abs(result-expected) > 1e-10 {
		t.Errorf("logSumExp([3,3]) should be %f, got %f", expected, result)
	}
}
