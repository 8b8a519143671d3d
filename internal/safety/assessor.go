// Package safety implements advisory manipulation heuristics for incoming
// wagers.
//
// The assessor never rejects a wager — it annotates the result so an
// external risk-policy layer can decide what to do. Enforcement is out of
// scope at this layer.
package safety

import "time"

// RiskLevel grades how suspicious the recent activity around a wager looks.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Default heuristic thresholds. All are configuration, not hard limits.
const (
	DefaultSpikeRatio     = 2.0
	DefaultVolumeFraction = 0.2
	DefaultRapidWindow    = 60 * time.Second
	DefaultRapidCount     = 5
)

// Thresholds configures the manipulation heuristics.
type Thresholds struct {
	// SpikeRatio flags a wager whose amount exceeds this multiple of the
	// running total volume (floored at 1 to keep the ratio meaningful for
	// near-empty markets).
	SpikeRatio float64

	// VolumeFraction flags a wager exceeding this fraction of the running
	// total volume. Skipped while the market has no volume at all, so the
	// very first wager is not flagged by definition.
	VolumeFraction float64

	// RapidWindow and RapidCount flag a market receiving RapidCount or
	// more wagers within RapidWindow.
	RapidWindow time.Duration
	RapidCount  int
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SpikeRatio:     DefaultSpikeRatio,
		VolumeFraction: DefaultVolumeFraction,
		RapidWindow:    DefaultRapidWindow,
		RapidCount:     DefaultRapidCount,
	}
}

// BetEvent is one entry in a market's bounded recent-wager log.
type BetEvent struct {
	OutcomeIndex int
	Amount       float64
	Timestamp    time.Time
}

// Assessment is the advisory verdict for one wager.
type Assessment struct {
	// Flagged is true when any heuristic fired.
	Flagged bool

	// Reasons lists the heuristics that fired, for logging.
	Reasons []string

	// Level grades the surrounding activity.
	Level RiskLevel
}

// Assessor applies the heuristics. Stateless and safe for concurrent use.
type Assessor struct {
	thresholds Thresholds
}

// NewAssessor creates an assessor; zero-valued threshold fields are filled
// with defaults.
func NewAssessor(t Thresholds) *Assessor {
	def := DefaultThresholds()
	if t.SpikeRatio <= 0 {
		t.SpikeRatio = def.SpikeRatio
	}
	if t.VolumeFraction <= 0 {
		t.VolumeFraction = def.VolumeFraction
	}
	if t.RapidWindow <= 0 {
		t.RapidWindow = def.RapidWindow
	}
	if t.RapidCount <= 0 {
		t.RapidCount = def.RapidCount
	}
	return &Assessor{thresholds: t}
}

// Assess evaluates one incoming wager against the market's pre-update state:
// amount is the wager size, totalVolume the running (already decayed) total
// before this wager is folded in, and recent the bounded wager log.
func (a *Assessor) Assess(amount, totalVolume float64, recent []BetEvent, now time.Time) Assessment {
	var reasons []string

	denominator := totalVolume
	if denominator < 1 {
		denominator = 1
	}
	spiked := amount/denominator > a.thresholds.SpikeRatio
	if spiked {
		reasons = append(reasons, "volume_spike")
	}

	if totalVolume > 0 && amount > a.thresholds.VolumeFraction*totalVolume {
		reasons = append(reasons, "volume_fraction")
	}

	recentCount := 0
	for _, e := range recent {
		if now.Sub(e.Timestamp) <= a.thresholds.RapidWindow {
			recentCount++
		}
	}
	if recentCount >= a.thresholds.RapidCount {
		reasons = append(reasons, "rapid_sequence")
	}

	return Assessment{
		Flagged: len(reasons) > 0,
		Reasons: reasons,
		Level:   gradeRisk(recentCount, spiked),
	}
}

// gradeRisk maps recent activity to a level: 0-2 wagers in the window is
// low, 3-5 medium, 6+ high; a volume spike escalates straight to critical.
func gradeRisk(recentCount int, spiked bool) RiskLevel {
	if spiked {
		return RiskCritical
	}
	switch {
	case recentCount <= 2:
		return RiskLow
	case recentCount <= 5:
		return RiskMedium
	default:
		return RiskHigh
	}
}
