package creature

import (
	"math"
	"time"
)

// Model parameterises the condition decay curve. Rates are per hour.
type Model struct {
	FatigueRecoveryRate float64 `yaml:"fatigue_recovery_rate"`
	SharpnessDriftRate  float64 `yaml:"sharpness_drift_rate"`
	SharpnessBaseline   float64 `yaml:"sharpness_baseline"`
}

// DefaultModel is used when tuning omits the condition block.
var DefaultModel = Model{
	FatigueRecoveryRate: 0.05,
	SharpnessDriftRate:  0.03,
	SharpnessBaseline:   50,
}

// Decay relaxes fatigue toward 0 and sharpness toward the baseline by
// exponential decay over the hours since lastActionAt. Outputs are in [0,100].
// A non-positive elapsed time returns the clamped inputs.
func (m Model) Decay(fatigue, sharpness float64, lastActionAt, now time.Time) (float64, float64) {
	fatigue = clamp(fatigue, 0, 100)
	sharpness = clamp(sharpness, 0, 100)
	hours := now.Sub(lastActionAt).Hours()
	if hours <= 0 {
		return fatigue, sharpness
	}
	baseline := clamp(m.SharpnessBaseline, 0, 100)
	f := fatigue * math.Exp(-m.FatigueRecoveryRate*hours)
	s := baseline + (sharpness-baseline)*math.Exp(-m.SharpnessDriftRate*hours)
	return clamp(f, 0, 100), clamp(s, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp bounds a gauge to [0,100].
func Clamp(v float64) float64 {
	return clamp(v, 0, 100)
}
