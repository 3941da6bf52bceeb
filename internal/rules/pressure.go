package rules

import (
	"github.com/shopspring/decimal"

	"capline/internal/domain"
)

// InFinalThird reports whether a zero-based mission index lies in the
// deadline window of a plan of n missions.
func InFinalThird(index, n int) bool {
	first := (2*n + 2) / 3
	return index >= first
}

// ApplyDeadlinePressure scales the harmful parts of an option: negative
// metric deltas, negative cap deltas and positive dead-cap deltas.
func ApplyDeadlinePressure(o domain.Option, multiplier float64) domain.Option {
	out := o.Clone()
	if multiplier == 1 {
		return out
	}
	m := decimal.NewFromFloat(multiplier)
	for _, k := range domain.MetricKeys {
		if v := o.MetricDeltas.Get(k); v < 0 {
			out.MetricDeltas.Set(k, Round(float64(v)*multiplier))
		}
	}
	if o.CapDeltaM.IsNegative() {
		out.CapDeltaM = RoundTenth(o.CapDeltaM.Mul(m))
	}
	if o.DeadCapDeltaM.IsPositive() {
		out.DeadCapDeltaM = RoundTenth(o.DeadCapDeltaM.Mul(m))
	}
	return out
}

// TuneLearnerOption applies the per-difficulty learner tuning to o.
func TuneLearnerOption(o domain.Option, t LearnerTuning) domain.Option {
	out := o.Clone()
	for _, k := range domain.MetricKeys {
		v := o.MetricDeltas.Get(k)
		if v >= 0 {
			out.MetricDeltas.Set(k, Round(float64(v)*t.PositiveMetric))
		} else {
			out.MetricDeltas.Set(k, Round(float64(v)*t.NegativeMetric))
		}
	}
	if o.CapDeltaM.IsNegative() {
		out.CapDeltaM = RoundTenth(o.CapDeltaM.Mul(decimal.NewFromFloat(t.CapCost)))
	} else {
		out.CapDeltaM = RoundTenth(o.CapDeltaM.Mul(decimal.NewFromFloat(t.CapGain)))
	}
	if o.DeadCapDeltaM.IsPositive() {
		out.DeadCapDeltaM = RoundTenth(o.DeadCapDeltaM.Mul(decimal.NewFromFloat(t.DeadCapIncrease)))
	}
	return out
}
