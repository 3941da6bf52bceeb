// Package rules holds the pure scoring, legality and gate rules shared by the
// run engine, the AI opponent and the balance simulator.
package rules

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"capline/internal/domain"
)

const (
	MetricMin = 0
	MetricMax = 100
)

var half = decimal.NewFromFloat(0.5)

// Round rounds half toward positive infinity.
func Round(v float64) int {
	return int(math.Floor(v + 0.5))
}

// RoundTenth rounds d to one decimal, ties toward positive infinity.
func RoundTenth(d decimal.Decimal) decimal.Decimal {
	return d.Shift(1).Add(half).Floor().Shift(-1)
}

// ClampMetric rounds v and clamps it to [0,100].
func ClampMetric(v float64) int {
	r := Round(v)
	if r < MetricMin {
		return MetricMin
	}
	if r > MetricMax {
		return MetricMax
	}
	return r
}

// ApplyMetricDeltas adds d to m key by key and clamps each key on its own.
func ApplyMetricDeltas(m, d domain.Metrics) domain.Metrics {
	var next domain.Metrics
	for _, k := range domain.MetricKeys {
		next.Set(k, ClampMetric(float64(m.Get(k)+d.Get(k))))
	}
	return next
}

// ApplyFinancialDeltas adds the delta and rounds both fields to 0.1.
func ApplyFinancialDeltas(f domain.Finances, d domain.FinancialDelta) domain.Finances {
	return domain.Finances{
		CapSpaceM: RoundTenth(f.CapSpaceM.Add(d.CapDeltaM)),
		DeadCapM:  RoundTenth(f.DeadCapM.Add(d.DeadCapDeltaM)),
	}
}

// compositeWeights are in hundredths and sum to 100.
var compositeWeights = map[domain.Metric]int{
	domain.CapHealth:            25,
	domain.RosterStrength:       20,
	domain.Flexibility:          20,
	domain.PlayerRelations:      15,
	domain.FranchiseValueGrowth: 20,
}

// Composite returns the weighted quality score of m. It is computed in
// integer hundredths so repeated calls never drift.
func Composite(m domain.Metrics) int {
	sum := 0
	for _, k := range domain.MetricKeys {
		sum += compositeWeights[k] * m.Get(k)
	}
	return (sum + 50) / 100
}

// CompositeFormula renders the composite calculation for display.
func CompositeFormula(m domain.Metrics) string {
	return fmt.Sprintf("composite = round(%d*0.25 + %d*0.20 + %d*0.20 + %d*0.15 + %d*0.20)",
		m.CapHealth, m.RosterStrength, m.Flexibility, m.PlayerRelations, m.FranchiseValueGrowth)
}
