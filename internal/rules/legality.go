package rules

import (
	"github.com/shopspring/decimal"

	"capline/internal/domain"
)

var (
	CapMinLimitM        = decimal.Zero
	DeadCapSoftLimitM   = decimal.NewFromInt(85)
	ReasonCapBelowZero  = "Projected cap space drops below zero."
	ReasonDeadCapExceed = "Projected dead cap exceeds classroom soft limit."
)

// Legality is the verdict on a proposed move. An illegal move is still a
// valid outcome; callers decide what it costs.
type Legality struct {
	Legal     bool            `json:"legal"`
	Reasons   []string        `json:"reasons"`
	Projected domain.Finances `json:"projected"`
}

// CheckLegality projects d onto f. Both checks run independently.
func CheckLegality(f domain.Finances, d domain.FinancialDelta) Legality {
	projected := ApplyFinancialDeltas(f, d)
	reasons := []string{}
	if projected.CapSpaceM.LessThan(CapMinLimitM) {
		reasons = append(reasons, ReasonCapBelowZero)
	}
	if projected.DeadCapM.GreaterThan(DeadCapSoftLimitM) {
		reasons = append(reasons, ReasonDeadCapExceed)
	}
	return Legality{Legal: len(reasons) == 0, Reasons: reasons, Projected: projected}
}
