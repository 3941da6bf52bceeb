// Package opponent scores mission options for the scripted AI front office.
package opponent

import (
	"errors"
	"fmt"

	"capline/internal/domain"
	"capline/internal/rules"
)

// Source yields uniform draws in [0,1).
type Source interface {
	Float64() float64
}

type Profile struct {
	Style           rules.AIStyle `json:"style"`
	LegalPenalty    float64       `json:"legal_penalty"`
	CapWeight       float64       `json:"cap_weight"`
	RosterWeight    float64       `json:"roster_weight"`
	FlexWeight      float64       `json:"flex_weight"`
	RelationsWeight float64       `json:"relations_weight"`
	ValueWeight     float64       `json:"value_weight"`
	Noise           float64       `json:"noise"`
}

const (
	capBiasGain = 0.5
	capBiasCost = -0.3
)

var profiles = map[rules.AIStyle]Profile{
	rules.StyleConservative: {Style: rules.StyleConservative, LegalPenalty: -1000, CapWeight: 0.35, RosterWeight: 0.20, FlexWeight: 0.25, RelationsWeight: 0.10, ValueWeight: 0.10, Noise: 1.5},
	rules.StyleBalanced:     {Style: rules.StyleBalanced, LegalPenalty: -700, CapWeight: 0.24, RosterWeight: 0.23, FlexWeight: 0.20, RelationsWeight: 0.14, ValueWeight: 0.19, Noise: 2.4},
	rules.StyleAggressive:   {Style: rules.StyleAggressive, LegalPenalty: -500, CapWeight: 0.14, RosterWeight: 0.32, FlexWeight: 0.16, RelationsWeight: 0.12, ValueWeight: 0.26, Noise: 3.2},
}

// ProfileFor looks up a profile over the closed style set.
func ProfileFor(style rules.AIStyle) (Profile, error) {
	p, ok := profiles[style]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", domain.ErrUnknownAIStyle, style)
	}
	return p, nil
}

// Weighted is the noise-free part of an option's score.
func (p Profile) Weighted(o domain.Option, legal bool) float64 {
	d := o.MetricDeltas
	score := float64(d.CapHealth)*p.CapWeight +
		float64(d.RosterStrength)*p.RosterWeight +
		float64(d.Flexibility)*p.FlexWeight +
		float64(d.PlayerRelations)*p.RelationsWeight +
		float64(d.FranchiseValueGrowth)*p.ValueWeight
	if o.CapDeltaM.IsNegative() {
		score += capBiasCost
	} else {
		score += capBiasGain
	}
	if !legal {
		score += p.LegalPenalty
	}
	return score
}

// Score adds noise centred on zero, scaled by the profile, to Weighted.
func (p Profile) Score(o domain.Option, legal bool, u float64) float64 {
	return p.Weighted(o, legal) + (u-0.5)*p.Noise
}

type Decision struct {
	Option   domain.Option  `json:"option"`
	Legality rules.Legality `json:"legality"`
	Score    float64        `json:"score"`
}

// Choose scores every option against the AI's own finances and returns the
// best one. The first option wins a tie. One draw is taken per option.
func Choose(p Profile, finances domain.Finances, options []domain.Option, src Source) (Decision, error) {
	if len(options) == 0 {
		return Decision{}, errors.New("no options to choose from")
	}
	var best Decision
	for i, o := range options {
		legality := rules.CheckLegality(finances, o.FinancialDelta())
		score := p.Score(o, legality.Legal, src.Float64())
		if i == 0 || score > best.Score {
			best = Decision{Option: o, Legality: legality, Score: score}
		}
	}
	return best, nil
}
