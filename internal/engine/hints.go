package engine

import (
	"github.com/shopspring/decimal"

	"capline/internal/domain"
	"capline/internal/rules"
)

const weakMetricThreshold = 58

type metricText struct {
	kid   string
	front string
}

var weakMetricTexts = map[domain.Metric]metricText{
	domain.CapHealth: {
		kid:   "You are getting close to running out of safe money space.",
		front: "Cap health is trending down. Prefer options that preserve current-year cap and avoid dead-cap spikes.",
	},
	domain.RosterStrength: {
		kid:   "Your team talent score is dropping.",
		front: "Roster strength is softening. Protect impact positions while avoiding panic overpay.",
	},
	domain.Flexibility: {
		kid:   "Future choices are getting tighter.",
		front: "Flexibility is shrinking. Avoid stacking guarantees that reduce next-year decision room.",
	},
	domain.PlayerRelations: {
		kid:   "Player trust is slipping.",
		front: "Relations are under pressure. Balance cap discipline with communication and fair structure.",
	},
	domain.FranchiseValueGrowth: {
		kid:   "Business growth is slowing down.",
		front: "Franchise value momentum is cooling. Favor stable growth over short-term noise.",
	},
}

var (
	capStressSpace = decimal.NewFromInt(3)
	capStressDead  = decimal.NewFromInt(120)
)

// Hint picks coaching text for the learner's next decision. The first
// matching rule wins.
func (r *Run) Hint() domain.Hint {
	from := len(r.runLog) - 4
	if from < 0 {
		from = 0
	}
	recentFail := !r.legalPass
	for _, row := range r.runLog[from:] {
		if !row.Legal {
			recentFail = true
		}
	}
	if recentFail {
		return domain.Hint{
			Trigger:     "recent-legal-fail",
			Kid:         "Pick a safer money option next. Do not go below zero cap space.",
			FrontOffice: "Recent legality risk detected. Prioritize cap-positive or cap-neutral options and contain dead-cap growth.",
		}
	}

	f := r.learner.Finances
	if f.CapSpaceM.LessThanOrEqual(capStressSpace) || f.DeadCapM.GreaterThanOrEqual(capStressDead) {
		return domain.Hint{
			Trigger:     "cap-stress",
			Kid:         "Your money room is tight. Choose the option that protects cap safety.",
			FrontOffice: "Cap stress is elevated. Weight cap health and flexibility over marginal short-term upgrades.",
		}
	}

	if g := r.Gates(); g.Margin < g.MarginRequired {
		return domain.Hint{
			Trigger:     "ai-margin-pressure",
			Kid:         "You need to beat the AI by more points. Choose a stronger overall move.",
			FrontOffice: "AI margin gate is currently behind target. Favor balanced composite gains instead of one-metric spikes.",
		}
	}

	weak := domain.MetricKeys[0]
	for _, k := range domain.MetricKeys {
		if r.learner.Metrics.Get(k) < r.learner.Metrics.Get(weak) {
			weak = k
		}
	}
	if r.learner.Metrics.Get(weak) < weakMetricThreshold {
		text := weakMetricTexts[weak]
		return domain.Hint{Trigger: "weak-" + string(weak), Kid: text.kid, FrontOffice: text.front}
	}

	kid := "Pick the option that keeps balance across money, talent, and trust."
	if m, ok := r.CurrentMission(); ok {
		switch r.config.HintLevel {
		case rules.HintHigh:
			kid = m.Hints.Rookie
		case rules.HintLow:
			kid = m.Hints.Legend
		default:
			kid = m.Hints.Pro
		}
	}
	return domain.Hint{
		Trigger:     "difficulty-default",
		Kid:         kid,
		FrontOffice: "Run a quick tradeoff check: cap effect, dead-cap effect, and net composite impact before locking the decision.",
	}
}
