package rules

import (
	"fmt"

	"capline/internal/domain"
)

type HintLevel string

const (
	HintHigh   HintLevel = "high"
	HintMedium HintLevel = "medium"
	HintLow    HintLevel = "low"
)

type AIStyle string

const (
	StyleConservative AIStyle = "conservative"
	StyleBalanced     AIStyle = "balanced"
	StyleAggressive   AIStyle = "aggressive"
)

// LearnerTuning scales the learner's committed deltas per difficulty.
type LearnerTuning struct {
	PositiveMetric  float64 `json:"positive_metric"`
	NegativeMetric  float64 `json:"negative_metric"`
	CapGain         float64 `json:"cap_gain"`
	CapCost         float64 `json:"cap_cost"`
	DeadCapIncrease float64 `json:"dead_cap_increase"`
}

type DifficultyConfig struct {
	Difficulty         domain.Difficulty `json:"difficulty"`
	MissionCount       int               `json:"mission_count"`
	EventCount         int               `json:"event_count"`
	PressureMultiplier float64           `json:"deadline_pressure_multiplier"`
	AIMarginRequired   int               `json:"ai_margin_required"`
	XPBase             int               `json:"xp_base"`
	MinComposite       int               `json:"min_composite"`
	MinCapHealth       *int              `json:"min_cap_health"`
	MinAnyMetric       *int              `json:"min_any_metric"`
	HintLevel          HintLevel         `json:"hint_level"`
	AIStyle            AIStyle           `json:"ai_style"`
	Tuning             LearnerTuning     `json:"tuning"`
}

// RoleMissionCount is the number of missions per role block.
func (c DifficultyConfig) RoleMissionCount() int {
	return c.MissionCount / len(domain.RoleSequence)
}

func intPtr(v int) *int { return &v }

var difficultyTable = map[domain.Difficulty]DifficultyConfig{
	domain.DifficultyRookie: {
		Difficulty:         domain.DifficultyRookie,
		MissionCount:       6,
		EventCount:         2,
		PressureMultiplier: 1.0,
		AIMarginRequired:   0,
		XPBase:             50,
		MinComposite:       60,
		HintLevel:          HintHigh,
		AIStyle:            StyleConservative,
		Tuning:             LearnerTuning{PositiveMetric: 1.22, NegativeMetric: 0.78, CapGain: 1.15, CapCost: 0.82, DeadCapIncrease: 0.80},
	},
	domain.DifficultyPro: {
		Difficulty:         domain.DifficultyPro,
		MissionCount:       9,
		EventCount:         3,
		PressureMultiplier: 1.25,
		AIMarginRequired:   3,
		XPBase:             100,
		MinComposite:       70,
		MinCapHealth:       intPtr(55),
		HintLevel:          HintMedium,
		AIStyle:            StyleBalanced,
		Tuning:             LearnerTuning{PositiveMetric: 1.10, NegativeMetric: 0.88, CapGain: 1.08, CapCost: 0.90, DeadCapIncrease: 0.88},
	},
	domain.DifficultyLegend: {
		Difficulty:         domain.DifficultyLegend,
		MissionCount:       12,
		EventCount:         4,
		PressureMultiplier: 1.5,
		AIMarginRequired:   5,
		XPBase:             150,
		MinComposite:       80,
		MinAnyMetric:       intPtr(50),
		HintLevel:          HintLow,
		AIStyle:            StyleAggressive,
		Tuning:             LearnerTuning{PositiveMetric: 1.20, NegativeMetric: 0.86, CapGain: 1.08, CapCost: 0.90, DeadCapIncrease: 0.86},
	},
}

// Difficulty returns the fixed configuration for d.
func Difficulty(d domain.Difficulty) (DifficultyConfig, error) {
	if d == "" {
		return DifficultyConfig{}, domain.ErrMissingDifficulty
	}
	cfg, ok := difficultyTable[d]
	if !ok {
		return DifficultyConfig{}, fmt.Errorf("%w: %s", domain.ErrUnknownDifficulty, d)
	}
	return cfg, nil
}

// ParseDifficulty accepts the canonical upper-case names.
func ParseDifficulty(s string) (domain.Difficulty, error) {
	d := domain.Difficulty(s)
	if _, err := Difficulty(d); err != nil {
		return "", err
	}
	return d, nil
}
