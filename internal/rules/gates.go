package rules

import (
	"capline/internal/domain"
)

// GateInput is everything the gate evaluator reads. It carries no hidden
// state, so a mid-run evaluation and the final one agree.
type GateInput struct {
	Difficulty domain.Difficulty
	LegalPass  bool
	Learner    domain.Metrics
	AI         domain.Metrics
}

func EvaluateGates(in GateInput) (domain.GateResult, error) {
	cfg, err := Difficulty(in.Difficulty)
	if err != nil {
		return domain.GateResult{}, err
	}
	learner := Composite(in.Learner)
	ai := Composite(in.AI)
	margin := learner - ai

	checks := domain.GateChecks{
		MinComposite: learner >= cfg.MinComposite,
		MinCapHealth: true,
		MinAnyMetric: true,
	}
	if cfg.MinCapHealth != nil {
		checks.MinCapHealth = in.Learner.CapHealth >= *cfg.MinCapHealth
	}
	if cfg.MinAnyMetric != nil {
		for _, k := range domain.MetricKeys {
			if in.Learner.Get(k) < *cfg.MinAnyMetric {
				checks.MinAnyMetric = false
				break
			}
		}
	}

	res := domain.GateResult{
		LegalGate:        in.LegalPass,
		DifficultyGate:   checks.MinComposite && checks.MinCapHealth && checks.MinAnyMetric,
		AIMarginGate:     margin >= cfg.AIMarginRequired,
		Margin:           margin,
		MarginRequired:   cfg.AIMarginRequired,
		LearnerComposite: learner,
		AIComposite:      ai,
		Checks:           checks,
	}
	res.Cleared = res.LegalGate && res.DifficultyGate && res.AIMarginGate
	return res, nil
}
