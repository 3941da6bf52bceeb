package engine

import (
	"encoding/json"
	"fmt"

	"capline/internal/domain"
	"capline/internal/opponent"
	"capline/internal/rules"
)

// Submission is the outcome of a learner decision.
type Submission struct {
	// Mission is the catalog mission, before pressure and tuning.
	Mission domain.Mission `json:"mission"`
	// Option is the option as committed for the learner.
	Option                domain.Option  `json:"option"`
	Legality              rules.Legality `json:"legality"`
	RunFinishedByProgress bool           `json:"run_finished_by_progress"`
}

// SubmitLearnerOption commits the learner's choice for the current mission.
// The move is committed even when illegal; an illegal move fails the legal
// gate for the rest of the run. The AI must answer before the next call.
func (r *Run) SubmitLearnerOption(missionID, optionID string) (Submission, error) {
	if r.phase == PhaseFinished {
		return Submission{}, domain.ErrRunFinished
	}
	if r.pending != nil {
		return Submission{}, domain.ErrTurnPending
	}
	if r.index >= len(r.plan) {
		return Submission{}, domain.ErrNoMissionRemaining
	}
	mission := r.plan[r.index]
	if mission.ID != missionID {
		return Submission{}, domain.WithMetadata(domain.CodeStaleMission,
			fmt.Sprintf("expected mission %s, got %s", mission.ID, missionID),
			map[string]string{"expected": mission.ID, "got": missionID})
	}

	effective := mission.Clone()
	if rules.InFinalThird(r.index, len(r.plan)) && r.config.PressureMultiplier != 1 {
		for i, o := range effective.Options {
			effective.Options[i] = rules.ApplyDeadlinePressure(o, r.config.PressureMultiplier)
		}
	}
	chosen, ok := effective.Option(optionID)
	if !ok {
		return Submission{}, domain.WithMetadata(domain.CodeUnknownOption,
			fmt.Sprintf("unknown option %s for mission %s", optionID, missionID),
			map[string]string{"mission": missionID, "option": optionID})
	}
	tuned := rules.TuneLearnerOption(chosen, r.config.Tuning)
	deltas, err := json.Marshal(tuned.MetricDeltas)
	if err != nil {
		return Submission{}, fmt.Errorf("encode metric deltas for %s: %w", missionID, err)
	}

	legality := rules.CheckLegality(r.learner.Finances, tuned.FinancialDelta())
	r.learner.Finances = legality.Projected
	r.learner.Metrics = rules.ApplyMetricDeltas(r.learner.Metrics, tuned.MetricDeltas)
	r.learner.Composite = rules.Composite(r.learner.Metrics)
	r.learner.LastChoice = &domain.Choice{
		MissionID: missionID,
		OptionID:  optionID,
		Legal:     legality.Legal,
		Reasons:   legality.Reasons,
	}
	if !legality.Legal {
		r.legalPass = false
		r.logger.Printf("run: illegal move id=%s mission=%s option=%s cap=%s dead=%s",
			r.id, missionID, optionID, legality.Projected.CapSpaceM, legality.Projected.DeadCapM)
	}

	r.pending = &pendingTurn{
		effective:      effective,
		role:           mission.Role,
		option:         tuned,
		legal:          legality.Legal,
		deltasJSON:     string(deltas),
		compositeAfter: r.learner.Composite,
	}
	r.phase = PhaseAwaitingAI

	return Submission{
		Mission:               mission.Clone(),
		Option:                tuned,
		Legality:              legality,
		RunFinishedByProgress: r.index+1 >= len(r.plan),
	}, nil
}

// ApplyAIChoice lets the AI answer the pending mission, advances the run by
// one mission and records the turn in the ledger.
func (r *Run) ApplyAIChoice() (domain.Choice, error) {
	if r.phase == PhaseFinished {
		return domain.Choice{}, domain.ErrRunFinished
	}
	if r.pending == nil {
		return domain.Choice{}, domain.ErrNoPendingTurn
	}
	turn := r.pending

	// One draw from the run stream seeds the per-option noise.
	noise := NewLCG(int64(r.rng.Next()))
	decision, err := opponent.Choose(r.profile, r.ai.Finances, turn.effective.Options, noise)
	if err != nil {
		return domain.Choice{}, fmt.Errorf("ai choice for %s: %w", turn.effective.ID, err)
	}

	r.ai.Finances = rules.ApplyFinancialDeltas(r.ai.Finances, decision.Option.FinancialDelta())
	r.ai.Metrics = rules.ApplyMetricDeltas(r.ai.Metrics, decision.Option.MetricDeltas)
	r.ai.Composite = rules.Composite(r.ai.Metrics)
	choice := domain.Choice{
		MissionID: turn.effective.ID,
		OptionID:  decision.Option.ID,
		Legal:     decision.Legality.Legal,
		Reasons:   decision.Legality.Reasons,
	}
	r.ai.LastChoice = &choice

	r.index++
	r.pending = nil
	r.phase = PhaseAwaitingLearner

	r.runLog = append(r.runLog, r.decisionRow(turnRow{
		missionID:      turn.effective.ID,
		role:           string(turn.role),
		optionID:       turn.option.ID,
		legal:          turn.legal,
		capDelta:       turn.option.CapDeltaM.String(),
		deadCapDelta:   turn.option.DeadCapDeltaM.String(),
		deltas:         turn.option.MetricDeltas,
		deltasJSON:     turn.deltasJSON,
		compositeAfter: turn.compositeAfter,
		gates:          r.Gates(),
		cleared:        domain.ClearedPending,
	}))
	return choice, nil
}
