package engine

import (
	"time"

	"capline/internal/domain"
)

type turnRow struct {
	missionID      string
	role           string
	optionID       string
	legal          bool
	capDelta       string
	deadCapDelta   string
	deltas         domain.Metrics
	deltasJSON     string
	compositeAfter int
	gates          domain.GateResult
	cleared        string
	claimCode      string
	checksum       string
}

func (r *Run) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}

func (r *Run) decisionRow(t turnRow) domain.LedgerRow {
	return domain.LedgerRow{
		Timestamp:                 r.timestamp(),
		RunID:                     r.id,
		Difficulty:                string(r.difficulty),
		LearnerTeam:               r.learner.TeamID,
		AITeam:                    r.ai.TeamID,
		MissionID:                 t.missionID,
		Role:                      t.role,
		OptionID:                  t.optionID,
		Legal:                     t.legal,
		DeltaCapHealth:            t.deltas.CapHealth,
		DeltaRosterStrength:       t.deltas.RosterStrength,
		DeltaFlexibility:          t.deltas.Flexibility,
		DeltaPlayerRelations:      t.deltas.PlayerRelations,
		DeltaFranchiseValueGrowth: t.deltas.FranchiseValueGrowth,
		CapDeltaM:                 t.capDelta,
		DeadCapDeltaM:             t.deadCapDelta,
		CompositeAfter:            t.compositeAfter,
		GateFlags:                 t.gates.Flags(),
		Cleared:                   t.cleared,
		ClaimCode:                 t.claimCode,
		ReviewChecksum:            t.checksum,
		MetricDeltas:              t.deltasJSON,
	}
}
