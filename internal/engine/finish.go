package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"capline/internal/domain"
)

const (
	SummaryMissionID = "RUN_SUMMARY"
	SummaryOptionID  = "FINAL"
	claimPrefix      = "M1-201-NFL"
	checksumWidth    = 6
	checksumModulus  = 36 * 36 * 36 * 36 * 36 * 36
)

// FinishRun finalizes a run whose missions are all played. It is
// idempotent: later calls return the first result unchanged.
func (r *Run) FinishRun() (domain.FinalResult, error) {
	if r.final != nil {
		return r.final.Clone(), nil
	}
	if r.pending != nil {
		return domain.FinalResult{}, domain.ErrTurnPending
	}
	if r.index < len(r.plan) {
		return domain.FinalResult{}, domain.WithMetadata(domain.CodeMissionsRemaining,
			fmt.Sprintf("cannot finish run with %d of %d missions played", r.index, len(r.plan)),
			map[string]string{"played": strconv.Itoa(r.index), "total": strconv.Itoa(len(r.plan))})
	}

	noDeltas, err := json.Marshal(domain.Metrics{})
	if err != nil {
		return domain.FinalResult{}, fmt.Errorf("encode summary deltas: %w", err)
	}

	gates := r.Gates()
	var claim *string
	if gates.Cleared {
		c := r.claimCode(gates)
		claim = &c
	}
	checksum := r.reviewChecksum(gates)
	xp := 0
	if gates.Cleared {
		xp = r.config.XPBase
	}

	result := domain.FinalResult{
		RunID:            r.id,
		Difficulty:       r.difficulty,
		Cleared:          gates.Cleared,
		LegalGate:        gates.LegalGate,
		DifficultyGate:   gates.DifficultyGate,
		AIMarginGate:     gates.AIMarginGate,
		Margin:           gates.Margin,
		MarginRequired:   gates.MarginRequired,
		LearnerComposite: gates.LearnerComposite,
		AIComposite:      gates.AIComposite,
		Checks:           gates.Checks,
		XPAwarded:        xp,
		ClaimCode:        claim,
		LearnerMetrics:   r.learner.Metrics,
		AIMetrics:        r.ai.Metrics,
		ReviewChecksum:   checksum,
		MissionCount:     len(r.plan),
		EventsTriggered:  r.eventsTriggered,
	}

	claimText := ""
	if claim != nil {
		claimText = *claim
	}
	r.runLog = append(r.runLog, r.decisionRow(turnRow{
		missionID:      SummaryMissionID,
		role:           string(domain.RoleSummary),
		optionID:       SummaryOptionID,
		legal:          gates.LegalGate,
		capDelta:       "0",
		deadCapDelta:   "0",
		deltasJSON:     string(noDeltas),
		compositeAfter: gates.LearnerComposite,
		gates:          gates,
		cleared:        strconv.FormatBool(gates.Cleared),
		claimCode:      claimText,
		checksum:       checksum,
	}))

	memo := result.Clone()
	r.final = &memo
	r.phase = PhaseFinished
	r.finishedAt = r.now()
	r.logger.Printf("run: finished id=%s cleared=%t learner=%d ai=%d margin=%d xp=%d checksum=%s",
		r.id, result.Cleared, result.LearnerComposite, result.AIComposite, result.Margin, xp, checksum)
	return result, nil
}

// claimCode is M1-201-NFL-{DIFF}-{TEAM}-{3 base36}.
func (r *Run) claimCode(g domain.GateResult) string {
	base := int64(g.LearnerComposite + g.Margin + r.index + r.eventsTriggered)
	v := base*137 + r.seed*17
	var abs uint64
	if v < 0 {
		abs = uint64(-v)
	} else {
		abs = uint64(v)
	}
	suffix := strings.ToUpper(strconv.FormatUint(abs, 36))
	if len(suffix) < 3 {
		suffix = strings.Repeat("0", 3-len(suffix)) + suffix
	}
	suffix = suffix[len(suffix)-3:]
	return fmt.Sprintf("%s-%s-%s-%s", claimPrefix, r.difficulty, r.learner.TeamID, suffix)
}

// reviewChecksum is a tamper-evidence token, not a cryptographic hash.
func (r *Run) reviewChecksum(g domain.GateResult) string {
	legal := "0"
	if r.legalPass {
		legal = "1"
	}
	base := strings.Join([]string{
		r.id,
		string(r.difficulty),
		r.learner.TeamID,
		strconv.Itoa(g.LearnerComposite),
		strconv.Itoa(g.AIComposite),
		strconv.Itoa(g.Margin),
		strconv.Itoa(r.eventsTriggered),
		legal,
	}, "|")
	var h uint32
	for i := 0; i < len(base); i++ {
		h = h*31 + uint32(base[i])
	}
	code := strings.ToUpper(strconv.FormatUint(uint64(h)%checksumModulus, 36))
	if len(code) < checksumWidth {
		code = strings.Repeat("0", checksumWidth-len(code)) + code
	}
	return "CHK-" + code
}
