package engine_test

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"capline/internal/domain"
	"capline/internal/engine"
)

var fixedNow = func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) }

func newRun(t *testing.T, team string, d domain.Difficulty, seed int64) *engine.Run {
	t.Helper()
	r, err := engine.NewRun(engine.Options{
		LearnerTeamID: team,
		Difficulty:    d,
		Seed:          &seed,
		Now:           fixedNow,
		Logger:        log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	return r
}

// play drives every remaining mission with pick and injects events after
// each turn.
func play(t *testing.T, r *engine.Run, pick func(i int, m domain.Mission) string) {
	t.Helper()
	for i := 0; ; i++ {
		m, ok := r.CurrentMission()
		if !ok {
			return
		}
		if _, err := r.SubmitLearnerOption(m.ID, pick(i, m)); err != nil {
			t.Fatalf("submit %s: %v", m.ID, err)
		}
		if len(r.Ledger()) != r.MissionIndex() {
			t.Fatalf("ledger length %d != index %d while pending", len(r.Ledger()), r.MissionIndex())
		}
		if _, err := r.ApplyAIChoice(); err != nil {
			t.Fatalf("ai %s: %v", m.ID, err)
		}
		if len(r.Ledger()) != r.MissionIndex() {
			t.Fatalf("ledger length %d != index %d", len(r.Ledger()), r.MissionIndex())
		}
		if _, err := r.MaybeInjectEvent(); err != nil {
			t.Fatalf("event: %v", err)
		}
	}
}

func first(int, domain.Mission) string { return "A" }

func rotate(i int, m domain.Mission) string { return m.Options[i%len(m.Options)].ID }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLCG(t *testing.T) {
	if got := engine.NewLCG(1).Next(); got != 1015568748 {
		t.Fatalf("first draw = %d", got)
	}
	a, b := engine.NewLCG(0), engine.NewLCG(1)
	for i := 0; i < 5; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("seed 0 must behave like seed 1")
		}
	}
	if engine.NewLCG(1<<32+7).Next() != engine.NewLCG(7).Next() {
		t.Fatalf("seed must be reduced modulo 2^32")
	}
}

func TestRunShapePerDifficulty(t *testing.T) {
	cases := []struct {
		d        domain.Difficulty
		missions int
		events   int
	}{
		{domain.DifficultyRookie, 6, 2},
		{domain.DifficultyPro, 9, 3},
		{domain.DifficultyLegend, 12, 4},
	}
	for _, c := range cases {
		r := newRun(t, "KC", c.d, 201)
		if r.MissionCount() != c.missions {
			t.Fatalf("%s missions = %d", c.d, r.MissionCount())
		}
		play(t, r, first)
		res, err := r.FinishRun()
		if err != nil {
			t.Fatalf("%s finish: %v", c.d, err)
		}
		if res.MissionCount != c.missions || res.EventsTriggered != c.events {
			t.Fatalf("%s result missions=%d events=%d", c.d, res.MissionCount, res.EventsTriggered)
		}
		if got := len(r.Ledger()); got != c.missions+1 {
			t.Fatalf("%s ledger rows = %d", c.d, got)
		}
		if got := len(r.EventLog()); got != c.events {
			t.Fatalf("%s event log = %d", c.d, got)
		}
	}
}

func TestLedgerRoleOrder(t *testing.T) {
	r := newRun(t, "SF", domain.DifficultyLegend, 5)
	play(t, r, rotate)
	if _, err := r.FinishRun(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	rank := map[string]int{"AGENT": 0, "LEAGUE_OFFICE": 1, "OWNER": 2, "SUMMARY": 3}
	rows := r.Ledger()
	for i := 1; i < len(rows); i++ {
		if rank[rows[i].Role] < rank[rows[i-1].Role] {
			t.Fatalf("role %s after %s", rows[i].Role, rows[i-1].Role)
		}
	}
	last := rows[len(rows)-1]
	if last.MissionID != engine.SummaryMissionID || last.Role != "SUMMARY" || last.OptionID != engine.SummaryOptionID {
		t.Fatalf("unexpected summary row %+v", last)
	}
	if last.Cleared != "true" && last.Cleared != "false" {
		t.Fatalf("summary cleared = %q", last.Cleared)
	}
	for _, row := range rows[:len(rows)-1] {
		if row.Cleared != domain.ClearedPending || row.ClaimCode != "" {
			t.Fatalf("interim row %s cleared=%q claim=%q", row.MissionID, row.Cleared, row.ClaimCode)
		}
	}
}

func TestConstructionErrors(t *testing.T) {
	seed := int64(1)
	cases := []struct {
		opts engine.Options
		want error
	}{
		{engine.Options{Difficulty: domain.DifficultyRookie}, domain.ErrMissingTeam},
		{engine.Options{LearnerTeamID: "KC"}, domain.ErrMissingDifficulty},
		{engine.Options{LearnerTeamID: "KC", Difficulty: "EXPERT"}, domain.ErrUnknownDifficulty},
		{engine.Options{LearnerTeamID: "NYJ", Difficulty: domain.DifficultyPro}, domain.ErrUnknownTeam},
	}
	for _, c := range cases {
		c.opts.Seed = &seed
		if _, err := engine.NewRun(c.opts); !errors.Is(err, c.want) {
			t.Fatalf("NewRun(%+v) = %v, want %v", c.opts, err, c.want)
		}
	}
}

func TestTurnOrderErrors(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 42)
	if _, err := r.ApplyAIChoice(); !errors.Is(err, domain.ErrNoPendingTurn) {
		t.Fatalf("ai before learner: %v", err)
	}
	if _, err := r.SubmitLearnerOption("OWNER-001", "A"); !errors.Is(err, domain.ErrStaleMission) {
		t.Fatalf("stale mission: %v", err)
	}
	if _, err := r.SubmitLearnerOption("AGENT-001", "Z"); !errors.Is(err, domain.ErrUnknownOption) {
		t.Fatalf("unknown option: %v", err)
	}
	if r.Phase() != engine.PhaseAwaitingLearner || len(r.Ledger()) != 0 {
		t.Fatalf("rejected submissions changed the run")
	}
	if _, err := r.FinishRun(); !errors.Is(err, domain.ErrMissionsRemaining) {
		t.Fatalf("early finish: %v", err)
	}
	if _, err := r.SubmitLearnerOption("AGENT-001", "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Phase() != engine.PhaseAwaitingAI {
		t.Fatalf("phase = %s", r.Phase())
	}
	if _, err := r.SubmitLearnerOption("AGENT-001", "B"); !errors.Is(err, domain.ErrTurnPending) {
		t.Fatalf("double submit: %v", err)
	}
	if _, err := r.MaybeInjectEvent(); !errors.Is(err, domain.ErrTurnPending) {
		t.Fatalf("event while pending: %v", err)
	}
	if _, err := r.FinishRun(); !errors.Is(err, domain.ErrTurnPending) {
		t.Fatalf("finish while pending: %v", err)
	}
	choice, err := r.ApplyAIChoice()
	if err != nil || choice.MissionID != "AGENT-001" {
		t.Fatalf("ai choice %+v: %v", choice, err)
	}
	if r.MissionIndex() != 1 || r.Phase() != engine.PhaseAwaitingLearner {
		t.Fatalf("index=%d phase=%s", r.MissionIndex(), r.Phase())
	}
}

func TestLegalityLatches(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 7)
	engine.SetLearnerFinances(r, domain.Finances{CapSpaceM: dec("0.1"), DeadCapM: dec("18.4")})
	sub, err := r.SubmitLearnerOption("AGENT-001", "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Legality.Legal || r.LegalPass() {
		t.Fatalf("expected illegal move to latch legalPass=false")
	}
	if h := r.Hint(); h.Trigger != "recent-legal-fail" {
		t.Fatalf("hint trigger = %s", h.Trigger)
	}
	if _, err := r.ApplyAIChoice(); err != nil {
		t.Fatalf("ai: %v", err)
	}
	if r.Ledger()[0].Legal {
		t.Fatalf("ledger row must record the illegal move")
	}
	play(t, r, func(int, domain.Mission) string { return "C" })
	if r.LegalPass() {
		t.Fatalf("legalPass must stay false")
	}
	res, err := r.FinishRun()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.LegalGate || res.Cleared || res.ClaimCode != nil || res.XPAwarded != 0 {
		t.Fatalf("illegal run result %+v", res)
	}
}

func TestXPAndClaimCode(t *testing.T) {
	checksum := regexp.MustCompile(`^CHK-[A-Z0-9]{6}$`)
	for d, xp := range map[domain.Difficulty]int{
		domain.DifficultyRookie: 50,
		domain.DifficultyPro:    100,
		domain.DifficultyLegend: 150,
	} {
		r := newRun(t, "KC", d, 77)
		engine.ForceToEnd(r)
		engine.SetLearnerMetrics(r, domain.Uniform(95))
		engine.SetAIMetrics(r, domain.Uniform(70))
		res, err := r.FinishRun()
		if err != nil {
			t.Fatalf("%s finish: %v", d, err)
		}
		if !res.Cleared || res.XPAwarded != xp {
			t.Fatalf("%s cleared=%v xp=%d", d, res.Cleared, res.XPAwarded)
		}
		claim := regexp.MustCompile(`^M1-201-NFL-` + string(d) + `-KC-[A-Z0-9]{3}$`)
		if res.ClaimCode == nil || !claim.MatchString(*res.ClaimCode) {
			t.Fatalf("%s claim code = %v", d, res.ClaimCode)
		}
		if !checksum.MatchString(res.ReviewChecksum) {
			t.Fatalf("%s checksum = %s", d, res.ReviewChecksum)
		}
		summary := r.Ledger()[len(r.Ledger())-1]
		if summary.ClaimCode != *res.ClaimCode || summary.ReviewChecksum != res.ReviewChecksum {
			t.Fatalf("summary row does not carry the codes: %+v", summary)
		}
	}

	fail := newRun(t, "SF", domain.DifficultyRookie, 910)
	engine.ForceToEnd(fail)
	engine.SetLegalPass(fail, false)
	res, err := fail.FinishRun()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.ClaimCode != nil || res.XPAwarded != 0 || !checksum.MatchString(res.ReviewChecksum) {
		t.Fatalf("failed run result %+v", res)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 3)
	play(t, r, rotate)
	a, err := r.FinishRun()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	rows := len(r.Ledger())
	b, err := r.FinishRun()
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) || len(r.Ledger()) != rows {
		t.Fatalf("second finish changed the run")
	}
	if _, err := r.SubmitLearnerOption("AGENT-001", "A"); !errors.Is(err, domain.ErrRunFinished) {
		t.Fatalf("submit after finish: %v", err)
	}
	if _, err := r.ApplyAIChoice(); !errors.Is(err, domain.ErrRunFinished) {
		t.Fatalf("ai after finish: %v", err)
	}
	if ev, err := r.MaybeInjectEvent(); ev != nil || err != nil {
		t.Fatalf("event after finish: %v %v", ev, err)
	}
}

func TestDeterminism(t *testing.T) {
	digest := func() string {
		r := newRun(t, "SF", domain.DifficultyPro, 123456789)
		play(t, r, rotate)
		res, err := r.FinishRun()
		if err != nil {
			t.Fatalf("finish: %v", err)
		}
		b, _ := json.Marshal(struct {
			Ledger   []domain.LedgerRow
			Events   []domain.EventLogEntry
			Result   domain.FinalResult
			Snapshot engine.Snapshot
		}{r.Ledger(), r.EventLog(), res, r.Snapshot()})
		return string(b)
	}
	if a, b := digest(), digest(); a != b {
		t.Fatalf("same seed and choices produced different runs")
	}
}

func TestRunIDIsStable(t *testing.T) {
	a := newRun(t, "KC", domain.DifficultyPro, 123456789)
	b := newRun(t, "KC", domain.DifficultyPro, 123456789)
	c := newRun(t, "SF", domain.DifficultyPro, 123456789)
	if a.ID() != b.ID() || a.ID() == c.ID() {
		t.Fatalf("ids a=%s b=%s c=%s", a.ID(), b.ID(), c.ID())
	}
	seed := int64(123456789)
	later, err := engine.NewRun(engine.Options{
		LearnerTeamID: "KC",
		Difficulty:    domain.DifficultyPro,
		Seed:          &seed,
		Now:           func() time.Time { return fixedNow().Add(time.Second) },
		Logger:        log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("new run: %v", err)
	}
	if later.ID() == a.ID() {
		t.Fatalf("replaying seed at another time reused id %s", a.ID())
	}
	if !regexp.MustCompile(`^RUN-[0-9A-F]{8}-123456$`).MatchString(a.ID()) {
		t.Fatalf("id format %s", a.ID())
	}
}

func TestDeadlinePressureInFinalThird(t *testing.T) {
	early := newRun(t, "KC", domain.DifficultyPro, 11)
	sub, err := early.SubmitLearnerOption("AGENT-001", "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.Option.CapDeltaM.Equal(dec("-6.7")) {
		t.Fatalf("tuned cap delta = %s, want -6.7", sub.Option.CapDeltaM)
	}
	if !sub.Mission.Options[0].CapDeltaM.Equal(dec("-7.5")) {
		t.Fatalf("submission must carry the catalog mission")
	}

	r := newRun(t, "KC", domain.DifficultyPro, 11)
	for r.MissionIndex() < 6 {
		m, _ := r.CurrentMission()
		if _, err := r.SubmitLearnerOption(m.ID, "B"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := r.ApplyAIChoice(); err != nil {
			t.Fatalf("ai: %v", err)
		}
	}
	m, _ := r.CurrentMission()
	if m.ID != "OWNER-001" {
		t.Fatalf("mission at index 6 = %s", m.ID)
	}
	sub, err = r.SubmitLearnerOption("OWNER-001", "C")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.Option.CapDeltaM.Equal(dec("-3.2")) {
		t.Fatalf("pressured cap delta = %s, want -3.2", sub.Option.CapDeltaM)
	}
}

func TestEventsHitLearnerOnlyOncePerCheckpoint(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyLegend, 99)
	for r.MissionIndex() < 3 {
		m, _ := r.CurrentMission()
		if _, err := r.SubmitLearnerOption(m.ID, "B"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := r.ApplyAIChoice(); err != nil {
			t.Fatalf("ai: %v", err)
		}
		if r.MissionIndex() < 3 {
			if ev, _ := r.MaybeInjectEvent(); ev != nil {
				t.Fatalf("event before checkpoint at index %d", r.MissionIndex())
			}
		}
	}
	before := r.Snapshot()
	ev, err := r.MaybeInjectEvent()
	if err != nil || ev == nil {
		t.Fatalf("expected event at checkpoint 3: %v", err)
	}
	after := r.Snapshot()
	if after.AI.Metrics != before.AI.Metrics || !after.AI.Finances.CapSpaceM.Equal(before.AI.Finances.CapSpaceM) {
		t.Fatalf("event changed the AI")
	}
	if after.EventsTriggered != 1 || after.UsedEventIDs[0] != ev.ID {
		t.Fatalf("event bookkeeping %+v", after)
	}
	entries := r.EventLog()
	if len(entries) != 1 || entries[0].MissionCheckpoint != 3 || entries[0].EventID != ev.ID {
		t.Fatalf("event log %+v", entries)
	}
	if again, _ := r.MaybeInjectEvent(); again != nil {
		t.Fatalf("second event at the same checkpoint")
	}
}

func TestHintTriggers(t *testing.T) {
	kc := newRun(t, "KC", domain.DifficultyRookie, 1)
	h := kc.Hint()
	if h.Trigger != "difficulty-default" || h.Kid != "Try a move that keeps room under the cap while keeping trust high." {
		t.Fatalf("default hint %+v", h)
	}
	engine.SetLearnerFinances(kc, domain.Finances{CapSpaceM: dec("3"), DeadCapM: dec("10")})
	if h := kc.Hint(); h.Trigger != "cap-stress" {
		t.Fatalf("cap stress hint %+v", h)
	}

	sf := newRun(t, "SF", domain.DifficultyRookie, 1)
	if h := sf.Hint(); h.Trigger != "ai-margin-pressure" {
		t.Fatalf("margin hint %+v", h)
	}
	engine.SetAIMetrics(sf, domain.Uniform(10))
	m := domain.Uniform(90)
	m.PlayerRelations = 40
	engine.SetLearnerMetrics(sf, m)
	if h := sf.Hint(); h.Trigger != "weak-player_relations" {
		t.Fatalf("weak metric hint %+v", h)
	}
}

func TestSnapshotRecomputesComposite(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 1)
	s := r.Snapshot()
	if s.Learner.Composite != 73 || s.AI.Composite != 71 || s.Gates.Margin != 2 {
		t.Fatalf("snapshot composites %d/%d margin %d", s.Learner.Composite, s.AI.Composite, s.Gates.Margin)
	}
	if s.CurrentMission == nil || s.CurrentMission.ID != "AGENT-001" {
		t.Fatalf("current mission %+v", s.CurrentMission)
	}
}

func TestLedgerCarriesTunedMetricDeltas(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 77)
	m, _ := r.CurrentMission()
	sub, err := r.SubmitLearnerOption(m.ID, "A")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := r.ApplyAIChoice(); err != nil {
		t.Fatalf("ai: %v", err)
	}
	var got domain.Metrics
	if err := json.Unmarshal([]byte(r.Ledger()[0].MetricDeltas), &got); err != nil {
		t.Fatalf("decode metric deltas: %v", err)
	}
	if got != sub.Option.MetricDeltas {
		t.Fatalf("metric deltas %+v, want %+v", got, sub.Option.MetricDeltas)
	}
	play(t, r, first)
	if _, err := r.FinishRun(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	rows := r.Ledger()
	var summary domain.Metrics
	if err := json.Unmarshal([]byte(rows[len(rows)-1].MetricDeltas), &summary); err != nil {
		t.Fatalf("decode summary deltas: %v", err)
	}
	if summary != (domain.Metrics{}) {
		t.Fatalf("summary deltas %+v", summary)
	}
}

func TestFinalResultDoesNotShareClaimCode(t *testing.T) {
	r := newRun(t, "KC", domain.DifficultyRookie, 77)
	engine.ForceToEnd(r)
	engine.SetLearnerMetrics(r, domain.Uniform(95))
	engine.SetAIMetrics(r, domain.Uniform(70))
	res, err := r.FinishRun()
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if res.ClaimCode == nil {
		t.Fatalf("expected a claim code")
	}
	want := *res.ClaimCode
	*res.ClaimCode = "TAMPERED"

	again, err := r.FinishRun()
	if err != nil {
		t.Fatalf("second finish: %v", err)
	}
	final, _ := r.Final()
	snap := r.Snapshot()
	for name, code := range map[string]*string{"finish": again.ClaimCode, "final": final.ClaimCode, "snapshot": snap.Final.ClaimCode} {
		if code == nil || *code != want {
			t.Fatalf("%s claim code = %v, want %s", name, code, want)
		}
	}
	*final.ClaimCode = "TAMPERED"
	if again, _ := r.FinishRun(); *again.ClaimCode != want {
		t.Fatalf("Final leaked the memoized claim code")
	}
}
