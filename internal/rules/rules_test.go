package rules_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"capline/internal/domain"
	"capline/internal/rules"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompositeExample(t *testing.T) {
	m := domain.Metrics{CapHealth: 70, RosterStrength: 80, Flexibility: 60, PlayerRelations: 75, FranchiseValueGrowth: 90}
	if got := rules.Composite(m); got != 75 {
		t.Fatalf("composite = %d, want 75", got)
	}
	if got := rules.CompositeFormula(m); got != "composite = round(70*0.25 + 80*0.20 + 60*0.20 + 75*0.15 + 90*0.20)" {
		t.Fatalf("formula = %q", got)
	}
}

func TestClampAndApplyMetrics(t *testing.T) {
	cases := map[float64]int{-3: 0, 104.6: 100, 49.5: 50, 49.4: 49, 0: 0, 100: 100}
	for in, want := range cases {
		if got := rules.ClampMetric(in); got != want {
			t.Fatalf("ClampMetric(%v) = %d, want %d", in, got, want)
		}
	}
	m := domain.Metrics{CapHealth: 98, RosterStrength: 2, Flexibility: 50, PlayerRelations: 50, FranchiseValueGrowth: 50}
	next := rules.ApplyMetricDeltas(m, domain.Metrics{CapHealth: 5, RosterStrength: -5, Flexibility: 3})
	want := domain.Metrics{CapHealth: 100, RosterStrength: 0, Flexibility: 53, PlayerRelations: 50, FranchiseValueGrowth: 50}
	if next != want {
		t.Fatalf("apply deltas = %+v, want %+v", next, want)
	}
	if m.CapHealth != 98 {
		t.Fatalf("input mutated")
	}
}

func TestApplyFinancialDeltasRounds(t *testing.T) {
	f := domain.Finances{CapSpaceM: dec("12.1"), DeadCapM: dec("18.4")}
	got := rules.ApplyFinancialDeltas(f, domain.FinancialDelta{CapDeltaM: dec("-7.55"), DeadCapDeltaM: dec("4.2")})
	if !got.CapSpaceM.Equal(dec("4.6")) || !got.DeadCapM.Equal(dec("22.6")) {
		t.Fatalf("finances = %s/%s", got.CapSpaceM, got.DeadCapM)
	}
}

func TestLegalityChecksAreIndependent(t *testing.T) {
	f := domain.Finances{CapSpaceM: dec("0.1"), DeadCapM: dec("10")}
	l := rules.CheckLegality(f, domain.FinancialDelta{CapDeltaM: dec("-0.2")})
	if l.Legal || len(l.Reasons) != 1 || l.Reasons[0] != rules.ReasonCapBelowZero {
		t.Fatalf("unexpected legality %+v", l)
	}
	if !f.CapSpaceM.Equal(dec("0.1")) {
		t.Fatalf("finances mutated")
	}

	both := rules.CheckLegality(domain.Finances{CapSpaceM: dec("0"), DeadCapM: dec("85")},
		domain.FinancialDelta{CapDeltaM: dec("-1"), DeadCapDeltaM: dec("1")})
	if both.Legal || len(both.Reasons) != 2 {
		t.Fatalf("expected two reasons, got %+v", both)
	}

	edge := rules.CheckLegality(domain.Finances{CapSpaceM: dec("1"), DeadCapM: dec("84")},
		domain.FinancialDelta{CapDeltaM: dec("-1"), DeadCapDeltaM: dec("1")})
	if !edge.Legal {
		t.Fatalf("zero cap and dead cap at the limit should be legal: %+v", edge)
	}
}

func TestDifficultyTable(t *testing.T) {
	want := map[domain.Difficulty][3]int{
		domain.DifficultyRookie: {6, 2, 50},
		domain.DifficultyPro:    {9, 3, 100},
		domain.DifficultyLegend: {12, 4, 150},
	}
	for d, w := range want {
		cfg, err := rules.Difficulty(d)
		if err != nil {
			t.Fatalf("difficulty %s: %v", d, err)
		}
		if cfg.MissionCount != w[0] || cfg.EventCount != w[1] || cfg.XPBase != w[2] {
			t.Fatalf("%s config = %+v", d, cfg)
		}
	}
	if _, err := rules.Difficulty("EXPERT"); !errors.Is(err, domain.ErrUnknownDifficulty) {
		t.Fatalf("expected unknown difficulty, got %v", err)
	}
	if _, err := rules.Difficulty(""); !errors.Is(err, domain.ErrMissingDifficulty) {
		t.Fatalf("expected missing difficulty, got %v", err)
	}
}

func TestInFinalThird(t *testing.T) {
	cases := []struct {
		index, n int
		want     bool
	}{
		{3, 6, false}, {4, 6, true},
		{5, 9, false}, {6, 9, true},
		{7, 12, false}, {8, 12, true},
	}
	for _, c := range cases {
		if got := rules.InFinalThird(c.index, c.n); got != c.want {
			t.Fatalf("InFinalThird(%d,%d) = %v", c.index, c.n, got)
		}
	}
}

func sampleOption() domain.Option {
	return domain.Option{
		ID:            "A",
		CapDeltaM:     dec("-7.5"),
		DeadCapDeltaM: dec("4.2"),
		MetricDeltas:  domain.Metrics{CapHealth: -4, RosterStrength: 4, Flexibility: -5, PlayerRelations: 6, FranchiseValueGrowth: 2},
		CitationIDs:   []string{"nfl_ops_rules"},
	}
}

func TestDeadlinePressure(t *testing.T) {
	o := sampleOption()
	same := rules.ApplyDeadlinePressure(o, 1)
	if same.MetricDeltas != o.MetricDeltas || !same.CapDeltaM.Equal(o.CapDeltaM) {
		t.Fatalf("multiplier 1 must not change the option")
	}
	p := rules.ApplyDeadlinePressure(o, 1.25)
	if !p.CapDeltaM.Equal(dec("-9.4")) {
		t.Fatalf("cap = %s, want -9.4", p.CapDeltaM)
	}
	if !p.DeadCapDeltaM.Equal(dec("5.3")) {
		t.Fatalf("dead cap = %s, want 5.3", p.DeadCapDeltaM)
	}
	want := domain.Metrics{CapHealth: -5, RosterStrength: 4, Flexibility: -6, PlayerRelations: 6, FranchiseValueGrowth: 2}
	if p.MetricDeltas != want {
		t.Fatalf("metrics = %+v, want %+v", p.MetricDeltas, want)
	}
	p.CitationIDs[0] = "changed"
	if o.CitationIDs[0] != "nfl_ops_rules" {
		t.Fatalf("pressure shares citation slice with the catalog option")
	}
}

func TestLearnerTuning(t *testing.T) {
	cfg, _ := rules.Difficulty(domain.DifficultyRookie)
	o := domain.Option{
		CapDeltaM:     dec("5.6"),
		DeadCapDeltaM: dec("3.9"),
		MetricDeltas:  domain.Metrics{CapHealth: 4, RosterStrength: 1, Flexibility: -2, PlayerRelations: 1, FranchiseValueGrowth: 1},
	}
	got := rules.TuneLearnerOption(o, cfg.Tuning)
	if !got.CapDeltaM.Equal(dec("6.4")) || !got.DeadCapDeltaM.Equal(dec("3.1")) {
		t.Fatalf("money = %s/%s", got.CapDeltaM, got.DeadCapDeltaM)
	}
	want := domain.Metrics{CapHealth: 5, RosterStrength: 1, Flexibility: -2, PlayerRelations: 1, FranchiseValueGrowth: 1}
	if got.MetricDeltas != want {
		t.Fatalf("metrics = %+v, want %+v", got.MetricDeltas, want)
	}

	neg := rules.TuneLearnerOption(domain.Option{DeadCapDeltaM: dec("-2")}, cfg.Tuning)
	if !neg.DeadCapDeltaM.Equal(dec("-2")) {
		t.Fatalf("negative dead cap must pass through, got %s", neg.DeadCapDeltaM)
	}
}

func TestMarginGateThresholds(t *testing.T) {
	base := domain.Uniform(80)
	cases := []struct {
		d    domain.Difficulty
		lift int
	}{
		{domain.DifficultyRookie, 0},
		{domain.DifficultyPro, 3},
		{domain.DifficultyLegend, 5},
	}
	for _, c := range cases {
		even, err := rules.EvaluateGates(rules.GateInput{Difficulty: c.d, LegalPass: true, Learner: base, AI: base})
		if err != nil {
			t.Fatalf("gates: %v", err)
		}
		if even.Margin != 0 || even.AIMarginGate != (c.lift == 0) {
			t.Fatalf("%s even gates = %+v", c.d, even)
		}
		lifted, _ := rules.EvaluateGates(rules.GateInput{Difficulty: c.d, LegalPass: true, Learner: domain.Uniform(80 + c.lift), AI: base})
		if !lifted.AIMarginGate || lifted.MarginRequired != c.lift {
			t.Fatalf("%s lifted gates = %+v", c.d, lifted)
		}
	}
}

func TestDifficultyGateChecks(t *testing.T) {
	learner := domain.Uniform(90)
	learner.CapHealth = 54
	pro, _ := rules.EvaluateGates(rules.GateInput{Difficulty: domain.DifficultyPro, LegalPass: true, Learner: learner, AI: domain.Uniform(50)})
	if pro.DifficultyGate || pro.Checks.MinCapHealth || !pro.Checks.MinComposite {
		t.Fatalf("pro gates = %+v", pro)
	}

	learner = domain.Uniform(95)
	learner.Flexibility = 49
	legend, _ := rules.EvaluateGates(rules.GateInput{Difficulty: domain.DifficultyLegend, LegalPass: true, Learner: learner, AI: domain.Uniform(50)})
	if legend.DifficultyGate || legend.Checks.MinAnyMetric {
		t.Fatalf("legend gates = %+v", legend)
	}

	illegal, _ := rules.EvaluateGates(rules.GateInput{Difficulty: domain.DifficultyRookie, LegalPass: false, Learner: domain.Uniform(90), AI: domain.Uniform(50)})
	if illegal.Cleared || illegal.LegalGate {
		t.Fatalf("illegal run cleared: %+v", illegal)
	}
	if got := illegal.Flags(); got != "legal:fail|difficulty:pass|ai_margin:pass" {
		t.Fatalf("flags = %q", got)
	}
}
