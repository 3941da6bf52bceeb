// Package sim plays many complete runs with scripted learner policies to
// check difficulty balance.
package sim

import (
	"context"
	"io"
	"log"
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"capline/internal/catalog"
	"capline/internal/domain"
	"capline/internal/engine"
	"capline/internal/rules"
)

const BalanceSeedBase = 1000

// Runner plays runs concurrently. Each run owns its engine and its policy
// generator, so results do not depend on scheduling.
type Runner struct {
	Catalog *catalog.Catalog
	Workers int
	// Logger receives one line per batch; engine logs are discarded.
	Logger *log.Logger
}

func (r Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

func (r Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return 4
}

// Policy picks an option id for the current mission.
type Policy func(run *engine.Run, m domain.Mission) string

// FirstOption always takes the first listed option.
func FirstOption(_ *engine.Run, m domain.Mission) string {
	return m.Options[0].ID
}

// Play drives a new run to completion with policy and finalizes it.
func (r Runner) Play(d domain.Difficulty, team string, seed int64, policy Policy) (*engine.Run, domain.FinalResult, error) {
	run, err := engine.NewRun(engine.Options{
		LearnerTeamID: team,
		Difficulty:    d,
		Seed:          &seed,
		Catalog:       r.Catalog,
		Logger:        log.New(io.Discard, "", 0),
	})
	if err != nil {
		return nil, domain.FinalResult{}, err
	}
	for {
		m, ok := run.CurrentMission()
		if !ok {
			break
		}
		if _, err := run.SubmitLearnerOption(m.ID, policy(run, m)); err != nil {
			return nil, domain.FinalResult{}, err
		}
		if _, err := run.ApplyAIChoice(); err != nil {
			return nil, domain.FinalResult{}, err
		}
		if _, err := run.MaybeInjectEvent(); err != nil {
			return nil, domain.FinalResult{}, err
		}
	}
	res, err := run.FinishRun()
	if err != nil {
		return nil, domain.FinalResult{}, err
	}
	return run, res, nil
}

// SmokeRow summarizes one smoke run.
type SmokeRow struct {
	Difficulty domain.Difficulty `json:"difficulty"`
	Team       string            `json:"team"`
	Seed       int64             `json:"seed"`
	RunID      string            `json:"run_id"`
	Missions   int               `json:"missions"`
	Events     int               `json:"events"`
	LedgerRows int               `json:"ledger_rows"`
	Cleared    bool              `json:"cleared"`
	ClaimCode  *string           `json:"claim_code"`
	XP         int               `json:"xp"`
}

type smokeCase struct {
	difficulty domain.Difficulty
	team       string
	seed       int64
}

var smokeCases = []smokeCase{
	{domain.DifficultyRookie, "KC", 201},
	{domain.DifficultyPro, "SF", 202},
	{domain.DifficultyLegend, "KC", 203},
}

// Smoke plays one first-option run per difficulty.
func (r Runner) Smoke(ctx context.Context) ([]SmokeRow, error) {
	rows := make([]SmokeRow, len(smokeCases))
	g, _ := errgroup.WithContext(ctx)
	for i, c := range smokeCases {
		g.Go(func() error {
			run, res, err := r.Play(c.difficulty, c.team, c.seed, FirstOption)
			if err != nil {
				return err
			}
			rows[i] = SmokeRow{
				Difficulty: c.difficulty,
				Team:       c.team,
				Seed:       c.seed,
				RunID:      res.RunID,
				Missions:   res.MissionCount,
				Events:     res.EventsTriggered,
				LedgerRows: len(run.Ledger()),
				Cleared:    res.Cleared,
				ClaimCode:  res.ClaimCode,
				XP:         res.XPAwarded,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Report holds balance rates as percentages with two decimals.
type Report struct {
	Difficulty         domain.Difficulty `json:"difficulty"`
	Runs               int               `json:"runs"`
	ClearRate          float64           `json:"clear_rate"`
	LegalFailRate      float64           `json:"legal_fail_rate"`
	MarginFailRate     float64           `json:"margin_fail_rate"`
	DifficultyFailRate float64           `json:"difficulty_fail_rate"`
}

// Balance plays runs with the heuristic policy, alternating KC and SF over
// seeds BalanceSeedBase+i.
func (r Runner) Balance(ctx context.Context, d domain.Difficulty, runs int) (Report, error) {
	if _, err := rules.Difficulty(d); err != nil {
		return Report{}, err
	}
	results := make([]domain.FinalResult, runs)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			team := "KC"
			if i%2 == 1 {
				team = "SF"
			}
			seed := int64(BalanceSeedBase + i)
			policy := HeuristicPolicy(d, rand.New(rand.NewSource(seed)))
			_, res, err := r.Play(d, team, seed, policy)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	var clears, legalFails, marginFails, diffFails int
	for _, res := range results {
		if res.Cleared {
			clears++
		}
		if !res.LegalGate {
			legalFails++
		}
		if !res.AIMarginGate {
			marginFails++
		}
		if !res.DifficultyGate {
			diffFails++
		}
	}
	rep := Report{
		Difficulty:         d,
		Runs:               runs,
		ClearRate:          percent(clears, runs),
		LegalFailRate:      percent(legalFails, runs),
		MarginFailRate:     percent(marginFails, runs),
		DifficultyFailRate: percent(diffFails, runs),
	}
	r.logger().Printf("sim: balance difficulty=%s runs=%d clear_rate=%.2f", d, runs, rep.ClearRate)
	return rep, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(n * 100)).Div(decimal.NewFromInt(int64(total))).Round(2).InexactFloat64()
}

// secondBestRate is how often the heuristic learner takes its runner-up.
var secondBestRate = map[domain.Difficulty]float64{
	domain.DifficultyRookie: 0.18,
	domain.DifficultyPro:    0.28,
	domain.DifficultyLegend: 0.36,
}

const illegalScore = -9999

// ScoreOption rates an option for the heuristic learner; illegal moves
// sink to the bottom.
func ScoreOption(f domain.Finances, o domain.Option, d domain.Difficulty) float64 {
	if !rules.CheckLegality(f, o.FinancialDelta()).Legal {
		return illegalScore
	}
	m := o.MetricDeltas
	base := float64(m.CapHealth)*0.28 +
		float64(m.RosterStrength)*0.2 +
		float64(m.Flexibility)*0.22 +
		float64(m.PlayerRelations)*0.15 +
		float64(m.FranchiseValueGrowth)*0.15
	capBias := 0.6
	if o.CapDeltaM.IsNegative() {
		capBias = -0.4
	}
	switch d {
	case domain.DifficultyRookie:
		return base + capBias + float64(m.PlayerRelations)*0.08
	case domain.DifficultyLegend:
		return base + float64(m.RosterStrength)*0.08 - o.DeadCapDeltaM.InexactFloat64()*0.08
	default:
		return base + capBias*0.5
	}
}

// HeuristicPolicy ranks options by ScoreOption and sometimes takes the
// second best. rng belongs to a single run.
func HeuristicPolicy(d domain.Difficulty, rng *rand.Rand) Policy {
	return func(run *engine.Run, m domain.Mission) string {
		finances := run.Learner().Finances
		type scored struct {
			id    string
			score float64
		}
		ranked := make([]scored, len(m.Options))
		for i, o := range m.Options {
			ranked[i] = scored{o.ID, ScoreOption(finances, o, d)}
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
		pick := 0
		if rng.Float64() < secondBestRate[d] && len(ranked) > 1 {
			pick = 1
		}
		return ranked[pick].id
	}
}
