// Package engine runs one learner-versus-AI front-office run as a
// deterministic state machine.
package engine

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"capline/internal/catalog"
	"capline/internal/domain"
	"capline/internal/opponent"
	"capline/internal/rules"
)

type Phase string

const (
	PhaseAwaitingLearner Phase = "awaiting_learner"
	PhaseAwaitingAI      Phase = "awaiting_ai"
	PhaseFinished        Phase = "finished"
)

// Options are the construction inputs of a run.
type Options struct {
	LearnerTeamID string
	Difficulty    domain.Difficulty
	// Seed defaults to the wall clock in milliseconds.
	Seed    *int64
	Catalog *catalog.Catalog
	Now     func() time.Time
	Logger  *log.Logger
}

// pendingTurn buffers the learner half of a turn until the AI answers.
type pendingTurn struct {
	effective      domain.Mission
	role           domain.Role
	option         domain.Option
	legal          bool
	deltasJSON     string
	compositeAfter int
}

// Run is the aggregate root of one play-through. It is not safe for
// concurrent use; callers serialize access.
type Run struct {
	id         string
	seed       int64
	difficulty domain.Difficulty
	config     rules.DifficultyConfig
	profile    opponent.Profile

	plan      []domain.Mission
	index     int
	legalPass bool

	eventPool       []domain.Event
	eventQuota      int
	eventsTriggered int
	usedEventIDs    []string
	lastCheckpoint  int

	runLog   []domain.LedgerRow
	eventLog []domain.EventLogEntry

	learner domain.Participant
	ai      domain.Participant

	phase   Phase
	pending *pendingTurn
	final   *domain.FinalResult

	startedAt  time.Time
	finishedAt time.Time

	rng    *LCG
	now    func() time.Time
	logger *log.Logger
}

func NewRun(opts Options) (*Run, error) {
	if strings.TrimSpace(opts.LearnerTeamID) == "" {
		return nil, domain.ErrMissingTeam
	}
	if opts.Difficulty == "" {
		return nil, domain.ErrMissingDifficulty
	}
	cfg, err := rules.Difficulty(opts.Difficulty)
	if err != nil {
		return nil, err
	}
	cat := opts.Catalog
	if cat == nil {
		if cat, err = catalog.Default(); err != nil {
			return nil, err
		}
	}
	learnerTeam, ok := cat.Team(opts.LearnerTeamID)
	if !ok {
		return nil, domain.WithMetadata(domain.CodeUnknownTeam, "unknown team: "+opts.LearnerTeamID,
			map[string]string{"team": opts.LearnerTeamID})
	}
	aiTeam, err := cat.OpponentFor(learnerTeam.ID)
	if err != nil {
		return nil, err
	}
	plan, err := cat.BuildMissionPlan(opts.Difficulty)
	if err != nil {
		return nil, err
	}
	if err := catalog.ValidateRoleOrder(plan); err != nil {
		return nil, err
	}
	profile, err := opponent.ProfileFor(cfg.AIStyle)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	startedAt := now()
	seed := startedAt.UnixMilli()
	if opts.Seed != nil {
		seed = *opts.Seed
	}

	r := &Run{
		id:             runID(seed, opts.Difficulty, learnerTeam.ID, startedAt),
		seed:           seed,
		difficulty:     opts.Difficulty,
		config:         cfg,
		profile:        profile,
		plan:           plan,
		legalPass:      true,
		eventPool:      cat.Events(),
		eventQuota:     cfg.EventCount,
		lastCheckpoint: -1,
		learner:        participant(learnerTeam),
		ai:             participant(aiTeam),
		phase:          PhaseAwaitingLearner,
		startedAt:      startedAt,
		rng:            NewLCG(seed),
		now:            now,
		logger:         logger,
	}
	r.logger.Printf("run: created id=%s difficulty=%s learner=%s ai=%s seed=%d missions=%d",
		r.id, r.difficulty, r.learner.TeamID, r.ai.TeamID, r.seed, len(r.plan))
	return r, nil
}

func participant(t domain.TeamSnapshot) domain.Participant {
	return domain.Participant{
		TeamID:    t.ID,
		TeamName:  t.DisplayName,
		Finances:  t.Finances(),
		Metrics:   t.InitialMetrics,
		Composite: rules.Composite(t.InitialMetrics),
	}
}

// runID is stable for a (seed, difficulty, team, start time) tuple, so two
// playthroughs of one seed get distinct ids unless they share a clock.
func runID(seed int64, d domain.Difficulty, team string, startedAt time.Time) string {
	name := fmt.Sprintf("%d|%s|%s|%d", seed, d, team, startedAt.UnixNano())
	stamp := strings.ToUpper(strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(), "-", "")[:8])
	seedPart := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, strconv.FormatInt(seed, 10))
	if len(seedPart) > 6 {
		seedPart = seedPart[:6]
	}
	if seedPart == "" {
		seedPart = "201"
	}
	return "RUN-" + stamp + "-" + seedPart
}

func (r *Run) ID() string { return r.id }
func (r *Run) Seed() int64 { return r.seed }
func (r *Run) Difficulty() domain.Difficulty { return r.difficulty }
func (r *Run) Phase() Phase { return r.phase }
func (r *Run) Finished() bool { return r.phase == PhaseFinished }
func (r *Run) MissionIndex() int { return r.index }
func (r *Run) MissionCount() int { return len(r.plan) }
func (r *Run) LegalPass() bool { return r.legalPass }
func (r *Run) Config() rules.DifficultyConfig { return r.config }

// Learner returns a copy of the learner's side.
func (r *Run) Learner() domain.Participant {
	p := r.learner
	p.Composite = rules.Composite(p.Metrics)
	return p
}

// Plan returns a copy of the run's mission plan.
func (r *Run) Plan() []domain.Mission {
	out := make([]domain.Mission, len(r.plan))
	for i, m := range r.plan {
		out[i] = m.Clone()
	}
	return out
}

// CurrentMission returns the mission awaiting a decision. While the AI turn
// is pending this is still the mission the learner just played.
func (r *Run) CurrentMission() (domain.Mission, bool) {
	if r.index >= len(r.plan) {
		return domain.Mission{}, false
	}
	return r.plan[r.index].Clone(), true
}

// Final returns the memoized finalization result, if any.
func (r *Run) Final() (domain.FinalResult, bool) {
	if r.final == nil {
		return domain.FinalResult{}, false
	}
	return r.final.Clone(), true
}

func (r *Run) Ledger() []domain.LedgerRow {
	return append([]domain.LedgerRow(nil), r.runLog...)
}

func (r *Run) EventLog() []domain.EventLogEntry {
	return append([]domain.EventLogEntry(nil), r.eventLog...)
}

// Gates evaluates the gates against the current state.
func (r *Run) Gates() domain.GateResult {
	g, err := rules.EvaluateGates(rules.GateInput{
		Difficulty: r.difficulty,
		LegalPass:  r.legalPass,
		Learner:    r.learner.Metrics,
		AI:         r.ai.Metrics,
	})
	if err != nil {
		// difficulty was validated in NewRun
		panic(err)
	}
	return g
}

// Snapshot is a read-only view of a run for drivers.
type Snapshot struct {
	RunID            string                 `json:"run_id"`
	Seed             int64                  `json:"seed"`
	Difficulty       domain.Difficulty      `json:"difficulty"`
	Config           rules.DifficultyConfig `json:"difficulty_config"`
	Phase            Phase                  `json:"phase"`
	MissionIndex     int                    `json:"mission_index"`
	MissionCount     int                    `json:"mission_count"`
	CurrentMission   *domain.Mission        `json:"current_mission,omitempty"`
	InDeadlineWindow bool                   `json:"in_deadline_window"`
	LegalPass        bool                   `json:"legal_pass"`
	EventQuota       int                    `json:"event_quota"`
	EventsTriggered  int                    `json:"events_triggered"`
	UsedEventIDs     []string               `json:"used_event_ids"`
	Learner          domain.Participant     `json:"learner"`
	AI               domain.Participant     `json:"ai"`
	Gates            domain.GateResult      `json:"gates"`
	CompositeFormula string                 `json:"composite_formula"`
	Final            *domain.FinalResult    `json:"final,omitempty"`
	StartedAt        string                 `json:"started_at"`
	FinishedAt       string                 `json:"finished_at,omitempty"`
}

func (r *Run) Snapshot() Snapshot {
	s := Snapshot{
		RunID:            r.id,
		Seed:             r.seed,
		Difficulty:       r.difficulty,
		Config:           r.config,
		Phase:            r.phase,
		MissionIndex:     r.index,
		MissionCount:     len(r.plan),
		InDeadlineWindow: rules.InFinalThird(r.index, len(r.plan)),
		LegalPass:        r.legalPass,
		EventQuota:       r.eventQuota,
		EventsTriggered:  r.eventsTriggered,
		UsedEventIDs:     append([]string{}, r.usedEventIDs...),
		Learner:          r.learner,
		AI:               r.ai,
		Gates:            r.Gates(),
		CompositeFormula: rules.CompositeFormula(r.learner.Metrics),
		StartedAt:        r.startedAt.UTC().Format(time.RFC3339),
	}
	s.Learner.Composite = rules.Composite(r.learner.Metrics)
	s.AI.Composite = rules.Composite(r.ai.Metrics)
	if m, ok := r.CurrentMission(); ok {
		s.CurrentMission = &m
	}
	if r.final != nil {
		f := r.final.Clone()
		s.Final = &f
		s.FinishedAt = r.finishedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// IsTurnError reports whether err is a turn-order misuse error.
func IsTurnError(err error) bool {
	for _, target := range []error{
		domain.ErrRunFinished, domain.ErrTurnPending, domain.ErrNoPendingTurn,
		domain.ErrNoMissionRemaining, domain.ErrStaleMission, domain.ErrMissionsRemaining,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
