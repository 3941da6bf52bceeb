package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAgent        Role = "AGENT"
	RoleLeagueOffice Role = "LEAGUE_OFFICE"
	RoleOwner        Role = "OWNER"
	RoleSummary      Role = "SUMMARY"
)

// RoleSequence is the only legal block order of a mission plan.
var RoleSequence = []Role{RoleAgent, RoleLeagueOffice, RoleOwner}

type Difficulty string

const (
	DifficultyRookie Difficulty = "ROOKIE"
	DifficultyPro    Difficulty = "PRO"
	DifficultyLegend Difficulty = "LEGEND"
)

var Difficulties = []Difficulty{DifficultyRookie, DifficultyPro, DifficultyLegend}

type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyDeadline Urgency = "deadline"
)

type Metric string

const (
	CapHealth            Metric = "cap_health"
	RosterStrength       Metric = "roster_strength"
	Flexibility          Metric = "flexibility"
	PlayerRelations      Metric = "player_relations"
	FranchiseValueGrowth Metric = "franchise_value_growth"
)

// MetricKeys lists the metrics in ledger and display order.
var MetricKeys = []Metric{CapHealth, RosterStrength, Flexibility, PlayerRelations, FranchiseValueGrowth}

// Metrics is a metric vector. The same shape carries deltas, where an
// absent key decodes to zero.
type Metrics struct {
	CapHealth            int `json:"cap_health" yaml:"cap_health"`
	RosterStrength       int `json:"roster_strength" yaml:"roster_strength"`
	Flexibility          int `json:"flexibility" yaml:"flexibility"`
	PlayerRelations      int `json:"player_relations" yaml:"player_relations"`
	FranchiseValueGrowth int `json:"franchise_value_growth" yaml:"franchise_value_growth"`
}

func (m Metrics) Get(k Metric) int {
	switch k {
	case CapHealth:
		return m.CapHealth
	case RosterStrength:
		return m.RosterStrength
	case Flexibility:
		return m.Flexibility
	case PlayerRelations:
		return m.PlayerRelations
	case FranchiseValueGrowth:
		return m.FranchiseValueGrowth
	}
	return 0
}

func (m *Metrics) Set(k Metric, v int) {
	switch k {
	case CapHealth:
		m.CapHealth = v
	case RosterStrength:
		m.RosterStrength = v
	case Flexibility:
		m.Flexibility = v
	case PlayerRelations:
		m.PlayerRelations = v
	case FranchiseValueGrowth:
		m.FranchiseValueGrowth = v
	}
}

// Uniform returns a vector with every metric set to v.
func Uniform(v int) Metrics {
	return Metrics{CapHealth: v, RosterStrength: v, Flexibility: v, PlayerRelations: v, FranchiseValueGrowth: v}
}

type Finances struct {
	CapSpaceM decimal.Decimal `json:"cap_space_m"`
	DeadCapM  decimal.Decimal `json:"dead_cap_m"`
}

type FinancialDelta struct {
	CapDeltaM     decimal.Decimal `json:"cap_delta_m"`
	DeadCapDeltaM decimal.Decimal `json:"dead_cap_delta_m"`
}

type Hints struct {
	Rookie string `json:"rookie"`
	Pro    string `json:"pro"`
	Legend string `json:"legend"`
}

type Option struct {
	ID                 string          `json:"id"`
	Label              string          `json:"label"`
	SummaryKid         string          `json:"summary_kid"`
	SummaryFrontOffice string          `json:"summary_front_office"`
	CapDeltaM          decimal.Decimal `json:"cap_delta_m"`
	DeadCapDeltaM      decimal.Decimal `json:"dead_cap_delta_m"`
	MetricDeltas       Metrics         `json:"metric_deltas"`
	CitationIDs        []string        `json:"citation_ids"`
	TuningTags         []string        `json:"tuning_tags,omitempty"`
}

func (o Option) FinancialDelta() FinancialDelta {
	return FinancialDelta{CapDeltaM: o.CapDeltaM, DeadCapDeltaM: o.DeadCapDeltaM}
}

func (o Option) Clone() Option {
	o.CitationIDs = append([]string(nil), o.CitationIDs...)
	o.TuningTags = append([]string(nil), o.TuningTags...)
	return o
}

type Mission struct {
	ID          string   `json:"id"`
	Role        Role     `json:"role" enum:"AGENT,LEAGUE_OFFICE,OWNER"`
	Zone        string   `json:"zone"`
	Urgency     Urgency  `json:"urgency" enum:"normal,deadline"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Hints       Hints    `json:"hints"`
	Options     []Option `json:"options"`
	CitationIDs []string `json:"citation_ids"`
}

// Clone returns a copy that shares no slices with m.
func (m Mission) Clone() Mission {
	opts := make([]Option, len(m.Options))
	for i, o := range m.Options {
		opts[i] = o.Clone()
	}
	m.Options = opts
	m.CitationIDs = append([]string(nil), m.CitationIDs...)
	return m
}

func (m Mission) Option(id string) (Option, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// BacklogMission is a future-pack placeholder. It is listed, never played.
type BacklogMission struct {
	ID                string  `json:"id" yaml:"id"`
	Role              Role    `json:"role" yaml:"role"`
	Zone              string  `json:"zone" yaml:"zone"`
	Urgency           Urgency `json:"urgency" yaml:"urgency"`
	Title             string  `json:"title" yaml:"title"`
	Description       string  `json:"description" yaml:"description"`
	LearningObjective string  `json:"learning_objective" yaml:"learning_objective"`
	Status            string  `json:"status" yaml:"status"`
}

type Event struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Type          string          `json:"type" enum:"injury,owner,media,locker_room"`
	CapDeltaM     decimal.Decimal `json:"cap_delta_m"`
	DeadCapDeltaM decimal.Decimal `json:"dead_cap_delta_m"`
	MetricDeltas  Metrics         `json:"metric_deltas"`
	CitationIDs   []string        `json:"citation_ids"`
}

func (e Event) FinancialDelta() FinancialDelta {
	return FinancialDelta{CapDeltaM: e.CapDeltaM, DeadCapDeltaM: e.DeadCapDeltaM}
}

type ContractDriver struct {
	Player     string          `json:"player"`
	CapHitM    decimal.Decimal `json:"cap_hit_m"`
	DeadCapM   decimal.Decimal `json:"dead_cap_m"`
	CitationID string          `json:"citation_id"`
}

type TeamSnapshot struct {
	ID             string              `json:"id"`
	DisplayName    string              `json:"display_name"`
	Season         int                 `json:"season"`
	CapSpaceM      decimal.Decimal     `json:"cap_space_m"`
	DeadCapM       decimal.Decimal     `json:"dead_cap_m"`
	CoreContracts  []ContractDriver    `json:"core_contracts"`
	DeadCapDrivers []string            `json:"dead_cap_drivers"`
	InitialMetrics Metrics             `json:"initial_metrics"`
	FieldCitations map[string][]string `json:"field_citations"`
}

func (t TeamSnapshot) Finances() Finances {
	return Finances{CapSpaceM: t.CapSpaceM, DeadCapM: t.DeadCapM}
}

type Citation struct {
	ID         string `json:"id" yaml:"id"`
	Label      string `json:"label" yaml:"label"`
	FieldGroup string `json:"field_group" yaml:"field_group"`
	URL        string `json:"url" yaml:"url"`
}

// Choice records one side's decision on a mission.
type Choice struct {
	MissionID string   `json:"mission_id"`
	OptionID  string   `json:"option_id"`
	Legal     bool     `json:"legal"`
	Reasons   []string `json:"reasons,omitempty"`
}

type Participant struct {
	TeamID     string   `json:"team_id"`
	TeamName   string   `json:"team_name"`
	Finances   Finances `json:"finances"`
	Metrics    Metrics  `json:"metrics"`
	Composite  int      `json:"composite"`
	LastChoice *Choice  `json:"last_choice,omitempty"`
}

type GateChecks struct {
	MinComposite bool `json:"min_composite"`
	MinCapHealth bool `json:"min_cap_health"`
	MinAnyMetric bool `json:"min_any_metric"`
}

type GateResult struct {
	LegalGate        bool       `json:"legal_gate"`
	DifficultyGate   bool       `json:"difficulty_gate"`
	AIMarginGate     bool       `json:"ai_margin_gate"`
	Cleared          bool       `json:"cleared"`
	Margin           int        `json:"margin"`
	MarginRequired   int        `json:"margin_required"`
	LearnerComposite int        `json:"learner_composite"`
	AIComposite      int        `json:"ai_composite"`
	Checks           GateChecks `json:"checks"`
}

// Flags encodes the three gates as legal:pass|difficulty:fail|ai_margin:pass.
func (g GateResult) Flags() string {
	return strings.Join([]string{
		"legal:" + passFail(g.LegalGate),
		"difficulty:" + passFail(g.DifficultyGate),
		"ai_margin:" + passFail(g.AIMarginGate),
	}, "|")
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

// Cleared values of a ledger row.
const (
	ClearedPending = "pending"
	ClearedTrue    = "true"
	ClearedFalse   = "false"
)

// LedgerRow is one decision (or the final summary) of a run. Its JSON
// names are the CSV column names.
type LedgerRow struct {
	Timestamp                 string `json:"timestamp"`
	RunID                     string `json:"run_id"`
	Difficulty                string `json:"difficulty"`
	LearnerTeam               string `json:"learner_team"`
	AITeam                    string `json:"ai_team"`
	MissionID                 string `json:"mission_id"`
	Role                      string `json:"role"`
	OptionID                  string `json:"option_id"`
	Legal                     bool   `json:"legal"`
	DeltaCapHealth            int    `json:"delta_cap_health"`
	DeltaRosterStrength       int    `json:"delta_roster_strength"`
	DeltaFlexibility          int    `json:"delta_flexibility"`
	DeltaPlayerRelations      int    `json:"delta_player_relations"`
	DeltaFranchiseValueGrowth int    `json:"delta_franchise_value_growth"`
	CapDeltaM                 string `json:"cap_delta_m"`
	DeadCapDeltaM             string `json:"dead_cap_delta_m"`
	CompositeAfter            int    `json:"composite_after"`
	GateFlags                 string `json:"gate_flags"`
	Cleared                   string `json:"cleared"`
	ClaimCode                 string `json:"claim_code"`
	ReviewChecksum            string `json:"review_checksum"`
	MetricDeltas              string `json:"metric_deltas"`
}

type EventLogEntry struct {
	Timestamp         string          `json:"timestamp"`
	MissionCheckpoint int             `json:"mission_checkpoint"`
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	CapDeltaM         decimal.Decimal `json:"cap_delta_m"`
	DeadCapDeltaM     decimal.Decimal `json:"dead_cap_delta_m"`
	MetricDeltas      Metrics         `json:"metric_deltas"`
}

type FinalResult struct {
	RunID            string     `json:"run_id"`
	Difficulty       Difficulty `json:"difficulty"`
	Cleared          bool       `json:"cleared"`
	LegalGate        bool       `json:"legal_gate"`
	DifficultyGate   bool       `json:"difficulty_gate"`
	AIMarginGate     bool       `json:"ai_margin_gate"`
	Margin           int        `json:"margin"`
	MarginRequired   int        `json:"margin_required"`
	LearnerComposite int        `json:"learner_composite"`
	AIComposite      int        `json:"ai_composite"`
	Checks           GateChecks `json:"checks"`
	XPAwarded        int        `json:"xp_awarded"`
	ClaimCode        *string    `json:"claim_code"`
	LearnerMetrics   Metrics    `json:"learner_metrics"`
	AIMetrics        Metrics    `json:"ai_metrics"`
	ReviewChecksum   string     `json:"review_checksum"`
	MissionCount     int        `json:"mission_count"`
	EventsTriggered  int        `json:"events_triggered"`
}

// Clone returns a copy that shares no claim code with r.
func (r FinalResult) Clone() FinalResult {
	if r.ClaimCode != nil {
		c := *r.ClaimCode
		r.ClaimCode = &c
	}
	return r
}

type Hint struct {
	Trigger     string `json:"trigger"`
	Kid         string `json:"kid"`
	FrontOffice string `json:"front_office"`
}
