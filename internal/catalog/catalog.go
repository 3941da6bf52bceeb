// Package catalog loads the read-only content fixtures: teams, missions,
// events and citations. Every accessor returns copies, so a run can never
// mutate the catalog it was built from.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"capline/internal/domain"
)

//go:embed data/*.yaml
var dataFS embed.FS

// TeamFields are the display fields that carry citations, in display order.
var TeamFields = []string{"capSpaceM", "deadCapM", "coreContracts", "compositeModel", "transactionRules"}

var eventTypes = map[string]bool{"injury": true, "owner": true, "media": true, "locker_room": true}

type Catalog struct {
	LockDate string

	teams     []domain.TeamSnapshot
	missions  []domain.Mission
	backlog   []domain.BacklogMission
	events    []domain.Event
	citations []domain.Citation
	citeIndex map[string]domain.Citation
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. It is parsed once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = LoadFS(dataFS, "data")
	})
	return defaultCat, defaultErr
}

// MustDefault is Default for callers that treat a broken embedded fixture as
// a build defect.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFS reads teams.yaml, missions.yaml, events.yaml and citations.yaml
// from dir and validates them.
func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	var (
		cf citationsFile
		tf teamsFile
		mf missionsFile
		ef eventsFile
	)
	for name, dst := range map[string]any{
		"citations.yaml": &cf,
		"teams.yaml":     &tf,
		"missions.yaml":  &mf,
		"events.yaml":    &ef,
	} {
		b, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := yaml.Unmarshal(b, dst); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	c := &Catalog{LockDate: cf.DataLockDate, citeIndex: map[string]domain.Citation{}}
	for _, ci := range cf.Citations {
		if ci.ID == "" {
			return nil, invalid("citation without id")
		}
		if _, dup := c.citeIndex[ci.ID]; dup {
			return nil, invalid("duplicate citation %s", ci.ID)
		}
		c.citeIndex[ci.ID] = ci
		c.citations = append(c.citations, ci)
	}

	seen := map[string]bool{}
	for _, t := range tf.Teams {
		team, err := t.toDomain()
		if err != nil {
			return nil, err
		}
		if seen[team.ID] {
			return nil, invalid("duplicate team %s", team.ID)
		}
		seen[team.ID] = true
		for field, ids := range team.FieldCitations {
			if err := c.checkCitations("team "+team.ID+" "+field, ids); err != nil {
				return nil, err
			}
		}
		c.teams = append(c.teams, team)
	}

	seen = map[string]bool{}
	for _, m := range mf.Missions {
		mission, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		if seen[mission.ID] {
			return nil, invalid("duplicate mission %s", mission.ID)
		}
		seen[mission.ID] = true
		if err := c.checkCitations("mission "+mission.ID, mission.CitationIDs); err != nil {
			return nil, err
		}
		for _, o := range mission.Options {
			if err := c.checkCitations("mission "+mission.ID+" option "+o.ID, o.CitationIDs); err != nil {
				return nil, err
			}
		}
		c.missions = append(c.missions, mission)
	}
	for _, b := range mf.Backlog {
		if !validRole(b.Role) {
			return nil, invalid("backlog mission %s has role %q", b.ID, b.Role)
		}
		c.backlog = append(c.backlog, b)
	}

	seen = map[string]bool{}
	for _, e := range ef.Events {
		ev, err := e.toDomain()
		if err != nil {
			return nil, err
		}
		if seen[ev.ID] {
			return nil, invalid("duplicate event %s", ev.ID)
		}
		seen[ev.ID] = true
		if err := c.checkCitations("event "+ev.ID, ev.CitationIDs); err != nil {
			return nil, err
		}
		c.events = append(c.events, ev)
	}
	return c, nil
}

func (c *Catalog) checkCitations(owner string, ids []string) error {
	for _, id := range ids {
		if _, ok := c.citeIndex[id]; !ok {
			return invalid("%s cites unknown source %s", owner, id)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidCatalog, fmt.Sprintf(format, args...))
}

func validRole(r domain.Role) bool {
	for _, s := range domain.RoleSequence {
		if r == s {
			return true
		}
	}
	return false
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(1)
}

func metricsFrom(owner string, raw map[string]int) (domain.Metrics, error) {
	var m domain.Metrics
	for k, v := range raw {
		key := domain.Metric(k)
		known := false
		for _, mk := range domain.MetricKeys {
			if mk == key {
				known = true
				break
			}
		}
		if !known {
			return m, invalid("%s has unknown metric %q", owner, k)
		}
		m.Set(key, v)
	}
	return m, nil
}

// TuningTags classifies an option's risk profile for the UI.
func TuningTags(o domain.Option) []string {
	var tags []string
	if o.CapDeltaM.LessThanOrEqual(decimal.NewFromInt(-4)) || o.DeadCapDeltaM.GreaterThanOrEqual(decimal.NewFromInt(4)) {
		tags = append(tags, "cap-risk")
	}
	if o.MetricDeltas.PlayerRelations <= -2 {
		tags = append(tags, "trust-risk")
	}
	if o.MetricDeltas.Flexibility <= -2 {
		tags = append(tags, "flexibility-risk")
	}
	if len(tags) == 0 {
		tags = append(tags, "stable-profile")
	}
	return tags
}

type citationsFile struct {
	DataLockDate string            `yaml:"data_lock_date"`
	Citations    []domain.Citation `yaml:"citations"`
}

type teamsFile struct {
	Teams []teamYAML `yaml:"teams"`
}

type missionsFile struct {
	Missions []missionYAML          `yaml:"missions"`
	Backlog  []domain.BacklogMission `yaml:"backlog"`
}

type eventsFile struct {
	Events []eventYAML `yaml:"events"`
}

type contractYAML struct {
	Player     string  `yaml:"player"`
	CapHitM    float64 `yaml:"cap_hit_m"`
	DeadCapM   float64 `yaml:"dead_cap_m"`
	CitationID string  `yaml:"citation_id"`
}

type teamYAML struct {
	ID             string              `yaml:"id"`
	DisplayName    string              `yaml:"display_name"`
	Season         int                 `yaml:"season"`
	CapSpaceM      float64             `yaml:"cap_space_m"`
	DeadCapM       float64             `yaml:"dead_cap_m"`
	CoreContracts  []contractYAML      `yaml:"core_contracts"`
	DeadCapDrivers []string            `yaml:"dead_cap_drivers"`
	InitialMetrics map[string]int      `yaml:"initial_metrics"`
	FieldCitations map[string][]string `yaml:"field_citations"`
}

func (t teamYAML) toDomain() (domain.TeamSnapshot, error) {
	if t.ID == "" {
		return domain.TeamSnapshot{}, invalid("team without id")
	}
	if len(t.InitialMetrics) != len(domain.MetricKeys) {
		return domain.TeamSnapshot{}, invalid("team %s must define every initial metric", t.ID)
	}
	metrics, err := metricsFrom("team "+t.ID, t.InitialMetrics)
	if err != nil {
		return domain.TeamSnapshot{}, err
	}
	team := domain.TeamSnapshot{
		ID:             t.ID,
		DisplayName:    t.DisplayName,
		Season:         t.Season,
		CapSpaceM:      money(t.CapSpaceM),
		DeadCapM:       money(t.DeadCapM),
		DeadCapDrivers: t.DeadCapDrivers,
		InitialMetrics: metrics,
		FieldCitations: t.FieldCitations,
	}
	for _, cc := range t.CoreContracts {
		team.CoreContracts = append(team.CoreContracts, domain.ContractDriver{
			Player:     cc.Player,
			CapHitM:    money(cc.CapHitM),
			DeadCapM:   money(cc.DeadCapM),
			CitationID: cc.CitationID,
		})
	}
	return team, nil
}

type optionYAML struct {
	ID                 string         `yaml:"id"`
	Label              string         `yaml:"label"`
	SummaryKid         string         `yaml:"summary_kid"`
	SummaryFrontOffice string         `yaml:"summary_front_office"`
	CapDeltaM          float64        `yaml:"cap_delta_m"`
	DeadCapDeltaM      float64        `yaml:"dead_cap_delta_m"`
	MetricDeltas       map[string]int `yaml:"metric_deltas"`
	CitationIDs        []string       `yaml:"citation_ids"`
}

type missionYAML struct {
	ID          string         `yaml:"id"`
	Role        domain.Role    `yaml:"role"`
	Zone        string         `yaml:"zone"`
	Urgency     domain.Urgency `yaml:"urgency"`
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Hints       struct {
		Rookie string `yaml:"rookie"`
		Pro    string `yaml:"pro"`
		Legend string `yaml:"legend"`
	} `yaml:"hints"`
	Options     []optionYAML `yaml:"options"`
	CitationIDs []string     `yaml:"citation_ids"`
}

func (m missionYAML) toDomain() (domain.Mission, error) {
	if m.ID == "" {
		return domain.Mission{}, invalid("mission without id")
	}
	if !validRole(m.Role) {
		return domain.Mission{}, invalid("mission %s has role %q", m.ID, m.Role)
	}
	if m.Urgency != domain.UrgencyNormal && m.Urgency != domain.UrgencyDeadline {
		return domain.Mission{}, invalid("mission %s has urgency %q", m.ID, m.Urgency)
	}
	if len(m.Options) == 0 {
		return domain.Mission{}, invalid("mission %s has no options", m.ID)
	}
	out := domain.Mission{
		ID:          m.ID,
		Role:        m.Role,
		Zone:        m.Zone,
		Urgency:     m.Urgency,
		Title:       m.Title,
		Description: m.Description,
		Hints:       domain.Hints{Rookie: m.Hints.Rookie, Pro: m.Hints.Pro, Legend: m.Hints.Legend},
		CitationIDs: m.CitationIDs,
	}
	ids := map[string]bool{}
	for _, o := range m.Options {
		if o.ID == "" || ids[o.ID] {
			return domain.Mission{}, invalid("mission %s has a missing or duplicate option id %q", m.ID, o.ID)
		}
		ids[o.ID] = true
		deltas, err := metricsFrom("mission "+m.ID+" option "+o.ID, o.MetricDeltas)
		if err != nil {
			return domain.Mission{}, err
		}
		opt := domain.Option{
			ID:                 o.ID,
			Label:              o.Label,
			SummaryKid:         o.SummaryKid,
			SummaryFrontOffice: o.SummaryFrontOffice,
			CapDeltaM:          money(o.CapDeltaM),
			DeadCapDeltaM:      money(o.DeadCapDeltaM),
			MetricDeltas:       deltas,
			CitationIDs:        o.CitationIDs,
		}
		opt.TuningTags = TuningTags(opt)
		out.Options = append(out.Options, opt)
	}
	return out, nil
}

type eventYAML struct {
	ID            string         `yaml:"id"`
	Title         string         `yaml:"title"`
	Description   string         `yaml:"description"`
	Type          string         `yaml:"type"`
	CapDeltaM     float64        `yaml:"cap_delta_m"`
	DeadCapDeltaM float64        `yaml:"dead_cap_delta_m"`
	MetricDeltas  map[string]int `yaml:"metric_deltas"`
	CitationIDs   []string       `yaml:"citation_ids"`
}

func (e eventYAML) toDomain() (domain.Event, error) {
	if e.ID == "" {
		return domain.Event{}, invalid("event without id")
	}
	if !eventTypes[e.Type] {
		return domain.Event{}, invalid("event %s has type %q", e.ID, e.Type)
	}
	deltas, err := metricsFrom("event "+e.ID, e.MetricDeltas)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		ID:            e.ID,
		Title:         e.Title,
		Description:   e.Description,
		Type:          e.Type,
		CapDeltaM:     money(e.CapDeltaM),
		DeadCapDeltaM: money(e.DeadCapDeltaM),
		MetricDeltas:  deltas,
		CitationIDs:   e.CitationIDs,
	}, nil
}
