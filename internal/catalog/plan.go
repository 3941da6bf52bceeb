package catalog

import (
	"fmt"

	"capline/internal/domain"
	"capline/internal/rules"
)

// Missions returns every playable mission in catalog order.
func (c *Catalog) Missions() []domain.Mission {
	out := make([]domain.Mission, len(c.missions))
	for i, m := range c.missions {
		out[i] = m.Clone()
	}
	return out
}

// RoleMissionCounts returns how many missions each role block holds for d.
func RoleMissionCounts(d domain.Difficulty) (map[domain.Role]int, error) {
	cfg, err := rules.Difficulty(d)
	if err != nil {
		return nil, err
	}
	counts := map[domain.Role]int{}
	for _, r := range domain.RoleSequence {
		counts[r] = cfg.RoleMissionCount()
	}
	return counts, nil
}

// BuildMissionPlan takes the first N missions of each role, in role order.
// The returned missions are deep copies owned by the caller.
func (c *Catalog) BuildMissionPlan(d domain.Difficulty) ([]domain.Mission, error) {
	counts, err := RoleMissionCounts(d)
	if err != nil {
		return nil, err
	}
	var plan []domain.Mission
	for _, role := range domain.RoleSequence {
		taken := 0
		for _, m := range c.missions {
			if taken == counts[role] {
				break
			}
			if m.Role == role {
				plan = append(plan, m.Clone())
				taken++
			}
		}
		if taken < counts[role] {
			return nil, fmt.Errorf("%w: %s needs %d %s missions, catalog has %d",
				domain.ErrInvalidMissionPlan, d, counts[role], role, taken)
		}
	}
	return plan, nil
}

// ValidateRoleOrder checks that every role is present and that role blocks
// follow AGENT, LEAGUE_OFFICE, OWNER without interleaving.
func ValidateRoleOrder(plan []domain.Mission) error {
	rank := map[domain.Role]int{}
	for i, r := range domain.RoleSequence {
		rank[r] = i
	}
	present := map[domain.Role]bool{}
	last := -1
	for _, m := range plan {
		r, ok := rank[m.Role]
		if !ok {
			return fmt.Errorf("%w: mission %s has role %q", domain.ErrInvalidMissionPlan, m.ID, m.Role)
		}
		if r < last {
			return fmt.Errorf("%w: mission role sequence violates Agent -> League Office -> Owner order", domain.ErrInvalidMissionPlan)
		}
		last = r
		present[m.Role] = true
	}
	for _, r := range domain.RoleSequence {
		if !present[r] {
			return fmt.Errorf("%w: mission plan is missing role %s", domain.ErrInvalidMissionPlan, r)
		}
	}
	return nil
}

// Backlog lists future-pack missions. They are never part of a plan.
func (c *Catalog) Backlog() []domain.BacklogMission {
	return append([]domain.BacklogMission(nil), c.backlog...)
}

// Events returns the event pool in pool order.
func (c *Catalog) Events() []domain.Event {
	out := make([]domain.Event, len(c.events))
	for i, e := range c.events {
		e.CitationIDs = append([]string(nil), e.CitationIDs...)
		out[i] = e
	}
	return out
}
