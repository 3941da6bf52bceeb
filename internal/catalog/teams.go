package catalog

import (
	"fmt"

	"capline/internal/domain"
)

func cloneTeam(t domain.TeamSnapshot) domain.TeamSnapshot {
	t.CoreContracts = append([]domain.ContractDriver(nil), t.CoreContracts...)
	t.DeadCapDrivers = append([]string(nil), t.DeadCapDrivers...)
	fc := make(map[string][]string, len(t.FieldCitations))
	for k, v := range t.FieldCitations {
		fc[k] = append([]string(nil), v...)
	}
	t.FieldCitations = fc
	return t
}

func (c *Catalog) Teams() []domain.TeamSnapshot {
	out := make([]domain.TeamSnapshot, len(c.teams))
	for i, t := range c.teams {
		out[i] = cloneTeam(t)
	}
	return out
}

func (c *Catalog) Team(id string) (domain.TeamSnapshot, bool) {
	for _, t := range c.teams {
		if t.ID == id {
			return cloneTeam(t), true
		}
	}
	return domain.TeamSnapshot{}, false
}

// OpponentFor picks the first team, in catalog order, that is not id.
func (c *Catalog) OpponentFor(id string) (domain.TeamSnapshot, error) {
	for _, t := range c.teams {
		if t.ID != id {
			return cloneTeam(t), nil
		}
	}
	return domain.TeamSnapshot{}, fmt.Errorf("%w for %s", domain.ErrMissingOpponent, id)
}

func (c *Catalog) Citations() []domain.Citation {
	return append([]domain.Citation(nil), c.citations...)
}

func (c *Catalog) Citation(id string) (domain.Citation, bool) {
	ci, ok := c.citeIndex[id]
	return ci, ok
}

// TeamFieldCitations resolves the sources behind one displayed team field.
func (c *Catalog) TeamFieldCitations(teamID, field string) []domain.Citation {
	t, ok := c.Team(teamID)
	if !ok {
		return nil
	}
	var out []domain.Citation
	for _, id := range t.FieldCitations[field] {
		if ci, ok := c.citeIndex[id]; ok {
			out = append(out, ci)
		}
	}
	return out
}

// TeamCitations returns every source cited by a team, once each, in field
// display order.
func (c *Catalog) TeamCitations(teamID string) []domain.Citation {
	seen := map[string]bool{}
	var out []domain.Citation
	for _, field := range TeamFields {
		for _, ci := range c.TeamFieldCitations(teamID, field) {
			if !seen[ci.ID] {
				seen[ci.ID] = true
				out = append(out, ci)
			}
		}
	}
	return out
}
