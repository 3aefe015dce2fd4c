package skill

import (
	"slices"

	"agent-foundry/internal/domain"
)

// Catalog is a read-only skill registry built once at startup.
type Catalog struct {
	order    []string
	skills   map[string]domain.Skill
	platform []domain.PlatformTool
}

var _ domain.SkillCatalog = (*Catalog)(nil)

// NewCatalog builds a catalog from skills in the given order. A later entry
// with the same id replaces the earlier one in place.
func NewCatalog(skills ...domain.Skill) *Catalog {
	c := &Catalog{
		skills:   make(map[string]domain.Skill, len(skills)),
		platform: PlatformTools(),
	}
	for _, s := range skills {
		if _, ok := c.skills[s.ID]; !ok {
			c.order = append(c.order, s.ID)
		}
		c.skills[s.ID] = s
	}
	return c
}

// List returns all skills in catalog order.
func (c *Catalog) List() []domain.Skill {
	out := make([]domain.Skill, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.skills[id])
	}
	return out
}

// Get returns a skill by id.
func (c *Catalog) Get(id string) (domain.Skill, bool) {
	s, ok := c.skills[id]
	return s, ok
}

// Active returns the catalog entries named by ids, in catalog order.
// Unknown ids are ignored.
func (c *Catalog) Active(ids []string) []domain.Skill {
	var out []domain.Skill
	for _, id := range c.order {
		if slices.Contains(ids, id) {
			out = append(out, c.skills[id])
		}
	}
	return out
}

// Platform returns the static platform tool catalog.
func (c *Catalog) Platform() []domain.PlatformTool {
	return slices.Clone(c.platform)
}

// Install adds the skill and each of its bundled tools to the agent once.
// Installing the same skill again leaves the agent unchanged.
func (c *Catalog) Install(agent domain.Agent, skillID string) (domain.Agent, error) {
	s, ok := c.skills[skillID]
	if !ok {
		return agent, domain.NewDomainError("Catalog.Install", domain.ErrSkillNotFound, skillID)
	}
	agent.Skills = appendUnique(slices.Clone(agent.Skills), s.ID)
	tools := slices.Clone(agent.Tools)
	for _, t := range s.BundledTools {
		tools = appendUnique(tools, t)
	}
	agent.Tools = tools
	return agent, nil
}

// Uninstall removes the skill only; bundled tools stay installed.
func (c *Catalog) Uninstall(agent domain.Agent, skillID string) domain.Agent {
	agent.Skills = slices.DeleteFunc(slices.Clone(agent.Skills), func(id string) bool { return id == skillID })
	return agent
}

// InstallTool adds a tool id to the agent once.
func (c *Catalog) InstallTool(agent domain.Agent, toolID string) domain.Agent {
	agent.Tools = appendUnique(slices.Clone(agent.Tools), toolID)
	return agent
}

// UninstallTool removes a tool id from the agent.
func (c *Catalog) UninstallTool(agent domain.Agent, toolID string) domain.Agent {
	agent.Tools = slices.DeleteFunc(slices.Clone(agent.Tools), func(id string) bool { return id == toolID })
	return agent
}

func appendUnique(s []string, v string) []string {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}
