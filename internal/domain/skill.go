package domain

// SkillCategory groups skills for display.
type SkillCategory string

const (
	CategoryIntelligence SkillCategory = "intelligence"
	CategoryCreative     SkillCategory = "creative"
	CategoryTechnical    SkillCategory = "technical"
)

// SkillDeepReasoning is the skill that adds reflection steps and platform awareness.
const SkillDeepReasoning = "deep_reasoning"

// Skill is an immutable catalog entry: a behavioral directive and the tools it bundles.
type Skill struct {
	ID           string        `json:"id"            yaml:"id"`
	Name         string        `json:"name"          yaml:"name"`
	Description  string        `json:"description"   yaml:"description"`
	Category     SkillCategory `json:"category"      yaml:"category"`
	Instruction  string        `json:"instruction,omitempty"   yaml:"instruction,omitempty"`
	BundledTools []string      `json:"bundled_tools,omitempty" yaml:"bundled_tools,omitempty"`
}

// SkillCatalog is the read-only registry of known skills.
type SkillCatalog interface {
	List() []Skill
	Get(id string) (Skill, bool)
	// Active returns the catalog entries named by ids, in catalog order.
	// Unknown ids are ignored.
	Active(ids []string) []Skill
	// Platform returns the static catalog of installable platform tools.
	Platform() []PlatformTool
}
