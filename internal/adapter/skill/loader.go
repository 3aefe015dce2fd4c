package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"agent-foundry/internal/domain"
)

// maxSkillFileSize is the maximum allowed skill file size (1 MiB).
const maxSkillFileSize = 1 << 20

var validCategories = []domain.SkillCategory{
	domain.CategoryIntelligence,
	domain.CategoryCreative,
	domain.CategoryTechnical,
}

// LoadDir reads extra skills from *.yaml and *.yml files in dir, one skill per
// file, sorted by file name. Ids already present in existing are rejected.
// A missing directory yields no skills.
func LoadDir(dir string, existing []domain.Skill) ([]domain.Skill, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read skill dir %s: %w", dir, err)
	}

	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.ID] = true
	}

	var skills []domain.Skill
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat skill file %s: %w", path, err)
		}
		if info.Size() > maxSkillFileSize {
			return nil, fmt.Errorf("skill file %s too large (%d bytes, max %d)", path, info.Size(), maxSkillFileSize)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read skill file %s: %w", path, err)
		}
		s, err := parseSkillFile(data)
		if err != nil {
			return nil, fmt.Errorf("parse skill file %s: %w", path, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate skill id %q in %s", s.ID, path)
		}
		seen[s.ID] = true
		skills = append(skills, s)
	}
	return skills, nil
}

func parseSkillFile(data []byte) (domain.Skill, error) {
	var s domain.Skill
	if err := yaml.Unmarshal(data, &s); err != nil {
		return domain.Skill{}, err
	}
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		return domain.Skill{}, fmt.Errorf("skill missing id")
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if !slices.Contains(validCategories, s.Category) {
		return domain.Skill{}, fmt.Errorf("invalid category %q: must be one of intelligence, creative, technical", s.Category)
	}
	return s, nil
}
