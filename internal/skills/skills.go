// Package skills turns a developer's repositories into a normalized skill
// set and matches it against the taxonomy.
package skills

import (
	"github.com/spigell/repo-matcher/internal/taxonomy"
)

// Origin records where a skill name came from.
type Origin string

const (
	OriginLanguage   Origin = "language"
	OriginDependency Origin = "dependency"
	OriginInput      Origin = "input"
)

// Skill is a skill name tagged with its provenance.
type Skill struct {
	Name   string `json:"name"`
	Origin Origin `json:"origin"`
}

// FromNames tags every name with the same origin.
func FromNames(names []string, origin Origin) []Skill {
	out := make([]Skill, 0, len(names))
	for _, name := range names {
		out = append(out, Skill{Name: name, Origin: origin})
	}
	return out
}

// SkillSet holds lower-cased skill names, unique ignoring case. Skills are
// kept in first-seen order so that everything derived from a set is
// reproducible; the order has no meaning for equality.
type SkillSet struct {
	items []Skill
	index map[string]int
}

// Normalize folds, trims and deduplicates skills. The first occurrence of a
// name decides its origin. Normalizing a normalized set is a no-op.
func Normalize(skills []Skill) *SkillSet {
	set := &SkillSet{index: make(map[string]int, len(skills))}
	for _, skill := range skills {
		set.Add(skill)
	}
	return set
}

// Add inserts a skill and reports whether it was new.
func (s *SkillSet) Add(skill Skill) bool {
	name := taxonomy.Fold(skill.Name)
	if name == "" {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = len(s.items)
	s.items = append(s.items, Skill{Name: name, Origin: skill.Origin})
	return true
}

// Contains reports whether name is in the set, ignoring case.
func (s *SkillSet) Contains(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[taxonomy.Fold(name)]
	return ok
}

func (s *SkillSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Skills returns a copy of the skills in first-seen order.
func (s *SkillSet) Skills() []Skill {
	if s == nil {
		return nil
	}
	out := make([]Skill, len(s.items))
	copy(out, s.items)
	return out
}

// Names returns the skill names in first-seen order.
func (s *SkillSet) Names() []string {
	if s == nil {
		return []string{}
	}
	names := make([]string, 0, len(s.items))
	for _, skill := range s.items {
		names = append(names, skill.Name)
	}
	return names
}

// Equal reports whether both sets hold the same names, ignoring order.
func (s *SkillSet) Equal(other *SkillSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, skill := range s.Skills() {
		if !other.Contains(skill.Name) {
			return false
		}
	}
	return true
}

// Match returns the subset of set recognised by the taxonomy.
func Match(set *SkillSet, tax *taxonomy.Taxonomy) *SkillSet {
	matched := &SkillSet{index: make(map[string]int)}
	for _, skill := range set.Skills() {
		if tax.Contains(skill.Name) {
			matched.Add(skill)
		}
	}
	return matched
}
