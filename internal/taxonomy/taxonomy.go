// Package taxonomy holds the allow-list of canonical skill names. A Taxonomy
// is built once at start-up and is read-only afterwards, so it is safe to
// share between concurrent requests.
package taxonomy

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Kind tells how a taxonomy entry may be used in a search query.
type Kind string

const (
	// KindLanguage entries can be used as language qualifiers.
	KindLanguage Kind = "language"
	// KindSkill entries are frameworks, libraries and tools.
	KindSkill Kind = "skill"
)

//go:embed taxonomy.yaml
var defaultDocument []byte

// Document is the on-disk shape of a taxonomy.
type Document struct {
	Languages []string `yaml:"languages" toml:"languages"`
	Skills    []string `yaml:"skills" toml:"skills"`
}

// Taxonomy is an immutable set of canonical skill names.
type Taxonomy struct {
	entries map[string]Kind
}

// New builds a taxonomy from language and skill names. Names are folded to
// lower case; a name listed as both keeps the language kind.
func New(languages, skills []string) *Taxonomy {
	t := &Taxonomy{entries: make(map[string]Kind, len(languages)+len(skills))}
	t.add(languages, KindLanguage)
	t.add(skills, KindSkill)
	return t
}

func (t *Taxonomy) add(names []string, kind Kind) {
	for _, name := range names {
		key := Fold(name)
		if key == "" {
			continue
		}
		if _, ok := t.entries[key]; ok {
			continue
		}
		t.entries[key] = kind
	}
}

// Default returns the taxonomy bundled with the binary.
func Default() (*Taxonomy, error) {
	return Parse(defaultDocument, "yaml")
}

// Load reads a taxonomy file. The format is picked by extension: .toml for
// TOML, anything else is read as YAML. An empty path yields the default.
func Load(path string) (*Taxonomy, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file %q: %w", path, err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}

	t, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("taxonomy file %q: %w", path, err)
	}
	return t, nil
}

// Parse decodes a taxonomy document in the given format ("yaml" or "toml").
func Parse(data []byte, format string) (*Taxonomy, error) {
	var doc Document

	switch strings.ToLower(format) {
	case "toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported taxonomy format: %s", format)
	}

	t := New(doc.Languages, doc.Skills)
	if t.Len() == 0 {
		return nil, fmt.Errorf("taxonomy has no entries")
	}
	return t, nil
}

// Fold normalizes a skill name for comparison.
func Fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Contains reports whether name is a canonical skill, ignoring case.
func (t *Taxonomy) Contains(name string) bool {
	_, ok := t.Kind(name)
	return ok
}

// Kind returns the kind of the entry matching name.
func (t *Taxonomy) Kind(name string) (Kind, bool) {
	if t == nil {
		return "", false
	}
	kind, ok := t.entries[Fold(name)]
	return kind, ok
}

// IsLanguage reports whether name is a known language.
func (t *Taxonomy) IsLanguage(name string) bool {
	kind, ok := t.Kind(name)
	return ok && kind == KindLanguage
}

// Len returns the number of entries.
func (t *Taxonomy) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
