// Package manifest derives skill names from dependency manifests found at the
// root of a repository.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"
)

// Parser extracts dependency names from the raw content of one manifest.
type Parser func(data []byte) ([]string, error)

var parsers = map[string]Parser{
	"package.json":     parsePackageJSON,
	"composer.json":    parseComposerJSON,
	"requirements.txt": parseRequirements,
	"go.mod":           parseGoMod,
	"Cargo.toml":       parseCargoToml,
	"pyproject.toml":   parsePyproject,
}

// Supported returns the recognised manifest file names, sorted.
func Supported() []string {
	names := make([]string, 0, len(parsers))
	for name := range parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsManifest reports whether a root file name is a recognised manifest.
func IsManifest(name string) bool {
	_, ok := parsers[name]
	return ok
}

// Parse returns the skill names derived from the manifest called name.
// Names are lower-cased and deduplicated in first-seen order.
func Parse(name string, data []byte) ([]string, error) {
	parser, ok := parsers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported manifest: %s", name)
	}

	deps, err := parser(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	seen := make(map[string]struct{}, len(deps))
	skills := make([]string, 0, len(deps))
	for _, dep := range deps {
		skill := strings.ToLower(strings.TrimSpace(dep))
		if skill == "" {
			continue
		}
		if _, ok := seen[skill]; ok {
			continue
		}
		seen[skill] = struct{}{}
		skills = append(skills, skill)
	}
	return skills, nil
}

func parsePackageJSON(data []byte) ([]string, error) {
	var pkg struct {
		Dependencies         map[string]string `json:"dependencies"`
		DevDependencies      map[string]string `json:"devDependencies"`
		PeerDependencies     map[string]string `json:"peerDependencies"`
		OptionalDependencies map[string]string `json:"optionalDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}

	var deps []string
	for _, group := range []map[string]string{pkg.Dependencies, pkg.PeerDependencies, pkg.DevDependencies, pkg.OptionalDependencies} {
		deps = append(deps, npmSkills(sortedKeys(group))...)
	}
	return deps, nil
}

// npmSkills maps package names to skill names. Scoped framework packages
// such as @angular/core resolve to their scope; @types packages to the typed
// package.
func npmSkills(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasPrefix(name, "@") {
			out = append(out, name)
			continue
		}
		scope, pkg, ok := strings.Cut(strings.TrimPrefix(name, "@"), "/")
		if !ok {
			continue
		}
		if scope == "types" {
			out = append(out, pkg)
			continue
		}
		out = append(out, scope)
	}
	return out
}

func parseComposerJSON(data []byte) ([]string, error) {
	var composer struct {
		Require    map[string]string `json:"require"`
		RequireDev map[string]string `json:"require-dev"`
	}
	if err := json.Unmarshal(data, &composer); err != nil {
		return nil, err
	}

	var deps []string
	for _, group := range []map[string]string{composer.Require, composer.RequireDev} {
		for _, name := range sortedKeys(group) {
			if name == "php" || strings.HasPrefix(name, "ext-") {
				continue
			}
			// laravel/framework -> laravel, symfony/console -> symfony
			vendor, _, _ := strings.Cut(name, "/")
			deps = append(deps, vendor)
		}
	}
	return deps, nil
}

var requirementName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

func parseRequirements(data []byte) ([]string, error) {
	var deps []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name := pep508Name(line); name != "" {
			deps = append(deps, name)
		}
	}
	return deps, scanner.Err()
}

// pep508Name returns the distribution name of a requirement specifier.
func pep508Name(spec string) string {
	return strings.ReplaceAll(requirementName.FindString(strings.TrimSpace(spec)), "_", "-")
}

func parseGoMod(data []byte) ([]string, error) {
	file, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, err
	}

	deps := []string{"go"}
	for _, req := range file.Require {
		if req.Indirect {
			continue
		}
		if name := goModuleSkill(req.Mod.Path); name != "" {
			deps = append(deps, name)
		}
	}
	return deps, nil
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// goModuleSkill maps a module path to a skill name:
// github.com/gin-gonic/gin -> gin, github.com/redis/go-redis/v9 -> redis.
func goModuleSkill(modulePath string) string {
	base := path.Base(modulePath)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(modulePath))
	}
	base = strings.TrimPrefix(base, "go-")
	base = strings.TrimSuffix(base, ".go")
	base = strings.TrimSuffix(base, "-go")
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func parseCargoToml(data []byte) ([]string, error) {
	var cargo struct {
		Dependencies      map[string]toml.Primitive `toml:"dependencies"`
		DevDependencies   map[string]toml.Primitive `toml:"dev-dependencies"`
		BuildDependencies map[string]toml.Primitive `toml:"build-dependencies"`
	}
	if _, err := toml.Decode(string(data), &cargo); err != nil {
		return nil, err
	}

	deps := []string{"rust"}
	for _, group := range []map[string]toml.Primitive{cargo.Dependencies, cargo.DevDependencies, cargo.BuildDependencies} {
		deps = append(deps, sortedKeys(group)...)
	}
	return deps, nil
}

func parsePyproject(data []byte) ([]string, error) {
	var pyproject struct {
		Project struct {
			Dependencies         []string            `toml:"dependencies"`
			OptionalDependencies map[string][]string `toml:"optional-dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies    map[string]toml.Primitive `toml:"dependencies"`
				DevDependencies map[string]toml.Primitive `toml:"dev-dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.Decode(string(data), &pyproject); err != nil {
		return nil, err
	}

	deps := []string{"python"}
	for _, spec := range pyproject.Project.Dependencies {
		deps = append(deps, pep508Name(spec))
	}
	for _, extra := range sortedKeys(pyproject.Project.OptionalDependencies) {
		for _, spec := range pyproject.Project.OptionalDependencies[extra] {
			deps = append(deps, pep508Name(spec))
		}
	}
	for _, group := range []map[string]toml.Primitive{pyproject.Tool.Poetry.Dependencies, pyproject.Tool.Poetry.DevDependencies} {
		for _, name := range sortedKeys(group) {
			if name == "python" {
				continue
			}
			deps = append(deps, name)
		}
	}
	return deps, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
