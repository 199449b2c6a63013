package ranking

import (
	"sort"
	"strings"
)

type annotate struct {
	terms []string
}

func newAnnotate(skills, languages []string) annotate {
	seen := map[string]struct{}{}
	terms := make([]string, 0, len(skills)+len(languages))
	for _, term := range append(append([]string{}, skills...), languages...) {
		key := topicKey(term)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, strings.ToLower(strings.TrimSpace(term)))
	}
	return annotate{terms: terms}
}

func (a annotate) Name() string { return "annotate" }

func (a annotate) Apply(matches []Match) ([]Match, Step) {
	for i := range matches {
		repo := matches[i].Repository
		have := map[string]struct{}{}
		if key := topicKey(repo.Language); key != "" {
			have[key] = struct{}{}
		}
		for _, topic := range repo.Topics {
			have[topicKey(topic)] = struct{}{}
		}

		matched := []string{}
		for _, term := range a.terms {
			if _, ok := have[topicKey(term)]; ok {
				matched = append(matched, term)
			}
		}
		matches[i].Matched = matched
	}

	return matches, Step{Initial: len(matches), Left: len(matches)}
}

// topicKey folds a name to the form used by topics: "Machine Learning" and
// "machine-learning" compare equal.
func topicKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

type dedupe struct{}

func (dedupe) Name() string { return "dedupe" }

func (dedupe) Apply(matches []Match) ([]Match, Step) {
	initial := len(matches)
	seen := make(map[int64]struct{}, initial)
	unique := matches[:0]
	for _, match := range matches {
		if _, ok := seen[match.Repository.ID]; ok {
			continue
		}
		seen[match.Repository.ID] = struct{}{}
		unique = append(unique, match)
	}

	return unique, Step{Initial: initial, Dropped: initial - len(unique), Left: len(unique)}
}

type order struct{}

func (order) Name() string { return "order" }

// Apply sorts by matched term count, then stars, then full name.
func (order) Apply(matches []Match) ([]Match, Step) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if len(a.Matched) != len(b.Matched) {
			return len(a.Matched) > len(b.Matched)
		}
		if a.Repository.Stars != b.Repository.Stars {
			return a.Repository.Stars > b.Repository.Stars
		}
		return a.Repository.FullName < b.Repository.FullName
	})

	return matches, Step{Initial: len(matches), Left: len(matches)}
}

type truncate struct {
	count int
}

func (truncate) Name() string { return "truncate" }

func (t truncate) Apply(matches []Match) ([]Match, Step) {
	initial := len(matches)
	if t.count >= 0 && initial > t.count {
		matches = matches[:t.count]
	}
	return matches, Step{Initial: initial, Dropped: initial - len(matches), Left: len(matches)}
}
