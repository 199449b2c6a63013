// Package ranking orders retrieved repositories by how well they match the
// requested skills.
package ranking

import (
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/logger"
)

// Match is a candidate repository with the requested terms it matched.
type Match struct {
	Repository *github.Repository
	// Matched holds requested skills and languages found in the repository's
	// language or topics, in request order.
	Matched []string
}

// Request describes what the candidates are ranked against.
type Request struct {
	Skills    []string
	Languages []string
	Count     int
}

// Stage is a single ranking step.
type Stage interface {
	Name() string
	Apply(matches []Match) ([]Match, Step)
}

// Step describes the result of executing a ranking step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Report pairs a stage name with its step result.
type Report struct {
	Name string
	Step Step
}

// Stages returns annotate, dedupe, order and truncate for req.
func Stages(req Request) []Stage {
	return []Stage{
		newAnnotate(req.Skills, req.Languages),
		dedupe{},
		order{},
		truncate{count: req.Count},
	}
}

// Rank runs the default stages over repos.
func Rank(req Request, repos *github.Repositories, log *zap.Logger) ([]Match, []Report) {
	matches := make([]Match, 0, repos.Len())
	for _, repo := range repos.Items {
		if repo == nil {
			continue
		}
		matches = append(matches, Match{Repository: repo})
	}
	return Run(Stages(req), matches, log)
}

// Run executes the supplied stages sequentially and logs every step.
func Run(stages []Stage, matches []Match, log *zap.Logger) ([]Match, []Report) {
	log = logger.WithFields(log)

	reports := make([]Report, 0, len(stages))
	for _, stage := range stages {
		next, info := stage.Apply(matches)

		log.Debug("ranking step",
			zap.String("name", stage.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		reports = append(reports, Report{Name: stage.Name(), Step: info})
		matches = next
	}

	return matches, reports
}

// Repositories unwraps the matched repositories.
func Repositories(matches []Match) *github.Repositories {
	repos := &github.Repositories{Items: make([]*github.Repository, 0, len(matches))}
	for _, match := range matches {
		repos.Items = append(repos.Items, match.Repository)
	}
	return repos
}
