package skills

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/manifest"
	"github.com/spigell/repo-matcher/internal/retry"
	"github.com/spigell/repo-matcher/internal/taxonomy"
)

const (
	DefaultMaxRepositories = 30
	DefaultConcurrency     = 4
)

// Source is the code-hosting API as seen by the extractor.
type Source interface {
	ListUserRepositories(ctx context.Context, login string, limit int) (*github.Repositories, error)
	ListRootFiles(ctx context.Context, fullName string) ([]github.ContentEntry, error)
	GetFile(ctx context.Context, fullName, filePath string) ([]byte, error)
}

type Config struct {
	MaxRepositories int `mapstructure:"max-repos"`
	Concurrency     int `mapstructure:"manifest-concurrency"`
}

// RepositorySkillProfile is what one repository says about its owner.
type RepositorySkillProfile struct {
	FullName     string   `json:"fullName"`
	Language     string   `json:"language,omitempty"`
	Dependencies []string `json:"dependencies"`
	// Degraded is set when the manifests could not be read.
	Degraded bool `json:"degraded,omitempty"`
}

// Profile is the extracted skill profile of a developer.
type Profile struct {
	Login        string
	Repositories []RepositorySkillProfile
	// Languages are the distinct primary languages as reported upstream.
	Languages    []string
	Dependencies []string
	Candidates   *SkillSet
	Matched      *SkillSet
}

// Extractor builds a Profile from a user's public repositories.
type Extractor struct {
	source   Source
	taxonomy *taxonomy.Taxonomy
	policy   retry.Policy
	config   Config
	logger   *zap.Logger
}

func NewExtractor(source Source, tax *taxonomy.Taxonomy, policy retry.Policy, cfg Config, log *zap.Logger) *Extractor {
	if cfg.MaxRepositories <= 0 {
		cfg.MaxRepositories = DefaultMaxRepositories
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	return &Extractor{
		source:   source,
		taxonomy: tax,
		policy:   policy,
		config:   cfg,
		logger:   logger.WithFields(log),
	}
}

// Extract lists the user's repositories and reads their manifests. Failing
// to list the repositories is fatal; failing to read one repository's
// manifests only degrades that repository.
func (e *Extractor) Extract(ctx context.Context, login string) (*Profile, error) {
	log := e.logger.With(zap.String(logger.FieldLogin, login))

	var repos *github.Repositories
	err := e.policy.Do(ctx, "list repositories", func(ctx context.Context) error {
		var err error
		repos, err = e.source.ListUserRepositories(ctx, login, e.config.MaxRepositories)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch repositories of %s: %w", login, err)
	}

	log.Debug("repositories listed", zap.Int("count", repos.Len()))

	profiles := make([]RepositorySkillProfile, repos.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for i, repo := range repos.Items {
		g.Go(func() error {
			profiles[i] = RepositorySkillProfile{
				FullName:     repo.FullName,
				Language:     repo.Language,
				Dependencies: []string{},
			}

			deps, err := e.dependencies(gctx, repo.FullName)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn("manifests unavailable, repository degraded",
					zap.String("repository", repo.FullName),
					zap.Error(err),
				)
				profiles[i].Degraded = true
				return nil
			}

			profiles[i].Dependencies = deps
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile := BuildProfile(login, profiles, e.taxonomy)
	log.Info("skills extracted",
		zap.Int("repositories", len(profiles)),
		zap.Int("candidates", profile.Candidates.Len()),
		zap.Int("matched", profile.Matched.Len()),
	)

	return profile, nil
}

// dependencies reads every recognised manifest at the repository root.
func (e *Extractor) dependencies(ctx context.Context, fullName string) ([]string, error) {
	var files []github.ContentEntry
	err := e.policy.Do(ctx, "list root files", func(ctx context.Context) error {
		var err error
		files, err = e.source.ListRootFiles(ctx, fullName)
		return err
	})
	if err != nil {
		// An empty repository has no contents at all.
		if github.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, err
	}

	deps := []string{}
	for _, file := range files {
		if !manifest.IsManifest(file.Name) {
			continue
		}

		var data []byte
		err := e.policy.Do(ctx, "get manifest", func(ctx context.Context) error {
			var err error
			data, err = e.source.GetFile(ctx, fullName, file.Path)
			return err
		})
		if err != nil {
			return nil, err
		}

		parsed, err := manifest.Parse(file.Name, data)
		if err != nil {
			return nil, err
		}
		deps = append(deps, parsed...)
	}

	return deps, nil
}

// BuildProfile unions languages and dependency skills into the candidate
// set and intersects it with the taxonomy.
func BuildProfile(login string, repos []RepositorySkillProfile, tax *taxonomy.Taxonomy) *Profile {
	candidates := Normalize(nil)
	dependencies := Normalize(nil)
	languages := []string{}
	seenLanguages := map[string]struct{}{}

	for _, repo := range repos {
		if repo.Language == "" {
			continue
		}
		candidates.Add(Skill{Name: repo.Language, Origin: OriginLanguage})

		key := taxonomy.Fold(repo.Language)
		if _, ok := seenLanguages[key]; ok {
			continue
		}
		seenLanguages[key] = struct{}{}
		languages = append(languages, repo.Language)
	}

	for _, repo := range repos {
		for _, dep := range repo.Dependencies {
			candidates.Add(Skill{Name: dep, Origin: OriginDependency})
			dependencies.Add(Skill{Name: dep, Origin: OriginDependency})
		}
	}

	return &Profile{
		Login:        login,
		Repositories: repos,
		Languages:    languages,
		Dependencies: dependencies.Names(),
		Candidates:   candidates,
		Matched:      Match(candidates, tax),
	}
}
