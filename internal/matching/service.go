// Package matching runs the skill-to-repository pipeline: resolve the user,
// extract skills, compose a query, retrieve candidates and rank them.
package matching

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/query"
	"github.com/spigell/repo-matcher/internal/ranking"
	"github.com/spigell/repo-matcher/internal/skills"
	"github.com/spigell/repo-matcher/internal/taxonomy"
	"github.com/spigell/repo-matcher/internal/users"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultCount   = 15
	// MaxExplicitSkills bounds the skills a caller may supply.
	MaxExplicitSkills = 50

	tracerName = "github.com/spigell/repo-matcher/internal/matching"
)

type Extractor interface {
	Extract(ctx context.Context, login string) (*skills.Profile, error)
}

type Composer interface {
	Compose(ctx context.Context, in query.Input) query.Query
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, count int) (*github.Repositories, error)
	ClampCount(count int) int
}

type Dispatcher interface {
	Dispatch(ctx context.Context, event analytics.Event)
}

// Deps are the collaborators of a Service. Dispatcher and Tracer are
// optional.
type Deps struct {
	Directory  users.Directory
	Extractor  Extractor
	Composer   Composer
	Retriever  Retriever
	Taxonomy   *taxonomy.Taxonomy
	Dispatcher Dispatcher
	Tracer     trace.Tracer
}

type Config struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	DefaultCount int           `mapstructure:"default-count"`
}

// Request asks for repositories matching a user. When Skills is empty the
// skills are extracted from the user's repositories. A zero Count means the
// configured default.
type Request struct {
	UserID string
	Skills []string
	Count  int
}

// Result is a successful match.
type Result struct {
	Login     string
	Skills    []string
	Languages []string
	Query     query.Query
	Matches   []ranking.Match
	Steps     []ranking.Report
	// States lists the stages the request went through.
	States []State
}

// SkillsResult is the skill profile of a user.
type SkillsResult struct {
	Login     string
	Skills    []string
	Languages []string
	Profile   *skills.Profile
}

type Service struct {
	deps   Deps
	config Config
	logger *zap.Logger
}

func NewService(deps Deps, cfg Config, log *zap.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = DefaultCount
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}

	return &Service{
		deps:   deps,
		config: cfg,
		logger: logger.WithFields(log),
	}
}

// Match runs the whole pipeline for one request.
func (s *Service) Match(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ctx, span := s.deps.Tracer.Start(ctx, "matching.Match")
	defer span.End()

	m := newMachine()
	log := logger.ForRequest(s.logger, req.UserID, "")

	count := req.Count
	if count == 0 {
		count = s.config.DefaultCount
	}
	count = s.deps.Retriever.ClampCount(count)

	fail := func(err error) (*Result, error) {
		stage := m.state
		m.advance(Failed)

		matchErr := &Error{Kind: KindOf(err), Stage: stage, Actor: req.UserID, Skills: req.Skills, Err: err}
		endSpan(span, matchErr)

		log.Warn("match failed",
			zap.String("kind", string(matchErr.Kind)),
			zap.String("stage", stage.String()),
			zap.Error(err),
		)
		s.dispatch(ctx, analytics.Event{
			Type:   analytics.EventRepoMatchFailed,
			Actor:  req.UserID,
			Fields: map[string]string{"kind": string(matchErr.Kind), "stage": stage.String()},
		})
		return nil, matchErr
	}

	m.advance(ExtractingSkills)
	in, err := s.resolveSkills(ctx, req)
	if err != nil {
		return fail(err)
	}
	log = log.With(zap.String(logger.FieldLogin, in.login))

	m.advance(ComposingQuery)
	q := s.compose(ctx, in.skills, in.known)
	log.Debug("query composed",
		zap.String("query", q.Text),
		zap.String("strategy", string(q.Strategy)),
		zap.String("fallback_reason", q.FallbackReason),
	)

	m.advance(RetrievingCandidates)
	repos, err := s.retrieve(ctx, q.Text, count)
	if err != nil {
		return fail(err)
	}

	m.advance(Ranking)
	_, rankSpan := s.deps.Tracer.Start(ctx, "matching.Rank")
	matches, steps := ranking.Rank(ranking.Request{
		Skills:    in.skills,
		Languages: in.known,
		Count:     count,
	}, repos, log)
	rankSpan.SetAttributes(attribute.Int("matches", len(matches)))
	rankSpan.End()

	m.advance(Done)

	payload := make([]string, 0, len(matches))
	for _, match := range matches {
		payload = append(payload, fmt.Sprintf("%s - %s", match.Repository.FullName, match.Repository.HTMLURL))
	}
	s.dispatch(ctx, analytics.Event{
		Type:    analytics.EventRepoMatch,
		Actor:   req.UserID,
		Login:   in.login,
		Payload: payload,
		Fields:  map[string]string{"query": q.Text, "strategy": string(q.Strategy), "count": strconv.Itoa(len(matches))},
	})

	log.Info("match completed",
		zap.Int("skills", len(in.skills)),
		zap.Int("candidates", repos.Len()),
		zap.Int("matches", len(matches)),
	)

	return &Result{
		Login:     in.login,
		Skills:    in.skills,
		Languages: in.languages,
		Query:     q,
		Matches:   matches,
		Steps:     steps,
		States:    m.history,
	}, nil
}

type resolved struct {
	login  string
	skills []string
	// languages are reported as upstream spells them, known are the
	// taxonomy languages among them.
	languages []string
	known     []string
}

// resolveSkills resolves the login and either normalizes the explicit
// skills or extracts them from the user's repositories.
func (s *Service) resolveSkills(ctx context.Context, req Request) (*resolved, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "matching.ExtractSkills")
	defer span.End()

	login, err := s.deps.Directory.Login(ctx, req.UserID)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("resolve user: %w", err))
	}

	if len(req.Skills) > 0 {
		if len(req.Skills) > MaxExplicitSkills {
			return nil, endSpan(span, fmt.Errorf("%w: at most %d skills allowed", ErrInvalidInput, MaxExplicitSkills))
		}
		for _, name := range req.Skills {
			if hasControl(name) {
				return nil, endSpan(span, fmt.Errorf("%w: skill %q contains control characters", ErrInvalidInput, name))
			}
		}
		set := skills.Normalize(skills.FromNames(req.Skills, skills.OriginInput))
		if set.Len() == 0 {
			return nil, endSpan(span, fmt.Errorf("%w: skills must not be blank", ErrInvalidInput))
		}
		span.SetAttributes(attribute.Bool("explicit", true), attribute.Int("skills", set.Len()))
		return &resolved{login: login, skills: set.Names(), languages: []string{}, known: []string{}}, nil
	}

	profile, err := s.deps.Extractor.Extract(ctx, login)
	if err != nil {
		return nil, endSpan(span, err)
	}

	span.SetAttributes(attribute.Int("skills", profile.Matched.Len()), attribute.Int("repositories", len(profile.Repositories)))
	return &resolved{
		login:     login,
		skills:    profile.Matched.Names(),
		languages: profile.Languages,
		known:     s.knownLanguages(profile.Languages),
	}, nil
}

func hasControl(name string) bool {
	return strings.ContainsFunc(name, func(r rune) bool {
		return unicode.IsControl(r) && !unicode.IsSpace(r)
	})
}

func (s *Service) knownLanguages(languages []string) []string {
	known := []string{}
	for _, language := range languages {
		if s.deps.Taxonomy == nil || s.deps.Taxonomy.IsLanguage(language) {
			known = append(known, taxonomy.Fold(language))
		}
	}
	return known
}

func (s *Service) compose(ctx context.Context, skillNames, languages []string) query.Query {
	ctx, span := s.deps.Tracer.Start(ctx, "matching.ComposeQuery")
	defer span.End()

	q := s.deps.Composer.Compose(ctx, query.Input{Skills: skillNames, Languages: languages})
	span.SetAttributes(
		attribute.String("strategy", string(q.Strategy)),
		attribute.String("fallback_reason", q.FallbackReason),
	)
	return q
}

func (s *Service) retrieve(ctx context.Context, text string, count int) (*github.Repositories, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "matching.RetrieveCandidates")
	defer span.End()

	span.SetAttributes(attribute.String("query", text), attribute.Int("count", count))
	repos, err := s.deps.Retriever.Retrieve(ctx, text, count)
	if err != nil {
		return nil, endSpan(span, err)
	}
	return repos, nil
}

// Skills returns the taxonomy-matched skills and raw languages of a user.
func (s *Service) Skills(ctx context.Context, userID string) (*SkillsResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ctx, span := s.deps.Tracer.Start(ctx, "matching.Skills")
	defer span.End()

	log := logger.ForRequest(s.logger, userID, "")

	failed := func(err error) (*SkillsResult, error) {
		skillsErr := &Error{Kind: KindOf(err), Stage: ExtractingSkills, Actor: userID, Err: err}
		endSpan(span, skillsErr)
		log.Warn("skills request failed", zap.String("kind", string(skillsErr.Kind)), zap.Error(err))
		return nil, skillsErr
	}

	login, err := s.deps.Directory.Login(ctx, userID)
	if err != nil {
		return failed(fmt.Errorf("resolve user: %w", err))
	}

	profile, err := s.deps.Extractor.Extract(ctx, login)
	if err != nil {
		return failed(err)
	}

	s.dispatch(ctx, analytics.Event{
		Type:    analytics.EventSkillsFetched,
		Actor:   userID,
		Login:   login,
		Payload: profile.Matched.Names(),
	})
	log.Info("skills fetched", zap.String(logger.FieldLogin, login), zap.Int("skills", profile.Matched.Len()))

	return &SkillsResult{
		Login:     login,
		Skills:    profile.Matched.Names(),
		Languages: profile.Languages,
		Profile:   profile,
	}, nil
}

func (s *Service) dispatch(ctx context.Context, event analytics.Event) {
	if s.deps.Dispatcher == nil {
		return
	}
	s.deps.Dispatcher.Dispatch(ctx, event)
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(KindOf(err)))
	return err
}
