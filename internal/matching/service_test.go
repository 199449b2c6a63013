package matching

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/spigell/repo-matcher/internal/analytics"
	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/query"
	"github.com/spigell/repo-matcher/internal/retriever"
	"github.com/spigell/repo-matcher/internal/retry"
	"github.com/spigell/repo-matcher/internal/skills"
	"github.com/spigell/repo-matcher/internal/taxonomy"
	"github.com/spigell/repo-matcher/internal/users"
)

type fakeSearcher struct {
	mu      sync.Mutex
	items   []*github.Repository
	err     error
	queries []string
}

func (f *fakeSearcher) SearchRepositories(_ context.Context, params *github.SearchParams) (*github.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, params.Query)
	if f.err != nil {
		return nil, f.err
	}
	start := (params.Page - 1) * params.PerPage
	end := min(start+params.PerPage, len(f.items))
	if start >= end {
		return &github.SearchPage{TotalCount: len(f.items)}, nil
	}
	return &github.SearchPage{TotalCount: len(f.items), Items: f.items[start:end]}, nil
}

type fakeExtractor struct {
	profile *skills.Profile
	err     error
	logins  []string
}

func (f *fakeExtractor) Extract(_ context.Context, login string) (*skills.Profile, error) {
	f.logins = append(f.logins, login)
	return f.profile, f.err
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingDispatcher) Dispatch(_ context.Context, event analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type slowGenerator struct{}

func (slowGenerator) GenerateContent(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowGenerator) Model() string { return "slow" }

type fixture struct {
	service    *Service
	searcher   *fakeSearcher
	extractor  *fakeExtractor
	dispatcher *recordingDispatcher
	spans      *tracetest.SpanRecorder
}

type option func(*Deps)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	tax := taxonomy.New([]string{"javascript", "typescript", "go"}, []string{"react", "vue", "docker"})
	searcher := &fakeSearcher{items: candidates()}
	extractor := &fakeExtractor{}
	dispatcher := &recordingDispatcher{}
	spans := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	policy := retry.Policy{RateLimitAttempts: 2, TransientAttempts: 2, MaxDelay: time.Second, Classify: github.Classify}
	deps := Deps{
		Directory:  users.Passthrough{},
		Extractor:  extractor,
		Composer:   query.NewComposer(tax, nil, query.Config{}, nil),
		Retriever:  retriever.New(searcher, policy, retriever.Config{}, nil),
		Taxonomy:   tax,
		Dispatcher: dispatcher,
		Tracer:     provider.Tracer("test"),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{
		service:    NewService(deps, Config{}, nil),
		searcher:   searcher,
		extractor:  extractor,
		dispatcher: dispatcher,
		spans:      spans,
	}
}

func candidates() []*github.Repository {
	repo := func(id int64, name, language string, stars int, topics ...string) *github.Repository {
		return &github.Repository{
			ID:       id,
			FullName: name,
			Language: language,
			Stars:    stars,
			Topics:   topics,
			HTMLURL:  "https://github.com/" + name,
		}
	}
	return []*github.Repository{
		repo(1, "big/rust-thing", "Rust", 90000),
		repo(2, "fb/react", "JavaScript", 220000, "react", "javascript"),
		repo(3, "vuejs/core", "TypeScript", 45000, "vue"),
		repo(2, "fb/react", "JavaScript", 220000, "react", "javascript"),
		repo(4, "acme/widgets", "JavaScript", 300),
		repo(5, "acme/hooks", "TypeScript", 1200, "react"),
		repo(6, "misc/docs", "", 50),
		repo(7, "kit/react-kit", "JavaScript", 800, "react"),
	}
}

func TestMatchExplicitSkills(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result, err := f.service.Match(context.Background(), Request{UserID: "octocat", Skills: []string{"JavaScript", "react", "React"}, Count: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Matches) > 5 {
		t.Fatalf("expected at most 5 matches, got %d", len(result.Matches))
	}
	if !reflect.DeepEqual(result.Skills, []string{"javascript", "react"}) {
		t.Fatalf("unexpected skills: %v", result.Skills)
	}
	if result.Query.Text != "language:javascript react archived:false" {
		t.Fatalf("unexpected query %q", result.Query.Text)
	}
	if len(f.extractor.logins) != 0 {
		t.Fatal("explicit skills must not trigger extraction")
	}

	seen := map[int64]struct{}{}
	sawUnmatched := false
	for i, match := range result.Matches {
		if _, dup := seen[match.Repository.ID]; dup {
			t.Fatalf("duplicate repository %s", match.Repository.FullName)
		}
		seen[match.Repository.ID] = struct{}{}

		if len(match.Matched) == 0 {
			sawUnmatched = true
		} else if sawUnmatched {
			t.Fatalf("matching repository %s ranked after a non-matching one", match.Repository.FullName)
		}
		if i > 0 {
			prev := result.Matches[i-1]
			if len(prev.Matched) < len(match.Matched) ||
				(len(prev.Matched) == len(match.Matched) && prev.Repository.Stars < match.Repository.Stars) {
				t.Fatalf("order violated between %s and %s", prev.Repository.FullName, match.Repository.FullName)
			}
		}
	}
	if result.Matches[0].Repository.FullName != "fb/react" {
		t.Fatalf("expected fb/react first, got %s", result.Matches[0].Repository.FullName)
	}

	expectedStates := []State{Pending, ExtractingSkills, ComposingQuery, RetrievingCandidates, Ranking, Done}
	if !reflect.DeepEqual(result.States, expectedStates) {
		t.Fatalf("unexpected states: %v", result.States)
	}

	if len(f.dispatcher.events) != 1 {
		t.Fatalf("expected one analytics event, got %d", len(f.dispatcher.events))
	}
	event := f.dispatcher.events[0]
	if event.Type != analytics.EventRepoMatch || event.Login != "octocat" || len(event.Payload) != len(result.Matches) {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Payload[0] != "fb/react - https://github.com/fb/react" {
		t.Fatalf("unexpected payload entry %q", event.Payload[0])
	}

	names := []string{}
	for _, span := range f.spans.Ended() {
		names = append(names, span.Name())
	}
	for _, want := range []string{"matching.Match", "matching.ExtractSkills", "matching.ComposeQuery", "matching.RetrieveCandidates", "matching.Rank"} {
		if !strings.Contains(strings.Join(names, ","), want) {
			t.Fatalf("expected span %s, got %v", want, names)
		}
	}
}

func TestMatchExtractedSkills(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.extractor.profile = skills.BuildProfile("octocat", []skills.RepositorySkillProfile{
		{FullName: "octocat/site", Language: "JavaScript", Dependencies: []string{"react", "left-pad"}},
		{FullName: "octocat/infra", Language: "HCL", Dependencies: []string{"docker"}},
	}, taxonomy.New([]string{"javascript"}, []string{"react", "docker"}))

	result, err := f.service.Match(context.Background(), Request{UserID: "octocat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(f.extractor.logins, []string{"octocat"}) {
		t.Fatalf("unexpected extractor calls: %v", f.extractor.logins)
	}
	if !reflect.DeepEqual(result.Skills, []string{"javascript", "react", "docker"}) {
		t.Fatalf("unexpected skills: %v", result.Skills)
	}
	if !reflect.DeepEqual(result.Languages, []string{"JavaScript", "HCL"}) {
		t.Fatalf("expected raw languages, got %v", result.Languages)
	}
	if result.Query.Text != "language:javascript react OR docker archived:false" {
		t.Fatalf("unexpected query %q", result.Query.Text)
	}
	if len(result.Matches) != 7 {
		t.Fatalf("expected every distinct candidate under the default count, got %d", len(result.Matches))
	}
}

func TestMatchExtractionFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{
			name: "unknown login",
			err:  fmt.Errorf("fetch repositories of ghost: %w", &github.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}),
			kind: KindIdentity,
		},
		{
			name: "upstream down",
			err:  fmt.Errorf("list repositories: %w after 2 attempts: boom", retry.ErrUnavailable),
			kind: KindUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.extractor.err = tt.err

			result, err := f.service.Match(context.Background(), Request{UserID: "ghost", Skills: []string{}})
			if result != nil {
				t.Fatalf("expected no result, got %+v", result)
			}

			var matchErr *Error
			if !errors.As(err, &matchErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if matchErr.Kind != tt.kind || matchErr.Stage != ExtractingSkills || matchErr.Actor != "ghost" {
				t.Fatalf("unexpected error: %+v", matchErr)
			}
			if len(f.searcher.queries) != 0 {
				t.Fatal("search must not run after extraction failed")
			}
			if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].Type != analytics.EventRepoMatchFailed {
				t.Fatalf("expected failure event, got %+v", f.dispatcher.events)
			}
		})
	}
}

func TestMatchAssistedTimeoutStillSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(d *Deps) {
		d.Composer = query.NewComposer(d.Taxonomy, slowGenerator{}, query.Config{Timeout: 20 * time.Millisecond}, nil)
	})

	result, err := f.service.Match(context.Background(), Request{UserID: "octocat", Skills: []string{"javascript", "react"}, Count: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) == 0 {
		t.Fatal("expected a non-empty result")
	}
	if result.Query.Strategy != query.StrategyDeterministic || result.Query.FallbackReason != "timeout" {
		t.Fatalf("expected deterministic fallback after timeout, got %+v", result.Query)
	}
}

func TestMatchFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		request Request
		setup   func(*fixture)
		kind    Kind
		stage   State
	}{
		{
			name:    "unknown user",
			request: Request{UserID: " "},
			kind:    KindIdentity,
			stage:   ExtractingSkills,
		},
		{
			name:    "blank skills",
			request: Request{UserID: "octocat", Skills: []string{" ", ""}},
			kind:    KindInvalidInput,
			stage:   ExtractingSkills,
		},
		{
			name:    "control characters in skills",
			request: Request{UserID: "octocat", Skills: []string{"go", "re\x07act\x00"}},
			kind:    KindInvalidInput,
			stage:   ExtractingSkills,
		},
		{
			name:    "too many skills",
			request: Request{UserID: "octocat", Skills: make([]string, MaxExplicitSkills+1)},
			kind:    KindInvalidInput,
			stage:   ExtractingSkills,
		},
		{
			name:    "rate limited search",
			request: Request{UserID: "octocat", Skills: []string{"go"}},
			setup: func(f *fixture) {
				f.searcher.err = &github.APIError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests", RateLimited: true}
			},
			kind:  KindRateLimited,
			stage: RetrievingCandidates,
		},
		{
			name:    "invalid search",
			request: Request{UserID: "octocat", Skills: []string{"go"}},
			setup: func(f *fixture) {
				f.searcher.err = &github.APIError{StatusCode: http.StatusUnprocessableEntity, Status: "422 Unprocessable Entity"}
			},
			kind:  KindUpstream,
			stage: RetrievingCandidates,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.service.Match(context.Background(), tt.request)
			var matchErr *Error
			if !errors.As(err, &matchErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if matchErr.Kind != tt.kind || matchErr.Stage != tt.stage {
				t.Fatalf("expected %s at %s, got %s at %s (%v)", tt.kind, tt.stage, matchErr.Kind, matchErr.Stage, matchErr.Err)
			}
			if KindOf(err) != tt.kind {
				t.Fatalf("KindOf disagrees: %s", KindOf(err))
			}
		})
	}
}

func TestMatchClampsCount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result, err := f.service.Match(context.Background(), Request{UserID: "octocat", Skills: []string{"react"}, Count: -3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Matches) != 1 {
		t.Fatalf("expected count to be clamped to 1, got %d", len(result.Matches))
	}
}

func TestSkills(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.extractor.profile = skills.BuildProfile("octocat", []skills.RepositorySkillProfile{
		{FullName: "octocat/a", Language: "Go", Dependencies: []string{"docker", "cobra"}},
	}, taxonomy.New([]string{"go"}, []string{"docker"}))

	result, err := f.service.Skills(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(result.Skills, []string{"go", "docker"}) || !reflect.DeepEqual(result.Languages, []string{"Go"}) {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.dispatcher.events) != 1 || f.dispatcher.events[0].Type != analytics.EventSkillsFetched {
		t.Fatalf("expected skills event, got %+v", f.dispatcher.events)
	}

	f.extractor.err = &github.APIError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	if _, err := f.service.Skills(context.Background(), "ghost"); KindOf(err) != KindIdentity {
		t.Fatalf("expected identity error, got %v", err)
	}
}

func TestMachineRejectsInvalidTransition(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()

	m := newMachine()
	m.advance(ExtractingSkills)
	m.advance(ComposingQuery)
	m.advance(Failed)
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := map[Kind]error{
		KindIdentity:     fmt.Errorf("resolve user: %w", users.ErrUserNotFound),
		KindInvalidInput: fmt.Errorf("%w: bad count", ErrInvalidInput),
		KindRateLimited:  fmt.Errorf("search: %w", retry.ErrRateLimited),
		KindUnavailable:  fmt.Errorf("search: %w", retry.ErrUnavailable),
		KindTimeout:      fmt.Errorf("search: %w", context.DeadlineExceeded),
		KindUpstream:     &github.APIError{StatusCode: http.StatusForbidden, Status: "403 Forbidden"},
		KindInternal:     errors.New("boom"),
	}
	for want, err := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v) = %s, want %s", err, got, want)
		}
	}
	if KindOf(nil) != "" {
		t.Fatal("expected empty kind for nil")
	}
}
