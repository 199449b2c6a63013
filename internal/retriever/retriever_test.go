package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/retry"
)

type fakeSearcher struct {
	total int
	errs  []error
	calls []github.SearchParams
	block bool
}

func (f *fakeSearcher) SearchRepositories(ctx context.Context, params *github.SearchParams) (*github.SearchPage, error) {
	f.calls = append(f.calls, *params)

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	start := (params.Page - 1) * params.PerPage
	page := &github.SearchPage{TotalCount: f.total}
	for i := start; i < min(start+params.PerPage, f.total); i++ {
		page.Items = append(page.Items, &github.Repository{ID: int64(i + 1), FullName: fmt.Sprintf("o/r%d", i+1)})
	}
	return page, nil
}

func testPolicy() retry.Policy {
	return retry.Policy{
		RateLimitAttempts: 2,
		TransientAttempts: 3,
		MaxDelay:          time.Second,
		Classify:          github.Classify,
	}
}

func rateLimited() error {
	return &github.APIError{StatusCode: http.StatusForbidden, Status: "403 Forbidden", RateLimited: true}
}

func serverError() error {
	return &github.APIError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}
}

func TestRetrieveClampsCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		count    int
		total    int
		expected int
	}{
		{name: "zero becomes one", count: 0, total: 100, expected: 1},
		{name: "negative becomes one", count: -4, total: 100, expected: 1},
		{name: "above max is clamped", count: 500, total: 100, expected: 30},
		{name: "fewer results than requested", count: 20, total: 7, expected: 7},
		{name: "exact", count: 5, total: 100, expected: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			searcher := &fakeSearcher{total: tt.total}
			repos, err := New(searcher, testPolicy(), Config{}, nil).Retrieve(context.Background(), "go", tt.count)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repos.Len() != tt.expected {
				t.Fatalf("expected %d repositories, got %d", tt.expected, repos.Len())
			}
		})
	}
}

func TestRetrievePaginates(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{total: 100}
	repos, err := New(searcher, testPolicy(), Config{MaxCount: 50, PerPage: 20}, nil).Retrieve(context.Background(), "go", 45)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repos.Len() != 45 {
		t.Fatalf("expected 45 repositories, got %d", repos.Len())
	}
	if len(searcher.calls) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(searcher.calls))
	}
	for i, call := range searcher.calls {
		if call.Page != i+1 || call.PerPage != 20 || call.Sort != "stars" || call.Order != "desc" {
			t.Fatalf("unexpected params for page %d: %+v", i+1, call)
		}
	}
	if repos.Items[44].ID != 45 {
		t.Fatalf("expected upstream order to be kept, got id %d last", repos.Items[44].ID)
	}
}

func TestRetrieveRetries(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{total: 10, errs: []error{rateLimited(), serverError(), serverError()}}
	repos, err := New(searcher, testPolicy(), Config{}, nil).Retrieve(context.Background(), "go", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repos.Len() != 5 || len(searcher.calls) != 4 {
		t.Fatalf("expected success on the fourth call, got %d repos after %d calls", repos.Len(), len(searcher.calls))
	}
}

func TestRetrieveExhaustion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		errs     []error
		sentinel error
		calls    int
	}{
		{name: "rate limit", errs: []error{rateLimited(), rateLimited(), rateLimited()}, sentinel: retry.ErrRateLimited, calls: 2},
		{name: "transient", errs: []error{serverError(), serverError(), serverError()}, sentinel: retry.ErrUnavailable, calls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			searcher := &fakeSearcher{total: 10, errs: tt.errs}
			_, err := New(searcher, testPolicy(), Config{}, nil).Retrieve(context.Background(), "go", 5)
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			if len(searcher.calls) != tt.calls {
				t.Fatalf("expected %d calls, got %d", tt.calls, len(searcher.calls))
			}
		})
	}
}

func TestRetrievePermanentErrorFailsAtOnce(t *testing.T) {
	t.Parallel()

	invalid := &github.APIError{StatusCode: http.StatusUnprocessableEntity, Status: "422 Unprocessable Entity"}
	searcher := &fakeSearcher{total: 10, errs: []error{invalid}}

	_, err := New(searcher, testPolicy(), Config{}, nil).Retrieve(context.Background(), "go", 5)
	var apiErr *github.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 error, got %v", err)
	}
	if len(searcher.calls) != 1 {
		t.Fatalf("expected a single call, got %d", len(searcher.calls))
	}
}

func TestRetrieveSecondPageFailureDiscardsFirst(t *testing.T) {
	t.Parallel()

	invalid := &github.APIError{StatusCode: http.StatusUnprocessableEntity, Status: "422 Unprocessable Entity"}
	searcher := &fakeSearcher{total: 100, errs: []error{nil, invalid}}

	repos, err := New(searcher, testPolicy(), Config{PerPage: 10}, nil).Retrieve(context.Background(), "go", 20)
	if err == nil || repos != nil {
		t.Fatalf("expected no partial result, got %v, %v", repos, err)
	}
}

func TestRetrieveCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(&fakeSearcher{block: true}, testPolicy(), Config{}, nil).Retrieve(ctx, "go", 5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	t.Parallel()

	if _, err := New(&fakeSearcher{}, testPolicy(), Config{}, nil).Retrieve(context.Background(), "", 5); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected empty query error, got %v", err)
	}
}
