package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/spigell/repo-matcher/internal/github"
	"github.com/spigell/repo-matcher/internal/retry"
	"github.com/spigell/repo-matcher/internal/users"
)

// Kind classifies a pipeline failure for callers.
type Kind string

const (
	KindIdentity     Kind = "identity"
	KindInvalidInput Kind = "invalid_input"
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindTimeout      Kind = "timeout"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

// ErrInvalidInput marks caller mistakes.
var ErrInvalidInput = errors.New("invalid input")

// Error is a failed match or skills request.
type Error struct {
	Kind   Kind
	Stage  State
	Actor  string
	Skills []string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies any error returned by the pipeline or its collaborators.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var matchErr *Error
	if errors.As(err, &matchErr) && matchErr.Kind != "" {
		return matchErr.Kind
	}

	var apiErr *github.APIError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, users.ErrUserNotFound), errors.Is(err, github.ErrNotFound):
		return KindIdentity
	case errors.Is(err, retry.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, retry.ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.As(err, &apiErr):
		return KindUpstream
	default:
		return KindInternal
	}
}
