// Package retry applies a bounded retry policy to upstream calls. Rate-limit
// failures and transient failures are counted against separate ceilings so
// an exhausted quota is reported differently from an unreachable upstream.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/utils"
)

// Class is the retry category of an error.
type Class int

const (
	// Permanent errors are returned at once.
	Permanent Class = iota
	// RateLimited errors are retried up to Policy.RateLimitAttempts.
	RateLimited
	// Transient errors (network, 5xx) are retried up to Policy.TransientAttempts.
	Transient
)

func (c Class) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case Transient:
		return "transient"
	default:
		return "permanent"
	}
}

var (
	// ErrRateLimited is returned once the rate-limit ceiling is reached.
	ErrRateLimited = errors.New("upstream rate limit exhausted")
	// ErrUnavailable is returned once the transient-failure ceiling is reached.
	ErrUnavailable = errors.New("upstream unavailable")
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = time.Second
	defaultMaxDelay  = 30 * time.Second
)

// Classifier maps an error to its retry class.
type Classifier func(err error) Class

// waitHinter is implemented by errors that carry an upstream wait hint,
// e.g. from a Retry-After header.
type waitHinter interface {
	RetryAfter() time.Duration
}

// Policy describes how an operation is retried.
type Policy struct {
	RateLimitAttempts int
	TransientAttempts int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Classify          Classifier
	Logger            *zap.Logger

	// jitter returns a random duration in [0, d). Replaced in tests.
	jitter func(d time.Duration) time.Duration
}

// Do runs op until it succeeds, fails permanently, exhausts a ceiling or
// ctx is done. The name is only used for logging.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	p = p.withDefaults()

	counts := map[Class]int{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		// A per-request timeout also matches context.DeadlineExceeded, so only
		// the caller's own context decides cancellation.
		if ctx.Err() != nil {
			return err
		}

		class := p.Classify(err)
		if class == Permanent {
			return err
		}

		counts[class]++
		attempt := counts[class]

		ceiling, exhausted := p.ceiling(class)
		if attempt >= ceiling {
			return fmt.Errorf("%s: %w after %d attempts: %w", name, exhausted, attempt, err)
		}

		delay, ok := p.delay(attempt, err)
		if !ok {
			return fmt.Errorf("%s: %w: upstream asked to wait longer than %s: %w", name, exhausted, p.MaxDelay, err)
		}

		p.Logger.Debug("retrying upstream call",
			zap.String("operation", name),
			zap.String("class", class.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := utils.WaitFor(ctx, delay); err != nil {
			return err
		}
	}
}

func (p Policy) ceiling(class Class) (int, error) {
	if class == RateLimited {
		return p.RateLimitAttempts, ErrRateLimited
	}
	return p.TransientAttempts, ErrUnavailable
}

// delay computes the exponential backoff for the given attempt, honouring an
// upstream wait hint. It reports false when the hint exceeds MaxDelay.
func (p Policy) delay(attempt int, err error) (time.Duration, bool) {
	d := p.BaseDelay
	for i := 1; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}

	var hinter waitHinter
	if errors.As(err, &hinter) {
		hint := hinter.RetryAfter()
		if hint > p.MaxDelay {
			return 0, false
		}
		if hint > d {
			d = hint
		}
	}

	return d + p.jitter(d/2), true
}

func (p Policy) withDefaults() Policy {
	if p.RateLimitAttempts <= 0 {
		p.RateLimitAttempts = defaultAttempts
	}
	if p.TransientAttempts <= 0 {
		p.TransientAttempts = defaultAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Classify == nil {
		p.Classify = func(error) Class { return Permanent }
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.jitter == nil {
		p.jitter = randomJitter
	}
	return p
}

func randomJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return rand.N(d)
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy(classify Classifier, logger *zap.Logger) Policy {
	return Policy{
		RateLimitAttempts: defaultAttempts,
		TransientAttempts: defaultAttempts,
		BaseDelay:         defaultBaseDelay,
		MaxDelay:          defaultMaxDelay,
		Classify:          classify,
		Logger:            logger,
	}
}
