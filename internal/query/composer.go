// Package query composes repository search queries from a skill set.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/repo-matcher/internal/ai"
	"github.com/spigell/repo-matcher/internal/logger"
	"github.com/spigell/repo-matcher/internal/taxonomy"
	"github.com/spigell/repo-matcher/internal/utils"
)

const (
	// MaxLength is the longest query the search API accepts.
	MaxLength = 256
	// MaxInput is how many skills or languages are considered.
	MaxInput = 10

	maxLanguages = 5
	maxTerms     = 5
	maxOperators = 5

	popularityQualifier = "stars:>1000"
	maxLogLength        = 200
)

var defaultBaseQualifiers = []string{"archived:false"}

// Strategy names the way a query was produced.
type Strategy string

const (
	StrategyDeterministic Strategy = "deterministic"
	StrategyAssisted      Strategy = "assisted"
)

// Query is a composed search query.
type Query struct {
	Text     string   `json:"text"`
	Strategy Strategy `json:"strategy"`
	// FallbackReason says why assisted output was rejected.
	FallbackReason string `json:"fallbackReason,omitempty"`
}

// Input is what a query is composed from.
type Input struct {
	Skills    []string
	Languages []string
}

type Config struct {
	BaseQualifiers []string      `mapstructure:"base-qualifiers"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

//go:embed prompt.md
var promptTemplate string

// Composer turns skills into a query. With a generator configured it asks
// the model first and falls back to the deterministic query on any failure.
type Composer struct {
	taxonomy  *taxonomy.Taxonomy
	generator ai.Generator
	config    Config
	logger    *zap.Logger
}

// NewComposer accepts a nil generator, in which case only the deterministic
// strategy is used.
func NewComposer(tax *taxonomy.Taxonomy, generator ai.Generator, cfg Config, log *zap.Logger) *Composer {
	if cfg.BaseQualifiers == nil {
		cfg.BaseQualifiers = defaultBaseQualifiers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = ai.DefaultTimeout
	}

	return &Composer{
		taxonomy:  tax,
		generator: generator,
		config:    cfg,
		logger:    logger.WithFields(log),
	}
}

// Compose never fails: assisted output that errors, times out or does not
// validate is replaced by the deterministic query.
func (c *Composer) Compose(ctx context.Context, in Input) Query {
	deterministic := c.Deterministic(in)
	if c.generator == nil {
		return deterministic
	}

	text, err := c.assisted(ctx, in)
	if err != nil {
		reason := fallbackReason(err)
		c.logger.Warn("assisted query rejected, using deterministic query",
			zap.String("reason", reason),
			zap.String("query", deterministic.Text),
			zap.Error(err),
		)
		deterministic.FallbackReason = reason
		return deterministic
	}

	return Query{Text: text, Strategy: StrategyAssisted}
}

func (c *Composer) assisted(ctx context.Context, in Input) (string, error) {
	skills, languages := c.split(in)
	if len(skills) == 0 && len(languages) == 0 {
		return "", errNoInput
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	message := buildMessage(skills, languages, c.config.BaseQualifiers)
	log := logger.WithAI(c.logger, "", c.generator.Model())
	log.Debug("query generation request",
		zap.String("message_preview", utils.TruncateForLog(message, maxLogLength)),
	)

	raw, err := c.generator.GenerateContent(ctx, promptTemplate, message)
	if err != nil {
		return "", fmt.Errorf("generate query: %w", err)
	}

	log.Debug("query generation response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, maxLogLength)),
	)

	text := clean(raw)
	if text == "" {
		return "", fmt.Errorf("%w: %w", errInvalidOutput, ErrEmpty)
	}
	text = withQualifiers(text, c.config.BaseQualifiers)
	if err := Validate(text); err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidOutput, err)
	}
	return text, nil
}

var (
	errNoInput       = errors.New("no skills to compose from")
	errInvalidOutput = errors.New("invalid model output")
)

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, errNoInput):
		return "empty input"
	case errors.Is(err, errInvalidOutput):
		return "invalid output"
	default:
		return "generator error"
	}
}

func buildMessage(skills, languages, base []string) string {
	var b strings.Builder
	b.WriteString("Skills: ")
	b.WriteString(listOrNone(skills))
	b.WriteString("\nLanguages: ")
	b.WriteString(listOrNone(languages))
	b.WriteString("\nAlways include: ")
	b.WriteString(listOrNone(base))
	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// withQualifiers appends base qualifiers the model left out, as long as the
// result still fits.
func withQualifiers(text string, base []string) string {
	for _, qualifier := range base {
		if strings.Contains(text, qualifier) {
			continue
		}
		candidate := strings.TrimSpace(text + " " + qualifier)
		if utf8.RuneCountInString(candidate) > MaxLength {
			continue
		}
		text = candidate
	}
	return text
}

// Deterministic builds the rule-based query. The same input always yields
// the same text.
func (c *Composer) Deterministic(in Input) Query {
	skills, languages := c.split(in)

	var text string
	if len(skills) == 0 && len(languages) == 0 {
		text = join([]string{popularityQualifier}, c.config.BaseQualifiers)
	} else {
		text = c.fit(skills, languages)
	}

	return Query{Text: text, Strategy: StrategyDeterministic}
}

// fit drops free terms, then languages, from the end until the query fits.
func (c *Composer) fit(terms, languages []string) string {
	if len(languages) > maxLanguages {
		languages = languages[:maxLanguages]
	}
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	for {
		parts := make([]string, 0, len(languages)+1)
		for _, language := range languages {
			parts = append(parts, "language:"+quote(language))
		}
		if len(terms) > 0 {
			quoted := make([]string, 0, len(terms))
			for _, term := range terms {
				quoted = append(quoted, quote(term))
			}
			parts = append(parts, strings.Join(quoted, " OR "))
		}
		if len(parts) == 0 {
			parts = append(parts, popularityQualifier)
		}

		text := join(parts, c.config.BaseQualifiers)
		if utf8.RuneCountInString(text) <= MaxLength || (len(terms) == 0 && len(languages) == 0) {
			return text
		}

		if len(terms) > 0 {
			terms = terms[:len(terms)-1]
		} else {
			languages = languages[:len(languages)-1]
		}
	}
}

// split folds and deduplicates the input, caps it and moves skills the
// taxonomy knows as languages to the language list.
func (c *Composer) split(in Input) (terms, languages []string) {
	seen := map[string]struct{}{}
	for _, language := range capped(in.Languages) {
		name := sanitize(language)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		languages = append(languages, name)
	}

	for _, skill := range capped(in.Skills) {
		name := sanitize(skill)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if c.taxonomy != nil && c.taxonomy.IsLanguage(name) {
			languages = append(languages, name)
			continue
		}
		terms = append(terms, name)
	}

	return terms, languages
}

func capped(items []string) []string {
	if len(items) > MaxInput {
		return items[:MaxInput]
	}
	return items
}

// sanitize folds name and drops what the query grammar cannot carry:
// quotes, control characters and invalid UTF-8.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '"':
			return -1
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.ToValidUTF8(name, ""))
	return strings.Join(strings.Fields(taxonomy.Fold(name)), " ")
}

var plainWord = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func quote(term string) string {
	if plainWord.MatchString(term) {
		return term
	}
	return `"` + term + `"`
}

func join(parts, base []string) string {
	all := make([]string, 0, len(parts)+len(base))
	all = append(all, parts...)
	for _, qualifier := range base {
		if qualifier = strings.TrimSpace(qualifier); qualifier != "" {
			all = append(all, qualifier)
		}
	}
	return strings.Join(all, " ")
}
