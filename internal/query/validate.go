package query

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmpty   = errors.New("query is empty")
	ErrTooLong = fmt.Errorf("query is longer than %d characters", MaxLength)
)

var allowedQualifiers = map[string]struct{}{
	"language":           {},
	"topic":              {},
	"topics":             {},
	"stars":              {},
	"forks":              {},
	"in":                 {},
	"is":                 {},
	"archived":           {},
	"pushed":             {},
	"created":            {},
	"good-first-issues":  {},
	"help-wanted-issues": {},
	"license":            {},
	"size":               {},
}

var operators = map[string]struct{}{
	"OR":  {},
	"AND": {},
	"NOT": {},
}

// Validate checks that text is a well-formed repository search query that
// only uses allow-listed qualifiers.
func Validate(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxLength {
		return ErrTooLong
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return fmt.Errorf("query contains control character %U", r)
		}
	}
	if strings.Count(text, `"`)%2 != 0 {
		return errors.New("query has unbalanced quotes")
	}

	tokens := tokenize(text)
	ops := 0
	for i, token := range tokens {
		if _, ok := operators[token]; ok {
			ops++
			if i == 0 || i == len(tokens)-1 {
				return fmt.Errorf("query starts or ends with operator %s", token)
			}
			continue
		}

		if strings.HasPrefix(token, `"`) {
			continue
		}
		name, value, ok := strings.Cut(strings.TrimPrefix(token, "-"), ":")
		if !ok {
			continue
		}
		if _, allowed := allowedQualifiers[strings.ToLower(name)]; !allowed {
			return fmt.Errorf("qualifier %q is not allowed", name)
		}
		if strings.Trim(value, `"`) == "" {
			return fmt.Errorf("qualifier %q has no value", name)
		}
	}
	if ops > maxOperators {
		return fmt.Errorf("query has %d boolean operators, at most %d allowed", ops, maxOperators)
	}

	return nil
}

// tokenize splits on whitespace outside double quotes.
func tokenize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}

// clean strips what models commonly wrap a bare answer in.
func clean(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.IndexAny(raw, "\n"); idx != -1 && !strings.Contains(raw[:idx], " ") {
			// language tag of the fence
			raw = raw[idx+1:]
		}
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		raw = raw[1 : len(raw)-1]
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' && strings.Count(raw, `"`) == 2 {
		raw = raw[1 : len(raw)-1]
	}
	return strings.TrimSpace(raw)
}
