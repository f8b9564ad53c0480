// Package validate checks free-text goal descriptions before they reach the
// language model.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLength is the goal description limit in characters.
const DefaultMaxLength = 2000

// Validation messages.
const (
	MsgNotText       = "input must be text"
	MsgEmpty         = "input cannot be empty"
	MsgNoVisibleText = "input contains no readable text"
	MsgDisallowed    = "input contains disallowed content"
)

// Result is the outcome of a validation. Error is empty when IsValid is true.
type Result struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// Option adjusts the validation policy.
type Option func(*policy)

type policy struct {
	rejectControlOnly bool
	disallowed        []*regexp.Regexp
}

// RejectControlOnly rejects text made up solely of control, format, and
// whitespace characters (for example zero-width spaces). Enabled by default.
func RejectControlOnly(enabled bool) Option {
	return func(p *policy) {
		p.rejectControlOnly = enabled
	}
}

// DisallowPatterns rejects text matching any of the patterns.
func DisallowPatterns(patterns ...*regexp.Regexp) Option {
	return func(p *policy) {
		for _, re := range patterns {
			if re != nil {
				p.disallowed = append(p.disallowed, re)
			}
		}
	}
}

// CompilePatterns compiles configured pattern strings, skipping blanks.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid disallowed pattern %q: %w", raw, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// ValidateText checks input against the rules in order; the first failure
// wins. Length is counted in characters of the trimmed text. A maxLength of
// zero or less disables the length check.
func ValidateText(input any, maxLength int, opts ...Option) Result {
	p := policy{rejectControlOnly: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}

	text, ok := input.(string)
	if !ok {
		return invalid(MsgNotText)
	}

	trimmed := strings.TrimSpace(text)
	length := utf8.RuneCountInString(trimmed)
	if length == 0 {
		return invalid(MsgEmpty)
	}

	if maxLength > 0 && length > maxLength {
		return invalid(fmt.Sprintf("input exceeds maximum length of %d characters", maxLength))
	}

	if p.rejectControlOnly && !hasVisibleRune(trimmed) {
		return invalid(MsgNoVisibleText)
	}

	for _, re := range p.disallowed {
		if re.MatchString(trimmed) {
			return invalid(MsgDisallowed)
		}
	}

	return Result{IsValid: true}
}

func hasVisibleRune(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		return true
	}
	return false
}

func invalid(msg string) Result {
	return Result{IsValid: false, Error: msg}
}
