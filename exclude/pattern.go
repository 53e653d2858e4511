package exclude

import (
	"strings"
	"unicode"
)

const (
	// MaxPatterns bounds the work a single filter can be asked to do.
	MaxPatterns = 64
	// MaxPatternLength is measured in bytes.
	MaxPatternLength = 255

	wildcard = "*"
)

type MatcherKind int

const (
	Exact MatcherKind = iota
	PrefixWildcard
	SuffixWildcard
	Contains
	OrderedParts
)

func (k MatcherKind) String() string {
	switch k {
	case Exact:
		return "exact"
	case PrefixWildcard:
		return "prefix-wildcard"
	case SuffixWildcard:
		return "suffix-wildcard"
	case Contains:
		return "contains"
	case OrderedParts:
		return "ordered-parts"
	default:
		return "unknown"
	}
}

// Matcher is the compiled shape of a pattern.
// Literal is used by every kind except OrderedParts, which uses Parts.
type Matcher struct {
	Kind    MatcherKind
	Literal string
	Parts   []string
}

// Matches reports whether name matches. Comparison is case-sensitive and unnormalized.
func (m Matcher) Matches(name string) bool {
	switch m.Kind {
	case Exact:
		return name == m.Literal
	case PrefixWildcard:
		return strings.HasSuffix(name, m.Literal)
	case SuffixWildcard:
		return strings.HasPrefix(name, m.Literal)
	case Contains:
		return strings.Contains(name, m.Literal)
	case OrderedParts:
		pos := 0
		for _, part := range m.Parts {
			i := strings.Index(name[pos:], part)
			if i < 0 {
				return false
			}
			pos += i + len(part)
		}
		return true
	default:
		return false
	}
}

type Pattern struct {
	Raw     string
	Matcher Matcher
}

// Compile validates every raw pattern and compiles it. The whole batch is rejected on the
// first violation.
func Compile(raw []string) ([]Pattern, error) {
	if len(raw) > MaxPatterns {
		return nil, &TooManyPatternsError{Count: len(raw), Max: MaxPatterns}
	}

	patterns := make([]Pattern, 0, len(raw))
	for i, p := range raw {
		if err := validate(p); err != nil {
			err.Index = i
			return nil, err
		}
		patterns = append(patterns, Pattern{Raw: p, Matcher: compile(p)})
	}
	return patterns, nil
}

func validate(pattern string) *PatternError {
	if pattern == "" {
		return &PatternError{Pattern: pattern, Err: ErrInvalidPattern}
	}
	if len(pattern) > MaxPatternLength {
		return &PatternError{Pattern: pattern, Err: ErrPatternTooLong}
	}
	for _, r := range pattern {
		if !validChar(r) {
			return &PatternError{Pattern: pattern, Char: r, Err: ErrInvalidPatternCharacter}
		}
	}
	if strings.Trim(pattern, wildcard) == "" {
		return &PatternError{Pattern: pattern, Err: ErrPatternTooBroad}
	}
	return nil
}

func validChar(r rune) bool {
	switch r {
	case '-', '_', '.', '[', ']', '*':
		return true
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func compile(pattern string) Matcher {
	switch strings.Count(pattern, wildcard) {
	case 0:
		return Matcher{Kind: Exact, Literal: pattern}
	case 1:
		if rest, ok := strings.CutPrefix(pattern, wildcard); ok {
			return Matcher{Kind: PrefixWildcard, Literal: rest}
		}
		if rest, ok := strings.CutSuffix(pattern, wildcard); ok {
			return Matcher{Kind: SuffixWildcard, Literal: rest}
		}
		return Matcher{Kind: OrderedParts, Parts: strings.Split(pattern, wildcard)}
	case 2:
		if strings.HasPrefix(pattern, wildcard) && strings.HasSuffix(pattern, wildcard) {
			return Matcher{Kind: Contains, Literal: pattern[1 : len(pattern)-1]}
		}
	}
	return Matcher{Kind: OrderedParts, Parts: splitParts(pattern)}
}

func splitParts(pattern string) []string {
	var parts []string
	for _, s := range strings.Split(pattern, wildcard) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}
