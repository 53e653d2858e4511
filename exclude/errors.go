package exclude

import (
	"fmt"

	"golang.org/x/xerrors"
)

var (
	ErrInvalidPattern          = xerrors.New("exclusion pattern cannot be empty")
	ErrPatternTooLong          = xerrors.New("exclusion pattern is too long")
	ErrInvalidPatternCharacter = xerrors.New("exclusion pattern contains an invalid character")
	ErrPatternTooBroad         = xerrors.New("exclusion pattern cannot contain only wildcards")
	ErrTooManyPatterns         = xerrors.New("too many exclusion patterns")
	ErrAllPackagesExcluded     = xerrors.New("all packages were excluded")
)

// PatternError describes the first pattern of a batch that failed validation.
type PatternError struct {
	Index   int
	Pattern string
	Char    rune // set for ErrInvalidPatternCharacter
	Err     error
}

func (e *PatternError) Error() string {
	switch e.Err {
	case ErrPatternTooLong:
		return fmt.Sprintf("%s: %q (%d bytes, maximum %d)", e.Err, e.Pattern, len(e.Pattern), MaxPatternLength)
	case ErrInvalidPatternCharacter:
		return fmt.Sprintf("%s %q in pattern %q (allowed: letters, digits, '-', '_', '.', '[', ']', '*')", e.Err, e.Char, e.Pattern)
	default:
		return fmt.Sprintf("%s: %q (pattern #%d)", e.Err, e.Pattern, e.Index+1)
	}
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

type TooManyPatternsError struct {
	Count int
	Max   int
}

func (e *TooManyPatternsError) Error() string {
	return fmt.Sprintf("%s: %d (maximum: %d)", ErrTooManyPatterns, e.Count, e.Max)
}

func (e *TooManyPatternsError) Unwrap() error {
	return ErrTooManyPatterns
}

// AllPackagesExcludedError is a configuration error: the patterns removed every package.
type AllPackagesExcludedError struct {
	OriginalCount int
}

func (e *AllPackagesExcludedError) Error() string {
	return fmt.Sprintf("all %d package(s) were excluded by the provided filters", e.OriginalCount)
}

func (e *AllPackagesExcludedError) Unwrap() error {
	return ErrAllPackagesExcluded
}
