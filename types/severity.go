package types

import (
	"strings"

	"golang.org/x/xerrors"
)

// Severity is a coarse vulnerability band. Ordering uses Rank, never the declaration order.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every band from the lowest to the highest rank.
var Severities = []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank returns an integer rank for comparison (None=0, Critical=4).
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

func (s Severity) String() string {
	if s == "" {
		return string(SeverityNone)
	}
	return string(s)
}

// ParseSeverityThreshold parses a user supplied threshold such as "high".
// Unlike feed severities, unknown values are an error here.
func ParseSeverityThreshold(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium", "moderate":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityNone, xerrors.Errorf("invalid severity threshold %q (expected low, medium, high or critical)", s)
	}
}
