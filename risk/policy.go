package risk

import (
	"fmt"

	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
)

var ErrInvalidScoreThreshold = xerrors.New("cvss threshold must be between 0.0 and 10.0")

type PolicyKind int

const (
	PolicyNone PolicyKind = iota
	PolicySeverity
	PolicyScore
)

// Policy decides which vulnerable packages fail a check. Use the constructors; the zero
// value is NoThreshold.
type Policy struct {
	Kind     PolicyKind
	Severity types.Severity
	Score    float64
}

func NoThreshold() Policy {
	return Policy{Kind: PolicyNone}
}

func BySeverity(s types.Severity) Policy {
	return Policy{Kind: PolicySeverity, Severity: s}
}

func ByScore(score float64) (Policy, error) {
	if score < 0 || score > 10 {
		return Policy{}, xerrors.Errorf("%.1f: %w", score, ErrInvalidScoreThreshold)
	}
	return Policy{Kind: PolicyScore, Score: score}, nil
}

// Exceeds reports whether a single record crosses the threshold.
// Records without a score never cross a score threshold, whatever their textual severity.
func (p Policy) Exceeds(v types.VulnerabilityRecord) bool {
	switch p.Kind {
	case PolicySeverity:
		return v.Severity.AtLeast(p.Severity)
	case PolicyScore:
		return v.Score != nil && *v.Score >= p.Score
	default:
		return false
	}
}

func (p Policy) String() string {
	switch p.Kind {
	case PolicySeverity:
		return "severity >= " + p.Severity.String()
	case PolicyScore:
		return fmt.Sprintf("cvss >= %.1f", p.Score)
	default:
		return "none"
	}
}
