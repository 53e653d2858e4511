package cvss

import (
	"strings"

	"github.com/aquasecurity/deprisk/types"
)

// SeverityFromScore maps a base score onto the CVSS v3 qualitative scale.
func SeverityFromScore(score float64) types.Severity {
	switch {
	case score <= 0:
		return types.SeverityNone
	case score < 4.0:
		return types.SeverityLow
	case score < 7.0:
		return types.SeverityMedium
	case score < 9.0:
		return types.SeverityHigh
	default:
		return types.SeverityCritical
	}
}

// ParseSeverity maps a feed's textual severity (e.g. GHSA "MODERATE") to a band.
// Unknown or empty values map to None.
func ParseSeverity(severity string) types.Severity {
	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return types.SeverityCritical
	case "HIGH":
		return types.SeverityHigh
	case "MODERATE", "MEDIUM":
		return types.SeverityMedium
	case "LOW":
		return types.SeverityLow
	default:
		return types.SeverityNone
	}
}

// Evaluate scores a vulnerability: the vector wins when it decodes, otherwise the textual
// severity is used and no score is returned.
func Evaluate(vector, severity string) (*float64, types.Severity) {
	if score, ok := Score(vector); ok {
		return &score, SeverityFromScore(score)
	}
	return nil, ParseSeverity(severity)
}
