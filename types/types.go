package types

import "time"

type VulnerabilityRecord struct {
	ID           string    `json:"id"`
	Score        *float64  `json:"score,omitempty"` // CVSS base score in [0,10]; nil when no vector could be decoded
	Severity     Severity  `json:"severity"`
	FixedVersion string    `json:"fixed_version,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	Aliases      []string  `json:"aliases,omitempty"`
	Published    time.Time `json:"published,omitempty"`
}

type PackageVulnerabilities struct {
	Package         PackageID             `json:"package"`
	Vulnerabilities []VulnerabilityRecord `json:"vulnerabilities"`
}

// PackageInfo is the license and summary PyPI publishes for a release.
type PackageInfo struct {
	License     string `json:"license,omitempty"`
	Description string `json:"description,omitempty"`
}

// DependencyGraph partitions the dependencies of a root package.
// Transitive[d] never contains d or any member of Direct, and empty entries are omitted.
type DependencyGraph struct {
	Packages   []PackageID         `json:"packages"`
	Direct     []string            `json:"direct"`
	Transitive map[string][]string `json:"transitive"`
}

func (g DependencyGraph) TransitiveCount() int {
	var n int
	for _, deps := range g.Transitive {
		n += len(deps)
	}
	return n
}

type DiagnosticKind string

const (
	IneffectivePattern DiagnosticKind = "ineffective-pattern"
	TruncatedChain     DiagnosticKind = "truncated-chain"
)

// Diagnostic is a non-fatal finding surfaced to the user next to the results.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Subject string         `json:"subject"`
	Message string         `json:"message"`
}

// DiagnosticSink receives diagnostics as they are produced. A nil sink discards them.
type DiagnosticSink func(Diagnostic)

func (s DiagnosticSink) Emit(d Diagnostic) {
	if s != nil {
		s(d)
	}
}
