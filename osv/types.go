package osv

// Entry is an advisory in the OSV format, https://ossf.github.io/osv-schema/
type Entry struct {
	ID               string           `json:"id"`
	Modified         string           `json:"modified,omitempty"`
	Published        string           `json:"published,omitempty"`
	Withdrawn        string           `json:"withdrawn,omitempty"`
	Aliases          []string         `json:"aliases,omitempty"`
	Related          []string         `json:"related,omitempty"`
	Summary          string           `json:"summary,omitempty"`
	Details          string           `json:"details,omitempty"`
	Severity         []Severity       `json:"severity,omitempty"`
	Affected         []Affected       `json:"affected,omitempty"`
	References       []Reference      `json:"references,omitempty"`
	DatabaseSpecific DatabaseSpecific `json:"database_specific,omitempty"`
}

type Affected struct {
	Package  Package  `json:"package"`
	Ranges   []Range  `json:"ranges,omitempty"`
	Versions []string `json:"versions,omitempty"`
}

type Package struct {
	Ecosystem string `json:"ecosystem,omitempty"`
	Name      string `json:"name,omitempty"`
	Purl      string `json:"purl,omitempty"`
}

type Range struct {
	Type   string  `json:"type,omitempty"`
	Repo   string  `json:"repo,omitempty"`
	Events []Event `json:"events,omitempty"`
}

// Event holds exactly one of its fields.
type Event struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
	Limit        string `json:"limit,omitempty"`
}

type Severity struct {
	Type  string `json:"type"`
	Score string `json:"score"`
}

type Reference struct {
	Type string `json:"type,omitempty"`
	URL  string `json:"url,omitempty"`
}

// DatabaseSpecific only keeps the textual severity published by GHSA.
type DatabaseSpecific struct {
	Severity string `json:"severity,omitempty"`
}

const (
	ecosystemPyPI = "PyPI"

	rangeEcosystem = "ECOSYSTEM"

	severityCVSSv3 = "CVSS_V3"
	severityCVSSv4 = "CVSS_V4"
)
