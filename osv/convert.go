package osv

import (
	"regexp"
	"strings"

	version "github.com/aquasecurity/go-pep440-version"
	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"github.com/aquasecurity/deprisk/cvss"
	"github.com/aquasecurity/deprisk/types"
)

var separators = regexp.MustCompile(`[-_.]+`)

// NormalizeName returns the PEP 503 form of a PyPI project name.
func NormalizeName(name string) string {
	return strings.ToLower(separators.ReplaceAllString(name, "-"))
}

// Convert turns an advisory into a record for pkg. It returns false when the advisory was
// withdrawn or does not affect the installed version.
func Convert(entry Entry, pkg types.PackageID, log logrus.FieldLogger) (types.VulnerabilityRecord, bool) {
	if entry.Withdrawn != "" {
		return types.VulnerabilityRecord{}, false
	}

	affected := affectedFor(entry, pkg.Name)
	if len(affected) == 0 {
		return types.VulnerabilityRecord{}, false
	}
	installed, err := version.Parse(pkg.Version)
	hit := false
	for _, a := range affected {
		// an unparseable installed version is treated as affected
		if err != nil || affects(a, pkg.Version, installed) {
			hit = true
			break
		}
	}
	if !hit {
		return types.VulnerabilityRecord{}, false
	}

	score, severity := cvss.Evaluate(vector(entry), entry.DatabaseSpecific.Severity)
	record := types.VulnerabilityRecord{
		ID:       entry.ID,
		Score:    score,
		Severity: severity,
		Summary:  entry.Summary,
		Aliases:  entry.Aliases,
	}
	if err == nil {
		record.FixedVersion = fixedVersion(affected, installed)
	} else {
		record.FixedVersion = firstFixed(affected)
	}
	if entry.Published != "" {
		published, err := dateparse.ParseAny(entry.Published)
		if err != nil {
			log.WithField("id", entry.ID).Debugf("unparseable published date %q: %s", entry.Published, err)
		}
		record.Published = published
	}
	return record, true
}

// vector prefers a CVSS v3 vector over a v4 one.
func vector(entry Entry) string {
	var v4 string
	for _, s := range entry.Severity {
		switch s.Type {
		case severityCVSSv3:
			return s.Score
		case severityCVSSv4:
			if v4 == "" {
				v4 = s.Score
			}
		}
	}
	return v4
}

func affectedFor(entry Entry, name string) []Affected {
	name = NormalizeName(name)
	var affected []Affected
	for _, a := range entry.Affected {
		if a.Package.Ecosystem == ecosystemPyPI && NormalizeName(a.Package.Name) == name {
			affected = append(affected, a)
		}
	}
	return affected
}

func affects(a Affected, raw string, installed version.Version) bool {
	for _, v := range a.Versions {
		if v == raw {
			return true
		}
	}

	var ecosystemRanges int
	for _, r := range a.Ranges {
		if r.Type != rangeEcosystem {
			continue
		}
		ecosystemRanges++
		if _, ok := interval(r, installed); ok {
			return true
		}
	}
	// nothing to compare against
	return len(a.Versions) == 0 && ecosystemRanges == 0
}

// interval walks the events of r and reports whether installed falls in one of the
// [introduced, fixed) or [introduced, last_affected] intervals. The returned string is the
// fixed version closing that interval, if any.
func interval(r Range, installed version.Version) (string, bool) {
	var (
		open  bool
		lower string
	)
	for _, ev := range r.Events {
		switch {
		case ev.Introduced != "":
			open, lower = true, ev.Introduced
		case ev.Fixed != "":
			if open && atLeast(installed, lower) && below(installed, ev.Fixed) {
				return ev.Fixed, true
			}
			open = false
		case ev.LastAffected != "":
			if open && atLeast(installed, lower) && atMost(installed, ev.LastAffected) {
				return "", true
			}
			open = false
		}
	}
	if open && atLeast(installed, lower) {
		return "", true
	}
	return "", false
}

// The comparisons below treat an unparseable bound as satisfied.

func atLeast(v version.Version, bound string) bool {
	if bound == "0" {
		return true
	}
	b, err := version.Parse(bound)
	if err != nil {
		return true
	}
	return v.GreaterThanOrEqual(b)
}

func below(v version.Version, bound string) bool {
	b, err := version.Parse(bound)
	if err != nil {
		return true
	}
	return v.LessThan(b)
}

func atMost(v version.Version, bound string) bool {
	b, err := version.Parse(bound)
	if err != nil {
		return true
	}
	return v.LessThanOrEqual(b)
}

// fixedVersion returns the fixed event of the range containing installed, falling back to
// the first fixed event found.
func fixedVersion(affected []Affected, installed version.Version) string {
	for _, a := range affected {
		for _, r := range a.Ranges {
			if r.Type != rangeEcosystem {
				continue
			}
			if fixed, ok := interval(r, installed); ok && fixed != "" {
				return fixed
			}
		}
	}
	return firstFixed(affected)
}

func firstFixed(affected []Affected) string {
	for _, a := range affected {
		for _, r := range a.Ranges {
			for _, ev := range r.Events {
				if ev.Fixed != "" {
					return ev.Fixed
				}
			}
		}
	}
	return ""
}
