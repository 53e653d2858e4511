package cvss

import (
	"math"
	"strings"

	"github.com/aquasecurity/deprisk/types"
)

const (
	scopeUnchanged = "U"
	scopeChanged   = "C"
)

var (
	attackVector       = map[string]float64{"N": 0.85, "A": 0.62, "L": 0.55, "P": 0.20}
	attackComplexity   = map[string]float64{"L": 0.77, "H": 0.44}
	userInteraction    = map[string]float64{"N": 0.85, "R": 0.62}
	impactWeights      = map[string]float64{"N": 0.0, "L": 0.22, "H": 0.56}
	privilegesRequired = map[string]map[string]float64{
		scopeUnchanged: {"N": 0.85, "L": 0.62, "H": 0.27},
		scopeChanged:   {"N": 0.85, "L": 0.68, "H": 0.50},
	}
)

// Vector is a decoded CVSS v3 base vector. Every field holds the metric's letter code.
type Vector struct {
	Version            string
	AttackVector       string
	AttackComplexity   string
	PrivilegesRequired string
	UserInteraction    string
	Scope              string
	Confidentiality    string
	Integrity          string
	Availability       string
}

// Decode parses "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H". Metrics may appear in any
// order. It returns false when a base metric is missing or has an unknown value.
func Decode(vector string) (Vector, bool) {
	segments := strings.Split(vector, "/")

	var v Vector
	v.Version = strings.TrimPrefix(segments[0], "CVSS:")

	metrics := make(map[string]string, len(segments))
	for _, seg := range segments[1:] {
		key, value, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		metrics[key] = value
	}

	v.AttackVector = metrics["AV"]
	v.AttackComplexity = metrics["AC"]
	v.PrivilegesRequired = metrics["PR"]
	v.UserInteraction = metrics["UI"]
	v.Scope = metrics["S"]
	v.Confidentiality = metrics["C"]
	v.Integrity = metrics["I"]
	v.Availability = metrics["A"]

	if !v.valid() {
		return Vector{}, false
	}
	return v, true
}

func (v Vector) valid() bool {
	if _, ok := privilegesRequired[v.Scope]; !ok {
		return false
	}
	checks := []struct {
		table map[string]float64
		value string
	}{
		{attackVector, v.AttackVector},
		{attackComplexity, v.AttackComplexity},
		{privilegesRequired[v.Scope], v.PrivilegesRequired},
		{userInteraction, v.UserInteraction},
		{impactWeights, v.Confidentiality},
		{impactWeights, v.Integrity},
		{impactWeights, v.Availability},
	}
	for _, c := range checks {
		if _, ok := c.table[c.value]; !ok {
			return false
		}
	}
	return true
}

// Score returns the base score rounded up to one decimal.
func (v Vector) Score() float64 {
	c := impactWeights[v.Confidentiality]
	i := impactWeights[v.Integrity]
	a := impactWeights[v.Availability]
	iss := 1 - (1-c)*(1-i)*(1-a)

	var impact float64
	if v.Scope == scopeUnchanged {
		impact = 6.42 * iss
	} else {
		impact = 7.52*(iss-0.029) - 3.25*math.Pow(iss-0.02, 15)
	}

	exploitability := 8.22 *
		attackVector[v.AttackVector] *
		attackComplexity[v.AttackComplexity] *
		privilegesRequired[v.Scope][v.PrivilegesRequired] *
		userInteraction[v.UserInteraction]

	var base float64
	switch {
	case impact <= 0:
		base = 0
	case v.Scope == scopeUnchanged:
		base = math.Min(impact+exploitability, 10)
	default:
		base = math.Min(1.08*(impact+exploitability), 10)
	}

	// Plain ceiling, without the CVSS 3.1 Roundup correction for float noise.
	return math.Ceil(base*10) / 10
}

func (v Vector) Severity() types.Severity {
	return SeverityFromScore(v.Score())
}

func (v Vector) String() string {
	var b strings.Builder
	b.WriteString("CVSS:" + v.Version)
	for _, m := range []struct{ key, value string }{
		{"AV", v.AttackVector}, {"AC", v.AttackComplexity}, {"PR", v.PrivilegesRequired},
		{"UI", v.UserInteraction}, {"S", v.Scope}, {"C", v.Confidentiality},
		{"I", v.Integrity}, {"A", v.Availability},
	} {
		b.WriteString("/" + m.key + ":" + m.value)
	}
	return b.String()
}

// Score decodes vector and returns its base score. ok is false when it cannot be decoded.
func Score(vector string) (score float64, ok bool) {
	v, ok := Decode(vector)
	if !ok {
		return 0, false
	}
	return v.Score(), true
}
