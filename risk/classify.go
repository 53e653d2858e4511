package risk

import (
	"github.com/samber/lo"

	"github.com/aquasecurity/deprisk/types"
)

type Classification struct {
	Policy   Policy                         `json:"-"`
	Above    []types.PackageVulnerabilities `json:"above"`
	Below    []types.PackageVulnerabilities `json:"below"`
	Exceeded bool                           `json:"exceeded"`
}

// Classify partitions pkgs into the packages that cross the policy threshold and the rest,
// preserving input order in both halves.
func Classify(pkgs []types.PackageVulnerabilities, policy Policy) Classification {
	c := Classification{
		Policy: policy,
		Above:  []types.PackageVulnerabilities{},
		Below:  []types.PackageVulnerabilities{},
	}
	for _, pkg := range pkgs {
		if lo.SomeBy(pkg.Vulnerabilities, policy.Exceeds) {
			c.Above = append(c.Above, pkg)
		} else {
			c.Below = append(c.Below, pkg)
		}
	}
	c.Exceeded = len(c.Above) > 0
	return c
}

// Summary counts records per severity band across both halves.
func (c Classification) Summary() map[types.Severity]int {
	counts := make(map[types.Severity]int, len(types.Severities))
	for _, s := range types.Severities {
		counts[s] = 0
	}
	for _, pkgs := range [][]types.PackageVulnerabilities{c.Above, c.Below} {
		for _, pkg := range pkgs {
			for _, v := range pkg.Vulnerabilities {
				counts[types.Severities[v.Severity.Rank()]]++
			}
		}
	}
	return counts
}
