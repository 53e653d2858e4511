package risk

import (
	"github.com/samber/lo"

	"github.com/aquasecurity/deprisk/types"
)

// Ignore drops records whose ID or one of whose aliases is listed in ids, and packages left
// with no records at all. It returns the ids that matched nothing, in input order.
func Ignore(pkgs []types.PackageVulnerabilities, ids []string) ([]types.PackageVulnerabilities, []string) {
	if len(ids) == 0 {
		return pkgs, nil
	}

	ignored := make(map[string]bool, len(ids))
	for _, id := range ids {
		ignored[id] = false
	}

	var kept []types.PackageVulnerabilities
	for _, pkg := range pkgs {
		vulns := lo.Reject(pkg.Vulnerabilities, func(v types.VulnerabilityRecord, _ int) bool {
			hit := false
			for _, id := range append([]string{v.ID}, v.Aliases...) {
				if _, ok := ignored[id]; ok {
					ignored[id] = true
					hit = true
				}
			}
			return hit
		})
		if len(vulns) == 0 {
			continue
		}
		kept = append(kept, types.PackageVulnerabilities{Package: pkg.Package, Vulnerabilities: vulns})
	}

	unused := lo.Filter(lo.Uniq(ids), func(id string, _ int) bool {
		return !ignored[id]
	})
	return kept, unused
}
