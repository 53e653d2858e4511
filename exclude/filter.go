package exclude

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/aquasecurity/deprisk/types"
)

// Filter removes packages whose names match any exclusion pattern.
// It remembers which patterns matched at least once, so a Filter belongs to a single run
// and must not be shared between goroutines.
type Filter struct {
	patterns []Pattern
	matched  []bool
}

func NewFilter(raw []string) (*Filter, error) {
	patterns, err := Compile(raw)
	if err != nil {
		return nil, err
	}
	return &Filter{
		patterns: patterns,
		matched:  make([]bool, len(patterns)),
	}, nil
}

func (f *Filter) Patterns() []Pattern {
	return f.patterns
}

// Match reports whether name matches any pattern. Every matching pattern is recorded,
// not only the first one.
func (f *Filter) Match(name string) bool {
	var hit bool
	for i, p := range f.patterns {
		if p.Matcher.Matches(name) {
			f.matched[i] = true
			hit = true
		}
	}
	return hit
}

// FilterPackages keeps the packages that match no pattern, preserving order.
func (f *Filter) FilterPackages(pkgs []types.PackageID) ([]types.PackageID, error) {
	kept := lo.Reject(pkgs, func(p types.PackageID, _ int) bool {
		return f.Match(p.Name)
	})
	if len(kept) == 0 && len(pkgs) > 0 {
		return nil, &AllPackagesExcludedError{OriginalCount: len(pkgs)}
	}
	return kept, nil
}

// FilterAdjacency drops matching keys and removes matching names from the remaining
// dependency lists. The input relation is left untouched.
func (f *Filter) FilterAdjacency(adj types.Adjacency) types.Adjacency {
	out := make(types.Adjacency, len(adj))
	for name, deps := range adj {
		if f.Match(name) {
			continue
		}
		kept := make([]string, 0, len(deps))
		for _, dep := range deps {
			if !f.Match(dep) {
				kept = append(kept, dep)
			}
		}
		out[name] = kept
	}
	return out
}

// Apply filters both the package list and the adjacency relation.
func (f *Filter) Apply(pkgs []types.PackageID, adj types.Adjacency) ([]types.PackageID, types.Adjacency, error) {
	kept, err := f.FilterPackages(pkgs)
	if err != nil {
		return nil, nil, err
	}
	return kept, f.FilterAdjacency(adj), nil
}

// Unmatched returns the raw patterns that have not matched anything so far.
func (f *Filter) Unmatched() []string {
	var unmatched []string
	for i, p := range f.patterns {
		if !f.matched[i] {
			unmatched = append(unmatched, p.Raw)
		}
	}
	return unmatched
}

// Report emits one IneffectivePattern diagnostic per unmatched pattern.
func (f *Filter) Report(sink types.DiagnosticSink) {
	for _, raw := range f.Unmatched() {
		sink.Emit(types.Diagnostic{
			Kind:    types.IneffectivePattern,
			Subject: raw,
			Message: fmt.Sprintf("exclude pattern %q did not match any dependencies", raw),
		})
	}
}
