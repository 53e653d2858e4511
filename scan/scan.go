package scan

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/depgraph"
	"github.com/aquasecurity/deprisk/exclude"
	"github.com/aquasecurity/deprisk/risk"
	"github.com/aquasecurity/deprisk/types"
)

// VulnerabilitySource returns the known vulnerabilities of each package. Packages without
// any may be omitted from the result.
type VulnerabilitySource interface {
	Lookup(ctx context.Context, pkgs []types.PackageID) ([]types.PackageVulnerabilities, error)
}

type Input struct {
	Packages  []types.PackageID
	Adjacency types.Adjacency
	Root      string
}

type Options struct {
	Excludes  []string
	Policy    risk.Policy
	IgnoreIDs []string
	// Source is optional; without one no vulnerability lookup happens.
	Source   VulnerabilitySource
	MaxDepth int
}

type Result struct {
	Graph          types.DependencyGraph
	Classification *risk.Classification
	Diagnostics    []types.Diagnostic
	Excluded       int
	UnusedIgnores  []string
}

type collector struct {
	mu          sync.Mutex
	diagnostics []types.Diagnostic
}

func (c *collector) emit(d types.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics = append(c.diagnostics, d)
}

// Run filters the input, then builds the dependency graph and classifies vulnerable
// packages concurrently.
func Run(ctx context.Context, in Input, opts Options) (*Result, error) {
	filter, err := exclude.NewFilter(opts.Excludes)
	if err != nil {
		return nil, xerrors.Errorf("invalid exclusion patterns: %w", err)
	}
	pkgs, adj, err := filter.Apply(in.Packages, in.Adjacency)
	if err != nil {
		return nil, err
	}

	c := &collector{}
	filter.Report(c.emit)

	result := &Result{Excluded: len(in.Packages) - len(pkgs)}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Graph = depgraph.Analyze(adj, in.Root, pkgs,
			depgraph.WithMaxDepth(opts.MaxDepth),
			depgraph.WithSink(c.emit),
		)
		return nil
	})

	if opts.Source != nil {
		g.Go(func() error {
			// the project itself is not a published package
			targets := make([]types.PackageID, 0, len(pkgs))
			for _, pkg := range pkgs {
				if pkg.Name != in.Root {
					targets = append(targets, pkg)
				}
			}

			vulns, err := opts.Source.Lookup(ctx, targets)
			if err != nil {
				return xerrors.Errorf("vulnerability lookup failed: %w", err)
			}
			vulns, result.UnusedIgnores = risk.Ignore(vulns, opts.IgnoreIDs)
			classification := risk.Classify(vulns, opts.Policy)
			result.Classification = &classification
			return nil
		})
	}

	if err = g.Wait(); err != nil {
		return nil, err
	}
	result.Diagnostics = c.diagnostics
	return result, nil
}
