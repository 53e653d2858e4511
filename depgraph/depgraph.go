package depgraph

import (
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/aquasecurity/deprisk/types"
)

// DefaultMaxDepth bounds how deep a single dependency chain is expanded. Lockfiles are
// untrusted input, so a hostile one must not be able to make the walk unbounded.
const DefaultMaxDepth = 100

type options struct {
	maxDepth int
	sink     types.DiagnosticSink
}

type option func(*options)

func WithMaxDepth(depth int) option {
	return func(opts *options) {
		if depth > 0 {
			opts.maxDepth = depth
		}
	}
}

func WithSink(sink types.DiagnosticSink) option {
	return func(opts *options) {
		opts.sink = sink
	}
}

// Analyzer holds an interned, read-only copy of an adjacency relation.
// Analyze may be called concurrently for different roots.
type Analyzer struct {
	*options
	index map[string]int
	names []string
	succ  [][]int
}

func New(adj types.Adjacency, opts ...option) *Analyzer {
	o := &options{
		maxDepth: DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(o)
	}

	a := &Analyzer{
		options: o,
		index:   make(map[string]int),
	}

	keys := maps.Keys(adj)
	slices.Sort(keys)
	for _, name := range keys {
		a.intern(name)
	}
	for _, name := range keys {
		for _, dep := range adj[name] {
			a.intern(dep)
		}
	}

	a.succ = make([][]int, len(a.names))
	for _, name := range keys {
		deps := adj[name]
		ids := make([]int, len(deps))
		for i, dep := range deps {
			ids[i] = a.index[dep]
		}
		a.succ[a.index[name]] = ids
	}
	return a
}

func (a *Analyzer) intern(name string) int {
	if id, ok := a.index[name]; ok {
		return id
	}
	id := len(a.names)
	a.index[name] = id
	a.names = append(a.names, name)
	return id
}

// Analyze splits the dependencies of root into direct and transitive ones.
func (a *Analyzer) Analyze(root string, pkgs []types.PackageID) types.DependencyGraph {
	graph := types.DependencyGraph{
		Packages:   pkgs,
		Direct:     []string{},
		Transitive: make(map[string][]string),
	}

	rootID, ok := a.index[root]
	if !ok {
		return graph
	}

	directIDs := lo.Uniq(a.succ[rootID])
	isDirect := make([]bool, len(a.names))
	for _, id := range directIDs {
		isDirect[id] = true
		graph.Direct = append(graph.Direct, a.names[id])
	}

	for _, id := range directIDs {
		if deps := a.collect(id, isDirect); len(deps) > 0 {
			graph.Transitive[a.names[id]] = deps
		}
	}
	return graph
}

type frame struct {
	node  int
	depth int
	next  int
}

// collect walks everything reachable from start depth first, in the order a recursive
// walk would visit it, using an explicit stack.
func (a *Analyzer) collect(start int, isDirect []bool) []string {
	visited := make([]bool, len(a.names))
	recorded := make([]bool, len(a.names))
	truncated := make([]bool, len(a.names))

	var deps []string
	visited[start] = true
	stack := []frame{{node: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succ := a.succ[top.node]
		if top.next >= len(succ) {
			stack = stack[:len(stack)-1]
			continue
		}
		dep := succ[top.next]
		top.next++
		depth := top.depth + 1

		if !isDirect[dep] && !recorded[dep] {
			recorded[dep] = true
			deps = append(deps, a.names[dep])
		}
		if visited[dep] {
			continue
		}
		if depth >= a.maxDepth {
			// a leaf at the limit loses nothing
			if !truncated[dep] && len(a.succ[dep]) > 0 {
				truncated[dep] = true
				a.sink.Emit(types.Diagnostic{
					Kind:    types.TruncatedChain,
					Subject: a.names[dep],
					Message: fmt.Sprintf("dependency chain under %q truncated at %q (depth limit %d)",
						a.names[start], a.names[dep], a.maxDepth),
				})
			}
			continue
		}
		visited[dep] = true
		stack = append(stack, frame{node: dep, depth: depth})
	}
	return deps
}

// Analyze is a shorthand for New(adj, opts...).Analyze(root, pkgs).
func Analyze(adj types.Adjacency, root string, pkgs []types.PackageID, opts ...option) types.DependencyGraph {
	return New(adj, opts...).Analyze(root, pkgs)
}
