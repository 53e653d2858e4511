package lockfile

import (
	"io"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
)

var ErrNoPackages = xerrors.New("lockfile contains no packages")

type Dependency struct {
	Name string `toml:"name"`
}

type Package struct {
	Name                 string                  `toml:"name"`
	Version              string                  `toml:"version"`
	Dependencies         []Dependency            `toml:"dependencies"`
	OptionalDependencies map[string][]Dependency `toml:"optional-dependencies"`
	DevDependencies      map[string][]Dependency `toml:"dev-dependencies"`
}

// Lockfile is the subset of a uv.lock file needed to build the dependency graph.
type Lockfile struct {
	Version  int       `toml:"version"`
	Package  []Package `toml:"package"`
	packages []types.PackageID
}

func Parse(r io.Reader) (*Lockfile, error) {
	var lf Lockfile
	if _, err := toml.NewDecoder(r).Decode(&lf); err != nil {
		return nil, xerrors.Errorf("failed to parse uv.lock: %w", err)
	}
	if len(lf.Package) == 0 {
		return nil, ErrNoPackages
	}

	for i, pkg := range lf.Package {
		id, err := types.NewPackageID(pkg.Name, pkg.Version)
		if err != nil {
			return nil, xerrors.Errorf("package entry %d: %w", i, err)
		}
		lf.packages = append(lf.packages, id)
	}
	return &lf, nil
}

// Packages returns every locked package in file order.
func (lf *Lockfile) Packages() []types.PackageID {
	return lf.packages
}

// Adjacency maps each package name to the names it depends on. Extras recorded in the lock
// are always followed; dev dependency groups only when includeDev is set.
func (lf *Lockfile) Adjacency(includeDev bool) types.Adjacency {
	adj := make(types.Adjacency, len(lf.Package))
	for _, pkg := range lf.Package {
		deps := adj[pkg.Name]
		if deps == nil {
			deps = []string{}
		}
		for _, d := range pkg.Dependencies {
			deps = append(deps, d.Name)
		}
		deps = appendGroups(deps, pkg.OptionalDependencies)
		if includeDev {
			deps = appendGroups(deps, pkg.DevDependencies)
		}
		adj[pkg.Name] = lo.Uniq(deps)
	}
	return adj
}

func appendGroups(deps []string, groups map[string][]Dependency) []string {
	names := make([]string, 0, len(groups))
	for group := range groups {
		names = append(names, group)
	}
	sort.Strings(names)
	for _, group := range names {
		for _, d := range groups[group] {
			deps = append(deps, d.Name)
		}
	}
	return deps
}

type pyproject struct {
	Project struct {
		Name string `toml:"name"`
	} `toml:"project"`
}

var ErrProjectNameNotFound = xerrors.New("project name not found in pyproject.toml")

// ProjectName reads [project].name from a pyproject.toml document.
func ProjectName(r io.Reader) (string, error) {
	var p pyproject
	if _, err := toml.NewDecoder(r).Decode(&p); err != nil {
		return "", xerrors.Errorf("failed to parse pyproject.toml: %w", err)
	}
	if p.Project.Name == "" {
		return "", ErrProjectNameNotFound
	}
	return p.Project.Name, nil
}
