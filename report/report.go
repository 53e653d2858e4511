package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/exp/maps"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/scan"
	"github.com/aquasecurity/deprisk/types"
	"github.com/aquasecurity/deprisk/utils"
)

const ToolName = "deprisk"

type Metadata struct {
	Project     string     `json:"project"`
	ToolName    string     `json:"tool_name"`
	ToolVersion string     `json:"tool_version"`
	GeneratedAt time.Time  `json:"generated_at"`
	DBUpdatedAt *time.Time `json:"db_updated_at,omitempty"`
}

type Counts struct {
	Packages   int `json:"packages"`
	Direct     int `json:"direct"`
	Transitive int `json:"transitive"`
	Excluded   int `json:"excluded"`
	Vulnerable int `json:"vulnerable"`
}

type Vulnerabilities struct {
	Policy   string                         `json:"policy"`
	Exceeded bool                           `json:"exceeded"`
	Summary  map[types.Severity]int         `json:"summary"`
	Above    []types.PackageVulnerabilities `json:"above_threshold"`
	Below    []types.PackageVulnerabilities `json:"below_threshold"`
}

// Document is the JSON report written by `deprisk scan --output`.
type Document struct {
	Metadata        Metadata            `json:"metadata"`
	Counts          Counts              `json:"counts"`
	Packages        []types.PackageID   `json:"packages"`
	Direct          []string            `json:"direct_dependencies"`
	Transitive      map[string][]string `json:"transitive_dependencies"`
	Vulnerabilities *Vulnerabilities    `json:"vulnerabilities,omitempty"`
	Diagnostics     []types.Diagnostic  `json:"diagnostics"`
	UnusedIgnores   []string            `json:"unused_ignores,omitempty"`
	// PackageInfo is keyed by "name@version" and only set when licenses were fetched.
	PackageInfo map[string]types.PackageInfo `json:"package_info,omitempty"`
}

// Build turns a scan result into a report document. Nil slices and maps are replaced with
// empty ones so that the JSON shape does not depend on the result.
func Build(result *scan.Result, meta Metadata) Document {
	if meta.ToolName == "" {
		meta.ToolName = ToolName
	}
	graph := result.Graph

	doc := Document{
		Metadata: meta,
		Counts: Counts{
			Packages:   len(graph.Packages),
			Direct:     len(graph.Direct),
			Transitive: graph.TransitiveCount(),
			Excluded:   result.Excluded,
		},
		Packages:      nonNil(graph.Packages),
		Direct:        nonNil(graph.Direct),
		Transitive:    graph.Transitive,
		Diagnostics:   nonNil(result.Diagnostics),
		UnusedIgnores: result.UnusedIgnores,
	}
	if doc.Transitive == nil {
		doc.Transitive = map[string][]string{}
	}

	if c := result.Classification; c != nil {
		doc.Counts.Vulnerable = len(c.Above) + len(c.Below)
		doc.Vulnerabilities = &Vulnerabilities{
			Policy:   c.Policy.String(),
			Exceeded: c.Exceeded,
			Summary:  c.Summary(),
			Above:    nonNil(c.Above),
			Below:    nonNil(c.Below),
		}
	}
	return doc
}

// AddPackageInfo attaches license data to the packages of the document.
func (d *Document) AddPackageInfo(info map[types.PackageID]types.PackageInfo) {
	for pkg, i := range info {
		if d.PackageInfo == nil {
			d.PackageInfo = map[string]types.PackageInfo{}
		}
		d.PackageInfo[pkg.String()] = i
	}
}

func (d Document) info(pkg types.PackageID) types.PackageInfo {
	return d.PackageInfo[pkg.String()]
}

// dependencies returns the packages of the document other than the project itself.
func (d Document) dependencies() []types.PackageID {
	var pkgs []types.PackageID
	for _, pkg := range d.Packages {
		if pkg.Name != d.Metadata.Project {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

func (d Document) versions() map[string]string {
	versions := make(map[string]string, len(d.Packages))
	for _, pkg := range d.Packages {
		versions[pkg.Name] = pkg.Version
	}
	return versions
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func WriteJSON(fs afero.Fs, path string, doc Document) error {
	if err := utils.NewFs(fs).WriteJSON(path, doc); err != nil {
		return xerrors.Errorf("failed to write the report: %w", err)
	}
	return nil
}

// PrintSummary writes a human readable summary of doc to w.
func PrintSummary(w io.Writer, doc Document) error {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Project: %s\n", doc.Metadata.Project)
	fmt.Fprintf(&sb, "Packages: %d (direct: %d, transitive: %d, excluded: %d)\n",
		doc.Counts.Packages, doc.Counts.Direct, doc.Counts.Transitive, doc.Counts.Excluded)

	sb.WriteString("\nDependencies:\n")
	if len(doc.Direct) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, d := range doc.Direct {
		fmt.Fprintf(&sb, "  %s\n", d)
		for _, t := range doc.Transitive[d] {
			fmt.Fprintf(&sb, "    └─ %s\n", t)
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return xerrors.Errorf("failed to print the summary: %w", err)
	}

	if doc.Vulnerabilities == nil {
		_, err := io.WriteString(w, "\nVulnerability check: skipped\n")
		return err
	}
	return printVulnerabilities(w, doc.Vulnerabilities)
}

func printVulnerabilities(w io.Writer, v *Vulnerabilities) error {
	fmt.Fprintf(w, "\nVulnerable packages: %d (threshold: %s)\n", len(v.Above)+len(v.Below), v.Policy)

	severities := maps.Keys(v.Summary)
	sort.Slice(severities, func(i, j int) bool {
		return severities[i].Rank() > severities[j].Rank()
	})
	var parts []string
	for _, s := range severities {
		if v.Summary[s] > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", s, v.Summary[s]))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
	}

	if len(v.Above) == 0 {
		_, err := io.WriteString(w, "\nNo vulnerabilities exceed the threshold.\n")
		return err
	}

	fmt.Fprintf(w, "\nAbove threshold:\n")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tVERSION\tID\tSEVERITY\tSCORE\tFIXED")
	for _, pkg := range v.Above {
		for _, vuln := range pkg.Vulnerabilities {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", pkg.Package.Name, pkg.Package.Version,
				vuln.ID, vuln.Severity, formatScore(vuln.Score), orDash(vuln.FixedVersion))
		}
	}
	return tw.Flush()
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *score)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Exceeded reports whether the document failed the threshold gate.
func (d Document) Exceeded() bool {
	return d.Vulnerabilities != nil && d.Vulnerabilities.Exceeded
}
