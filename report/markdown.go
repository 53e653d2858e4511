package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
)

const (
	packageTableHeader = "| Package | Version | License | Description |\n" +
		"|---------|---------|---------|-------------|\n"
	vulnTableHeader = "| Package | Current Version | Fixed Version | CVSS | Severity | ID |\n" +
		"|---------|-----------------|---------------|------|----------|----|\n"
)

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func cell(s string) string {
	return cellEscaper.Replace(s)
}

func pypiLink(name string) string {
	return fmt.Sprintf("[%s](https://pypi.org/project/%s/)", cell(name), name)
}

// WriteMarkdown renders the document as a Markdown SBOM: the component inventory, the
// direct and transitive dependencies and, when the check ran, the vulnerability report.
func WriteMarkdown(w io.Writer, doc Document) error {
	var sb strings.Builder
	versions := doc.versions()

	sb.WriteString("# Software Bill of Materials (SBOM)\n\n")
	fmt.Fprintf(&sb, "Project: **%s**", cell(doc.Metadata.Project))
	if !doc.Metadata.GeneratedAt.IsZero() {
		fmt.Fprintf(&sb, ", generated %s", doc.Metadata.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	sb.WriteString("\n\n")

	sb.WriteString("## Component Inventory\n\n")
	sb.WriteString(packageTableHeader)
	for _, pkg := range doc.dependencies() {
		writePackageRow(&sb, doc, pkg)
	}
	sb.WriteString("\n")

	sb.WriteString("## Direct Dependencies\n\n")
	if len(doc.Direct) == 0 {
		sb.WriteString("*No direct dependencies*\n\n")
	} else {
		sb.WriteString(packageTableHeader)
		for _, d := range doc.Direct {
			writePackageRow(&sb, doc, types.PackageID{Name: d, Version: versions[d]})
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Transitive Dependencies\n\n")
	if len(doc.Transitive) == 0 {
		sb.WriteString("*No transitive dependencies*\n\n")
	}
	for _, d := range doc.Direct {
		deps := doc.Transitive[d]
		if len(deps) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### Dependencies for %s\n\n", cell(d))
		sb.WriteString(packageTableHeader)
		for _, t := range deps {
			writePackageRow(&sb, doc, types.PackageID{Name: t, Version: versions[t]})
		}
		sb.WriteString("\n")
	}

	if v := doc.Vulnerabilities; v != nil {
		writeVulnerabilityReport(&sb, v)
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return xerrors.Errorf("failed to write the Markdown report: %w", err)
	}
	return nil
}

func writePackageRow(sb *strings.Builder, doc Document, pkg types.PackageID) {
	info := doc.info(pkg)
	license := info.License
	if license == "" {
		license = "N/A"
	}
	fmt.Fprintf(sb, "| %s | %s | %s | %s |\n", pypiLink(pkg.Name), cell(pkg.Version), cell(license), cell(info.Description))
}

func writeVulnerabilityReport(sb *strings.Builder, v *Vulnerabilities) {
	sb.WriteString("## Vulnerability Report\n\n")
	fmt.Fprintf(sb, "Threshold: `%s`\n\n", v.Policy)

	if len(v.Above) == 0 {
		sb.WriteString("No vulnerabilities found above the threshold.\n\n")
	} else {
		fmt.Fprintf(sb, "### Above threshold (%d package(s))\n\n", len(v.Above))
		writeVulnerabilityTable(sb, v.Above)
	}
	if len(v.Below) > 0 {
		fmt.Fprintf(sb, "### Below threshold (%d package(s))\n\n", len(v.Below))
		writeVulnerabilityTable(sb, v.Below)
	}

	sb.WriteString("---\n\n")
	sb.WriteString("*Vulnerability data provided by [OSV](https://osv.dev) under CC-BY 4.0*\n")
}

func writeVulnerabilityTable(sb *strings.Builder, pkgs []types.PackageVulnerabilities) {
	sb.WriteString(vulnTableHeader)
	for _, pkg := range pkgs {
		for _, vuln := range pkg.Vulnerabilities {
			fmt.Fprintf(sb, "| %s | %s | %s | %s | %s | [%s](%s%s) |\n",
				pypiLink(pkg.Package.Name), cell(pkg.Package.Version), cell(orDash(vuln.FixedVersion)),
				formatScore(vuln.Score), vuln.Severity, cell(vuln.ID), osvURL, vuln.ID)
		}
	}
	sb.WriteString("\n")
}
