package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
)

const (
	bomFormat   = "CycloneDX"
	specVersion = "1.6"
	osvURL      = "https://osv.dev/vulnerability/"
)

type BOM struct {
	BOMFormat       string             `json:"bomFormat"`
	SpecVersion     string             `json:"specVersion"`
	SerialNumber    string             `json:"serialNumber"`
	Version         int                `json:"version"`
	Metadata        BOMMetadata        `json:"metadata"`
	Components      []Component        `json:"components"`
	Dependencies    []BOMDependency    `json:"dependencies,omitempty"`
	Vulnerabilities []BOMVulnerability `json:"vulnerabilities,omitempty"`
}

type BOMMetadata struct {
	Timestamp string     `json:"timestamp"`
	Tools     []Tool     `json:"tools"`
	Component *Component `json:"component,omitempty"`
}

type Tool struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Component struct {
	BOMRef      string       `json:"bom-ref"`
	Type        string       `json:"type"`
	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Description string       `json:"description,omitempty"`
	Licenses    []LicenseRef `json:"licenses,omitempty"`
	PURL        string       `json:"purl"`
}

type LicenseRef struct {
	License struct {
		Name string `json:"name"`
	} `json:"license"`
}

type BOMDependency struct {
	Ref       string   `json:"ref"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

type BOMVulnerability struct {
	BOMRef         string    `json:"bom-ref"`
	ID             string    `json:"id"`
	Source         Source    `json:"source"`
	Ratings        []Rating  `json:"ratings"`
	Description    string    `json:"description,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	Published      string    `json:"published,omitempty"`
	Affects        []Affects `json:"affects"`
}

type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Rating struct {
	Score    *float64 `json:"score,omitempty"`
	Severity string   `json:"severity"`
	Method   string   `json:"method,omitempty"`
}

type Affects struct {
	Ref string `json:"ref"`
}

// PURL returns the package URL of a PyPI release.
func PURL(pkg types.PackageID) string {
	return fmt.Sprintf("pkg:pypi/%s@%s", pkg.Name, pkg.Version)
}

// BuildCycloneDX renders the document as a CycloneDX 1.6 BOM. The project itself becomes
// the metadata component and every other package a library component.
func BuildCycloneDX(doc Document) BOM {
	versions := doc.versions()
	ref := func(name string) string {
		return PURL(types.PackageID{Name: name, Version: versions[name]})
	}

	bom := BOM{
		BOMFormat:    bomFormat,
		SpecVersion:  specVersion,
		SerialNumber: "urn:uuid:" + uuid.NewString(),
		Version:      1,
		Metadata: BOMMetadata{
			Timestamp: doc.Metadata.GeneratedAt.UTC().Format(time.RFC3339),
			Tools:     []Tool{{Name: doc.Metadata.ToolName, Version: doc.Metadata.ToolVersion}},
		},
		Components: []Component{},
	}
	if v, ok := versions[doc.Metadata.Project]; ok {
		root := component(doc, types.PackageID{Name: doc.Metadata.Project, Version: v})
		root.Type = "application"
		bom.Metadata.Component = &root
		bom.Dependencies = append(bom.Dependencies, BOMDependency{
			Ref:       root.BOMRef,
			DependsOn: lo.Map(doc.Direct, func(d string, _ int) string { return ref(d) }),
		})
	}

	for _, pkg := range doc.dependencies() {
		bom.Components = append(bom.Components, component(doc, pkg))
	}
	for _, d := range doc.Direct {
		bom.Dependencies = append(bom.Dependencies, BOMDependency{
			Ref:       ref(d),
			DependsOn: lo.Map(doc.Transitive[d], func(t string, _ int) string { return ref(t) }),
		})
	}

	if v := doc.Vulnerabilities; v != nil {
		for _, pkg := range append(append([]types.PackageVulnerabilities{}, v.Above...), v.Below...) {
			for _, vuln := range pkg.Vulnerabilities {
				bom.Vulnerabilities = append(bom.Vulnerabilities, vulnerability(pkg.Package, vuln))
			}
		}
	}
	return bom
}

func component(doc Document, pkg types.PackageID) Component {
	c := Component{
		BOMRef:  PURL(pkg),
		Type:    "library",
		Name:    pkg.Name,
		Version: pkg.Version,
		PURL:    PURL(pkg),
	}
	info := doc.info(pkg)
	c.Description = info.Description
	if info.License != "" {
		var l LicenseRef
		l.License.Name = info.License
		c.Licenses = []LicenseRef{l}
	}
	return c
}

func vulnerability(pkg types.PackageID, vuln types.VulnerabilityRecord) BOMVulnerability {
	rating := Rating{
		Score:    vuln.Score,
		Severity: strings.ToLower(vuln.Severity.String()),
	}
	if vuln.Score != nil {
		rating.Method = "CVSSv3"
	}
	v := BOMVulnerability{
		BOMRef:      vuln.ID + "@" + PURL(pkg),
		ID:          vuln.ID,
		Source:      Source{Name: "OSV", URL: osvURL + vuln.ID},
		Ratings:     []Rating{rating},
		Description: vuln.Summary,
		Affects:     []Affects{{Ref: PURL(pkg)}},
	}
	if vuln.FixedVersion != "" {
		v.Recommendation = fmt.Sprintf("Upgrade %s to %s or later", pkg.Name, vuln.FixedVersion)
	}
	if !vuln.Published.IsZero() {
		v.Published = vuln.Published.UTC().Format(time.RFC3339)
	}
	return v
}

// WriteCycloneDX writes the document as an indented CycloneDX JSON BOM.
func WriteCycloneDX(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(BuildCycloneDX(doc)); err != nil {
		return xerrors.Errorf("failed to encode the CycloneDX BOM: %w", err)
	}
	return nil
}
