package cmd

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/deprisk/config"
	"github.com/aquasecurity/deprisk/lockfile"
	"github.com/aquasecurity/deprisk/osv"
	"github.com/aquasecurity/deprisk/utils"
)

const uvLock = `version = 1
requires-python = ">=3.11"

[[package]]
name = "certifi"
version = "2024.8.30"
source = { registry = "https://pypi.org/simple" }

[[package]]
name = "my-project"
version = "0.1.0"
source = { editable = "." }
dependencies = [
    { name = "requests" },
]

[package.dev-dependencies]
dev = [
    { name = "pytest" },
]

[[package]]
name = "pytest"
version = "8.0.0"
source = { registry = "https://pypi.org/simple" }

[[package]]
name = "requests"
version = "2.28.1"
source = { registry = "https://pypi.org/simple" }
dependencies = [
    { name = "certifi" },
    { name = "urllib3" },
]

[[package]]
name = "urllib3"
version = "1.26.0"
source = { registry = "https://pypi.org/simple" }
`

const pyproject = `[project]
name = "My_Project"
version = "0.1.0"
dependencies = ["requests>=2.28"]
`

var (
	urllib3Advisory = osv.Entry{
		ID:       "GHSA-v845-jxx5-vc9f",
		Aliases:  []string{"CVE-2023-43804"},
		Severity: []osv.Severity{{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H"}},
		Affected: []osv.Affected{pypiAffected("urllib3", osv.Event{Introduced: "0"}, osv.Event{Fixed: "1.26.17"})},
	}
	requestsAdvisory = osv.Entry{
		ID:               "GHSA-j8r2-6x86-q33q",
		DatabaseSpecific: osv.DatabaseSpecific{Severity: "MODERATE"},
		Affected:         []osv.Affected{pypiAffected("requests", osv.Event{Introduced: "2.3.0"}, osv.Event{Fixed: "2.31.0"})},
	}
)

func pypiAffected(name string, events ...osv.Event) osv.Affected {
	return osv.Affected{
		Package: osv.Package{Ecosystem: "PyPI", Name: name},
		Ranges:  []osv.Range{{Type: "ECOSYSTEM", Events: events}},
	}
}

func writeProject(t *testing.T, configContent string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockfile.LockfileName), []byte(uvLock), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockfile.PyprojectName), []byte(pyproject), 0644))
	if configContent != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(configContent), 0644))
	}
	return dir
}

func seedDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	fs := utils.NewFs(afero.NewOsFs())
	require.NoError(t, fs.WriteJSON(filepath.Join(dir, "python", "urllib3", urllib3Advisory.ID+".json"), urllib3Advisory))
	require.NoError(t, fs.WriteJSON(filepath.Join(dir, "python", "requests", requestsAdvisory.ID+".json"), requestsAdvisory))
	require.NoError(t, fs.SetLastUpdatedDate(dir, osv.LastUpdatedKey, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)))
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestScan_Offline(t *testing.T) {
	project := writeProject(t, "")
	db := seedDB(t)
	output := filepath.Join(t.TempDir(), "reports", "deprisk.json")

	stdout, stderr, err := execute(t, "scan", "--path", project, "--offline", "--db-dir", db,
		"--severity-threshold", "high", "--exclude", "*-stubs", "--output", output, "--no-progress")
	assert.ErrorIs(t, err, ErrThresholdExceeded)

	assert.Contains(t, stdout, "Project: my-project")
	assert.Contains(t, stdout, "Packages: 5 (direct: 1, transitive: 2, excluded: 0)")
	assert.Contains(t, stdout, "GHSA-v845-jxx5-vc9f")
	assert.Contains(t, stdout, "CRITICAL: 1, MEDIUM: 1")
	assert.NotContains(t, stdout, "pytest")

	assert.Contains(t, stderr, "pattern=\"*-stubs\"")

	b, err := os.ReadFile(output)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &doc))
	assert.Equal(t, "my-project", doc["metadata"].(map[string]interface{})["project"])
	assert.Equal(t, "2026-10-18T00:00:00Z", doc["metadata"].(map[string]interface{})["db_updated_at"])
	assert.Equal(t, true, doc["vulnerabilities"].(map[string]interface{})["exceeded"])
}

func TestScan_ConfigFile(t *testing.T) {
	project := writeProject(t, `
format: json
offline: true
include_dev: true
cvss_threshold: 9.0
ignore_cves:
  - id: CVE-2023-43804
    reason: not reachable
  - id: CVE-1999-0001
unknown_key: 1
`)
	db := seedDB(t)

	stdout, stderr, err := execute(t, "scan", "--path", project, "--db-dir", db, "--no-progress")
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, []interface{}{"requests", "pytest"}, doc["direct_dependencies"])
	assert.Equal(t, []interface{}{"CVE-1999-0001"}, doc["unused_ignores"])

	vulns := doc["vulnerabilities"].(map[string]interface{})
	assert.Equal(t, "cvss >= 9.0", vulns["policy"])
	assert.Equal(t, false, vulns["exceeded"])
	assert.Len(t, vulns["below_threshold"], 1)

	assert.Contains(t, stderr, "key=unknown_key")
	assert.Contains(t, stderr, "id=CVE-1999-0001")
}

func TestScan_FlagsOverrideConfig(t *testing.T) {
	project := writeProject(t, "check_cve: true\nseverity_threshold: low\noffline: true\n")
	db := seedDB(t)

	stdout, _, err := execute(t, "scan", "--path", project, "--db-dir", db, "--no-check-cve", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Vulnerability check: skipped")
}

func TestScan_Online(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q struct {
			Package osv.Package `json:"package"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		resp := map[string][]osv.Entry{"vulns": {}}
		if q.Package.Name == "urllib3" {
			resp["vulns"] = []osv.Entry{urllib3Advisory}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer ts.Close()

	project := writeProject(t, "")
	_, _, err := execute(t, "scan", "--path", project, "--api-url", ts.URL, "--cvss-threshold", "9.8", "--no-progress")
	assert.ErrorIs(t, err, ErrThresholdExceeded)
	assert.ErrorContains(t, err, "1 package(s) at or above cvss >= 9.8")
}

func TestScan_CycloneDXWithLicenses(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pypi/requests/2.28.1/json":
			_, _ = w.Write([]byte(`{"info":{"license":"Apache 2.0","summary":"Python HTTP for Humans."}}`))
		case "/pypi/certifi/2024.8.30/json":
			_, _ = w.Write([]byte(`{"info":{"classifiers":["License :: OSI Approved :: Mozilla Public License 2.0 (MPL 2.0)"]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	project := writeProject(t, "")
	stdout, stderr, err := execute(t, "scan", "--path", project, "--no-check-cve", "--format", "cyclonedx",
		"--licenses", "--pypi-url", ts.URL, "--no-progress")
	require.NoError(t, err)

	var bom struct {
		BOMFormat string `json:"bomFormat"`
		Metadata  struct {
			Component struct {
				Name string `json:"name"`
			} `json:"component"`
		} `json:"metadata"`
		Components []struct {
			Name     string `json:"name"`
			Licenses []struct {
				License struct {
					Name string `json:"name"`
				} `json:"license"`
			} `json:"licenses"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &bom))
	assert.Equal(t, "CycloneDX", bom.BOMFormat)
	assert.Equal(t, "my-project", bom.Metadata.Component.Name)
	require.Len(t, bom.Components, 4)

	licenses := map[string]string{}
	for _, c := range bom.Components {
		if len(c.Licenses) > 0 {
			licenses[c.Name] = c.Licenses[0].License.Name
		}
	}
	assert.Equal(t, map[string]string{
		"requests": "Apache 2.0",
		"certifi":  "Mozilla Public License 2.0 (MPL 2.0)",
	}, licenses)
	assert.Contains(t, stderr, "package=urllib3@1.26.0")
	assert.NotContains(t, stderr, "package=my-project")
}

func TestScan_MarkdownOutput(t *testing.T) {
	project := writeProject(t, "format: markdown\nlicenses: true\n")
	db := seedDB(t)
	output := filepath.Join(t.TempDir(), "sbom.md")

	stdout, stderr, err := execute(t, "scan", "--path", project, "--offline", "--db-dir", db,
		"--output", output, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stderr, "License information is not available offline")

	b, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, stdout, string(b))
	assert.Contains(t, stdout, "# Software Bill of Materials (SBOM)")
	assert.Contains(t, stdout, "| [requests](https://pypi.org/project/requests/) | 2.28.1 | N/A |  |")
	assert.Contains(t, stdout, "### Below threshold (2 package(s))")
}

func TestScan_Errors(t *testing.T) {
	project := writeProject(t, "")

	t.Run("both thresholds", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--path", project, "--severity-threshold", "high", "--cvss-threshold", "7")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cvss-threshold")
	})

	t.Run("invalid severity", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--path", project, "--severity-threshold", "urgent", "--no-check-cve")
		assert.ErrorContains(t, err, "invalid severity threshold")
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--path", project, "--exclude", "**", "--no-check-cve")
		assert.ErrorContains(t, err, "invalid exclusion patterns")
	})

	t.Run("missing lockfile", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--path", t.TempDir(), "--no-check-cve")
		assert.ErrorIs(t, err, lockfile.ErrNotFound)
	})

	t.Run("offline without database", func(t *testing.T) {
		_, _, err := execute(t, "scan", "--path", project, "--offline", "--db-dir", filepath.Join(t.TempDir(), "missing"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestUpdateDB(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []osv.Entry{urllib3Advisory, requestsAdvisory} {
		f, err := zw.Create(e.ID + ".json")
		require.NoError(t, err)
		require.NoError(t, json.NewEncoder(f).Encode(e))
	}
	require.NoError(t, zw.Close())

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer ts.Close()

	db := filepath.Join(t.TempDir(), "db")
	_, _, err := execute(t, "update-db", "--db-dir", db, "--url", ts.URL+"/PyPI/all.zip", "--no-progress")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(db, "python", "urllib3", "GHSA-v845-jxx5-vc9f.json"))
	assert.FileExists(t, filepath.Join(db, "python", "requests", "GHSA-j8r2-6x86-q33q.json"))

	updated, err := osv.NewStore(afero.NewOsFs(), db).LastUpdated()
	require.NoError(t, err)
	assert.False(t, updated.IsZero())

	project := writeProject(t, "")
	stdout, _, err := execute(t, "scan", "--path", project, "--offline", "--db-dir", db, "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Vulnerable packages: 2 (threshold: none)")
}
