package report_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/deprisk/report"
	"github.com/aquasecurity/deprisk/scan"
	"github.com/aquasecurity/deprisk/types"
)

func TestWriteMarkdown(t *testing.T) {
	t.Run("full report", func(t *testing.T) {
		doc := report.Build(testResult(), report.Metadata{Project: "myproject", GeneratedAt: generatedAt})
		doc.AddPackageInfo(map[types.PackageID]types.PackageInfo{
			{Name: "requests", Version: "2.28.1"}: {License: "Apache 2.0", Description: "HTTP | for\nHumans"},
		})

		var buf bytes.Buffer
		require.NoError(t, report.WriteMarkdown(&buf, doc))
		out := buf.String()

		assert.Contains(t, out, "# Software Bill of Materials (SBOM)\n")
		assert.Contains(t, out, "Project: **myproject**, generated 2024-10-01 12:00:00 UTC")
		assert.Contains(t, out, "| [requests](https://pypi.org/project/requests/) | 2.28.1 | Apache 2.0 | HTTP \\| for Humans |\n")
		assert.Contains(t, out, "| [urllib3](https://pypi.org/project/urllib3/) | 1.26.0 | N/A |  |\n")
		assert.NotContains(t, out, "[myproject]")
		assert.Contains(t, out, "### Dependencies for requests\n")

		assert.Contains(t, out, "Threshold: `severity >= HIGH`")
		assert.Contains(t, out, "### Above threshold (1 package(s))")
		assert.Contains(t, out, "| [urllib3](https://pypi.org/project/urllib3/) | 1.26.0 | 1.26.17 | 8.1 | HIGH | "+
			"[GHSA-v845-jxx5-vc9f](https://osv.dev/vulnerability/GHSA-v845-jxx5-vc9f) |")
		assert.Contains(t, out, "### Below threshold (1 package(s))")
		assert.Contains(t, out, "| - | - | MEDIUM |")

		// sections keep their order
		inventory := bytes.Index(buf.Bytes(), []byte("## Component Inventory"))
		direct := bytes.Index(buf.Bytes(), []byte("## Direct Dependencies"))
		transitive := bytes.Index(buf.Bytes(), []byte("## Transitive Dependencies"))
		vulns := bytes.Index(buf.Bytes(), []byte("## Vulnerability Report"))
		assert.True(t, inventory < direct && direct < transitive && transitive < vulns)
	})

	t.Run("nothing above the threshold", func(t *testing.T) {
		result := testResult()
		result.Classification.Above = nil

		var buf bytes.Buffer
		require.NoError(t, report.WriteMarkdown(&buf, report.Build(result, report.Metadata{Project: "myproject"})))
		assert.Contains(t, buf.String(), "No vulnerabilities found above the threshold.")
		assert.NotContains(t, buf.String(), ", generated")
	})

	t.Run("empty project without check", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.WriteMarkdown(&buf, report.Build(&scan.Result{}, report.Metadata{Project: "empty"})))
		assert.Contains(t, buf.String(), "*No direct dependencies*")
		assert.Contains(t, buf.String(), "*No transitive dependencies*")
		assert.NotContains(t, buf.String(), "## Vulnerability Report")
	})
}
