package osv_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/deprisk/osv"
	"github.com/aquasecurity/deprisk/types"
)

func TestNormalizeName(t *testing.T) {
	tests := map[string]string{
		"requests":           "requests",
		"Django":             "django",
		"zope.interface":     "zope-interface",
		"Foo__Bar-.baz":      "foo-bar-baz",
		"typing_extensions":  "typing-extensions",
		"ruamel.yaml.clib":   "ruamel-yaml-clib",
		"already-normalized": "already-normalized",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, osv.NormalizeName(in))
		})
	}
}

func TestConvert(t *testing.T) {
	requestsAdvisory := osv.Entry{
		ID:        "GHSA-j8r2-6x86-q33q",
		Aliases:   []string{"CVE-2023-32681"},
		Summary:   "Unintended leak of Proxy-Authorization header in requests",
		Published: "2023-05-22T20:36:32Z",
		Severity: []osv.Severity{
			{Type: "CVSS_V4", Score: "CVSS:4.0/AV:N/AC:L/AT:N/PR:N/UI:N/VC:H/VI:N/VA:N/SC:N/SI:N/SA:N"},
			{Type: "CVSS_V3", Score: "CVSS:3.1/AV:N/AC:H/PR:N/UI:R/S:C/C:H/I:N/A:N"},
		},
		DatabaseSpecific: osv.DatabaseSpecific{Severity: "MODERATE"},
		Affected: []osv.Affected{
			pypi("requests",
				osv.Event{Introduced: "2.3.0"}, osv.Event{Fixed: "2.31.0"},
			),
		},
	}

	tests := []struct {
		name         string
		entry        osv.Entry
		pkg          types.PackageID
		want         bool
		wantScore    *float64
		wantSeverity types.Severity
		wantFixed    string
	}{
		{
			name:         "cvss v3 wins over v4 and text",
			entry:        requestsAdvisory,
			pkg:          types.PackageID{Name: "requests", Version: "2.28.1"},
			want:         true,
			wantScore:    ptr(6.1),
			wantSeverity: types.SeverityMedium,
			wantFixed:    "2.31.0",
		},
		{
			name:  "fixed version is not affected",
			entry: requestsAdvisory,
			pkg:   types.PackageID{Name: "requests", Version: "2.31.0"},
		},
		{
			name:  "before introduced is not affected",
			entry: requestsAdvisory,
			pkg:   types.PackageID{Name: "requests", Version: "2.2.1"},
		},
		{
			name:  "other package",
			entry: requestsAdvisory,
			pkg:   types.PackageID{Name: "urllib3", Version: "1.0.0"},
		},
		{
			name: "v4 only falls back to text",
			entry: osv.Entry{
				ID: "GHSA-v4",
				Severity: []osv.Severity{
					{Type: "CVSS_V4", Score: "CVSS:4.0/AV:N/AC:L/AT:N/PR:N/UI:N/VC:H/VI:H/VA:H/SC:N/SI:N/SA:N"},
				},
				DatabaseSpecific: osv.DatabaseSpecific{Severity: "HIGH"},
				Affected:         []osv.Affected{pypi("jinja2", osv.Event{Introduced: "0"}, osv.Event{Fixed: "3.1.3"})},
			},
			pkg:          types.PackageID{Name: "Jinja2", Version: "3.1.2"},
			want:         true,
			wantSeverity: types.SeverityHigh,
			wantFixed:    "3.1.3",
		},
		{
			name: "no severity at all",
			entry: osv.Entry{
				ID:       "PYSEC-2024-1",
				Affected: []osv.Affected{pypi("flask", osv.Event{Introduced: "0"})},
			},
			pkg:          types.PackageID{Name: "flask", Version: "3.0.0"},
			want:         true,
			wantSeverity: types.SeverityNone,
		},
		{
			name: "withdrawn",
			entry: osv.Entry{
				ID:        "GHSA-gone",
				Withdrawn: "2024-01-01T00:00:00Z",
				Affected:  []osv.Affected{pypi("flask", osv.Event{Introduced: "0"})},
			},
			pkg: types.PackageID{Name: "flask", Version: "3.0.0"},
		},
		{
			name: "fixed version of the range containing the installed version",
			entry: osv.Entry{
				ID: "PYSEC-2023-1",
				Affected: []osv.Affected{
					pypi("django",
						osv.Event{Introduced: "3.2"}, osv.Event{Fixed: "3.2.20"},
						osv.Event{Introduced: "4.1"}, osv.Event{Fixed: "4.1.10"},
						osv.Event{Introduced: "4.2"}, osv.Event{Fixed: "4.2.3"},
					),
				},
			},
			pkg:          types.PackageID{Name: "Django", Version: "4.1.7"},
			want:         true,
			wantSeverity: types.SeverityNone,
			wantFixed:    "4.1.10",
		},
		{
			name: "last affected is inclusive",
			entry: osv.Entry{
				ID:       "PYSEC-2023-2",
				Affected: []osv.Affected{pypi("pillow", osv.Event{Introduced: "0"}, osv.Event{LastAffected: "9.5.0"})},
			},
			pkg:          types.PackageID{Name: "pillow", Version: "9.5.0"},
			want:         true,
			wantSeverity: types.SeverityNone,
		},
		{
			name: "fixed bound is exclusive",
			entry: osv.Entry{
				ID:       "PYSEC-2023-3",
				Affected: []osv.Affected{pypi("numpy", osv.Event{Introduced: "0"}, osv.Event{Fixed: "1.22.0"})},
			},
			pkg: types.PackageID{Name: "numpy", Version: "1.22.0"},
		},
		{
			name: "explicit version list",
			entry: osv.Entry{
				ID: "PYSEC-2023-4",
				Affected: []osv.Affected{{
					Package:  osv.Package{Ecosystem: "PyPI", Name: "pyyaml"},
					Versions: []string{"5.3", "5.3.1"},
				}},
			},
			pkg:          types.PackageID{Name: "PyYAML", Version: "5.3.1"},
			want:         true,
			wantSeverity: types.SeverityNone,
		},
		{
			name: "unparseable installed version is treated as affected",
			entry: osv.Entry{
				ID:       "PYSEC-2023-5",
				Affected: []osv.Affected{pypi("legacy", osv.Event{Introduced: "1.0"}, osv.Event{Fixed: "2.0"})},
			},
			pkg:          types.PackageID{Name: "legacy", Version: "not-a-version"},
			want:         true,
			wantSeverity: types.SeverityNone,
			wantFixed:    "2.0",
		},
		{
			name: "other ecosystem",
			entry: osv.Entry{
				ID: "GO-2020-0001",
				Affected: []osv.Affected{{
					Package: osv.Package{Ecosystem: "Go", Name: "requests"},
				}},
			},
			pkg: types.PackageID{Name: "requests", Version: "2.28.1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := osv.Convert(tt.entry, tt.pkg, logrus.StandardLogger())
			require.Equal(t, tt.want, ok)
			if !tt.want {
				return
			}
			assert.Equal(t, tt.entry.ID, got.ID)
			if tt.wantScore == nil {
				assert.Nil(t, got.Score)
			} else {
				require.NotNil(t, got.Score)
				assert.InDelta(t, *tt.wantScore, *got.Score, 1e-9)
			}
			assert.Equal(t, tt.wantSeverity, got.Severity)
			assert.Equal(t, tt.wantFixed, got.FixedVersion)
		})
	}
}

func TestConvert_Metadata(t *testing.T) {
	entry := osv.Entry{
		ID:        "GHSA-j8r2-6x86-q33q",
		Aliases:   []string{"CVE-2023-32681", "PYSEC-2023-74"},
		Summary:   "Unintended leak of Proxy-Authorization header in requests",
		Published: "2023-05-22T20:36:32Z",
		Affected:  []osv.Affected{pypi("requests", osv.Event{Introduced: "0"})},
	}

	got, ok := osv.Convert(entry, types.PackageID{Name: "requests", Version: "2.28.1"}, logrus.StandardLogger())
	require.True(t, ok)
	assert.Equal(t, entry.Aliases, got.Aliases)
	assert.Equal(t, entry.Summary, got.Summary)
	assert.True(t, time.Date(2023, 5, 22, 20, 36, 32, 0, time.UTC).Equal(got.Published))
}

func TestConvert_MalformedPublished(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	entry := osv.Entry{
		ID:        "PYSEC-2023-74",
		Published: "sometime in May",
		Affected:  []osv.Affected{pypi("requests", osv.Event{Introduced: "0"})},
	}
	got, ok := osv.Convert(entry, types.PackageID{Name: "requests", Version: "2.28.1"}, logger)
	require.True(t, ok)
	assert.True(t, got.Published.IsZero())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, `unparseable published date "sometime in May"`)
	assert.Equal(t, "PYSEC-2023-74", hook.LastEntry().Data["id"])
}

func ptr(f float64) *float64 {
	return &f
}
