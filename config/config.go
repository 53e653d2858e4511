package config

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"

	"github.com/aquasecurity/deprisk/risk"
	"github.com/aquasecurity/deprisk/types"
)

const FileName = "deprisk.config.yml"

const (
	FormatText      = "text"
	FormatJSON      = "json"
	FormatCycloneDX = "cyclonedx"
	FormatMarkdown  = "markdown"
)

var (
	ErrInvalidConfig         = xerrors.New("invalid config")
	ErrConflictingThresholds = xerrors.New("severity_threshold and cvss_threshold cannot be used together")
)

type IgnoreEntry struct {
	ID     string `yaml:"id"`
	Reason string `yaml:"reason,omitempty"`
}

// Config is the content of deprisk.config.yml. Pointer fields distinguish "unset" from the
// zero value so that Merge can layer command line flags on top.
type Config struct {
	Format            string        `yaml:"format,omitempty"`
	ExcludePackages   []string      `yaml:"exclude_packages,omitempty"`
	CheckCVE          *bool         `yaml:"check_cve,omitempty"`
	SeverityThreshold string        `yaml:"severity_threshold,omitempty"`
	CVSSThreshold     *float64      `yaml:"cvss_threshold,omitempty"`
	IgnoreCVEs        []IgnoreEntry `yaml:"ignore_cves,omitempty"`
	IncludeDev        *bool         `yaml:"include_dev,omitempty"`
	Offline           *bool         `yaml:"offline,omitempty"`
	DBDir             string        `yaml:"db_dir,omitempty"`
	Licenses          *bool         `yaml:"licenses,omitempty"`
}

var knownKeys = map[string]bool{
	"format":             true,
	"exclude_packages":   true,
	"check_cve":          true,
	"severity_threshold": true,
	"cvss_threshold":     true,
	"ignore_cves":        true,
	"include_dev":        true,
	"offline":            true,
	"db_dir":             true,
	"licenses":           true,
}

// Load reads and validates the config file at path. Unknown top-level keys do not fail the
// load; they are returned as warnings.
func Load(fs afero.Fs, path string) (*Config, []string, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, nil, xerrors.Errorf("failed to parse config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err = yaml.Unmarshal(b, &raw); err != nil {
		return nil, nil, xerrors.Errorf("failed to parse config file %s: %w", path, err)
	}
	var warnings []string
	for key := range raw {
		if !knownKeys[key] {
			warnings = append(warnings, key)
		}
	}
	sort.Strings(warnings)

	if err = cfg.Validate(); err != nil {
		return nil, nil, xerrors.Errorf("%s: %w", path, err)
	}
	return &cfg, warnings, nil
}

// Discover loads deprisk.config.yml from dir. It returns a nil config when there is none.
func Discover(fs afero.Fs, dir string) (*Config, []string, error) {
	path := filepath.Join(dir, FileName)
	ok, err := afero.Exists(fs, path)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to stat %s: %w", path, err)
	} else if !ok {
		return nil, nil, nil
	}
	return Load(fs, path)
}

func (c *Config) Validate() error {
	for i, entry := range c.IgnoreCVEs {
		if strings.TrimSpace(entry.ID) == "" {
			return xerrors.Errorf("ignore_cves[%d].id must not be empty: %w", i, ErrInvalidConfig)
		}
	}
	switch c.Format {
	case "", FormatText, FormatJSON, FormatCycloneDX, FormatMarkdown:
	default:
		return xerrors.Errorf("unknown format %q (expected text, json, cyclonedx or markdown): %w", c.Format, ErrInvalidConfig)
	}
	if c.SeverityThreshold != "" && c.CVSSThreshold != nil {
		return ErrConflictingThresholds
	}
	if c.SeverityThreshold != "" {
		if _, err := types.ParseSeverityThreshold(c.SeverityThreshold); err != nil {
			return xerrors.Errorf("severity_threshold: %w", err)
		}
	}
	if c.CVSSThreshold != nil {
		if _, err := risk.ByScore(*c.CVSSThreshold); err != nil {
			return xerrors.Errorf("cvss_threshold: %w", err)
		}
	}
	return nil
}

// Merge layers override on top of c. Scalars set in override win, a threshold set in
// override replaces both thresholds of c, and lists are concatenated without duplicates.
func (c Config) Merge(override Config) Config {
	merged := c
	if override.Format != "" {
		merged.Format = override.Format
	}
	if override.CheckCVE != nil {
		merged.CheckCVE = override.CheckCVE
	}
	if override.SeverityThreshold != "" || override.CVSSThreshold != nil {
		merged.SeverityThreshold = override.SeverityThreshold
		merged.CVSSThreshold = override.CVSSThreshold
	}
	if override.IncludeDev != nil {
		merged.IncludeDev = override.IncludeDev
	}
	if override.Offline != nil {
		merged.Offline = override.Offline
	}
	if override.DBDir != "" {
		merged.DBDir = override.DBDir
	}
	if override.Licenses != nil {
		merged.Licenses = override.Licenses
	}

	merged.ExcludePackages = lo.Uniq(append(append([]string{}, c.ExcludePackages...), override.ExcludePackages...))
	merged.IgnoreCVEs = lo.UniqBy(append(append([]IgnoreEntry{}, c.IgnoreCVEs...), override.IgnoreCVEs...),
		func(e IgnoreEntry) string { return e.ID })
	return merged
}

// Policy returns the threshold policy the config asks for.
func (c Config) Policy() (risk.Policy, error) {
	switch {
	case c.SeverityThreshold != "" && c.CVSSThreshold != nil:
		return risk.Policy{}, ErrConflictingThresholds
	case c.SeverityThreshold != "":
		s, err := types.ParseSeverityThreshold(c.SeverityThreshold)
		if err != nil {
			return risk.Policy{}, err
		}
		return risk.BySeverity(s), nil
	case c.CVSSThreshold != nil:
		return risk.ByScore(*c.CVSSThreshold)
	default:
		return risk.NoThreshold(), nil
	}
}

func (c Config) IgnoreIDs() []string {
	return lo.Map(c.IgnoreCVEs, func(e IgnoreEntry, _ int) string { return e.ID })
}

// CheckEnabled reports whether vulnerabilities should be looked up. It defaults to true.
func (c Config) CheckEnabled() bool {
	return c.CheckCVE == nil || *c.CheckCVE
}

func (c Config) IncludeDevDependencies() bool {
	return c.IncludeDev != nil && *c.IncludeDev
}

func (c Config) OfflineMode() bool {
	return c.Offline != nil && *c.Offline
}

// FetchLicenses reports whether license data should be fetched from PyPI. It is off unless
// asked for.
func (c Config) FetchLicenses() bool {
	return c.Licenses != nil && *c.Licenses
}
