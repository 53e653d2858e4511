package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/config"
	"github.com/aquasecurity/deprisk/depgraph"
	"github.com/aquasecurity/deprisk/lockfile"
	"github.com/aquasecurity/deprisk/osv"
	"github.com/aquasecurity/deprisk/pypi"
	"github.com/aquasecurity/deprisk/report"
	"github.com/aquasecurity/deprisk/scan"
	"github.com/aquasecurity/deprisk/types"
)

// ErrThresholdExceeded is returned by `deprisk scan` when a vulnerability crosses the threshold.
var ErrThresholdExceeded = xerrors.New("vulnerabilities exceeding the threshold were found")

type scanOptions struct {
	path              string
	configFile        string
	excludes          []string
	severityThreshold string
	cvssThreshold     float64
	ignores           []string
	includeDev        bool
	offline           bool
	noCheck           bool
	dbDir             string
	apiURL            string
	output            string
	format            string
	maxDepth          int
	noProgress        bool
	licenses          bool
	pypiURL           string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the dependencies of a uv project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.path, "path", "p", ".", "Path to the project directory containing uv.lock")
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to the config file (default: <path>/"+config.FileName+")")
	f.StringArrayVarP(&opts.excludes, "exclude", "e", nil, "Exclude packages matching the pattern (repeatable, '*' is a wildcard)")
	f.StringVar(&opts.severityThreshold, "severity-threshold", "", "Fail when a vulnerability is at least this severe (low, medium, high, critical)")
	f.Float64Var(&opts.cvssThreshold, "cvss-threshold", 0, "Fail when a vulnerability has at least this CVSS score (0.0-10.0)")
	f.StringArrayVar(&opts.ignores, "ignore", nil, "Ignore a vulnerability ID or alias (repeatable)")
	f.BoolVar(&opts.includeDev, "include-dev", false, "Include development dependency groups")
	f.BoolVar(&opts.offline, "offline", false, "Look vulnerabilities up in the local database instead of the OSV API")
	f.BoolVar(&opts.noCheck, "no-check-cve", false, "Skip the vulnerability check")
	f.StringVar(&opts.dbDir, "db-dir", "", "Local vulnerability database directory (default: $DEPRISK_DB_DIR or the user cache)")
	f.StringVar(&opts.apiURL, "api-url", "", "OSV API base URL")
	f.StringVarP(&opts.output, "output", "o", "", "Write the report to this file (JSON unless the format is cyclonedx or markdown)")
	f.StringVarP(&opts.format, "format", "f", "", "Output format (text, json, cyclonedx, markdown)")
	f.IntVar(&opts.maxDepth, "max-depth", depgraph.DefaultMaxDepth, "Maximum depth of a dependency chain")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Suppress the progress bar")
	f.BoolVar(&opts.licenses, "licenses", false, "Fetch license information from PyPI")
	f.StringVar(&opts.pypiURL, "pypi-url", "", "PyPI base URL")

	cmd.MarkFlagsMutuallyExclusive("severity-threshold", "cvss-threshold")
	_ = f.MarkHidden("api-url")
	_ = f.MarkHidden("pypi-url")
	return cmd
}

// flagConfig returns the flags that were set explicitly, as a config layer.
func (opts *scanOptions) flagConfig(cmd *cobra.Command) config.Config {
	f := cmd.Flags()
	cfg := config.Config{
		Format:            opts.format,
		ExcludePackages:   opts.excludes,
		SeverityThreshold: opts.severityThreshold,
		DBDir:             opts.dbDir,
	}
	if f.Changed("cvss-threshold") {
		cfg.CVSSThreshold = &opts.cvssThreshold
	}
	if f.Changed("include-dev") {
		cfg.IncludeDev = &opts.includeDev
	}
	if f.Changed("offline") {
		cfg.Offline = &opts.offline
	}
	if f.Changed("licenses") {
		cfg.Licenses = &opts.licenses
	}
	if f.Changed("no-check-cve") {
		check := !opts.noCheck
		cfg.CheckCVE = &check
	}
	for _, id := range opts.ignores {
		cfg.IgnoreCVEs = append(cfg.IgnoreCVEs, config.IgnoreEntry{ID: id})
	}
	return cfg
}

func loadConfig(fs afero.Fs, opts *scanOptions, log *logrus.Logger) (config.Config, error) {
	var (
		cfg      *config.Config
		warnings []string
		err      error
	)
	if opts.configFile != "" {
		cfg, warnings, err = config.Load(fs, opts.configFile)
	} else {
		cfg, warnings, err = config.Discover(fs, opts.path)
	}
	if err != nil {
		return config.Config{}, err
	}
	for _, key := range warnings {
		log.WithField("key", key).Warn("Unknown config key ignored")
	}
	if cfg == nil {
		return config.Config{}, nil
	}
	log.Debugf("Loaded config with %d exclude pattern(s) and %d ignored ID(s)", len(cfg.ExcludePackages), len(cfg.IgnoreCVEs))
	return *cfg, nil
}

func runScan(cmd *cobra.Command, opts *scanOptions) error {
	log := logrus.StandardLogger()
	fs := afero.NewOsFs()

	fileCfg, err := loadConfig(fs, opts, log)
	if err != nil {
		return err
	}
	cfg := fileCfg.Merge(opts.flagConfig(cmd))
	if err = cfg.Validate(); err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	project, err := lockfile.NewReader(fs).Read(opts.path)
	if err != nil {
		return err
	}
	root := osv.NormalizeName(project.Name)
	log.WithField("project", root).Debugf("Read %d package(s) from %s", len(project.Packages()), lockfile.LockfileName)

	var (
		source    scan.VulnerabilitySource
		dbUpdated *time.Time
	)
	if cfg.CheckEnabled() {
		source, dbUpdated, err = vulnerabilitySource(fs, cfg, opts, log)
		if err != nil {
			return err
		}
	} else {
		log.Info("Vulnerability check disabled")
	}

	result, err := scan.Run(cmd.Context(), scan.Input{
		Packages:  project.Packages(),
		Adjacency: project.Lockfile.Adjacency(cfg.IncludeDevDependencies()),
		Root:      root,
	}, scan.Options{
		Excludes:  cfg.ExcludePackages,
		Policy:    policy,
		IgnoreIDs: cfg.IgnoreIDs(),
		Source:    source,
		MaxDepth:  opts.maxDepth,
	})
	if err != nil {
		return err
	}
	logDiagnostics(log, result)

	doc := report.Build(result, report.Metadata{
		Project:     root,
		ToolVersion: Version,
		GeneratedAt: time.Now().UTC(),
		DBUpdatedAt: dbUpdated,
	})
	if cfg.FetchLicenses() {
		if err = addLicenses(cmd, cfg, opts, log, &doc); err != nil {
			return err
		}
	}
	if opts.output != "" {
		if err = writeReport(fs, opts.output, cfg.Format, doc); err != nil {
			return err
		}
		log.Infof("Report written to %s", opts.output)
	}
	if err = printReport(cmd.OutOrStdout(), cfg.Format, doc); err != nil {
		return err
	}

	if doc.Exceeded() {
		return xerrors.Errorf("%d package(s) at or above %s: %w",
			len(doc.Vulnerabilities.Above), doc.Vulnerabilities.Policy, ErrThresholdExceeded)
	}
	return nil
}

func vulnerabilitySource(fs afero.Fs, cfg config.Config, opts *scanOptions, log *logrus.Logger) (scan.VulnerabilitySource, *time.Time, error) {
	if !cfg.OfflineMode() {
		client := osv.NewClient()
		if opts.apiURL != "" {
			client.URL = opts.apiURL
		}
		client.Progress = !opts.noProgress
		client.Log = log
		return client, nil, nil
	}

	dir := dbDir(cfg.DBDir)
	store := osv.NewStore(fs, dir)
	updated, err := store.LastUpdated()
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to read the database metadata: %w", err)
	}
	if updated.IsZero() {
		log.WithField("db", dir).Warn("The local database has never been updated; run `deprisk update-db`")
		return store, nil, nil
	}
	log.WithField("db", dir).Debugf("Using the local database updated at %s", updated.Format(time.RFC3339))
	return store, &updated, nil
}

func addLicenses(cmd *cobra.Command, cfg config.Config, opts *scanOptions, log *logrus.Logger, doc *report.Document) error {
	if cfg.OfflineMode() {
		log.Warn("License information is not available offline, skipping")
		return nil
	}
	client := pypi.NewClient()
	if opts.pypiURL != "" {
		client.URL = opts.pypiURL
	}
	client.Progress = !opts.noProgress
	client.Log = log

	// the project itself is usually not published
	pkgs := lo.Filter(doc.Packages, func(pkg types.PackageID, _ int) bool {
		return pkg.Name != doc.Metadata.Project
	})
	info, err := client.Lookup(cmd.Context(), pkgs)
	if err != nil {
		return xerrors.Errorf("license lookup: %w", err)
	}
	doc.AddPackageInfo(info)
	return nil
}

func logDiagnostics(log *logrus.Logger, result *scan.Result) {
	for _, d := range result.Diagnostics {
		switch d.Kind {
		case types.IneffectivePattern:
			log.WithField("pattern", d.Subject).Warn(d.Message)
		default:
			log.WithField("package", d.Subject).Warn(d.Message)
		}
	}
	for _, id := range result.UnusedIgnores {
		log.WithField("id", id).Warn("Ignored vulnerability ID did not match any finding")
	}
}

func printReport(w io.Writer, format string, doc report.Document) error {
	switch format {
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return xerrors.Errorf("failed to encode the report: %w", err)
		}
		return nil
	case config.FormatCycloneDX:
		return report.WriteCycloneDX(w, doc)
	case config.FormatMarkdown:
		return report.WriteMarkdown(w, doc)
	default:
		return report.PrintSummary(w, doc)
	}
}

// writeReport saves the report to path. The text format has no file form, so it is saved
// as JSON.
func writeReport(fs afero.Fs, path, format string, doc report.Document) error {
	switch format {
	case config.FormatCycloneDX, config.FormatMarkdown:
		var buf bytes.Buffer
		if err := printReport(&buf, format, doc); err != nil {
			return err
		}
		if err := fs.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return xerrors.Errorf("unable to create a directory: %w", err)
		}
		if err := afero.WriteFile(fs, path, buf.Bytes(), 0644); err != nil {
			return xerrors.Errorf("failed to write the report: %w", err)
		}
		return nil
	default:
		return report.WriteJSON(fs, path, doc)
	}
}
