package osv

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
	"github.com/aquasecurity/deprisk/utils"
)

const (
	apiURL             = "https://api.osv.dev"
	defaultConcurrency = 10
	defaultRetry       = 3
	maxPages           = 100
)

type query struct {
	Package   Package `json:"package"`
	Version   string  `json:"version"`
	PageToken string  `json:"page_token,omitempty"`
}

type queryResponse struct {
	Vulns         []Entry `json:"vulns"`
	NextPageToken string  `json:"next_page_token"`
}

// Client looks packages up on the OSV API.
type Client struct {
	URL         string
	Concurrency int
	Retry       int
	Progress    bool
	Log         *logrus.Logger
}

func NewClient() *Client {
	return &Client{
		URL:         apiURL,
		Concurrency: defaultConcurrency,
		Retry:       defaultRetry,
		Log:         logrus.StandardLogger(),
	}
}

// Lookup queries every package concurrently. Results keep the input order and packages
// without advisories are omitted.
func (c *Client) Lookup(ctx context.Context, pkgs []types.PackageID) ([]types.PackageVulnerabilities, error) {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var bar *pb.ProgressBar
	if c.Progress {
		bar = pb.StartNew(len(pkgs))
		defer bar.Finish()
	}

	found := make([][]types.VulnerabilityRecord, len(pkgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, pkg := range pkgs {
		i, pkg := i, pkg
		g.Go(func() error {
			vulns, err := c.query(ctx, pkg)
			if err != nil {
				return xerrors.Errorf("OSV query for %s: %w", pkg, err)
			}
			found[i] = vulns
			if bar != nil {
				bar.Increment()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var results []types.PackageVulnerabilities
	for i, vulns := range found {
		if len(vulns) > 0 {
			results = append(results, types.PackageVulnerabilities{Package: pkgs[i], Vulnerabilities: vulns})
		}
	}
	return results, nil
}

func (c *Client) query(ctx context.Context, pkg types.PackageID) ([]types.VulnerabilityRecord, error) {
	q := query{
		Package: Package{Name: pkg.Name, Ecosystem: ecosystemPyPI},
		Version: pkg.Version,
	}
	url := strings.TrimSuffix(c.URL, "/") + "/v1/query"

	var vulns []types.VulnerabilityRecord
	for page := 0; page < maxPages; page++ {
		body, err := utils.PostJSON(ctx, url, q, c.Retry)
		if err != nil {
			return nil, err
		}
		var resp queryResponse
		if err = json.Unmarshal(body, &resp); err != nil {
			return nil, xerrors.Errorf("unable to parse OSV response: %w", err)
		}
		for _, entry := range resp.Vulns {
			if v, ok := Convert(entry, pkg, c.logger()); ok {
				vulns = append(vulns, v)
			} else {
				c.logger().WithField("package", pkg.String()).Debugf("skipping %s", entry.ID)
			}
		}
		if resp.NextPageToken == "" {
			return vulns, nil
		}
		q.PageToken = resp.NextPageToken
	}
	c.logger().WithField("package", pkg.String()).Warnf("OSV results truncated after %d pages", maxPages)
	return vulns, nil
}

func (c *Client) logger() *logrus.Logger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}
