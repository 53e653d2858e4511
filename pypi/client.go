package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
	"github.com/aquasecurity/deprisk/utils"
)

const (
	apiURL             = "https://pypi.org"
	defaultConcurrency = 5
	defaultRetry       = 2
)

// Client fetches release metadata from the PyPI JSON API. Responses are cached per
// package and version for the lifetime of the client.
type Client struct {
	URL         string
	Concurrency int
	Retry       int
	Progress    bool
	Log         *logrus.Logger

	mu    sync.Mutex
	cache map[types.PackageID]types.PackageInfo
}

func NewClient() *Client {
	return &Client{
		URL:         apiURL,
		Concurrency: defaultConcurrency,
		Retry:       defaultRetry,
		Log:         logrus.StandardLogger(),
	}
}

// Info returns the license and summary of one release.
func (c *Client) Info(ctx context.Context, pkg types.PackageID) (types.PackageInfo, error) {
	if info, ok := c.cached(pkg); ok {
		return info, nil
	}

	u := fmt.Sprintf("%s/pypi/%s/%s/json", strings.TrimSuffix(c.URL, "/"),
		url.PathEscape(pkg.Name), url.PathEscape(pkg.Version))
	body, err := utils.GetJSON(ctx, u, c.Retry)
	if err != nil {
		return types.PackageInfo{}, err
	}
	var resp projectResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return types.PackageInfo{}, xerrors.Errorf("unable to parse PyPI response: %w", err)
	}

	info := types.PackageInfo{
		License:     SelectLicense(resp.Info),
		Description: strings.TrimSpace(resp.Info.Summary),
	}
	c.store(pkg, info)
	return info, nil
}

// Lookup fetches every package concurrently. A package that cannot be fetched is logged
// and left out; only cancellation fails the lookup.
func (c *Client) Lookup(ctx context.Context, pkgs []types.PackageID) (map[types.PackageID]types.PackageInfo, error) {
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	var bar *pb.ProgressBar
	if c.Progress {
		bar = pb.StartNew(len(pkgs))
		defer bar.Finish()
	}

	var mu sync.Mutex
	found := make(map[types.PackageID]types.PackageInfo, len(pkgs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, pkg := range pkgs {
		pkg := pkg
		g.Go(func() error {
			info, err := c.Info(ctx, pkg)
			if bar != nil {
				bar.Increment()
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			} else if err != nil {
				c.logger().WithField("package", pkg.String()).Warnf("Failed to fetch license information: %s", err)
				return nil
			}
			mu.Lock()
			found[pkg] = info
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger().Infof("License information retrieved for %d of %d package(s)", len(found), len(pkgs))
	return found, nil
}

func (c *Client) cached(pkg types.PackageID) (types.PackageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.cache[pkg]
	return info, ok
}

func (c *Client) store(pkg types.PackageID, info types.PackageInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache == nil {
		c.cache = map[types.PackageID]types.PackageInfo{}
	}
	c.cache[pkg] = info
}

func (c *Client) logger() *logrus.Logger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}
