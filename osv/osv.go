package osv

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/utils"
)

const (
	securityTrackerURL = "https://osv-vulnerabilities.storage.googleapis.com/PyPI/all.zip"
	pythonDir          = "python"

	// LastUpdatedKey names the database in last_updated.json.
	LastUpdatedKey = "osv-pypi"
)

type options struct {
	url      string
	dir      string
	fs       afero.Fs
	logger   *logrus.Logger
	progress bool
	clock    func() time.Time
}

type option func(*options)

type Database struct {
	*options
}

// WithURL overrides the archive URL. An empty url keeps the default.
func WithURL(url string) option {
	return func(opts *options) {
		if url != "" {
			opts.url = url
		}
	}
}

func WithDir(dir string) option {
	return func(opts *options) {
		opts.dir = dir
	}
}

func WithFs(fs afero.Fs) option {
	return func(opts *options) {
		opts.fs = fs
	}
}

func WithLogger(logger *logrus.Logger) option {
	return func(opts *options) {
		opts.logger = logger
	}
}

func WithProgress(progress bool) option {
	return func(opts *options) {
		opts.progress = progress
	}
}

func WithClock(clock func() time.Time) option {
	return func(opts *options) {
		opts.clock = clock
	}
}

func NewOsv(opts ...option) Database {
	o := &options{
		url:    securityTrackerURL,
		dir:    utils.DBDir(),
		fs:     afero.NewOsFs(),
		logger: logrus.StandardLogger(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return Database{
		options: o,
	}
}

// Update downloads the PyPI advisory archive and stores every advisory as
// <dir>/python/<normalized package>/<ID>.json.
func (osv *Database) Update(ctx context.Context) error {
	osv.logger.Infof("Updating OSV PyPI advisories from %s", osv.url)
	tempDir, cleanup, err := utils.DownloadToTempDir(ctx, osv.url)
	if err != nil {
		return xerrors.Errorf("failed to download %s: %w", osv.url, err)
	}
	defer cleanup()

	var files []string
	err = filepath.WalkDir(tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".json" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("walk error: %w", err)
	}

	var bar *pb.ProgressBar
	if osv.progress {
		bar = pb.StartNew(len(files))
		defer bar.Finish()
	}

	out := utils.NewFs(osv.fs)
	var written int
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := readEntry(path)
		if err != nil {
			return err
		}
		if !validID(entry.ID) {
			osv.logger.WithField("file", filepath.Base(path)).Warnf("skipping advisory with invalid ID %q", entry.ID)
			if bar != nil {
				bar.Increment()
			}
			continue
		}

		names := lo.Uniq(lo.FilterMap(entry.Affected, func(a Affected, _ int) (string, bool) {
			return NormalizeName(a.Package.Name), a.Package.Ecosystem == ecosystemPyPI && a.Package.Name != ""
		}))
		if len(names) == 0 {
			osv.logger.Debugf("skipping %s: no PyPI package", entry.ID)
		}
		for _, name := range names {
			filePath := filepath.Join(osv.dir, pythonDir, name, fmt.Sprintf("%s.json", entry.ID))
			if err = out.WriteJSON(filePath, entry); err != nil {
				return xerrors.Errorf("failed to write file: %w", err)
			}
			written++
		}
		if bar != nil {
			bar.Increment()
		}
	}

	if err = out.SetLastUpdatedDate(osv.dir, LastUpdatedKey, osv.clock().UTC()); err != nil {
		return xerrors.Errorf("failed to record the update time: %w", err)
	}
	osv.logger.Infof("Stored %d advisories under %s", written, osv.dir)
	return nil
}

// validID reports whether id can be used as a file name inside the database directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

func readEntry(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, xerrors.Errorf("file open error (%s): %w", path, err)
	}
	defer f.Close()

	var entry Entry
	if err = json.NewDecoder(f).Decode(&entry); err != nil {
		return Entry{}, xerrors.Errorf("unable to parse json %s: %w", path, err)
	}
	return entry, nil
}
