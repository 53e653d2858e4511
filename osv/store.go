package osv

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
	"github.com/aquasecurity/deprisk/utils"
)

// Store looks packages up in a database directory written by Database.Update.
type Store struct {
	fs  utils.Fs
	dir string
	Log *logrus.Logger
}

func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: utils.NewFs(fs), dir: dir, Log: logrus.StandardLogger()}
}

// LastUpdated returns when the database was last refreshed, or the zero time.
func (s *Store) LastUpdated() (time.Time, error) {
	return s.fs.GetLastUpdatedDate(s.dir, LastUpdatedKey)
}

// Lookup returns the advisories affecting each package. Packages without any are omitted.
func (s *Store) Lookup(ctx context.Context, pkgs []types.PackageID) ([]types.PackageVulnerabilities, error) {
	if ok, err := afero.DirExists(s.fs.AppFs, s.dir); err != nil {
		return nil, xerrors.Errorf("failed to stat %s: %w", s.dir, err)
	} else if !ok {
		return nil, xerrors.Errorf("vulnerability database %s not found, run update-db first: %w", s.dir, os.ErrNotExist)
	}

	var results []types.PackageVulnerabilities
	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vulns, err := s.lookup(pkg)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", pkg, err)
		}
		if len(vulns) > 0 {
			results = append(results, types.PackageVulnerabilities{Package: pkg, Vulnerabilities: vulns})
		}
	}
	return results, nil
}

func (s *Store) lookup(pkg types.PackageID) ([]types.VulnerabilityRecord, error) {
	dir := filepath.Join(s.dir, pythonDir, NormalizeName(pkg.Name))
	files, err := afero.ReadDir(s.fs.AppFs, dir)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", dir, err)
	}

	var vulns []types.VulnerabilityRecord
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		var entry Entry
		if err = s.fs.ReadJSON(filepath.Join(dir, f.Name()), &entry); err != nil {
			return nil, err
		}
		if v, ok := Convert(entry, pkg, s.Log); ok {
			vulns = append(vulns, v)
		}
	}
	return vulns, nil
}
