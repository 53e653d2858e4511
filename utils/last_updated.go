package utils

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

const (
	lastUpdatedFile = "last_updated.json"
)

type LastUpdated map[string]time.Time

// GetLastUpdatedDate returns when source was last written under dir, or the zero time if never.
func (fs Fs) GetLastUpdatedDate(dir, source string) (time.Time, error) {
	lastUpdated, err := fs.getLastUpdatedDate(dir)
	if err != nil {
		return time.Time{}, err
	}
	return lastUpdated[source], nil
}

func (fs Fs) getLastUpdatedDate(dir string) (LastUpdated, error) {
	lastUpdated := LastUpdated{}
	path := filepath.Join(dir, lastUpdatedFile)
	if ok, err := afero.Exists(fs.AppFs, path); err != nil {
		return nil, xerrors.Errorf("failed to stat %s: %w", path, err)
	} else if !ok {
		return lastUpdated, nil
	}

	if err := fs.ReadJSON(path, &lastUpdated); err != nil {
		return nil, err
	}
	return lastUpdated, nil
}

func (fs Fs) SetLastUpdatedDate(dir, source string, lastUpdatedDate time.Time) error {
	lastUpdated, err := fs.getLastUpdatedDate(dir)
	if err != nil {
		return xerrors.Errorf("failed to get last updated date: %w", err)
	}
	lastUpdated[source] = lastUpdatedDate

	if err = fs.WriteJSON(filepath.Join(dir, lastUpdatedFile), lastUpdated); err != nil {
		return xerrors.Errorf("failed to write last updated date: %w", err)
	}
	return nil
}
