package lockfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/types"
)

const (
	LockfileName  = "uv.lock"
	PyprojectName = "pyproject.toml"

	// DefaultMaxFileSize caps how much of an untrusted project file is read.
	DefaultMaxFileSize int64 = 100 * 1024 * 1024
)

var (
	ErrNotFound       = xerrors.New("file not found")
	ErrSymlink        = xerrors.New("symbolic links are not allowed")
	ErrNotRegularFile = xerrors.New("not a regular file")
	ErrFileTooLarge   = xerrors.New("file too large")
)

// Project is what a uv project directory contributes to a scan.
type Project struct {
	Name     string
	Lockfile *Lockfile
}

func (p Project) Packages() []types.PackageID {
	return p.Lockfile.Packages()
}

type Reader struct {
	Fs      afero.Fs
	MaxSize int64
}

func NewReader(fs afero.Fs) Reader {
	return Reader{Fs: fs, MaxSize: DefaultMaxFileSize}
}

// Read loads uv.lock and pyproject.toml from dir.
func (r Reader) Read(dir string) (*Project, error) {
	lockPath := filepath.Join(dir, LockfileName)
	b, err := r.readFile(lockPath)
	if err != nil {
		if xerrors.Is(err, ErrNotFound) {
			return nil, xerrors.Errorf("%s does not exist in %q; run in the root of a uv project or pass --path: %w",
				LockfileName, dir, err)
		}
		return nil, err
	}
	lf, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", lockPath, err)
	}

	projPath := filepath.Join(dir, PyprojectName)
	b, err = r.readFile(projPath)
	if err != nil {
		return nil, err
	}
	name, err := ProjectName(bytes.NewReader(b))
	if err != nil {
		return nil, xerrors.Errorf("%s: %w", projPath, err)
	}

	return &Project{Name: name, Lockfile: lf}, nil
}

// readFile refuses symlinks, anything that is not a regular file and files over MaxSize.
func (r Reader) readFile(path string) ([]byte, error) {
	fi, err := r.lstat(path)
	if os.IsNotExist(err) {
		return nil, xerrors.Errorf("%s: %w", path, ErrNotFound)
	} else if err != nil {
		return nil, xerrors.Errorf("failed to stat %s: %w", path, err)
	}

	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return nil, xerrors.Errorf("%s: %w", path, ErrSymlink)
	case !fi.Mode().IsRegular():
		return nil, xerrors.Errorf("%s: %w", path, ErrNotRegularFile)
	}

	maxSize := r.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if fi.Size() > maxSize {
		return nil, xerrors.Errorf("%s is %d bytes, limit is %d: %w", path, fi.Size(), maxSize, ErrFileTooLarge)
	}

	f, err := r.Fs.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// the file may have grown since the stat
	b, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	if int64(len(b)) > maxSize {
		return nil, xerrors.Errorf("%s exceeds %d bytes: %w", path, maxSize, ErrFileTooLarge)
	}
	return b, nil
}

func (r Reader) lstat(path string) (os.FileInfo, error) {
	if l, ok := r.Fs.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(path)
		return fi, err
	}
	return r.Fs.Stat(path)
}
