package utils

import (
	"context"
	"os"

	getter "github.com/hashicorp/go-getter"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// DownloadToTempDir fetches src into a new temporary directory, unpacking archives.
// The caller must call cleanup once it is done with the directory.
func DownloadToTempDir(ctx context.Context, src string) (dir string, cleanup func(), err error) {
	tmpDir, err := os.MkdirTemp("", "deprisk")
	if err != nil {
		return "", nil, xerrors.Errorf("failed to create a temp dir: %w", err)
	}
	cleanup = func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logrus.Debugf("failed to remove %s: %s", tmpDir, err)
		}
	}

	// go-getter doesn't allow destination to exist.It needs to be removed once.
	// https://github.com/hashicorp/go-getter/blob/7b99c311a18a8bb679bc7ff3a830a65029afef9b/module_test.go#L18-L28
	if err = os.RemoveAll(tmpDir); err != nil {
		return "", nil, xerrors.Errorf("failed to remove %s: %w", tmpDir, err)
	}

	if err = download(ctx, src, tmpDir); err != nil {
		cleanup()
		return "", nil, xerrors.Errorf("download error: %w", err)
	}

	return tmpDir, cleanup, nil
}

func download(ctx context.Context, src, dst string) error {
	pwd, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("unable to get the current dir: %w", err)
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     src,
		Dst:     dst,
		Pwd:     pwd,
		Getters: getter.Getters,
		Mode:    getter.ClientModeDir,
	}

	if err = client.Get(); err != nil {
		return xerrors.Errorf("failed to download: %w", err)
	}

	return nil
}
