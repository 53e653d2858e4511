package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"github.com/aquasecurity/deprisk/osv"
	"github.com/aquasecurity/deprisk/utils"
)

type updateOptions struct {
	dbDir      string
	url        string
	noProgress bool
}

func newUpdateDBCmd() *cobra.Command {
	opts := &updateOptions{}
	cmd := &cobra.Command{
		Use:   "update-db",
		Short: "Download the OSV PyPI advisories for offline scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdateDB(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dbDir, "db-dir", "", "Local vulnerability database directory (default: $DEPRISK_DB_DIR or the user cache)")
	cmd.Flags().StringVar(&opts.url, "url", "", "URL of the OSV PyPI archive")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Suppress the progress bar")
	return cmd
}

func runUpdateDB(cmd *cobra.Command, opts *updateOptions) error {
	dir := dbDir(opts.dbDir)
	db := osv.NewOsv(
		osv.WithURL(opts.url),
		osv.WithDir(dir),
		osv.WithFs(afero.NewOsFs()),
		osv.WithLogger(logrus.StandardLogger()),
		osv.WithProgress(!opts.noProgress),
	)
	if err := db.Update(cmd.Context()); err != nil {
		return xerrors.Errorf("error in OSV update: %w", err)
	}
	logrus.WithField("db", dir).Info("Vulnerability database updated")
	return nil
}

func dbDir(dir string) string {
	if dir != "" {
		return dir
	}
	return utils.DBDir()
}
