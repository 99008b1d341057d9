package daemon

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func installImportCmd(app *App) {
	var bucket, prefix string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every JSON document of a bucket prefix",
		Long: `Import every JSON document stored under a prefix of a bucket, then exit.
Without a prefix, the whole bucket is imported, or the prefix of the pinned schema if any.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cmd.SilenceUsage = false
			if bucket == "" {
				return errors.New("a bucket name is required")
			}
			app.cmd.SilenceUsage = true

			proc, release, err := app.newProcessor(cmd.Context(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer release()

			if prefix == "" {
				prefix = proc.DefaultPrefix()
			}
			n, err := proc.ImportAll(cmd.Context(), bucket, prefix)
			if err != nil {
				return fmt.Errorf("import stopped after %d documents: %v", n, err)
			}
			slog.Info("Import completed", "bucket", bucket, "prefix", prefix, "count", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d documents\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "bucket to import from")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix to import")

	app.cmd.AddCommand(cmd)
}
