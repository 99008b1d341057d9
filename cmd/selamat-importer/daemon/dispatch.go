package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func installDispatchCmd(app *App) {
	cmd := &cobra.Command{
		Use:   "dispatch [event-file]",
		Short: "Handle a single trigger event",
		Long: `Handle a single trigger event read from a file, or from the standard input if no file
is given, and print the response. The command fails if the response status code is not 200.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				app.cmd.SilenceUsage = false
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("could not open event file: %v", err)
				}
				defer f.Close()
				in = f
				app.cmd.SilenceUsage = true
			}

			event, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("could not read event: %v", err)
			}

			d, release, err := app.newDispatcher(cmd.Context(), prometheus.NewRegistry())
			if err != nil {
				return err
			}
			defer release()

			resp := d.Handle(cmd.Context(), event)
			out, err := json.Marshal(resp)
			if err != nil {
				return fmt.Errorf("could not encode response: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if resp.StatusCode != 200 {
				return fmt.Errorf("event handling failed with status %d: %s", resp.StatusCode, resp.Body)
			}
			return nil
		},
	}
	app.cmd.AddCommand(cmd)
}
