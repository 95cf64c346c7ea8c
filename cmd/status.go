package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geocode-cli/internal/geocoding"
	"github.com/sells-group/geocode-cli/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status DATABASE TABLE",
	Short: "Show how many rows of a table are geocoded",
	Long:  "Counts the rows of a table that already have results in the configured output columns.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}
		wcfg, err := writerConfig(cfg)
		if err != nil {
			return err
		}
		writer, err := geocoding.NewWriter(wcfg)
		if err != nil {
			return err
		}

		st, err := store.Open(ctx, cfg.Store.Driver, args[0], args[1])
		if err != nil {
			return eris.Wrapf(err, "status: open %s", args[1])
		}
		defer st.Close() //nolint:errcheck

		rows, err := st.Rows(ctx)
		if err != nil {
			return eris.Wrap(err, "status: read rows")
		}
		var geocoded int
		for _, row := range rows {
			if writer.Populated(row) {
				geocoded++
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "=== %s ===\n", st.Table())
		fmt.Fprintf(out, "Output:     %s\n", writer.Config().Mode)
		fmt.Fprintf(out, "Total rows: %d\n", len(rows))
		fmt.Fprintf(out, "Geocoded:   %d\n", geocoded)
		fmt.Fprintf(out, "Remaining:  %d\n", len(rows)-geocoded)
		return nil
	},
}

func init() {
	addOutputFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)
}
