package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single retention pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.close(cmd.Context())

		n := a.sweeper.Sweep(cmd.Context(), time.Now())
		fmt.Fprintf(cmd.OutOrStdout(), "evicted %d artifact(s)\n", n)
		return nil
	},
}
