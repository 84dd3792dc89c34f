package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/coin"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/complaint"
)

func newMigrateCommand(o *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and columns",
		Long: `Create the users, coin_transactions and complaints tables when they are
missing, and add columns introduced since each table was first created.
Running it twice is harmless.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := o.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			steps := []struct {
				name   string
				ensure func(context.Context) error
			}{
				{"users", o.userService(db).EnsureSchema},
				{"coin_transactions", coin.NewService(db).EnsureSchema},
				{"complaints", complaint.NewService(db).EnsureSchema},
			}
			for _, step := range steps {
				if err := step.ensure(ctx); err != nil {
					return fmt.Errorf("ensure %s: %w", step.name, err)
				}
				if o.verbose {
					cmd.PrintErrf("ensured %s\n", step.name)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout for the schema changes")
	return cmd
}
