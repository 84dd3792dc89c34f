package cli

import (
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-market-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
)

// options carries the persistent flags and the configuration they resolve to.
type options struct {
	configFile  string
	databaseURL string
	verbose     bool

	cfg *config.Config
}

func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(o *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Marketplace operator toolkit",
		Long: `marketctl runs maintenance tasks against the marketplace database.

It can:
- create or update the tables the service needs
- bootstrap admin accounts and reset passwords
- report which accounts still carry legacy passwords
- deactivate and reactivate accounts`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help":
				return nil
			}
			cfg, err := config.Read(o.configFile)
			if err != nil {
				return err
			}
			if o.databaseURL != "" {
				cfg.Database.DSN = o.databaseURL
			}
			o.cfg = cfg
			if o.verbose {
				cmd.PrintErrf("config loaded (bcrypt cost %d)\n", cfg.Auth.BcryptCost)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&o.configFile, "config", "", "config file (default: service.yaml)")
	rootCmd.PersistentFlags().StringVar(&o.databaseURL, "url", "", "database connection URL")
	rootCmd.PersistentFlags().BoolVar(&o.verbose, "verbose", false, "enable verbose output")

	rootCmd.AddCommand(newMigrateCommand(o))
	rootCmd.AddCommand(newCreateAdminCommand(o))
	rootCmd.AddCommand(newResetPasswordCommand(o))
	rootCmd.AddCommand(newCheckPasswordsCommand(o))
	rootCmd.AddCommand(newSetActiveCommand(o, "deactivate", false))
	rootCmd.AddCommand(newSetActiveCommand(o, "reactivate", true))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func (o *options) connect() (*sqlx.DB, error) {
	return database.Connect(o.cfg.Database)
}

// userService builds a service without a token issuer; the CLI never logs anyone in.
func (o *options) userService(db *sqlx.DB) *user.UserService {
	svc := user.NewUserService(db, nil, user.BcryptHasher{Cost: o.cfg.Auth.BcryptCost}, nil)
	svc.MaxFailed = o.cfg.Auth.MaxFailedLogins
	svc.LockDuration = o.cfg.Auth.LockDuration
	return svc
}
