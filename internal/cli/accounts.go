package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/user"
)

func newCreateAdminCommand(o *options) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Long:  "Create an admin account with its email already verified, without an API session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := o.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			u, err := o.userService(db).CreateAdmin(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newResetPasswordCommand(o *options) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password for an account",
		Long:  "Set a new password for the account registered to --email and clear any login lockout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := o.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := o.userService(db).ResetPassword(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password reset for %s\n", user.NormalizeEmail(email))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newCheckPasswordsCommand(o *options) *cobra.Command {
	var emails []string
	cmd := &cobra.Command{
		Use:   "check-passwords",
		Short: "Report how account passwords are stored",
		Long: `List accounts with the storage format of their password: "hashed" for
bcrypt hashes, "legacy" for values that will be migrated on the next login.
Password values are never printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := o.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			states, err := o.userService(db).PasswordStates(cmd.Context(), emails)
			if err != nil {
				return err
			}
			return writePasswordStates(cmd.OutOrStdout(), states)
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", nil, "only report these emails (repeatable)")
	return cmd
}

func writePasswordStates(w io.Writer, states []user.PasswordState) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tTYPE\tACTIVE\tPASSWORD")
	legacy := 0
	for _, s := range states {
		if s.Format == "legacy" {
			legacy++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", s.Email, s.Name, s.UserType, s.IsActive, s.Format)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d accounts, %d legacy\n", len(states), legacy)
	return err
}

func newSetActiveCommand(o *options, use string, active bool) *cobra.Command {
	var email string
	short := "Deactivate an account"
	if active {
		short = "Reactivate a deactivated account"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := o.connect()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := o.userService(db).SetActive(cmd.Context(), email, active); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: is_active=%t\n", user.NormalizeEmail(email), active)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
