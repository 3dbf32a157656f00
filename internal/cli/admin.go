package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"learning-platform/internal/app"
)

// NewAdminCmd manages administrator accounts.
func NewAdminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var in app.RegisterInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd.Context(), *configPath, func(ctx context.Context, a *application) error {
				user, err := a.services.Auth.CreateAdmin(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", user.Email, user.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "display name")
	create.Flags().StringVar(&in.Email, "email", "", "login email")
	create.Flags().StringVar(&in.Password, "password", "", "password (min 6 characters)")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	return cmd
}
