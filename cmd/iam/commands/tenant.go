package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewTenantCommand creates the tenant command.
func NewTenantCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tenant",
		Short: "Show the current tenant",
		Long:  "Show the tenant that owns the configured API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			tenant, err := client.CurrentTenant(cmd.Context())
			if err != nil {
				return fmt.Errorf("getting current tenant: %w", err)
			}

			return renderResource(cmd, tenant)
		},
	}
}
