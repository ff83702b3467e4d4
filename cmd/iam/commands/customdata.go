package commands

import (
	"fmt"
	"strings"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/spf13/cobra"
)

// NewCustomDataCommand creates the custom-data command group.
func NewCustomDataCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "custom-data",
		Aliases: []string{"customdata", "cd"},
		Short:   "Manage custom data",
		Long:    "Read and edit the free-form custom data attached to accounts, applications and other resources",
	}

	cmd.AddCommand(newCustomDataGetCommand())
	cmd.AddCommand(newCustomDataDeleteKeyCommand())

	return cmd
}

func newCustomDataGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get PARENT_HREF",
		Short: "Show custom data",
		Long:  "Show the custom data of the resource at PARENT_HREF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			customData, err := client.GetCustomData(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting custom data: %w", err)
			}

			return renderProperties(cmd, customData.Values())
		},
	}
}

func newCustomDataDeleteKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key PARENT_HREF KEY",
		Short: "Delete one custom data key",
		Long:  "Remove KEY from the custom data of the resource at PARENT_HREF",
		Args:  cobra.ExactArgs(constants.MinimumArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[1])
			if key == "" {
				return constants.ErrKeyRequired
			}

			client, err := CreateClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			err = client.DeleteCustomDataKey(cmd.Context(), args[0], key)
			if err != nil {
				return fmt.Errorf("deleting custom data key %s: %w", key, err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key)

			return nil
		},
	}
}
