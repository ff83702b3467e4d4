package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// NewLoginCommand creates the login command.
func NewLoginCommand() *cobra.Command {
	var (
		keyID     string
		keySecret string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key",
		Long:  "Verify an API key pair against the current tenant and save it to the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.BaseURL == "" {
				config.BaseURL = constants.DefaultBaseURL
			}

			reader := bufio.NewReader(cmd.InOrStdin())

			if keyID == "" {
				keyID = config.APIKeyID
			}

			if keyID == "" {
				keyID = prompt(cmd.OutOrStdout(), reader, "API key ID: ")
			}

			if keySecret == "" {
				secret, err := readSecret(cmd.OutOrStdout(), reader)
				if err != nil {
					return err
				}

				keySecret = secret
			}

			if keyID == "" || keySecret == "" {
				return constants.ErrNoAPIKey
			}

			config.APIKeyID = keyID
			config.APIKeySecret = keySecret

			client, err := newClient(cmd, config)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), constants.ShortHTTPTimeout)
			defer cancel()

			tenant, err := client.CurrentTenant(ctx)
			if err != nil {
				return fmt.Errorf("verifying API key: %w", err)
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			viper.Set(keyAPIKeyID, keyID)
			viper.Set(keyAPIKeySecret, keySecret)

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in to tenant %s (%s)\n", tenant.Name(), tenant.Href())

			return nil
		},
	}

	cmd.Flags().StringVar(&keyID, "id", "", "API key ID")
	cmd.Flags().StringVar(&keySecret, "secret", "", "API key secret")

	return cmd
}

func prompt(out io.Writer, reader *bufio.Reader, label string) string {
	_, _ = fmt.Fprint(out, label)
	line, _ := reader.ReadString('\n')

	return strings.TrimSpace(line)
}

// readSecret reads without echo from a terminal and falls back to a plain
// line read when stdin is redirected.
func readSecret(out io.Writer, reader *bufio.Reader) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return prompt(out, reader, "API key secret: "), nil
	}

	_, _ = fmt.Fprint(out, "API key secret: ")

	secret, err := term.ReadPassword(int(syscall.Stdin))

	_, _ = fmt.Fprintln(out)

	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	return strings.TrimSpace(string(secret)), nil
}
