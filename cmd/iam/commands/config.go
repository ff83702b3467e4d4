package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Configuration keys, shared by the config file, viper and `iam config set`.
const (
	keyBaseURL      = "base_url"
	keyAPIKeyID     = "api_key_id"
	keyAPIKeySecret = "api_key_secret"
	keyOutput       = "output"
	keyCache        = "cache"
	keyRedisAddr    = "redis_addr"
	keyNATSURL      = "nats_url"
	keyRateLimit    = "rate_limit"
)

// Config represents the CLI configuration.
type Config struct {
	BaseURL      string  `json:"base_url,omitempty"       yaml:"base_url,omitempty"`
	APIKeyID     string  `json:"api_key_id,omitempty"     yaml:"api_key_id,omitempty"`
	APIKeySecret string  `json:"api_key_secret,omitempty" yaml:"api_key_secret,omitempty"`
	Output       string  `json:"output,omitempty"         yaml:"output,omitempty"`
	Cache        string  `json:"cache,omitempty"          yaml:"cache,omitempty"`
	RedisAddr    string  `json:"redis_addr,omitempty"     yaml:"redis_addr,omitempty"`
	NATSURL      string  `json:"nats_url,omitempty"       yaml:"nats_url,omitempty"`
	RateLimit    float64 `json:"rate_limit,omitempty"     yaml:"rate_limit,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration",
		Long:  "Show and change the IAM CLI configuration stored in ~/.iam/config.yml",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current CLI configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()
			if config.APIKeySecret != "" {
				config.APIKeySecret = constants.MaskedSecret
			}

			switch viper.GetString("output") {
			case constants.FormatJSON:
				return StandardJSONRenderer(cmd.OutOrStdout(), config)
			case constants.FormatYAML:
				return StandardYAMLRenderer(cmd.OutOrStdout(), config)
			default:
				return displayConfigTable(cmd, config)
			}
		},
	}
}

func newConfigSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Long:  "Set a configuration value. Keys: base_url, api_key_id, api_key_secret, output, cache, redis_addr, nats_url, rate_limit",
		Args:  cobra.ExactArgs(constants.MinimumArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			err := setConfigValue(config, args[0], args[1])
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Set %s\n", args[0])

			return nil
		},
	}
}

func newConfigUnsetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unset KEY",
		Short: "Unset a configuration value",
		Long:  "Remove a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config := loadConfig()

			err := unsetConfigValue(config, args[0])
			if err != nil {
				return err
			}

			err = saveConfigStruct(config)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unset %s\n", args[0])

			return nil
		},
	}
}

func loadConfig() *Config {
	return &Config{
		BaseURL:      viper.GetString(keyBaseURL),
		APIKeyID:     viper.GetString(keyAPIKeyID),
		APIKeySecret: viper.GetString(keyAPIKeySecret),
		Output:       viper.GetString(keyOutput),
		Cache:        viper.GetString(keyCache),
		RedisAddr:    viper.GetString(keyRedisAddr),
		NATSURL:      viper.GetString(keyNATSURL),
		RateLimit:    viper.GetFloat64(keyRateLimit),
	}
}

func setConfigValue(config *Config, key, value string) error {
	switch key {
	case keyBaseURL:
		config.BaseURL = value
	case keyAPIKeyID:
		config.APIKeyID = value
	case keyAPIKeySecret:
		config.APIKeySecret = value
	case keyOutput:
		if !validOutput(value) {
			return fmt.Errorf("%w: %q", constants.ErrInvalidOutput, value)
		}

		config.Output = value
	case keyCache:
		config.Cache = value
	case keyRedisAddr:
		config.RedisAddr = value
	case keyNATSURL:
		config.NATSURL = value
	case keyRateLimit:
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid rate limit %q: %w", value, err)
		}

		config.RateLimit = rate
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	viper.Set(key, value)

	return nil
}

func unsetConfigValue(config *Config, key string) error {
	switch key {
	case keyBaseURL:
		config.BaseURL = ""
	case keyAPIKeyID:
		config.APIKeyID = ""
	case keyAPIKeySecret:
		config.APIKeySecret = ""
	case keyOutput:
		config.Output = ""
	case keyCache:
		config.Cache = ""
	case keyRedisAddr:
		config.RedisAddr = ""
	case keyNATSURL:
		config.NATSURL = ""
	case keyRateLimit:
		config.RateLimit = 0
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownConfigKey, key)
	}

	viper.Set(key, "")

	return nil
}

func validOutput(output string) bool {
	switch output {
	case constants.FormatTable, constants.FormatJSON, constants.FormatYAML:
		return true
	default:
		return false
	}
}

func configFilePath() (string, error) {
	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, constants.ConfigDirName, constants.ConfigFileName), nil
}

func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func displayConfigTable(cmd *cobra.Command, config *Config) error {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Property", "Value")

	rows := [][2]string{
		{keyBaseURL, config.BaseURL},
		{keyAPIKeyID, config.APIKeyID},
		{keyAPIKeySecret, config.APIKeySecret},
		{keyOutput, config.Output},
		{keyCache, config.Cache},
		{keyRedisAddr, config.RedisAddr},
		{keyNATSURL, config.NATSURL},
		{keyRateLimit, strconv.FormatFloat(config.RateLimit, 'f', -1, 64)},
	}

	for _, row := range rows {
		value := row[1]
		if value == "" {
			value = constants.NotAvailable
		}

		_ = table.Append(row[0], value)
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
