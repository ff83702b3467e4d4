package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/iamclient"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const defaultYAMLIndent = 2

// CreateClient builds a client from the stored configuration and flags.
func CreateClient(cmd *cobra.Command) (*iamclient.Client, error) {
	config := loadConfig()

	if config.BaseURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	if config.APIKeyID == "" || config.APIKeySecret == "" {
		return nil, constants.ErrNoAPIKey
	}

	return newClient(cmd, config)
}

func newClient(cmd *cobra.Command, config *Config) (*iamclient.Client, error) {
	verbose := viper.GetBool("verbose")

	client, err := iamclient.New(cmd.Context(), &iam.Config{
		BaseURL:      config.BaseURL,
		APIKeyID:     config.APIKeyID,
		APIKeySecret: config.APIKeySecret,
		RateLimit:    config.RateLimit,
		Cache:        buildCacheConfig(config),
		Debug:        verbose,
		Logger:       newLogger(verbose),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return client, nil
}

func buildCacheConfig(config *Config) *iam.CacheConfig {
	cacheConfig := iam.DefaultCacheConfig()

	if config.Cache != "" {
		cacheConfig.Type = iam.CacheType(config.Cache)
	}

	if config.RedisAddr != "" {
		cacheConfig.Redis = &iam.RedisCacheConfig{Addr: config.RedisAddr}
		cacheConfig.Remote = iam.CacheTypeRedis
	}

	if config.NATSURL != "" {
		cacheConfig.NATS = &iam.NATSKVConfig{URL: config.NATSURL}
		if cacheConfig.Remote == "" {
			cacheConfig.Remote = iam.CacheTypeNATS
		}
	}

	return cacheConfig
}

func newLogger(verbose bool) iam.Logger {
	if !verbose {
		return iam.NoOpLogger{}
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return iam.NoOpLogger{}
	}

	return iam.NewZapLogger(logger)
}

// StandardJSONRenderer writes data as indented JSON.
func StandardJSONRenderer[T any](out io.Writer, data T) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding data to JSON: %w", err)
	}

	return nil
}

// StandardYAMLRenderer writes data as YAML.
func StandardYAMLRenderer[T any](out io.Writer, data T) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(defaultYAMLIndent)

	err := encoder.Encode(data)
	if err != nil {
		return fmt.Errorf("encoding data to YAML: %w", err)
	}

	return encoder.Close()
}

// columns lists the table columns shown for each listed kind.
var columns = map[resource.Kind][]string{
	resource.KindAccount:      {"givenName", "surname", "email", "status", "href"},
	resource.KindApplication:  {"name", "status", "href"},
	resource.KindDirectory:    {"name", "status", "href"},
	resource.KindGroup:        {"name", "status", "href"},
	resource.KindOrganization: {"name", "nameKey", "status", "href"},
}

// headerFor turns a property name such as "givenName" into "Given Name".
func headerFor(property string) string {
	var words strings.Builder

	for i, r := range property {
		if i > 0 && unicode.IsUpper(r) {
			words.WriteRune(' ')
		}

		words.WriteRune(r)
	}

	return cases.Title(language.English, cases.NoLower).String(words.String())
}

// pluralTitle renders a kind as a heading, e.g. "Accounts".
func pluralTitle(kind resource.Kind) string {
	return cases.Title(language.English, cases.NoLower).String(string(kind) + "s")
}

func displayValue(value any) string {
	switch resource.Classify(value) {
	case resource.Link, resource.Expanded:
		nested, _ := resource.AsMap(value)

		return resource.HrefOf(nested)
	case resource.NestedArray:
		items, _ := value.([]any)

		return fmt.Sprintf("[%d items]", len(items))
	case resource.Scalar:
	}

	if value == nil {
		return ""
	}

	return fmt.Sprint(value)
}

func renderResource(cmd *cobra.Command, res resource.Resource) error {
	return renderProperties(cmd, res.Data().Snapshot())
}

func renderProperties(cmd *cobra.Command, props iam.Map) error {
	out := cmd.OutOrStdout()

	switch viper.GetString("output") {
	case constants.FormatJSON:
		return StandardJSONRenderer(out, props)
	case constants.FormatYAML:
		return StandardYAMLRenderer(out, props)
	}

	table := tablewriter.NewWriter(out)
	table.Header("Property", "Value")

	for _, key := range slices.Sorted(maps.Keys(props)) {
		_ = table.Append(headerFor(key), displayValue(props[key]))
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func renderResources[T resource.Resource](cmd *cobra.Command, kind resource.Kind, items []T) error {
	out := cmd.OutOrStdout()

	snapshots := make([]iam.Map, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, item.Data().Snapshot())
	}

	switch viper.GetString("output") {
	case constants.FormatJSON:
		return StandardJSONRenderer(out, snapshots)
	case constants.FormatYAML:
		return StandardYAMLRenderer(out, snapshots)
	}

	if len(items) == 0 {
		_, _ = fmt.Fprintf(out, "No %s found\n", strings.ToLower(pluralTitle(kind)))

		return nil
	}

	fields := columns[kind]
	if fields == nil {
		fields = []string{resource.HrefProperty}
	}

	headers := make([]any, 0, len(fields))
	for _, field := range fields {
		headers = append(headers, headerFor(field))
	}

	table := tablewriter.NewWriter(out)
	table.Header(headers...)

	for _, snapshot := range snapshots {
		row := make([]string, 0, len(fields))
		for _, field := range fields {
			row = append(row, displayValue(snapshot[field]))
		}

		_ = table.Append(row)
	}

	err := table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}
