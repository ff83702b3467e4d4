package commands_test

import (
	"testing"

	"github.com/fivetwenty-io/iam/cmd/iam/commands"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		command func() *cobra.Command
		use     string
		alias   string
	}{
		{"accounts", commands.NewAccountsCommand, "accounts", "account"},
		{"applications", commands.NewApplicationsCommand, "applications", "apps"},
		{"directories", commands.NewDirectoriesCommand, "directories", "dirs"},
		{"groups", commands.NewGroupsCommand, "groups", "group"},
		{"organizations", commands.NewOrganizationsCommand, "organizations", "orgs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := tt.command()
			assert.Equal(t, tt.use, cmd.Use)
			assert.Contains(t, cmd.Aliases, tt.alias)
			assert.NotEmpty(t, cmd.Short)

			list := findSubcommand(cmd, "list")
			require.NotNil(t, list)
			assert.NotNil(t, list.RunE)

			for _, flag := range []string{"href", "where", "filter", "order-by", "expand", "limit", "offset", "page-size", "count"} {
				assert.NotNil(t, list.Flags().Lookup(flag), flag)
			}

			get := findSubcommand(cmd, "get")
			require.NotNil(t, get)
			assert.Equal(t, "get HREF", get.Use)
			require.Error(t, get.Args(get, nil))
		})
	}
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewConfigCommand()
	assert.Equal(t, "config", cmd.Use)
	assert.Equal(t, "Manage CLI configuration", cmd.Short)

	for _, name := range []string{"show", "set", "unset"} {
		assert.NotNil(t, findSubcommand(cmd, name), name)
	}

	set := findSubcommand(cmd, "set")
	require.Error(t, set.Args(set, []string{"base_url"}))
	require.NoError(t, set.Args(set, []string{"base_url", "https://api.example.com/v1"}))
}

func TestLoginCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewLoginCommand()
	assert.Equal(t, "login", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Flags().Lookup("id"))
	assert.NotNil(t, cmd.Flags().Lookup("secret"))
}

func TestCustomDataCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewCustomDataCommand()
	assert.Equal(t, "custom-data", cmd.Use)

	get := findSubcommand(cmd, "get")
	require.NotNil(t, get)
	assert.Equal(t, "get PARENT_HREF", get.Use)

	deleteKey := findSubcommand(cmd, "delete-key")
	require.NotNil(t, deleteKey)
	require.Error(t, deleteKey.Args(deleteKey, []string{"accounts/1"}))
}

func TestTenantAndVersionCommands(t *testing.T) {
	t.Parallel()

	tenant := commands.NewTenantCommand()
	assert.Equal(t, "tenant", tenant.Use)
	assert.NotNil(t, tenant.RunE)

	version := commands.NewVersionCommand("1.0.0", "abc123", "2026-01-01")
	assert.Equal(t, "version", version.Use)
	assert.Equal(t, "Display version information", version.Short)
}
