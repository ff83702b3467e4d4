package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/iam/internal/constants"
	"github.com/fivetwenty-io/iam/pkg/iamclient"
	"github.com/fivetwenty-io/iam/pkg/query"
	"github.com/fivetwenty-io/iam/pkg/resource"
	"github.com/spf13/cobra"
)

// collection describes one listable resource type.
type collection[T resource.Resource] struct {
	use      string
	aliases  []string
	segment  string
	kind     resource.Kind
	itemKind resource.Kind
	get      func(ctx context.Context, client *iamclient.Client, href string) (T, error)
}

// listOptions holds the query flags shared by every list command.
type listOptions struct {
	href     string
	where    []string
	filter   string
	orderBy  []string
	expand   []string
	limit    int64
	offset   int64
	pageSize int64
	count    bool
}

func (o *listOptions) bind(cmd *cobra.Command, segment string) {
	cmd.Flags().StringVar(&o.href, "href", "", fmt.Sprintf("collection href (default is the current tenant's %s)", segment))
	cmd.Flags().StringArrayVarP(&o.where, "where", "w", nil, "attribute filter as field=value, repeatable")
	cmd.Flags().StringVarP(&o.filter, "filter", "q", "", "full-text filter")
	cmd.Flags().StringSliceVar(&o.orderBy, "order-by", nil, "sort fields, prefix with - for descending")
	cmd.Flags().StringSliceVar(&o.expand, "expand", nil, "linked properties to expand")
	cmd.Flags().Int64VarP(&o.limit, "limit", "l", 0, "maximum number of items (0 for all)")
	cmd.Flags().Int64Var(&o.offset, "offset", 0, "number of items to skip")
	cmd.Flags().Int64Var(&o.pageSize, "page-size", constants.DefaultPageLimit, "items per request")
	cmd.Flags().BoolVar(&o.count, "count", false, "print only the number of matching items")
}

// applyListOptions copies the flag values onto q.
func applyListOptions[T resource.Resource](q *query.Query[T], o *listOptions) (*query.Query[T], error) {
	for _, clause := range o.where {
		field, value, err := parseWhere(clause)
		if err != nil {
			return nil, err
		}

		q = q.Where(field, value)
	}

	if o.filter != "" {
		q = q.Filter(o.filter)
	}

	for i, field := range o.orderBy {
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")

		switch {
		case i == 0 && descending:
			q = q.OrderByDescending(field)
		case i == 0:
			q = q.OrderBy(field)
		case descending:
			q = q.ThenByDescending(field)
		default:
			q = q.ThenBy(field)
		}
	}

	for _, field := range o.expand {
		q = q.Expand(field)
	}

	if o.offset > 0 {
		q = q.Skip(o.offset)
	}

	if o.limit > 0 {
		q = q.Take(o.limit)
	}

	pageSize := min(o.pageSize, constants.MaxPageLimit)
	if pageSize > 0 {
		q = q.PageSize(pageSize)
	}

	return q, nil
}

// parseWhere splits a "field=value" clause.
func parseWhere(clause string) (string, string, error) {
	field, value, ok := strings.Cut(clause, "=")

	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", "", fmt.Errorf("%w: %q", constants.ErrInvalidWhereClause, clause)
	}

	return field, strings.TrimSpace(value), nil
}

func newCollectionCommand[T resource.Resource](c collection[T], short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     c.use,
		Aliases: c.aliases,
		Short:   short,
		Long:    fmt.Sprintf("List and inspect %s", c.segment),
	}

	cmd.AddCommand(newListCommand(c))
	cmd.AddCommand(newGetCommand(c))

	return cmd
}

func newListCommand[T resource.Resource](c collection[T]) *cobra.Command {
	options := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + c.segment,
		Long:  fmt.Sprintf("List %s of a collection, paging through the whole result", c.segment),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			ctx := cmd.Context()

			href, err := collectionHref(ctx, client, options.href, c.segment)
			if err != nil {
				return err
			}

			q, err := applyListOptions(iamclient.Query[T](client, c.kind, href), options)
			if err != nil {
				return err
			}

			if options.count {
				total, err := q.Count(ctx)
				if err != nil {
					return fmt.Errorf("counting %s: %w", c.segment, err)
				}

				_, _ = fmt.Fprintln(cmd.OutOrStdout(), total)

				return nil
			}

			items, err := q.ToSlice(ctx)
			if err != nil {
				return fmt.Errorf("listing %s: %w", c.segment, err)
			}

			return renderResources(cmd, c.itemKind, items)
		},
	}

	options.bind(cmd, c.segment)

	return cmd
}

func newGetCommand[T resource.Resource](c collection[T]) *cobra.Command {
	return &cobra.Command{
		Use:   "get HREF",
		Short: fmt.Sprintf("Show one %s", c.itemKind),
		Long:  fmt.Sprintf("Show one %s by href or by path relative to the API root", c.itemKind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := CreateClient(cmd)
			if err != nil {
				return err
			}

			defer func() { _ = client.Close() }()

			res, err := c.get(cmd.Context(), client, args[0])
			if err != nil {
				return fmt.Errorf("getting %s: %w", c.itemKind, err)
			}

			return renderResource(cmd, res)
		},
	}
}

// collectionHref returns explicit, or the named collection of the current tenant.
func collectionHref(ctx context.Context, client *iamclient.Client, explicit, segment string) (string, error) {
	if explicit != "" {
		return client.Href(explicit), nil
	}

	tenant, err := client.CurrentTenant(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving current tenant: %w", err)
	}

	if href := tenant.Data().LinkHref(segment); href != "" {
		return href, nil
	}

	return tenant.Href() + "/" + segment, nil
}

// NewAccountsCommand creates the accounts command group.
func NewAccountsCommand() *cobra.Command {
	return newCollectionCommand(collection[*resource.Account]{
		use:      "accounts",
		aliases:  []string{"account"},
		segment:  "accounts",
		kind:     resource.KindAccountCollection,
		itemKind: resource.KindAccount,
		get: func(ctx context.Context, client *iamclient.Client, href string) (*resource.Account, error) {
			return client.GetAccount(ctx, href)
		},
	}, "Manage accounts")
}

// NewApplicationsCommand creates the applications command group.
func NewApplicationsCommand() *cobra.Command {
	return newCollectionCommand(collection[*resource.Application]{
		use:      "applications",
		aliases:  []string{"apps", "application"},
		segment:  "applications",
		kind:     resource.KindApplicationCollection,
		itemKind: resource.KindApplication,
		get: func(ctx context.Context, client *iamclient.Client, href string) (*resource.Application, error) {
			return client.GetApplication(ctx, href)
		},
	}, "Manage applications")
}

// NewDirectoriesCommand creates the directories command group.
func NewDirectoriesCommand() *cobra.Command {
	return newCollectionCommand(collection[*resource.Directory]{
		use:      "directories",
		aliases:  []string{"dirs", "directory"},
		segment:  "directories",
		kind:     resource.KindDirectoryCollection,
		itemKind: resource.KindDirectory,
		get: func(ctx context.Context, client *iamclient.Client, href string) (*resource.Directory, error) {
			return client.GetDirectory(ctx, href)
		},
	}, "Manage directories")
}

// NewGroupsCommand creates the groups command group.
func NewGroupsCommand() *cobra.Command {
	return newCollectionCommand(collection[*resource.Group]{
		use:      "groups",
		aliases:  []string{"group"},
		segment:  "groups",
		kind:     resource.KindGroupCollection,
		itemKind: resource.KindGroup,
		get: func(ctx context.Context, client *iamclient.Client, href string) (*resource.Group, error) {
			return client.GetGroup(ctx, href)
		},
	}, "Manage groups")
}

// NewOrganizationsCommand creates the organizations command group.
func NewOrganizationsCommand() *cobra.Command {
	return newCollectionCommand(collection[*resource.Organization]{
		use:      "organizations",
		aliases:  []string{"orgs", "organization"},
		segment:  "organizations",
		kind:     resource.KindOrganizationCollection,
		itemKind: resource.KindOrganization,
		get: func(ctx context.Context, client *iamclient.Client, href string) (*resource.Organization, error) {
			return client.GetOrganization(ctx, href)
		},
	}, "Manage organizations")
}
