package query

import (
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Query string parameter names.
const (
	ParamFilter  = "q"
	ParamOrderBy = "orderBy"
	ParamExpand  = "expand"
	ParamOffset  = "offset"
	ParamLimit   = "limit"
)

// Order is one ordering clause.
type Order struct {
	Field      string
	Descending bool
}

func (o Order) String() string {
	if o.Descending {
		return o.Field + " desc"
	}

	return o.Field
}

// Expansion asks the server to embed a linked resource. Collections can be
// expanded with a window.
type Expansion struct {
	Field  string
	Offset int64
	Limit  int64
	Paged  bool
}

func (e Expansion) String() string {
	if !e.Paged {
		return e.Field
	}

	var window []string

	if e.Offset > 0 {
		window = append(window, "offset:"+strconv.FormatInt(e.Offset, 10))
	}

	if e.Limit > 0 {
		window = append(window, "limit:"+strconv.FormatInt(e.Limit, 10))
	}

	if len(window) == 0 {
		return e.Field
	}

	return e.Field + "(" + strings.Join(window, ",") + ")"
}

// RequestModel is a resolved collection request.
type RequestModel struct {
	// Filter is a free-text search across all attributes.
	Filter string
	// Attributes are per-attribute matches; values may use * wildcards.
	Attributes map[string]string
	OrderBy    []Order
	Expand     []Expansion
	Offset     int64
	Limit      int64
}

// Values renders the model as query parameters. Zero fields are omitted.
func (m *RequestModel) Values() url.Values {
	values := url.Values{}

	if m.Filter != "" {
		values.Set(ParamFilter, m.Filter)
	}

	for name, value := range m.Attributes {
		values.Set(name, value)
	}

	if len(m.OrderBy) > 0 {
		clauses := make([]string, 0, len(m.OrderBy))
		for _, order := range m.OrderBy {
			clauses = append(clauses, order.String())
		}

		values.Set(ParamOrderBy, strings.Join(clauses, ","))
	}

	if len(m.Expand) > 0 {
		expansions := make([]string, 0, len(m.Expand))
		for _, expansion := range m.Expand {
			expansions = append(expansions, expansion.String())
		}

		values.Set(ParamExpand, strings.Join(expansions, ","))
	}

	if m.Offset > 0 {
		values.Set(ParamOffset, strconv.FormatInt(m.Offset, 10))
	}

	if m.Limit > 0 {
		values.Set(ParamLimit, strconv.FormatInt(m.Limit, 10))
	}

	return values
}

func (m *RequestModel) clone() RequestModel {
	clone := *m
	clone.Attributes = maps.Clone(m.Attributes)
	clone.OrderBy = slices.Clone(m.OrderBy)
	clone.Expand = slices.Clone(m.Expand)

	return clone
}
