// Package datastore routes resource requests through the cache filters to
// the transport and materializes the results.
package datastore

import (
	"context"
	"net/url"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/fivetwenty-io/iam/pkg/resource"
)

// Action is what a request does to its target.
type Action int

// Request actions.
const (
	ActionCreate Action = iota + 1
	ActionRead
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionRead:
		return "read"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Request is one resource operation. URI is an absolute href.
type Request struct {
	Action Action
	Kind   resource.Kind
	// ResultKind is the kind of the response body when it differs from Kind.
	ResultKind resource.Kind
	URI        string
	Properties iam.Map
	Query      url.Values
}

func (r *Request) resultKind() resource.Kind {
	if r.ResultKind != "" {
		return r.ResultKind
	}

	return r.Kind
}

// Result is the decoded response. Body is nil for empty responses.
type Result struct {
	Body iam.Map
	Kind resource.Kind
}

// Handler performs one remote step.
type Handler func(ctx context.Context, req *Request) (*Result, error)

// Filter wraps a Handler. Implementations call next exactly once.
type Filter interface {
	Filter(ctx context.Context, req *Request, next Handler) (*Result, error)
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(ctx context.Context, req *Request, next Handler) (*Result, error)

// Filter implements Filter.
func (f FilterFunc) Filter(ctx context.Context, req *Request, next Handler) (*Result, error) {
	return f(ctx, req, next)
}

// Chain builds a handler running filters in order, outermost first, around
// terminal.
func Chain(terminal Handler, filters ...Filter) Handler {
	handler := terminal

	for i := len(filters) - 1; i >= 0; i-- {
		filter := filters[i]
		next := handler
		handler = func(ctx context.Context, req *Request) (*Result, error) {
			return filter.Filter(ctx, req, next)
		}
	}

	return handler
}
