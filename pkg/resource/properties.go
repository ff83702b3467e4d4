package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// Well-known property names.
const (
	HrefProperty       = "href"
	PasswordProperty   = "password"
	CustomDataProperty = "customData"
	ItemsProperty      = "items"
	OffsetProperty     = "offset"
	LimitProperty      = "limit"
	SizeProperty       = "size"
)

// Static errors for err113 compliance.
var (
	ErrKindRequired       = errors.New("resource kind is required")
	ErrUnknownKind        = errors.New("unknown resource kind")
	ErrUnresolvableKind   = errors.New("cannot resolve concrete resource kind")
	ErrNotInstantiable    = errors.New("resource kind cannot be instantiated")
	ErrInvalidPagingField = errors.New("invalid paging field")
	ErrMissingHref        = errors.New("collection href is missing")
	ErrMissingItems       = errors.New("collection items are missing")
	ErrInvalidItem        = errors.New("collection item is not an object")
	ErrNoStore            = errors.New("resource is not attached to a store")
)

// ValueClass tells how a body attribute participates in cache decomposition.
type ValueClass int

const (
	// Scalar is anything that is not a resource reference.
	Scalar ValueClass = iota
	// Link is an href-only reference.
	Link
	// Expanded is a fully embedded resource body.
	Expanded
	// NestedArray is a list holding at least one resource-shaped object.
	NestedArray
)

// AsMap returns v as a body when it is a JSON object.
func AsMap(v any) (iam.Map, bool) {
	m, ok := v.(map[string]any)

	return m, ok
}

// IsResource reports whether body looks like a full resource: an href plus
// at least one other attribute.
func IsResource(body iam.Map) bool {
	if body == nil {
		return false
	}

	_, ok := body[HrefProperty]

	return ok && len(body) > 1
}

// IsLink reports whether body is an href-only reference.
func IsLink(body iam.Map) bool {
	_, ok := body[HrefProperty]

	return ok && len(body) == 1
}

// LinkTo returns the canonical reference for href.
func LinkTo(href string) iam.Map {
	return iam.Map{HrefProperty: href}
}

// HrefOf returns the href attribute of body.
func HrefOf(body iam.Map) string {
	href, _ := body[HrefProperty].(string)

	return href
}

// Classify inspects one attribute value.
func Classify(v any) ValueClass {
	switch value := v.(type) {
	case map[string]any:
		if IsResource(value) {
			return Expanded
		}

		if IsLink(value) {
			return Link
		}
	case []any:
		for _, element := range value {
			if body, ok := AsMap(element); ok && IsResource(body) {
				return NestedArray
			}
		}
	}

	return Scalar
}

// ToInt64 converts a decoded JSON number.
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%w: %v is not an integer", ErrInvalidPagingField, n)
		}

		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrInvalidPagingField, v)
	}
}
