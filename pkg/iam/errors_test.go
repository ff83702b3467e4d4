package iam_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fivetwenty-io/iam/pkg/iam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *iam.APIError
		want string
	}{
		{
			name: "developer message wins",
			err:  &iam.APIError{Status: 400, Code: 2000, Message: "Bad", DeveloperMessage: "Property email is required"},
			want: "HTTP 400, code 2000: Property email is required",
		},
		{
			name: "message",
			err:  &iam.APIError{Status: 404, Code: 404, Message: "The requested resource does not exist."},
			want: "HTTP 404, code 404: The requested resource does not exist.",
		},
		{
			name: "status text fallback",
			err:  &iam.APIError{Status: 503},
			want: "HTTP 503, code 0: Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestParseAPIError(t *testing.T) {
	t.Parallel()

	apiErr := iam.ParseAPIError(409, []byte(`{"status":409,"code":2001,"message":"Conflict","requestId":"r1"}`))
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, 2001, apiErr.Code)
	assert.Equal(t, "r1", apiErr.RequestID)

	apiErr = iam.ParseAPIError(502, []byte("<html>bad gateway</html>"))
	assert.Equal(t, 502, apiErr.Status)
	assert.Equal(t, "<html>bad gateway</html>", apiErr.Message)

	apiErr = iam.ParseAPIError(500, nil)
	assert.Equal(t, 500, apiErr.Status)
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	wrap := func(status int) error {
		return fmt.Errorf("getting account: %w", &iam.APIError{Status: status})
	}

	assert.True(t, iam.IsNotFound(wrap(404)))
	assert.False(t, iam.IsNotFound(wrap(401)))
	assert.True(t, iam.IsUnauthorized(wrap(401)))
	assert.True(t, iam.IsForbidden(wrap(403)))
	assert.True(t, iam.IsRateLimited(wrap(429)))
	assert.True(t, iam.IsRateLimited(fmt.Errorf("%w: %w", iam.ErrRateLimited, context.Canceled)))
	assert.False(t, iam.IsNotFound(errors.New("plain")))
	assert.False(t, iam.IsNotFound(nil))
}

func TestErrorConstants(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		iam.ErrConfigRequired,
		iam.ErrBaseURLRequired,
		iam.ErrInvalidBaseURL,
		iam.ErrAPIKeyRequired,
		iam.ErrNATSConfigRequired,
		iam.ErrRedisConfigRequired,
		iam.ErrUnsupportedCache,
		iam.ErrNoMoreItems,
		iam.ErrRateLimited,
	} {
		require.Error(t, err)
		assert.NotEmpty(t, err.Error())
	}
}
