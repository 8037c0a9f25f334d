// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPError(t *testing.T) {
	t.Parallel()

	err := NewHTTPError(404, "https://example.com/.well-known/openid-configuration", "not found")

	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, "https://example.com/.well-known/openid-configuration", httpErr.URL)
	assert.Equal(t, "not found", httpErr.Body)
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()

	err := &HTTPError{StatusCode: 401, Body: "client secret is wrong", URL: "https://example.com/token"}

	assert.Equal(t, "HTTP request to https://example.com/token failed with status 401", err.Error())
	assert.NotContains(t, err.Error(), "secret")
}

func TestIsHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   bool
	}{
		{"matching HTTPError", &HTTPError{StatusCode: 404}, 404, true},
		{"non-matching status code", &HTTPError{StatusCode: 404}, 500, false},
		{"any HTTPError with statusCode 0", &HTTPError{StatusCode: 403}, 0, true},
		{"wrapped HTTPError", fmt.Errorf("discover: %w", &HTTPError{StatusCode: 502}), 502, true},
		{"non-HTTPError", errors.New("some other error"), 0, false},
		{"nil error", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, IsHTTPError(tt.err, tt.statusCode))
		})
	}
}
