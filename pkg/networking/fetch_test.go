// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testResponse is a sample response type for testing.
type testResponse struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func TestFetchJSON_SuccessfulGET(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Custom-Header", "test-value")
		_ = json.NewEncoder(w).Encode(testResponse{Message: "hello", Value: 42})
	}))
	defer server.Close()

	result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "hello", result.Data.Message)
	assert.Equal(t, 42, result.Data.Value)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "test-value", result.Headers.Get("X-Custom-Header"))
	assert.JSONEq(t, `{"message":"hello","value":42}`, string(result.Body))
}

func TestFetchJSON_Accepts2xx(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(testResponse{Message: "created"})
	}))
	defer server.Close()

	result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, "created", result.Data.Message)
}

func TestFetchJSONWithForm_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ContentTypeFormURLEncoded, r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "abc", r.PostForm.Get("code"))

		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		_ = json.NewEncoder(w).Encode(testResponse{Message: "token", Value: 3600})
	}))
	defer server.Close()

	form := url.Values{"grant_type": {"authorization_code"}, "code": {"abc"}}
	result, err := FetchJSONWithForm[testResponse](context.Background(), server.Client(), server.URL, form)
	require.NoError(t, err)
	assert.Equal(t, "token", result.Data.Message)
	assert.Equal(t, 3600, result.Data.Value)
}

func TestFetchJSON_HTTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"not found", http.StatusNotFound},
		{"internal server error", http.StatusInternalServerError},
		{"service unavailable", http.StatusServiceUnavailable},
		{"redirect not followed", http.StatusNotModified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte("sensitive error details"))
			}))
			defer server.Close()

			result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
			assert.Nil(t, result)
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.statusCode, httpErr.StatusCode)
			assert.Equal(t, server.URL, httpErr.URL)
			assert.True(t, IsHTTPError(err, tt.statusCode))
			assert.NotContains(t, err.Error(), "sensitive")
		})
	}
}

func TestFetchJSON_ErrorBodyPreviewIsTruncated(t *testing.T) {
	t.Parallel()

	largeBody := strings.Repeat("x", DefaultErrorPreviewSize*3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(largeBody))
	}))
	defer server.Close()

	_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Len(t, httpErr.Body, DefaultErrorPreviewSize)
}

func TestFetchJSON_ContentTypeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		valid       bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"APPLICATION/JSON", true},
		{"application/jwk-set+json", true},
		{"text/plain", false},
		{"text/html", false},
		{"application/xml", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("content type %q", tt.contentType), func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.contentType != "" {
					w.Header().Set("Content-Type", tt.contentType)
				} else {
					w.Header()["Content-Type"] = nil
				}
				_, _ = w.Write([]byte(`{"message":"ok"}`))
			}))
			defer server.Close()

			result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, "ok", result.Data.Message)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "unexpected content type")
		})
	}
}

func TestFetchJSON_WithoutContentTypeValidation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`{"message":"lenient"}`))
	}))
	defer server.Close()

	result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL,
		WithoutContentTypeValidation())
	require.NoError(t, err)
	assert.Equal(t, "lenient", result.Data.Message)
}

func TestFetchJSON_AuthHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opt      FetchOption
		validate func(t *testing.T, r *http.Request)
	}{
		{
			name: "bearer token",
			opt:  WithBearerToken("access-123"),
			validate: func(t *testing.T, r *http.Request) {
				t.Helper()
				assert.Equal(t, "Bearer access-123", r.Header.Get("Authorization"))
			},
		},
		{
			name: "basic auth escapes credentials",
			opt:  WithBasicAuth("client id", "s3cr3t&"),
			validate: func(t *testing.T, r *http.Request) {
				t.Helper()
				user, pass, ok := r.BasicAuth()
				require.True(t, ok)
				assert.Equal(t, "client+id", user)
				assert.Equal(t, "s3cr3t%26", pass)
			},
		},
		{
			name: "custom accept header",
			opt:  WithHeader("Accept", "application/vnd.github+json"),
			validate: func(t *testing.T, r *http.Request) {
				t.Helper()
				assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				tt.validate(t, r)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(testResponse{Message: "ok"})
			}))
			defer server.Close()

			_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL, tt.opt)
			require.NoError(t, err)
		})
	}
}

func TestFetchJSON_CustomErrorHandler(t *testing.T) {
	t.Parallel()

	type oauthError struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	t.Run("handler error is returned", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(oauthError{Error: "invalid_grant", ErrorDescription: "code expired"})
		}))
		defer server.Close()

		handler := func(resp *http.Response, body []byte) error {
			var oe oauthError
			if err := json.Unmarshal(body, &oe); err != nil {
				return nil
			}
			return fmt.Errorf("%d %s: %s", resp.StatusCode, oe.Error, oe.ErrorDescription)
		}

		_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL,
			WithErrorHandler(handler))
		require.Error(t, err)
		assert.Equal(t, "400 invalid_grant: code expired", err.Error())
		assert.False(t, IsHTTPError(err, 0))
	})

	t.Run("nil from handler falls back to HTTPError", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL,
			WithErrorHandler(func(_ *http.Response, _ []byte) error { return nil }))
		require.Error(t, err)
		assert.True(t, IsHTTPError(err, http.StatusInternalServerError))
	})
}

func TestFetchJSON_MaxResponseSize(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"` + strings.Repeat("a", 100) + `"}`))
	}))
	defer server.Close()

	_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL,
		WithMaxResponseSize(16))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")
}

func TestFetchJSON_ContextCancellation(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(testResponse{Message: "too late"})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := FetchJSON[testResponse](ctx, server.Client(), server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchJSON_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not valid json"))
	}))
	defer server.Close()

	_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse JSON")
}

func TestFetchJSON_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := FetchJSON[testResponse](context.Background(), &http.Client{}, "://invalid-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create request")
}

func TestFetchJSON_NetworkError(t *testing.T) {
	t.Parallel()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	_, err := FetchJSON[testResponse](context.Background(), client, "http://localhost:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}
