package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	entries map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}}
}

func (s *memStore) Close() error { return nil }

func (s *memStore) Get(key string) ([]byte, bool, error) {
	body, ok := s.entries[key]
	return body, ok, nil
}

func (s *memStore) Set(key string, body []byte) error {
	s.entries[key] = body
	return nil
}

func TestClientGetSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"abc"}`))
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("test-token"), WithBaseURL(server.URL))

	body, err := client.Get(context.Background(), "/me", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.JSONEq(t, `{"id":"abc"}`, string(body))
}

func TestClientGetReplaysFromCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value":"fresh"}`))
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("t"),
		WithBaseURL(server.URL),
		WithCache(newMemStore()),
	)

	ctx := context.Background()
	first, err := client.Get(ctx, "/users", nil)
	require.NoError(t, err)
	second, err := client.Get(ctx, "/users", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "second read should not hit the network")

	// A different query string is a different cache entry.
	_, err = client.Get(ctx, "/users", url.Values{"$top": {"5"}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientGetMapsErrorResponses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"Request_ResourceNotFound","message":"missing"}}`))
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))

	_, err := client.Get(context.Background(), "/users/nobody", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Request_ResourceNotFound", apiErr.Code)
}

func TestClientDoesNotCacheErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":{"code":"Authorization_RequestDenied","message":"no"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("t"),
		WithBaseURL(server.URL),
		WithCache(newMemStore()),
	)

	ctx := context.Background()
	_, err := client.Get(ctx, "/users", nil)
	require.Error(t, err)

	body, err := client.Get(ctx, "/users", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestClientPostAndPatch(t *testing.T) {
	type echo struct {
		Method string          `json:"method"`
		Body   json.RawMessage `json:"body"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(echo{Method: r.Method, Body: body})
		case http.MethodPatch:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))
	ctx := context.Background()

	var out echo
	err := client.Post(ctx, "/users", map[string]string{"displayName": "Test"}, &out)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, out.Method)
	assert.JSONEq(t, `{"displayName":"Test"}`, string(out.Body))

	require.NoError(t, client.Patch(ctx, "/users/abc", map[string]string{"city": "Oslo"}))
	require.NoError(t, client.Delete(ctx, "/users/abc"))
}

func TestRequestURL(t *testing.T) {
	client := NewClient(StaticTokenSource("t"), WithBaseURL("https://example.test/v1.0/"))

	tests := []struct {
		name     string
		path     string
		query    url.Values
		expected string
	}{
		{
			name:     "relative path",
			path:     "/users",
			expected: "https://example.test/v1.0/users",
		},
		{
			name:     "relative path without leading slash",
			path:     "me",
			expected: "https://example.test/v1.0/me",
		},
		{
			name:     "query appended",
			path:     "/users",
			query:    url.Values{"$top": {"999"}},
			expected: "https://example.test/v1.0/users?%24top=999",
		},
		{
			name:     "absolute next link passes through",
			path:     "https://graph.microsoft.com/v1.0/users?$skiptoken=x",
			expected: "https://graph.microsoft.com/v1.0/users?$skiptoken=x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, client.requestURL(tt.path, tt.query))
		})
	}
}

func TestCacheKeyIsStable(t *testing.T) {
	a := cacheKey(http.MethodGet, "https://example.test/users")
	b := cacheKey(http.MethodGet, "https://example.test/users")
	c := cacheKey(http.MethodGet, "https://example.test/users?$top=5")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}

func TestRetryAfterSeconds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", r.URL.Query().Get("v"))
	}))
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))

	for _, tt := range []struct {
		value    string
		expected int
	}{
		{value: "30", expected: 30},
		{value: "", expected: 0},
		{value: "soon", expected: 0},
	} {
		resp, err := client.do(context.Background(), http.MethodGet, server.URL+"/?v="+url.QueryEscape(tt.value), nil)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, retryAfterSeconds(resp), "Retry-After %q", tt.value)
	}
}
