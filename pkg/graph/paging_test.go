package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

func newPagingServer(t *testing.T) *httptest.Server {
	t.Helper()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprintf(w, `{
				"value": [{"id":"1","displayName":"One"},{"id":"2","displayName":"Two"}],
				"@odata.nextLink": %q
			}`, server.URL+"/users?page=2")
		case "2":
			fmt.Fprintf(w, `{
				"value": [{"id":"3","displayName":"Three"}],
				"@odata.nextLink": %q
			}`, server.URL+"/users?page=3")
		case "3":
			fmt.Fprint(w, `{"value": [{"id":"4","displayName":"Four"}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	return server
}

func TestGetPage(t *testing.T) {
	server := newPagingServer(t)
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))

	page, err := GetPage[testUser](context.Background(), client, "/users", url.Values{"page": {"1"}})
	require.NoError(t, err)
	require.Len(t, page.Value, 2)
	assert.Equal(t, "One", page.Value[0].DisplayName)
	assert.True(t, page.HasNext())

	last, err := GetPage[testUser](context.Background(), client, "/users", url.Values{"page": {"3"}})
	require.NoError(t, err)
	assert.False(t, last.HasNext())
}

func TestListAllFollowsNextLinks(t *testing.T) {
	server := newPagingServer(t)
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))

	users, err := ListAll[testUser](context.Background(), client, "/users", nil)
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, "1", users[0].ID)
	assert.Equal(t, "4", users[3].ID)
}

func TestListAllStopsOnCancelledContext(t *testing.T) {
	server := newPagingServer(t)
	defer server.Close()

	client := NewClient(StaticTokenSource("t"), WithBaseURL(server.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ListAll[testUser](ctx, client, "/users", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
