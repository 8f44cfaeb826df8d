package monday

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, time.Second)
}

func TestRoles_SingleBulkCall(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "tenant-token", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("API-Version"))

		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.ElementsMatch(t, []any{"1", "2", "3"}, req.Variables["users"])
		assert.Equal(t, []any{"900"}, req.Variables["boards"])

		_, _ = w.Write([]byte(`{"data":{
			"users":[{"id":"1","is_admin":true},{"id":"2","is_admin":false},{"id":"3","is_admin":false}],
			"boards":[{"owners":[{"id":"2"},{"id":"99"}]}]}}`))
	})

	got, err := c.Roles(context.Background(), "tenant-token", "900", []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, RoleFacts{IsAdmin: true}, got["1"])
	assert.Equal(t, RoleFacts{IsOwner: true}, got["2"])
	assert.Equal(t, RoleFacts{}, got["3"])
	assert.NotContains(t, got, "99")
	assert.True(t, got["1"].Privileged())
	assert.False(t, got["3"].Privileged())
}

func TestRoles_NoUsersSkipsCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected call")
	})
	got, err := c.Roles(context.Background(), "tok", "900", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRoles_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"server error", http.StatusBadGateway, `{}`, "status 502"},
		{"graphql errors", http.StatusOK, `{"errors":[{"message":"Not Authenticated"}]}`, "Not Authenticated"},
		{"error message", http.StatusOK, `{"error_message":"rate limited"}`, "rate limited"},
		{"invalid json", http.StatusOK, `{nope`, "invalid json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Roles(context.Background(), "tok", "900", []string{"1"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPlatform)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"me":{"id":"7","account":{"id":42}}}}`))
	})
	acc, user, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "42", acc)
	assert.Equal(t, "7", user)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"me":null}}`))
	})
	_, _, err = c.Me(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrPlatform)
}
