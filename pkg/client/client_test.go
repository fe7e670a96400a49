package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)
		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Equal(t, "user@fleet.example", creds["email"])
		_ = json.NewEncoder(w).Encode(LoginResult{Token: "issued-token", Actor: Identity{ID: "user-1", Role: "user"}})
	}))
	defer server.Close()

	c := New(server.URL)
	result, err := c.Login(context.Background(), "user@fleet.example", "password")
	require.NoError(t, err)
	assert.Equal(t, "issued-token", result.Token)
	assert.Equal(t, "issued-token", c.Token)
}

func TestRequestsCarryBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer issued-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(dataEnvelope[[]Request]{Success: true, Data: []Request{{ID: 1, Status: "PENDING"}}})
	}))
	defer server.Close()

	c := New(server.URL)
	c.Token = "issued-token"
	requests, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, int64(1), requests[0].ID)
}

func TestTransitionSendsStatusAndNote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/requests/7", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SUPERVISOR_APPROVED", body["status"])
		assert.Equal(t, "looks fine", body["note"])
		_ = json.NewEncoder(w).Encode(dataEnvelope[Request]{Success: true, Data: Request{ID: 7, Status: "SUPERVISOR_APPROVED"}})
	}))
	defer server.Close()

	c := New(server.URL)
	updated, err := c.Transition(context.Background(), 7, "SUPERVISOR_APPROVED", "looks fine")
	require.NoError(t, err)
	assert.Equal(t, "SUPERVISOR_APPROVED", updated.Status)
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_TRANSITION"}}`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Transition(context.Background(), 1, "ORDER_PLACED", "nope")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "INVALID_TRANSITION")
}

func TestListDeletedEncodesFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/requests/deleted", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "officer-1", q.Get("deletedBy"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "deletedAt", q.Get("sortBy"))
		_ = json.NewEncoder(w).Encode(DeletedPage{Success: true, Pagination: Pagination{Page: 2, Total: 12}})
	}))
	defer server.Close()

	c := New(server.URL)
	page, err := c.ListDeleted(context.Background(), DeletedFilter{DeletedBy: "officer-1", Page: 2, Limit: 5, SortBy: "deletedAt"})
	require.NoError(t, err)
	assert.Equal(t, 12, page.Pagination.Total)
}
