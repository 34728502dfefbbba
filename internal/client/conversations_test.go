package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

func TestListConversations(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/conversations", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		assert.NotEmpty(t, r.Header.Get("X-Client-ID"))

		json.NewEncoder(w).Encode(types.ConversationList{
			Conversations: []types.ConversationSummary{
				{ID: "conv-1", Title: "Diabetes trials in phase 3"},
				{ID: "conv-2", Title: "Sponsors by enrollment"},
			},
			Total: 2,
		})
	}))

	list, err := c.ListConversations(context.Background(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, "conv-1", list.Conversations[0].ID)
}

func TestGetConversation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/conversations/conv-1", r.URL.Path)

		json.NewEncoder(w).Encode(types.ConversationDetail{
			ID:    "conv-1",
			Title: "Diabetes trials in phase 3",
			Messages: []types.Message{
				{ID: "m1", Role: types.RoleUser, Content: "how many phase 3 trials?"},
				{ID: "m2", Role: types.RoleAssistant, Content: "There are 42."},
			},
		})
	}))

	detail, err := c.GetConversation(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", detail.ID)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, types.RoleAssistant, detail.Messages[1].Role)
}

func TestGetJSON_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"detail":"temporarily unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(types.ConversationList{Total: 0})
	}))

	_, err := c.ListConversations(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"conversation not found"}`, http.StatusNotFound)
	}))

	_, err := c.GetConversation(context.Background(), "missing")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "conversation not found", apiErr.Detail)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses must not be retried")
}

func TestDeleteConversation(t *testing.T) {
	var deleted atomic.Bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/conversations/conv-1", r.URL.Path)
		deleted.Store(true)
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}))

	require.NoError(t, c.DeleteConversation(context.Background(), "conv-1"))
	assert.True(t, deleted.Load())
}

func TestDeleteConversation_NoRetryOnFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
	}))

	err := c.DeleteConversation(context.Background(), "conv-1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "mutating calls must not be retried")
}

func TestQuery_NonStreaming(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/query", r.URL.Path)

		var req types.QueryRequest
		require.NoError(t, decodeJSONBody(r, &req))
		assert.Equal(t, "how many trials?", req.Question)

		json.NewEncoder(w).Encode(types.QueryResult{
			Answer:         "There are 42 trials.",
			SQL:            "SELECT COUNT(*) FROM trials",
			ConversationID: "conv-9",
		})
	}))

	result, err := c.Query(context.Background(), "how many trials?", "")
	require.NoError(t, err)
	assert.Equal(t, "There are 42 trials.", result.Answer)
	assert.Equal(t, "conv-9", result.ConversationID)
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health lives outside the versioned API prefix.
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(types.Health{Status: "healthy", Version: "1.0.0"})
	}))

	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
}

func TestGetJSON_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		http.Error(w, `{"detail":"still down"}`, http.StatusServiceUnavailable)
	}))

	start := time.Now()
	_, err := c.ListConversations(ctx, 20, 0)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSecureDestination(t *testing.T) {
	cases := []struct {
		url    string
		secure bool
	}{
		{"https://api.example.com", true},
		{"http://api.example.com", false},
		{"http://localhost:8000", true},
		{"http://127.0.0.1:8000", true},
		{"http://[::1]:8000", true},
		{"http://10.0.0.1:8000", false},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.url)
		require.NoError(t, err)
		assert.Equal(t, tc.secure, secureDestination(u), tc.url)
	}
}

func TestNew_RejectsUnsupportedScheme(t *testing.T) {
	_, err := New("ftp://example.com", testIdentity())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}
