package analyzer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservation-backend/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalyzerConfig{
		Enabled:        true,
		URL:            url,
		Model:          "analyze",
		TimeoutSeconds: 5,
	})
}

func TestClient_Analyze(t *testing.T) {
	var received chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model:   "analyze",
			Message: chatMessage{Role: "assistant", Content: `{"name":"Ada","time_slot":"13:00","party_size":4}`},
			Done:    true,
		})
	}))
	defer server.Close()

	out, err := newTestClient(server.URL+"/").Analyze(context.Background(), "Table for four at one, name Ada")
	require.NoError(t, err)

	assert.Equal(t, "analyze", received.Model)
	assert.False(t, received.Stream)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "user", received.Messages[0].Role)
	assert.Equal(t, "Table for four at one, name Ada", received.Messages[0].Content)

	assert.Equal(t, map[string]any{"name": "Ada", "time_slot": "13:00", "party_size": float64(4)}, out)
}

func TestClient_AnalyzeWrapsPlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "I could not find a time."}})
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Analyze(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"response": "I could not find a time."}, out)
}

// Whether the analyzer runs at all is decided where the client is built.
func TestClient_IgnoresEnabledFlag(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: `{}`}})
	}))
	defer server.Close()

	c := NewClient(config.AnalyzerConfig{URL: server.URL, Model: "analyze", TimeoutSeconds: 5})
	_, err := c.Analyze(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, called)
}

func TestClient_AnalyzeFailures(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
		},
		{
			name: "malformed envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("not json"))
			},
		},
		{
			name: "error field set",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(chatResponse{Error: "model 'analyze' not found"})
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			_, err := newTestClient(server.URL).Analyze(context.Background(), "hello")
			assert.Error(t, err)
		})
	}
}

func TestReshape(t *testing.T) {
	assert.Equal(t, []any{"13:00", "13:30"}, Reshape(`["13:00","13:30"]`))
	assert.Equal(t, map[string]any{"response": "plain"}, Reshape("plain"))
	assert.Equal(t, map[string]any{"response": ""}, Reshape(""))
}
