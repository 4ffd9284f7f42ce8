package inference

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-analyzer/internal/domain/fault"
)

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"model": "gpt-4o-mini-2024-07-18",
		"choices": []any{map[string]any{
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(body)
}

func newOpenAITestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := testOptions()
	opts.BaseURL = srv.URL + "/v1/"
	client, err := NewOpenAIClient(opts)
	require.NoError(t, err)
	return client
}

func TestOpenAIClient_Request(t *testing.T) {
	var got chatRequest
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = io.WriteString(w, completion("```json\n{\"summary\": \"ok\"}\n```"))
	})

	raw, err := client.Invoke(context.Background(), "analyze")
	require.NoError(t, err)
	require.JSONEq(t, `{"summary":"ok"}`, string(raw.Content))
	require.Equal(t, "gpt-4o-mini-2024-07-18", raw.Model)

	require.Equal(t, "gemini-2.5-flash", got.Model)
	require.Equal(t, []chatMessage{{Role: "user", Content: "analyze"}}, got.Messages)
	require.Equal(t, 8192, got.MaxTokens)
	require.InDelta(t, 0.2, got.Temperature, 1e-9)
	require.Equal(t, "json_schema", got.ResponseFormat.Type)
	require.True(t, got.ResponseFormat.JSONSchema.Strict)
	require.Equal(t, map[string]any{"type": "object"}, got.ResponseFormat.JSONSchema.Schema)
}

func TestOpenAIClient_Failures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "server error", status: http.StatusServiceUnavailable, body: `{"error":{"message":"overloaded"}}`, want: fault.ErrTransport},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, want: fault.ErrTransport},
		{name: "api error body", status: http.StatusOK, body: `{"error":{"message":"bad"}}`, want: fault.ErrTransport},
		{name: "garbage envelope", status: http.StatusOK, body: `<html>`, want: fault.ErrTransport},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, want: fault.ErrEmptyResponse},
		{name: "empty content", status: http.StatusOK, body: completion(""), want: fault.ErrEmptyResponse},
		{name: "malformed content", status: http.StatusOK, body: completion("{not json"), want: fault.ErrMalformedJSON},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := client.Invoke(context.Background(), "p")
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOpenAIClient_RespectsDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newOpenAITestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Invoke(ctx, "p")
	require.ErrorIs(t, err, fault.ErrTransport)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
