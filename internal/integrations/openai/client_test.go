package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"design-coach/internal/domain"
)

// ---------------------------------------------------------------------------
// URL helpers
// ---------------------------------------------------------------------------

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestAzureChatURL(t *testing.T) {
	got := azureChatURL("https://coach.openai.azure.com/", "gpt-4.1-mini", "2025-01-01-preview")
	require.Equal(t, "https://coach.openai.azure.com/openai/deployments/gpt-4.1-mini/chat/completions?api-version=2025-01-01-preview", got)
}

// ---------------------------------------------------------------------------
// NewClient
// ---------------------------------------------------------------------------

func TestNewClient_NilKeySource(t *testing.T) {
	_, err := NewClient(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestNewClient_Valid(t *testing.T) {
	c, err := NewClient(StaticKey("sk"))
	require.NoError(t, err)
	require.Equal(t, "https://api.openai.com/v1", c.baseURL)
	require.False(t, c.azure)
}

func TestNewClient_AzureRequiresEndpointAndVersion(t *testing.T) {
	_, err := NewClient(StaticKey("sk"), WithAzure("", "2025-01-01-preview"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "endpoint")

	_, err = NewClient(StaticKey("sk"), WithAzure("https://x.openai.azure.com", ""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api version")
}

func TestStaticKey_Empty(t *testing.T) {
	_, err := StaticKey(" ").APIKey(context.Background())
	require.Error(t, err)
}

// ---------------------------------------------------------------------------
// Client.Complete
// ---------------------------------------------------------------------------

type fakeKeys struct {
	key   string
	err   error
	calls int
}

func (f *fakeKeys) APIKey(context.Context) (string, error) {
	f.calls++
	return f.key, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	}, opts...)
	c, err := NewClient(StaticKey("sk-test"), opts...)
	require.NoError(t, err)
	return c
}

var testParams = Params{Temperature: 0.3, MaxTokens: 1000, TopP: 0.95}

const okBody = `{
	"id": "chatcmpl-123",
	"object": "chat.completion",
	"created": 1670000000,
	"choices": [{
		"index": 0,
		"message": { "role": "assistant", "content": "Hello from mock" }
	}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func TestClient_Complete_OpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Empty(t, r.Header.Get("api-key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req map[string]any
		require.NoError(t, json.Unmarshal(raw, &req))
		require.Equal(t, "gpt-mock", req["model"])
		require.Equal(t, 0.3, req["temperature"])
		require.Equal(t, float64(1000), req["max_tokens"])
		require.Equal(t, 0.95, req["top_p"])
		require.Equal(t, float64(0), req["presence_penalty"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	out, err := c.Complete(context.Background(), "gpt-mock", []domain.ChatMessage{{Role: "user", Content: "hi"}}, testParams)
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", out.Text)
	require.Equal(t, domain.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16}, out.Usage)
}

func TestClient_Complete_Azure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/openai/deployments/coach-deploy/chat/completions", r.URL.Path)
		require.Equal(t, "2025-01-01-preview", r.URL.Query().Get("api-version"))
		require.Equal(t, "sk-test", r.Header.Get("api-key"))
		require.Empty(t, r.Header.Get("Authorization"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NotContains(t, string(raw), `"model"`)

		w.WriteHeader(200)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithAzure(srv.URL, "2025-01-01-preview"))
	out, err := c.Complete(context.Background(), "coach-deploy", nil, testParams)
	require.NoError(t, err)
	require.Equal(t, "Hello from mock", out.Text)
}

func TestClient_Complete_MissingUsageIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Complete(context.Background(), "gpt-mock", nil, testParams)
	require.NoError(t, err)
	require.Zero(t, out.Usage)
}

func TestClient_Complete_KeyError(t *testing.T) {
	keys := &fakeKeys{err: errors.New("ssm unavailable")}
	c, err := NewClient(keys)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "gpt-mock", nil, testParams)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")
	require.Equal(t, 1, keys.calls)
}

func TestClient_Complete_Non200(t *testing.T) {
	for _, status := range []int{400, 401, 429, 500} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
		}))

		_, err := newTestClient(t, srv).Complete(context.Background(), "gpt-mock", nil, testParams)
		srv.Close()

		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected status")
		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		require.Equal(t, status, statusErr.HTTPStatusCode())
	}
}

func TestClient_Complete_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`not-a-json`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), "gpt-mock", nil, testParams)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Contains(t, err.Error(), "decode response")
}

func TestClient_Complete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Complete(context.Background(), "gpt-mock", nil, testParams)
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Contains(t, err.Error(), "no choices")
}

func TestClient_Complete_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.Complete(context.Background(), "gpt-mock", nil, testParams)
	require.Error(t, err)
}

func TestClient_Complete_NetworkError(t *testing.T) {
	c, err := NewClient(StaticKey("sk-test"), WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "gpt-mock", nil, testParams)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed")
}

func TestClient_Complete_EmptyModel(t *testing.T) {
	c, err := NewClient(StaticKey("sk-test"))
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), " ", nil, testParams)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model")
}
