package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/config"
	"github.com/noxloop/digiforge/internal/llm"
)

func newTestClient(baseURL string) llm.Client {
	return llm.NewClient(llm.Params{
		Config: config.Config{
			LLM: config.LLMConfig{
				BaseURL:        baseURL,
				APIKey:         "sk-test",
				Model:          "test-model",
				TimeoutSeconds: 5,
			},
		},
		Log: zap.NewNop(),
	})
}

func TestGenerateSendsChatRequest(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	var authHeader string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":"{\"headline\":\"Launch\"}"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	out, err := c.Generate(context.Background(), "write copy", "you are a marketer", 800)
	require.NoError(t, err)
	assert.Equal(t, `{"headline":"Launch"}`, out)

	assert.Equal(t, "Bearer sk-test", authHeader)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 800, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "write copy", captured.Messages[1].Content)
}

func TestGenerateSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "prompt", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
	assert.Contains(t, err.Error(), "429")
}

func TestGenerateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"test-model","choices":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Generate(context.Background(), "prompt", "", 0)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGenerateRequiresConfiguration(t *testing.T) {
	c := llm.NewClient(llm.Params{
		Config: config.Config{LLM: config.LLMConfig{BaseURL: "http://localhost:8700"}},
		Log:    zap.NewNop(),
	})

	_, err := c.Generate(context.Background(), "prompt", "", 0)
	assert.ErrorIs(t, err, llm.ErrNotConfigured)
	assert.False(t, c.Available(context.Background()))
}

func TestAvailableProbesModels(t *testing.T) {
	var probed string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = r.URL.Path
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	assert.True(t, c.Available(context.Background()))
	assert.Equal(t, "/models", probed)

	status := c.Status(context.Background())
	assert.Equal(t, "test-model", status.Model)
	assert.True(t, status.Available)
}

func TestAvailableFalseOnUpstreamfailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	assert.False(t, c.Available(context.Background()))
}
