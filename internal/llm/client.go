// Package llm wraps the chat-completions provider behind a small interface so
// generation code never touches HTTP details and tests can swap in a stub.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/noxloop/digiforge/internal/config"
)

var (
	ErrNotConfigured = errors.New("llm_not_configured")
	ErrEmptyResponse = errors.New("llm_empty_response")
)

type Status struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Available bool   `json:"available"`
}

type Client interface {
	// Generate runs one prompt through the model and returns the raw text.
	Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error)
	// Available reports whether the provider can currently serve requests.
	// It never returns an error: an unreachable provider is just unavailable.
	Available(ctx context.Context) bool
	Status(ctx context.Context) Status
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type httpClient struct {
	baseURL string
	apiKey  string
	model   string
	log     *zap.Logger
	client  *http.Client
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

func NewClient(p Params) Client {
	timeout := time.Duration(p.Config.LLM.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &httpClient{
		baseURL: strings.TrimSuffix(p.Config.LLM.BaseURL, "/"),
		apiKey:  p.Config.LLM.APIKey,
		model:   p.Config.LLM.Model,
		log:     p.Log.Named("llm.client"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) configured() bool {
	return c.baseURL != "" && c.apiKey != "" && c.model != ""
}

func (c *httpClient) Generate(ctx context.Context, prompt, system string, maxTokens int) (string, error) {
	if !c.configured() {
		return "", ErrNotConfigured
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("provider error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("provider error (%d)", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return chatResp.Choices[0].Message.Content, nil
}

// Available probes the models endpoint with a short deadline so request
// handlers can refuse work before charging anything.
func (c *httpClient) Available(ctx context.Context) bool {
	if !c.configured() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("provider probe failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

func (c *httpClient) Status(ctx context.Context) Status {
	return Status{
		Provider:  "openai-compatible",
		Model:     c.model,
		Available: c.Available(ctx),
	}
}

var Module = fx.Module("llm",
	fx.Provide(NewClient),
)
