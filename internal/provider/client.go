// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/answerd/internal/prompt"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultDeepSeekURL is the base URL for the DeepSeek API.
	DefaultDeepSeekURL = "https://api.deepseek.com"

	// DefaultOpenAIURL is the base URL for the OpenAI API.
	DefaultOpenAIURL = "https://api.openai.com"

	// DefaultDeepSeekModel is used when no model is configured.
	DefaultDeepSeekModel = "deepseek-chat"

	// DefaultOpenAIModel is used when no model is configured.
	DefaultOpenAIModel = "gpt-3.5-turbo"

	// DefaultTimeout bounds one completion round trip.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize caps the response body read from a backend.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB
)

// sharedHTTPClient pools connections across all backend requests.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
	Timeout: DefaultTimeout,
}

// =============================================================================
// WIRE TYPES (chat-completions format)
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      float64       `json:"temperature,omitempty"`
	TopP             float64       `json:"top_p,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	Stream           bool          `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds the settings shared by the hosted backends.
type ClientConfig struct {
	// BaseURL of the API. The chat-completions path is appended.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model requested from the backend.
	Model string

	// Sampling parameters, passed through to the backend.
	MaxTokens        int
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// HTTPClient overrides the shared pooled client (tests).
	HTTPClient *http.Client
}

// =============================================================================
// CHAT CLIENT
// =============================================================================

// chatClient implements Provider against any chat-completions endpoint.
// DeepSeek and OpenAI differ only in base URL, default model, and name.
type chatClient struct {
	name       string
	config     ClientConfig
	httpClient *http.Client
}

// NewDeepSeek creates a Provider backed by the DeepSeek API.
func NewDeepSeek(config ClientConfig) Provider {
	if config.BaseURL == "" {
		config.BaseURL = DefaultDeepSeekURL
	}
	if config.Model == "" {
		config.Model = DefaultDeepSeekModel
	}
	return newChatClient("deepseek", config)
}

// NewOpenAI creates a Provider backed by the OpenAI API.
func NewOpenAI(config ClientConfig) Provider {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIURL
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	return newChatClient("openai", config)
}

func newChatClient(name string, config ClientConfig) *chatClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = sharedHTTPClient
	}
	return &chatClient{name: name, config: config, httpClient: httpClient}
}

// Name identifies the backend.
func (c *chatClient) Name() string {
	return c.name
}

// Model returns the configured model identifier.
func (c *chatClient) Model() string {
	return c.config.Model
}

// Complete sends one chat-completions request. Failures surface as
// *Error; there is no retry here.
func (c *chatClient) Complete(ctx context.Context, messages []prompt.Message) (string, int, error) {
	reqBody := chatRequest{
		Model:            c.config.Model,
		Messages:         toWire(messages),
		MaxTokens:        c.config.MaxTokens,
		Temperature:      c.config.Temperature,
		TopP:             c.config.TopP,
		FrequencyPenalty: c.config.FrequencyPenalty,
		PresencePenalty:  c.config.PresencePenalty,
		Stream:           false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, &Error{Provider: c.name, Message: "failed to marshal request", Cause: err}
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, &Error{Provider: c.name, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, &Error{Provider: c.name, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return "", 0, &Error{Provider: c.name, Status: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		var apiErr errorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", 0, &Error{Provider: c.name, Status: resp.StatusCode, Message: msg}
	}

	var result chatResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return "", 0, &Error{Provider: c.name, Status: resp.StatusCode, Message: "failed to decode response", Cause: err}
	}
	if len(result.Choices) == 0 {
		return "", 0, &Error{Provider: c.name, Status: resp.StatusCode, Message: "response contained no choices"}
	}

	answer := strings.TrimSpace(result.Choices[0].Message.Content)
	return answer, result.Usage.TotalTokens, nil
}

func toWire(messages []prompt.Message) []chatMessage {
	wire := make([]chatMessage, len(messages))
	for i, m := range messages {
		wire[i] = chatMessage{Role: m.Role.String(), Content: m.Content}
	}
	return wire
}
