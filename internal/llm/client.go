// ABOUTME: Outbound chat-completion client for Anthropic and OpenAI
// ABOUTME: One POST per call, no retries, no streaming

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	// ProviderAnthropic is the default provider.
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o-mini"

	anthropicVersion = "2023-06-01"

	// maxTokens bounds every upstream completion request.
	maxTokens = 1024
)

// Message is a single role/content pair in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat-completion call. The API key is already
// resolved by the caller; this package never reads settings.
type Request struct {
	Provider string
	Model    string
	System   string
	Messages []Message
	APIKey   string
}

// Result is the assistant's reply plus whatever usage metadata the
// provider reported, relayed verbatim.
type Result struct {
	Content string
	Usage   json.RawMessage
}

// UpstreamError carries a non-success status from the provider so the
// caller can mirror it.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %d: %s", e.StatusCode, e.Message)
}

// Client issues chat-completion requests. The zero value is not usable;
// use NewClient.
type Client struct {
	httpClient *http.Client

	// Endpoint overrides for tests. Empty means the real API.
	AnthropicURL string
	OpenAIURL    string

	logger *slog.Logger
}

// NewClient returns a Client using the given HTTP client, or
// http.DefaultClient when nil.
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:   httpClient,
		AnthropicURL: "https://api.anthropic.com/v1/messages",
		OpenAIURL:    "https://api.openai.com/v1/chat/completions",
		logger:       logger.With("component", "llm"),
	}
}

// Complete performs exactly one upstream call and returns the reply.
// Non-success upstream statuses come back as *UpstreamError.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	switch req.Provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, req)
	case ProviderAnthropic, "":
		return c.completeAnthropic(ctx, req)
	default:
		return nil, fmt.Errorf("unknown provider %q", req.Provider)
	}
}

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage json.RawMessage `json:"usage"`
}

func (c *Client) completeAnthropic(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  req.Messages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.AnthropicURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", req.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing anthropic response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Result{Content: sb.String(), Usage: parsed.Usage}, nil
}

type openAIRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []Message `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

func (c *Client) completeOpenAI(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	// OpenAI takes the system prompt as a leading message.
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	body, err := json.Marshal(openAIRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.OpenAIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	raw, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}
	return &Result{Content: parsed.Choices[0].Message.Content, Usage: parsed.Usage}, nil
}

// do executes the request and returns the body, converting non-2xx
// statuses into *UpstreamError with the provider's message when one is
// present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := extractErrorMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("API error %d", resp.StatusCode)
		}
		c.logger.Warn("upstream returned error", "status", resp.StatusCode, "message", msg)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

// extractErrorMessage pulls the human-readable message out of the
// provider's error envelope. Both providers use {"error":{"message":...}}.
func extractErrorMessage(raw []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}
