// Package anthropic implements the synthesis stage against the Anthropic
// Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zoobzio/capitan"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

// Shape is the response path this client extracts answers from.
const Shape = "content[0].text"

// Provider implements pipelines.SynthesisProvider for Anthropic Claude.
type Provider struct {
	model      string
	version    string
	baseURL    string
	maxTokens  int
	headers    pipelines.HeaderSource
	httpClient *http.Client
}

// Config holds configuration for the Anthropic provider.
type Config struct {
	APIKey    string                 // Sent as x-api-key when Headers is nil
	Headers   pipelines.HeaderSource // Optional, read on every call
	Model     string                 // e.g. "claude-3-5-sonnet-20241022"
	Version   string                 // API version, defaults to "2023-06-01"
	BaseURL   string                 // Optional, defaults to "https://api.anthropic.com/v1"
	MaxTokens int                    // Optional, defaults to 4096
	Timeout   time.Duration          // Optional, defaults to 60s
	Client    *http.Client           // Optional, overrides Timeout
}

// New creates a new Anthropic provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-3-5-sonnet-20241022"
	}
	if config.Version == "" {
		config.Version = "2023-06-01"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com/v1"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = pipelines.DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Headers == nil {
		config.Headers = pipelines.StaticHeaders{
			"X-Api-Key": []string{config.APIKey},
		}
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Provider{
		model:      config.Model,
		version:    config.Version,
		baseURL:    config.BaseURL,
		maxTokens:  config.MaxTokens,
		headers:    config.Headers,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (*Provider) Name() string {
	return "anthropic"
}

// Model returns the upstream model id.
func (p *Provider) Model() string {
	return p.model
}

// Shape reports the response path answers are read from.
func (*Provider) Shape() string {
	return Shape
}

// Close drops idle keep-alive connections.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// Synthesize sends the prompt as the only user message, with the
// instruction in the dedicated system field.
func (p *Provider) Synthesize(ctx context.Context, system, prompt string) (*pipelines.ProviderResponse, error) {
	startTime := time.Now()

	// Emit provider.call.started hook
	capitan.Emit(ctx, pipelines.ProviderCallStarted,
		pipelines.ProviderKey.Field(p.Name()),
		pipelines.ModelKey.Field(p.model),
	)

	requestBody := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: pipelines.SynthesisTemperature,
		System:      system,
		Messages: []message{
			{
				Role:    pipelines.RoleUser,
				Content: prompt,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = p.headers.Headers()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", p.version)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.failed(ctx, startTime, 0, err.Error())
		return nil, &pipelines.TransportError{Provider: p.Name(), Err: err}
	}
	release := pipelines.TrackResponse(ctx, resp.Body)
	defer release()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.failed(ctx, startTime, resp.StatusCode, err.Error())
		return nil, &pipelines.TransportError{Provider: p.Name(), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		p.failed(ctx, startTime, resp.StatusCode, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, &pipelines.UpstreamAPIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var messagesResp messagesResponse
	if err := json.Unmarshal(body, &messagesResp); err != nil {
		p.failed(ctx, startTime, resp.StatusCode, err.Error())
		return nil, &pipelines.MalformedResponseError{Provider: p.Name(), Field: "body", Err: err}
	}
	if len(messagesResp.Content) == 0 || messagesResp.Content[0].Text == nil {
		p.failed(ctx, startTime, resp.StatusCode, "no text content")
		return nil, &pipelines.MalformedResponseError{Provider: p.Name(), Field: Shape}
	}

	usage := pipelines.TokenUsage{
		Prompt:     messagesResp.Usage.InputTokens,
		Completion: messagesResp.Usage.OutputTokens,
		Total:      messagesResp.Usage.InputTokens + messagesResp.Usage.OutputTokens,
	}

	// Emit provider.call.completed hook with token usage
	capitan.Emit(ctx, pipelines.ProviderCallCompleted,
		pipelines.ProviderKey.Field(p.Name()),
		pipelines.ModelKey.Field(p.model),
		pipelines.ShapeKey.Field(Shape),
		pipelines.PromptTokensKey.Field(usage.Prompt),
		pipelines.CompletionTokensKey.Field(usage.Completion),
		pipelines.TotalTokensKey.Field(usage.Total),
		pipelines.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		pipelines.HTTPStatusCodeKey.Field(resp.StatusCode),
	)

	return &pipelines.ProviderResponse{
		Content: *messagesResp.Content[0].Text,
		Usage:   usage,
	}, nil
}

func (p *Provider) failed(ctx context.Context, startTime time.Time, status int, reason string) {
	capitan.Emit(ctx, pipelines.ProviderCallFailed,
		pipelines.ProviderKey.Field(p.Name()),
		pipelines.ModelKey.Field(p.model),
		pipelines.HTTPStatusCodeKey.Field(status),
		pipelines.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		pipelines.ErrorKey.Field(reason),
	)
}

// Request/Response types for Anthropic API

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Role    string    `json:"role"`
	Content []content `json:"content"`
	Model   string    `json:"model"`
	Usage   usage     `json:"usage"`
}

type content struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
