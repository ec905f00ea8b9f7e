// Package openai implements the search and synthesis stages against any
// OpenAI-compatible chat/completions endpoint (Perplexity, OpenRouter, OpenAI).
package openai

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
const Shape = "choices[0].message.content"

// CitationMode selects where search citations come from.
type CitationMode int

const (
	// CitationsNative reads the top-level "citations" array of the response.
	CitationsNative CitationMode = iota
	// CitationsFromText scrapes URLs out of the answer text.
	CitationsFromText
)

func (m CitationMode) String() string {
	if m == CitationsFromText {
		return "text"
	}
	return "native"
}

// Provider is a chat/completions client usable as either pipeline stage.
type Provider struct {
	name       string
	model      string
	baseURL    string
	headers    pipelines.HeaderSource
	topK       *int
	maxTokens  int
	stream     *bool
	citations  CitationMode
	httpClient *http.Client
}

// Config holds configuration for the provider.
type Config struct {
	Name      string                 // Provider identifier, defaults to "openai"
	APIKey    string                 // Bearer token, used when Headers is nil
	Headers   pipelines.HeaderSource // Optional, read on every call
	Model     string                 // e.g. "llama-3.1-sonar-small-128k-online"
	BaseURL   string                 // Optional, defaults to "https://api.openai.com/v1"
	TopK      *int                   // Optional, sent on search requests only
	MaxTokens int                    // Optional, omitted when zero
	Stream    *bool                  // Optional, sent on search requests only
	Citations CitationMode           // Search citation source
	Timeout   time.Duration          // Optional, defaults to 60s
	Client    *http.Client           // Optional, overrides Timeout
}

// New creates a new provider.
func New(config Config) *Provider {
	if config.Name == "" {
		config.Name = "openai"
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Headers == nil {
		config.Headers = pipelines.StaticHeaders{
			"Authorization": []string{"Bearer " + config.APIKey},
		}
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Provider{
		name:       config.Name,
		model:      config.Model,
		baseURL:    config.BaseURL,
		headers:    config.Headers,
		topK:       config.TopK,
		maxTokens:  config.MaxTokens,
		stream:     config.Stream,
		citations:  config.Citations,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
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

// Search sends the conversation to a search-augmented model.
func (p *Provider) Search(ctx context.Context, messages []pipelines.Message) (*pipelines.SearchResult, error) {
	topP := pipelines.SearchTopP
	request := chatCompletionRequest{
		Model:       p.model,
		Messages:    toWire(messages),
		Temperature: pipelines.SearchTemperature,
		TopP:        &topP,
		TopK:        p.topK,
		MaxTokens:   p.maxTokens,
		Stream:      p.stream,
	}

	resp, err := p.complete(ctx, request)
	if err != nil {
		return nil, err
	}

	var citations []string
	switch p.citations {
	case CitationsFromText:
		citations = pipelines.ExtractCitations(resp.content)
	default:
		citations = resp.citations
	}
	if citations == nil {
		citations = []string{}
	}

	return &pipelines.SearchResult{
		Text:      resp.content,
		Citations: citations,
		Usage:     resp.usage,
	}, nil
}

// Synthesize sends the system instruction as a leading system message
// followed by the prompt.
func (p *Provider) Synthesize(ctx context.Context, system, prompt string) (*pipelines.ProviderResponse, error) {
	request := chatCompletionRequest{
		Model: p.model,
		Messages: []message{
			{Role: pipelines.RoleSystem, Content: system},
			{Role: pipelines.RoleUser, Content: prompt},
		},
		Temperature: pipelines.SynthesisTemperature,
		MaxTokens:   p.maxTokens,
	}

	resp, err := p.complete(ctx, request)
	if err != nil {
		return nil, err
	}
	return &pipelines.ProviderResponse{Content: resp.content, Usage: resp.usage}, nil
}

type completion struct {
	content   string
	citations []string
	usage     pipelines.TokenUsage
}

// complete performs one chat/completions round trip.
func (p *Provider) complete(ctx context.Context, request chatCompletionRequest) (*completion, error) {
	startTime := time.Now()

	// Emit provider.call.started hook
	capitan.Emit(ctx, pipelines.ProviderCallStarted,
		pipelines.ProviderKey.Field(p.name),
		pipelines.ModelKey.Field(p.model),
	)

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = p.headers.Headers()
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.failed(ctx, startTime, 0, err.Error())
		return nil, &pipelines.TransportError{Provider: p.name, Err: err}
	}
	release := pipelines.TrackResponse(ctx, resp.Body)
	defer release()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.failed(ctx, startTime, resp.StatusCode, err.Error())
		return nil, &pipelines.TransportError{Provider: p.name, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		p.failed(ctx, startTime, resp.StatusCode, fmt.Sprintf("status %d", resp.StatusCode))
		return nil, &pipelines.UpstreamAPIError{Provider: p.name, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var completionResp chatCompletionResponse
	if err := json.Unmarshal(body, &completionResp); err != nil {
		p.failed(ctx, startTime, resp.StatusCode, err.Error())
		return nil, &pipelines.MalformedResponseError{Provider: p.name, Field: "body", Err: err}
	}
	if len(completionResp.Choices) == 0 {
		p.failed(ctx, startTime, resp.StatusCode, "no choices")
		return nil, &pipelines.MalformedResponseError{Provider: p.name, Field: "choices[0]"}
	}
	content := completionResp.Choices[0].Message.Content
	if content == nil {
		p.failed(ctx, startTime, resp.StatusCode, "no content")
		return nil, &pipelines.MalformedResponseError{Provider: p.name, Field: Shape}
	}

	usage := pipelines.TokenUsage{
		Prompt:     completionResp.Usage.PromptTokens,
		Completion: completionResp.Usage.CompletionTokens,
		Total:      completionResp.Usage.TotalTokens,
	}

	// Emit provider.call.completed hook with token usage
	capitan.Emit(ctx, pipelines.ProviderCallCompleted,
		pipelines.ProviderKey.Field(p.name),
		pipelines.ModelKey.Field(p.model),
		pipelines.ShapeKey.Field(Shape),
		pipelines.PromptTokensKey.Field(usage.Prompt),
		pipelines.CompletionTokensKey.Field(usage.Completion),
		pipelines.TotalTokensKey.Field(usage.Total),
		pipelines.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		pipelines.HTTPStatusCodeKey.Field(resp.StatusCode),
	)

	return &completion{
		content:   *content,
		citations: completionResp.Citations,
		usage:     usage,
	}, nil
}

func (p *Provider) failed(ctx context.Context, startTime time.Time, status int, reason string) {
	capitan.Emit(ctx, pipelines.ProviderCallFailed,
		pipelines.ProviderKey.Field(p.name),
		pipelines.ModelKey.Field(p.model),
		pipelines.HTTPStatusCodeKey.Field(status),
		pipelines.DurationMsKey.Field(int(time.Since(startTime).Milliseconds())),
		pipelines.ErrorKey.Field(reason),
	)
}

func toWire(messages []pipelines.Message) []message {
	out := make([]message, len(messages))
	for i, m := range messages {
		out[i] = message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Request/Response types for the chat/completions API

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	TopP        *float32  `json:"top_p,omitempty"`
	TopK        *int      `json:"top_k,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      *bool     `json:"stream,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID        string   `json:"id"`
	Model     string   `json:"model"`
	Choices   []choice `json:"choices"`
	Citations []string `json:"citations"`
	Usage     usage    `json:"usage"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
