// Package google implements the synthesis stage against the Gemini
// generateContent API.
package google

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
const Shape = "candidates[0].content.parts[0].text"

// Provider implements pipelines.SynthesisProvider for Google Gemini.
type Provider struct {
	model      string
	baseURL    string
	maxTokens  int
	headers    pipelines.HeaderSource
	httpClient *http.Client
}

// Config holds configuration for the Google provider.
type Config struct {
	APIKey    string                 // Sent as x-goog-api-key when Headers is nil
	Headers   pipelines.HeaderSource // Optional, read on every call
	Model     string                 // e.g. "gemini-1.5-pro"
	BaseURL   string                 // Optional, defaults to Google AI API
	MaxTokens int                    // Optional, defaults to 4096
	Timeout   time.Duration          // Optional, defaults to 60s
	Client    *http.Client           // Optional, overrides Timeout
}

// New creates a new Google provider.
func New(config Config) *Provider {
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = pipelines.DefaultMaxTokens
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Headers == nil {
		config.Headers = pipelines.StaticHeaders{
			"X-Goog-Api-Key": []string{config.APIKey},
		}
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Provider{
		model:      config.Model,
		baseURL:    config.BaseURL,
		maxTokens:  config.MaxTokens,
		headers:    config.Headers,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (*Provider) Name() string {
	return "google"
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

// Synthesize sends the prompt as a single user turn, with the instruction
// as the system instruction.
func (p *Provider) Synthesize(ctx context.Context, system, prompt string) (*pipelines.ProviderResponse, error) {
	startTime := time.Now()

	capitan.Emit(ctx, pipelines.ProviderCallStarted,
		pipelines.ProviderKey.Field(p.Name()),
		pipelines.ModelKey.Field(p.model),
	)

	requestBody := generateContentRequest{
		Contents: []content{
			{
				Role:  pipelines.RoleUser,
				Parts: []part{{Text: &prompt}},
			},
		},
		GenerationConfig: generationConfig{
			Temperature:     pipelines.SynthesisTemperature,
			MaxOutputTokens: p.maxTokens,
		},
	}
	if system != "" {
		requestBody.SystemInstruction = &content{Parts: []part{{Text: &system}}}
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = p.headers.Headers()
	req.Header.Set("Content-Type", "application/json")

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

	var generateResp generateContentResponse
	if err := json.Unmarshal(body, &generateResp); err != nil {
		p.failed(ctx, startTime, resp.StatusCode, err.Error())
		return nil, &pipelines.MalformedResponseError{Provider: p.Name(), Field: "body", Err: err}
	}

	text := generateResp.firstText()
	if text == nil {
		p.failed(ctx, startTime, resp.StatusCode, "no text content")
		return nil, &pipelines.MalformedResponseError{Provider: p.Name(), Field: Shape}
	}

	usage := pipelines.TokenUsage{
		Prompt:     generateResp.UsageMetadata.PromptTokenCount,
		Completion: generateResp.UsageMetadata.CandidatesTokenCount,
		Total:      generateResp.UsageMetadata.TotalTokenCount,
	}

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
		Content: *text,
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

// Request/Response types for Google API

type generateContentRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text *string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateContentResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

// firstText returns candidates[0].content.parts[0].text, or nil.
func (r *generateContentResponse) firstText() *string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return nil
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return nil
	}
	return parts[0].Text
}

type candidate struct {
	Content      *content `json:"content"`
	FinishReason string   `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}
