// Package pipelines chains a web-search-augmented model with an analysis model
// and merges their outputs into a single cited answer.
//
// A Pipeline runs every request through a fixed pipz sequence:
//
//   - strip-fields: drops caller housekeeping keys (user, chat_id, title)
//   - normalize: flattens chat history and separates the system message
//   - search: asks the search-stage model, collecting narrative text and citations
//   - synthesize: asks the analysis model to answer from the search narrative
//   - cite: appends a numbered References block
//
// Providers are statically bound to one upstream response shape. Each call owns
// its transient resources, so a Pipeline is safe for concurrent use. Every stage
// emits capitan events for logging and metrics.
//
// Basic usage:
//
//	search := openai.New(openai.Config{APIKey: key, Model: "sonar", Citations: openai.CitationsNative})
//	synth := anthropic.New(anthropic.Config{APIKey: key2})
//	p := pipelines.New("combined", "Search + Synthesis", search, synth)
//	answer, err := p.Execute(ctx, query, "combined", messages, body)
package pipelines

import (
	"context"
	"net/http"
)

// SearchProvider is a search-augmented model endpoint.
// Messages are in chronological order; a system entry, if any, comes first.
type SearchProvider interface {
	// Search sends the conversation and returns narrative text plus sources.
	Search(ctx context.Context, messages []Message) (*SearchResult, error)

	// Name returns the provider identifier (e.g., "perplexity", "openrouter").
	Name() string
}

// SynthesisProvider is an analysis model endpoint without search capability.
type SynthesisProvider interface {
	// Synthesize sends a system instruction and a single user prompt.
	Synthesize(ctx context.Context, system, prompt string) (*ProviderResponse, error)

	// Name returns the provider identifier (e.g., "anthropic", "openrouter").
	Name() string
}

// HeaderSource yields the request headers for one upstream endpoint.
// Implementations must return a copy the caller may modify.
type HeaderSource interface {
	Headers() http.Header
}

// StaticHeaders is a HeaderSource that never changes.
type StaticHeaders http.Header

// Headers returns a copy of the fixed headers.
func (h StaticHeaders) Headers() http.Header {
	return http.Header(h).Clone()
}

// TokenUsage contains token counts from a provider response.
type TokenUsage struct {
	Prompt     int // Tokens used by the prompt/messages
	Completion int // Tokens used by the completion/response
	Total      int // Total tokens used
}

// Add returns the sum of two usages.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Prompt:     u.Prompt + other.Prompt,
		Completion: u.Completion + other.Completion,
		Total:      u.Total + other.Total,
	}
}

// ProviderResponse contains the response from a synthesis provider.
type ProviderResponse struct {
	Content string     // The text response content
	Usage   TokenUsage // Token usage statistics
}

// SearchResult is the output of the search stage.
// Citations are 1-based in the order returned here.
type SearchResult struct {
	Text      string     // Narrative answer from the search model
	Citations []string   // Source URLs
	Usage     TokenUsage // Token usage statistics
}

// Message is a normalized chat message with flat text content.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Role constants for message types.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Sampling defaults for the two stages.
// The search stage stays close to its sources; synthesis is allowed more latitude.
const (
	SearchTemperature    float32 = 0.2
	SearchTopP           float32 = 0.9
	SynthesisTemperature float32 = 0.7
	DefaultMaxTokens             = 4096
)
