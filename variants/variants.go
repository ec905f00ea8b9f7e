// Package variants assembles the two shipped pipelines: a direct one that talks
// to Perplexity and Anthropic, and one that reaches both models via OpenRouter.
package variants

import (
	"net/http"
	"os"
	"time"

	pipelines "github.com/neuromechanist/openwebui-piplines"
	"github.com/neuromechanist/openwebui-piplines/providers/anthropic"
	"github.com/neuromechanist/openwebui-piplines/providers/google"
	"github.com/neuromechanist/openwebui-piplines/providers/openai"
)

// Model ids and display names.
const (
	DirectID       = "combined-sonar-sonnet"
	DirectName     = "Perplexity Sonar Small + Claude 3.5 Sonnet"
	OpenRouterID   = "combined-sonar-sonnet-openrouter"
	OpenRouterName = "OpenRouter: Perplexity Sonar Small + Claude 3.5 Sonnet"
	GeminiID       = "combined-sonar-gemini"
	GeminiName     = "Perplexity Sonar Small + Gemini 1.5 Pro"
)

// Upstream models.
const (
	PerplexitySearchModel = "llama-3.1-sonar-small-128k-online"
	AnthropicModel        = "claude-3-5-sonnet-20241022"
	OpenRouterSearchModel = "perplexity/llama-3.1-sonar-large-128k-online"
	OpenRouterSynthModel  = "anthropic/claude-3.5-sonnet"
	GeminiModel           = "gemini-1.5-pro"
)

// Header endpoint names inside a valves snapshot.
const (
	EndpointPerplexity = "perplexity"
	EndpointAnthropic  = "anthropic"
	EndpointOpenRouter = "openrouter"
	EndpointGoogle     = "google"
)

// OpenRouter attribution headers.
const (
	OpenRouterReferer = "https://github.com/neuromechanist/openwebui-piplines"
	OpenRouterTitle   = "OpenWebUI Pipelines"
)

// Placeholders used when a credential variable is unset.
const (
	PerplexityPlaceholder = "your-Perplexity-api-key-here"
	AnthropicPlaceholder  = "your-Anthropic-api-key-here"
	OpenRouterPlaceholder = "your-OpenRouter-api-key-here"
	GeminiPlaceholder     = "your-Gemini-api-key-here"
)

// Endpoints are the upstream base URLs. Empty fields take the public defaults.
type Endpoints struct {
	Perplexity string        // defaults to "https://api.perplexity.ai"
	Anthropic  string        // defaults to "https://api.anthropic.com/v1"
	OpenRouter string        // defaults to "https://openrouter.ai/api/v1"
	Google     string        // defaults to "https://generativelanguage.googleapis.com/v1beta"
	Timeout    time.Duration // per upstream call, defaults to 60s
}

func (e Endpoints) withDefaults() Endpoints {
	if e.Perplexity == "" {
		e.Perplexity = "https://api.perplexity.ai"
	}
	if e.Anthropic == "" {
		e.Anthropic = "https://api.anthropic.com/v1"
	}
	if e.OpenRouter == "" {
		e.OpenRouter = "https://openrouter.ai/api/v1"
	}
	if e.Google == "" {
		e.Google = "https://generativelanguage.googleapis.com/v1beta"
	}
	if e.Timeout == 0 {
		e.Timeout = 60 * time.Second
	}
	return e
}

// DirectValves are the credentials of the direct pipeline.
type DirectValves struct {
	PerplexityAPIKey string `json:"PERPLEXITY_API_KEY" desc:"Perplexity API key"`
	AnthropicAPIKey  string `json:"ANTHROPIC_API_KEY" desc:"Anthropic API key"`
}

// OpenRouterValves are the credentials of the OpenRouter pipeline.
type OpenRouterValves struct {
	OpenRouterAPIKey string `json:"OPENROUTER_API_KEY" desc:"OpenRouter API key"`
}

// GeminiValves are the credentials of the Gemini pipeline.
type GeminiValves struct {
	PerplexityAPIKey string `json:"PERPLEXITY_API_KEY" desc:"Perplexity API key"`
	GeminiAPIKey     string `json:"GEMINI_API_KEY" desc:"Google Gemini API key"`
}

// DirectValvesFromEnv reads PERPLEXITY_API_KEY and ANTHROPIC_API_KEY once.
func DirectValvesFromEnv() DirectValves {
	return DirectValves{
		PerplexityAPIKey: envOr("PERPLEXITY_API_KEY", PerplexityPlaceholder),
		AnthropicAPIKey:  envOr("ANTHROPIC_API_KEY", AnthropicPlaceholder),
	}
}

// OpenRouterValvesFromEnv reads OPENROUTER_API_KEY once.
func OpenRouterValvesFromEnv() OpenRouterValves {
	return OpenRouterValves{
		OpenRouterAPIKey: envOr("OPENROUTER_API_KEY", OpenRouterPlaceholder),
	}
}

// GeminiValvesFromEnv reads PERPLEXITY_API_KEY and GEMINI_API_KEY once.
func GeminiValvesFromEnv() GeminiValves {
	return GeminiValves{
		PerplexityAPIKey: envOr("PERPLEXITY_API_KEY", PerplexityPlaceholder),
		GeminiAPIKey:     envOr("GEMINI_API_KEY", GeminiPlaceholder),
	}
}

func envOr(key, placeholder string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return placeholder
}

// DirectHeaders derives the per-endpoint headers of the direct pipeline.
func DirectHeaders(v DirectValves) map[string]http.Header {
	return map[string]http.Header{
		EndpointPerplexity: {
			"Authorization": {"Bearer " + v.PerplexityAPIKey},
		},
		EndpointAnthropic: {
			"X-Api-Key": {v.AnthropicAPIKey},
		},
	}
}

// OpenRouterHeaders derives the headers shared by both OpenRouter calls.
func OpenRouterHeaders(v OpenRouterValves) map[string]http.Header {
	return map[string]http.Header{
		EndpointOpenRouter: {
			"Authorization": {"Bearer " + v.OpenRouterAPIKey},
			"Http-Referer":  {OpenRouterReferer},
			"X-Title":       {OpenRouterTitle},
		},
	}
}

// GeminiHeaders derives the per-endpoint headers of the Gemini pipeline.
func GeminiHeaders(v GeminiValves) map[string]http.Header {
	return map[string]http.Header{
		EndpointPerplexity: {
			"Authorization": {"Bearer " + v.PerplexityAPIKey},
		},
		EndpointGoogle: {
			"X-Goog-Api-Key": {v.GeminiAPIKey},
		},
	}
}

// NewDirectStore creates a valves store for the direct pipeline.
func NewDirectStore(v DirectValves) *pipelines.Store[DirectValves] {
	return pipelines.NewStore(v, DirectHeaders)
}

// NewOpenRouterStore creates a valves store for the OpenRouter pipeline.
func NewOpenRouterStore(v OpenRouterValves) *pipelines.Store[OpenRouterValves] {
	return pipelines.NewStore(v, OpenRouterHeaders)
}

// NewGeminiStore creates a valves store for the Gemini pipeline.
func NewGeminiStore(v GeminiValves) *pipelines.Store[GeminiValves] {
	return pipelines.NewStore(v, GeminiHeaders)
}

// perplexitySearch is the search client shared by the direct pipelines.
func perplexitySearch(headers pipelines.HeaderSource, endpoints Endpoints) *openai.Provider {
	topK := 0
	stream := false
	return openai.New(openai.Config{
		Name:      EndpointPerplexity,
		Headers:   headers,
		Model:     PerplexitySearchModel,
		BaseURL:   endpoints.Perplexity,
		TopK:      &topK,
		Stream:    &stream,
		Citations: openai.CitationsNative,
		Timeout:   endpoints.Timeout,
	})
}

// NewDirect builds the Perplexity + Anthropic pipeline.
// A nil store is filled from the environment.
func NewDirect(store *pipelines.Store[DirectValves], endpoints Endpoints, opts ...pipelines.Option) *pipelines.Pipeline {
	if store == nil {
		store = NewDirectStore(DirectValvesFromEnv())
	}
	endpoints = endpoints.withDefaults()

	search := perplexitySearch(store.Source(EndpointPerplexity), endpoints)
	synthesis := anthropic.New(anthropic.Config{
		Headers: store.Source(EndpointAnthropic),
		Model:   AnthropicModel,
		BaseURL: endpoints.Anthropic,
		Timeout: endpoints.Timeout,
	})

	return pipelines.New(DirectID, DirectName, search, synthesis, opts...).WithValves(store)
}

// NewOpenRouter builds the pipeline that reaches both models via OpenRouter.
// OpenRouter does not forward Perplexity's citations, so they are scraped
// from the answer text. A nil store is filled from the environment.
func NewOpenRouter(store *pipelines.Store[OpenRouterValves], endpoints Endpoints, opts ...pipelines.Option) *pipelines.Pipeline {
	if store == nil {
		store = NewOpenRouterStore(OpenRouterValvesFromEnv())
	}
	endpoints = endpoints.withDefaults()

	search := openai.New(openai.Config{
		Name:      EndpointOpenRouter,
		Headers:   store.Source(EndpointOpenRouter),
		Model:     OpenRouterSearchModel,
		BaseURL:   endpoints.OpenRouter,
		MaxTokens: pipelines.DefaultMaxTokens,
		Citations: openai.CitationsFromText,
		Timeout:   endpoints.Timeout,
	})
	synthesis := openai.New(openai.Config{
		Name:      EndpointOpenRouter,
		Headers:   store.Source(EndpointOpenRouter),
		Model:     OpenRouterSynthModel,
		BaseURL:   endpoints.OpenRouter,
		MaxTokens: pipelines.DefaultMaxTokens,
		Timeout:   endpoints.Timeout,
	})

	return pipelines.New(OpenRouterID, OpenRouterName, search, synthesis, opts...).WithValves(store)
}

// NewGemini builds the Perplexity + Gemini pipeline.
// A nil store is filled from the environment.
func NewGemini(store *pipelines.Store[GeminiValves], endpoints Endpoints, opts ...pipelines.Option) *pipelines.Pipeline {
	if store == nil {
		store = NewGeminiStore(GeminiValvesFromEnv())
	}
	endpoints = endpoints.withDefaults()

	search := perplexitySearch(store.Source(EndpointPerplexity), endpoints)
	synthesis := google.New(google.Config{
		Headers: store.Source(EndpointGoogle),
		Model:   GeminiModel,
		BaseURL: endpoints.Google,
		Timeout: endpoints.Timeout,
	})

	return pipelines.New(GeminiID, GeminiName, search, synthesis, opts...).WithValves(store)
}
