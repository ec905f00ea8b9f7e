package pipelines

import "github.com/zoobzio/capitan"

// Signals for hook events.
const (
	RequestStarted        = capitan.Signal("pipeline.request.started")
	RequestCompleted      = capitan.Signal("pipeline.request.completed")
	RequestFailed         = capitan.Signal("pipeline.request.failed")
	FieldsStripped        = capitan.Signal("pipeline.fields.stripped")
	SearchCompleted       = capitan.Signal("pipeline.search.completed")
	SynthesisCompleted    = capitan.Signal("pipeline.synthesis.completed")
	ProviderCallStarted   = capitan.Signal("pipeline.provider.call.started")
	ProviderCallCompleted = capitan.Signal("pipeline.provider.call.completed")
	ProviderCallFailed    = capitan.Signal("pipeline.provider.call.failed")
	PipelineStartup       = capitan.Signal("pipeline.lifecycle.startup")
	PipelineShutdown      = capitan.Signal("pipeline.lifecycle.shutdown")
	ResourceCloseFailed   = capitan.Signal("pipeline.lifecycle.close.failed")
	ValvesUpdated         = capitan.Signal("pipeline.valves.updated")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey  = capitan.NewStringKey("pipeline.request.id")
	PipelineIDKey = capitan.NewStringKey("pipeline.id")
	ModelIDKey    = capitan.NewStringKey("pipeline.model.id")
	StageKey      = capitan.NewStringKey("pipeline.stage")

	// Input/Output data.
	MessageCountKey  = capitan.NewIntKey("pipeline.messages.count")
	StrippedKey      = capitan.NewStringKey("pipeline.fields.stripped")
	CitationCountKey = capitan.NewIntKey("pipeline.citations.count")
	OutputKey        = capitan.NewStringKey("pipeline.output")

	// Error information.
	ErrorKey     = capitan.NewStringKey("pipeline.error")
	ErrorKindKey = capitan.NewStringKey("pipeline.error.kind")

	// Provider information.
	ProviderKey = capitan.NewStringKey("pipeline.provider")
	ModelKey    = capitan.NewStringKey("pipeline.model")
	ShapeKey    = capitan.NewStringKey("pipeline.response.shape")

	// Provider metrics.
	PromptTokensKey     = capitan.NewIntKey("pipeline.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("pipeline.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("pipeline.tokens.total")
	DurationMsKey       = capitan.NewIntKey("pipeline.duration.ms")

	// HTTP/API metadata.
	HTTPStatusCodeKey = capitan.NewIntKey("pipeline.http.status.code")

	// Valves.
	ValvesVersionKey = capitan.NewIntKey("pipeline.valves.version")
)
