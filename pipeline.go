package pipelines

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"
)

// StrippedFields are caller housekeeping keys that are never forwarded upstream.
var StrippedFields = []string{"user", "chat_id", "title"}

// Stage names, in execution order.
const (
	StageStrip      = "strip-fields"
	StageNormalize  = "normalize"
	StageSearch     = "search"
	StageSynthesize = "synthesize"
	StageCite       = "cite"
)

// Pipeline chains a search provider and a synthesis provider behind a single
// model id. It wraps a pipz pipeline and keeps no per-request state, so one
// Pipeline may serve concurrent calls.
type Pipeline struct {
	id        string
	name      string
	search    SearchProvider
	synthesis SynthesisProvider
	valves    ValveStore
	pipeline  pipz.Chainable[*Request]
}

// New creates a Pipeline addressed by id and shown to users as name.
// Options wrap the stage sequence in order.
func New(id, name string, search SearchProvider, synthesis SynthesisProvider, opts ...Option) *Pipeline {
	pipeline := NewSequence(search, synthesis)
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}

	return &Pipeline{
		id:        id,
		name:      name,
		search:    search,
		synthesis: synthesis,
		pipeline:  pipeline,
	}
}

// WithValves attaches the credential store the providers read their headers from.
func (p *Pipeline) WithValves(valves ValveStore) *Pipeline {
	p.valves = valves
	return p
}

// ID returns the model id the pipeline answers to.
func (p *Pipeline) ID() string {
	return p.id
}

// Name returns the display name.
func (p *Pipeline) Name() string {
	return p.name
}

// Valves returns the attached credential store, or nil.
func (p *Pipeline) Valves() ValveStore {
	return p.valves
}

// GetPipeline returns the internal pipeline for composition.
func (p *Pipeline) GetPipeline() pipz.Chainable[*Request] {
	return p.pipeline
}

// NewSequence builds the five-stage pipeline shared by every variant.
func NewSequence(search SearchProvider, synthesis SynthesisProvider) pipz.Chainable[*Request] {
	return pipz.NewSequence("combined",
		NewStripStage(),
		NewNormalizeStage(),
		NewSearchStage(search),
		NewSynthesisStage(synthesis),
		NewCitationStage(),
	)
}

// StripFields deletes the housekeeping keys from body and returns the ones
// that were present.
func StripFields(body map[string]any) []string {
	removed := make([]string, 0, len(StrippedFields))
	for _, key := range StrippedFields {
		if _, ok := body[key]; ok {
			delete(body, key)
			removed = append(removed, key)
		}
	}
	return removed
}

// NewStripStage removes caller housekeeping fields from the request body.
func NewStripStage() pipz.Chainable[*Request] {
	return pipz.Apply(StageStrip, func(ctx context.Context, req *Request) (*Request, error) {
		req.Stripped = StripFields(req.Body)
		if len(req.Stripped) > 0 {
			capitan.Emit(ctx, FieldsStripped,
				RequestIDKey.Field(req.RequestID),
				StrippedKey.Field(strings.Join(req.Stripped, ",")),
			)
		}
		return req, nil
	})
}

// NewNormalizeStage flattens the chat history.
// A history with no turns left after the system message is rejected here,
// before any upstream call.
func NewNormalizeStage() pipz.Chainable[*Request] {
	return pipz.Apply(StageNormalize, func(_ context.Context, req *Request) (*Request, error) {
		conv, err := Normalize(req.Messages)
		if err != nil {
			return req, req.fail(StageNormalize, err)
		}
		if conv.Len() == 0 {
			return req, req.fail(StageNormalize, &MalformedInputError{Index: -1, Reason: "conversation has no turns"})
		}
		req.Conversation = conv
		return req, nil
	})
}

// NewSearchStage sends the normalized history to the search provider.
func NewSearchStage(provider SearchProvider) pipz.Chainable[*Request] {
	return pipz.Apply(StageSearch, func(ctx context.Context, req *Request) (*Request, error) {
		start := time.Now()
		result, err := provider.Search(ctx, req.Conversation.SearchMessages())
		if err != nil {
			return req, req.fail(StageSearch, err)
		}
		if result == nil {
			return req, req.fail(StageSearch, &MalformedResponseError{Provider: provider.Name(), Field: "search result"})
		}
		if result.Citations == nil {
			result.Citations = []string{}
		}
		req.Search = result
		req.Usage = req.Usage.Add(result.Usage)

		capitan.Info(ctx, SearchCompleted,
			RequestIDKey.Field(req.RequestID),
			PipelineIDKey.Field(req.PipelineID),
			ProviderKey.Field(provider.Name()),
			CitationCountKey.Field(len(result.Citations)),
			DurationMsKey.Field(int(time.Since(start).Milliseconds())),
		)
		return req, nil
	})
}

// NewSynthesisStage asks the synthesis provider to answer the latest turn from
// the search narrative, with the earlier turns as a transcript.
func NewSynthesisStage(provider SynthesisProvider) pipz.Chainable[*Request] {
	return pipz.Apply(StageSynthesize, func(ctx context.Context, req *Request) (*Request, error) {
		start := time.Now()
		query, err := req.Conversation.Query()
		if err != nil {
			return req, req.fail(StageSynthesize, err)
		}

		prompt := &SynthesisPrompt{
			History:       req.Conversation.History(),
			Query:         query,
			SearchResults: req.Search.Text,
		}

		resp, err := provider.Synthesize(ctx, SystemInstruction, prompt.Render())
		if err != nil {
			return req, req.fail(StageSynthesize, err)
		}
		if resp == nil {
			return req, req.fail(StageSynthesize, &MalformedResponseError{Provider: provider.Name(), Field: "synthesis response"})
		}
		req.Answer = resp.Content
		req.Usage = req.Usage.Add(resp.Usage)

		capitan.Info(ctx, SynthesisCompleted,
			RequestIDKey.Field(req.RequestID),
			PipelineIDKey.Field(req.PipelineID),
			ProviderKey.Field(provider.Name()),
			DurationMsKey.Field(int(time.Since(start).Milliseconds())),
		)
		return req, nil
	})
}

// NewCitationStage appends the search citations to the answer.
func NewCitationStage() pipz.Chainable[*Request] {
	return pipz.Apply(StageCite, func(_ context.Context, req *Request) (*Request, error) {
		req.Output = MergeCitations(req.Answer, req.Search.Citations)
		return req, nil
	})
}

// Execute runs one request through the pipeline and returns the cited answer.
// The error, if any, is the typed error of the failing stage; see KindOf.
//
// Every transient handle opened during the call is released before Execute
// returns, on success and failure alike.
func (p *Pipeline) Execute(ctx context.Context, userMessage, modelID string, messages []ChatMessage, body map[string]any) (string, error) {
	start := time.Now()
	requestID := uuid.New().String()

	ctx, scope := withCallScope(ctx)
	defer scope.release()

	if body == nil {
		body = map[string]any{}
	}
	request := &Request{
		UserMessage: userMessage,
		ModelID:     modelID,
		Messages:    messages,
		Body:        body,
		RequestID:   requestID,
		PipelineID:  p.id,
	}

	// Emit request.started hook
	capitan.Info(ctx, RequestStarted,
		RequestIDKey.Field(requestID),
		PipelineIDKey.Field(p.id),
		ModelIDKey.Field(modelID),
		MessageCountKey.Field(len(messages)),
	)

	if err := p.process(ctx, request); err != nil {
		stage, stageErr := request.stageError()
		if stageErr != nil {
			err = stageErr
		}
		capitan.Error(ctx, RequestFailed,
			RequestIDKey.Field(requestID),
			PipelineIDKey.Field(p.id),
			ModelIDKey.Field(modelID),
			ErrorKey.Field(err.Error()),
			ErrorKindKey.Field(string(KindOf(err))),
			StageKey.Field(stage),
			DurationMsKey.Field(int(time.Since(start).Milliseconds())),
		)
		return "", err
	}

	capitan.Info(ctx, RequestCompleted,
		RequestIDKey.Field(requestID),
		PipelineIDKey.Field(p.id),
		ModelIDKey.Field(modelID),
		CitationCountKey.Field(len(request.Search.Citations)),
		PromptTokensKey.Field(request.Usage.Prompt),
		CompletionTokensKey.Field(request.Usage.Completion),
		TotalTokensKey.Field(request.Usage.Total),
		DurationMsKey.Field(int(time.Since(start).Milliseconds())),
		OutputKey.Field(request.Output),
	)

	return request.Output, nil
}

// process runs the pipeline, turning a stage panic into an error.
func (p *Pipeline) process(ctx context.Context, request *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	_, err = p.pipeline.Process(ctx, request)
	return err
}

// Pipe is the string-only entry point for hosts that cannot take an error.
// It returns the cited answer, or "Error: " followed by the failure.
func (p *Pipeline) Pipe(ctx context.Context, userMessage, modelID string, messages []ChatMessage, body map[string]any) string {
	out, err := p.Execute(ctx, userMessage, modelID, messages, body)
	if err != nil {
		return FormatError(err)
	}
	return out
}
