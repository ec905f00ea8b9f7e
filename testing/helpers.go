// Package testing provides utilities for testing search-then-synthesize pipelines.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

// Provider name constants for test helpers.
const (
	SequencedProviderName = "sequenced-mock"
	FailingProviderName   = "failing-mock"
)

// ResponseBuilder provides a fluent interface for constructing upstream
// response bodies in either the chat-completions or the messages shape.
type ResponseBuilder struct {
	content    string
	citations  []string
	prompt     int
	completion int
}

// NewResponseBuilder creates a new ResponseBuilder.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{}
}

// WithContent sets the answer text.
func (b *ResponseBuilder) WithContent(content string) *ResponseBuilder {
	b.content = content
	return b
}

// WithCitations sets the top-level citations list (chat-completions shape only).
func (b *ResponseBuilder) WithCitations(urls ...string) *ResponseBuilder {
	b.citations = urls
	return b
}

// WithUsage sets the token counts.
func (b *ResponseBuilder) WithUsage(prompt, completion int) *ResponseBuilder {
	b.prompt = prompt
	b.completion = completion
	return b
}

// Build returns a chat-completions body: choices[0].message.content.
func (b *ResponseBuilder) Build() string {
	data := map[string]any{
		"id":      "cmpl-test",
		"object":  "chat.completion",
		"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": b.content}}},
		"usage": map[string]any{
			"prompt_tokens":     b.prompt,
			"completion_tokens": b.completion,
			"total_tokens":      b.prompt + b.completion,
		},
	}
	if b.citations != nil {
		data["citations"] = b.citations
	}
	return marshal(data)
}

// BuildMessages returns a messages body: content[0].text.
func (b *ResponseBuilder) BuildMessages() string {
	return marshal(map[string]any{
		"id":      "msg-test",
		"type":    "message",
		"role":    "assistant",
		"content": []any{map[string]any{"type": "text", "text": b.content}},
		"usage":   map[string]any{"input_tokens": b.prompt, "output_tokens": b.completion},
	})
}

func marshal(data map[string]any) string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// RecordedRequest is one request seen by an Upstream.
type RecordedRequest struct {
	Path    string
	Header  http.Header
	Payload map[string]any
}

// Model returns the "model" field of the payload.
func (r RecordedRequest) Model() string {
	model, _ := r.Payload["model"].(string)
	return model
}

// Upstream is an httptest server standing in for a model API. Each request
// is recorded and answered by the handler.
type Upstream struct {
	*httptest.Server
	mu       sync.Mutex
	requests []RecordedRequest
}

// UpstreamHandler answers one recorded request with a status and body.
type UpstreamHandler func(req RecordedRequest) (int, string)

// NewUpstream starts an Upstream. Close it when done.
func NewUpstream(handler UpstreamHandler) *Upstream {
	u := &Upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		payload := map[string]any{}
		_ = json.Unmarshal(raw, &payload)
		req := RecordedRequest{Path: r.URL.Path, Header: r.Header.Clone(), Payload: payload}

		u.mu.Lock()
		u.requests = append(u.requests, req)
		u.mu.Unlock()

		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	return u
}

// Requests returns a copy of all recorded requests.
func (u *Upstream) Requests() []RecordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]RecordedRequest(nil), u.requests...)
}

// RequestsTo returns the recorded requests whose path ends with suffix.
func (u *Upstream) RequestsTo(suffix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range u.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

// SequencedProvider returns responses in sequence for both stages.
// After all responses are exhausted, it returns the last response repeatedly.
// Search citations are the URLs found in the response.
type SequencedProvider struct {
	responses []string
	index     atomic.Int64
}

// NewSequencedProvider creates a provider that returns responses in order.
func NewSequencedProvider(responses ...string) *SequencedProvider {
	if len(responses) == 0 {
		responses = []string{"no responses configured"}
	}
	return &SequencedProvider{
		responses: responses,
	}
}

func (p *SequencedProvider) next() string {
	idx := int(p.index.Add(1) - 1)
	// Clamp to last response if exhausted
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx]
}

// Search returns the next response with its URLs as citations.
func (p *SequencedProvider) Search(_ context.Context, _ []pipelines.Message) (*pipelines.SearchResult, error) {
	text := p.next()
	return &pipelines.SearchResult{
		Text:      text,
		Citations: pipelines.ExtractCitations(text),
		Usage:     pipelines.TokenUsage{Prompt: 100, Completion: 50, Total: 150},
	}, nil
}

// Synthesize returns the next response.
func (p *SequencedProvider) Synthesize(_ context.Context, _, _ string) (*pipelines.ProviderResponse, error) {
	return &pipelines.ProviderResponse{
		Content: p.next(),
		Usage:   pipelines.TokenUsage{Prompt: 100, Completion: 50, Total: 150},
	}, nil
}

// Name returns the provider identifier.
func (*SequencedProvider) Name() string {
	return SequencedProviderName
}

// CallCount returns the number of calls made.
func (p *SequencedProvider) CallCount() int {
	return int(p.index.Load())
}

// Reset resets the call counter.
func (p *SequencedProvider) Reset() {
	p.index.Store(0)
}

// FailingProvider fails a specified number of times before succeeding.
// Failures are upstream API errors with the configured status.
type FailingProvider struct {
	failCount    int
	currentCount atomic.Int64
	successResp  string
	status       int
}

// NewFailingProvider creates a provider that fails failCount times then succeeds.
func NewFailingProvider(failCount int) *FailingProvider {
	return &FailingProvider{
		failCount:   failCount,
		successResp: "recovered https://example.com/recovered",
		status:      http.StatusServiceUnavailable,
	}
}

// WithSuccessResponse sets the response returned after failures are exhausted.
func (p *FailingProvider) WithSuccessResponse(response string) *FailingProvider {
	p.successResp = response
	return p
}

// WithStatus sets the HTTP status reported by failures.
func (p *FailingProvider) WithStatus(status int) *FailingProvider {
	p.status = status
	return p
}

func (p *FailingProvider) attempt() error {
	count := p.currentCount.Add(1)
	if int(count) <= p.failCount {
		return &pipelines.UpstreamAPIError{
			Provider:   FailingProviderName,
			StatusCode: p.status,
			Body:       fmt.Sprintf("simulated failure (attempt %d/%d)", count, p.failCount),
		}
	}
	return nil
}

// Search fails until failCount is reached, then succeeds.
func (p *FailingProvider) Search(_ context.Context, _ []pipelines.Message) (*pipelines.SearchResult, error) {
	if err := p.attempt(); err != nil {
		return nil, err
	}
	return &pipelines.SearchResult{
		Text:      p.successResp,
		Citations: pipelines.ExtractCitations(p.successResp),
	}, nil
}

// Synthesize fails until failCount is reached, then succeeds.
func (p *FailingProvider) Synthesize(_ context.Context, _, _ string) (*pipelines.ProviderResponse, error) {
	if err := p.attempt(); err != nil {
		return nil, err
	}
	return &pipelines.ProviderResponse{Content: p.successResp}, nil
}

// Name returns the provider identifier.
func (*FailingProvider) Name() string {
	return FailingProviderName
}

// CallCount returns the number of calls made.
func (p *FailingProvider) CallCount() int {
	return int(p.currentCount.Load())
}

// Reset resets the call counter.
func (p *FailingProvider) Reset() {
	p.currentCount.Store(0)
}

// RecordedCall represents a single call to a provider.
type RecordedCall struct {
	Stage    string              // pipelines.StageSearch or pipelines.StageSynthesize
	Messages []pipelines.Message // search calls only
	System   string              // synthesis calls only
	Prompt   string              // synthesis calls only
}

// Provider is both a search and a synthesis provider.
type Provider interface {
	pipelines.SearchProvider
	pipelines.SynthesisProvider
}

// CallRecorder wraps a provider and records all calls made to it.
type CallRecorder struct {
	provider Provider
	calls    []RecordedCall
	mu       sync.Mutex
}

// NewCallRecorder wraps a provider with call recording.
func NewCallRecorder(provider Provider) *CallRecorder {
	return &CallRecorder{
		provider: provider,
		calls:    make([]RecordedCall, 0),
	}
}

func (r *CallRecorder) record(call RecordedCall) {
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
}

// Search delegates to the wrapped provider and records the call.
func (r *CallRecorder) Search(ctx context.Context, messages []pipelines.Message) (*pipelines.SearchResult, error) {
	// Copy messages to avoid aliasing
	msgCopy := make([]pipelines.Message, len(messages))
	copy(msgCopy, messages)
	r.record(RecordedCall{Stage: pipelines.StageSearch, Messages: msgCopy})

	return r.provider.Search(ctx, messages)
}

// Synthesize delegates to the wrapped provider and records the call.
func (r *CallRecorder) Synthesize(ctx context.Context, system, prompt string) (*pipelines.ProviderResponse, error) {
	r.record(RecordedCall{Stage: pipelines.StageSynthesize, System: system, Prompt: prompt})
	return r.provider.Synthesize(ctx, system, prompt)
}

// Name returns the wrapped provider's name.
func (r *CallRecorder) Name() string {
	return r.provider.Name()
}

// Calls returns a copy of all recorded calls.
func (r *CallRecorder) Calls() []RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]RecordedCall, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// CallCount returns the number of calls recorded.
func (r *CallRecorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// LastCall returns the most recent call, or nil if no calls made.
func (r *CallRecorder) LastCall() *RecordedCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.calls) == 0 {
		return nil
	}
	call := r.calls[len(r.calls)-1]
	return &call
}

// Reset clears all recorded calls.
func (r *CallRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make([]RecordedCall, 0)
}

// LatencyProvider wraps a provider and adds artificial latency.
type LatencyProvider struct {
	provider Provider
	delay    time.Duration
}

// NewLatencyProvider wraps a provider with artificial delay.
// The delay is applied before each provider call and respects context cancellation.
func NewLatencyProvider(provider Provider, delay time.Duration) *LatencyProvider {
	return &LatencyProvider{
		provider: provider,
		delay:    delay,
	}
}

func (p *LatencyProvider) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(p.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search adds latency then delegates to the wrapped provider.
func (p *LatencyProvider) Search(ctx context.Context, messages []pipelines.Message) (*pipelines.SearchResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.provider.Search(ctx, messages)
}

// Synthesize adds latency then delegates to the wrapped provider.
func (p *LatencyProvider) Synthesize(ctx context.Context, system, prompt string) (*pipelines.ProviderResponse, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.provider.Synthesize(ctx, system, prompt)
}

// Name returns the wrapped provider's name.
func (p *LatencyProvider) Name() string {
	return p.provider.Name()
}

// UsageAccumulator tracks total token usage across multiple calls.
type UsageAccumulator struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	totalTokens      atomic.Int64
	callCount        atomic.Int64
}

// NewUsageAccumulator creates a new usage accumulator.
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{}
}

// AddUsage accumulates usage directly.
func (a *UsageAccumulator) AddUsage(usage pipelines.TokenUsage) {
	a.promptTokens.Add(int64(usage.Prompt))
	a.completionTokens.Add(int64(usage.Completion))
	a.totalTokens.Add(int64(usage.Total))
	a.callCount.Add(1)
}

// PromptTokens returns total prompt tokens.
func (a *UsageAccumulator) PromptTokens() int {
	return int(a.promptTokens.Load())
}

// CompletionTokens returns total completion tokens.
func (a *UsageAccumulator) CompletionTokens() int {
	return int(a.completionTokens.Load())
}

// TotalTokens returns total tokens.
func (a *UsageAccumulator) TotalTokens() int {
	return int(a.totalTokens.Load())
}

// CallCount returns number of calls accumulated.
func (a *UsageAccumulator) CallCount() int {
	return int(a.callCount.Load())
}

// Reset clears all accumulated values.
func (a *UsageAccumulator) Reset() {
	a.promptTokens.Store(0)
	a.completionTokens.Store(0)
	a.totalTokens.Store(0)
	a.callCount.Store(0)
}
