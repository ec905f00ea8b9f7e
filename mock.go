package pipelines

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockProvider simulates both stages for testing.
// Search echoes the last message and cites the URLs it finds in it;
// Synthesize echoes the current query out of the prompt.
type MockProvider struct {
	name      string
	available bool

	mu          sync.Mutex
	lastSystem  string
	lastPrompt  string
	lastHistory []Message
}

// NewMockProvider creates a new mock provider for testing.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithName("mock")
}

// NewMockProviderWithName creates a new mock provider with a specific name.
func NewMockProviderWithName(name string) *MockProvider {
	return &MockProvider{
		name:      name,
		available: true,
	}
}

// Name returns the provider name.
func (m *MockProvider) Name() string {
	return m.name
}

// SetAvailable sets the availability status (for testing failures).
func (m *MockProvider) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = available
}

func (m *MockProvider) unavailable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.available {
		return nil
	}
	return &UpstreamAPIError{Provider: m.name, StatusCode: 503, Body: "unavailable"}
}

// Search returns "Search: <last message>" with the URLs of the last message as citations.
func (m *MockProvider) Search(_ context.Context, messages []Message) (*SearchResult, error) {
	if err := m.unavailable(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastHistory = append([]Message(nil), messages...)
	m.mu.Unlock()

	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &SearchResult{
		Text:      "Search: " + last,
		Citations: ExtractCitations(last),
		Usage:     TokenUsage{Prompt: len(messages), Completion: 1, Total: len(messages) + 1},
	}, nil
}

// Synthesize returns "Answer: <current query>".
func (m *MockProvider) Synthesize(_ context.Context, system, prompt string) (*ProviderResponse, error) {
	if err := m.unavailable(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.lastSystem = system
	m.lastPrompt = prompt
	m.mu.Unlock()

	return &ProviderResponse{
		Content: "Answer: " + extractQuery(prompt),
		Usage:   TokenUsage{Prompt: 1, Completion: 1, Total: 2},
	}, nil
}

// LastPrompt returns the most recent synthesis prompt.
func (m *MockProvider) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// LastSystem returns the most recent synthesis system instruction.
func (m *MockProvider) LastSystem() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSystem
}

// LastSearch returns the most recent search history.
func (m *MockProvider) LastSearch() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.lastHistory...)
}

// extractQuery pulls the current query out of a rendered synthesis prompt.
func extractQuery(prompt string) string {
	const marker = "Current Query: "
	if idx := strings.Index(prompt, marker); idx != -1 {
		start := idx + len(marker)
		end := strings.Index(prompt[start:], "\n\n")
		if end == -1 {
			return strings.TrimSpace(prompt[start:])
		}
		return strings.TrimSpace(prompt[start : start+end])
	}
	return ""
}

// NewMockProviderWithResponse creates a mock whose search and synthesis
// return fixed values.
func NewMockProviderWithResponse(text string, citations []string, answer string) *FixedProvider {
	return &FixedProvider{Text: text, Citations: citations, Answer: answer}
}

// FixedProvider always returns the same search result and answer.
type FixedProvider struct {
	Text      string
	Citations []string
	Answer    string
}

// Name returns "fixed".
func (*FixedProvider) Name() string { return "fixed" }

// Search returns the fixed search result.
func (f *FixedProvider) Search(context.Context, []Message) (*SearchResult, error) {
	return &SearchResult{Text: f.Text, Citations: append([]string(nil), f.Citations...)}, nil
}

// Synthesize returns the fixed answer.
func (f *FixedProvider) Synthesize(context.Context, string, string) (*ProviderResponse, error) {
	return &ProviderResponse{Content: f.Answer}, nil
}

// NewMockProviderWithCallback creates a mock that calls functions to generate responses.
// A nil callback fails the corresponding stage.
func NewMockProviderWithCallback(
	search func(messages []Message) (*SearchResult, error),
	synthesize func(system, prompt string) (*ProviderResponse, error),
) *CallbackProvider {
	return &CallbackProvider{search: search, synthesize: synthesize}
}

// CallbackProvider delegates both stages to callbacks.
type CallbackProvider struct {
	search     func([]Message) (*SearchResult, error)
	synthesize func(string, string) (*ProviderResponse, error)
}

// Name returns "callback".
func (*CallbackProvider) Name() string { return "callback" }

// Search calls the search callback.
func (c *CallbackProvider) Search(_ context.Context, messages []Message) (*SearchResult, error) {
	if c.search == nil {
		return nil, fmt.Errorf("callback: no search callback")
	}
	return c.search(messages)
}

// Synthesize calls the synthesis callback.
func (c *CallbackProvider) Synthesize(_ context.Context, system, prompt string) (*ProviderResponse, error) {
	if c.synthesize == nil {
		return nil, fmt.Errorf("callback: no synthesis callback")
	}
	return c.synthesize(system, prompt)
}
