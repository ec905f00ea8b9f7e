package pipelines

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "upstream", err: &UpstreamAPIError{Provider: "p", StatusCode: 500}, want: KindUpstreamAPI},
		{name: "response", err: &MalformedResponseError{Provider: "p", Field: "choices"}, want: KindMalformedResponse},
		{name: "input", err: &MalformedInputError{Index: 1, Reason: "x"}, want: KindMalformedInput},
		{name: "transport", err: &TransportError{Provider: "p", Err: errors.New("refused")}, want: KindTransport},
		{name: "wrapped", err: fmt.Errorf("stage: %w", &UpstreamAPIError{}), want: KindUpstreamAPI},
		{name: "unknown", err: errors.New("other"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&UpstreamAPIError{Provider: "perplexity", StatusCode: 401, Body: "unauthorized"}, "perplexity API error: 401 - unauthorized"},
		{&MalformedResponseError{Provider: "anthropic", Field: "content[0].text"}, "anthropic response missing content[0].text"},
		{&MalformedInputError{Index: -1, Reason: "empty"}, "malformed input: empty"},
		{&MalformedInputError{Index: 3, Reason: "no text"}, "malformed input at message 3: no text"},
		{&TransportError{Provider: "openrouter", Err: errors.New("dial tcp")}, "openrouter request failed: dial tcp"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	if !errors.Is(&TransportError{Err: cause}, cause) {
		t.Error("TransportError should unwrap")
	}
	if !errors.Is(&MalformedResponseError{Err: cause}, cause) {
		t.Error("MalformedResponseError should unwrap")
	}
}

func TestFormatError(t *testing.T) {
	got := FormatError(&UpstreamAPIError{Provider: "p", StatusCode: 500, Body: "boom"})
	if got != "Error: p API error: 500 - boom" {
		t.Errorf("Unexpected %q", got)
	}
}
