package pipelines

import (
	"strings"
	"testing"
)

func TestSynthesisPromptTranscript(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		p := &SynthesisPrompt{Query: "q"}
		if p.Transcript() != NoHistory {
			t.Errorf("Expected placeholder, got %q", p.Transcript())
		}
	})

	t.Run("roles capitalized in order", func(t *testing.T) {
		p := &SynthesisPrompt{History: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: "USER", Content: "again"},
		}}
		want := "User: hi\nAssistant: hello\nUser: again"
		if p.Transcript() != want {
			t.Errorf("Expected %q, got %q", want, p.Transcript())
		}
	})
}

func TestSynthesisPromptRender(t *testing.T) {
	p := &SynthesisPrompt{
		History:       []Message{{Role: RoleUser, Content: "earlier"}},
		Query:         "now?",
		SearchResults: "found [1]",
	}
	rendered := p.Render()

	sections := []string{
		"Conversation History:\nUser: earlier",
		"Current Query: now?",
		"Search Results:\nfound [1]",
		"Use the citation format [1], [2], etc.",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(rendered, section)
		if idx == -1 {
			t.Fatalf("Missing section %q in %q", section, rendered)
		}
		if idx <= last {
			t.Errorf("Section %q out of order", section)
		}
		last = idx
	}
}

func TestSystemInstruction(t *testing.T) {
	for _, want := range []string{"[1], [2]", "Do not hallucinate", "do not mention that your response is based on the search results"} {
		if !strings.Contains(SystemInstruction, want) {
			t.Errorf("System instruction missing %q", want)
		}
	}
}
