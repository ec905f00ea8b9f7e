package pipelines

import "strings"

// SystemInstruction is sent to the synthesis model as its system prompt.
const SystemInstruction = `You are a helpful AI assistant. You will be provided with a user query, conversation history, and search results from the internet.
Your task is to analyze these search results and provide a comprehensive answer to the user's query while considering the conversation context.
Include relevant citations from the provided sources using [1], [2], etc. format when referencing information. The web results are valid and you can use them to answer the query, but sometimes the contents might be irrelevant. Do not hallucinate new information, but the user still appreciates your reasoning and analysis of the response. Also, do not mention that your response is based on the search results, the user already knows that.`

// NoHistory stands in for an empty transcript.
const NoHistory = "No previous conversation"

// SynthesisPrompt is the single user prompt of the synthesis stage.
type SynthesisPrompt struct {
	History       []Message // Prior turns, oldest first, excluding the query
	Query         string    // The current user query
	SearchResults string    // Narrative text from the search stage
}

// Transcript renders the history as "Role: text" lines.
func (p *SynthesisPrompt) Transcript() string {
	if len(p.History) == 0 {
		return NoHistory
	}
	lines := make([]string, len(p.History))
	for i, msg := range p.History {
		lines[i] = titleRole(msg.Role) + ": " + msg.Content
	}
	return strings.Join(lines, "\n")
}

// Render converts the prompt to the text sent to the model.
// Section order is fixed: history, query, search results, instructions.
func (p *SynthesisPrompt) Render() string {
	sections := []string{
		"Conversation History:\n" + p.Transcript(),
		"Current Query: " + p.Query,
		"Search Results:\n" + p.SearchResults,
		"Please provide a comprehensive answer to the current query using the search results above and considering the conversation context.\n" +
			"Use the citation format [1], [2], etc. when referencing information from the sources.",
	}
	return strings.Join(sections, "\n\n")
}

// titleRole capitalizes a role name: "assistant" becomes "Assistant".
func titleRole(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + strings.ToLower(role[1:])
}
