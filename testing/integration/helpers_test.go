package integration

import (
	"net/http"
	"strings"

	pipelines "github.com/neuromechanist/openwebui-piplines"
	ptest "github.com/neuromechanist/openwebui-piplines/testing"
)

// lastContent returns the content of the final message in a chat payload.
func lastContent(req ptest.RecordedRequest) string {
	messages, _ := req.Payload["messages"].([]any)
	if len(messages) == 0 {
		return ""
	}
	msg, _ := messages[len(messages)-1].(map[string]any)
	content, _ := msg["content"].(string)
	return content
}

// echoUpstream answers search calls with "found <query>" plus a source URL
// derived from the query, and synthesis calls with a fixed answer.
func echoUpstream() *ptest.Upstream {
	return ptest.NewUpstream(func(req ptest.RecordedRequest) (int, string) {
		if strings.HasSuffix(req.Path, "/messages") {
			return http.StatusOK, ptest.NewResponseBuilder().WithContent("synthesized").WithUsage(7, 3).BuildMessages()
		}
		if !strings.Contains(req.Model(), "sonar") {
			return http.StatusOK, ptest.NewResponseBuilder().WithContent("synthesized").WithUsage(7, 3).Build()
		}
		query := lastContent(req)
		return http.StatusOK, ptest.NewResponseBuilder().
			WithContent("found " + query + " at https://src.io/" + query).
			WithCitations("https://src.io/" + query).
			WithUsage(11, 5).
			Build()
	})
}

func turns(texts ...string) []pipelines.ChatMessage {
	messages := make([]pipelines.ChatMessage, 0, len(texts))
	for i, text := range texts {
		role := pipelines.RoleUser
		if i%2 == 1 {
			role = pipelines.RoleAssistant
		}
		messages = append(messages, pipelines.ChatMessage{Role: role, Content: pipelines.Text(text)})
	}
	return messages
}
