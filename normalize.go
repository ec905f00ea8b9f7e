package pipelines

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ContentBlock is one typed block of a structured message.
// Only "text" blocks carry meaning here.
type ContentBlock struct {
	Type string  `json:"type"`
	Text *string `json:"text,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: &text}
}

// Content is either plain text or an ordered list of content blocks.
// The zero value holds neither and fails to flatten.
type Content struct {
	text   *string
	blocks []ContentBlock
}

// Text returns content holding plain text.
func Text(s string) Content {
	return Content{text: &s}
}

// Blocks returns content holding the given blocks.
func Blocks(blocks ...ContentBlock) Content {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return Content{blocks: blocks}
}

// IsText reports whether the content is plain text.
func (c Content) IsText() bool {
	return c.text != nil
}

// Flatten resolves the content to flat text.
// Plain text is returned verbatim; for blocks the first block's text wins.
func (c Content) Flatten() (string, error) {
	switch {
	case c.text != nil:
		return *c.text, nil
	case c.blocks == nil:
		return "", fmt.Errorf("content is missing")
	case len(c.blocks) == 0:
		return "", fmt.Errorf("content block list is empty")
	case c.blocks[0].Text == nil:
		return "", fmt.Errorf("first content block (type %q) has no text field", c.blocks[0].Type)
	default:
		return *c.blocks[0].Text, nil
	}
}

// MarshalJSON encodes text as a JSON string and blocks as an array.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.text != nil {
		return json.Marshal(*c.text)
	}
	if c.blocks == nil {
		return []byte("null"), nil
	}
	return json.Marshal(c.blocks)
}

// UnmarshalJSON accepts a JSON string, an array of blocks, or null.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c.text = &s
		return nil
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return &MalformedInputError{Index: -1, Reason: fmt.Sprintf("content blocks: %v", err)}
		}
		if blocks == nil {
			blocks = []ContentBlock{}
		}
		c.blocks = blocks
		return nil
	default:
		return &MalformedInputError{Index: -1, Reason: "content must be a string or a list of blocks"}
	}
}

// ChatMessage is a caller-supplied message in its heterogeneous form.
type ChatMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PopSystemMessage removes a leading system message.
// Only the first message is inspected; later system messages stay in place.
func PopSystemMessage(messages []ChatMessage) (*ChatMessage, []ChatMessage) {
	if len(messages) == 0 || messages[0].Role != RoleSystem {
		return nil, messages
	}
	system := messages[0]
	return &system, messages[1:]
}

// Conversation is a normalized chat history.
// It holds the optional system text out of band and the ordered turns.
type Conversation struct {
	system    string
	hasSystem bool
	turns     []Message
}

// Normalize flattens every message and separates the leading system message.
func Normalize(messages []ChatMessage) (*Conversation, error) {
	conv := &Conversation{}

	system, rest := PopSystemMessage(messages)
	offset := 0
	if system != nil {
		text, err := system.Content.Flatten()
		if err != nil {
			return nil, &MalformedInputError{Index: 0, Reason: err.Error()}
		}
		conv.system = text
		conv.hasSystem = true
		offset = 1
	}

	conv.turns = make([]Message, 0, len(rest))
	for i, msg := range rest {
		text, err := msg.Content.Flatten()
		if err != nil {
			return nil, &MalformedInputError{Index: i + offset, Reason: err.Error()}
		}
		conv.turns = append(conv.turns, Message{Role: msg.Role, Content: text})
	}

	return conv, nil
}

// System returns the extracted system text, if one was present.
func (c *Conversation) System() (string, bool) {
	return c.system, c.hasSystem
}

// Len returns the number of turns, not counting the system message.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Turns returns a copy of all turns in chronological order.
func (c *Conversation) Turns() []Message {
	turns := make([]Message, len(c.turns))
	copy(turns, c.turns)
	return turns
}

// SearchMessages returns the turns with the system text re-prepended as a
// leading system entry. This is the input of the search stage.
func (c *Conversation) SearchMessages() []Message {
	messages := make([]Message, 0, len(c.turns)+1)
	if c.hasSystem {
		messages = append(messages, Message{Role: RoleSystem, Content: c.system})
	}
	return append(messages, c.turns...)
}

// History returns every turn except the last one, oldest first.
func (c *Conversation) History() []Message {
	if len(c.turns) == 0 {
		return []Message{}
	}
	history := make([]Message, len(c.turns)-1)
	copy(history, c.turns[:len(c.turns)-1])
	return history
}

// Query returns the flat text of the last turn.
func (c *Conversation) Query() (string, error) {
	if len(c.turns) == 0 {
		return "", &MalformedInputError{Index: -1, Reason: "conversation has no turns"}
	}
	return c.turns[len(c.turns)-1].Content, nil
}
