// Package ir defines the neutral intermediate representation that dialect
// converters translate requests, responses, and stream chunks through.
package ir

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Content is a sequence of parts;
// after normalization for the wire, non-text parts are dropped and the
// remaining text parts are newline-joined into a single string (see
// Flatten).
type Message struct {
	Role Role

	Content []ContentPart

	// Name optionally identifies the message sender (tool name, user name).
	Name string

	// ToolCallID associates a tool-role message with the call it answers.
	ToolCallID string

	// ToolCalls carries an assistant message's tool invocations, when the
	// message is the model's own call rather than free text.
	ToolCalls []ToolCall
}

// ContentPart is one piece of a message's content. Only TextContent carries
// semantic weight for this proxy; other part types (images, audio, etc.)
// coerce to empty text on the wire per the flatten invariant.
type ContentPart interface {
	contentPart()
}

// TextContent is plain text content.
type TextContent struct {
	Text string
}

func (TextContent) contentPart() {}

// OpaqueContent represents a non-text content part (image, audio, file...)
// that this proxy does not interpret. It carries only enough information to
// be coerced to empty text during flattening; it is never round-tripped.
type OpaqueContent struct {
	Kind string
}

func (OpaqueContent) contentPart() {}

// Flatten collapses a message's content parts into the single string the
// wire format requires: text parts newline-joined, other parts dropped.
func Flatten(parts []ContentPart) string {
	if len(parts) == 1 {
		if t, ok := parts[0].(TextContent); ok {
			return t.Text
		}
	}
	var out string
	for _, p := range parts {
		t, ok := p.(TextContent)
		if !ok {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += t.Text
	}
	return out
}

// TextMessage is a convenience constructor for a single-part text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentPart{TextContent{Text: text}}}
}
