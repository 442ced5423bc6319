package ir

// Tool describes a function the model may invoke. Name is the sole
// identifier the streaming detector uses to validate envelope root tags
// (the known-tool set, spec §3).
type Tool struct {
	Name        string
	Description string
	Parameters  interface{} // JSON-Schema object
}

// ToolChoiceType selects how a model should use the declared tools.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice constrains which tool(s) a model may call.
type ToolChoice struct {
	Type     ToolChoiceType
	ToolName string // set when Type == ToolChoiceTool
}

// ToolCall is a native tool invocation, dialect-neutral: Arguments is
// always a decoded object here; dialect encoders render it as a
// string-of-JSON (OAI) or an object (OLL) on the wire.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ExtractedToolCall is what the envelope parser (C1) produces: the neutral
// form before an ID is minted or a dialect encoding is chosen.
type ExtractedToolCall struct {
	Name      string
	Arguments map[string]interface{}
}

// KnownToolSet is the allowlist of tool names declared on an inbound
// request. It is the only set the streaming detector consults when
// deciding whether an XML root tag names a real tool call.
type KnownToolSet map[string]struct{}

// NewKnownToolSet builds a KnownToolSet from a tool list.
func NewKnownToolSet(tools []Tool) KnownToolSet {
	set := make(KnownToolSet, len(tools))
	for _, t := range tools {
		set[t.Name] = struct{}{}
	}
	return set
}

// Has reports whether name is a declared tool.
func (s KnownToolSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set's members in no particular order.
func (s KnownToolSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	return names
}
