// Package promptinject builds and splices the synthetic tool-calling
// instruction block (spec §4.4): a per-tool descriptor, the envelope
// sentinel's formatting rules, and worked examples, aimed at teaching a
// model without native tool-calling to emit an envelope-wrapped XML call.
//
// Grounded on pkg/middleware/add_tool_examples.go's splice-into-existing-
// text shape: that middleware serializes worked examples into a tool's
// description; this package does the analogous thing at the
// conversation-message level instead of the tool-schema level.
package promptinject

import (
	"fmt"
	"strings"

	"github.com/relaybridge/toolbridge/pkg/envelope"
	"github.com/relaybridge/toolbridge/pkg/ir"
)

// instructionMarker lets the idempotence and dedup checks recognize a
// previously-spliced block even if the sentinel itself has since scrolled
// out of a truncated context window.
const instructionMarker = "toolbridge-synthetic-tool-calling-instructions"

// reminderMarker tags the reinjection dedup window's search for a
// previous reminder, independent of the full block.
const reminderMarker = "tool calls are invisible to the user"

// Policy configures reinjection (spec §4.4).
type Policy struct {
	ReinjectEnabled bool
	NMsg            int
	NTok            int
}

// DefaultPolicy matches spec §6's defaults for the reinjection knobs.
func DefaultPolicy() Policy {
	return Policy{ReinjectEnabled: true, NMsg: 20, NTok: 4000}
}

// Build renders the full instruction block for tool set tools.
func Build(tools []ir.Tool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("<!-- %s -->\n", instructionMarker))
	sb.WriteString("You have access to the following tools. To call one, respond with ")
	sb.WriteString("an XML element named after the tool, wrapped in ")
	sb.WriteString(envelope.OpeningSentinel)
	sb.WriteString(envelope.ClosingSentinel)
	sb.WriteString(". ")
	sb.WriteString("The tools listed below are the ONLY tools available.\n\n")

	for _, t := range tools {
		sb.WriteString(describeTool(t))
		sb.WriteString("\n")
	}

	sb.WriteString("\nExamples:\n\n")
	sb.WriteString(exampleNoParams())
	sb.WriteString("\n")
	sb.WriteString(exampleSingleParam())
	sb.WriteString("\n")
	sb.WriteString(exampleMultiParam())
	sb.WriteString("\n")

	sb.WriteString("Formatting rules:\n")
	sb.WriteString("- Every call must be wrapped in " + envelope.OpeningSentinel + " and " + envelope.ClosingSentinel + ".\n")
	sb.WriteString("- Emit raw XML only: no markdown code fences, no prose inside the envelope.\n")
	sb.WriteString("- Each parameter is a child element named after the parameter.\n")
	sb.WriteString("- Arrays are encoded by repeating the element name once per item.\n")
	sb.WriteString("- Booleans are written as the literal words true or false.\n")
	sb.WriteString("- HTML or code content inside a parameter is written as raw tags, never entity-encoded.\n")
	sb.WriteString("- Objects are nested elements, not JSON text.\n")
	sb.WriteString("- Every opening tag must be matched by a closing tag.\n\n")

	sb.WriteString(fmt.Sprintf("Remember: %s; do not mention the envelope or describe the call in your reply.\n", reminderMarker))

	return sb.String()
}

func describeTool(t ir.Tool) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- %s", t.Name))
	if t.Description != "" {
		sb.WriteString(": " + t.Description)
	}
	sb.WriteString("\n")
	for _, p := range schemaProperties(t.Parameters) {
		marker := "optional"
		if p.required {
			marker = "required"
		}
		sb.WriteString(fmt.Sprintf("  - %s (%s, %s)\n", p.name, p.typ, marker))
	}
	return sb.String()
}

type schemaProperty struct {
	name     string
	required bool
	typ      string
}

// schemaProperties walks a JSON-Schema-shaped Parameters value and
// returns each property's name, required flag, and a display type.
// Best-effort: unrecognized shapes simply yield no properties.
func schemaProperties(params interface{}) []schemaProperty {
	schema, ok := params.(map[string]interface{})
	if !ok {
		return nil
	}
	props, _ := schema["properties"].(map[string]interface{})
	requiredSet := map[string]bool{}
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				requiredSet[name] = true
			}
		}
	}
	out := make([]schemaProperty, 0, len(props))
	for name, def := range props {
		typ := "string"
		if defMap, ok := def.(map[string]interface{}); ok {
			if t, ok := defMap["type"].(string); ok {
				typ = t
			}
		}
		out = append(out, schemaProperty{name: name, required: requiredSet[name], typ: typ})
	}
	return out
}

func exampleNoParams() string {
	return "No-parameter call:\n" +
		envelope.OpeningSentinel + "<list_files></list_files>" + envelope.ClosingSentinel + "\n"
}

func exampleSingleParam() string {
	return "Single-parameter call:\n" +
		envelope.OpeningSentinel + "<get_weather><city>Boise</city></get_weather>" + envelope.ClosingSentinel + "\n"
}

func exampleMultiParam() string {
	return "Multi-parameter call:\n" +
		envelope.OpeningSentinel +
		"<search><query>go proxy</query><limit>5</limit><safe_mode>true</safe_mode></search>" +
		envelope.ClosingSentinel + "\n"
}

// ContainsInstructions reports whether text already carries the sentinel
// or the instruction marker (spec §4.4 idempotence / dedup check).
func ContainsInstructions(text string) bool {
	return strings.Contains(text, envelope.OpeningSentinel) ||
		strings.Contains(text, instructionMarker) ||
		strings.Contains(text, reminderMarker)
}

// Splice inserts the instruction block into messages per spec §4.4's
// placement rules, returning the (possibly unchanged) message list.
// Idempotent: a message list that already carries the instructions is
// returned unmodified.
func Splice(messages []ir.Message, tools []ir.Tool) []ir.Message {
	if len(tools) == 0 {
		return messages
	}
	for _, m := range messages {
		if ContainsInstructions(ir.Flatten(m.Content)) {
			return messages
		}
	}

	block := Build(tools)
	idx := indexOfSystem(messages)
	if idx < 0 {
		preamble := "You are a helpful assistant.\n\n" + block
		out := make([]ir.Message, 0, len(messages)+1)
		out = append(out, ir.TextMessage(ir.RoleSystem, preamble))
		out = append(out, messages...)
		return out
	}

	out := make([]ir.Message, len(messages))
	copy(out, messages)
	existing := ir.Flatten(out[idx].Content)
	out[idx].Content = []ir.ContentPart{ir.TextContent{Text: existing + "\n\n" + block}}
	return out
}

// ShouldReinject decides whether reinjection should fire, per spec §4.4's
// trigger and dedup-window rules. msgsSinceSystem and tokensSinceSystem
// are computed by the caller (the pipeline, which owns the full message
// history); estimateTokens below implements the 4-chars-per-token rule
// for callers that only have raw text.
func ShouldReinject(policy Policy, messages []ir.Message, msgsSinceSystem, tokensSinceSystem int) bool {
	if !policy.ReinjectEnabled {
		return false
	}
	if msgsSinceSystem <= policy.NMsg && tokensSinceSystem <= policy.NTok {
		return false
	}

	window := messages
	if len(window) > 6 {
		window = window[len(window)-6:]
	}
	for _, m := range window {
		if ContainsInstructions(ir.Flatten(m.Content)) {
			return false
		}
	}
	return true
}

// EstimateTokens applies spec §4.4's 4-chars-per-token heuristic.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Reinject appends a reinjection reminder, choosing role per spec §4.4:
// system only if exactly one system message exists so far (placed
// immediately after it), otherwise user (placed at the tail).
func Reinject(messages []ir.Message, tools []ir.Tool) []ir.Message {
	reminder := "Reminder: " + reminderMarker + ". " + Build(tools)

	systemCount := 0
	systemIdx := -1
	for i, m := range messages {
		if m.Role == ir.RoleSystem {
			systemCount++
			systemIdx = i
		}
	}

	out := make([]ir.Message, len(messages))
	copy(out, messages)

	if systemCount == 1 {
		msg := ir.TextMessage(ir.RoleSystem, reminder)
		withInsert := make([]ir.Message, 0, len(out)+1)
		withInsert = append(withInsert, out[:systemIdx+1]...)
		withInsert = append(withInsert, msg)
		withInsert = append(withInsert, out[systemIdx+1:]...)
		return withInsert
	}

	return append(out, ir.TextMessage(ir.RoleUser, reminder))
}

func indexOfSystem(messages []ir.Message) int {
	for i, m := range messages {
		if m.Role == ir.RoleSystem {
			return i
		}
	}
	return -1
}
