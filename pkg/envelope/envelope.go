// Package envelope implements the synthetic tool-call envelope parser
// (spec §4.1): extracting ExtractedToolCall values out of the XML a model
// emits inside the <toolbridge:calls> sentinel.
//
// Parsing is a scrub-then-parse-then-validate-root-tag pipeline, not a
// hand-rolled regex walk: thinking-region scrub is the only regex step,
// the envelope body itself goes through encoding/xml via a generic node
// tree (the node type below), and only root tags present in the caller's
// known-tool set are ever promoted to a call.
package envelope

import (
	"encoding/json"
	"encoding/xml"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

// Sentinel literals (spec §3, §6). Legacy forms are accepted on input for
// backward compatibility but never produced on output.
const (
	OpeningSentinel = "<toolbridge:calls>"
	ClosingSentinel = "</toolbridge:calls>"

	legacyOpening = "<__toolcall__>"
	legacyClosing = "</__toolcall__>"
)

var thinkingScrubRe = regexp.MustCompile(
	`(?is)` +
		`<think>.*?</think>` + `|` +
		`<thinking>.*?</thinking>` + `|` +
		`◁think▷.*?◁/think▷` + `|` +
		`\[thinking\].*?\[/thinking\]`,
)

// ScrubThinking removes model-reasoning regions so text mentioned inside
// them is never promoted to an actual tool call.
func ScrubThinking(s string) string {
	return thinkingScrubRe.ReplaceAllString(s, "")
}

// normalizeSentinels rewrites legacy envelope delimiters to the primary
// form so the rest of the pipeline only ever has to look for one spelling.
func normalizeSentinels(s string) string {
	s = strings.ReplaceAll(s, legacyOpening, OpeningSentinel)
	s = strings.ReplaceAll(s, legacyClosing, ClosingSentinel)
	return s
}

// Extract returns the last complete tool call found in s, scanning
// envelopes from last to first and, within a given envelope, preferring
// the first element whose tag names a known tool (spec §4.1 tie-break:
// "the model is instructed to emit one call per envelope; multiple is
// out-of-spec but the first is the likely intended call").
//
// Malformed XML or an unknown root tag never propagates an error to the
// caller; Extract simply moves on to the previous envelope, or returns
// (ir.ExtractedToolCall{}, false) if none parse.
func Extract(s string, known ir.KnownToolSet) (ir.ExtractedToolCall, bool) {
	s = normalizeSentinels(ScrubThinking(s))

	openings := allIndexes(s, OpeningSentinel)
	for i := len(openings) - 1; i >= 0; i-- {
		open := openings[i]
		closeAt := strings.Index(s[open+len(OpeningSentinel):], ClosingSentinel)
		if closeAt < 0 {
			continue
		}
		inner := s[open+len(OpeningSentinel) : open+len(OpeningSentinel)+closeAt]
		if call, ok := parseEnvelopeBody(inner, known); ok {
			return call, true
		}
	}
	return ir.ExtractedToolCall{}, false
}

// ExtractAll returns every valid tool call found across every complete
// envelope in s, in document order. Unused by the streaming detector
// today (spec §9 Open Question 1 keeps the first-call-wins contract), but
// kept as a ready entry point if a multi-call contract is adopted later.
func ExtractAll(s string, known ir.KnownToolSet) []ir.ExtractedToolCall {
	s = normalizeSentinels(ScrubThinking(s))

	var calls []ir.ExtractedToolCall
	openings := allIndexes(s, OpeningSentinel)
	for _, open := range openings {
		closeAt := strings.Index(s[open+len(OpeningSentinel):], ClosingSentinel)
		if closeAt < 0 {
			continue
		}
		inner := s[open+len(OpeningSentinel) : open+len(OpeningSentinel)+closeAt]
		if all := parseEnvelopeBodyAll(inner, known); len(all) > 0 {
			calls = append(calls, all...)
		}
	}
	return calls
}

func allIndexes(s, sub string) []int {
	var idx []int
	from := 0
	for {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return idx
		}
		idx = append(idx, from+i)
		from += i + len(sub)
	}
}

// parseEnvelopeBody parses the sibling elements inside one envelope and
// returns the first one whose tag is a known tool.
func parseEnvelopeBody(inner string, known ir.KnownToolSet) (ir.ExtractedToolCall, bool) {
	all := parseEnvelopeBodyAll(inner, known)
	if len(all) == 0 {
		return ir.ExtractedToolCall{}, false
	}
	return all[0], true
}

func parseEnvelopeBodyAll(inner string, known ir.KnownToolSet) []ir.ExtractedToolCall {
	// Any sentinel literal nested inside this envelope (spec §4.2 edge
	// case: opening immediately followed by another opening before a
	// closing) is, by construction, not the boundary we matched on — it is
	// literal content. Escape it so the XML decoder treats it as text
	// rather than choking on an unmatched "<".
	escaped := strings.NewReplacer(
		OpeningSentinel, "&lt;toolbridge:calls&gt;",
		ClosingSentinel, "&lt;/toolbridge:calls&gt;",
	).Replace(inner)

	root, err := decodeSiblings(escaped)
	if err != nil {
		return nil
	}

	var calls []ir.ExtractedToolCall
	for _, child := range root.Nodes {
		if !known.Has(child.XMLName.Local) {
			continue
		}
		calls = append(calls, ir.ExtractedToolCall{
			Name:      child.XMLName.Local,
			Arguments: elementArguments(child),
		})
	}
	return calls
}

// node is a generic XML tree used to decode arbitrary tool-call XML
// without per-tool schemas.
type node struct {
	XMLName xml.Name
	Content string `xml:",chardata"`
	Nodes   []node `xml:",any"`
}

// decodeSiblings wraps inner in a synthetic root element so a strict
// encoding/xml.Decoder can parse a sequence of sibling elements that would
// otherwise not be well-formed XML on their own. Mismatched or unclosed
// tags are a decode error, so a malformed envelope never yields a call.
func decodeSiblings(inner string) (node, error) {
	var root node
	dec := xml.NewDecoder(strings.NewReader("<toolbridge-root>" + inner + "</toolbridge-root>"))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	if err := dec.Decode(&root); err != nil {
		return node{}, err
	}
	return root, nil
}

// elementArguments converts a tool-call element's children into the
// neutral argument object: nested elements become nested objects, a
// repeated element name becomes an array, leaves parse as bool, then
// number, then string.
func elementArguments(n node) map[string]interface{} {
	args := make(map[string]interface{}, len(n.Nodes))
	if len(n.Nodes) == 0 {
		return args
	}
	counts := make(map[string]int, len(n.Nodes))
	for _, c := range n.Nodes {
		counts[c.XMLName.Local]++
	}
	for _, c := range n.Nodes {
		name := c.XMLName.Local
		val := nodeValue(c)
		if counts[name] > 1 {
			arr, _ := args[name].([]interface{})
			args[name] = append(arr, val)
			continue
		}
		args[name] = val
	}
	return args
}

func nodeValue(n node) interface{} {
	if len(n.Nodes) == 0 {
		return parsePrimitive(strings.TrimSpace(n.Content))
	}
	obj := make(map[string]interface{}, len(n.Nodes))
	counts := make(map[string]int, len(n.Nodes))
	for _, c := range n.Nodes {
		counts[c.XMLName.Local]++
	}
	for _, c := range n.Nodes {
		name := c.XMLName.Local
		val := nodeValue(c)
		if counts[name] > 1 {
			arr, _ := obj[name].([]interface{})
			obj[name] = append(arr, val)
			continue
		}
		obj[name] = val
	}
	return obj
}

// parsePrimitive applies the bool -> number -> json-object/array -> string
// precedence spec §3 requires for envelope leaf text. A model sometimes
// emits a JSON-shaped argument as raw leaf text (e.g. a list argument
// written as `[1, 2, 3]` rather than repeated sibling elements); that text
// is frequently near-miss JSON (trailing commas, unquoted keys), so a
// failed strict unmarshal gets one repair attempt before falling back to
// the plain string.
func parsePrimitive(s string) interface{} {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if looksLikeJSON(s) {
		if v, ok := parseJSONLeaf(s); ok {
			return v
		}
	}
	return s
}

func looksLikeJSON(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[':
		return true
	default:
		return false
	}
}

func parseJSONLeaf(s string) (interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v, true
	}
	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, false
	}
	return v, true
}
