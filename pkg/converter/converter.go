// Package converter implements the dialect converter (C3, spec §4.3):
// source dialect -> neutral IR -> target dialect, including the
// tool-field removal / prompt-injection policy and the non-streaming
// tool-call extraction pass.
package converter

import (
	"github.com/relaybridge/toolbridge/pkg/dialect/oai"
	"github.com/relaybridge/toolbridge/pkg/dialect/oll"
	"github.com/relaybridge/toolbridge/pkg/envelope"
	"github.com/relaybridge/toolbridge/pkg/ir"
	"github.com/relaybridge/toolbridge/pkg/promptinject"
)

// Dialect identifies a wire dialect.
type Dialect string

const (
	DialectOAI Dialect = "oai"
	DialectOLL Dialect = "oll"
)

// ToolPolicy controls what happens to a request's native tool fields when
// translating toward a backend (spec §4.3).
type ToolPolicy struct {
	// BackendSupportsNativeTools reports whether the chosen upstream
	// speaks native tool-calling for its dialect. When false, native tool
	// fields are stripped and prompt-injected instructions take over.
	BackendSupportsNativeTools bool

	// PassTools, when true, retains native tool fields on the wire *in
	// addition to* the injected instructions, for mixed-compatibility
	// backends (spec §4.3: "passTools = true").
	PassTools bool
}

// DecodeRequest parses a dialect-specific request body into neutral IR.
func DecodeRequest(dialect Dialect, body []byte) (ir.Request, error) {
	switch dialect {
	case DialectOAI:
		return oai.DecodeRequest(body)
	default:
		return oll.DecodeRequest(body)
	}
}

// ConvertRequest translates a request already in neutral IR toward a
// backend dialect, applying the tool policy (spec §4.3) and returning the
// encoded wire body ready to send upstream.
//
// Per spec §9 Open Question 2, a native tool_calls frame always takes
// precedence over an envelope-derived one at response time; at request
// time this function's only job is to decide whether native tool fields
// and/or synthetic instructions go out on the wire.
func ConvertRequest(req ir.Request, target Dialect, policy ToolPolicy) []byte {
	out := req

	if len(req.Tools) > 0 {
		if !policy.BackendSupportsNativeTools {
			out.Messages = promptinject.Splice(req.Messages, req.Tools)
			if !policy.PassTools {
				out.Tools = nil
				out.ToolChoice = nil
			}
		} else if policy.PassTools {
			out.Messages = promptinject.Splice(req.Messages, req.Tools)
		}
	}

	switch target {
	case DialectOAI:
		return oai.EncodeRequest(out)
	default:
		return oll.EncodeRequest(out)
	}
}

// ConvertResponse decodes a non-streaming upstream response in
// sourceDialect, runs the envelope extraction pass over assistant text
// when knownTools is non-empty (spec §4.3's "response conversion" rule),
// and re-encodes the result in targetDialect. The pass is skipped when the
// upstream response already carries a native tool call, which then wins.
func ConvertResponse(sourceDialect Dialect, body []byte, targetDialect Dialect, model string, knownTools ir.KnownToolSet) ([]byte, error) {
	var result ir.Result
	var err error
	switch sourceDialect {
	case DialectOAI:
		result, err = oai.DecodeResponse(body)
	default:
		result, err = oll.DecodeResponse(body)
	}
	if err != nil {
		return nil, err
	}

	if len(result.ToolCalls) == 0 && len(knownTools) > 0 && result.Text != "" {
		if call, ok := envelope.Extract(result.Text, knownTools); ok {
			result.ToolCalls = []ir.ToolCall{{Name: call.Name, Arguments: call.Arguments}}
			result.Text = ""
			result.FinishReason = ir.FinishReasonToolCalls
		}
	}

	switch targetDialect {
	case DialectOAI:
		return oai.EncodeResponse(result, model), nil
	default:
		return oll.EncodeResponse(result, model), nil
	}
}
