package oll

import (
	"encoding/json"
	"fmt"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

// DecodeRequest parses an OLL request body into neutral IR.
func DecodeRequest(body []byte) (ir.Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, fmt.Errorf("decode oll request: %w", err)
	}

	out := ir.Request{
		Model:  req.Model,
		Stream: req.Stream,
	}
	if req.Format == "json" {
		out.ResponseFormat = ir.ResponseFormatJSON
	} else {
		out.ResponseFormat = ir.ResponseFormatText
	}

	out.Messages = make([]ir.Message, len(req.Messages))
	for i, m := range req.Messages {
		out.Messages[i] = decodeMessage(m)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ir.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	if req.Options != nil {
		opts := req.Options
		out.MaxTokens = opts.NumPredict
		out.Temperature = opts.Temperature
		out.TopP = opts.TopP
		out.TopK = opts.TopK
		out.RepetitionPenalty = opts.RepeatPenalty
		out.Seed = opts.Seed

		ollExt := out.Extensions.EnsureOLL()
		ollExt.TopK = opts.TopK
		ollExt.RepetitionPenalty = opts.RepeatPenalty
		ollExt.Seed = opts.Seed
	}

	return out, nil
}

func decodeMessage(m wireMessage) ir.Message {
	msg := ir.Message{Role: ir.Role(m.Role)}
	if m.Content != "" {
		msg.Content = []ir.ContentPart{ir.TextContent{Text: m.Content}}
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg
}

// EncodeRequest renders neutral IR as an OLL request body. Multimodal
// content collapses to newline-joined text per spec §4.3 message
// normalization (ir.Flatten already implements that rule).
func EncodeRequest(req ir.Request) []byte {
	wire := Request{
		Model:  req.Model,
		Stream: req.Stream,
	}
	if req.ResponseFormat == ir.ResponseFormatJSON {
		wire.Format = "json"
	}

	wire.Messages = make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		wire.Messages[i] = wireMessage{
			Role:    string(m.Role),
			Content: ir.Flatten(m.Content),
		}
		for _, tc := range m.ToolCalls {
			wire.Messages[i].ToolCalls = append(wire.Messages[i].ToolCalls, wireToolCall{
				Function: wireToolFunction{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
	}

	for _, t := range req.Tools {
		wire.Tools = append(wire.Tools, wireTool{
			Type: "function",
			Function: wireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	opts := &wireOptions{}
	hasOpts := false
	if req.MaxTokens != nil {
		opts.NumPredict = req.MaxTokens
		hasOpts = true
	}
	if req.Temperature != nil {
		opts.Temperature = req.Temperature
		hasOpts = true
	}
	if req.TopP != nil {
		opts.TopP = req.TopP
		hasOpts = true
	}
	topK, repPenalty, seed := req.TopK, req.RepetitionPenalty, req.Seed
	if req.Extensions.OLL != nil {
		if req.Extensions.OLL.TopK != nil {
			topK = req.Extensions.OLL.TopK
		}
		if req.Extensions.OLL.RepetitionPenalty != nil {
			repPenalty = req.Extensions.OLL.RepetitionPenalty
		}
		if req.Extensions.OLL.Seed != nil {
			seed = req.Extensions.OLL.Seed
		}
	}
	if topK != nil {
		opts.TopK = topK
		hasOpts = true
	}
	if repPenalty != nil {
		opts.RepeatPenalty = repPenalty
		hasOpts = true
	}
	if seed != nil {
		opts.Seed = seed
		hasOpts = true
	}
	if hasOpts {
		wire.Options = opts
	}

	return marshal(wire)
}

// DecodeResponse parses an OLL non-streaming response body into neutral
// Result.
func DecodeResponse(body []byte) (ir.Result, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return ir.Result{}, fmt.Errorf("decode oll response: %w", err)
	}

	result := ir.Result{
		Text:         resp.Message.Content,
		FinishReason: decodeFinishReason(resp.DoneReason),
		Usage: ir.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
			TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
		},
		Raw: body,
	}
	for _, tc := range resp.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ir.ToolCall{
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(result.ToolCalls) > 0 {
		result.FinishReason = ir.FinishReasonToolCalls
	}
	return result, nil
}

// EncodeResponse renders a neutral Result as an OLL non-streaming response
// body.
func EncodeResponse(result ir.Result, model string) []byte {
	msg := wireMessage{Role: "assistant", Content: result.Text}
	for _, tc := range result.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
			Function: wireToolFunction{Name: tc.Name, Arguments: tc.Arguments},
		})
	}

	resp := Response{
		Model:      model,
		Message:    msg,
		Done:       true,
		DoneReason: encodeFinishReason(result.FinishReason),
		wireUsage: wireUsage{
			PromptEvalCount: result.Usage.InputTokens,
			EvalCount:       result.Usage.OutputTokens,
		},
	}
	return marshal(resp)
}

func decodeFinishReason(reason string) ir.FinishReason {
	switch reason {
	case "stop":
		return ir.FinishReasonStop
	case "length":
		return ir.FinishReasonLength
	case "":
		return ir.FinishReasonOther
	default:
		return ir.FinishReasonOther
	}
}

func encodeFinishReason(reason ir.FinishReason) string {
	switch reason {
	case ir.FinishReasonStop:
		return "stop"
	case ir.FinishReasonLength:
		return "length"
	case ir.FinishReasonToolCalls:
		return "stop"
	default:
		return "stop"
	}
}

// EncodeError renders the OLL unary error-body shape (spec §7).
func EncodeError(message string) []byte {
	return marshal(ErrorFrame{Error: message, Done: true})
}
