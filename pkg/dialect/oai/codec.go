package oai

import (
	"encoding/json"
	"fmt"

	"github.com/relaybridge/toolbridge/pkg/ir"
)

// DecodeRequest parses an OAI request body into neutral IR.
func DecodeRequest(body []byte) (ir.Request, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return ir.Request{}, fmt.Errorf("decode oai request: %w", err)
	}

	out := ir.Request{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Seed:        req.Seed,
		Stop:        req.Stop,
		Stream:      req.Stream,
		N:           req.N,
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
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
	if req.ToolChoice != nil {
		out.ToolChoice = decodeToolChoice(req.ToolChoice)
	}

	if req.Seed != nil {
		out.Extensions.EnsureOAI().Seed = req.Seed
	}
	if req.ResponseFormat != nil {
		out.Extensions.EnsureOAI().ResponseFormatType = req.ResponseFormat.Type
	}

	return out, nil
}

func decodeMessage(m wireMessage) ir.Message {
	msg := ir.Message{
		Role:       ir.Role(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if m.Content != nil {
		msg.Content = []ir.ContentPart{ir.TextContent{Text: *m.Content}}
	}
	for _, tc := range m.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		msg.ToolCalls = append(msg.ToolCalls, ir.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return msg
}

func decodeToolChoice(raw interface{}) *ir.ToolChoice {
	switch v := raw.(type) {
	case string:
		switch v {
		case "auto":
			return &ir.ToolChoice{Type: ir.ToolChoiceAuto}
		case "none":
			return &ir.ToolChoice{Type: ir.ToolChoiceNone}
		case "required":
			return &ir.ToolChoice{Type: ir.ToolChoiceRequired}
		}
	case map[string]interface{}:
		if fn, ok := v["function"].(map[string]interface{}); ok {
			if name, ok := fn["name"].(string); ok {
				return &ir.ToolChoice{Type: ir.ToolChoiceTool, ToolName: name}
			}
		}
	}
	return nil
}

// EncodeRequest renders neutral IR as an OAI request body.
func EncodeRequest(req ir.Request) []byte {
	wire := Request{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      req.Stream,
		N:           req.N,
	}
	if req.Extensions.OAI != nil && req.Extensions.OAI.Seed != nil {
		wire.Seed = req.Extensions.OAI.Seed
	} else {
		wire.Seed = req.Seed
	}
	if req.ResponseFormat == ir.ResponseFormatJSON {
		wire.ResponseFormat = &wireResponseFormat{Type: "json_object"}
	}

	wire.Messages = make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		wire.Messages[i] = encodeMessage(m)
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
	if req.ToolChoice != nil {
		wire.ToolChoice = encodeToolChoice(*req.ToolChoice)
	}

	return marshal(wire)
}

func encodeMessage(m ir.Message) wireMessage {
	wm := wireMessage{
		Role:       string(m.Role),
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if len(m.ToolCalls) == 0 || len(m.Content) > 0 {
		text := ir.Flatten(m.Content)
		wm.Content = &text
	}
	for _, tc := range m.ToolCalls {
		args, _ := json.Marshal(tc.Arguments)
		wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: wireToolFunction{
				Name:      tc.Name,
				Arguments: string(args),
			},
		})
	}
	return wm
}

func encodeToolChoice(c ir.ToolChoice) interface{} {
	switch c.Type {
	case ir.ToolChoiceAuto:
		return "auto"
	case ir.ToolChoiceNone:
		return "none"
	case ir.ToolChoiceRequired:
		return "required"
	case ir.ToolChoiceTool:
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": c.ToolName},
		}
	}
	return nil
}

// DecodeResponse parses an OAI non-streaming response body into neutral
// Result.
func DecodeResponse(body []byte) (ir.Result, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return ir.Result{}, fmt.Errorf("decode oai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ir.Result{FinishReason: ir.FinishReasonOther, Raw: body}, nil
	}
	choice := resp.Choices[0]
	result := ir.Result{
		FinishReason: decodeFinishReason(choice.FinishReason),
		Usage: ir.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		Raw: body,
	}
	if choice.Message.Content != nil {
		result.Text = *choice.Message.Content
	}
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		result.ToolCalls = append(result.ToolCalls, ir.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return result, nil
}

// EncodeResponse renders a neutral Result as an OAI non-streaming response
// body.
func EncodeResponse(result ir.Result, model string) []byte {
	msg := wireMessage{Role: "assistant"}
	finishReason := encodeFinishReason(result.FinishReason)
	if len(result.ToolCalls) > 0 {
		for _, tc := range result.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireToolFunction{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		finishReason = "tool_calls"
	} else {
		text := result.Text
		msg.Content = &text
	}

	resp := Response{
		Object:  "chat.completion",
		Model:   model,
		Choices: []wireChoice{{Message: msg, FinishReason: finishReason}},
		Usage: wireUsage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.TotalTokens,
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
	case "tool_calls":
		return ir.FinishReasonToolCalls
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
		return "tool_calls"
	default:
		return "stop"
	}
}

// EncodeError renders the OAI unary error-body shape (spec §7).
func EncodeError(message, errType string) []byte {
	return marshal(ErrorBody{
		Object:  "error",
		Message: message,
		Type:    errType,
	})
}
