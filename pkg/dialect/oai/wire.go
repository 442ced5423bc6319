// Package oai implements the OAI wire dialect: JSON request/response
// bodies and SSE streaming, matching the OpenAI chat-completions shape
// (spec §4.3, §4.5, §6).
package oai

import "encoding/json"

type wireMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	Index    *int             `json:"index,omitempty"`
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  interface{} `json:"parameters,omitempty"`
}

type wireResponseFormat struct {
	Type string `json:"type"`
}

// Request is the OAI chat-completions request body.
type Request struct {
	Model          string              `json:"model"`
	Messages       []wireMessage       `json:"messages"`
	MaxTokens      *int64              `json:"max_tokens,omitempty"`
	Temperature    *float64            `json:"temperature,omitempty"`
	TopP           *float64            `json:"top_p,omitempty"`
	Seed           *int64              `json:"seed,omitempty"`
	Stop           []string            `json:"stop,omitempty"`
	Tools          []wireTool          `json:"tools,omitempty"`
	ToolChoice     interface{}         `json:"tool_choice,omitempty"`
	ResponseFormat *wireResponseFormat `json:"response_format,omitempty"`
	Stream         bool                `json:"stream"`
	N              *int64              `json:"n,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type wireUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is the OAI non-streaming chat-completions response body.
type Response struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   *string        `json:"content,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireStreamChoice struct {
	Index        int       `json:"index"`
	Delta        wireDelta `json:"delta"`
	FinishReason *string   `json:"finish_reason"`
}

// StreamChunk is one OAI SSE `data:` frame payload.
type StreamChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []wireStreamChoice `json:"choices"`
	Usage   *wireUsage         `json:"usage,omitempty"`
}

// ErrorBody is the OAI-style error object (spec §7).
type ErrorBody struct {
	Object  string      `json:"object"`
	Message string      `json:"message"`
	Type    string      `json:"type"`
	Code    interface{} `json:"code"`
	Param   interface{} `json:"param"`
}

// StreamErrorFrame is the error shape sent as a single SSE frame when a
// backend call fails mid-stream, after headers are already committed.
type StreamErrorFrame struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func marshal(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
