package model

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-backed Model.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAI adapts sashabaranov/go-openai to the uniform Model interface.
type OpenAI struct {
	client       *openai.Client
	defaultModel string
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientCfg), defaultModel: defaultModel}
}

func (o *OpenAI) Name() string        { return "openai" }
func (o *OpenAI) SupportsTools() bool { return true }

func (o *OpenAI) buildRequest(req Request) openai.ChatCompletionRequest {
	modelID := req.Model
	if modelID == "" {
		modelID = o.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.SchemaJSON),
			},
		})
	}

	out := openai.ChatCompletionRequest{
		Model:     modelID,
		Messages:  messages,
		Tools:     tools,
		MaxTokens: req.MaxTokens,
	}
	return out
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	switch m.Role {
	case RoleAssistant:
		role = openai.ChatMessageRoleAssistant
	case RoleTool:
		role = openai.ChatMessageRoleTool
	}
	msg := openai.ChatCompletionMessage{Role: role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	if len(m.ToolResults) == 1 {
		msg.ToolCallID = m.ToolResults[0].ToolCallID
		msg.Content = m.ToolResults[0].Content
	}
	return msg
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(req))
	if err != nil {
		return Response{}, o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, errors.New("openai: empty choices")
	}
	choice := resp.Choices[0]

	out := Response{
		Text:         choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (o *OpenAI) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	openaiReq := o.buildRequest(req)
	openaiReq.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, openaiReq)
	if err != nil {
		return nil, o.classify(err)
	}

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()

		var pendingToolCalls []openai.ToolCall
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				for i := range pendingToolCalls {
					tc := pendingToolCalls[i]
					out <- Chunk{ToolCall: &ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: json.RawMessage(tc.Function.Arguments)}}
				}
				out <- Chunk{Done: true}
				return
			}
			if err != nil {
				out <- Chunk{Err: o.classify(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- Chunk{Text: delta.Content}
			}
			pendingToolCalls = mergeToolCallDeltas(pendingToolCalls, delta.ToolCalls)
		}
	}()
	return out, nil
}

// mergeToolCallDeltas accumulates OpenAI's incremental tool-call deltas
// (name and arguments arrive split across several chunks, indexed by
// position) into complete calls, emitted only once the stream ends.
func mergeToolCallDeltas(acc []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, d := range deltas {
		idx := 0
		if d.Index != nil {
			idx = *d.Index
		}
		for len(acc) <= idx {
			acc = append(acc, openai.ToolCall{})
		}
		if d.ID != "" {
			acc[idx].ID = d.ID
		}
		acc[idx].Function.Name += d.Function.Name
		acc[idx].Function.Arguments += d.Function.Arguments
	}
	return acc
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: "openai",
			Reason:   ClassifyHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message),
			HTTPCode: apiErr.HTTPStatusCode,
			Err:      err,
		}
	}
	return &ProviderError{Provider: "openai", Reason: ReasonUnknown, Err: err}
}
