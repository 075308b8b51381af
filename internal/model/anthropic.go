package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic-backed Model.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Anthropic adapts anthropic-sdk-go to the uniform Model interface. The
// provider's own wire format (SSE framing, block deltas) is the SDK's
// concern, not ours — §1 scopes "concrete model provider HTTP wire
// formats" out, leaving only this translation layer.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
}

func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &Anthropic{client: anthropic.NewClient(opts...), defaultModel: defaultModel}
}

func (a *Anthropic) Name() string         { return "anthropic" }
func (a *Anthropic) SupportsTools() bool  { return true }

func (a *Anthropic) buildParams(req Request) anthropic.MessageNewParams {
	modelID := req.Model
	if modelID == "" {
		modelID = a.defaultModel
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toAnthropicMessage(m))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{},
			},
		})
	}
	if req.ReasoningEffort == "high" {
		params.Thinking = anthropic.ThinkingConfigParamUnion{
			OfEnabled: &anthropic.ThinkingConfigEnabledParam{BudgetTokens: 16000},
		}
	}
	return params
}

func toAnthropicMessage(m Message) anthropic.MessageParam {
	role := anthropic.MessageParamRoleUser
	if m.Role == RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}
	var blocks []anthropic.ContentBlockParamUnion
	if m.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Content))
	}
	for _, tr := range m.ToolResults {
		blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
	}
	return anthropic.MessageParam{Role: role, Content: blocks}
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	params := a.buildParams(req)
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, a.classify(err)
	}

	var resp Response
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	resp.InputTokens = int(msg.Usage.InputTokens)
	resp.OutputTokens = int(msg.Usage.OutputTokens)
	return resp, nil
}

// Stream drains the SDK's own streaming iterator into our Chunk
// channel. Anthropic's tool_use blocks arrive fully formed at
// content_block_stop rather than incrementally, so ToolCall chunks are
// emitted whole, same as Complete.
func (a *Anthropic) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := a.buildParams(req)
	out := make(chan Chunk, 16)

	go func() {
		defer close(out)
		stream := a.client.Messages.NewStreaming(ctx, params)
		msg := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := msg.Accumulate(event); err != nil {
				out <- Chunk{Err: a.classify(err)}
				return
			}
			switch delta := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if delta.Delta.Text != "" {
					out <- Chunk{Text: delta.Delta.Text}
				}
			}
		}
		if err := stream.Err(); err != nil {
			out <- Chunk{Err: a.classify(err)}
			return
		}

		for _, block := range msg.Content {
			if block.Type == "tool_use" {
				tc := ToolCall{ID: block.ID, Name: block.Name, Arguments: json.RawMessage(block.Input)}
				out <- Chunk{ToolCall: &tc}
			}
		}
		out <- Chunk{
			Done:         true,
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		}
	}()

	return out, nil
}

func (a *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if ok := asAnthropicError(err, &apiErr); ok {
		return &ProviderError{
			Provider: "anthropic",
			Reason:   ClassifyHTTPStatus(apiErr.StatusCode, apiErr.Error()),
			HTTPCode: apiErr.StatusCode,
			Err:      err,
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}

func asAnthropicError(err error, target **anthropic.Error) bool {
	if apiErr, ok := err.(*anthropic.Error); ok {
		*target = apiErr
		return true
	}
	return false
}
