// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package openai

import (
	"context"
	"encoding/json"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
)

// OpenRouterBaseURL serves the same Chat Completions API.
const OpenRouterBaseURL = "https://openrouter.ai/api/v1"

// Config holds OpenAI provider configuration. Name defaults to "openai";
// set it when the same API is served by another vendor such as OpenRouter.
type Config struct {
	Name    string
	APIKey  string
	BaseURL string
}

// Provider implements provider.Backend using the Chat Completions API.
type Provider struct {
	name   string
	client openaisdk.Client
	health *provider.HealthTracker
}

var _ provider.Backend = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	if cfg.APIKey == "" {
		return nil, aoserr.New(aoserr.CodeProviderRequestInvalid, name+": missing api_key in config", aoserr.FieldProvider(name))
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Provider{name: name, client: openaisdk.NewClient(opts...), health: tracker}, nil
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) Close() error { return nil }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	p.health.Observe(err)
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeProviderUpstreamFailure, p.name+": chat completion failed",
			aoserr.FieldProvider(p.name), aoserr.Field("model", req.Model))
	}
	if len(completion.Choices) == 0 {
		return nil, aoserr.New(aoserr.CodeProviderResponseInvalid, p.name+": response has no choices", aoserr.FieldProvider(p.name))
	}

	return convertResponse(completion), nil
}

func buildParams(req provider.ChatRequest) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

// convertMessages maps assistant tool_use blocks onto tool_calls and each
// tool_result block onto its own tool message, keeping request order.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleUser:
			var texts []string
			for _, b := range msg.Content {
				switch b.Type {
				case provider.BlockToolResult:
					result = append(result, openaisdk.ToolMessage(toolResultText(b), b.ToolUseID))
				case provider.BlockText:
					texts = append(texts, b.Text)
				}
			}
			if len(texts) > 0 {
				result = append(result, openaisdk.UserMessage(strings.Join(texts, "\n")))
			}

		case provider.RoleAssistant:
			var (
				texts []string
				calls []openaisdk.ChatCompletionMessageToolCallParam
			)
			for _, b := range msg.Content {
				switch b.Type {
				case provider.BlockText:
					texts = append(texts, b.Text)
				case provider.BlockToolUse:
					args := string(b.Input)
					if args == "" {
						args = "{}"
					}
					calls = append(calls, openaisdk.ChatCompletionMessageToolCallParam{
						ID: b.ToolUseID,
						Function: openaisdk.ChatCompletionMessageToolCallFunctionParam{
							Name:      b.ToolName,
							Arguments: args,
						},
					})
				}
			}
			if len(calls) == 0 {
				result = append(result, openaisdk.AssistantMessage(strings.Join(texts, "\n")))
				continue
			}
			assistant := &openaisdk.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if len(texts) > 0 {
				assistant.Content = openaisdk.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(strings.Join(texts, "\n")),
				}
			}
			result = append(result, openaisdk.ChatCompletionMessageParamUnion{OfAssistant: assistant})

		default:
			return nil, aoserr.Errorf(aoserr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// toolResultText marks failed results in the text; the API has no error flag.
func toolResultText(b provider.ContentBlock) string {
	if b.IsError {
		return "Error: " + b.Text
	}
	return b.Text
}

func convertTools(tools []provider.ToolDefinition) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(provider.SchemaObject(t.InputSchema)),
			},
		})
	}
	return result
}

func convertResponse(completion *openaisdk.ChatCompletion) *provider.ChatResponse {
	choice := completion.Choices[0]
	resp := &provider.ChatResponse{
		Model: completion.Model,
		Usage: provider.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}

	if choice.Message.Content != "" {
		resp.Content = append(resp.Content, provider.TextBlock(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		resp.Content = append(resp.Content, provider.ToolUseBlock(tc.ID, tc.Function.Name, args))
	}

	switch {
	case choice.FinishReason == "tool_calls" || len(choice.Message.ToolCalls) > 0:
		resp.StopReason = provider.StopReasonToolUse
	case choice.FinishReason == "length":
		resp.StopReason = provider.StopReasonMaxTokens
	case choice.FinishReason == "stop":
		resp.StopReason = provider.StopReasonEndTurn
	default:
		resp.StopReason = provider.StopReasonOther
	}
	return resp
}
