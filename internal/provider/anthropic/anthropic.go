// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package anthropic

import (
	"context"
	"encoding/json"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
)

// DefaultMaxTokens is sent when a request carries no token budget; the
// Messages API requires one.
const DefaultMaxTokens = 4096

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
}

// Provider implements provider.Backend using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	health *provider.HealthTracker
}

var _ provider.Backend = (*Provider)(nil)

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, aoserr.New(aoserr.CodeProviderRequestInvalid, "anthropic: missing api_key in config", aoserr.FieldProvider("anthropic"))
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}

	return &Provider{client: anthropicsdk.NewClient(opts...), health: tracker}, nil
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) Close() error { return nil }

// Chat sends one non-streaming Messages request.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	p.health.Observe(err)
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeProviderUpstreamFailure, "anthropic: messages request failed",
			aoserr.FieldProvider("anthropic"), aoserr.Field("model", req.Model))
	}

	return convertResponse(msg), nil
}

func buildParams(req provider.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params, nil
}

// convertMessages keeps every block of every turn in order. tool_use ids and
// raw inputs pass through unchanged so results can be matched to requests.
func convertMessages(msgs []provider.Message) ([]anthropicsdk.MessageParam, error) {
	result := make([]anthropicsdk.MessageParam, 0, len(msgs))

	for _, msg := range msgs {
		blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, len(msg.Content))
		for _, b := range msg.Content {
			switch b.Type {
			case provider.BlockText:
				if b.Text == "" {
					continue
				}
				blocks = append(blocks, anthropicsdk.NewTextBlock(b.Text))
			case provider.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(b.ToolUseID, input, b.ToolName))
			case provider.BlockToolResult:
				blocks = append(blocks, anthropicsdk.NewToolResultBlock(b.ToolUseID, b.Text, b.IsError))
			default:
				return nil, aoserr.Errorf(aoserr.CodeProviderRequestInvalid, "anthropic: unsupported content block %q", b.Type)
			}
		}
		if len(blocks) == 0 {
			continue
		}

		switch msg.Role {
		case provider.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(blocks...))
		case provider.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(blocks...))
		default:
			return nil, aoserr.Errorf(aoserr.CodeProviderRequestInvalid, "anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func convertTools(tools []provider.ToolDefinition) []anthropicsdk.ToolUnionParam {
	result := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := &anthropicsdk.ToolParam{
			Name:        t.Name,
			InputSchema: extractSchema(provider.SchemaObject(t.InputSchema)),
		}
		if t.Description != "" {
			tool.Description = anthropicsdk.String(t.Description)
		}
		result = append(result, anthropicsdk.ToolUnionParam{OfTool: tool})
	}
	return result
}

// extractSchema splits a full JSON Schema object into the separate
// Properties and Required fields the SDK expects.
func extractSchema(raw map[string]any) anthropicsdk.ToolInputSchemaParam {
	schema := anthropicsdk.ToolInputSchemaParam{Properties: raw["properties"]}
	if req, ok := raw["required"].([]any); ok {
		strs := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				strs = append(strs, s)
			}
		}
		schema.Required = strs
	}
	return schema
}

func convertResponse(msg *anthropicsdk.Message) *provider.ChatResponse {
	resp := &provider.ChatResponse{
		Model: string(msg.Model),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Content = append(resp.Content, provider.TextBlock(block.Text))
		case "tool_use":
			input := append(json.RawMessage(nil), block.Input...)
			resp.Content = append(resp.Content, provider.ToolUseBlock(block.ID, block.Name, input))
		}
	}

	switch msg.StopReason {
	case anthropicsdk.StopReasonToolUse:
		resp.StopReason = provider.StopReasonToolUse
	case anthropicsdk.StopReasonMaxTokens:
		resp.StopReason = provider.StopReasonMaxTokens
	case anthropicsdk.StopReasonEndTurn, anthropicsdk.StopReasonStopSequence:
		resp.StopReason = provider.StopReasonEndTurn
	default:
		resp.StopReason = provider.StopReasonOther
	}
	return resp
}
