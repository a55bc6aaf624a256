// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package google

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/provider"
	aoserr "github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/errors"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/health"
)

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
}

// Provider implements provider.Backend using the Gemini API.
type Provider struct {
	client *genai.Client
	health *provider.HealthTracker
}

var _ provider.Backend = (*Provider)(nil)

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, aoserr.New(aoserr.CodeProviderRequestInvalid, "google: missing api_key in config", aoserr.FieldProvider("google"))
	}

	clientCfg := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, aoserr.Wrapf(err, aoserr.CodeProviderUpstreamFailure, "google: creating client")
	}

	tracker, err := provider.NewHealthTracker(provider.DefaultHealthCooldown)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, health: tracker}, nil
}

func (p *Provider) Name() string { return "google" }

func (p *Provider) Available(_ context.Context) bool { return p.health.IsHealthy() }

func (p *Provider) HealthMetrics() health.Metrics { return p.health.HealthMetrics() }

func (p *Provider) Close() error { return nil }

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	p.health.Observe(err)
	if err != nil {
		return nil, aoserr.Wrap(err, aoserr.CodeProviderUpstreamFailure, "google: generate content failed",
			aoserr.FieldProvider("google"), aoserr.Field("model", req.Model))
	}
	return convertResponse(result)
}

func buildConfig(req provider.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = convertTools(req.Tools)
	}
	return cfg
}

// convertMessages maps the conversation onto user/model contents. Function
// responses need the function name, so tool_use names are remembered by id.
func convertMessages(msgs []provider.Message) ([]*genai.Content, error) {
	var result []*genai.Content
	names := make(map[string]string)

	for _, msg := range msgs {
		content := &genai.Content{}
		switch msg.Role {
		case provider.RoleUser:
			content.Role = "user"
		case provider.RoleAssistant:
			content.Role = "model"
		default:
			return nil, aoserr.Errorf(aoserr.CodeProviderRequestInvalid, "google: unsupported message role %q", msg.Role)
		}

		for _, b := range msg.Content {
			switch b.Type {
			case provider.BlockText:
				if b.Text != "" {
					content.Parts = append(content.Parts, &genai.Part{Text: b.Text})
				}
			case provider.BlockToolUse:
				names[b.ToolUseID] = b.ToolName
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   b.ToolUseID,
					Name: b.ToolName,
					Args: provider.InputObject(b.Input),
				}})
			case provider.BlockToolResult:
				key := "output"
				if b.IsError {
					key = "error"
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       b.ToolUseID,
					Name:     names[b.ToolUseID],
					Response: map[string]any{key: b.Text},
				}})
			}
		}
		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result, nil
}

func convertTools(tools []provider.ToolDefinition) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: provider.SchemaObject(t.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertResponse reads the first candidate. Gemini may omit call ids, so
// missing ones are generated to keep results matchable.
func convertResponse(result *genai.GenerateContentResponse) (*provider.ChatResponse, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil, aoserr.New(aoserr.CodeProviderResponseInvalid, "google: response has no candidates", aoserr.FieldProvider("google"))
	}
	candidate := result.Candidates[0]

	resp := &provider.ChatResponse{Model: result.ModelVersion, StopReason: provider.StopReasonEndTurn}
	for _, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, aoserr.Wrapf(err, aoserr.CodeProviderResponseInvalid,
					"google: marshaling arguments for %q", part.FunctionCall.Name)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			resp.Content = append(resp.Content, provider.ToolUseBlock(id, part.FunctionCall.Name, args))
			resp.StopReason = provider.StopReasonToolUse
		case part.Text != "":
			resp.Content = append(resp.Content, provider.TextBlock(part.Text))
		}
	}

	if resp.StopReason != provider.StopReasonToolUse && candidate.FinishReason == genai.FinishReasonMaxTokens {
		resp.StopReason = provider.StopReasonMaxTokens
	}
	if result.UsageMetadata != nil {
		resp.Usage = provider.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}
