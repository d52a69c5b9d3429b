package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	loggerv2 "journalagent/logger/v2"
)

// GeminiModel implements Model on the Google Gen AI SDK.
type GeminiModel struct {
	client  *genai.Client
	modelID string
	logger  loggerv2.Logger
}

var _ Model = (*GeminiModel)(nil)

// ModelID returns the model identifier passed to the service.
func (g *GeminiModel) ModelID() string { return g.modelID }

// Generate performs a blocking completion.
func (g *GeminiModel) Generate(ctx context.Context, req *Request) (*Response, error) {
	contents, cfg := toGenai(req)
	resp, err := g.client.Models.GenerateContent(ctx, g.modelID, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	out := &Response{}
	mergeChunk(out, resp, nil)
	g.logger.Debug("🔧 [LLM] generate finished",
		loggerv2.String("model", g.modelID),
		loggerv2.String("finish_reason", out.FinishReason),
		loggerv2.Int("tool_calls", len(out.ToolCalls)),
		loggerv2.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

// GenerateStream streams text fragments to onText and returns the
// aggregated response once the stream ends.
func (g *GeminiModel) GenerateStream(ctx context.Context, req *Request, onText func(string)) (*Response, error) {
	contents, cfg := toGenai(req)
	out := &Response{}
	for chunk, err := range g.client.Models.GenerateContentStream(ctx, g.modelID, contents, cfg) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		mergeChunk(out, chunk, onText)
	}
	g.logger.Debug("🔧 [LLM] stream finished",
		loggerv2.String("model", g.modelID),
		loggerv2.String("finish_reason", out.FinishReason),
		loggerv2.Int("tool_calls", len(out.ToolCalls)),
		loggerv2.Int("total_tokens", out.Usage.TotalTokens))
	return out, nil
}

// mergeChunk folds one (possibly partial) service response into out.
func mergeChunk(out *Response, resp *genai.GenerateContentResponse, onText func(string)) {
	if resp == nil {
		return
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return
	}
	cand := resp.Candidates[0]
	if cand.FinishReason != "" {
		out.FinishReason = string(cand.FinishReason)
	}
	if cand.Content == nil {
		return
	}
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		if p.Text != "" {
			out.Text += p.Text
			if onText != nil {
				onText(p.Text)
			}
		}
		if fc := p.FunctionCall; fc != nil {
			id := fc.ID
			if id == "" {
				id = localCallIDPrefix + uuid.NewString()
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: id, Name: fc.Name, Args: fc.Args, Signature: p.ThoughtSignature})
		}
	}
}

// localCallIDPrefix marks ids minted here for calls the service sent
// without one. Those are never sent back.
const localCallIDPrefix = "call_"

func serviceCallID(id string) string {
	if strings.HasPrefix(id, localCallIDPrefix) {
		return ""
	}
	return id
}

func toGenai(req *Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		c := &genai.Content{Role: genai.RoleUser}
		if m.Role == RoleModel {
			c.Role = genai.RoleModel
		}
		for _, p := range m.Parts {
			switch {
			case p.ToolCall != nil:
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   serviceCallID(p.ToolCall.ID),
						Name: p.ToolCall.Name,
						Args: p.ToolCall.Args,
					},
					ThoughtSignature: p.ToolCall.Signature,
				})
			case p.ToolResult != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:   serviceCallID(p.ToolResult.CallID),
					Name: p.ToolResult.Name,
					Response: map[string]any{
						"output":    p.ToolResult.Output,
						"succeeded": p.ToolResult.Succeeded,
					},
				}})
			case p.Media != nil:
				c.Parts = append(c.Parts, genai.NewPartFromBytes(p.Media.Data, p.Media.MIMEType))
			case p.Text != "":
				c.Parts = append(c.Parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(c.Parts) > 0 {
			contents = append(contents, c)
		}
	}

	temp := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if len(req.Tools) > 0 && req.ToolChoice != ToolChoiceNone {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		mode := genai.FunctionCallingConfigModeAuto
		if req.ToolChoice == ToolChoiceAny {
			mode = genai.FunctionCallingConfigModeAny
		}
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	}
	return contents, cfg
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.Type(strings.ToUpper(s.Type)),
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
		Items:       toGenaiSchema(s.Items),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = toGenaiSchema(v)
		}
	}
	return out
}
