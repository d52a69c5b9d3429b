package server

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"journalagent/agent"
	"journalagent/llm"
)

// MaxImages is the most images accepted in one request.
const MaxImages = 4

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// ChatRequest is the inbound body of both chat endpoints.
type ChatRequest struct {
	Message                 string           `json:"message,omitempty"`
	Images                  []ImageInput     `json:"images,omitempty"`
	CallerIdentity          string           `json:"caller_identity"`
	ScopeIdentifier         string           `json:"scope_identifier,omitempty"`
	ConversationHistory     []HistoryMessage `json:"conversation_history,omitempty"`
	UserSuppliedCredentials *Credentials     `json:"user_supplied_credentials,omitempty"`
}

// ImageInput is an uploaded image, base64 encoded. A data URL is accepted
// in place of MIMEType plus Data.
type ImageInput struct {
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// HistoryMessage is a prior turn supplied by the caller.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Credentials are caller-supplied keys used instead of the server's.
type Credentials struct {
	LLMAPIKey string `json:"llm_api_key,omitempty"`
}

func (c *ChatRequest) apiKey() string {
	if c.UserSuppliedCredentials == nil {
		return ""
	}
	return strings.TrimSpace(c.UserSuppliedCredentials.LLMAPIKey)
}

// toAgentRequest validates c and converts it.
func (c *ChatRequest) toAgentRequest(requestID string) (agent.Request, error) {
	msg := strings.TrimSpace(c.Message)
	if msg == "" && len(c.Images) == 0 {
		return agent.Request{}, fmt.Errorf("%w: message or at least one image is required", ErrInvalidRequest)
	}
	if len(c.Images) > MaxImages {
		return agent.Request{}, fmt.Errorf("%w: at most %d images are allowed", ErrInvalidRequest, MaxImages)
	}
	if strings.TrimSpace(c.CallerIdentity) == "" {
		return agent.Request{}, fmt.Errorf("%w: caller_identity is required", ErrInvalidRequest)
	}

	req := agent.Request{
		RequestID:       requestID,
		Message:         msg,
		CallerIdentity:  strings.TrimSpace(c.CallerIdentity),
		ScopeIdentifier: c.ScopeIdentifier,
	}
	for i, img := range c.Images {
		m, err := img.decode()
		if err != nil {
			return agent.Request{}, fmt.Errorf("%w: image %d: %v", ErrInvalidRequest, i, err)
		}
		req.Images = append(req.Images, m)
	}
	for i, h := range c.ConversationHistory {
		var role llm.Role
		switch strings.ToLower(h.Role) {
		case "user", "human":
			role = llm.RoleUser
		case "model", "assistant", "ai":
			role = llm.RoleModel
		default:
			return agent.Request{}, fmt.Errorf("%w: conversation_history[%d]: unknown role %q", ErrInvalidRequest, i, h.Role)
		}
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		req.History = append(req.History, llm.TextMessage(role, h.Content))
	}
	return req, nil
}

func (i ImageInput) decode() (llm.Media, error) {
	mime, data := i.MIMEType, i.Data
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return llm.Media{}, errors.New("malformed data url")
		}
		mime, data = strings.TrimSuffix(header, ";base64"), payload
	}
	if !strings.HasPrefix(mime, "image/") {
		return llm.Media{}, fmt.Errorf("unsupported mime type %q", mime)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return llm.Media{}, fmt.Errorf("invalid base64: %w", err)
	}
	if len(raw) == 0 {
		return llm.Media{}, errors.New("empty image")
	}
	return llm.Media{MIMEType: mime, Data: raw}, nil
}
