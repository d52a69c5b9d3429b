package server

import (
	"context"
	"fmt"

	"journalagent/agent"
	"journalagent/llm"
)

// ModelFactory builds a completion model for a caller-supplied key.
type ModelFactory func(ctx context.Context, apiKey string) (llm.Model, error)

// Agents resolves the agent that serves a request: the shared one, or a
// copy bound to the caller's own key.
type Agents struct {
	base     *agent.Agent
	newModel ModelFactory
	tools    agent.ToolSource
	options  []agent.AgentOption
}

// NewAgents creates a resolver. base is nil when the server has no
// credential of its own; options are used to build per-key agents then.
func NewAgents(base *agent.Agent, newModel ModelFactory, tools agent.ToolSource, options ...agent.AgentOption) *Agents {
	return &Agents{base: base, newModel: newModel, tools: tools, options: options}
}

// For returns the agent for a request carrying userKey, which may be empty.
func (p *Agents) For(ctx context.Context, userKey string) (*agent.Agent, error) {
	if userKey == "" {
		if p.base == nil {
			return nil, llm.ErrMissingCredential
		}
		return p.base, nil
	}
	if p.newModel == nil {
		return nil, fmt.Errorf("caller credentials are not supported: %w", llm.ErrMissingCredential)
	}
	m, err := p.newModel(ctx, userKey)
	if err != nil {
		return nil, fmt.Errorf("init model with caller key: %w", err)
	}
	if p.base != nil {
		return p.base.WithModel(m), nil
	}
	return agent.NewAgent(m, p.tools, p.options...)
}

// Configured reports whether requests without their own key can be served.
func (p *Agents) Configured() bool {
	return p.base != nil
}
