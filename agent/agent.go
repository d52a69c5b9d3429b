// Package agent runs one conversation between the user, the completion
// service and the tools: the turn loop, parallel tool execution, empty
// response recovery, reference correction and the security scan.
package agent

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"journalagent/agent/prompt"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache"
	"journalagent/mcpclient"
	"journalagent/refs"
)

const (
	DefaultMaxTurns           = 15
	DefaultPerToolCallCap     = 3
	DefaultCorrectionAttempts = 2
	DefaultCorrectionTurns    = 3
	DefaultRecoveryAttempts   = 3
	DefaultRecoveryDelay      = 500 * time.Millisecond
	DefaultRecoveryMaxDelay   = 4 * time.Second
	DefaultTemperature        = 0.2
)

// DefaultSafeTools are the local tools kept when recovery reduces the tool set.
var DefaultSafeTools = []string{"web_search", "get_stock_price"}

// ErrNoModel is returned by NewAgent without a completion model.
var ErrNoModel = errors.New("agent: no completion model")

// ErrNoTools is returned by NewAgent without a tool source.
var ErrNoTools = errors.New("agent: no tool source")

// ToolSource supplies the merged tool set for a run.
type ToolSource interface {
	GetTools(ctx context.Context) *mcpcache.ToolSet
}

// RemoteCaller invokes gateway tools.
type RemoteCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcpclient.CallResult, error)
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithLogger sets a custom logger
func WithLogger(logger loggerv2.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run, turn and tool spans
func WithTracer(tracer trace.Tracer) AgentOption {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithMaxTurns sets the maximum conversation turns
func WithMaxTurns(maxTurns int) AgentOption {
	return func(a *Agent) {
		if maxTurns > 0 {
			a.maxTurns = maxTurns
		}
	}
}

// WithPerToolCallCap sets how often one tool may be called in a run
func WithPerToolCallCap(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.perToolCap = n
		}
	}
}

// WithCorrectionAttempts sets how many correction passes are made for
// invalid references before they are stripped. Zero strips immediately.
func WithCorrectionAttempts(n int) AgentOption {
	return func(a *Agent) {
		if n >= 0 {
			a.correctionAttempts = n
		}
	}
}

// WithCorrectionTurns sets the turn budget of one correction pass
func WithCorrectionTurns(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.correctionTurns = n
		}
	}
}

// WithSafeTools sets the local tools kept by the reduced recovery attempt
func WithSafeTools(names []string) AgentOption {
	return func(a *Agent) {
		a.safeTools = append([]string(nil), names...)
	}
}

// WithRecoveryDelay sets the first and the largest delay of the empty
// response recovery schedule
func WithRecoveryDelay(initial, max time.Duration) AgentOption {
	return func(a *Agent) {
		if initial > 0 {
			a.recoveryDelay = initial
		}
		if max >= initial && max > 0 {
			a.recoveryMaxDelay = max
		}
	}
}

// WithTemperature sets the LLM temperature
func WithTemperature(temperature float64) AgentOption {
	return func(a *Agent) {
		a.temperature = temperature
	}
}

// WithMaxTokens caps the length of each completion
func WithMaxTokens(n int) AgentOption {
	return func(a *Agent) {
		a.maxTokens = n
	}
}

// WithRemote sets the gateway caller used for remote tools
func WithRemote(remote RemoteCaller) AgentOption {
	return func(a *Agent) {
		a.remote = remote
	}
}

// WithToolOutputLimit caps tool output fed back to the model; zero disables it
func WithToolOutputLimit(chars int) AgentOption {
	return func(a *Agent) {
		if chars >= 0 {
			a.toolOutputLimit = chars
		}
	}
}

// WithContextEditing compacts tool results older than turns tool rounds and
// longer than threshold characters. Zero for either disables compaction.
func WithContextEditing(turns, threshold int) AgentOption {
	return func(a *Agent) {
		if turns >= 0 && threshold >= 0 {
			a.compactAfterTurns = turns
			a.compactThreshold = threshold
		}
	}
}

// WithImageFetcher sets the fetcher for images referenced by tool results
func WithImageFetcher(f *ImageFetcher) AgentOption {
	return func(a *Agent) {
		if f != nil {
			a.images = f
		}
	}
}

// WithPromptBuilder sets the system prompt builder
func WithPromptBuilder(b prompt.Builder) AgentOption {
	return func(a *Agent) {
		if b != nil {
			a.prompts = b
		}
	}
}

// WithReferences enables reference validation and embedded data resolution
func WithReferences(v *refs.Validator, r *refs.Resolver) AgentOption {
	return func(a *Agent) {
		a.validator = v
		a.resolver = r
	}
}

// Agent holds the process-wide collaborators of a run. It is safe for
// concurrent use; per-run state lives in a conversation.
type Agent struct {
	model     llm.Model
	tools     ToolSource
	remote    RemoteCaller
	images    *ImageFetcher
	prompts   prompt.Builder
	validator *refs.Validator
	resolver  *refs.Resolver
	logger    loggerv2.Logger
	tracer    trace.Tracer

	maxTurns           int
	perToolCap         int
	correctionAttempts int
	correctionTurns    int
	safeTools          []string
	recoveryAttempts   int
	recoveryDelay      time.Duration
	recoveryMaxDelay   time.Duration
	temperature        float64
	maxTokens          int
	toolOutputLimit    int
	compactAfterTurns  int
	compactThreshold   int
}

// NewAgent creates an agent over a completion model and a tool source.
func NewAgent(model llm.Model, tools ToolSource, options ...AgentOption) (*Agent, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	if tools == nil {
		return nil, ErrNoTools
	}
	a := &Agent{
		model:              model,
		tools:              tools,
		logger:             loggerv2.NewNoop(),
		tracer:             otel.Tracer("journalagent/agent"),
		maxTurns:           DefaultMaxTurns,
		perToolCap:         DefaultPerToolCallCap,
		correctionAttempts: DefaultCorrectionAttempts,
		correctionTurns:    DefaultCorrectionTurns,
		safeTools:          DefaultSafeTools,
		recoveryAttempts:   DefaultRecoveryAttempts,
		recoveryDelay:      DefaultRecoveryDelay,
		recoveryMaxDelay:   DefaultRecoveryMaxDelay,
		temperature:        DefaultTemperature,
		toolOutputLimit:    DefaultLargeToolOutputThreshold,
		compactAfterTurns:  DefaultContextEditingTurnThreshold,
		compactThreshold:   DefaultContextEditingThreshold,
	}
	for _, opt := range options {
		opt(a)
	}
	if a.images == nil {
		a.images = NewImageFetcher(nil, 0)
	}
	if a.prompts == nil {
		a.prompts = prompt.NewDefaultBuilder(nil, a.logger)
	}
	a.logger = a.logger.With(loggerv2.String("component", "agent"))
	return a, nil
}

// WithModel returns a copy of a that talks to model, for requests that
// bring their own credentials.
func (a *Agent) WithModel(model llm.Model) *Agent {
	c := *a
	c.model = model
	return &c
}

// ModelID returns the id of the configured completion model.
func (a *Agent) ModelID() string {
	return a.model.ModelID()
}
