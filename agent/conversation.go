package agent

import (
	"context"
	"fmt"
	"strings"

	"journalagent/events"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/mcpcache"
	"journalagent/tools"
)

// TurnOutcome classifies a completion.
type TurnOutcome int

const (
	OutcomeEmpty TurnOutcome = iota
	OutcomeText
	OutcomeToolCalls
	OutcomeTextAndToolCalls
)

func (o TurnOutcome) String() string {
	switch o {
	case OutcomeText:
		return "text"
	case OutcomeToolCalls:
		return "tool_calls"
	case OutcomeTextAndToolCalls:
		return "text_and_tool_calls"
	default:
		return "empty"
	}
}

// classify maps a response onto a TurnOutcome. Whitespace-only text counts
// as no text.
func classify(resp *llm.Response) TurnOutcome {
	if resp.IsEmpty() {
		return OutcomeEmpty
	}
	hasText := trimmedText(resp) != ""
	hasCalls := len(resp.ToolCalls) > 0
	switch {
	case hasText && hasCalls:
		return OutcomeTextAndToolCalls
	case hasCalls:
		return OutcomeToolCalls
	case hasText:
		return OutcomeText
	}
	return OutcomeEmpty
}

// StopReason records why a run's turn loop ended.
type StopReason string

const (
	StopText          StopReason = "text"
	StopMaxTurns      StopReason = "max_turns"
	StopLoopGuard     StopReason = "loop_guard"
	StopEmptyResponse StopReason = "empty_response"
)

const (
	wrapUpPrompt = "Stop calling tools. Using only the tool results above, answer my question now in plain text. " +
		"If the results are insufficient, say what is missing."
	fallbackMessage = "I gathered some information but could not put together an answer. Please try rephrasing your question."
)

// conversation is the per-run state: the transcript, the turn counter and
// everything accumulated for the done event. It is owned by one goroutine.
type conversation struct {
	a          *Agent
	req        *Request
	tools      *mcpcache.ToolSet
	dispatcher *Dispatcher
	emitter    *events.EventEmitter
	logger     loggerv2.Logger

	system     string
	transcript []llm.Message
	guard      *ToolLoopGuard
	recovery   *recoveryLadder
	meta       *Metadata

	turn         int
	citations    []tools.Citation
	citationSeen map[string]bool
}

func (a *Agent) newConversation(req *Request, ts *mcpcache.ToolSet, system string, emitter *events.EventEmitter, meta *Metadata) *conversation {
	c := &conversation{
		a:            a,
		req:          req,
		tools:        ts,
		dispatcher:   NewDispatcher(ts, a.remote, a.images, a.tracer, a.logger),
		emitter:      emitter,
		logger:       a.logger.With(loggerv2.String("request_id", req.RequestID)),
		system:       system,
		guard:        NewToolLoopGuard(a.perToolCap),
		meta:         meta,
		citationSeen: make(map[string]bool),
	}
	c.dispatcher.SetOutputHandler(NewToolOutputHandler(a.toolOutputLimit))
	c.recovery = newRecoveryLadder(c)
	c.transcript = append(c.transcript, req.History...)
	c.transcript = append(c.transcript, req.userMessage())
	return c
}

func (c *conversation) request(schemas []llm.ToolSchema, choice llm.ToolChoice, extra ...llm.Message) *llm.Request {
	if len(schemas) == 0 {
		choice = llm.ToolChoiceNone
	}
	msgs, compacted := compactStaleToolResults(c.transcript, c.a.compactAfterTurns, c.a.compactThreshold)
	if compacted > c.meta.CompactedResults {
		c.logger.Debug("compacted stale tool results", loggerv2.Int("compacted", compacted))
		c.meta.CompactedResults = compacted
	}
	if len(extra) > 0 {
		msgs = append(msgs[:len(msgs):len(msgs)], extra...)
	}
	return &llm.Request{
		SystemPrompt: c.system,
		Messages:     msgs,
		Tools:        schemas,
		ToolChoice:   choice,
		Temperature:  c.a.temperature,
		MaxTokens:    c.a.maxTokens,
	}
}

// pass runs the turn loop for at most budget turns and returns the last
// non-empty text seen in it, which may be empty.
func (c *conversation) pass(ctx context.Context, firstChoice llm.ToolChoice, budget int) (string, StopReason, error) {
	choice := firstChoice
	lastText := ""
	for i := 0; i < budget; i++ {
		if err := ctx.Err(); err != nil {
			return lastText, "", err
		}
		c.turn++
		c.meta.Turns++

		resp, err := c.generate(ctx, c.request(c.tools.Schemas, choice), "turn")
		if err != nil {
			return lastText, "", err
		}
		outcome := classify(resp)
		if outcome == OutcomeEmpty {
			resp, err = c.recovery.recover(ctx)
			if err != nil {
				return lastText, "", err
			}
			if resp == nil {
				return lastText, StopEmptyResponse, nil
			}
			outcome = classify(resp)
		}
		choice = llm.ToolChoiceAuto

		text := trimmedText(resp)
		if text != "" {
			lastText = text
		}
		c.logger.Debug("turn finished", loggerv2.Int("turn", c.turn), loggerv2.String("outcome", outcome.String()))

		switch outcome {
		case OutcomeText:
			c.transcript = append(c.transcript, llm.TextMessage(llm.RoleModel, text))
			return text, StopText, nil
		case OutcomeToolCalls, OutcomeTextAndToolCalls:
			if res := c.guard.Admit(resp.ToolCalls); res.Detected {
				c.logger.Warn("🔄 Loop detected, stopping before the repeated call",
					loggerv2.String("tool_name", res.ToolName),
					loggerv2.String("reason", res.Reason),
					loggerv2.String("args_preview", res.ArgsPreview))
				if text != "" {
					c.transcript = append(c.transcript, llm.TextMessage(llm.RoleModel, text))
				}
				return lastText, StopLoopGuard, nil
			}
			c.executeToolCalls(ctx, text, resp.ToolCalls)
		}
	}
	return lastText, StopMaxTurns, nil
}

// wrapUp asks for a plain answer from what has been gathered, without
// tools. It returns "" when the model still says nothing.
func (c *conversation) wrapUp(ctx context.Context) (string, error) {
	c.turn++
	c.meta.Turns++
	c.meta.WrapUp = true
	resp, err := c.generate(ctx, c.request(nil, llm.ToolChoiceNone, llm.TextMessage(llm.RoleUser, wrapUpPrompt)), "wrap_up")
	if err != nil {
		return "", err
	}
	text := trimmedText(resp)
	if text != "" {
		c.transcript = append(c.transcript, llm.TextMessage(llm.RoleModel, text))
	}
	return text, nil
}

// correct appends the correction instruction and runs a short pass.
func (c *conversation) correct(ctx context.Context, instruction string) (string, error) {
	c.transcript = append(c.transcript, llm.TextMessage(llm.RoleUser, instruction))
	text, stop, err := c.pass(ctx, llm.ToolChoiceAuto, c.a.correctionTurns)
	if err != nil {
		return "", fmt.Errorf("correction pass: %w", err)
	}
	c.logger.Debug("correction pass finished", loggerv2.String("stop_reason", string(stop)), loggerv2.Bool("text", text != ""))
	return text, nil
}

func trimmedText(resp *llm.Response) string {
	if resp == nil {
		return ""
	}
	return strings.TrimSpace(resp.Text)
}
