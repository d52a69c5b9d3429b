// parallel_tool_execution.go
//
// Executes the tool calls of one model turn. A single call runs inline;
// several run concurrently. tool_call events go out in call order before
// anything runs, tool_result events as each call finishes. The transcript
// receives one model message holding every call followed by one user
// message holding every result, both in call order.
//
// Exported:
//   - (none)

package agent

import (
	"context"

	"github.com/sourcegraph/conc/iter"

	"journalagent/events"
	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
	"journalagent/tools"
)

const maxResultPreview = 300

func (c *conversation) executeToolCalls(ctx context.Context, text string, calls []llm.ToolCall) {
	for _, call := range calls {
		c.emitter.Emit(&events.ToolCallEvent{ID: call.ID, Name: call.Name, Arguments: call.Args, Turn: c.turn})
	}

	tc := tools.Context{CallerIdentity: c.req.CallerIdentity, ScopeIdentifier: c.req.ScopeIdentifier}
	run := func(call *llm.ToolCall) Execution {
		ex := c.dispatcher.Execute(ctx, *call, tc)
		c.emitter.Emit(&events.ToolResultEvent{
			ID:         call.ID,
			Name:       call.Name,
			Succeeded:  ex.Result.Succeeded,
			Preview:    TruncateString(ex.Result.Output, maxResultPreview),
			HasImage:   ex.Media != nil,
			DurationMs: ex.Duration.Milliseconds(),
			Turn:       c.turn,
		})
		return ex
	}

	var results []Execution
	if len(calls) == 1 {
		results = []Execution{run(&calls[0])}
	} else {
		results = iter.Map(calls, run)
	}

	modelMsg := llm.Message{Role: llm.RoleModel}
	if text != "" {
		modelMsg.Parts = append(modelMsg.Parts, llm.Part{Text: text})
	}
	userMsg := llm.Message{Role: llm.RoleUser}
	for i := range calls {
		call := calls[i]
		modelMsg.Parts = append(modelMsg.Parts, llm.Part{ToolCall: &call})

		ex := results[i]
		if ex.Media != nil {
			userMsg.Parts = append(userMsg.Parts, llm.Part{Media: ex.Media})
		}
		result := ex.Result
		userMsg.Parts = append(userMsg.Parts, llm.Part{ToolResult: &result})

		c.addCitations(ex.Citations)
		if !result.Succeeded {
			c.logger.Info("tool call failed",
				loggerv2.String("tool", call.Name),
				loggerv2.String("handler", ex.Handler.String()),
				loggerv2.String("output", TruncateString(result.Output, MaxPreviewLength)))
		}
	}
	c.transcript = append(c.transcript, modelMsg, userMsg)
	c.meta.ToolCalls += len(calls)
}

func (c *conversation) addCitations(list []tools.Citation) {
	for _, cit := range list {
		if cit.URL == "" || c.citationSeen[cit.URL] {
			continue
		}
		c.citationSeen[cit.URL] = true
		c.citations = append(c.citations, cit)
		c.emitter.Emit(&events.CitationEvent{Title: cit.Title, URL: cit.URL, Snippet: cit.Snippet})
	}
}
