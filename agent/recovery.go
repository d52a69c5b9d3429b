package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"journalagent/llm"
	loggerv2 "journalagent/logger/v2"
)

const apologyMessage = "I'm sorry, I wasn't able to produce a response this time. Please try again in a moment."

// recoveryLadder retries a completion that came back with neither text nor
// tool calls. Each attempt narrows the offered tools: the same tools with a
// recap, then only the safe local tools, then none. The offered set never
// grows, and at most recoveryAttempts attempts are made per run.
type recoveryLadder struct {
	c       *conversation
	used    int
	b       *backoff.ExponentialBackOff
	allowed map[string]bool
}

func newRecoveryLadder(c *conversation) *recoveryLadder {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.a.recoveryDelay
	b.MaxInterval = c.a.recoveryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &recoveryLadder{c: c, b: b}
}

// recover returns the first non-empty response, or nil when the attempts
// are exhausted.
func (r *recoveryLadder) recover(ctx context.Context) (*llm.Response, error) {
	c := r.c
	for r.used < c.a.recoveryAttempts {
		r.used++
		c.meta.RecoveryAttempts = r.used
		step := min(r.used, 3)

		delay := r.b.NextBackOff()
		c.logger.Warn("empty completion, retrying",
			loggerv2.Int("attempt", r.used),
			loggerv2.Int("step", step),
			loggerv2.Duration("delay", delay))
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}

		schemas, choice, nudge := r.plan(step)
		resp, err := c.generate(ctx, c.request(schemas, choice, llm.TextMessage(llm.RoleUser, nudge)), fmt.Sprintf("recovery_%d", step))
		if err != nil {
			return nil, err
		}
		if classify(resp) != OutcomeEmpty {
			c.logger.Info("empty completion recovered", loggerv2.Int("attempt", r.used))
			return resp, nil
		}
	}
	return nil, nil
}

// plan picks the tools, tool choice and instruction for step, restricted to
// the tools offered by the previous attempt.
func (r *recoveryLadder) plan(step int) ([]llm.ToolSchema, llm.ToolChoice, string) {
	ts := r.c.tools
	var schemas []llm.ToolSchema
	var nudge string
	switch step {
	case 1:
		schemas = ts.Schemas
		nudge = r.recap()
	case 2:
		schemas = ts.Subset(r.c.a.safeTools)
		nudge = "Your previous reply was empty. Continue with the tools available now, or answer directly."
	default:
		nudge = "Your previous reply was empty. Do not call any tools. Answer my last question in plain text now."
	}

	if r.allowed != nil {
		kept := schemas[:0:0]
		for _, s := range schemas {
			if r.allowed[s.Name] {
				kept = append(kept, s)
			}
		}
		schemas = kept
	}
	r.allowed = make(map[string]bool, len(schemas))
	for _, s := range schemas {
		r.allowed[s.Name] = true
	}

	choice := llm.ToolChoiceAuto
	if len(schemas) == 0 {
		choice = llm.ToolChoiceNone
	}
	return schemas, choice, nudge
}

// recap restates the user's question and what the model last said.
func (r *recoveryLadder) recap() string {
	var sb strings.Builder
	sb.WriteString("Your previous reply was empty.")
	if q := strings.TrimSpace(r.c.req.Message); q != "" {
		fmt.Fprintf(&sb, " My question was: %q.", TruncateString(q, 1000))
	}
	for i := len(r.c.transcript) - 1; i >= 0; i-- {
		m := r.c.transcript[i]
		if m.Role != llm.RoleModel {
			continue
		}
		if t := strings.TrimSpace(m.Text()); t != "" {
			fmt.Fprintf(&sb, " Before that you said: %q.", TruncateString(t, 1000))
			break
		}
	}
	sb.WriteString(" Continue: call a tool if you still need data, otherwise answer.")
	return sb.String()
}
