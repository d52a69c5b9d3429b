package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalagent/events"
	"journalagent/llm"
	"journalagent/tools"
)

func drain(t *testing.T, s *events.Stream, finished <-chan struct{}) []*events.Event {
	t.Helper()
	var out []*events.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				select {
				case <-finished:
				case <-timeout:
					t.Fatal("run goroutine did not finish")
				}
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream was not closed")
		}
	}
}

func typesOf(evs []*events.Event) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func TestRunStreamEndsWithDone(t *testing.T) {
	model := script(calls(call("c1", "lookup", nil)), text("All good."))
	a := newTestAgent(t, model, toolSet([]tools.Tool{newFuncTool("lookup", nil)}))

	parent, cancel := context.WithCancel(context.Background())
	cancel() // a disconnected client must not abort the run

	s := events.NewStream(16)
	evs := drain(t, s, a.RunStream(parent, baseRequest(), s, time.Second))

	assert.Equal(t, []events.EventType{events.ToolCall, events.ToolResult, events.TextChunk, events.Done}, typesOf(evs))
	done := evs[len(evs)-1].Data.(*events.DoneEvent)
	assert.True(t, done.Success)
	assert.Equal(t, "All good.", done.FinalText)
	assert.Equal(t, "text", done.Metadata["stop_reason"])
	assert.Equal(t, "req-1", evs[0].RequestID)
}

func TestRunStreamSecurityViolation(t *testing.T) {
	model := script(text("user_id: 9b2e7d10-1111-4222-8333-444455556666"))
	a := newTestAgent(t, model, toolSet(nil))
	req := baseRequest()
	req.CallerIdentity = "3f1c2a44-5b6d-4e7f-8a9b-0c1d2e3f4a5b"

	s := events.NewStream(16)
	evs := drain(t, s, a.RunStream(context.Background(), req, s, time.Second))

	types := typesOf(evs)
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, []events.EventType{events.Error, events.Done}, types[len(types)-2:])
	errEv := evs[len(evs)-2].Data.(*events.ErrorEvent)
	assert.Equal(t, "security_violation", errEv.Code)
	assert.Equal(t, 403, errEv.Status)
	done := evs[len(evs)-1].Data.(*events.DoneEvent)
	assert.False(t, done.Success)
	assert.Empty(t, done.FinalText)
}

func TestRunStreamRecoversPanic(t *testing.T) {
	model := script(func(*llm.Request) (*llm.Response, error) { panic("provider bug") })
	a := newTestAgent(t, model, toolSet(nil))

	s := events.NewStream(16)
	evs := drain(t, s, a.RunStream(context.Background(), baseRequest(), s, time.Second))

	assert.Equal(t, []events.EventType{events.Error, events.Done}, typesOf(evs))
	assert.Equal(t, CodeInternalError, evs[0].Data.(*events.ErrorEvent).Code)
	assert.False(t, evs[1].Data.(*events.DoneEvent).Success)
}

func TestRunStreamAbandonedConsumer(t *testing.T) {
	lookup := newFuncTool("lookup", nil)
	model := script(calls(call("c1", "lookup", nil)), text("unseen"))
	a := newTestAgent(t, model, toolSet([]tools.Tool{lookup}))

	s := events.NewStream(0)
	s.Abandon()
	finished := a.RunStream(context.Background(), baseRequest(), s, time.Second)

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("run blocked on an abandoned stream")
	}
	assert.Equal(t, 1, lookup.executions(), "in-flight tools still run")
	for range s.Events() {
		t.Fatal("no events expected after abandon")
	}
}
