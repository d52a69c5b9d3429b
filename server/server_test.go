package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"journalagent/agent"
	"journalagent/llm"
	"journalagent/mcpcache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"))
}

const (
	alice = "11111111-1111-1111-1111-111111111111"
	bob   = "22222222-2222-2222-2222-222222222222"
)

// replyModel answers every request with the same text, streamed in two
// fragments.
type replyModel struct {
	text string
	key  string
}

func (m *replyModel) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	return m.GenerateStream(ctx, req, nil)
}

func (m *replyModel) GenerateStream(_ context.Context, _ *llm.Request, onText func(string)) (*llm.Response, error) {
	if onText != nil {
		half := len(m.text) / 2
		onText(m.text[:half])
		onText(m.text[half:])
	}
	return &llm.Response{Text: m.text, FinishReason: "STOP"}, nil
}

func (m *replyModel) ModelID() string { return "test-model" }

type stubRegistry struct {
	mu        sync.Mutex
	refreshes int
	ts        *mcpcache.ToolSet
}

func (r *stubRegistry) GetTools(context.Context) *mcpcache.ToolSet { return r.ts }

func (r *stubRegistry) Refresh(context.Context) *mcpcache.ToolSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	return r.ts
}

func newRegistry() *stubRegistry {
	return &stubRegistry{ts: &mcpcache.ToolSet{
		Schemas: []llm.ToolSchema{
			{Name: "web_search", Description: "Search the web"},
			{Name: "list_trades", Description: "List trades"},
		},
		Handlers: map[string]mcpcache.Handler{
			"web_search":  {Kind: mcpcache.HandlerLocal, Name: "web_search"},
			"list_trades": {Kind: mcpcache.HandlerRemote, Name: "list_trades"},
		},
		FetchedAt: time.Now(),
	}}
}

// emptyTools offers the model nothing, so runs never touch tool handlers.
type emptyTools struct{}

func (emptyTools) GetTools(context.Context) *mcpcache.ToolSet {
	return &mcpcache.ToolSet{Handlers: map[string]mcpcache.Handler{}}
}

func newTestServer(t *testing.T, agents *Agents) (*Server, *httptest.Server) {
	t.Helper()
	s := New(agents, newRegistry(), Options{RunTimeout: 5 * time.Second}, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Drain(ctx))
	})
	return s, ts
}

func agentsReplying(t *testing.T, text string) *Agents {
	t.Helper()
	a, err := agent.NewAgent(&replyModel{text: text}, emptyTools{})
	require.NoError(t, err)
	return NewAgents(a, nil, emptyTools{})
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type sseEvent struct {
	name string
	data map[string]any
}

func readSSE(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	var out []sseEvent
	var name string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			out = append(out, sseEvent{name: name, data: data})
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestChatStream(t *testing.T) {
	_, ts := newTestServer(t, agentsReplying(t, "Your win rate this month is 62%."))

	resp := post(t, ts.URL+"/api/v1/chat/stream", map[string]any{
		"message":         "How am I doing?",
		"caller_identity": alice,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	evs := readSSE(t, resp)
	require.NotEmpty(t, evs)
	var streamed strings.Builder
	for _, ev := range evs[:len(evs)-1] {
		if ev.name == "text_chunk" {
			streamed.WriteString(ev.data["text"].(string))
		}
	}
	assert.Equal(t, "Your win rate this month is 62%.", streamed.String())

	done := evs[len(evs)-1]
	assert.Equal(t, "done", done.name)
	assert.Equal(t, true, done.data["success"])
	assert.Equal(t, "Your win rate this month is 62%.", done.data["final_text"])
	assert.Equal(t, []any{}, done.data["citations"])
	meta := done.data["metadata"].(map[string]any)
	assert.Equal(t, "text", meta["stop_reason"])
	assert.Equal(t, resp.Header.Get("X-Request-Id"), meta["request_id"])
}

func TestChatStreamSecurityViolation(t *testing.T) {
	_, ts := newTestServer(t, agentsReplying(t, "That trade belongs to user_id: "+bob+"."))

	resp := post(t, ts.URL+"/api/v1/chat/stream", map[string]any{"message": "whose trade?", "caller_identity": alice})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	evs := readSSE(t, resp)
	require.Len(t, evs, 2)
	assert.Equal(t, "error", evs[0].name)
	assert.Equal(t, agent.CodeSecurityViolation, evs[0].data["code"])
	assert.EqualValues(t, http.StatusForbidden, evs[0].data["status"])
	assert.Equal(t, "done", evs[1].name)
	assert.Equal(t, false, evs[1].data["success"])
	assert.Equal(t, "", evs[1].data["final_text"])
}

func TestChatJSON(t *testing.T) {
	_, ts := newTestServer(t, agentsReplying(t, "Noted."))

	resp := post(t, ts.URL+"/api/v1/chat", map[string]any{
		"message":         "remember I trade futures",
		"caller_identity": alice,
		"conversation_history": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "Hello!"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "Noted.", body.FinalText)
	assert.NotNil(t, body.Citations)
	assert.Equal(t, "test-model", body.Metadata["model"])
}

func TestChatJSONSecurityViolation(t *testing.T) {
	_, ts := newTestServer(t, agentsReplying(t, "user id is "+bob))

	resp := post(t, ts.URL+"/api/v1/chat", map[string]any{"message": "who?", "caller_identity": alice})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, agent.CodeSecurityViolation, body.Error)
	assert.NotContains(t, body.Message, bob)
}

func TestRequestValidation(t *testing.T) {
	_, ts := newTestServer(t, agentsReplying(t, "unused"))
	img := map[string]string{"mime_type": "image/png", "data": base64.StdEncoding.EncodeToString([]byte("png"))}

	tests := []struct {
		name string
		body any
		want string
	}{
		{"no message or image", map[string]any{"caller_identity": alice}, "message or at least one image"},
		{"missing identity", map[string]any{"message": "hi"}, "caller_identity is required"},
		{"too many images", map[string]any{"caller_identity": alice, "images": []any{img, img, img, img, img}}, "at most 4 images"},
		{"bad base64", map[string]any{"caller_identity": alice, "images": []any{map[string]string{"mime_type": "image/png", "data": "%%%"}}}, "invalid base64"},
		{"not an image", map[string]any{"caller_identity": alice, "images": []any{map[string]string{"mime_type": "text/plain", "data": "aGk="}}}, "unsupported mime type"},
		{"unknown role", map[string]any{"caller_identity": alice, "message": "hi", "conversation_history": []any{map[string]string{"role": "system", "content": "x"}}}, "unknown role"},
		{"not json", "{", "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if s, ok := tt.body.(string); ok {
				r, err := http.Post(ts.URL+"/api/v1/chat/stream", "application/json", strings.NewReader(s))
				require.NoError(t, err)
				defer r.Body.Close()
				resp = r
			} else {
				resp = post(t, ts.URL+"/api/v1/chat/stream", tt.body)
			}
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, CodeInvalidRequest, body.Error)
			assert.Contains(t, body.Message, tt.want)
		})
	}
}

func TestMissingCredential(t *testing.T) {
	_, ts := newTestServer(t, NewAgents(nil, nil, emptyTools{}))

	for _, path := range []string{"/api/v1/chat", "/api/v1/chat/stream"} {
		resp := post(t, ts.URL+path, map[string]any{"message": "hi", "caller_identity": alice})
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		var body errorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, CodeMissingLLMCredential, body.Error)
	}
}

func TestCallerSuppliedKey(t *testing.T) {
	var gotKey string
	factory := func(_ context.Context, key string) (llm.Model, error) {
		if key == "bad" {
			return nil, errors.New("rejected")
		}
		gotKey = key
		return &replyModel{text: "Using your key.", key: key}, nil
	}
	_, ts := newTestServer(t, NewAgents(nil, factory, emptyTools{}))

	resp := post(t, ts.URL+"/api/v1/chat", map[string]any{
		"message":                   "hi",
		"caller_identity":           alice,
		"user_supplied_credentials": map[string]string{"llm_api_key": " sk-user "},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sk-user", gotKey)
	var body chatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Using your key.", body.FinalText)

	resp = post(t, ts.URL+"/api/v1/chat", map[string]any{
		"message":                   "hi",
		"caller_identity":           alice,
		"user_supplied_credentials": map[string]string{"llm_api_key": "bad"},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestToolsEndpoints(t *testing.T) {
	s, ts := newTestServer(t, agentsReplying(t, "unused"))
	reg := s.registry.(*stubRegistry)

	resp, err := http.Get(ts.URL + "/api/v1/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body toolsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tools, 2)
	assert.Equal(t, "local", body.Tools[0].Source)
	assert.Equal(t, "remote", body.Tools[1].Source)

	resp = post(t, ts.URL+"/api/v1/tools/refresh", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, reg.refreshes)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, NewAgents(nil, nil, emptyTools{}))

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["llm_configured"])
}

func TestImageDecode(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	enc := base64.StdEncoding.EncodeToString(raw)

	m, err := ImageInput{Data: "data:image/png;base64," + enc}.decode()
	require.NoError(t, err)
	assert.Equal(t, "image/png", m.MIMEType)
	assert.Equal(t, raw, m.Data)

	_, err = ImageInput{Data: "data:image/png," + enc}.decode()
	assert.Error(t, err)

	req, err := (&ChatRequest{Images: []ImageInput{{MIMEType: "image/jpeg", Data: enc}}, CallerIdentity: alice}).toAgentRequest("r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", req.RequestID)
	require.Len(t, req.Images, 1)
	assert.Empty(t, req.Message)
}
