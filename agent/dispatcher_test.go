package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalagent/llm"
	"journalagent/mcpcache"
	"journalagent/tools"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestToolImageIsInlinedBeforeResult(t *testing.T) {
	srv := imageServer(t)
	chart := newFuncTool("generate_chart", func(map[string]any, tools.Context) tools.Result {
		return tools.Result{Text: "Chart generated.", ImageURL: srv.URL + "/chart.png"}
	})
	model := script(calls(call("c1", "generate_chart", map[string]any{"type": "bar"})), text("Here is your chart."))
	a := newTestAgent(t, model, toolSet([]tools.Tool{chart}), WithImageFetcher(NewImageFetcher(srv.Client(), 0)))

	_, err := a.Run(ctx, baseRequest(), nil)
	require.NoError(t, err)

	msg := lastMessage(model.recorded()[1])
	require.Len(t, msg.Parts, 2)
	require.NotNil(t, msg.Parts[0].Media)
	assert.Equal(t, "image/png", msg.Parts[0].Media.MIMEType)
	assert.Equal(t, pngBytes, msg.Parts[0].Media.Data)
	require.NotNil(t, msg.Parts[1].ToolResult)
	assert.Equal(t, "Chart generated.", msg.Parts[1].ToolResult.Output)
}

func TestDispatcherExecute(t *testing.T) {
	srv := imageServer(t)
	panicky := newFuncTool("panicky", func(map[string]any, tools.Context) tools.Result { panic("boom") })
	notImage := newFuncTool("not_image", func(map[string]any, tools.Context) tools.Result {
		return tools.Result{Text: "see page", ImageURL: srv.URL + "/page.html"}
	})
	src := toolSet([]tools.Tool{panicky, notImage}, "list_trades")
	d := NewDispatcher(src.ts, nil, NewImageFetcher(srv.Client(), 0), nil, nil)

	tests := []struct {
		name      string
		call      llm.ToolCall
		succeeded bool
		contains  string
		handler   mcpcache.HandlerKind
	}{
		{"unknown tool", call("1", "nope", nil), false, "not available", mcpcache.HandlerLocal},
		{"panicking handler", call("2", "panicky", nil), false, "crashed", mcpcache.HandlerLocal},
		{"remote without gateway", call("3", "list_trades", nil), false, "no tool gateway", mcpcache.HandlerRemote},
		{"image url that is not an image", call("4", "not_image", nil), true, "could not be loaded", mcpcache.HandlerLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := d.Execute(context.Background(), tt.call, tools.Context{CallerIdentity: "alice"})
			assert.Equal(t, tt.succeeded, ex.Result.Succeeded)
			assert.Contains(t, ex.Result.Output, tt.contains)
			assert.Equal(t, tt.call.ID, ex.Result.CallID)
			assert.Equal(t, tt.handler, ex.Handler)
			assert.Nil(t, ex.Media)
		})
	}
}

func TestImageFetcherRefusesInternalAddresses(t *testing.T) {
	srv := imageServer(t)
	f := NewImageFetcher(nil, 0)

	_, err := f.Fetch(context.Background(), srv.URL+"/chart.png")
	assert.ErrorIs(t, err, ErrNonPublicAddress, "loopback test server")

	for _, addr := range []string{"127.0.0.1:80", "10.1.2.3:443", "169.254.169.254:80", "[::1]:80", "[::ffff:192.168.0.1]:80", "100.64.0.1:80", "0.0.0.0:80"} {
		assert.ErrorIs(t, publicOnly("tcp", addr, nil), ErrNonPublicAddress, addr)
	}
	for _, addr := range []string{"8.8.8.8:443", "[2606:4700::1111]:443"} {
		assert.NoError(t, publicOnly("tcp", addr, nil), addr)
	}
}

func TestImageFetcherLimits(t *testing.T) {
	srv := imageServer(t)
	tests := []struct {
		name     string
		url      string
		maxBytes int64
		wantErr  bool
	}{
		{"png", srv.URL + "/chart.png", 0, false},
		{"too large", srv.URL + "/chart.png", 4, true},
		{"html", srv.URL + "/page.html", 0, true},
		{"missing", srv.URL + "/missing.png", 0, true},
		{"bad scheme", "ftp://example.com/a.png", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewImageFetcher(srv.Client(), tt.maxBytes).Fetch(context.Background(), tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "image/png", m.MIMEType)
		})
	}
}
