package mcpclient

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	loggerv2 "journalagent/logger/v2"
)

// Conn is an initialized connection to the tool gateway.
type Conn interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	SessionID() string
	Close() error
}

// Dialer opens a connection and performs the initialize handshake.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Transport kinds understood by HTTPDialer.
const (
	TransportStreamableHTTP = "http"
	TransportSSE            = "sse"
)

// HTTPDialer dials the gateway over streamable HTTP or SSE.
type HTTPDialer struct {
	URL       string
	Headers   map[string]string
	Transport string
	Timeout   time.Duration
	Logger    loggerv2.Logger
}

// Dial creates the transport, starts it and runs the initialize handshake.
func (d *HTTPDialer) Dial(ctx context.Context) (Conn, error) {
	c, err := d.newClient()
	if err != nil {
		return nil, err
	}

	// Start with a background context so the stream outlives the caller's request.
	if err := c.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to start gateway client: %w", err)
	}

	initCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	res, err := c.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: "2024-11-05",
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "journal-agent",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("gateway initialize failed: %w", err)
	}

	id := c.GetSessionId()
	if id == "" {
		// SSE gateways may not expose a session header; track the connection instead.
		id = "local-" + uuid.NewString()
	}
	d.logger().Debug("gateway handshake complete",
		loggerv2.String("session_id", id),
		loggerv2.String("server", res.ServerInfo.Name))
	return &mcpConn{client: c, sessionID: id}, nil
}

func (d *HTTPDialer) newClient() (*client.Client, error) {
	switch d.Transport {
	case TransportSSE:
		var options []transport.ClientOption
		if len(d.Headers) > 0 {
			options = append(options, transport.WithHeaders(d.Headers))
		}
		options = append(options, transport.WithSSELogger(loggerv2.ToUtilLogger(d.logger())))
		t, err := transport.NewSSE(d.URL, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE transport: %w", err)
		}
		return client.NewClient(t), nil
	case TransportStreamableHTTP, "":
		var options []transport.StreamableHTTPCOption
		if len(d.Headers) > 0 {
			options = append(options, transport.WithHTTPHeaders(d.Headers))
		}
		if d.Timeout > 0 {
			options = append(options, transport.WithHTTPTimeout(d.Timeout))
		}
		t, err := transport.NewStreamableHTTP(d.URL, options...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP transport: %w", err)
		}
		return client.NewClient(t), nil
	default:
		return nil, fmt.Errorf("unsupported gateway transport: %s", d.Transport)
	}
}

func (d *HTTPDialer) logger() loggerv2.Logger {
	if d.Logger == nil {
		return loggerv2.NewNoop()
	}
	return d.Logger
}

type mcpConn struct {
	client    *client.Client
	sessionID string
}

func (c *mcpConn) SessionID() string { return c.sessionID }

func (c *mcpConn) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return res.Tools, nil
}

func (c *mcpConn) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
}

func (c *mcpConn) Close() error { return c.client.Close() }
