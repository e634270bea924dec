package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// controlClient is a thin MCP client over the control surface exposed by
// the running fsobserved instance's run command (pkg/control, served over
// SSE at /sse).
type controlClient struct {
	session *mcp.ClientSession
}

func newControlClient(addr string) (*controlClient, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "fsobserved-cli", Version: "1.0.0"}, nil)
	transport := &mcp.SSEClientTransport{Endpoint: fmt.Sprintf("http://%s/sse", addr)}

	session, err := client.Connect(context.Background(), transport)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to control surface at %s: %w", addr, err)
	}
	return &controlClient{session: session}, nil
}

func (c *controlClient) Close() error {
	return c.session.Close()
}

func (c *controlClient) triggerRescan(root string) (string, error) {
	result, err := c.session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "trigger_rescan",
		Arguments: map[string]any{"root": root},
	})
	if err != nil {
		return "", fmt.Errorf("trigger_rescan call failed: %w", err)
	}

	var out struct {
		Message string `json:"message"`
	}
	if err := decodeToolResult(result, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// statusView mirrors control.StatusOutput without importing pkg/control's
// server-side type, so this client stays a plain consumer of the wire
// result rather than depending on the adapter it talks to.
type statusView struct {
	State           string `json:"state"`
	WatchedRoots    int    `json:"watched_roots"`
	EventsReceived  uint64 `json:"events_received"`
	EventsDropped   uint64 `json:"events_dropped"`
	EventsDelivered uint64 `json:"events_delivered"`
}

func (c *controlClient) status() (statusView, error) {
	result, err := c.session.CallTool(context.Background(), &mcp.CallToolParams{Name: "status"})
	if err != nil {
		return statusView{}, fmt.Errorf("status call failed: %w", err)
	}

	var out statusView
	if err := decodeToolResult(result, &out); err != nil {
		return statusView{}, err
	}
	return out, nil
}

func decodeToolResult(result *mcp.CallToolResult, out any) error {
	if result.IsError {
		return fmt.Errorf("tool call returned an error result")
	}
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		return fmt.Errorf("unable to marshal tool result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unable to decode tool result: %w", err)
	}
	return nil
}
