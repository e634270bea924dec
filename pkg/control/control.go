// Package control exposes the Orchestrator's four process-control
// operations (initialise, start, stop, trigger_rescan) as tools on a local
// MCP server, grounded on colebrumley-srvrmgr's internal/mcp/server.go
// (mcp.NewServer/mcp.AddTool/StdioTransport/NewSSEHandler). This package
// is a thin adapter: it contains no pipeline logic of its own and every
// tool handler delegates directly to an *orchestrator.Orchestrator.
package control

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/inkwell-ai/fsobserve/pkg/configuration"
	"github.com/inkwell-ai/fsobserve/pkg/orchestrator"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

// InitialiseInput is the input schema for the initialise tool.
type InitialiseInput struct {
	WatchRoots             []string `json:"watch_roots" jsonschema:"Absolute paths to watch"`
	IncludeExtensions      []string `json:"include_extensions,omitempty" jsonschema:"Only admit files with these extensions (empty admits all)"`
	ExcludePatterns        []string `json:"exclude_patterns,omitempty" jsonschema:"Glob patterns to reject"`
	MaxFileSizeBytes       uint64   `json:"max_file_size_bytes,omitempty" jsonschema:"Reject files larger than this (0 uses the default)"`
	AdmitHidden            bool     `json:"admit_hidden,omitempty" jsonschema:"Admit dotfiles and dot-directories"`
	DebounceDelayMS        uint32   `json:"debounce_delay_ms,omitempty" jsonschema:"Coalescing debounce window in milliseconds (0 uses the default)"`
	IndexScanIntervalHours uint32   `json:"index_scan_interval_hours,omitempty" jsonschema:"Periodic full re-scan interval in hours (0 uses the default)"`
}

// InitialiseOutput is the output schema for the initialise tool.
type InitialiseOutput struct {
	State string `json:"state"`
}

// StartOutput is the output schema for the start tool.
type StartOutput struct {
	State string `json:"state"`
}

// StopOutput is the output schema for the stop tool.
type StopOutput struct {
	State string `json:"state"`
}

// TriggerRescanInput is the input schema for the trigger_rescan tool.
type TriggerRescanInput struct {
	Root string `json:"root" jsonschema:"One of the configured watch_roots to re-scan"`
}

// TriggerRescanOutput is the output schema for the trigger_rescan tool.
type TriggerRescanOutput struct {
	Message string `json:"message"`
}

// StatusOutput mirrors orchestrator.Statistics for MCP consumers; it is a
// read-only view, not one of the four control operations, surfaced so an
// agent loop can inspect progress without a separate channel.
type StatusOutput struct {
	State           string `json:"state"`
	WatchedRoots    int    `json:"watched_roots"`
	EventsReceived  uint64 `json:"events_received"`
	EventsDropped   uint64 `json:"events_dropped"`
	EventsDelivered uint64 `json:"events_delivered"`
}

// Server wraps an *orchestrator.Orchestrator behind an MCP server exposing
// initialise/start/stop/trigger_rescan/status as tools.
type Server struct {
	orch    *orchestrator.Orchestrator
	sinkOut sink.Sink
	server  *mcp.Server
}

// Options configures a control Server.
type Options struct {
	// StateDir is passed through to orchestrator.Options.StateDir.
	StateDir string
	// Sink is delivered batches once the start tool is invoked. A Memory
	// sink is used if none is supplied, so the server is runnable without
	// a configured transport.
	Sink sink.Sink
}

// NewServer creates a control Server wrapping a fresh, Uninitialised
// Orchestrator.
func NewServer(opts Options) *Server {
	s := opts.Sink
	if s == nil {
		s = sink.NewMemory()
	}

	c := &Server{
		orch:    orchestrator.New(orchestrator.Options{StateDir: opts.StateDir}),
		sinkOut: s,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "fsobserve-control",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "initialise",
		Description: "Validate configuration and build the ingestion pipeline without starting it. Must be called before start.",
	}, c.handleInitialise)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start",
		Description: "Start watching every configured root and begin delivering change batches. Requires a prior successful initialise call.",
	}, c.handleStart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop",
		Description: "Stop watching and tear down the pipeline. Calling stop twice is safe and a no-op the second time.",
	}, c.handleStop)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "trigger_rescan",
		Description: "Start an out-of-band full re-scan of one configured watch root, resuming from any valid checkpoint.",
	}, c.handleTriggerRescan)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "Report the current lifecycle state and point-in-time pipeline statistics.",
	}, c.handleStatus)

	c.server = server
	return c
}

func (c *Server) handleInitialise(ctx context.Context, req *mcp.CallToolRequest, input InitialiseInput) (*mcp.CallToolResult, InitialiseOutput, error) {
	cfg := configuration.Defaults()
	cfg.WatchRoots = input.WatchRoots
	if len(input.IncludeExtensions) > 0 {
		cfg.IncludeExtensions = input.IncludeExtensions
	}
	if len(input.ExcludePatterns) > 0 {
		cfg.ExcludePatterns = input.ExcludePatterns
	}
	if input.MaxFileSizeBytes > 0 {
		cfg.MaxFileSizeBytes = input.MaxFileSizeBytes
	}
	cfg.AdmitHidden = input.AdmitHidden
	if input.DebounceDelayMS > 0 {
		cfg.DebounceDelayMS = input.DebounceDelayMS
	}
	if input.IndexScanIntervalHours > 0 {
		cfg.IndexScanIntervalHours = input.IndexScanIntervalHours
	}

	if err := c.orch.Initialise(cfg); err != nil {
		return nil, InitialiseOutput{}, fmt.Errorf("initialise rejected: %w", err)
	}
	return nil, InitialiseOutput{State: c.orch.State().String()}, nil
}

func (c *Server) handleStart(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, StartOutput, error) {
	if err := c.orch.Start(c.sinkOut); err != nil {
		return nil, StartOutput{}, fmt.Errorf("start rejected: %w", err)
	}
	return nil, StartOutput{State: c.orch.State().String()}, nil
}

func (c *Server) handleStop(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, StopOutput, error) {
	if err := c.orch.Stop(); err != nil {
		return nil, StopOutput{}, fmt.Errorf("stop failed: %w", err)
	}
	return nil, StopOutput{State: c.orch.State().String()}, nil
}

func (c *Server) handleTriggerRescan(ctx context.Context, req *mcp.CallToolRequest, input TriggerRescanInput) (*mcp.CallToolResult, TriggerRescanOutput, error) {
	if err := c.orch.TriggerRescan(input.Root); err != nil {
		return nil, TriggerRescanOutput{}, fmt.Errorf("trigger_rescan rejected: %w", err)
	}
	return nil, TriggerRescanOutput{Message: fmt.Sprintf("re-scan of %s scheduled", input.Root)}, nil
}

func (c *Server) handleStatus(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, StatusOutput, error) {
	stats := c.orch.Statistics()

	var received, dropped uint64
	for _, w := range stats.Watchers {
		received += w.EventsReceived
		dropped += w.EventsDropped
	}

	return nil, StatusOutput{
		State:           stats.State.String(),
		WatchedRoots:    len(stats.Watchers),
		EventsReceived:  received,
		EventsDropped:   dropped,
		EventsDelivered: stats.Dispatcher.Delivered,
	}, nil
}

// Initialise validates cfg and builds the wrapped Orchestrator's pipeline,
// for callers (such as the fsobserved run command) that configure the
// instance directly rather than through the initialise tool.
func (c *Server) Initialise(cfg configuration.Snapshot) error {
	return c.orch.Initialise(cfg)
}

// StartPipeline starts the wrapped Orchestrator against this Server's
// configured sink, for callers that start the instance directly rather
// than through the start tool.
func (c *Server) StartPipeline() error {
	return c.orch.Start(c.sinkOut)
}

// Run starts the MCP server on stdio, blocking until ctx is cancelled.
func (c *Server) Run(ctx context.Context) error {
	return c.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP starts the MCP server as an SSE-over-HTTP server on addr.
func (c *Server) RunHTTP(ctx context.Context, addr string) error {
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return c.server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", sseHandler)
	mux.Handle("/sse", sseHandler)

	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close stops the Orchestrator if it is running.
func (c *Server) Close() error {
	return c.orch.Stop()
}
