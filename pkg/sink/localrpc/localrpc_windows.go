//go:build windows

package localrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

// NamedPipeSink delivers batches over a Windows named pipe, the platform
// analogue of WebsocketSink for consumers that prefer a local IPC pipe
// over a loopback socket.
type NamedPipeSink struct {
	conn net.Conn
}

// DialNamedPipe connects to a named pipe such as `\\.\pipe\fsobserve`.
func DialNamedPipe(ctx context.Context, pipeName string) (*NamedPipeSink, error) {
	deadline, ok := ctx.Deadline()
	var timeout *time.Duration
	if ok {
		d := time.Until(deadline)
		timeout = &d
	}
	conn, err := winio.DialPipe(pipeName, timeout)
	if err != nil {
		return nil, fmt.Errorf("localrpc: unable to dial pipe %s: %w", pipeName, err)
	}
	return &NamedPipeSink{conn: conn}, nil
}

// Deliver implements sink.Sink.
func (n *NamedPipeSink) Deliver(_ context.Context, batch []event.OutboundEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("localrpc: unable to encode batch: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := n.conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", sink.ErrRetryable, err)
	}
	return nil
}

// Close terminates the underlying pipe connection.
func (n *NamedPipeSink) Close() error {
	return n.conn.Close()
}
