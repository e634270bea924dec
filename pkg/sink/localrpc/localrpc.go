// Package localrpc provides an optional reference Sink implementation that
// delivers OutboundEvent batches to a local consumer over a websocket (on
// POSIX, via coder/websocket, following the WebSocket dial/write pattern
// in conneroisu-templar's internal/server/websocket.go) or a named pipe (on
// Windows, via Microsoft/go-winio). The wire transport is left optional;
// this package exists only so an embedder has a working default instead of
// being forced to implement sink.Sink from scratch.
package localrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

// WebsocketSink delivers batches to a single persistent websocket
// connection, encoding each batch as a JSON array.
type WebsocketSink struct {
	url  string
	conn *websocket.Conn
}

// Dial connects to a local websocket endpoint (typically a loopback address
// exposed by the consuming application).
func Dial(ctx context.Context, url string) (*WebsocketSink, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("localrpc: unable to dial %s: %w", url, err)
	}
	return &WebsocketSink{url: url, conn: conn}, nil
}

// Deliver implements sink.Sink.
func (w *WebsocketSink) Deliver(ctx context.Context, batch []event.OutboundEvent) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("localrpc: unable to encode batch: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("%w: %v", sink.ErrRetryable, err)
	}
	return nil
}

// Close terminates the underlying connection.
func (w *WebsocketSink) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "closing")
}
