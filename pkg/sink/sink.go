// Package sink defines the Sink interface the Dispatcher delivers
// OutboundEvents through. The transport itself is left pluggable: this
// package provides only the delivery contract plus a trivial in-memory
// reference implementation, leaving real transports (see sink/localrpc)
// as optional adapters.
package sink

import (
	"context"
	"errors"

	"github.com/inkwell-ai/fsobserve/pkg/event"
)

// ErrRetryable marks a delivery failure the Dispatcher should retry.
var ErrRetryable = errors.New("sink: retryable delivery failure")

// ErrFatal marks a delivery failure the Dispatcher must not retry; the
// caller surfaces it as a SinkFatal error instead.
var ErrFatal = errors.New("sink: fatal delivery failure")

// Sink delivers batches of OutboundEvents to the consuming system.
// Implementations classify failures by wrapping ErrRetryable or ErrFatal;
// any other error is treated as retryable.
type Sink interface {
	Deliver(ctx context.Context, batch []event.OutboundEvent) error
}

// Memory is a reference Sink that simply accumulates every delivered batch,
// useful for tests and for embedding fsobserve as a library without a real
// transport.
type Memory struct {
	Batches [][]event.OutboundEvent
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Deliver implements Sink.
func (m *Memory) Deliver(_ context.Context, batch []event.OutboundEvent) error {
	cp := append([]event.OutboundEvent(nil), batch...)
	m.Batches = append(m.Batches, cp)
	return nil
}
