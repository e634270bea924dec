package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/inkwell-ai/fsobserve/pkg/event"
	"github.com/inkwell-ai/fsobserve/pkg/pathkey"
	"github.com/inkwell-ai/fsobserve/pkg/sink"
)

// No event handed to the Dispatcher is ever lost, regardless of how many
// arrive before the sink drains them. A long batch interval keeps the
// background ticker from flushing mid-sequence, so Stop's final flush is
// what delivers everything queued.
func TestDispatcherLosesNoEnqueuedEvent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("every enqueued event is eventually delivered exactly once", prop.ForAll(
		func(count int) bool {
			mem := sink.NewMemory()
			d := New(mem, Options{MaxBatchSize: 1000, BatchInterval: time.Hour})

			for i := 0; i < count; i++ {
				d.EnqueueScanned(event.OutboundEvent{
					Path:       pathkey.MustNew(fmt.Sprintf("/scan/path-%d", i)),
					Kind:       event.Created,
					Origin:     event.OriginInitialScan,
					ObservedAt: time.Now(),
				})
			}
			d.Stop()

			delivered := 0
			for _, batch := range mem.Batches {
				delivered += len(batch)
			}
			return delivered == count
		},
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

// Backlogged reports true once and only once the internal batch has grown
// to four times the configured target size. The batch is set directly
// under the dispatcher's own lock so this property is independent of the
// background flush loop's timing.
func TestDispatcherBackloggedThreshold(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("backlogged tracks the four-times-target threshold", prop.ForAll(
		func(maxBatchSize int, batchLen int) bool {
			mem := sink.NewMemory()
			d := New(mem, Options{MaxBatchSize: maxBatchSize, BatchInterval: time.Hour})
			defer d.Stop()

			d.mu.Lock()
			d.batch = make([]event.OutboundEvent, batchLen)
			d.mu.Unlock()

			want := batchLen >= d.maxBatchSize*4
			return d.Backlogged() == want
		},
		gen.IntRange(1, 20),
		gen.IntRange(0, 200),
	))

	properties.TestingRun(t)
}
