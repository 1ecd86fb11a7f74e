package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/trasealla/delivery-tracking/internal/api/metrics"
	"github.com/trasealla/delivery-tracking/internal/core/ports"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// Dispatcher routes position samples to a fixed set of workers using
// consistent hashing on the agent ID, guaranteeing per-agent apply
// ordering even when a driver app flushes a burst of buffered samples.
type Dispatcher struct {
	workers []chan ports.PositionInput
	service ports.PositionService
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, service ports.PositionService, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan ports.PositionInput, numWorkers),
		service: service,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.PositionInput, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue sends a sample to the worker responsible for its agent.
// Non-blocking up to channelBuffer capacity.
func (d *Dispatcher) Enqueue(in ports.PositionInput) {
	i := d.shardIndex(in.AgentID)
	d.workers[i] <- in
	metrics.IngestQueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(len(d.workers[i])))
}

// shardIndex maps an agent ID deterministically to a worker index.
func (d *Dispatcher) shardIndex(agentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(agentID))
	return int(h.Sum32()) % len(d.workers)
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.PositionInput) {
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-ch:
			if !ok {
				return
			}
			if err := d.service.Apply(ctx, in); err != nil {
				d.log.Error().Err(err).
					Str("agent_id", in.AgentID).
					Int("worker_id", id).
					Msg("position apply failed")
			}
			metrics.IngestQueueDepth.WithLabelValues(strconv.Itoa(id)).Set(float64(len(ch)))
		}
	}
}
