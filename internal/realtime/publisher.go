package realtime

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/gracetrack-api/internal/models"
	"github.com/noah-isme/gracetrack-api/internal/service"
	"github.com/noah-isme/gracetrack-api/pkg/jobs"
)

const changeJobType = "change_event"

// Listener reacts to committed changes on the publishing instance.
type Listener func(ctx context.Context, event models.ChangeEvent)

// Publisher moves change events off the request path. Events are queued, handed to listeners and
// then fanned out through Redis when a bus is configured or straight to the local hub otherwise.
type Publisher struct {
	queue     *jobs.Queue
	hub       *Hub
	bus       *RedisBus
	listeners []Listener
	metrics   *service.MetricsService
	logger    *zap.Logger
}

// NewPublisher builds the publisher and its worker queue. bus and metrics may be nil.
func NewPublisher(hub *Hub, bus *RedisBus, metrics *service.MetricsService, cfg jobs.QueueConfig, listeners ...Listener) *Publisher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	p := &Publisher{
		hub:       hub,
		bus:       bus,
		listeners: listeners,
		metrics:   metrics,
		logger:    cfg.Logger,
	}
	p.queue = jobs.NewQueue("change-feed", p.handle, cfg)
	return p
}

// Start launches the workers and, with a bus, the cross-instance subscription. The returned stop
// function drains both.
func (p *Publisher) Start(ctx context.Context) (func(), error) {
	p.queue.Start(ctx)
	if p.bus == nil {
		return p.queue.Stop, nil
	}
	cancel, err := p.bus.Subscribe(ctx, p.hub.Deliver)
	if err != nil {
		p.queue.Stop()
		return nil, err
	}
	return func() {
		cancel()
		p.queue.Stop()
	}, nil
}

// Publish implements service.ChangePublisher. It never blocks. When the queue cannot take the
// event the fan-out is dropped but listeners still run inline, so caches are never left stale.
func (p *Publisher) Publish(ctx context.Context, event models.ChangeEvent) {
	job := jobs.Job{ID: uuid.NewString(), Type: changeJobType, Payload: event}
	if err := p.queue.TryEnqueue(job); err != nil {
		p.metrics.RecordChangeDropped()
		p.logger.Warn("change event dropped",
			zap.String("church_id", event.ChurchID),
			zap.String("collection", string(event.Collection)),
			zap.Error(err))
		p.notify(ctx, event)
	}
}

// Pending reports queued events not yet handled.
func (p *Publisher) Pending() int {
	return p.queue.Len()
}

func (p *Publisher) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.ChangeEvent)
	if !ok {
		return fmt.Errorf("unexpected change payload %T", job.Payload)
	}
	// listeners run once per event; retries below only repeat the fan-out
	if job.Attempt == 0 {
		p.notify(ctx, event)
	}
	if p.bus != nil {
		return p.bus.Publish(ctx, event)
	}
	p.hub.Deliver(ctx, event)
	return nil
}

func (p *Publisher) notify(ctx context.Context, event models.ChangeEvent) {
	for _, l := range p.listeners {
		l(ctx, event)
	}
}
