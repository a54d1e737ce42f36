// Package messaging implements the change-event delivery channel on
// Redis Streams: a fire-and-forget publisher and a manually
// acknowledged consumer group.
package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/domain"
)

// StreamName returns the stream an event kind routes to.
func StreamName(prefix string, kind domain.EventKind) string {
	return prefix + ":" + string(kind)
}

// DeadLetterStream returns the dead-letter stream for a stream.
func DeadLetterStream(stream string) string {
	return stream + ":dead"
}

// StreamPublisher serializes change events and hands them to Redis
// Streams through a bounded in-memory queue. Publish never blocks the
// caller beyond the queue hand-off and never reports failure: delivery
// problems are logged by the background sender and the event is
// dropped. This is a deliberate availability-over-durability tradeoff;
// the mutation already committed and must not be retroactively failed.
type StreamPublisher struct {
	client *redis.Client
	cfg    config.EventsConfig
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	wg     sync.WaitGroup
}

// NewStreamPublisher creates a publisher and starts its background
// sender.
func NewStreamPublisher(client *redis.Client, cfg config.EventsConfig, logger *zap.Logger) *StreamPublisher {
	p := &StreamPublisher{
		client: client,
		cfg:    cfg,
		logger: logger.Named("event-publisher"),
		queue:  make(chan domain.Event, cfg.BufferSize),
	}

	p.wg.Add(1)
	go p.sendLoop()

	return p
}

// Publish assigns a fresh event id and timestamp at call time, wraps
// the payload in the envelope and enqueues it. A full queue or a
// closed publisher drops the event with a logged warning.
func (p *StreamPublisher) Publish(kind domain.EventKind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to serialize event payload",
			zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	ev := domain.Event{
		Kind:       kind,
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source:     p.cfg.Source,
		Payload:    data,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("Publisher closed, dropping event",
			zap.String("kind", string(kind)), zap.String("event_id", ev.EventID))
		return
	}

	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("Event queue full, dropping event",
			zap.String("kind", string(kind)), zap.String("event_id", ev.EventID))
	}
}

// Close stops accepting events and drains the queue.
func (p *StreamPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *StreamPublisher) sendLoop() {
	defer p.wg.Done()
	for ev := range p.queue {
		p.send(ev)
	}
}

func (p *StreamPublisher) send(ev domain.Event) {
	envelope, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to serialize event envelope",
			zap.String("event_id", ev.EventID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PublishTimeout)
	defer cancel()

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamName(p.cfg.StreamPrefix, ev.Kind),
		MaxLen: p.cfg.MaxStreamLen,
		Approx: true,
		Values: map[string]any{
			"kind":     string(ev.Kind),
			"envelope": string(envelope),
		},
	}).Err()

	if err != nil {
		p.logger.Error("Failed to deliver event, dropping",
			zap.String("kind", string(ev.Kind)),
			zap.String("event_id", ev.EventID),
			zap.Error(err))
	}
}
