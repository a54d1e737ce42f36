package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/config"
	"github.com/vehix/vehix/internal/domain"
)

// HandlerFunc processes one delivered event. Returning nil
// acknowledges the delivery; returning an error negatively
// acknowledges it: the entry is moved to the dead-letter stream and
// never requeued. Delivery is at-least-once, so handlers must be
// idempotent per event id.
type HandlerFunc func(ctx context.Context, ev domain.Event) error

// Consumer reads change events from the kind streams through a
// consumer group and dispatches them to registered handlers. In-flight
// deliveries are bounded: when every slot is busy the consumer stops
// accepting new deliveries instead of buffering them.
type Consumer struct {
	client       *redis.Client
	cfg          config.WorkerConfig
	streamPrefix string
	handlers     map[domain.EventKind]HandlerFunc
	logger       *zap.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewConsumer creates a consumer for the given group and consumer name.
func NewConsumer(client *redis.Client, streamPrefix string, cfg config.WorkerConfig, logger *zap.Logger) *Consumer {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}
	return &Consumer{
		client:       client,
		cfg:          cfg,
		streamPrefix: streamPrefix,
		handlers:     make(map[domain.EventKind]HandlerFunc),
		logger:       logger.Named("event-consumer"),
		sem:          make(chan struct{}, cfg.MaxInFlight),
	}
}

// Handle registers the handler for an event kind. The dispatch table
// is explicit: one handler per kind, no reflection.
func (c *Consumer) Handle(kind domain.EventKind, fn HandlerFunc) {
	c.handlers[kind] = fn
}

// Run creates the consumer group on every kind stream, drains this
// consumer's unacknowledged backlog (deliveries interrupted by a
// crash) and then consumes new entries until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	streams := make([]string, 0, len(domain.EventKinds))
	for _, kind := range domain.EventKinds {
		stream := StreamName(c.streamPrefix, kind)
		streams = append(streams, stream)

		err := c.client.XGroupCreateMkStream(ctx, stream, c.cfg.Group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
	}

	c.logger.Info("Consumer started",
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer),
		zap.Int("max_in_flight", c.cfg.MaxInFlight))

	if err := c.drainBacklog(ctx, streams); err != nil {
		return err
	}

	err := c.consume(ctx, streams, ">")

	// Let in-flight handlers finish before returning.
	c.wg.Wait()
	return err
}

// drainBacklog re-processes entries that were delivered to this
// consumer but never acknowledged.
func (c *Consumer) drainBacklog(ctx context.Context, streams []string) error {
	for {
		res, err := c.readGroup(ctx, streams, "0")
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read backlog: %w", err)
		}

		total := 0
		for _, sr := range res {
			total += len(sr.Messages)
			for _, msg := range sr.Messages {
				c.dispatch(ctx, sr.Stream, msg)
			}
		}
		if total == 0 {
			return nil
		}

		// Entries stay pending until their handler settles them, so
		// re-reading before that would deliver the same batch again.
		c.wg.Wait()
	}
}

func (c *Consumer) consume(ctx context.Context, streams []string, id string) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.readGroup(ctx, streams, id)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to read from streams", zap.Error(err))
			continue
		}

		for _, sr := range res {
			for _, msg := range sr.Messages {
				c.dispatch(ctx, sr.Stream, msg)
			}
		}
	}
}

// readGroup reads from every kind stream at once. With id ">" it
// blocks up to BlockTime for new entries; with id "0" it returns this
// consumer's pending entries immediately.
func (c *Consumer) readGroup(ctx context.Context, streams []string, id string) ([]redis.XStream, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, id)
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  args,
		Count:    int64(c.readCount()),
		Block:    c.cfg.BlockTime,
	}).Result()
}

// readCount returns how many entries the next read may admit: the
// number of free in-flight slots, at least one so a blocking read can
// still park while every slot is busy.
func (c *Consumer) readCount() int {
	free := cap(c.sem) - len(c.sem)
	if free < 1 {
		return 1
	}
	return free
}

// dispatch blocks until an in-flight slot frees up, then processes the
// delivery concurrently. Blocking here is the backpressure: no slot,
// no new delivery.
func (c *Consumer) dispatch(ctx context.Context, stream string, msg redis.XMessage) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		// Shutting down; the unacked entry stays pending and is
		// redelivered from the backlog on restart.
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() { <-c.sem }()
		c.process(ctx, stream, msg)
	}()
}

// process runs the delivery through its handler and settles it:
// acknowledge on success, dead-letter plus acknowledge on failure. A
// poison message is never redelivered by this group.
func (c *Consumer) process(ctx context.Context, stream string, msg redis.XMessage) {
	ev, err := decodeEnvelope(msg)
	if err != nil {
		c.logger.Error("Undecodable event, dead-lettering",
			zap.String("stream", stream), zap.String("message_id", msg.ID), zap.Error(err))
		c.nack(ctx, stream, msg, err)
		return
	}

	logger := c.logger.With(
		zap.String("kind", string(ev.Kind)),
		zap.String("event_id", ev.EventID),
		zap.String("message_id", msg.ID))

	handler, ok := c.handlers[ev.Kind]
	if !ok {
		c.nack(ctx, stream, msg, fmt.Errorf("no handler for kind %q", ev.Kind))
		logger.Error("No handler registered, dead-lettered")
		return
	}

	if err := handler(ctx, ev); err != nil {
		c.nack(ctx, stream, msg, err)
		logger.Error("Handler failed, dead-lettered", zap.Error(err))
		return
	}

	c.ack(ctx, stream, msg)
	logger.Debug("Event acknowledged")
}

func (c *Consumer) ack(ctx context.Context, stream string, msg redis.XMessage) {
	if err := c.client.XAck(ctx, stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// nack moves the entry to the dead-letter stream and acknowledges the
// original so it is never requeued.
func (c *Consumer) nack(ctx context.Context, stream string, msg redis.XMessage, cause error) {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["error"] = cause.Error()
	values["origin_id"] = msg.ID

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(stream),
		Values: values,
	}).Err(); err != nil {
		c.logger.Error("Failed to dead-letter message",
			zap.String("message_id", msg.ID), zap.Error(err))
	}

	c.ack(ctx, stream, msg)
}

func decodeEnvelope(msg redis.XMessage) (domain.Event, error) {
	var ev domain.Event

	raw, ok := msg.Values["envelope"].(string)
	if !ok {
		return ev, errors.New("missing envelope field")
	}
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return ev, fmt.Errorf("invalid envelope: %w", err)
	}
	if ev.EventID == "" || ev.Kind == "" {
		return ev, errors.New("envelope missing event id or kind")
	}
	return ev, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
