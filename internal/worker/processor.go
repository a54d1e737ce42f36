// Package worker contains the change-event handlers dispatched by the
// consumer. Handlers keep the Redis read model in sync with the store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/domain"
	"github.com/vehix/vehix/internal/messaging"
	redisrepo "github.com/vehix/vehix/internal/repository/redis"
)

// Processor applies vehicle change events to the read model. Every
// handler is idempotent per event id: re-applying a delivery leaves
// the read model unchanged because writes are guarded by the event's
// occurredAt.
type Processor struct {
	readModel *redisrepo.ReadModel
	logger    *zap.Logger
}

// NewProcessor creates a processor writing to the given read model.
func NewProcessor(readModel *redisrepo.ReadModel, logger *zap.Logger) *Processor {
	return &Processor{
		readModel: readModel,
		logger:    logger.Named("vehicle-processor"),
	}
}

// Register installs one handler per event kind on the consumer.
func (p *Processor) Register(c *messaging.Consumer) {
	c.Handle(domain.VehicleCreated, p.HandleCreated)
	c.Handle(domain.VehicleUpdated, p.HandleUpdated)
	c.Handle(domain.VehicleDeleted, p.HandleDeleted)
}

// HandleCreated records the created vehicle snapshot.
func (p *Processor) HandleCreated(ctx context.Context, ev domain.Event) error {
	return p.upsert(ctx, ev)
}

// HandleUpdated records the post-update vehicle snapshot.
func (p *Processor) HandleUpdated(ctx context.Context, ev domain.Event) error {
	return p.upsert(ctx, ev)
}

// HandleDeleted removes the vehicle from the read model.
func (p *Processor) HandleDeleted(ctx context.Context, ev domain.Event) error {
	var payload domain.DeletedPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("invalid deleted payload: %w", err)
	}
	if payload.ID == "" {
		return fmt.Errorf("deleted payload missing id")
	}

	if err := p.readModel.Delete(ctx, payload.ID, ev.OccurredAt); err != nil {
		return err
	}

	p.logger.Info("Vehicle removed from read model",
		zap.String("id", payload.ID), zap.String("event_id", ev.EventID))
	return nil
}

func (p *Processor) upsert(ctx context.Context, ev domain.Event) error {
	var v domain.Vehicle
	if err := json.Unmarshal(ev.Payload, &v); err != nil {
		return fmt.Errorf("invalid vehicle payload: %w", err)
	}
	if v.ID == "" {
		return fmt.Errorf("vehicle payload missing id")
	}

	if err := p.readModel.Upsert(ctx, v, ev.OccurredAt); err != nil {
		return err
	}

	p.logger.Info("Vehicle read model updated",
		zap.String("id", v.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("event_id", ev.EventID))
	return nil
}
