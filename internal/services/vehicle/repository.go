// Package vehicle provides the vehicle service: it orchestrates the
// store, input validation and best-effort change-event publication.
package vehicle

import (
	"context"

	"github.com/vehix/vehix/internal/domain"
)

// Repository defines the storage operations the service needs. Every
// error it returns is already a translated *domain.Error; raw storage
// codes never cross this interface.
type Repository interface {
	// Create stores a new vehicle and returns the persisted record.
	Create(ctx context.Context, nv domain.NewVehicle) (*domain.Vehicle, error)

	// List returns all vehicles.
	List(ctx context.Context) ([]*domain.Vehicle, error)

	// GetByID retrieves a vehicle by id, NOT_FOUND when missing.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// Update applies a partial update and returns the post-update record.
	Update(ctx context.Context, id string, upd domain.VehicleUpdate) (*domain.Vehicle, error)

	// Delete removes a vehicle and returns the deleted record.
	Delete(ctx context.Context, id string) (*domain.Vehicle, error)
}

// EventPublisher hands a change event to the delivery channel. Publish
// never blocks beyond the hand-off and never reports failure to the
// caller; a mutation that committed is not retroactively failed by a
// messaging problem.
type EventPublisher interface {
	Publish(kind domain.EventKind, payload any)
}
