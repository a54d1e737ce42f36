package vehicle

import (
	"context"

	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/domain"
)

// Service orchestrates vehicle CRUD. Every successful mutation is
// followed by exactly one best-effort publish; publication can never
// change the result already produced for the caller.
type Service struct {
	repo      Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewService creates a new vehicle service. All collaborators are
// injected explicitly.
func NewService(repo Repository, publisher EventPublisher, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("vehicle-service"),
	}
}

// Create validates and stores a new vehicle, then emits a created
// event carrying the persisted snapshot. A store failure propagates
// unchanged and emits nothing.
func (s *Service) Create(ctx context.Context, nv domain.NewVehicle) (*domain.Vehicle, error) {
	if err := validateNew(&nv); err != nil {
		s.logger.Warn("Rejected vehicle create", zap.Error(err))
		return nil, err
	}

	v, err := s.repo.Create(ctx, nv)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(domain.VehicleCreated, v)
	return v, nil
}

// List returns all vehicles.
func (s *Service) List(ctx context.Context) ([]*domain.Vehicle, error) {
	return s.repo.List(ctx)
}

// GetByID retrieves one vehicle. Absence is re-asserted as an explicit
// NOT_FOUND here rather than trusting an ambiguous storage signal.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	v, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			return nil, domain.NotFound("vehicle not found")
		}
		return nil, err
	}
	if v == nil {
		return nil, domain.NotFound("vehicle not found")
	}
	return v, nil
}

// Update validates and applies a partial update, then emits an updated
// event carrying the full post-update snapshot. A patch with no fields
// changes nothing: it behaves like a read and emits no event.
func (s *Service) Update(ctx context.Context, id string, upd domain.VehicleUpdate) (*domain.Vehicle, error) {
	if upd.Empty() {
		return s.GetByID(ctx, id)
	}

	if err := validateUpdate(&upd); err != nil {
		s.logger.Warn("Rejected vehicle update", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	v, err := s.repo.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(domain.VehicleUpdated, v)
	return v, nil
}

// Delete removes a vehicle and emits a deleted event carrying only the
// identifier: the record no longer exists, so the event is minimal.
func (s *Service) Delete(ctx context.Context, id string) (*domain.Vehicle, error) {
	v, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(domain.VehicleDeleted, domain.DeletedPayload{ID: v.ID})
	return v, nil
}
