// Package memory provides an in-memory vehicle repository for
// development and testing. Data is not persistent across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vehix/vehix/internal/domain"
	"github.com/vehix/vehix/internal/services/vehicle"
)

// Ensure VehicleRepository implements vehicle.Repository
var _ vehicle.Repository = (*VehicleRepository)(nil)

// VehicleRepository is an in-memory implementation of the vehicle
// repository. It mirrors the PostgreSQL implementation's error
// contract: conflicts and missing rows come back as domain errors with
// the same kinds and details.
type VehicleRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Vehicle
}

// NewVehicleRepository creates a new in-memory vehicle repository.
func NewVehicleRepository() *VehicleRepository {
	return &VehicleRepository{
		data: make(map[string]*domain.Vehicle),
	}
}

// Create stores a new vehicle.
func (r *VehicleRepository) Create(ctx context.Context, nv domain.NewVehicle) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkUnique(nv.Placa, nv.Chassi, nv.Renavam, ""); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	v := &domain.Vehicle{
		ID:        uuid.New().String(),
		Placa:     nv.Placa,
		Chassi:    nv.Chassi,
		Renavam:   nv.Renavam,
		Modelo:    nv.Modelo,
		Marca:     nv.Marca,
		Ano:       nv.Ano,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.data[v.ID] = v
	clone := *v
	return &clone, nil
}

// List returns all vehicles, newest first.
func (r *VehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vehicles := make([]*domain.Vehicle, 0, len(r.data))
	for _, v := range r.data {
		clone := *v
		vehicles = append(vehicles, &clone)
	}
	sort.Slice(vehicles, func(i, j int) bool {
		if !vehicles[i].CreatedAt.Equal(vehicles[j].CreatedAt) {
			return vehicles[i].CreatedAt.After(vehicles[j].CreatedAt)
		}
		return vehicles[i].ID < vehicles[j].ID
	})
	return vehicles, nil
}

// GetByID retrieves a vehicle by id.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.data[id]
	if !ok {
		return nil, domain.NotFound("vehicle not found")
	}
	clone := *v
	return &clone, nil
}

// Update applies a partial update.
func (r *VehicleRepository) Update(ctx context.Context, id string, upd domain.VehicleUpdate) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.data[id]
	if !ok {
		return nil, domain.NotFound("vehicle not found")
	}

	placa, chassi, renavam := v.Placa, v.Chassi, v.Renavam
	if upd.Placa != nil {
		placa = *upd.Placa
	}
	if upd.Chassi != nil {
		chassi = *upd.Chassi
	}
	if upd.Renavam != nil {
		renavam = *upd.Renavam
	}
	if err := r.checkUnique(placa, chassi, renavam, id); err != nil {
		return nil, err
	}

	v.Placa, v.Chassi, v.Renavam = placa, chassi, renavam
	if upd.Modelo != nil {
		v.Modelo = *upd.Modelo
	}
	if upd.Marca != nil {
		v.Marca = *upd.Marca
	}
	if upd.Ano != nil {
		v.Ano = *upd.Ano
	}
	v.UpdatedAt = time.Now().UTC()

	clone := *v
	return &clone, nil
}

// Delete removes a vehicle by id and returns the removed record.
func (r *VehicleRepository) Delete(ctx context.Context, id string) (*domain.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.data[id]
	if !ok {
		return nil, domain.NotFound("vehicle not found")
	}
	delete(r.data, id)

	clone := *v
	return &clone, nil
}

func (r *VehicleRepository) checkUnique(placa, chassi, renavam, excludeID string) error {
	for _, existing := range r.data {
		if existing.ID == excludeID {
			continue
		}
		switch {
		case existing.Placa == placa:
			return conflict("placa", "a vehicle with this placa already exists")
		case existing.Chassi == chassi:
			return conflict("chassi", "a vehicle with this chassi already exists")
		case existing.Renavam == renavam:
			return conflict("renavam", "a vehicle with this renavam already exists")
		}
	}
	return nil
}

func conflict(field, message string) *domain.Error {
	return domain.NewErrorWithDetails(domain.KindConflict, message, map[string]any{
		"target": []string{field},
	})
}
