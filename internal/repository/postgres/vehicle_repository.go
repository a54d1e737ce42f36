package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/vehix/vehix/internal/domain"
	"github.com/vehix/vehix/internal/services/vehicle"
)

// Ensure VehicleRepository implements vehicle.Repository
var _ vehicle.Repository = (*VehicleRepository)(nil)

// vehicleConflictMessages specializes the CONFLICT message per
// offending unique field.
var vehicleConflictMessages = map[string]string{
	"placa":   "a vehicle with this placa already exists",
	"chassi":  "a vehicle with this chassi already exists",
	"renavam": "a vehicle with this renavam already exists",
}

// writeOverrides applies to operations that are not scoped to a single
// known identifier.
var writeOverrides = Overrides{
	FieldMessages: vehicleConflictMessages,
}

// idScopedOverrides additionally narrows 22P02 to NOT_FOUND: on an
// operation keyed by one identifier, a malformed uuid in the WHERE
// clause is indistinguishable from a missing vehicle as far as the
// caller is concerned.
var idScopedOverrides = Overrides{
	FieldMessages: vehicleConflictMessages,
	KindOverrides: map[string]domain.ErrorKind{
		codeInvalidTextRep: domain.KindNotFound,
	},
}

// VehicleRepository implements vehicle.Repository using PostgreSQL.
type VehicleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *DB, logger *zap.Logger) *VehicleRepository {
	return &VehicleRepository{
		db:     db,
		logger: logger.With(zap.String("repository", "vehicle")),
	}
}

const vehicleColumns = "id, placa, chassi, renavam, modelo, marca, ano, created_at, updated_at"

// Create stores a new vehicle. The id is assigned here and never reused.
func (r *VehicleRepository) Create(ctx context.Context, nv domain.NewVehicle) (*domain.Vehicle, error) {
	v := &domain.Vehicle{
		ID:      uuid.New().String(),
		Placa:   nv.Placa,
		Chassi:  nv.Chassi,
		Renavam: nv.Renavam,
		Modelo:  nv.Modelo,
		Marca:   nv.Marca,
		Ano:     nv.Ano,
	}

	query := `
		INSERT INTO vehicles (id, placa, chassi, renavam, modelo, marca, ano)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.pool.QueryRow(ctx, query,
		v.ID, v.Placa, v.Chassi, v.Renavam, v.Modelo, v.Marca, v.Ano,
	).Scan(&v.CreatedAt, &v.UpdatedAt)

	if err != nil {
		r.logger.Error("Failed to create vehicle", zap.Error(err), zap.String("placa", v.Placa))
		return nil, translateError(err, writeOverrides)
	}

	r.logger.Info("Created vehicle", zap.String("id", v.ID), zap.String("placa", v.Placa))
	return v, nil
}

// List returns all vehicles, newest first.
func (r *VehicleRepository) List(ctx context.Context) ([]*domain.Vehicle, error) {
	query := fmt.Sprintf("SELECT %s FROM vehicles ORDER BY created_at DESC, id", vehicleColumns)

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, translateError(err, Overrides{})
	}
	defer rows.Close()

	var vehicles []*domain.Vehicle
	for rows.Next() {
		v := &domain.Vehicle{}
		if err := scanVehicle(rows, v); err != nil {
			return nil, translateError(err, Overrides{})
		}
		vehicles = append(vehicles, v)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, Overrides{})
	}

	return vehicles, nil
}

// GetByID retrieves a vehicle by id. A missing row is a query result,
// not a storage failure, so NOT_FOUND is produced locally.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := fmt.Sprintf("SELECT %s FROM vehicles WHERE id = $1", vehicleColumns)

	v := &domain.Vehicle{}
	err := scanVehicle(r.db.pool.QueryRow(ctx, query, id), v)
	if err == pgx.ErrNoRows {
		return nil, domain.NotFound("vehicle not found")
	}
	if err != nil {
		return nil, translateError(err, idScopedOverrides)
	}

	return v, nil
}

// Update applies a partial update and returns the post-update row. A
// missing row surfaces as the storage layer's own no-rows failure,
// routed through the translator.
func (r *VehicleRepository) Update(ctx context.Context, id string, upd domain.VehicleUpdate) (*domain.Vehicle, error) {
	set := ""
	args := []interface{}{id}
	argNum := 2

	addField := func(column string, value interface{}) {
		if set != "" {
			set += ", "
		}
		set += fmt.Sprintf("%s = $%d", column, argNum)
		args = append(args, value)
		argNum++
	}

	if upd.Placa != nil {
		addField("placa", *upd.Placa)
	}
	if upd.Chassi != nil {
		addField("chassi", *upd.Chassi)
	}
	if upd.Renavam != nil {
		addField("renavam", *upd.Renavam)
	}
	if upd.Modelo != nil {
		addField("modelo", *upd.Modelo)
	}
	if upd.Marca != nil {
		addField("marca", *upd.Marca)
	}
	if upd.Ano != nil {
		addField("ano", *upd.Ano)
	}

	if set == "" {
		// Nothing to change: behave like a read.
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(
		"UPDATE vehicles SET %s, updated_at = now() WHERE id = $1 RETURNING %s",
		set, vehicleColumns,
	)

	v := &domain.Vehicle{}
	if err := scanVehicle(r.db.pool.QueryRow(ctx, query, args...), v); err != nil {
		r.logger.Error("Failed to update vehicle", zap.Error(err), zap.String("id", id))
		return nil, translateError(err, idScopedOverrides)
	}

	r.logger.Info("Updated vehicle", zap.String("id", id))
	return v, nil
}

// Delete removes a vehicle by id and returns the deleted row.
func (r *VehicleRepository) Delete(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := fmt.Sprintf("DELETE FROM vehicles WHERE id = $1 RETURNING %s", vehicleColumns)

	v := &domain.Vehicle{}
	if err := scanVehicle(r.db.pool.QueryRow(ctx, query, id), v); err != nil {
		r.logger.Error("Failed to delete vehicle", zap.Error(err), zap.String("id", id))
		return nil, translateError(err, idScopedOverrides)
	}

	r.logger.Info("Deleted vehicle", zap.String("id", id))
	return v, nil
}

func scanVehicle(row pgx.Row, v *domain.Vehicle) error {
	return row.Scan(
		&v.ID,
		&v.Placa,
		&v.Chassi,
		&v.Renavam,
		&v.Modelo,
		&v.Marca,
		&v.Ano,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
}
