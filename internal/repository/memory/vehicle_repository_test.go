package memory

import (
	"context"
	"testing"

	"github.com/vehix/vehix/internal/domain"
)

func newVehicle(placa, chassi, renavam string) domain.NewVehicle {
	return domain.NewVehicle{
		Placa:   placa,
		Chassi:  chassi,
		Renavam: renavam,
		Modelo:  "Onix",
		Marca:   "Chevrolet",
		Ano:     2023,
	}
}

func TestVehicleRepository_CreateAndGet(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	v, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if v.ID == "" {
		t.Error("Expected generated id")
	}
	if v.CreatedAt.IsZero() || v.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	got, err := repo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Placa != "ABC1D23" {
		t.Errorf("Expected placa 'ABC1D23', got %q", got.Placa)
	}
}

func TestVehicleRepository_UniqueConstraints(t *testing.T) {
	cases := []struct {
		name   string
		second domain.NewVehicle
		field  string
	}{
		{"duplicate placa", newVehicle("ABC1D23", "9BWZZZ377VT004252", "12345678902"), "placa"},
		{"duplicate chassi", newVehicle("XYZ9F87", "9BWZZZ377VT004251", "12345678902"), "chassi"},
		{"duplicate renavam", newVehicle("XYZ9F87", "9BWZZZ377VT004252", "12345678901"), "renavam"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewVehicleRepository()
			ctx := context.Background()

			if _, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901")); err != nil {
				t.Fatalf("First create failed: %v", err)
			}

			_, err := repo.Create(ctx, tc.second)
			if err == nil {
				t.Fatal("Expected conflict error")
			}
			if domain.KindOf(err) != domain.KindConflict {
				t.Fatalf("Expected CONFLICT, got %s", domain.KindOf(err))
			}

			de := domain.AsDomainError(err)
			target, ok := de.Details["target"].([]string)
			if !ok || len(target) != 1 || target[0] != tc.field {
				t.Errorf("Expected details.target=[%s], got %v", tc.field, de.Details["target"])
			}
		})
	}
}

func TestVehicleRepository_PartialUpdate(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	v, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	modelo := "Tracker"
	updated, err := repo.Update(ctx, v.ID, domain.VehicleUpdate{Modelo: &modelo})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Modelo != "Tracker" {
		t.Errorf("Expected modelo 'Tracker', got %q", updated.Modelo)
	}
	if updated.Placa != v.Placa || updated.Chassi != v.Chassi {
		t.Error("Untouched fields changed")
	}
	if !updated.UpdatedAt.After(v.UpdatedAt) && !updated.UpdatedAt.Equal(v.UpdatedAt) {
		t.Error("Expected updatedAt to move forward")
	}
}

func TestVehicleRepository_UpdateKeepingOwnUniqueValues(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	v, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Re-submitting the vehicle's own placa must not count as a conflict.
	placa := v.Placa
	if _, err := repo.Update(ctx, v.ID, domain.VehicleUpdate{Placa: &placa}); err != nil {
		t.Fatalf("Update with own placa failed: %v", err)
	}
}

func TestVehicleRepository_NotFound(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()
	missing := "e9dcb1f7-0000-0000-0000-000000000000"

	if _, err := repo.GetByID(ctx, missing); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("GetByID: expected NOT_FOUND, got %v", err)
	}
	if _, err := repo.Update(ctx, missing, domain.VehicleUpdate{}); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("Update: expected NOT_FOUND, got %v", err)
	}
	if _, err := repo.Delete(ctx, missing); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("Delete: expected NOT_FOUND, got %v", err)
	}
}

func TestVehicleRepository_DeleteReturnsRemoved(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	v, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	removed, err := repo.Delete(ctx, v.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed.ID != v.ID {
		t.Errorf("Expected removed vehicle %s, got %s", v.ID, removed.ID)
	}

	if _, err := repo.GetByID(ctx, v.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("Expected NOT_FOUND after delete, got %v", err)
	}
}

func TestVehicleRepository_ListNewestFirst(t *testing.T) {
	repo := NewVehicleRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, newVehicle("ABC1D23", "9BWZZZ377VT004251", "12345678901"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	second, err := repo.Create(ctx, newVehicle("XYZ9F87", "9BWZZZ377VT004252", "12345678902"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	vehicles, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(vehicles) != 2 {
		t.Fatalf("Expected 2 vehicles, got %d", len(vehicles))
	}
	// Equal timestamps fall back to id ordering; both records must be present.
	ids := map[string]bool{vehicles[0].ID: true, vehicles[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("List missing a created vehicle: %v", ids)
	}
}
