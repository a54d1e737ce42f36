package domain

import "time"

// Vehicle is the persisted vehicle record. ID is assigned at creation
// and immutable; placa, chassi and renavam are globally unique,
// enforced by the store. Timestamps are store-assigned.
type Vehicle struct {
	ID        string    `json:"id"`
	Placa     string    `json:"placa"`
	Chassi    string    `json:"chassi"`
	Renavam   string    `json:"renavam"`
	Modelo    string    `json:"modelo"`
	Marca     string    `json:"marca"`
	Ano       int       `json:"ano"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewVehicle holds the fields required to create a vehicle.
type NewVehicle struct {
	Placa   string `json:"placa"`
	Chassi  string `json:"chassi"`
	Renavam string `json:"renavam"`
	Modelo  string `json:"modelo"`
	Marca   string `json:"marca"`
	Ano     int    `json:"ano"`
}

// VehicleUpdate is a partial update. Nil fields are left untouched.
type VehicleUpdate struct {
	Placa   *string `json:"placa,omitempty"`
	Chassi  *string `json:"chassi,omitempty"`
	Renavam *string `json:"renavam,omitempty"`
	Modelo  *string `json:"modelo,omitempty"`
	Marca   *string `json:"marca,omitempty"`
	Ano     *int    `json:"ano,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u VehicleUpdate) Empty() bool {
	return u.Placa == nil && u.Chassi == nil && u.Renavam == nil &&
		u.Modelo == nil && u.Marca == nil && u.Ano == nil
}
