package domain

import (
	"encoding/json"
	"time"
)

// EventKind identifies the mutation a change event describes. Kinds
// double as routing keys: each kind maps to its own stream.
type EventKind string

const (
	VehicleCreated EventKind = "vehicle.created"
	VehicleUpdated EventKind = "vehicle.updated"
	VehicleDeleted EventKind = "vehicle.deleted"
)

// EventKinds lists every kind a consumer may subscribe to.
var EventKinds = []EventKind{VehicleCreated, VehicleUpdated, VehicleDeleted}

// Event is the wire envelope for a vehicle change event. It is
// immutable once constructed and always describes a mutation that has
// already committed. For VehicleDeleted the payload is {"id": ...} only.
type Event struct {
	Kind       EventKind       `json:"kind"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
}

// DeletedPayload is the payload of a VehicleDeleted event.
type DeletedPayload struct {
	ID string `json:"id"`
}
