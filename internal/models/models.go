package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// VehicleType is the fixed set of vehicles an order can request.
type VehicleType string

const (
	VehicleCar        VehicleType = "car"
	VehicleVan        VehicleType = "van"
	VehicleHorseDrawn VehicleType = "horse_drawn"
)

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleCar, VehicleVan, VehicleHorseDrawn:
		return true
	}
	return false
}

// Status is the order lifecycle state.
// waiting -> accepted -> completed; waiting -> cancelled.
// completed and cancelled are terminal.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusCancelled }

type Order struct {
	ID             string      `json:"id"`
	ClientID       string      `json:"client_id"`
	ClientName     string      `json:"client_name"`
	DriverID       string      `json:"driver_id,omitempty"`
	DriverName     string      `json:"driver_name,omitempty"`
	VehicleType    VehicleType `json:"vehicle_type,omitempty"`
	Origin         Coord       `json:"origin"`
	Destination    Coord       `json:"destination"`
	PassengerCount int         `json:"passenger_count,omitempty"`
	DepartureTime  *time.Time  `json:"departure_time,omitempty"`
	Distance       float64     `json:"distance"` // km, fixed at creation
	Price          float64     `json:"price"`    // set when details are finalized
	Status         Status      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// PendingOrder is the driver-facing projection of a waiting order.
type PendingOrder struct {
	ID          string  `json:"id"`
	Origin      Coord   `json:"origin"`
	Destination Coord   `json:"destination"`
	Distance    float64 `json:"distance"`
	Price       float64 `json:"price"`
}

// Event types carried on push channels, room topics and the Kafka stream.
const (
	EventOrderCreated   = "order_created"
	EventOrderAccepted  = "order_accepted"
	EventOrderCompleted = "order_completed"
	EventOrderCancelled = "order_cancelled"
	EventChatMessage    = "chat_message"
	EventRideEnded      = "ride_ended"
)

// Event is a single notification delivered to a client push channel or a
// chat room, and the payload published to the lifecycle stream.
type Event struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	DriverName string    `json:"driver_name,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at,omitempty"`
}
