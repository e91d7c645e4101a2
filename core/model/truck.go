package model

import "time"

// Truck is a vehicle that jobs can be assigned to.
type Truck struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CapacityTonnes float64 `json:"capacity"`
	IsActive       bool    `json:"is_active"`
}

// CapacityKg returns the payload capacity in kilograms.
func (t Truck) CapacityKg() float64 { return t.CapacityTonnes * 1000 }

// Assignment links a job to a truck on a given day and time slot.
type Assignment struct {
	JobID      string    `json:"job_id"`
	TruckID    string    `json:"truck_id"`
	Date       time.Time `json:"date"`
	TimeSlotID string    `json:"time_slot_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Day truncates t to midnight UTC. Assignment dates are compared as days.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
