// Package capacity computes truck and time slot weight utilization. It never
// rejects an assignment: callers receive a Warning to surface.
package capacity

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/haulage/core/model"
)

// DefaultWarningThreshold is the utilization at which a bucket is reported
// as near capacity.
const DefaultWarningThreshold = 0.8

// Bucket identifies a truck on a given day and slot.
type Bucket struct {
	TruckID    string    `json:"truck_id"`
	Date       time.Time `json:"date"`
	TimeSlotID string    `json:"time_slot_id"`
}

// Warning describes the load of a bucket.
type Warning struct {
	Bucket
	TotalWeightKg   float64  `json:"total_weight_kg"`
	CapacityKg      float64  `json:"capacity_kg"`
	Utilization     float64  `json:"utilization"`
	Jobs            []string `json:"jobs"`
	OverCapacity    bool     `json:"over_capacity"`
	NearCapacity    bool     `json:"near_capacity"`
	TruckInactive   bool     `json:"truck_inactive,omitempty"`
	CapacityUnknown bool     `json:"capacity_unknown,omitempty"`
	Message         string   `json:"message,omitempty"`
}

// Active reports whether the warning should be shown to a dispatcher.
func (w Warning) Active() bool {
	return w.OverCapacity || w.NearCapacity || w.TruckInactive || w.CapacityUnknown
}

// Planner evaluates buckets against truck capacity.
type Planner struct {
	slots     SlotTable
	threshold float64
}

// NewPlanner returns a Planner. A threshold outside (0,1] falls back to
// DefaultWarningThreshold.
func NewPlanner(slots SlotTable, threshold float64) *Planner {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultWarningThreshold
	}
	if len(slots.Slots) == 0 {
		slots = DefaultSlotTable()
	}
	return &Planner{slots: slots, threshold: threshold}
}

// Slots returns the slot table used for ordering.
func (p *Planner) Slots() SlotTable { return p.slots }

// Threshold returns the near capacity threshold.
func (p *Planner) Threshold() float64 { return p.threshold }

// Utilization returns the weight sum divided by the truck capacity in kg.
// A truck without a positive capacity yields zero.
func Utilization(weightsKg []float64, capacityTonnes float64) float64 {
	if capacityTonnes <= 0 {
		return 0
	}
	return floats.Sum(weightsKg) / (capacityTonnes * 1000)
}

// Evaluate computes the warning for truck in bucket b given the weights of
// the jobs assigned to it, keyed by job id.
func (p *Planner) Evaluate(truck model.Truck, b Bucket, weights map[string]float64) Warning {
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	ws := make([]float64, len(ids))
	for i, id := range ids {
		ws[i] = weights[id]
	}
	total := floats.Sum(ws)

	w := Warning{
		Bucket:        Bucket{TruckID: truck.ID, Date: model.Day(b.Date), TimeSlotID: b.TimeSlotID},
		TotalWeightKg: total,
		CapacityKg:    truck.CapacityKg(),
		Jobs:          ids,
		TruckInactive: !truck.IsActive,
	}
	if truck.CapacityTonnes <= 0 {
		w.CapacityUnknown = true
		w.OverCapacity = total > 0
	} else {
		w.Utilization = Utilization(ws, truck.CapacityTonnes)
		w.OverCapacity = w.Utilization > 1.0
		w.NearCapacity = !w.OverCapacity && w.Utilization >= p.threshold
	}
	w.Message = p.message(truck, w)
	return w
}

func (p *Planner) message(truck model.Truck, w Warning) string {
	name := truck.Name
	if name == "" {
		name = truck.ID
	}
	switch {
	case w.CapacityUnknown && w.OverCapacity:
		return fmt.Sprintf("%s has no capacity configured but carries %.0f kg", name, w.TotalWeightKg)
	case w.OverCapacity:
		return fmt.Sprintf("%s is over capacity: %.0f of %.0f kg (%.0f%%)", name, w.TotalWeightKg, w.CapacityKg, w.Utilization*100)
	case w.NearCapacity:
		return fmt.Sprintf("%s is near capacity: %.0f of %.0f kg (%.0f%%)", name, w.TotalWeightKg, w.CapacityKg, w.Utilization*100)
	case w.TruckInactive:
		return fmt.Sprintf("%s is inactive", name)
	}
	return ""
}

// SortRunList orders jobs by requested day, slot priority and reference.
// Unknown slots sort last within their day.
func (p *Planner) SortRunList(jobs []model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		di, dj := model.Day(jobs[i].RequestedDate), model.Day(jobs[j].RequestedDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		pi, pj := p.slots.Priority(jobs[i].TimeSlotID), p.slots.Priority(jobs[j].TimeSlotID)
		if pi != pj {
			return pi < pj
		}
		return jobs[i].ReferenceNumber < jobs[j].ReferenceNumber
	})
}
