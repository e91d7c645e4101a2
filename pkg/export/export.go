// Package export writes driver run lists for printing and spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/kilianp07/haulage/core/model"
)

// RunListEntry is the printable form of one stop on a run list.
type RunListEntry struct {
	Date             string  `json:"date"`
	TimeSlotID       string  `json:"time_slot_id"`
	Reference        string  `json:"reference"`
	CustomerName     string  `json:"customer_name"`
	DeliveryLocation string  `json:"delivery_location"`
	WeightKg         float64 `json:"weight_kg"`
	TotalUnits       int     `json:"total_units"`
	Status           string  `json:"status"`
	DriverStatus     string  `json:"driver_status"`
}

// Entries converts jobs, already sorted, into run list entries.
func Entries(jobs []model.Job) []RunListEntry {
	out := make([]RunListEntry, len(jobs))
	for i, j := range jobs {
		out[i] = RunListEntry{
			Date:             model.Day(j.RequestedDate).Format("2006-01-02"),
			TimeSlotID:       j.TimeSlotID,
			Reference:        j.ReferenceNumber,
			CustomerName:     j.CustomerName,
			DeliveryLocation: j.DeliveryLocation,
			WeightKg:         j.WeightKg,
			TotalUnits:       j.TotalUnits,
			Status:           string(j.Status),
			DriverStatus:     string(j.DriverStatus),
		}
	}
	return out
}

// WriteJSON writes the run list to w in JSON format.
func WriteJSON(w io.Writer, entries []RunListEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// WriteCSV writes the run list to w in CSV format with a header row.
func WriteCSV(w io.Writer, entries []RunListEntry) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "time_slot", "reference", "customer", "delivery_location", "weight_kg", "units", "status", "driver_status"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Date,
			e.TimeSlotID,
			e.Reference,
			e.CustomerName,
			e.DeliveryLocation,
			strconv.FormatFloat(e.WeightKg, 'f', -1, 64),
			strconv.Itoa(e.TotalUnits),
			e.Status,
			e.DriverStatus,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
