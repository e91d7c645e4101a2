package model

import "time"

// Photo is an image attached to a job, usually as proof of delivery.
type Photo struct {
	URL        string    `json:"url"`
	Caption    string    `json:"caption,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	UploadedBy string    `json:"uploaded_by"`
}

// Job is a single delivery request owned by the dispatch core once created.
type Job struct {
	ID               string       `json:"id"`
	CustomerID       string       `json:"customer_id"`
	CustomerName     string       `json:"customer_name"`
	ReferenceNumber  string       `json:"job_reference_number"`
	Status           JobStatus    `json:"status"`
	DriverStatus     DriverStatus `json:"driver_status"`
	DeliveryLocation string       `json:"delivery_location"`
	WeightKg         float64      `json:"weight_kg"`
	Sqm              float64      `json:"sqm"`
	TotalUnits       int          `json:"total_units"`
	RequestedDate    time.Time    `json:"requested_date"`
	TruckID          string       `json:"truck_id,omitempty"`
	TimeSlotID       string       `json:"time_slot_id,omitempty"`

	PODFiles     []string `json:"pod_files,omitempty"`
	JobPhotos    []Photo  `json:"job_photos,omitempty"`
	PODNotes     string   `json:"pod_notes,omitempty"`
	ReturnReason string   `json:"return_reason,omitempty"`
	// PODKeys holds the idempotency keys of applied POD submissions.
	PODKeys []string `json:"pod_keys,omitempty"`

	ActualArrivalTime     *time.Time `json:"actual_arrival_time,omitempty"`
	ActualCompletionTime  *time.Time `json:"actual_completion_time,omitempty"`
	DriverStatusUpdatedAt *time.Time `json:"driver_status_updated_at,omitempty"`
	DriverStatusUpdatedBy string     `json:"driver_status_updated_by,omitempty"`
	// CustomerNotifiedAt is set once customer users were told the delivery
	// completed.
	CustomerNotifiedAt *time.Time `json:"customer_notified_at,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the job so callers can mutate it freely.
func (j Job) Clone() Job {
	c := j
	if j.PODFiles != nil {
		c.PODFiles = append([]string(nil), j.PODFiles...)
	}
	if j.JobPhotos != nil {
		c.JobPhotos = append([]Photo(nil), j.JobPhotos...)
	}
	if j.PODKeys != nil {
		c.PODKeys = append([]string(nil), j.PODKeys...)
	}
	c.ActualArrivalTime = cloneTime(j.ActualArrivalTime)
	c.ActualCompletionTime = cloneTime(j.ActualCompletionTime)
	c.DriverStatusUpdatedAt = cloneTime(j.DriverStatusUpdatedAt)
	c.CustomerNotifiedAt = cloneTime(j.CustomerNotifiedAt)
	return c
}

// HasPODKey reports whether the submission key was already applied.
func (j Job) HasPODKey(key string) bool {
	for _, k := range j.PODKeys {
		if k == key {
			return true
		}
	}
	return false
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
