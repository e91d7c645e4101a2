package dispatch

import (
	"context"
	"errors"

	"github.com/kilianp07/haulage/core/model"
)

// ApplyDriverStatus records a driver progress update. The first ARRIVED
// stamps the arrival time and COMPLETED delivers the job; both stamps are
// kept on repeated calls. Dispatchers are notified when the driver status
// actually changes, customer users on the first completion.
func (m *Machine) ApplyDriverStatus(ctx context.Context, jobID string, status model.DriverStatus, actor string) (model.Job, error) {
	before, after, _, err := m.update(ctx, jobID, func(j *model.Job) error {
		if err := CheckDriverMove(j.DriverStatus, status); err != nil {
			return withJob(err, j.ID)
		}
		if !driverUpdatable(*j, status) {
			return &TransitionError{JobID: j.ID, From: string(j.Status), To: string(status)}
		}
		ts := m.now().UTC()
		j.DriverStatus = status
		j.DriverStatusUpdatedAt = &ts
		j.DriverStatusUpdatedBy = actor
		switch status {
		case model.DriverEnRoute, model.DriverArrived, model.DriverUnloading:
			if j.Status == model.StatusScheduled {
				j.Status = model.StatusInTransit
			}
		case model.DriverCompleted:
			j.Status = model.StatusDelivered
			if j.ActualCompletionTime == nil {
				j.ActualCompletionTime = &ts
			}
			markCustomerNotified(j, ts)
		}
		if status == model.DriverArrived && j.ActualArrivalTime == nil {
			j.ActualArrivalTime = &ts
		}
		return nil
	})
	if err != nil {
		driverStatusUpdates.WithLabelValues(string(status), "rejected").Inc()
		return model.Job{}, err
	}
	driverStatusUpdates.WithLabelValues(string(status), "accepted").Inc()
	m.observe(ctx, before, after, actor, "")
	if before.DriverStatus != after.DriverStatus {
		m.notifyDispatchers(ctx, driverNotification(after, actor))
	}
	if before.CustomerNotifiedAt == nil && after.CustomerNotifiedAt != nil {
		m.notifyDeliveryCompleted(ctx, after)
	}
	return after, nil
}

func withJob(err error, jobID string) error {
	var te *TransitionError
	if errors.As(err, &te) {
		c := *te
		c.JobID = jobID
		return &c
	}
	return err
}
