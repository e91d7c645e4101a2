package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/monitoring"
)

var driverPhrases = map[model.DriverStatus]string{
	model.DriverNotStarted: "has not started",
	model.DriverEnRoute:    "is en route to",
	model.DriverArrived:    "has arrived at",
	model.DriverUnloading:  "is unloading at",
	model.DriverCompleted:  "has completed the delivery to",
	model.DriverProblem:    "reported a problem delivering to",
}

const genericDriverPhrase = "updated the status for"

// DriverPhrase returns the message fragment used for a driver status.
func DriverPhrase(s model.DriverStatus) string {
	if p, ok := driverPhrases[s]; ok {
		return p
	}
	return genericDriverPhrase
}

func jobContext(j model.Job) map[string]string {
	return map[string]string{
		"job_id":       j.ID,
		"reference":    j.ReferenceNumber,
		"customer_id":  j.CustomerID,
		"status":       string(j.Status),
		"driverStatus": string(j.DriverStatus),
	}
}

func (m *Machine) notifyDispatchers(ctx context.Context, tmpl model.Notification) {
	if m.notifier == nil || m.users == nil {
		return
	}
	users, err := m.users.Dispatchers(ctx)
	if err != nil {
		m.log.Errorf("list dispatchers: %v", err)
		monitoring.CaptureException(err, map[string]string{"component": "notify", "audience": "dispatchers"})
		return
	}
	n := m.notifier.Fanout(users, tmpl)
	m.log.Debugw("notified dispatchers", map[string]any{"type": string(tmpl.Type), "job_id": tmpl.JobID, "queued": n})
}

func (m *Machine) notifyCustomer(ctx context.Context, customerID string, tmpl model.Notification) {
	if m.notifier == nil || m.users == nil || customerID == "" {
		return
	}
	users, err := m.users.CustomerUsers(ctx, customerID)
	if err != nil {
		m.log.Errorf("list users of customer %s: %v", customerID, err)
		monitoring.CaptureException(err, map[string]string{"component": "notify", "audience": "customer"})
		return
	}
	n := m.notifier.Fanout(users, tmpl)
	m.log.Debugw("notified customer users", map[string]any{"type": string(tmpl.Type), "job_id": tmpl.JobID, "customer_id": customerID, "queued": n})
}

func driverNotification(j model.Job, actor string) model.Notification {
	return model.Notification{
		JobID:   j.ID,
		Title:   fmt.Sprintf("Job %s: %s", j.ReferenceNumber, j.DriverStatus),
		Message: fmt.Sprintf("Driver %s %s %s (job %s)", actor, DriverPhrase(j.DriverStatus), j.DeliveryLocation, j.ReferenceNumber),
		Type:    model.NotifyDriverStatus,
		Context: jobContext(j),
	}
}

// markCustomerNotified records the first completion notice for the job.
func markCustomerNotified(j *model.Job, ts time.Time) {
	if j.CustomerNotifiedAt == nil {
		j.CustomerNotifiedAt = &ts
	}
}

func (m *Machine) notifyDeliveryCompleted(ctx context.Context, j model.Job) {
	m.notifyCustomer(ctx, j.CustomerID, model.Notification{
		JobID:   j.ID,
		Title:   fmt.Sprintf("Delivery %s completed", j.ReferenceNumber),
		Message: fmt.Sprintf("Your delivery to %s has been completed", j.DeliveryLocation),
		Type:    model.NotifyDeliveryCompleted,
		Context: jobContext(j),
	})
}
