package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kilianp07/haulage/core/model"
)

// PhotoUpload is a photo already stored by the caller.
type PhotoUpload struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// PODRequest is a proof of delivery submission.
type PODRequest struct {
	JobID        string        `json:"jobId"`
	Photos       []PhotoUpload `json:"photos"`
	SignatureURL string        `json:"signatureUrl,omitempty"`
	Notes        string        `json:"notes,omitempty"`
	Actor        string        `json:"actor"`
	// IdempotencyKey identifies the submission. When empty a key is derived
	// from the submitted content.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// Key returns the idempotency key of the submission.
func (r PODRequest) Key() string {
	if r.IdempotencyKey != "" {
		return r.IdempotencyKey
	}
	var b strings.Builder
	b.WriteString(r.JobID)
	for _, p := range r.Photos {
		b.WriteString("|")
		b.WriteString(p.URL)
	}
	b.WriteString("|sig:")
	b.WriteString(r.SignatureURL)
	b.WriteString("|notes:")
	b.WriteString(r.Notes)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(b.String())).String()
}

// SignatureCaption labels the signature entry in job photos.
const SignatureCaption = "Signature"

// SubmitProofOfDelivery attaches photos and an optional signature to a job
// and completes it. A submission whose key was already applied returns the
// job unchanged without notifying anyone.
func (m *Machine) SubmitProofOfDelivery(ctx context.Context, req PODRequest) (model.Job, error) {
	if len(req.Photos) == 0 && req.SignatureURL == "" {
		podSubmissions.WithLabelValues("rejected").Inc()
		return model.Job{}, fmt.Errorf("%w: proof of delivery needs a photo or a signature", ErrInvalidJob)
	}
	key := req.Key()
	before, after, changed, err := m.update(ctx, req.JobID, func(j *model.Job) error {
		if j.HasPODKey(key) {
			return errNoChange
		}
		if j.Status == model.StatusCancelled || j.Status == model.StatusReturned {
			return statusError(j.ID, j.Status, model.StatusDelivered)
		}
		ts := m.now().UTC()
		for _, p := range req.Photos {
			j.PODFiles = append(j.PODFiles, p.URL)
			j.JobPhotos = append(j.JobPhotos, model.Photo{URL: p.URL, Caption: p.Caption, Timestamp: ts, UploadedBy: req.Actor})
		}
		if req.SignatureURL != "" {
			j.PODFiles = append(j.PODFiles, req.SignatureURL)
			j.JobPhotos = append(j.JobPhotos, model.Photo{URL: req.SignatureURL, Caption: SignatureCaption, Timestamp: ts, UploadedBy: req.Actor})
		}
		if req.Notes != "" {
			j.PODNotes = req.Notes
		}
		j.Status = model.StatusDelivered
		j.DriverStatus = model.DriverCompleted
		j.DriverStatusUpdatedAt = &ts
		j.DriverStatusUpdatedBy = req.Actor
		if j.ActualCompletionTime == nil {
			j.ActualCompletionTime = &ts
		}
		markCustomerNotified(j, ts)
		j.PODKeys = append(j.PODKeys, key)
		return nil
	})
	if err != nil {
		podSubmissions.WithLabelValues("rejected").Inc()
		return model.Job{}, err
	}
	if !changed {
		podSubmissions.WithLabelValues("duplicate").Inc()
		m.log.Infof("duplicate proof of delivery %s for job %s ignored", key, req.JobID)
		return after, nil
	}
	podSubmissions.WithLabelValues("accepted").Inc()
	m.observe(ctx, before, after, req.Actor, "proof of delivery")

	m.notifyDispatchers(ctx, model.Notification{
		JobID:   after.ID,
		Title:   fmt.Sprintf("POD submitted for %s", after.ReferenceNumber),
		Message: fmt.Sprintf("%s submitted proof of delivery for %s at %s", req.Actor, after.ReferenceNumber, after.DeliveryLocation),
		Type:    model.NotifyPODSubmitted,
		Context: jobContext(after),
	})
	if before.CustomerNotifiedAt == nil && after.CustomerNotifiedAt != nil {
		m.notifyDeliveryCompleted(ctx, after)
	}
	return after, nil
}
