package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/haulage/core/assignment"
	"github.com/kilianp07/haulage/core/capacity"
	"github.com/kilianp07/haulage/core/dispatch/audit"
	"github.com/kilianp07/haulage/core/events"
	"github.com/kilianp07/haulage/core/fleet"
	"github.com/kilianp07/haulage/core/jobs"
	"github.com/kilianp07/haulage/core/model"
	"github.com/kilianp07/haulage/core/notify"
	"github.com/kilianp07/haulage/core/reference"
	"github.com/kilianp07/haulage/internal/eventbus"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recordingNotifier) Fanout(users []model.User, tmpl model.Notification) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		n := tmpl
		n.UserID = u.ID
		r.sent = append(r.sent, n)
	}
	return len(users)
}

func (r *recordingNotifier) byType(t model.NotificationType) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.sent {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	m        *Machine
	jobs     *jobs.MemoryStore
	assign   *assignment.MemoryStore
	trucks   *fleet.MemoryStore
	notifier *recordingNotifier
	audit    *memAudit
	clock    time.Time
}

type memAudit struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (a *memAudit) Append(_ context.Context, r audit.Record) error {
	a.mu.Lock()
	a.recs = append(a.recs, r)
	a.mu.Unlock()
	return nil
}

func (a *memAudit) Query(_ context.Context, q audit.Query) ([]audit.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Record
	for _, r := range a.recs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *memAudit) Close() error { return nil }

var testDay = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	customers := reference.NewMemoryCustomers(
		model.Customer{ID: "acme", Name: "Acme", DocketID: model.DocketPtr(1)},
		model.Customer{ID: "nodocket", Name: "No Docket"},
	)
	alloc := reference.NewAllocator(customers, reference.NewMemoryCounterStore())
	alloc.SetClock(func() time.Time { return testDay })
	users := notify.NewMemoryDirectory(
		model.User{ID: "admin", Role: model.RoleAdmin},
		model.User{ID: "disp", Role: model.RoleDispatcher},
		model.User{ID: "drv", Role: model.RoleDriver},
		model.User{ID: "cust", Role: model.RoleCustomer, CustomerID: "acme"},
		model.User{ID: "cust2", Role: model.RoleCustomer, CustomerID: "other", AdditionalCustomerIDs: []string{"acme"}},
	)
	f := &fixture{
		jobs:     jobs.NewMemoryStore(),
		assign:   assignment.NewMemoryStore(),
		trucks:   fleet.NewMemoryStore(model.Truck{ID: "t1", Name: "Truck 1", CapacityTonnes: 10, IsActive: true}),
		notifier: &recordingNotifier{},
		audit:    &memAudit{},
		clock:    testDay.Add(8 * time.Hour),
	}
	f.m = NewMachine(Config{}, f.jobs, f.assign, f.trucks, alloc, capacity.NewPlanner(capacity.DefaultSlotTable(), 0.8), f.notifier, users, nil)
	f.m.SetClock(func() time.Time { return f.clock })
	f.m.SetAuditStore(f.audit)
	return f
}

func (f *fixture) tick(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) create(t *testing.T, weight float64) model.Job {
	t.Helper()
	j, err := f.m.CreateJob(context.Background(), JobRequest{
		CustomerID: "acme", CustomerName: "Acme", DeliveryLocation: "1 Dock St",
		WeightKg: weight, RequestedDate: testDay, Actor: "disp",
	})
	require.NoError(t, err)
	return j
}

// scheduled creates a job and walks it to SCHEDULED on truck t1.
func (f *fixture) scheduled(t *testing.T, weight float64) model.Job {
	t.Helper()
	ctx := context.Background()
	j := f.create(t, weight)
	_, err := f.m.ApplyStatus(ctx, j.ID, model.StatusApproved, "disp")
	require.NoError(t, err)
	res, err := f.m.AssignJob(ctx, AssignRequest{JobID: j.ID, TruckID: "t1", TimeSlotID: "first-am", Actor: "disp"})
	require.NoError(t, err)
	require.Equal(t, model.StatusScheduled, res.Job.Status)
	return res.Job
}

func TestCreateJob(t *testing.T) {
	f := newFixture(t)
	j := f.create(t, 500)
	assert.Equal(t, "241001", j.ReferenceNumber)
	assert.Equal(t, model.StatusPendingApproval, j.Status)
	assert.Equal(t, model.DriverNotStarted, j.DriverStatus)
	assert.Equal(t, int64(1), j.Version)
	assert.NotEmpty(t, j.ID)

	j2 := f.create(t, 500)
	assert.Equal(t, "241002", j2.ReferenceNumber)

	created := f.notifier.byType(model.NotifyJobCreated)
	assert.Len(t, created, 4, "two jobs times two dispatchers")
	assert.Equal(t, "New job request", created[0].Title)
	assert.Equal(t, 2.0, testutil.ToFloat64(referenceAllocations.WithLabelValues("ok")))
}

func TestCreateJobErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.CreateJob(ctx, JobRequest{CustomerID: "ghost", DeliveryLocation: "x", RequestedDate: testDay})
	assert.ErrorIs(t, err, reference.ErrCustomerNotFound)
	_, err = f.m.CreateJob(ctx, JobRequest{CustomerID: "nodocket", DeliveryLocation: "x", RequestedDate: testDay})
	assert.ErrorIs(t, err, reference.ErrMissingDocketID)
	_, err = f.m.CreateJob(ctx, JobRequest{CustomerID: "acme"})
	assert.ErrorIs(t, err, ErrInvalidJob)
	all, _ := f.jobs.List(ctx, jobs.Filter{})
	assert.Empty(t, all)
}

func TestApplyStatusRejectsIllegalMoves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.create(t, 100)

	_, err := f.m.ApplyStatus(ctx, j.ID, model.StatusInTransit, "disp")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.m.ApplyStatus(ctx, j.ID, model.StatusApproved, "disp")
	require.NoError(t, err)
	d, err := f.m.ApplyStatus(ctx, j.ID, model.StatusDelivered, "disp")
	require.NoError(t, err)
	assert.Equal(t, model.DriverCompleted, d.DriverStatus)
	require.NotNil(t, d.ActualCompletionTime)

	_, err = f.m.ApplyStatus(ctx, j.ID, model.StatusScheduled, "disp")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, j.ID, te.JobID)
	assert.Equal(t, "DELIVERED", te.From)

	_, err = f.m.ApplyStatus(ctx, "ghost", model.StatusApproved, "disp")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestApplyStatusNoopKeepsVersion(t *testing.T) {
	f := newFixture(t)
	j := f.create(t, 100)
	same, err := f.m.ApplyStatus(context.Background(), j.ID, model.StatusPendingApproval, "disp")
	require.NoError(t, err)
	assert.Equal(t, j.Version, same.Version)
}

func TestApplyDriverStatusLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 1000)

	_, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverEnRoute, "drv")
	require.NoError(t, err)
	got, _ := f.m.Job(ctx, j.ID)
	assert.Equal(t, model.StatusInTransit, got.Status)
	assert.Equal(t, "drv", got.DriverStatusUpdatedBy)

	f.tick(time.Hour)
	arrived, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverArrived, "drv")
	require.NoError(t, err)
	require.NotNil(t, arrived.ActualArrivalTime)
	firstArrival := *arrived.ActualArrivalTime

	f.tick(time.Minute)
	again, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverArrived, "drv")
	require.NoError(t, err)
	assert.Equal(t, firstArrival, *again.ActualArrivalTime)

	_, err = f.m.ApplyDriverStatus(ctx, j.ID, model.DriverEnRoute, "drv")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.tick(time.Hour)
	done, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverCompleted, "drv")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, done.Status)
	require.NotNil(t, done.ActualCompletionTime)
	completed := *done.ActualCompletionTime

	f.tick(time.Hour)
	twice, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverCompleted, "drv")
	require.NoError(t, err)
	assert.Equal(t, completed, *twice.ActualCompletionTime)
	assert.Equal(t, model.StatusDelivered, twice.Status)

	// en route, arrived, completed; repeats do not notify
	assert.Len(t, f.notifier.byType(model.NotifyDriverStatus), 3*2)
	msgs := f.notifier.byType(model.NotifyDriverStatus)
	assert.Contains(t, msgs[0].Message, "is en route to 1 Dock St")
}

func TestApplyDriverStatusRequiresDispatchedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.create(t, 100)
	_, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverEnRoute, "drv")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.m.ApplyDriverStatus(ctx, "ghost", model.DriverEnRoute, "drv")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = f.m.ApplyDriverStatus(ctx, j.ID, "FLYING", "drv")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProblemAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)

	_, err := f.m.ResolveProblem(ctx, j.ID, "gate closed", "disp")
	assert.ErrorIs(t, err, ErrNoProblemReported)

	_, err = f.m.ApplyDriverStatus(ctx, j.ID, model.DriverEnRoute, "drv")
	require.NoError(t, err)
	p, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverProblem, "drv")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransit, p.Status)
	assert.Contains(t, f.notifier.byType(model.NotifyDriverStatus)[2].Message, "reported a problem")

	r, err := f.m.ResolveProblem(ctx, j.ID, "gate closed", "disp")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturned, r.Status)
	assert.Equal(t, "gate closed", r.ReturnReason)

	recs, _ := f.audit.Query(ctx, audit.Query{JobID: j.ID, Kind: "status"})
	assert.Equal(t, "RETURNED", recs[len(recs)-1].To)
	assert.Equal(t, "gate closed", recs[len(recs)-1].Note)
}

func TestApplyStatusReturnedKeepsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)
	_, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverEnRoute, "drv")
	require.NoError(t, err)

	r, err := f.m.ApplyStatusWithReason(ctx, j.ID, model.StatusReturned, "site closed", "disp")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReturned, r.Status)
	assert.Equal(t, "site closed", r.ReturnReason)

	recs, _ := f.audit.Query(ctx, audit.Query{JobID: j.ID, Kind: "status"})
	assert.Equal(t, "RETURNED", recs[len(recs)-1].To)
	assert.Equal(t, "site closed", recs[len(recs)-1].Note)

	other := f.create(t, 100)
	c, err := f.m.ApplyStatusWithReason(ctx, other.ID, model.StatusCancelled, "duplicate order", "disp")
	require.NoError(t, err)
	assert.Empty(t, c.ReturnReason)
}

func TestSubmitProofOfDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)
	_, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverArrived, "drv")
	require.NoError(t, err)

	req := PODRequest{
		JobID:        j.ID,
		Photos:       []PhotoUpload{{URL: "https://files/1.jpg", Caption: "pallet"}, {URL: "https://files/2.jpg"}},
		SignatureURL: "https://files/sig.png",
		Notes:        "left at dock",
		Actor:        "drv",
	}
	done, err := f.m.SubmitProofOfDelivery(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, done.Status)
	assert.Equal(t, model.DriverCompleted, done.DriverStatus)
	assert.Equal(t, []string{"https://files/1.jpg", "https://files/2.jpg", "https://files/sig.png"}, done.PODFiles)
	require.Len(t, done.JobPhotos, 3)
	assert.Equal(t, SignatureCaption, done.JobPhotos[2].Caption)
	assert.Equal(t, "drv", done.JobPhotos[0].UploadedBy)
	assert.Equal(t, "left at dock", done.PODNotes)
	require.NotNil(t, done.ActualCompletionTime)

	assert.Len(t, f.notifier.byType(model.NotifyPODSubmitted), 2)
	delivered := f.notifier.byType(model.NotifyDeliveryCompleted)
	require.Len(t, delivered, 2)
	assert.ElementsMatch(t, []string{"cust", "cust2"}, []string{delivered[0].UserID, delivered[1].UserID})

	// resubmitting the same content is a no-op
	f.tick(time.Hour)
	dup, err := f.m.SubmitProofOfDelivery(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, done.Version, dup.Version)
	assert.Len(t, dup.PODFiles, 3)
	assert.Len(t, f.notifier.byType(model.NotifyPODSubmitted), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(podSubmissions.WithLabelValues("duplicate")))

	// an extra photo later notifies dispatchers but not customers again
	more, err := f.m.SubmitProofOfDelivery(ctx, PODRequest{JobID: j.ID, Photos: []PhotoUpload{{URL: "https://files/3.jpg"}}, Actor: "drv", IdempotencyKey: "k2"})
	require.NoError(t, err)
	assert.Len(t, more.PODFiles, 4)
	assert.Equal(t, *done.ActualCompletionTime, *more.ActualCompletionTime)
	assert.Len(t, f.notifier.byType(model.NotifyPODSubmitted), 4)
	assert.Len(t, f.notifier.byType(model.NotifyDeliveryCompleted), 2)
}

func TestDriverCompletionBeforePODNotifiesCustomersOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)

	done, err := f.m.ApplyDriverStatus(ctx, j.ID, model.DriverCompleted, "drv")
	require.NoError(t, err)
	require.NotNil(t, done.CustomerNotifiedAt)
	delivered := f.notifier.byType(model.NotifyDeliveryCompleted)
	require.Len(t, delivered, 2)
	assert.ElementsMatch(t, []string{"cust", "cust2"}, []string{delivered[0].UserID, delivered[1].UserID})

	f.tick(time.Hour)
	pod, err := f.m.SubmitProofOfDelivery(ctx, PODRequest{JobID: j.ID, SignatureURL: "https://files/sig.png", Actor: "drv"})
	require.NoError(t, err)
	assert.Equal(t, *done.CustomerNotifiedAt, *pod.CustomerNotifiedAt)
	assert.Len(t, f.notifier.byType(model.NotifyPODSubmitted), 2)
	assert.Len(t, f.notifier.byType(model.NotifyDeliveryCompleted), 2)

	_, err = f.m.ApplyDriverStatus(ctx, j.ID, model.DriverCompleted, "drv")
	require.NoError(t, err)
	assert.Len(t, f.notifier.byType(model.NotifyDeliveryCompleted), 2)
}

func TestSubmitProofOfDeliveryRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)
	_, err := f.m.SubmitProofOfDelivery(ctx, PODRequest{JobID: j.ID})
	assert.ErrorIs(t, err, ErrInvalidJob)

	_, err = f.m.ApplyStatus(ctx, j.ID, model.StatusCancelled, "disp")
	require.NoError(t, err)
	_, err = f.m.SubmitProofOfDelivery(ctx, PODRequest{JobID: j.ID, SignatureURL: "s"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.m.SubmitProofOfDelivery(ctx, PODRequest{JobID: "ghost", SignatureURL: "s"})
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestConcurrentPODAppendsAreKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	j := f.scheduled(t, 100)
	f.m.cfg.UpdateRetries = 100

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.m.SubmitProofOfDelivery(ctx, PODRequest{
				JobID:  j.ID,
				Photos: []PhotoUpload{{URL: "https://files/" + string(rune('a'+i)) + ".jpg"}},
				Actor:  "drv",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	got, err := f.m.Job(ctx, j.ID)
	require.NoError(t, err)
	assert.Len(t, got.PODFiles, n)
	assert.Len(t, got.PODKeys, n)
}

func TestBulkApplyStatusIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.scheduled(t, 100)
	b := f.scheduled(t, 100)
	pending := f.create(t, 100)

	res, err := f.m.BulkApplyStatus(ctx, []string{a.ID, "ghost", pending.ID, b.ID}, model.StatusInTransit, "disp")
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.True(t, res[0].Success)
	assert.Equal(t, model.StatusInTransit, res[0].Status)
	assert.False(t, res[1].Success)
	assert.Contains(t, res[1].Error, "not found")
	assert.False(t, res[2].Success)
	assert.True(t, res[3].Success)
	assert.Equal(t, "ghost", res[1].JobID)

	got, _ := f.m.Job(ctx, b.ID)
	assert.Equal(t, model.StatusInTransit, got.Status)
	assert.Equal(t, 2.0, testutil.ToFloat64(bulkStatusResults.WithLabelValues("IN_TRANSIT", "true")))

	_, err = f.m.BulkApplyStatus(ctx, []string{a.ID}, model.StatusApproved, "disp")
	assert.ErrorIs(t, err, ErrInvalidBulkAction)
}

func TestBulkCancelReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.scheduled(t, 6000)
	b := f.scheduled(t, 5000)

	w, err := f.m.BucketCapacity(ctx, "t1", testDay, "first-am")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, w.Utilization, 1e-9)
	assert.True(t, w.OverCapacity)

	res, err := f.m.BulkApplyStatus(ctx, []string{b.ID}, model.StatusCancelled, "disp")
	require.NoError(t, err)
	require.True(t, res[0].Success)

	w, err = f.m.BucketCapacity(ctx, "t1", testDay, "first-am")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, w.Utilization, 1e-9)
	assert.Equal(t, []string{a.ID}, w.Jobs)
}

func TestEventsPublished(t *testing.T) {
	f := newFixture(t)
	bus := eventbus.New()
	sub := bus.Subscribe()
	f.m.SetBus(bus)
	j := f.create(t, 100)
	ev := (<-sub).(events.JobEvent)
	assert.Equal(t, j.ID, ev.JobID)
	assert.Equal(t, model.StatusPendingApproval, ev.To)
}
