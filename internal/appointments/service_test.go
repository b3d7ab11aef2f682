package appointments

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carepulse/internal/events"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/internal/remote/memory"
)

var testNow = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	writes []string
	hits   int
	misses int
}

func (r *recorder) ObserveAppointmentWrite(action, status string) {
	r.writes = append(r.writes, action+":"+status)
}

func (r *recorder) ObserveCacheLookup(hit bool) {
	if hit {
		r.hits++
		return
	}
	r.misses++
}

type harness struct {
	mem     *memory.Backend
	svc     *Service
	metrics *recorder
	broker  *events.MemoryBroker
}

func newHarness(t *testing.T, required bool, cache ListCache) *harness {
	t.Helper()
	mem := memory.New()
	_, err := mem.CreateIdentity(context.Background(), remote.IdentityInput{ID: "u1", Name: "Pat", Email: "pat@example.com", Phone: "+15550001111"})
	require.NoError(t, err)

	metrics := &recorder{}
	broker := events.NewMemoryBroker()
	dispatcher := notify.NewDispatcher(mem, notify.DispatcherConfig{Required: required}, nil)
	svc := NewService(mem, dispatcher, Config{
		Composer: notify.NewComposer("CarePulse", time.UTC),
		Cache:    cache,
		Events:   broker,
		Metrics:  metrics,
		Now:      func() time.Time { return testNow },
	}, nil)
	return &harness{mem: mem, svc: svc, metrics: metrics, broker: broker}
}

func checkupRequest() CreateRequest {
	return CreateRequest{
		UserID:           "u1",
		PatientID:        "p1",
		PrimaryPhysician: "Dr. A",
		Schedule:         time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
		Reason:           "checkup",
		Status:           StatusPending,
	}
}

func strPtr(s string) *string { return &s }

func statusPtr(s Status) *Status { return &s }

func TestCreateThenCancelNotifiesWithReason(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()

	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, "Dr. A", created.PrimaryPhysician)
	assert.True(t, created.Schedule.Equal(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)))

	updated, err := h.svc.Update(ctx, UpdateRequest{
		AppointmentID: created.ID,
		UserID:        "u1",
		Type:          TypeCancel,
		Appointment: Changes{
			Status:             statusPtr(StatusCancelled),
			CancellationReason: strPtr("double-booked"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, updated.Status)
	assert.Equal(t, "double-booked", updated.CancellationReason)

	sent := h.mem.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"u1"}, sent[0].Recipients)
	assert.Contains(t, sent[0].Content, "double-booked")
	assert.Contains(t, sent[0].Content, "Jan 10, 2025 9:00 AM")

	assert.Equal(t, []string{"created:pending", "updated:cancelled"}, h.metrics.writes)
}

func TestScheduleUpdateUsesStoredPhysician(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)

	updated, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: created.ID, Type: TypeSchedule})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, updated.Status)

	sent := h.mem.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"u1"}, sent[0].Recipients, "owner taken from the record")
	assert.Equal(t, "Greetings from CarePulse. Your appointment is confirmed for Jan 10, 2025 9:00 AM with Dr. A.", sent[0].Content)
}

func TestUpdateKeepsCallerStatusForOtherTypes(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)

	when := time.Date(2025, 2, 3, 14, 30, 0, 0, time.UTC)
	updated, err := h.svc.Update(ctx, UpdateRequest{
		AppointmentID: created.ID,
		Type:          "reschedule",
		Appointment:   Changes{Schedule: &when, PrimaryPhysician: strPtr("B")},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, updated.Status)
	assert.Equal(t, "B", updated.PrimaryPhysician)

	sent := h.mem.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Content, "Feb 3, 2025 2:30 PM with Dr. B has been updated.")
}

func TestUpdateMissingDocumentIsFatal(t *testing.T) {
	h := newHarness(t, false, nil)

	_, err := h.svc.Update(context.Background(), UpdateRequest{AppointmentID: "missing", Type: TypeSchedule})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpdateNoDocument)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Empty(t, h.mem.Sent())
}

func TestUpdateRequiredNotificationFailureReturnsRecord(t *testing.T) {
	h := newHarness(t, true, nil)
	ctx := context.Background()
	req := checkupRequest()
	created, err := h.svc.Create(ctx, req)
	require.NoError(t, err)

	updated, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: created.ID, UserID: "ghost", Type: TypeSchedule})
	require.Error(t, err)
	assert.ErrorIs(t, err, notify.ErrNotificationFailed)
	require.NotNil(t, updated)
	assert.Equal(t, StatusScheduled, updated.Status)

	stored, err := h.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, stored.Status, "write is not rolled back")
}

func TestUpdateBestEffortNotificationFailureSucceeds(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)

	updated, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: created.ID, UserID: "ghost", Type: TypeSchedule})
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, updated.Status)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, false, nil)
	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		want   error
	}{
		{"missing user", func(r *CreateRequest) { r.UserID = "" }, ErrMissingUserID},
		{"missing patient", func(r *CreateRequest) { r.PatientID = " " }, ErrMissingPatientID},
		{"missing physician", func(r *CreateRequest) { r.PrimaryPhysician = "" }, ErrMissingPhysician},
		{"missing schedule", func(r *CreateRequest) { r.Schedule = time.Time{} }, ErrMissingSchedule},
		{"past schedule", func(r *CreateRequest) { r.Schedule = testNow.Add(-time.Hour) }, ErrScheduleInPast},
		{"missing reason", func(r *CreateRequest) { r.Reason = "" }, ErrMissingReason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := checkupRequest()
			tt.mutate(&req)
			_, err := h.svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	req := checkupRequest()
	req.Schedule = testNow.Add(-2 * time.Minute)
	_, err := h.svc.Create(context.Background(), req)
	assert.NoError(t, err, "within grace window")
}

func TestCreateAlwaysStoresPending(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		status Status
	}{
		{"no type", "", StatusScheduled},
		{"schedule type", TypeSchedule, StatusScheduled},
		{"cancel type", TypeCancel, StatusCancelled},
		{"unknown type", "reschedule", StatusScheduled},
		{"unknown status", "", "archived"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, false, nil)
			req := checkupRequest()
			req.Type = tt.typ
			req.Status = tt.status
			created, err := h.svc.Create(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, created.Status)
			assert.Empty(t, created.CancellationReason)

			stored, err := h.svc.Get(context.Background(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, stored.Status)
			assert.Equal(t, []string{"created:pending"}, h.metrics.writes)
		})
	}
}

func TestUpdateNormalisesMixedCaseType(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		changes Changes
		status  Status
		message string
	}{
		{"schedule", " Schedule ", Changes{}, StatusScheduled, "is confirmed for"},
		{"cancel", "CANCEL", Changes{CancellationReason: strPtr("double-booked")}, StatusCancelled, "double-booked"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, nil)
			ctx := context.Background()
			created, err := h.svc.Create(ctx, checkupRequest())
			require.NoError(t, err)

			updated, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: created.ID, Type: tt.typ, Appointment: tt.changes})
			require.NoError(t, err)
			assert.Equal(t, tt.status, updated.Status)

			sent := h.mem.Sent()
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0].Content, tt.message)
		})
	}
}

func TestUpdateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  UpdateRequest
		want error
	}{
		{"missing id", UpdateRequest{Type: TypeSchedule}, ErrMissingAppointmentID},
		{"cancel without reason", UpdateRequest{AppointmentID: "a", Type: TypeCancel}, ErrMissingCancellationNote},
		{"cancel with blank reason", UpdateRequest{AppointmentID: "a", Type: TypeCancel, Appointment: Changes{CancellationReason: strPtr(" ")}}, ErrMissingCancellationNote},
		{"unknown status", UpdateRequest{AppointmentID: "a", Appointment: Changes{Status: statusPtr("archived")}}, ErrUnknownStatus},
		{"nothing to change", UpdateRequest{AppointmentID: "a", Type: "note"}, ErrEmptyUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.req.Validate(), tt.want)
		})
	}
}

func TestStatusForType(t *testing.T) {
	assert.Equal(t, StatusPending, StatusForType("create", StatusScheduled))
	assert.Equal(t, StatusScheduled, StatusForType("schedule", ""))
	assert.Equal(t, StatusCancelled, StatusForType(" Cancel ", StatusPending))
	assert.Equal(t, StatusScheduled, StatusForType("other", StatusScheduled))
	assert.Equal(t, Status(""), StatusForType("other", ""))
}

func withStatuses(statuses ...Status) []Appointment {
	out := make([]Appointment, len(statuses))
	for i, s := range statuses {
		out[i] = Appointment{ID: string(rune('a' + i)), Status: s}
	}
	return out
}

func TestCountStatuses(t *testing.T) {
	list := withStatuses(StatusPending, StatusPending, StatusScheduled, StatusCancelled, StatusCancelled)
	assert.Equal(t, Tally{TotalCount: 5, ScheduledCount: 1, PendingCount: 2, CancelledCount: 2}, CountStatuses(list, 5))
}

func TestCountStatusesSkipsUnknown(t *testing.T) {
	list := withStatuses(StatusPending, "archived", StatusScheduled, "")
	tally := CountStatuses(list, len(list))
	assert.Equal(t, 4, tally.TotalCount)
	assert.Equal(t, 2, tally.ScheduledCount+tally.PendingCount+tally.CancelledCount)
}

func TestCountStatusesIgnoresOrder(t *testing.T) {
	list := withStatuses(StatusPending, StatusScheduled, StatusCancelled, StatusCancelled, StatusPending, "x", StatusScheduled)
	want := CountStatuses(list, len(list))
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]Appointment(nil), list...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, CountStatuses(shuffled, len(shuffled)))
	}
}

func TestListRecentNewestFirstWithTally(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx := context.Background()
	tick := 0
	h.mem.SetClock(func() time.Time {
		tick++
		return testNow.Add(time.Duration(tick) * time.Second)
	})

	var ids []string
	for i := 0; i < 5; i++ {
		created, err := h.svc.Create(ctx, checkupRequest())
		require.NoError(t, err)
		ids = append(ids, created.ID)
	}
	_, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: ids[2], Type: TypeSchedule})
	require.NoError(t, err)
	for _, id := range ids[3:] {
		_, err := h.svc.Update(ctx, UpdateRequest{AppointmentID: id, Type: TypeCancel, Appointment: Changes{CancellationReason: strPtr("clinic closed")}})
		require.NoError(t, err)
	}

	list, err := h.svc.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, list.Documents, 5)
	assert.Equal(t, ids[4], list.Documents[0].ID)
	assert.Equal(t, ids[0], list.Documents[4].ID)
	assert.Equal(t, Tally{TotalCount: 5, ScheduledCount: 1, PendingCount: 2, CancelledCount: 2}, list.Tally)
}

func TestListRecentUsesRedisCacheAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	h := newHarness(t, false, NewRedisListCache(client, time.Minute))
	ctx := context.Background()

	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)

	first, err := h.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.PendingCount)
	assert.True(t, mr.Exists(recentListKey))

	second, err := h.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Tally, second.Tally)
	assert.Equal(t, 1, h.metrics.hits)
	assert.Equal(t, 1, h.metrics.misses)

	_, err = h.svc.Update(ctx, UpdateRequest{AppointmentID: created.ID, Type: TypeSchedule})
	require.NoError(t, err)
	assert.False(t, mr.Exists(recentListKey))

	third, err := h.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, third.PendingCount)
	assert.Equal(t, 1, third.ScheduledCount)
}

// interleavedDocuments runs afterList once, after a list has been read and
// before it is returned to the caller.
type interleavedDocuments struct {
	remote.Documents
	afterList func()
}

func (d *interleavedDocuments) ListDocuments(ctx context.Context, collection string, opts remote.ListOptions) (*remote.DocumentList, error) {
	list, err := d.Documents.ListDocuments(ctx, collection, opts)
	if hook := d.afterList; hook != nil {
		d.afterList = nil
		hook()
	}
	return list, err
}

func TestListRecentDoesNotCacheListReadBeforeInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisListCache(client, time.Minute)
	h := newHarness(t, false, cache)
	ctx := context.Background()

	docs := &interleavedDocuments{Documents: h.mem}
	lister := NewService(docs, notify.NewDispatcher(h.mem, notify.DispatcherConfig{}, nil), Config{
		Cache: cache,
		Now:   func() time.Time { return testNow },
	}, nil)
	docs.afterList = func() {
		_, err := h.svc.Create(ctx, checkupRequest())
		require.NoError(t, err)
	}

	stale, err := lister.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stale.TotalCount)
	assert.False(t, mr.Exists(recentListKey))

	fresh, err := lister.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalCount)
	require.Len(t, fresh.Documents, 1)
	assert.True(t, mr.Exists(recentListKey))
}

func TestRedisListCacheSkipsSetForOldGeneration(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisListCache(client, time.Minute)
	ctx := context.Background()

	_, gen, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, cache.Invalidate(ctx))
	require.NoError(t, cache.Set(ctx, gen, &RecentList{Tally: Tally{TotalCount: 3}}))
	assert.False(t, mr.Exists(recentListKey))

	_, gen, _, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	require.NoError(t, cache.Set(ctx, gen, &RecentList{Tally: Tally{TotalCount: 3}}))

	list, _, ok, err := cache.Get(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, list.TotalCount)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context) (*RecentList, int64, bool, error) {
	return nil, 0, false, errors.New("redis down")
}
func (brokenCache) Set(context.Context, int64, *RecentList) error { return errors.New("redis down") }
func (brokenCache) Invalidate(context.Context) error              { return errors.New("redis down") }

func TestCacheFailuresDoNotFailRequests(t *testing.T) {
	h := newHarness(t, false, brokenCache{})
	ctx := context.Background()
	_, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)
	list, err := h.svc.ListRecent(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalCount)
}

func TestWritesPublishChangeEvents(t *testing.T) {
	h := newHarness(t, false, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := h.broker.Subscribe(ctx)
	require.NoError(t, err)

	created, err := h.svc.Create(ctx, checkupRequest())
	require.NoError(t, err)

	select {
	case env := <-sub:
		var evt events.AppointmentsChangedV1
		require.NoError(t, env.Decode(&evt))
		assert.Equal(t, created.ID, evt.AppointmentID)
		assert.Equal(t, events.ActionCreated, evt.Action)
		assert.Equal(t, "pending", evt.Status)
		assert.Equal(t, events.AppointmentAggregate(created.ID), env.Aggregate)
	case <-time.After(time.Second):
		t.Fatal("expected change event")
	}
}

func TestGetMissing(t *testing.T) {
	h := newHarness(t, false, nil)
	_, err := h.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, remote.ErrNotFound)
	_, err = h.svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	mem := memory.New()
	assert.Panics(t, func() { NewService(nil, notify.NewDispatcher(mem, notify.DispatcherConfig{}, nil), Config{}, nil) })
	assert.Panics(t, func() { NewService(mem, nil, Config{}, nil) })
}
