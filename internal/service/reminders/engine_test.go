package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/gateway"
	"github.com/Health-Tracking/Mobile/internal/store"
	badgerstore "github.com/Health-Tracking/Mobile/internal/store/badger"
)

type fakeGateway struct {
	mu sync.Mutex

	permissionFn func(ctx context.Context) (bool, error)
	scheduleFn   func(ctx context.Context, at time.Time, p gateway.Payload) (domain.Handle, error)
	cancelFn     func(ctx context.Context, h domain.Handle) error

	events    chan gateway.Event
	schedules []time.Time
	cancels   []domain.Handle
	issued    int
}

func newFakeGateway() *fakeGateway {
	f := &fakeGateway{events: make(chan gateway.Event, 8)}
	f.permissionFn = func(ctx context.Context) (bool, error) { return true, nil }
	f.scheduleFn = func(ctx context.Context, at time.Time, p gateway.Payload) (domain.Handle, error) {
		f.issued++
		return domain.Handle(fmt.Sprintf("h-%d", f.issued)), nil
	}
	f.cancelFn = func(ctx context.Context, h domain.Handle) error { return nil }
	return f
}

func (f *fakeGateway) RequestPermission(ctx context.Context) (bool, error) {
	if f.permissionFn == nil {
		panic("RequestPermission not configured")
	}
	return f.permissionFn(ctx)
}

func (f *fakeGateway) Schedule(ctx context.Context, at time.Time, p gateway.Payload) (domain.Handle, error) {
	if f.scheduleFn == nil {
		panic("Schedule not configured")
	}
	f.mu.Lock()
	f.schedules = append(f.schedules, at)
	f.mu.Unlock()
	return f.scheduleFn(ctx, at, p)
}

func (f *fakeGateway) Cancel(ctx context.Context, h domain.Handle) error {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	f.mu.Lock()
	f.cancels = append(f.cancels, h)
	f.mu.Unlock()
	return f.cancelFn(ctx, h)
}

func (f *fakeGateway) Events() <-chan gateway.Event {
	return f.events
}

func (f *fakeGateway) counts() (schedules, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.schedules), len(f.cancels)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// failingJournal fails the next failCommits commits and delegates everything else.
type failingJournal struct {
	store.Journal
	failCommits int
}

func (j *failingJournal) Commit(ctx context.Context, seq uint64, day domain.Day, count int, consumed domain.Handle) error {
	if j.failCommits > 0 {
		j.failCommits--
		return errors.New("disk full")
	}
	return j.Journal.Commit(ctx, seq, day, count, consumed)
}

func newTestEngine(t *testing.T, gw gateway.Gateway, now time.Time) (*Engine, *clock) {
	t.Helper()
	c := &clock{now: now}
	e := NewEngine(gw, nil, Config{Location: time.UTC, Now: c.Now, Title: "Medication"}, nil)
	return e, c
}

func newTestJournal(t *testing.T) *badgerstore.Journal {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	j, err := badgerstore.NewJournal(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = j.Close()
		_ = db.Close()
	})
	return j
}

func mustCreate(t *testing.T, e *Engine, in CreateInput) domain.Alarm {
	t.Helper()
	a, err := e.CreateReminder(context.Background(), in)
	require.NoError(t, err, "CreateReminder(%+v)", in)
	return a
}

func respond(h domain.Handle, firedAt time.Time) gateway.Event {
	return gateway.Event{Kind: gateway.EventResponded, Handle: h, FiredAt: firedAt, At: firedAt}
}

func delivered(h domain.Handle, firedAt time.Time) gateway.Event {
	return gateway.Event{Kind: gateway.EventDelivered, Handle: h, FiredAt: firedAt, At: firedAt}
}

func countOn(e *Engine, day domain.Day) int {
	mark, _ := e.AdherenceSnapshot().Lookup(day)
	return mark.Count
}

func TestCreateReminder_PastTimeRollsToNextDayAndDoseLandsOnFireDay(t *testing.T) {
	gw := newFakeGateway()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	e, _ := newTestEngine(t, gw, now)

	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	want := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, a.Time.Equal(want), "alarm time = %v, want %v", a.Time, want)
	assert.True(t, a.Active)
	assert.Equal(t, domain.Handle("h-1"), a.Handle)
	assert.Equal(t, domain.TimeOfDay{Hour: 9}, a.TimeOfDay)
	require.Len(t, gw.schedules, 1)
	assert.True(t, gw.schedules[0].Equal(want))

	require.NoError(t, e.HandleEvent(context.Background(), respond(a.Handle, want)))

	assert.Equal(t, 0, countOn(e, domain.DayOf(now, time.UTC)))
	assert.Equal(t, 1, countOn(e, domain.DayOf(want, time.UTC)))
}

func TestListReminders_SortedByTimeThenCreation(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC))

	first := mustCreate(t, e, CreateInput{Time: "11:00"})
	tomorrow := mustCreate(t, e, CreateInput{Time: "09:00"})
	second := mustCreate(t, e, CreateInput{Time: "11:00"})
	earliest := mustCreate(t, e, CreateInput{Time: "10:30"})

	var got []uuid.UUID
	for _, a := range e.ListReminders() {
		got = append(got, a.ID)
	}
	assert.Equal(t, []uuid.UUID{earliest.ID, first.ID, second.ID, tomorrow.ID}, got)
}

func TestToggleReminder_TwiceRestoresStateWithOneScheduleAndOneCancel(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})
	schedBefore, cancelBefore := gw.counts()

	off, err := e.ToggleReminder(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Empty(t, off.Handle)

	on, err := e.ToggleReminder(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.NotEmpty(t, on.Handle)
	assert.NotEqual(t, a.Handle, on.Handle)

	sched, cancels := gw.counts()
	assert.Equal(t, 1, sched-schedBefore)
	assert.Equal(t, 1, cancels-cancelBefore)
	assert.Equal(t, a.Handle, gw.cancels[0])
}

func TestToggleReminder_OnRollsPassedTimeForward(t *testing.T) {
	gw := newFakeGateway()
	e, clk := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	_, err := e.ToggleReminder(context.Background(), a.ID)
	require.NoError(t, err)
	clk.Set(time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC))

	on, err := e.ToggleReminder(context.Background(), a.ID)
	require.NoError(t, err)
	want := time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)
	assert.True(t, on.Time.Equal(want), "time = %v, want %v", on.Time, want)
}

func TestDeleteReminder_CancelsOnceAndIgnoresLateResponse(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	require.NoError(t, e.DeleteReminder(context.Background(), a.ID))
	_, cancels := gw.counts()
	assert.Equal(t, 1, cancels)
	assert.Empty(t, e.ListReminders())

	require.NoError(t, e.HandleEvent(context.Background(), respond(a.Handle, a.Time)))
	assert.Zero(t, e.AdherenceSnapshot().Len())
	assert.Empty(t, e.ListReminders(), "late response resurrected an alarm")
}

func TestDeleteReminder_AfterToggleOffCancelsOnceTotal(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	_, err := e.ToggleReminder(context.Background(), a.ID)
	require.NoError(t, err)
	require.NoError(t, e.DeleteReminder(context.Background(), a.ID))

	_, cancels := gw.counts()
	assert.Equal(t, 1, cancels)
}

func TestCreateReminder_PermissionDeniedRecordsInactiveAlarm(t *testing.T) {
	gw := newFakeGateway()
	gw.permissionFn = func(ctx context.Context) (bool, error) { return false, nil }
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))

	a, err := e.CreateReminder(context.Background(), CreateInput{Time: "09:00"})
	var pErr *domain.PermissionDeniedError
	require.ErrorAs(t, err, &pErr)
	assert.False(t, a.Active)
	assert.Empty(t, a.Handle)

	sched, _ := gw.counts()
	assert.Zero(t, sched)
	assert.Len(t, e.ListReminders(), 1)
}

func TestCreateReminder_ScheduleFailureIsDegraded(t *testing.T) {
	gw := newFakeGateway()
	gw.scheduleFn = func(ctx context.Context, at time.Time, p gateway.Payload) (domain.Handle, error) {
		return "", errors.New("platform busy")
	}
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))

	a, err := e.CreateReminder(context.Background(), CreateInput{Time: "09:00"})
	var sErr *domain.SchedulingError
	require.ErrorAs(t, err, &sErr)
	assert.True(t, a.Degraded())

	listed := e.ListReminders()
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Degraded())
}

func TestToggleReminder_CancelFailureKeepsAlarmOn(t *testing.T) {
	gw := newFakeGateway()
	gw.cancelFn = func(ctx context.Context, h domain.Handle) error { return errors.New("cancel failed") }
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	got, err := e.ToggleReminder(context.Background(), a.ID)
	var sErr *domain.SchedulingError
	require.ErrorAs(t, err, &sErr)
	assert.True(t, got.Active)
	assert.Equal(t, a.Handle, got.Handle)
}

func TestDeleteReminder_CancelFailureAbortsDelete(t *testing.T) {
	gw := newFakeGateway()
	gw.cancelFn = func(ctx context.Context, h domain.Handle) error { return errors.New("cancel failed") }
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00"})

	err := e.DeleteReminder(context.Background(), a.ID)
	var sErr *domain.SchedulingError
	require.ErrorAs(t, err, &sErr)
	assert.Len(t, e.ListReminders(), 1)
}

func TestCommands_InputErrors(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := e.CreateReminder(ctx, CreateInput{Time: "25:00"})
	var iErr *domain.InvalidTimeError
	assert.ErrorAs(t, err, &iErr)

	_, err = e.CreateReminder(ctx, CreateInput{Time: "09:00", Kind: "weekly"})
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	unknown := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	var nf *domain.NotFoundError
	_, err = e.ToggleReminder(ctx, unknown)
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, e.DeleteReminder(ctx, unknown), &nf)
	assert.ErrorAs(t, e.DeleteReminder(ctx, uuid.Nil), &vErr)

	sched, _ := gw.counts()
	assert.Zero(t, sched)
}

func TestHandleEvent_DeliveredOneShotRetiresButAcceptsResponse(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00", Kind: "one_shot"})
	ctx := context.Background()
	day := domain.DayOf(a.Time, time.UTC)

	require.NoError(t, e.HandleEvent(ctx, delivered(a.Handle, a.Time)))
	got := e.ListReminders()[0]
	assert.False(t, got.Active)
	assert.Empty(t, got.Handle)

	require.NoError(t, e.HandleEvent(ctx, respond(a.Handle, a.Time)))
	assert.Equal(t, 1, countOn(e, day))

	require.NoError(t, e.HandleEvent(ctx, respond(a.Handle, a.Time)))
	assert.Equal(t, 1, countOn(e, day), "duplicate response counted")
}

func TestHandleEvent_DeliveredDailyRearms(t *testing.T) {
	gw := newFakeGateway()
	e, clk := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "09:00", Kind: "daily"})

	clk.Set(a.Time.Add(time.Second))
	require.NoError(t, e.HandleEvent(context.Background(), delivered(a.Handle, a.Time)))

	got := e.ListReminders()[0]
	want := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, got.Active)
	assert.True(t, got.Time.Equal(want), "time = %v, want %v", got.Time, want)
	assert.NotEmpty(t, got.Handle)
	assert.NotEqual(t, a.Handle, got.Handle)

	require.NoError(t, e.HandleEvent(context.Background(), delivered(a.Handle, time.Time{})))
	sched, _ := gw.counts()
	assert.Equal(t, 2, sched)
}

func TestHandleEvent_DailyKeepsPickedTimeAcrossSkippedHour(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	gw := newFakeGateway()
	clk := &clock{now: time.Date(2026, 3, 7, 12, 0, 0, 0, loc)}
	e := NewEngine(gw, nil, Config{Location: loc, Now: clk.Now}, nil)

	a := mustCreate(t, e, CreateInput{Time: "02:30", Kind: "daily"})
	// 02:30 does not exist on 2026-03-08 in New York.
	assert.Equal(t, 3, a.Time.In(loc).Hour())

	clk.Set(a.Time.Add(time.Second))
	require.NoError(t, e.HandleEvent(context.Background(), delivered(a.Handle, a.Time)))

	got := e.ListReminders()[0].Time.In(loc)
	assert.Equal(t, domain.Day{Year: 2026, Month: time.March, Day: 9}, domain.DayOf(got, loc))
	assert.Equal(t, 2, got.Hour())
	assert.Equal(t, 30, got.Minute())
}

func TestHandleEvent_ResponseWithoutFireTimeCountsOnFireDay(t *testing.T) {
	gw := newFakeGateway()
	e, clk := newTestEngine(t, gw, time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	a := mustCreate(t, e, CreateInput{Time: "23:50"})
	ctx := context.Background()

	clk.Set(a.Time.Add(time.Second))
	require.NoError(t, e.HandleEvent(ctx, delivered(a.Handle, a.Time)))

	ackAt := time.Date(2026, 1, 6, 0, 10, 0, 0, time.UTC)
	clk.Set(ackAt)
	require.NoError(t, e.HandleEvent(ctx, gateway.Event{Kind: gateway.EventResponded, Handle: a.Handle, At: ackAt}))

	assert.Equal(t, 1, countOn(e, domain.Day{Year: 2026, Month: time.January, Day: 5}))
	assert.Equal(t, 0, countOn(e, domain.Day{Year: 2026, Month: time.January, Day: 6}))
}

func TestLocalGateway_AcknowledgeAfterMidnightCountsOnFireDay(t *testing.T) {
	fireAt := time.Date(2026, 1, 5, 23, 50, 0, 0, time.UTC)
	clk := &clock{now: fireAt.Add(-20 * time.Millisecond)}
	local := gateway.NewLocal(gateway.LocalConfig{PermissionGranted: true, Now: clk.Now}, nil)
	require.NoError(t, local.Configure(gateway.HandlerConfig{Title: "Medication"}))
	t.Cleanup(func() { _ = local.Close() })
	e := NewEngine(local, nil, Config{Location: time.UTC, Now: clk.Now}, nil)
	ctx := context.Background()

	a := mustCreate(t, e, CreateInput{Time: "23:50"})
	require.True(t, a.Time.Equal(fireAt))

	next := func() gateway.Event {
		select {
		case ev := <-local.Events():
			return ev
		case <-time.After(2 * time.Second):
			require.FailNow(t, "timed out waiting for gateway event")
			return gateway.Event{}
		}
	}

	ev := next()
	require.Equal(t, gateway.EventDelivered, ev.Kind)
	require.NoError(t, e.HandleEvent(ctx, ev))

	clk.Set(time.Date(2026, 1, 6, 0, 10, 0, 0, time.UTC))
	require.NoError(t, local.Acknowledge(ctx, a.Handle, time.Time{}))
	require.NoError(t, e.HandleEvent(ctx, next()))

	assert.Equal(t, map[string]int{"2026-01-05": 1}, e.AdherenceHistory().Map())
}

func TestHandleEvent_UnansweredDailyFiringsDoNotAccumulateHandles(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)
	gw := newFakeGateway()
	clk := &clock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	e := NewEngine(gw, journal, Config{Location: time.UTC, Now: clk.Now}, nil)

	a := mustCreate(t, e, CreateInput{Time: "09:00", Kind: "daily"})
	for i := 0; i < 30; i++ {
		cur := e.ListReminders()[0]
		clk.Set(cur.Time.Add(time.Second))
		require.NoError(t, e.HandleEvent(ctx, delivered(cur.Handle, cur.Time)))
	}

	// The handle that just fired plus the armed one.
	assert.Len(t, e.handles, 2)
	state, err := journal.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, state.Handles, 2)
	assert.NotContains(t, state.Handles, a.Handle)

	// A response inside the window still counts.
	var last domain.Handle
	for h := range e.handles {
		if h != e.ListReminders()[0].Handle {
			last = h
		}
	}
	require.NotEmpty(t, last)
	require.NoError(t, e.HandleEvent(ctx, gateway.Event{Kind: gateway.EventResponded, Handle: last, At: clk.Now()}))
	assert.Equal(t, 1, e.AdherenceHistory().Len())
}

func TestHandleEvent_FailedCommitIsNotCountedTwiceAfterRestart(t *testing.T) {
	ctx := context.Background()
	journal := &failingJournal{Journal: newTestJournal(t), failCommits: 1}
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	clk := &clock{now: start}
	cfg := Config{Location: time.UTC, Now: clk.Now}

	first := NewEngine(newFakeGateway(), journal, cfg, nil)
	morning := mustCreate(t, first, CreateInput{Time: "09:00"})
	noon := mustCreate(t, first, CreateInput{Time: "12:00"})
	day := domain.DayOf(morning.Time, time.UTC)

	require.Error(t, first.HandleEvent(ctx, respond(morning.Handle, morning.Time)))
	assert.Equal(t, 0, countOn(first, day), "count moved without a commit")

	require.NoError(t, first.HandleEvent(ctx, respond(noon.Handle, noon.Time)))
	assert.Equal(t, 1, countOn(first, day))

	clk.Set(start.Add(6 * time.Hour))
	second := NewEngine(newFakeGateway(), journal, cfg, nil)
	require.NoError(t, second.Restore(ctx))
	assert.Equal(t, 2, countOn(second, day))

	third := NewEngine(newFakeGateway(), journal, cfg, nil)
	require.NoError(t, third.Restore(ctx))
	assert.Equal(t, 2, countOn(third, day))
}

func TestHandleEvent_DoseColorSequence(t *testing.T) {
	gw := newFakeGateway()
	var got []domain.Color
	c := &clock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	firedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	e := NewEngine(gw, nil, Config{
		Location: time.UTC,
		Now:      c.Now,
		OnCalendar: func(cal domain.Calendar) {
			m, _ := cal.Lookup(domain.DayOf(firedAt, time.UTC))
			got = append(got, m.Color)
		},
	}, nil)

	for i := 0; i < 6; i++ {
		require.NoError(t, e.HandleEvent(context.Background(), respond("", firedAt)))
	}

	colors := domain.IntensityColors()
	assert.Equal(t, []domain.Color{colors[0], colors[1], colors[2], colors[3], colors[4], colors[4]}, got)
}

func TestRun_ConsumesEvents(t *testing.T) {
	gw := newFakeGateway()
	fired := make(chan domain.Calendar, 1)
	c := &clock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
	e := NewEngine(gw, nil, Config{
		Location:   time.UTC,
		Now:        c.Now,
		OnCalendar: func(cal domain.Calendar) { fired <- cal },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	gw.events <- respond("", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))

	select {
	case cal := <-fired:
		assert.Equal(t, 1, cal.Len())
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for dose")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRestore_ReplaysBufferedConfirmationOnce(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)

	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	c := &clock{now: start}
	cfg := Config{Location: time.UTC, Now: c.Now}

	first := NewEngine(newFakeGateway(), journal, cfg, nil)
	daily := mustCreate(t, first, CreateInput{Time: "09:00", Kind: "daily"})
	oneShot := mustCreate(t, first, CreateInput{Time: "08:30", Kind: "one_shot"})

	// Buffered by the journal but never applied before the process died.
	_, err := journal.Enqueue(ctx, domain.Confirmation{Handle: daily.Handle, FiredAt: daily.Time})
	require.NoError(t, err)

	c.Set(time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC))
	second := NewEngine(newFakeGateway(), journal, cfg, nil)
	require.NoError(t, second.Restore(ctx))

	day := domain.DayOf(daily.Time, time.UTC)
	assert.Equal(t, 1, countOn(second, day))

	byID := map[uuid.UUID]domain.Alarm{}
	for _, a := range second.ListReminders() {
		byID[a.ID] = a
	}
	assert.False(t, byID[oneShot.ID].Active, "past one-shot not retired")
	gotDaily := byID[daily.ID]
	wantNext := time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, gotDaily.Active)
	assert.NotEmpty(t, gotDaily.Handle)
	assert.True(t, gotDaily.Time.Equal(wantNext), "daily at %v, want %v", gotDaily.Time, wantNext)

	third := NewEngine(newFakeGateway(), journal, cfg, nil)
	require.NoError(t, third.Restore(ctx))
	assert.Equal(t, 1, countOn(third, day))
}

func TestRestore_ExpiresStaleHandles(t *testing.T) {
	ctx := context.Background()
	journal := newTestJournal(t)
	start := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	c := &clock{now: start}
	cfg := Config{Location: time.UTC, Now: c.Now, ResponseWindow: time.Hour}

	first := NewEngine(newFakeGateway(), journal, cfg, nil)
	a := mustCreate(t, first, CreateInput{Time: "09:00", Kind: "one_shot"})

	c.Set(a.Time.Add(time.Second))
	require.NoError(t, first.HandleEvent(ctx, delivered(a.Handle, a.Time)))
	assert.Contains(t, first.handles, a.Handle)

	c.Set(a.Time.Add(2 * time.Hour))
	second := NewEngine(newFakeGateway(), journal, cfg, nil)
	require.NoError(t, second.Restore(ctx))
	assert.Empty(t, second.handles)

	state, err := journal.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Handles)
}

func TestImportHistory_NeverLowersCounts(t *testing.T) {
	gw := newFakeGateway()
	e, _ := newTestEngine(t, gw, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	firedAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, e.HandleEvent(context.Background(), respond("", firedAt)))
	}

	remote, err := domain.DoseHistoryFromMap(map[string]int{"2026-01-05": 1, "2026-01-04": 2})
	require.NoError(t, err)
	require.NoError(t, e.ImportHistory(context.Background(), remote))

	assert.Equal(t, map[string]int{"2026-01-05": 3, "2026-01-04": 2}, e.AdherenceHistory().Map())
}
