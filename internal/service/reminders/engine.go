package reminders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/adherence"
	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/gateway"
	"github.com/Health-Tracking/Mobile/internal/metrics"
	"github.com/Health-Tracking/Mobile/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Config struct {
	Location       *time.Location
	DefaultKind    domain.ReminderKind
	Title          string
	Body           string
	Now            func() time.Time
	ResponseWindow time.Duration
	OnCalendar     func(domain.Calendar)
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	alarms  *store.AlarmStore
	tracker *adherence.Tracker
	gw      gateway.Gateway
	journal store.Journal
	handles map[domain.Handle]store.HandleRef
	log     *slog.Logger
}

func NewEngine(gw gateway.Gateway, journal store.Journal, cfg Config, log *slog.Logger) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = 24 * time.Hour
	}
	if !cfg.DefaultKind.Valid() {
		cfg.DefaultKind = domain.ReminderKindOneShot
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		alarms:  store.NewAlarmStore(cfg.Now),
		tracker: adherence.NewTracker(),
		gw:      gw,
		journal: journal,
		handles: make(map[domain.Handle]store.HandleRef),
		log:     log.With(slog.String("component", "reminders")),
	}
}

type CreateInput struct {
	Time string
	Kind string
}

// A permission or scheduling failure still stores the alarm and returns it
// alongside the error.
func (e *Engine) CreateReminder(ctx context.Context, in CreateInput) (domain.Alarm, error) {
	tod, err := domain.ParseTimeOfDay(in.Time)
	if err != nil {
		metrics.ObserveCommand("create", metrics.ResultError)
		return domain.Alarm{}, err
	}
	kind := e.cfg.DefaultKind
	if strings.TrimSpace(in.Kind) != "" {
		kind, err = domain.ParseReminderKind(in.Kind)
		if err != nil {
			metrics.ObserveCommand("create", metrics.ResultError)
			return domain.Alarm{}, validationError(err.Error())
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observeActive()

	at, err := domain.NextFireTime(tod, e.cfg.Now(), e.cfg.Location)
	if err != nil {
		metrics.ObserveCommand("create", metrics.ResultError)
		return domain.Alarm{}, err
	}
	a, err := e.alarms.Create(tod, at, kind)
	if err != nil {
		metrics.ObserveCommand("create", metrics.ResultError)
		return domain.Alarm{}, err
	}

	if err := e.permitted(ctx); err != nil {
		a, _ = e.alarms.SetActive(a.ID, false)
		e.persistAlarm(ctx, a)
		metrics.ObserveCommand("create", metrics.ResultDegraded)
		e.log.Warn("reminder created without permission", slog.String("alarm_id", a.ID.String()))
		return a, err
	}

	a, err = e.arm(ctx, a)
	if err != nil {
		metrics.ObserveCommand("create", metrics.ResultDegraded)
		return a, err
	}
	metrics.ObserveCommand("create", metrics.ResultOK)
	e.log.Info("reminder created",
		slog.String("alarm_id", a.ID.String()),
		slog.Time("time", a.Time),
		slog.String("kind", string(a.Kind)),
	)
	return a, nil
}

func (e *Engine) ToggleReminder(ctx context.Context, id uuid.UUID) (domain.Alarm, error) {
	if id == uuid.Nil {
		return domain.Alarm{}, validationError("alarm_id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observeActive()

	cur, err := e.alarms.Get(id)
	if err != nil {
		metrics.ObserveCommand("toggle", metrics.ResultError)
		return domain.Alarm{}, err
	}
	a, err := e.alarms.Toggle(id)
	if err != nil {
		metrics.ObserveCommand("toggle", metrics.ResultError)
		return domain.Alarm{}, err
	}

	if !a.Active {
		if cur.Handle != "" {
			err := e.gw.Cancel(ctx, cur.Handle)
			metrics.ObserveGatewayCall("cancel", err)
			if err != nil {
				a, _ = e.alarms.SetActive(id, true)
				metrics.ObserveCommand("toggle", metrics.ResultError)
				return a, asSchedulingError("cancel", err)
			}
			delete(e.handles, cur.Handle)
			e.deleteHandle(ctx, cur.Handle)
		}
		a, _ = e.alarms.Detach(id)
		e.persistAlarm(ctx, a)
		metrics.ObserveCommand("toggle", metrics.ResultOK)
		return a, nil
	}

	if err := e.permitted(ctx); err != nil {
		a, _ = e.alarms.SetActive(id, false)
		e.persistAlarm(ctx, a)
		metrics.ObserveCommand("toggle", metrics.ResultDegraded)
		return a, err
	}
	if now := e.cfg.Now(); !a.Time.After(now) {
		a, err = e.alarms.Reschedule(id, domain.NextDailyOccurrence(a.TimeOfDay, now, e.cfg.Location))
		if err != nil {
			metrics.ObserveCommand("toggle", metrics.ResultError)
			return domain.Alarm{}, err
		}
	}
	a, err = e.arm(ctx, a)
	if err != nil {
		metrics.ObserveCommand("toggle", metrics.ResultDegraded)
		return a, err
	}
	metrics.ObserveCommand("toggle", metrics.ResultOK)
	return a, nil
}

func (e *Engine) DeleteReminder(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("alarm_id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observeActive()

	a, err := e.alarms.Get(id)
	if err != nil {
		metrics.ObserveCommand("delete", metrics.ResultError)
		return err
	}
	if a.Active && a.Handle != "" {
		err := e.gw.Cancel(ctx, a.Handle)
		metrics.ObserveGatewayCall("cancel", err)
		if err != nil {
			metrics.ObserveCommand("delete", metrics.ResultError)
			return asSchedulingError("cancel", err)
		}
	}
	if err := e.alarms.Remove(id); err != nil {
		metrics.ObserveCommand("delete", metrics.ResultError)
		return err
	}
	for h, ref := range e.handles {
		if ref.AlarmID == id {
			delete(e.handles, h)
		}
	}
	if e.journal != nil {
		if err := e.journal.DeleteAlarm(ctx, id); err != nil {
			e.log.Error("journal delete alarm failed", slog.String("alarm_id", id.String()), slog.Any("err", err))
		}
	}
	metrics.ObserveCommand("delete", metrics.ResultOK)
	e.log.Info("reminder deleted", slog.String("alarm_id", id.String()))
	return nil
}

func (e *Engine) ListReminders() []domain.Alarm {
	return e.alarms.List()
}

func (e *Engine) AdherenceSnapshot() domain.Calendar {
	return e.tracker.Snapshot()
}

func (e *Engine) AdherenceHistory() *domain.DoseHistory {
	return e.tracker.History()
}

func (e *Engine) HandleEvent(ctx context.Context, ev gateway.Event) error {
	switch ev.Kind {
	case gateway.EventResponded:
		c := domain.Confirmation{Handle: ev.Handle, FiredAt: ev.FiredAt}

		e.mu.Lock()
		defer e.mu.Unlock()

		if c.FiredAt.IsZero() {
			if ref, ok := e.handles[c.Handle]; ok {
				c.FiredAt = ref.At
			} else {
				c.FiredAt = ev.At
			}
		}

		var seq uint64
		if e.journal != nil {
			var err error
			seq, err = e.journal.Enqueue(ctx, c)
			if err != nil {
				return fmt.Errorf("journal confirmation: %w", err)
			}
		}
		return e.confirm(ctx, seq, c)
	case gateway.EventDelivered:
		e.mu.Lock()
		defer e.mu.Unlock()
		defer e.observeActive()
		return e.delivered(ctx, ev)
	default:
		e.log.Warn("unknown gateway event", slog.String("kind", string(ev.Kind)))
		return nil
	}
}

func (e *Engine) Run(ctx context.Context) error {
	events := e.gw.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := e.HandleEvent(ctx, ev); err != nil {
				e.log.Error("gateway event failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("handle", string(ev.Handle)),
					slog.Any("err", err),
				)
			}
		}
	}
}

func (e *Engine) Restore(ctx context.Context) error {
	if e.journal == nil {
		return nil
	}
	state, err := e.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.observeActive()

	e.alarms.Restore(state.Alarms)
	e.handles = make(map[domain.Handle]store.HandleRef, len(state.Handles))
	for h, ref := range state.Handles {
		e.handles[h] = ref
	}
	e.tracker.Merge(state.History)

	for _, p := range state.Pending {
		if err := e.confirm(ctx, p.Seq, p.Confirmation); err != nil {
			return fmt.Errorf("replay confirmation %d: %w", p.Seq, err)
		}
	}

	now := e.cfg.Now()
	for _, a := range e.alarms.List() {
		if !a.Active {
			continue
		}
		if !a.Time.After(now) {
			if a.Kind == domain.ReminderKindOneShot {
				e.retire(ctx, a.ID)
				continue
			}
			a, _ = e.alarms.Reschedule(a.ID, domain.NextDailyOccurrence(a.TimeOfDay, now, e.cfg.Location))
		}
		a, _ = e.alarms.Detach(a.ID)
		if _, err := e.arm(ctx, a); err != nil {
			e.log.Warn("reminder not re-armed", slog.String("alarm_id", a.ID.String()), slog.Any("err", err))
		}
	}
	e.expireHandles(ctx, now)

	e.log.Info("reminders restored",
		slog.Int("alarms", e.alarms.Len()),
		slog.Int("replayed", len(state.Pending)),
	)
	return nil
}

func (e *Engine) ImportHistory(ctx context.Context, h *domain.DoseHistory) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tracker.Merge(h)
	if e.journal != nil {
		if err := e.journal.PutDoses(ctx, e.tracker.History()); err != nil {
			return fmt.Errorf("journal doses: %w", err)
		}
	}
	e.publishCalendar()
	return nil
}

func (e *Engine) confirm(ctx context.Context, seq uint64, c domain.Confirmation) error {
	var alarmID uuid.UUID
	at := c.FiredAt
	if c.Handle != "" {
		ref, ok := e.handles[c.Handle]
		if !ok {
			return e.drop(ctx, seq, c, "unknown_handle")
		}
		if _, err := e.alarms.Get(ref.AlarmID); err != nil {
			delete(e.handles, c.Handle)
			return e.drop(ctx, seq, c, "deleted_alarm")
		}
		alarmID = ref.AlarmID
		if at.IsZero() {
			at = ref.At
		}
	}
	if at.IsZero() {
		at = e.cfg.Now()
	}

	// The live count only moves once the journal holds it; a failed commit
	// leaves the pending entry to be replayed on restart.
	day := domain.DayOf(at, e.cfg.Location)
	n := e.tracker.Count(day) + 1
	if e.journal != nil {
		if err := e.journal.Commit(ctx, seq, day, n, c.Handle); err != nil {
			return fmt.Errorf("journal commit: %w", err)
		}
	}
	e.tracker.RecordDose(day)
	if c.Handle != "" {
		delete(e.handles, c.Handle)
	}
	metrics.ObserveDose()

	e.log.Info("dose recorded",
		slog.String("day", day.String()),
		slog.Int("count", n),
		slog.String("alarm_id", alarmID.String()),
	)
	e.publishCalendar()
	return nil
}

func (e *Engine) drop(ctx context.Context, seq uint64, c domain.Confirmation, reason string) error {
	metrics.ObserveDroppedConfirmation(reason)
	e.log.Debug("confirmation dropped", slog.String("handle", string(c.Handle)), slog.String("reason", reason))
	if e.journal != nil && seq != 0 {
		if err := e.journal.Discard(ctx, seq); err != nil {
			return fmt.Errorf("journal discard: %w", err)
		}
	}
	return nil
}

func (e *Engine) delivered(ctx context.Context, ev gateway.Event) error {
	ref, ok := e.handles[ev.Handle]
	if !ok {
		return nil
	}
	id := ref.AlarmID
	a, err := e.alarms.Get(id)
	if err != nil || a.Handle != ev.Handle {
		return nil
	}

	now := e.cfg.Now()
	e.expireHandles(ctx, now)
	if a.Kind == domain.ReminderKindOneShot {
		e.retire(ctx, id)
		return nil
	}

	next := domain.NextDailyOccurrence(a.TimeOfDay, now, e.cfg.Location)
	if a, err = e.alarms.Reschedule(id, next); err != nil {
		return err
	}
	a, _ = e.alarms.Detach(id)
	_, err = e.arm(ctx, a)
	return err
}

// expireHandles forgets handles whose response window has closed. An alarm's
// current handle is kept regardless.
func (e *Engine) expireHandles(ctx context.Context, now time.Time) {
	for h, ref := range e.handles {
		if a, err := e.alarms.Get(ref.AlarmID); err == nil && a.Handle == h {
			continue
		}
		if ref.At.Add(e.cfg.ResponseWindow).After(now) {
			continue
		}
		delete(e.handles, h)
		e.deleteHandle(ctx, h)
	}
}

// The retired handle stays resolvable for a late response.
func (e *Engine) retire(ctx context.Context, id uuid.UUID) {
	if _, err := e.alarms.SetActive(id, false); err != nil {
		return
	}
	a, _ := e.alarms.Detach(id)
	e.persistAlarm(ctx, a)
}

func (e *Engine) permitted(ctx context.Context) error {
	granted, err := e.gw.RequestPermission(ctx)
	metrics.ObserveGatewayCall("permission", err)
	if err != nil {
		return &domain.PermissionDeniedError{Err: err}
	}
	if !granted {
		return &domain.PermissionDeniedError{}
	}
	return nil
}

func (e *Engine) arm(ctx context.Context, a domain.Alarm) (domain.Alarm, error) {
	h, err := e.gw.Schedule(ctx, a.Time, gateway.Payload{AlarmID: a.ID, Title: e.cfg.Title, Body: e.cfg.Body})
	metrics.ObserveGatewayCall("schedule", err)
	if err != nil {
		e.persistAlarm(ctx, a)
		e.log.Warn("reminder degraded", slog.String("alarm_id", a.ID.String()), slog.Any("err", err))
		return a, asSchedulingError("schedule", err)
	}

	a, err = e.alarms.Attach(a.ID, h)
	if err != nil {
		return a, err
	}
	ref := store.HandleRef{AlarmID: a.ID, At: a.Time}
	e.handles[h] = ref
	if e.journal != nil {
		if err := e.journal.PutHandle(ctx, h, ref); err != nil {
			e.log.Error("journal put handle failed", slog.String("handle", string(h)), slog.Any("err", err))
		}
	}
	e.persistAlarm(ctx, a)
	return a, nil
}

func (e *Engine) persistAlarm(ctx context.Context, a domain.Alarm) {
	if e.journal == nil || a.ID == uuid.Nil {
		return
	}
	if err := e.journal.PutAlarm(ctx, a); err != nil {
		e.log.Error("journal put alarm failed", slog.String("alarm_id", a.ID.String()), slog.Any("err", err))
	}
}

func (e *Engine) deleteHandle(ctx context.Context, h domain.Handle) {
	if e.journal == nil {
		return
	}
	if err := e.journal.DeleteHandle(ctx, h); err != nil {
		e.log.Error("journal delete handle failed", slog.String("handle", string(h)), slog.Any("err", err))
	}
}

func (e *Engine) publishCalendar() {
	if e.cfg.OnCalendar != nil {
		e.cfg.OnCalendar(e.tracker.Snapshot())
	}
}

func (e *Engine) observeActive() {
	n := 0
	for _, a := range e.alarms.List() {
		if a.Active {
			n++
		}
	}
	metrics.SetActiveAlarms(n)
}

func asSchedulingError(op string, err error) error {
	var se *domain.SchedulingError
	if errors.As(err, &se) {
		return err
	}
	return &domain.SchedulingError{Op: op, Err: err}
}
