package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type HandlerConfig struct {
	Title string
	Body  string
	Sound bool
}

type LocalConfig struct {
	PermissionGranted bool
	Buffer            int
	ResponseWindow    time.Duration
	Now               func() time.Time
}

type scheduled struct {
	timer   *time.Timer
	at      time.Time
	payload Payload
}

type Local struct {
	mu      sync.Mutex
	now     func() time.Time
	window  time.Duration
	granted bool
	handler *HandlerConfig
	pending map[domain.Handle]scheduled
	fired   map[domain.Handle]time.Time

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	log *slog.Logger
}

var _ Gateway = (*Local)(nil)

func NewLocal(cfg LocalConfig, log *slog.Logger) *Local {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = 24 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Local{
		now:     cfg.Now,
		window:  cfg.ResponseWindow,
		granted: cfg.PermissionGranted,
		pending: make(map[domain.Handle]scheduled),
		fired:   make(map[domain.Handle]time.Time),
		events:  make(chan Event, cfg.Buffer),
		done:    make(chan struct{}),
		log:     log.With(slog.String("component", "gateway.local")),
	}
}

// Configure must be called exactly once, before the first Schedule.
func (l *Local) Configure(h HandlerConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handler != nil {
		return ErrAlreadyConfigured
	}
	l.handler = &h
	return nil
}

func (l *Local) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted, nil
}

func (l *Local) SetPermission(granted bool) {
	l.mu.Lock()
	l.granted = granted
	l.mu.Unlock()
}

func (l *Local) Schedule(ctx context.Context, at time.Time, p Payload) (domain.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if at.IsZero() {
		return "", &domain.SchedulingError{Op: "schedule", Err: &domain.InvalidTimeError{Reason: "time is required"}}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.done:
		return "", &domain.SchedulingError{Op: "schedule", Err: ErrClosed}
	default:
	}
	if l.handler == nil {
		return "", &domain.SchedulingError{Op: "schedule", Err: ErrNotConfigured}
	}
	if !l.granted {
		return "", &domain.SchedulingError{Op: "schedule", Err: ErrPermissionDenied}
	}

	h := domain.Handle(uuid.NewString())
	l.pending[h] = scheduled{
		timer:   time.AfterFunc(at.Sub(l.now()), func() { l.fire(h) }),
		at:      at,
		payload: p,
	}
	return h, nil
}

func (l *Local) Cancel(ctx context.Context, h domain.Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.pending[h]; ok {
		s.timer.Stop()
		delete(l.pending, h)
	}
	return nil
}

// Acknowledge reports that the user responded to the alert behind h. A zero
// firedAt is taken from the alert's recorded fire time.
func (l *Local) Acknowledge(ctx context.Context, h domain.Handle, firedAt time.Time) error {
	now := l.now()
	l.mu.Lock()
	if at, ok := l.fired[h]; ok {
		if firedAt.IsZero() {
			firedAt = at
		}
		delete(l.fired, h)
	}
	l.mu.Unlock()
	if firedAt.IsZero() {
		firedAt = now
	}

	ev := Event{Kind: EventResponded, Handle: h, FiredAt: firedAt, At: now}
	select {
	case l.events <- ev:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Events() <-chan Event {
	return l.events
}

func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		for h, s := range l.pending {
			s.timer.Stop()
			delete(l.pending, h)
		}
		clear(l.fired)
		l.mu.Unlock()
	})
	return nil
}

func (l *Local) fire(h domain.Handle) {
	l.mu.Lock()
	s, ok := l.pending[h]
	if ok {
		delete(l.pending, h)
		l.fired[h] = s.at
		cutoff := l.now().Add(-l.window)
		for fh, at := range l.fired {
			if at.Before(cutoff) {
				delete(l.fired, fh)
			}
		}
	}
	var title string
	if l.handler != nil {
		title = l.handler.Title
	}
	l.mu.Unlock()
	if !ok {
		return
	}

	l.log.Info("alert delivered",
		slog.String("handle", string(h)),
		slog.String("alarm_id", s.payload.AlarmID.String()),
		slog.String("title", title),
	)

	ev := Event{Kind: EventDelivered, Handle: h, FiredAt: s.at, At: l.now()}
	select {
	case l.events <- ev:
	case <-l.done:
	}
}
