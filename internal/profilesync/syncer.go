package profilesync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/metrics"
)

type Local interface {
	AdherenceHistory() *domain.DoseHistory
	ImportHistory(ctx context.Context, h *domain.DoseHistory) error
}

type Remote interface {
	LoadAdherence(ctx context.Context, patientID string) (*domain.DoseHistory, error)
	SaveAdherence(ctx context.Context, patientID string, h *domain.DoseHistory) error
}

type Config struct {
	PatientID string
	Schedule  string
	Timeout   time.Duration
	Location  *time.Location
}

type Syncer struct {
	cfg    Config
	local  Local
	remote Remote
	cron   *cron.Cron
	log    *slog.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, local Local, remote Remote, log *slog.Logger) (*Syncer, error) {
	if cfg.PatientID == "" {
		return nil, fmt.Errorf("patient id is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "*/15 * * * *"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "profilesync"))

	s := &Syncer{cfg: cfg, local: local, remote: remote, log: log}
	cl := cronLogger{log: log}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(cfg.Schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

func (s *Syncer) Start() {
	s.cron.Start()
}

func (s *Syncer) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) SyncOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	err := s.sync(ctx)
	metrics.ObserveSync(err)
	return err
}

func (s *Syncer) sync(ctx context.Context) error {
	remote, err := s.remote.LoadAdherence(ctx, s.cfg.PatientID)
	if err != nil {
		return fmt.Errorf("load remote adherence: %w", err)
	}
	if err := s.local.ImportHistory(ctx, remote); err != nil {
		return fmt.Errorf("import remote adherence: %w", err)
	}

	h := s.local.AdherenceHistory()
	if h.Len() == 0 {
		return nil
	}
	if err := s.remote.SaveAdherence(ctx, s.cfg.PatientID, h); err != nil {
		return fmt.Errorf("save adherence: %w", err)
	}
	s.log.Debug("adherence synced", slog.Int("days", h.Len()))
	return nil
}

func (s *Syncer) run() {
	if err := s.SyncOnce(context.Background()); err != nil {
		s.log.Error("profile sync failed", slog.Any("err", err))
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, slog.Any("err", err))...)
}
