package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Health-Tracking/Mobile/internal/config"
	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/gateway"
	"github.com/Health-Tracking/Mobile/internal/metrics"
	"github.com/Health-Tracking/Mobile/internal/profilesync"
	"github.com/Health-Tracking/Mobile/internal/service/reminders"
	"github.com/Health-Tracking/Mobile/internal/store"
	"github.com/Health-Tracking/Mobile/internal/store/badger"
	"github.com/Health-Tracking/Mobile/internal/store/postgres"
	grpcTransport "github.com/Health-Tracking/Mobile/internal/transport/grpc"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "medminder-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "medminder-server"),
	)
	slog.SetDefault(log)

	grpcAddr := net.JoinHostPort(cfg.GRPCHost, strconv.Itoa(cfg.GRPCPort))
	log.Info("starting",
		slog.String("grpc_addr", grpcAddr),
		slog.String("log_level", cfg.LogLevel),
		slog.String("timezone", cfg.Timezone.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journalCfg := badger.DefaultConfig()
	journalCfg.Path = cfg.JournalPath
	journalCfg.InMemory = cfg.JournalInMemory
	journalCfg.Logger = log
	kv, err := badger.Open(journalCfg)
	if err != nil {
		log.Error("journal open failed", slog.Any("err", err), slog.String("path", cfg.JournalPath))
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn("journal close failed", slog.Any("err", err))
		}
	}()
	journal, err := badger.NewJournal(kv)
	if err != nil {
		log.Error("journal init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			log.Warn("journal sequence release failed", slog.Any("err", err))
		}
	}()

	local := gateway.NewLocal(gateway.LocalConfig{
		PermissionGranted: cfg.PermissionGranted,
		ResponseWindow:    cfg.ResponseWindow,
	}, log)
	if err := local.Configure(gateway.HandlerConfig{Title: cfg.ReminderTitle, Body: cfg.ReminderBody, Sound: true}); err != nil {
		log.Error("notification handler setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer local.Close()
	gw := gateway.NewBreaker(local, gateway.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}, log)

	kind, err := domain.ParseReminderKind(cfg.DefaultKind)
	if err != nil {
		log.Error("invalid default reminder kind", slog.Any("err", err))
		os.Exit(1)
	}
	engine := reminders.NewEngine(gw, journal, reminders.Config{
		Location:       cfg.Timezone,
		DefaultKind:    kind,
		Title:          cfg.ReminderTitle,
		Body:           cfg.ReminderBody,
		ResponseWindow: cfg.ResponseWindow,
	}, log)
	if err := engine.Restore(ctx); err != nil {
		log.Error("journal restore failed", slog.Any("err", err))
		os.Exit(1)
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("reminder engine stopped", slog.Any("err", err))
		}
	}()

	var syncer *profilesync.Syncer
	if cfg.DatabaseURL != "" {
		log.Info("connecting to profile store", databaseLogArgs(cfg.DatabaseURL)...)
		db, err := postgres.Open(ctx, postgres.Config{
			URL:              cfg.DatabaseURL,
			ApplicationName:  cfg.DBAppName,
			StatementTimeout: cfg.DBStatementTimeout,
			MaxOpenConns:     cfg.DBMaxOpenConns,
			MaxIdleConns:     cfg.DBMaxIdleConns,
			ConnMaxLifetime:  cfg.DBConnMaxLifetime,
			ConnMaxIdleTime:  cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
			log.Error("profile store connection failed", args...)
			os.Exit(1)
		}
		defer func() {
			if err := postgres.Close(db); err != nil {
				log.Warn("profile store close failed", slog.Any("err", err))
			}
		}()

		repo := postgres.NewProfileRepo(db)
		if err := ensurePatient(ctx, repo, cfg.PatientID); err != nil {
			log.Error("patient profile setup failed", slog.Any("err", err), slog.String("patient_id", cfg.PatientID))
			os.Exit(1)
		}
		syncer, err = profilesync.New(profilesync.Config{
			PatientID: cfg.PatientID,
			Schedule:  cfg.SyncSchedule,
			Location:  cfg.Timezone,
		}, engine, repo, log)
		if err != nil {
			log.Error("profile sync setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		if err := syncer.SyncOnce(ctx); err != nil {
			log.Warn("initial profile sync failed", slog.Any("err", err))
		}
		syncer.Start()
		log.Info("profile sync scheduled", slog.String("schedule", cfg.SyncSchedule))
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(defaultRequestTimeoutInterceptor(cfg.GRPCRequestTimeout)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	grpcTransport.RegisterRemindersServiceServer(grpcServer, grpcTransport.NewRemindersServer(engine, local, log))
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", grpcAddr))
		os.Exit(1)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	log.Info("grpc server started", slog.String("grpc_addr", grpcAddr))

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		log.Info("metrics server started", slog.String("metrics_addr", cfg.MetricsAddr))
	}

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			exitCode = 1
		}
	}

	healthServer.Shutdown()
	shutdown(log, grpcServer, cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", slog.Any("err", err))
		}
	}
	if syncer != nil {
		if err := syncer.Stop(shutdownCtx); err != nil {
			log.Warn("profile sync stop timed out", slog.Any("err", err))
		}
		if err := syncer.SyncOnce(shutdownCtx); err != nil {
			log.Warn("final profile sync failed", slog.Any("err", err))
		}
	}
	stop()
	<-engineDone

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func ensurePatient(ctx context.Context, repo *postgres.ProfileRepo, patientID string) error {
	_, err := repo.GetPatient(ctx, patientID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	_, err = repo.UpsertPatient(ctx, domain.Patient{ID: patientID, Name: patientID})
	return err
}

func defaultRequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
