package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	GRPCHost           string
	GRPCPort           int
	GRPCRequestTimeout time.Duration
	MetricsAddr        string
	ShutdownTimeout    time.Duration
	LogLevel           string

	// DatabaseURL enables profile sync when set.
	DatabaseURL        string
	DBAppName          string
	DBStatementTimeout time.Duration
	DBMaxOpenConns     int
	DBMaxIdleConns     int
	DBConnMaxLifetime  time.Duration
	DBConnMaxIdleTime  time.Duration
	PatientID          string
	SyncSchedule       string

	Timezone        *time.Location
	DefaultKind     string
	ResponseWindow  time.Duration
	ReminderTitle   string
	ReminderBody    string
	JournalPath     string
	JournalInMemory bool

	PermissionGranted  bool
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEDMINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.addr", "")
	v.SetDefault("grpc.request_timeout", "10s")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("database.url", "")
	v.SetDefault("database.application_name", "medminder")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("patient.id", "")
	v.SetDefault("sync.schedule", "*/15 * * * *")
	v.SetDefault("reminder.timezone", "Local")
	v.SetDefault("reminder.default_kind", "one_shot")
	v.SetDefault("reminder.response_window", "24h")
	v.SetDefault("reminder.title", "Medication reminder")
	v.SetDefault("reminder.body", "Time to take your medication")
	v.SetDefault("journal.path", "data/journal")
	v.SetDefault("journal.in_memory", false)
	v.SetDefault("gateway.permission_granted", true)
	v.SetDefault("gateway.breaker.max_failures", 5)
	v.SetDefault("gateway.breaker.open_timeout", "30s")

	_ = v.BindEnv("grpc.host", "MEDMINDER_GRPC_HOST", "GRPC_HOST")
	_ = v.BindEnv("grpc.port", "MEDMINDER_GRPC_PORT", "GRPC_PORT", "PORT")
	_ = v.BindEnv("grpc.addr", "MEDMINDER_GRPC_ADDR", "GRPC_ADDR")
	_ = v.BindEnv("grpc.request_timeout", "MEDMINDER_GRPC_REQUEST_TIMEOUT")
	_ = v.BindEnv("metrics.addr", "MEDMINDER_METRICS_ADDR", "METRICS_ADDR")
	_ = v.BindEnv("database.url", "MEDMINDER_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.application_name", "MEDMINDER_DATABASE_APPLICATION_NAME")
	_ = v.BindEnv("database.statement_timeout", "MEDMINDER_DATABASE_STATEMENT_TIMEOUT")
	_ = v.BindEnv("database.max_open_conns", "MEDMINDER_DATABASE_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "MEDMINDER_DATABASE_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.conn_max_lifetime", "MEDMINDER_DATABASE_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.conn_max_idle_time", "MEDMINDER_DATABASE_CONN_MAX_IDLE_TIME")
	_ = v.BindEnv("shutdown.timeout", "MEDMINDER_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("log.level", "MEDMINDER_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("patient.id", "MEDMINDER_PATIENT_ID")
	_ = v.BindEnv("sync.schedule", "MEDMINDER_SYNC_SCHEDULE")
	_ = v.BindEnv("reminder.timezone", "MEDMINDER_REMINDER_TIMEZONE")
	_ = v.BindEnv("reminder.default_kind", "MEDMINDER_REMINDER_DEFAULT_KIND")
	_ = v.BindEnv("reminder.response_window", "MEDMINDER_REMINDER_RESPONSE_WINDOW")
	_ = v.BindEnv("reminder.title", "MEDMINDER_REMINDER_TITLE")
	_ = v.BindEnv("reminder.body", "MEDMINDER_REMINDER_BODY")
	_ = v.BindEnv("journal.path", "MEDMINDER_JOURNAL_PATH")
	_ = v.BindEnv("journal.in_memory", "MEDMINDER_JOURNAL_IN_MEMORY")
	_ = v.BindEnv("gateway.permission_granted", "MEDMINDER_GATEWAY_PERMISSION_GRANTED")
	_ = v.BindEnv("gateway.breaker.max_failures", "MEDMINDER_GATEWAY_BREAKER_MAX_FAILURES")
	_ = v.BindEnv("gateway.breaker.open_timeout", "MEDMINDER_GATEWAY_BREAKER_OPEN_TIMEOUT")

	timeout, err := time.ParseDuration(v.GetString("shutdown.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("shutdown.timeout: %w", err)
	}
	grpcTimeout, err := time.ParseDuration(v.GetString("grpc.request_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("grpc.request_timeout: %w", err)
	}
	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		return Config{}, fmt.Errorf("database.conn_max_lifetime: %w", err)
	}
	connMaxIdleTime, err := time.ParseDuration(v.GetString("database.conn_max_idle_time"))
	if err != nil {
		return Config{}, fmt.Errorf("database.conn_max_idle_time: %w", err)
	}
	statementTimeout, err := time.ParseDuration(v.GetString("database.statement_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("database.statement_timeout: %w", err)
	}
	responseWindow, err := time.ParseDuration(v.GetString("reminder.response_window"))
	if err != nil {
		return Config{}, fmt.Errorf("reminder.response_window: %w", err)
	}
	if responseWindow <= 0 {
		return Config{}, fmt.Errorf("reminder.response_window must be positive, got %s", responseWindow)
	}
	openTimeout, err := time.ParseDuration(v.GetString("gateway.breaker.open_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("gateway.breaker.open_timeout: %w", err)
	}
	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("reminder.timezone")))
	if err != nil {
		return Config{}, fmt.Errorf("reminder.timezone: %w", err)
	}

	maxFailures := v.GetInt("gateway.breaker.max_failures")
	if maxFailures < 1 {
		return Config{}, fmt.Errorf("gateway.breaker.max_failures must be positive, got %d", maxFailures)
	}

	if addr := strings.TrimSpace(v.GetString("grpc.addr")); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err == nil {
			if host != "" {
				v.Set("grpc.host", host)
			}
			if port, err := strconv.Atoi(portStr); err == nil {
				v.Set("grpc.port", port)
			}
		}
	}

	databaseURL := strings.TrimSpace(v.GetString("database.url"))
	patientID := strings.TrimSpace(v.GetString("patient.id"))
	if databaseURL != "" && patientID == "" {
		return Config{}, fmt.Errorf("patient.id is required when database.url is set")
	}

	return Config{
		GRPCHost:           strings.TrimSpace(v.GetString("grpc.host")),
		GRPCPort:           v.GetInt("grpc.port"),
		GRPCRequestTimeout: grpcTimeout,
		MetricsAddr:        strings.TrimSpace(v.GetString("metrics.addr")),
		ShutdownTimeout:    timeout,
		LogLevel:           v.GetString("log.level"),
		DatabaseURL:        databaseURL,
		DBAppName:          strings.TrimSpace(v.GetString("database.application_name")),
		DBStatementTimeout: statementTimeout,
		DBMaxOpenConns:     v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:     v.GetInt("database.max_idle_conns"),
		DBConnMaxLifetime:  connMaxLifetime,
		DBConnMaxIdleTime:  connMaxIdleTime,
		PatientID:          patientID,
		SyncSchedule:       strings.TrimSpace(v.GetString("sync.schedule")),
		Timezone:           loc,
		DefaultKind:        strings.TrimSpace(v.GetString("reminder.default_kind")),
		ResponseWindow:     responseWindow,
		ReminderTitle:      v.GetString("reminder.title"),
		ReminderBody:       v.GetString("reminder.body"),
		JournalPath:        strings.TrimSpace(v.GetString("journal.path")),
		JournalInMemory:    v.GetBool("journal.in_memory"),
		PermissionGranted:  v.GetBool("gateway.permission_granted"),
		BreakerMaxFailures: uint32(maxFailures),
		BreakerOpenTimeout: openTimeout,
	}, nil
}
