package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Health-Tracking/Mobile/internal/domain"
	"github.com/Health-Tracking/Mobile/internal/gateway"
	"github.com/Health-Tracking/Mobile/internal/service/reminders"
)

type remindersService interface {
	CreateReminder(ctx context.Context, in reminders.CreateInput) (domain.Alarm, error)
	ToggleReminder(ctx context.Context, id uuid.UUID) (domain.Alarm, error)
	DeleteReminder(ctx context.Context, id uuid.UUID) error
	ListReminders() []domain.Alarm
	AdherenceSnapshot() domain.Calendar
}

type responseSink interface {
	Acknowledge(ctx context.Context, h domain.Handle, firedAt time.Time) error
}

type RemindersServer struct {
	svc  remindersService
	sink responseSink
	log  *slog.Logger
}

var _ RemindersServiceServer = (*RemindersServer)(nil)

func NewRemindersServer(svc remindersService, sink responseSink, log *slog.Logger) *RemindersServer {
	if log == nil {
		log = slog.Default()
	}
	return &RemindersServer{svc: svc, sink: sink, log: log.With(slog.String("component", "grpc.reminders"))}
}

func (s *RemindersServer) CreateReminder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateReminder"))
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	a, err := s.svc.CreateReminder(ctx, reminders.CreateInput{
		Time: stringField(req, "time"),
		Kind: stringField(req, "kind"),
	})
	if err != nil {
		if warning, ok := degradedWarning(a, err); ok {
			log.Warn("reminder created degraded", slog.String("alarm_id", a.ID.String()), slog.Any("err", err))
			return reminderResponse(a, warning)
		}
		return nil, s.statusFor(log, err)
	}
	return reminderResponse(a, "")
}

func (s *RemindersServer) ToggleReminder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ToggleReminder"))
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseAlarmID(stringField(req, "id"))
	if err != nil {
		return nil, err
	}

	a, err := s.svc.ToggleReminder(ctx, id)
	if err != nil {
		if warning, ok := degradedWarning(a, err); ok {
			log.Warn("reminder toggled degraded", slog.String("alarm_id", a.ID.String()), slog.Any("err", err))
			return reminderResponse(a, warning)
		}
		return nil, s.statusFor(log, err)
	}
	return reminderResponse(a, "")
}

func (s *RemindersServer) DeleteReminder(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	log := s.log.With(slog.String("rpc", "DeleteReminder"))
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	id, err := parseAlarmID(stringField(req, "id"))
	if err != nil {
		return nil, err
	}

	if err := s.svc.DeleteReminder(ctx, id); err != nil {
		return nil, s.statusFor(log, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *RemindersServer) ListReminders(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ListReminders"))

	alarms := s.svc.ListReminders()
	items := make([]any, 0, len(alarms))
	for _, a := range alarms {
		items = append(items, alarmFields(a))
	}
	out, err := structpb.NewStruct(map[string]any{"reminders": items})
	if err != nil {
		log.Error("encode reminders", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *RemindersServer) AdherenceSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "AdherenceSnapshot"))

	cal := s.svc.AdherenceSnapshot()
	days := make([]any, 0, cal.Len())
	for _, m := range cal.Marks {
		days = append(days, map[string]any{
			"day":    m.Day.String(),
			"count":  m.Count,
			"bucket": m.Bucket,
			"color":  string(m.Color),
		})
	}
	out, err := structpb.NewStruct(map[string]any{"days": days})
	if err != nil {
		log.Error("encode snapshot", slog.Any("err", err))
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *RemindersServer) ReportResponse(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	log := s.log.With(slog.String("rpc", "ReportResponse"))
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if s.sink == nil {
		return nil, status.Error(codes.Unimplemented, "responses are not accepted")
	}

	var firedAt time.Time
	if raw := stringField(req, "fired_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "fired_at must be RFC3339")
		}
		firedAt = t
	}

	h := domain.Handle(stringField(req, "handle"))
	if err := s.sink.Acknowledge(ctx, h, firedAt); err != nil {
		switch {
		case errors.Is(err, gateway.ErrClosed):
			return nil, status.Error(codes.Unavailable, "gateway closed")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, status.FromContextError(err).Err()
		default:
			log.Error("acknowledge failed", slog.String("handle", string(h)), slog.Any("err", err))
			return nil, status.Error(codes.Internal, "internal error")
		}
	}
	return &emptypb.Empty{}, nil
}

func (s *RemindersServer) statusFor(log *slog.Logger, err error) error {
	var invalidTime *domain.InvalidTimeError
	var validation *reminders.ValidationError
	var notFound *domain.NotFoundError
	var scheduling *domain.SchedulingError
	var denied *domain.PermissionDeniedError

	switch {
	case errors.As(err, &invalidTime):
		return status.Error(codes.InvalidArgument, invalidTime.Error())
	case errors.As(err, &validation):
		return status.Error(codes.InvalidArgument, validation.Error())
	case errors.As(err, &notFound):
		return status.Error(codes.NotFound, notFound.Error())
	case errors.As(err, &denied):
		return status.Error(codes.FailedPrecondition, denied.Error())
	case errors.As(err, &scheduling):
		log.Warn("gateway call failed", slog.String("op", scheduling.Op), slog.Any("err", err))
		return status.Error(codes.Unavailable, scheduling.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		log.Error("unexpected error", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func degradedWarning(a domain.Alarm, err error) (string, bool) {
	if a.ID == uuid.Nil {
		return "", false
	}
	var denied *domain.PermissionDeniedError
	if errors.As(err, &denied) {
		return denied.Error(), true
	}
	var scheduling *domain.SchedulingError
	if errors.As(err, &scheduling) && scheduling.Op != "cancel" {
		return scheduling.Error(), true
	}
	return "", false
}

func reminderResponse(a domain.Alarm, warning string) (*structpb.Struct, error) {
	fields := map[string]any{"reminder": alarmFields(a)}
	if warning != "" {
		fields["warning"] = warning
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func alarmFields(a domain.Alarm) map[string]any {
	return map[string]any{
		"id":       a.ID.String(),
		"time":     a.Time.Format(time.RFC3339),
		"kind":     string(a.Kind),
		"active":   a.Active,
		"handle":   string(a.Handle),
		"degraded": a.Degraded(),
	}
}

func stringField(req *structpb.Struct, name string) string {
	v, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

func parseAlarmID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, status.Error(codes.InvalidArgument, "id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "id must be a UUID")
	}
	return id, nil
}
