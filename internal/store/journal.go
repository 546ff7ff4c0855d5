package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type HandleRef struct {
	AlarmID uuid.UUID `json:"alarm_id"`
	At      time.Time `json:"at"`
}

type PendingConfirmation struct {
	Seq          uint64
	Confirmation domain.Confirmation
}

type JournalState struct {
	Alarms  []domain.Alarm
	Handles map[domain.Handle]HandleRef
	History *domain.DoseHistory
	Pending []PendingConfirmation
}

type Journal interface {
	Load(ctx context.Context) (JournalState, error)

	PutAlarm(ctx context.Context, a domain.Alarm) error
	DeleteAlarm(ctx context.Context, id uuid.UUID) error
	PutHandle(ctx context.Context, h domain.Handle, ref HandleRef) error
	DeleteHandle(ctx context.Context, h domain.Handle) error

	Enqueue(ctx context.Context, c domain.Confirmation) (uint64, error)
	// Commit stores day's new count, drops the pending entry and forgets the
	// consumed handle in one write.
	Commit(ctx context.Context, seq uint64, day domain.Day, count int, consumed domain.Handle) error
	Discard(ctx context.Context, seq uint64) error

	PutDoses(ctx context.Context, history *domain.DoseHistory) error
}
