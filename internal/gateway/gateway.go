package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

var (
	ErrNotConfigured     = errors.New("notification handler not configured")
	ErrAlreadyConfigured = errors.New("notification handler already configured")
	ErrPermissionDenied  = errors.New("notification permission not granted")
	ErrClosed            = errors.New("gateway closed")
)

type Payload struct {
	AlarmID uuid.UUID
	Title   string
	Body    string
}

type EventKind string

const (
	EventDelivered EventKind = "delivered"
	EventResponded EventKind = "responded"
)

type Event struct {
	Kind    EventKind
	Handle  domain.Handle
	FiredAt time.Time
	At      time.Time
}

type Gateway interface {
	RequestPermission(ctx context.Context) (bool, error)
	Schedule(ctx context.Context, at time.Time, p Payload) (domain.Handle, error)
	// Cancel is a no-op for handles that already fired or were cancelled.
	Cancel(ctx context.Context, h domain.Handle) error
	Events() <-chan Event
}
