package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReminderKind string

const (
	ReminderKindOneShot ReminderKind = "one_shot"
	ReminderKindDaily   ReminderKind = "daily"
)

func ParseReminderKind(s string) (ReminderKind, error) {
	switch ReminderKind(strings.ToLower(strings.TrimSpace(s))) {
	case ReminderKindOneShot, "oneshot", "one-shot":
		return ReminderKindOneShot, nil
	case ReminderKindDaily:
		return ReminderKindDaily, nil
	default:
		return "", fmt.Errorf("unsupported reminder kind %q", s)
	}
}

func (k ReminderKind) Valid() bool {
	return k == ReminderKindOneShot || k == ReminderKindDaily
}

type Handle string

type Alarm struct {
	ID        uuid.UUID    `json:"id"`
	Time      time.Time    `json:"time"`
	TimeOfDay TimeOfDay    `json:"time_of_day"`
	Kind      ReminderKind `json:"kind"`
	Active    bool         `json:"active"`
	Handle    Handle       `json:"handle,omitempty"`
	Seq       uint64       `json:"seq"`
	CreatedAt time.Time    `json:"created_at"`
}

func (a Alarm) Degraded() bool {
	return a.Active && a.Handle == ""
}

type Confirmation struct {
	Handle  Handle    `json:"handle,omitempty"`
	FiredAt time.Time `json:"fired_at"`
}
