package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type InvalidTimeError struct {
	Input  string
	Reason string
}

func (e *InvalidTimeError) Error() string {
	if e.Input == "" {
		return "invalid time: " + e.Reason
	}
	return fmt.Sprintf("invalid time %q: %s", e.Input, e.Reason)
}

type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alarm %s not found", e.ID)
}

type PermissionDeniedError struct {
	Err error
}

func (e *PermissionDeniedError) Error() string {
	if e.Err != nil {
		return "notification permission not granted: " + e.Err.Error()
	}
	return "notification permission not granted"
}

func (e *PermissionDeniedError) Unwrap() error {
	return e.Err
}

type SchedulingError struct {
	Op  string
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("notification %s failed: %v", e.Op, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}
