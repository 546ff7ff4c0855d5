package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return TimeOfDay{}, &InvalidTimeError{Reason: "time is required"}
	}
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return TimeOfDay{}, &InvalidTimeError{Input: s, Reason: "expected HH:MM"}
	}
	hour, err := strconv.Atoi(hh)
	if err != nil {
		return TimeOfDay{}, &InvalidTimeError{Input: s, Reason: "hour is not a number"}
	}
	minute, err := strconv.Atoi(mm)
	if err != nil {
		return TimeOfDay{}, &InvalidTimeError{Input: s, Reason: "minute is not a number"}
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 {
		return &InvalidTimeError{Input: t.String(), Reason: "hour out of range"}
	}
	if t.Minute < 0 || t.Minute > 59 {
		return &InvalidTimeError{Input: t.String(), Reason: "minute out of range"}
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) On(day Day, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(day.Year, day.Month, day.Day, t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func NextFireTime(t TimeOfDay, now time.Time, loc *time.Location) (time.Time, error) {
	if err := t.Validate(); err != nil {
		return time.Time{}, err
	}
	return NextDailyOccurrence(t, now, loc), nil
}

// NextDailyOccurrence returns the first instant after now at t in loc. A time
// skipped by a DST jump lands later that day; the following days keep t.
func NextDailyOccurrence(t TimeOfDay, now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	day := DayOf(now, loc)
	at := t.On(day, loc)
	for !at.After(now) {
		day = DayOf(day.Time(loc).AddDate(0, 0, 1), loc)
		at = t.On(day, loc)
	}
	return at
}
