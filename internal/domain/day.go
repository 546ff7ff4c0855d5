package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

type Day struct {
	Year  int
	Month time.Month
	Day   int
}

func DayOf(t time.Time, loc *time.Location) Day {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t, nil), nil
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) IsZero() bool {
	return d == Day{}
}

func (d Day) Before(o Day) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type DoseHistory struct {
	days   []Day
	counts map[Day]int
}

func NewDoseHistory() *DoseHistory {
	return &DoseHistory{counts: make(map[Day]int)}
}

func DoseHistoryFromMap(m map[string]int) (*DoseHistory, error) {
	h := NewDoseHistory()
	for k, v := range m {
		day, err := ParseDay(k)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative dose count %d for %s", v, k)
		}
		if v == 0 {
			continue
		}
		h.Raise(day, v)
	}
	return h, nil
}

func (h *DoseHistory) Increment(day Day) int {
	h.ensure(day)
	h.counts[day]++
	return h.counts[day]
}

func (h *DoseHistory) Raise(day Day, n int) int {
	if n <= h.Count(day) {
		return h.Count(day)
	}
	h.ensure(day)
	h.counts[day] = n
	return n
}

func (h *DoseHistory) Count(day Day) int {
	if h == nil || h.counts == nil {
		return 0
	}
	return h.counts[day]
}

func (h *DoseHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.days)
}

func (h *DoseHistory) Days() []Day {
	if h == nil {
		return nil
	}
	out := make([]Day, len(h.days))
	copy(out, h.days)
	return out
}

func (h *DoseHistory) Clone() *DoseHistory {
	out := NewDoseHistory()
	if h == nil {
		return out
	}
	out.days = make([]Day, len(h.days))
	copy(out.days, h.days)
	for d, c := range h.counts {
		out.counts[d] = c
	}
	return out
}

func (h *DoseHistory) Map() map[string]int {
	out := make(map[string]int, h.Len())
	if h == nil {
		return out
	}
	for _, d := range h.days {
		out[d.String()] = h.counts[d]
	}
	return out
}

func (h *DoseHistory) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Map())
}

func (h *DoseHistory) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	parsed, err := DoseHistoryFromMap(m)
	if err != nil {
		return err
	}
	*h = *parsed
	return nil
}

func (h *DoseHistory) ensure(day Day) {
	if day.IsZero() {
		panic(errors.New("dose history: zero day"))
	}
	if h.counts == nil {
		h.counts = make(map[Day]int)
	}
	if _, ok := h.counts[day]; ok {
		return
	}
	i := sort.Search(len(h.days), func(i int) bool { return !h.days[i].Before(day) })
	h.days = append(h.days, Day{})
	copy(h.days[i+1:], h.days[i:])
	h.days[i] = day
	h.counts[day] = 0
}
