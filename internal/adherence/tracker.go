package adherence

import (
	"sync"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type Tracker struct {
	mu      sync.RWMutex
	history *domain.DoseHistory
}

func NewTracker() *Tracker {
	return &Tracker{history: domain.NewDoseHistory()}
}

func (t *Tracker) RecordDose(day domain.Day) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Increment(day)
}

func (t *Tracker) Count(day domain.Day) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Count(day)
}

func (t *Tracker) ColorFor(count int) domain.Color {
	return domain.ColorFor(count)
}

func (t *Tracker) Snapshot() domain.Calendar {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return domain.CalendarOf(t.history)
}

func (t *Tracker) Merge(in *domain.DoseHistory) {
	if in == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range in.Days() {
		t.history.Raise(d, in.Count(d))
	}
}

func (t *Tracker) History() *domain.DoseHistory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.Clone()
}
