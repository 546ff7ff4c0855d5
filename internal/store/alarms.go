package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type AlarmStore struct {
	mu     sync.RWMutex
	now    func() time.Time
	seq    uint64
	alarms []domain.Alarm
}

func NewAlarmStore(now func() time.Time) *AlarmStore {
	if now == nil {
		now = time.Now
	}
	return &AlarmStore{now: now}
}

func (s *AlarmStore) Create(tod domain.TimeOfDay, at time.Time, kind domain.ReminderKind) (domain.Alarm, error) {
	if err := tod.Validate(); err != nil {
		return domain.Alarm{}, err
	}
	if at.IsZero() {
		return domain.Alarm{}, &domain.InvalidTimeError{Reason: "time is required"}
	}
	if !kind.Valid() {
		return domain.Alarm{}, &domain.InvalidTimeError{Input: string(kind), Reason: "unsupported reminder kind"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at.Before(now) {
		return domain.Alarm{}, &domain.InvalidTimeError{Input: at.Format(time.RFC3339), Reason: "time is in the past"}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Alarm{}, err
	}
	s.seq++
	a := domain.Alarm{
		ID:        id,
		Time:      at.Round(0),
		TimeOfDay: tod,
		Kind:      kind,
		Active:    true,
		Seq:       s.seq,
		CreatedAt: now.Round(0),
	}
	s.insert(a)
	return a, nil
}

func (s *AlarmStore) Toggle(id uuid.UUID) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.index(id)
	if err != nil {
		return domain.Alarm{}, err
	}
	s.alarms[i].Active = !s.alarms[i].Active
	return s.alarms[i], nil
}

func (s *AlarmStore) Get(id uuid.UUID) (domain.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, err := s.index(id)
	if err != nil {
		return domain.Alarm{}, err
	}
	return s.alarms[i], nil
}

func (s *AlarmStore) Attach(id uuid.UUID, h domain.Handle) (domain.Alarm, error) {
	return s.update(id, func(a *domain.Alarm) { a.Handle = h })
}

func (s *AlarmStore) Detach(id uuid.UUID) (domain.Alarm, error) {
	return s.update(id, func(a *domain.Alarm) { a.Handle = "" })
}

func (s *AlarmStore) SetActive(id uuid.UUID, active bool) (domain.Alarm, error) {
	return s.update(id, func(a *domain.Alarm) { a.Active = active })
}

func (s *AlarmStore) Reschedule(id uuid.UUID, at time.Time) (domain.Alarm, error) {
	if at.IsZero() {
		return domain.Alarm{}, &domain.InvalidTimeError{Reason: "time is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.index(id)
	if err != nil {
		return domain.Alarm{}, err
	}
	a := s.alarms[i]
	a.Time = at.Round(0)
	s.alarms = append(s.alarms[:i], s.alarms[i+1:]...)
	s.insert(a)
	return a, nil
}

func (s *AlarmStore) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.index(id)
	if err != nil {
		return err
	}
	s.alarms = append(s.alarms[:i], s.alarms[i+1:]...)
	return nil
}

func (s *AlarmStore) List() []domain.Alarm {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Alarm, len(s.alarms))
	copy(out, s.alarms)
	return out
}

func (s *AlarmStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alarms)
}

func (s *AlarmStore) Restore(alarms []domain.Alarm) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alarms = make([]domain.Alarm, 0, len(alarms))
	s.seq = 0
	for _, a := range alarms {
		if a.Seq > s.seq {
			s.seq = a.Seq
		}
	}
	for _, a := range alarms {
		if a.Seq == 0 {
			s.seq++
			a.Seq = s.seq
		}
		s.insert(a)
	}
}

func (s *AlarmStore) update(id uuid.UUID, fn func(a *domain.Alarm)) (domain.Alarm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, err := s.index(id)
	if err != nil {
		return domain.Alarm{}, err
	}
	fn(&s.alarms[i])
	return s.alarms[i], nil
}

func (s *AlarmStore) index(id uuid.UUID) (int, error) {
	for i := range s.alarms {
		if s.alarms[i].ID == id {
			return i, nil
		}
	}
	return -1, &domain.NotFoundError{ID: id}
}

func (s *AlarmStore) insert(a domain.Alarm) {
	i := sort.Search(len(s.alarms), func(i int) bool {
		return alarmLess(a, s.alarms[i])
	})
	s.alarms = append(s.alarms, domain.Alarm{})
	copy(s.alarms[i+1:], s.alarms[i:])
	s.alarms[i] = a
}

func alarmLess(a, b domain.Alarm) bool {
	if !a.Time.Equal(b.Time) {
		return a.Time.Before(b.Time)
	}
	return a.Seq < b.Seq
}
