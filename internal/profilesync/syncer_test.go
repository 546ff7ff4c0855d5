package profilesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Tracking/Mobile/internal/domain"
)

type fakeLocal struct {
	history  *domain.DoseHistory
	imported []*domain.DoseHistory
}

func (f *fakeLocal) AdherenceHistory() *domain.DoseHistory {
	return f.history.Clone()
}

func (f *fakeLocal) ImportHistory(ctx context.Context, h *domain.DoseHistory) error {
	f.imported = append(f.imported, h)
	for _, d := range h.Days() {
		f.history.Raise(d, h.Count(d))
	}
	return nil
}

type fakeRemote struct {
	loadFn func(ctx context.Context, patientID string) (*domain.DoseHistory, error)
	saveFn func(ctx context.Context, patientID string, h *domain.DoseHistory) error
}

func (f *fakeRemote) LoadAdherence(ctx context.Context, patientID string) (*domain.DoseHistory, error) {
	if f.loadFn == nil {
		panic("LoadAdherence not configured")
	}
	return f.loadFn(ctx, patientID)
}

func (f *fakeRemote) SaveAdherence(ctx context.Context, patientID string, h *domain.DoseHistory) error {
	if f.saveFn == nil {
		panic("SaveAdherence not configured")
	}
	return f.saveFn(ctx, patientID, h)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, &fakeLocal{}, &fakeRemote{}, nil)
	require.Error(t, err)

	_, err = New(Config{PatientID: "p1", Schedule: "not a schedule"}, &fakeLocal{}, &fakeRemote{}, nil)
	require.Error(t, err)

	s, err := New(Config{PatientID: "p1", Schedule: "@every 1h"}, &fakeLocal{}, &fakeRemote{}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSyncOnce_PullsThenPushesMerged(t *testing.T) {
	local := &fakeLocal{history: domain.NewDoseHistory()}
	local.history.Raise(domain.Day{Year: 2026, Month: time.January, Day: 5}, 3)

	var saved map[string]int
	remote := &fakeRemote{
		loadFn: func(ctx context.Context, patientID string) (*domain.DoseHistory, error) {
			assert.Equal(t, "p1", patientID)
			return domain.DoseHistoryFromMap(map[string]int{"2026-01-04": 2, "2026-01-05": 1})
		},
		saveFn: func(ctx context.Context, patientID string, h *domain.DoseHistory) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			saved = h.Map()
			return nil
		},
	}

	s, err := New(Config{PatientID: "p1"}, local, remote, nil)
	require.NoError(t, err)
	require.NoError(t, s.SyncOnce(context.Background()))

	assert.Len(t, local.imported, 1)
	assert.Equal(t, map[string]int{"2026-01-04": 2, "2026-01-05": 3}, saved)
}

func TestSyncOnce_LoadErrorSkipsSave(t *testing.T) {
	local := &fakeLocal{history: domain.NewDoseHistory()}
	remote := &fakeRemote{
		loadFn: func(ctx context.Context, patientID string) (*domain.DoseHistory, error) {
			return nil, errors.New("connection refused")
		},
	}

	s, err := New(Config{PatientID: "p1"}, local, remote, nil)
	require.NoError(t, err)

	err = s.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load remote adherence")
}

func TestSyncOnce_EmptyHistoryNotSaved(t *testing.T) {
	local := &fakeLocal{history: domain.NewDoseHistory()}
	remote := &fakeRemote{
		loadFn: func(ctx context.Context, patientID string) (*domain.DoseHistory, error) {
			return domain.NewDoseHistory(), nil
		},
	}

	s, err := New(Config{PatientID: "p1"}, local, remote, nil)
	require.NoError(t, err)
	require.NoError(t, s.SyncOnce(context.Background()))
}

func TestStartStop(t *testing.T) {
	s, err := New(Config{PatientID: "p1", Schedule: "@every 1h"}, &fakeLocal{history: domain.NewDoseHistory()}, &fakeRemote{}, nil)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
