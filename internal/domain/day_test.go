package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	at := time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC)

	assert.Equal(t, Day{Year: 2026, Month: time.January, Day: 6}, DayOf(at, loc))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", d.String())

	_, err = ParseDay("2026-02-30")
	assert.Error(t, err)
}

func TestDoseHistory_IncrementKeepsDaysSorted(t *testing.T) {
	var h DoseHistory
	for _, d := range []Day{
		{2026, time.March, 3},
		{2026, time.January, 9},
		{2026, time.February, 1},
		{2026, time.January, 9},
	} {
		h.Increment(d)
	}

	require.Equal(t, 3, h.Len())
	got := h.Days()
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Before(got[i]), "days not ascending: %v then %v", got[i-1], got[i])
	}
	assert.Equal(t, 2, h.Count(Day{2026, time.January, 9}))
	assert.Equal(t, 0, h.Count(Day{2026, time.April, 1}))
}

func TestDoseHistory_RaiseNeverDecreases(t *testing.T) {
	h := NewDoseHistory()
	d := Day{2026, time.January, 1}

	h.Raise(d, 3)
	assert.Equal(t, 3, h.Raise(d, 1))
	assert.Equal(t, 5, h.Raise(d, 5))
}

func TestDoseHistoryFromMap_RejectsBadInput(t *testing.T) {
	_, err := DoseHistoryFromMap(map[string]int{"2026-01-01": -1})
	assert.Error(t, err)

	_, err = DoseHistoryFromMap(map[string]int{"01/01/2026": 1})
	assert.Error(t, err)
}

func TestDoseHistory_JSONShape(t *testing.T) {
	h := NewDoseHistory()
	h.Increment(Day{2026, time.January, 2})
	h.Increment(Day{2026, time.January, 2})

	b, err := json.Marshal(h)
	require.NoError(t, err)
	assert.Equal(t, `{"2026-01-02":2}`, string(b))

	var back DoseHistory
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 2, back.Count(Day{2026, time.January, 2}))
}

func TestDoseHistory_CloneIsIndependent(t *testing.T) {
	h := NewDoseHistory()
	d := Day{2026, time.January, 1}
	h.Increment(d)

	c := h.Clone()
	c.Increment(d)

	assert.Equal(t, 1, h.Count(d))
	assert.Equal(t, 2, c.Count(d))
}
