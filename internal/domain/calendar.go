package domain

import "sort"

type Color string

const NoMark Color = ""

const MaxIntensity = 5

var intensityColors = [MaxIntensity]Color{
	"#c6e48b",
	"#7bc96f",
	"#49af5d",
	"#2e8840",
	"#196127",
}

func IntensityColors() []Color {
	out := make([]Color, MaxIntensity)
	copy(out, intensityColors[:])
	return out
}

func Bucket(count int) int {
	if count <= 0 {
		return 0
	}
	if count > MaxIntensity {
		return MaxIntensity
	}
	return count
}

func ColorFor(count int) Color {
	b := Bucket(count)
	if b == 0 {
		return NoMark
	}
	return intensityColors[b-1]
}

type CalendarMark struct {
	Day    Day
	Count  int
	Bucket int
	Color  Color
	Marked bool
}

func MarkFor(day Day, count int) CalendarMark {
	b := Bucket(count)
	return CalendarMark{
		Day:    day,
		Count:  count,
		Bucket: b,
		Color:  ColorFor(count),
		Marked: b > 0,
	}
}

type Calendar struct {
	Marks []CalendarMark
}

func CalendarOf(h *DoseHistory) Calendar {
	days := h.Days()
	marks := make([]CalendarMark, 0, len(days))
	for _, d := range days {
		c := h.Count(d)
		if c <= 0 {
			continue
		}
		marks = append(marks, MarkFor(d, c))
	}
	return Calendar{Marks: marks}
}

func (c Calendar) Lookup(day Day) (CalendarMark, bool) {
	i := sort.Search(len(c.Marks), func(i int) bool { return !c.Marks[i].Day.Before(day) })
	if i < len(c.Marks) && c.Marks[i].Day == day {
		return c.Marks[i], true
	}
	return CalendarMark{}, false
}

func (c Calendar) Len() int {
	return len(c.Marks)
}
