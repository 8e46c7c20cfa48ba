package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOf_UsesOwnLocation(t *testing.T) {
	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	late := time.Date(2024, 1, 7, 23, 30, 0, 0, almaty)

	assert.Equal(t, Date(2024, 1, 7), DateOf(late))
	assert.Equal(t, Date(2024, 1, 7), DateOf(late.UTC()))
	assert.True(t, IsDate(DateOf(late)))
	assert.False(t, IsDate(late))
}

func TestDayDiff(t *testing.T) {
	assert.Equal(t, 1, DayDiff(Date(2024, 2, 28), Date(2024, 2, 29)))
	assert.Equal(t, 2, DayDiff(Date(2024, 2, 28), Date(2024, 3, 1)))
	assert.Equal(t, -7, DayDiff(Date(2024, 1, 8), Date(2024, 1, 1)))
	assert.Equal(t, 7, DaysBetween(Date(2024, 1, 8), Date(2024, 1, 1)))
	assert.True(t, IsConsecutiveDay(Date(2023, 12, 31), Date(2024, 1, 1)))
}

func TestPeriodIndex(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		a, b   time.Time
		diff   int
	}{
		{"days", PeriodDay, Date(2024, 1, 1), Date(2024, 1, 2), 1},
		{"same week monday sunday", PeriodWeek, Date(2024, 1, 1), Date(2024, 1, 7), 0},
		{"next week", PeriodWeek, Date(2024, 1, 7), Date(2024, 1, 8), 1},
		{"week across year", PeriodWeek, Date(2023, 12, 31), Date(2024, 1, 1), 1},
		{"same month", PeriodMonth, Date(2024, 2, 1), Date(2024, 2, 29), 0},
		{"month across year", PeriodMonth, Date(2023, 12, 31), Date(2024, 1, 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.diff, PeriodIndex(tt.period, tt.b)-PeriodIndex(tt.period, tt.a))
		})
	}
}

func TestPeriodBounds(t *testing.T) {
	wed := Date(2024, 1, 10)

	assert.Equal(t, Date(2024, 1, 8), PeriodStart(PeriodWeek, wed))
	assert.Equal(t, Date(2024, 1, 14), PeriodEnd(PeriodWeek, wed))
	assert.Equal(t, Date(2024, 1, 1), PeriodStart(PeriodMonth, wed))
	assert.Equal(t, Date(2024, 1, 31), PeriodEnd(PeriodMonth, wed))
	assert.Equal(t, wed, PeriodStart(PeriodDay, wed))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, Date(2024, 1, 7), d)
	assert.Equal(t, "2024-01-07", FormatDate(d))

	_, err = ParseDate("07/01/2024")
	assert.Error(t, err)
}

func TestToday_FixedClock(t *testing.T) {
	clock := FixedClock{At: time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC)}
	assert.Equal(t, Date(2024, 1, 7), Today(clock))
}
