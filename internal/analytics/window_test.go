package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWindowToday(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	now := time.Date(2024, 5, 10, 14, 30, 0, 0, loc)

	w, err := ResolveWindow(WindowRequest{Period: PeriodToday}, now, loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, loc), w.Start)
	assert.Equal(t, time.Date(2024, 5, 11, 0, 0, 0, 0, loc), w.End)
	assert.Equal(t, 1, w.Days())
}

func TestResolveWindowRolling(t *testing.T) {
	now := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

	cases := map[Period]int{PeriodWeek: 7, PeriodMonth: 30, PeriodYear: 365}
	for period, days := range cases {
		w, err := ResolveWindow(WindowRequest{Period: period}, now, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, now, w.End, period)
		assert.Equal(t, now.AddDate(0, 0, -days), w.Start, period)
		assert.Equal(t, days, w.Days(), period)
	}

	w, err := ResolveWindow(WindowRequest{}, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, w.Period)
}

func TestResolveWindowCustom(t *testing.T) {
	from := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 3, 9, 0, 0, 0, time.UTC)

	w, err := ResolveWindow(WindowRequest{Period: PeriodCustom, From: &from, To: &to}, time.Now(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 4, 1), w.Start)
	assert.Equal(t, day(2024, 4, 4), w.End, "last selected day is included")
	assert.Equal(t, 3, w.Days())

	single, err := ResolveWindow(WindowRequest{Period: PeriodCustom, From: &from, To: &from}, time.Now(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, single.Days())
}

func TestResolveWindowCustomInvalid(t *testing.T) {
	from := day(2024, 4, 5)
	to := day(2024, 4, 1)

	_, err := ResolveWindow(WindowRequest{Period: PeriodCustom, From: &from, To: &to}, time.Now(), time.UTC)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRange))

	_, err = ResolveWindow(WindowRequest{Period: PeriodCustom, From: &from}, time.Now(), time.UTC)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestWindowResolverSharesKeysWithinGranularity(t *testing.T) {
	base := time.Date(2024, 5, 10, 14, 30, 5, 0, time.UTC)
	clock := base
	r := WindowResolver{Location: time.UTC, Granularity: time.Minute, Now: func() time.Time { return clock }}

	first, err := r.Resolve(WindowRequest{Period: PeriodWeek})
	require.NoError(t, err)
	clock = base.Add(40 * time.Second)
	second, err := r.Resolve(WindowRequest{Period: PeriodWeek})
	require.NoError(t, err)
	assert.Equal(t, first.Key(), second.Key())

	clock = base.Add(2 * time.Minute)
	third, err := r.Resolve(WindowRequest{Period: PeriodWeek})
	require.NoError(t, err)
	assert.NotEqual(t, first.Key(), third.Key())
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, p)

	p, err = ParsePeriod(" Month ")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)

	_, err = ParsePeriod("fortnight")
	assert.Error(t, err)
}
