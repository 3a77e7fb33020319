package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeDay(t *testing.T) {
	tests := []struct {
		name  string
		year  int
		month time.Month
		day   int
		want  int
	}{
		{name: "day 31 in non-leap february", year: 2023, month: time.February, day: 31, want: 28},
		{name: "day 31 in leap february", year: 2024, month: time.February, day: 31, want: 29},
		{name: "day 31 in april", year: 2024, month: time.April, day: 31, want: 30},
		{name: "day 31 in january", year: 2024, month: time.January, day: 31, want: 31},
		{name: "day within range", year: 2024, month: time.June, day: 15, want: 15},
		{name: "day below range", year: 2024, month: time.June, day: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeDay(tt.year, tt.month, tt.day))
		})
	}
}

func TestMonth_SafeDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	got := NewMonth(2023, time.February).SafeDate(31, loc)

	assert.Equal(t, "2023-02-28", FormatDate(got))
	assert.Equal(t, loc, got.Location())
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2024-03")
	require.NoError(t, err)
	assert.Equal(t, Month{Year: 2024, Month: time.March}, m)
	assert.Equal(t, "2024-03", m.String())

	_, err = ParseMonth("2024/03")
	assert.Error(t, err)
}

func TestMonth_Arithmetic(t *testing.T) {
	dec := NewMonth(2023, time.December)

	assert.Equal(t, NewMonth(2024, time.January), dec.AddMonths(1))
	assert.Equal(t, NewMonth(2023, time.November), dec.AddMonths(-1))
	assert.True(t, dec.Before(dec.AddMonths(1)))
	assert.False(t, dec.Before(dec))
	assert.Equal(t, 0, dec.Compare(NewMonth(2023, time.December)))
	assert.Equal(t, NewMonth(2024, time.January), NewMonth(2023, 13))
}

func TestMonth_JSON(t *testing.T) {
	type wrapper struct {
		Month *Month `json:"month"`
	}

	m := NewMonth(2024, time.July)
	data, err := json.Marshal(wrapper{Month: &m})
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":"2024-07"}`, string(data))

	var decoded wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"month":"2025-01"}`), &decoded))
	require.NotNil(t, decoded.Month)
	assert.Equal(t, NewMonth(2025, time.January), *decoded.Month)

	data, err = json.Marshal(wrapper{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"month":null}`, string(data))
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	// 01:30 UTC on the 1st is still the 31st in UTC-3.
	now := time.Date(2024, time.February, 1, 1, 30, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-31", FormatDate(Today(now, loc)))
}
