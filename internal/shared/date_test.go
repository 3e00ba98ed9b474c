package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFromUnixUsesLocation(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	// 2024-03-10 23:30 UTC is already 2024-03-11 in Madrid.
	ts := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC).Unix()
	d := DateFromUnix(ts, madrid)
	require.NotNil(t, d)
	assert.Equal(t, "2024-03-11", d.String())

	utc := DateFromUnix(ts, time.UTC)
	assert.Equal(t, "2024-03-10", utc.String())

	assert.Nil(t, DateFromUnix(0, madrid))
}

func TestDaysBetween(t *testing.T) {
	a := NewDate(2024, 3, 30)
	b := NewDate(2024, 4, 2)
	days := DaysBetween(&a, &b)
	require.NotNil(t, days)
	assert.Equal(t, 3, *days)

	back := DaysBetween(&b, &a)
	assert.Equal(t, -3, *back)

	assert.Nil(t, DaysBetween(nil, &b))
	assert.Nil(t, DaysBetween(&a, nil))
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2025, 1, 7)
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-07"`, string(raw))

	var back Date
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)
}
