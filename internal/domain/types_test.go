package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinute(t *testing.T) {
	m, err := ParseMinute("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	m, err = ParseMinute("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, m)

	_, err = ParseMinute("9am")
	assert.Error(t, err)
}

func TestFormatMinute(t *testing.T) {
	assert.Equal(t, "09:00", FormatMinute(540))
	assert.Equal(t, "20:00", FormatMinute(1200))
	assert.Equal(t, "00:05", FormatMinute(5))
}

func TestTimeRangeOverlaps(t *testing.T) {
	a := TimeRange{StartMin: 600, EndMin: 720} // 10:00-12:00

	assert.True(t, a.Overlaps(TimeRange{StartMin: 660, EndMin: 780}))
	assert.True(t, a.Overlaps(TimeRange{StartMin: 540, EndMin: 630}))
	assert.True(t, a.Overlaps(a))

	// half-open: touching intervals do not overlap
	assert.False(t, a.Overlaps(TimeRange{StartMin: 720, EndMin: 780}))
	assert.False(t, a.Overlaps(TimeRange{StartMin: 540, EndMin: 600}))
}

func TestTimeRangeContains(t *testing.T) {
	day := TimeRange{StartMin: 540, EndMin: 1200}

	assert.True(t, day.Contains(TimeRange{StartMin: 540, EndMin: 660}))
	assert.True(t, day.Contains(day))
	assert.False(t, day.Contains(TimeRange{StartMin: 500, EndMin: 660}))
	assert.False(t, day.Contains(TimeRange{StartMin: 1140, EndMin: 1260}))
}

func TestDateRoundTrip(t *testing.T) {
	d, err := ParseDate("2026-01-10")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-10", FormatDate(d))
}

func TestTourWindowCovers(t *testing.T) {
	from, _ := ParseDate("2026-01-01")
	to, _ := ParseDate("2026-01-31")
	w := TourWindow{ArtistID: "nina", City: "São Paulo", From: from, To: to}

	mid, _ := ParseDate("2026-01-10")
	before, _ := ParseDate("2025-12-31")
	after, _ := ParseDate("2026-02-01")

	assert.True(t, w.Covers(from))
	assert.True(t, w.Covers(to))
	assert.True(t, w.Covers(mid))
	assert.False(t, w.Covers(before))
	assert.False(t, w.Covers(after))
}
