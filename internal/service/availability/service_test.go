package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

type stubOccupied struct {
	ranges []domain.TimeRange
	err    error
}

func (s *stubOccupied) ListOccupied(_ context.Context, _ string, _ time.Time) ([]domain.TimeRange, error) {
	return s.ranges, s.err
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testCalendar(t *testing.T) *schedule.TourCalendar {
	t.Helper()
	cal, err := schedule.NewCalendar([]domain.TourWindow{{
		ArtistID: "nomad-ink",
		Country:  "BR",
		City:     "Sao Paulo",
		Timezone: "America/Sao_Paulo",
		From:     date(t, "2026-03-01"),
		To:       date(t, "2026-03-20"),
	}})
	require.NoError(t, err)
	return cal
}

func TestAvailableSlotsSplitsAroundBooking(t *testing.T) {
	occ := &stubOccupied{ranges: []domain.TimeRange{
		{StartMin: 10 * 60, EndMin: 12 * 60},
	}}
	svc := New(testCalendar(t), occ, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 0)
	require.NoError(t, err)

	assert.Equal(t, []domain.TimeRange{
		{StartMin: 9 * 60, EndMin: 10 * 60},
		{StartMin: 12 * 60, EndMin: 20 * 60},
	}, slots)
}

func TestAvailableSlotsFiltersByRequestedDuration(t *testing.T) {
	// A two hour request around a 10:00-12:00 booking: the 09:00-10:00
	// remainder is too short for it, only the afternoon block qualifies.
	occ := &stubOccupied{ranges: []domain.TimeRange{
		{StartMin: 10 * 60, EndMin: 12 * 60},
	}}
	svc := New(testCalendar(t), occ, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 120)
	require.NoError(t, err)

	assert.Equal(t, []domain.TimeRange{
		{StartMin: 12 * 60, EndMin: 20 * 60},
	}, slots)

	// A one hour request still sees the morning remainder.
	slots, err = svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 60)
	require.NoError(t, err)

	assert.Equal(t, []domain.TimeRange{
		{StartMin: 9 * 60, EndMin: 10 * 60},
		{StartMin: 12 * 60, EndMin: 20 * 60},
	}, slots)
}

func TestAvailableSlotsMergesAdjacentBookings(t *testing.T) {
	occ := &stubOccupied{ranges: []domain.TimeRange{
		{StartMin: 13 * 60, EndMin: 15 * 60},
		{StartMin: 9 * 60, EndMin: 11 * 60},
		{StartMin: 11 * 60, EndMin: 13 * 60},
	}}
	svc := New(testCalendar(t), occ, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 0)
	require.NoError(t, err)

	assert.Equal(t, []domain.TimeRange{
		{StartMin: 15 * 60, EndMin: 20 * 60},
	}, slots)
}

func TestAvailableSlotsDropsShortRemainders(t *testing.T) {
	occ := &stubOccupied{ranges: []domain.TimeRange{
		{StartMin: 9*60 + 30, EndMin: 19 * 60},
	}}
	svc := New(testCalendar(t), occ, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 0)
	require.NoError(t, err)

	// 09:00-09:30 is below the minimum slot length; only 19:00-20:00 survives.
	assert.Equal(t, []domain.TimeRange{
		{StartMin: 19 * 60, EndMin: 20 * 60},
	}, slots)
}

func TestAvailableSlotsEmptyDay(t *testing.T) {
	svc := New(testCalendar(t), &stubOccupied{}, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 0)
	require.NoError(t, err)

	assert.Equal(t, []domain.TimeRange{
		{StartMin: 9 * 60, EndMin: 20 * 60},
	}, slots)
}

func TestAvailableSlotsFullyBooked(t *testing.T) {
	occ := &stubOccupied{ranges: []domain.TimeRange{
		{StartMin: 8 * 60, EndMin: 21 * 60},
	}}
	svc := New(testCalendar(t), occ, nil, Config{})

	slots, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-03-10"), 0)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAvailableSlotsOutsideTourWindow(t *testing.T) {
	svc := New(testCalendar(t), &stubOccupied{}, nil, Config{})

	_, err := svc.AvailableSlots(context.Background(), "nomad-ink", date(t, "2026-04-01"), 0)
	assert.ErrorIs(t, err, ErrNotOnTour)
}

func TestAvailableSlotsUnknownArtist(t *testing.T) {
	svc := New(testCalendar(t), &stubOccupied{}, nil, Config{})

	_, err := svc.AvailableSlots(context.Background(), "ghost", date(t, "2026-03-10"), 0)

	var cfgErr *schedule.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestWindowsIntersecting(t *testing.T) {
	svc := New(testCalendar(t), &stubOccupied{}, nil, Config{})

	ws, err := svc.Windows("nomad-ink", date(t, "2026-03-15"), date(t, "2026-05-01"))
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "Sao Paulo", ws[0].City)
}
