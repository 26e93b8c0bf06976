package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

type stubFree struct {
	byDate map[string][]domain.TimeRange
}

func (s *stubFree) FreeRanges(_ context.Context, _ string, date time.Time) ([]domain.TimeRange, error) {
	return s.byDate[domain.FormatDate(date)], nil
}

type stubWaitlist struct {
	open    []domain.WaitlistEntry
	matched []uuid.UUID
}

func (s *stubWaitlist) ListOpen(_ context.Context, _ string, _ int) ([]domain.WaitlistEntry, error) {
	return s.open, nil
}

func (s *stubWaitlist) MarkMatched(_ context.Context, id uuid.UUID) error {
	s.matched = append(s.matched, id)
	return nil
}

type recordedMatch struct {
	entry domain.WaitlistEntry
	gap   domain.Gap
}

type stubNotifier struct {
	sent []recordedMatch
}

func (s *stubNotifier) EnqueueWaitlistMatch(_ context.Context, e domain.WaitlistEntry, g domain.Gap) error {
	s.sent = append(s.sent, recordedMatch{entry: e, gap: g})
	return nil
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

func testCalendar(t *testing.T) *schedule.TourCalendar {
	t.Helper()
	cal, err := schedule.NewCalendar([]domain.TourWindow{
		{
			ArtistID: "nomad-ink",
			City:     "Lisbon",
			Timezone: "Europe/Lisbon",
			From:     date(t, "2026-03-01"),
			To:       date(t, "2026-03-03"),
		},
		{
			ArtistID: "nomad-ink",
			City:     "Berlin",
			Timezone: "Europe/Berlin",
			From:     date(t, "2026-03-10"),
			To:       date(t, "2026-03-11"),
		},
	})
	require.NoError(t, err)
	return cal
}

func TestReportOrdersLargestFirst(t *testing.T) {
	free := &stubFree{byDate: map[string][]domain.TimeRange{
		"2026-03-01": {{StartMin: 9 * 60, EndMin: 12 * 60}},  // 3h
		"2026-03-02": {{StartMin: 14 * 60, EndMin: 20 * 60}}, // 6h
		"2026-03-03": {{StartMin: 9 * 60, EndMin: 10 * 60}},  // 1h, below minimum
		"2026-03-10": {{StartMin: 9 * 60, EndMin: 12 * 60}},  // 3h
	}}
	svc := New(testCalendar(t), free, nil, nil, nil, Config{})

	gaps, err := svc.Report(context.Background(), "nomad-ink", date(t, "2026-03-01"))
	require.NoError(t, err)

	require.Len(t, gaps, 3)
	assert.Equal(t, "2026-03-02", domain.FormatDate(gaps[0].Date))
	assert.Equal(t, 6*60, gaps[0].Minutes())
	// Equal sizes fall back to chronological order.
	assert.Equal(t, "2026-03-01", domain.FormatDate(gaps[1].Date))
	assert.Equal(t, "2026-03-10", domain.FormatDate(gaps[2].Date))
	assert.Equal(t, "Berlin", gaps[2].City)
}

func TestReportSkipsDaysOutsideWindows(t *testing.T) {
	free := &stubFree{byDate: map[string][]domain.TimeRange{
		"2026-03-05": {{StartMin: 9 * 60, EndMin: 20 * 60}},
	}}
	svc := New(testCalendar(t), free, nil, nil, nil, Config{})

	gaps, err := svc.Report(context.Background(), "nomad-ink", date(t, "2026-03-04"))
	require.NoError(t, err)
	assert.Empty(t, gaps)
}

func TestMatchesForRespectsPreferredStart(t *testing.T) {
	free := &stubFree{byDate: map[string][]domain.TimeRange{
		"2026-03-01": {{StartMin: 9 * 60, EndMin: 13 * 60}},
		"2026-03-02": {{StartMin: 14 * 60, EndMin: 20 * 60}},
	}}
	svc := New(testCalendar(t), free, nil, nil, nil, Config{})

	preferred := 15 * 60
	e := domain.WaitlistEntry{
		ID:                uuid.New(),
		ArtistID:          "nomad-ink",
		DateFrom:          date(t, "2026-03-01"),
		DateTo:            date(t, "2026-03-03"),
		DurationMin:       180,
		PreferredStartMin: &preferred,
	}

	matches, err := svc.MatchesFor(context.Background(), e)
	require.NoError(t, err)

	// The 09:00-13:00 gap is long enough but cannot start at 15:00.
	require.Len(t, matches, 1)
	assert.Equal(t, "2026-03-02", domain.FormatDate(matches[0].Date))
}

func TestMatchesForChronological(t *testing.T) {
	free := &stubFree{byDate: map[string][]domain.TimeRange{
		"2026-03-01": {{StartMin: 9 * 60, EndMin: 12 * 60}},
		"2026-03-02": {{StartMin: 9 * 60, EndMin: 20 * 60}},
	}}
	svc := New(testCalendar(t), free, nil, nil, nil, Config{})

	e := domain.WaitlistEntry{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		DateFrom:    date(t, "2026-03-01"),
		DateTo:      date(t, "2026-03-03"),
		DurationMin: 120,
	}

	matches, err := svc.MatchesFor(context.Background(), e)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "2026-03-01", domain.FormatDate(matches[0].Date))
	assert.Equal(t, "2026-03-02", domain.FormatDate(matches[1].Date))
}

func TestSweepWaitlistMatchesAndMarks(t *testing.T) {
	free := &stubFree{byDate: map[string][]domain.TimeRange{
		"2026-03-01": {{StartMin: 9 * 60, EndMin: 13 * 60}},
	}}

	fits := domain.WaitlistEntry{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		ClientEmail: "fits@example.com",
		DateFrom:    date(t, "2026-03-01"),
		DateTo:      date(t, "2026-03-03"),
		DurationMin: 120,
	}
	tooLong := domain.WaitlistEntry{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		ClientEmail: "toolong@example.com",
		DateFrom:    date(t, "2026-03-01"),
		DateTo:      date(t, "2026-03-03"),
		DurationMin: 6 * 60,
	}

	wl := &stubWaitlist{open: []domain.WaitlistEntry{fits, tooLong}}
	nt := &stubNotifier{}
	svc := New(testCalendar(t), free, wl, nt, nil, Config{})

	n, err := svc.SweepWaitlist(context.Background(), "nomad-ink")
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	require.Len(t, nt.sent, 1)
	assert.Equal(t, "fits@example.com", nt.sent[0].entry.ClientEmail)
	assert.Equal(t, []uuid.UUID{fits.ID}, wl.matched)
}
