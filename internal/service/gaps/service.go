package gaps

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/tourbook/internal/domain"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

// FreeRangeFinder computes the idle intervals of one artist-day.
type FreeRangeFinder interface {
	FreeRanges(ctx context.Context, artistID string, date time.Time) ([]domain.TimeRange, error)
}

// WaitlistStore is the slice of the waitlist the matcher consumes.
type WaitlistStore interface {
	ListOpen(ctx context.Context, artistID string, limit int) ([]domain.WaitlistEntry, error)
	MarkMatched(ctx context.Context, id uuid.UUID) error
}

// MatchNotifier delivers a gap proposal to a waitlisted client.
type MatchNotifier interface {
	EnqueueWaitlistMatch(ctx context.Context, e domain.WaitlistEntry, g domain.Gap) error
}

type Config struct {
	// MinGapMin filters out gaps too short to be worth offering.
	MinGapMin int
	// HorizonDays bounds how far ahead Report scans from its start date.
	HorizonDays int
	// MaxOpenEntries caps one matching sweep.
	MaxOpenEntries int
	// ReportTTL bounds how stale a cached gap report may get.
	ReportTTL time.Duration
}

type Service struct {
	cal      *schedule.TourCalendar
	free     FreeRangeFinder
	waitlist WaitlistStore
	notifier MatchNotifier
	cache    *redisrepo.Cache
	cfg      Config
}

func New(
	cal *schedule.TourCalendar,
	free FreeRangeFinder,
	waitlist WaitlistStore,
	notifier MatchNotifier,
	cache *redisrepo.Cache,
	cfg Config,
) *Service {
	if cfg.MinGapMin <= 0 {
		cfg.MinGapMin = 120
	}

	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 60
	}

	if cfg.MaxOpenEntries <= 0 {
		cfg.MaxOpenEntries = 100
	}

	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = 30 * time.Second
	}

	return &Service{
		cal:      cal,
		free:     free,
		waitlist: waitlist,
		notifier: notifier,
		cache:    cache,
		cfg:      cfg,
	}
}

// Report scans the artist's tour windows from start and collects every idle
// interval of at least MinGapMin minutes. Gaps never span days and never
// cross a window boundary. The result is ordered largest-first so the most
// fillable holes surface at the top; ties break chronologically. Reports are
// cached per artist and scan start for ReportTTL.
func (s *Service) Report(ctx context.Context, artistID string, start time.Time) ([]domain.Gap, error) {
	const op = "service.gaps.Report"

	if s.cache == nil {
		gaps, err := s.buildReport(ctx, artistID, start)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return gaps, nil
	}

	key := redisrepo.KeyGapReport(artistID, domain.FormatDate(start))

	gaps, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.ReportTTL,
		func(ctx context.Context) ([]domain.Gap, error) {
			return s.buildReport(ctx, artistID, start)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return gaps, nil
}

func (s *Service) buildReport(ctx context.Context, artistID string, start time.Time) ([]domain.Gap, error) {
	const op = "service.gaps.buildReport"

	end := start.AddDate(0, 0, s.cfg.HorizonDays)

	windows, err := s.cal.WindowsFor(artistID, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var gaps []domain.Gap
	for _, w := range windows {
		from := w.From
		if from.Before(start) {
			from = start
		}
		to := w.To
		if to.After(end) {
			to = end
		}

		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			free, err := s.free.FreeRanges(ctx, artistID, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			for _, r := range free {
				if r.Minutes() < s.cfg.MinGapMin {
					continue
				}
				gaps = append(gaps, domain.Gap{
					ArtistID:  artistID,
					Date:      d,
					City:      w.City,
					TimeRange: r,
				})
			}
		}
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		if gaps[i].Minutes() != gaps[j].Minutes() {
			return gaps[i].Minutes() > gaps[j].Minutes()
		}
		if !gaps[i].Date.Equal(gaps[j].Date) {
			return gaps[i].Date.Before(gaps[j].Date)
		}
		return gaps[i].StartMin < gaps[j].StartMin
	})

	return gaps, nil
}

// MatchesFor returns the gaps satisfying one waitlist entry: inside its date
// range, long enough for its duration, and containing the preferred start
// when one is set. Matches are chronological so the earliest offer comes
// first.
func (s *Service) MatchesFor(ctx context.Context, e domain.WaitlistEntry) ([]domain.Gap, error) {
	const op = "service.gaps.MatchesFor"

	windows, err := s.cal.WindowsFor(e.ArtistID, e.DateFrom, e.DateTo)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var matches []domain.Gap
	for _, w := range windows {
		from := w.From
		if from.Before(e.DateFrom) {
			from = e.DateFrom
		}
		to := w.To
		if to.After(e.DateTo) {
			to = e.DateTo
		}

		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			free, err := s.free.FreeRanges(ctx, e.ArtistID, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			for _, r := range free {
				if !fits(r, e) {
					continue
				}
				matches = append(matches, domain.Gap{
					ArtistID:  e.ArtistID,
					Date:      d,
					City:      w.City,
					TimeRange: r,
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.Before(matches[j].Date)
		}
		return matches[i].StartMin < matches[j].StartMin
	})

	return matches, nil
}

// SweepWaitlist proposes the best gap to every open entry that has one.
// Matching is advisory: the entry moves to MATCHED only after its
// notification is queued, and the slot itself stays open until the client
// actually books. Returns the number of entries matched.
func (s *Service) SweepWaitlist(ctx context.Context, artistID string) (int, error) {
	const op = "service.gaps.SweepWaitlist"

	entries, err := s.waitlist.ListOpen(ctx, artistID, s.cfg.MaxOpenEntries)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	matched := 0
	for _, e := range entries {
		candidates, err := s.MatchesFor(ctx, e)
		if err != nil {
			return matched, fmt.Errorf("%s: %w", op, err)
		}
		if len(candidates) == 0 {
			continue
		}

		if err := s.notifier.EnqueueWaitlistMatch(ctx, e, candidates[0]); err != nil {
			return matched, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.waitlist.MarkMatched(ctx, e.ID); err != nil {
			return matched, fmt.Errorf("%s: %w", op, err)
		}
		matched++
	}

	return matched, nil
}

func fits(r domain.TimeRange, e domain.WaitlistEntry) bool {
	if r.Minutes() < e.DurationMin {
		return false
	}
	if e.PreferredStartMin == nil {
		return true
	}
	want := domain.TimeRange{
		StartMin: *e.PreferredStartMin,
		EndMin:   *e.PreferredStartMin + e.DurationMin,
	}
	return r.Contains(want)
}
