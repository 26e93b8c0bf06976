package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/inkwell-labs/tourbook/internal/domain"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

var ErrNotOnTour = errors.New("artist is not on tour on that date")

// OccupiedLister supplies the live booking intervals for one artist-day.
type OccupiedLister interface {
	ListOccupied(ctx context.Context, artistID string, date time.Time) ([]domain.TimeRange, error)
}

type Config struct {
	OpenMin  int
	CloseMin int
	// MinSlotMin filters slots when the caller states no duration.
	MinSlotMin int
	DayTTL     time.Duration
}

type Service struct {
	cal      *schedule.TourCalendar
	bookings OccupiedLister
	cache    *redisrepo.Cache
	cfg      Config
}

func New(cal *schedule.TourCalendar, bookings OccupiedLister, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.OpenMin <= 0 {
		cfg.OpenMin = 9 * 60
	}

	if cfg.CloseMin <= 0 || cfg.CloseMin <= cfg.OpenMin {
		cfg.CloseMin = 20 * 60
	}

	if cfg.MinSlotMin <= 0 {
		cfg.MinSlotMin = 60
	}

	if cfg.DayTTL <= 0 {
		cfg.DayTTL = 30 * time.Second
	}

	return &Service{
		cal:      cal,
		bookings: bookings,
		cache:    cache,
		cfg:      cfg,
	}
}

// AvailableSlots returns the intervals of one artist-day that can hold a
// session of durationMin minutes: operating hours minus live bookings,
// with every remainder shorter than the requested duration dropped. A
// non-positive durationMin falls back to the configured MinSlotMin. Days
// outside every tour window have no slots at all.
//
// Returns:
//   - availability.ErrNotOnTour when no tour window covers the date.
func (s *Service) AvailableSlots(ctx context.Context, artistID string, date time.Time, durationMin int) ([]domain.TimeRange, error) {
	const op = "service.availability.AvailableSlots"

	if _, ok, err := s.cal.WindowCovering(artistID, date); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotOnTour)
	}

	free, err := s.dayRanges(ctx, artistID, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	need := durationMin
	if need <= 0 {
		need = s.cfg.MinSlotMin
	}

	slots := make([]domain.TimeRange, 0, len(free))
	for _, r := range free {
		if r.Minutes() >= need {
			slots = append(slots, r)
		}
	}

	return slots, nil
}

// dayRanges serves the unfiltered free intervals of one artist-day, cached
// per day so callers with different durations share one loader.
func (s *Service) dayRanges(ctx context.Context, artistID string, date time.Time) ([]domain.TimeRange, error) {
	if s.cache == nil {
		return s.FreeRanges(ctx, artistID, date)
	}

	key := redisrepo.KeyDayAvailability(artistID, domain.FormatDate(date))

	return redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.DayTTL,
		func(ctx context.Context) ([]domain.TimeRange, error) {
			return s.FreeRanges(ctx, artistID, date)
		},
	)
}

// FreeRanges computes every positive idle interval of an artist-day without
// consulting the tour calendar or the cache. The gap finder calls this
// directly for days it has already matched against a window and applies its
// own minimum-length filter.
func (s *Service) FreeRanges(ctx context.Context, artistID string, date time.Time) ([]domain.TimeRange, error) {
	const op = "service.availability.FreeRanges"

	occupied, err := s.bookings.ListOccupied(ctx, artistID, date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return subtract(
		domain.TimeRange{StartMin: s.cfg.OpenMin, EndMin: s.cfg.CloseMin},
		occupied,
		1,
	), nil
}

// Windows returns the artist's tour windows intersecting [from, to].
func (s *Service) Windows(artistID string, from, to time.Time) ([]domain.TourWindow, error) {
	const op = "service.availability.Windows"

	ws, err := s.cal.WindowsFor(artistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ws, nil
}

// subtract removes the merged occupied intervals from day, keeping the
// remainders of at least minLen minutes.
func subtract(day domain.TimeRange, occupied []domain.TimeRange, minLen int) []domain.TimeRange {
	merged := merge(occupied)

	free := make([]domain.TimeRange, 0, len(merged)+1)
	cursor := day.StartMin

	for _, o := range merged {
		if o.EndMin <= day.StartMin || o.StartMin >= day.EndMin {
			continue
		}
		if o.StartMin > cursor {
			free = append(free, domain.TimeRange{StartMin: cursor, EndMin: o.StartMin})
		}
		if o.EndMin > cursor {
			cursor = o.EndMin
		}
	}

	if cursor < day.EndMin {
		free = append(free, domain.TimeRange{StartMin: cursor, EndMin: day.EndMin})
	}

	out := free[:0]
	for _, r := range free {
		if r.Minutes() >= minLen {
			out = append(out, r)
		}
	}

	return out
}

// merge sorts intervals and coalesces overlapping or touching ones.
func merge(rs []domain.TimeRange) []domain.TimeRange {
	if len(rs) < 2 {
		return rs
	}

	sorted := make([]domain.TimeRange, len(rs))
	copy(sorted, rs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StartMin < sorted[j].StartMin
	})

	out := sorted[:1]
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.StartMin <= last.EndMin {
			if r.EndMin > last.EndMin {
				last.EndMin = r.EndMin
			}
			continue
		}
		out = append(out, r)
	}

	return out
}
