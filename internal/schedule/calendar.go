package schedule

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkwell-labs/tourbook/internal/domain"
)

// ConfigError marks a schedule configuration problem for a single artist.
// It is fatal for that artist's bookability, not for the process.
type ConfigError struct {
	ArtistID string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("tour calendar: artist %q: %s", e.ArtistID, e.Reason)
}

type calendarFile struct {
	Artists []struct {
		ArtistID string `yaml:"artist_id"`
		Windows  []struct {
			Country  string `yaml:"country"`
			City     string `yaml:"city"`
			Timezone string `yaml:"timezone"`
			From     string `yaml:"from"`
			To       string `yaml:"to"`
		} `yaml:"windows"`
	} `yaml:"artists"`
}

// TourCalendar holds the per-artist presence windows. It is loaded once at
// startup and read-only afterwards.
type TourCalendar struct {
	windows map[string][]domain.TourWindow
}

// LoadCalendar reads the tour calendar from a YAML file. Dates are calendar
// dates ("2006-01-02"); windows for the same artist must not overlap —
// overlapping windows are rejected rather than merged, because a merged
// window has no unambiguous city for a given date.
func LoadCalendar(path string) (*TourCalendar, error) {
	const op = "schedule.LoadCalendar"

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var f calendarFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var all []domain.TourWindow
	for _, a := range f.Artists {
		if a.ArtistID == "" {
			return nil, fmt.Errorf("%s: artist with empty artist_id", op)
		}
		if len(a.Windows) == 0 {
			return nil, fmt.Errorf("%s: %w", op, &ConfigError{ArtistID: a.ArtistID, Reason: "no tour windows declared"})
		}
		for _, w := range a.Windows {
			from, err := domain.ParseDate(w.From)
			if err != nil {
				return nil, fmt.Errorf("%s: artist %q: %w", op, a.ArtistID, err)
			}
			to, err := domain.ParseDate(w.To)
			if err != nil {
				return nil, fmt.Errorf("%s: artist %q: %w", op, a.ArtistID, err)
			}
			tz := w.Timezone
			if tz == "" {
				tz = "UTC"
			}
			all = append(all, domain.TourWindow{
				ArtistID: a.ArtistID,
				Country:  w.Country,
				City:     w.City,
				Timezone: tz,
				From:     from,
				To:       to,
			})
		}
	}

	cal, err := NewCalendar(all)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cal, nil
}

// NewCalendar builds a calendar from already-parsed windows, validating
// per-artist ordering invariants.
func NewCalendar(windows []domain.TourWindow) (*TourCalendar, error) {
	byArtist := make(map[string][]domain.TourWindow)
	for _, w := range windows {
		if w.To.Before(w.From) {
			return nil, &ConfigError{
				ArtistID: w.ArtistID,
				Reason:   fmt.Sprintf("window %s ends before it starts (%s > %s)", w.City, domain.FormatDate(w.From), domain.FormatDate(w.To)),
			}
		}
		byArtist[w.ArtistID] = append(byArtist[w.ArtistID], w)
	}

	for artist, ws := range byArtist {
		sort.Slice(ws, func(i, j int) bool { return ws[i].From.Before(ws[j].From) })
		for i := 1; i < len(ws); i++ {
			if !ws[i].From.After(ws[i-1].To) {
				return nil, &ConfigError{
					ArtistID: artist,
					Reason: fmt.Sprintf("windows %s and %s overlap (%s..%s vs %s..%s)",
						ws[i-1].City, ws[i].City,
						domain.FormatDate(ws[i-1].From), domain.FormatDate(ws[i-1].To),
						domain.FormatDate(ws[i].From), domain.FormatDate(ws[i].To)),
				}
			}
		}
		byArtist[artist] = ws
	}

	return &TourCalendar{windows: byArtist}, nil
}

// WindowsFor returns the artist's windows intersecting [from, to],
// chronologically sorted. An artist with zero declared windows is
// unbookable anywhere and yields a ConfigError.
func (c *TourCalendar) WindowsFor(artistID string, from, to time.Time) ([]domain.TourWindow, error) {
	ws, ok := c.windows[artistID]
	if !ok || len(ws) == 0 {
		return nil, &ConfigError{ArtistID: artistID, Reason: "no tour windows declared"}
	}

	var out []domain.TourWindow
	for _, w := range ws {
		if w.To.Before(from) || w.From.After(to) {
			continue
		}
		out = append(out, w)
	}

	return out, nil
}

// WindowCovering returns the window containing date, if any. ok is false
// when the artist has windows but none covers the date (not in town).
func (c *TourCalendar) WindowCovering(artistID string, date time.Time) (domain.TourWindow, bool, error) {
	ws, err := c.WindowsFor(artistID, date, date)
	if err != nil {
		return domain.TourWindow{}, false, err
	}
	for _, w := range ws {
		if w.Covers(date) {
			return w, true, nil
		}
	}
	return domain.TourWindow{}, false, nil
}

// Artists lists every artist with at least one declared window.
func (c *TourCalendar) Artists() []string {
	out := make([]string, 0, len(c.windows))
	for a := range c.windows {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
