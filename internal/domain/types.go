package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentAwaitingDeposit PaymentStatus = "awaiting_deposit"
	PaymentDepositPaid     PaymentStatus = "deposit_paid"
)

type WhatsAppStatus string

const (
	WhatsAppUnknown  WhatsAppStatus = "unknown"
	WhatsAppOptedIn  WhatsAppStatus = "opted_in"
	WhatsAppOptedOut WhatsAppStatus = "opted_out"
)

type WaitlistStatus string

const (
	WaitlistOpen    WaitlistStatus = "open"
	WaitlistMatched WaitlistStatus = "matched"
	WaitlistClosed  WaitlistStatus = "closed"
)

// DateLayout is the wire format for calendar dates. Dates never carry a
// timezone; a booking on 2026-01-10 is 2026-01-10 in the artist's city.
const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// TimeRange is a half-open interval of a single day, in minutes from
// midnight: [StartMin, EndMin).
type TimeRange struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

func (r TimeRange) Minutes() int {
	return r.EndMin - r.StartMin
}

func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.StartMin < o.EndMin && o.StartMin < r.EndMin
}

func (r TimeRange) Contains(o TimeRange) bool {
	return r.StartMin <= o.StartMin && o.EndMin <= r.EndMin
}

func (r TimeRange) String() string {
	return FormatMinute(r.StartMin) + "-" + FormatMinute(r.EndMin)
}

// ParseMinute parses a wall-clock time like "09:30" into minutes from
// midnight.
func ParseMinute(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatMinute(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Booking is a reservation of one artist's time on one calendar day.
// Rows are never deleted; cancellation is a status transition so the
// audit trail survives.
type Booking struct {
	ID            uuid.UUID      `json:"id"`
	ArtistID      string         `json:"artist_id"`
	ClientName    string         `json:"client_name"`
	ClientEmail   string         `json:"client_email"`
	ClientPhone   string         `json:"client_phone"`
	Date          time.Time      `json:"-"`
	StartMin      int            `json:"start_min"`
	DurationMin   int            `json:"duration_min"`
	Category      string         `json:"category"`
	PriceCents    int64          `json:"price_cents"`
	DepositCents  int64          `json:"deposit_cents"`
	Status        BookingStatus  `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (b *Booking) Range() TimeRange {
	return TimeRange{StartMin: b.StartMin, EndMin: b.StartMin + b.DurationMin}
}

// Occupies reports whether the booking blocks its interval for other
// reservations.
func (b *Booking) Occupies() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}

// TourWindow is a declared presence of an artist in one city. Windows are
// immutable configuration; the same artist's windows never overlap.
type TourWindow struct {
	ArtistID string    `json:"artist_id"`
	Country  string    `json:"country"`
	City     string    `json:"city"`
	Timezone string    `json:"timezone"`
	From     time.Time `json:"-"`
	To       time.Time `json:"-"`
}

// Covers reports whether date falls inside the window, boundaries included.
func (w TourWindow) Covers(date time.Time) bool {
	return !date.Before(w.From) && !date.After(w.To)
}

// PricingRule maps a booking category to a fixed price, or marks it as
// requiring manual negotiation (ContactRequired).
type PricingRule struct {
	Category        string `json:"category"`
	DurationHours   int    `json:"duration_hours"`
	PriceCents      int64  `json:"price_cents"`
	DepositCents    int64  `json:"deposit_cents"`
	ContactRequired bool   `json:"contact_required"`
}

// ClientRecord is the per-email CRM aggregate. Counters move by exactly one
// booking's worth per confirmed booking, regardless of how many times the
// payment provider delivers the confirmation.
type ClientRecord struct {
	Email           string         `json:"email"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	TotalBookings   int            `json:"total_bookings"`
	TotalSpentCents int64          `json:"total_spent_cents"`
	LastVisit       *time.Time     `json:"last_visit,omitempty"`
	Tags            []string       `json:"tags"`
	WhatsAppStatus  WhatsAppStatus `json:"whatsapp_status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// WaitlistEntry is a standing request for time with an artist inside a date
// range. Matching is advisory; only a successful reserve consumes the entry.
type WaitlistEntry struct {
	ID                uuid.UUID      `json:"id"`
	ArtistID          string         `json:"artist_id"`
	ClientName        string         `json:"client_name"`
	ClientEmail       string         `json:"client_email"`
	ClientPhone       string         `json:"client_phone"`
	DateFrom          time.Time      `json:"-"`
	DateTo            time.Time      `json:"-"`
	DurationMin       int            `json:"duration_min"`
	PreferredStartMin *int           `json:"preferred_start_min,omitempty"`
	Status            WaitlistStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	MatchedAt         *time.Time     `json:"matched_at,omitempty"`
}

// Gap is a derived idle interval inside a tour window. Gaps are recomputed
// on demand and never persisted; any gap can go stale the moment another
// booking lands.
type Gap struct {
	ArtistID string    `json:"artist_id"`
	Date     time.Time `json:"-"`
	City     string    `json:"city"`
	TimeRange
}
