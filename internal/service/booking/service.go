package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

// BookingStore is the persistence slice of the lifecycle engine. The
// production implementation backs every method with a single SQL statement,
// so each call is atomic on its own.
type BookingStore interface {
	Reserve(ctx context.Context, b *domain.Booking) (*domain.Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error)
	ConfirmDeposit(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Booking, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error)
	ListByArtistAndDateRange(ctx context.Context, artistID string, from, to time.Time) ([]domain.Booking, error)
	MarkHealingCheckSent(ctx context.Context, id uuid.UUID) (bool, error)
	ListHealingCheckDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error)
}

type WaitlistStore interface {
	Create(ctx context.Context, e *domain.WaitlistEntry) (*domain.WaitlistEntry, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error)
	ListOpen(ctx context.Context, artistID string, limit int) ([]domain.WaitlistEntry, error)
	MarkMatched(ctx context.Context, id uuid.UUID) error
}

// Reconciler folds a confirmed booking into the CRM aggregate and answers
// client lookups for channel decisions.
type Reconciler interface {
	ApplyConfirmedBooking(ctx context.Context, b *domain.Booking) (*domain.ClientRecord, error)
	GetClient(ctx context.Context, email string) (*domain.ClientRecord, error)
}

// Dispatcher queues outbound side effects. Implementations must be safe to
// call after the booking row is already committed; a failed dispatch is
// logged, never rolled back into the state machine. The whatsappOptIn flag
// carries the client's recorded consent; without it only email goes out.
type Dispatcher interface {
	EnqueueConfirmation(ctx context.Context, b domain.Booking, whatsappOptIn bool) error
	EnqueueCancellation(ctx context.Context, b domain.Booking, reason string) error
	EnqueueHealingCheck(ctx context.Context, b domain.Booking, whatsappOptIn bool) error
	EnqueueCalendarPush(ctx context.Context, b domain.Booking, city, timezone string) error
}

// SlotChecker answers whether a requested interval fits an open slot.
type SlotChecker interface {
	AvailableSlots(ctx context.Context, artistID string, date time.Time, durationMin int) ([]domain.TimeRange, error)
}

// DaySignal invalidates cached availability after a day's bookings change.
type DaySignal interface {
	DayChanged(ctx context.Context, artistID, date string) error
}

type Config struct {
	// PendingTTL is how long an unpaid PENDING booking blocks its slot.
	PendingTTL time.Duration
	// HealingCheckAfter is the quiet period after a completed session
	// before the aftercare follow-up goes out.
	HealingCheckAfter time.Duration
	// SweepBatch caps how many rows one sweep pass processes.
	SweepBatch int
}

type Service struct {
	store    BookingStore
	waitlist WaitlistStore
	crm      Reconciler
	dispatch Dispatcher
	slots    SlotChecker
	signal   DaySignal
	cal      *schedule.TourCalendar
	prices   *schedule.PriceBook
	limiter  *redisrepo.SlidingWindowLimiter
	log      *slog.Logger
	cfg      Config
}

func New(
	store BookingStore,
	waitlist WaitlistStore,
	crm Reconciler,
	dispatch Dispatcher,
	slots SlotChecker,
	signal DaySignal,
	cal *schedule.TourCalendar,
	prices *schedule.PriceBook,
	limiter *redisrepo.SlidingWindowLimiter,
	log *slog.Logger,
	cfg Config,
) *Service {
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 48 * time.Hour
	}

	if cfg.HealingCheckAfter <= 0 {
		cfg.HealingCheckAfter = 14 * 24 * time.Hour
	}

	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 200
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		store:    store,
		waitlist: waitlist,
		crm:      crm,
		dispatch: dispatch,
		slots:    slots,
		signal:   signal,
		cal:      cal,
		prices:   prices,
		limiter:  limiter,
		log:      log,
		cfg:      cfg,
	}
}

type CreateRequest struct {
	ArtistID    string
	ClientName  string
	ClientEmail string
	ClientPhone string
	Date        time.Time
	StartMin    int
	Category    string
}

// Create reserves a slot as a PENDING booking awaiting its deposit.
// Price and duration come from the price book, presence from the tour
// calendar, and the final word on slot ownership from the storage layer's
// exclusion constraint: the availability check here only produces a
// friendlier error for the common case, it is not the concurrency guard.
//
// Returns:
//   - booking.ErrRateLimited when rlKey exhausted its attempt budget.
//   - schedule.ErrUnknownCategory for a category outside the price book.
//   - booking.ErrPricingUnavailable for contact-only categories.
//   - booking.ErrArtistNotPresent when no tour window covers the date.
//   - booking.ErrSlotTaken when the interval is not free.
func (s *Service) Create(ctx context.Context, req CreateRequest, rlKey string) (*domain.Booking, error) {
	const op = "service.booking.Create"

	if s.limiter != nil && rlKey != "" {
		d, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !d.Allowed {
			return nil, fmt.Errorf("%s: %w (retry in %s)", op, ErrRateLimited, d.RetryAfter)
		}
	}

	rule, err := s.prices.Rule(req.Category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rule.ContactRequired {
		return nil, fmt.Errorf("%s: %w", op, ErrPricingUnavailable)
	}

	if _, ok, err := s.cal.WindowCovering(req.ArtistID, req.Date); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	} else if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrArtistNotPresent)
	}

	durationMin := rule.DurationHours * 60
	want := domain.TimeRange{StartMin: req.StartMin, EndMin: req.StartMin + durationMin}

	slots, err := s.slots.AvailableSlots(ctx, req.ArtistID, req.Date, durationMin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !fitsAny(want, slots) {
		return nil, fmt.Errorf("%s: %w", op, ErrSlotTaken)
	}

	b := &domain.Booking{
		ID:            uuid.New(),
		ArtistID:      req.ArtistID,
		ClientName:    req.ClientName,
		ClientEmail:   req.ClientEmail,
		ClientPhone:   req.ClientPhone,
		Date:          req.Date,
		StartMin:      req.StartMin,
		DurationMin:   durationMin,
		Category:      rule.Category,
		PriceCents:    rule.PriceCents,
		DepositCents:  rule.DepositCents,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentAwaitingDeposit,
	}

	saved, err := s.store.Reserve(ctx, b)
	if err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return nil, fmt.Errorf("%s: %w", op, ErrSlotTaken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.dayChanged(ctx, saved.ArtistID, saved.Date)

	s.log.Info("booking reserved",
		slog.String("booking_id", saved.ID.String()),
		slog.String("artist_id", saved.ArtistID),
		slog.String("date", domain.FormatDate(saved.Date)))

	return saved, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Get"

	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return b, nil
}

func (s *Service) ListForArtist(ctx context.Context, artistID string, from, to time.Time) ([]domain.Booking, error) {
	const op = "service.booking.ListForArtist"

	bs, err := s.store.ListByArtistAndDateRange(ctx, artistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bs, nil
}

// ConfirmFromPayment applies a deposit confirmation delivered by the payment
// provider. The PENDING -> CONFIRMED compare-and-set elects exactly one
// winner among duplicate deliveries; only the winner reconciles the CRM and
// queues the confirmation messages and calendar push, so retries cannot
// double any side effect. A duplicate for an already confirmed booking is a
// silent success, a confirmation for a cancelled or unknown booking is
// ErrStaleConfirmation.
func (s *Service) ConfirmFromPayment(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Booking, error) {
	const op = "service.booking.ConfirmFromPayment"

	b, err := s.store.ConfirmDeposit(ctx, id, externalRef)
	if err == nil {
		s.settleConfirmed(ctx, b)
		return b, nil
	}

	if !errors.Is(err, repository.ErrConflict) && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cur, getErr := s.store.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrStaleConfirmation)
		}
		return nil, fmt.Errorf("%s: %w", op, getErr)
	}

	switch cur.Status {
	case domain.BookingConfirmed, domain.BookingCompleted:
		// Lost the race to an identical delivery; the winner already
		// handled the side effects.
		return cur, nil
	default:
		return nil, fmt.Errorf("%s: %w", op, ErrStaleConfirmation)
	}
}

func (s *Service) settleConfirmed(ctx context.Context, b *domain.Booking) {
	rec, err := s.crm.ApplyConfirmedBooking(ctx, b)
	if err != nil {
		s.log.Error("crm reconcile failed",
			slog.String("booking_id", b.ID.String()),
			slog.Any("error", err))
	}

	if err := s.dispatch.EnqueueConfirmation(ctx, *b, whatsappOptedIn(rec)); err != nil {
		s.log.Error("confirmation dispatch failed",
			slog.String("booking_id", b.ID.String()),
			slog.Any("error", err))
	}

	city, tz := "", "UTC"
	if w, ok, err := s.cal.WindowCovering(b.ArtistID, b.Date); err == nil && ok {
		city, tz = w.City, w.Timezone
	}
	if err := s.dispatch.EnqueueCalendarPush(ctx, *b, city, tz); err != nil {
		s.log.Error("calendar push dispatch failed",
			slog.String("booking_id", b.ID.String()),
			slog.Any("error", err))
	}

	s.log.Info("booking confirmed",
		slog.String("booking_id", b.ID.String()),
		slog.String("payment_ref", b.PaymentRef))
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED and frees its
// slot. Deposits are not refunded here; refunds are a manual decision.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	const op = "service.booking.Cancel"

	b, err := s.store.Cancel(ctx, id, reason)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.dispatch.EnqueueCancellation(ctx, *b, reason); err != nil {
		s.log.Error("cancellation dispatch failed",
			slog.String("booking_id", b.ID.String()),
			slog.Any("error", err))
	}

	s.dayChanged(ctx, b.ArtistID, b.Date)

	return b, nil
}

// Complete marks a CONFIRMED booking's session as done, starting the clock
// for the aftercare follow-up.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "service.booking.Complete"

	b, err := s.store.Transition(ctx, id, domain.BookingConfirmed, domain.BookingCompleted)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrBookingNotFound)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return b, nil
}

// JoinWaitlist registers a standing request for time within a date range.
func (s *Service) JoinWaitlist(ctx context.Context, e *domain.WaitlistEntry) (*domain.WaitlistEntry, error) {
	const op = "service.booking.JoinWaitlist"

	if e.DateTo.Before(e.DateFrom) {
		return nil, fmt.Errorf("%s: date range ends before it starts", op)
	}
	if e.DurationMin <= 0 {
		return nil, fmt.Errorf("%s: duration must be positive", op)
	}

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = domain.WaitlistOpen

	saved, err := s.waitlist.Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return saved, nil
}

func (s *Service) GetWaitlistEntry(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	const op = "service.booking.GetWaitlistEntry"

	e, err := s.waitlist.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrWaitlistNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return e, nil
}

// CreateFromWaitlist converts a waitlist entry into a booking at the given
// date and start time. The reserve re-validates everything the normal Create
// path does, so a gap that closed since matching surfaces as ErrSlotTaken.
// The entry flips to matched only after the reserve succeeds.
func (s *Service) CreateFromWaitlist(ctx context.Context, entryID uuid.UUID, d time.Time, startMin int, category string) (*domain.Booking, error) {
	const op = "service.booking.CreateFromWaitlist"

	e, err := s.waitlist.Get(ctx, entryID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrWaitlistNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if d.Before(e.DateFrom) || d.After(e.DateTo) {
		return nil, fmt.Errorf("%s: %w", op, ErrOutsideRange)
	}

	b, err := s.Create(ctx, CreateRequest{
		ArtistID:    e.ArtistID,
		ClientName:  e.ClientName,
		ClientEmail: e.ClientEmail,
		ClientPhone: e.ClientPhone,
		Date:        d,
		StartMin:    startMin,
		Category:    category,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.waitlist.MarkMatched(ctx, e.ID); err != nil {
		// The booking exists either way; a concurrent sweep may have
		// flipped the entry first.
		s.log.Warn("waitlist entry not marked matched",
			slog.String("entry_id", e.ID.String()),
			slog.Any("error", err))
	}

	return b, nil
}

func (s *Service) OpenWaitlist(ctx context.Context, artistID string, limit int) ([]domain.WaitlistEntry, error) {
	const op = "service.booking.OpenWaitlist"

	entries, err := s.waitlist.ListOpen(ctx, artistID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return entries, nil
}

// SweepHealingChecks sends the aftercare follow-up for sessions at least
// HealingCheckAfter in the past, whether the booking sits at CONFIRMED or
// was marked COMPLETED. The jsonb sent-flag flips atomically, so
// overlapping sweeps on different instances send each follow-up once.
func (s *Service) SweepHealingChecks(ctx context.Context, now time.Time) (int, error) {
	const op = "service.booking.SweepHealingChecks"

	cutoff := now.Add(-s.cfg.HealingCheckAfter)

	due, err := s.store.ListHealingCheckDue(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	sent := 0
	for _, b := range due {
		won, err := s.store.MarkHealingCheckSent(ctx, b.ID)
		if err != nil {
			return sent, fmt.Errorf("%s: %w", op, err)
		}
		if !won {
			continue
		}
		rec, err := s.crm.GetClient(ctx, b.ClientEmail)
		if err != nil {
			rec = nil
		}
		if err := s.dispatch.EnqueueHealingCheck(ctx, b, whatsappOptedIn(rec)); err != nil {
			s.log.Error("healing check dispatch failed",
				slog.String("booking_id", b.ID.String()),
				slog.Any("error", err))
			continue
		}
		sent++
	}

	return sent, nil
}

// ExpirePending cancels PENDING bookings whose deposit never arrived within
// PendingTTL, releasing their slots. Returns the number expired.
func (s *Service) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	const op = "service.booking.ExpirePending"

	cutoff := now.Add(-s.cfg.PendingTTL)

	stale, err := s.store.ListStalePending(ctx, cutoff, s.cfg.SweepBatch)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	expired := 0
	for _, b := range stale {
		if _, err := s.Cancel(ctx, b.ID, "deposit not received"); err != nil {
			// Someone confirmed or cancelled it since the listing.
			if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrBookingNotFound) {
				continue
			}
			return expired, fmt.Errorf("%s: %w", op, err)
		}
		expired++
	}

	return expired, nil
}

func (s *Service) dayChanged(ctx context.Context, artistID string, date time.Time) {
	if s.signal == nil {
		return
	}
	if err := s.signal.DayChanged(ctx, artistID, domain.FormatDate(date)); err != nil {
		s.log.Warn("availability invalidation failed",
			slog.String("artist_id", artistID),
			slog.Any("error", err))
	}
}

func whatsappOptedIn(rec *domain.ClientRecord) bool {
	return rec != nil && rec.WhatsAppStatus == domain.WhatsAppOptedIn
}

func fitsAny(want domain.TimeRange, slots []domain.TimeRange) bool {
	for _, s := range slots {
		if s.Contains(want) {
			return true
		}
	}
	return false
}
