package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
	"github.com/inkwell-labs/tourbook/internal/schedule"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Reserve(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockStore) Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockStore) ConfirmDeposit(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Booking, error) {
	args := m.Called(ctx, id, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockStore) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockStore) ListByArtistAndDateRange(ctx context.Context, artistID string, from, to time.Time) ([]domain.Booking, error) {
	args := m.Called(ctx, artistID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockStore) MarkHealingCheckSent(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ListHealingCheckDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockCRM struct {
	mock.Mock
}

func (m *MockCRM) ApplyConfirmedBooking(ctx context.Context, b *domain.Booking) (*domain.ClientRecord, error) {
	args := m.Called(ctx, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientRecord), args.Error(1)
}

func (m *MockCRM) GetClient(ctx context.Context, email string) (*domain.ClientRecord, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientRecord), args.Error(1)
}

type MockDispatch struct {
	mock.Mock
}

func (m *MockDispatch) EnqueueConfirmation(ctx context.Context, b domain.Booking, whatsappOptIn bool) error {
	return m.Called(ctx, b, whatsappOptIn).Error(0)
}

func (m *MockDispatch) EnqueueCancellation(ctx context.Context, b domain.Booking, reason string) error {
	return m.Called(ctx, b, reason).Error(0)
}

func (m *MockDispatch) EnqueueHealingCheck(ctx context.Context, b domain.Booking, whatsappOptIn bool) error {
	return m.Called(ctx, b, whatsappOptIn).Error(0)
}

func (m *MockDispatch) EnqueueCalendarPush(ctx context.Context, b domain.Booking, city, timezone string) error {
	return m.Called(ctx, b, city, timezone).Error(0)
}

type stubWaitlist struct {
	created []*domain.WaitlistEntry
	entries map[uuid.UUID]*domain.WaitlistEntry
	matched []uuid.UUID
}

func (s *stubWaitlist) Create(_ context.Context, e *domain.WaitlistEntry) (*domain.WaitlistEntry, error) {
	s.created = append(s.created, e)
	return e, nil
}

func (s *stubWaitlist) Get(_ context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubWaitlist) ListOpen(_ context.Context, _ string, _ int) ([]domain.WaitlistEntry, error) {
	return nil, nil
}

func (s *stubWaitlist) MarkMatched(_ context.Context, id uuid.UUID) error {
	s.matched = append(s.matched, id)
	return nil
}

type stubSlots struct {
	slots []domain.TimeRange
}

func (s *stubSlots) AvailableSlots(_ context.Context, _ string, _ time.Time, durationMin int) ([]domain.TimeRange, error) {
	out := make([]domain.TimeRange, 0, len(s.slots))
	for _, r := range s.slots {
		if r.Minutes() >= durationMin {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubSignal struct {
	days []string
}

func (s *stubSignal) DayChanged(_ context.Context, artistID, date string) error {
	s.days = append(s.days, artistID+"/"+date)
	return nil
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

type fixture struct {
	store    *MockStore
	crm      *MockCRM
	dispatch *MockDispatch
	waitlist *stubWaitlist
	slots    *stubSlots
	signal   *stubSignal
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
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

	prices := schedule.NewPriceBook([]domain.PricingRule{
		{Category: "half-day", DurationHours: 4, PriceCents: 45000, DepositCents: 15000},
		{Category: "flash", DurationHours: 2, PriceCents: 20000, DepositCents: 5000},
		{Category: "full-back", ContactRequired: true},
	})

	f := &fixture{
		store:    &MockStore{},
		crm:      &MockCRM{},
		dispatch: &MockDispatch{},
		waitlist: &stubWaitlist{},
		slots:    &stubSlots{slots: []domain.TimeRange{{StartMin: 9 * 60, EndMin: 20 * 60}}},
		signal:   &stubSignal{},
	}
	f.svc = New(f.store, f.waitlist, f.crm, f.dispatch, f.slots, f.signal, cal, prices, nil, nil, Config{})
	return f
}

func pendingBooking(t *testing.T) *domain.Booking {
	return &domain.Booking{
		ID:            uuid.New(),
		ArtistID:      "nomad-ink",
		ClientName:    "Ana",
		ClientEmail:   "ana@example.com",
		ClientPhone:   "+5511999990000",
		Date:          date(t, "2026-03-10"),
		StartMin:      10 * 60,
		DurationMin:   240,
		Category:      "half-day",
		PriceCents:    45000,
		DepositCents:  15000,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentAwaitingDeposit,
	}
}

func TestCreateReservesPending(t *testing.T) {
	f := newFixture(t)

	f.store.On("Reserve", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.Status == domain.BookingPending &&
			b.PaymentStatus == domain.PaymentAwaitingDeposit &&
			b.DurationMin == 240 &&
			b.PriceCents == 45000
	})).Return(pendingBooking(t), nil)

	b, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID:    "nomad-ink",
		ClientName:  "Ana",
		ClientEmail: "ana@example.com",
		Date:        date(t, "2026-03-10"),
		StartMin:    10 * 60,
		Category:    "half-day",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, []string{"nomad-ink/2026-03-10"}, f.signal.days)
	f.store.AssertExpectations(t)
}

func TestCreateUnknownCategory(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID: "nomad-ink",
		Date:     date(t, "2026-03-10"),
		StartMin: 10 * 60,
		Category: "portrait",
	}, "")

	assert.ErrorIs(t, err, schedule.ErrUnknownCategory)
}

func TestCreateContactRequiredCategory(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID: "nomad-ink",
		Date:     date(t, "2026-03-10"),
		StartMin: 10 * 60,
		Category: "full-back",
	}, "")

	assert.ErrorIs(t, err, ErrPricingUnavailable)
}

func TestCreateOutsideTourWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID: "nomad-ink",
		Date:     date(t, "2026-04-01"),
		StartMin: 10 * 60,
		Category: "half-day",
	}, "")

	assert.ErrorIs(t, err, ErrArtistNotPresent)
}

func TestCreateSlotDoesNotFit(t *testing.T) {
	f := newFixture(t)
	// Only a two hour hole remains; a half-day cannot fit.
	f.slots.slots = []domain.TimeRange{{StartMin: 9 * 60, EndMin: 11 * 60}}

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID: "nomad-ink",
		Date:     date(t, "2026-03-10"),
		StartMin: 9 * 60,
		Category: "half-day",
	}, "")

	assert.ErrorIs(t, err, ErrSlotTaken)
	f.store.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything)
}

func TestCreateLosesInsertRace(t *testing.T) {
	f := newFixture(t)

	f.store.On("Reserve", mock.Anything, mock.Anything).
		Return(nil, repository.ErrSlotTaken)

	_, err := f.svc.Create(context.Background(), CreateRequest{
		ArtistID: "nomad-ink",
		Date:     date(t, "2026-03-10"),
		StartMin: 10 * 60,
		Category: "flash",
	}, "")

	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Empty(t, f.signal.days)
}

func TestConfirmFromPaymentWinnerSettlesOnce(t *testing.T) {
	f := newFixture(t)

	confirmed := pendingBooking(t)
	confirmed.Status = domain.BookingConfirmed
	confirmed.PaymentStatus = domain.PaymentDepositPaid
	confirmed.PaymentRef = "pi_123"

	f.store.On("ConfirmDeposit", mock.Anything, confirmed.ID, "pi_123").
		Return(confirmed, nil).Once()
	f.crm.On("ApplyConfirmedBooking", mock.Anything, confirmed).
		Return(&domain.ClientRecord{
			Email:          confirmed.ClientEmail,
			TotalBookings:  1,
			WhatsAppStatus: domain.WhatsAppOptedIn,
		}, nil).Once()
	f.dispatch.On("EnqueueConfirmation", mock.Anything, *confirmed, true).Return(nil).Once()
	f.dispatch.On("EnqueueCalendarPush", mock.Anything, *confirmed, "Sao Paulo", "America/Sao_Paulo").
		Return(nil).Once()

	b, err := f.svc.ConfirmFromPayment(context.Background(), confirmed.ID, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)

	f.crm.AssertExpectations(t)
	f.dispatch.AssertExpectations(t)
}

func TestConfirmFromPaymentDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)

	confirmed := pendingBooking(t)
	confirmed.Status = domain.BookingConfirmed
	confirmed.PaymentStatus = domain.PaymentDepositPaid

	f.store.On("ConfirmDeposit", mock.Anything, confirmed.ID, "pi_123").
		Return(nil, repository.ErrConflict)
	f.store.On("GetByID", mock.Anything, confirmed.ID).Return(confirmed, nil)

	b, err := f.svc.ConfirmFromPayment(context.Background(), confirmed.ID, "pi_123")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)

	// The loser of the compare-and-set must not repeat any side effect.
	f.crm.AssertNotCalled(t, "ApplyConfirmedBooking", mock.Anything, mock.Anything)
	f.dispatch.AssertNotCalled(t, "EnqueueConfirmation", mock.Anything, mock.Anything, mock.Anything)
	f.dispatch.AssertNotCalled(t, "EnqueueCalendarPush", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmFromPaymentRespectsWhatsAppOptOut(t *testing.T) {
	f := newFixture(t)

	confirmed := pendingBooking(t)
	confirmed.Status = domain.BookingConfirmed
	confirmed.PaymentStatus = domain.PaymentDepositPaid
	confirmed.PaymentRef = "pi_456"

	f.store.On("ConfirmDeposit", mock.Anything, confirmed.ID, "pi_456").
		Return(confirmed, nil).Once()
	// Phone on file, but the client opted out of WhatsApp.
	f.crm.On("ApplyConfirmedBooking", mock.Anything, confirmed).
		Return(&domain.ClientRecord{
			Email:          confirmed.ClientEmail,
			Phone:          confirmed.ClientPhone,
			TotalBookings:  1,
			WhatsAppStatus: domain.WhatsAppOptedOut,
		}, nil).Once()
	f.dispatch.On("EnqueueConfirmation", mock.Anything, *confirmed, false).Return(nil).Once()
	f.dispatch.On("EnqueueCalendarPush", mock.Anything, *confirmed, "Sao Paulo", "America/Sao_Paulo").
		Return(nil).Once()

	_, err := f.svc.ConfirmFromPayment(context.Background(), confirmed.ID, "pi_456")
	require.NoError(t, err)

	f.dispatch.AssertExpectations(t)
}

func TestConfirmFromPaymentCancelledBooking(t *testing.T) {
	f := newFixture(t)

	cancelled := pendingBooking(t)
	cancelled.Status = domain.BookingCancelled

	f.store.On("ConfirmDeposit", mock.Anything, cancelled.ID, "pi_123").
		Return(nil, repository.ErrConflict)
	f.store.On("GetByID", mock.Anything, cancelled.ID).Return(cancelled, nil)

	_, err := f.svc.ConfirmFromPayment(context.Background(), cancelled.ID, "pi_123")
	assert.ErrorIs(t, err, ErrStaleConfirmation)
}

func TestConfirmFromPaymentUnknownBooking(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.store.On("ConfirmDeposit", mock.Anything, id, "pi_123").
		Return(nil, repository.ErrNotFound)
	f.store.On("GetByID", mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := f.svc.ConfirmFromPayment(context.Background(), id, "pi_123")
	assert.ErrorIs(t, err, ErrStaleConfirmation)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)

	b := pendingBooking(t)
	cancelled := *b
	cancelled.Status = domain.BookingCancelled

	f.store.On("Cancel", mock.Anything, b.ID, "client request").Return(&cancelled, nil)
	f.dispatch.On("EnqueueCancellation", mock.Anything, cancelled, "client request").Return(nil)

	got, err := f.svc.Cancel(context.Background(), b.ID, "client request")
	require.NoError(t, err)

	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, []string{"nomad-ink/2026-03-10"}, f.signal.days)
}

func TestCancelCompletedBooking(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.store.On("Cancel", mock.Anything, id, "oops").Return(nil, repository.ErrConflict)

	_, err := f.svc.Cancel(context.Background(), id, "oops")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	f := newFixture(t)

	id := uuid.New()
	f.store.On("Transition", mock.Anything, id, domain.BookingConfirmed, domain.BookingCompleted).
		Return(nil, repository.ErrConflict)

	_, err := f.svc.Complete(context.Background(), id)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSweepHealingChecksSendsOnceEach(t *testing.T) {
	f := newFixture(t)

	won := *pendingBooking(t)
	won.Status = domain.BookingCompleted
	lost := *pendingBooking(t)
	lost.Status = domain.BookingCompleted

	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	f.store.On("ListHealingCheckDue", mock.Anything, now.Add(-14*24*time.Hour), 200).
		Return([]domain.Booking{won, lost}, nil)
	f.store.On("MarkHealingCheckSent", mock.Anything, won.ID).Return(true, nil)
	f.store.On("MarkHealingCheckSent", mock.Anything, lost.ID).Return(false, nil)
	f.crm.On("GetClient", mock.Anything, won.ClientEmail).
		Return(&domain.ClientRecord{
			Email:          won.ClientEmail,
			WhatsAppStatus: domain.WhatsAppOptedIn,
		}, nil).Once()
	f.dispatch.On("EnqueueHealingCheck", mock.Anything, won, true).Return(nil).Once()

	sent, err := f.svc.SweepHealingChecks(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, sent)
	f.dispatch.AssertNotCalled(t, "EnqueueHealingCheck", mock.Anything, lost, mock.Anything)
}

func TestExpirePendingSkipsRacedRows(t *testing.T) {
	f := newFixture(t)

	stale := *pendingBooking(t)
	raced := *pendingBooking(t)

	cancelled := stale
	cancelled.Status = domain.BookingCancelled

	now := time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC)

	f.store.On("ListStalePending", mock.Anything, now.Add(-48*time.Hour), 200).
		Return([]domain.Booking{stale, raced}, nil)
	f.store.On("Cancel", mock.Anything, stale.ID, "deposit not received").Return(&cancelled, nil)
	// Confirmed in between listing and cancelling.
	f.store.On("Cancel", mock.Anything, raced.ID, "deposit not received").
		Return(nil, repository.ErrConflict)
	f.dispatch.On("EnqueueCancellation", mock.Anything, cancelled, "deposit not received").Return(nil)

	expired, err := f.svc.ExpirePending(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
}

func TestJoinWaitlistValidatesRange(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.JoinWaitlist(context.Background(), &domain.WaitlistEntry{
		ArtistID:    "nomad-ink",
		DateFrom:    date(t, "2026-03-10"),
		DateTo:      date(t, "2026-03-05"),
		DurationMin: 120,
	})
	assert.Error(t, err)

	e, err := f.svc.JoinWaitlist(context.Background(), &domain.WaitlistEntry{
		ArtistID:    "nomad-ink",
		DateFrom:    date(t, "2026-03-05"),
		DateTo:      date(t, "2026-03-10"),
		DurationMin: 120,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.WaitlistOpen, e.Status)
	assert.NotEqual(t, uuid.Nil, e.ID)
	require.Len(t, f.waitlist.created, 1)
}

func TestCreateFromWaitlistMarksMatched(t *testing.T) {
	f := newFixture(t)

	entry := &domain.WaitlistEntry{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		ClientName:  "Ana",
		ClientEmail: "ana@example.com",
		DateFrom:    date(t, "2026-03-05"),
		DateTo:      date(t, "2026-03-15"),
		DurationMin: 120,
		Status:      domain.WaitlistOpen,
	}
	f.waitlist.entries = map[uuid.UUID]*domain.WaitlistEntry{entry.ID: entry}

	f.store.On("Reserve", mock.Anything, mock.MatchedBy(func(b *domain.Booking) bool {
		return b.ClientEmail == "ana@example.com" && b.Category == "flash"
	})).Return(pendingBooking(t), nil)

	_, err := f.svc.CreateFromWaitlist(context.Background(), entry.ID, date(t, "2026-03-10"), 10*60, "flash")
	require.NoError(t, err)
	require.Len(t, f.waitlist.matched, 1)
	assert.Equal(t, entry.ID, f.waitlist.matched[0])
}

func TestCreateFromWaitlistOutsideRange(t *testing.T) {
	f := newFixture(t)

	entry := &domain.WaitlistEntry{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		DateFrom:    date(t, "2026-03-05"),
		DateTo:      date(t, "2026-03-08"),
		DurationMin: 120,
		Status:      domain.WaitlistOpen,
	}
	f.waitlist.entries = map[uuid.UUID]*domain.WaitlistEntry{entry.ID: entry}

	_, err := f.svc.CreateFromWaitlist(context.Background(), entry.ID, date(t, "2026-03-12"), 10*60, "flash")
	assert.ErrorIs(t, err, ErrOutsideRange)
	assert.Empty(t, f.waitlist.matched)
}

func TestCreateFromWaitlistUnknownEntry(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFromWaitlist(context.Background(), uuid.New(), date(t, "2026-03-10"), 10*60, "flash")
	assert.ErrorIs(t, err, ErrWaitlistNotFound)
}
