package crm

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
)

type stubClients struct {
	records map[string]*domain.ClientRecord
	applied []uuid.UUID
	waSet   map[string]domain.WhatsAppStatus
}

func newStubClients() *stubClients {
	return &stubClients{
		records: map[string]*domain.ClientRecord{},
		waSet:   map[string]domain.WhatsAppStatus{},
	}
}

func (s *stubClients) ApplyConfirmedBooking(_ context.Context, b *domain.Booking) (*domain.ClientRecord, error) {
	s.applied = append(s.applied, b.ID)

	rec, ok := s.records[b.ClientEmail]
	if !ok {
		rec = &domain.ClientRecord{Email: b.ClientEmail, Name: b.ClientName}
		s.records[b.ClientEmail] = rec
	}
	rec.TotalBookings++
	rec.TotalSpentCents += b.PriceCents
	visit := b.Date
	if rec.LastVisit == nil || visit.After(*rec.LastVisit) {
		rec.LastVisit = &visit
	}
	return rec, nil
}

func (s *stubClients) GetByEmail(_ context.Context, email string) (*domain.ClientRecord, error) {
	rec, ok := s.records[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (s *stubClients) SetWhatsAppStatus(_ context.Context, email string, status domain.WhatsAppStatus) error {
	if _, ok := s.records[email]; !ok {
		return repository.ErrNotFound
	}
	s.waSet[email] = status
	return nil
}

func (s *stubClients) AddTag(_ context.Context, email, tag string) error {
	rec, ok := s.records[email]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Tags = append(rec.Tags, tag)
	return nil
}

func booking(email string, price int64, day string) *domain.Booking {
	d, _ := time.Parse(domain.DateLayout, day)
	return &domain.Booking{
		ID:          uuid.New(),
		ArtistID:    "nomad-ink",
		ClientName:  "Ana",
		ClientEmail: email,
		Date:        d,
		PriceCents:  price,
	}
}

func TestApplyConfirmedBookingAggregates(t *testing.T) {
	store := newStubClients()
	svc := New(store, nil, Config{})

	_, err := svc.ApplyConfirmedBooking(context.Background(), booking("ana@example.com", 45000, "2026-03-10"))
	require.NoError(t, err)

	rec, err := svc.ApplyConfirmedBooking(context.Background(), booking("ana@example.com", 30000, "2026-02-01"))
	require.NoError(t, err)

	assert.Equal(t, 2, rec.TotalBookings)
	assert.Equal(t, int64(75000), rec.TotalSpentCents)
	require.NotNil(t, rec.LastVisit)
	assert.Equal(t, "2026-03-10", domain.FormatDate(*rec.LastVisit))
}

func TestGetClientNotFound(t *testing.T) {
	svc := New(newStubClients(), nil, Config{})

	_, err := svc.GetClient(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestSetWhatsAppStatus(t *testing.T) {
	store := newStubClients()
	svc := New(store, nil, Config{})

	_, err := svc.ApplyConfirmedBooking(context.Background(), booking("ana@example.com", 45000, "2026-03-10"))
	require.NoError(t, err)

	require.NoError(t, svc.SetWhatsAppStatus(context.Background(), "ana@example.com", domain.WhatsAppOptedIn))
	assert.Equal(t, domain.WhatsAppOptedIn, store.waSet["ana@example.com"])

	err = svc.SetWhatsAppStatus(context.Background(), "ghost@example.com", domain.WhatsAppOptedIn)
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestAddTag(t *testing.T) {
	store := newStubClients()
	svc := New(store, nil, Config{})

	_, err := svc.ApplyConfirmedBooking(context.Background(), booking("ana@example.com", 45000, "2026-03-10"))
	require.NoError(t, err)

	require.NoError(t, svc.AddTag(context.Background(), "ana@example.com", "vip"))

	rec, err := svc.GetClient(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.Contains(t, rec.Tags, "vip")
}
