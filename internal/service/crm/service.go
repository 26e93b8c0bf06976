package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
)

var ErrClientNotFound = errors.New("client not found")

// ClientStore is the persistence slice the CRM needs.
type ClientStore interface {
	ApplyConfirmedBooking(ctx context.Context, b *domain.Booking) (*domain.ClientRecord, error)
	GetByEmail(ctx context.Context, email string) (*domain.ClientRecord, error)
	SetWhatsAppStatus(ctx context.Context, email string, status domain.WhatsAppStatus) error
	AddTag(ctx context.Context, email, tag string) error
}

type Config struct {
	ProfileTTL time.Duration
}

type Service struct {
	clients ClientStore
	cache   *redisrepo.Cache
	cfg     Config
}

func New(clients ClientStore, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = 60 * time.Second
	}

	return &Service{
		clients: clients,
		cache:   cache,
		cfg:     cfg,
	}
}

// ApplyConfirmedBooking folds one confirmed booking into the client's
// aggregate. The write is a single atomic upsert, so two instances applying
// the same confirmation concurrently still advance the counters exactly once
// per distinct booking; the caller guarantees each booking reaches here at
// most once via the state machine's PENDING -> CONFIRMED gate.
func (s *Service) ApplyConfirmedBooking(ctx context.Context, b *domain.Booking) (*domain.ClientRecord, error) {
	const op = "service.crm.ApplyConfirmedBooking"

	rec, err := s.clients.ApplyConfirmedBooking(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateClient(ctx, rec.Email)
	}

	return rec, nil
}

// GetClient returns the CRM aggregate for an email, cached briefly.
//
// Returns:
//   - crm.ErrClientNotFound when no booking has ever been confirmed for
//     the email.
func (s *Service) GetClient(ctx context.Context, email string) (*domain.ClientRecord, error) {
	const op = "service.crm.GetClient"

	load := func(ctx context.Context) (domain.ClientRecord, error) {
		rec, err := s.clients.GetByEmail(ctx, email)
		if err != nil {
			return domain.ClientRecord{}, err
		}
		return *rec, nil
	}

	var (
		rec domain.ClientRecord
		err error
	)
	if s.cache == nil {
		rec, err = load(ctx)
	} else {
		rec, err = redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisrepo.KeyClientProfile(email),
			s.cfg.ProfileTTL,
			load,
		)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrClientNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &rec, nil
}

func (s *Service) SetWhatsAppStatus(ctx context.Context, email string, status domain.WhatsAppStatus) error {
	const op = "service.crm.SetWhatsAppStatus"

	if err := s.clients.SetWhatsAppStatus(ctx, email, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrClientNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateClient(ctx, email)
	}

	return nil
}

func (s *Service) AddTag(ctx context.Context, email, tag string) error {
	const op = "service.crm.AddTag"

	if err := s.clients.AddTag(ctx, email, tag); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrClientNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateClient(ctx, email)
	}

	return nil
}
