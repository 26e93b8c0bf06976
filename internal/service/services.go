package service

import (
	"log/slog"

	"github.com/inkwell-labs/tourbook/internal/dispatch"
	postgres "github.com/inkwell-labs/tourbook/internal/repository/postgres"
	redis "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
	"github.com/inkwell-labs/tourbook/internal/service/availability"
	"github.com/inkwell-labs/tourbook/internal/service/booking"
	"github.com/inkwell-labs/tourbook/internal/service/crm"
	"github.com/inkwell-labs/tourbook/internal/service/gaps"
)

type Services struct {
	Booking      *booking.Service
	Availability *availability.Service
	Gaps         *gaps.Service
	CRM          *crm.Service
}

type Config struct {
	Booking      booking.Config
	Availability availability.Config
	Gaps         gaps.Config
	CRM          crm.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redis.AvailabilityPubSub,
	limiter *redis.SlidingWindowLimiter,
	producer *dispatch.Producer,
	cal *schedule.TourCalendar,
	prices *schedule.PriceBook,
	log *slog.Logger,
	cfg Config,
) *Services {
	avail := availability.New(cal, store.Bookings(), cache, cfg.Availability)
	crmSvc := crm.New(store.Clients(), cache, cfg.CRM)

	signal := &redis.AvailabilitySignal{Cache: cache, PubSub: pubsub}

	return &Services{
		Booking: booking.New(
			store.Bookings(),
			store.Waitlist(),
			crmSvc,
			producer,
			avail,
			signal,
			cal,
			prices,
			limiter,
			log,
			cfg.Booking,
		),
		Availability: avail,
		Gaps:         gaps.New(cal, avail, store.Waitlist(), producer, cache, cfg.Gaps),
		CRM:          crmSvc,
	}
}
