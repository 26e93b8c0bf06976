package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// AvailabilityPubSub broadcasts artist-day invalidations so every
// instance drops its local caches when a booking lands anywhere.
type AvailabilityPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewAvailabilityPubSub(rdb *redis.Client) *AvailabilityPubSub {
	return &AvailabilityPubSub{
		rdb:     rdb,
		channel: ChannelAvailabilityChanged(),
	}
}

type availabilityChangedMsg struct {
	Type     string `json:"type"`
	ArtistID string `json:"artist_id"`
	Date     string `json:"date"`
	TsUnix   int64  `json:"ts_unix"`
}

func (p *AvailabilityPubSub) PublishDayChanged(ctx context.Context, artistID, date string) error {
	msg := availabilityChangedMsg{
		Type:     "availability_changed",
		ArtistID: artistID,
		Date:     date,
		TsUnix:   time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *AvailabilityPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, artistID, date string)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev availabilityChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.ArtistID != "" && ev.Date != "" {
				handler(ctx, ev.ArtistID, ev.Date)
			}
		}
	}
}

// AvailabilitySignal couples the cache and pub/sub halves of
// invalidation so callers fire one call per changed day.
type AvailabilitySignal struct {
	Cache  *Cache
	PubSub *AvailabilityPubSub
}

func (s *AvailabilitySignal) DayChanged(ctx context.Context, artistID, date string) error {
	if s == nil {
		return nil
	}
	if s.Cache != nil {
		if err := s.Cache.InvalidateDay(ctx, artistID, date); err != nil {
			return err
		}
	}
	if s.PubSub != nil {
		return s.PubSub.PublishDayChanged(ctx, artistID, date)
	}
	return nil
}
