package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/inkwell-labs/tourbook/internal/domain"
)

// Producer fans booking side effects out to the notification and
// calendar topics. Publishing retries with exponential backoff so a
// broker hiccup does not drop a confirmation.
type Producer struct {
	notifications *kafka.Writer
	calendar      *kafka.Writer
	log           *slog.Logger
}

func NewProducer(brokers []string, log *slog.Logger) *Producer {
	return &Producer{
		notifications: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    TopicNotifications,
			Balancer: &kafka.Hash{},
		},
		calendar: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    TopicCalendar,
			Balancer: &kafka.Hash{},
		},
		log: log,
	}
}

func (p *Producer) Close() error {
	const op = "dispatch.Producer.Close"

	if err := p.notifications.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := p.calendar.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// EnqueueConfirmation notifies the client by email and, when they opted
// into WhatsApp and a phone number is on file, by WhatsApp as well.
func (p *Producer) EnqueueConfirmation(ctx context.Context, b domain.Booking, whatsappOptIn bool) error {
	const op = "dispatch.Producer.EnqueueConfirmation"

	msgs := confirmationNotifications(b, whatsappOptIn)

	if err := p.publishNotifications(ctx, b.ID.String(), msgs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) EnqueueCancellation(ctx context.Context, b domain.Booking, reason string) error {
	const op = "dispatch.Producer.EnqueueCancellation"

	err := p.publishNotifications(ctx, b.ID.String(), Notification{
		Channel:   ChannelEmail,
		Template:  TemplateBookingCancelled,
		Recipient: b.ClientEmail,
		Variables: cancellationVariables(b, reason),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// EnqueueHealingCheck prefers WhatsApp for clients who opted in and have a
// phone number; everyone else gets the reminder by email.
func (p *Producer) EnqueueHealingCheck(ctx context.Context, b domain.Booking, whatsappOptIn bool) error {
	const op = "dispatch.Producer.EnqueueHealingCheck"

	n := healingCheckNotification(b, whatsappOptIn)

	if err := p.publishNotifications(ctx, b.ID.String(), n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) EnqueueWaitlistMatch(ctx context.Context, e domain.WaitlistEntry, g domain.Gap) error {
	const op = "dispatch.Producer.EnqueueWaitlistMatch"

	err := p.publishNotifications(ctx, e.ID.String(), Notification{
		Channel:   ChannelEmail,
		Template:  TemplateWaitlistMatch,
		Recipient: e.ClientEmail,
		Variables: waitlistMatchVariables(e, g),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) EnqueueCalendarPush(ctx context.Context, b domain.Booking, city, timezone string) error {
	const op = "dispatch.Producer.EnqueueCalendarPush"

	push := calendarPush(b, city, timezone)

	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.write(ctx, p.calendar, kafka.Message{
		Key:   []byte(push.ArtistID),
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Producer) publishNotifications(ctx context.Context, key string, msgs ...Notification) error {
	kmsgs := make([]kafka.Message, 0, len(msgs))
	for _, n := range msgs {
		body, err := json.Marshal(n)
		if err != nil {
			return err
		}
		kmsgs = append(kmsgs, kafka.Message{
			Key:   []byte(key),
			Value: body,
		})
	}

	return p.write(ctx, p.notifications, kmsgs...)
}

func (p *Producer) write(ctx context.Context, w *kafka.Writer, msgs ...kafka.Message) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMaxInterval(2*time.Second),
		), 4), ctx)

	err := backoff.Retry(func() error {
		return w.WriteMessages(ctx, msgs...)
	}, bo)
	if err != nil {
		p.log.Error("kafka publish failed",
			slog.String("topic", w.Topic),
			slog.Any("error", err))
		return err
	}

	return nil
}
