package httpgin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/inkwell-labs/tourbook/internal/service/booking"
)

// WebhookHandler applies Stripe payment events to the booking lifecycle.
// Stripe redelivers until it sees a 2xx, so every outcome that must not be
// retried (including a confirmation for a dead booking) answers 200.
type WebhookHandler struct {
	bookings *booking.Service
	secret   string
	log      *slog.Logger
}

func NewWebhookHandler(bookings *booking.Service, secret string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{bookings: bookings, secret: secret, log: log}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<16))
	if err != nil {
		badRequest(c, "unreadable payload")
		return
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.secret,
		opts,
	)
	if err != nil {
		h.log.Warn("webhook signature rejected", slog.Any("error", err))
		badRequest(c, "invalid signature")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			badRequest(c, "invalid event data")
			return
		}

		rawID, ok := intent.Metadata["booking_id"]
		if !ok {
			badRequest(c, "payment intent has no booking_id")
			return
		}
		bookingID, err := uuid.Parse(rawID)
		if err != nil {
			badRequest(c, "invalid booking_id")
			return
		}

		_, err = h.bookings.ConfirmFromPayment(c.Request.Context(), bookingID, intent.ID)
		if err != nil {
			if errors.Is(err, booking.ErrStaleConfirmation) {
				// The money arrived for a cancelled or unknown booking.
				// Acknowledge so Stripe stops retrying; the mismatch is a
				// refund conversation, not a delivery problem.
				h.log.Warn("stale payment confirmation",
					slog.String("booking_id", rawID),
					slog.String("payment_intent", intent.ID))
				c.JSON(http.StatusOK, gin.H{"status": "stale"})
				return
			}
			h.log.Error("payment confirmation failed",
				slog.String("booking_id", rawID),
				slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "confirmation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "confirmed"})

	default:
		// Unsubscribed event types are acknowledged and dropped.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	}
}
