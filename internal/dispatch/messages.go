package dispatch

import (
	"fmt"

	"github.com/inkwell-labs/tourbook/internal/domain"
)

const (
	TopicNotifications = "tourbook.notifications"
	TopicCalendar      = "tourbook.calendar"
)

const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

const (
	TemplateBookingConfirmed = "booking_confirmed"
	TemplateBookingCancelled = "booking_cancelled"
	TemplateHealingCheck     = "healing_check"
	TemplateWaitlistMatch    = "waitlist_match"
)

// Notification is the wire shape consumed by the messaging worker. The
// worker owns template rendering; the producer only names the template
// and supplies its variables.
type Notification struct {
	Channel   string            `json:"channel"`
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Variables map[string]string `json:"variables"`
}

// CalendarPush mirrors one confirmed booking into the artist's
// external calendar.
type CalendarPush struct {
	BookingID string `json:"booking_id"`
	ArtistID  string `json:"artist_id"`
	Title     string `json:"title"`
	City      string `json:"city"`
	Timezone  string `json:"timezone"`
	Date      string `json:"date"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func confirmationVariables(b domain.Booking) map[string]string {
	return map[string]string{
		"client_name":  b.ClientName,
		"booking_date": domain.FormatDate(b.Date),
		"start_time":   domain.FormatMinute(b.StartMin),
		"category":     b.Category,
		"deposit_paid": centsToDecimal(b.DepositCents),
		"price_total":  centsToDecimal(b.PriceCents),
		"booking_ref":  b.ID.String(),
	}
}

func healingCheckVariables(b domain.Booking) map[string]string {
	return map[string]string{
		"client_name":  b.ClientName,
		"booking_date": domain.FormatDate(b.Date),
		"category":     b.Category,
	}
}

// confirmationNotifications always includes email; WhatsApp rides along
// only for clients who opted in and left a phone number.
func confirmationNotifications(b domain.Booking, whatsappOptIn bool) []Notification {
	vars := confirmationVariables(b)

	msgs := []Notification{{
		Channel:   ChannelEmail,
		Template:  TemplateBookingConfirmed,
		Recipient: b.ClientEmail,
		Variables: vars,
	}}
	if whatsappOptIn && b.ClientPhone != "" {
		msgs = append(msgs, Notification{
			Channel:   ChannelWhatsApp,
			Template:  TemplateBookingConfirmed,
			Recipient: b.ClientPhone,
			Variables: vars,
		})
	}

	return msgs
}

// healingCheckNotification prefers WhatsApp for opted-in clients with a
// phone number and falls back to email for everyone else.
func healingCheckNotification(b domain.Booking, whatsappOptIn bool) Notification {
	n := Notification{
		Channel:   ChannelEmail,
		Template:  TemplateHealingCheck,
		Recipient: b.ClientEmail,
		Variables: healingCheckVariables(b),
	}
	if whatsappOptIn && b.ClientPhone != "" {
		n.Channel = ChannelWhatsApp
		n.Recipient = b.ClientPhone
	}

	return n
}

func cancellationVariables(b domain.Booking, reason string) map[string]string {
	return map[string]string{
		"client_name":  b.ClientName,
		"booking_date": domain.FormatDate(b.Date),
		"start_time":   domain.FormatMinute(b.StartMin),
		"reason":       reason,
	}
}

func waitlistMatchVariables(e domain.WaitlistEntry, g domain.Gap) map[string]string {
	return map[string]string{
		"client_name": e.ClientName,
		"gap_date":    domain.FormatDate(g.Date),
		"gap_start":   domain.FormatMinute(g.StartMin),
		"gap_end":     domain.FormatMinute(g.EndMin),
		"city":        g.City,
	}
}

func calendarPush(b domain.Booking, city, timezone string) CalendarPush {
	r := b.Range()
	return CalendarPush{
		BookingID: b.ID.String(),
		ArtistID:  b.ArtistID,
		Title:     b.Category + " - " + b.ClientName,
		City:      city,
		Timezone:  timezone,
		Date:      domain.FormatDate(b.Date),
		Start:     domain.FormatMinute(r.StartMin),
		End:       domain.FormatMinute(r.EndMin),
	}
}

func centsToDecimal(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
