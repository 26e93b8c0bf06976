package httpgin

import (
	"time"

	"github.com/inkwell-labs/tourbook/internal/domain"
)

type CreateBookingRequest struct {
	ArtistID    string `json:"artist_id" binding:"required"`
	ClientName  string `json:"client_name" binding:"required"`
	ClientEmail string `json:"client_email" binding:"required,email"`
	ClientPhone string `json:"client_phone"`
	Date        string `json:"date" binding:"required"`
	Start       string `json:"start" binding:"required"`
	Category    string `json:"category" binding:"required"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type JoinWaitlistRequest struct {
	ArtistID       string `json:"artist_id" binding:"required"`
	ClientName     string `json:"client_name" binding:"required"`
	ClientEmail    string `json:"client_email" binding:"required,email"`
	ClientPhone    string `json:"client_phone"`
	DateFrom       string `json:"date_from" binding:"required"`
	DateTo         string `json:"date_to" binding:"required"`
	DurationMin    int    `json:"duration_min" binding:"required,gt=0"`
	PreferredStart string `json:"preferred_start"`
}

type BookFromWaitlistRequest struct {
	Date     string `json:"date" binding:"required"`
	Start    string `json:"start" binding:"required"`
	Category string `json:"category" binding:"required"`
}

type SetWhatsAppStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=unknown opted_in opted_out"`
}

type AddTagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type BookingResponse struct {
	ID            string `json:"id"`
	ArtistID      string `json:"artist_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email"`
	Date          string `json:"date"`
	Start         string `json:"start"`
	End           string `json:"end"`
	Category      string `json:"category"`
	PriceCents    int64  `json:"price_cents"`
	DepositCents  int64  `json:"deposit_cents"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	r := b.Range()
	return BookingResponse{
		ID:            b.ID.String(),
		ArtistID:      b.ArtistID,
		ClientName:    b.ClientName,
		ClientEmail:   b.ClientEmail,
		Date:          domain.FormatDate(b.Date),
		Start:         domain.FormatMinute(r.StartMin),
		End:           domain.FormatMinute(r.EndMin),
		Category:      b.Category,
		PriceCents:    b.PriceCents,
		DepositCents:  b.DepositCents,
		Status:        string(b.Status),
		PaymentStatus: string(b.PaymentStatus),
	}
}

type SlotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toSlotResponses(rs []domain.TimeRange) []SlotResponse {
	out := make([]SlotResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, SlotResponse{
			Start: domain.FormatMinute(r.StartMin),
			End:   domain.FormatMinute(r.EndMin),
		})
	}
	return out
}

type AvailabilityResponse struct {
	ArtistID string         `json:"artist_id"`
	Date     string         `json:"date"`
	Slots    []SlotResponse `json:"slots"`
}

type WindowResponse struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
	From     string `json:"from"`
	To       string `json:"to"`
}

func toWindowResponses(ws []domain.TourWindow) []WindowResponse {
	out := make([]WindowResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, WindowResponse{
			Country:  w.Country,
			City:     w.City,
			Timezone: w.Timezone,
			From:     domain.FormatDate(w.From),
			To:       domain.FormatDate(w.To),
		})
	}
	return out
}

type GapResponse struct {
	Date    string `json:"date"`
	City    string `json:"city"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Minutes int    `json:"minutes"`
}

func toGapResponses(gs []domain.Gap) []GapResponse {
	out := make([]GapResponse, 0, len(gs))
	for _, g := range gs {
		out = append(out, GapResponse{
			Date:    domain.FormatDate(g.Date),
			City:    g.City,
			Start:   domain.FormatMinute(g.StartMin),
			End:     domain.FormatMinute(g.EndMin),
			Minutes: g.Minutes(),
		})
	}
	return out
}

type WaitlistEntryResponse struct {
	ID             string `json:"id"`
	ArtistID       string `json:"artist_id"`
	ClientName     string `json:"client_name"`
	DateFrom       string `json:"date_from"`
	DateTo         string `json:"date_to"`
	DurationMin    int    `json:"duration_min"`
	PreferredStart string `json:"preferred_start,omitempty"`
	Status         string `json:"status"`
}

func toWaitlistEntryResponse(e *domain.WaitlistEntry) WaitlistEntryResponse {
	resp := WaitlistEntryResponse{
		ID:          e.ID.String(),
		ArtistID:    e.ArtistID,
		ClientName:  e.ClientName,
		DateFrom:    domain.FormatDate(e.DateFrom),
		DateTo:      domain.FormatDate(e.DateTo),
		DurationMin: e.DurationMin,
		Status:      string(e.Status),
	}
	if e.PreferredStartMin != nil {
		resp.PreferredStart = domain.FormatMinute(*e.PreferredStartMin)
	}
	return resp
}

type ClientResponse struct {
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Phone           string   `json:"phone"`
	TotalBookings   int      `json:"total_bookings"`
	TotalSpentCents int64    `json:"total_spent_cents"`
	LastVisit       string   `json:"last_visit,omitempty"`
	Tags            []string `json:"tags"`
	WhatsAppStatus  string   `json:"whatsapp_status"`
}

func toClientResponse(rec *domain.ClientRecord) ClientResponse {
	resp := ClientResponse{
		Email:           rec.Email,
		Name:            rec.Name,
		Phone:           rec.Phone,
		TotalBookings:   rec.TotalBookings,
		TotalSpentCents: rec.TotalSpentCents,
		Tags:            rec.Tags,
		WhatsAppStatus:  string(rec.WhatsAppStatus),
	}
	if rec.LastVisit != nil {
		resp.LastVisit = domain.FormatDate(*rec.LastVisit)
	}
	return resp
}

func parseDateParam(s string) (time.Time, error) {
	return domain.ParseDate(s)
}
