package httpgin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/inkwell-labs/tourbook/internal/domain"
	redisrepo "github.com/inkwell-labs/tourbook/internal/repository/redis"
	"github.com/inkwell-labs/tourbook/internal/schedule"
	"github.com/inkwell-labs/tourbook/internal/service"
	"github.com/inkwell-labs/tourbook/internal/service/availability"
	"github.com/inkwell-labs/tourbook/internal/service/booking"
	"github.com/inkwell-labs/tourbook/internal/service/crm"
)

func NewRouter(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
	webhook *WebhookHandler,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Availability
	r.GET("/artists/:id/availability", handleGetAvailability(svcs))
	r.GET("/artists/:id/windows", handleGetWindows(svcs))
	r.GET("/artists/:id/gaps", handleGetGaps(svcs))

	// Booking lifecycle
	r.POST("/bookings", handleCreateBooking(svcs, idem))
	r.GET("/bookings/:id", handleGetBooking(svcs))
	r.POST("/bookings/:id/cancel", handleCancelBooking(svcs))
	r.POST("/bookings/:id/complete", handleCompleteBooking(svcs))

	// Waitlist
	r.POST("/waitlist", handleJoinWaitlist(svcs))
	r.GET("/waitlist/:id/matches", handleWaitlistMatches(svcs))
	r.POST("/waitlist/:id/book", handleBookFromWaitlist(svcs))
	r.GET("/artists/:id/waitlist", handleListWaitlist(svcs))
	r.POST("/artists/:id/waitlist/sweep", handleSweepWaitlist(svcs))

	// CRM
	r.GET("/clients/:email", handleGetClient(svcs))
	r.PUT("/clients/:email/whatsapp", handleSetWhatsAppStatus(svcs))
	r.POST("/clients/:email/tags", handleAddTag(svcs))

	// Payment provider callback
	if webhook != nil {
		r.POST("/webhooks/payment", webhook.Handle)
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Free slots of one artist-day
// @Param    id            path   string  true   "Artist ID"
// @Param    date          query  string  true   "Date (YYYY-MM-DD)"
// @Param    duration_min  query  int     false  "Session length; hides slots too short for it"
// @Success  200  {object}  AvailabilityResponse
// @Failure  404  {object}  ErrorResponse  "not on tour"
// @Router   /artists/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID := c.Param("id")
		date, ok := parseDateQuery(c, "date")
		if !ok {
			return
		}
		durationMin := parseIntDefault(c.Query("duration_min"), 0)

		slots, err := svcs.Availability.AvailableSlots(c.Request.Context(), artistID, date, durationMin)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, AvailabilityResponse{
			ArtistID: artistID,
			Date:     domain.FormatDate(date),
			Slots:    toSlotResponses(slots),
		}, "public, max-age=15", true)
	}
}

// @Summary  Tour windows intersecting a date range
// @Param    id    path   string  true   "Artist ID"
// @Param    from  query  string  true   "Range start (YYYY-MM-DD)"
// @Param    to    query  string  true   "Range end (YYYY-MM-DD)"
// @Success  200  {array}   WindowResponse
// @Router   /artists/{id}/windows [get]
func handleGetWindows(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID := c.Param("id")
		from, ok := parseDateQuery(c, "from")
		if !ok {
			return
		}
		to, ok := parseDateQuery(c, "to")
		if !ok {
			return
		}
		ws, err := svcs.Availability.Windows(artistID, from, to)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toWindowResponses(ws), "public, max-age=60", true)
	}
}

// @Summary  Idle intervals worth filling, largest first
// @Param    id    path   string  true   "Artist ID"
// @Param    from  query  string  false  "Scan start (YYYY-MM-DD), default today"
// @Success  200  {array}   GapResponse
// @Router   /artists/{id}/gaps [get]
func handleGetGaps(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID := c.Param("id")

		start := time.Now().UTC().Truncate(24 * time.Hour)
		if s := c.Query("from"); s != "" {
			d, err := parseDateParam(s)
			if err != nil {
				badRequest(c, "invalid from (YYYY-MM-DD)")
				return
			}
			start = d
		}

		gs, err := svcs.Gaps.Report(c.Request.Context(), artistID, start)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, toGapResponses(gs), "public, max-age=30", true)
	}
}

// @Summary  Reserve a slot (idempotent)
// @Param    req body  CreateBookingRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} BookingResponse
// @Failure  400 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "slot taken / idem in progress"
// @Failure  422 {object} ErrorResponse "artist not in town / contact-only pricing"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /bookings [post]
func handleCreateBooking(
	svcs *service.Services,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		date, err := parseDateParam(req.Date)
		if err != nil {
			badRequest(c, "invalid date (YYYY-MM-DD)")
			return
		}
		startMin, err := domain.ParseMinute(req.Start)
		if err != nil {
			badRequest(c, "invalid start (HH:MM)")
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.ArtistID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(
					c.Request.Context(),
					idemStorageKey,
				); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(
						http.StatusCreated,
						"application/json; charset=utf-8",
						[]byte(payload),
					)
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		b, err := svcs.Booking.Create(c.Request.Context(), booking.CreateRequest{
			ArtistID:    req.ArtistID,
			ClientName:  req.ClientName,
			ClientEmail: req.ClientEmail,
			ClientPhone: req.ClientPhone,
			Date:        date,
			StartMin:    startMin,
			Category:    req.Category,
		}, rlKey)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			if errors.Is(err, booking.ErrRateLimited) {
				c.Header("Retry-After", "60")
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: "too many booking attempts"},
				)
				return
			}
			respondErr(c, err)
			return
		}

		resp := toBookingResponse(b)

		if idemStorageKey != "" && idem != nil {
			raw, _ := json.Marshal(resp)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(raw))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, resp)
	}
}

// @Summary  Get booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  404 {object} ErrorResponse
// @Router   /bookings/{id} [get]
func handleGetBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Get(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Cancel booking
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Param    req body  CancelBookingRequest false "payload"
// @Success  200 {object} BookingResponse
// @Failure  409 {object} ErrorResponse "already completed or cancelled"
// @Router   /bookings/{id}/cancel [post]
func handleCancelBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req CancelBookingRequest
		_ = c.ShouldBindJSON(&req)
		if req.Reason == "" {
			req.Reason = "client request"
		}

		b, err := svcs.Booking.Cancel(c.Request.Context(), id, req.Reason)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Mark session done
// @Param    id  path  string  true  "Booking ID (uuid)"
// @Success  200 {object} BookingResponse
// @Failure  409 {object} ErrorResponse "not confirmed"
// @Router   /bookings/{id}/complete [post]
func handleCompleteBooking(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		b, err := svcs.Booking.Complete(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toBookingResponse(b))
	}
}

// @Summary  Join waitlist
// @Param    req body  JoinWaitlistRequest true "payload"
// @Success  201 {object} WaitlistEntryResponse
// @Router   /waitlist [post]
func handleJoinWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req JoinWaitlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		from, err := parseDateParam(req.DateFrom)
		if err != nil {
			badRequest(c, "invalid date_from (YYYY-MM-DD)")
			return
		}
		to, err := parseDateParam(req.DateTo)
		if err != nil {
			badRequest(c, "invalid date_to (YYYY-MM-DD)")
			return
		}

		e := &domain.WaitlistEntry{
			ArtistID:    req.ArtistID,
			ClientName:  req.ClientName,
			ClientEmail: req.ClientEmail,
			ClientPhone: req.ClientPhone,
			DateFrom:    from,
			DateTo:      to,
			DurationMin: req.DurationMin,
		}
		if req.PreferredStart != "" {
			m, err := domain.ParseMinute(req.PreferredStart)
			if err != nil {
				badRequest(c, "invalid preferred_start (HH:MM)")
				return
			}
			e.PreferredStartMin = &m
		}

		saved, err := svcs.Booking.JoinWaitlist(c.Request.Context(), e)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toWaitlistEntryResponse(saved))
	}
}

// @Summary  Gaps that could satisfy a waitlist entry
// @Param    id  path  string  true  "Waitlist entry ID (uuid)"
// @Success  200 {array}  GapResponse
// @Failure  404 {object} ErrorResponse
// @Router   /waitlist/{id}/matches [get]
func handleWaitlistMatches(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		entry, err := svcs.Booking.GetWaitlistEntry(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		gs, err := svcs.Gaps.MatchesFor(c.Request.Context(), *entry)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toGapResponses(gs))
	}
}

// @Summary  Convert a waitlist entry into a booking
// @Param    id  path  string  true  "Waitlist entry ID (uuid)"
// @Param    req body  BookFromWaitlistRequest true "payload"
// @Success  201 {object} BookingResponse
// @Failure  409 {object} ErrorResponse "slot taken"
// @Failure  422 {object} ErrorResponse "date outside the entry's range"
// @Router   /waitlist/{id}/book [post]
func handleBookFromWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUUIDParam(c, "id")
		if !ok {
			return
		}
		var req BookFromWaitlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		d, err := parseDateParam(req.Date)
		if err != nil {
			badRequest(c, "invalid date (YYYY-MM-DD)")
			return
		}
		startMin, err := domain.ParseMinute(req.Start)
		if err != nil {
			badRequest(c, "invalid start (HH:MM)")
			return
		}

		b, err := svcs.Booking.CreateFromWaitlist(c.Request.Context(), id, d, startMin, req.Category)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, toBookingResponse(b))
	}
}

// @Summary  Open waitlist entries
// @Param    id     path   string  true   "Artist ID"
// @Param    limit  query  int     false  "page size"
// @Success  200  {array}  WaitlistEntryResponse
// @Router   /artists/{id}/waitlist [get]
func handleListWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID := c.Param("id")
		limit := parseIntDefault(c.Query("limit"), 100)

		entries, err := svcs.Booking.OpenWaitlist(c.Request.Context(), artistID, limit)
		if err != nil {
			respondErr(c, err)
			return
		}

		out := make([]WaitlistEntryResponse, 0, len(entries))
		for i := range entries {
			out = append(out, toWaitlistEntryResponse(&entries[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary  Match open waitlist entries against current gaps
// @Param    id  path  string  true  "Artist ID"
// @Success  200 {object} map[string]int
// @Router   /artists/{id}/waitlist/sweep [post]
func handleSweepWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		artistID := c.Param("id")

		matched, err := svcs.Gaps.SweepWaitlist(c.Request.Context(), artistID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"matched": matched})
	}
}

// @Summary  Client CRM profile
// @Param    email  path  string  true  "Client email"
// @Success  200 {object} ClientResponse
// @Failure  404 {object} ErrorResponse
// @Router   /clients/{email} [get]
func handleGetClient(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := svcs.CRM.GetClient(c.Request.Context(), c.Param("email"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, toClientResponse(rec))
	}
}

// @Summary  Set WhatsApp opt-in status
// @Param    email  path  string  true  "Client email"
// @Param    req    body  SetWhatsAppStatusRequest true "payload"
// @Success  204
// @Router   /clients/{email}/whatsapp [put]
func handleSetWhatsAppStatus(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetWhatsAppStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		err := svcs.CRM.SetWhatsAppStatus(
			c.Request.Context(),
			c.Param("email"),
			domain.WhatsAppStatus(req.Status),
		)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Tag a client
// @Param    email  path  string  true  "Client email"
// @Param    req    body  AddTagRequest true "payload"
// @Success  204
// @Router   /clients/{email}/tags [post]
func handleAddTag(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddTagRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if err := svcs.CRM.AddTag(c.Request.Context(), c.Param("email"), req.Tag); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Helpers ---

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseDateQuery(c *gin.Context, name string) (time.Time, bool) {
	d, err := parseDateParam(c.Query(name))
	if err != nil {
		badRequest(c, "invalid "+name+" (YYYY-MM-DD)")
		return time.Time{}, false
	}
	return d, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var cfgErr *schedule.ConfigError

	switch {
	// booking service
	case errors.Is(err, booking.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "booking not found"})
	case errors.Is(err, booking.ErrSlotTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "slot taken"})
	case errors.Is(err, booking.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid state transition"})
	case errors.Is(err, booking.ErrArtistNotPresent):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "artist is not in town on that date"})
	case errors.Is(err, booking.ErrPricingUnavailable):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "category requires direct contact"})
	case errors.Is(err, booking.ErrWaitlistNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "waitlist entry not found"})
	case errors.Is(err, booking.ErrOutsideRange):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "date falls outside the requested range"})
	// schedule config
	case errors.Is(err, schedule.ErrUnknownCategory):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown category"})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: cfgErr.Error()})
	// availability service
	case errors.Is(err, availability.ErrNotOnTour):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "artist is not on tour on that date"})
	// crm service
	case errors.Is(err, crm.ErrClientNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "client not found"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
