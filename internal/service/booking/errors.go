package booking

import "errors"

var (
	ErrSlotTaken          = errors.New("requested slot is taken")
	ErrArtistNotPresent   = errors.New("artist is not in town on that date")
	ErrPricingUnavailable = errors.New("category requires direct contact for pricing")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrInvalidTransition  = errors.New("invalid booking state transition")
	ErrStaleConfirmation  = errors.New("payment confirmation arrived for a dead booking")
	ErrWaitlistNotFound   = errors.New("waitlist entry not found")
	ErrOutsideRange       = errors.New("date falls outside the requested range")
	ErrRateLimited        = errors.New("too many booking attempts")
)
