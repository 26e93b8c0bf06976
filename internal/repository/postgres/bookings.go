package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
)

type BookingRepo struct {
	db DB
}

const bookingColumns = `id, artist_id, client_name, client_email, client_phone,
       booking_date, start_min, duration_min, category, price_cents, deposit_cents,
       status, payment_status, payment_ref, metadata, created_at, updated_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.ArtistID, &b.ClientName, &b.ClientEmail, &b.ClientPhone,
		&b.Date, &b.StartMin, &b.DurationMin, &b.Category, &b.PriceCents, &b.DepositCents,
		&b.Status, &b.PaymentStatus, &b.PaymentRef, &b.Metadata, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Reserve inserts a new PENDING booking. The overlap check and the insert are
// one atomic unit: the bookings_no_overlap exclusion constraint rejects any
// row whose interval intersects a live (pending/confirmed) booking for the
// same artist and date, so of two racing reserves exactly one succeeds and
// the other observes repository.ErrSlotTaken.
func (r *BookingRepo) Reserve(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Reserve"

	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO bookings (id, artist_id, client_name, client_email, client_phone,
		        booking_date, start_min, duration_min, category, price_cents, deposit_cents,
		        status, payment_status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING `+bookingColumns,
		b.ID, b.ArtistID, b.ClientName, b.ClientEmail, b.ClientPhone,
		b.Date, b.StartMin, b.DurationMin, b.Category, b.PriceCents, b.DepositCents,
		b.Status, b.PaymentStatus, b.Metadata,
	)

	saved, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return saved, nil
}

// GetByID fetches one booking.
//
// Returns repository.ErrNotFound when no such booking exists.
func (r *BookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.GetByID"

	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)

	b, err := scanBooking(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

// casUpdate runs one guarded UPDATE ... RETURNING and retries a single time
// when the statement lost a deadlock or serialization race. The status guard
// makes the repeat safe: a CAS that already landed simply finds zero rows.
func (r *BookingRepo) casUpdate(ctx context.Context, sql string, args ...any) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, sql, args...))
	if err != nil && IsRetryable(err) && ctx.Err() == nil {
		b, err = scanBooking(r.db.QueryRow(ctx, sql, args...))
	}
	return b, err
}

// Transition is a guarded compare-and-swap on the lifecycle status: the
// update applies only while the current status equals from. A lost race (or
// an already-applied transition) returns repository.ErrConflict without
// mutating anything, which is what makes externally-driven transitions safe
// to deliver more than once.
func (r *BookingRepo) Transition(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Transition"

	b, err := r.casUpdate(
		ctx,
		`UPDATE bookings
		    SET status = $3, updated_at = now()
		  WHERE id = $1 AND status = $2
		 RETURNING `+bookingColumns,
		id, from, to,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

// ConfirmDeposit is the pending→confirmed CAS. It also records the external
// payment reference and flips payment_status in the same statement, so a
// winning webhook delivery leaves a fully-consistent row and every duplicate
// delivery observes repository.ErrConflict.
func (r *BookingRepo) ConfirmDeposit(ctx context.Context, id uuid.UUID, externalRef string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.ConfirmDeposit"

	b, err := r.casUpdate(
		ctx,
		`UPDATE bookings
		    SET status = $2, payment_status = $3, payment_ref = $4, updated_at = now()
		  WHERE id = $1 AND status = $5
		 RETURNING `+bookingColumns,
		id, domain.BookingConfirmed, domain.PaymentDepositPaid, externalRef, domain.BookingPending,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

// Cancel transitions a pending or confirmed booking to cancelled, recording
// the reason in metadata. Guarded the same way as Transition.
func (r *BookingRepo) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Cancel"

	b, err := r.casUpdate(
		ctx,
		`UPDATE bookings
		    SET status = $2,
		        metadata = metadata || jsonb_build_object('cancel_reason', $3::text),
		        updated_at = now()
		  WHERE id = $1 AND status IN ($4, $5)
		 RETURNING `+bookingColumns,
		id, domain.BookingCancelled, reason, domain.BookingPending, domain.BookingConfirmed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return b, nil
}

// ListOccupied returns the occupied intervals for an artist on one day,
// sorted by start. Cancelled and completed bookings do not occupy.
func (r *BookingRepo) ListOccupied(ctx context.Context, artistID string, date time.Time) ([]domain.TimeRange, error) {
	const op = "postgres.BookingRepo.ListOccupied"

	rows, err := r.db.Query(ctx,
		`SELECT start_min, duration_min
		   FROM bookings
		  WHERE artist_id = $1 AND booking_date = $2 AND status IN ($3, $4)
		  ORDER BY start_min`,
		artistID, date, domain.BookingPending, domain.BookingConfirmed,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.TimeRange
	for rows.Next() {
		var start, dur int
		if err := rows.Scan(&start, &dur); err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, domain.TimeRange{StartMin: start, EndMin: start + dur})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// ListByArtistAndDateRange returns all bookings (any status) for an artist
// between from and to inclusive, ordered by date then start.
func (r *BookingRepo) ListByArtistAndDateRange(ctx context.Context, artistID string, from, to time.Time) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListByArtistAndDateRange"

	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		   FROM bookings
		  WHERE artist_id = $1 AND booking_date BETWEEN $2 AND $3
		  ORDER BY booking_date, start_min`,
		artistID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// MarkHealingCheckSent sets the per-booking "already sent" flag. The flag
// check and the set are one statement, so concurrent sweeps agree on exactly
// one sender. Returns false when the flag was already set or the booking was
// cancelled. Both confirmed and completed bookings qualify: a session that
// happened still heals whether or not anyone pressed Complete.
func (r *BookingRepo) MarkHealingCheckSent(ctx context.Context, id uuid.UUID) (bool, error) {
	const op = "postgres.BookingRepo.MarkHealingCheckSent"

	tag, err := r.db.Exec(ctx,
		`UPDATE bookings
		    SET metadata = metadata || '{"healing_check_sent": true}'::jsonb,
		        updated_at = now()
		  WHERE id = $1 AND status = ANY($2) AND NOT (metadata ? 'healing_check_sent')`,
		id, []string{string(domain.BookingConfirmed), string(domain.BookingCompleted)},
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return tag.RowsAffected() == 1, nil
}

// ListHealingCheckDue returns confirmed or completed bookings whose date is
// on or before cutoff and which have not had their healing-check reminder
// sent.
func (r *BookingRepo) ListHealingCheckDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListHealingCheckDue"

	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		   FROM bookings
		  WHERE status = ANY($1) AND booking_date <= $2 AND NOT (metadata ? 'healing_check_sent')
		  ORDER BY booking_date
		  LIMIT $3`,
		[]string{string(domain.BookingConfirmed), string(domain.BookingCompleted)}, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// ListStalePending returns pending bookings created before cutoff, oldest
// first. The caller cancels them through the normal lifecycle path.
func (r *BookingRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListStalePending"

	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		   FROM bookings
		  WHERE status = $1 AND created_at <= $2
		  ORDER BY created_at
		  LIMIT $3`,
		domain.BookingPending, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}
