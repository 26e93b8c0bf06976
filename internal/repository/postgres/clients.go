package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
)

type ClientRepo struct {
	db DB
}

const clientColumns = `email, name, phone, total_bookings, total_spent_cents,
       last_visit, tags, whatsapp_status, created_at, updated_at`

func scanClient(row pgx.Row) (*domain.ClientRecord, error) {
	var c domain.ClientRecord
	err := row.Scan(
		&c.Email, &c.Name, &c.Phone, &c.TotalBookings, &c.TotalSpentCents,
		&c.LastVisit, &c.Tags, &c.WhatsAppStatus, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyConfirmedBooking folds one confirmed booking into the client's
// aggregate record. A single upsert with increment expressions — never a
// read-then-write round trip, so concurrent confirmations for the same email
// cannot lose an increment.
func (r *ClientRepo) ApplyConfirmedBooking(ctx context.Context, b *domain.Booking) (*domain.ClientRecord, error) {
	const op = "postgres.ClientRepo.ApplyConfirmedBooking"

	row := r.db.QueryRow(ctx,
		`INSERT INTO clients (email, name, phone, total_bookings, total_spent_cents, last_visit)
		 VALUES ($1, $2, $3, 1, $4, $5)
		 ON CONFLICT (email) DO UPDATE SET
		     name              = EXCLUDED.name,
		     phone             = CASE WHEN EXCLUDED.phone <> '' THEN EXCLUDED.phone ELSE clients.phone END,
		     total_bookings    = clients.total_bookings + 1,
		     total_spent_cents = clients.total_spent_cents + EXCLUDED.total_spent_cents,
		     last_visit        = GREATEST(clients.last_visit, EXCLUDED.last_visit),
		     updated_at        = now()
		 RETURNING `+clientColumns,
		b.ClientEmail, b.ClientName, b.ClientPhone, b.PriceCents, b.Date,
	)

	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return c, nil
}

// GetByEmail fetches one client record.
//
// Returns repository.ErrNotFound when the email has no confirmed bookings yet.
func (r *ClientRepo) GetByEmail(ctx context.Context, email string) (*domain.ClientRecord, error) {
	const op = "postgres.ClientRepo.GetByEmail"

	row := r.db.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE email = $1`, email)

	c, err := scanClient(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return c, nil
}

// SetWhatsAppStatus updates the opt-in state for a client.
func (r *ClientRepo) SetWhatsAppStatus(ctx context.Context, email string, status domain.WhatsAppStatus) error {
	const op = "postgres.ClientRepo.SetWhatsAppStatus"

	tag, err := r.db.Exec(ctx,
		`UPDATE clients SET whatsapp_status = $2, updated_at = now() WHERE email = $1`,
		email, status,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// AddTag appends a freeform tag once.
func (r *ClientRepo) AddTag(ctx context.Context, email, tag string) error {
	const op = "postgres.ClientRepo.AddTag"

	_, err := r.db.Exec(ctx,
		`UPDATE clients
		    SET tags = array_append(tags, $2), updated_at = now()
		  WHERE email = $1 AND NOT ($2 = ANY(tags))`,
		email, tag,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return nil
}
