package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inkwell-labs/tourbook/internal/domain"
	"github.com/inkwell-labs/tourbook/internal/repository"
)

type WaitlistRepo struct {
	db DB
}

const waitlistColumns = `id, artist_id, client_name, client_email, client_phone,
       date_from, date_to, duration_min, preferred_start_min, status,
       created_at, matched_at`

func scanWaitlistEntry(row pgx.Row) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.ArtistID, &e.ClientName, &e.ClientEmail, &e.ClientPhone,
		&e.DateFrom, &e.DateTo, &e.DurationMin, &e.PreferredStartMin, &e.Status,
		&e.CreatedAt, &e.MatchedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WaitlistRepo) Create(ctx context.Context, e *domain.WaitlistEntry) (*domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.Create"

	row := r.db.QueryRow(ctx,
		`INSERT INTO waitlist (id, artist_id, client_name, client_email, client_phone,
		        date_from, date_to, duration_min, preferred_start_min, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+waitlistColumns,
		e.ID, e.ArtistID, e.ClientName, e.ClientEmail, e.ClientPhone,
		e.DateFrom, e.DateTo, e.DurationMin, e.PreferredStartMin, e.Status,
	)

	saved, err := scanWaitlistEntry(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return saved, nil
}

func (r *WaitlistRepo) Get(ctx context.Context, id uuid.UUID) (*domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.Get"

	row := r.db.QueryRow(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist WHERE id = $1`, id)

	e, err := scanWaitlistEntry(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return e, nil
}

// ListOpen returns open entries for an artist, oldest request first.
func (r *WaitlistRepo) ListOpen(ctx context.Context, artistID string, limit int) ([]domain.WaitlistEntry, error) {
	const op = "postgres.WaitlistRepo.ListOpen"

	rows, err := r.db.Query(ctx,
		`SELECT `+waitlistColumns+`
		   FROM waitlist
		  WHERE artist_id = $1 AND status = $2
		  ORDER BY created_at
		  LIMIT $3`,
		artistID, domain.WaitlistOpen, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	defer rows.Close()

	var out []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateDBErr(err))
	}

	return out, nil
}

// MarkMatched flips an open entry to matched. Guarded on the open status so
// two conversions of the same entry cannot both claim it.
func (r *WaitlistRepo) MarkMatched(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.WaitlistRepo.MarkMatched"

	tag, err := r.db.Exec(ctx,
		`UPDATE waitlist
		    SET status = $2, matched_at = now()
		  WHERE id = $1 AND status = $3`,
		id, domain.WaitlistMatched, domain.WaitlistOpen,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, translateDBErr(err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}

	return nil
}
