package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the statement surface the repositories run on. *pgxpool.Pool
// satisfies it in production.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the per-table repositories over one connection pool. All
// cross-request coordination happens through the statements the repositories
// issue; there is no application-level locking.
type Store struct {
	db DB
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		db: pool,
	}
}

func (s *Store) Bookings() *BookingRepo  { return &BookingRepo{db: s.db} }
func (s *Store) Clients() *ClientRepo    { return &ClientRepo{db: s.db} }
func (s *Store) Waitlist() *WaitlistRepo { return &WaitlistRepo{db: s.db} }
