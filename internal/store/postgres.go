package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fixitnow/bookings/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable BookingStore. Optimistic concurrency is
// enforced by the version guard on UPDATE: the statement matches zero
// rows when another writer got there first.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `CREATE TABLE IF NOT EXISTS bookings (
	id              TEXT PRIMARY KEY,
	requester_id    TEXT NOT NULL,
	provider_id     TEXT NOT NULL,
	service_id      TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	scheduled_at    TIMESTAMPTZ NOT NULL,
	address         TEXT NOT NULL,
	estimated_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_price     DOUBLE PRECISION,
	version         BIGINT NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	accepted_at     TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ
)`

// EnsureSchema creates the bookings table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

const bookingCols = `id, requester_id, provider_id, service_id,
title, description, status,
scheduled_at, address, estimated_price, final_price,
version, created_at, updated_at, accepted_at, completed_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.RequesterID, &b.ProviderID, &b.ServiceID,
		&b.Title, &b.Description, &b.Status,
		&b.ScheduledAt, &b.Address, &b.EstimatedPrice, &b.FinalPrice,
		&b.Version, &b.CreatedAt, &b.UpdatedAt, &b.AcceptedAt, &b.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	b, err := scanBooking(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	const q = `INSERT INTO bookings (
		id, requester_id, provider_id, service_id,
		title, description, status,
		scheduled_at, address, estimated_price, final_price,
		version, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (id) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(ctx, q,
		b.ID, b.RequesterID, b.ProviderID, b.ServiceID,
		b.Title, b.Description, b.Status,
		b.ScheduledAt, b.Address, b.EstimatedPrice, b.FinalPrice,
		b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrConflict
	}
	return b.Clone(), nil
}

func (s *PostgresStore) ConditionalUpdate(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, domain.ErrVersionConflict
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	// The version guard makes this the sole serialization point: a
	// concurrent writer that committed first leaves this statement
	// matching zero rows.
	const q = `UPDATE bookings SET
		status=$3, final_price=$4, accepted_at=$5, completed_at=$6,
		version=version+1, updated_at=now()
	WHERE id=$1 AND version=$2
	RETURNING ` + bookingCols

	updated, err := scanBooking(s.pool.QueryRow(ctx, q,
		id, expectedVersion,
		next.Status, next.FinalPrice, next.AcceptedAt, next.CompletedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrVersionConflict
	}
	return updated, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if f.RequesterID != "" {
		args = append(args, f.RequesterID)
		where = append(where, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if f.ProviderID != "" {
		args = append(args, f.ProviderID)
		where = append(where, fmt.Sprintf("provider_id=$%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}

	q := `SELECT ` + bookingCols + ` FROM bookings`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
