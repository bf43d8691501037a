package billing

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines persistence operations for billing records.
type Repository interface {
	ListInvoices(ctx context.Context, userID string, limit int) ([]Invoice, error)
	InsertInvoice(ctx context.Context, inv Invoice) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListInvoices(ctx context.Context, userID string, limit int) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, tier, amount_cents, status, issued_at, paid_at
		FROM invoices
		WHERE user_id = $1
		ORDER BY issued_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		var inv Invoice
		var paidAt pgtype.Timestamptz
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.Tier, &inv.AmountCents, &inv.Status, &inv.IssuedAt, &paidAt); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			val := paidAt.Time
			inv.PaidAt = &val
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PGRepository) InsertInvoice(ctx context.Context, inv Invoice) error {
	var paidAt pgtype.Timestamptz
	if inv.PaidAt != nil {
		paidAt = pgtype.Timestamptz{Time: inv.PaidAt.UTC(), Valid: true}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invoices (id, user_id, tier, amount_cents, status, issued_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.UserID, string(inv.Tier), inv.AmountCents, inv.Status,
		pgtype.Timestamptz{Time: inv.IssuedAt.UTC(), Valid: true}, paidAt,
	)
	return err
}

var _ Repository = (*PGRepository)(nil)
