package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/molarlink/molarlink/internal/shared"
)

// Repository defines persistence operations for the provider directory.
type Repository interface {
	Create(ctx context.Context, p Provider) error
	GetByID(ctx context.Context, id string) (*Provider, error)
	List(ctx context.Context, req ListProvidersRequest) ([]Provider, int, error)
	Update(ctx context.Context, p Provider) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const providerColumns = `id, user_id, name, practice_name, specialty, city, state,
       phone, email, accepting_referrals, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, p Provider) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (id, user_id, name, practice_name, specialty, city, state,
		                       phone, email, accepting_referrals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, textOrNull(p.UserID), p.Name, p.PracticeName, p.Specialty, p.City, p.State,
		textOrNull(p.Phone), textOrNull(p.Email), p.AcceptingReferrals,
		pgtype.Timestamptz{Time: p.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: p.UpdatedAt, Valid: true},
	)
	return err
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*Provider, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM providers WHERE id = $1`, providerColumns), id)
	p, err := scanProvider(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *PGRepository) List(ctx context.Context, req ListProvidersRequest) ([]Provider, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Specialty != nil {
		conditions = append(conditions, fmt.Sprintf("specialty ILIKE $%d", argPos))
		args = append(args, *req.Specialty)
		argPos++
	}

	if req.City != nil {
		conditions = append(conditions, fmt.Sprintf("city ILIKE $%d", argPos))
		args = append(args, *req.City)
		argPos++
	}

	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR practice_name ILIKE $%d OR specialty ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, pattern)
		argPos++
	}

	if req.AcceptingOnly {
		conditions = append(conditions, "accepting_referrals = true")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM providers %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM providers
		%s
		ORDER BY name, id
		LIMIT $%d OFFSET $%d
	`, providerColumns, whereClause, argPos, argPos+1)

	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Update(ctx context.Context, p Provider) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE providers
		SET name = $2, practice_name = $3, specialty = $4, city = $5, state = $6,
		    phone = $7, email = $8, accepting_referrals = $9, updated_at = $10
		WHERE id = $1`,
		p.ID, p.Name, p.PracticeName, p.Specialty, p.City, p.State,
		textOrNull(p.Phone), textOrNull(p.Email), p.AcceptingReferrals,
		pgtype.Timestamptz{Time: p.UpdatedAt, Valid: true},
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var userID, phone, email pgtype.Text
	err := row.Scan(
		&p.ID, &userID, &p.Name, &p.PracticeName, &p.Specialty, &p.City, &p.State,
		&phone, &email, &p.AcceptingReferrals, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		val := userID.String
		p.UserID = &val
	}
	if phone.Valid {
		val := phone.String
		p.Phone = &val
	}
	if email.Valid {
		val := email.String
		p.Email = &val
	}
	return &p, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

var _ Repository = (*PGRepository)(nil)
