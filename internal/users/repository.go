package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/molarlink/molarlink/internal/authz"
)

// Repository defines persistence operations for user administration.
type Repository interface {
	List(ctx context.Context, req ListAccountsRequest) ([]Account, int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) List(ctx context.Context, req ListAccountsRequest) ([]Account, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.Role != nil {
		conditions = append(conditions, fmt.Sprintf("b.role_key = $%d", argPos))
		args = append(args, *req.Role)
		argPos++
	}

	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		conditions = append(conditions, fmt.Sprintf("(u.email ILIKE $%d OR u.name ILIKE $%d)", argPos, argPos))
		args = append(args, pattern)
		argPos++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM users u
		LEFT JOIN user_bindings b ON b.user_id = u.id
		%s`, whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT u.id, u.email, u.name, u.is_active, b.role_key, b.subscription, u.created_at
		FROM users u
		LEFT JOIN user_bindings b ON b.user_id = u.id
		%s
		ORDER BY u.created_at DESC, u.id
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var acc Account
		var role, tier pgtype.Text
		if err := rows.Scan(&acc.ID, &acc.Email, &acc.Name, &acc.IsActive, &role, &tier, &acc.CreatedAt); err != nil {
			return nil, 0, err
		}
		acc.Role = authz.DefaultRole
		if role.Valid {
			acc.Role = authz.RoleKey(role.String)
		}
		acc.Subscription = authz.DefaultTier
		if tier.Valid {
			acc.Subscription = authz.Tier(tier.String)
		}
		out = append(out, acc)
	}
	return out, total, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
