package analytics

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository exposes the aggregate queries the service relies on.
type Repository interface {
	StatusCounts(ctx context.Context, scopeUserID string) (map[string]int, error)
	UrgencyCounts(ctx context.Context, scopeUserID string) (map[string]int, error)
	ActiveProviders(ctx context.Context) (int, error)
	MonthlyTrend(ctx context.Context, scopeUserID string, months int) ([]TrendPoint, error)
	TopSpecialties(ctx context.Context, scopeUserID string, limit int) ([]SpecialtyCount, error)
}

// PGRepository implements Repository over the referrals and providers tables.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func scopeClause(scopeUserID string, argPos int) (string, []interface{}) {
	if scopeUserID == "" {
		return "", nil
	}
	return fmt.Sprintf(" WHERE (referring_user_id = $%d OR provider_id = $%d)", argPos, argPos),
		[]interface{}{scopeUserID}
}

func (r *PGRepository) StatusCounts(ctx context.Context, scopeUserID string) (map[string]int, error) {
	where, args := scopeClause(scopeUserID, 1)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT status, COUNT(*) FROM referrals%s GROUP BY status`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *PGRepository) UrgencyCounts(ctx context.Context, scopeUserID string) (map[string]int, error) {
	where, args := scopeClause(scopeUserID, 1)
	rows, err := r.pool.Query(ctx,
		fmt.Sprintf(`SELECT urgency, COUNT(*) FROM referrals%s GROUP BY urgency`, where), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var urgency string
		var count int
		if err := rows.Scan(&urgency, &count); err != nil {
			return nil, err
		}
		counts[urgency] = count
	}
	return counts, rows.Err()
}

func (r *PGRepository) ActiveProviders(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM providers WHERE accepting_referrals = true`).Scan(&count)
	return count, err
}

func (r *PGRepository) MonthlyTrend(ctx context.Context, scopeUserID string, months int) ([]TrendPoint, error) {
	args := []interface{}{months}
	scope := ""
	if scopeUserID != "" {
		scope = " AND (referring_user_id = $2 OR provider_id = $2)"
		args = append(args, scopeUserID)
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month,
		       COUNT(*) AS created,
		       COUNT(*) FILTER (WHERE status = 'completed') AS completed
		FROM referrals
		WHERE created_at >= date_trunc('month', now()) - ($1 || ' months')::interval%s
		GROUP BY 1
		ORDER BY 1`, scope), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Month, &p.Created, &p.Completed); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *PGRepository) TopSpecialties(ctx context.Context, scopeUserID string, limit int) ([]SpecialtyCount, error) {
	args := []interface{}{limit}
	scope := ""
	if scopeUserID != "" {
		scope = " WHERE (referring_user_id = $2 OR provider_id = $2)"
		args = append(args, scopeUserID)
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT specialty, COUNT(*) AS count
		FROM referrals%s
		GROUP BY specialty
		ORDER BY count DESC, specialty
		LIMIT $1`, scope), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpecialtyCount
	for rows.Next() {
		var sc SpecialtyCount
		if err := rows.Scan(&sc.Specialty, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
