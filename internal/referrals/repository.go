package referrals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/molarlink/molarlink/internal/shared"
)

// Repository defines persistence operations for referrals.
type Repository interface {
	Create(ctx context.Context, ref Referral) error
	GetByID(ctx context.Context, id string) (*Referral, error)
	List(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error)
	Update(ctx context.Context, ref Referral) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const referralColumns = `id, patient_name, patient_email, referring_user_id, provider_id,
       specialty, tooth_number, urgency, status, notes, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, ref Referral) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO referrals (id, patient_name, patient_email, referring_user_id, provider_id,
		                       specialty, tooth_number, urgency, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		ref.ID, ref.PatientName, textOrNull(ref.PatientEmail), ref.ReferringUserID, ref.ProviderID,
		ref.Specialty, intOrNull(ref.ToothNumber), string(ref.Urgency), string(ref.Status),
		textOrNull(ref.Notes),
		pgtype.Timestamptz{Time: ref.CreatedAt, Valid: true},
		pgtype.Timestamptz{Time: ref.UpdatedAt, Valid: true},
	)
	return err
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*Referral, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM referrals WHERE id = $1`, referralColumns), id)
	ref, err := scanReferral(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *PGRepository) List(ctx context.Context, req ListReferralsRequest) ([]Referral, int, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.ScopeUserID != "" {
		conditions = append(conditions, fmt.Sprintf("(referring_user_id = $%d OR provider_id = $%d)", argPos, argPos))
		args = append(args, req.ScopeUserID)
		argPos++
	}

	if req.ReferringUserID != "" {
		conditions = append(conditions, fmt.Sprintf("referring_user_id = $%d", argPos))
		args = append(args, req.ReferringUserID)
		argPos++
	}

	if req.ProviderID != nil {
		conditions = append(conditions, fmt.Sprintf("provider_id = $%d", argPos))
		args = append(args, *req.ProviderID)
		argPos++
	}

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, string(*req.Status))
		argPos++
	}

	if req.Search != nil && *req.Search != "" {
		pattern := "%" + *req.Search + "%"
		conditions = append(conditions, fmt.Sprintf("(patient_name ILIKE $%d OR specialty ILIKE $%d)", argPos, argPos))
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

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM referrals %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM referrals
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, referralColumns, whereClause, argPos, argPos+1)

	args = append(args, req.Limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *ref)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Update(ctx context.Context, ref Referral) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE referrals
		SET patient_name = $2, patient_email = $3, specialty = $4, tooth_number = $5,
		    urgency = $6, notes = $7, updated_at = $8
		WHERE id = $1`,
		ref.ID, ref.PatientName, textOrNull(ref.PatientEmail), ref.Specialty,
		intOrNull(ref.ToothNumber), string(ref.Urgency), textOrNull(ref.Notes),
		pgtype.Timestamptz{Time: ref.UpdatedAt, Valid: true},
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE referrals SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM referrals WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountForUserSince counts referrals a user has created since a cutoff. Used
// for quota enforcement over the current billing window.
func (r *PGRepository) CountForUserSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referring_user_id = $1 AND created_at >= $2`,
		userID, pgtype.Timestamptz{Time: since, Valid: true},
	).Scan(&count)
	return count, err
}

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	var email, notes pgtype.Text
	var tooth pgtype.Int4
	err := row.Scan(
		&ref.ID, &ref.PatientName, &email, &ref.ReferringUserID, &ref.ProviderID,
		&ref.Specialty, &tooth, &ref.Urgency, &ref.Status, &notes,
		&ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if email.Valid {
		val := email.String
		ref.PatientEmail = &val
	}
	if tooth.Valid {
		val := int(tooth.Int32)
		ref.ToothNumber = &val
	}
	if notes.Valid {
		val := notes.String
		ref.Notes = &val
	}
	return &ref, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func intOrNull(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}

var _ Repository = (*PGRepository)(nil)
