package authz

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements BindingStore and RoleStore on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PostgreSQL backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// GetBinding fetches the stored role/subscription assignment for a user.
func (s *PGStore) GetBinding(ctx context.Context, userID string) (StoredBinding, error) {
	var (
		binding StoredBinding
		role    string
		tier    string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, email, role_key, subscription, updated_at FROM user_bindings WHERE user_id = $1`,
		userID,
	).Scan(&binding.UserID, &binding.Email, &role, &tier, &binding.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredBinding{}, ErrBindingNotFound
		}
		return StoredBinding{}, err
	}
	binding.Role = RoleKey(role)
	binding.Subscription = Tier(tier)
	return binding, nil
}

// PutBinding upserts the assignment for a user.
func (s *PGStore) PutBinding(ctx context.Context, binding StoredBinding) error {
	if binding.UpdatedAt.IsZero() {
		binding.UpdatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_bindings (user_id, email, role_key, subscription, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET email = EXCLUDED.email, role_key = EXCLUDED.role_key,
		     subscription = EXCLUDED.subscription, updated_at = EXCLUDED.updated_at`,
		binding.UserID, binding.Email, string(binding.Role), string(binding.Subscription), binding.UpdatedAt,
	)
	return err
}

// SaveRole upserts a role definition.
func (s *PGStore) SaveRole(ctx context.Context, def RoleDefinition) error {
	perms := make([]string, len(def.Permissions))
	for i, p := range def.Permissions {
		perms[i] = string(p)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO roles (key, name, description, level, permissions, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (key) DO UPDATE
		 SET name = EXCLUDED.name, description = EXCLUDED.description,
		     level = EXCLUDED.level, permissions = EXCLUDED.permissions,
		     updated_at = NOW()`,
		string(def.Key), def.Name, def.Description, def.Level, perms,
	)
	return err
}

// DeleteRole removes a persisted role definition.
func (s *PGStore) DeleteRole(ctx context.Context, key RoleKey) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE key = $1`, string(key))
	return err
}

// LoadRoles returns all persisted role definitions.
func (s *PGStore) LoadRoles(ctx context.Context) ([]RoleDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, name, description, level, permissions FROM roles ORDER BY level DESC, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []RoleDefinition
	for rows.Next() {
		var (
			def   RoleDefinition
			key   string
			perms []string
		)
		if err := rows.Scan(&key, &def.Name, &def.Description, &def.Level, &perms); err != nil {
			return nil, err
		}
		def.Key = RoleKey(key)
		def.Permissions = make([]Permission, 0, len(perms))
		for _, p := range perms {
			if KnownPermission(Permission(p)) {
				def.Permissions = append(def.Permissions, Permission(p))
			}
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return defs, nil
}

var (
	_ BindingStore = (*PGStore)(nil)
	_ RoleStore    = (*PGStore)(nil)
)
