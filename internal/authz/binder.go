package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBindingNotFound indicates no stored binding exists for a user.
var ErrBindingNotFound = errors.New("authz: binding not found")

// Defaults applied when a user has no stored binding, or when the stored
// role key no longer exists in the catalog.
const (
	DefaultRole = RoleReferringDentist
	DefaultTier = TierStarter
)

// StoredBinding is the persisted role/subscription assignment of a user.
type StoredBinding struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         RoleKey   `json:"role"`
	Subscription Tier      `json:"subscription"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BindingStore persists role/subscription assignments.
type BindingStore interface {
	GetBinding(ctx context.Context, userID string) (StoredBinding, error)
	PutBinding(ctx context.Context, binding StoredBinding) error
}

// RootIdentity is the externally-trusted identity granted unconditional
// SUPER_ADMIN authority. It comes from configuration, never a compiled-in
// literal.
type RootIdentity struct {
	Email  string
	UserID string
}

func (r RootIdentity) matches(id Identity) bool {
	if r.Email != "" && strings.EqualFold(strings.TrimSpace(id.Email), r.Email) {
		return true
	}
	if r.UserID != "" && id.ID == r.UserID {
		return true
	}
	return false
}

// Binder resolves authenticated identities into principals and applies
// role/subscription mutations.
type Binder struct {
	catalog   *Catalog
	evaluator *Evaluator
	store     BindingStore
	cache     *redis.Client
	cacheTTL  time.Duration
	root      RootIdentity
	logger    *slog.Logger
}

// BinderConfig collects Binder dependencies.
type BinderConfig struct {
	Catalog  *Catalog
	Store    BindingStore
	Cache    *redis.Client
	CacheTTL time.Duration
	Root     RootIdentity
	Logger   *slog.Logger
}

// NewBinder constructs a Binder.
func NewBinder(cfg BinderConfig) *Binder {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Binder{
		catalog:   cfg.Catalog,
		evaluator: NewEvaluator(cfg.Catalog),
		store:     cfg.Store,
		cache:     cfg.Cache,
		cacheTTL:  ttl,
		root:      cfg.Root,
		logger:    cfg.Logger,
	}
}

// Evaluator exposes the evaluator bound to the same catalog.
func (b *Binder) Evaluator() *Evaluator {
	return b.evaluator
}

// Resolve binds an authenticated identity to a principal. The configured root
// identity always resolves to SUPER_ADMIN with the celestial tier, overriding
// any stored assignment; everyone else gets their stored binding, defaulting
// to REFERRING_DENTIST/starter.
func (b *Binder) Resolve(ctx context.Context, id Identity) (*Principal, error) {
	p := &Principal{
		UserID: id.ID,
		Email:  id.Email,
		State:  StateResolving,
	}

	if b.root.matches(id) {
		p.Role = RoleSuperAdmin
		p.Subscription = TierCelestial
		p.Permissions = b.rolePermissions(RoleSuperAdmin)
		p.State = StateResolved
		// Persist the override so downstream listings show the forced assignment.
		if err := b.persist(ctx, StoredBinding{
			UserID:       id.ID,
			Email:        id.Email,
			Role:         RoleSuperAdmin,
			Subscription: TierCelestial,
			UpdatedAt:    time.Now().UTC(),
		}); err != nil && b.logger != nil {
			b.logger.Warn("persist root binding", slog.Any("error", err))
		}
		return p, nil
	}

	binding, err := b.lookup(ctx, id.ID)
	switch {
	case errors.Is(err, ErrBindingNotFound):
		binding = StoredBinding{UserID: id.ID, Email: id.Email, Role: DefaultRole, Subscription: DefaultTier}
	case err != nil:
		return nil, fmt.Errorf("authz: resolve %s: %w", id.ID, err)
	}

	if _, ok := b.catalog.Get(binding.Role); !ok {
		// Stored role vocabulary drifted; fall back rather than fail open.
		binding.Role = DefaultRole
	}
	if !KnownTier(binding.Subscription) {
		binding.Subscription = DefaultTier
	}

	p.Role = binding.Role
	p.Subscription = binding.Subscription
	p.Permissions = b.rolePermissions(binding.Role)
	p.State = StateResolved
	return p, nil
}

// UpdateUserRole rebinds the subject to a new role. Only a SUPER_ADMIN actor
// may assign SUPER_ADMIN; all actors need the manage_users permission.
func (b *Binder) UpdateUserRole(ctx context.Context, actor *Principal, subjectID string, newRole RoleKey) error {
	if !actor.Resolved() {
		return ErrUnauthorized
	}
	if newRole == RoleSuperAdmin && !actor.IsSuperAdmin() {
		return fmt.Errorf("%w: only a super admin may assign SUPER_ADMIN", ErrUnauthorized)
	}
	if !b.evaluator.HasPermission(actor, PermManageUsers) {
		return ErrUnauthorized
	}
	if _, ok := b.catalog.Get(newRole); !ok {
		return ErrRoleNotFound
	}

	binding, err := b.lookup(ctx, subjectID)
	if errors.Is(err, ErrBindingNotFound) {
		binding = StoredBinding{UserID: subjectID, Role: DefaultRole, Subscription: DefaultTier}
	} else if err != nil {
		return err
	}
	binding.Role = newRole
	binding.UpdatedAt = time.Now().UTC()
	return b.persist(ctx, binding)
}

// UpdateSubscription rebinds the subject to a new subscription tier. The
// celestial tier is reserved for SUPER_ADMIN actors; all actors need the
// manage_billing permission.
func (b *Binder) UpdateSubscription(ctx context.Context, actor *Principal, subjectID string, tier Tier) error {
	if !actor.Resolved() {
		return ErrUnauthorized
	}
	if tier == TierCelestial && !actor.IsSuperAdmin() {
		return fmt.Errorf("%w: only a super admin may grant the celestial tier", ErrUnauthorized)
	}
	if !b.evaluator.HasPermission(actor, PermManageBilling) {
		return ErrUnauthorized
	}
	if !KnownTier(tier) {
		return fmt.Errorf("authz: unknown subscription tier %q", tier)
	}

	binding, err := b.lookup(ctx, subjectID)
	if errors.Is(err, ErrBindingNotFound) {
		binding = StoredBinding{UserID: subjectID, Role: DefaultRole, Subscription: DefaultTier}
	} else if err != nil {
		return err
	}
	binding.Subscription = tier
	binding.UpdatedAt = time.Now().UTC()
	return b.persist(ctx, binding)
}

// Invalidate drops the cached binding for a user, forcing the next Resolve to
// hit the store. Called on sign-out and after external binding changes.
func (b *Binder) Invalidate(ctx context.Context, userID string) {
	if b.cache == nil || userID == "" {
		return
	}
	if err := b.cache.Del(ctx, bindingCacheKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		if b.logger != nil {
			b.logger.Warn("invalidate binding cache", slog.Any("error", err))
		}
	}
}

func (b *Binder) rolePermissions(key RoleKey) []Permission {
	def, ok := b.catalog.Get(key)
	if !ok {
		return nil
	}
	return def.Permissions
}

func (b *Binder) lookup(ctx context.Context, userID string) (StoredBinding, error) {
	if userID == "" {
		return StoredBinding{}, ErrBindingNotFound
	}
	if b.cache != nil {
		raw, err := b.cache.Get(ctx, bindingCacheKey(userID)).Bytes()
		if err == nil {
			var cached StoredBinding
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) && b.logger != nil {
			b.logger.Warn("binding cache read", slog.Any("error", err))
		}
	}
	if b.store == nil {
		return StoredBinding{}, ErrBindingNotFound
	}
	binding, err := b.store.GetBinding(ctx, userID)
	if err != nil {
		return StoredBinding{}, err
	}
	b.cacheBinding(ctx, binding)
	return binding, nil
}

func (b *Binder) persist(ctx context.Context, binding StoredBinding) error {
	if b.store != nil {
		if err := b.store.PutBinding(ctx, binding); err != nil {
			return err
		}
	}
	// Replace atomically relative to readers: drop first, then repopulate.
	b.Invalidate(ctx, binding.UserID)
	b.cacheBinding(ctx, binding)
	return nil
}

func (b *Binder) cacheBinding(ctx context.Context, binding StoredBinding) {
	if b.cache == nil || binding.UserID == "" {
		return
	}
	data, err := json.Marshal(binding)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, bindingCacheKey(binding.UserID), data, b.cacheTTL).Err(); err != nil && b.logger != nil {
		b.logger.Warn("binding cache write", slog.Any("error", err))
	}
}

func bindingCacheKey(userID string) string {
	return "authz:binding:" + userID
}
