// Package authz implements the role and permission authorization model: a
// role catalog, a pure permission evaluator, principal binding and the access
// guard used by every protected HTTP surface.
package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// RoleKey identifies a role in the catalog.
type RoleKey string

// Built-in roles, ordered by authority level.
const (
	RoleSuperAdmin       RoleKey = "SUPER_ADMIN"
	RoleDentistAdmin     RoleKey = "DENTIST_ADMIN"
	RoleDentalSpecialist RoleKey = "DENTAL_SPECIALIST"
	RoleReferringDentist RoleKey = "REFERRING_DENTIST"
	RoleOfficeManager    RoleKey = "OFFICE_MANAGER"
	RoleBillingStaff     RoleKey = "BILLING_STAFF"
	RolePatient          RoleKey = "PATIENT"
)

// Authority levels are bounded; the catalog rejects definitions outside the range.
const (
	MinLevel = 1
	MaxLevel = 7
)

var (
	ErrRoleNotFound       = errors.New("authz: role not found")
	ErrRoleExists         = errors.New("authz: role already exists")
	ErrRoleImmutable      = errors.New("authz: role is not editable")
	ErrLevelOutOfRange    = fmt.Errorf("authz: role level must be between %d and %d", MinLevel, MaxLevel)
	ErrUnknownPermission  = errors.New("authz: unknown permission")
	ErrUnauthorized       = errors.New("authz: unauthorized")
	ErrCatalogUnavailable = errors.New("authz: role catalog unavailable")
)

// RoleDefinition describes a role: display name, authority level and the
// permission grants copied into principals bound to it.
type RoleDefinition struct {
	Key         RoleKey      `json:"key"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Level       int          `json:"level"`
	Permissions []Permission `json:"permissions"`
}

// HasPermission reports whether the definition grants perm. This is a plain
// set lookup; the SUPER_ADMIN bypass lives in the evaluator, not here.
func (d RoleDefinition) HasPermission(perm Permission) bool {
	for _, p := range d.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

func (d RoleDefinition) clone() RoleDefinition {
	perms := make([]Permission, len(d.Permissions))
	copy(perms, d.Permissions)
	d.Permissions = perms
	return d
}

// RoleStore persists catalog mutations. Mutations are applied write-through:
// the in-memory registry only changes after the store accepted the write.
type RoleStore interface {
	SaveRole(ctx context.Context, def RoleDefinition) error
	DeleteRole(ctx context.Context, key RoleKey) error
	LoadRoles(ctx context.Context) ([]RoleDefinition, error)
}

// Catalog is the single source of truth for role definitions. Reads return
// snapshots so an evaluator decision never observes a half-applied mutation.
type Catalog struct {
	mu    sync.RWMutex
	roles map[RoleKey]RoleDefinition
	order []RoleKey
	store RoleStore
}

// NewCatalog builds a catalog seeded with the built-in roles.
func NewCatalog(store RoleStore) *Catalog {
	c := &Catalog{
		roles: make(map[RoleKey]RoleDefinition),
		store: store,
	}
	for _, def := range builtinRoles() {
		c.roles[def.Key] = def
		c.order = append(c.order, def.Key)
	}
	return c
}

// LoadPersisted overlays previously persisted definitions onto the built-in
// seed. Persisted edits to SUPER_ADMIN are ignored; that role is immutable.
func (c *Catalog) LoadPersisted(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	persisted, err := c.store.LoadRoles(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, def := range persisted {
		if def.Key == RoleSuperAdmin {
			continue
		}
		if _, exists := c.roles[def.Key]; !exists {
			c.order = append(c.order, def.Key)
		}
		c.roles[def.Key] = def.clone()
	}
	return nil
}

// Get returns the definition for key.
func (c *Catalog) Get(key RoleKey) (RoleDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.roles[key]
	if !ok {
		return RoleDefinition{}, false
	}
	return def.clone(), true
}

// List returns all definitions in insertion order, for display.
func (c *Catalog) List() []RoleDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RoleDefinition, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.roles[key].clone())
	}
	return out
}

// ListByAuthority returns all definitions sorted by level descending.
func (c *Catalog) ListByAuthority() []RoleDefinition {
	out := c.List()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level > out[j].Level })
	return out
}

// Create adds a new role definition.
func (c *Catalog) Create(ctx context.Context, def RoleDefinition) error {
	def.Key = RoleKey(strings.TrimSpace(string(def.Key)))
	def.Name = strings.TrimSpace(def.Name)
	if def.Key == "" || def.Name == "" {
		return fmt.Errorf("%w: key and name are required", ErrRoleNotFound)
	}
	if def.Level < MinLevel || def.Level > MaxLevel {
		return ErrLevelOutOfRange
	}
	for _, p := range def.Permissions {
		if !KnownPermission(p) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.roles[def.Key]; exists {
		return ErrRoleExists
	}
	if c.store != nil {
		if err := c.store.SaveRole(ctx, def); err != nil {
			return err
		}
	}
	c.roles[def.Key] = def.clone()
	c.order = append(c.order, def.Key)
	return nil
}

// Update replaces the definition for an existing role. SUPER_ADMIN is immutable.
func (c *Catalog) Update(ctx context.Context, def RoleDefinition) error {
	if def.Key == RoleSuperAdmin {
		return ErrRoleImmutable
	}
	if def.Level < MinLevel || def.Level > MaxLevel {
		return ErrLevelOutOfRange
	}
	for _, p := range def.Permissions {
		if !KnownPermission(p) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.roles[def.Key]; !exists {
		return ErrRoleNotFound
	}
	if c.store != nil {
		if err := c.store.SaveRole(ctx, def); err != nil {
			return err
		}
	}
	c.roles[def.Key] = def.clone()
	return nil
}

// Delete removes a role. SUPER_ADMIN may never be deleted.
func (c *Catalog) Delete(ctx context.Context, key RoleKey) error {
	if key == RoleSuperAdmin {
		return ErrRoleImmutable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.roles[key]; !exists {
		return ErrRoleNotFound
	}
	if c.store != nil {
		if err := c.store.DeleteRole(ctx, key); err != nil {
			return err
		}
	}
	delete(c.roles, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// TogglePermission flips a single grant on a role and returns the new state.
// Toggling twice restores the original grant. The SUPER_ADMIN permission set
// is not editable; that role is implicitly all-permissions.
func (c *Catalog) TogglePermission(ctx context.Context, key RoleKey, perm Permission) (bool, error) {
	if key == RoleSuperAdmin {
		return false, ErrRoleImmutable
	}
	if !KnownPermission(perm) {
		return false, fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	def, exists := c.roles[key]
	if !exists {
		return false, ErrRoleNotFound
	}
	def = def.clone()
	granted := false
	if def.HasPermission(perm) {
		next := def.Permissions[:0]
		for _, p := range def.Permissions {
			if p != perm {
				next = append(next, p)
			}
		}
		def.Permissions = next
	} else {
		def.Permissions = append(def.Permissions, perm)
		granted = true
	}
	if c.store != nil {
		if err := c.store.SaveRole(ctx, def); err != nil {
			return false, err
		}
	}
	c.roles[key] = def
	return granted, nil
}

func builtinRoles() []RoleDefinition {
	all := make([]Permission, 0, len(permissionInfos))
	for _, info := range permissionInfos {
		all = append(all, info.Key)
	}
	return []RoleDefinition{
		{
			Key: RoleSuperAdmin, Name: "Super Admin", Level: 7,
			Description: "Platform owner with unconditional access",
			Permissions: all,
		},
		{
			Key: RoleDentistAdmin, Name: "Dentist Admin", Level: 6,
			Description: "Practice administrator",
			Permissions: []Permission{
				PermManageUsers, PermManageReferrals, PermCreateReferrals,
				PermViewReferrals, PermManageNetwork, PermViewNetwork,
				PermViewAnalytics, PermManageBilling, PermViewBilling,
				PermManageRewards,
			},
		},
		{
			Key: RoleDentalSpecialist, Name: "Dental Specialist", Level: 5,
			Description: "Receiving specialist handling inbound referrals",
			Permissions: []Permission{
				PermViewReferrals, PermViewNetwork, PermViewAnalytics,
			},
		},
		{
			Key: RoleReferringDentist, Name: "Referring Dentist", Level: 4,
			Description: "General dentist submitting referrals",
			Permissions: []Permission{
				PermCreateReferrals, PermViewReferrals, PermViewNetwork,
				PermViewAnalytics,
			},
		},
		{
			Key: RoleOfficeManager, Name: "Office Manager", Level: 3,
			Description: "Front-office staff coordinating referrals",
			Permissions: []Permission{
				PermCreateReferrals, PermViewReferrals, PermManageReferrals,
				PermViewNetwork, PermViewBilling,
			},
		},
		{
			Key: RoleBillingStaff, Name: "Billing Staff", Level: 2,
			Description: "Billing and subscription administration",
			Permissions: []Permission{PermViewBilling, PermManageBilling},
		},
		{
			Key: RolePatient, Name: "Patient", Level: 1,
			Description: "Patient following their own referrals",
			Permissions: []Permission{PermViewReferrals},
		},
	}
}
