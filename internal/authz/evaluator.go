package authz

// Evaluator answers permission queries for a principal against the role
// catalog. Every method is pure given the catalog snapshot and the principal:
// no I/O, no mutation, safe to call on every request.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator constructs an Evaluator over the given catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// HasPermission reports whether the principal holds perm. SUPER_ADMIN passes
// unconditionally regardless of its catalog permission list; this is an
// explicit bypass, not a consequence of the list's contents.
func (e *Evaluator) HasPermission(p *Principal, perm Permission) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleSuperAdmin {
		return true
	}
	for _, held := range p.Permissions {
		if held == perm {
			return true
		}
	}
	return false
}

// HasRole reports an exact role-key match.
func (e *Evaluator) HasRole(p *Principal, key RoleKey) bool {
	return p != nil && p.Role == key
}

// HasMinimumRole reports whether the principal's authority level is at least
// that of the named role. Unknown roles on either side fail closed, except
// SUPER_ADMIN which always satisfies any minimum.
func (e *Evaluator) HasMinimumRole(p *Principal, key RoleKey) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleSuperAdmin {
		return true
	}
	own, ok := e.catalog.Get(p.Role)
	if !ok {
		return false
	}
	required, ok := e.catalog.Get(key)
	if !ok {
		return false
	}
	return own.Level >= required.Level
}

// CanEditSection maps a named application section to its required permission
// and delegates to HasPermission. Unknown sections fail closed.
func (e *Evaluator) CanEditSection(p *Principal, section string) bool {
	perm, ok := sectionPermissions[section]
	if !ok {
		return false
	}
	return e.HasPermission(p, perm)
}
