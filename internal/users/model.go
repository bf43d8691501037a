package users

import (
	"time"

	"github.com/molarlink/molarlink/internal/authz"
)

// Account is a platform user joined with their role/subscription binding.
// Users without a stored binding carry the defaults.
type Account struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	IsActive     bool          `json:"is_active"`
	Role         authz.RoleKey `json:"role"`
	Subscription authz.Tier    `json:"subscription"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ListAccountsRequest filters and paginates the user admin listing.
type ListAccountsRequest struct {
	Role   *string `json:"role,omitempty"`
	Search *string `json:"search,omitempty"`
	Limit  int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset int     `json:"offset" validate:"gte=0"`
}

// AssignRoleRequest asks to rebind a user to a new role.
type AssignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}
