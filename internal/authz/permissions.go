package authz

// Permission is a capability key gating one action or view. The vocabulary is
// defined once here and shared by the catalog, the evaluator and the admin
// surface so the three can never drift apart.
type Permission string

const (
	PermManageUsers     Permission = "manage_users"
	PermManageRoles     Permission = "manage_roles"
	PermManageReferrals Permission = "manage_referrals"
	PermCreateReferrals Permission = "create_referrals"
	PermViewReferrals   Permission = "view_referrals"
	PermManageNetwork   Permission = "manage_network"
	PermViewNetwork     Permission = "view_network"
	PermViewAnalytics   Permission = "view_analytics"
	PermManageBilling   Permission = "manage_billing"
	PermViewBilling     Permission = "view_billing"
	PermManageRewards   Permission = "manage_rewards"
	PermManageSystem    Permission = "manage_system"
)

// PermissionInfo carries display metadata for the admin surface.
type PermissionInfo struct {
	Key         Permission `json:"key"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
}

var permissionInfos = []PermissionInfo{
	{PermManageUsers, "Manage Users", "Create, edit and deactivate user accounts", "User Management"},
	{PermManageRoles, "Manage Roles", "Edit the role catalog and permission grants", "User Management"},
	{PermManageReferrals, "Manage Referrals", "Update and close referrals for the practice", "Referrals"},
	{PermCreateReferrals, "Create Referrals", "Submit new patient referrals", "Referrals"},
	{PermViewReferrals, "View Referrals", "Read referrals visible to the practice", "Referrals"},
	{PermManageNetwork, "Manage Network", "Maintain the professional directory", "Network"},
	{PermViewNetwork, "View Network", "Browse the professional directory", "Network"},
	{PermViewAnalytics, "View Analytics", "Access referral analytics and summaries", "Analytics"},
	{PermManageBilling, "Manage Billing", "Change subscription plans and billing settings", "Billing"},
	{PermViewBilling, "View Billing", "Read invoices and the current plan", "Billing"},
	{PermManageRewards, "Manage Rewards", "Configure the referral rewards program", "Rewards"},
	{PermManageSystem, "Manage System", "Platform-wide administrative settings", "System"},
}

// AllPermissions returns the full vocabulary in declaration order.
func AllPermissions() []PermissionInfo {
	out := make([]PermissionInfo, len(permissionInfos))
	copy(out, permissionInfos)
	return out
}

// PermissionsByCategory groups the vocabulary for display, preserving
// category order of first appearance.
func PermissionsByCategory() []PermissionCategory {
	index := make(map[string]int)
	var out []PermissionCategory
	for _, info := range permissionInfos {
		i, ok := index[info.Category]
		if !ok {
			i = len(out)
			index[info.Category] = i
			out = append(out, PermissionCategory{Name: info.Category})
		}
		out[i].Permissions = append(out[i].Permissions, info)
	}
	return out
}

// PermissionCategory groups related permissions for the admin surface.
type PermissionCategory struct {
	Name        string           `json:"name"`
	Permissions []PermissionInfo `json:"permissions"`
}

// KnownPermission reports whether key belongs to the vocabulary.
func KnownPermission(key Permission) bool {
	for _, info := range permissionInfos {
		if info.Key == key {
			return true
		}
	}
	return false
}

// sectionPermissions maps named application sections to the permission
// required to edit them. Unknown sections fail closed.
var sectionPermissions = map[string]Permission{
	"user-management": PermManageUsers,
	"billing":         PermManageBilling,
	"analytics":       PermViewAnalytics,
	"system":          PermManageSystem,
	"network":         PermManageNetwork,
	"referrals":       PermManageReferrals,
	"rewards":         PermManageRewards,
}
