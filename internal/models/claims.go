package models

import (
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMerchant Role = "merchant"
	RoleViewer   Role = "viewer"
)

// ParseRole validates a role string. Unknown roles are rejected rather than
// silently downgraded.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleMerchant, RoleViewer:
		return Role(s), true
	}
	return "", false
}

// Capability is a single permission checked by services and routes.
type Capability string

// Application capabilities
const (
	// Order capabilities
	CapCreateOrder    Capability = "order:create"
	CapViewOwnOrders  Capability = "order:read"
	CapViewAllOrders  Capability = "order:read:all"
	CapDecideOrder    Capability = "order:decide"
	CapDecideAnyOrder Capability = "order:decide:all"

	// Admin capabilities
	CapManageSettings Capability = "settings:write"
	CapManageUsers    Capability = "users:write"
	CapViewAudit      Capability = "audit:read"
	CapViewAnalytics  Capability = "analytics:read"
)

// Capabilities is the resolved permission set of one identity.
type Capabilities map[Capability]struct{}

// Has reports whether c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	_, ok := cs[c]
	return ok
}

// List returns the capabilities as sorted strings, for responses.
func (cs Capabilities) List() []string {
	out := make([]string, 0, len(cs))
	for c := range cs {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapCreateOrder,
		CapViewOwnOrders,
		CapViewAllOrders,
		CapDecideOrder,
		CapDecideAnyOrder,
		CapManageSettings,
		CapManageUsers,
		CapViewAudit,
		CapViewAnalytics,
	},
	RoleMerchant: {
		CapCreateOrder,
		CapViewOwnOrders,
		CapDecideOrder,
	},
	RoleViewer: {
		CapViewOwnOrders,
	},
}

// CapabilitiesFor returns the capability set granted to role.
func CapabilitiesFor(role Role) Capabilities {
	caps := make(Capabilities)
	for _, c := range roleCapabilities[role] {
		caps[c] = struct{}{}
	}
	return caps
}

// UserClaims is the JWT payload issued at login.
type UserClaims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	SessionID    string `json:"sid"`
	TokenVersion int    `json:"token_version"`
}

// Identity is the authenticated caller, resolved once per request.
type Identity struct {
	UserID       string
	Email        string
	Role         Role
	SessionID    string
	Capabilities Capabilities
}

// NewIdentity resolves role into its capability set.
func NewIdentity(userID, email string, role Role, sessionID string) *Identity {
	return &Identity{
		UserID:       userID,
		Email:        email,
		Role:         role,
		SessionID:    sessionID,
		Capabilities: CapabilitiesFor(role),
	}
}

// Can reports whether the identity holds capability c.
func (i *Identity) Can(c Capability) bool {
	return i != nil && i.Capabilities.Has(c)
}

// SystemActor is the performedBy value for actions not taken by a user.
const SystemActor = "system"

// RequestMeta is the request provenance recorded with mutations.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
