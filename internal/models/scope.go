package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates the staff roles known to the engine.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RolePrincipal UserRole = "PRINCIPAL"
	RoleCounselor UserRole = "COUNSELOR"
	RoleTeacher   UserRole = "TEACHER"
	RoleFinance   UserRole = "FINANCE"
	RoleSystem    UserRole = "SYSTEM"
)

// Scope is the capability every engine call runs under: the tenant it may
// touch and the actor performing the call.
type Scope struct {
	TenantID string
	ActorID  string
	Role     UserRole
}

// SystemScope returns a scope for scheduler-initiated work on a tenant.
func SystemScope(tenantID string) Scope {
	return Scope{TenantID: tenantID, Role: RoleSystem}
}

// IsSystem reports whether no human actor is attached.
func (s Scope) IsSystem() bool {
	return s.ActorID == ""
}

// Actor returns the actor id for audit entries, nil for system calls.
func (s Scope) Actor() *string {
	if s.IsSystem() {
		return nil
	}
	id := s.ActorID
	return &id
}

// WithActor returns a copy of s acting as actorID.
func (s Scope) WithActor(actorID string) Scope {
	s.ActorID = actorID
	return s
}

// ActorOrSystem returns the actor id or SystemActor.
func (s Scope) ActorOrSystem() string {
	if s.IsSystem() {
		return SystemActor
	}
	return s.ActorID
}

// CapabilityClaims is the JWT payload carried by callers of the engine.
type CapabilityClaims struct {
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Scope converts validated claims into an engine scope.
func (c *CapabilityClaims) Scope() Scope {
	return Scope{TenantID: c.TenantID, ActorID: c.UserID, Role: c.Role}
}
